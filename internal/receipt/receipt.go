// Package receipt 推导消息相对某个查看者的投递/已读状态。
// 部分部署的消息表没有显式回执列（read_flag/delivered_at/read_at），
// 此时状态必须由参与者的 last_seen_at 与消息 sent_at 比较推断。
// 所有消费方都必须经过本包取状态，不允许直接读原始列，
// 保证两种表结构产出一致的结果。
package receipt

import (
	"time"

	"github.com/murilobezs/empowerup-sub002/internal/model"
)

// 状态键，按强度递增
const (
	StatusSent      = "sent"      // 仅写入服务端
	StatusDelivered = "delivered" // 已有其他成员加入过会话
	StatusRead      = "read"      // 至少一名其他活跃成员已看过
)

// ReadReceipt 单个读者的回执
type ReadReceipt struct {
	UserID uint      `json:"user_id"`
	At     time.Time `json:"at"`
}

// Status 消息相对 viewer 的状态
// At 在 read 状态下取所有读者时间的最大值（"最后一个读到"的展示语义）
type Status struct {
	Key      string        `json:"key"`
	At       *time.Time    `json:"at,omitempty"`
	ReadBy   []ReadReceipt `json:"read_by,omitempty"`
	IsMine   bool          `json:"is_mine"`
	IsUnread bool          `json:"is_unread"`
}

// Derive 推导消息状态。
// participants 传会话的完整参与者列表（含已移除的行）：
// 已读推断只看活跃参与者，而 delivered 信号看"曾经加入过"的任何其他成员行，
// 因此对方退出后的会话永远停在 delivered，不会再变成 read。
// 优先级：
//  1. 消息带显式已读标记时直接信任它
//  2. 否则按 last_seen_at >= sent_at 推断（相等计为已读，平局偏向 read）
func Derive(msg *model.Message, viewerID uint, participants []*model.Participant) Status {
	st := Status{
		Key:    StatusSent,
		IsMine: msg.SenderID == viewerID,
	}

	var viewer *model.Participant
	var hasOther bool
	for _, p := range participants {
		if p.UserID == viewerID {
			viewer = p
		}
		if p.UserID == msg.SenderID {
			continue
		}
		hasOther = true
		if p.IsActive() && p.HasSeen(msg.SentAt) {
			st.ReadBy = append(st.ReadBy, ReadReceipt{UserID: p.UserID, At: *p.LastSeenAt})
		}
	}

	switch {
	case msg.ReadFlag != nil:
		// 显式回执列存在，直接信任
		if *msg.ReadFlag {
			st.Key = StatusRead
			st.At = msg.ReadAt
		} else if msg.DeliveredAt != nil {
			st.Key = StatusDelivered
			st.At = msg.DeliveredAt
		} else if hasOther {
			// 标记列存在但还没写入投递时间，送达信号仍按成员行推断
			st.Key = StatusDelivered
		}
	case len(st.ReadBy) > 0:
		// 任一其他活跃成员看过即为已读（私聊与群聊同一条规则）
		st.Key = StatusRead
		last := st.ReadBy[0].At
		for _, r := range st.ReadBy[1:] {
			if r.At.After(last) {
				last = r.At
			}
		}
		st.At = &last
	case hasOther:
		st.Key = StatusDelivered
	}

	st.IsUnread = deriveUnread(msg, viewer, st.IsMine)
	return st
}

// deriveUnread 接收方视角的未读标记
// 显式已读标记是发送方视角的状态信号（群里任一成员看过即置位），
// 未读判断必须只看查看者自己的 last_seen_at，否则角标与消息级标记会不一致
func deriveUnread(msg *model.Message, viewer *model.Participant, isMine bool) bool {
	if isMine {
		return false
	}
	return viewer == nil || !viewer.HasSeen(msg.SentAt)
}

// Unseen 判断消息对某个 last_seen_at 而言是否未读（sent_at 严格大于 last_seen）。
// InboxAggregator 的角标统计必须复用这一规则，避免角标与消息级已读标记不一致。
func Unseen(sentAt time.Time, lastSeenAt *time.Time) bool {
	return lastSeenAt == nil || sentAt.After(*lastSeenAt)
}
