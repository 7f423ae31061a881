package receipt

import (
	"testing"
	"time"

	"github.com/murilobezs/empowerup-sub002/internal/model"
)

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func at(offset int) time.Time {
	return base.Add(time.Duration(offset) * time.Second)
}

func atPtr(offset int) *time.Time {
	t := at(offset)
	return &t
}

func participant(userID uint, status string, lastSeen *time.Time) *model.Participant {
	return &model.Participant{
		UserID:     userID,
		Status:     status,
		Role:       model.RoleMember,
		JoinedAt:   base,
		LastSeenAt: lastSeen,
	}
}

func message(senderID uint, sentOffset int) *model.Message {
	return &model.Message{SenderID: senderID, SentAt: at(sentOffset)}
}

// 私聊场景：A 在 t=100 发消息，B 的 last_seen 从 t=50 推进到 t=150，
// 状态应从 delivered 变为 read。
func TestPrivateSeenTransition(t *testing.T) {
	msg := message(1, 100)

	before := []*model.Participant{
		participant(1, model.ParticipantActive, atPtr(100)),
		participant(2, model.ParticipantActive, atPtr(50)),
	}
	st := Derive(msg, 1, before)
	if st.Key != StatusDelivered {
		t.Fatalf("对方未看过时状态应为 delivered，实际 %q", st.Key)
	}
	if len(st.ReadBy) != 0 {
		t.Fatalf("未看过时 read_by 应为空，实际 %d 条", len(st.ReadBy))
	}

	after := []*model.Participant{
		participant(1, model.ParticipantActive, atPtr(100)),
		participant(2, model.ParticipantActive, atPtr(150)),
	}
	st = Derive(msg, 1, after)
	if st.Key != StatusRead {
		t.Fatalf("对方已看过时状态应为 read，实际 %q", st.Key)
	}
	if st.At == nil || !st.At.Equal(at(150)) {
		t.Fatalf("read 时间应为对方的 last_seen_at，实际 %v", st.At)
	}
	if len(st.ReadBy) != 1 || st.ReadBy[0].UserID != 2 {
		t.Fatalf("read_by 应只含用户2，实际 %+v", st.ReadBy)
	}
}

// last_seen_at 等于 sent_at 时计为已读（平局偏向 read）
func TestSeenAtExactSentTimeCountsAsRead(t *testing.T) {
	msg := message(1, 100)
	participants := []*model.Participant{
		participant(1, model.ParticipantActive, nil),
		participant(2, model.ParticipantActive, atPtr(100)),
	}

	st := Derive(msg, 1, participants)
	if st.Key != StatusRead {
		t.Fatalf("相等时刻应计为 read，实际 %q", st.Key)
	}
}

// 群聊：任一其他活跃成员看过即为 read，read 时间取读者里最晚的
func TestGroupAnyReaderMarksRead(t *testing.T) {
	msg := message(1, 100)
	participants := []*model.Participant{
		participant(1, model.ParticipantActive, atPtr(100)),
		participant(2, model.ParticipantActive, atPtr(120)),
		participant(3, model.ParticipantActive, atPtr(200)),
		participant(4, model.ParticipantActive, atPtr(10)),
	}

	st := Derive(msg, 1, participants)
	if st.Key != StatusRead {
		t.Fatalf("有成员看过时状态应为 read，实际 %q", st.Key)
	}
	if len(st.ReadBy) != 2 {
		t.Fatalf("应有两名读者，实际 %d", len(st.ReadBy))
	}
	if st.At == nil || !st.At.Equal(at(200)) {
		t.Fatalf("read 时间应取读者里最晚的 t=200，实际 %v", st.At)
	}
}

// 单人会话：没有其他成员行，消息停留在 sent
func TestSoloConversationStaysSent(t *testing.T) {
	msg := message(1, 100)
	participants := []*model.Participant{
		participant(1, model.ParticipantActive, atPtr(500)),
	}

	st := Derive(msg, 1, participants)
	if st.Key != StatusSent {
		t.Fatalf("单人会话应停留在 sent，实际 %q", st.Key)
	}
	if !st.IsMine {
		t.Fatal("发送者视角 is_mine 应为 true")
	}
}

// 已移除成员的行仍然提供 delivered 信号，但不再提供 read 信号
func TestRemovedParticipantDeliversButNeverReads(t *testing.T) {
	msg := message(1, 100)
	participants := []*model.Participant{
		participant(1, model.ParticipantActive, nil),
		participant(2, model.ParticipantRemoved, atPtr(300)),
	}

	st := Derive(msg, 1, participants)
	if st.Key != StatusDelivered {
		t.Fatalf("对方退出后状态应停在 delivered，实际 %q", st.Key)
	}
	if len(st.ReadBy) != 0 {
		t.Fatalf("已移除成员不应出现在 read_by，实际 %+v", st.ReadBy)
	}
}

// 显式已读标记优先于 last_seen 推断
func TestExplicitReadFlagWins(t *testing.T) {
	flag := true
	msg := message(1, 100)
	msg.ReadFlag = &flag
	msg.ReadAt = atPtr(130)

	// 对方的 last_seen 落后于消息，但显式标记说已读
	participants := []*model.Participant{
		participant(1, model.ParticipantActive, nil),
		participant(2, model.ParticipantActive, atPtr(50)),
	}

	st := Derive(msg, 1, participants)
	if st.Key != StatusRead {
		t.Fatalf("显式标记应直接判为 read，实际 %q", st.Key)
	}
	if st.At == nil || !st.At.Equal(at(130)) {
		t.Fatalf("read 时间应取 read_at 列，实际 %v", st.At)
	}
}

// 显式标记为未读时不得被 last_seen 推断覆盖成 read
func TestExplicitUnreadFlagBlocksInference(t *testing.T) {
	flag := false
	msg := message(1, 100)
	msg.ReadFlag = &flag

	participants := []*model.Participant{
		participant(1, model.ParticipantActive, nil),
		participant(2, model.ParticipantActive, atPtr(500)),
	}

	st := Derive(msg, 1, participants)
	if st.Key != StatusDelivered {
		t.Fatalf("显式未读 + 有其他成员应为 delivered，实际 %q", st.Key)
	}
}

// 接收方视角的 is_unread：自己发的永远不算未读
func TestIsUnread(t *testing.T) {
	msg := message(1, 100)

	// 接收方还没看到
	participants := []*model.Participant{
		participant(1, model.ParticipantActive, nil),
		participant(2, model.ParticipantActive, atPtr(50)),
	}
	st := Derive(msg, 2, participants)
	if !st.IsUnread {
		t.Fatal("接收方 last_seen 落后时 is_unread 应为 true")
	}
	if st.IsMine {
		t.Fatal("接收方视角 is_mine 应为 false")
	}

	// 接收方已看到
	participants[1].LastSeenAt = atPtr(100)
	st = Derive(msg, 2, participants)
	if st.IsUnread {
		t.Fatal("接收方已看过时 is_unread 应为 false")
	}

	// 发送方自己永远不算未读
	st = Derive(msg, 1, participants)
	if st.IsUnread {
		t.Fatal("发送者自己的消息 is_unread 应为 false")
	}
}

// 群聊里某个成员的查看把 read_flag 置位后，
// 其他从未打开会话的成员自己的未读判断不受影响（只看自己的 last_seen_at）
func TestIsUnreadIgnoresExplicitFlag(t *testing.T) {
	flag := true
	msg := message(1, 100)
	msg.ReadFlag = &flag
	msg.ReadAt = atPtr(120)

	participants := []*model.Participant{
		participant(1, model.ParticipantActive, nil),
		participant(2, model.ParticipantActive, atPtr(120)), // 看过，触发了批量标记
		participant(3, model.ParticipantActive, nil),        // 从未打开会话
	}

	st := Derive(msg, 3, participants)
	if !st.IsUnread {
		t.Fatal("查看者自己从未看过时 is_unread 必须为 true，不能被 read_flag 短路")
	}
	// 发送方视角的状态仍然信任显式标记
	if st.Key != StatusRead {
		t.Fatalf("显式标记下状态应为 read，实际 %q", st.Key)
	}

	st = Derive(msg, 2, participants)
	if st.IsUnread {
		t.Fatal("已看过的成员 is_unread 应为 false")
	}
}

// Unseen 规则：严格大于 last_seen 才算未读（与已读推断的闭区间互补）
func TestUnseen(t *testing.T) {
	if Unseen(at(100), atPtr(100)) {
		t.Fatal("sent_at 等于 last_seen 时不算未读")
	}
	if !Unseen(at(101), atPtr(100)) {
		t.Fatal("sent_at 晚于 last_seen 时应算未读")
	}
	if !Unseen(at(0), nil) {
		t.Fatal("从未查看过时所有消息都算未读")
	}
}
