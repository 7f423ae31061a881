// Package notify 实现消息通知的扇出。
// 通知相对消息发送是 fire-and-forget：投递失败只记日志，
// 绝不回滚或影响发送结果。
package notify

import (
	"context"
	"encoding/json"

	"github.com/murilobezs/empowerup-sub002/pkg/logger"
	"github.com/murilobezs/empowerup-sub002/pkg/websocket"

	"go.uber.org/zap"
)

// Notification 单个接收者的消息通知
type Notification struct {
	UserID         uint   `json:"user_id"`         // 接收者
	FromUserID     uint   `json:"from_user_id"`    // 发送者
	Kind           string `json:"kind"`            // 固定为 message
	ConversationID uint   `json:"conversation_id"` // 会话ID
	Preview        string `json:"preview"`         // 消息预览
}

// Notifier 通知投递接口
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Fanout 把通知分发到多个投递通道
// 每个其他活跃参与者收到一条通知；任何通道失败只记日志
type Fanout struct {
	notifiers []Notifier
}

// NewFanout 创建Fanout实例
func NewFanout(notifiers ...Notifier) *Fanout {
	return &Fanout{notifiers: notifiers}
}

// Dispatch 分发一批通知
func (f *Fanout) Dispatch(ctx context.Context, notifications []Notification) {
	for _, n := range notifications {
		for _, notifier := range f.notifiers {
			if err := notifier.Notify(ctx, n); err != nil {
				logger.Warn("通知投递失败",
					zap.Error(err),
					zap.Uint("user_id", n.UserID),
					zap.Uint("from_user_id", n.FromUserID),
					zap.Uint("conversation_id", n.ConversationID),
				)
			}
		}
	}
}

// WebsocketNotifier 通过WebSocket连接推送通知给在线用户
// 用户不在线不算失败，由队列通道兜底
type WebsocketNotifier struct{}

// NewWebsocketNotifier 创建WebsocketNotifier实例
func NewWebsocketNotifier() *WebsocketNotifier {
	return &WebsocketNotifier{}
}

// Notify 推送通知
func (w *WebsocketNotifier) Notify(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(map[string]interface{}{
		"type":            "notification",
		"kind":            n.Kind,
		"from":            n.FromUserID,
		"conversation_id": n.ConversationID,
		"preview":         n.Preview,
	})
	if err != nil {
		return err
	}
	websocket.GetManager().SendToUser(n.UserID, payload)
	return nil
}
