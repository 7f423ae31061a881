package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/murilobezs/empowerup-sub002/config"

	"github.com/hibiken/asynq"
)

// TypeMessageNotify 消息通知任务类型
// 消费方（推送/邮件worker）在本核心之外，这里只负责入队
const TypeMessageNotify = "notify:message"

// QueueNotifier 通过asynq把通知写入Redis队列
type QueueNotifier struct {
	client *asynq.Client
	cfg    config.QueueConfig
}

// NewQueueNotifier 创建QueueNotifier实例（复用Redis连接参数）
func NewQueueNotifier(redisCfg config.RedisConfig, queueCfg config.QueueConfig) *QueueNotifier {
	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     fmt.Sprintf("%s:%d", redisCfg.Host, redisCfg.Port),
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})
	return &QueueNotifier{client: client, cfg: queueCfg}
}

// Notify 入队一条通知任务
func (q *QueueNotifier) Notify(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("序列化通知任务失败: %w", err)
	}

	task := asynq.NewTask(TypeMessageNotify, payload)
	opts := []asynq.Option{
		asynq.Queue(q.cfg.Queue),
		asynq.MaxRetry(q.cfg.MaxRetry),
	}
	if q.cfg.Retention > 0 {
		opts = append(opts, asynq.Retention(q.cfg.Retention))
	}

	if _, err := q.client.EnqueueContext(ctx, task, opts...); err != nil {
		return fmt.Errorf("通知任务入队失败: %w", err)
	}
	return nil
}

// Close 关闭队列客户端
func (q *QueueNotifier) Close() error {
	return q.client.Close()
}
