package repository

import (
	"context"
	"errors"
	"time"

	"github.com/murilobezs/empowerup-sub002/internal/model"

	"gorm.io/gorm"
)

// receiptColumns 可选回执列的存在性
// 部分部署的消息表没有这些列，所有写这些列的路径都要先检查能力，
// 读路径则一律走 receipt 包推导，保证两种表结构行为一致
type receiptColumns struct {
	ReadFlag    bool
	DeliveredAt bool
	ReadAt      bool
}

// MessageRepository 消息数据仓储
type MessageRepository struct {
	db           *gorm.DB
	columns      receiptColumns
	omitOnCreate []string // 表中不存在的回执字段，插入时跳过
}

// NewMessageRepository 创建MessageRepository实例
// 启动时探测一次可选回执列，避免把列存在性判断散落到各调用方
func NewMessageRepository(db *gorm.DB) *MessageRepository {
	migrator := db.Migrator()
	r := &MessageRepository{
		db: db,
		columns: receiptColumns{
			ReadFlag:    migrator.HasColumn(&model.Message{}, "read_flag"),
			DeliveredAt: migrator.HasColumn(&model.Message{}, "delivered_at"),
			ReadAt:      migrator.HasColumn(&model.Message{}, "read_at"),
		},
	}
	if !r.columns.ReadFlag {
		r.omitOnCreate = append(r.omitOnCreate, "ReadFlag")
	}
	if !r.columns.DeliveredAt {
		r.omitOnCreate = append(r.omitOnCreate, "DeliveredAt")
	}
	if !r.columns.ReadAt {
		r.omitOnCreate = append(r.omitOnCreate, "ReadAt")
	}
	return r
}

// HasReadColumns 是否支持消息级回执列
func (r *MessageRepository) HasReadColumns() bool {
	return r.columns.ReadFlag
}

// Append 追加消息并更新会话的最后消息指针
// 两个写操作在同一事务中提交，读取方不会看到指向未提交消息的会话
func (r *MessageRepository) Append(ctx context.Context, message *model.Message) error {
	return withRetry("message.append", func() error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			insert := tx
			if len(r.omitOnCreate) > 0 {
				insert = insert.Omit(r.omitOnCreate...)
			}
			if err := insert.Create(message).Error; err != nil {
				return err
			}
			return tx.Model(&model.Conversation{}).
				Where("id = ?", message.ConversationID).
				Updates(map[string]interface{}{
					"last_message_id": message.ID,
					"last_message_at": message.SentAt,
				}).Error
		})
	})
}

// GetByID 根据ID获取消息，不存在返回 (nil, nil)
func (r *MessageRepository) GetByID(ctx context.Context, id uint) (*model.Message, error) {
	var message model.Message
	err := withRetry("message.get", func() error {
		return r.db.WithContext(ctx).First(&message, id).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &message, nil
}

// ListPage 分页获取会话消息
// 按ID升序（插入顺序，会话内消息ID单调递增），返回消息和总数
func (r *MessageRepository) ListPage(ctx context.Context, conversationID uint, offset, limit int) ([]*model.Message, int64, error) {
	var total int64
	err := withRetry("message.count", func() error {
		return r.db.WithContext(ctx).Model(&model.Message{}).
			Where("conversation_id = ?", conversationID).
			Count(&total).Error
	})
	if err != nil {
		return nil, 0, err
	}

	var messages []*model.Message
	err = withRetry("message.list_page", func() error {
		return r.db.WithContext(ctx).
			Where("conversation_id = ?", conversationID).
			Order("id ASC").
			Limit(limit).
			Offset(offset).
			Find(&messages).Error
	})
	return messages, total, err
}

// GetPreview 获取会话最后消息预览（弱引用，消息缺失时返回 nil）
func (r *MessageRepository) GetPreview(ctx context.Context, lastMessageID *uint) (*model.Message, error) {
	if lastMessageID == nil {
		return nil, nil
	}
	return r.GetByID(ctx, *lastMessageID)
}

// MarkSeenUpTo 批量把 at 之前其他发送者的消息标记为已读
// 尽力而为的优化：回执列不存在时直接跳过；
// 正确性不依赖这里——读路径总是由 receipt 包按 last_seen_at 重新推导
func (r *MessageRepository) MarkSeenUpTo(ctx context.Context, conversationID, viewerID uint, at time.Time) error {
	if !r.columns.ReadFlag {
		return nil
	}

	updates := map[string]interface{}{"read_flag": true}
	if r.columns.ReadAt {
		updates["read_at"] = at
	}

	return withRetry("message.mark_seen_up_to", func() error {
		return r.db.WithContext(ctx).Model(&model.Message{}).
			Where("conversation_id = ? AND sender_id <> ? AND sent_at <= ?", conversationID, viewerID, at).
			Where("read_flag IS NULL OR read_flag = ?", false).
			Updates(updates).Error
	})
}

// CountUnseen 统计会话中比 lastSeenAt 更新的他人消息数量
// 与 receipt.Unseen 同一条"严格大于最近查看时间"规则，lastSeenAt 为空按从未看过处理
func (r *MessageRepository) CountUnseen(ctx context.Context, conversationID, userID uint, lastSeenAt *time.Time) (int64, error) {
	since := time.Unix(0, 0)
	if lastSeenAt != nil {
		since = *lastSeenAt
	}

	var count int64
	err := withRetry("message.count_unseen", func() error {
		return r.db.WithContext(ctx).Model(&model.Message{}).
			Where("conversation_id = ? AND sender_id <> ? AND sent_at > ?", conversationID, userID, since).
			Count(&count).Error
	})
	return count, err
}

// ExistsInConversation 判断消息是否属于指定会话（回复目标校验）
func (r *MessageRepository) ExistsInConversation(ctx context.Context, messageID, conversationID uint) (bool, error) {
	var count int64
	err := withRetry("message.exists_in_conversation", func() error {
		return r.db.WithContext(ctx).Model(&model.Message{}).
			Where("id = ? AND conversation_id = ?", messageID, conversationID).
			Count(&count).Error
	})
	return count > 0, err
}
