package repository

import (
	"context"
	"errors"
	"time"

	"github.com/murilobezs/empowerup-sub002/internal/model"

	"gorm.io/gorm"
)

// ParticipantRepository 会话参与者数据仓储
type ParticipantRepository struct {
	db *gorm.DB
}

// NewParticipantRepository 创建ParticipantRepository实例
func NewParticipantRepository(db *gorm.DB) *ParticipantRepository {
	return &ParticipantRepository{db: db}
}

// roleOrder 角色排序表达式：owner < admin < member
const roleOrder = "CASE role WHEN 'owner' THEN 0 WHEN 'admin' THEN 1 ELSE 2 END"

// ListActive 获取会话的全部活跃参与者，按角色再按加入时间排序
func (r *ParticipantRepository) ListActive(ctx context.Context, conversationID uint) ([]*model.Participant, error) {
	var participants []*model.Participant
	err := withRetry("participant.list_active", func() error {
		return r.db.WithContext(ctx).
			Where("conversation_id = ? AND status = ?", conversationID, model.ParticipantActive).
			Order(roleOrder).
			Order("joined_at ASC").
			Find(&participants).Error
	})
	return participants, err
}

// ListAll 获取会话的全部参与者记录（含已移除）
// 回执推导需要"曾经加入过"的信号，因此这里不过滤状态
func (r *ParticipantRepository) ListAll(ctx context.Context, conversationID uint) ([]*model.Participant, error) {
	var participants []*model.Participant
	err := withRetry("participant.list_all", func() error {
		return r.db.WithContext(ctx).
			Where("conversation_id = ?", conversationID).
			Order(roleOrder).
			Order("joined_at ASC").
			Find(&participants).Error
	})
	return participants, err
}

// Get 获取用户在会话中的活跃参与记录
// 从未加入或已被移除都返回 (nil, nil)
func (r *ParticipantRepository) Get(ctx context.Context, conversationID, userID uint) (*model.Participant, error) {
	p, err := r.getAny(ctx, conversationID, userID)
	if err != nil || p == nil {
		return nil, err
	}
	if !p.IsActive() {
		return nil, nil
	}
	return p, nil
}

// getAny 获取参与记录（不过滤状态），不存在返回 (nil, nil)
func (r *ParticipantRepository) getAny(ctx context.Context, conversationID, userID uint) (*model.Participant, error) {
	var participant model.Participant
	err := withRetry("participant.get", func() error {
		return r.db.WithContext(ctx).
			Where("conversation_id = ? AND user_id = ?", conversationID, userID).
			First(&participant).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &participant, nil
}

// TouchLastSeen 单调推进参与者的最近查看时间
// 条件写（仅当 at 比已存值更新时生效）保证重放和多端并发都不会让时间回退，
// 不需要任何进程内锁
func (r *ParticipantRepository) TouchLastSeen(ctx context.Context, conversationID, userID uint, at time.Time) error {
	return withRetry("participant.touch_last_seen", func() error {
		return r.db.WithContext(ctx).Model(&model.Participant{}).
			Where("conversation_id = ? AND user_id = ? AND status = ?", conversationID, userID, model.ParticipantActive).
			Where("last_seen_at IS NULL OR last_seen_at < ?", at).
			Update("last_seen_at", at).Error
	})
}

// Activate 把用户加入会话（或恢复为活跃状态）
// 首次加入写入 joined_at，重新激活保持原 joined_at 不变
func (r *ParticipantRepository) Activate(ctx context.Context, conversationID, userID uint, role string) (*model.Participant, error) {
	existing, err := r.getAny(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		participant := &model.Participant{
			ConversationID: conversationID,
			UserID:         userID,
			Role:           role,
			Status:         model.ParticipantActive,
			JoinedAt:       time.Now(),
		}
		err := withRetry("participant.insert", func() error {
			return r.db.WithContext(ctx).Create(participant).Error
		})
		if err != nil {
			return nil, err
		}
		return participant, nil
	}

	if existing.IsActive() {
		return existing, nil
	}

	err = withRetry("participant.reactivate", func() error {
		return r.db.WithContext(ctx).Model(existing).
			Update("status", model.ParticipantActive).Error
	})
	if err != nil {
		return nil, err
	}
	existing.Status = model.ParticipantActive
	return existing, nil
}

// Deactivate 把参与者标记为已移除
func (r *ParticipantRepository) Deactivate(ctx context.Context, conversationID, userID uint) error {
	return withRetry("participant.deactivate", func() error {
		return r.db.WithContext(ctx).Model(&model.Participant{}).
			Where("conversation_id = ? AND user_id = ?", conversationID, userID).
			Update("status", model.ParticipantRemoved).Error
	})
}

// CountActiveOwners 会话中活跃owner数量
func (r *ParticipantRepository) CountActiveOwners(ctx context.Context, conversationID uint) (int64, error) {
	var count int64
	err := withRetry("participant.count_owners", func() error {
		return r.db.WithContext(ctx).Model(&model.Participant{}).
			Where("conversation_id = ? AND status = ? AND role = ?",
				conversationID, model.ParticipantActive, model.RoleOwner).
			Count(&count).Error
	})
	return count, err
}

// ListMemberships 获取用户的全部活跃参与记录（跨会话，角标统计用）
func (r *ParticipantRepository) ListMemberships(ctx context.Context, userID uint) ([]*model.Participant, error) {
	var participants []*model.Participant
	err := withRetry("participant.list_memberships", func() error {
		return r.db.WithContext(ctx).
			Where("user_id = ? AND status = ?", userID, model.ParticipantActive).
			Find(&participants).Error
	})
	return participants, err
}

// UpdateFlags 更新免打扰/收藏标记（仅影响展示）
func (r *ParticipantRepository) UpdateFlags(ctx context.Context, conversationID, userID uint, muted, favorite *bool) error {
	updates := map[string]interface{}{}
	if muted != nil {
		updates["muted"] = *muted
	}
	if favorite != nil {
		updates["favorite"] = *favorite
	}
	if len(updates) == 0 {
		return nil
	}

	return withRetry("participant.update_flags", func() error {
		return r.db.WithContext(ctx).Model(&model.Participant{}).
			Where("conversation_id = ? AND user_id = ? AND status = ?",
				conversationID, userID, model.ParticipantActive).
			Updates(updates).Error
	})
}
