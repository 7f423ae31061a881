package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/murilobezs/empowerup-sub002/internal/apperr"
	"github.com/murilobezs/empowerup-sub002/internal/model"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// ConversationRepository 会话数据仓储
type ConversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository 创建ConversationRepository实例
func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// Create 创建会话
func (r *ConversationRepository) Create(ctx context.Context, conversation *model.Conversation) error {
	return withRetry("conversation.create", func() error {
		return r.db.WithContext(ctx).Create(conversation).Error
	})
}

// CreateGroup 创建群聊会话，建群者的 owner 记录在同一事务里写入
// 两步分开写会在崩溃时留下没有 owner 的孤儿群
func (r *ConversationRepository) CreateGroup(ctx context.Context, conversation *model.Conversation) error {
	if conversation.CreatorID == nil {
		return errors.New("group conversation requires a creator")
	}
	creatorID := *conversation.CreatorID
	return withRetry("conversation.create_group", func() error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(conversation).Error; err != nil {
				return err
			}
			owner := &model.Participant{
				ConversationID: conversation.ID,
				UserID:         creatorID,
				Role:           model.RoleOwner,
				Status:         model.ParticipantActive,
				JoinedAt:       conversation.CreatedAt,
			}
			return tx.Create(owner).Error
		})
	})
}

// GetByID 根据ID获取会话
func (r *ConversationRepository) GetByID(ctx context.Context, id uint) (*model.Conversation, error) {
	var conversation model.Conversation
	err := withRetry("conversation.get", func() error {
		return r.db.WithContext(ctx).First(&conversation, id).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrConversationNotFound
		}
		return nil, err
	}
	return &conversation, nil
}

// PairKey 私聊去重键，与用户顺序无关
func PairKey(userA, userB uint) string {
	if userA > userB {
		userA, userB = userB, userA
	}
	return fmt.Sprintf("%d:%d", userA, userB)
}

// GetOrCreatePrivate 获取或创建两个用户之间的私聊会话（幂等）
// 去重不靠内存锁：pair_key 上的唯一索引把不变量压进存储层，
// 并发建会话时后写者命中唯一键冲突后改为读取已有会话
// 返回值第二项表示本次是否新建
func (r *ConversationRepository) GetOrCreatePrivate(ctx context.Context, userA, userB uint) (*model.Conversation, bool, error) {
	pairKey := PairKey(userA, userB)

	// 先查已有会话
	if conv, err := r.getByPairKey(ctx, pairKey); err != nil {
		return nil, false, err
	} else if conv != nil {
		return conv, false, nil
	}

	now := time.Now()
	conversation := &model.Conversation{
		Kind:      model.ConversationPrivate,
		PairKey:   &pairKey,
		CreatorID: &userA,
		CreatedAt: now,
	}

	// 会话和两条参与者记录作为一个事务写入
	err := withRetry("conversation.create_private", func() error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(conversation).Error; err != nil {
				return err
			}
			participants := []*model.Participant{
				{ConversationID: conversation.ID, UserID: userA, Role: model.RoleMember, Status: model.ParticipantActive, JoinedAt: now},
				{ConversationID: conversation.ID, UserID: userB, Role: model.RoleMember, Status: model.ParticipantActive, JoinedAt: now},
			}
			return tx.Create(&participants).Error
		})
	})
	if err == nil {
		return conversation, true, nil
	}

	// 并发创建时唯一键冲突，读取对方已建好的会话
	if isDuplicateKey(err) {
		conv, gerr := r.getByPairKey(ctx, pairKey)
		if gerr != nil {
			return nil, false, gerr
		}
		if conv != nil {
			return conv, false, nil
		}
	}
	return nil, false, err
}

// getByPairKey 按去重键查私聊会话，不存在返回 (nil, nil)
func (r *ConversationRepository) getByPairKey(ctx context.Context, pairKey string) (*model.Conversation, error) {
	var conversation model.Conversation
	err := withRetry("conversation.get_by_pair", func() error {
		return r.db.WithContext(ctx).Where("pair_key = ?", pairKey).First(&conversation).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conversation, nil
}

// ListForUser 获取用户作为活跃参与者的全部会话
// 排序：最后消息时间倒序，没有消息的会话按创建时间倒序排在最后
func (r *ConversationRepository) ListForUser(ctx context.Context, userID uint) ([]*model.Conversation, error) {
	var conversations []*model.Conversation
	err := withRetry("conversation.list_for_user", func() error {
		return r.db.WithContext(ctx).
			Joins("JOIN participant ON participant.conversation_id = conversation.id").
			Where("participant.user_id = ? AND participant.status = ?", userID, model.ParticipantActive).
			Order("(conversation.last_message_at IS NULL) ASC").
			Order("conversation.last_message_at DESC").
			Order("conversation.created_at DESC").
			Find(&conversations).Error
	})
	return conversations, err
}

// isDuplicateKey 识别唯一键冲突
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *mysqldriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	// sqlite（测试环境）没有结构化错误码
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
