package service

import (
	"context"
	"time"

	"github.com/murilobezs/empowerup-sub002/internal/repository"
	"github.com/murilobezs/empowerup-sub002/pkg/logger"
	"github.com/murilobezs/empowerup-sub002/pkg/redis"

	"go.uber.org/zap"
)

// UnreadBadge 用户全局未读角标
type UnreadBadge struct {
	TotalConversations      int64     `json:"total_conversations"`
	ConversationsWithUnread int64     `json:"conversations_with_unread"`
	TotalUnreadMessages     int64     `json:"total_unread_messages"`
	ComputedAt              time.Time `json:"computed_at"`
}

// InboxService 收件箱聚合服务
type InboxService struct {
	participantRepo *repository.ParticipantRepository
	messageRepo     *repository.MessageRepository
	badgeTTL        time.Duration
}

// NewInboxService 创建InboxService实例
func NewInboxService(participantRepo *repository.ParticipantRepository, messageRepo *repository.MessageRepository, badgeTTL time.Duration) *InboxService {
	return &InboxService{
		participantRepo: participantRepo,
		messageRepo:     messageRepo,
		badgeTTL:        badgeTTL,
	}
}

// UnreadSummary 汇总用户所有活跃会话的未读情况（带缓存）
// 每个会话的未读数与会话摘要用同一条规则，保证角标与列表一致
func (s *InboxService) UnreadSummary(ctx context.Context, userID uint) (*UnreadBadge, error) {
	if cached, err := redis.GetBadge(userID); err == nil && cached != nil {
		return &UnreadBadge{
			TotalConversations:      cached.TotalConversations,
			ConversationsWithUnread: cached.ConversationsWithUnread,
			TotalUnreadMessages:     cached.TotalUnreadMessages,
			ComputedAt:              cached.ComputedAt,
		}, nil
	}

	memberships, err := s.participantRepo.ListMemberships(ctx, userID)
	if err != nil {
		return nil, err
	}

	badge := &UnreadBadge{ComputedAt: time.Now()}
	for _, membership := range memberships {
		badge.TotalConversations++
		unread, err := s.messageRepo.CountUnseen(ctx, membership.ConversationID, userID, membership.LastSeenAt)
		if err != nil {
			return nil, err
		}
		if unread > 0 {
			badge.ConversationsWithUnread++
			badge.TotalUnreadMessages += unread
		}
	}

	cacheErr := redis.SetBadge(userID, &redis.CachedBadge{
		TotalConversations:      badge.TotalConversations,
		ConversationsWithUnread: badge.ConversationsWithUnread,
		TotalUnreadMessages:     badge.TotalUnreadMessages,
		ComputedAt:              badge.ComputedAt,
	}, s.badgeTTL)
	if cacheErr != nil {
		logger.Warn("写入角标缓存失败", zap.Error(cacheErr), zap.Uint("user_id", userID))
	}

	return badge, nil
}
