package service

import (
	"context"
	"strings"
	"time"

	"github.com/murilobezs/empowerup-sub002/config"
	"github.com/murilobezs/empowerup-sub002/internal/apperr"
	"github.com/murilobezs/empowerup-sub002/internal/identity"
	"github.com/murilobezs/empowerup-sub002/internal/model"
	"github.com/murilobezs/empowerup-sub002/internal/repository"
	"github.com/murilobezs/empowerup-sub002/pkg/logger"
	"github.com/murilobezs/empowerup-sub002/pkg/redis"

	"go.uber.org/zap"
)

// 未命名会话的占位展示名
const defaultDisplayName = "Conversa"

// MessagePreview 会话列表里的最后消息预览
type MessagePreview struct {
	ID       uint      `json:"id"`
	SenderID uint      `json:"sender_id"`
	Body     string    `json:"body"`
	Kind     string    `json:"kind"`
	SentAt   time.Time `json:"sent_at"`
}

// ConversationSummary 会话摘要
// 私聊的展示名/头像来自对方参与者，群聊用会话自身字段
type ConversationSummary struct {
	ID            uint            `json:"id"`
	Kind          string          `json:"kind"`
	DisplayName   string          `json:"display_name"`
	Image         string          `json:"image,omitempty"`
	CoverImage    string          `json:"cover_image,omitempty"`
	OtherUserID   *uint           `json:"other_user_id,omitempty"`
	LastMessage   *MessagePreview `json:"last_message,omitempty"`
	LastMessageAt *time.Time      `json:"last_message_at,omitempty"`
	UnreadCount   int64           `json:"unread_count"`
	Muted         bool            `json:"muted"`
	Favorite      bool            `json:"favorite"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ParticipantView 参与者视图
type ParticipantView struct {
	UserID     uint              `json:"user_id"`
	Profile    *identity.Profile `json:"profile,omitempty"`
	Role       string            `json:"role"`
	JoinedAt   time.Time         `json:"joined_at"`
	LastSeenAt *time.Time        `json:"last_seen_at,omitempty"`
}

// ConversationService 会话服务
type ConversationService struct {
	conversationRepo *repository.ConversationRepository
	participantRepo  *repository.ParticipantRepository
	messageRepo      *repository.MessageRepository
	resolver         identity.Resolver
	cfg              config.ChatConfig
}

// NewConversationService 创建ConversationService实例
func NewConversationService(
	conversationRepo *repository.ConversationRepository,
	participantRepo *repository.ParticipantRepository,
	messageRepo *repository.MessageRepository,
	resolver identity.Resolver,
	cfg config.ChatConfig,
) *ConversationService {
	return &ConversationService{
		conversationRepo: conversationRepo,
		participantRepo:  participantRepo,
		messageRepo:      messageRepo,
		resolver:         resolver,
		cfg:              cfg,
	}
}

// GetOrCreatePrivate 获取或创建与另一用户的私聊会话（幂等）
func (s *ConversationService) GetOrCreatePrivate(ctx context.Context, viewerID, otherUserID uint) (*ConversationSummary, error) {
	if viewerID == otherUserID {
		return nil, apperr.ErrSelfConversation
	}

	conversation, created, err := s.conversationRepo.GetOrCreatePrivate(ctx, viewerID, otherUserID)
	if err != nil {
		return nil, err
	}
	if created {
		logger.Info("创建私聊会话",
			zap.Uint("conversation_id", conversation.ID),
			zap.Uint("user_a", viewerID),
			zap.Uint("user_b", otherUserID),
		)
	}

	return s.summarize(ctx, conversation, viewerID)
}

// CreateGroup 创建群聊会话，创建者成为owner
func (s *ConversationService) CreateGroup(ctx context.Context, creatorID uint, name, image, coverImage, visibility string) (*ConversationSummary, error) {
	name = strings.TrimSpace(name)
	if visibility != model.VisibilityPublic {
		visibility = model.VisibilityPrivate
	}

	conversation := &model.Conversation{
		Kind:       model.ConversationGroup,
		Name:       name,
		Image:      image,
		CoverImage: coverImage,
		Visibility: visibility,
		CreatorID:  &creatorID,
		CreatedAt:  time.Now(),
	}
	// 会话和建群者的 owner 记录在同一事务里落库
	if err := s.conversationRepo.CreateGroup(ctx, conversation); err != nil {
		return nil, err
	}

	logger.Info("创建群聊会话",
		zap.Uint("conversation_id", conversation.ID),
		zap.Uint("creator_id", creatorID),
	)
	return s.summarize(ctx, conversation, creatorID)
}

// Summarize 获取单个会话相对查看者的摘要
func (s *ConversationService) Summarize(ctx context.Context, conversationID, viewerID uint) (*ConversationSummary, error) {
	conversation, err := s.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	viewer, err := s.participantRepo.Get(ctx, conversationID, viewerID)
	if err != nil {
		return nil, err
	}
	if viewer == nil {
		return nil, apperr.ErrNotAParticipant
	}

	return s.summarize(ctx, conversation, viewerID)
}

// ListForUser 获取用户的会话列表（带缓存）
// 排序由存储层保证：最后消息时间倒序，空会话按创建时间倒序排在最后
func (s *ConversationService) ListForUser(ctx context.Context, userID uint) ([]*ConversationSummary, error) {
	// 尝试从缓存获取
	var cached []*ConversationSummary
	if hit, err := redis.GetSummaries(userID, &cached); err == nil && hit {
		return cached, nil
	}

	conversations, err := s.conversationRepo.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	summaries := make([]*ConversationSummary, 0, len(conversations))
	for _, conversation := range conversations {
		summary, err := s.summarize(ctx, conversation, userID)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}

	if err := redis.CacheSummaries(userID, summaries, s.cfg.SummaryCacheTTL); err != nil {
		logger.Warn("写入会话列表缓存失败", zap.Error(err), zap.Uint("user_id", userID))
	}
	return summaries, nil
}

// ListParticipants 获取会话的活跃参与者（按角色、加入时间排序）
func (s *ConversationService) ListParticipants(ctx context.Context, conversationID, viewerID uint) ([]*ParticipantView, error) {
	if _, err := s.conversationRepo.GetByID(ctx, conversationID); err != nil {
		return nil, err
	}

	viewer, err := s.participantRepo.Get(ctx, conversationID, viewerID)
	if err != nil {
		return nil, err
	}
	if viewer == nil {
		return nil, apperr.ErrNotAParticipant
	}

	participants, err := s.participantRepo.ListActive(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	ids := make([]uint, 0, len(participants))
	for _, p := range participants {
		ids = append(ids, p.UserID)
	}
	profiles, err := s.resolver.ResolveUsers(ctx, ids)
	if err != nil {
		logger.Warn("补全参与者信息失败", zap.Error(err), zap.Uint("conversation_id", conversationID))
		profiles = map[uint]*identity.Profile{}
	}

	views := make([]*ParticipantView, 0, len(participants))
	for _, p := range participants {
		views = append(views, &ParticipantView{
			UserID:     p.UserID,
			Profile:    profiles[p.UserID],
			Role:       p.Role,
			JoinedAt:   p.JoinedAt,
			LastSeenAt: p.LastSeenAt,
		})
	}
	return views, nil
}

// AddParticipant 把用户加入群聊（仅owner/admin）
func (s *ConversationService) AddParticipant(ctx context.Context, conversationID, actorID, userID uint) error {
	conversation, err := s.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if conversation.IsPrivate() {
		return apperr.ErrPermissionDenied
	}

	actor, err := s.participantRepo.Get(ctx, conversationID, actorID)
	if err != nil {
		return err
	}
	if actor == nil {
		return apperr.ErrNotAParticipant
	}
	if actor.Role != model.RoleOwner && actor.Role != model.RoleAdmin {
		return apperr.ErrPermissionDenied
	}

	_, err = s.participantRepo.Activate(ctx, conversationID, userID, model.RoleMember)
	return err
}

// RemoveParticipant 把用户移出群聊
// owner/admin 可移除成员；owner 只能由 owner 移除；唯一 owner 不可被移除
func (s *ConversationService) RemoveParticipant(ctx context.Context, conversationID, actorID, userID uint) error {
	conversation, err := s.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if conversation.IsPrivate() {
		return apperr.ErrPermissionDenied
	}

	actor, err := s.participantRepo.Get(ctx, conversationID, actorID)
	if err != nil {
		return err
	}
	if actor == nil {
		return apperr.ErrNotAParticipant
	}
	if actor.Role != model.RoleOwner && actor.Role != model.RoleAdmin {
		return apperr.ErrPermissionDenied
	}

	target, err := s.participantRepo.Get(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if target == nil {
		return apperr.ErrNotAParticipant
	}
	if target.Role != model.RoleMember && actor.Role != model.RoleOwner {
		return apperr.ErrPermissionDenied
	}
	if target.Role == model.RoleOwner {
		owners, err := s.participantRepo.CountActiveOwners(ctx, conversationID)
		if err != nil {
			return err
		}
		if owners <= 1 {
			return apperr.ErrOwnerCannotLeave
		}
	}

	return s.participantRepo.Deactivate(ctx, conversationID, userID)
}

// Leave 退出会话
// 群聊的唯一 owner 必须先转让才能退出；私聊退出后对方会话停留在 delivered
func (s *ConversationService) Leave(ctx context.Context, conversationID, userID uint) error {
	conversation, err := s.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return err
	}

	participant, err := s.participantRepo.Get(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if participant == nil {
		return apperr.ErrNotAParticipant
	}

	if !conversation.IsPrivate() && participant.Role == model.RoleOwner {
		owners, err := s.participantRepo.CountActiveOwners(ctx, conversationID)
		if err != nil {
			return err
		}
		if owners <= 1 {
			return apperr.ErrOwnerCannotLeave
		}
	}

	return s.participantRepo.Deactivate(ctx, conversationID, userID)
}

// UpdateFlags 更新免打扰/收藏标记（仅影响展示，不影响投递）
func (s *ConversationService) UpdateFlags(ctx context.Context, conversationID, userID uint, muted, favorite *bool) error {
	participant, err := s.participantRepo.Get(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if participant == nil {
		return apperr.ErrNotAParticipant
	}
	return s.participantRepo.UpdateFlags(ctx, conversationID, userID, muted, favorite)
}

// summarize 组装会话摘要
func (s *ConversationService) summarize(ctx context.Context, conversation *model.Conversation, viewerID uint) (*ConversationSummary, error) {
	summary := &ConversationSummary{
		ID:            conversation.ID,
		Kind:          conversation.Kind,
		LastMessageAt: conversation.LastMessageAt,
		CreatedAt:     conversation.CreatedAt,
	}

	participants, err := s.participantRepo.ListActive(ctx, conversation.ID)
	if err != nil {
		return nil, err
	}

	var viewer *model.Participant
	var other *model.Participant
	for _, p := range participants {
		if p.UserID == viewerID {
			viewer = p
		} else if other == nil {
			other = p
		}
	}
	if viewer != nil {
		summary.Muted = viewer.Muted
		summary.Favorite = viewer.Favorite
	}

	if conversation.IsPrivate() {
		// 私聊：展示名/头像取对方参与者
		summary.DisplayName = defaultDisplayName
		if other != nil {
			summary.OtherUserID = &other.UserID
			profile, err := s.resolver.ResolveUser(ctx, other.UserID)
			if err != nil {
				logger.Warn("补全对方用户信息失败",
					zap.Error(err),
					zap.Uint("conversation_id", conversation.ID),
					zap.Uint("user_id", other.UserID),
				)
			} else if profile != nil {
				summary.DisplayName = profile.DisplayName
				summary.Image = profile.AvatarURL
			}
		}
	} else {
		// 群聊：用会话自身字段，未命名回退占位名
		summary.DisplayName = conversation.Name
		if summary.DisplayName == "" {
			summary.DisplayName = defaultDisplayName
		}
		summary.Image = conversation.Image
		summary.CoverImage = conversation.CoverImage
	}

	// 最后消息预览：弱引用，消息缺失时按无预览处理
	preview, err := s.messageRepo.GetPreview(ctx, conversation.LastMessageID)
	if err != nil {
		return nil, err
	}
	if preview != nil {
		summary.LastMessage = &MessagePreview{
			ID:       preview.ID,
			SenderID: preview.SenderID,
			Body:     preview.Body,
			Kind:     preview.Kind,
			SentAt:   preview.SentAt,
		}
	}

	// 未读数与角标同一条"严格大于最近查看时间"规则
	var lastSeenAt *time.Time
	if viewer != nil {
		lastSeenAt = viewer.LastSeenAt
	}
	unread, err := s.messageRepo.CountUnseen(ctx, conversation.ID, viewerID, lastSeenAt)
	if err != nil {
		return nil, err
	}
	summary.UnreadCount = unread

	return summary, nil
}
