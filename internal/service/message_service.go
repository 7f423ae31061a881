package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/murilobezs/empowerup-sub002/config"
	"github.com/murilobezs/empowerup-sub002/internal/apperr"
	"github.com/murilobezs/empowerup-sub002/internal/identity"
	"github.com/murilobezs/empowerup-sub002/internal/model"
	"github.com/murilobezs/empowerup-sub002/internal/notify"
	"github.com/murilobezs/empowerup-sub002/internal/receipt"
	"github.com/murilobezs/empowerup-sub002/internal/repository"
	"github.com/murilobezs/empowerup-sub002/pkg/logger"
	"github.com/murilobezs/empowerup-sub002/pkg/redis"

	"go.uber.org/zap"
)

// 通知预览最大长度（按字符数截断）
const previewMaxRunes = 80

// MessageView 消息 + 相对查看者的回执状态
type MessageView struct {
	ID             uint              `json:"id"`
	ConversationID uint              `json:"conversation_id"`
	SenderID       uint              `json:"sender_id"`
	Sender         *identity.Profile `json:"sender,omitempty"`
	Body           string            `json:"body"`
	Kind           string            `json:"kind"`
	Metadata       json.RawMessage   `json:"metadata,omitempty"`
	ReplyToID      *uint             `json:"reply_to_id,omitempty"`
	SentAt         time.Time         `json:"sent_at"`
	Status         receipt.Status    `json:"status"`
}

// MessageService 消息服务
type MessageService struct {
	messageRepo      *repository.MessageRepository
	participantRepo  *repository.ParticipantRepository
	conversationRepo *repository.ConversationRepository
	resolver         identity.Resolver
	fanout           *notify.Fanout
	cfg              config.ChatConfig
}

// NewMessageService 创建MessageService实例
func NewMessageService(
	messageRepo *repository.MessageRepository,
	participantRepo *repository.ParticipantRepository,
	conversationRepo *repository.ConversationRepository,
	resolver identity.Resolver,
	fanout *notify.Fanout,
	cfg config.ChatConfig,
) *MessageService {
	return &MessageService{
		messageRepo:      messageRepo,
		participantRepo:  participantRepo,
		conversationRepo: conversationRepo,
		resolver:         resolver,
		fanout:           fanout,
		cfg:              cfg,
	}
}

// Send 发送消息
// 校验顺序：会话存在 → 发送者是活跃参与者 → 内容合法 → 回复目标合法
// 消息写入和会话最后消息指针在同一事务提交；
// 通知扇出是 fire-and-forget，失败只记日志不影响发送结果
func (s *MessageService) Send(ctx context.Context, conversationID, senderID uint, body, kind string, metadata map[string]interface{}, replyToID *uint) (*MessageView, error) {
	if _, err := s.conversationRepo.GetByID(ctx, conversationID); err != nil {
		return nil, err
	}

	sender, err := s.participantRepo.Get(ctx, conversationID, senderID)
	if err != nil {
		return nil, err
	}
	if sender == nil {
		return nil, apperr.ErrNotAParticipant
	}

	body = strings.TrimSpace(body)
	if body == "" || utf8.RuneCountInString(body) > s.cfg.MaxBodyLength {
		return nil, apperr.ErrInvalidContent
	}

	if kind == "" {
		kind = model.MessageText
	}
	if kind != model.MessageText && kind != model.MessageFile && kind != model.MessageSystem {
		return nil, apperr.ErrInvalidContent
	}

	if replyToID != nil {
		ok, err := s.messageRepo.ExistsInConversation(ctx, *replyToID, conversationID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperr.ErrReplyTargetInvalid
		}
	}

	var metadataJSON string
	if len(metadata) > 0 {
		data, err := json.Marshal(metadata)
		if err != nil {
			return nil, apperr.ErrInvalidContent
		}
		metadataJSON = string(data)
	}

	now := time.Now()
	message := &model.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Body:           body,
		Kind:           kind,
		Metadata:       metadataJSON,
		ReplyToID:      replyToID,
		SentAt:         now,
	}

	if err := s.messageRepo.Append(ctx, message); err != nil {
		return nil, err
	}

	// 发消息同时推进发送者自己的最近查看时间
	if err := s.participantRepo.TouchLastSeen(ctx, conversationID, senderID, now); err != nil {
		logger.Warn("推进发送者最近查看时间失败",
			zap.Error(err),
			zap.Uint("conversation_id", conversationID),
			zap.Uint("user_id", senderID),
		)
	}

	participants, err := s.participantRepo.ListAll(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	// 失效接收者的角标与会话列表缓存（尽力而为）
	recipients := make([]uint, 0, len(participants))
	for _, p := range participants {
		if p.UserID != senderID && p.IsActive() {
			recipients = append(recipients, p.UserID)
		}
	}
	if err := redis.InvalidateBadges(recipients); err != nil {
		logger.Warn("失效角标缓存失败", zap.Error(err))
	}
	if err := redis.InvalidateSummaries(append(recipients, senderID)); err != nil {
		logger.Warn("失效会话列表缓存失败", zap.Error(err))
	}

	// 通知扇出：每个其他活跃参与者一条，失败不回滚发送
	if s.fanout != nil && len(recipients) > 0 {
		notifications := make([]notify.Notification, 0, len(recipients))
		for _, userID := range recipients {
			notifications = append(notifications, notify.Notification{
				UserID:         userID,
				FromUserID:     senderID,
				Kind:           "message",
				ConversationID: conversationID,
				Preview:        truncatePreview(body),
			})
		}
		go s.fanout.Dispatch(context.Background(), notifications)
	}

	return s.toView(ctx, message, senderID, participants), nil
}

// ListPage 分页获取会话消息并按查看者推进已读状态
// 查看本身就是"看过"：先单调推进 last_seen_at，再加载参与者做回执标注，
// 因此返回的消息对查看者都不再是未读
func (s *MessageService) ListPage(ctx context.Context, conversationID, viewerID uint, page, pageSize int) ([]*MessageView, int64, error) {
	if _, err := s.conversationRepo.GetByID(ctx, conversationID); err != nil {
		return nil, 0, err
	}

	viewer, err := s.participantRepo.Get(ctx, conversationID, viewerID)
	if err != nil {
		return nil, 0, err
	}
	if viewer == nil {
		return nil, 0, apperr.ErrNotAParticipant
	}

	page, pageSize = s.clampPage(page, pageSize)

	messages, total, err := s.messageRepo.ListPage(ctx, conversationID, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, 0, err
	}

	if err := s.MarkSeen(ctx, conversationID, viewerID); err != nil {
		return nil, 0, err
	}

	participants, err := s.participantRepo.ListAll(ctx, conversationID)
	if err != nil {
		return nil, 0, err
	}

	// 批量补全发送者信息
	senderIDs := make([]uint, 0, len(messages))
	seen := make(map[uint]bool, len(messages))
	for _, m := range messages {
		if !seen[m.SenderID] {
			seen[m.SenderID] = true
			senderIDs = append(senderIDs, m.SenderID)
		}
	}
	profiles, err := s.resolver.ResolveUsers(ctx, senderIDs)
	if err != nil {
		logger.Warn("补全发送者信息失败", zap.Error(err), zap.Uint("conversation_id", conversationID))
		profiles = map[uint]*identity.Profile{}
	}

	views := make([]*MessageView, 0, len(messages))
	for _, m := range messages {
		view := s.toView(ctx, m, viewerID, participants)
		view.Sender = profiles[m.SenderID]
		views = append(views, view)
	}
	return views, total, nil
}

// MarkSeen 推进查看者的最近查看时间并批量标记已读
// last_seen_at 是单调条件写；消息级标记是尽力而为的优化，失败只记日志
// 写入前必须确认查看者是活跃参与者，否则任何已登录用户
// 都能把别人会话里的消息刷成已读
func (s *MessageService) MarkSeen(ctx context.Context, conversationID, viewerID uint) error {
	if _, err := s.conversationRepo.GetByID(ctx, conversationID); err != nil {
		return err
	}

	viewer, err := s.participantRepo.Get(ctx, conversationID, viewerID)
	if err != nil {
		return err
	}
	if viewer == nil {
		return apperr.ErrNotAParticipant
	}

	now := time.Now()
	if err := s.participantRepo.TouchLastSeen(ctx, conversationID, viewerID, now); err != nil {
		return err
	}

	if err := s.messageRepo.MarkSeenUpTo(ctx, conversationID, viewerID, now); err != nil {
		logger.Warn("批量标记已读失败",
			zap.Error(err),
			zap.Uint("conversation_id", conversationID),
			zap.Uint("user_id", viewerID),
			zap.String("operation", "mark_seen_up_to"),
		)
	}

	if err := redis.InvalidateBadge(viewerID); err != nil {
		logger.Warn("失效角标缓存失败", zap.Error(err), zap.Uint("user_id", viewerID))
	}
	return nil
}

// toView 组装消息视图
func (s *MessageService) toView(_ context.Context, message *model.Message, viewerID uint, participants []*model.Participant) *MessageView {
	view := &MessageView{
		ID:             message.ID,
		ConversationID: message.ConversationID,
		SenderID:       message.SenderID,
		Body:           message.Body,
		Kind:           message.Kind,
		ReplyToID:      message.ReplyToID,
		SentAt:         message.SentAt,
		Status:         receipt.Derive(message, viewerID, participants),
	}
	if message.Metadata != "" {
		view.Metadata = json.RawMessage(message.Metadata)
	}
	return view
}

// clampPage 分页参数钳制
func (s *MessageService) clampPage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = s.cfg.DefaultPageSize
	}
	if pageSize > s.cfg.MaxPageSize {
		pageSize = s.cfg.MaxPageSize
	}
	return page, pageSize
}

// truncatePreview 通知预览截断
func truncatePreview(body string) string {
	runes := []rune(body)
	if len(runes) <= previewMaxRunes {
		return body
	}
	return string(runes[:previewMaxRunes]) + "…"
}
