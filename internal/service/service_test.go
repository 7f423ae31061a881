package service

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/murilobezs/empowerup-sub002/config"
	"github.com/murilobezs/empowerup-sub002/internal/apperr"
	"github.com/murilobezs/empowerup-sub002/internal/identity"
	"github.com/murilobezs/empowerup-sub002/internal/model"
	"github.com/murilobezs/empowerup-sub002/internal/notify"
	"github.com/murilobezs/empowerup-sub002/internal/receipt"
	"github.com/murilobezs/empowerup-sub002/internal/repository"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

// 服务层测试夹具：sqlite 文件库 + 全套仓储与服务
type fixture struct {
	db            *gorm.DB
	conversations *ConversationService
	messages      *MessageService
	inbox         *InboxService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return buildFixture(t, false)
}

// newLegacyFixture 模拟没有消息级回执列的旧版表结构
func newLegacyFixture(t *testing.T) *fixture {
	t.Helper()
	return buildFixture(t, true)
}

func buildFixture(t *testing.T, dropReceiptColumns bool) *fixture {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
	})
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}
	if err := db.AutoMigrate(
		&model.User{},
		&model.Conversation{},
		&model.Participant{},
		&model.Message{},
	); err != nil {
		t.Fatalf("迁移测试表失败: %v", err)
	}
	if dropReceiptColumns {
		for _, col := range []string{"read_flag", "delivered_at", "read_at"} {
			if err := db.Migrator().DropColumn(&model.Message{}, col); err != nil {
				t.Fatalf("删除列 %s 失败: %v", col, err)
			}
		}
	}

	cfg := config.ChatConfig{
		MaxBodyLength:   4000,
		DefaultPageSize: 20,
		MaxPageSize:     200,
		BadgeCacheTTL:   30 * time.Second,
		SummaryCacheTTL: time.Minute,
	}

	conversationRepo := repository.NewConversationRepository(db)
	participantRepo := repository.NewParticipantRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	resolver := identity.NewGormResolver(db)
	fanout := notify.NewFanout()

	return &fixture{
		db:            db,
		conversations: NewConversationService(conversationRepo, participantRepo, messageRepo, resolver, cfg),
		messages:      NewMessageService(messageRepo, participantRepo, conversationRepo, resolver, fanout, cfg),
		inbox:         NewInboxService(participantRepo, messageRepo, cfg.BadgeCacheTTL),
	}
}

func (f *fixture) seedUser(t *testing.T, handle string) *model.User {
	t.Helper()
	u := &model.User{Handle: handle, DisplayName: handle}
	if err := f.db.Create(u).Error; err != nil {
		t.Fatalf("创建测试用户失败: %v", err)
	}
	return u
}

func TestGetOrCreatePrivateRejectsSelf(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "ana")

	_, err := f.conversations.GetOrCreatePrivate(context.Background(), 1, 1)
	if !errors.Is(err, apperr.ErrSelfConversation) {
		t.Fatalf("与自己建私聊应返回 ErrSelfConversation，实际 %v", err)
	}
}

func TestPrivateSummaryUsesOtherParticipant(t *testing.T) {
	f := newFixture(t)
	ana := f.seedUser(t, "ana")
	bia := f.seedUser(t, "bia")
	ctx := context.Background()

	summary, err := f.conversations.GetOrCreatePrivate(ctx, ana.ID, bia.ID)
	if err != nil {
		t.Fatalf("创建私聊失败: %v", err)
	}

	if summary.Kind != model.ConversationPrivate {
		t.Fatalf("会话类型应为 private，实际 %q", summary.Kind)
	}
	if summary.DisplayName != "bia" {
		t.Fatalf("私聊展示名应取对方用户，实际 %q", summary.DisplayName)
	}
	if summary.OtherUserID == nil || *summary.OtherUserID != bia.ID {
		t.Fatalf("other_user_id 应为对方 %d，实际 %v", bia.ID, summary.OtherUserID)
	}

	// 对方视角展示自己这边的名字
	other, err := f.conversations.Summarize(ctx, summary.ID, bia.ID)
	if err != nil {
		t.Fatalf("获取摘要失败: %v", err)
	}
	if other.DisplayName != "ana" {
		t.Fatalf("对方视角展示名应为 ana，实际 %q", other.DisplayName)
	}
}

func TestGroupSummaryFallbackName(t *testing.T) {
	f := newFixture(t)
	ana := f.seedUser(t, "ana")
	ctx := context.Background()

	summary, err := f.conversations.CreateGroup(ctx, ana.ID, "", "", "", "")
	if err != nil {
		t.Fatalf("创建群聊失败: %v", err)
	}
	if summary.DisplayName != "Conversa" {
		t.Fatalf("未命名群聊应回退占位名，实际 %q", summary.DisplayName)
	}
}

func TestSendValidation(t *testing.T) {
	f := newFixture(t)
	ana := f.seedUser(t, "ana")
	bia := f.seedUser(t, "bia")
	f.seedUser(t, "caio")
	ctx := context.Background()

	conv, err := f.conversations.GetOrCreatePrivate(ctx, ana.ID, bia.ID)
	if err != nil {
		t.Fatalf("创建私聊失败: %v", err)
	}

	// 不存在的会话
	if _, err := f.messages.Send(ctx, 999, ana.ID, "oi", "", nil, nil); !errors.Is(err, apperr.ErrConversationNotFound) {
		t.Fatalf("不存在的会话应返回 ErrConversationNotFound，实际 %v", err)
	}

	// 非参与者
	if _, err := f.messages.Send(ctx, conv.ID, 3, "oi", "", nil, nil); !errors.Is(err, apperr.ErrNotAParticipant) {
		t.Fatalf("非参与者发送应返回 ErrNotAParticipant，实际 %v", err)
	}

	// 空白内容
	if _, err := f.messages.Send(ctx, conv.ID, ana.ID, "   ", "", nil, nil); !errors.Is(err, apperr.ErrInvalidContent) {
		t.Fatalf("空白内容应返回 ErrInvalidContent，实际 %v", err)
	}

	// 超长内容
	long := strings.Repeat("a", 4001)
	if _, err := f.messages.Send(ctx, conv.ID, ana.ID, long, "", nil, nil); !errors.Is(err, apperr.ErrInvalidContent) {
		t.Fatalf("超长内容应返回 ErrInvalidContent，实际 %v", err)
	}

	// 非法类型
	if _, err := f.messages.Send(ctx, conv.ID, ana.ID, "oi", "sticker", nil, nil); !errors.Is(err, apperr.ErrInvalidContent) {
		t.Fatalf("非法消息类型应返回 ErrInvalidContent，实际 %v", err)
	}

	// 回复目标不在本会话
	other, err := f.conversations.GetOrCreatePrivate(ctx, ana.ID, 3)
	if err != nil {
		t.Fatalf("创建第二个私聊失败: %v", err)
	}
	foreign, err := f.messages.Send(ctx, other.ID, ana.ID, "outra", "", nil, nil)
	if err != nil {
		t.Fatalf("发送失败: %v", err)
	}
	if _, err := f.messages.Send(ctx, conv.ID, ana.ID, "oi", "", nil, &foreign.ID); !errors.Is(err, apperr.ErrReplyTargetInvalid) {
		t.Fatalf("跨会话回复应返回 ErrReplyTargetInvalid，实际 %v", err)
	}
}

func TestSendAndReceiptLifecycle(t *testing.T) {
	f := newFixture(t)
	ana := f.seedUser(t, "ana")
	bia := f.seedUser(t, "bia")
	ctx := context.Background()

	conv, err := f.conversations.GetOrCreatePrivate(ctx, ana.ID, bia.ID)
	if err != nil {
		t.Fatalf("创建私聊失败: %v", err)
	}

	sent, err := f.messages.Send(ctx, conv.ID, ana.ID, "oi", "", map[string]interface{}{"client": "web"}, nil)
	if err != nil {
		t.Fatalf("发送失败: %v", err)
	}
	// 刚发出去：对方在场但还没看，应为 delivered
	if sent.Status.Key != receipt.StatusDelivered {
		t.Fatalf("刚发送应为 delivered，实际 %q", sent.Status.Key)
	}
	if !sent.Status.IsMine {
		t.Fatal("发送者视角 is_mine 应为 true")
	}

	// 对方拉取消息页：查看即推进已读
	views, total, err := f.messages.ListPage(ctx, conv.ID, bia.ID, 1, 0)
	if err != nil {
		t.Fatalf("拉取消息失败: %v", err)
	}
	if total != 1 || len(views) != 1 {
		t.Fatalf("应有1条消息，实际 total=%d len=%d", total, len(views))
	}
	if views[0].Status.IsUnread {
		t.Fatal("拉取后的消息对查看者不应再是未读")
	}

	// 发送者再看：状态已变为 read
	views, _, err = f.messages.ListPage(ctx, conv.ID, ana.ID, 1, 0)
	if err != nil {
		t.Fatalf("拉取消息失败: %v", err)
	}
	if views[0].Status.Key != receipt.StatusRead {
		t.Fatalf("对方看过后应为 read，实际 %q", views[0].Status.Key)
	}
}

func TestSendAndReceiptLifecycleWithoutReceiptColumns(t *testing.T) {
	f := newLegacyFixture(t)
	ana := f.seedUser(t, "ana")
	bia := f.seedUser(t, "bia")
	ctx := context.Background()

	conv, err := f.conversations.GetOrCreatePrivate(ctx, ana.ID, bia.ID)
	if err != nil {
		t.Fatalf("创建私聊失败: %v", err)
	}

	// 没有回执列时发送照常成功，状态完全由 last_seen 推断
	sent, err := f.messages.Send(ctx, conv.ID, ana.ID, "oi", "", nil, nil)
	if err != nil {
		t.Fatalf("发送失败: %v", err)
	}
	if sent.Status.Key != receipt.StatusDelivered {
		t.Fatalf("刚发送应为 delivered，实际 %q", sent.Status.Key)
	}

	// 对方拉取消息页：标记写入跳过，但 last_seen 仍然推进
	views, total, err := f.messages.ListPage(ctx, conv.ID, bia.ID, 1, 0)
	if err != nil {
		t.Fatalf("拉取消息失败: %v", err)
	}
	if total != 1 || len(views) != 1 {
		t.Fatalf("应有1条消息，实际 total=%d len=%d", total, len(views))
	}
	if views[0].Status.IsUnread {
		t.Fatal("拉取后的消息对查看者不应再是未读")
	}

	// 发送者再看：已读状态由对方 last_seen 推断得出
	views, _, err = f.messages.ListPage(ctx, conv.ID, ana.ID, 1, 0)
	if err != nil {
		t.Fatalf("拉取消息失败: %v", err)
	}
	if views[0].Status.Key != receipt.StatusRead {
		t.Fatalf("对方看过后应为 read，实际 %q", views[0].Status.Key)
	}
	if len(views[0].Status.ReadBy) == 0 {
		t.Fatal("read_by 应包含推断出的读取者")
	}
}

func TestListPageRequiresMembership(t *testing.T) {
	f := newFixture(t)
	ana := f.seedUser(t, "ana")
	bia := f.seedUser(t, "bia")
	f.seedUser(t, "caio")
	ctx := context.Background()

	conv, err := f.conversations.GetOrCreatePrivate(ctx, ana.ID, bia.ID)
	if err != nil {
		t.Fatalf("创建私聊失败: %v", err)
	}

	if _, _, err := f.messages.ListPage(ctx, conv.ID, 3, 1, 20); !errors.Is(err, apperr.ErrNotAParticipant) {
		t.Fatalf("非参与者拉取应返回 ErrNotAParticipant，实际 %v", err)
	}
}

func TestMarkSeenRequiresMembership(t *testing.T) {
	f := newFixture(t)
	ana := f.seedUser(t, "ana")
	bia := f.seedUser(t, "bia")
	f.seedUser(t, "caio")
	ctx := context.Background()

	conv, err := f.conversations.GetOrCreatePrivate(ctx, ana.ID, bia.ID)
	if err != nil {
		t.Fatalf("创建私聊失败: %v", err)
	}
	if _, err := f.messages.Send(ctx, conv.ID, ana.ID, "oi", "", nil, nil); err != nil {
		t.Fatalf("发送失败: %v", err)
	}

	// 不存在的会话
	if err := f.messages.MarkSeen(ctx, 999, ana.ID); !errors.Is(err, apperr.ErrConversationNotFound) {
		t.Fatalf("不存在的会话应返回 ErrConversationNotFound，实际 %v", err)
	}

	// 非参与者的标记必须拒绝，不能静默成功
	if err := f.messages.MarkSeen(ctx, conv.ID, 3); !errors.Is(err, apperr.ErrNotAParticipant) {
		t.Fatalf("非参与者标记应返回 ErrNotAParticipant，实际 %v", err)
	}

	// 被拒绝的调用不得留下任何写入：bia 从未查看，消息仍是 delivered
	views, _, err := f.messages.ListPage(ctx, conv.ID, ana.ID, 1, 0)
	if err != nil {
		t.Fatalf("拉取消息失败: %v", err)
	}
	if views[0].Status.Key != receipt.StatusDelivered {
		t.Fatalf("对方未查看时状态应保持 delivered，实际 %q", views[0].Status.Key)
	}
	if len(views[0].Status.ReadBy) != 0 {
		t.Fatalf("read_by 应为空，实际 %+v", views[0].Status.ReadBy)
	}
}

func TestGroupMembershipRules(t *testing.T) {
	f := newFixture(t)
	ana := f.seedUser(t, "ana")
	bia := f.seedUser(t, "bia")
	caio := f.seedUser(t, "caio")
	ctx := context.Background()

	group, err := f.conversations.CreateGroup(ctx, ana.ID, "time", "", "", "")
	if err != nil {
		t.Fatalf("创建群聊失败: %v", err)
	}

	// owner 拉人
	if err := f.conversations.AddParticipant(ctx, group.ID, ana.ID, bia.ID); err != nil {
		t.Fatalf("owner 拉人失败: %v", err)
	}

	// 普通成员无权拉人
	if err := f.conversations.AddParticipant(ctx, group.ID, bia.ID, caio.ID); !errors.Is(err, apperr.ErrPermissionDenied) {
		t.Fatalf("成员拉人应返回 ErrPermissionDenied，实际 %v", err)
	}

	// 唯一 owner 不能退出
	if err := f.conversations.Leave(ctx, group.ID, ana.ID); !errors.Is(err, apperr.ErrOwnerCannotLeave) {
		t.Fatalf("唯一 owner 退出应返回 ErrOwnerCannotLeave，实际 %v", err)
	}

	// 成员不能移除 owner
	if err := f.conversations.RemoveParticipant(ctx, group.ID, bia.ID, ana.ID); !errors.Is(err, apperr.ErrPermissionDenied) {
		t.Fatalf("成员移除 owner 应返回 ErrPermissionDenied，实际 %v", err)
	}

	// owner 移除成员
	if err := f.conversations.RemoveParticipant(ctx, group.ID, ana.ID, bia.ID); err != nil {
		t.Fatalf("owner 移除成员失败: %v", err)
	}

	// 被移除后不再是参与者
	if err := f.conversations.Leave(ctx, group.ID, bia.ID); !errors.Is(err, apperr.ErrNotAParticipant) {
		t.Fatalf("被移除后再退出应返回 ErrNotAParticipant，实际 %v", err)
	}
}

func TestPrivateLeaveFreezesReceipts(t *testing.T) {
	f := newFixture(t)
	ana := f.seedUser(t, "ana")
	bia := f.seedUser(t, "bia")
	ctx := context.Background()

	conv, err := f.conversations.GetOrCreatePrivate(ctx, ana.ID, bia.ID)
	if err != nil {
		t.Fatalf("创建私聊失败: %v", err)
	}

	if _, err := f.messages.Send(ctx, conv.ID, ana.ID, "oi", "", nil, nil); err != nil {
		t.Fatalf("发送失败: %v", err)
	}

	// 对方退出：消息永远停在 delivered
	if err := f.conversations.Leave(ctx, conv.ID, bia.ID); err != nil {
		t.Fatalf("退出私聊失败: %v", err)
	}

	views, _, err := f.messages.ListPage(ctx, conv.ID, ana.ID, 1, 0)
	if err != nil {
		t.Fatalf("拉取消息失败: %v", err)
	}
	if views[0].Status.Key != receipt.StatusDelivered {
		t.Fatalf("对方退出后状态应停在 delivered，实际 %q", views[0].Status.Key)
	}
}

func TestUnreadCountRolesIntoSummaryAndBadge(t *testing.T) {
	f := newFixture(t)
	ana := f.seedUser(t, "ana")
	bia := f.seedUser(t, "bia")
	caio := f.seedUser(t, "caio")
	ctx := context.Background()

	conv1, err := f.conversations.GetOrCreatePrivate(ctx, ana.ID, bia.ID)
	if err != nil {
		t.Fatalf("创建私聊失败: %v", err)
	}
	conv2, err := f.conversations.GetOrCreatePrivate(ctx, caio.ID, bia.ID)
	if err != nil {
		t.Fatalf("创建私聊失败: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := f.messages.Send(ctx, conv1.ID, ana.ID, "oi", "", nil, nil); err != nil {
			t.Fatalf("发送失败: %v", err)
		}
	}
	if _, err := f.messages.Send(ctx, conv2.ID, caio.ID, "oi", "", nil, nil); err != nil {
		t.Fatalf("发送失败: %v", err)
	}

	// 会话列表的未读数
	summaries, err := f.conversations.ListForUser(ctx, bia.ID)
	if err != nil {
		t.Fatalf("获取会话列表失败: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("应有2个会话，实际 %d", len(summaries))
	}
	var listTotal int64
	for _, s := range summaries {
		listTotal += s.UnreadCount
	}
	if listTotal != 4 {
		t.Fatalf("列表未读总数应为4，实际 %d", listTotal)
	}

	// 角标与列表同一条规则
	badge, err := f.inbox.UnreadSummary(ctx, bia.ID)
	if err != nil {
		t.Fatalf("获取角标失败: %v", err)
	}
	if badge.TotalConversations != 2 {
		t.Fatalf("会话总数应为2，实际 %d", badge.TotalConversations)
	}
	if badge.ConversationsWithUnread != 2 {
		t.Fatalf("有未读的会话数应为2，实际 %d", badge.ConversationsWithUnread)
	}
	if badge.TotalUnreadMessages != listTotal {
		t.Fatalf("角标未读总数 %d 应与列表一致 %d", badge.TotalUnreadMessages, listTotal)
	}

	// 查看其中一个会话后未读清零
	if err := f.messages.MarkSeen(ctx, conv1.ID, bia.ID); err != nil {
		t.Fatalf("标记已读失败: %v", err)
	}
	badge, err = f.inbox.UnreadSummary(ctx, bia.ID)
	if err != nil {
		t.Fatalf("获取角标失败: %v", err)
	}
	if badge.TotalUnreadMessages != 1 {
		t.Fatalf("查看后未读总数应为1，实际 %d", badge.TotalUnreadMessages)
	}
	if badge.ConversationsWithUnread != 1 {
		t.Fatalf("查看后有未读的会话应为1，实际 %d", badge.ConversationsWithUnread)
	}
}

func TestSummaryShowsLastMessagePreview(t *testing.T) {
	f := newFixture(t)
	ana := f.seedUser(t, "ana")
	bia := f.seedUser(t, "bia")
	ctx := context.Background()

	conv, err := f.conversations.GetOrCreatePrivate(ctx, ana.ID, bia.ID)
	if err != nil {
		t.Fatalf("创建私聊失败: %v", err)
	}
	if conv.LastMessage != nil {
		t.Fatal("空会话不应有最后消息预览")
	}

	if _, err := f.messages.Send(ctx, conv.ID, ana.ID, "primeira", "", nil, nil); err != nil {
		t.Fatalf("发送失败: %v", err)
	}
	last, err := f.messages.Send(ctx, conv.ID, ana.ID, "segunda", "", nil, nil)
	if err != nil {
		t.Fatalf("发送失败: %v", err)
	}

	summary, err := f.conversations.Summarize(ctx, conv.ID, bia.ID)
	if err != nil {
		t.Fatalf("获取摘要失败: %v", err)
	}
	if summary.LastMessage == nil || summary.LastMessage.ID != last.ID {
		t.Fatalf("预览应指向最新消息 %d，实际 %+v", last.ID, summary.LastMessage)
	}
	if summary.LastMessage.Body != "segunda" {
		t.Fatalf("预览内容应为最新消息，实际 %q", summary.LastMessage.Body)
	}
}

func TestUpdateFlags(t *testing.T) {
	f := newFixture(t)
	ana := f.seedUser(t, "ana")
	bia := f.seedUser(t, "bia")
	ctx := context.Background()

	conv, err := f.conversations.GetOrCreatePrivate(ctx, ana.ID, bia.ID)
	if err != nil {
		t.Fatalf("创建私聊失败: %v", err)
	}

	muted := true
	if err := f.conversations.UpdateFlags(ctx, conv.ID, ana.ID, &muted, nil); err != nil {
		t.Fatalf("更新标记失败: %v", err)
	}

	summary, err := f.conversations.Summarize(ctx, conv.ID, ana.ID)
	if err != nil {
		t.Fatalf("获取摘要失败: %v", err)
	}
	if !summary.Muted {
		t.Fatal("免打扰标记应已生效")
	}
	if summary.Favorite {
		t.Fatal("收藏标记不应被修改")
	}

	// 非参与者不能改标记
	if err := f.conversations.UpdateFlags(ctx, conv.ID, 99, &muted, nil); !errors.Is(err, apperr.ErrNotAParticipant) {
		t.Fatalf("非参与者应返回 ErrNotAParticipant，实际 %v", err)
	}
}
