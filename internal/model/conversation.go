package model

import "time"

// 会话类型
const (
	ConversationPrivate = "private" // 私聊（固定两名活跃参与者）
	ConversationGroup   = "group"   // 群聊
)

// 群可见性（仅影响发现，不影响消息投递）
const (
	VisibilityPublic  = "public"
	VisibilityPrivate = "private"
)

// Conversation 会话模型
// Kind: private-私聊 group-群聊
// 私聊不使用 Name/Image 展示字段，展示信息由对方参与者派生
// PairKey 仅私聊使用，格式为 "minUserID:maxUserID"，唯一索引保证同一对用户只有一个私聊会话
// LastMessageID 是对消息的弱引用，悬空时预览按"无"处理

type Conversation struct {
	ID            uint       `gorm:"primaryKey"`
	Kind          string     `gorm:"type:varchar(16);not null;default:'private';index;comment:会话类型(private/group)"`
	Name          string     `gorm:"type:varchar(128);comment:群名称(仅群聊)"`
	Image         string     `gorm:"type:varchar(255);comment:群头像URL(仅群聊)"`
	CoverImage    string     `gorm:"type:varchar(255);comment:群封面URL(仅群聊)"`
	Visibility    string     `gorm:"type:varchar(16);default:'private';comment:群可见性(public/private)"`
	CreatorID     *uint      `gorm:"index;comment:创建者用户ID"`
	PairKey       *string    `gorm:"type:varchar(64);uniqueIndex;comment:私聊去重键"`
	LastMessageID *uint      `gorm:"comment:最后一条消息ID(弱引用)"`
	LastMessageAt *time.Time `gorm:"index;comment:最后一条消息时间"`
	CreatedAt     time.Time  `gorm:"comment:创建时间"`
	UpdatedAt     time.Time  `gorm:"comment:更新时间"`
}

func (Conversation) TableName() string { return "conversation" }

// IsPrivate 是否私聊会话
func (c *Conversation) IsPrivate() bool { return c.Kind == ConversationPrivate }
