package model

import "time"

// 参与者角色
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// 参与者状态：只有 active 参与者计入成员、未读数与回执推断
const (
	ParticipantActive  = "active"
	ParticipantRemoved = "removed"
)

// Participant 会话参与者（会话 × 用户）
// LastSeenAt 在用户查看会话或发消息时单调推进，是无显式已读列时推断回执的唯一信号
// Muted/Favorite 仅影响展示，不影响投递

type Participant struct {
	ID             uint       `gorm:"primaryKey"`
	ConversationID uint       `gorm:"not null;uniqueIndex:uk_participant_pair;comment:会话ID"`
	UserID         uint       `gorm:"not null;uniqueIndex:uk_participant_pair;index;comment:用户ID"`
	Role           string     `gorm:"type:varchar(16);not null;default:'member';comment:角色(owner/admin/member)"`
	Status         string     `gorm:"type:varchar(16);not null;default:'active';index;comment:状态(active/removed)"`
	JoinedAt       time.Time  `gorm:"comment:首次加入时间"`
	LastSeenAt     *time.Time `gorm:"comment:最近查看时间"`
	Muted          bool       `gorm:"default:false;comment:是否免打扰"`
	Favorite       bool       `gorm:"default:false;comment:是否收藏"`
	CreatedAt      time.Time  `gorm:"comment:创建时间"`
	UpdatedAt      time.Time  `gorm:"comment:更新时间"`
}

func (Participant) TableName() string { return "participant" }

// IsActive 是否活跃参与者
func (p *Participant) IsActive() bool { return p.Status == ParticipantActive }

// HasSeen 判断参与者是否已看过 at 时刻发送的内容（含相等，平局按已读处理）
func (p *Participant) HasSeen(at time.Time) bool {
	return p.LastSeenAt != nil && !p.LastSeenAt.Before(at)
}
