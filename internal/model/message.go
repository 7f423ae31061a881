package model

import "time"

// 消息类型
const (
	MessageText   = "text"
	MessageFile   = "file"
	MessageSystem = "system"
)

// Message 消息模型
// 消息只追加不修改，例外是可选的回执列（ReadFlag/DeliveredAt/ReadAt）
// 这三列在部分部署中不存在，回执状态必须经 receipt 包推导而不是直接读列
// ReplyToID 必须指向同一会话内的消息

type Message struct {
	ID             uint       `gorm:"primaryKey"`
	ConversationID uint       `gorm:"not null;index:idx_message_conv_sent;comment:会话ID"`
	SenderID       uint       `gorm:"not null;index;comment:发送者ID"`
	Body           string     `gorm:"type:text;not null;comment:消息内容"`
	Kind           string     `gorm:"type:varchar(16);not null;default:'text';comment:消息类型(text/file/system)"`
	Metadata       string     `gorm:"type:json;comment:附加元数据(JSON,如附件描述)"`
	ReplyToID      *uint      `gorm:"index;comment:被回复消息ID(同会话,弱引用)"`
	SentAt         time.Time  `gorm:"not null;index:idx_message_conv_sent;comment:发送时间"`
	ReadFlag       *bool      `gorm:"comment:显式已读标记(可选列)"`
	DeliveredAt    *time.Time `gorm:"comment:送达时间(可选列)"`
	ReadAt         *time.Time `gorm:"comment:已读时间(可选列)"`
	CreatedAt      time.Time  `gorm:"comment:创建时间"`
	UpdatedAt      time.Time  `gorm:"comment:更新时间"`
}

func (Message) TableName() string { return "message" }
