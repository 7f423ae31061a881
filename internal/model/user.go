package model

import "time"

// User 平台用户目录（身份服务在本核心之外，这里只保留展示字段用于补全作者/参与者信息）

type User struct {
	ID          uint      `gorm:"primaryKey"`
	Handle      string    `gorm:"type:varchar(64);not null;uniqueIndex;comment:用户名"`
	DisplayName string    `gorm:"type:varchar(128);comment:昵称"`
	AvatarURL   string    `gorm:"type:varchar(255);comment:头像URL"`
	CreatedAt   time.Time `gorm:"comment:创建时间"`
	UpdatedAt   time.Time `gorm:"comment:更新时间"`
}

func (User) TableName() string { return "user" }
