// Package identity 封装身份服务协作方。
// 用户身份与资料存储在本核心之外，这里只定义解析接口，
// 并提供一个读平台用户表的默认适配器用于补全作者/参与者展示信息。
package identity

import (
	"context"
	"errors"

	"github.com/murilobezs/empowerup-sub002/internal/model"

	"gorm.io/gorm"
)

// Profile 身份服务返回的用户展示信息
type Profile struct {
	ID          uint   `json:"id"`
	DisplayName string `json:"display_name"`
	Handle      string `json:"handle"`
	AvatarURL   string `json:"avatar_url"`
}

// Resolver 身份解析接口
// ResolveUsers 批量解析，缺失的用户不出现在结果里
type Resolver interface {
	ResolveUser(ctx context.Context, id uint) (*Profile, error)
	ResolveUsers(ctx context.Context, ids []uint) (map[uint]*Profile, error)
}

// GormResolver 平台用户表适配器
type GormResolver struct {
	db *gorm.DB
}

// NewGormResolver 创建GormResolver实例
func NewGormResolver(db *gorm.DB) *GormResolver {
	return &GormResolver{db: db}
}

// ResolveUser 解析单个用户，不存在返回 (nil, nil)
func (r *GormResolver) ResolveUser(ctx context.Context, id uint) (*Profile, error) {
	var u model.User
	err := r.db.WithContext(ctx).First(&u, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return toProfile(&u), nil
}

// ResolveUsers 批量解析用户
func (r *GormResolver) ResolveUsers(ctx context.Context, ids []uint) (map[uint]*Profile, error) {
	result := make(map[uint]*Profile, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var users []*model.User
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}

	for _, u := range users {
		result[u.ID] = toProfile(u)
	}
	return result, nil
}

func toProfile(u *model.User) *Profile {
	name := u.DisplayName
	if name == "" {
		name = u.Handle
	}
	return &Profile{
		ID:          u.ID,
		DisplayName: name,
		Handle:      u.Handle,
		AvatarURL:   u.AvatarURL,
	}
}
