package redis

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// 未读角标缓存相关常量
const (
	BadgeKeyPrefix = "chat:badge:" // 角标缓存key前缀
)

// CachedBadge 缓存的未读角标汇总
// 与 InboxAggregator 的计算结果同构，缓存只是加速，过期后从数据库重算
type CachedBadge struct {
	TotalConversations      int64     `json:"total_conversations"`
	ConversationsWithUnread int64     `json:"conversations_with_unread"`
	TotalUnreadMessages     int64     `json:"total_unread_messages"`
	ComputedAt              time.Time `json:"computed_at"`
}

// SetBadge 缓存用户的未读角标汇总
func SetBadge(userID uint, badge *CachedBadge, ttl time.Duration) error {
	if client == nil {
		return fmt.Errorf("redis客户端未初始化")
	}

	key := fmt.Sprintf("%s%d", BadgeKeyPrefix, userID)

	data, err := json.Marshal(badge)
	if err != nil {
		return fmt.Errorf("序列化角标缓存失败: %w", err)
	}

	if err := Set(key, data, ttl); err != nil {
		return fmt.Errorf("写入角标缓存失败: %w", err)
	}

	return nil
}

// GetBadge 获取用户的未读角标缓存，未命中返回 (nil, nil)
func GetBadge(userID uint) (*CachedBadge, error) {
	if client == nil {
		return nil, fmt.Errorf("redis客户端未初始化")
	}

	key := fmt.Sprintf("%s%d", BadgeKeyPrefix, userID)

	data, err := Get(key)
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("读取角标缓存失败: %w", err)
	}

	var badge CachedBadge
	if err := json.Unmarshal([]byte(data), &badge); err != nil {
		return nil, fmt.Errorf("反序列化角标缓存失败: %w", err)
	}

	return &badge, nil
}

// InvalidateBadge 失效单个用户的角标缓存
func InvalidateBadge(userID uint) error {
	if client == nil {
		return fmt.Errorf("redis客户端未初始化")
	}

	key := fmt.Sprintf("%s%d", BadgeKeyPrefix, userID)
	return Del(key)
}

// InvalidateBadges 批量失效角标缓存（消息送达后对所有接收者调用）
func InvalidateBadges(userIDs []uint) error {
	if client == nil {
		return fmt.Errorf("redis客户端未初始化")
	}
	if len(userIDs) == 0 {
		return nil
	}

	// 使用Pipeline批量操作
	pipe := client.Pipeline()
	for _, userID := range userIDs {
		pipe.Del(ctx, fmt.Sprintf("%s%d", BadgeKeyPrefix, userID))
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("批量失效角标缓存失败: %w", err)
	}

	return nil
}
