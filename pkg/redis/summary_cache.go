package redis

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// 会话列表缓存相关常量
const (
	SummaryKeyPrefix = "chat:summaries:" // 会话列表缓存key前缀
)

// CacheSummaries 缓存用户的会话列表（序列化后的摘要）
// value 由调用方序列化，缓存层不关心摘要结构
func CacheSummaries(userID uint, summaries interface{}, ttl time.Duration) error {
	if client == nil {
		return fmt.Errorf("redis客户端未初始化")
	}

	key := fmt.Sprintf("%s%d", SummaryKeyPrefix, userID)

	data, err := json.Marshal(summaries)
	if err != nil {
		return fmt.Errorf("序列化会话列表失败: %w", err)
	}

	if err := Set(key, data, ttl); err != nil {
		return fmt.Errorf("写入会话列表缓存失败: %w", err)
	}

	return nil
}

// GetSummaries 获取用户的会话列表缓存，反序列化到 dest；未命中返回 (false, nil)
func GetSummaries(userID uint, dest interface{}) (bool, error) {
	if client == nil {
		return false, fmt.Errorf("redis客户端未初始化")
	}

	key := fmt.Sprintf("%s%d", SummaryKeyPrefix, userID)

	data, err := Get(key)
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, fmt.Errorf("读取会话列表缓存失败: %w", err)
	}

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return false, fmt.Errorf("反序列化会话列表缓存失败: %w", err)
	}

	return true, nil
}

// InvalidateSummaries 批量失效会话列表缓存（发消息后对所有参与者调用）
func InvalidateSummaries(userIDs []uint) error {
	if client == nil {
		return fmt.Errorf("redis客户端未初始化")
	}
	if len(userIDs) == 0 {
		return nil
	}

	pipe := client.Pipeline()
	for _, userID := range userIDs {
		pipe.Del(ctx, fmt.Sprintf("%s%d", SummaryKeyPrefix, userID))
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("批量失效会话列表缓存失败: %w", err)
	}

	return nil
}
