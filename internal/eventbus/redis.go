package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisConfig 描述 Redis 事件流的连接参数。
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Stream   string
	Limit    int64
}

// RedisBus 把事件写进一条定长的 Redis list，面板端按需轮询。
type RedisBus struct {
	client *redis.Client
	stream string
	limit  int64
}

// NewRedisBus 创建 Redis 事件通道。
func NewRedisBus(cfg RedisConfig) (*RedisBus, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	stream := cfg.Stream
	if stream == "" {
		stream = "aegis:events"
	}
	limit := cfg.Limit
	if limit <= 0 {
		limit = 1000
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return &RedisBus{client: client, stream: stream, limit: limit}, nil
}

// Publish 发布事件并裁剪超出上限的旧事件。
func (b *RedisBus) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("编码事件失败: %w", err)
	}
	if err := b.client.LPush(ctx, b.stream, payload).Err(); err != nil {
		return fmt.Errorf("Redis 发布事件失败: %w", err)
	}
	if err := b.client.LTrim(ctx, b.stream, 0, b.limit-1).Err(); err != nil {
		return fmt.Errorf("Redis 裁剪事件流失败: %w", err)
	}
	return nil
}

// Close 关闭 Redis 连接。
func (b *RedisBus) Close() error {
	return b.client.Close()
}
