package eventbus

import (
	"context"
	"sync"
)

// MemoryBus 把事件留在内存环形缓冲里，同时支撑 HTTP 侧的最近事件查询。
type MemoryBus struct {
	mu     sync.Mutex
	limit  int
	events []Event
}

// NewMemoryBus 创建内存事件通道，limit 不合法时取 200。
func NewMemoryBus(limit int) *MemoryBus {
	if limit <= 0 {
		limit = 200
	}
	return &MemoryBus{limit: limit}
}

// Publish 追加事件，超出容量时淘汰最旧事件。
func (b *MemoryBus) Publish(ctx context.Context, event Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	if len(b.events) > b.limit {
		b.events = b.events[len(b.events)-b.limit:]
	}
	return nil
}

// Recent 返回最近 limit 条事件，新事件在前。
func (b *MemoryBus) Recent(limit int) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	if limit <= 0 || limit > len(b.events) {
		limit = len(b.events)
	}
	out := make([]Event, 0, limit)
	for i := len(b.events) - 1; i >= len(b.events)-limit; i-- {
		out = append(out, b.events[i])
	}
	return out
}

// Close 满足 Publisher 接口。
func (b *MemoryBus) Close() error { return nil }
