package journal

import (
	"context"
	"sync"
)

// MemoryStore 在内存环形缓冲里保留最近的执行流水。
type MemoryStore struct {
	mu      sync.Mutex
	limit   int
	records []Record
}

// NewMemoryStore 创建内存流水存储，limit 不合法时取 500。
func NewMemoryStore(limit int) *MemoryStore {
	if limit <= 0 {
		limit = 500
	}
	return &MemoryStore{limit: limit}
}

// Append 追加一条流水，超出容量时淘汰最旧记录。
func (s *MemoryStore) Append(ctx context.Context, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	if len(s.records) > s.limit {
		s.records = s.records[len(s.records)-s.limit:]
	}
	return nil
}

// Recent 返回最近 limit 条流水，新记录在前。
func (s *MemoryStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > len(s.records) {
		limit = len(s.records)
	}
	out := make([]Record, 0, limit)
	for i := len(s.records) - 1; i >= len(s.records)-limit; i-- {
		out = append(out, s.records[i])
	}
	return out, nil
}

// Close 满足 Store 接口，内存存储无需清理。
func (s *MemoryStore) Close() error { return nil }
