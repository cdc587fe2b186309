package journal

import (
	"context"
	"time"
)

// Record 是一条链下执行流水。链上 PerformanceTracker 仍是最终账本，
// 这里只做查询缓存。
type Record struct {
	ID         string    `json:"id"`
	AgentID    uint64    `json:"agent_id"`
	Strategy   string    `json:"strategy"`
	Executed   bool      `json:"executed"`
	Reason     string    `json:"reason,omitempty"`
	TxHash     string    `json:"tx_hash,omitempty"`
	PnLWei     string    `json:"pnl_wei"`
	CapitalWei string    `json:"capital_wei"`
	Error      string    `json:"error,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Store 抽象执行流水的持久化后端。
type Store interface {
	Append(ctx context.Context, record Record) error
	Recent(ctx context.Context, limit int) ([]Record, error)
	Close() error
}
