package eventbus

import (
	"context"
	"time"
)

// 事件类型。
const (
	TypeExecution     = "agent.execution"
	TypeEmergencyStop = "agent.emergency_stop"
	TypeAgentLoaded   = "agent.loaded"
	TypeAgentRemoved  = "agent.removed"
)

// Event 是推送给外部面板管线的一条引擎事件。
type Event struct {
	Type       string            `json:"type"`
	AgentID    uint64            `json:"agent_id"`
	Strategy   string            `json:"strategy,omitempty"`
	TxHash     string            `json:"tx_hash,omitempty"`
	Detail     string            `json:"detail,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// Publisher 抽象事件通道，发布失败不阻塞执行周期。
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}
