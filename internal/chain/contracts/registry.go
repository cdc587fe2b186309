package contracts

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// AgentRecord mirrors the registry's agent tuple.
type AgentRecord struct {
	AgentToken         common.Address
	Treasury           common.Address
	RiskController     common.Address
	PerformanceTracker common.Address
	RevenueDistributor common.Address
	Creator            common.Address
	StrategyType       string
	CreatedAt          *big.Int
	Active             bool
}

// Registry reads the agent factory's on-chain registry.
type Registry struct {
	contract *bind.BoundContract
}

// NewRegistry binds the registry contract at addr.
func NewRegistry(addr common.Address, backend Backend) (*Registry, error) {
	contract, err := bound(addr, registryABI, backend)
	if err != nil {
		return nil, err
	}
	return &Registry{contract: contract}, nil
}

// AgentCount returns the number of agents ever registered.
func (r *Registry) AgentCount(ctx context.Context) (*big.Int, error) {
	var out []interface{}
	if err := call(ctx, r.contract, &out, "getAgentCount"); err != nil {
		return nil, err
	}
	return asBigInt(out), nil
}

// Agent fetches the full record for agentID.
func (r *Registry) Agent(ctx context.Context, agentID *big.Int) (*AgentRecord, error) {
	var out []interface{}
	if err := call(ctx, r.contract, &out, "getAgent", agentID); err != nil {
		return nil, err
	}
	record := abi.ConvertType(out[0], new(AgentRecord)).(*AgentRecord)
	return record, nil
}
