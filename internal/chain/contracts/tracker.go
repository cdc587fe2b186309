package contracts

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ExecutionRecord mirrors the tracker's execution tuple.
type ExecutionRecord struct {
	Timestamp    *big.Int
	StrategyType string
	Pnl          *big.Int
	CapitalUsed  *big.Int
	TxHash       string
}

// Tracker binds an agent's performance tracker.
type Tracker struct {
	addr     common.Address
	contract *bind.BoundContract
	backend  Backend
}

// NewTracker binds the tracker contract at addr.
func NewTracker(addr common.Address, backend Backend) (*Tracker, error) {
	contract, err := bound(addr, trackerABI, backend)
	if err != nil {
		return nil, err
	}
	return &Tracker{addr: addr, contract: contract, backend: backend}, nil
}

// Address returns the bound contract address.
func (t *Tracker) Address() common.Address { return t.addr }

// LogExecution books one execution result on chain.
func (t *Tracker) LogExecution(ctx context.Context, opts *bind.TransactOpts, strategyType string, pnl, capitalUsed *big.Int, txHash string) (*types.Receipt, error) {
	return transactAndWait(ctx, t.backend, t.contract, opts, "logExecution", strategyType, pnl, capitalUsed, txHash)
}

// ROI returns the lifetime return on initial capital in basis points.
func (t *Tracker) ROI(ctx context.Context) (*big.Int, error) {
	return t.readBig(ctx, "getROI")
}

// WinRate returns the lifetime win rate in basis points.
func (t *Tracker) WinRate(ctx context.Context) (*big.Int, error) {
	return t.readBig(ctx, "getWinRate")
}

// TotalExecutions returns the number of logged executions.
func (t *Tracker) TotalExecutions(ctx context.Context) (*big.Int, error) {
	return t.readBig(ctx, "totalExecutions")
}

// WinCount returns the number of profitable executions.
func (t *Tracker) WinCount(ctx context.Context) (*big.Int, error) {
	return t.readBig(ctx, "winCount")
}

// LossCount returns the number of losing executions.
func (t *Tracker) LossCount(ctx context.Context) (*big.Int, error) {
	return t.readBig(ctx, "lossCount")
}

// CumulativePnL returns the lifetime realized pnl.
func (t *Tracker) CumulativePnL(ctx context.Context) (*big.Int, error) {
	return t.readBig(ctx, "cumulativePnL")
}

// InitialCapital returns the capital baseline ROI is measured against.
func (t *Tracker) InitialCapital(ctx context.Context) (*big.Int, error) {
	return t.readBig(ctx, "initialCapital")
}

// TotalCapitalDeployed returns the lifetime capital put to work.
func (t *Tracker) TotalCapitalDeployed(ctx context.Context) (*big.Int, error) {
	return t.readBig(ctx, "totalCapitalDeployed")
}

// RecentExecutions returns up to count most recent execution records.
func (t *Tracker) RecentExecutions(ctx context.Context, count *big.Int) ([]ExecutionRecord, error) {
	var out []interface{}
	if err := call(ctx, t.contract, &out, "getRecentExecutions", count); err != nil {
		return nil, err
	}
	records := *abi.ConvertType(out[0], new([]ExecutionRecord)).(*[]ExecutionRecord)
	return records, nil
}

func (t *Tracker) readBig(ctx context.Context, method string) (*big.Int, error) {
	var out []interface{}
	if err := call(ctx, t.contract, &out, method); err != nil {
		return nil, err
	}
	return asBigInt(out), nil
}
