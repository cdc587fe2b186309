// Package perf 把执行结果写入链上绩效合约，并聚合绩效读数。
package perf

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"Aegis-Engine/internal/chain"
	"Aegis-Engine/internal/chain/contracts"
	"Aegis-Engine/pkg/logger"
)

const gasLimitLogExecution = 300000

// TrackerContract 抽象绩效合约绑定。
type TrackerContract interface {
	Address() common.Address
	LogExecution(ctx context.Context, opts *bind.TransactOpts, strategyType string, pnl, capitalUsed *big.Int, txHash string) (*types.Receipt, error)
	ROI(ctx context.Context) (*big.Int, error)
	WinRate(ctx context.Context) (*big.Int, error)
	TotalExecutions(ctx context.Context) (*big.Int, error)
	WinCount(ctx context.Context) (*big.Int, error)
	LossCount(ctx context.Context) (*big.Int, error)
	CumulativePnL(ctx context.Context) (*big.Int, error)
	InitialCapital(ctx context.Context) (*big.Int, error)
	TotalCapitalDeployed(ctx context.Context) (*big.Int, error)
	RecentExecutions(ctx context.Context, count *big.Int) ([]contracts.ExecutionRecord, error)
}

var _ TrackerContract = (*contracts.Tracker)(nil)

// Performance 汇总链上绩效读数，金额以 wei 计。
type Performance struct {
	ROIBps               int64    `json:"roi_bps"`
	WinRateBps           int64    `json:"win_rate_bps"`
	TotalExecutions      uint64   `json:"total_executions"`
	WinCount             uint64   `json:"win_count"`
	LossCount            uint64   `json:"loss_count"`
	CumulativePnL        *big.Int `json:"cumulative_pnl"`
	InitialCapital       *big.Int `json:"initial_capital"`
	TotalCapitalDeployed *big.Int `json:"total_capital_deployed"`
}

// Execution 是面向 API 的单条执行记录。
type Execution struct {
	Timestamp    int64    `json:"timestamp"`
	Date         string   `json:"date"`
	StrategyType string   `json:"strategy_type"`
	PnL          *big.Int `json:"pnl"`
	CapitalUsed  *big.Int `json:"capital_used"`
	TxHash       string   `json:"tx_hash"`
}

// Reporter 负责绩效上报与读取。
type Reporter struct {
	tracker  TrackerContract
	executor chain.Transactor
}

// NewReporter 创建绩效上报器。
func NewReporter(tracker TrackerContract, executor chain.Transactor) *Reporter {
	return &Reporter{tracker: tracker, executor: executor}
}

// LogExecution 把一次执行的结果写上链，返回上报交易哈希。
func (r *Reporter) LogExecution(ctx context.Context, strategyType string, pnl, capitalUsed *big.Int, txHash string) (string, error) {
	opts, err := r.executor.TransactOpts(ctx, nil, gasLimitLogExecution)
	if err != nil {
		return "", err
	}
	receipt, err := r.tracker.LogExecution(ctx, opts, strategyType, pnl, capitalUsed, txHash)
	if err != nil {
		logger.Named("perf").Error("绩效上报失败", "strategy", strategyType, "error", err)
		return "", err
	}
	logger.Named("perf").Info("绩效已上报",
		"strategy", strategyType,
		"pnl", pnl.String(),
		"tx", receipt.TxHash.Hex())
	return receipt.TxHash.Hex(), nil
}

// Performance 聚合完整的绩效快照。
func (r *Reporter) Performance(ctx context.Context) (*Performance, error) {
	roi, err := r.tracker.ROI(ctx)
	if err != nil {
		return nil, err
	}
	winRate, err := r.tracker.WinRate(ctx)
	if err != nil {
		return nil, err
	}
	total, err := r.tracker.TotalExecutions(ctx)
	if err != nil {
		return nil, err
	}
	wins, err := r.tracker.WinCount(ctx)
	if err != nil {
		return nil, err
	}
	losses, err := r.tracker.LossCount(ctx)
	if err != nil {
		return nil, err
	}
	pnl, err := r.tracker.CumulativePnL(ctx)
	if err != nil {
		return nil, err
	}
	initial, err := r.tracker.InitialCapital(ctx)
	if err != nil {
		return nil, err
	}
	deployed, err := r.tracker.TotalCapitalDeployed(ctx)
	if err != nil {
		return nil, err
	}
	return &Performance{
		ROIBps:               roi.Int64(),
		WinRateBps:           winRate.Int64(),
		TotalExecutions:      total.Uint64(),
		WinCount:             wins.Uint64(),
		LossCount:            losses.Uint64(),
		CumulativePnL:        pnl,
		InitialCapital:       initial,
		TotalCapitalDeployed: deployed,
	}, nil
}

// RecentExecutions 返回最近 count 条执行记录，读取失败时返回空列表。
func (r *Reporter) RecentExecutions(ctx context.Context, count int) []Execution {
	if count <= 0 {
		count = 20
	}
	records, err := r.tracker.RecentExecutions(ctx, big.NewInt(int64(count)))
	if err != nil {
		logger.Named("perf").Error("读取执行记录失败", "error", err)
		return nil
	}
	executions := make([]Execution, 0, len(records))
	for _, record := range records {
		ts := record.Timestamp.Int64()
		executions = append(executions, Execution{
			Timestamp:    ts,
			Date:         time.Unix(ts, 0).UTC().Format(time.RFC3339),
			StrategyType: record.StrategyType,
			PnL:          record.Pnl,
			CapitalUsed:  record.CapitalUsed,
			TxHash:       record.TxHash,
		})
	}
	return executions
}
