package strategy

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"Aegis-Engine/internal/chain"
	"Aegis-Engine/internal/chain/contracts"
	"Aegis-Engine/pkg/logger"
)

const (
	gasLimitStake   = 300000
	gasLimitUnstake = 300000
	gasLimitClaim   = 200000
)

// Venue 抽象质押场所合约。
type Venue interface {
	Address() common.Address
	Stake(ctx context.Context, opts *bind.TransactOpts) (*types.Receipt, error)
	Unstake(ctx context.Context, opts *bind.TransactOpts, amount *big.Int) (*types.Receipt, error)
	ClaimReward(ctx context.Context, opts *bind.TransactOpts) (*types.Receipt, error)
	Staked(ctx context.Context, user common.Address) (*big.Int, error)
	Earned(ctx context.Context, user common.Address) (*big.Int, error)
}

var _ Venue = (*contracts.StakingVenue)(nil)

// YieldParams 是收益耕作策略的参数。
type YieldParams struct {
	RebalanceInterval time.Duration
	MaxAllocationBps  int
}

type venueDeposit struct {
	amount      *big.Int
	depositedAt time.Time
}

// Yield 把金库资金投入白名单质押场所并定期收割。
type Yield struct {
	venues   []Venue
	executor chain.Transactor
	params   YieldParams
	now      func() time.Time

	mu              sync.Mutex
	activeDeposits  map[common.Address]*venueDeposit
	totalYield      *big.Int
	lastRebalanceAt time.Time
}

// YieldOption 定义可选配置。
type YieldOption func(*Yield)

// WithYieldClock 注入时钟，测试用。
func WithYieldClock(now func() time.Time) YieldOption {
	return func(y *Yield) {
		y.now = now
	}
}

// NewYield 创建收益耕作策略。场所列表顺序即优先级，资金只进第一个场所。
func NewYield(venues []Venue, executor chain.Transactor, params YieldParams, opts ...YieldOption) *Yield {
	y := &Yield{
		venues:         venues,
		executor:       executor,
		params:         params,
		now:            time.Now,
		activeDeposits: make(map[common.Address]*venueDeposit),
		totalYield:     new(big.Int),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(y)
		}
	}
	y.lastRebalanceAt = y.now()
	return y
}

// Kind 返回策略种类。
func (y *Yield) Kind() Kind { return KindYield }

// ScanOpportunities 读取每个白名单场所的质押与收益余额，单场所失败只跳过。
func (y *Yield) ScanOpportunities(ctx context.Context) []map[string]any {
	opportunities := make([]map[string]any, 0, len(y.venues))
	for _, venue := range y.venues {
		staked, err := venue.Staked(ctx, y.executor.Address())
		if err != nil {
			logger.Named("strategy.yield").Warn("场所扫描失败", "venue", venue.Address().Hex(), "error", err)
			continue
		}
		earned, err := venue.Earned(ctx, y.executor.Address())
		if err != nil {
			logger.Named("strategy.yield").Warn("场所扫描失败", "venue", venue.Address().Hex(), "error", err)
			continue
		}
		opportunities = append(opportunities, map[string]any{
			"venue":  venue.Address().Hex(),
			"staked": staked.String(),
			"earned": earned.String(),
		})
	}
	return opportunities
}

// claim 收割单个场所的奖励，无奖励时返回 nil Outcome。
func (y *Yield) claim(ctx context.Context, venue Venue) *Outcome {
	earned, err := venue.Earned(ctx, y.executor.Address())
	if err != nil {
		logger.Named("strategy.yield").Error("读取奖励失败", "venue", venue.Address().Hex(), "error", err)
		return nil
	}
	if earned.Sign() == 0 {
		return nil
	}
	opts, err := y.executor.TransactOpts(ctx, nil, gasLimitClaim)
	if err != nil {
		return nil
	}
	receipt, err := venue.ClaimReward(ctx, opts)
	if err != nil {
		logger.Named("strategy.yield").Error("收割失败", "venue", venue.Address().Hex(), "error", err)
		return nil
	}

	y.mu.Lock()
	y.totalYield.Add(y.totalYield, earned)
	y.mu.Unlock()

	logger.Named("strategy.yield").Info("收割完成",
		"venue", venue.Address().Hex(),
		"amount", earned.String(),
		"tx", receipt.TxHash.Hex())
	return &Outcome{
		Type:    "CLAIM",
		Success: true,
		TxHash:  receipt.TxHash.Hex(),
		Amount:  earned,
		Detail:  venue.Address().Hex(),
	}
}

func (y *Yield) heldVenues() []Venue {
	y.mu.Lock()
	defer y.mu.Unlock()
	held := make([]Venue, 0, len(y.activeDeposits))
	for _, venue := range y.venues {
		if _, ok := y.activeDeposits[venue.Address()]; ok {
			held = append(held, venue)
		}
	}
	return held
}

// Execute 跑一轮完整周期：冷却期内只收割，到期后先投后收。
func (y *Yield) Execute(ctx context.Context, execCtx Context) (*Result, error) {
	y.mu.Lock()
	sinceRebalance := y.now().Sub(y.lastRebalanceAt)
	depositCount := len(y.activeDeposits)
	y.mu.Unlock()

	if sinceRebalance < y.params.RebalanceInterval {
		outcomes := y.claimHeld(ctx, execCtx, false)
		if len(outcomes) == 0 {
			return &Result{Executed: false, Reason: "Not rebalance time yet, no rewards to claim"}, nil
		}
		return &Result{Executed: true, Outcomes: outcomes}, nil
	}

	y.mu.Lock()
	y.lastRebalanceAt = y.now()
	y.mu.Unlock()

	if depositCount == 0 && execCtx.TreasuryBalance.Sign() > 0 {
		return y.deposit(ctx, execCtx)
	}

	// 再平衡窗口到期：收割全部持仓并把收益回写风控。
	outcomes := y.claimHeld(ctx, execCtx, true)
	return &Result{
		Executed: len(outcomes) > 0,
		Outcomes: outcomes,
		Analysis: map[string]any{"active_deposits": depositCount},
	}, nil
}

// claimHeld 收割全部持仓场所；recordPnL 为真时把收益作为已实现利润上报。
func (y *Yield) claimHeld(ctx context.Context, execCtx Context, recordPnL bool) []Outcome {
	outcomes := make([]Outcome, 0)
	for _, venue := range y.heldVenues() {
		outcome := y.claim(ctx, venue)
		if outcome == nil {
			continue
		}
		outcomes = append(outcomes, *outcome)
		if recordPnL {
			if _, err := execCtx.Risk.RecordExecution(ctx, outcome.Amount); err != nil {
				logger.Named("strategy.yield").Error("回写收益失败", "error", err)
			}
		}
	}
	return outcomes
}

// deposit 把额度内的资金投入第一个白名单场所。
func (y *Yield) deposit(ctx context.Context, execCtx Context) (*Result, error) {
	if len(y.venues) == 0 {
		return &Result{Executed: false, Reason: "No whitelisted protocols configured"}, nil
	}

	amount := new(big.Int).Div(
		new(big.Int).Mul(execCtx.TreasuryBalance, big.NewInt(int64(y.params.MaxAllocationBps))),
		big.NewInt(10000))

	decision := execCtx.Risk.PreValidate(ctx, amount, execCtx.TreasuryBalance)
	if !decision.Allowed {
		return &Result{Executed: false, Reason: "Risk blocked: " + decision.Reason}, nil
	}
	if err := execCtx.Risk.ValidateOnChain(ctx, amount); err != nil {
		return &Result{Executed: false, Reason: fmt.Sprintf("On-chain risk failed: %v", err)}, nil
	}

	venue := y.venues[0]
	opts, err := y.executor.TransactOpts(ctx, amount, gasLimitStake)
	if err != nil {
		return &Result{Executed: false, Reason: err.Error()}, nil
	}
	receipt, err := venue.Stake(ctx, opts)
	if err != nil {
		logger.Named("strategy.yield").Error("质押失败", "venue", venue.Address().Hex(), "error", err)
		return &Result{Executed: false, Reason: fmt.Sprintf("Deposit failed: %v", err)}, nil
	}

	y.mu.Lock()
	existing, ok := y.activeDeposits[venue.Address()]
	if !ok {
		existing = &venueDeposit{amount: new(big.Int)}
		y.activeDeposits[venue.Address()] = existing
	}
	existing.amount.Add(existing.amount, amount)
	existing.depositedAt = y.now()
	y.mu.Unlock()

	logger.Named("strategy.yield").Info("质押完成",
		"venue", venue.Address().Hex(),
		"amount", amount.String(),
		"tx", receipt.TxHash.Hex())

	return &Result{
		Executed:    true,
		TxHash:      receipt.TxHash.Hex(),
		CapitalUsed: amount,
		Outcomes: []Outcome{{
			Type: "DEPOSIT", Success: true, TxHash: receipt.TxHash.Hex(), Amount: amount,
			Detail: venue.Address().Hex(),
		}},
	}, nil
}

// Withdraw 从场所撤回指定金额，持仓记录同步扣减。
func (y *Yield) Withdraw(ctx context.Context, venue Venue, amount *big.Int) (*Outcome, error) {
	opts, err := y.executor.TransactOpts(ctx, nil, gasLimitUnstake)
	if err != nil {
		return nil, err
	}
	receipt, err := venue.Unstake(ctx, opts, amount)
	if err != nil {
		logger.Named("strategy.yield").Error("撤回失败", "venue", venue.Address().Hex(), "error", err)
		return nil, err
	}

	y.mu.Lock()
	if existing, ok := y.activeDeposits[venue.Address()]; ok {
		if existing.amount.Cmp(amount) > 0 {
			existing.amount.Sub(existing.amount, amount)
		} else {
			delete(y.activeDeposits, venue.Address())
		}
	}
	y.mu.Unlock()

	return &Outcome{
		Type:    "WITHDRAW",
		Success: true,
		TxHash:  receipt.TxHash.Hex(),
		Amount:  amount,
		Detail:  venue.Address().Hex(),
	}, nil
}

// Stats 返回策略运行统计。
func (y *Yield) Stats() map[string]any {
	y.mu.Lock()
	defer y.mu.Unlock()
	deposits := make([]map[string]any, 0, len(y.activeDeposits))
	for addr, deposit := range y.activeDeposits {
		deposits = append(deposits, map[string]any{
			"venue":        addr.Hex(),
			"amount":       deposit.amount.String(),
			"deposited_at": deposit.depositedAt.UTC().Format(time.RFC3339),
		})
	}
	return map[string]any{
		"active_deposits":    deposits,
		"total_yield_earned": y.totalYield.String(),
	}
}
