package strategy

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"Aegis-Engine/internal/chain"
	"Aegis-Engine/internal/chain/contracts"
	"Aegis-Engine/pkg/logger"
)

const (
	gasLimitBet         = 200000
	gasLimitClaimRounds = 300000

	sideBull = "BULL"
	sideBear = "BEAR"
)

// Market 抽象多空预测市场合约。
type Market interface {
	Address() common.Address
	CurrentEpoch(ctx context.Context) (*big.Int, error)
	RoundAt(ctx context.Context, epoch *big.Int) (*contracts.Round, error)
	BetBull(ctx context.Context, opts *bind.TransactOpts, epoch *big.Int) (*types.Receipt, error)
	BetBear(ctx context.Context, opts *bind.TransactOpts, epoch *big.Int) (*types.Receipt, error)
	Claimable(ctx context.Context, epoch *big.Int, user common.Address) (bool, error)
	Claim(ctx context.Context, opts *bind.TransactOpts, epochs []*big.Int) (*types.Receipt, error)
}

var _ Market = (*contracts.PredictionMarket)(nil)

// PredictionParams 是预测市场套利策略的参数。
type PredictionParams struct {
	MinSpreadBps   int
	MaxPositionBps int
	MinBet         *big.Int
}

// Prediction 侦测预测市场多空失衡，押注赔率更高的一侧。
type Prediction struct {
	market   Market
	executor chain.Transactor
	params   PredictionParams

	mu            sync.Mutex
	pendingClaims []*big.Int
	totalProfit   *big.Int
}

// NewPrediction 创建预测市场套利策略；market 为 nil 时策略只会报告未配置。
func NewPrediction(market Market, executor chain.Transactor, params PredictionParams) *Prediction {
	return &Prediction{
		market:      market,
		executor:    executor,
		params:      params,
		totalProfit: new(big.Int),
	}
}

// Kind 返回策略种类。
func (p *Prediction) Kind() Kind { return KindPrediction }

type spreadView struct {
	opportunity bool
	reason      string
	epoch       *big.Int
	bullPct     float64
	bearPct     float64
	bullPayout  float64
	bearPayout  float64
	spreadBps   int
}

// analyzeSpread 读取当前回合并计算多空价差。
func (p *Prediction) analyzeSpread(ctx context.Context) spreadView {
	if p.market == nil {
		return spreadView{reason: "No prediction contract configured"}
	}
	epoch, err := p.market.CurrentEpoch(ctx)
	if err != nil {
		return spreadView{reason: fmt.Sprintf("Analysis error: %v", err)}
	}
	round, err := p.market.RoundAt(ctx, epoch)
	if err != nil {
		return spreadView{reason: fmt.Sprintf("Analysis error: %v", err)}
	}

	if round.TotalAmount.Sign() == 0 {
		return spreadView{reason: "No bets placed yet", epoch: epoch}
	}

	bullPct := pctOf(round.BullAmount, round.TotalAmount)
	bearPct := pctOf(round.BearAmount, round.TotalAmount)
	bullPayout := payoutOf(round.TotalAmount, round.BullAmount)
	bearPayout := payoutOf(round.TotalAmount, round.BearAmount)

	spreadBps := int(math.Round(math.Abs(bullPct-bearPct) * 100))
	view := spreadView{
		opportunity: spreadBps >= p.params.MinSpreadBps,
		epoch:       epoch,
		bullPct:     bullPct,
		bearPct:     bearPct,
		bullPayout:  bullPayout,
		bearPayout:  bearPayout,
		spreadBps:   spreadBps,
	}
	if view.opportunity {
		view.reason = fmt.Sprintf("Spread %dbps detected. Bull: %.1f%%, Bear: %.1f%%", spreadBps, bullPct, bearPct)
	} else {
		view.reason = fmt.Sprintf("Spread %dbps below threshold %dbps", spreadBps, p.params.MinSpreadBps)
	}
	return view
}

// claimSettled 结算所有可领取的历史回合。
func (p *Prediction) claimSettled(ctx context.Context) *Outcome {
	p.mu.Lock()
	pending := make([]*big.Int, len(p.pendingClaims))
	copy(pending, p.pendingClaims)
	p.mu.Unlock()

	if p.market == nil || len(pending) == 0 {
		return nil
	}

	claimable := make([]*big.Int, 0, len(pending))
	remaining := make([]*big.Int, 0, len(pending))
	for _, epoch := range pending {
		ok, err := p.market.Claimable(ctx, epoch, p.executor.Address())
		if err != nil || !ok {
			// 回合尚未结算，留待下轮。
			remaining = append(remaining, epoch)
			continue
		}
		claimable = append(claimable, epoch)
	}
	if len(claimable) == 0 {
		return nil
	}

	opts, err := p.executor.TransactOpts(ctx, nil, gasLimitClaimRounds)
	if err != nil {
		return nil
	}
	receipt, err := p.market.Claim(ctx, opts, claimable)
	if err != nil {
		logger.Named("strategy.prediction").Error("结算失败", "error", err)
		return nil
	}

	p.mu.Lock()
	p.pendingClaims = remaining
	p.mu.Unlock()

	logger.Named("strategy.prediction").Info("结算完成", "rounds", len(claimable), "tx", receipt.TxHash.Hex())
	return &Outcome{
		Type:    "CLAIM",
		Success: true,
		TxHash:  receipt.TxHash.Hex(),
		Detail:  fmt.Sprintf("claimed %d rounds", len(claimable)),
	}
}

// Execute 跑一轮完整周期：先结算历史回合，再评估新机会。
func (p *Prediction) Execute(ctx context.Context, execCtx Context) (*Result, error) {
	claim := p.claimSettled(ctx)

	view := p.analyzeSpread(ctx)
	analysis := map[string]any{
		"bull_pct":    view.bullPct,
		"bear_pct":    view.bearPct,
		"bull_payout": view.bullPayout,
		"bear_payout": view.bearPayout,
		"spread_bps":  view.spreadBps,
	}

	outcomes := make([]Outcome, 0, 2)
	if claim != nil {
		outcomes = append(outcomes, *claim)
	}

	if !view.opportunity {
		return &Result{
			Executed: claim != nil,
			Reason:   view.reason,
			Analysis: analysis,
			Outcomes: outcomes,
		}, nil
	}

	// 押注规模取额度上限，但不低于最小注。
	betAmount := new(big.Int).Div(
		new(big.Int).Mul(execCtx.TreasuryBalance, big.NewInt(int64(p.params.MaxPositionBps))),
		big.NewInt(10000))
	if betAmount.Cmp(p.params.MinBet) < 0 {
		betAmount = new(big.Int).Set(p.params.MinBet)
	}

	decision := execCtx.Risk.PreValidate(ctx, betAmount, execCtx.TreasuryBalance)
	if !decision.Allowed {
		return &Result{Executed: false, Reason: "Risk blocked: " + decision.Reason, Analysis: analysis, Outcomes: outcomes}, nil
	}

	// 押注赔率更高的一侧，即下注更少的一侧。
	side := sideBear
	if view.bullPayout > view.bearPayout {
		side = sideBull
	}

	if err := execCtx.Risk.ValidateOnChain(ctx, betAmount); err != nil {
		return &Result{Executed: false, Reason: fmt.Sprintf("On-chain risk failed: %v", err), Analysis: analysis, Outcomes: outcomes}, nil
	}

	opts, err := p.executor.TransactOpts(ctx, betAmount, gasLimitBet)
	if err != nil {
		return &Result{Executed: false, Reason: err.Error(), Analysis: analysis, Outcomes: outcomes}, nil
	}
	var receipt *types.Receipt
	if side == sideBull {
		receipt, err = p.market.BetBull(ctx, opts, view.epoch)
	} else {
		receipt, err = p.market.BetBear(ctx, opts, view.epoch)
	}
	if err != nil {
		logger.Named("strategy.prediction").Error("押注失败", "side", side, "error", err)
		return &Result{Executed: false, Reason: fmt.Sprintf("Bet failed: %v", err), Analysis: analysis, Outcomes: outcomes}, nil
	}

	p.mu.Lock()
	p.pendingClaims = append(p.pendingClaims, new(big.Int).Set(view.epoch))
	p.mu.Unlock()

	logger.Named("strategy.prediction").Info("押注完成",
		"side", side,
		"epoch", view.epoch.String(),
		"amount", betAmount.String(),
		"tx", receipt.TxHash.Hex())

	outcomes = append(outcomes, Outcome{
		Type:    "BET",
		Success: true,
		TxHash:  receipt.TxHash.Hex(),
		Amount:  betAmount,
		Detail:  side,
	})
	return &Result{
		Executed:    true,
		TxHash:      receipt.TxHash.Hex(),
		CapitalUsed: betAmount,
		Reason:      view.reason,
		Analysis:    analysis,
		Outcomes:    outcomes,
	}, nil
}

// Stats 返回策略运行统计。
func (p *Prediction) Stats() map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return map[string]any{
		"pending_claims":        len(p.pendingClaims),
		"total_profit_captured": p.totalProfit.String(),
	}
}

func pctOf(part, total *big.Int) float64 {
	if total.Sign() == 0 {
		return 0
	}
	scaled := new(big.Int).Div(new(big.Int).Mul(part, big.NewInt(10000)), total)
	return float64(scaled.Int64()) / 100
}

func payoutOf(total, side *big.Int) float64 {
	if side.Sign() == 0 {
		return 0
	}
	scaled := new(big.Int).Div(new(big.Int).Mul(total, big.NewInt(1000)), side)
	return float64(scaled.Int64()) / 1000
}
