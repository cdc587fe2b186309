package strategy

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	bigmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"

	"Aegis-Engine/internal/chain"
	"Aegis-Engine/internal/chain/contracts"
	"Aegis-Engine/pkg/logger"
)

const (
	gasLimitSwap    = 500000
	gasLimitApprove = 100000

	signalBuy  = "BUY"
	signalSell = "SELL"
	signalHold = "HOLD"

	swapDeadlineSlack = 300 * time.Second
)

// SwapRouter 抽象 AMM 路由合约。
type SwapRouter interface {
	Address() common.Address
	AmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error)
	SwapExactETHForTokens(ctx context.Context, opts *bind.TransactOpts, amountOutMin *big.Int, path []common.Address, to common.Address, deadline *big.Int) (*types.Receipt, error)
	SwapExactTokensForETH(ctx context.Context, opts *bind.TransactOpts, amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, deadline *big.Int) (*types.Receipt, error)
}

// Token 抽象 ERC-20 合约。
type Token interface {
	BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error)
	Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error)
	Approve(ctx context.Context, opts *bind.TransactOpts, spender common.Address, amount *big.Int) (*types.Receipt, error)
}

// TokenBinder 按地址绑定 ERC-20 合约。
type TokenBinder func(addr common.Address) (Token, error)

var (
	_ SwapRouter = (*contracts.Router)(nil)
	_ Token      = (*contracts.ERC20)(nil)
)

// TradingParams 是动量交易策略的参数。
type TradingParams struct {
	MomentumWindow    int
	VolatilityCeiling float64
	MinProfitBps      int
	SlippageBps       int
	ProbeAmount       *big.Int
	MaxAllocationBps  int
	MaxTradesPerDay   int
}

type pricePoint struct {
	price float64
	at    time.Time
}

type position struct {
	amountIn       *big.Int
	tokensReceived *big.Int
	openedAt       time.Time
}

// Trading 用动量加波动率规则在 AMM 上做真实换币。
type Trading struct {
	router        SwapRouter
	bindToken     TokenBinder
	executor      chain.Transactor
	wrappedNative common.Address
	params        TradingParams
	now           func() time.Time

	mu              sync.Mutex
	priceHistory    []pricePoint
	positions       map[common.Address]*position
	tradeCount      int
	dailyTradeCount int
	dailyResetAt    time.Time
}

// TradingOption 定义可选配置。
type TradingOption func(*Trading)

// WithTradingClock 注入时钟，测试用。
func WithTradingClock(now func() time.Time) TradingOption {
	return func(t *Trading) {
		t.now = now
	}
}

// NewTrading 创建动量交易策略。
func NewTrading(router SwapRouter, bindToken TokenBinder, executor chain.Transactor, wrappedNative common.Address, params TradingParams, opts ...TradingOption) *Trading {
	t := &Trading{
		router:        router,
		bindToken:     bindToken,
		executor:      executor,
		wrappedNative: wrappedNative,
		params:        params,
		now:           time.Now,
		positions:     make(map[common.Address]*position),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	t.dailyResetAt = t.now()
	return t
}

// Kind 返回策略种类。
func (t *Trading) Kind() Kind { return KindTrading }

type marketView struct {
	signal     string
	reason     string
	price      float64
	momentum   float64
	volatility float64
}

// analyzeMarket 用探针报价更新价格窗口，计算动量与波动率并给出信号。
func (t *Trading) analyzeMarket(ctx context.Context, token common.Address) marketView {
	path := []common.Address{t.wrappedNative, token}
	amounts, err := t.router.AmountsOut(ctx, t.params.ProbeAmount, path)
	if err != nil || len(amounts) < 2 {
		return marketView{signal: signalHold, reason: fmt.Sprintf("Analysis error: %v", err)}
	}
	currentPrice := weiToFloat(amounts[1])

	t.mu.Lock()
	t.priceHistory = append(t.priceHistory, pricePoint{price: currentPrice, at: t.now()})
	window := t.params.MomentumWindow
	if len(t.priceHistory) > window*2 {
		t.priceHistory = t.priceHistory[len(t.priceHistory)-window*2:]
	}
	if len(t.priceHistory) < window {
		t.mu.Unlock()
		return marketView{signal: signalHold, reason: "Insufficient data", price: currentPrice}
	}
	recent := make([]float64, window)
	for i, point := range t.priceHistory[len(t.priceHistory)-window:] {
		recent[i] = point.price
	}
	t.mu.Unlock()

	momentum := (currentPrice - recent[0]) / recent[0]

	returns := make([]float64, 0, window-1)
	for i := 1; i < len(recent); i++ {
		returns = append(returns, (recent[i]-recent[i-1])/recent[i-1])
	}
	var sum float64
	for _, r := range returns {
		sum += r
	}
	avg := sum / float64(len(returns))
	var variance float64
	for _, r := range returns {
		variance += (r - avg) * (r - avg)
	}
	volatility := math.Sqrt(variance / float64(len(returns)))

	minProfit := float64(t.params.MinProfitBps) / 10000
	ceiling := t.params.VolatilityCeiling

	view := marketView{price: currentPrice, momentum: momentum, volatility: volatility}
	switch {
	case momentum > minProfit && volatility < ceiling*2:
		view.signal = signalBuy
		view.reason = fmt.Sprintf("Momentum: +%.2f%%, Vol: %.2f%%", momentum*100, volatility*100)
	case momentum < -minProfit || volatility > ceiling*3:
		view.signal = signalSell
		view.reason = fmt.Sprintf("Momentum: %.2f%%, Vol: %.2f%%", momentum*100, volatility*100)
	default:
		view.signal = signalHold
		view.reason = fmt.Sprintf("Neutral. Momentum: %.2f%%, Vol: %.2f%%", momentum*100, volatility*100)
	}
	return view
}

// Execute 跑一轮完整周期：分析、风险校验、换币。
func (t *Trading) Execute(ctx context.Context, execCtx Context) (*Result, error) {
	t.mu.Lock()
	if t.now().Sub(t.dailyResetAt) > 24*time.Hour {
		t.dailyTradeCount = 0
		t.dailyResetAt = t.now()
	}
	dailyCount := t.dailyTradeCount
	t.mu.Unlock()

	if dailyCount >= t.params.MaxTradesPerDay {
		return &Result{Executed: false, Reason: "Daily trade limit reached"}, nil
	}

	view := t.analyzeMarket(ctx, execCtx.TargetAsset)
	analysis := map[string]any{
		"signal":     view.signal,
		"price":      view.price,
		"momentum":   view.momentum,
		"volatility": view.volatility,
	}

	switch view.signal {
	case signalBuy:
		return t.executeBuy(ctx, execCtx, analysis)
	case signalSell:
		return t.executeSell(ctx, execCtx, analysis)
	default:
		return &Result{Executed: false, Reason: view.reason, Analysis: analysis}, nil
	}
}

func (t *Trading) executeBuy(ctx context.Context, execCtx Context, analysis map[string]any) (*Result, error) {
	// 单笔规模取最大配置额度的一半。
	size := new(big.Int).Div(
		new(big.Int).Mul(execCtx.TreasuryBalance, big.NewInt(int64(t.params.MaxAllocationBps))),
		big.NewInt(20000))

	decision := execCtx.Risk.PreValidate(ctx, size, execCtx.TreasuryBalance)
	if !decision.Allowed {
		return &Result{Executed: false, Reason: "Risk blocked: " + decision.Reason, Analysis: analysis}, nil
	}
	if err := execCtx.Risk.ValidateOnChain(ctx, size); err != nil {
		return &Result{Executed: false, Reason: fmt.Sprintf("On-chain risk failed: %v", err), Analysis: analysis}, nil
	}

	path := []common.Address{t.wrappedNative, execCtx.TargetAsset}
	amounts, err := t.router.AmountsOut(ctx, size, path)
	if err != nil || len(amounts) < 2 {
		return &Result{Executed: false, Reason: fmt.Sprintf("Quote failed: %v", err), Analysis: analysis}, nil
	}
	minOut := applySlippage(amounts[1], t.params.SlippageBps)
	deadline := big.NewInt(t.now().Add(swapDeadlineSlack).Unix())

	opts, err := t.executor.TransactOpts(ctx, size, gasLimitSwap)
	if err != nil {
		return &Result{Executed: false, Reason: err.Error(), Analysis: analysis}, nil
	}
	receipt, err := t.router.SwapExactETHForTokens(ctx, opts, minOut, path, t.executor.Address(), deadline)
	if err != nil {
		logger.Named("strategy.trading").Error("买入失败", "error", err)
		return &Result{Executed: false, Reason: fmt.Sprintf("BUY failed: %v", err), Analysis: analysis}, nil
	}

	t.mu.Lock()
	t.positions[execCtx.TargetAsset] = &position{
		amountIn:       new(big.Int).Set(size),
		tokensReceived: new(big.Int).Set(amounts[1]),
		openedAt:       t.now(),
	}
	t.tradeCount++
	t.dailyTradeCount++
	t.mu.Unlock()

	logger.Named("strategy.trading").Info("买入完成",
		"amount_in", size.String(),
		"amount_out", amounts[1].String(),
		"tx", receipt.TxHash.Hex())

	return &Result{
		Executed:    true,
		TxHash:      receipt.TxHash.Hex(),
		CapitalUsed: size,
		Analysis:    analysis,
		Outcomes: []Outcome{{
			Type: signalBuy, Success: true, TxHash: receipt.TxHash.Hex(), Amount: size,
		}},
	}, nil
}

func (t *Trading) executeSell(ctx context.Context, execCtx Context, analysis map[string]any) (*Result, error) {
	t.mu.Lock()
	pos, held := t.positions[execCtx.TargetAsset]
	t.mu.Unlock()
	if !held {
		return &Result{Executed: false, Reason: "No position to sell", Analysis: analysis}, nil
	}

	token, err := t.bindToken(execCtx.TargetAsset)
	if err != nil {
		return &Result{Executed: false, Reason: err.Error(), Analysis: analysis}, nil
	}
	balance, err := token.BalanceOf(ctx, t.executor.Address())
	if err != nil {
		return &Result{Executed: false, Reason: fmt.Sprintf("Balance check failed: %v", err), Analysis: analysis}, nil
	}
	if balance.Sign() == 0 {
		t.mu.Lock()
		delete(t.positions, execCtx.TargetAsset)
		t.mu.Unlock()
		return &Result{Executed: false, Reason: "No token balance to sell", Analysis: analysis}, nil
	}

	// 授权额度不足时先做一次无限额授权。
	allowance, err := token.Allowance(ctx, t.executor.Address(), t.router.Address())
	if err != nil {
		return &Result{Executed: false, Reason: fmt.Sprintf("Allowance check failed: %v", err), Analysis: analysis}, nil
	}
	if allowance.Cmp(balance) < 0 {
		opts, err := t.executor.TransactOpts(ctx, nil, gasLimitApprove)
		if err != nil {
			return &Result{Executed: false, Reason: err.Error(), Analysis: analysis}, nil
		}
		if _, err := token.Approve(ctx, opts, t.router.Address(), bigmath.MaxBig256); err != nil {
			return &Result{Executed: false, Reason: fmt.Sprintf("Approve failed: %v", err), Analysis: analysis}, nil
		}
	}

	path := []common.Address{execCtx.TargetAsset, t.wrappedNative}
	amounts, err := t.router.AmountsOut(ctx, balance, path)
	if err != nil || len(amounts) < 2 {
		return &Result{Executed: false, Reason: fmt.Sprintf("Quote failed: %v", err), Analysis: analysis}, nil
	}
	minOut := applySlippage(amounts[1], t.params.SlippageBps)
	deadline := big.NewInt(t.now().Add(swapDeadlineSlack).Unix())

	opts, err := t.executor.TransactOpts(ctx, nil, gasLimitSwap)
	if err != nil {
		return &Result{Executed: false, Reason: err.Error(), Analysis: analysis}, nil
	}
	receipt, err := t.router.SwapExactTokensForETH(ctx, opts, balance, minOut, path, t.executor.Address(), deadline)
	if err != nil {
		logger.Named("strategy.trading").Error("卖出失败", "error", err)
		return &Result{Executed: false, Reason: fmt.Sprintf("SELL failed: %v", err), Analysis: analysis}, nil
	}

	pnl := new(big.Int).Sub(amounts[1], pos.amountIn)

	t.mu.Lock()
	delete(t.positions, execCtx.TargetAsset)
	t.tradeCount++
	t.dailyTradeCount++
	t.mu.Unlock()

	// 平仓后把已实现盈亏回写风控合约；失败只记日志，不影响本次结果。
	if _, err := execCtx.Risk.RecordExecution(ctx, pnl); err != nil {
		logger.Named("strategy.trading").Error("回写盈亏失败", "error", err)
	}

	logger.Named("strategy.trading").Info("卖出完成",
		"amount_in", balance.String(),
		"amount_out", amounts[1].String(),
		"pnl", pnl.String(),
		"tx", receipt.TxHash.Hex())

	return &Result{
		Executed:    true,
		TxHash:      receipt.TxHash.Hex(),
		PnL:         pnl,
		CapitalUsed: new(big.Int),
		Analysis:    analysis,
		Outcomes: []Outcome{{
			Type: signalSell, Success: true, TxHash: receipt.TxHash.Hex(), Amount: amounts[1],
		}},
	}, nil
}

// Stats 返回策略运行统计。
func (t *Trading) Stats() map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return map[string]any{
		"total_trades":      t.tradeCount,
		"daily_trades":      t.dailyTradeCount,
		"active_positions":  len(t.positions),
		"price_data_points": len(t.priceHistory),
	}
}

// applySlippage 按滑点下限收紧最小可接受产出。
func applySlippage(amount *big.Int, slippageBps int) *big.Int {
	return new(big.Int).Div(
		new(big.Int).Mul(amount, big.NewInt(int64(10000-slippageBps))),
		big.NewInt(10000))
}

// weiToFloat 把 wei 金额转成以太单位的浮点数，仅用于无量纲的比值计算。
func weiToFloat(wei *big.Int) float64 {
	value, _ := new(big.Float).Quo(
		new(big.Float).SetInt(wei),
		big.NewFloat(1e18)).Float64()
	return value
}
