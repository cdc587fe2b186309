package strategy

import (
	"context"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"Aegis-Engine/pkg/logger"
)

const (
	signalBullish = "BULLISH"
	signalBearish = "BEARISH"
	signalNeutral = "NEUTRAL"

	signalHistoryLimit  = 100
	defaultSignalWindow = 5
	signalMinSamples    = 3
	signalThreshold     = 0.02

	tierPremium = "premium"
	tierBasic   = "basic"
)

// PriceQuoter 只暴露报价读取，数据策略不发任何交易。
type PriceQuoter interface {
	AmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error)
}

// Signal 是一条可订阅的行情信号。
type Signal struct {
	ID         string         `json:"id"`
	Token      common.Address `json:"token"`
	Price      float64        `json:"price"`
	Signal     string         `json:"signal"`
	Confidence int            `json:"confidence"`
	At         time.Time      `json:"at"`
}

type subscription struct {
	expiry time.Time
	tier   string
	paid   *big.Int
}

// DataServiceParams 是数据订阅策略的参数。
type DataServiceParams struct {
	// SignalWindow 是均价对比采用的历史样本条数。
	SignalWindow     int
	PremiumThreshold *big.Int
}

// DataService 基于链上行情生成信号，并按订阅授权读取。
type DataService struct {
	quoter        PriceQuoter
	wrappedNative common.Address
	params        DataServiceParams
	now           func() time.Time

	mu           sync.Mutex
	subscribers  map[common.Address]*subscription
	signals      []Signal
	totalRevenue *big.Int
	totalSignals int
	lastSignalAt time.Time
}

// DataServiceOption 定义可选配置。
type DataServiceOption func(*DataService)

// WithDataServiceClock 注入时钟，测试用。
func WithDataServiceClock(now func() time.Time) DataServiceOption {
	return func(d *DataService) {
		d.now = now
	}
}

// NewDataService 创建数据订阅策略。
func NewDataService(quoter PriceQuoter, wrappedNative common.Address, params DataServiceParams, opts ...DataServiceOption) *DataService {
	d := &DataService{
		quoter:        quoter,
		wrappedNative: wrappedNative,
		params:        params,
		now:           time.Now,
		subscribers:   make(map[common.Address]*subscription),
		totalRevenue:  new(big.Int),
	}
	if d.params.SignalWindow <= 0 {
		d.params.SignalWindow = defaultSignalWindow
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Kind 返回策略种类。
func (d *DataService) Kind() Kind { return KindDataService }

// GenerateSignal 以 1 个原生币的报价为基准生成一条信号。
// 同资产历史样本不足三条时给出中性信号。
func (d *DataService) GenerateSignal(ctx context.Context, token common.Address) (*Signal, error) {
	probe := new(big.Int).Mul(big.NewInt(1), big.NewInt(1e18))
	path := []common.Address{d.wrappedNative, token}
	amounts, err := d.quoter.AmountsOut(ctx, probe, path)
	if err != nil || len(amounts) < 2 {
		logger.Named("strategy.data").Error("信号生成失败", "error", err)
		return nil, err
	}
	currentPrice := weiToFloat(amounts[1])

	d.mu.Lock()
	defer d.mu.Unlock()

	window := d.params.SignalWindow
	previous := make([]Signal, 0, window)
	for _, s := range d.signals {
		if s.Token == token {
			previous = append(previous, s)
		}
	}
	if len(previous) > window {
		previous = previous[len(previous)-window:]
	}

	kind := signalNeutral
	confidence := 50.0
	if len(previous) >= signalMinSamples {
		var sum float64
		for _, s := range previous {
			sum += s.Price
		}
		avgPrev := sum / float64(len(previous))
		change := (currentPrice - avgPrev) / avgPrev
		if change > signalThreshold {
			kind = signalBullish
			confidence = math.Min(90, 50+math.Abs(change)*1000)
		} else if change < -signalThreshold {
			kind = signalBearish
			confidence = math.Min(90, 50+math.Abs(change)*1000)
		}
	}

	signal := Signal{
		ID:         "SIG-" + strings.ToUpper(uuid.NewString()[:8]),
		Token:      token,
		Price:      currentPrice,
		Signal:     kind,
		Confidence: int(math.Round(confidence)),
		At:         d.now(),
	}
	d.signals = append(d.signals, signal)
	if len(d.signals) > signalHistoryLimit {
		d.signals = d.signals[len(d.signals)-signalHistoryLimit:]
	}
	d.totalSignals++
	d.lastSignalAt = signal.At
	return &signal, nil
}

// ProcessSubscription 记录一笔链上订阅付款。
// 付费达到阈值的订阅升级为 premium 档。
func (d *DataService) ProcessSubscription(user common.Address, amountPaid *big.Int, duration time.Duration) {
	tier := tierBasic
	if amountPaid.Cmp(d.params.PremiumThreshold) >= 0 {
		tier = tierPremium
	}

	d.mu.Lock()
	d.subscribers[user] = &subscription{
		expiry: d.now().Add(duration),
		tier:   tier,
		paid:   new(big.Int).Set(amountPaid),
	}
	d.totalRevenue.Add(d.totalRevenue, amountPaid)
	d.mu.Unlock()

	logger.Named("strategy.data").Info("新增订阅",
		"user", user.Hex(),
		"tier", tier,
		"amount", amountPaid.String())
}

// IsSubscribed 判断订阅是否仍在有效期内。
func (d *DataService) IsSubscribed(user common.Address) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	sub, ok := d.subscribers[user]
	return ok && sub.expiry.After(d.now())
}

// Signals 返回订阅用户可见的最近 count 条信号。
func (d *DataService) Signals(user common.Address, count int) (bool, []Signal) {
	if !d.IsSubscribed(user) {
		return false, nil
	}
	if count <= 0 {
		count = 10
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if count > len(d.signals) {
		count = len(d.signals)
	}
	out := make([]Signal, count)
	copy(out, d.signals[len(d.signals)-count:])
	return true, out
}

// Execute 跑一轮周期：产出一条信号，订阅收入只做累计。
func (d *DataService) Execute(ctx context.Context, execCtx Context) (*Result, error) {
	token := execCtx.TargetAsset
	if token == (common.Address{}) {
		token = d.wrappedNative
	}

	signal, err := d.GenerateSignal(ctx, token)
	if err != nil {
		return &Result{Executed: false, Reason: "Signal generation failed"}, nil
	}

	d.mu.Lock()
	pendingRevenue := new(big.Int).Set(d.totalRevenue)
	d.mu.Unlock()

	return &Result{
		Executed: true,
		Analysis: map[string]any{
			"signal":          signal.Signal,
			"confidence":      signal.Confidence,
			"price":           signal.Price,
			"signal_id":       signal.ID,
			"pending_revenue": pendingRevenue.String(),
		},
	}, nil
}

// Stats 返回策略运行统计。
func (d *DataService) Stats() map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()

	active := 0
	now := d.now()
	for _, sub := range d.subscribers {
		if sub.expiry.After(now) {
			active++
		}
	}
	lastSignal := "Never"
	if !d.lastSignalAt.IsZero() {
		lastSignal = d.lastSignalAt.UTC().Format(time.RFC3339)
	}
	recent := len(d.signals)
	if recent > 5 {
		recent = 5
	}
	return map[string]any{
		"total_signals_generated":    d.totalSignals,
		"active_subscribers":         active,
		"total_subscription_revenue": d.totalRevenue.String(),
		"last_signal_time":           lastSignal,
		"recent_signals":             append([]Signal(nil), d.signals[len(d.signals)-recent:]...),
	}
}
