package strategy

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type stubQuoter struct {
	quotes   []*big.Int
	quoteIdx int
}

func (s *stubQuoter) AmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	quote := s.quotes[len(s.quotes)-1]
	if s.quoteIdx < len(s.quotes) {
		quote = s.quotes[s.quoteIdx]
		s.quoteIdx++
	}
	return []*big.Int{amountIn, quote}, nil
}

func dataParams() DataServiceParams {
	return DataServiceParams{PremiumThreshold: big.NewInt(1e17)}
}

func TestDataServiceNeutralWithoutHistory(t *testing.T) {
	quoter := &stubQuoter{quotes: []*big.Int{ether(100)}}
	d := NewDataService(quoter, common.Address{}, dataParams())

	signal, err := d.GenerateSignal(context.Background(), common.HexToAddress("0xcc"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if signal.Signal != signalNeutral || signal.Confidence != 50 {
		t.Fatalf("expected neutral signal, got %+v", signal)
	}
}

func TestDataServiceBullishSignal(t *testing.T) {
	// 三个历史样本均价 100，当前价上涨 10%。
	quoter := &stubQuoter{quotes: []*big.Int{ether(100), ether(100), ether(100), ether(110)}}
	d := NewDataService(quoter, common.Address{}, dataParams())
	token := common.HexToAddress("0xcc")

	var last *Signal
	for i := 0; i < 4; i++ {
		signal, err := d.GenerateSignal(context.Background(), token)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		last = signal
	}
	if last.Signal != signalBullish {
		t.Fatalf("expected bullish signal, got %s", last.Signal)
	}
	// 置信度 min(90, 50 + 0.1×1000) = 90。
	if last.Confidence != 90 {
		t.Fatalf("unexpected confidence: %d", last.Confidence)
	}
}

func TestDataServiceSignalWindowBoundsComparison(t *testing.T) {
	// 前五个样本 100,100,100,200,200，当前价 150：
	// 窗口取 3 时均价 166.67，跌幅超过阈值，给出看跌；
	// 默认窗口 5 的均价 140 则会给出看涨。
	quotes := []*big.Int{ether(100), ether(100), ether(100), ether(200), ether(200), ether(150)}
	params := dataParams()
	params.SignalWindow = 3
	d := NewDataService(&stubQuoter{quotes: quotes}, common.Address{}, params)
	token := common.HexToAddress("0xcc")

	var last *Signal
	for i := 0; i < 6; i++ {
		signal, err := d.GenerateSignal(context.Background(), token)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		last = signal
	}
	if last.Signal != signalBearish {
		t.Fatalf("window of 3 must flag the drop as bearish, got %s", last.Signal)
	}

	wide := NewDataService(&stubQuoter{quotes: quotes}, common.Address{}, dataParams())
	for i := 0; i < 6; i++ {
		signal, err := wide.GenerateSignal(context.Background(), token)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		last = signal
	}
	if last.Signal != signalBullish {
		t.Fatalf("default window must flag the rise as bullish, got %s", last.Signal)
	}
}

func TestDataServiceBearishSignal(t *testing.T) {
	quoter := &stubQuoter{quotes: []*big.Int{ether(100), ether(100), ether(100), ether(97)}}
	d := NewDataService(quoter, common.Address{}, dataParams())
	token := common.HexToAddress("0xcc")

	var last *Signal
	for i := 0; i < 4; i++ {
		last, _ = d.GenerateSignal(context.Background(), token)
	}
	if last.Signal != signalBearish {
		t.Fatalf("expected bearish signal, got %s", last.Signal)
	}
}

func TestDataServiceHistoryBounded(t *testing.T) {
	quoter := &stubQuoter{quotes: []*big.Int{ether(100)}}
	d := NewDataService(quoter, common.Address{}, dataParams())
	token := common.HexToAddress("0xcc")

	for i := 0; i < signalHistoryLimit+20; i++ {
		if _, err := d.GenerateSignal(context.Background(), token); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	d.mu.Lock()
	kept := len(d.signals)
	d.mu.Unlock()
	if kept != signalHistoryLimit {
		t.Fatalf("history must be capped at %d, got %d", signalHistoryLimit, kept)
	}
}

func TestDataServiceSubscriptionGating(t *testing.T) {
	quoter := &stubQuoter{quotes: []*big.Int{ether(100)}}
	d := NewDataService(quoter, common.Address{}, dataParams())
	user := common.HexToAddress("0xee")

	if _, err := d.GenerateSignal(context.Background(), common.HexToAddress("0xcc")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.IsSubscribed(user) {
		t.Fatalf("user has no subscription yet")
	}
	if authorized, _ := d.Signals(user, 5); authorized {
		t.Fatalf("unsubscribed user must not read signals")
	}

	d.ProcessSubscription(user, big.NewInt(1e16), time.Hour)
	authorized, signals := d.Signals(user, 5)
	if !authorized || len(signals) != 1 {
		t.Fatalf("subscribed user must read signals: %v/%d", authorized, len(signals))
	}
}

func TestDataServiceSubscriptionExpiry(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	d := NewDataService(&stubQuoter{quotes: []*big.Int{ether(1)}}, common.Address{}, dataParams(), WithDataServiceClock(clock))
	user := common.HexToAddress("0xee")

	d.ProcessSubscription(user, big.NewInt(1e16), time.Hour)
	if !d.IsSubscribed(user) {
		t.Fatalf("subscription should be active")
	}
	now = now.Add(2 * time.Hour)
	if d.IsSubscribed(user) {
		t.Fatalf("subscription should expire")
	}
}

func TestDataServicePremiumTier(t *testing.T) {
	d := NewDataService(&stubQuoter{quotes: []*big.Int{ether(1)}}, common.Address{}, dataParams())
	basic := common.HexToAddress("0xe1")
	premium := common.HexToAddress("0xe2")

	d.ProcessSubscription(basic, big.NewInt(1e16), time.Hour)
	d.ProcessSubscription(premium, big.NewInt(1e17), time.Hour)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.subscribers[basic].tier != tierBasic {
		t.Fatalf("unexpected tier: %s", d.subscribers[basic].tier)
	}
	if d.subscribers[premium].tier != tierPremium {
		t.Fatalf("threshold payment must grant premium: %s", d.subscribers[premium].tier)
	}
}

func TestDataServiceExecute(t *testing.T) {
	quoter := &stubQuoter{quotes: []*big.Int{ether(100)}}
	d := NewDataService(quoter, common.HexToAddress("0xaa"), dataParams())

	result, err := d.Execute(context.Background(), execContext(ether(10), &stubRisk{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Executed {
		t.Fatalf("signal cycle must count as executed")
	}
	if result.Analysis["signal"] != signalNeutral {
		t.Fatalf("unexpected analysis: %v", result.Analysis)
	}
}
