package strategy

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type stubVenue struct {
	addr    common.Address
	staked  *big.Int
	earned  *big.Int
	stakes  int
	claims  int
	unstake int
}

func (s *stubVenue) Address() common.Address { return s.addr }

func (s *stubVenue) Stake(ctx context.Context, opts *bind.TransactOpts) (*types.Receipt, error) {
	s.stakes++
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: common.HexToHash("0x3")}, nil
}

func (s *stubVenue) Unstake(ctx context.Context, opts *bind.TransactOpts, amount *big.Int) (*types.Receipt, error) {
	s.unstake++
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: common.HexToHash("0x4")}, nil
}

func (s *stubVenue) ClaimReward(ctx context.Context, opts *bind.TransactOpts) (*types.Receipt, error) {
	s.claims++
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: common.HexToHash("0x5")}, nil
}

func (s *stubVenue) Staked(ctx context.Context, user common.Address) (*big.Int, error) {
	return s.staked, nil
}

func (s *stubVenue) Earned(ctx context.Context, user common.Address) (*big.Int, error) {
	return s.earned, nil
}

func newStubVenue(hex string) *stubVenue {
	return &stubVenue{
		addr:   common.HexToAddress(hex),
		staked: new(big.Int),
		earned: new(big.Int),
	}
}

func yieldParams() YieldParams {
	return YieldParams{RebalanceInterval: time.Hour, MaxAllocationBps: 2000}
}

func TestYieldCooldownWithoutRewards(t *testing.T) {
	venue := newStubVenue("0x10")
	y := NewYield([]Venue{venue}, &stubSigner{}, yieldParams())

	result, err := y.Execute(context.Background(), execContext(ether(10), &stubRisk{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Executed {
		t.Fatalf("expected no-op inside cooldown")
	}
	if result.Reason != "Not rebalance time yet, no rewards to claim" {
		t.Fatalf("unexpected reason: %s", result.Reason)
	}
}

func TestYieldDepositsIntoFirstVenue(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	first := newStubVenue("0x10")
	second := newStubVenue("0x11")
	y := NewYield([]Venue{first, second}, &stubSigner{}, yieldParams(), WithYieldClock(clock))

	// 越过再平衡冷却期。
	now = now.Add(2 * time.Hour)
	result, err := y.Execute(context.Background(), execContext(ether(10), &stubRisk{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Executed {
		t.Fatalf("expected deposit, got reason: %s", result.Reason)
	}
	if first.stakes != 1 || second.stakes != 0 {
		t.Fatalf("capital must go to the first whitelisted venue: %d/%d", first.stakes, second.stakes)
	}
	// 投入额度 10e18×2000/10000 = 2e18。
	if result.CapitalUsed.Cmp(ether(2)) != 0 {
		t.Fatalf("unexpected capital used: %s", result.CapitalUsed)
	}
}

func TestYieldDepositBlockedByRisk(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	venue := newStubVenue("0x10")
	y := NewYield([]Venue{venue}, &stubSigner{}, yieldParams(), WithYieldClock(clock))

	now = now.Add(2 * time.Hour)
	result, _ := y.Execute(context.Background(), execContext(ether(10), &stubRisk{denyReason: "Drawdown"}))
	if result.Executed || venue.stakes != 0 {
		t.Fatalf("risk denial must block the deposit")
	}
}

func TestYieldNoVenuesConfigured(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	y := NewYield(nil, &stubSigner{}, yieldParams(), WithYieldClock(clock))

	now = now.Add(2 * time.Hour)
	result, _ := y.Execute(context.Background(), execContext(ether(10), &stubRisk{}))
	if result.Executed || result.Reason != "No whitelisted protocols configured" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestYieldRebalanceClaimsAndRecords(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	venue := newStubVenue("0x10")
	y := NewYield([]Venue{venue}, &stubSigner{}, yieldParams(), WithYieldClock(clock))
	gate := &stubRisk{}

	// 先完成一次质押。
	now = now.Add(2 * time.Hour)
	if result, _ := y.Execute(context.Background(), execContext(ether(10), gate)); !result.Executed {
		t.Fatalf("deposit failed: %s", result.Reason)
	}

	// 再次到期时收割，并把收益作为已实现利润回写。
	venue.earned = ether(1)
	now = now.Add(2 * time.Hour)
	result, _ := y.Execute(context.Background(), execContext(ether(10), gate))
	if !result.Executed {
		t.Fatalf("expected claim, got reason: %s", result.Reason)
	}
	if venue.claims != 1 {
		t.Fatalf("expected one claim, got %d", venue.claims)
	}
	if len(gate.recorded) != 1 || gate.recorded[0].Cmp(ether(1)) != 0 {
		t.Fatalf("claimed yield must be recorded: %v", gate.recorded)
	}
}

func TestYieldCooldownClaimsHeldVenuesOnly(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	held := newStubVenue("0x10")
	idle := newStubVenue("0x11")
	y := NewYield([]Venue{held, idle}, &stubSigner{}, yieldParams(), WithYieldClock(clock))
	gate := &stubRisk{}

	now = now.Add(2 * time.Hour)
	if result, _ := y.Execute(context.Background(), execContext(ether(10), gate)); !result.Executed {
		t.Fatalf("deposit failed")
	}

	// 冷却期内只收割持仓场所，不回写盈亏。
	held.earned = ether(1)
	idle.earned = ether(5)
	now = now.Add(30 * time.Minute)
	result, _ := y.Execute(context.Background(), execContext(ether(10), gate))
	if !result.Executed {
		t.Fatalf("expected claim during cooldown")
	}
	if held.claims != 1 || idle.claims != 0 {
		t.Fatalf("only held venues may be claimed: %d/%d", held.claims, idle.claims)
	}
	if len(gate.recorded) != 0 {
		t.Fatalf("cooldown claims must not be recorded as pnl")
	}
}
