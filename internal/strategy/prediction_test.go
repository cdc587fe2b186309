package strategy

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"Aegis-Engine/internal/chain/contracts"
)

type stubMarket struct {
	epoch     *big.Int
	round     *contracts.Round
	claimable map[string]bool
	bullBets  int
	bearBets  int
	claims    int
}

func (s *stubMarket) Address() common.Address {
	return common.HexToAddress("0x00000000000000000000000000000000000000dd")
}

func (s *stubMarket) CurrentEpoch(ctx context.Context) (*big.Int, error) {
	return s.epoch, nil
}

func (s *stubMarket) RoundAt(ctx context.Context, epoch *big.Int) (*contracts.Round, error) {
	return s.round, nil
}

func (s *stubMarket) BetBull(ctx context.Context, opts *bind.TransactOpts, epoch *big.Int) (*types.Receipt, error) {
	s.bullBets++
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: common.HexToHash("0x6")}, nil
}

func (s *stubMarket) BetBear(ctx context.Context, opts *bind.TransactOpts, epoch *big.Int) (*types.Receipt, error) {
	s.bearBets++
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: common.HexToHash("0x7")}, nil
}

func (s *stubMarket) Claimable(ctx context.Context, epoch *big.Int, user common.Address) (bool, error) {
	return s.claimable[epoch.String()], nil
}

func (s *stubMarket) Claim(ctx context.Context, opts *bind.TransactOpts, epochs []*big.Int) (*types.Receipt, error) {
	s.claims++
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: common.HexToHash("0x8")}, nil
}

func predictionParams() PredictionParams {
	return PredictionParams{
		MinSpreadBps:   2000,
		MaxPositionBps: 500,
		MinBet:         big.NewInt(1e15),
	}
}

func imbalancedRound() *contracts.Round {
	// 80% 多头对 20% 空头，价差 6000bps。
	return &contracts.Round{
		TotalAmount: ether(10),
		BullAmount:  ether(8),
		BearAmount:  ether(2),
	}
}

func TestPredictionEmptyRound(t *testing.T) {
	market := &stubMarket{
		epoch: big.NewInt(7),
		round: &contracts.Round{TotalAmount: new(big.Int), BullAmount: new(big.Int), BearAmount: new(big.Int)},
	}
	p := NewPrediction(market, &stubSigner{}, predictionParams())

	result, err := p.Execute(context.Background(), execContext(ether(10), &stubRisk{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Executed {
		t.Fatalf("empty round must not execute")
	}
	if result.Reason != "No bets placed yet" {
		t.Fatalf("unexpected reason: %s", result.Reason)
	}
}

func TestPredictionSpreadBelowThreshold(t *testing.T) {
	market := &stubMarket{
		epoch: big.NewInt(7),
		round: &contracts.Round{
			TotalAmount: ether(10),
			BullAmount:  ether(5),
			BearAmount:  ether(5),
		},
	}
	p := NewPrediction(market, &stubSigner{}, predictionParams())

	result, _ := p.Execute(context.Background(), execContext(ether(10), &stubRisk{}))
	if result.Executed {
		t.Fatalf("balanced round must not execute")
	}
	if market.bullBets+market.bearBets != 0 {
		t.Fatalf("no bet should be placed")
	}
}

func TestPredictionBetsOnHigherPayoutSide(t *testing.T) {
	market := &stubMarket{epoch: big.NewInt(7), round: imbalancedRound()}
	p := NewPrediction(market, &stubSigner{}, predictionParams())

	result, err := p.Execute(context.Background(), execContext(ether(10), &stubRisk{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Executed {
		t.Fatalf("expected bet, got reason: %s", result.Reason)
	}
	// 空头一侧下注更少、赔率更高。
	if market.bearBets != 1 || market.bullBets != 0 {
		t.Fatalf("expected bear bet: bull=%d bear=%d", market.bullBets, market.bearBets)
	}
	// 押注规模 10e18×500/10000 = 0.5e18。
	expected := new(big.Int).Div(ether(10), big.NewInt(20))
	if result.CapitalUsed.Cmp(expected) != 0 {
		t.Fatalf("unexpected bet size: %s", result.CapitalUsed)
	}
	if p.Stats()["pending_claims"] != 1 {
		t.Fatalf("bet epoch must be tracked for claiming")
	}
}

func TestPredictionBetFloor(t *testing.T) {
	market := &stubMarket{epoch: big.NewInt(7), round: imbalancedRound()}
	p := NewPrediction(market, &stubSigner{}, predictionParams())

	// 金库很小，额度算出来低于最小注，押注应抬到下限。
	result, _ := p.Execute(context.Background(), execContext(big.NewInt(1e12), &stubRisk{}))
	if !result.Executed {
		t.Fatalf("expected bet, got reason: %s", result.Reason)
	}
	if result.CapitalUsed.Cmp(big.NewInt(1e15)) != 0 {
		t.Fatalf("bet must be floored at the minimum, got %s", result.CapitalUsed)
	}
}

func TestPredictionClaimsSettledRounds(t *testing.T) {
	market := &stubMarket{
		epoch:     big.NewInt(7),
		round:     imbalancedRound(),
		claimable: map[string]bool{},
	}
	p := NewPrediction(market, &stubSigner{}, predictionParams())
	gate := &stubRisk{}

	if result, _ := p.Execute(context.Background(), execContext(ether(10), gate)); !result.Executed {
		t.Fatalf("setup bet failed")
	}

	// 回合结算后，下一周期先领取赔付。
	market.claimable["7"] = true
	market.round = &contracts.Round{
		TotalAmount: ether(10),
		BullAmount:  ether(5),
		BearAmount:  ether(5),
	}
	result, _ := p.Execute(context.Background(), execContext(ether(10), gate))
	if market.claims != 1 {
		t.Fatalf("expected one claim, got %d", market.claims)
	}
	if !result.Executed {
		t.Fatalf("claim alone counts as execution")
	}
	if p.Stats()["pending_claims"] != 0 {
		t.Fatalf("claimed epoch must be dropped from tracking")
	}
}

func TestPredictionRiskBlocked(t *testing.T) {
	market := &stubMarket{epoch: big.NewInt(7), round: imbalancedRound()}
	p := NewPrediction(market, &stubSigner{}, predictionParams())

	result, _ := p.Execute(context.Background(), execContext(ether(10), &stubRisk{denyReason: "frozen"}))
	if result.Executed || market.bullBets+market.bearBets != 0 {
		t.Fatalf("risk denial must block the bet")
	}
}

func TestPredictionUnconfiguredMarket(t *testing.T) {
	p := NewPrediction(nil, &stubSigner{}, predictionParams())

	result, err := p.Execute(context.Background(), execContext(ether(10), &stubRisk{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Executed || result.Reason != "No prediction contract configured" {
		t.Fatalf("unexpected result: %+v", result)
	}
}
