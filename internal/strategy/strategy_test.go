package strategy

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"Aegis-Engine/internal/risk"
)

// 共享测试桩。

type stubRisk struct {
	denyReason string
	onChainErr error
	recorded   []*big.Int
}

func (s *stubRisk) PreValidate(ctx context.Context, amount, treasuryBalance *big.Int) risk.Decision {
	if s.denyReason != "" {
		return risk.Decision{Allowed: false, Reason: s.denyReason}
	}
	return risk.Decision{Allowed: true, Reason: "OK"}
}

func (s *stubRisk) ValidateOnChain(ctx context.Context, amount *big.Int) error {
	return s.onChainErr
}

func (s *stubRisk) RecordExecution(ctx context.Context, pnl *big.Int) (string, error) {
	s.recorded = append(s.recorded, new(big.Int).Set(pnl))
	return "0xrecorded", nil
}

func (s *stubRisk) TriggerEmergencyStop(ctx context.Context) error { return nil }

func (s *stubRisk) Status(ctx context.Context) (*risk.Status, error) {
	return &risk.Status{}, nil
}

type stubStrategyTreasury struct {
	balance     *big.Int
	withdrawals []string
}

func (s *stubStrategyTreasury) Balance(ctx context.Context) *big.Int {
	if s.balance == nil {
		return new(big.Int)
	}
	return s.balance
}

func (s *stubStrategyTreasury) Withdraw(ctx context.Context, to common.Address, amount *big.Int, reason string) (string, error) {
	s.withdrawals = append(s.withdrawals, reason)
	return "0xwithdraw", nil
}

type stubSigner struct{}

func (s *stubSigner) Address() common.Address {
	return common.HexToAddress("0x00000000000000000000000000000000000000aa")
}

func (s *stubSigner) TransactOpts(ctx context.Context, value *big.Int, gasLimit uint64) (*bind.TransactOpts, error) {
	return &bind.TransactOpts{Context: ctx, GasLimit: gasLimit, Value: value}, nil
}

func TestParseKind(t *testing.T) {
	for _, raw := range []string{"trading", "yield", "prediction", "data_service", "generic"} {
		kind, err := ParseKind(raw)
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", raw, err)
		}
		if string(kind) != raw {
			t.Fatalf("unexpected kind: %s", kind)
		}
	}
}

func TestParseKindRejectsUnknown(t *testing.T) {
	if _, err := ParseKind("martingale"); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
	if _, err := ParseKind(""); err == nil {
		t.Fatalf("expected error for empty kind")
	}
}
