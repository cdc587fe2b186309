package risk

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type stubController struct {
	stopped        bool
	frozen         bool
	maxAllocBps    int64
	maxDrawdownBps int64
	drawdownBps    int64
	dailyRemaining int64
	readErr        error
}

func (s *stubController) Address() common.Address { return common.Address{} }

func (s *stubController) EmergencyStop(ctx context.Context) (bool, error) {
	return s.stopped, s.readErr
}

func (s *stubController) GovernanceFreeze(ctx context.Context) (bool, error) {
	return s.frozen, nil
}

func (s *stubController) MaxCapitalAllocationBps(ctx context.Context) (*big.Int, error) {
	return big.NewInt(s.maxAllocBps), nil
}

func (s *stubController) MaxDrawdownBps(ctx context.Context) (*big.Int, error) {
	return big.NewInt(s.maxDrawdownBps), nil
}

func (s *stubController) DrawdownPct(ctx context.Context) (*big.Int, error) {
	return big.NewInt(s.drawdownBps), nil
}

func (s *stubController) DailyRemainingBps(ctx context.Context) (*big.Int, error) {
	return big.NewInt(s.dailyRemaining), nil
}

func (s *stubController) ValidateExecution(ctx context.Context, opts *bind.TransactOpts, amount *big.Int) (*types.Receipt, error) {
	return &types.Receipt{Status: types.ReceiptStatusSuccessful}, nil
}

func (s *stubController) RecordExecution(ctx context.Context, opts *bind.TransactOpts, pnl *big.Int) (*types.Receipt, error) {
	return &types.Receipt{Status: types.ReceiptStatusSuccessful}, nil
}

func (s *stubController) SetEmergencyStop(ctx context.Context, opts *bind.TransactOpts, stopped bool) (*types.Receipt, error) {
	return &types.Receipt{Status: types.ReceiptStatusSuccessful}, nil
}

func healthyController() *stubController {
	return &stubController{
		maxAllocBps:    2000,
		maxDrawdownBps: 3000,
		drawdownBps:    100,
		dailyRemaining: 5000,
	}
}

func TestPreValidateAllows(t *testing.T) {
	v := NewValidator(healthyController(), nil)

	decision := v.PreValidate(context.Background(), big.NewInt(100), big.NewInt(10000))
	if !decision.Allowed {
		t.Fatalf("expected allowed, got reason: %s", decision.Reason)
	}
	if decision.Reason != "OK" {
		t.Fatalf("unexpected reason: %s", decision.Reason)
	}
}

func TestPreValidateEmergencyStop(t *testing.T) {
	ctrl := healthyController()
	ctrl.stopped = true
	v := NewValidator(ctrl, nil)

	decision := v.PreValidate(context.Background(), big.NewInt(1), big.NewInt(10000))
	if decision.Allowed {
		t.Fatalf("expected denial")
	}
	if decision.Reason != "Emergency stop active" {
		t.Fatalf("unexpected reason: %s", decision.Reason)
	}
}

func TestPreValidateGovernanceFreeze(t *testing.T) {
	ctrl := healthyController()
	ctrl.frozen = true
	v := NewValidator(ctrl, nil)

	decision := v.PreValidate(context.Background(), big.NewInt(1), big.NewInt(10000))
	if decision.Allowed || decision.Reason != "Governance freeze active" {
		t.Fatalf("unexpected decision: %+v", decision)
	}
}

func TestPreValidateAllocationCeiling(t *testing.T) {
	v := NewValidator(healthyController(), nil)

	// 2000bps of 10000 is 2000; asking for more must be rejected.
	decision := v.PreValidate(context.Background(), big.NewInt(2001), big.NewInt(10000))
	if decision.Allowed {
		t.Fatalf("expected denial")
	}
	if !strings.Contains(decision.Reason, "exceeds max allocation") {
		t.Fatalf("unexpected reason: %s", decision.Reason)
	}
}

func TestPreValidateDrawdownBreached(t *testing.T) {
	ctrl := healthyController()
	ctrl.drawdownBps = 3000
	v := NewValidator(ctrl, nil)

	decision := v.PreValidate(context.Background(), big.NewInt(1), big.NewInt(10000))
	if decision.Allowed {
		t.Fatalf("expected denial")
	}
	if !strings.Contains(decision.Reason, "Drawdown") {
		t.Fatalf("unexpected reason: %s", decision.Reason)
	}
}

func TestPreValidateDailyLimit(t *testing.T) {
	ctrl := healthyController()
	ctrl.dailyRemaining = 100
	v := NewValidator(ctrl, nil)

	decision := v.PreValidate(context.Background(), big.NewInt(200), big.NewInt(10000))
	if decision.Allowed {
		t.Fatalf("expected denial")
	}
	if !strings.Contains(decision.Reason, "Daily limit exhausted") {
		t.Fatalf("unexpected reason: %s", decision.Reason)
	}
}

func TestPreValidateEmptyTreasury(t *testing.T) {
	v := NewValidator(healthyController(), nil)

	// 金库为空时任何正数金额都超出当日额度。
	decision := v.PreValidate(context.Background(), big.NewInt(0), big.NewInt(0))
	if decision.Allowed {
		t.Fatalf("expected denial for empty treasury")
	}
}

func TestPreValidateFailsClosed(t *testing.T) {
	ctrl := healthyController()
	ctrl.readErr = errors.New("rpc unreachable")
	v := NewValidator(ctrl, nil)

	decision := v.PreValidate(context.Background(), big.NewInt(1), big.NewInt(10000))
	if decision.Allowed {
		t.Fatalf("chain errors must deny execution")
	}
	if !strings.Contains(decision.Reason, "Risk check failed") {
		t.Fatalf("unexpected reason: %s", decision.Reason)
	}
}
