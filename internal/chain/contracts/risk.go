package contracts

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// RiskController binds an agent's on-chain risk controller.
type RiskController struct {
	addr     common.Address
	contract *bind.BoundContract
	backend  Backend
}

// NewRiskController binds the risk controller at addr.
func NewRiskController(addr common.Address, backend Backend) (*RiskController, error) {
	contract, err := bound(addr, riskControllerABI, backend)
	if err != nil {
		return nil, err
	}
	return &RiskController{addr: addr, contract: contract, backend: backend}, nil
}

// Address returns the bound contract address.
func (r *RiskController) Address() common.Address { return r.addr }

// EmergencyStop reports whether the emergency brake is engaged.
func (r *RiskController) EmergencyStop(ctx context.Context) (bool, error) {
	var out []interface{}
	if err := call(ctx, r.contract, &out, "emergencyStop"); err != nil {
		return false, err
	}
	return asBool(out), nil
}

// GovernanceFreeze reports whether governance has frozen the agent.
func (r *RiskController) GovernanceFreeze(ctx context.Context) (bool, error) {
	var out []interface{}
	if err := call(ctx, r.contract, &out, "governanceFreeze"); err != nil {
		return false, err
	}
	return asBool(out), nil
}

// MaxCapitalAllocationBps returns the per-execution capital ceiling.
func (r *RiskController) MaxCapitalAllocationBps(ctx context.Context) (*big.Int, error) {
	var out []interface{}
	if err := call(ctx, r.contract, &out, "maxCapitalAllocationBps"); err != nil {
		return nil, err
	}
	return asBigInt(out), nil
}

// MaxDrawdownBps returns the configured drawdown ceiling.
func (r *RiskController) MaxDrawdownBps(ctx context.Context) (*big.Int, error) {
	var out []interface{}
	if err := call(ctx, r.contract, &out, "maxDrawdownBps"); err != nil {
		return nil, err
	}
	return asBigInt(out), nil
}

// DrawdownPct returns the current drawdown in basis points.
func (r *RiskController) DrawdownPct(ctx context.Context) (*big.Int, error) {
	var out []interface{}
	if err := call(ctx, r.contract, &out, "getDrawdownPct"); err != nil {
		return nil, err
	}
	return asBigInt(out), nil
}

// DailyRemainingBps returns the remaining daily allocation budget.
func (r *RiskController) DailyRemainingBps(ctx context.Context) (*big.Int, error) {
	var out []interface{}
	if err := call(ctx, r.contract, &out, "getDailyRemainingBps"); err != nil {
		return nil, err
	}
	return asBigInt(out), nil
}

// ValidateExecution runs the controller's own pre-trade validation.
func (r *RiskController) ValidateExecution(ctx context.Context, opts *bind.TransactOpts, amount *big.Int) (*types.Receipt, error) {
	return transactAndWait(ctx, r.backend, r.contract, opts, "validateExecution", amount)
}

// RecordExecution books a realized pnl into the controller's accounting.
func (r *RiskController) RecordExecution(ctx context.Context, opts *bind.TransactOpts, pnl *big.Int) (*types.Receipt, error) {
	return transactAndWait(ctx, r.backend, r.contract, opts, "recordExecution", pnl)
}

// SetEmergencyStop flips the emergency brake.
func (r *RiskController) SetEmergencyStop(ctx context.Context, opts *bind.TransactOpts, stopped bool) (*types.Receipt, error) {
	return transactAndWait(ctx, r.backend, r.contract, opts, "setEmergencyStop", stopped)
}
