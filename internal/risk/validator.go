// Package risk 在资金离开金库之前做链下预校验，链上 RiskController 仍是最终裁决者。
package risk

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"Aegis-Engine/internal/chain"
	"Aegis-Engine/internal/chain/contracts"
	aegiserr "Aegis-Engine/internal/errors"
	"Aegis-Engine/pkg/logger"
)

// CodeRiskRejected 表示链上风控合约拒绝了本次执行。
const CodeRiskRejected aegiserr.Code = "RISK_REJECTED"

func init() {
	aegiserr.Register(CodeRiskRejected, aegiserr.Attributes{
		Message:   "risk controller rejected execution",
		Severity:  aegiserr.SeverityWarning,
		Retryable: false,
		Alert:     true,
	})
}

const (
	gasLimitValidate      = 200000
	gasLimitRecord        = 200000
	gasLimitEmergencyStop = 100000
)

var bpsDenominator = big.NewInt(10000)

// Decision 是链下预校验的结论。
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

// Status 汇总风控合约的当前状态。
type Status struct {
	EmergencyStop     bool   `json:"emergency_stop"`
	GovernanceFreeze  bool   `json:"governance_freeze"`
	DrawdownBps       uint64 `json:"drawdown_bps"`
	DailyRemainingBps uint64 `json:"daily_remaining_bps"`
}

// Controller 是引擎与策略消费的风控门面。
type Controller interface {
	PreValidate(ctx context.Context, amount, treasuryBalance *big.Int) Decision
	ValidateOnChain(ctx context.Context, amount *big.Int) error
	RecordExecution(ctx context.Context, pnl *big.Int) (string, error)
	TriggerEmergencyStop(ctx context.Context) error
	Status(ctx context.Context) (*Status, error)
}

var _ Controller = (*Validator)(nil)

// ControllerContract 抽象风控合约绑定，便于测试替换。
type ControllerContract interface {
	Address() common.Address
	EmergencyStop(ctx context.Context) (bool, error)
	GovernanceFreeze(ctx context.Context) (bool, error)
	MaxCapitalAllocationBps(ctx context.Context) (*big.Int, error)
	MaxDrawdownBps(ctx context.Context) (*big.Int, error)
	DrawdownPct(ctx context.Context) (*big.Int, error)
	DailyRemainingBps(ctx context.Context) (*big.Int, error)
	ValidateExecution(ctx context.Context, opts *bind.TransactOpts, amount *big.Int) (*types.Receipt, error)
	RecordExecution(ctx context.Context, opts *bind.TransactOpts, pnl *big.Int) (*types.Receipt, error)
	SetEmergencyStop(ctx context.Context, opts *bind.TransactOpts, stopped bool) (*types.Receipt, error)
}

var _ ControllerContract = (*contracts.RiskController)(nil)

// Validator 将风控合约包装为引擎内的风险门。
type Validator struct {
	controller ControllerContract
	executor   chain.Transactor
}

// NewValidator 创建风险门实例。
func NewValidator(controller ControllerContract, executor chain.Transactor) *Validator {
	return &Validator{controller: controller, executor: executor}
}

// PreValidate 按固定顺序做链下预检：急停、治理冻结、单笔额度、回撤、当日额度。
// 任何一次链上读取失败都按拒绝处理，绝不放行。
func (v *Validator) PreValidate(ctx context.Context, amount, treasuryBalance *big.Int) Decision {
	stopped, err := v.controller.EmergencyStop(ctx)
	if err != nil {
		return denied(err)
	}
	if stopped {
		return Decision{Allowed: false, Reason: "Emergency stop active"}
	}

	frozen, err := v.controller.GovernanceFreeze(ctx)
	if err != nil {
		return denied(err)
	}
	if frozen {
		return Decision{Allowed: false, Reason: "Governance freeze active"}
	}

	maxAllocBps, err := v.controller.MaxCapitalAllocationBps(ctx)
	if err != nil {
		return denied(err)
	}
	maxSingle := new(big.Int).Div(new(big.Int).Mul(treasuryBalance, maxAllocBps), bpsDenominator)
	if amount.Cmp(maxSingle) > 0 {
		return Decision{
			Allowed: false,
			Reason:  fmt.Sprintf("Amount %s exceeds max allocation %s", amount.String(), maxSingle.String()),
		}
	}

	drawdownBps, err := v.controller.DrawdownPct(ctx)
	if err != nil {
		return denied(err)
	}
	maxDrawdownBps, err := v.controller.MaxDrawdownBps(ctx)
	if err != nil {
		return denied(err)
	}
	if drawdownBps.Cmp(maxDrawdownBps) >= 0 {
		return Decision{
			Allowed: false,
			Reason:  fmt.Sprintf("Drawdown %sbps >= max %sbps", drawdownBps.String(), maxDrawdownBps.String()),
		}
	}

	dailyRemaining, err := v.controller.DailyRemainingBps(ctx)
	if err != nil {
		return denied(err)
	}
	// 金库为空时按超出上限处理，避免除零。
	neededBps := new(big.Int).Add(bpsDenominator, big.NewInt(1))
	if treasuryBalance.Sign() > 0 {
		neededBps = new(big.Int).Div(new(big.Int).Mul(amount, bpsDenominator), treasuryBalance)
	}
	if neededBps.Cmp(dailyRemaining) > 0 {
		return Decision{
			Allowed: false,
			Reason:  fmt.Sprintf("Daily limit exhausted. Remaining: %sbps, needed: %sbps", dailyRemaining.String(), neededBps.String()),
		}
	}

	return Decision{Allowed: true, Reason: "OK"}
}

// ValidateOnChain 在真正动用资金前调用链上校验交易。
func (v *Validator) ValidateOnChain(ctx context.Context, amount *big.Int) error {
	opts, err := v.executor.TransactOpts(ctx, nil, gasLimitValidate)
	if err != nil {
		return err
	}
	if _, err := v.controller.ValidateExecution(ctx, opts, amount); err != nil {
		return aegiserr.Wrap(CodeRiskRejected, err, "链上风控校验未通过")
	}
	return nil
}

// RecordExecution 把已实现盈亏写回风控合约，返回交易哈希。
func (v *Validator) RecordExecution(ctx context.Context, pnl *big.Int) (string, error) {
	opts, err := v.executor.TransactOpts(ctx, nil, gasLimitRecord)
	if err != nil {
		return "", err
	}
	receipt, err := v.controller.RecordExecution(ctx, opts, pnl)
	if err != nil {
		logger.Named("risk").Error("记录执行结果失败", "error", err)
		return "", err
	}
	return receipt.TxHash.Hex(), nil
}

// TriggerEmergencyStop 主动拉下急停闸。
func (v *Validator) TriggerEmergencyStop(ctx context.Context) error {
	opts, err := v.executor.TransactOpts(ctx, nil, gasLimitEmergencyStop)
	if err != nil {
		return err
	}
	if _, err := v.controller.SetEmergencyStop(ctx, opts, true); err != nil {
		logger.Named("risk").Error("触发急停失败", "error", err)
		return err
	}
	logger.Audit().Warn("急停已触发", "controller", v.controller.Address().Hex())
	return nil
}

// Status 返回风控合约的当前快照。
func (v *Validator) Status(ctx context.Context) (*Status, error) {
	stopped, err := v.controller.EmergencyStop(ctx)
	if err != nil {
		return nil, err
	}
	frozen, err := v.controller.GovernanceFreeze(ctx)
	if err != nil {
		return nil, err
	}
	drawdown, err := v.controller.DrawdownPct(ctx)
	if err != nil {
		return nil, err
	}
	remaining, err := v.controller.DailyRemainingBps(ctx)
	if err != nil {
		return nil, err
	}
	return &Status{
		EmergencyStop:     stopped,
		GovernanceFreeze:  frozen,
		DrawdownBps:       drawdown.Uint64(),
		DailyRemainingBps: remaining.Uint64(),
	}, nil
}

func denied(err error) Decision {
	return Decision{Allowed: false, Reason: fmt.Sprintf("Risk check failed: %v", err)}
}
