// Package strategy 定义引擎支持的策略集合。策略种类是封闭枚举，
// 未知种类在装载阶段即被拒绝。
package strategy

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	aegiserr "Aegis-Engine/internal/errors"
	"Aegis-Engine/internal/risk"
)

// CodeStrategyFailure 表示策略执行过程中出现不可恢复的故障。
const CodeStrategyFailure aegiserr.Code = "STRATEGY_FAILURE"

func init() {
	aegiserr.Register(CodeStrategyFailure, aegiserr.Attributes{
		Message:   "strategy execution failed",
		Severity:  aegiserr.SeverityWarning,
		Retryable: true,
		Alert:     false,
	})
}

// Kind 是策略种类。
type Kind string

const (
	KindTrading     Kind = "trading"
	KindYield       Kind = "yield"
	KindPrediction  Kind = "prediction"
	KindDataService Kind = "data_service"
	KindGeneric     Kind = "generic"
)

// ParseKind 解析策略种类字符串，未知种类返回错误。
func ParseKind(raw string) (Kind, error) {
	switch Kind(raw) {
	case KindTrading, KindYield, KindPrediction, KindDataService, KindGeneric:
		return Kind(raw), nil
	default:
		return "", aegiserr.New(aegiserr.CodeInvalidArgument, fmt.Sprintf("未知的策略种类: %q", raw))
	}
}

// Treasury 是策略可见的金库门面。
type Treasury interface {
	Balance(ctx context.Context) *big.Int
	Withdraw(ctx context.Context, to common.Address, amount *big.Int, reason string) (string, error)
}

// Context 携带一次执行周期的输入。
type Context struct {
	// TreasuryBalance 是本周期开始时的金库余额快照，wei 计。
	TreasuryBalance *big.Int
	Risk            risk.Controller
	Treasury        Treasury
	// TargetAsset 仅交易与数据策略使用。
	TargetAsset common.Address
}

// Outcome 是策略内部一次动作的结果。
type Outcome struct {
	Type    string   `json:"type"`
	Success bool     `json:"success"`
	TxHash  string   `json:"tx_hash,omitempty"`
	Amount  *big.Int `json:"amount,omitempty"`
	Detail  string   `json:"detail,omitempty"`
}

// Result 是一次策略执行的汇总结果。
type Result struct {
	Executed    bool           `json:"executed"`
	Reason      string         `json:"reason,omitempty"`
	TxHash      string         `json:"tx_hash,omitempty"`
	PnL         *big.Int       `json:"pnl,omitempty"`
	CapitalUsed *big.Int       `json:"capital_used,omitempty"`
	Analysis    map[string]any `json:"analysis,omitempty"`
	Outcomes    []Outcome      `json:"outcomes,omitempty"`
}

// Strategy 是所有策略实现的统一接口。
type Strategy interface {
	Kind() Kind
	Execute(ctx context.Context, execCtx Context) (*Result, error)
	Stats() map[string]any
}
