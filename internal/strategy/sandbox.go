package strategy

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	aegiserr "Aegis-Engine/internal/errors"
)

// CodeSandboxViolation 表示模块越权访问被沙箱拦截。
const CodeSandboxViolation aegiserr.Code = "SANDBOX_VIOLATION"

// CodeSandboxTimeout 表示模块超出执行时限被强制终止。
const CodeSandboxTimeout aegiserr.Code = "SANDBOX_TIMEOUT"

func init() {
	aegiserr.Register(CodeSandboxViolation, aegiserr.Attributes{
		Message:   "sandbox capability violation",
		Severity:  aegiserr.SeverityWarning,
		Retryable: false,
		Alert:     true,
	})
	aegiserr.Register(CodeSandboxTimeout, aegiserr.Attributes{
		Message:   "sandbox execution timeout",
		Severity:  aegiserr.SeverityWarning,
		Retryable: true,
		Alert:     false,
	})
}

// Capability 是沙箱能力标签，未授予的能力调用即失败。
type Capability string

const (
	CapTreasuryRead     Capability = "treasury:read"
	CapTreasuryWithdraw Capability = "treasury:withdraw"
	CapChainRead        Capability = "chain:read"
)

// ChainReader 是沙箱可见的只读链访问面。
type ChainReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
	BalanceAt(ctx context.Context, addr common.Address) (*big.Int, error)
}

// SandboxInfo 是暴露给模块的非敏感配置快照。
type SandboxInfo struct {
	ChainID   uint64
	MaxAmount *big.Int
}

// Sandbox 是模块执行时拿到的受限环境。金库提取有硬性上限，
// 链访问只读，能力未授予时任何调用都返回错误。
type Sandbox struct {
	treasury  Treasury
	chain     ChainReader
	caps      map[Capability]bool
	maxAmount *big.Int
	info      SandboxInfo
}

func newSandbox(treasury Treasury, chain ChainReader, chainID uint64, maxAmount *big.Int, caps []Capability) *Sandbox {
	granted := make(map[Capability]bool, len(caps))
	for _, cap := range caps {
		granted[cap] = true
	}
	return &Sandbox{
		treasury:  treasury,
		chain:     chain,
		caps:      granted,
		maxAmount: new(big.Int).Set(maxAmount),
		info: SandboxInfo{
			ChainID:   chainID,
			MaxAmount: new(big.Int).Set(maxAmount),
		},
	}
}

func (s *Sandbox) require(cap Capability) error {
	if !s.caps[cap] {
		return aegiserr.New(CodeSandboxViolation, fmt.Sprintf("模块未被授予能力 %s", cap))
	}
	return nil
}

// TreasuryBalance 读取金库余额。
func (s *Sandbox) TreasuryBalance(ctx context.Context) (*big.Int, error) {
	if err := s.require(CapTreasuryRead); err != nil {
		return nil, err
	}
	return s.treasury.Balance(ctx), nil
}

// Withdraw 在沙箱额度内提取金库资金，提取事由打上沙箱标记。
func (s *Sandbox) Withdraw(ctx context.Context, to common.Address, amount *big.Int, reason string) (string, error) {
	if err := s.require(CapTreasuryWithdraw); err != nil {
		return "", err
	}
	if amount.Cmp(s.maxAmount) > 0 {
		return "", aegiserr.New(CodeSandboxViolation,
			fmt.Sprintf("提取金额超过沙箱上限: %s", s.maxAmount.String()))
	}
	return s.treasury.Withdraw(ctx, to, amount, "[sandbox] "+reason)
}

// BlockNumber 读取当前区块高度。
func (s *Sandbox) BlockNumber(ctx context.Context) (uint64, error) {
	if err := s.require(CapChainRead); err != nil {
		return 0, err
	}
	return s.chain.BlockNumber(ctx)
}

// NativeBalance 读取任意地址的原生币余额。
func (s *Sandbox) NativeBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	if err := s.require(CapChainRead); err != nil {
		return nil, err
	}
	return s.chain.BalanceAt(ctx, addr)
}

// Info 返回非敏感配置快照。
func (s *Sandbox) Info() SandboxInfo {
	return SandboxInfo{
		ChainID:   s.info.ChainID,
		MaxAmount: new(big.Int).Set(s.info.MaxAmount),
	}
}
