// Package treasury 封装金库与收益分配合约的资金操作。
package treasury

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"Aegis-Engine/internal/chain"
	"Aegis-Engine/internal/chain/contracts"
	aegiserr "Aegis-Engine/internal/errors"
	"Aegis-Engine/pkg/logger"
)

// CodeTreasuryPartial 表示收益路由只完成了转账、尚未激活分配纪元。
const CodeTreasuryPartial aegiserr.Code = "TREASURY_PARTIAL"

func init() {
	aegiserr.Register(CodeTreasuryPartial, aegiserr.Attributes{
		Message:   "revenue routed but epoch activation pending",
		Severity:  aegiserr.SeverityWarning,
		Retryable: true,
		Alert:     true,
	})
}

const (
	gasLimitWithdraw   = 200000
	gasLimitDeposit    = 100000
	gasLimitDistribute = 200000
	gasLimitActivate   = 200000
)

// VaultContract 抽象金库合约绑定。
type VaultContract interface {
	Address() common.Address
	Balance(ctx context.Context) (*big.Int, error)
	TotalDeposited(ctx context.Context) (*big.Int, error)
	TotalWithdrawn(ctx context.Context) (*big.Int, error)
	TotalRevenueDistributed(ctx context.Context) (*big.Int, error)
	Deposit(ctx context.Context, opts *bind.TransactOpts) (*types.Receipt, error)
	Withdraw(ctx context.Context, opts *bind.TransactOpts, to common.Address, amount *big.Int, reason string) (*types.Receipt, error)
	DistributeRevenue(ctx context.Context, opts *bind.TransactOpts, distributor common.Address, amount *big.Int) (*types.Receipt, error)
}

// DistributorContract 抽象收益分配合约绑定。
type DistributorContract interface {
	Address() common.Address
	DepositRevenue(ctx context.Context, opts *bind.TransactOpts) (*types.Receipt, error)
	CurrentEpoch(ctx context.Context) (*big.Int, error)
	TotalRevenueDeposited(ctx context.Context) (*big.Int, error)
	TotalRevenueClaimed(ctx context.Context) (*big.Int, error)
}

var (
	_ VaultContract       = (*contracts.Treasury)(nil)
	_ DistributorContract = (*contracts.Distributor)(nil)
)

// Stats 汇总金库的资金状态，全部以 wei 计。
type Stats struct {
	Balance                 *big.Int `json:"balance"`
	TotalDeposited          *big.Int `json:"total_deposited"`
	TotalWithdrawn          *big.Int `json:"total_withdrawn"`
	TotalRevenueDistributed *big.Int `json:"total_revenue_distributed"`
}

// RevenueStats 汇总收益分配合约的状态。
type RevenueStats struct {
	CurrentEpoch          uint64   `json:"current_epoch"`
	TotalRevenueDeposited *big.Int `json:"total_revenue_deposited"`
	TotalRevenueClaimed   *big.Int `json:"total_revenue_claimed"`
}

// Manager 是引擎内的金库门面。
type Manager struct {
	vault       VaultContract
	distributor DistributorContract
	executor    chain.Transactor

	mu sync.Mutex
	// pendingActivation 记录已转入分配合约、但 depositRevenue 尚未成功的金额。
	pendingActivation *big.Int
}

// NewManager 创建金库管理器。
func NewManager(vault VaultContract, distributor DistributorContract, executor chain.Transactor) *Manager {
	return &Manager{vault: vault, distributor: distributor, executor: executor}
}

// Address 返回金库合约地址。
func (m *Manager) Address() common.Address { return m.vault.Address() }

// Balance 返回金库当前余额；链上读取失败时返回 0，引擎据此跳过执行。
func (m *Manager) Balance(ctx context.Context) *big.Int {
	balance, err := m.vault.Balance(ctx)
	if err != nil {
		logger.Named("treasury").Error("查询金库余额失败", "error", err)
		return new(big.Int)
	}
	return balance
}

// Stats 返回金库的完整资金统计。
func (m *Manager) Stats(ctx context.Context) (*Stats, error) {
	balance, err := m.vault.Balance(ctx)
	if err != nil {
		return nil, err
	}
	deposited, err := m.vault.TotalDeposited(ctx)
	if err != nil {
		return nil, err
	}
	withdrawn, err := m.vault.TotalWithdrawn(ctx)
	if err != nil {
		return nil, err
	}
	distributed, err := m.vault.TotalRevenueDistributed(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{
		Balance:                 balance,
		TotalDeposited:          deposited,
		TotalWithdrawn:          withdrawn,
		TotalRevenueDistributed: distributed,
	}, nil
}

// Withdraw 从金库提取资金用于策略执行，返回交易哈希。
func (m *Manager) Withdraw(ctx context.Context, to common.Address, amount *big.Int, reason string) (string, error) {
	opts, err := m.executor.TransactOpts(ctx, nil, gasLimitWithdraw)
	if err != nil {
		return "", err
	}
	receipt, err := m.vault.Withdraw(ctx, opts, to, amount, reason)
	if err != nil {
		logger.Named("treasury").Error("金库提取失败", "amount", amount.String(), "error", err)
		return "", err
	}
	logger.Named("treasury").Info("金库提取完成", "amount", amount.String(), "tx", receipt.TxHash.Hex())
	return receipt.TxHash.Hex(), nil
}

// Deposit 向金库注入资金，返回交易哈希。
func (m *Manager) Deposit(ctx context.Context, amount *big.Int) (string, error) {
	opts, err := m.executor.TransactOpts(ctx, amount, gasLimitDeposit)
	if err != nil {
		return "", err
	}
	receipt, err := m.vault.Deposit(ctx, opts)
	if err != nil {
		logger.Named("treasury").Error("金库存入失败", "amount", amount.String(), "error", err)
		return "", err
	}
	return receipt.TxHash.Hex(), nil
}

// RouteRevenue 把利润路由到收益分配合约。流程分两步：先由金库调用
// distributeRevenue 转账，再由执行器调用 depositRevenue 激活分配纪元。
// 第一步成功而第二步失败时记下待激活金额，下次调用先补发激活，
// 避免资金卡在分配合约里收不到纪元。
func (m *Manager) RouteRevenue(ctx context.Context, amount *big.Int) (string, error) {
	m.mu.Lock()
	pending := m.pendingActivation
	m.mu.Unlock()

	if pending != nil {
		if _, err := m.activate(ctx, pending); err != nil {
			return "", aegiserr.Wrap(CodeTreasuryPartial, err, "补发纪元激活失败")
		}
		m.mu.Lock()
		m.pendingActivation = nil
		m.mu.Unlock()
		logger.Named("treasury").Info("已补发纪元激活", "amount", pending.String())
	}

	opts, err := m.executor.TransactOpts(ctx, nil, gasLimitDistribute)
	if err != nil {
		return "", err
	}
	if _, err := m.vault.DistributeRevenue(ctx, opts, m.distributor.Address(), amount); err != nil {
		logger.Named("treasury").Error("收益转账失败", "amount", amount.String(), "error", err)
		return "", err
	}

	receipt, err := m.activate(ctx, amount)
	if err != nil {
		m.mu.Lock()
		m.pendingActivation = new(big.Int).Set(amount)
		m.mu.Unlock()
		return "", aegiserr.Wrap(CodeTreasuryPartial, err, "收益已转账但纪元未激活")
	}

	logger.Named("treasury").Info("收益路由完成", "amount", amount.String(), "tx", receipt.TxHash.Hex())
	return receipt.TxHash.Hex(), nil
}

// activate 调用分配合约的 depositRevenue 创建分配纪元。
func (m *Manager) activate(ctx context.Context, amount *big.Int) (*types.Receipt, error) {
	opts, err := m.executor.TransactOpts(ctx, amount, gasLimitActivate)
	if err != nil {
		return nil, err
	}
	return m.distributor.DepositRevenue(ctx, opts)
}

// RevenueStats 返回收益分配合约的状态。
func (m *Manager) RevenueStats(ctx context.Context) (*RevenueStats, error) {
	epoch, err := m.distributor.CurrentEpoch(ctx)
	if err != nil {
		return nil, err
	}
	deposited, err := m.distributor.TotalRevenueDeposited(ctx)
	if err != nil {
		return nil, err
	}
	claimed, err := m.distributor.TotalRevenueClaimed(ctx)
	if err != nil {
		return nil, err
	}
	return &RevenueStats{
		CurrentEpoch:          epoch.Uint64(),
		TotalRevenueDeposited: deposited,
		TotalRevenueClaimed:   claimed,
	}, nil
}
