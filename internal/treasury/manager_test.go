package treasury

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	aegiserr "Aegis-Engine/internal/errors"
)

type stubTransactor struct{}

func (s *stubTransactor) Address() common.Address { return common.HexToAddress("0x01") }

func (s *stubTransactor) TransactOpts(ctx context.Context, value *big.Int, gasLimit uint64) (*bind.TransactOpts, error) {
	return &bind.TransactOpts{Context: ctx, GasLimit: gasLimit, Value: value}, nil
}

type stubVault struct {
	balance       *big.Int
	balanceErr    error
	distributeErr error
	distributed   int
}

func (s *stubVault) Address() common.Address { return common.HexToAddress("0x02") }

func (s *stubVault) Balance(ctx context.Context) (*big.Int, error) {
	return s.balance, s.balanceErr
}

func (s *stubVault) TotalDeposited(ctx context.Context) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (s *stubVault) TotalWithdrawn(ctx context.Context) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (s *stubVault) TotalRevenueDistributed(ctx context.Context) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (s *stubVault) Deposit(ctx context.Context, opts *bind.TransactOpts) (*types.Receipt, error) {
	return okReceipt(), nil
}

func (s *stubVault) Withdraw(ctx context.Context, opts *bind.TransactOpts, to common.Address, amount *big.Int, reason string) (*types.Receipt, error) {
	return okReceipt(), nil
}

func (s *stubVault) DistributeRevenue(ctx context.Context, opts *bind.TransactOpts, distributor common.Address, amount *big.Int) (*types.Receipt, error) {
	if s.distributeErr != nil {
		return nil, s.distributeErr
	}
	s.distributed++
	return okReceipt(), nil
}

type stubDistributor struct {
	activateErrs []error
	activations  []*big.Int
}

func (s *stubDistributor) Address() common.Address { return common.HexToAddress("0x03") }

func (s *stubDistributor) DepositRevenue(ctx context.Context, opts *bind.TransactOpts) (*types.Receipt, error) {
	s.activations = append(s.activations, opts.Value)
	if len(s.activateErrs) > 0 {
		err := s.activateErrs[0]
		s.activateErrs = s.activateErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return okReceipt(), nil
}

func (s *stubDistributor) CurrentEpoch(ctx context.Context) (*big.Int, error) {
	return big.NewInt(3), nil
}

func (s *stubDistributor) TotalRevenueDeposited(ctx context.Context) (*big.Int, error) {
	return big.NewInt(100), nil
}

func (s *stubDistributor) TotalRevenueClaimed(ctx context.Context) (*big.Int, error) {
	return big.NewInt(40), nil
}

func okReceipt() *types.Receipt {
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: common.HexToHash("0xabc")}
}

func TestBalanceFallsBackToZero(t *testing.T) {
	vault := &stubVault{balanceErr: errors.New("rpc down")}
	m := NewManager(vault, &stubDistributor{}, &stubTransactor{})

	balance := m.Balance(context.Background())
	if balance.Sign() != 0 {
		t.Fatalf("expected zero balance on read failure, got %s", balance)
	}
}

func TestRouteRevenueHappyPath(t *testing.T) {
	vault := &stubVault{balance: big.NewInt(1000)}
	dist := &stubDistributor{}
	m := NewManager(vault, dist, &stubTransactor{})

	txHash, err := m.RouteRevenue(context.Background(), big.NewInt(500))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if txHash == "" {
		t.Fatalf("expected tx hash")
	}
	if vault.distributed != 1 || len(dist.activations) != 1 {
		t.Fatalf("expected one transfer and one activation, got %d/%d", vault.distributed, len(dist.activations))
	}
}

func TestRouteRevenueRetriesActivation(t *testing.T) {
	vault := &stubVault{balance: big.NewInt(1000)}
	dist := &stubDistributor{activateErrs: []error{errors.New("activation reverted")}}
	m := NewManager(vault, dist, &stubTransactor{})

	// 第一次：转账成功、激活失败，应返回部分失败错误。
	_, err := m.RouteRevenue(context.Background(), big.NewInt(500))
	if err == nil {
		t.Fatalf("expected partial failure")
	}
	if aegiserr.CodeOf(err) != CodeTreasuryPartial {
		t.Fatalf("unexpected error code: %s", aegiserr.CodeOf(err))
	}

	// 第二次：先补发上次的激活，再完成本次路由。
	if _, err := m.RouteRevenue(context.Background(), big.NewInt(200)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(dist.activations) != 3 {
		t.Fatalf("expected 3 activation attempts, got %d", len(dist.activations))
	}
	if dist.activations[1].Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("retry should re-activate the pending amount, got %s", dist.activations[1])
	}
	if vault.distributed != 2 {
		t.Fatalf("expected 2 transfers, got %d", vault.distributed)
	}
}

func TestRouteRevenueTransferFailureLeavesNoPending(t *testing.T) {
	vault := &stubVault{balance: big.NewInt(1000), distributeErr: errors.New("transfer reverted")}
	dist := &stubDistributor{}
	m := NewManager(vault, dist, &stubTransactor{})

	if _, err := m.RouteRevenue(context.Background(), big.NewInt(500)); err == nil {
		t.Fatalf("expected error")
	}
	if len(dist.activations) != 0 {
		t.Fatalf("no activation should run when transfer fails")
	}

	// 转账失败不留挂账，下一次路由不应出现补发。
	vault.distributeErr = nil
	if _, err := m.RouteRevenue(context.Background(), big.NewInt(500)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(dist.activations) != 1 {
		t.Fatalf("expected single activation, got %d", len(dist.activations))
	}
}

func TestStats(t *testing.T) {
	vault := &stubVault{balance: big.NewInt(777)}
	m := NewManager(vault, &stubDistributor{}, &stubTransactor{})

	stats, err := m.Stats(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Balance.Cmp(big.NewInt(777)) != 0 {
		t.Fatalf("unexpected balance: %s", stats.Balance)
	}

	revenue, err := m.RevenueStats(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if revenue.CurrentEpoch != 3 {
		t.Fatalf("unexpected epoch: %d", revenue.CurrentEpoch)
	}
}
