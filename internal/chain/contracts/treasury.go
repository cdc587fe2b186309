package contracts

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Treasury binds an agent's treasury vault.
type Treasury struct {
	addr     common.Address
	contract *bind.BoundContract
	backend  Backend
}

// NewTreasury binds the treasury contract at addr.
func NewTreasury(addr common.Address, backend Backend) (*Treasury, error) {
	contract, err := bound(addr, treasuryABI, backend)
	if err != nil {
		return nil, err
	}
	return &Treasury{addr: addr, contract: contract, backend: backend}, nil
}

// Address returns the bound contract address.
func (t *Treasury) Address() common.Address { return t.addr }

// Balance returns the vault's current native balance.
func (t *Treasury) Balance(ctx context.Context) (*big.Int, error) {
	var out []interface{}
	if err := call(ctx, t.contract, &out, "getBalance"); err != nil {
		return nil, err
	}
	return asBigInt(out), nil
}

// TotalDeposited returns the lifetime deposit total.
func (t *Treasury) TotalDeposited(ctx context.Context) (*big.Int, error) {
	var out []interface{}
	if err := call(ctx, t.contract, &out, "totalDeposited"); err != nil {
		return nil, err
	}
	return asBigInt(out), nil
}

// TotalWithdrawn returns the lifetime withdrawal total.
func (t *Treasury) TotalWithdrawn(ctx context.Context) (*big.Int, error) {
	var out []interface{}
	if err := call(ctx, t.contract, &out, "totalWithdrawn"); err != nil {
		return nil, err
	}
	return asBigInt(out), nil
}

// TotalRevenueDistributed returns the lifetime revenue routed out of the vault.
func (t *Treasury) TotalRevenueDistributed(ctx context.Context) (*big.Int, error) {
	var out []interface{}
	if err := call(ctx, t.contract, &out, "totalRevenueDistributed"); err != nil {
		return nil, err
	}
	return asBigInt(out), nil
}

// Deposit sends value into the vault.
func (t *Treasury) Deposit(ctx context.Context, opts *bind.TransactOpts) (*types.Receipt, error) {
	return transactAndWait(ctx, t.backend, t.contract, opts, "deposit")
}

// Withdraw releases amount to the recipient with an audit reason.
func (t *Treasury) Withdraw(ctx context.Context, opts *bind.TransactOpts, to common.Address, amount *big.Int, reason string) (*types.Receipt, error) {
	return transactAndWait(ctx, t.backend, t.contract, opts, "withdraw", to, amount, reason)
}

// DistributeRevenue moves amount from the vault to the revenue distributor.
func (t *Treasury) DistributeRevenue(ctx context.Context, opts *bind.TransactOpts, distributor common.Address, amount *big.Int) (*types.Receipt, error) {
	return transactAndWait(ctx, t.backend, t.contract, opts, "distributeRevenue", distributor, amount)
}
