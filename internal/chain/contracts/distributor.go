package contracts

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Distributor binds an agent's revenue distributor.
type Distributor struct {
	addr     common.Address
	contract *bind.BoundContract
	backend  Backend
}

// NewDistributor binds the distributor contract at addr.
func NewDistributor(addr common.Address, backend Backend) (*Distributor, error) {
	contract, err := bound(addr, distributorABI, backend)
	if err != nil {
		return nil, err
	}
	return &Distributor{addr: addr, contract: contract, backend: backend}, nil
}

// Address returns the bound contract address.
func (d *Distributor) Address() common.Address { return d.addr }

// DepositRevenue activates a distribution epoch with the attached value.
func (d *Distributor) DepositRevenue(ctx context.Context, opts *bind.TransactOpts) (*types.Receipt, error) {
	return transactAndWait(ctx, d.backend, d.contract, opts, "depositRevenue")
}

// Claimable returns the amount holder can currently claim.
func (d *Distributor) Claimable(ctx context.Context, holder common.Address) (*big.Int, error) {
	var out []interface{}
	if err := call(ctx, d.contract, &out, "getClaimable", holder); err != nil {
		return nil, err
	}
	return asBigInt(out), nil
}

// CurrentEpoch returns the active distribution epoch.
func (d *Distributor) CurrentEpoch(ctx context.Context) (*big.Int, error) {
	var out []interface{}
	if err := call(ctx, d.contract, &out, "currentEpoch"); err != nil {
		return nil, err
	}
	return asBigInt(out), nil
}

// TotalRevenueDeposited returns lifetime revenue paid into the distributor.
func (d *Distributor) TotalRevenueDeposited(ctx context.Context) (*big.Int, error) {
	var out []interface{}
	if err := call(ctx, d.contract, &out, "totalRevenueDeposited"); err != nil {
		return nil, err
	}
	return asBigInt(out), nil
}

// TotalRevenueClaimed returns lifetime revenue claimed by holders.
func (d *Distributor) TotalRevenueClaimed(ctx context.Context) (*big.Int, error) {
	var out []interface{}
	if err := call(ctx, d.contract, &out, "totalRevenueClaimed"); err != nil {
		return nil, err
	}
	return asBigInt(out), nil
}
