package contracts

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// StakingVenue binds a native staking venue.
type StakingVenue struct {
	addr     common.Address
	contract *bind.BoundContract
	backend  Backend
}

// NewStakingVenue binds the staking contract at addr.
func NewStakingVenue(addr common.Address, backend Backend) (*StakingVenue, error) {
	contract, err := bound(addr, stakingABI, backend)
	if err != nil {
		return nil, err
	}
	return &StakingVenue{addr: addr, contract: contract, backend: backend}, nil
}

// Address returns the bound venue address.
func (s *StakingVenue) Address() common.Address { return s.addr }

// Stake deposits the attached native value into the venue.
func (s *StakingVenue) Stake(ctx context.Context, opts *bind.TransactOpts) (*types.Receipt, error) {
	return transactAndWait(ctx, s.backend, s.contract, opts, "stake")
}

// Unstake withdraws amount from the venue.
func (s *StakingVenue) Unstake(ctx context.Context, opts *bind.TransactOpts, amount *big.Int) (*types.Receipt, error) {
	return transactAndWait(ctx, s.backend, s.contract, opts, "unstake", amount)
}

// ClaimReward harvests accrued rewards.
func (s *StakingVenue) ClaimReward(ctx context.Context, opts *bind.TransactOpts) (*types.Receipt, error) {
	return transactAndWait(ctx, s.backend, s.contract, opts, "claimReward")
}

// Staked returns user's current staked balance.
func (s *StakingVenue) Staked(ctx context.Context, user common.Address) (*big.Int, error) {
	var out []interface{}
	if err := call(ctx, s.contract, &out, "getStaked", user); err != nil {
		return nil, err
	}
	return asBigInt(out), nil
}

// Earned returns user's unclaimed reward balance.
func (s *StakingVenue) Earned(ctx context.Context, user common.Address) (*big.Int, error) {
	var out []interface{}
	if err := call(ctx, s.contract, &out, "earned", user); err != nil {
		return nil, err
	}
	return asBigInt(out), nil
}
