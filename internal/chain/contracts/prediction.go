package contracts

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Round mirrors the prediction market's round storage slot.
type Round struct {
	Epoch               *big.Int
	StartTimestamp      *big.Int
	LockTimestamp       *big.Int
	CloseTimestamp      *big.Int
	LockPrice           *big.Int
	ClosePrice          *big.Int
	LockOracleId        *big.Int
	CloseOracleId       *big.Int
	TotalAmount         *big.Int
	BullAmount          *big.Int
	BearAmount          *big.Int
	RewardBaseCalAmount *big.Int
	RewardAmount        *big.Int
	OracleCalled        bool
}

// PredictionMarket binds a bull/bear prediction market.
type PredictionMarket struct {
	addr     common.Address
	contract *bind.BoundContract
	backend  Backend
}

// NewPredictionMarket binds the market contract at addr.
func NewPredictionMarket(addr common.Address, backend Backend) (*PredictionMarket, error) {
	contract, err := bound(addr, predictionABI, backend)
	if err != nil {
		return nil, err
	}
	return &PredictionMarket{addr: addr, contract: contract, backend: backend}, nil
}

// Address returns the bound market address.
func (p *PredictionMarket) Address() common.Address { return p.addr }

// CurrentEpoch returns the market's live epoch number.
func (p *PredictionMarket) CurrentEpoch(ctx context.Context) (*big.Int, error) {
	var out []interface{}
	if err := call(ctx, p.contract, &out, "currentEpoch"); err != nil {
		return nil, err
	}
	return asBigInt(out), nil
}

// RoundAt returns the storage record for epoch. The rounds getter flattens
// the struct into fourteen return slots, so the binding reads them positionally.
func (p *PredictionMarket) RoundAt(ctx context.Context, epoch *big.Int) (*Round, error) {
	var out []interface{}
	if err := call(ctx, p.contract, &out, "rounds", epoch); err != nil {
		return nil, err
	}
	round := &Round{
		Epoch:               out[0].(*big.Int),
		StartTimestamp:      out[1].(*big.Int),
		LockTimestamp:       out[2].(*big.Int),
		CloseTimestamp:      out[3].(*big.Int),
		LockPrice:           out[4].(*big.Int),
		ClosePrice:          out[5].(*big.Int),
		LockOracleId:        out[6].(*big.Int),
		CloseOracleId:       out[7].(*big.Int),
		TotalAmount:         out[8].(*big.Int),
		BullAmount:          out[9].(*big.Int),
		BearAmount:          out[10].(*big.Int),
		RewardBaseCalAmount: out[11].(*big.Int),
		RewardAmount:        out[12].(*big.Int),
		OracleCalled:        out[13].(bool),
	}
	return round, nil
}

// BetBull stakes the attached value on the bull side of epoch.
func (p *PredictionMarket) BetBull(ctx context.Context, opts *bind.TransactOpts, epoch *big.Int) (*types.Receipt, error) {
	return transactAndWait(ctx, p.backend, p.contract, opts, "betBull", epoch)
}

// BetBear stakes the attached value on the bear side of epoch.
func (p *PredictionMarket) BetBear(ctx context.Context, opts *bind.TransactOpts, epoch *big.Int) (*types.Receipt, error) {
	return transactAndWait(ctx, p.backend, p.contract, opts, "betBear", epoch)
}

// Claimable reports whether user has an unclaimed payout for epoch.
func (p *PredictionMarket) Claimable(ctx context.Context, epoch *big.Int, user common.Address) (bool, error) {
	var out []interface{}
	if err := call(ctx, p.contract, &out, "claimable", epoch, user); err != nil {
		return false, err
	}
	return asBool(out), nil
}

// Claim settles payouts for the given epochs.
func (p *PredictionMarket) Claim(ctx context.Context, opts *bind.TransactOpts, epochs []*big.Int) (*types.Receipt, error) {
	return transactAndWait(ctx, p.backend, p.contract, opts, "claim", epochs)
}
