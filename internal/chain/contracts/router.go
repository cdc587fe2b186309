package contracts

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Router binds a UniswapV2-style swap router.
type Router struct {
	addr     common.Address
	contract *bind.BoundContract
	backend  Backend
}

// NewRouter binds the router contract at addr.
func NewRouter(addr common.Address, backend Backend) (*Router, error) {
	contract, err := bound(addr, routerABI, backend)
	if err != nil {
		return nil, err
	}
	return &Router{addr: addr, contract: contract, backend: backend}, nil
}

// Address returns the bound contract address.
func (r *Router) Address() common.Address { return r.addr }

// AmountsOut quotes amountIn along path.
func (r *Router) AmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	var out []interface{}
	if err := call(ctx, r.contract, &out, "getAmountsOut", amountIn, path); err != nil {
		return nil, err
	}
	amounts := *abi.ConvertType(out[0], new([]*big.Int)).(*[]*big.Int)
	return amounts, nil
}

// SwapExactETHForTokens swaps the attached native value along path.
func (r *Router) SwapExactETHForTokens(ctx context.Context, opts *bind.TransactOpts, amountOutMin *big.Int, path []common.Address, to common.Address, deadline *big.Int) (*types.Receipt, error) {
	return transactAndWait(ctx, r.backend, r.contract, opts, "swapExactETHForTokens", amountOutMin, path, to, deadline)
}

// SwapExactTokensForETH swaps amountIn of the first path token back to native.
func (r *Router) SwapExactTokensForETH(ctx context.Context, opts *bind.TransactOpts, amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, deadline *big.Int) (*types.Receipt, error) {
	return transactAndWait(ctx, r.backend, r.contract, opts, "swapExactTokensForETH", amountIn, amountOutMin, path, to, deadline)
}

// ERC20 binds the minimal token surface the engine needs.
type ERC20 struct {
	addr     common.Address
	contract *bind.BoundContract
	backend  Backend
}

// NewERC20 binds the token contract at addr.
func NewERC20(addr common.Address, backend Backend) (*ERC20, error) {
	contract, err := bound(addr, erc20ABI, backend)
	if err != nil {
		return nil, err
	}
	return &ERC20{addr: addr, contract: contract, backend: backend}, nil
}

// Address returns the bound token address.
func (e *ERC20) Address() common.Address { return e.addr }

// BalanceOf returns owner's token balance.
func (e *ERC20) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	var out []interface{}
	if err := call(ctx, e.contract, &out, "balanceOf", owner); err != nil {
		return nil, err
	}
	return asBigInt(out), nil
}

// Allowance returns the spender allowance granted by owner.
func (e *ERC20) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	var out []interface{}
	if err := call(ctx, e.contract, &out, "allowance", owner, spender); err != nil {
		return nil, err
	}
	return asBigInt(out), nil
}

// Approve grants spender an allowance of amount.
func (e *ERC20) Approve(ctx context.Context, opts *bind.TransactOpts, spender common.Address, amount *big.Int) (*types.Receipt, error) {
	return transactAndWait(ctx, e.backend, e.contract, opts, "approve", spender, amount)
}
