// Package contracts wraps the fixed on-chain surfaces the engine talks to
// with thin typed bindings built on bind.BoundContract.
package contracts

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	aegiserr "Aegis-Engine/internal/errors"
)

// Backend is the subset of ethclient.Client the bindings require. It
// satisfies bind.ContractCaller, bind.ContractTransactor and
// bind.ContractFilterer at once.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

var _ Backend = (*ethclient.Client)(nil)

// bound parses the ABI once and returns a bound contract at addr.
func bound(addr common.Address, rawABI string, backend Backend) (*bind.BoundContract, error) {
	parsed, err := abi.JSON(strings.NewReader(rawABI))
	if err != nil {
		return nil, aegiserr.Wrap(aegiserr.CodeInvalidArgument, err, "解析合约 ABI 失败")
	}
	return bind.NewBoundContract(addr, parsed, backend, backend, backend), nil
}

// call performs a read-only contract call with the given context.
func call(ctx context.Context, contract *bind.BoundContract, results *[]interface{}, method string, params ...interface{}) error {
	if err := contract.Call(&bind.CallOpts{Context: ctx}, results, method, params...); err != nil {
		return aegiserr.Wrap(aegiserr.CodeChainFailure, err, fmt.Sprintf("合约调用 %s 失败", method))
	}
	return nil
}

// transactAndWait submits a state-changing call and blocks until the
// transaction is mined, then checks the receipt status. A reverted
// transaction is surfaced as a transaction failure, not silently dropped.
func transactAndWait(ctx context.Context, backend Backend, contract *bind.BoundContract, opts *bind.TransactOpts, method string, params ...interface{}) (*types.Receipt, error) {
	if opts.Context == nil {
		opts.Context = ctx
	}
	tx, err := contract.Transact(opts, method, params...)
	if err != nil {
		return nil, aegiserr.Wrap(aegiserr.CodeTransactionFailure, err, fmt.Sprintf("提交交易 %s 失败", method))
	}
	receipt, err := bind.WaitMined(ctx, backend, tx)
	if err != nil {
		return nil, aegiserr.Wrap(aegiserr.CodeTransactionFailure, err, fmt.Sprintf("等待交易 %s 上链失败", method))
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, aegiserr.New(aegiserr.CodeTransactionFailure,
			fmt.Sprintf("交易 %s 被回滚: %s", method, tx.Hash().Hex()))
	}
	return receipt, nil
}

// asBigInt converts the first result slot to *big.Int via the abigen
// ConvertType idiom.
func asBigInt(out []interface{}) *big.Int {
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
}

func asBool(out []interface{}) bool {
	return *abi.ConvertType(out[0], new(bool)).(*bool)
}
