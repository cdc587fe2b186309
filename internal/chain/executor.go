package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Transactor is the signing surface consumed by the capital-moving
// components. Executor is the production implementation.
type Transactor interface {
	Address() common.Address
	TransactOpts(ctx context.Context, value *big.Int, gasLimit uint64) (*bind.TransactOpts, error)
}

// Executor holds the signing identity every engine transaction is sent with.
type Executor struct {
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
}

var _ Transactor = (*Executor)(nil)

// NewExecutor derives the executor identity from a hex encoded private key.
func NewExecutor(hexKey string, chainID *big.Int) (*Executor, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, errors.New("执行器私钥为空")
	}
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, errors.New("执行器需要有效的链 ID")
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("解析执行器私钥失败: %w", err)
	}
	return &Executor{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: new(big.Int).Set(chainID),
	}, nil
}

// Address returns the executor account address.
func (e *Executor) Address() common.Address {
	return e.address
}

// TransactOpts builds fresh signing options for a single transaction.
// Value and gas limit are per-call concerns of the contract wrappers.
func (e *Executor) TransactOpts(ctx context.Context, value *big.Int, gasLimit uint64) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(e.key, e.chainID)
	if err != nil {
		return nil, fmt.Errorf("构建交易签名器失败: %w", err)
	}
	opts.Context = ctx
	opts.GasLimit = gasLimit
	if value != nil {
		opts.Value = new(big.Int).Set(value)
	}
	return opts, nil
}
