package testutils

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

// CallFunc answers an eth_call with decoded arguments
type CallFunc func(args []interface{}) ([]interface{}, error)

type selector [4]byte

// Backend is an in-memory chain implementing bind.ContractBackend and
// bind.DeployBackend. Contract methods are registered per address.
type Backend struct {
	mu sync.Mutex

	handlers map[common.Address]map[selector]func([]byte) ([]byte, error)

	// EstimateGasFunc answers eth_estimateGas; nil returns DefaultGas
	EstimateGasFunc func(call ethereum.CallMsg) (uint64, error)
	DefaultGas      uint64
	GasPrice        *big.Int

	// ReceiptStatus and GasUsed shape the receipt of every sent transaction
	ReceiptStatus uint64
	GasUsed       uint64
	SendErr       error

	nonce    uint64
	Sent     []*types.Transaction
	Estimate []ethereum.CallMsg
}

// NewBackend creates an empty backend whose transactions succeed
func NewBackend() *Backend {
	return &Backend{
		handlers:      make(map[common.Address]map[selector]func([]byte) ([]byte, error)),
		DefaultGas:    200_000,
		GasPrice:      big.NewInt(1_000_000_000),
		ReceiptStatus: types.ReceiptStatusSuccessful,
		GasUsed:       180_000,
	}
}

// ParseABI parses an ABI definition, failing the test on error
func ParseABI(t *testing.T, def string) abi.ABI {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(def))
	require.NoError(t, err)
	return parsed
}

// Handle registers fn as the implementation of method at address
func (b *Backend) Handle(address common.Address, contractABI abi.ABI, method string, fn CallFunc) {
	m, ok := contractABI.Methods[method]
	if !ok {
		panic(fmt.Sprintf("method %s not in ABI", method))
	}
	var sel selector
	copy(sel[:], m.ID)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handlers[address] == nil {
		b.handlers[address] = make(map[selector]func([]byte) ([]byte, error))
	}
	b.handlers[address][sel] = func(input []byte) ([]byte, error) {
		args, err := m.Inputs.Unpack(input)
		if err != nil {
			return nil, err
		}
		out, err := fn(args)
		if err != nil {
			return nil, err
		}
		return m.Outputs.Pack(out...)
	}
}

// Returns is a CallFunc answering with fixed values
func Returns(values ...interface{}) CallFunc {
	return func([]interface{}) ([]interface{}, error) {
		return values, nil
	}
}

// Fails is a CallFunc that always reverts
func Fails(msg string) CallFunc {
	return func([]interface{}) ([]interface{}, error) {
		return nil, errors.New(msg)
	}
}

func (b *Backend) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{0x1}, nil
}

func (b *Backend) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if call.To == nil || len(call.Data) < 4 {
		return nil, errors.New("invalid call")
	}
	var sel selector
	copy(sel[:], call.Data[:4])

	b.mu.Lock()
	h, ok := b.handlers[*call.To][sel]
	b.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("execution reverted: no handler at %s", call.To.Hex())
	}
	return h(call.Data[4:])
}

func (b *Backend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(1)}, nil
}

func (b *Backend) PendingCodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return []byte{0x1}, nil
}

func (b *Backend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nonce, nil
}

func (b *Backend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return b.GasPrice, nil
}

func (b *Backend) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return b.GasPrice, nil
}

func (b *Backend) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	b.mu.Lock()
	b.Estimate = append(b.Estimate, call)
	b.mu.Unlock()
	if b.EstimateGasFunc != nil {
		return b.EstimateGasFunc(call)
	}
	return b.DefaultGas, nil
}

func (b *Backend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if b.SendErr != nil {
		return b.SendErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Sent = append(b.Sent, tx)
	b.nonce++
	return nil
}

func (b *Backend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, tx := range b.Sent {
		if tx.Hash() == txHash {
			return &types.Receipt{
				Status:      b.ReceiptStatus,
				TxHash:      txHash,
				GasUsed:     b.GasUsed,
				BlockNumber: big.NewInt(1),
			}, nil
		}
	}
	return nil, ethereum.NotFound
}

func (b *Backend) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}

func (b *Backend) SubscribeFilterLogs(ctx context.Context, query ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	return nil, errors.New("subscriptions not supported")
}

// SentCalls decodes the method name of every sent transaction
func (b *Backend) SentCalls(contractABI abi.ABI) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.Sent))
	for _, tx := range b.Sent {
		m, err := contractABI.MethodById(tx.Data())
		if err != nil {
			names = append(names, "unknown")
			continue
		}
		names = append(names, m.Name)
	}
	return names
}

var (
	_ bind.ContractBackend = (*Backend)(nil)
	_ bind.DeployBackend   = (*Backend)(nil)
)

// NewTransactor creates a keyed transactor for chain id 1
func NewTransactor(t *testing.T) (*bind.TransactOpts, *ecdsa.PrivateKey) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	opts, err := bind.NewKeyedTransactorWithChainID(key, big.NewInt(1))
	require.NoError(t, err)
	return opts, key
}

// Address derives a deterministic test address from n
func Address(n int) common.Address {
	return common.BigToAddress(big.NewInt(int64(n)))
}

// Units returns amount * 10^decimals
func Units(amount int64, decimals uint8) *big.Int {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	return new(big.Int).Mul(big.NewInt(amount), scale)
}
