package testutils

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/michaelpento.lv/arbengine/types"
)

// NewKey returns a fresh private key and its hex encoding
func NewKey(t *testing.T) (*ecdsa.PrivateKey, string) {
	privateKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	return privateKey, common.Bytes2Hex(crypto.FromECDSA(privateKey))
}

// CreateMockTransaction creates a signed legacy transaction for testing
func CreateMockTransaction(t *testing.T, nonce uint64) *ethtypes.Transaction {
	privateKey, _ := NewKey(t)

	signer := ethtypes.NewEIP155Signer(big.NewInt(1))

	tx := ethtypes.NewTransaction(
		nonce,
		common.HexToAddress("0x1234567890123456789012345678901234567890"),
		big.NewInt(1000000000000000000), // 1 ETH
		21000,
		big.NewInt(20000000000),
		nil,
	)

	signedTx, err := ethtypes.SignTx(tx, signer, privateKey)
	require.NoError(t, err)

	return signedTx
}

// FakeChain is an in-memory node used by tests
type FakeChain struct {
	mu sync.Mutex

	ID       *big.Int
	Nonce    uint64
	Head     uint64
	GasPrice *big.Int
	Receipts map[common.Hash]*ethtypes.Receipt

	NonceErr    error
	GasPriceErr error
	ReceiptErr  error

	// OnBlockNumber, when set, is called on every BlockNumber call with the
	// number of calls so far and may move the head
	OnBlockNumber func(f *FakeChain, calls int)

	NonceCalls       int
	BlockNumberCalls int
	GasPriceCalls    int
}

// NewFakeChain returns a chain at head 100 with chain id 1
func NewFakeChain(nonce uint64) *FakeChain {
	return &FakeChain{
		ID:       big.NewInt(1),
		Nonce:    nonce,
		Head:     100,
		GasPrice: big.NewInt(30_000_000_000),
		Receipts: make(map[common.Hash]*ethtypes.Receipt),
	}
}

func (f *FakeChain) ChainID(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(f.ID), nil
}

func (f *FakeChain) BlockNumber(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.BlockNumberCalls++
	if f.OnBlockNumber != nil {
		f.OnBlockNumber(f, f.BlockNumberCalls)
	}
	return f.Head, nil
}

func (f *FakeChain) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.NonceCalls++
	if f.NonceErr != nil {
		return 0, f.NonceErr
	}
	return f.Nonce, nil
}

func (f *FakeChain) TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReceiptErr != nil {
		return nil, f.ReceiptErr
	}
	if r, ok := f.Receipts[txHash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

func (f *FakeChain) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.GasPriceCalls++
	if f.GasPriceErr != nil {
		return nil, f.GasPriceErr
	}
	return new(big.Int).Set(f.GasPrice), nil
}

// Mine records a receipt for hash with the given status at the current head
func (f *FakeChain) Mine(hash common.Hash, status uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Receipts[hash] = &ethtypes.Receipt{
		TxHash:      hash,
		Status:      status,
		BlockNumber: new(big.Int).SetUint64(f.Head),
	}
}

// SetNonce moves the wallet nonce the node reports
func (f *FakeChain) SetNonce(n uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Nonce = n
}

// SetHead moves the chain head
func (f *FakeChain) SetHead(n uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Head = n
}

// Calls returns the number of PendingNonceAt calls
func (f *FakeChain) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.NonceCalls
}

// ErrNode is a generic node failure for tests
var ErrNode = errors.New("node unavailable")

// SignedBundle returns a bundle signed by a fresh key for chain id 1. The
// first step is the arbitrage call, an optional second step the profit transfer.
func SignedBundle(t *testing.T, first uint64, steps int) types.Bundle {
	privateKey, _ := NewKey(t)
	signer := ethtypes.LatestSignerForChainID(big.NewInt(1))

	opp := types.Opportunity{
		Pair:            "ETH-USDT",
		ContractAddress: common.HexToAddress("0x1234567890123456789012345678901234567890"),
		OptimalAmount:   big.NewInt(1e18),
		ExpectedProfit:  big.NewInt(8e16),
		Slippage:        0.3,
	}

	bundle := types.Bundle{Opportunity: opp}
	for i := 0; i < steps; i++ {
		kind, to, value := types.StepArbitrage, opp.ContractAddress, opp.Amount()
		if i > 0 {
			kind, to, value = types.StepProfitTransfer, common.HexToAddress("0xaa"), opp.Profit()
		}
		tx, err := ethtypes.SignTx(ethtypes.NewTx(&ethtypes.LegacyTx{
			Nonce:    first + uint64(i),
			To:       &to,
			Value:    value,
			Gas:      21000,
			GasPrice: big.NewInt(50e9),
		}), signer, privateKey)
		require.NoError(t, err)

		bundle.Steps = append(bundle.Steps, types.TransactionStep{
			Index:    i,
			Kind:     kind,
			To:       to,
			Value:    value,
			GasLimit: 21000,
			GasPrice: big.NewInt(50e9),
			Nonce:    first + uint64(i),
			Tx:       tx,
		})
	}
	return bundle
}
