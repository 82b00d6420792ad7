package bundler

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/michaelpento.lv/arbengine/flashloan"
	"github.com/michaelpento.lv/arbengine/gas"
	"github.com/michaelpento.lv/arbengine/types"
	"github.com/michaelpento.lv/arbengine/utils/testutils"
	"github.com/michaelpento.lv/arbengine/wallet"
)

var profitWallet = common.HexToAddress("0x00000000000000000000000000000000000000aa")

type fixture struct {
	builder *Builder
	seq     *wallet.Sequencer
	signer  *wallet.Signer
	chain   *testutils.FakeChain
}

func newFixture(t *testing.T, nonce uint64, signer TxSigner) *fixture {
	logger := zaptest.NewLogger(t)
	key, _ := testutils.NewKey(t)
	walletSigner := wallet.NewSignerFromKey(key)
	if signer == nil {
		signer = walletSigner
	}

	chain := testutils.NewFakeChain(nonce)
	seq := wallet.NewSequencer(signer.Address(), chain, logger)
	require.NoError(t, seq.Sync(context.Background()))

	oracle := gas.NewOracle(chain, gas.Config{
		Fallback: big.NewInt(50e9),
		Max:      big.NewInt(500e9),
		TTL:      time.Minute,
	}, logger)
	enc, err := flashloan.NewEncoder()
	require.NoError(t, err)

	builder, err := NewBuilder(Config{
		ChainID:           big.NewInt(1),
		ProfitAddress:     profitWallet,
		ArbitrageGasLimit: 500000,
		TransferGasLimit:  21000,
	}, seq, signer, oracle, enc, logger)
	require.NoError(t, err)

	return &fixture{builder: builder, seq: seq, signer: walletSigner, chain: chain}
}

func opportunity(profit int64) types.Opportunity {
	return types.Opportunity{
		Pair:            "ETH-USDT",
		ContractAddress: common.HexToAddress("0x1234567890123456789012345678901234567890"),
		OptimalAmount:   big.NewInt(2e18),
		ExpectedProfit:  big.NewInt(profit),
		Slippage:        0.3,
	}
}

func TestBuildWithProfitTransfer(t *testing.T) {
	f := newFixture(t, 42, nil)
	opp := opportunity(8e16)

	bundle, err := f.builder.Build(context.Background(), opp)
	require.NoError(t, err)
	require.Len(t, bundle.Steps, 2)
	require.NoError(t, bundle.Validate())

	arb, transfer := bundle.Steps[0], bundle.Steps[1]
	assert.Equal(t, types.StepArbitrage, arb.Kind)
	assert.Equal(t, uint64(42), arb.Nonce)
	assert.Equal(t, uint64(42), arb.Tx.Nonce())
	assert.Equal(t, opp.ContractAddress, *arb.Tx.To())
	assert.Equal(t, big.NewInt(2e18), arb.Tx.Value())
	assert.Equal(t, uint64(500000), arb.Tx.Gas())
	assert.Equal(t, big.NewInt(30e9), arb.Tx.GasPrice())

	assert.Equal(t, types.StepProfitTransfer, transfer.Kind)
	assert.Equal(t, uint64(43), transfer.Tx.Nonce())
	assert.Equal(t, profitWallet, *transfer.Tx.To())
	assert.Equal(t, big.NewInt(8e16), transfer.Tx.Value())
	assert.Equal(t, uint64(21000), transfer.Tx.Gas())
	assert.Empty(t, transfer.Tx.Data())

	signer := ethtypes.LatestSignerForChainID(big.NewInt(1))
	for _, step := range bundle.Steps {
		from, err := ethtypes.Sender(signer, step.Tx)
		require.NoError(t, err)
		assert.Equal(t, f.signer.Address(), from)
	}

	enc, err := flashloan.NewEncoder()
	require.NoError(t, err)
	amount, recipient, err := enc.DecodeArbitrage(arb.Tx.Data())
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(2e18), amount)
	// proceeds return to the gas wallet, only the transfer pays the profit wallet
	assert.Equal(t, f.signer.Address(), recipient)
	assert.NotEqual(t, profitWallet, recipient)

	next, err := f.seq.Next()
	require.NoError(t, err)
	assert.Equal(t, uint64(44), next)

	// the opportunity is left untouched
	assert.Equal(t, big.NewInt(8e16), opp.ExpectedProfit)
	assert.Equal(t, big.NewInt(2e18), opp.OptimalAmount)
}

func TestBuildZeroProfit(t *testing.T) {
	f := newFixture(t, 5, nil)

	bundle, err := f.builder.Build(context.Background(), opportunity(0))
	require.NoError(t, err)
	require.Len(t, bundle.Steps, 1)
	assert.Equal(t, types.StepArbitrage, bundle.Steps[0].Kind)

	first, count := bundle.Nonces()
	assert.Equal(t, uint64(5), first)
	assert.Equal(t, uint64(1), count)
}

func TestBuildConsecutiveBundles(t *testing.T) {
	f := newFixture(t, 0, nil)

	a, err := f.builder.Build(context.Background(), opportunity(1))
	require.NoError(t, err)
	b, err := f.builder.Build(context.Background(), opportunity(0))
	require.NoError(t, err)
	c, err := f.builder.Build(context.Background(), opportunity(1))
	require.NoError(t, err)

	var nonces []uint64
	for _, bundle := range []types.Bundle{a, b, c} {
		for _, step := range bundle.Steps {
			nonces = append(nonces, step.Nonce)
		}
	}
	assert.Equal(t, []uint64{0, 1, 2, 3, 4}, nonces)
}

func TestBuildEncodeFailureAllocatesNothing(t *testing.T) {
	f := newFixture(t, 9, nil)
	opp := opportunity(1)
	opp.OptimalAmount = big.NewInt(0)

	_, err := f.builder.Build(context.Background(), opp)
	require.Error(t, err)

	next, err := f.seq.Next()
	require.NoError(t, err)
	assert.Equal(t, uint64(9), next)
}

type failingSigner struct {
	address common.Address
}

func (s failingSigner) Address() common.Address { return s.address }

func (s failingSigner) SignTx(tx *ethtypes.Transaction, chainID *big.Int) (*ethtypes.Transaction, error) {
	return nil, errors.New("hsm offline")
}

func TestBuildSignFailureReleasesNonces(t *testing.T) {
	f := newFixture(t, 9, failingSigner{address: common.HexToAddress("0x01")})

	_, err := f.builder.Build(context.Background(), opportunity(1))
	require.Error(t, err)
	assert.Equal(t, types.OutcomeBuildFailed, types.KindOf(err))

	next, err := f.seq.Next()
	require.NoError(t, err)
	assert.Equal(t, uint64(9), next)
}

func TestBuildStaleSequencer(t *testing.T) {
	f := newFixture(t, 9, nil)
	f.seq.Invalidate()

	_, err := f.builder.Build(context.Background(), opportunity(1))
	assert.ErrorIs(t, err, types.ErrSequencerStale)
}

func TestNewBuilderValidation(t *testing.T) {
	_, err := NewBuilder(Config{}, nil, nil, nil, nil, nil)
	assert.Error(t, err)
}
