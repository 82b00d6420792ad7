package types

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOpportunity() Opportunity {
	return Opportunity{
		Pair:            "ETH-USDT",
		ContractAddress: common.HexToAddress("0x1234567890123456789012345678901234567890"),
		OptimalAmount:   big.NewInt(1e18),
		ExpectedProfit:  big.NewInt(8e16),
		Slippage:        0.3,
	}
}

func TestOpportunityAccessorsCopy(t *testing.T) {
	opp := testOpportunity()

	amount := opp.Amount()
	amount.SetInt64(1)
	assert.Equal(t, big.NewInt(1e18), opp.OptimalAmount)

	profit := opp.Profit()
	profit.SetInt64(0)
	assert.True(t, opp.HasProfit())

	var empty Opportunity
	assert.False(t, empty.HasProfit())
	assert.Equal(t, int64(0), empty.Amount().Int64())
}

func TestOpportunityFingerprint(t *testing.T) {
	a := testOpportunity()
	b := testOpportunity()
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	b.ExpectedProfit = big.NewInt(9e16)
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())

	c := testOpportunity()
	c.Pair = "WBTC-ETH"
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}

func TestBundleValidate(t *testing.T) {
	t.Run("Contiguous", func(t *testing.T) {
		b := Bundle{Steps: []TransactionStep{
			{Index: 0, Kind: StepArbitrage, Nonce: 7},
			{Index: 1, Kind: StepProfitTransfer, Nonce: 8},
		}}
		require.NoError(t, b.Validate())
		first, count := b.Nonces()
		assert.Equal(t, uint64(7), first)
		assert.Equal(t, uint64(2), count)
	})

	t.Run("Gap", func(t *testing.T) {
		b := Bundle{Steps: []TransactionStep{
			{Kind: StepArbitrage, Nonce: 7},
			{Kind: StepProfitTransfer, Nonce: 9},
		}}
		assert.Error(t, b.Validate())
	})

	t.Run("Empty", func(t *testing.T) {
		assert.Error(t, Bundle{}.Validate())
	})

	t.Run("TransferFirst", func(t *testing.T) {
		b := Bundle{Steps: []TransactionStep{{Kind: StepProfitTransfer, Nonce: 1}}}
		assert.Error(t, b.Validate())
	})
}

func TestRawTxsRequiresSignature(t *testing.T) {
	b := Bundle{Steps: []TransactionStep{{Kind: StepArbitrage}}}
	_, err := b.RawTxs()
	assert.Error(t, err)
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want OutcomeKind
	}{
		{nil, OutcomeSuccess},
		{fmt.Errorf("send: %w", ErrRelayRejected), OutcomeRelayRejected},
		{fmt.Errorf("wait: %w", ErrSubmissionTimeout), OutcomeSubmissionTimeout},
		{fmt.Errorf("step 1: %w", ErrPartialExecution), OutcomePartialExecution},
		{ErrSequencerStale, OutcomeBuildFailed},
		{errors.New("boom"), OutcomeBuildFailed},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, KindOf(tt.err), "error %v", tt.err)
	}
}

func TestNewOutcome(t *testing.T) {
	b := Bundle{
		Opportunity: testOpportunity(),
		Steps:       []TransactionStep{{Kind: StepArbitrage, Nonce: 3}},
	}

	out := NewOutcome(b, nil)
	assert.True(t, out.Success)
	assert.Equal(t, OutcomeSuccess, out.Kind)
	assert.Equal(t, uint64(3), out.FirstNonce)
	assert.Equal(t, 1, out.StepCount)
	assert.Equal(t, "ETH-USDT", out.Pair)

	out = NewOutcome(b, fmt.Errorf("relay: %w", ErrSubmissionTimeout))
	assert.False(t, out.Success)
	assert.Equal(t, OutcomeSubmissionTimeout, out.Kind)
	assert.Equal(t, "submission_timeout", out.Kind.String())
}
