package flashloan

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeArbitrage(t *testing.T) {
	enc, err := NewEncoder()
	require.NoError(t, err)

	call := ArbitrageCall{
		Target:    common.HexToAddress("0x1234567890123456789012345678901234567890"),
		Amount:    big.NewInt(1e18),
		Recipient: common.HexToAddress("0x00000000000000000000000000000000000000aa"),
	}

	data, err := enc.EncodeArbitrage(call)
	require.NoError(t, err)
	require.Len(t, data, 4+32+32)

	selector := crypto.Keccak256([]byte("executeArbitrage(uint256,address)"))[:4]
	assert.Equal(t, selector, data[:4])

	amount, recipient, err := enc.DecodeArbitrage(data)
	require.NoError(t, err)
	assert.Equal(t, call.Amount, amount)
	assert.Equal(t, call.Recipient, recipient)
}

func TestEncodeArbitrageInvalid(t *testing.T) {
	enc, err := NewEncoder()
	require.NoError(t, err)

	target := common.HexToAddress("0x1234567890123456789012345678901234567890")

	_, err = enc.EncodeArbitrage(ArbitrageCall{Amount: big.NewInt(1)})
	assert.Error(t, err)

	_, err = enc.EncodeArbitrage(ArbitrageCall{Target: target})
	assert.Error(t, err)

	_, err = enc.EncodeArbitrage(ArbitrageCall{Target: target, Amount: big.NewInt(-1)})
	assert.Error(t, err)
}

func TestDecodeUnknownMethod(t *testing.T) {
	enc, err := NewEncoder()
	require.NoError(t, err)

	_, _, err = enc.DecodeArbitrage([]byte{0xde, 0xad, 0xbe, 0xef})
	assert.Error(t, err)
}
