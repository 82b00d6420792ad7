package wallet

import (
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelpento.lv/arbengine/utils/testutils"
)

func TestNewSigner(t *testing.T) {
	key, hexKey := testutils.NewKey(t)

	signer, err := NewSigner("0x" + hexKey)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), signer.Address())

	rendered := fmt.Sprintf("%v %s %#v", signer, signer, signer)
	assert.NotContains(t, rendered, hexKey)
	assert.Contains(t, rendered, signer.Address().Hex())
}

func TestNewSignerInvalid(t *testing.T) {
	_, err := NewSigner("zz-not-a-key")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "zz-not-a-key")
}

func TestSignTx(t *testing.T) {
	key, _ := testutils.NewKey(t)
	signer := NewSignerFromKey(key)
	chainID := big.NewInt(1)

	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    9,
		To:       &common.Address{0x01},
		Value:    big.NewInt(1),
		Gas:      21000,
		GasPrice: big.NewInt(1e9),
	})

	signed, err := signer.SignTx(tx, chainID)
	require.NoError(t, err)

	from, err := ethtypes.Sender(ethtypes.LatestSignerForChainID(chainID), signed)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), from)
	assert.Equal(t, uint64(9), signed.Nonce())
}
