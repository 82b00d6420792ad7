package utils

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEtherToWei(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0.08", "80000000000000000"},
		{"0.05", "50000000000000000"},
		{"1", "1000000000000000000"},
		{"0", "0"},
		{"1e-3", "1000000000000000"},
		{"0.0000000000000000019", "1"},
	}

	for _, tt := range tests {
		got, err := EtherToWei(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got.String(), tt.in)
	}
}

func TestEtherToWeiInvalid(t *testing.T) {
	for _, in := range []string{"", "abc", "-0.1"} {
		_, err := EtherToWei(in)
		assert.Error(t, err, in)
	}
}

func TestGweiToWei(t *testing.T) {
	got, err := GweiToWei("50")
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(50_000_000_000), got)
}

func TestWeiToEther(t *testing.T) {
	assert.Equal(t, "0.08", WeiToEther(big.NewInt(8e16)))
	assert.Equal(t, "2", WeiToEther(big.NewInt(2e18)))
	assert.Equal(t, "0", WeiToEther(nil))
	assert.Equal(t, "0", WeiToEther(new(big.Int)))
}
