package gas

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"github.com/michaelpento.lv/arbengine/utils/testutils"
)

func gwei(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e9))
}

func testConfig() Config {
	return Config{Fallback: gwei(50), Max: gwei(500), TTL: time.Minute}
}

func TestGasPriceFromNode(t *testing.T) {
	chain := testutils.NewFakeChain(0)
	oracle := NewOracle(chain, testConfig(), zaptest.NewLogger(t))

	assert.Equal(t, gwei(30), oracle.GasPrice(context.Background()))

	// cached
	chain.GasPrice = gwei(40)
	assert.Equal(t, gwei(30), oracle.GasPrice(context.Background()))
	assert.Equal(t, 1, chain.GasPriceCalls)

}

func TestGasPriceExpires(t *testing.T) {
	chain := testutils.NewFakeChain(0)
	cfg := testConfig()
	cfg.TTL = 20 * time.Millisecond
	oracle := NewOracle(chain, cfg, zaptest.NewLogger(t))

	assert.Equal(t, gwei(30), oracle.GasPrice(context.Background()))
	chain.GasPrice = gwei(40)
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, gwei(40), oracle.GasPrice(context.Background()))
	assert.Equal(t, 2, chain.GasPriceCalls)
}

func TestGasPriceFallback(t *testing.T) {
	chain := testutils.NewFakeChain(0)
	chain.GasPriceErr = testutils.ErrNode
	oracle := NewOracle(chain, testConfig(), zaptest.NewLogger(t))

	assert.Equal(t, gwei(50), oracle.GasPrice(context.Background()))

	noSource := NewOracle(nil, testConfig(), zaptest.NewLogger(t))
	assert.Equal(t, gwei(50), noSource.GasPrice(context.Background()))
}

func TestGasPriceCapped(t *testing.T) {
	chain := testutils.NewFakeChain(0)
	chain.GasPrice = gwei(900)
	oracle := NewOracle(chain, testConfig(), zaptest.NewLogger(t))

	assert.Equal(t, gwei(500), oracle.GasPrice(context.Background()))
}

func TestGasPriceReturnsCopy(t *testing.T) {
	oracle := NewOracle(testutils.NewFakeChain(0), testConfig(), zaptest.NewLogger(t))

	p := oracle.GasPrice(context.Background())
	p.SetInt64(1)
	assert.Equal(t, gwei(30), oracle.GasPrice(context.Background()))
}
