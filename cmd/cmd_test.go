package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/michaelpento.lv/arbengine/config"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestExitCode(t *testing.T) {
	cfgErr := &ConfigError{Err: errors.New("missing key")}

	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 0, ExitCode(fmt.Errorf("run: %w", context.Canceled)))
	assert.Equal(t, 2, ExitCode(cfgErr))
	assert.Equal(t, 2, ExitCode(fmt.Errorf("start: %w", cfgErr)))
	assert.Equal(t, 1, ExitCode(errors.New("failed to connect to Ethereum node")))
}

func TestStartRejectsMissingConfig(t *testing.T) {
	for _, key := range []string{
		config.EnvPrivateKey, config.EnvProfitWallet, config.EnvRPCURL, config.EnvInfuraURL,
		config.EnvFeedAPIKey, config.EnvEigenPhiKey,
	} {
		t.Setenv(key, "")
	}

	_, err := loadConfig()
	require.Error(t, err)
	assert.Equal(t, 2, ExitCode(err))
}

func TestStartRejectsBadRelayKey(t *testing.T) {
	t.Setenv(config.EnvPrivateKey, testKey)
	t.Setenv(config.EnvProfitWallet, "0x00000000000000000000000000000000000000aa")
	t.Setenv(config.EnvRPCURL, "http://127.0.0.1:1")
	t.Setenv(config.EnvFeedAPIKey, "feed-secret")
	t.Setenv(config.EnvFlashbotsKey, "relay-secret-not-hex")

	cfg, err := loadConfig()
	require.NoError(t, err)

	err = runStart(context.Background(), cfg, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Equal(t, 2, ExitCode(err))
	assert.NotContains(t, err.Error(), "relay-secret-not-hex")
	assert.NotContains(t, err.Error(), testKey)
}

func TestRelayAuthKey(t *testing.T) {
	log := zaptest.NewLogger(t)

	key, err := relayAuthKey("", log)
	require.NoError(t, err)
	assert.NotNil(t, key)

	key, err = relayAuthKey(config.Secret("0x"+testKey), log)
	require.NoError(t, err)
	assert.Equal(t, testKey, common.Bytes2Hex(crypto.FromECDSA(key)))
}

func TestKeygen(t *testing.T) {
	var out bytes.Buffer
	keygenCmd.SetOut(&out)
	t.Cleanup(func() { keygenCmd.SetOut(nil) })

	require.NoError(t, keygenCmd.RunE(keygenCmd, nil))

	var hexKey, address string
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if v, ok := strings.CutPrefix(line, "Private Key: 0x"); ok {
			hexKey = v
		}
		if v, ok := strings.CutPrefix(line, "Public Address: "); ok {
			address = v
		}
	}

	key, err := crypto.HexToECDSA(hexKey)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey).Hex(), address)
}
