package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment variables
const (
	EnvPrivateKey        = "GAS_WALLET_PRIVATE_KEY"
	EnvProfitWallet      = "PROFIT_WALLET"
	EnvPairs             = "ARBITRAGE_PAIRS"
	EnvMinProfit         = "MIN_PROFIT_ETH"
	EnvMaxSlippage       = "MAX_SLIPPAGE"
	EnvRPCURL            = "RPC_URL"
	EnvInfuraURL         = "INFURA_URL" // alias of RPC_URL
	EnvChainID           = "CHAIN_ID"
	EnvFeedURL           = "FEED_URL"
	EnvFeedAPIKey        = "FEED_API_KEY"
	EnvEigenPhiKey       = "EIGENPHI_API_KEY" // alias of FEED_API_KEY
	EnvFeedRateLimit     = "FEED_RATE_LIMIT"
	EnvFlashbotsRelay    = "FLASHBOTS_RELAY"
	EnvFlashbotsKey      = "FLASHBOTS_SIGNER_KEY"
	EnvSubmissionMode    = "SUBMISSION_MODE"
	EnvSimulate          = "SIMULATE_BUNDLES"
	EnvBlockRange        = "BUNDLE_BLOCK_RANGE"
	EnvBlockTime         = "BLOCK_TIME"
	EnvSubmissionTimeout = "SUBMISSION_TIMEOUT"
	EnvReceiptPoll       = "RECEIPT_POLL"
	EnvFeedTimeout       = "FEED_TIMEOUT"
	EnvGasPrice          = "GAS_PRICE_GWEI"
	EnvMaxGasPrice       = "MAX_GAS_PRICE_GWEI"
	EnvArbitrageGas      = "ARBITRAGE_GAS_LIMIT"
	EnvTransferGas       = "TRANSFER_GAS_LIMIT"
	EnvGasCacheTTL       = "GAS_CACHE_TTL"
	EnvPollInterval      = "POLL_INTERVAL"
	EnvCooldown          = "COOLDOWN"
	EnvMaxCooldown       = "MAX_COOLDOWN"
	EnvDedupSize         = "DEDUP_SIZE"
	EnvMetricsAddr       = "METRICS_ADDR"
	EnvMetricsNamespace  = "METRICS_NAMESPACE"
	EnvRedisURL          = "REDIS_URL"
	EnvRedisJournalKey   = "REDIS_JOURNAL_KEY"
	EnvRedisJournalLen   = "REDIS_JOURNAL_MAX_LEN"
	EnvLogFile           = "LOG_FILE"
	EnvLogDebug          = "LOG_DEBUG"
)

// LoadEnv loads environment variables from the .env file in the working
// directory. A missing file is not an error and set variables are kept.
func LoadEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env file: %w", err)
	}
	return nil
}

// ApplyEnv overrides cfg with every variable that is set
func ApplyEnv(cfg *Config) error {
	var e envErrors

	// Wallet
	setSecret(&cfg.Wallet.PrivateKey, EnvPrivateKey)
	setStr(&cfg.Wallet.ProfitAddress, EnvProfitWallet)

	// Feed
	setStr(&cfg.Feed.URL, EnvFeedURL)
	setSecret(&cfg.Feed.APIKey, EnvEigenPhiKey)
	setSecret(&cfg.Feed.APIKey, EnvFeedAPIKey)
	if v := os.Getenv(EnvPairs); v != "" {
		cfg.Feed.Pairs = splitList(v)
	}
	e.float(&cfg.Feed.RateLimit, EnvFeedRateLimit)
	e.duration(&cfg.Feed.Timeout, EnvFeedTimeout)

	// Strategy
	setStr(&cfg.Strategy.MinProfitETH, EnvMinProfit)
	e.float(&cfg.Strategy.MaxSlippage, EnvMaxSlippage)

	// Network
	setStr(&cfg.Network.RPCEndpoint, EnvInfuraURL)
	setStr(&cfg.Network.RPCEndpoint, EnvRPCURL)
	e.uint(&cfg.Network.ChainID, EnvChainID)

	// Relay
	setStr(&cfg.Relay.URL, EnvFlashbotsRelay)
	setSecret(&cfg.Relay.SignerKey, EnvFlashbotsKey)
	setStr(&cfg.Relay.Mode, EnvSubmissionMode)
	e.bool(&cfg.Relay.Simulate, EnvSimulate)
	e.uint(&cfg.Relay.BlockRange, EnvBlockRange)
	e.duration(&cfg.Relay.BlockTime, EnvBlockTime)
	e.duration(&cfg.Relay.SubmissionTimeout, EnvSubmissionTimeout)
	e.duration(&cfg.Relay.ReceiptPoll, EnvReceiptPoll)

	// Gas
	setStr(&cfg.Gas.GasPriceGwei, EnvGasPrice)
	setStr(&cfg.Gas.MaxGasPriceGwei, EnvMaxGasPrice)
	e.uint(&cfg.Gas.ArbitrageGasLimit, EnvArbitrageGas)
	e.uint(&cfg.Gas.TransferGasLimit, EnvTransferGas)
	e.duration(&cfg.Gas.CacheTTL, EnvGasCacheTTL)

	// Engine
	e.duration(&cfg.Engine.PollInterval, EnvPollInterval)
	e.duration(&cfg.Engine.Cooldown, EnvCooldown)
	e.duration(&cfg.Engine.MaxCooldown, EnvMaxCooldown)
	e.int(&cfg.Engine.DedupSize, EnvDedupSize)

	// Metrics and journal
	setStr(&cfg.Metrics.ListenAddr, EnvMetricsAddr)
	setStr(&cfg.Metrics.Namespace, EnvMetricsNamespace)
	setStr(&cfg.Journal.RedisURL, EnvRedisURL)
	setStr(&cfg.Journal.Key, EnvRedisJournalKey)
	e.int64(&cfg.Journal.MaxLen, EnvRedisJournalLen)

	// Logging
	if _, ok := os.LookupEnv(EnvLogFile); ok {
		// set but empty disables the file
		cfg.Log.File = os.Getenv(EnvLogFile)
	}
	e.bool(&cfg.Log.Debug, EnvLogDebug)

	return e.err()
}

type envErrors []string

func (e *envErrors) add(key string, err error) {
	*e = append(*e, fmt.Sprintf("%s: %v", key, err))
}

func (e envErrors) err() error {
	if len(e) == 0 {
		return nil
	}
	return fmt.Errorf("invalid environment: %s", strings.Join(e, "; "))
}

func (e *envErrors) float(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.add(key, err)
			return
		}
		*dst = f
	}
}

func (e *envErrors) uint(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			e.add(key, err)
			return
		}
		*dst = n
	}
}

func (e *envErrors) int(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.add(key, err)
			return
		}
		*dst = n
	}
}

func (e *envErrors) int64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			e.add(key, err)
			return
		}
		*dst = n
	}
}

func (e *envErrors) bool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.add(key, err)
			return
		}
		*dst = b
	}
}

func (e *envErrors) duration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.add(key, err)
			return
		}
		*dst = d
	}
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setSecret(dst *Secret, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = Secret(v)
	}
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
