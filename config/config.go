package config

import (
	"fmt"
	"math"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v2"

	"github.com/michaelpento.lv/arbengine/chain"
	"github.com/michaelpento.lv/arbengine/utils"
)

// Submission disciplines
const (
	ModeBundle     = "bundle"
	ModeSequential = "sequential"
)

type Config struct {
	Wallet   WalletConfig   `yaml:"wallet"`
	Feed     FeedConfig     `yaml:"feed"`
	Strategy StrategyConfig `yaml:"strategy"`
	Network  NetworkConfig  `yaml:"network"`
	Relay    RelayConfig    `yaml:"relay"`
	Gas      GasConfig      `yaml:"gas"`
	Engine   EngineConfig   `yaml:"engine"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Journal  JournalConfig  `yaml:"journal"`
	Log      LogConfig      `yaml:"log"`
}

type WalletConfig struct {
	PrivateKey    Secret `yaml:"private_key"`
	ProfitAddress string `yaml:"profit_address"`
}

type FeedConfig struct {
	URL       string        `yaml:"url"`
	APIKey    Secret        `yaml:"api_key"`
	Pairs     []string      `yaml:"pairs"`
	RateLimit float64       `yaml:"rate_limit"`
	Timeout   time.Duration `yaml:"timeout"`
}

type StrategyConfig struct {
	MinProfitETH string  `yaml:"min_profit_eth"`
	MaxSlippage  float64 `yaml:"max_slippage"`
}

type NetworkConfig struct {
	RPCEndpoint string `yaml:"rpc_endpoint"`
	ChainID     uint64 `yaml:"chain_id"` // 0 means query the node
}

type RelayConfig struct {
	URL               string        `yaml:"url"`
	SignerKey         Secret        `yaml:"signer_key"` // empty means ephemeral
	Mode              string        `yaml:"mode"`
	Simulate          bool          `yaml:"simulate"`
	BlockRange        uint64        `yaml:"block_range"`
	BlockTime         time.Duration `yaml:"block_time"`
	SubmissionTimeout time.Duration `yaml:"submission_timeout"`
	ReceiptPoll       time.Duration `yaml:"receipt_poll"`
}

type GasConfig struct {
	GasPriceGwei      string        `yaml:"gas_price_gwei"`
	MaxGasPriceGwei   string        `yaml:"max_gas_price_gwei"`
	ArbitrageGasLimit uint64        `yaml:"arbitrage_gas_limit"`
	TransferGasLimit  uint64        `yaml:"transfer_gas_limit"`
	CacheTTL          time.Duration `yaml:"cache_ttl"`
}

type EngineConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	Cooldown     time.Duration `yaml:"cooldown"`
	MaxCooldown  time.Duration `yaml:"max_cooldown"`
	DedupSize    int           `yaml:"dedup_size"`
}

type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	Namespace  string `yaml:"namespace"`
}

type JournalConfig struct {
	RedisURL string `yaml:"redis_url"`
	Key      string `yaml:"key"`
	MaxLen   int64  `yaml:"max_len"`
}

type LogConfig struct {
	File  string `yaml:"file"` // empty logs to stdout only
	Debug bool   `yaml:"debug"`
}

// Defaults returns the built-in configuration
func Defaults() *Config {
	return &Config{
		Feed: FeedConfig{
			URL:       "https://api.eigenphi.io",
			Pairs:     []string{"ETH-USDT", "WBTC-ETH"},
			RateLimit: 1,
			Timeout:   10 * time.Second,
		},
		Strategy: StrategyConfig{
			MinProfitETH: "0.05",
			MaxSlippage:  0.5,
		},
		Relay: RelayConfig{
			URL:               "https://relay.flashbots.net",
			Mode:              ModeBundle,
			Simulate:          true,
			BlockRange:        3,
			BlockTime:         12 * time.Second,
			SubmissionTimeout: 60 * time.Second,
			ReceiptPoll:       2 * time.Second,
		},
		Gas: GasConfig{
			GasPriceGwei:      "50",
			MaxGasPriceGwei:   "500",
			ArbitrageGasLimit: 500000,
			TransferGasLimit:  21000,
			CacheTTL:          12 * time.Second,
		},
		Engine: EngineConfig{
			PollInterval: 5 * time.Second,
			Cooldown:     60 * time.Second,
			MaxCooldown:  10 * time.Minute,
			DedupSize:    1024,
		},
		Metrics: MetricsConfig{
			Namespace: "arbengine",
		},
		Journal: JournalConfig{
			Key:    "arbengine:outcomes",
			MaxLen: 10000,
		},
		Log: LogConfig{
			File: "arbengine.log",
		},
	}
}

// LoadConfig builds the configuration from defaults, an optional YAML file,
// a .env file if present and the environment, then validates it.
func LoadConfig(cfgFile string) (*Config, error) {
	cfg := Defaults()

	if cfgFile != "" {
		data, err := os.ReadFile(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	}

	if err := LoadEnv(); err != nil {
		return nil, err
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.ValidateConfig(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) ValidateConfig() error {
	var errors []string

	// Wallet
	if c.Wallet.PrivateKey.Empty() {
		errors = append(errors, "wallet private key must be specified")
	} else if len(strings.TrimPrefix(c.Wallet.PrivateKey.Value(), "0x")) != 64 {
		errors = append(errors, "wallet private key must be 32 hex-encoded bytes")
	}
	if !common.IsHexAddress(c.Wallet.ProfitAddress) {
		errors = append(errors, "profit address must be a valid address")
	}

	// Feed
	if c.Feed.URL == "" {
		errors = append(errors, "feed url must be specified")
	}
	if c.Feed.APIKey.Empty() {
		errors = append(errors, "feed api key must be specified")
	}
	if len(c.Feed.Pairs) == 0 {
		errors = append(errors, "at least one arbitrage pair must be specified")
	}
	if c.Feed.RateLimit <= 0 {
		errors = append(errors, "feed rate limit must be positive")
	}
	if c.Feed.Timeout <= 0 {
		errors = append(errors, "feed timeout must be positive")
	}

	// Thresholds
	if _, err := utils.EtherToWei(c.Strategy.MinProfitETH); err != nil {
		errors = append(errors, fmt.Sprintf("min profit: %v", err))
	}
	if math.IsNaN(c.Strategy.MaxSlippage) || c.Strategy.MaxSlippage < 0 {
		errors = append(errors, "max slippage must be a non-negative percentage")
	}

	// Network
	if c.Network.RPCEndpoint == "" {
		errors = append(errors, "rpc endpoint must be specified")
	}

	// Relay
	if c.Relay.URL == "" {
		errors = append(errors, "relay url must be specified")
	}
	if c.Relay.Mode != ModeBundle && c.Relay.Mode != ModeSequential {
		errors = append(errors, fmt.Sprintf("submission mode must be %q or %q", ModeBundle, ModeSequential))
	}
	if c.Relay.BlockRange == 0 {
		errors = append(errors, "bundle block range must be positive")
	}
	if c.Relay.BlockTime <= 0 {
		errors = append(errors, "block time must be positive")
	}
	if c.Relay.SubmissionTimeout <= 0 {
		errors = append(errors, "submission timeout must be positive")
	} else if floor := chain.MinWaitTimeout(c.Relay.BlockRange, c.Relay.BlockTime); c.Relay.SubmissionTimeout < floor {
		errors = append(errors, fmt.Sprintf("submission timeout must be at least %s to see %d target blocks pass", floor, c.Relay.BlockRange))
	}
	if c.Relay.ReceiptPoll <= 0 {
		errors = append(errors, "receipt poll interval must be positive")
	}

	// Gas
	if err := c.Gas.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("gas config error: %v", err))
	}

	// Engine
	if c.Engine.PollInterval <= 0 {
		errors = append(errors, "poll interval must be positive")
	}
	if c.Engine.Cooldown <= 0 {
		errors = append(errors, "cooldown must be positive")
	}
	if c.Engine.MaxCooldown < c.Engine.Cooldown {
		errors = append(errors, "max cooldown must not be shorter than cooldown")
	}
	if c.Engine.DedupSize <= 0 {
		errors = append(errors, "dedup size must be positive")
	}
	if c.Journal.MaxLen < 0 {
		errors = append(errors, "journal max length must not be negative")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}

func (g *GasConfig) Validate() error {
	fallback, err := utils.GweiToWei(g.GasPriceGwei)
	if err != nil {
		return fmt.Errorf("gas price: %w", err)
	}
	ceiling, err := utils.GweiToWei(g.MaxGasPriceGwei)
	if err != nil {
		return fmt.Errorf("max gas price: %w", err)
	}
	if fallback.Sign() <= 0 {
		return fmt.Errorf("gas price must be positive")
	}
	if ceiling.Cmp(fallback) < 0 {
		return fmt.Errorf("max gas price must not be below gas price")
	}
	if g.TransferGasLimit < 21000 {
		return fmt.Errorf("transfer gas limit must be at least 21000")
	}
	if g.ArbitrageGasLimit < g.TransferGasLimit {
		return fmt.Errorf("arbitrage gas limit must not be below transfer gas limit")
	}
	if g.CacheTTL <= 0 {
		return fmt.Errorf("cache ttl must be positive")
	}
	return nil
}

// MinProfitWei returns the minimum profit threshold in wei
func (c *Config) MinProfitWei() *big.Int {
	v, err := utils.EtherToWei(c.Strategy.MinProfitETH)
	if err != nil {
		return new(big.Int)
	}
	return v
}

// ProfitAddress returns the destination of realized profit
func (c *Config) ProfitAddress() common.Address {
	return common.HexToAddress(c.Wallet.ProfitAddress)
}

// FallbackGasPrice returns the configured gas price in wei
func (g *GasConfig) FallbackGasPrice() *big.Int {
	v, err := utils.GweiToWei(g.GasPriceGwei)
	if err != nil {
		return new(big.Int)
	}
	return v
}

// MaxGasPrice returns the gas price ceiling in wei
func (g *GasConfig) MaxGasPrice() *big.Int {
	v, err := utils.GweiToWei(g.MaxGasPriceGwei)
	if err != nil {
		return new(big.Int)
	}
	return v
}
