package cmd

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/michaelpento.lv/arbengine/bundler"
	"github.com/michaelpento.lv/arbengine/chain"
	"github.com/michaelpento.lv/arbengine/config"
	"github.com/michaelpento.lv/arbengine/engine"
	"github.com/michaelpento.lv/arbengine/executor"
	"github.com/michaelpento.lv/arbengine/feed"
	"github.com/michaelpento.lv/arbengine/flashbots"
	"github.com/michaelpento.lv/arbengine/flashloan"
	"github.com/michaelpento.lv/arbengine/gas"
	"github.com/michaelpento.lv/arbengine/journal"
	"github.com/michaelpento.lv/arbengine/strategies/arbitrage"
	"github.com/michaelpento.lv/arbengine/utils"
	"github.com/michaelpento.lv/arbengine/utils/metrics"
	"github.com/michaelpento.lv/arbengine/wallet"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the arbitrage engine",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log, err := utils.InitLogger(utils.LogConfig{Debug: debug || cfg.Log.Debug, File: cfg.Log.File})
		if err != nil {
			return &ConfigError{Err: err}
		}
		defer utils.CleanupLogger()
		return runStart(cmd.Context(), cfg, log)
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	signer, err := wallet.NewSigner(cfg.Wallet.PrivateKey.Value())
	if err != nil {
		return &ConfigError{Err: fmt.Errorf("gas wallet: %w", err)}
	}
	authKey, err := relayAuthKey(cfg.Relay.SignerKey, log)
	if err != nil {
		return &ConfigError{Err: err}
	}

	log.Info("Starting arbitrage engine",
		zap.String("gas_wallet", signer.Address().Hex()),
		zap.String("profit_wallet", cfg.ProfitAddress().Hex()),
		zap.Strings("pairs", cfg.Feed.Pairs),
		zap.String("min_profit_eth", cfg.Strategy.MinProfitETH),
		zap.Float64("max_slippage", cfg.Strategy.MaxSlippage),
		zap.String("mode", cfg.Relay.Mode),
		zap.String("relay", cfg.Relay.URL))

	client, err := chain.Dial(ctx, cfg.Network.RPCEndpoint)
	if err != nil {
		return err
	}
	defer client.Close()

	chainID, err := chain.ResolveChainID(ctx, client, cfg.Network.ChainID)
	if err != nil {
		return err
	}

	oracle := gas.NewOracle(client, gas.Config{
		Fallback: cfg.Gas.FallbackGasPrice(),
		Max:      cfg.Gas.MaxGasPrice(),
		TTL:      cfg.Gas.CacheTTL,
	}, log)

	encoder, err := flashloan.NewEncoder()
	if err != nil {
		return err
	}

	sequencer := wallet.NewSequencer(signer.Address(), client, log)
	builder, err := bundler.NewBuilder(bundler.Config{
		ChainID:           chainID,
		ProfitAddress:     cfg.ProfitAddress(),
		ArbitrageGasLimit: cfg.Gas.ArbitrageGasLimit,
		TransferGasLimit:  cfg.Gas.TransferGasLimit,
	}, sequencer, signer, oracle, encoder, log)
	if err != nil {
		return err
	}

	relay, err := flashbots.NewClient(flashbots.Config{
		RelayURL: cfg.Relay.URL,
		AuthKey:  authKey,
	})
	if err != nil {
		return err
	}

	submitter, err := executor.NewSubmitter(executor.Config{
		Mode:        cfg.Relay.Mode,
		Simulate:    cfg.Relay.Simulate,
		BlockRange:  cfg.Relay.BlockRange,
		BlockTime:   cfg.Relay.BlockTime,
		Timeout:     cfg.Relay.SubmissionTimeout,
		ReceiptPoll: cfg.Relay.ReceiptPoll,
	}, relay, client, log)
	if err != nil {
		return err
	}

	m := metrics.Initialize(&metrics.MetricsConfig{Namespace: cfg.Metrics.Namespace}, log)

	opportunities, err := feed.NewClient(feed.Config{
		BaseURL:   cfg.Feed.URL,
		APIKey:    cfg.Feed.APIKey.Value(),
		Pairs:     cfg.Feed.Pairs,
		RateLimit: cfg.Feed.RateLimit,
		Timeout:   cfg.Feed.Timeout,
		Malformed: m.MalformedEntries,
	}, log)
	if err != nil {
		return &ConfigError{Err: err}
	}

	var recorder journal.Recorder = journal.NewLogRecorder(log)
	if cfg.Journal.RedisURL != "" {
		rdb, err := journal.NewRedisClient(ctx, cfg.Journal.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		recorder = journal.Multi{recorder, journal.NewRedisRecorder(rdb, cfg.Journal.Key, cfg.Journal.MaxLen)}
		log.Info("Recording outcomes to redis", zap.String("key", cfg.Journal.Key))
	}

	eng, err := engine.New(engine.Config{
		Filter:       arbitrage.NewFilter(cfg.MinProfitWei(), cfg.Strategy.MaxSlippage),
		PollInterval: cfg.Engine.PollInterval,
		Cooldown:     cfg.Engine.Cooldown,
		MaxCooldown:  cfg.Engine.MaxCooldown,
		DedupSize:    cfg.Engine.DedupSize,
	}, engine.Deps{
		Feed:      opportunities,
		Builder:   builder,
		Submitter: submitter,
		Sequencer: sequencer,
		Recorder:  recorder,
		Metrics:   m,
	}, log)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return eng.Run(gctx)
	})
	if cfg.Metrics.ListenAddr != "" {
		g.Go(func() error {
			return metrics.Serve(gctx, cfg.Metrics.ListenAddr)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("Shutting down gracefully")
	return nil
}

// relayAuthKey returns the configured relay signing key, or an ephemeral
// one when none is configured. The relay key only identifies the searcher.
func relayAuthKey(configured config.Secret, log *zap.Logger) (*ecdsa.PrivateKey, error) {
	if configured.Empty() {
		key, err := crypto.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("failed to generate relay auth key: %w", err)
		}
		log.Warn("No relay signer key configured, using an ephemeral one",
			zap.String("relay_identity", crypto.PubkeyToAddress(key.PublicKey).Hex()))
		return key, nil
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(configured.Value()), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid relay signer key")
	}
	return key, nil
}
