package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/arbengine/chain"
	"github.com/michaelpento.lv/arbengine/config"
	"github.com/michaelpento.lv/arbengine/flashbots"
	"github.com/michaelpento.lv/arbengine/types"
)

// Relay is the private submission channel. *flashbots.Client implements it.
type Relay interface {
	SendBundle(ctx context.Context, args flashbots.SendBundleArgs) (common.Hash, error)
	CallBundle(ctx context.Context, args flashbots.CallBundleArgs) (*flashbots.CallBundleResponse, error)
	SendPrivateTransaction(ctx context.Context, args flashbots.SendPrivateTxArgs) (common.Hash, error)
}

// Config contains the submission settings
type Config struct {
	Mode        string // config.ModeBundle or config.ModeSequential
	Simulate    bool
	BlockRange  uint64
	BlockTime   time.Duration // when set, Timeout must cover BlockRange
	Timeout     time.Duration
	ReceiptPoll time.Duration
}

// Submitter sends bundles through the relay and reports their outcome
type Submitter struct {
	cfg    Config
	relay  Relay
	chain  chain.Client
	logger *zap.Logger
}

// NewSubmitter creates a new execution submitter
func NewSubmitter(cfg Config, relay Relay, client chain.Client, logger *zap.Logger) (*Submitter, error) {
	if relay == nil || client == nil {
		return nil, fmt.Errorf("relay and chain client are required")
	}
	if cfg.Mode != config.ModeBundle && cfg.Mode != config.ModeSequential {
		return nil, fmt.Errorf("unknown submission mode %q", cfg.Mode)
	}
	if cfg.BlockRange == 0 {
		cfg.BlockRange = 1
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("submission timeout must be positive")
	}
	if floor := chain.MinWaitTimeout(cfg.BlockRange, cfg.BlockTime); cfg.Timeout < floor {
		return nil, fmt.Errorf("submission timeout %s is shorter than the %d block inclusion window (%s)", cfg.Timeout, cfg.BlockRange, floor)
	}
	if cfg.ReceiptPoll <= 0 {
		cfg.ReceiptPoll = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Submitter{
		cfg:    cfg,
		relay:  relay,
		chain:  client,
		logger: logger.Named("executor"),
	}, nil
}

// Submit sends the bundle steps in nonce order and waits for the result,
// bounded by the submission timeout.
func (s *Submitter) Submit(ctx context.Context, bundle types.Bundle) types.ExecutionOutcome {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	var (
		bundleHash common.Hash
		err        error
	)
	if verr := bundle.Validate(); verr != nil {
		err = fmt.Errorf("%w: %v", types.ErrRelayRejected, verr)
	} else if s.cfg.Mode == config.ModeSequential {
		err = s.submitSequential(ctx, bundle)
	} else {
		bundleHash, err = s.submitBundle(ctx, bundle)
	}

	out := types.NewOutcome(bundle, err)
	if bundleHash != (common.Hash{}) {
		out.BundleHash = bundleHash.Hex()
	}
	out.Latency = time.Since(start)
	return out
}

func (s *Submitter) submitBundle(ctx context.Context, bundle types.Bundle) (common.Hash, error) {
	txs, err := bundle.RawTxs()
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: %v", types.ErrRelayRejected, err)
	}

	head, err := s.chain.BlockNumber(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: failed to get block number: %v", types.ErrRelayRejected, err)
	}
	lastBlock := head + s.cfg.BlockRange

	if s.cfg.Simulate {
		if err := s.simulate(ctx, txs, head+1); err != nil {
			return common.Hash{}, err
		}
	}

	var (
		bundleHash common.Hash
		accepted   int
		lastErr    error
	)
	for block := head + 1; block <= lastBlock; block++ {
		hash, err := s.relay.SendBundle(ctx, flashbots.SendBundleArgs{
			Txs:         txs,
			BlockNumber: hexutil.Uint64(block),
		})
		if err != nil {
			s.logger.Warn("Bundle submission failed",
				zap.Stringer("opportunity", bundle.Opportunity),
				zap.Uint64("target_block", block),
				zap.Error(err))
			lastErr = err
			if accepted == 0 && errors.Is(err, types.ErrSubmissionTimeout) {
				// the relay may hold the bundle, stop sending more targets
				return common.Hash{}, err
			}
			continue
		}
		if accepted == 0 {
			bundleHash = hash
		}
		accepted++
	}
	if accepted == 0 {
		return common.Hash{}, lastErr
	}

	s.logger.Info("Bundle submitted",
		zap.Stringer("opportunity", bundle.Opportunity),
		zap.String("bundle_hash", bundleHash.Hex()),
		zap.Uint64("first_block", head+1),
		zap.Uint64("last_block", lastBlock),
		zap.Int("accepted_targets", accepted))

	return bundleHash, s.awaitBundle(ctx, bundle, lastBlock)
}

func (s *Submitter) simulate(ctx context.Context, txs []string, block uint64) error {
	res, err := s.relay.CallBundle(ctx, flashbots.CallBundleArgs{
		Txs:              txs,
		BlockNumber:      hexutil.Uint64(block),
		StateBlockNumber: "latest",
	})
	if err != nil {
		// a simulation never reaches a builder
		return fmt.Errorf("%w: simulation failed: %v", types.ErrRelayRejected, err)
	}
	if err := res.Failure(); err != nil {
		return fmt.Errorf("%w: %v", types.ErrRelayRejected, err)
	}
	return nil
}

// awaitBundle waits for the bundle steps to land. All steps share one
// bundle, so either every receipt is found or none is.
func (s *Submitter) awaitBundle(ctx context.Context, bundle types.Bundle, lastBlock uint64) error {
	for i, step := range bundle.Steps {
		receipt, err := s.wait(ctx, step, lastBlock)
		switch {
		case err == nil:
		case errors.Is(err, chain.ErrNotIncluded) && i == 0:
			return fmt.Errorf("%w: bundle dropped: %v", types.ErrRelayRejected, err)
		case errors.Is(err, chain.ErrNotIncluded):
			return fmt.Errorf("%w: %s step missing after arbitrage landed: %v", types.ErrPartialExecution, step.Kind, err)
		default:
			return fmt.Errorf("%w: waiting for %s step: %v", types.ErrSubmissionTimeout, step.Kind, err)
		}

		if receipt.Status != ethtypes.ReceiptStatusSuccessful {
			return fmt.Errorf("%w: %s step %s reverted", types.ErrPartialExecution, step.Kind, step.Hash().Hex())
		}
	}
	return nil
}

// submitSequential sends one step at a time. Each step gets its own window
// of BlockRange blocks starting at the head seen when it is sent.
func (s *Submitter) submitSequential(ctx context.Context, bundle types.Bundle) error {
	for i, step := range bundle.Steps {
		head, err := s.chain.BlockNumber(ctx)
		if err != nil {
			return s.sequentialFailure(i, fmt.Errorf("failed to get block number: %v", err))
		}
		lastBlock := head + s.cfg.BlockRange

		raw, err := step.Raw()
		if err != nil {
			return s.sequentialFailure(i, err)
		}

		_, err = s.relay.SendPrivateTransaction(ctx, flashbots.SendPrivateTxArgs{
			Tx:             raw,
			MaxBlockNumber: hexutil.Uint64(lastBlock),
			Preferences:    &flashbots.PrivateTxPreferences{Fast: true},
		})
		if err != nil {
			if i == 0 {
				return err
			}
			return s.sequentialFailure(i, err)
		}

		s.logger.Info("Private transaction submitted",
			zap.Stringer("opportunity", bundle.Opportunity),
			zap.Stringer("step", step.Kind),
			zap.Uint64("nonce", step.Nonce),
			zap.String("tx_hash", step.Hash().Hex()))

		receipt, err := s.wait(ctx, step, lastBlock)
		switch {
		case err == nil:
		case errors.Is(err, chain.ErrNotIncluded) && i == 0:
			return fmt.Errorf("%w: transaction expired: %v", types.ErrRelayRejected, err)
		case errors.Is(err, chain.ErrNotIncluded):
			return s.sequentialFailure(i, err)
		default:
			return fmt.Errorf("%w: waiting for %s step: %v", types.ErrSubmissionTimeout, step.Kind, err)
		}

		if receipt.Status != ethtypes.ReceiptStatusSuccessful {
			// the nonce is consumed, later steps must not be sent
			return fmt.Errorf("%w: %s step %s reverted", types.ErrPartialExecution, step.Kind, step.Hash().Hex())
		}
	}
	return nil
}

func (s *Submitter) sequentialFailure(i int, err error) error {
	if i == 0 {
		return fmt.Errorf("%w: %v", types.ErrRelayRejected, err)
	}
	return fmt.Errorf("%w: step %d failed after earlier steps landed: %v", types.ErrPartialExecution, i, err)
}

func (s *Submitter) wait(ctx context.Context, step types.TransactionStep, lastBlock uint64) (*ethtypes.Receipt, error) {
	return chain.WaitMined(ctx, s.chain, step.Hash(), lastBlock, s.cfg.ReceiptPoll)
}
