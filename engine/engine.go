package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/arbengine/journal"
	"github.com/michaelpento.lv/arbengine/strategies/arbitrage"
	"github.com/michaelpento.lv/arbengine/types"
	"github.com/michaelpento.lv/arbengine/utils"
	"github.com/michaelpento.lv/arbengine/utils/metrics"
)

// Feed returns the current candidate opportunities. *feed.Client implements it.
type Feed interface {
	Fetch(ctx context.Context) ([]types.Opportunity, error)
}

// Builder turns an opportunity into a signed bundle. *bundler.Builder implements it.
type Builder interface {
	Build(ctx context.Context, opp types.Opportunity) (types.Bundle, error)
}

// Submitter executes a bundle. *executor.Submitter implements it.
type Submitter interface {
	Submit(ctx context.Context, bundle types.Bundle) types.ExecutionOutcome
}

// Sequencer owns the wallet nonce. *wallet.Sequencer implements it.
type Sequencer interface {
	Sync(ctx context.Context) error
	Resync(ctx context.Context) error
	Release(first, n uint64) bool
	Invalidate()
	Stale() bool
	Next() (uint64, error)
}

// Config contains the loop timing and thresholds
type Config struct {
	Filter       arbitrage.Filter
	PollInterval time.Duration
	Cooldown     time.Duration
	MaxCooldown  time.Duration
	DedupSize    int
}

// Deps are the collaborators of the engine
type Deps struct {
	Feed      Feed
	Builder   Builder
	Submitter Submitter
	Sequencer Sequencer
	Recorder  journal.Recorder
	Metrics   *metrics.EngineMetrics
}

// Engine drives the Polling -> Evaluating -> Executing -> Cooling loop. It
// processes one opportunity at a time; an external stop is honored between
// opportunities and never interrupts a submission in flight.
type Engine struct {
	cfg       Config
	feed      Feed
	filter    arbitrage.Filter
	builder   Builder
	submitter Submitter
	sequencer Sequencer
	recorder  journal.Recorder
	metrics   *metrics.EngineMetrics
	logger    *zap.Logger

	state   atomic.Int32
	cooling *backoff.ExponentialBackOff
	seen    *lru.Cache
	newID   func() string
}

// New creates a new engine
func New(cfg Config, deps Deps, logger *zap.Logger) (*Engine, error) {
	if deps.Feed == nil || deps.Builder == nil || deps.Submitter == nil || deps.Sequencer == nil {
		return nil, fmt.Errorf("feed, builder, submitter and sequencer are required")
	}
	if cfg.PollInterval < 0 || cfg.Cooldown <= 0 {
		return nil, fmt.Errorf("poll interval and cooldown must be positive")
	}
	if cfg.MaxCooldown < cfg.Cooldown {
		cfg.MaxCooldown = cfg.Cooldown
	}
	if cfg.DedupSize <= 0 {
		cfg.DedupSize = 1024
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	seen, err := lru.New(cfg.DedupSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create dedup cache: %w", err)
	}

	recorder := deps.Recorder
	if recorder == nil {
		recorder = journal.NewLogRecorder(logger)
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.NewEngineMetrics("arbengine", prometheus.NewRegistry())
	}

	cooling := backoff.NewExponentialBackOff()
	cooling.InitialInterval = cfg.Cooldown
	cooling.MaxInterval = cfg.MaxCooldown
	cooling.Multiplier = 2
	cooling.RandomizationFactor = 0
	cooling.MaxElapsedTime = 0
	cooling.Reset()

	return &Engine{
		cfg:       cfg,
		feed:      deps.Feed,
		filter:    cfg.Filter,
		builder:   deps.Builder,
		submitter: deps.Submitter,
		sequencer: deps.Sequencer,
		recorder:  recorder,
		metrics:   m,
		logger:    logger.Named("engine"),
		cooling:   cooling,
		seen:      seen,
		newID:     uuid.NewString,
	}, nil
}

// State returns the current loop state
func (e *Engine) State() State {
	return State(e.state.Load())
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
	e.metrics.State.Set(float64(s))
}

// Run synchronizes the wallet nonce and loops until ctx is canceled. A failed
// startup sync is returned; cancellation returns nil.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.sequencer.Sync(ctx); err != nil {
		return fmt.Errorf("failed to initialize wallet sequencer: %w", err)
	}
	e.updateNonce()

	e.logger.Info("Engine started",
		zap.Duration("poll_interval", e.cfg.PollInterval),
		zap.Duration("cooldown", e.cfg.Cooldown),
		zap.String("min_profit_eth", utils.WeiToEther(e.filter.MinProfit)),
		zap.Float64("max_slippage", e.filter.MaxSlippage))

	defer e.setState(StateStopped)
	for {
		if ctx.Err() != nil {
			break
		}
		delay := e.Poll(ctx)
		if !sleep(ctx, delay) {
			break
		}
	}

	e.logger.Info("Engine stopped")
	return nil
}

// Poll runs one Polling -> Evaluating -> Executing cycle, or Polling ->
// Cooling when the feed fails, and returns the delay before the next poll.
func (e *Engine) Poll(ctx context.Context) time.Duration {
	e.setState(StatePolling)
	e.metrics.PollsTotal.Inc()

	opps, err := e.feed.Fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return 0
		}
		return e.cool(err)
	}
	e.cooling.Reset()
	e.metrics.OpportunitiesFetched.Add(float64(len(opps)))

	e.setState(StateEvaluating)
	var accepted []types.Opportunity
	for _, opp := range opps {
		if reason := e.filter.Evaluate(opp); reason != arbitrage.ReasonAccepted {
			e.metrics.Rejected.Inc()
			e.logger.Debug("Opportunity rejected",
				zap.Stringer("opportunity", opp),
				zap.String("reason", reason))
			continue
		}
		accepted = append(accepted, opp)
	}
	e.metrics.Accepted.Add(float64(len(accepted)))

	if len(accepted) > 0 {
		e.setState(StateExecuting)
	}
	for i, opp := range accepted {
		if ctx.Err() != nil {
			e.logger.Info("Stop requested, leaving remaining opportunities",
				zap.Int("remaining", len(accepted)-i))
			return 0
		}
		if e.seen.Contains(opp.Fingerprint()) {
			e.metrics.Duplicates.Inc()
			e.logger.Debug("Skipping already attempted opportunity", zap.Stringer("opportunity", opp))
			continue
		}
		e.execute(ctx, opp)
	}

	e.setState(StatePolling)
	return e.cfg.PollInterval
}

func (e *Engine) cool(err error) time.Duration {
	kind := "other"
	switch {
	case errors.Is(err, types.ErrFeedUnavailable):
		kind = "unavailable"
	case errors.Is(err, types.ErrFeedMalformed):
		kind = "malformed"
	}
	e.metrics.FeedErrors.WithLabelValues(kind).Inc()

	delay := e.cooling.NextBackOff()
	e.metrics.CooldownSeconds.Set(delay.Seconds())
	e.setState(StateCooling)

	e.logger.Warn("Feed poll failed, cooling down",
		zap.String("kind", kind),
		zap.Duration("cooldown", delay),
		zap.Error(err))
	return delay
}

func (e *Engine) execute(ctx context.Context, opp types.Opportunity) {
	id := e.newID()
	e.logger.Info("Executing opportunity",
		zap.String("id", id),
		zap.String("pair", opp.Pair),
		zap.String("contract", opp.ContractAddress.Hex()),
		zap.String("profit_eth", utils.WeiToEther(opp.ExpectedProfit)),
		zap.Float64("slippage", opp.Slippage))

	if e.sequencer.Stale() {
		e.resync(ctx)
	}

	bundle, err := e.builder.Build(ctx, opp)
	if err != nil {
		e.record(ctx, types.ExecutionOutcome{
			ID:          id,
			Opportunity: opp.String(),
			Pair:        opp.Pair,
			Kind:        types.OutcomeBuildFailed,
			Err:         err,
		})
		return
	}

	// a submission in flight is never interrupted by stop
	out := e.submitter.Submit(context.WithoutCancel(ctx), bundle)
	out.ID = id

	e.reconcile(ctx, bundle, out)
	e.record(ctx, out)
}

// reconcile applies the nonce policy of an outcome
func (e *Engine) reconcile(ctx context.Context, bundle types.Bundle, out types.ExecutionOutcome) {
	first, count := bundle.Nonces()

	switch out.Kind {
	case types.OutcomeSuccess:
		e.seen.Add(bundle.Opportunity.Fingerprint(), struct{}{})
		if bundle.Opportunity.HasProfit() && len(bundle.Steps) > 1 {
			profit, _ := new(big.Float).SetInt(bundle.Opportunity.ExpectedProfit).Float64()
			e.metrics.ProfitTransferredWei.Add(profit)
		}

	case types.OutcomeRelayRejected:
		if !e.sequencer.Release(first, count) {
			e.logger.Warn("Rejected nonces could not be reused, resync pending",
				zap.Uint64("first_nonce", first),
				zap.Uint64("count", count))
		}

	case types.OutcomeSubmissionTimeout, types.OutcomePartialExecution:
		e.seen.Add(bundle.Opportunity.Fingerprint(), struct{}{})
		e.sequencer.Invalidate()
		e.resync(ctx)
	}
}

func (e *Engine) resync(ctx context.Context) {
	if err := e.sequencer.Resync(ctx); err != nil {
		e.metrics.Resyncs.WithLabelValues("failure").Inc()
		e.logger.Error("Nonce resync failed, allocations blocked until next attempt", zap.Error(err))
		return
	}
	e.metrics.Resyncs.WithLabelValues("success").Inc()
	e.updateNonce()
}

func (e *Engine) record(ctx context.Context, out types.ExecutionOutcome) {
	e.metrics.Outcomes.WithLabelValues(out.Kind.String()).Inc()
	if out.Latency > 0 {
		e.metrics.SubmissionLatency.Observe(out.Latency.Seconds())
	}
	e.updateNonce()

	if err := e.recorder.Record(context.WithoutCancel(ctx), out); err != nil {
		e.logger.Warn("Failed to record outcome", zap.String("id", out.ID), zap.Error(err))
	}
}

func (e *Engine) updateNonce() {
	if next, err := e.sequencer.Next(); err == nil {
		e.metrics.NextNonce.Set(float64(next))
	}
}

// sleep waits for d and reports false if ctx ended first
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
