package journal

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/michaelpento.lv/arbengine/types"
)

// Recorder receives every execution outcome
type Recorder interface {
	Record(ctx context.Context, out types.ExecutionOutcome) error
}

// Entry is the serialized form of an outcome
type Entry struct {
	ID          string    `json:"id"`
	Opportunity string    `json:"opportunity"`
	Pair        string    `json:"pair"`
	Kind        string    `json:"kind"`
	Success     bool      `json:"success"`
	TxHashes    []string  `json:"tx_hashes,omitempty"`
	BundleHash  string    `json:"bundle_hash,omitempty"`
	FirstNonce  uint64    `json:"first_nonce"`
	StepCount   int       `json:"step_count"`
	Error       string    `json:"error,omitempty"`
	LatencyMs   int64     `json:"latency_ms"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// NewEntry converts an outcome at the given time
func NewEntry(out types.ExecutionOutcome, at time.Time) Entry {
	e := Entry{
		ID:          out.ID,
		Opportunity: out.Opportunity,
		Pair:        out.Pair,
		Kind:        out.Kind.String(),
		Success:     out.Success,
		BundleHash:  out.BundleHash,
		FirstNonce:  out.FirstNonce,
		StepCount:   out.StepCount,
		LatencyMs:   out.Latency.Milliseconds(),
		RecordedAt:  at.UTC(),
	}
	for _, h := range out.TxHashes {
		e.TxHashes = append(e.TxHashes, h.Hex())
	}
	if out.Err != nil {
		e.Error = out.Err.Error()
	}
	return e
}

// LogRecorder writes outcomes to the structured log
type LogRecorder struct {
	logger *zap.Logger
}

func NewLogRecorder(logger *zap.Logger) *LogRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogRecorder{logger: logger.Named("journal")}
}

func (r *LogRecorder) Record(ctx context.Context, out types.ExecutionOutcome) error {
	hashes := make([]string, 0, len(out.TxHashes))
	for _, h := range out.TxHashes {
		hashes = append(hashes, h.Hex())
	}

	fields := []zap.Field{
		zap.String("id", out.ID),
		zap.String("opportunity", out.Opportunity),
		zap.String("kind", out.Kind.String()),
		zap.Strings("tx_hashes", hashes),
		zap.Uint64("first_nonce", out.FirstNonce),
		zap.Int("steps", out.StepCount),
		zap.Duration("latency", out.Latency),
	}
	if out.BundleHash != "" {
		fields = append(fields, zap.String("bundle_hash", out.BundleHash))
	}

	switch out.Kind {
	case types.OutcomeSuccess:
		r.logger.Info("Execution succeeded", fields...)
	case types.OutcomePartialExecution:
		r.logger.Error("Partial execution, on-chain state diverged from bundle", append(fields, zap.Error(out.Err))...)
	default:
		r.logger.Warn("Execution failed", append(fields, zap.Error(out.Err))...)
	}
	return nil
}

// Multi fans an outcome out to several recorders
type Multi []Recorder

func (m Multi) Record(ctx context.Context, out types.ExecutionOutcome) error {
	var errs []error
	for _, r := range m {
		if err := r.Record(ctx, out); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
