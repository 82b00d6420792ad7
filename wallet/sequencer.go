package wallet

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/arbengine/types"
)

// NonceSource reads the wallet's transaction count from the node
type NonceSource interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// Sequencer owns the next nonce of the signing wallet. It is the single
// serialization point for nonce allocation; every method is safe for
// concurrent use. The node is only consulted by Sync and Resync.
type Sequencer struct {
	mu      sync.Mutex
	address common.Address
	source  NonceSource
	logger  *zap.Logger

	next   uint64
	synced bool
	stale  bool
}

// NewSequencer creates an uninitialized sequencer for address
func NewSequencer(address common.Address, source NonceSource, logger *zap.Logger) *Sequencer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sequencer{
		address: address,
		source:  source,
		logger:  logger.Named("sequencer"),
	}
}

// Address returns the signing identity the sequencer serves
func (s *Sequencer) Address() common.Address {
	return s.address
}

// Sync reads the wallet's current transaction count at startup
func (s *Sequencer) Sync(ctx context.Context) error {
	if err := s.load(ctx); err != nil {
		return fmt.Errorf("%w: %v", types.ErrSequencerUninitialized, err)
	}
	return nil
}

// Resync re-reads the transaction count after an ambiguous outcome
func (s *Sequencer) Resync(ctx context.Context) error {
	if err := s.load(ctx); err != nil {
		return fmt.Errorf("failed to resync nonce: %w", err)
	}
	return nil
}

func (s *Sequencer) load(ctx context.Context) error {
	// the node call happens outside the lock
	nonce, err := s.source.PendingNonceAt(ctx, s.address)
	if err != nil {
		return err
	}

	s.mu.Lock()
	prev, wasSynced := s.next, s.synced
	s.next = nonce
	s.synced = true
	s.stale = false
	s.mu.Unlock()

	s.logger.Info("Nonce synchronized",
		zap.String("address", s.address.Hex()),
		zap.Uint64("nonce", nonce),
		zap.Bool("resync", wasSynced),
		zap.Uint64("previous", prev))
	return nil
}

// Allocate returns the current nonce and increments the counter
func (s *Sequencer) Allocate() (uint64, error) {
	return s.AllocateN(1)
}

// AllocateN reserves n contiguous nonces and returns the first one
func (s *Sequencer) AllocateN(n uint64) (uint64, error) {
	if n == 0 {
		return 0, fmt.Errorf("cannot allocate zero nonces")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usableLocked(); err != nil {
		return 0, err
	}
	first := s.next
	s.next += n
	return first, nil
}

// Release returns [first, first+n) for reuse. It only rewinds when the range
// is the most recent allocation; otherwise later nonces are already handed out
// and the sequencer is invalidated so it resyncs before the next allocation.
func (s *Sequencer) Release(first, n uint64) bool {
	if n == 0 {
		return true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.usableLocked() != nil {
		return false
	}
	if first+n != s.next {
		s.stale = true
		s.logger.Warn("Released nonces are not the allocation tail, resync required",
			zap.Uint64("first", first),
			zap.Uint64("count", n),
			zap.Uint64("next", s.next))
		return false
	}
	s.next = first
	return true
}

// Invalidate marks the local counter as possibly diverged from the chain
func (s *Sequencer) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stale = true
}

// Stale reports whether a resync is required before allocating
func (s *Sequencer) Stale() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stale
}

// Next returns the nonce the next allocation would return
func (s *Sequencer) Next() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usableLocked(); err != nil {
		return 0, err
	}
	return s.next, nil
}

func (s *Sequencer) usableLocked() error {
	if !s.synced {
		return types.ErrSequencerUninitialized
	}
	if s.stale {
		return types.ErrSequencerStale
	}
	return nil
}
