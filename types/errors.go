package types

import "errors"

// Failure taxonomy of the engine. Components wrap these with context using %w.
var (
	// ErrFeedUnavailable means the feed could not be reached or answered non-2xx
	ErrFeedUnavailable = errors.New("feed unavailable")
	// ErrFeedMalformed means the feed answered but the body is not an opportunity list
	ErrFeedMalformed = errors.New("feed response malformed")

	// ErrRelayRejected means the relay declined the submission with no on-chain effect
	ErrRelayRejected = errors.New("relay rejected submission")
	// ErrPartialExecution means on-chain state diverged from the bundle intent
	ErrPartialExecution = errors.New("partial execution")
	// ErrSubmissionTimeout means the submission outcome is unknown
	ErrSubmissionTimeout = errors.New("submission timed out")

	// ErrSequencerUninitialized is returned by allocations before the startup sync
	ErrSequencerUninitialized = errors.New("wallet sequencer not initialized")
	// ErrSequencerStale is returned by allocations after an ambiguous outcome until resync
	ErrSequencerStale = errors.New("wallet sequencer requires resync")
)

// KindOf maps an execution error to its outcome kind. A nil error is a success.
func KindOf(err error) OutcomeKind {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrPartialExecution):
		return OutcomePartialExecution
	case errors.Is(err, ErrSubmissionTimeout):
		return OutcomeSubmissionTimeout
	case errors.Is(err, ErrRelayRejected):
		return OutcomeRelayRejected
	default:
		return OutcomeBuildFailed
	}
}
