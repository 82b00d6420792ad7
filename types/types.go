package types

import (
	"fmt"
	"math/big"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

// Opportunity represents a candidate arbitrage trade reported by the feed.
// Amounts are in wei, slippage is a percentage.
type Opportunity struct {
	Pair            string
	ContractAddress common.Address
	OptimalAmount   *big.Int
	ExpectedProfit  *big.Int
	Slippage        float64
}

// Amount returns a copy of the optimal input amount
func (o Opportunity) Amount() *big.Int {
	return copyInt(o.OptimalAmount)
}

// Profit returns a copy of the expected profit
func (o Opportunity) Profit() *big.Int {
	return copyInt(o.ExpectedProfit)
}

// HasProfit reports whether a profit transfer is due
func (o Opportunity) HasProfit() bool {
	return o.ExpectedProfit != nil && o.ExpectedProfit.Sign() > 0
}

// Fingerprint identifies an opportunity across polls.
func (o Opportunity) Fingerprint() uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(o.Pair)
	_, _ = d.Write(o.ContractAddress.Bytes())
	if o.OptimalAmount != nil {
		_, _ = d.Write(o.OptimalAmount.Bytes())
	}
	_, _ = d.Write([]byte{0})
	if o.ExpectedProfit != nil {
		_, _ = d.Write(o.ExpectedProfit.Bytes())
	}
	return d.Sum64()
}

func (o Opportunity) String() string {
	return fmt.Sprintf("%s@%s", o.Pair, o.ContractAddress.Hex())
}

// StepKind identifies the role of a transaction inside a bundle
type StepKind int

const (
	StepArbitrage StepKind = iota
	StepProfitTransfer
)

func (k StepKind) String() string {
	switch k {
	case StepArbitrage:
		return "arbitrage"
	case StepProfitTransfer:
		return "profit_transfer"
	default:
		return "unknown"
	}
}

// TransactionStep is one signed transaction of a bundle
type TransactionStep struct {
	Index    int
	Kind     StepKind
	To       common.Address
	Value    *big.Int
	GasLimit uint64
	GasPrice *big.Int
	Data     []byte
	Nonce    uint64
	Tx       *ethtypes.Transaction
}

// Hash returns the signed transaction hash, or the zero hash if unsigned
func (s TransactionStep) Hash() common.Hash {
	if s.Tx == nil {
		return common.Hash{}
	}
	return s.Tx.Hash()
}

// Raw returns the hex encoded signed transaction
func (s TransactionStep) Raw() (string, error) {
	if s.Tx == nil {
		return "", fmt.Errorf("step %d is not signed", s.Index)
	}
	b, err := s.Tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("failed to encode step %d: %w", s.Index, err)
	}
	return hexutil.Encode(b), nil
}

// Bundle is the ordered set of transactions built for one opportunity
type Bundle struct {
	Opportunity Opportunity
	Steps       []TransactionStep
}

// Nonces returns the first nonce of the bundle and the number of steps
func (b Bundle) Nonces() (first uint64, count uint64) {
	if len(b.Steps) == 0 {
		return 0, 0
	}
	return b.Steps[0].Nonce, uint64(len(b.Steps))
}

// Validate checks that the bundle has 1-2 steps with contiguous increasing nonces
func (b Bundle) Validate() error {
	if len(b.Steps) == 0 || len(b.Steps) > 2 {
		return fmt.Errorf("bundle must have 1 or 2 steps, got %d", len(b.Steps))
	}
	if b.Steps[0].Kind != StepArbitrage {
		return fmt.Errorf("first step must be the arbitrage call, got %s", b.Steps[0].Kind)
	}
	for i := 1; i < len(b.Steps); i++ {
		if b.Steps[i].Nonce != b.Steps[i-1].Nonce+1 {
			return fmt.Errorf("non-contiguous nonces %d -> %d", b.Steps[i-1].Nonce, b.Steps[i].Nonce)
		}
	}
	return nil
}

// RawTxs returns the hex encoded signed transactions in submission order
func (b Bundle) RawTxs() ([]string, error) {
	txs := make([]string, 0, len(b.Steps))
	for _, step := range b.Steps {
		raw, err := step.Raw()
		if err != nil {
			return nil, err
		}
		txs = append(txs, raw)
	}
	return txs, nil
}

// TxHashes returns the hashes of all signed steps
func (b Bundle) TxHashes() []common.Hash {
	hashes := make([]common.Hash, 0, len(b.Steps))
	for _, step := range b.Steps {
		hashes = append(hashes, step.Hash())
	}
	return hashes
}

// OutcomeKind classifies the result of one execution attempt
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeRelayRejected
	OutcomePartialExecution
	OutcomeSubmissionTimeout
	OutcomeBuildFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeRelayRejected:
		return "relay_rejected"
	case OutcomePartialExecution:
		return "partial_execution"
	case OutcomeSubmissionTimeout:
		return "submission_timeout"
	case OutcomeBuildFailed:
		return "build_failed"
	default:
		return "unknown"
	}
}

// ExecutionOutcome records what happened to one opportunity
type ExecutionOutcome struct {
	ID          string // attempt id assigned by the engine
	Opportunity string
	Pair        string
	Kind        OutcomeKind
	Success     bool
	TxHashes    []common.Hash
	BundleHash  string
	FirstNonce  uint64
	StepCount   int
	Err         error
	Latency     time.Duration
}

// NewOutcome builds an outcome for the bundle from an error, nil meaning success
func NewOutcome(b Bundle, err error) ExecutionOutcome {
	first, count := b.Nonces()
	out := ExecutionOutcome{
		Opportunity: b.Opportunity.String(),
		Pair:        b.Opportunity.Pair,
		Kind:        KindOf(err),
		TxHashes:    b.TxHashes(),
		FirstNonce:  first,
		StepCount:   int(count),
		Err:         err,
	}
	out.Success = out.Kind == OutcomeSuccess
	return out
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
