package bundler

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/arbengine/flashloan"
	"github.com/michaelpento.lv/arbengine/types"
)

// NonceAllocator hands out contiguous nonces. *wallet.Sequencer implements it.
type NonceAllocator interface {
	AllocateN(n uint64) (uint64, error)
	Release(first, n uint64) bool
}

// TxSigner signs transactions for the wallet. *wallet.Signer implements it.
type TxSigner interface {
	Address() common.Address
	SignTx(tx *ethtypes.Transaction, chainID *big.Int) (*ethtypes.Transaction, error)
}

// GasPricer returns the gas price for new steps. *gas.Oracle implements it.
type GasPricer interface {
	GasPrice(ctx context.Context) *big.Int
}

// PayloadEncoder packs the arbitrage call. *flashloan.Encoder implements it.
type PayloadEncoder interface {
	EncodeArbitrage(call flashloan.ArbitrageCall) ([]byte, error)
}

// Config contains the static transaction parameters
type Config struct {
	ChainID           *big.Int
	ProfitAddress     common.Address
	ArbitrageGasLimit uint64
	TransferGasLimit  uint64
}

// Builder turns an accepted opportunity into a signed bundle
type Builder struct {
	cfg     Config
	nonces  NonceAllocator
	signer  TxSigner
	gas     GasPricer
	encoder PayloadEncoder
	logger  *zap.Logger
}

// NewBuilder creates a new bundle builder
func NewBuilder(cfg Config, nonces NonceAllocator, signer TxSigner, gas GasPricer, encoder PayloadEncoder, logger *zap.Logger) (*Builder, error) {
	if cfg.ChainID == nil || cfg.ChainID.Sign() <= 0 {
		return nil, fmt.Errorf("chain id is required")
	}
	if nonces == nil || signer == nil || gas == nil || encoder == nil {
		return nil, fmt.Errorf("nonce allocator, signer, gas pricer and encoder are required")
	}
	if cfg.ArbitrageGasLimit == 0 || cfg.TransferGasLimit == 0 {
		return nil, fmt.Errorf("gas limits must be positive")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		cfg:     cfg,
		nonces:  nonces,
		signer:  signer,
		gas:     gas,
		encoder: encoder,
		logger:  logger.Named("bundler"),
	}, nil
}

// Build allocates nonces for opp and returns its signed bundle: the arbitrage
// call at nonce N and, when the opportunity reports a profit, the transfer of
// that profit to the profit wallet at N+1. The arbitrage proceeds go back to
// the gas wallet, which the transfer then drains to the profit wallet. Nonces
// reserved by a failed build are released before returning.
func (b *Builder) Build(ctx context.Context, opp types.Opportunity) (types.Bundle, error) {
	payload, err := b.encoder.EncodeArbitrage(flashloan.ArbitrageCall{
		Target:    opp.ContractAddress,
		Amount:    opp.Amount(),
		Recipient: b.signer.Address(),
	})
	if err != nil {
		return types.Bundle{}, fmt.Errorf("failed to encode arbitrage call: %w", err)
	}

	gasPrice := b.gas.GasPrice(ctx)

	steps := []types.TransactionStep{{
		Kind:     types.StepArbitrage,
		To:       opp.ContractAddress,
		Value:    opp.Amount(),
		GasLimit: b.cfg.ArbitrageGasLimit,
		GasPrice: gasPrice,
		Data:     payload,
	}}
	if opp.HasProfit() {
		steps = append(steps, types.TransactionStep{
			Kind:     types.StepProfitTransfer,
			To:       b.cfg.ProfitAddress,
			Value:    opp.Profit(),
			GasLimit: b.cfg.TransferGasLimit,
			GasPrice: new(big.Int).Set(gasPrice),
		})
	}

	count := uint64(len(steps))
	first, err := b.nonces.AllocateN(count)
	if err != nil {
		return types.Bundle{}, fmt.Errorf("failed to allocate nonce: %w", err)
	}

	for i := range steps {
		steps[i].Index = i
		steps[i].Nonce = first + uint64(i)
		if err := b.sign(&steps[i]); err != nil {
			b.release(first, count)
			return types.Bundle{}, err
		}
	}

	bundle := types.Bundle{Opportunity: opp, Steps: steps}
	if err := bundle.Validate(); err != nil {
		b.release(first, count)
		return types.Bundle{}, fmt.Errorf("invalid bundle: %w", err)
	}

	b.logger.Debug("Bundle built",
		zap.Stringer("opportunity", opp),
		zap.Uint64("first_nonce", first),
		zap.Int("steps", len(steps)),
		zap.String("gas_price", gasPrice.String()))

	return bundle, nil
}

func (b *Builder) sign(step *types.TransactionStep) error {
	to := step.To
	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    step.Nonce,
		To:       &to,
		Value:    step.Value,
		Gas:      step.GasLimit,
		GasPrice: step.GasPrice,
		Data:     step.Data,
	})

	signed, err := b.signer.SignTx(tx, b.cfg.ChainID)
	if err != nil {
		return fmt.Errorf("failed to sign %s step: %w", step.Kind, err)
	}
	step.Tx = signed
	return nil
}

func (b *Builder) release(first, count uint64) {
	if !b.nonces.Release(first, count) {
		b.logger.Warn("Could not release nonces of failed build",
			zap.Uint64("first_nonce", first),
			zap.Uint64("count", count))
	}
}
