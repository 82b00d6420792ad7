package gas

import (
	"context"
	"math/big"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

const priceKey = "gas_price"

// PriceSource suggests a gas price. *ethclient.Client implements it.
type PriceSource interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// Config holds the oracle bounds in wei
type Config struct {
	Fallback *big.Int
	Max      *big.Int
	TTL      time.Duration
}

// Oracle provides the gas price used for every bundle step. The node
// suggestion is cached for TTL; when the node fails the configured fallback
// is used, and the result never exceeds Max.
type Oracle struct {
	source PriceSource
	cfg    Config
	cache  *cache.Cache
	logger *zap.Logger
}

// NewOracle creates a new gas oracle. A nil source always yields the fallback.
func NewOracle(source PriceSource, cfg Config, logger *zap.Logger) *Oracle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Oracle{
		source: source,
		cfg:    cfg,
		cache:  cache.New(cfg.TTL, 2*cfg.TTL),
		logger: logger.Named("gas"),
	}
}

// GasPrice returns the current gas price in wei
func (o *Oracle) GasPrice(ctx context.Context) *big.Int {
	if v, ok := o.cache.Get(priceKey); ok {
		return new(big.Int).Set(v.(*big.Int))
	}

	price := o.suggest(ctx)
	o.cache.Set(priceKey, price, cache.DefaultExpiration)
	return new(big.Int).Set(price)
}

func (o *Oracle) suggest(ctx context.Context) *big.Int {
	price := new(big.Int).Set(o.cfg.Fallback)
	if o.source != nil {
		suggested, err := o.source.SuggestGasPrice(ctx)
		switch {
		case err != nil:
			o.logger.Warn("Failed to get gas price suggestion, using fallback",
				zap.String("fallback", o.cfg.Fallback.String()),
				zap.Error(err))
		case suggested == nil || suggested.Sign() <= 0:
			o.logger.Warn("Node suggested an invalid gas price, using fallback")
		default:
			price = suggested
		}
	}

	if o.cfg.Max != nil && o.cfg.Max.Sign() > 0 && price.Cmp(o.cfg.Max) > 0 {
		o.logger.Warn("Gas price capped",
			zap.String("suggested", price.String()),
			zap.String("max", o.cfg.Max.String()))
		price = new(big.Int).Set(o.cfg.Max)
	}
	return price
}
