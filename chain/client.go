package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ErrNotIncluded is returned when the chain moved past the last block a
// transaction could have been included in.
var ErrNotIncluded = errors.New("transaction not included")

// Client defines the node operations the engine depends on.
// *ethclient.Client implements it.
type Client interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// Dial connects to the node RPC endpoint
func Dial(ctx context.Context, url string) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum node: %w", err)
	}
	return client, nil
}

// ResolveChainID returns configured when non-zero, otherwise asks the node
func ResolveChainID(ctx context.Context, c Client, configured uint64) (*big.Int, error) {
	if configured != 0 {
		return new(big.Int).SetUint64(configured), nil
	}
	id, err := c.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}
	return id, nil
}

// MinWaitTimeout returns the shortest wait after which a transaction
// targeted at the blockRange blocks following the current head is known to be
// included or dropped. The head may already be one block old, and one more
// block is allowed for receipt polling and late blocks.
func MinWaitTimeout(blockRange uint64, blockTime time.Duration) time.Duration {
	return time.Duration(blockRange+2) * blockTime
}

// WaitMined polls for the receipt of hash until it is available, the chain
// passes lastBlock (0 disables the check) or ctx is done. Node errors other
// than a missing receipt are retried on the next poll and reported if ctx
// ends first.
func WaitMined(ctx context.Context, c Client, hash common.Hash, lastBlock uint64, poll time.Duration) (*ethtypes.Receipt, error) {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	var nodeErr error
	for {
		receipt, err := c.TransactionReceipt(ctx, hash)
		switch {
		case err == nil && receipt != nil:
			return receipt, nil
		case err != nil && !IsNotFound(err):
			nodeErr = err
		}
		if ctx.Err() != nil {
			return nil, waitErr(ctx, nodeErr)
		}

		if lastBlock > 0 {
			head, err := c.BlockNumber(ctx)
			if err != nil {
				nodeErr = err
			} else if head > lastBlock {
				// the tx may have landed between the two calls
				if receipt, err := c.TransactionReceipt(ctx, hash); err == nil && receipt != nil {
					return receipt, nil
				}
				return nil, fmt.Errorf("%w: head %d past block %d", ErrNotIncluded, head, lastBlock)
			}
		}

		select {
		case <-ctx.Done():
			return nil, waitErr(ctx, nodeErr)
		case <-ticker.C:
		}
	}
}

func waitErr(ctx context.Context, nodeErr error) error {
	if nodeErr != nil {
		return fmt.Errorf("%w (last node error: %v)", ctx.Err(), nodeErr)
	}
	return ctx.Err()
}

// IsNotFound reports whether err is the node's missing-object error
func IsNotFound(err error) bool {
	return errors.Is(err, ethereum.NotFound)
}
