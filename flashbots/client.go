package flashbots

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ybbus/jsonrpc/v3"

	"github.com/michaelpento.lv/arbengine/types"
)

const (
	methodSendBundle             = "eth_sendBundle"
	methodCallBundle             = "eth_callBundle"
	methodSendPrivateTransaction = "eth_sendPrivateTransaction"
)

// SendBundleArgs is the eth_sendBundle request object
type SendBundleArgs struct {
	Txs               []string       `json:"txs"`
	BlockNumber       hexutil.Uint64 `json:"blockNumber"`
	MinTimestamp      *uint64        `json:"minTimestamp,omitempty"`
	MaxTimestamp      *uint64        `json:"maxTimestamp,omitempty"`
	RevertingTxHashes []common.Hash  `json:"revertingTxHashes,omitempty"`
}

// SendBundleResponse is the eth_sendBundle result
type SendBundleResponse struct {
	BundleHash common.Hash `json:"bundleHash"`
}

// CallBundleArgs is the eth_callBundle request object
type CallBundleArgs struct {
	Txs              []string       `json:"txs"`
	BlockNumber      hexutil.Uint64 `json:"blockNumber"`
	StateBlockNumber string         `json:"stateBlockNumber"`
	Timestamp        *uint64        `json:"timestamp,omitempty"`
}

// CallBundleTxResult is the simulation result of one bundle transaction
type CallBundleTxResult struct {
	TxHash  common.Hash `json:"txHash"`
	GasUsed uint64      `json:"gasUsed"`
	Error   string      `json:"error,omitempty"`
	Revert  string      `json:"revert,omitempty"`
}

// CallBundleResponse is the eth_callBundle result
type CallBundleResponse struct {
	BundleHash       common.Hash          `json:"bundleHash"`
	BundleGasPrice   string               `json:"bundleGasPrice"`
	CoinbaseDiff     string               `json:"coinbaseDiff"`
	StateBlockNumber uint64               `json:"stateBlockNumber"`
	TotalGasUsed     uint64               `json:"totalGasUsed"`
	Results          []CallBundleTxResult `json:"results"`
}

// Failure returns the first failing transaction of the simulation, if any
func (r *CallBundleResponse) Failure() error {
	for _, res := range r.Results {
		if res.Error != "" || res.Revert != "" {
			return fmt.Errorf("tx %s failed in simulation: %s %s", res.TxHash.Hex(), res.Error, res.Revert)
		}
	}
	return nil
}

// PrivateTxPreferences controls private transaction delivery
type PrivateTxPreferences struct {
	Fast bool `json:"fast"`
}

// SendPrivateTxArgs is the eth_sendPrivateTransaction request object
type SendPrivateTxArgs struct {
	Tx             string                `json:"tx"`
	MaxBlockNumber hexutil.Uint64        `json:"maxBlockNumber,omitempty"`
	Preferences    *PrivateTxPreferences `json:"preferences,omitempty"`
}

// Config contains the relay client settings
type Config struct {
	RelayURL string
	AuthKey  *ecdsa.PrivateKey
	Timeout  time.Duration
}

// Client represents a Flashbots relay RPC client. Every request is signed
// with the relay authentication key, which is distinct from the wallet key.
type Client struct {
	rpc      jsonrpc.RPCClient
	relayURL string
}

// NewClient creates a new Flashbots client
func NewClient(cfg Config) (*Client, error) {
	if cfg.RelayURL == "" {
		return nil, fmt.Errorf("relay url is required")
	}
	if cfg.AuthKey == nil {
		return nil, fmt.Errorf("relay auth key is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}

	httpClient := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: newSigningTransport(cfg.AuthKey, nil),
	}

	return &Client{
		rpc: jsonrpc.NewClientWithOpts(cfg.RelayURL, &jsonrpc.RPCClientOpts{
			HTTPClient: httpClient,
		}),
		relayURL: cfg.RelayURL,
	}, nil
}

func (c *Client) String() string {
	return c.relayURL
}

// SendBundle submits a bundle for one target block
func (c *Client) SendBundle(ctx context.Context, args SendBundleArgs) (common.Hash, error) {
	var res SendBundleResponse
	if err := c.call(ctx, &res, methodSendBundle, []SendBundleArgs{args}); err != nil {
		return common.Hash{}, err
	}
	return res.BundleHash, nil
}

// CallBundle simulates a bundle on top of a state block
func (c *Client) CallBundle(ctx context.Context, args CallBundleArgs) (*CallBundleResponse, error) {
	var res CallBundleResponse
	if err := c.call(ctx, &res, methodCallBundle, []CallBundleArgs{args}); err != nil {
		return nil, err
	}
	return &res, nil
}

// SendPrivateTransaction submits a single signed transaction privately
func (c *Client) SendPrivateTransaction(ctx context.Context, args SendPrivateTxArgs) (common.Hash, error) {
	var hash common.Hash
	if err := c.call(ctx, &hash, methodSendPrivateTransaction, []SendPrivateTxArgs{args}); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}

func (c *Client) call(ctx context.Context, out interface{}, method string, params interface{}) error {
	res, err := c.rpc.Call(ctx, method, params)
	if err != nil {
		return fmt.Errorf("%s: %w", method, classify(err))
	}
	if res.Error != nil {
		return fmt.Errorf("%s: %w: %v", method, types.ErrRelayRejected, res.Error)
	}
	if err := res.GetObject(out); err != nil {
		// the relay answered, but the submission state is unknown
		return fmt.Errorf("%s: %w: failed to decode result: %v", method, types.ErrSubmissionTimeout, err)
	}
	return nil
}

// classify maps a transport error to the failure taxonomy. Errors proving
// the relay did not accept the request are rejections; anything else leaves
// the submission state unknown.
func classify(err error) error {
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		return fmt.Errorf("%w: %v", types.ErrRelayRejected, err)
	}

	var httpErr *jsonrpc.HTTPError
	if errors.As(err, &httpErr) && httpErr.Code < http.StatusInternalServerError {
		return fmt.Errorf("%w: %v", types.ErrRelayRejected, err)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return fmt.Errorf("%w: %v", types.ErrRelayRejected, err)
	}

	return fmt.Errorf("%w: %v", types.ErrSubmissionTimeout, err)
}
