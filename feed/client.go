package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/michaelpento.lv/arbengine/types"
	"github.com/michaelpento.lv/arbengine/utils"
)

const (
	arbitragePath = "/v1/arbitrage"
	maxBodySize   = 4 << 20
)

// Config contains the feed client settings
type Config struct {
	BaseURL   string
	APIKey    string
	Pairs     []string
	RateLimit float64 // requests per second
	Timeout   time.Duration

	// Malformed counts skipped entries, optional
	Malformed prometheus.Counter
}

// Client polls the opportunity feed
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	malformed  prometheus.Counter
	logger     *zap.Logger
}

// NewClient creates a new feed client
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid feed url")
	}
	if len(cfg.Pairs) == 0 {
		return nil, fmt.Errorf("at least one pair is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	base.Path += arbitragePath
	base.RawQuery = url.Values{"pairs": []string{strings.Join(cfg.Pairs, ",")}}.Encode()

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		endpoint:   base.String(),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, 1),
		malformed:  cfg.Malformed,
		logger:     logger.Named("feed"),
	}, nil
}

// Fetch performs one round trip to the feed and returns the opportunities in
// feed order. It does not retry.
func (c *Client) Fetch(ctx context.Context) ([]types.Opportunity, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrFeedUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", types.ErrFeedUnavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrFeedUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		return nil, fmt.Errorf("%w: status %d", types.ErrFeedUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", types.ErrFeedUnavailable, err)
	}

	opps, skipped, err := Parse(body)
	if err != nil {
		return nil, err
	}
	for _, err := range skipped {
		c.logger.Warn("Skipping malformed opportunity", zap.Error(err))
		if c.malformed != nil {
			c.malformed.Inc()
		}
	}

	c.logger.Debug("Fetched opportunities",
		zap.Int("count", len(opps)),
		zap.Duration("latency", time.Since(start)))
	return opps, nil
}

type response struct {
	Opportunities *[]json.RawMessage `json:"opportunities"`
}

type wireOpportunity struct {
	Pair            string  `json:"pair"`
	ContractAddress string  `json:"contract_address"`
	OptimalAmount   decimal `json:"optimal_amount"`
	ProfitETH       decimal `json:"profit_eth"`
	Slippage        decimal `json:"slippage"`
}

// decimal accepts a JSON number or a numeric string without float rounding
type decimal string

func (d *decimal) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return fmt.Errorf("missing number")
	}
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = unquoted
	}
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return fmt.Errorf("invalid number %q", s)
	}
	*d = decimal(s)
	return nil
}

// Parse decodes a feed response body. Entries that fail validation are
// left out and returned in skipped; the body is malformed when it cannot be
// decoded or when every entry was skipped.
func Parse(body []byte) (opps []types.Opportunity, skipped []error, err error) {
	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", types.ErrFeedMalformed, err)
	}
	if resp.Opportunities == nil {
		return nil, nil, fmt.Errorf("%w: missing opportunities", types.ErrFeedMalformed)
	}

	entries := *resp.Opportunities
	opps = make([]types.Opportunity, 0, len(entries))
	for i, raw := range entries {
		var w wireOpportunity
		if err := json.Unmarshal(raw, &w); err != nil {
			skipped = append(skipped, fmt.Errorf("opportunity %d: %v", i, err))
			continue
		}
		opp, err := w.toOpportunity()
		if err != nil {
			skipped = append(skipped, fmt.Errorf("opportunity %d: %v", i, err))
			continue
		}
		opps = append(opps, opp)
	}

	if len(entries) > 0 && len(opps) == 0 {
		return nil, skipped, fmt.Errorf("%w: all %d opportunities invalid: %v", types.ErrFeedMalformed, len(entries), errors.Join(skipped...))
	}
	return opps, skipped, nil
}

func (w wireOpportunity) toOpportunity() (types.Opportunity, error) {
	if w.Pair == "" {
		return types.Opportunity{}, fmt.Errorf("missing pair")
	}
	if !common.IsHexAddress(w.ContractAddress) {
		return types.Opportunity{}, fmt.Errorf("invalid contract address")
	}

	amount, err := utils.EtherToWei(string(w.OptimalAmount))
	if err != nil {
		return types.Opportunity{}, fmt.Errorf("optimal_amount: %v", err)
	}
	profit, err := utils.EtherToWei(string(w.ProfitETH))
	if err != nil {
		return types.Opportunity{}, fmt.Errorf("profit_eth: %v", err)
	}
	slippage, err := strconv.ParseFloat(string(w.Slippage), 64)
	if err != nil {
		return types.Opportunity{}, fmt.Errorf("slippage: %v", err)
	}

	return types.Opportunity{
		Pair:            w.Pair,
		ContractAddress: common.HexToAddress(w.ContractAddress),
		OptimalAmount:   amount,
		ExpectedProfit:  profit,
		Slippage:        slippage,
	}, nil
}
