package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"perp-signal-engine/internal/domain"
)

// Default configuration values.
const (
	DefaultTimeout     = 15 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 500 * time.Millisecond
	DefaultMaxDelay    = 5 * time.Second
	DefaultBackoffMult = 2.0
)

// HyperliquidClient implements Provider against the Hyperliquid info
// endpoint. All queries are POSTs to a single URL with a typed body.
// The exchange encodes numbers as strings; parsing and boundary
// validation happen here so nothing downstream sees raw payloads.
type HyperliquidClient struct {
	endpoint    string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
}

// ClientOption configures HyperliquidClient.
type ClientOption func(*HyperliquidClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HyperliquidClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *HyperliquidClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HyperliquidClient) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *HyperliquidClient) {
		c.maxDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HyperliquidClient) {
		c.client = client
	}
}

// NewHyperliquidClient creates a new Hyperliquid info-endpoint client.
func NewHyperliquidClient(endpoint string, opts ...ClientOption) *HyperliquidClient {
	c := &HyperliquidClient{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile-time interface checks.
var (
	_ Provider    = (*HyperliquidClient)(nil)
	_ PriceSource = (*HyperliquidClient)(nil)
)

// Name identifies the source in logs and metrics.
func (c *HyperliquidClient) Name() string {
	return "hyperliquid"
}

// post performs an info request with retries and exponential backoff.
// Transport failures and retryable statuses exhaust into ErrUnavailable.
func (c *HyperliquidClient) post(ctx context.Context, reqBody interface{}, result interface{}) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		// Handle rate limiting
		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}

		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("server error %d", resp.StatusCode)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			// Client errors are not retried
			return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
		}

		if result != nil {
			if err := json.Unmarshal(respBody, result); err != nil {
				return fmt.Errorf("unmarshal response: %w", err)
			}
		}

		return nil
	}

	return fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

// infoRequest is the body of an info-endpoint query.
type infoRequest struct {
	Type string `json:"type"`
	User string `json:"user,omitempty"`
}

// clearinghouseState is the raw snapshot payload for one wallet.
type clearinghouseState struct {
	AssetPositions []struct {
		Position struct {
			Coin     string `json:"coin"`
			Szi      string `json:"szi"`
			EntryPx  string `json:"entryPx"`
			Leverage struct {
				Value int `json:"value"`
			} `json:"leverage"`
		} `json:"position"`
	} `json:"assetPositions"`
	Time int64 `json:"time"`
}

// OpenPositions retrieves and validates the wallet's position snapshot.
func (c *HyperliquidClient) OpenPositions(ctx context.Context, wallet string) ([]domain.RawPosition, error) {
	var state clearinghouseState
	if err := c.post(ctx, infoRequest{Type: "clearinghouseState", User: wallet}, &state); err != nil {
		return nil, err
	}

	snapshotAt := state.Time
	if snapshotAt == 0 {
		snapshotAt = time.Now().UnixMilli()
	}

	// One funding-table fetch for the whole snapshot
	var funding map[string]float64
	if len(state.AssetPositions) > 0 {
		var err error
		funding, err = c.fundingTable(ctx)
		if err != nil {
			return nil, err
		}
	}

	positions := make([]domain.RawPosition, 0, len(state.AssetPositions))
	for _, ap := range state.AssetPositions {
		szi, err := strconv.ParseFloat(ap.Position.Szi, 64)
		if err != nil {
			return nil, fmt.Errorf("position %s: parse size %q: %w", ap.Position.Coin, ap.Position.Szi, err)
		}
		if szi == 0 {
			// Flat entries show up in the snapshot after a close
			continue
		}
		entryPx, err := strconv.ParseFloat(ap.Position.EntryPx, 64)
		if err != nil {
			return nil, fmt.Errorf("position %s: parse entry price %q: %w", ap.Position.Coin, ap.Position.EntryPx, err)
		}

		raw := domain.RawPosition{
			Instrument:  ap.Position.Coin,
			SizeSigned:  szi,
			EntryPrice:  entryPx,
			Leverage:    ap.Position.Leverage.Value,
			FundingRate: funding[ap.Position.Coin],
			Timestamp:   snapshotAt,
		}
		if err := validateRawPosition(&raw); err != nil {
			return nil, fmt.Errorf("reject snapshot for %s: %w", wallet, err)
		}
		positions = append(positions, raw)
	}

	return positions, nil
}

// userFill is one raw execution record.
type userFill struct {
	Coin string `json:"coin"`
	Px   string `json:"px"`
	Sz   string `json:"sz"`
	Side string `json:"side"`
	Time int64  `json:"time"`
}

// RecentFills retrieves and validates the wallet's recent executions.
func (c *HyperliquidClient) RecentFills(ctx context.Context, wallet string) ([]domain.Fill, error) {
	var raw []userFill
	if err := c.post(ctx, infoRequest{Type: "userFills", User: wallet}, &raw); err != nil {
		return nil, err
	}

	fills := make([]domain.Fill, 0, len(raw))
	for _, rf := range raw {
		px, err := strconv.ParseFloat(rf.Px, 64)
		if err != nil {
			return nil, fmt.Errorf("fill %s: parse price %q: %w", rf.Coin, rf.Px, err)
		}
		sz, err := strconv.ParseFloat(rf.Sz, 64)
		if err != nil {
			return nil, fmt.Errorf("fill %s: parse size %q: %w", rf.Coin, rf.Sz, err)
		}

		fill := domain.Fill{
			Instrument: rf.Coin,
			Side:       rf.Side,
			Price:      px,
			Size:       sz,
			Timestamp:  rf.Time,
		}
		if err := validateFill(&fill); err != nil {
			return nil, fmt.Errorf("reject fills for %s: %w", wallet, err)
		}
		fills = append(fills, fill)
	}

	return fills, nil
}

// MarkPrice retrieves the current mark price from the allMids table.
// A missing instrument maps to ErrUnavailable so the price chain can
// try the next source.
func (c *HyperliquidClient) MarkPrice(ctx context.Context, instrument string) (float64, error) {
	var mids map[string]string
	if err := c.post(ctx, infoRequest{Type: "allMids"}, &mids); err != nil {
		return 0, err
	}

	s, ok := mids[instrument]
	if !ok {
		return 0, fmt.Errorf("%w: no mid for %s", ErrUnavailable, instrument)
	}

	price, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse mid for %s: %w", instrument, err)
	}
	if !validPrice(price) {
		return 0, fmt.Errorf("invalid mid for %s: %v", instrument, price)
	}

	return price, nil
}

// metaAndAssetCtxs is the raw [meta, contexts] pair. The universe list and
// the context list are index-aligned.
type metaAndAssetCtxs struct {
	universe []string
	funding  []string
}

func (m *metaAndAssetCtxs) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("expected [meta, ctxs] pair, got %d elements", len(pair))
	}

	var meta struct {
		Universe []struct {
			Name string `json:"name"`
		} `json:"universe"`
	}
	if err := json.Unmarshal(pair[0], &meta); err != nil {
		return fmt.Errorf("unmarshal meta: %w", err)
	}

	var ctxs []struct {
		Funding string `json:"funding"`
	}
	if err := json.Unmarshal(pair[1], &ctxs); err != nil {
		return fmt.Errorf("unmarshal asset ctxs: %w", err)
	}

	for _, u := range meta.Universe {
		m.universe = append(m.universe, u.Name)
	}
	for _, c := range ctxs {
		m.funding = append(m.funding, c.Funding)
	}
	return nil
}

// fundingTable fetches the funding rate for every listed instrument.
func (c *HyperliquidClient) fundingTable(ctx context.Context) (map[string]float64, error) {
	var meta metaAndAssetCtxs
	if err := c.post(ctx, infoRequest{Type: "metaAndAssetCtxs"}, &meta); err != nil {
		return nil, err
	}

	table := make(map[string]float64, len(meta.universe))
	for i, name := range meta.universe {
		if i >= len(meta.funding) {
			break
		}
		rate, err := strconv.ParseFloat(meta.funding[i], 64)
		if err != nil {
			return nil, fmt.Errorf("parse funding for %s: %w", name, err)
		}
		if !validRate(rate) {
			return nil, fmt.Errorf("invalid funding for %s: %v", name, rate)
		}
		table[name] = rate
	}

	return table, nil
}

// FundingRate retrieves the current funding rate for an instrument.
func (c *HyperliquidClient) FundingRate(ctx context.Context, instrument string) (float64, error) {
	table, err := c.fundingTable(ctx)
	if err != nil {
		return 0, err
	}

	rate, ok := table[instrument]
	if !ok {
		return 0, fmt.Errorf("%w: no funding for %s", ErrUnavailable, instrument)
	}

	return rate, nil
}
