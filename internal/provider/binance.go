package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// BinanceClient is the fallback mark-price source, backed by the Binance
// USDT-margined futures premium-index endpoint. Used only when the
// primary sources fail, so it makes a single attempt per call and maps
// transport failures to ErrUnavailable.
type BinanceClient struct {
	baseURL string
	client  *http.Client
	quote   string
}

// NewBinanceClient creates a fallback price client. Instruments are
// engine symbols ("ETH"); the quote suffix ("USDT") is appended to form
// the exchange symbol.
func NewBinanceClient(baseURL string) *BinanceClient {
	return &BinanceClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		quote:   "USDT",
	}
}

// Compile-time interface check.
var _ PriceSource = (*BinanceClient)(nil)

// Name identifies the source in logs and metrics.
func (c *BinanceClient) Name() string {
	return "binance"
}

// premiumIndex is the raw premium-index payload.
type premiumIndex struct {
	Symbol          string `json:"symbol"`
	MarkPrice       string `json:"markPrice"`
	LastFundingRate string `json:"lastFundingRate"`
}

// MarkPrice retrieves the current mark price for an instrument.
func (c *BinanceClient) MarkPrice(ctx context.Context, instrument string) (float64, error) {
	idx, err := c.fetchPremiumIndex(ctx, instrument)
	if err != nil {
		return 0, err
	}

	price, err := strconv.ParseFloat(idx.MarkPrice, 64)
	if err != nil {
		return 0, fmt.Errorf("parse mark price for %s: %w", instrument, err)
	}
	if !validPrice(price) {
		return 0, fmt.Errorf("invalid mark price for %s: %v", instrument, price)
	}

	return price, nil
}

// FundingRate retrieves the last funding rate for an instrument.
func (c *BinanceClient) FundingRate(ctx context.Context, instrument string) (float64, error) {
	idx, err := c.fetchPremiumIndex(ctx, instrument)
	if err != nil {
		return 0, err
	}

	rate, err := strconv.ParseFloat(idx.LastFundingRate, 64)
	if err != nil {
		return 0, fmt.Errorf("parse funding rate for %s: %w", instrument, err)
	}
	if !validRate(rate) {
		return 0, fmt.Errorf("invalid funding rate for %s: %v", instrument, rate)
	}

	return rate, nil
}

func (c *BinanceClient) fetchPremiumIndex(ctx context.Context, instrument string) (*premiumIndex, error) {
	url := fmt.Sprintf("%s/fapi/v1/premiumIndex?symbol=%s%s", c.baseURL, instrument, c.quote)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var idx premiumIndex
	if err := json.Unmarshal(body, &idx); err != nil {
		return nil, fmt.Errorf("unmarshal premium index: %w", err)
	}

	return &idx, nil
}
