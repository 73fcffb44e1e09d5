package provider

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestFeed(now func() time.Time) *WSPriceFeed {
	return &WSPriceFeed{
		config: DefaultWSFeedConfig(),
		prices: make(map[string]cachedPrice),
		now:    now,
		done:   make(chan struct{}),
	}
}

func TestWSPriceFeed_ServesCachedPrice(t *testing.T) {
	now := time.Unix(1700000000, 0)
	feed := newTestFeed(func() time.Time { return now })

	feed.handleMessage([]byte(`{"channel":"allMids","data":{"mids":{"ETH":"2450.50","BTC":"42100.0"}}}`))

	price, err := feed.MarkPrice(context.Background(), "ETH")
	if err != nil {
		t.Fatalf("MarkPrice: %v", err)
	}
	if price != 2450.50 {
		t.Errorf("expected 2450.50, got %v", price)
	}
}

func TestWSPriceFeed_UnknownInstrument(t *testing.T) {
	feed := newTestFeed(time.Now)

	_, err := feed.MarkPrice(context.Background(), "ETH")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestWSPriceFeed_StalePriceUnavailable(t *testing.T) {
	now := time.Unix(1700000000, 0)
	feed := newTestFeed(func() time.Time { return now })

	feed.handleMessage([]byte(`{"channel":"allMids","data":{"mids":{"ETH":"2450.50"}}}`))

	// Advance past the staleness bound
	now = now.Add(feed.config.MaxStaleness + time.Second)

	_, err := feed.MarkPrice(context.Background(), "ETH")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable for stale price, got %v", err)
	}
}

func TestWSPriceFeed_FreshUpdateReplacesStale(t *testing.T) {
	now := time.Unix(1700000000, 0)
	feed := newTestFeed(func() time.Time { return now })

	feed.handleMessage([]byte(`{"channel":"allMids","data":{"mids":{"ETH":"2450.50"}}}`))

	now = now.Add(feed.config.MaxStaleness + time.Second)
	feed.handleMessage([]byte(`{"channel":"allMids","data":{"mids":{"ETH":"2460.00"}}}`))

	price, err := feed.MarkPrice(context.Background(), "ETH")
	if err != nil {
		t.Fatalf("MarkPrice: %v", err)
	}
	if price != 2460.00 {
		t.Errorf("expected 2460.00, got %v", price)
	}
}

func TestWSPriceFeed_IgnoresMalformedFrames(t *testing.T) {
	feed := newTestFeed(time.Now)

	feed.handleMessage([]byte(`not json`))
	feed.handleMessage([]byte(`{"channel":"subscriptionResponse"}`))
	feed.handleMessage([]byte(`{"channel":"allMids","data":{"mids":{"ETH":"garbage"}}}`))
	feed.handleMessage([]byte(`{"channel":"allMids","data":{"mids":{"ETH":"-1.0"}}}`))

	_, err := feed.MarkPrice(context.Background(), "ETH")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
