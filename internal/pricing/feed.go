package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/learnledger/backend/internal/logging"
)

// FeedConfig configures the coin price feed.
type FeedConfig struct {
	// URL of a spot price endpoint returning
	// {"data":{"amount":"<decimal>","currency":"<fiat>"}}.
	URL string
	// RefreshInterval bounds how long a fetched price is reused.
	RefreshInterval time.Duration
	// FallbackPrice is the fiat-per-coin price used when no fetch has ever
	// succeeded. Decimal string; empty disables the fallback.
	FallbackPrice string
	Timeout       time.Duration
}

// Feed serves the native-coin fiat price with a refresh-interval cache.
// The feed is stale tolerant: when a refresh fails the last known price is
// reused, and before any fetch has succeeded the configured fallback
// applies. Conversion therefore never blocks a course creation on a price
// endpoint outage.
type Feed struct {
	client   *resty.Client
	url      string
	refresh  time.Duration
	fallback *big.Rat
	logger   *logging.Logger

	mu        sync.Mutex
	cached    *big.Rat
	fetchedAt time.Time
}

type spotPriceResponse struct {
	Data struct {
		Amount   string `json:"amount"`
		Currency string `json:"currency"`
	} `json:"data"`
}

// NewFeed creates a price feed.
func NewFeed(cfg FeedConfig, logger *logging.Logger) (*Feed, error) {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 5 * time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = logging.New("pricing", "info", "json")
	}

	var fallback *big.Rat
	if cfg.FallbackPrice != "" {
		parsed, ok := new(big.Rat).SetString(cfg.FallbackPrice)
		if !ok || parsed.Sign() <= 0 {
			return nil, fmt.Errorf("invalid fallback price %q", cfg.FallbackPrice)
		}
		fallback = parsed
	}
	if cfg.URL == "" && fallback == nil {
		return nil, fmt.Errorf("price feed needs a URL or a fallback price")
	}

	return &Feed{
		client:   resty.New().SetTimeout(cfg.Timeout),
		url:      cfg.URL,
		refresh:  cfg.RefreshInterval,
		fallback: fallback,
		logger:   logger,
	}, nil
}

// CoinPrice returns the current fiat-per-coin price.
func (f *Feed) CoinPrice(ctx context.Context) (*big.Rat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cached != nil && time.Since(f.fetchedAt) < f.refresh {
		return f.cached, nil
	}

	if f.url != "" {
		price, err := f.fetch(ctx)
		if err == nil {
			f.cached = price
			f.fetchedAt = time.Now()
			return price, nil
		}
		f.logger.WithContext(ctx).WithError(err).Warn("price feed fetch failed")
	}

	if f.cached != nil {
		return f.cached, nil
	}
	if f.fallback != nil {
		return f.fallback, nil
	}
	return nil, fmt.Errorf("no coin price available")
}

// Rate returns the wei-per-fiat conversion rate at the current price.
func (f *Feed) Rate(ctx context.Context) (*big.Rat, error) {
	price, err := f.CoinPrice(ctx)
	if err != nil {
		return nil, err
	}
	return RateFromCoinPrice(price)
}

func (f *Feed) fetch(ctx context.Context) (*big.Rat, error) {
	resp, err := f.client.R().
		SetContext(ctx).
		Get(f.url)
	if err != nil {
		return nil, fmt.Errorf("fetch spot price: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("spot price endpoint returned %s", resp.Status())
	}

	// Decode the body ourselves: spot price endpoints do not reliably
	// declare a JSON Content-Type.
	var body spotPriceResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, fmt.Errorf("decode spot price response: %w", err)
	}

	price, ok := new(big.Rat).SetString(body.Data.Amount)
	if !ok || price.Sign() <= 0 {
		return nil, fmt.Errorf("invalid spot price %q", body.Data.Amount)
	}
	return price, nil
}
