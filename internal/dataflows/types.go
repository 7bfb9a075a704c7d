package dataflows

import (
	"context"
	"time"

	"github.com/dyike/CortexTrade/models"
)

// FetchParams describes one candle request against a provider.
type FetchParams struct {
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
	Count    int    `json:"count"`
	Provider string `json:"provider"`
	Market   string `json:"market"`
}

// CandleProvider is implemented by every market data vendor adapter. Providers
// return raw candles; Fetcher normalises them.
type CandleProvider interface {
	Name() string
	Candles(ctx context.Context, params FetchParams) ([]models.Candle, error)
}

// ClientOptions carries the settings shared by HTTP-backed providers.
type ClientOptions struct {
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
	Retry    *RetryConfig
	CacheDir string
	CacheTTL time.Duration
	Cache    bool
}

func (o ClientOptions) timeout() time.Duration {
	if o.Timeout > 0 {
		return o.Timeout
	}
	return 30 * time.Second
}

func (o ClientOptions) retry() *RetryConfig {
	if o.Retry != nil {
		return o.Retry
	}
	return DefaultRetryConfig()
}
