package dataflows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dyike/CortexTrade/consts"
	"github.com/dyike/CortexTrade/models"
	"github.com/sirupsen/logrus"
)

// intervalSupport is implemented by providers that cannot serve every interval
// natively.
type intervalSupport interface {
	SupportsInterval(interval string) bool
}

// Fetcher routes candle requests to a provider, falls back to the configured
// alternates on failure and normalises whatever comes back.
type Fetcher struct {
	providers map[string]CandleProvider
	fallbacks []string
	cache     *CacheManager
	timeout   time.Duration
}

type FetcherOption func(*Fetcher)

// WithFallbacks sets the providers tried, in order, after the requested one fails.
func WithFallbacks(names ...string) FetcherOption {
	return func(f *Fetcher) {
		f.fallbacks = append([]string(nil), names...)
	}
}

func WithCache(cache *CacheManager) FetcherOption {
	return func(f *Fetcher) {
		f.cache = cache
	}
}

// WithProviderTimeout bounds each provider attempt.
func WithProviderTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		f.timeout = d
	}
}

func NewFetcher(providers []CandleProvider, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{providers: make(map[string]CandleProvider, len(providers))}
	for _, p := range providers {
		f.providers[p.Name()] = p
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch returns at most params.Count normalised candles, ascending by time.
func (f *Fetcher) Fetch(ctx context.Context, params FetchParams) ([]models.Candle, error) {
	if params.Count <= 0 {
		return nil, models.ConfigError("market data", fmt.Errorf("candle count must be positive, got %d", params.Count))
	}

	var errs []error
	for _, name := range f.chain(params.Provider) {
		if err := ctx.Err(); err != nil {
			errs = append(errs, models.UpstreamError("market data", err))
			break
		}
		p, ok := f.providers[name]
		if !ok {
			errs = append(errs, models.ConfigError(name, errors.New("provider not configured")))
			continue
		}

		candles, err := f.fetchFrom(ctx, p, params)
		if err == nil {
			if name != params.Provider {
				logrus.WithFields(logrus.Fields{"symbol": params.Symbol, "provider": name, "requested": params.Provider}).
					Info("market data served by fallback provider")
			}
			return candles, nil
		}
		logrus.WithFields(logrus.Fields{"symbol": params.Symbol, "provider": name}).WithError(err).Warn("market data provider failed")
		errs = append(errs, err)
	}

	if len(errs) == 1 {
		return nil, errs[0]
	}
	return nil, errors.Join(errs...)
}

func (f *Fetcher) chain(primary string) []string {
	names := []string{primary}
	for _, fb := range f.fallbacks {
		if fb == primary {
			continue
		}
		dup := false
		for _, n := range names {
			if n == fb {
				dup = true
				break
			}
		}
		if !dup {
			names = append(names, fb)
		}
	}
	return names
}

func (f *Fetcher) fetchFrom(ctx context.Context, p CandleProvider, params FetchParams) ([]models.Candle, error) {
	params.Provider = p.Name()

	var cached []models.Candle
	if f.cache.Get(p.Name(), "candles", params, &cached) && len(cached) > 0 {
		return cached, nil
	}

	req := params
	resample := params.Interval == consts.Interval4h && !supports(p, consts.Interval4h)
	if resample {
		req.Interval = consts.Interval1h
		req.Count = params.Count * 4
	}

	callCtx := ctx
	if f.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	raw, err := p.Candles(callCtx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && models.KindOf(err) == "" {
			return nil, models.UpstreamError(p.Name(), fmt.Errorf("timed out: %w", err))
		}
		return nil, err
	}

	candles := Normalize(raw, 0)
	if resample {
		candles = Resample(candles, 4*time.Hour)
	}
	candles = Normalize(candles, params.Count)
	if len(candles) == 0 {
		return nil, models.UpstreamError(p.Name(), fmt.Errorf("no candles returned for %s", params.Symbol))
	}

	if err := f.cache.Set(p.Name(), "candles", params, candles); err != nil {
		logrus.WithError(err).Debug("candle cache write failed")
	}
	return candles, nil
}

func supports(p CandleProvider, interval string) bool {
	if s, ok := p.(intervalSupport); ok {
		return s.SupportsInterval(interval)
	}
	return true
}
