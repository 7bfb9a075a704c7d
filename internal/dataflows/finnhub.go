package dataflows

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dyike/CortexTrade/consts"
	"github.com/dyike/CortexTrade/models"
	"github.com/go-resty/resty/v2"
)

const (
	finnhubSource   = "Finnhub"
	finnhubLookback = 60 * 24 * time.Hour
)

var finnhubResolutions = map[string]string{
	consts.Interval1m:  "1",
	consts.Interval5m:  "5",
	consts.Interval15m: "15",
	consts.Interval30m: "30",
	consts.Interval1h:  "60",
	consts.Interval4h:  "240",
	consts.Interval1d:  "D",
}

// FinnhubClient handles Finnhub candle requests
type FinnhubClient struct {
	client *resty.Client
	apiKey string
	retry  *RetryConfig
	now    func() time.Time
}

// finnhubCandles is the parallel-array payload of the candle endpoints.
type finnhubCandles struct {
	Status string    `json:"s"`
	T      []int64   `json:"t"`
	O      []float64 `json:"o"`
	H      []float64 `json:"h"`
	L      []float64 `json:"l"`
	C      []float64 `json:"c"`
	V      []float64 `json:"v"`
}

// NewFinnhubClient creates a new Finnhub client
func NewFinnhubClient(opts ClientOptions) *FinnhubClient {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = "https://finnhub.io/api/v1"
	}
	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(opts.timeout())

	return &FinnhubClient{
		client: client,
		apiKey: opts.APIKey,
		retry:  opts.retry(),
		now:    time.Now,
	}
}

func (fc *FinnhubClient) Name() string { return consts.ProviderFinnhub }

func (fc *FinnhubClient) Candles(ctx context.Context, params FetchParams) ([]models.Candle, error) {
	if fc.apiKey == "" {
		return nil, models.ConfigError(finnhubSource, fmt.Errorf("%w: FINNHUB_API_KEY", models.ErrMissingCredentials))
	}
	if err := ValidateSymbol(params.Symbol); err != nil {
		return nil, models.ConfigError(finnhubSource, err)
	}

	resolution, ok := finnhubResolutions[params.Interval]
	if !ok {
		resolution = "60"
	}
	to := fc.now()
	from := to.Add(-finnhubLookback)

	var payload finnhubCandles
	err := WithRetry(ctx, fc.retry, func() error {
		resp, err := fc.client.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"symbol":     NormalizeSymbol(params.Symbol),
				"resolution": resolution,
				"from":       strconv.FormatInt(from.Unix(), 10),
				"to":         strconv.FormatInt(to.Unix(), 10),
				"token":      fc.apiKey,
			}).
			Get(finnhubPath(params.Market))
		if err != nil {
			return models.UpstreamError(finnhubSource, err)
		}
		if resp.StatusCode() != http.StatusOK {
			return httpStatusError(finnhubSource, resp.StatusCode())
		}
		if err := json.Unmarshal(resp.Body(), &payload); err != nil {
			return Permanent(models.UpstreamError(finnhubSource, fmt.Errorf("decode candles: %w", err)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if payload.Status != "ok" {
		return nil, models.UpstreamError(finnhubSource, errors.New(payload.Status))
	}
	return payload.toCandles(), nil
}

func finnhubPath(market string) string {
	switch market {
	case consts.MarketForex:
		return "/forex/candle"
	case consts.MarketCrypto:
		return "/crypto/candle"
	default:
		return "/stock/candle"
	}
}

func (p finnhubCandles) toCandles() []models.Candle {
	n := min(len(p.T), len(p.O), len(p.H), len(p.L), len(p.C))
	out := make([]models.Candle, 0, n)
	for i := 0; i < n; i++ {
		var v float64
		if i < len(p.V) {
			v = p.V[i]
		}
		out = append(out, models.Candle{
			Timestamp: p.T[i] * 1000,
			Open:      p.O[i],
			High:      p.H[i],
			Low:       p.L[i],
			Close:     p.C[i],
			Volume:    v,
		})
	}
	return out
}
