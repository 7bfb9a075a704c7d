package dataflows

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/dyike/CortexTrade/consts"
	"github.com/dyike/CortexTrade/models"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

const alphaSource = "Alpha Vantage"

var alphaIntervals = map[string]string{
	consts.Interval1m:  "1min",
	consts.Interval5m:  "5min",
	consts.Interval15m: "15min",
	consts.Interval30m: "30min",
	consts.Interval1h:  "60min",
	consts.Interval4h:  "60min", // no 4h series upstream
}

// Series keys in the order they are looked up.
var alphaSeriesKeys = []string{
	"Time Series (Daily)",
	"Time Series (60min)",
	"Time Series (30min)",
	"Time Series (15min)",
	"Time Series (5min)",
	"Time Series (1min)",
	"Time Series FX (Daily)",
	"Time Series (Digital Currency Daily)",
}

// AlphaVantageClient fetches candles from the Alpha Vantage query API.
type AlphaVantageClient struct {
	client *resty.Client
	apiKey string
	retry  *RetryConfig
}

func NewAlphaVantageClient(opts ClientOptions) *AlphaVantageClient {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = "https://www.alphavantage.co"
	}
	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(opts.timeout())

	return &AlphaVantageClient{
		client: client,
		apiKey: opts.APIKey,
		retry:  opts.retry(),
	}
}

func (c *AlphaVantageClient) Name() string { return consts.ProviderAlpha }

// SupportsInterval is false for 4h; the fetcher resamples hourly bars instead.
// Forex and crypto are daily only and fail in Candles for any other interval.
func (c *AlphaVantageClient) SupportsInterval(interval string) bool {
	return interval != consts.Interval4h
}

func (c *AlphaVantageClient) Candles(ctx context.Context, params FetchParams) ([]models.Candle, error) {
	if c.apiKey == "" {
		return nil, models.ConfigError(alphaSource, fmt.Errorf("%w: ALPHA_VANTAGE_API_KEY", models.ErrMissingCredentials))
	}
	query, err := alphaQuery(params)
	if err != nil {
		return nil, models.ConfigError(alphaSource, err)
	}
	query["apikey"] = c.apiKey

	var candles []models.Candle
	err = WithRetry(ctx, c.retry, func() error {
		resp, err := c.client.R().
			SetContext(ctx).
			SetQueryParams(query).
			Get("/query")
		if err != nil {
			return models.UpstreamError(alphaSource, err)
		}
		if resp.StatusCode() != http.StatusOK {
			return httpStatusError(alphaSource, resp.StatusCode())
		}

		parsed, err := parseAlphaSeries(resp.Body())
		if err != nil {
			return Permanent(err)
		}
		candles = parsed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return candles, nil
}

func alphaQuery(p FetchParams) (map[string]string, error) {
	symbol := NormalizeSymbol(p.Symbol)
	if (p.Market == consts.MarketCrypto || p.Market == consts.MarketForex) && p.Interval != consts.Interval1d {
		return nil, fmt.Errorf("%s interval %s not supported, only 1d", p.Market, p.Interval)
	}
	switch p.Market {
	case consts.MarketCrypto:
		return map[string]string{
			"function": "DIGITAL_CURRENCY_DAILY",
			"symbol":   symbol,
			"market":   "USD",
		}, nil
	case consts.MarketForex:
		pair := strings.NewReplacer("/", "", "-", "", "_", "").Replace(symbol)
		if len(pair) < 6 {
			return nil, fmt.Errorf("forex symbol %q must be a currency pair like EURUSD", p.Symbol)
		}
		return map[string]string{
			"function":    "FX_DAILY",
			"from_symbol": pair[:3],
			"to_symbol":   pair[3:],
			"outputsize":  "compact",
		}, nil
	default:
		if p.Interval == consts.Interval1d {
			return map[string]string{
				"function":   "TIME_SERIES_DAILY_ADJUSTED",
				"symbol":     symbol,
				"outputsize": "compact",
			}, nil
		}
		iv, ok := alphaIntervals[p.Interval]
		if !ok {
			iv = "60min"
		}
		return map[string]string{
			"function":   "TIME_SERIES_INTRADAY",
			"symbol":     symbol,
			"interval":   iv,
			"outputsize": "compact",
		}, nil
	}
}

func parseAlphaSeries(body []byte) ([]models.Candle, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, models.UpstreamError(alphaSource, errors.New("unexpected response"))
	}
	for _, key := range []string{"Error Message", "Note", "Information"} {
		if raw, ok := doc[key]; ok {
			var msg string
			_ = json.Unmarshal(raw, &msg)
			return nil, models.UpstreamError(alphaSource, fmt.Errorf("%s", strings.TrimSpace(msg)))
		}
	}

	raw, ok := findAlphaSeries(doc)
	if !ok {
		return nil, models.UpstreamError(alphaSource, errors.New("unexpected response"))
	}
	var rows map[string]map[string]string
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, models.UpstreamError(alphaSource, errors.New("unexpected response"))
	}

	loc := alphaLocation(doc["Meta Data"])
	candles := make([]models.Candle, 0, len(rows))
	for ts, vals := range rows {
		t, err := ParseDateString(ts, loc)
		if err != nil {
			continue
		}
		volume := parseDecimal(alphaField(vals, "volume"))
		if math.IsNaN(volume) {
			volume = 0
		}
		candles = append(candles, models.Candle{
			Timestamp: t.UnixMilli(),
			Open:      parseDecimal(alphaField(vals, "open")),
			High:      parseDecimal(alphaField(vals, "high")),
			Low:       parseDecimal(alphaField(vals, "low")),
			Close:     parseDecimal(alphaField(vals, "close")),
			Volume:    volume,
		})
	}
	return candles, nil
}

func findAlphaSeries(doc map[string]json.RawMessage) (json.RawMessage, bool) {
	for _, key := range alphaSeriesKeys {
		if raw, ok := doc[key]; ok {
			return raw, true
		}
	}
	for key, raw := range doc {
		if strings.HasPrefix(key, "Time Series") {
			return raw, true
		}
	}
	return nil, false
}

// alphaField looks a value up by name, ignoring the "1. " / "1a. " ordinal
// prefixes. Plain names win over currency-qualified ones like "open (USD)".
func alphaField(vals map[string]string, name string) string {
	var qualified string
	for key, v := range vals {
		_, label, ok := strings.Cut(key, ". ")
		if !ok {
			label = key
		}
		switch {
		case label == name:
			return v
		case strings.HasPrefix(label, name+" (") && qualified == "":
			qualified = v
		}
	}
	return qualified
}

func alphaLocation(meta json.RawMessage) *time.Location {
	if len(meta) == 0 {
		return time.UTC
	}
	var fields map[string]string
	if err := json.Unmarshal(meta, &fields); err != nil {
		return time.UTC
	}
	for key, v := range fields {
		if strings.HasSuffix(key, "Time Zone") {
			if loc, err := time.LoadLocation(v); err == nil {
				return loc
			}
		}
	}
	return time.UTC
}

// parseDecimal parses a vendor price string; unparsable input yields NaN so the
// normaliser drops the bar.
func parseDecimal(s string) float64 {
	if s == "" {
		return math.NaN()
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return math.NaN()
	}
	return d.InexactFloat64()
}
