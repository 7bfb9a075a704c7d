package dataflows

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dyike/CortexTrade/consts"
	"github.com/dyike/CortexTrade/models"
	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
)

const yahooSource = "Yahoo Finance"

var yahooIntervals = map[string]datetime.Interval{
	consts.Interval1m:  datetime.Interval("1m"),
	consts.Interval5m:  datetime.Interval("5m"),
	consts.Interval15m: datetime.Interval("15m"),
	consts.Interval30m: datetime.Interval("30m"),
	consts.Interval1h:  datetime.Interval("1h"),
	consts.Interval4h:  datetime.Interval("1h"), // no 4h bars upstream
	consts.Interval1d:  datetime.OneDay,
}

// YahooFinanceClient reads chart bars through finance-go.
type YahooFinanceClient struct {
	retry *RetryConfig
	now   func() time.Time
}

func NewYahooFinanceClient(opts ClientOptions) *YahooFinanceClient {
	return &YahooFinanceClient{
		retry: opts.retry(),
		now:   time.Now,
	}
}

func (yf *YahooFinanceClient) Name() string { return consts.ProviderYahoo }

// SupportsInterval is false for 4h; the fetcher resamples hourly bars instead.
func (yf *YahooFinanceClient) SupportsInterval(interval string) bool {
	return interval != consts.Interval4h
}

func (yf *YahooFinanceClient) Candles(ctx context.Context, params FetchParams) ([]models.Candle, error) {
	if err := ValidateSymbol(params.Symbol); err != nil {
		return nil, models.ConfigError(yahooSource, err)
	}
	interval, ok := yahooIntervals[params.Interval]
	if !ok {
		interval = datetime.Interval("1h")
	}
	symbol := YahooSymbol(params.Symbol, params.Market)
	end := yf.now()
	start := end.Add(-yahooLookback(params.Interval, params.Count))

	var result []models.Candle
	err := WithRetry(ctx, yf.retry, func() error {
		if err := ctx.Err(); err != nil {
			return Permanent(models.UpstreamError(yahooSource, err))
		}
		iter := chart.Get(&chart.Params{
			Symbol:   symbol,
			Start:    datetime.New(&start),
			End:      datetime.New(&end),
			Interval: interval,
		})

		result = result[:0]
		for iter.Next() {
			bar := iter.Bar()
			result = append(result, models.Candle{
				Timestamp: int64(bar.Timestamp) * 1000,
				Open:      bar.Open.InexactFloat64(),
				High:      bar.High.InexactFloat64(),
				Low:       bar.Low.InexactFloat64(),
				Close:     bar.Close.InexactFloat64(),
				Volume:    float64(bar.Volume),
			})
		}
		if err := iter.Err(); err != nil {
			return models.UpstreamError(yahooSource, fmt.Errorf("chart %s: %w", symbol, err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// YahooSymbol maps a plain ticker to Yahoo's notation for the market.
func YahooSymbol(symbol, market string) string {
	symbol = NormalizeSymbol(symbol)
	switch market {
	case consts.MarketForex:
		pair := strings.NewReplacer("/", "", "-", "").Replace(symbol)
		if strings.HasSuffix(pair, "=X") {
			return pair
		}
		return pair + "=X"
	case consts.MarketCrypto:
		if strings.Contains(symbol, "-") {
			return symbol
		}
		base := strings.TrimSuffix(strings.TrimSuffix(symbol, "USDT"), "USD")
		if base == "" {
			base = symbol
		}
		return base + "-USD"
	default:
		return symbol
	}
}

// yahooLookback sizes the request window so roughly count bars come back while
// staying inside Yahoo's intraday history limits.
func yahooLookback(interval string, count int) time.Duration {
	if count <= 0 {
		count = 200
	}
	day := 24 * time.Hour
	switch interval {
	case consts.Interval1m:
		return 7 * day
	case consts.Interval5m, consts.Interval15m, consts.Interval30m:
		return 59 * day
	case consts.Interval1h, consts.Interval4h:
		return min(time.Duration(count)*time.Hour*3, 729*day)
	default:
		return max(time.Duration(count)*day*3/2, 30*day)
	}
}
