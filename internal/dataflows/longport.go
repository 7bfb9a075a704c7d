package dataflows

import (
	"context"
	"fmt"
	"sync"

	"github.com/dyike/CortexTrade/consts"
	"github.com/dyike/CortexTrade/models"
	lpconfig "github.com/longportapp/openapi-go/config"
	"github.com/longportapp/openapi-go/quote"
)

const longportSource = "Longport"

type LongportConfig struct {
	AppKey      string
	AppSecret   string
	AccessToken string
}

func (c LongportConfig) complete() bool {
	return c.AppKey != "" && c.AppSecret != "" && c.AccessToken != ""
}

// LongportClient serves daily candlesticks from the Longport quote API. The quote
// connection is opened lazily on first use.
type LongportClient struct {
	conf LongportConfig

	once     sync.Once
	quoteCtx *quote.QuoteContext
	initErr  error
}

func NewLongportClient(conf LongportConfig) *LongportClient {
	return &LongportClient{conf: conf}
}

func (lpc *LongportClient) Name() string { return consts.ProviderLongport }

// SupportsInterval reports daily bars only; the adapter does not request intraday periods.
func (lpc *LongportClient) SupportsInterval(interval string) bool {
	return interval == consts.Interval1d
}

func (lpc *LongportClient) Candles(ctx context.Context, params FetchParams) ([]models.Candle, error) {
	if !lpc.conf.complete() {
		return nil, models.ConfigError(longportSource, fmt.Errorf("%w: LONGPORT_APP_KEY, LONGPORT_APP_SECRET, LONGPORT_ACCESS_TOKEN", models.ErrMissingCredentials))
	}
	if params.Interval != consts.Interval1d {
		return nil, models.ConfigError(longportSource, fmt.Errorf("interval %s not supported, use 1d", params.Interval))
	}
	qctx, err := lpc.quoteContext()
	if err != nil {
		return nil, models.ConfigError(longportSource, err)
	}

	count := params.Count
	if count <= 0 || count > 1000 {
		count = 1000
	}
	sticks, err := qctx.Candlesticks(ctx, NormalizeSymbol(params.Symbol), quote.PeriodDay, int32(count), quote.AdjustTypeNo)
	if err != nil {
		return nil, models.UpstreamError(longportSource, err)
	}

	out := make([]models.Candle, 0, len(sticks))
	for _, s := range sticks {
		if s == nil || s.Open == nil || s.High == nil || s.Low == nil || s.Close == nil {
			continue
		}
		open, _ := s.Open.Float64()
		high, _ := s.High.Float64()
		low, _ := s.Low.Float64()
		closePrice, _ := s.Close.Float64()
		out = append(out, models.Candle{
			Timestamp: s.Timestamp * 1000,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    float64(s.Volume),
		})
	}
	return out, nil
}

func (lpc *LongportClient) quoteContext() (*quote.QuoteContext, error) {
	lpc.once.Do(func() {
		conf, err := lpconfig.New(lpconfig.WithConfigKey(lpc.conf.AppKey, lpc.conf.AppSecret, lpc.conf.AccessToken))
		if err != nil {
			lpc.initErr = err
			return
		}
		lpc.quoteCtx, lpc.initErr = quote.NewFromCfg(conf)
	})
	return lpc.quoteCtx, lpc.initErr
}
