package consts

// Trade actions produced by the suggestion collaborator.
const (
	ActionBuy  = "buy"
	ActionSell = "sell"
	ActionWait = "wait"
)

// Image signal direction adds unknown on top of the trade actions.
const DirectionUnknown = "unknown"

const (
	TrendUp      = "up"
	TrendDown    = "down"
	TrendNeutral = "neutral"
)

const (
	MarketStock  = "stock"
	MarketForex  = "forex"
	MarketCrypto = "crypto"
)

const (
	ProviderAlpha    = "alpha"
	ProviderFinnhub  = "finnhub"
	ProviderYahoo    = "yahoo"
	ProviderLongport = "longport"
)

// Supported candle intervals.
const (
	Interval1m  = "1m"
	Interval5m  = "5m"
	Interval15m = "15m"
	Interval30m = "30m"
	Interval1h  = "1h"
	Interval4h  = "4h"
	Interval1d  = "1d"
)

var Intervals = []string{Interval1m, Interval5m, Interval15m, Interval30m, Interval1h, Interval4h, Interval1d}

const (
	DefaultInterval      = Interval1h
	DefaultRange         = "200"
	DefaultProvider      = ProviderAlpha
	DefaultMarket        = MarketStock
	DefaultMaxRiskPct    = 1.0
	DefaultRRMin         = 2.0
	DefaultAccountEquity = 10000.0
	MinCandles           = 10
)
