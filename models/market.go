package models

import (
	"fmt"
	"math"

	"github.com/dyike/CortexTrade/consts"
)

// Candle is one OHLCV bar. Timestamp is epoch milliseconds.
type Candle struct {
	Timestamp int64   `json:"t"`
	Open      float64 `json:"o"`
	High      float64 `json:"h"`
	Low       float64 `json:"l"`
	Close     float64 `json:"c"`
	Volume    float64 `json:"v"`
}

// Validate reports whether the bar is finite and internally consistent.
func (c Candle) Validate() error {
	for _, v := range []float64{c.Open, c.High, c.Low, c.Close} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("candle %d: non-finite price", c.Timestamp)
		}
	}
	if math.IsNaN(c.Volume) || math.IsInf(c.Volume, 0) {
		return fmt.Errorf("candle %d: non-finite volume", c.Timestamp)
	}
	if c.High < math.Max(c.Open, c.Close) {
		return fmt.Errorf("candle %d: high %.6f below body", c.Timestamp, c.High)
	}
	if c.Low > math.Min(c.Open, c.Close) {
		return fmt.Errorf("candle %d: low %.6f above body", c.Timestamp, c.Low)
	}
	return nil
}

type MACD struct {
	Line      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"hist"`
}

// IndicatorSet holds the final value of each indicator over a candle series.
type IndicatorSet struct {
	EMAFast float64 `json:"ema20"`
	EMASlow float64 `json:"ema50"`
	RSI     float64 `json:"rsi14"`
	MACD    MACD    `json:"macd"`
	ATR     float64 `json:"atr14"`
}

// Trend compares the fast and slow EMA.
func (s IndicatorSet) Trend() string {
	switch {
	case s.EMAFast > s.EMASlow:
		return consts.TrendUp
	case s.EMAFast < s.EMASlow:
		return consts.TrendDown
	default:
		return consts.TrendNeutral
	}
}
