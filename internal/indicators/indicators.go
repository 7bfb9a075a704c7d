// Package indicators computes the technical indicators consumed by the suggestion
// and scoring stages. All functions are pure and deterministic.
package indicators

import (
	"errors"
	"fmt"
	"math"

	"github.com/dyike/CortexTrade/consts"
	"github.com/dyike/CortexTrade/models"
)

const (
	EMAFastPeriod = 20
	EMASlowPeriod = 50
	RSIPeriod     = 14
	MACDFast      = 12
	MACDSlow      = 26
	MACDSignal    = 9
	ATRPeriod     = 14
)

var ErrInsufficientData = errors.New("insufficient data")

// Compute returns the final value of every indicator for candles, which must be
// sorted ascending. Fewer than 10 candles fail fast with ErrInsufficientData.
func Compute(candles []models.Candle) (models.IndicatorSet, error) {
	if len(candles) < consts.MinCandles {
		return models.IndicatorSet{}, fmt.Errorf("%w: need %d candles, got %d", ErrInsufficientData, consts.MinCandles, len(candles))
	}
	closes := make([]float64, len(candles))
	for i, c := range candles {
		if err := c.Validate(); err != nil {
			return models.IndicatorSet{}, err
		}
		closes[i] = c.Close
	}

	line, signal, hist := MACD(closes, MACDFast, MACDSlow, MACDSignal)
	last := len(closes) - 1

	return models.IndicatorSet{
		EMAFast: lastOf(EMA(closes, EMAFastPeriod)),
		EMASlow: lastOf(EMA(closes, EMASlowPeriod)),
		RSI:     RSI(closes, RSIPeriod),
		MACD: models.MACD{
			Line:      line[last],
			Signal:    signal[last],
			Histogram: hist[last],
		},
		ATR: ATR(candles, ATRPeriod),
	}, nil
}

// EMA returns the exponential moving average series seeded with the first value.
func EMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	k := 2.0 / float64(period+1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = values[i]*k + out[i-1]*(1-k)
	}
	return out
}

// RSI returns Wilder's relative strength index of the last close. The first
// average is the sum of up to period changes divided by period; each later change
// is folded in with (prev*(period-1)+x)/period. A zero average loss yields 100.
func RSI(closes []float64, period int) float64 {
	gains := make([]float64, 0, max(len(closes)-1, 0))
	losses := make([]float64, 0, max(len(closes)-1, 0))
	for i := 1; i < len(closes); i++ {
		diff := closes[i] - closes[i-1]
		gains = append(gains, math.Max(diff, 0))
		losses = append(losses, math.Max(-diff, 0))
	}

	avgGain := sumFirst(gains, period) / float64(period)
	avgLoss := sumFirst(losses, period) / float64(period)
	for i := period + 1; i < len(closes); i++ {
		avgGain = (avgGain*float64(period-1) + gains[i-1]) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + losses[i-1]) / float64(period)
	}

	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// MACD returns the MACD line, its signal EMA (seeded with the first line value)
// and the histogram.
func MACD(closes []float64, fast, slow, signalPeriod int) (line, signal, hist []float64) {
	emaFast := EMA(closes, fast)
	emaSlow := EMA(closes, slow)
	line = make([]float64, len(closes))
	for i := range closes {
		line[i] = emaFast[i] - emaSlow[i]
	}
	signal = EMA(line, signalPeriod)
	hist = make([]float64, len(closes))
	for i := range closes {
		hist[i] = line[i] - signal[i]
	}
	return line, signal, hist
}

// ATR returns Wilder's average true range of the last bar. The first bar uses its
// own close as the previous close.
func ATR(candles []models.Candle, period int) float64 {
	if len(candles) == 0 {
		return 0
	}
	trs := TrueRanges(candles)
	atr := sumFirst(trs, period) / float64(period)
	for i := period; i < len(trs); i++ {
		atr = (atr*float64(period-1) + trs[i]) / float64(period)
	}
	return atr
}

func TrueRanges(candles []models.Candle) []float64 {
	trs := make([]float64, len(candles))
	for i, c := range candles {
		prevClose := c.Close
		if i > 0 {
			prevClose = candles[i-1].Close
		}
		trs[i] = math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prevClose), math.Abs(c.Low-prevClose)))
	}
	return trs
}

func sumFirst(values []float64, n int) float64 {
	if n > len(values) {
		n = len(values)
	}
	var sum float64
	for _, v := range values[:n] {
		sum += v
	}
	return sum
}

func lastOf(values []float64) float64 {
	return values[len(values)-1]
}
