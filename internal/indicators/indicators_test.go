package indicators

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/dyike/CortexTrade/models"
)

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, got, want, tol, math.Abs(got-want))
	}
}

// bar builds a candle with a symmetric one-point range around close.
func bar(i int, close float64) models.Candle {
	return models.Candle{
		Timestamp: int64(i) * 60_000,
		Open:      close,
		High:      close + 1,
		Low:       close - 1,
		Close:     close,
		Volume:    1000,
	}
}

func series(closes ...float64) []models.Candle {
	out := make([]models.Candle, len(closes))
	for i, c := range closes {
		out[i] = bar(i, c)
	}
	return out
}

func randomWalk(n int, seed int64) []models.Candle {
	rng := rand.New(rand.NewSource(seed))
	out := make([]models.Candle, n)
	price := 100.0
	for i := range out {
		open := price
		price = math.Max(1, price+rng.NormFloat64()*2)
		high := math.Max(open, price) + rng.Float64()*1.5
		low := math.Min(open, price) - rng.Float64()*1.5
		out[i] = models.Candle{Timestamp: int64(i) * 60_000, Open: open, High: high, Low: low, Close: price, Volume: rng.Float64() * 1e5}
	}
	return out
}

func TestComputeInsufficientData(t *testing.T) {
	_, err := Compute(series(1, 2, 3, 4, 5, 6, 7, 8, 9))
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestComputeRejectsMalformedCandle(t *testing.T) {
	candles := series(10, 11, 12, 13, 14, 15, 16, 17, 18, 19)
	candles[4].High = math.NaN()
	if _, err := Compute(candles); err == nil {
		t.Fatalf("expected error for non-finite candle")
	}
}

func TestCompute_Correctness_SingleJump(t *testing.T) {
	// Nine flat closes at 100, then a jump to 121.
	// EMA(20):  100 + 21*2/21 = 102
	// EMA(50):  100 + 21*2/51 = 100.823529
	// MACD line: 21*(2/13 - 2/27) = 1.675214, signal = 0.2*line, hist = 0.8*line
	// RSI: no losses in the window, so 100
	// ATR: TRs are 2 (x9) and 22; seed divides the ten available by 14 = 40/14
	candles := series(100, 100, 100, 100, 100, 100, 100, 100, 100, 121)

	got, err := Compute(candles)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	line := 21 * (2.0/13 - 2.0/27)
	assertClose(t, "ema20", got.EMAFast, 102, 1e-9)
	assertClose(t, "ema50", got.EMASlow, 100+42.0/51, 1e-9)
	assertClose(t, "macd", got.MACD.Line, line, 1e-9)
	assertClose(t, "signal", got.MACD.Signal, 0.2*line, 1e-9)
	assertClose(t, "hist", got.MACD.Histogram, 0.8*line, 1e-9)
	assertClose(t, "rsi", got.RSI, 100, 0)
	assertClose(t, "atr", got.ATR, 40.0/14, 1e-9)
	if got.Trend() != "up" {
		t.Fatalf("expected up trend, got %s", got.Trend())
	}
}

func TestRSI_Correctness_Wilder(t *testing.T) {
	// 16 closes: fourteen +1 changes then one -2.
	// Seed over the first 14 changes: avgGain=1, avgLoss=0.
	// i=15: avgGain=13/14, avgLoss=2/14, so RS = 6.5 and RSI = 100-100/7.5
	closes := make([]float64, 0, 16)
	p := 100.0
	closes = append(closes, p)
	for i := 0; i < 14; i++ {
		p++
		closes = append(closes, p)
	}
	closes = append(closes, p-2)

	assertClose(t, "rsi", RSI(closes, 14), 100-100/7.5, 1e-9)
}

func TestRSI_FallingSeriesIsZero(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 200 - float64(i)
	}
	assertClose(t, "rsi", RSI(closes, 14), 0, 0)
}

func TestATR_ConstantRange(t *testing.T) {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 50
	}
	assertClose(t, "atr", ATR(series(closes...), 14), 2, 1e-12)
}

func TestATR_FirstBarUsesOwnClose(t *testing.T) {
	trs := TrueRanges([]models.Candle{{Open: 10, High: 15, Low: 9, Close: 14}})
	assertClose(t, "tr[0]", trs[0], 6, 0)
}

func TestEMA_SeededWithFirstValue(t *testing.T) {
	out := EMA([]float64{10, 20}, 3)
	assertClose(t, "ema[0]", out[0], 10, 0)
	assertClose(t, "ema[1]", out[1], 15, 1e-12)
}

func TestComputeBoundsOnRandomSeries(t *testing.T) {
	for seed := int64(1); seed <= 25; seed++ {
		got, err := Compute(randomWalk(120, seed))
		if err != nil {
			t.Fatalf("seed %d: %v", seed, err)
		}
		if got.RSI < 0 || got.RSI > 100 {
			t.Fatalf("seed %d: rsi %v out of [0,100]", seed, got.RSI)
		}
		if got.ATR < 0 {
			t.Fatalf("seed %d: negative atr %v", seed, got.ATR)
		}
		assertClose(t, "hist identity", got.MACD.Histogram, got.MACD.Line-got.MACD.Signal, 1e-12)
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	candles := randomWalk(200, 42)
	first, err := Compute(candles)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	second, _ := Compute(candles)
	if first != second {
		t.Fatalf("repeated runs differ: %+v vs %+v", first, second)
	}
}
