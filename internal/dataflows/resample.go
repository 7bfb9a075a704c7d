package dataflows

import (
	"time"

	"github.com/dyike/CortexTrade/models"
)

// Resample folds ascending candles into buckets of size tf aligned to the epoch
// (bucket = ts - ts%tf). Open comes from the first bar, Close from the last.
func Resample(candles []models.Candle, tf time.Duration) []models.Candle {
	step := tf.Milliseconds()
	if step <= 0 || len(candles) == 0 {
		return candles
	}

	out := make([]models.Candle, 0, len(candles)/int(max(step/60_000, 1))+1)
	var cur models.Candle
	var bucket int64
	open := false
	for _, c := range candles {
		b := c.Timestamp - c.Timestamp%step
		if open && b == bucket {
			cur.High = max(cur.High, c.High)
			cur.Low = min(cur.Low, c.Low)
			cur.Close = c.Close
			cur.Volume += c.Volume
			continue
		}
		if open {
			out = append(out, cur)
		}
		bucket = b
		cur = models.Candle{Timestamp: b, Open: c.Open, High: c.High, Low: c.Low, Close: c.Close, Volume: c.Volume}
		open = true
	}
	if open {
		out = append(out, cur)
	}
	return out
}
