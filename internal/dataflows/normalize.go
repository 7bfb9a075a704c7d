package dataflows

import (
	"sort"

	"github.com/dyike/CortexTrade/models"
	"github.com/sirupsen/logrus"
)

// Normalize turns raw provider bars into a clean series: bars with non-finite or
// inconsistent prices are dropped, the rest are sorted ascending, duplicate
// timestamps keep the last bar seen, and only the most recent count remain.
func Normalize(raw []models.Candle, count int) []models.Candle {
	byTS := make(map[int64]models.Candle, len(raw))
	dropped := 0
	for _, c := range raw {
		if err := c.Validate(); err != nil {
			dropped++
			continue
		}
		byTS[c.Timestamp] = c
	}
	if dropped > 0 {
		logrus.WithFields(logrus.Fields{"dropped": dropped, "kept": len(byTS)}).Debug("dropped malformed candles")
	}

	out := make([]models.Candle, 0, len(byTS))
	for _, c := range byTS {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })

	if count > 0 && len(out) > count {
		out = out[len(out)-count:]
	}
	return out
}
