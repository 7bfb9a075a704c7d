package display

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dyike/CortexTrade/models"
)

// WriteCandlesCSV writes candles to path with one row per bar. Timestamps are
// written both as RFC3339 UTC and as epoch milliseconds.
func WriteCandlesCSV(path, symbol string, candles []models.Candle) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"Symbol", "Date", "Open", "High", "Low", "Close", "Volume", "Timestamp"}); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	for _, c := range candles {
		row := []string{
			symbol,
			time.UnixMilli(c.Timestamp).UTC().Format(time.RFC3339),
			strconv.FormatFloat(c.Open, 'f', -1, 64),
			strconv.FormatFloat(c.High, 'f', -1, 64),
			strconv.FormatFloat(c.Low, 'f', -1, 64),
			strconv.FormatFloat(c.Close, 'f', -1, 64),
			strconv.FormatFloat(c.Volume, 'f', -1, 64),
			strconv.FormatInt(c.Timestamp, 10),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}
