package display

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dyike/CortexTrade/models"
)

func samplePipeline() models.PipelineContext {
	entry, stop := 160.0, 155.0
	score := 0.95
	start := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	return models.PipelineContext{
		RunID:      "run-1",
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
		Request:    models.Request{Symbol: "BTC/USD", Interval: "1h", Range: "200", Provider: "alpha", Market: "crypto"},
		Candles: []models.Candle{
			{Timestamp: 1741944600000, Open: 100, High: 101.5, Low: 99, Close: 101, Volume: 1200},
		},
		Indicators: &models.IndicatorSet{EMAFast: 2, EMASlow: 1, RSI: 55},
		SearchResults: []models.SearchResult{
			{Title: "Bitcoin rallies", URL: "https://example.com/a", Content: strings.Repeat("x", 300)},
		},
		Suggestion: &models.TradeSuggestion{
			Action: "buy", Entry: &entry, Stop: &stop, Targets: []float64{175}, Size: 2, Confidence: 0.6,
			Rationale: "trend up",
		},
		Score:       &score,
		ScoreReason: "RR: 3.00 (OK); confluence +0.10; score=0.95",
		StageErrors: []models.StageError{{Stage: "web_search", Message: "web_search: upstream: timeout"}},
	}
}

func TestRenderIncludesDecision(t *testing.T) {
	out := Render(samplePipeline())
	for _, want := range []string{"BTC/USD", "BUY", "160.0000", "175.0000", "0.95", "trend up", "Bitcoin rallies", "[web_search]", "trend up", "1.5s"} {
		if !strings.Contains(out, want) {
			t.Fatalf("report missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, strings.Repeat("x", 200)) {
		t.Fatal("long snippet was not truncated")
	}
}

func TestRenderWithoutSuggestion(t *testing.T) {
	pc := models.PipelineContext{Request: models.Request{Symbol: "AAPL"}}
	var buf bytes.Buffer
	NewResultsDisplay(&buf).DisplayRun(pc)
	if !strings.Contains(buf.String(), "no suggestion") {
		t.Fatalf("unexpected output:\n%s", buf.String())
	}
}

func TestSaveResults(t *testing.T) {
	dir := t.TempDir()
	pc := samplePipeline()

	target, err := SaveResults(pc, dir)
	if err != nil {
		t.Fatalf("SaveResults: %v", err)
	}
	if want := filepath.Join(dir, "BTC_USD", "2025-03-14"); target != want {
		t.Fatalf("target = %q, want %q", target, want)
	}

	data, err := os.ReadFile(filepath.Join(target, "run-1.json"))
	if err != nil {
		t.Fatalf("read json: %v", err)
	}
	var got models.PipelineContext
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if got.RunID != "run-1" || got.Suggestion == nil || got.Suggestion.Action != "buy" {
		t.Fatalf("unexpected saved context: %+v", got)
	}

	md, err := os.ReadFile(filepath.Join(target, "run-1.md"))
	if err != nil {
		t.Fatalf("read markdown: %v", err)
	}
	if !strings.Contains(string(md), "# BTC/USD decision") || !strings.Contains(string(md), "| buy |") {
		t.Fatalf("unexpected markdown:\n%s", md)
	}

	rows, err := os.ReadFile(filepath.Join(target, "run-1_candles.csv"))
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	want := "Symbol,Date,Open,High,Low,Close,Volume,Timestamp\nBTC/USD,2025-03-14T09:30:00Z,100,101.5,99,101,1200,1741944600000\n"
	if string(rows) != want {
		t.Fatalf("csv = %q, want %q", rows, want)
	}
}
