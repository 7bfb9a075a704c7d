package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dyike/CortexTrade/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestStageFinished(t *testing.T) {
	c := NewCollector()
	c.StageFinished("market_data", 20*time.Millisecond, nil)
	c.StageFinished("market_data", 30*time.Millisecond, models.UpstreamError("alpha", errors.New("HTTP 500")))
	c.StageFinished("suggestion", time.Millisecond, errors.New("panic: boom"))

	if got := testutil.ToFloat64(c.StageErrors.WithLabelValues("market_data", "upstream")); got != 1 {
		t.Fatalf("market_data upstream errors = %v", got)
	}
	if got := testutil.ToFloat64(c.StageErrors.WithLabelValues("suggestion", "internal")); got != 1 {
		t.Fatalf("suggestion internal errors = %v", got)
	}
	if n := testutil.CollectAndCount(c.StageDuration); n != 2 {
		t.Fatalf("expected 2 stage series, got %d", n)
	}
}

func TestRunFinished(t *testing.T) {
	c := NewCollector()
	score := 0.9
	c.RunFinished(models.PipelineContext{
		Score:      &score,
		Suggestion: &models.TradeSuggestion{Action: "buy"},
	}, time.Second)
	c.RunFinished(models.PipelineContext{
		StageErrors: []models.StageError{{Stage: "web_search", Message: "x"}},
	}, time.Second)

	if got := testutil.ToFloat64(c.RunsTotal.WithLabelValues("clean")); got != 1 {
		t.Fatalf("clean runs = %v", got)
	}
	if got := testutil.ToFloat64(c.RunsTotal.WithLabelValues("degraded")); got != 1 {
		t.Fatalf("degraded runs = %v", got)
	}
	if got := testutil.ToFloat64(c.Actions.WithLabelValues("buy")); got != 1 {
		t.Fatalf("buy actions = %v", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := NewCollector()
	c.StageFinished("scoring", time.Millisecond, nil)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `cortextrade_stage_duration_seconds_count{stage="scoring"} 1`) {
		t.Fatalf("stage histogram missing from output:\n%s", body)
	}

	// A second collector must not clash with the first.
	_ = NewCollector()
}
