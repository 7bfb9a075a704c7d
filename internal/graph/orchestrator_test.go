package graph

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dyike/CortexTrade/consts"
	"github.com/dyike/CortexTrade/internal/agents"
	"github.com/dyike/CortexTrade/internal/dataflows"
	"github.com/dyike/CortexTrade/models"
	"github.com/sirupsen/logrus"
)

type fakeImages struct {
	calls    atomic.Int32
	findings models.ImageFindings
	err      error
}

func (f *fakeImages) Analyze(_ context.Context, _ agents.ImageRequest) (models.ImageFindings, error) {
	f.calls.Add(1)
	return f.findings, f.err
}

type fakeCandles struct {
	calls   atomic.Int32
	candles []models.Candle
	err     error
}

func (f *fakeCandles) Fetch(_ context.Context, _ dataflows.FetchParams) ([]models.Candle, error) {
	f.calls.Add(1)
	return f.candles, f.err
}

type fakeResearch struct {
	calls   atomic.Int32
	results []models.SearchResult
	err     error
}

func (f *fakeResearch) Research(_ context.Context, _, _ string) ([]models.SearchResult, error) {
	f.calls.Add(1)
	return f.results, f.err
}

type fakeSuggest struct {
	calls      atomic.Int32
	mu         sync.Mutex
	last       agents.SuggestionRequest
	suggestion models.TradeSuggestion
	err        error
	panicMsg   string
}

func (f *fakeSuggest) Suggest(_ context.Context, req agents.SuggestionRequest) (models.TradeSuggestion, error) {
	f.calls.Add(1)
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	f.mu.Lock()
	f.last = req
	f.mu.Unlock()
	return f.suggestion, f.err
}

type recordingObserver struct {
	mu     sync.Mutex
	stages []string
	failed map[string]bool
	runs   int
}

func (r *recordingObserver) StageFinished(stage string, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = append(r.stages, stage)
	if r.failed == nil {
		r.failed = map[string]bool{}
	}
	if err != nil {
		r.failed[stage] = true
	}
}

func (r *recordingObserver) RunFinished(models.PipelineContext, time.Duration) {
	r.mu.Lock()
	r.runs++
	r.mu.Unlock()
}

func ptr(v float64) *float64 { return &v }

func risingCandles(n int) []models.Candle {
	out := make([]models.Candle, n)
	for i := range out {
		c := 100 + float64(i)
		out[i] = models.Candle{
			Timestamp: int64(i+1) * 3_600_000,
			Open:      c - 0.5,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    1000,
		}
	}
	return out
}

func buySuggestion() models.TradeSuggestion {
	return models.TradeSuggestion{
		Action:     consts.ActionBuy,
		Entry:      ptr(160),
		Stop:       ptr(155),
		Targets:    []float64{175},
		Size:       10,
		Rationale:  "trend continuation",
		Confidence: 0.6,
	}
}

func quietLogs(t *testing.T) {
	t.Helper()
	prev := logrus.StandardLogger().Out
	logrus.SetOutput(io.Discard)
	t.Cleanup(func() { logrus.SetOutput(prev) })
}

func newTestOrchestrator(t *testing.T, deps Dependencies, opts ...Option) *Orchestrator {
	t.Helper()
	o, err := New(context.Background(), deps, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	o.clock = func() time.Time { return fixed }
	o.newRunID = func() string { return "run-1" }
	return o
}

func happyDeps() (Dependencies, *fakeSuggest) {
	sg := &fakeSuggest{suggestion: buySuggestion()}
	return Dependencies{
		Images:   &fakeImages{findings: models.NoImageFindings()},
		Candles:  &fakeCandles{candles: risingCandles(60)},
		Research: &fakeResearch{results: []models.SearchResult{{Title: "AAPL beats", URL: "https://example.com/a", Content: "Earnings beat."}}},
		Suggest:  sg,
	}, sg
}

func TestRunHappyPath(t *testing.T) {
	quietLogs(t)
	deps, sg := happyDeps()
	obs := &recordingObserver{}
	o := newTestOrchestrator(t, deps, WithObserver(obs), WithCallbacks(NewStageLogger(nil)))

	pc := o.Run(context.Background(), models.Request{Symbol: "aapl"})

	if pc.Error != "" || len(pc.StageErrors) != 0 {
		t.Fatalf("unexpected errors: %q %+v", pc.Error, pc.StageErrors)
	}
	if pc.RunID != "run-1" || pc.Request.Symbol != "AAPL" || pc.FinishedAt.IsZero() {
		t.Fatalf("run metadata not set: %+v", pc)
	}
	if pc.ImageFindings == nil || pc.ImageFindings.Notes != "No image provided" {
		t.Fatalf("expected canonical no-image findings, got %+v", pc.ImageFindings)
	}
	if len(pc.Candles) != 60 || pc.Indicators == nil || pc.Indicators.Trend() != consts.TrendUp {
		t.Fatalf("market stages incomplete: %d candles, indicators %+v", len(pc.Candles), pc.Indicators)
	}
	if len(pc.SearchResults) != 1 || pc.Suggestion == nil {
		t.Fatalf("signal stages incomplete: %+v", pc)
	}
	if sg.last.Indicators == nil || len(sg.last.Search) != 1 || sg.last.Timeframe != consts.DefaultInterval {
		t.Fatalf("suggester saw incomplete context: %+v", sg.last)
	}
	if pc.Score == nil || math.Abs(*pc.Score-0.95) > 1e-9 {
		t.Fatalf("expected score 0.95, got %v", pc.Score)
	}
	if pc.ScoreReason != "RR: 3.00 (OK); confluence +0.10; score=0.95" {
		t.Fatalf("unexpected reason %q", pc.ScoreReason)
	}
	if pc.RiskAudit == nil {
		t.Fatal("expected risk audit")
	}

	want := []string{consts.ImageAnalysis, consts.MarketData, consts.IndicatorEngine, consts.WebSearch, consts.Suggestion, consts.Scoring}
	if !reflect.DeepEqual(obs.stages, want) {
		t.Fatalf("stage order %v, want %v", obs.stages, want)
	}
	if obs.runs != 1 {
		t.Fatalf("expected 1 run reported, got %d", obs.runs)
	}
}

func TestRunUpstreamFailureStillScores(t *testing.T) {
	quietLogs(t)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	retry := &dataflows.RetryConfig{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
	alpha := dataflows.NewAlphaVantageClient(dataflows.ClientOptions{APIKey: "k", BaseURL: srv.URL, Retry: retry})
	fetcher := dataflows.NewFetcher([]dataflows.CandleProvider{alpha})

	deps, _ := happyDeps()
	deps.Candles = fetcher
	obs := &recordingObserver{}
	o := newTestOrchestrator(t, deps, WithObserver(obs))

	pc := o.Run(context.Background(), models.Request{Symbol: "AAPL", Provider: consts.ProviderAlpha})

	if hits.Load() == 0 {
		t.Fatal("expected the provider to be called")
	}
	if pc.Candles != nil || pc.Indicators != nil {
		t.Fatalf("market results must be absent after upstream failure: %+v", pc.Candles)
	}
	if !strings.Contains(pc.Error, "500") {
		t.Fatalf("expected error naming HTTP 500, got %q", pc.Error)
	}
	if len(pc.StageErrors) != 1 || pc.StageErrors[0].Stage != consts.MarketData || pc.StageErrors[0].Kind != string(models.KindUpstream) {
		t.Fatalf("unexpected stage errors %+v", pc.StageErrors)
	}
	if pc.Score == nil {
		t.Fatal("expected a score alongside the error")
	}
	// No indicators, so no trend confluence: 0.6 + 0.10 levels + 0.15 rr.
	if math.Abs(*pc.Score-0.85) > 1e-9 || pc.ScoreReason != "RR: 3.00 (OK); score=0.85" {
		t.Fatalf("unexpected score %v %q", *pc.Score, pc.ScoreReason)
	}
	if !obs.failed[consts.MarketData] || obs.failed[consts.Scoring] {
		t.Fatalf("observer failures %v", obs.failed)
	}
}

func TestParallelMatchesSequential(t *testing.T) {
	quietLogs(t)
	cases := map[string]func(*Dependencies){
		"all ok": func(*Dependencies) {},
		"both fail": func(d *Dependencies) {
			d.Images = &fakeImages{err: models.UpstreamError("vision", errors.New("boom"))}
			d.Candles = &fakeCandles{err: models.UpstreamError("alpha", errors.New("HTTP 503"))}
		},
		"market missing": func(d *Dependencies) {
			d.Candles = nil
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := models.Request{Symbol: "MSFT", ImageURL: "https://example.com/chart.png"}

			seqDeps, _ := happyDeps()
			mutate(&seqDeps)
			seq := newTestOrchestrator(t, seqDeps).Run(context.Background(), req)

			parDeps, _ := happyDeps()
			mutate(&parDeps)
			par := newTestOrchestrator(t, parDeps, WithParallelFetch(true)).Run(context.Background(), req)

			if !reflect.DeepEqual(seq, par) {
				t.Fatalf("parallel result differs\nseq: %+v\npar: %+v", seq, par)
			}
		})
	}
}

func TestParallelRecordsImageErrorBeforeMarket(t *testing.T) {
	quietLogs(t)
	deps, _ := happyDeps()
	deps.Images = &fakeImages{err: models.ValidationError("vision", errors.New("bad json"))}
	deps.Candles = &fakeCandles{err: models.UpstreamError("alpha", errors.New("HTTP 503"))}
	pc := newTestOrchestrator(t, deps, WithParallelFetch(true)).
		Run(context.Background(), models.Request{Symbol: "MSFT", ImageBase64: "aGVsbG8="})

	if len(pc.StageErrors) != 2 {
		t.Fatalf("expected image and market errors, got %+v", pc.StageErrors)
	}
	if pc.StageErrors[0].Stage != consts.ImageAnalysis || pc.StageErrors[1].Stage != consts.MarketData {
		t.Fatalf("unexpected error order %+v", pc.StageErrors)
	}
	if !strings.HasPrefix(pc.Error, consts.MarketData+":") {
		t.Fatalf("Error should hold the market failure, got %q", pc.Error)
	}
	if pc.Suggestion == nil || pc.Score == nil {
		t.Fatal("later stages must still run")
	}
}

func TestRunCancelledSkipsNetworkStages(t *testing.T) {
	quietLogs(t)
	images := &fakeImages{}
	candles := &fakeCandles{candles: risingCandles(30)}
	research := &fakeResearch{}
	sg := &fakeSuggest{suggestion: buySuggestion()}
	o := newTestOrchestrator(t, Dependencies{Images: images, Candles: candles, Research: research, Suggest: sg})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pc := o.Run(ctx, models.Request{Symbol: "AAPL", ImageURL: "https://example.com/c.png"})

	if images.calls.Load()+candles.calls.Load()+research.calls.Load()+sg.calls.Load() != 0 {
		t.Fatal("no collaborator may be called after cancellation")
	}
	if pc.Score == nil || *pc.Score != 0 || pc.ScoreReason != "no suggestion; score=0.00" {
		t.Fatalf("expected a zero score, got %v %q", pc.Score, pc.ScoreReason)
	}
	if len(pc.StageErrors) == 0 || !errorsMention(pc, context.Canceled.Error()) {
		t.Fatalf("expected cancellation recorded, got %+v", pc.StageErrors)
	}
	for _, se := range pc.StageErrors {
		if se.Kind != string(models.KindUpstream) {
			t.Fatalf("skipped stage %s recorded kind %q, want upstream", se.Stage, se.Kind)
		}
	}
}

func errorsMention(pc models.PipelineContext, s string) bool {
	for _, se := range pc.StageErrors {
		if strings.Contains(se.Message, s) {
			return true
		}
	}
	return false
}

func TestStagePanicIsRecovered(t *testing.T) {
	quietLogs(t)
	deps, _ := happyDeps()
	deps.Suggest = &fakeSuggest{panicMsg: "nil map"}
	pc := newTestOrchestrator(t, deps).Run(context.Background(), models.Request{Symbol: "AAPL"})

	if pc.Suggestion != nil {
		t.Fatal("suggestion must be absent after panic")
	}
	if len(pc.StageErrors) != 1 || pc.StageErrors[0].Stage != consts.Suggestion || !strings.Contains(pc.StageErrors[0].Message, "panic: nil map") {
		t.Fatalf("unexpected stage errors %+v", pc.StageErrors)
	}
	if pc.Score == nil || *pc.Score != 0 {
		t.Fatalf("expected zero score, got %v", pc.Score)
	}
}

func TestInvalidRequestOnlyScores(t *testing.T) {
	quietLogs(t)
	deps, sg := happyDeps()
	pc := newTestOrchestrator(t, deps).Run(context.Background(), models.Request{Symbol: " ", Interval: "2h"})

	if sg.calls.Load() != 0 {
		t.Fatal("suggester must not run for an invalid request")
	}
	if len(pc.StageErrors) != 1 || pc.StageErrors[0].Stage != consts.RequestStage || pc.StageErrors[0].Kind != string(models.KindConfig) {
		t.Fatalf("unexpected stage errors %+v", pc.StageErrors)
	}
	if pc.Score == nil || pc.ScoreReason != "no suggestion; score=0.00" {
		t.Fatalf("expected scoring to run, got %v %q", pc.Score, pc.ScoreReason)
	}
}

func TestMissingDependenciesAreConfigErrors(t *testing.T) {
	quietLogs(t)
	pc := newTestOrchestrator(t, Dependencies{}).Run(context.Background(), models.Request{Symbol: "AAPL", ImageURL: "https://example.com/c.png"})

	wantStages := []string{consts.ImageAnalysis, consts.MarketData, consts.WebSearch, consts.Suggestion}
	if len(pc.StageErrors) != len(wantStages) {
		t.Fatalf("expected %d errors, got %+v", len(wantStages), pc.StageErrors)
	}
	for i, se := range pc.StageErrors {
		if se.Stage != wantStages[i] || se.Kind != string(models.KindConfig) {
			t.Fatalf("error %d = %+v", i, se)
		}
	}
	if !strings.HasPrefix(pc.Error, consts.Suggestion+":") {
		t.Fatalf("Error should hold the latest failure, got %q", pc.Error)
	}
	if pc.Score == nil {
		t.Fatal("expected score")
	}
}

func TestShortCandleSeriesIsIndicatorError(t *testing.T) {
	quietLogs(t)
	deps, sg := happyDeps()
	deps.Candles = &fakeCandles{candles: risingCandles(5)}
	pc := newTestOrchestrator(t, deps).Run(context.Background(), models.Request{Symbol: "AAPL"})

	if len(pc.Candles) != 5 || pc.Indicators != nil {
		t.Fatalf("unexpected market state: %d candles, %+v", len(pc.Candles), pc.Indicators)
	}
	if len(pc.StageErrors) != 1 || pc.StageErrors[0].Stage != consts.IndicatorEngine || pc.StageErrors[0].Kind != string(models.KindConfig) {
		t.Fatalf("unexpected stage errors %+v", pc.StageErrors)
	}
	if sg.calls.Load() != 1 || pc.Suggestion == nil {
		t.Fatal("suggestion must still run")
	}
}
