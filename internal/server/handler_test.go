package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dyike/CortexTrade/consts"
	"github.com/dyike/CortexTrade/internal/storage/sqlite"
	"github.com/dyike/CortexTrade/models"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeAnalyzer struct {
	got models.Request
}

func (f *fakeAnalyzer) Analyze(_ context.Context, req models.Request) models.PipelineContext {
	f.got = req
	score := 0.5
	pc := models.PipelineContext{RunID: "run-1", Request: req, Score: &score, ScoreReason: "RR: n/a (below threshold); score=0.50"}
	if req.Symbol == "" {
		pc = pc.WithStageError(consts.RequestStage, models.ConfigError("request", errors.New("symbol is required")))
	}
	return pc
}

type fakeRuns struct {
	runs []sqlite.RunSummary
}

func (f *fakeRuns) GetRun(_ context.Context, id string) (*sqlite.RunRecord, error) {
	for _, r := range f.runs {
		if r.ID == id {
			return &sqlite.RunRecord{RunSummary: r}, nil
		}
	}
	return nil, nil
}

func (f *fakeRuns) ListRuns(_ context.Context, symbol string, cursor int64, limit int) ([]sqlite.RunSummary, error) {
	var out []sqlite.RunSummary
	for _, r := range f.runs {
		if (symbol == "" || strings.EqualFold(symbol, r.Symbol)) && (cursor == 0 || r.RowID < cursor) {
			out = append(out, r)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreateDecision(t *testing.T) {
	an := &fakeAnalyzer{}
	h := NewHandler(an, nil, nil, 0)

	rec := do(h, http.MethodPost, "/v1/decisions", `{"symbol":"AAPL","interval":"1d","risk":{"maxRiskPct":2}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if an.got.Symbol != "AAPL" || an.got.Interval != "1d" || an.got.Risk.MaxRiskPct != 2 {
		t.Fatalf("request not decoded: %+v", an.got)
	}
	var pc models.PipelineContext
	if err := json.Unmarshal(rec.Body.Bytes(), &pc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pc.RunID != "run-1" || pc.Score == nil || *pc.Score != 0.5 {
		t.Fatalf("unexpected body %+v", pc)
	}
}

func TestCreateDecisionBadInput(t *testing.T) {
	h := NewHandler(&fakeAnalyzer{}, nil, nil, 0)

	if rec := do(h, http.MethodPost, "/v1/decisions", `{"symbol":`); rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed json: status %d", rec.Code)
	}
	rec := do(h, http.MethodPost, "/v1/decisions", `{"symbol":""}`)
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), `"stageErrors"`) {
		t.Fatalf("invalid request: status %d body %s", rec.Code, rec.Body.String())
	}
}

func TestRunsEndpoints(t *testing.T) {
	runs := &fakeRuns{runs: []sqlite.RunSummary{
		{RowID: 3, ID: "c", Symbol: "AAPL"},
		{RowID: 2, ID: "b", Symbol: "MSFT"},
		{RowID: 1, ID: "a", Symbol: "AAPL"},
	}}
	h := NewHandler(&fakeAnalyzer{}, runs, nil, 0)

	rec := do(h, http.MethodGet, "/v1/runs?limit=2", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status %d", rec.Code)
	}
	var page struct {
		Runs       []sqlite.RunSummary `json:"runs"`
		NextCursor int64               `json:"nextCursor"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(page.Runs) != 2 || page.Runs[0].ID != "c" || page.NextCursor != 2 {
		t.Fatalf("unexpected page %+v", page)
	}

	if rec := do(h, http.MethodGet, "/v1/runs?cursor=x", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad cursor status %d", rec.Code)
	}
	if rec := do(h, http.MethodGet, "/v1/runs/b", ""); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"symbol":"MSFT"`) {
		t.Fatalf("get run: %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(h, http.MethodGet, "/v1/runs/zzz", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("missing run status %d", rec.Code)
	}
}

func TestHistoryDisabledAndHealth(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("cortextrade_runs_total 1\n"))
	})
	h := NewHandler(&fakeAnalyzer{}, nil, metrics, 0)

	if rec := do(h, http.MethodGet, "/v1/runs", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without history, got %d", rec.Code)
	}
	if rec := do(h, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ok") {
		t.Fatalf("health: %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(h, http.MethodGet, "/metrics", ""); !strings.Contains(rec.Body.String(), "cortextrade_runs_total") {
		t.Fatalf("metrics not mounted: %s", rec.Body.String())
	}
}
