package scorer

import (
	"math"
	"strings"
	"testing"

	"github.com/dyike/CortexTrade/consts"
	"github.com/dyike/CortexTrade/models"
)

func f(v float64) *float64 { return &v }

func assertClose(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("%s = %v, want %v", name, got, want)
	}
}

func buyPlan() *models.TradeSuggestion {
	return &models.TradeSuggestion{
		Action:     consts.ActionBuy,
		Entry:      f(100),
		Stop:       f(90),
		Targets:    []float64{130, 150},
		Size:       10,
		Confidence: 0.5,
	}
}

func TestPreprocessRewardRisk(t *testing.T) {
	p := Preprocess(Input{Suggestion: buyPlan()})
	if !p.HasLevels || p.RR == nil {
		t.Fatalf("expected levels and rr, got %+v", p)
	}
	assertClose(t, "rr", *p.RR, 3)
	assertClose(t, "rrMin", p.RRMin, 2)
	if p.Direction != consts.ActionBuy {
		t.Fatalf("direction = %q", p.Direction)
	}
}

func TestScoreFullConfluence(t *testing.T) {
	ind := &models.IndicatorSet{EMAFast: 105, EMASlow: 100, RSI: 55}
	res := Score(Input{Suggestion: buyPlan(), Indicators: ind, Risk: models.RiskParams{RRMin: 2}})

	assertClose(t, "score", res.Score, 0.90)
	want := "RR: 3.00 (OK); confluence +0.15; score=0.90"
	if res.Reason != want {
		t.Fatalf("reason = %q, want %q", res.Reason, want)
	}
}

func TestScoreWaitWithoutLevels(t *testing.T) {
	res := Score(Input{Suggestion: &models.TradeSuggestion{Action: consts.ActionWait}})
	if res.Score != 0 {
		t.Fatalf("score = %v, want 0", res.Score)
	}
	if res.Reason != "RR: n/a (below threshold); score=0.00" {
		t.Fatalf("unexpected reason %q", res.Reason)
	}

	res = Score(Input{Suggestion: &models.TradeSuggestion{Action: consts.ActionWait, Confidence: 0.3}})
	assertClose(t, "score", res.Score, 0.2)
}

func TestScoreNoSuggestion(t *testing.T) {
	res := Score(Input{})
	if res.Score != 0 || res.Reason != "no suggestion; score=0.00" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestScoreSellConfluenceAndRRBelowThreshold(t *testing.T) {
	s := &models.TradeSuggestion{Action: consts.ActionSell, Entry: f(100), Stop: f(110), Targets: []float64{85}, Confidence: 0.6}
	ind := &models.IndicatorSet{EMAFast: 95, EMASlow: 100, RSI: 45}

	res := Score(Input{Suggestion: s, Indicators: ind, Risk: models.RiskParams{RRMin: 2}})
	// 0.6 + 0.15 confluence + 0.10 levels - 0.10 rr below 2
	assertClose(t, "score", res.Score, 0.75)
	if !strings.HasPrefix(res.Reason, "RR: 1.50 (below threshold); confluence +0.15") {
		t.Fatalf("unexpected reason %q", res.Reason)
	}
}

func TestRSIBoundsAreExclusive(t *testing.T) {
	for _, rsi := range []float64{40, 70} {
		a := Analyze(Preprocess(Input{Suggestion: buyPlan()}), &models.IndicatorSet{RSI: rsi})
		if a.Confluence != 0 {
			t.Errorf("rsi %v should not add confluence, got %v", rsi, a.Confluence)
		}
	}
}

func TestScoreClampsAndHandlesDegenerateInput(t *testing.T) {
	s := buyPlan()
	s.Confidence = 1
	res := Score(Input{Suggestion: s, Indicators: &models.IndicatorSet{EMAFast: 2, EMASlow: 1, RSI: 50}})
	if res.Score != 1 {
		t.Fatalf("score should clamp to 1, got %v", res.Score)
	}

	degenerate := &models.TradeSuggestion{Action: consts.ActionBuy, Entry: f(100), Stop: f(100), Targets: []float64{101}, Confidence: math.NaN()}
	res = Score(Input{Suggestion: degenerate})
	if res.Score < 0 || res.Score > 1 || math.IsNaN(res.Score) {
		t.Fatalf("score out of range: %v", res.Score)
	}

	inf := &models.TradeSuggestion{Action: consts.ActionBuy, Entry: f(math.Inf(1)), Stop: f(90), Targets: []float64{130}, Confidence: 0.5}
	if p := Preprocess(Input{Suggestion: inf}); p.HasLevels {
		t.Fatalf("infinite entry must not count as a level")
	}
}

func TestCustomRRMin(t *testing.T) {
	res := Score(Input{Suggestion: buyPlan(), Risk: models.RiskParams{RRMin: 4}})
	// 0.5 + 0.10 levels - 0.10 rr below 4
	assertClose(t, "score", res.Score, 0.5)
}

func TestAuditWithinBudget(t *testing.T) {
	a := Audit(buyPlan(), models.RiskParams{MaxRiskPct: 1, RRMin: 2}, 10000)
	assertClose(t, "riskPerUnit", a.RiskPerUnit, 10)
	assertClose(t, "riskAmount", a.RiskAmount, 100)
	assertClose(t, "maxRiskAmount", a.MaxRiskAmount, 100)
	if !a.WithinRiskBudget || !a.MeetsMinRR || a.RewardRisk == nil || *a.RewardRisk != 3 {
		t.Fatalf("unexpected audit %+v", a)
	}
	if len(a.Violations) != 0 {
		t.Fatalf("unexpected violations %v", a.Violations)
	}
}

func TestAuditFlagsViolations(t *testing.T) {
	s := buyPlan()
	s.Size = 50
	s.Targets = []float64{110}
	a := Audit(s, models.RiskParams{MaxRiskPct: 1, RRMin: 2}, 10000)
	if a.WithinRiskBudget || a.MeetsMinRR {
		t.Fatalf("expected budget and rr violations, got %+v", a)
	}
	joined := strings.Join(a.Violations, "|")
	if !strings.Contains(joined, "risk amount 500.00 exceeds budget 100.00") || !strings.Contains(joined, "reward to risk 1.00 below minimum 2.00") {
		t.Fatalf("unexpected violations %v", a.Violations)
	}

	wrongSide := &models.TradeSuggestion{Action: consts.ActionSell, Entry: f(100), Stop: f(95), Targets: []float64{90}}
	a = Audit(wrongSide, models.RiskParams{}, 10000)
	if !strings.Contains(strings.Join(a.Violations, "|"), "stop is not above entry for a sell") {
		t.Fatalf("expected wrong-side stop violation, got %v", a.Violations)
	}

	unbounded := &models.TradeSuggestion{Action: consts.ActionBuy, Entry: f(100)}
	a = Audit(unbounded, models.RiskParams{}, 10000)
	if a.WithinRiskBudget || len(a.Violations) != 1 {
		t.Fatalf("expected unbounded risk violation, got %+v", a)
	}
}

func TestAuditWaitAndNil(t *testing.T) {
	if Audit(nil, models.RiskParams{}, 10000) != nil {
		t.Fatalf("expected nil audit without suggestion")
	}
	a := Audit(&models.TradeSuggestion{Action: consts.ActionWait}, models.RiskParams{}, 10000)
	if !a.WithinRiskBudget || len(a.Violations) != 0 {
		t.Fatalf("wait without levels should be clean, got %+v", a)
	}
}
