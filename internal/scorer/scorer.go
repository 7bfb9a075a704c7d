// Package scorer grades a trade suggestion against the indicators and the
// requested reward to risk. The score is deterministic and lies in [0,1].
package scorer

import (
	"fmt"
	"math"

	"github.com/dyike/CortexTrade/consts"
	"github.com/dyike/CortexTrade/models"
)

const (
	defaultRRMin   = 2.0
	minRiskSpan    = 1e-8
	trendBoost     = 0.10
	rsiBoost       = 0.05
	levelsBoost    = 0.10
	rrOkBoost      = 0.15
	rrShortPenalty = 0.10
)

type Input struct {
	Suggestion *models.TradeSuggestion
	Indicators *models.IndicatorSet
	Risk       models.RiskParams
}

// Preprocessed holds the normalised view of the suggestion.
type Preprocessed struct {
	Direction  string
	Confidence float64
	Entry      *float64
	Stop       *float64
	Target     *float64
	HasLevels  bool
	RR         *float64
	RRMin      float64
}

type Analysis struct {
	Confluence  float64
	RROk        bool
	Provisional float64
}

// Score runs all phases. A missing suggestion scores 0.
func Score(in Input) models.ScoreResult {
	if in.Suggestion == nil {
		return models.ScoreResult{Score: 0, Reason: "no suggestion; score=0.00"}
	}
	pre := Preprocess(in)
	an := Analyze(pre, in.Indicators)
	score := Finalize(an)
	return models.ScoreResult{Score: score, Reason: Reason(pre, an, score)}
}

func Preprocess(in Input) Preprocessed {
	p := Preprocessed{Direction: consts.DirectionUnknown, RRMin: in.Risk.RRMin}
	if !(p.RRMin > 0) || math.IsInf(p.RRMin, 0) {
		p.RRMin = defaultRRMin
	}
	s := in.Suggestion
	if s == nil {
		return p
	}

	if s.Action != "" {
		p.Direction = s.Action
	}
	if !math.IsNaN(s.Confidence) {
		p.Confidence = clamp01(s.Confidence)
	}
	p.Entry = finitePtr(s.Entry)
	p.Stop = finitePtr(s.Stop)
	p.Target = finitePtr(s.PrimaryTarget())
	p.HasLevels = p.Entry != nil && p.Stop != nil && p.Target != nil

	if p.HasLevels {
		risk := math.Max(minRiskSpan, math.Abs(*p.Entry-*p.Stop))
		rr := math.Abs(*p.Target-*p.Entry) / risk
		if !math.IsNaN(rr) && !math.IsInf(rr, 0) {
			p.RR = &rr
		}
	}
	return p
}

func Analyze(p Preprocessed, ind *models.IndicatorSet) Analysis {
	var a Analysis
	if ind != nil {
		trend := ind.Trend()
		switch {
		case p.Direction == consts.ActionBuy && trend == consts.TrendUp,
			p.Direction == consts.ActionSell && trend == consts.TrendDown:
			a.Confluence += trendBoost
		}
		rsi := ind.RSI
		switch {
		case p.Direction == consts.ActionBuy && rsi > 40 && rsi < 70,
			p.Direction == consts.ActionSell && rsi > 30 && rsi < 60:
			a.Confluence += rsiBoost
		}
	}

	a.RROk = p.RR != nil && *p.RR >= p.RRMin

	total := p.Confidence + a.Confluence
	if p.HasLevels {
		total += levelsBoost
	}
	if a.RROk {
		total += rrOkBoost
	} else {
		total -= rrShortPenalty
	}
	a.Provisional = clamp01(total)
	return a
}

func Finalize(a Analysis) float64 {
	return clamp01(a.Provisional)
}

// Reason renders "RR: <rr|n/a> (OK|below threshold)[; confluence +x.xx]; score=y.yy".
func Reason(p Preprocessed, a Analysis, score float64) string {
	rr := "n/a"
	if p.RR != nil {
		rr = fmt.Sprintf("%.2f", *p.RR)
	}
	status := "below threshold"
	if a.RROk {
		status = "OK"
	}
	reason := fmt.Sprintf("RR: %s (%s)", rr, status)
	if a.Confluence > 0 {
		reason += fmt.Sprintf("; confluence +%.2f", a.Confluence)
	}
	return reason + fmt.Sprintf("; score=%.2f", score)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func finitePtr(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	x := *v
	return &x
}
