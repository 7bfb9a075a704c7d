package scorer

import (
	"fmt"

	"github.com/dyike/CortexTrade/consts"
	"github.com/dyike/CortexTrade/models"
	"github.com/shopspring/decimal"
)

// Audit checks a suggestion against the requested risk budget. The result is
// advisory: it is stored next to the score and never changes it.
func Audit(s *models.TradeSuggestion, risk models.RiskParams, equity float64) *models.RiskAudit {
	if s == nil {
		return nil
	}
	rrMin := risk.RRMin
	if rrMin <= 0 {
		rrMin = consts.DefaultRRMin
	}
	pct := risk.MaxRiskPct
	if pct <= 0 {
		pct = consts.DefaultMaxRiskPct
	}

	hundred := decimal.NewFromInt(100)
	maxRisk := decimal.NewFromFloat(equity).Mul(decimal.NewFromFloat(pct)).Div(hundred).Round(2)
	audit := &models.RiskAudit{
		MaxRiskAmount: maxRisk.InexactFloat64(),
		Violations:    []string{},
	}
	active := s.Action == consts.ActionBuy || s.Action == consts.ActionSell

	entry, stop := finitePtr(s.Entry), finitePtr(s.Stop)
	if entry == nil || stop == nil {
		audit.WithinRiskBudget = !active
		if active {
			audit.Violations = append(audit.Violations, "entry or stop missing; risk is unbounded")
		}
		return audit
	}

	e, st := decimal.NewFromFloat(*entry), decimal.NewFromFloat(*stop)
	perUnit := e.Sub(st).Abs()
	amount := perUnit.Mul(decimal.NewFromFloat(s.Size)).Round(2)
	audit.RiskPerUnit = perUnit.InexactFloat64()
	audit.RiskAmount = amount.InexactFloat64()
	audit.WithinRiskBudget = amount.LessThanOrEqual(maxRisk)
	if !audit.WithinRiskBudget {
		audit.Violations = append(audit.Violations,
			fmt.Sprintf("risk amount %s exceeds budget %s (%s%% of %s)",
				amount.StringFixed(2), maxRisk.StringFixed(2), decimal.NewFromFloat(pct).String(), decimal.NewFromFloat(equity).String()))
	}

	switch {
	case s.Action == consts.ActionBuy && !st.LessThan(e):
		audit.Violations = append(audit.Violations, "stop is not below entry for a buy")
	case s.Action == consts.ActionSell && !st.GreaterThan(e):
		audit.Violations = append(audit.Violations, "stop is not above entry for a sell")
	}

	target := finitePtr(s.PrimaryTarget())
	if target == nil || perUnit.IsZero() {
		if active {
			audit.Violations = append(audit.Violations, "reward to risk cannot be computed")
		}
		return audit
	}
	t := decimal.NewFromFloat(*target)
	switch {
	case s.Action == consts.ActionBuy && !t.GreaterThan(e):
		audit.Violations = append(audit.Violations, "first target is not above entry for a buy")
	case s.Action == consts.ActionSell && !t.LessThan(e):
		audit.Violations = append(audit.Violations, "first target is not below entry for a sell")
	}

	rr := t.Sub(e).Abs().Div(perUnit)
	rrf := rr.Round(4).InexactFloat64()
	audit.RewardRisk = &rrf
	audit.MeetsMinRR = rr.GreaterThanOrEqual(decimal.NewFromFloat(rrMin))
	if !audit.MeetsMinRR && active {
		audit.Violations = append(audit.Violations,
			fmt.Sprintf("reward to risk %s below minimum %s", rr.StringFixed(2), decimal.NewFromFloat(rrMin).StringFixed(2)))
	}
	return audit
}
