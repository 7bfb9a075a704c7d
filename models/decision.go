package models

import (
	"fmt"
	"math"

	"github.com/dyike/CortexTrade/consts"
)

type ImageSignal struct {
	Direction  string  `json:"direction"`
	Confidence float64 `json:"confidence"`
}

// ImageFindings is the structured read of a chart screenshot.
type ImageFindings struct {
	Instrument        *string     `json:"instrument"`
	Timeframe         *string     `json:"timeframe"`
	Patterns          []string    `json:"patterns"`
	SupportResistance []string    `json:"supportResistance"`
	Notes             string      `json:"notes"`
	Signal            ImageSignal `json:"signal"`
}

// NoImageFindings is returned when a request carries no chart image.
func NoImageFindings() ImageFindings {
	return ImageFindings{
		Patterns:          []string{},
		SupportResistance: []string{},
		Notes:             "No image provided",
		Signal:            ImageSignal{Direction: consts.DirectionUnknown, Confidence: 0},
	}
}

func (f ImageFindings) Validate() error {
	switch f.Signal.Direction {
	case consts.ActionBuy, consts.ActionSell, consts.ActionWait, consts.DirectionUnknown:
	default:
		return fmt.Errorf("signal.direction %q is not one of buy/sell/wait/unknown", f.Signal.Direction)
	}
	if !inUnit(f.Signal.Confidence) {
		return fmt.Errorf("signal.confidence %v outside [0,1]", f.Signal.Confidence)
	}
	return nil
}

type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// TradeSuggestion is a single risk-bounded plan. Entry and Stop are nil when the
// collaborator declines to set levels.
type TradeSuggestion struct {
	Action     string    `json:"action"`
	Entry      *float64  `json:"entry"`
	Stop       *float64  `json:"stop"`
	Targets    []float64 `json:"targets"`
	Size       float64   `json:"size"`
	Rationale  string    `json:"rationale"`
	Confidence float64   `json:"confidence"`
}

// PrimaryTarget returns the first target, if any.
func (s TradeSuggestion) PrimaryTarget() *float64 {
	if len(s.Targets) == 0 {
		return nil
	}
	t := s.Targets[0]
	return &t
}

func (s TradeSuggestion) Validate() error {
	switch s.Action {
	case consts.ActionBuy, consts.ActionSell, consts.ActionWait:
	default:
		return fmt.Errorf("action %q is not one of buy/sell/wait", s.Action)
	}
	if !inUnit(s.Confidence) {
		return fmt.Errorf("confidence %v outside [0,1]", s.Confidence)
	}
	if s.Entry != nil && !finite(*s.Entry) {
		return fmt.Errorf("entry is not finite")
	}
	if s.Stop != nil && !finite(*s.Stop) {
		return fmt.Errorf("stop is not finite")
	}
	for i, t := range s.Targets {
		if !finite(t) {
			return fmt.Errorf("targets[%d] is not finite", i)
		}
	}
	if !finite(s.Size) || s.Size < 0 {
		return fmt.Errorf("size %v must be a non-negative number", s.Size)
	}
	return nil
}

type ScoreResult struct {
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

// RiskAudit compares a suggestion with the requested risk budget. It is advisory
// and never feeds the score.
type RiskAudit struct {
	RiskPerUnit      float64  `json:"riskPerUnit"`
	RiskAmount       float64  `json:"riskAmount"`
	MaxRiskAmount    float64  `json:"maxRiskAmount"`
	RewardRisk       *float64 `json:"rewardRisk"`
	WithinRiskBudget bool     `json:"withinRiskBudget"`
	MeetsMinRR       bool     `json:"meetsMinRR"`
	Violations       []string `json:"violations"`
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func inUnit(v float64) bool {
	return finite(v) && v >= 0 && v <= 1
}
