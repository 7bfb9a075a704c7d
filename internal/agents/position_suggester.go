package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"github.com/dyike/CortexTrade/consts"
	"github.com/dyike/CortexTrade/internal/reasoner"
	"github.com/dyike/CortexTrade/models"
)

const suggestionSource = "suggestion"

// SuggestionRequest bundles everything gathered before the suggestion stage.
// Nil findings are sent as empty objects.
type SuggestionRequest struct {
	Symbol        string
	Timeframe     string
	Image         *models.ImageFindings
	Indicators    *models.IndicatorSet
	Search        []models.SearchResult
	Risk          models.RiskParams
	AccountEquity float64
}

// PositionSuggester asks the reasoner for exactly one trade plan. Risk limits are
// stated in the prompt; they are not enforced here.
type PositionSuggester struct {
	reasoner reasoner.Reasoner
	template prompt.ChatTemplate
}

func NewPositionSuggester(r reasoner.Reasoner) *PositionSuggester {
	return &PositionSuggester{
		reasoner: r,
		template: prompt.FromMessages(schema.FString,
			schema.SystemMessage(mustLoadPrompt("position_suggestion")),
			schema.UserMessage(`Symbol: {symbol}
Timeframe: {timeframe}

Image findings: {image}
Indicators: {indicators}
News/Sentiment: {search}`),
		),
	}
}

func (ps *PositionSuggester) Suggest(ctx context.Context, req SuggestionRequest) (models.TradeSuggestion, error) {
	if ps.reasoner == nil {
		return models.TradeSuggestion{}, models.ConfigError(suggestionSource, errors.New("no reasoning model configured"))
	}

	vars, err := suggestionVars(req)
	if err != nil {
		return models.TradeSuggestion{}, err
	}
	msgs, err := ps.template.Format(ctx, vars)
	if err != nil {
		return models.TradeSuggestion{}, fmt.Errorf("format suggestion prompt: %w", err)
	}

	raw, err := ps.reasoner.Generate(ctx, msgs, tradeSuggestionSchema)
	if err != nil {
		return models.TradeSuggestion{}, err
	}
	s, err := DecodeSuggestion(raw)
	if err != nil {
		return models.TradeSuggestion{}, models.ValidationError(suggestionSource, err)
	}
	return s, nil
}

func suggestionVars(req SuggestionRequest) (map[string]any, error) {
	image, err := indentJSON(req.Image, "{}")
	if err != nil {
		return nil, err
	}
	indicators, err := indentJSON(req.Indicators, "{}")
	if err != nil {
		return nil, err
	}
	search, err := indentJSON(req.Search, "[]")
	if err != nil {
		return nil, err
	}
	timeframe := req.Timeframe
	if timeframe == "" {
		timeframe = consts.DefaultInterval
	}
	return map[string]any{
		"symbol":         req.Symbol,
		"timeframe":      timeframe,
		"image":          image,
		"indicators":     indicators,
		"search":         search,
		"max_risk_pct":   formatNumber(req.Risk.MaxRiskPct),
		"rr_min":         formatNumber(req.Risk.RRMin),
		"account_equity": formatNumber(req.AccountEquity),
	}, nil
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// indentJSON renders v for the prompt, using empty when v is nil or empty.
func indentJSON(v any, empty string) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode prompt input: %w", err)
	}
	if s := string(data); s != "null" && s != "[]" {
		return s, nil
	}
	return empty, nil
}

type suggestionReply struct {
	Action     string    `json:"action"`
	Entry      *float64  `json:"entry"`
	Stop       *float64  `json:"stop"`
	Targets    []float64 `json:"targets"`
	Size       *float64  `json:"size"`
	Rationale  string    `json:"rationale"`
	Confidence *float64  `json:"confidence"`
}

// DecodeSuggestion parses and validates a suggestion reply. entry and stop must
// be present, possibly null. Other missing fields take their defaults: action
// wait, confidence 0.3, size 0, no targets.
func DecodeSuggestion(raw json.RawMessage) (models.TradeSuggestion, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return models.TradeSuggestion{}, fmt.Errorf("decode suggestion: %w", err)
	}
	for _, key := range []string{"entry", "stop"} {
		if _, ok := fields[key]; !ok {
			return models.TradeSuggestion{}, fmt.Errorf("decode suggestion: missing %q", key)
		}
	}

	var reply suggestionReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return models.TradeSuggestion{}, fmt.Errorf("decode suggestion: %w", err)
	}

	s := models.TradeSuggestion{
		Action:     strings.ToLower(strings.TrimSpace(reply.Action)),
		Entry:      reply.Entry,
		Stop:       reply.Stop,
		Targets:    reply.Targets,
		Rationale:  strings.TrimSpace(reply.Rationale),
		Confidence: 0.3,
	}
	if s.Action == "" {
		s.Action = consts.ActionWait
	}
	if s.Targets == nil {
		s.Targets = []float64{}
	}
	if reply.Size != nil {
		s.Size = *reply.Size
	}
	if reply.Confidence != nil {
		s.Confidence = *reply.Confidence
	}
	if err := s.Validate(); err != nil {
		return models.TradeSuggestion{}, err
	}
	return s, nil
}
