package models

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dyike/CortexTrade/consts"
)

var ErrResultAlreadySet = errors.New("result already set")

type RiskParams struct {
	MaxRiskPct float64 `json:"maxRiskPct"`
	RRMin      float64 `json:"rrMin"`
}

// Request carries the immutable parameters of one pipeline run.
type Request struct {
	Symbol        string     `json:"symbol"`
	Interval      string     `json:"interval"`
	Range         string     `json:"range"`
	Provider      string     `json:"provider"`
	Market        string     `json:"market"`
	Timeframe     string     `json:"timeframe"`
	ImageURL      string     `json:"imageUrl,omitempty"`
	ImageBase64   string     `json:"imageBase64,omitempty"`
	ContextHint   string     `json:"context,omitempty"`
	SearchQuery   string     `json:"searchQuery,omitempty"`
	Risk          RiskParams `json:"risk"`
	AccountEquity float64    `json:"accountEquity"`
}

// WithDefaults returns a copy with every unset field filled in.
func (r Request) WithDefaults() Request {
	r.Symbol = strings.ToUpper(strings.TrimSpace(r.Symbol))
	if r.Interval == "" {
		r.Interval = consts.DefaultInterval
	}
	if r.Range == "" {
		r.Range = consts.DefaultRange
	}
	if r.Provider == "" {
		r.Provider = consts.DefaultProvider
	}
	if r.Market == "" {
		r.Market = consts.DefaultMarket
	}
	if r.Timeframe == "" {
		r.Timeframe = r.Interval
	}
	if r.Risk.MaxRiskPct <= 0 {
		r.Risk.MaxRiskPct = consts.DefaultMaxRiskPct
	}
	if r.Risk.RRMin <= 0 {
		r.Risk.RRMin = consts.DefaultRRMin
	}
	if r.AccountEquity <= 0 {
		r.AccountEquity = consts.DefaultAccountEquity
	}
	return r
}

// Validate rejects requests no stage could serve. Call after WithDefaults.
func (r Request) Validate() error {
	var errs []error
	if r.Symbol == "" {
		errs = append(errs, errors.New("symbol is required"))
	}
	if !slices.Contains(consts.Intervals, r.Interval) {
		errs = append(errs, fmt.Errorf("unsupported interval %q", r.Interval))
	}
	switch r.Provider {
	case consts.ProviderAlpha, consts.ProviderFinnhub, consts.ProviderYahoo, consts.ProviderLongport:
	default:
		errs = append(errs, fmt.Errorf("unsupported provider %q", r.Provider))
	}
	switch r.Market {
	case consts.MarketStock, consts.MarketForex, consts.MarketCrypto:
	default:
		errs = append(errs, fmt.Errorf("unsupported market %q", r.Market))
	}
	if _, err := r.Count(); err != nil {
		errs = append(errs, err)
	}
	if r.Risk.MaxRiskPct > 100 {
		errs = append(errs, fmt.Errorf("maxRiskPct %v exceeds 100", r.Risk.MaxRiskPct))
	}
	if err := errors.Join(errs...); err != nil {
		return ConfigError("request", err)
	}
	return nil
}

// Count parses Range as a positive candle count.
func (r Request) Count() (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(r.Range))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("range %q is not a positive candle count", r.Range)
	}
	return n, nil
}

func (r Request) HasImage() bool {
	return strings.TrimSpace(r.ImageURL) != "" || strings.TrimSpace(r.ImageBase64) != ""
}

type StageError struct {
	Stage   string `json:"stage"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
}

// PipelineContext is the value threaded through the stages. Every With* method
// returns a new context; result fields are write-once.
type PipelineContext struct {
	RunID      string    `json:"runId,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`

	Request Request `json:"request"`

	ImageFindings *ImageFindings   `json:"imageFindings,omitempty"`
	Candles       []Candle         `json:"candles,omitempty"`
	Indicators    *IndicatorSet    `json:"indicators,omitempty"`
	SearchResults []SearchResult   `json:"searchResults"`
	Suggestion    *TradeSuggestion `json:"suggestion,omitempty"`
	Score         *float64         `json:"score,omitempty"`
	ScoreReason   string           `json:"scoreReason,omitempty"`
	RiskAudit     *RiskAudit       `json:"riskAudit,omitempty"`

	Error       string       `json:"error,omitempty"`
	StageErrors []StageError `json:"stageErrors,omitempty"`
}

func NewPipelineContext(req Request) PipelineContext {
	return PipelineContext{Request: req}
}

func (p PipelineContext) WithImageFindings(f ImageFindings) (PipelineContext, error) {
	if p.ImageFindings != nil {
		return p, fmt.Errorf("image findings: %w", ErrResultAlreadySet)
	}
	f.Patterns = slices.Clone(f.Patterns)
	f.SupportResistance = slices.Clone(f.SupportResistance)
	p.ImageFindings = &f
	return p, nil
}

func (p PipelineContext) WithCandles(candles []Candle) (PipelineContext, error) {
	if p.Candles != nil {
		return p, fmt.Errorf("candles: %w", ErrResultAlreadySet)
	}
	p.Candles = slices.Clone(candles)
	if p.Candles == nil {
		p.Candles = []Candle{}
	}
	return p, nil
}

func (p PipelineContext) WithIndicators(set IndicatorSet) (PipelineContext, error) {
	if p.Indicators != nil {
		return p, fmt.Errorf("indicators: %w", ErrResultAlreadySet)
	}
	p.Indicators = &set
	return p, nil
}

func (p PipelineContext) WithSearchResults(results []SearchResult) (PipelineContext, error) {
	if p.SearchResults != nil {
		return p, fmt.Errorf("search results: %w", ErrResultAlreadySet)
	}
	p.SearchResults = slices.Clone(results)
	if p.SearchResults == nil {
		p.SearchResults = []SearchResult{}
	}
	return p, nil
}

func (p PipelineContext) WithSuggestion(s TradeSuggestion) (PipelineContext, error) {
	if p.Suggestion != nil {
		return p, fmt.Errorf("suggestion: %w", ErrResultAlreadySet)
	}
	s.Targets = slices.Clone(s.Targets)
	p.Suggestion = &s
	return p, nil
}

func (p PipelineContext) WithScore(res ScoreResult, audit *RiskAudit) (PipelineContext, error) {
	if p.Score != nil {
		return p, fmt.Errorf("score: %w", ErrResultAlreadySet)
	}
	score := res.Score
	p.Score = &score
	p.ScoreReason = res.Reason
	if audit != nil {
		a := *audit
		a.Violations = slices.Clone(a.Violations)
		p.RiskAudit = &a
	}
	return p, nil
}

// WithStageError records a failed stage. Error always holds the latest message.
func (p PipelineContext) WithStageError(stage string, err error) PipelineContext {
	if err == nil {
		return p
	}
	se := StageError{Stage: stage, Kind: string(KindOf(err)), Message: err.Error()}
	p.StageErrors = append(slices.Clone(p.StageErrors), se)
	p.Error = fmt.Sprintf("%s: %s", stage, se.Message)
	return p
}

// Merge copies result fields that are set in other and unset in p, and appends the
// stage errors other recorded after its first baseErrors entries. It joins the
// branches of a parallel fan-out that started from the same context.
func (p PipelineContext) Merge(other PipelineContext, baseErrors int) PipelineContext {
	if p.ImageFindings == nil && other.ImageFindings != nil {
		p.ImageFindings = other.ImageFindings
	}
	if p.Candles == nil && other.Candles != nil {
		p.Candles = other.Candles
	}
	if p.Indicators == nil && other.Indicators != nil {
		p.Indicators = other.Indicators
	}
	if p.SearchResults == nil && other.SearchResults != nil {
		p.SearchResults = other.SearchResults
	}
	if p.Suggestion == nil && other.Suggestion != nil {
		p.Suggestion = other.Suggestion
	}
	if p.Score == nil && other.Score != nil {
		p.Score = other.Score
		p.ScoreReason = other.ScoreReason
		p.RiskAudit = other.RiskAudit
	}
	if baseErrors < 0 {
		baseErrors = 0
	}
	if len(other.StageErrors) > baseErrors {
		p.StageErrors = append(slices.Clone(p.StageErrors), other.StageErrors[baseErrors:]...)
		p.Error = other.Error
	}
	return p
}
