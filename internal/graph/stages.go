package graph

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/dyike/CortexTrade/consts"
	"github.com/dyike/CortexTrade/internal/agents"
	"github.com/dyike/CortexTrade/internal/dataflows"
	"github.com/dyike/CortexTrade/internal/indicators"
	"github.com/dyike/CortexTrade/internal/scorer"
	"github.com/dyike/CortexTrade/models"
	"github.com/sirupsen/logrus"
)

// ImageAnalyzer is satisfied by agents.ImageAnalyst.
type ImageAnalyzer interface {
	Analyze(ctx context.Context, req agents.ImageRequest) (models.ImageFindings, error)
}

// CandleFetcher is satisfied by dataflows.Fetcher.
type CandleFetcher interface {
	Fetch(ctx context.Context, params dataflows.FetchParams) ([]models.Candle, error)
}

// Researcher is satisfied by agents.NewsResearcher.
type Researcher interface {
	Research(ctx context.Context, query, symbol string) ([]models.SearchResult, error)
}

// Suggester is satisfied by agents.PositionSuggester.
type Suggester interface {
	Suggest(ctx context.Context, req agents.SuggestionRequest) (models.TradeSuggestion, error)
}

type stageFunc func(ctx context.Context, pc models.PipelineContext) (models.PipelineContext, error)

// wrap turns a stage into a node that never fails: errors and panics are
// recorded on the context and the input context is passed on unchanged.
// Network stages are skipped once ctx is done.
func (o *Orchestrator) wrap(name string, network bool, fn stageFunc) func(context.Context, models.PipelineContext) (models.PipelineContext, error) {
	return func(ctx context.Context, pc models.PipelineContext) (out models.PipelineContext, _ error) {
		start := time.Now()
		var stageErr error
		defer func() {
			if r := recover(); r != nil {
				stageErr = fmt.Errorf("panic: %v", r)
				logrus.WithFields(logrus.Fields{"stage": name, "run_id": pc.RunID}).
					Errorf("stage panicked: %v\n%s", r, debug.Stack())
				out = pc.WithStageError(name, stageErr)
			}
			o.observer.StageFinished(name, time.Since(start), stageErr)
		}()

		if network {
			if err := ctx.Err(); err != nil {
				stageErr = models.UpstreamError(name, fmt.Errorf("skipped: %w", err))
				return pc.WithStageError(name, stageErr), nil
			}
		}

		next, err := fn(ctx, pc)
		if err != nil {
			stageErr = err
			logrus.WithFields(logrus.Fields{"stage": name, "run_id": pc.RunID}).WithError(err).Warn("stage failed")
			return pc.WithStageError(name, err), nil
		}
		return next, nil
	}
}

func (o *Orchestrator) imageStage(ctx context.Context, pc models.PipelineContext) (models.PipelineContext, error) {
	req := pc.Request
	if !req.HasImage() {
		return pc.WithImageFindings(models.NoImageFindings())
	}
	if o.deps.Images == nil {
		return pc, models.ConfigError(consts.ImageAnalysis, errors.New("image analyzer not configured"))
	}
	findings, err := o.deps.Images.Analyze(ctx, agents.ImageRequest{
		URL:     req.ImageURL,
		Base64:  req.ImageBase64,
		Context: req.ContextHint,
	})
	if err != nil {
		return pc, err
	}
	return pc.WithImageFindings(findings)
}

func (o *Orchestrator) marketStage(ctx context.Context, pc models.PipelineContext) (models.PipelineContext, error) {
	if o.deps.Candles == nil {
		return pc, models.ConfigError(consts.MarketData, errors.New("market data fetcher not configured"))
	}
	req := pc.Request
	count, err := req.Count()
	if err != nil {
		return pc, models.ConfigError(consts.MarketData, err)
	}
	candles, err := o.deps.Candles.Fetch(ctx, dataflows.FetchParams{
		Symbol:   req.Symbol,
		Interval: req.Interval,
		Count:    count,
		Provider: req.Provider,
		Market:   req.Market,
	})
	if err != nil {
		return pc, err
	}
	return pc.WithCandles(candles)
}

// indicatorStage runs only when candles exist. Fewer than the minimum is a
// configuration error for this stage.
func (o *Orchestrator) indicatorStage(_ context.Context, pc models.PipelineContext) (models.PipelineContext, error) {
	if pc.Candles == nil {
		return pc, nil
	}
	set, err := indicators.Compute(pc.Candles)
	if err != nil {
		if errors.Is(err, indicators.ErrInsufficientData) {
			return pc, models.ConfigError(consts.IndicatorEngine, err)
		}
		return pc, models.ValidationError(consts.IndicatorEngine, err)
	}
	return pc.WithIndicators(set)
}

func (o *Orchestrator) searchStage(ctx context.Context, pc models.PipelineContext) (models.PipelineContext, error) {
	if o.deps.Research == nil {
		return pc, models.ConfigError(consts.WebSearch, errors.New("web search not configured"))
	}
	results, err := o.deps.Research.Research(ctx, pc.Request.SearchQuery, pc.Request.Symbol)
	if err != nil {
		return pc, err
	}
	return pc.WithSearchResults(results)
}

func (o *Orchestrator) suggestionStage(ctx context.Context, pc models.PipelineContext) (models.PipelineContext, error) {
	if o.deps.Suggest == nil {
		return pc, models.ConfigError(consts.Suggestion, errors.New("position suggester not configured"))
	}
	req := pc.Request
	s, err := o.deps.Suggest.Suggest(ctx, agents.SuggestionRequest{
		Symbol:        req.Symbol,
		Timeframe:     req.Timeframe,
		Image:         pc.ImageFindings,
		Indicators:    pc.Indicators,
		Search:        pc.SearchResults,
		Risk:          req.Risk,
		AccountEquity: req.AccountEquity,
	})
	if err != nil {
		return pc, err
	}
	return pc.WithSuggestion(s)
}

func (o *Orchestrator) scoringStage(_ context.Context, pc models.PipelineContext) (models.PipelineContext, error) {
	res := scorer.Score(scorer.Input{
		Suggestion: pc.Suggestion,
		Indicators: pc.Indicators,
		Risk:       pc.Request.Risk,
	})
	audit := scorer.Audit(pc.Suggestion, pc.Request.Risk, pc.Request.AccountEquity)
	return pc.WithScore(res, audit)
}
