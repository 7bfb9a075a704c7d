package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/compose"
	"github.com/dyike/CortexTrade/consts"
	"github.com/dyike/CortexTrade/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	branchBase   = "base"
	branchImage  = "image"
	branchMarket = "market"
)

// Dependencies are the collaborators behind the I/O stages. A nil field makes
// its stage record a configuration error on every run.
type Dependencies struct {
	Images   ImageAnalyzer
	Candles  CandleFetcher
	Research Researcher
	Suggest  Suggester
}

type Orchestrator struct {
	deps     Dependencies
	parallel bool
	observer Observer
	handlers []callbacks.Handler
	runnable compose.Runnable[models.PipelineContext, models.PipelineContext]
	clock    func() time.Time
	newRunID func() string
}

type Option func(*Orchestrator)

// WithParallelFetch runs image analysis and market data as a parallel fan-out.
func WithParallelFetch(enabled bool) Option {
	return func(o *Orchestrator) {
		o.parallel = enabled
	}
}

func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithCallbacks registers eino callback handlers for every run.
func WithCallbacks(h ...callbacks.Handler) Option {
	return func(o *Orchestrator) {
		o.handlers = append(o.handlers, h...)
	}
}

func New(ctx context.Context, deps Dependencies, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		deps:     deps,
		observer: nopObserver{},
		clock:    time.Now,
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}

	chain := compose.NewChain[models.PipelineContext, models.PipelineContext]()
	if o.parallel {
		fanOut := compose.NewParallel().
			AddLambda(branchBase, compose.InvokableLambda(passthrough)).
			AddLambda(branchImage, o.node(consts.ImageAnalysis, true, o.imageStage), compose.WithNodeName(consts.ImageAnalysis)).
			AddLambda(branchMarket, o.node(consts.MarketData, true, o.marketStage), compose.WithNodeName(consts.MarketData))
		chain.AppendParallel(fanOut)
		chain.AppendLambda(compose.InvokableLambda(mergeBranches), compose.WithNodeName(consts.SignalMerge))
	} else {
		chain.AppendLambda(o.node(consts.ImageAnalysis, true, o.imageStage), compose.WithNodeName(consts.ImageAnalysis))
		chain.AppendLambda(o.node(consts.MarketData, true, o.marketStage), compose.WithNodeName(consts.MarketData))
	}
	chain.AppendLambda(o.node(consts.IndicatorEngine, false, o.indicatorStage), compose.WithNodeName(consts.IndicatorEngine))
	chain.AppendLambda(o.node(consts.WebSearch, true, o.searchStage), compose.WithNodeName(consts.WebSearch))
	chain.AppendLambda(o.node(consts.Suggestion, true, o.suggestionStage), compose.WithNodeName(consts.Suggestion))
	chain.AppendLambda(o.node(consts.Scoring, false, o.scoringStage), compose.WithNodeName(consts.Scoring))

	r, err := chain.Compile(ctx, compose.WithGraphName(consts.GraphName))
	if err != nil {
		return nil, fmt.Errorf("compile pipeline: %w", err)
	}
	o.runnable = r
	return o, nil
}

func (o *Orchestrator) node(name string, network bool, fn stageFunc) *compose.Lambda {
	return compose.InvokableLambda(o.wrap(name, network, fn))
}

// Run executes every stage once and returns the final context. It never
// returns an error: failures are recorded on the context.
func (o *Orchestrator) Run(ctx context.Context, req models.Request) models.PipelineContext {
	start := o.clock()
	pc := models.NewPipelineContext(req.WithDefaults())
	pc.RunID = o.newRunID()
	pc.StartedAt = start.UTC()

	log := logrus.WithFields(logrus.Fields{"run_id": pc.RunID, "symbol": pc.Request.Symbol})
	log.Info("pipeline started")

	if err := pc.Request.Validate(); err != nil {
		pc = pc.WithStageError(consts.RequestStage, err)
		pc = o.finish(pc, start)
		log.WithError(err).Warn("invalid request, only scoring ran")
		return pc
	}

	out, err := o.runnable.Invoke(ctx, pc, compose.WithCallbacks(o.handlers...))
	if err != nil {
		log.WithError(err).Error("pipeline invoke failed")
		out = pc.WithStageError(consts.PipelineStage, err)
	}
	out = o.finish(out, start)
	log.WithFields(logrus.Fields{"elapsed": time.Since(start).String(), "errors": len(out.StageErrors)}).
		Info("pipeline finished")
	return out
}

// finish scores contexts that never reached the scoring node and stamps the
// finish time.
func (o *Orchestrator) finish(pc models.PipelineContext, start time.Time) models.PipelineContext {
	if pc.Score == nil {
		pc, _ = o.wrap(consts.Scoring, false, o.scoringStage)(context.Background(), pc)
	}
	end := o.clock()
	pc.FinishedAt = end.UTC()
	o.observer.RunFinished(pc, end.Sub(start))
	return pc
}

func passthrough(_ context.Context, pc models.PipelineContext) (models.PipelineContext, error) {
	return pc, nil
}

// mergeBranches joins the fan-out. Image results and errors come before market
// ones so the error order matches a sequential run.
func mergeBranches(_ context.Context, in map[string]any) (models.PipelineContext, error) {
	base, ok := in[branchBase].(models.PipelineContext)
	if !ok {
		return models.PipelineContext{}, errors.New("merge: missing base context")
	}
	image, ok := in[branchImage].(models.PipelineContext)
	if !ok {
		image = base
	}
	market, ok := in[branchMarket].(models.PipelineContext)
	if !ok {
		market = base
	}
	n := len(base.StageErrors)
	return base.Merge(image, n).Merge(market, n), nil
}
