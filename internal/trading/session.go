package trading

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dyike/CortexTrade/config"
	"github.com/dyike/CortexTrade/internal/agents"
	"github.com/dyike/CortexTrade/internal/dataflows"
	"github.com/dyike/CortexTrade/internal/graph"
	"github.com/dyike/CortexTrade/internal/metrics"
	"github.com/dyike/CortexTrade/internal/reasoner"
	"github.com/dyike/CortexTrade/internal/storage"
	"github.com/dyike/CortexTrade/models"
	"github.com/sirupsen/logrus"
)

// Session is one fully wired pipeline built from a Config. It is safe for
// concurrent Analyze calls.
type Session struct {
	cfg          config.Config
	orchestrator *graph.Orchestrator
	recorder     *storage.RunRecorder
	builtAt      time.Time
}

type sessionOptions struct {
	metrics  *metrics.Collector
	recorder *storage.RunRecorder
	deps     *graph.Dependencies
}

type SessionOption func(*sessionOptions)

// WithMetrics reports stage and run outcomes to c.
func WithMetrics(c *metrics.Collector) SessionOption {
	return func(o *sessionOptions) {
		o.metrics = c
	}
}

// WithRecorder stores every finished run through r.
func WithRecorder(r *storage.RunRecorder) SessionOption {
	return func(o *sessionOptions) {
		o.recorder = r
	}
}

// WithDependencies replaces the collaborators built from the config.
func WithDependencies(deps graph.Dependencies) SessionOption {
	return func(o *sessionOptions) {
		o.deps = &deps
	}
}

func NewSession(ctx context.Context, cfg config.Config, opts ...SessionOption) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	var options sessionOptions
	for _, opt := range opts {
		opt(&options)
	}

	deps := BuildDependencies(ctx, cfg)
	if options.deps != nil {
		deps = *options.deps
	}

	graphOpts := []graph.Option{
		graph.WithParallelFetch(cfg.ParallelFetch),
		graph.WithCallbacks(graph.NewStageLogger(logrus.StandardLogger())),
	}
	if options.metrics != nil {
		graphOpts = append(graphOpts, graph.WithObserver(options.metrics))
	}
	orch, err := graph.New(ctx, deps, graphOpts...)
	if err != nil {
		return nil, err
	}

	return &Session{
		cfg:          cfg,
		orchestrator: orch,
		recorder:     options.recorder,
		builtAt:      time.Now(),
	}, nil
}

// BuildDependencies wires providers, search and models from cfg. Missing keys
// are not fatal: the affected stage reports a config error on each run.
func BuildDependencies(ctx context.Context, cfg config.Config) graph.Dependencies {
	ttl := time.Duration(cfg.CacheTTLMinutes) * time.Minute
	cache := dataflows.NewCacheManager(cfg.DataCacheDir, ttl, cfg.CacheEnabled)

	providerOpts := func(key string) dataflows.ClientOptions {
		return dataflows.ClientOptions{APIKey: key, Timeout: cfg.ProviderTimeout()}
	}
	providers := []dataflows.CandleProvider{
		dataflows.NewAlphaVantageClient(providerOpts(cfg.AlphaVantageAPIKey)),
		dataflows.NewFinnhubClient(providerOpts(cfg.FinnhubAPIKey)),
		dataflows.NewYahooFinanceClient(providerOpts("")),
		dataflows.NewLongportClient(dataflows.LongportConfig{
			AppKey:      cfg.LongportAppKey,
			AppSecret:   cfg.LongportAppSecret,
			AccessToken: cfg.LongportAccessToken,
		}),
	}
	fetcher := dataflows.NewFetcher(providers,
		dataflows.WithFallbacks(cfg.FallbackProviders...),
		dataflows.WithCache(cache),
		dataflows.WithProviderTimeout(cfg.ProviderTimeout()),
	)

	vision := buildReasoner(ctx, cfg, cfg.VisionLLM, "vision")
	quick := buildReasoner(ctx, cfg, cfg.QuickThinkLLM, "summarizer")
	deep := buildReasoner(ctx, cfg, cfg.DeepThinkLLM, "suggester")

	searchOpts := []agents.ResearcherOption{
		agents.WithResultCount(cfg.SearchResultCount),
		agents.WithSearchTimeout(cfg.SearchTimeout()),
	}
	if cfg.SearchFetchArticles {
		searchOpts = append(searchOpts, agents.WithArticleFetcher(dataflows.NewArticleScraper(dataflows.ClientOptions{
			Timeout:  cfg.SearchTimeout(),
			CacheDir: cfg.DataCacheDir,
			Cache:    cfg.CacheEnabled,
		})))
	}
	brave := dataflows.NewBraveSearchClient(dataflows.ClientOptions{APIKey: cfg.BraveAPIKey, Timeout: cfg.SearchTimeout()})

	return graph.Dependencies{
		Images:   agents.NewImageAnalyst(vision),
		Candles:  fetcher,
		Research: agents.NewNewsResearcher(brave, quick, searchOpts...),
		Suggest:  agents.NewPositionSuggester(deep),
	}
}

func buildReasoner(ctx context.Context, cfg config.Config, modelName, role string) reasoner.Reasoner {
	provider := strings.ToLower(cfg.LLMProvider)
	key := cfg.DeepSeekAPIKey
	if provider == "openai" {
		key = cfg.OpenAIAPIKey
	}
	cm, err := reasoner.NewChatModel(ctx, reasoner.ModelConfig{
		Provider:  provider,
		Model:     modelName,
		APIKey:    key,
		BaseURL:   cfg.BackendURL,
		MaxTokens: cfg.MaxTokens,
	})
	if err != nil {
		logrus.WithFields(logrus.Fields{"role": role, "model": modelName}).WithError(err).Warn("chat model unavailable")
		return reasoner.Unavailable(err)
	}
	return reasoner.NewChatReasoner(cm, reasoner.WithName(role), reasoner.WithTimeout(cfg.ReasonerTimeout()))
}

// Analyze runs the pipeline for req. Provider falls back to the configured
// default when unset. The run is queued for storage when a recorder is attached.
func (s *Session) Analyze(ctx context.Context, req models.Request) models.PipelineContext {
	if strings.TrimSpace(req.Provider) == "" {
		req.Provider = s.cfg.DefaultProvider
	}
	pc := s.orchestrator.Run(ctx, req)
	if s.recorder != nil {
		s.recorder.Record(pc)
	}
	return pc
}

func (s *Session) Config() config.Config {
	return s.cfg
}

func (s *Session) BuiltAt() time.Time {
	return s.builtAt
}
