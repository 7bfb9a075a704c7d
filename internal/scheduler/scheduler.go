package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/dyike/CortexTrade/models"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Analyzer runs one pipeline invocation.
type Analyzer interface {
	Analyze(ctx context.Context, req models.Request) models.PipelineContext
}

// Scheduler runs a fixed set of requests on cron specs. Overlapping ticks are
// skipped while the previous batch is still running.
type Scheduler struct {
	cron     *cron.Cron
	analyzer Analyzer
	ctx      context.Context
	onResult func(models.PipelineContext)

	mu    sync.Mutex
	batch []models.Request
}

type Option func(*Scheduler)

// WithResultHandler is called after every scheduled run.
func WithResultHandler(fn func(models.PipelineContext)) Option {
	return func(s *Scheduler) {
		s.onResult = fn
	}
}

func New(ctx context.Context, analyzer Analyzer, opts ...Option) *Scheduler {
	logger := cron.VerbosePrintfLogger(logrus.StandardLogger())
	s := &Scheduler{
		cron:     cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger))),
		analyzer: analyzer,
		ctx:      ctx,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register schedules reqs on a standard five-field cron spec. Descriptors such
// as @hourly and @every 15m are accepted.
func (s *Scheduler) Register(spec string, reqs []models.Request) error {
	if len(reqs) == 0 {
		return fmt.Errorf("no requests to schedule")
	}
	batch := append([]models.Request(nil), reqs...)
	if _, err := s.cron.AddFunc(spec, func() { s.runBatch(batch) }); err != nil {
		return fmt.Errorf("register %q: %w", spec, err)
	}
	s.mu.Lock()
	s.batch = append(s.batch, batch...)
	s.mu.Unlock()
	logrus.WithFields(logrus.Fields{"spec": spec, "requests": len(batch)}).Info("schedule registered")
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	logrus.Info("scheduler started")
}

// Stop waits for a running batch to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	logrus.Info("scheduler stopped")
}

// RunNow executes every registered request once, outside the schedule.
func (s *Scheduler) RunNow() {
	s.mu.Lock()
	batch := append([]models.Request(nil), s.batch...)
	s.mu.Unlock()
	s.runBatch(batch)
}

func (s *Scheduler) runBatch(reqs []models.Request) {
	for _, req := range reqs {
		if s.ctx.Err() != nil {
			return
		}
		pc := s.analyzer.Analyze(s.ctx, req)
		entry := logrus.WithFields(logrus.Fields{
			"run_id": pc.RunID,
			"symbol": pc.Request.Symbol,
			"errors": len(pc.StageErrors),
		})
		if pc.Score != nil {
			entry = entry.WithField("score", *pc.Score)
		}
		if pc.Suggestion != nil {
			entry = entry.WithField("action", pc.Suggestion.Action)
		}
		entry.Info("scheduled run finished")
		if s.onResult != nil {
			s.onResult(pc)
		}
	}
}
