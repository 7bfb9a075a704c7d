package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dyike/CortexTrade/config"
	"github.com/dyike/CortexTrade/internal/trading"
	"github.com/dyike/CortexTrade/models"
	"github.com/sirupsen/logrus"
)

type Option func(*Runtime)

func WithBuilder(builder EngineBuilder) Option {
	return func(r *Runtime) {
		if builder != nil {
			r.builder = builder
		}
	}
}

// WithNotifier receives engine.reloaded and engine.reload_failed events.
func WithNotifier(fn func(topic, payload string)) Option {
	return func(r *Runtime) {
		r.notify = fn
	}
}

// WithSessionOptions are applied to every engine build.
func WithSessionOptions(opts ...trading.SessionOption) Option {
	return func(r *Runtime) {
		r.sessionOpts = append(r.sessionOpts, opts...)
	}
}

// Runtime keeps the current Engine and swaps it whenever the config file
// changes. A failed rebuild keeps the previous engine.
type Runtime struct {
	engine atomic.Pointer[Engine]

	builder     EngineBuilder
	sessionOpts []trading.SessionOption
	notify      func(string, string)
	cancel      context.CancelFunc
}

func NewRuntime(ctx context.Context, cfgMgr *config.Manager, opts ...Option) (*Runtime, error) {
	if cfgMgr == nil {
		return nil, fmt.Errorf("config manager is required")
	}

	rt := &Runtime{builder: BuildEngine}
	for _, opt := range opts {
		opt(rt)
	}

	if err := rt.reload(ctx, cfgMgr.Get()); err != nil {
		return nil, err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	rt.cancel = cancel
	if err := cfgMgr.Watch(watchCtx, func(cfg config.Config) {
		if err := rt.reload(watchCtx, cfg); err != nil {
			logrus.WithError(err).Warn("engine reload failed, keeping previous engine")
		}
	}); err != nil {
		cancel()
		return nil, err
	}

	return rt, nil
}

func (r *Runtime) Engine() *Engine {
	return r.engine.Load()
}

// Analyze runs req on the current engine.
func (r *Runtime) Analyze(ctx context.Context, req models.Request) models.PipelineContext {
	return r.Engine().Session.Analyze(ctx, req)
}

func (r *Runtime) Close() {
	if r.cancel != nil {
		r.cancel()
	}
}

func (r *Runtime) reload(ctx context.Context, cfg config.Config) error {
	engine, err := r.builder(ctx, cfg, r.sessionOpts...)
	if err != nil {
		r.notifyFailure(err)
		return err
	}
	r.engine.Store(engine)
	logrus.WithField("version", engine.Version).Info("engine built")
	r.notifySuccess(engine)
	return nil
}

func (r *Runtime) notifySuccess(engine *Engine) {
	if r.notify == nil {
		return
	}
	payload, _ := json.Marshal(map[string]any{
		"version":  engine.Version,
		"built_at": engine.BuiltAt.UTC().Format(time.RFC3339),
	})
	r.notify("engine.reloaded", string(payload))
}

func (r *Runtime) notifyFailure(err error) {
	if r.notify == nil {
		return
	}
	payload, _ := json.Marshal(map[string]string{
		"error": err.Error(),
	})
	r.notify("engine.reload_failed", string(payload))
}
