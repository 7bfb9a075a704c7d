package app

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/dyike/CortexTrade/config"
	"github.com/dyike/CortexTrade/internal/trading"
)

// Engine is one immutable build of the pipeline for a given config.
type Engine struct {
	Config  config.Config
	Session *trading.Session
	BuiltAt time.Time
	Version uint64
}

var engineSeq atomic.Uint64

// EngineBuilder turns a config into an Engine. Session options carry the
// collaborators shared across rebuilds (metrics, recorder).
type EngineBuilder func(ctx context.Context, cfg config.Config, opts ...trading.SessionOption) (*Engine, error)

func BuildEngine(ctx context.Context, cfg config.Config, opts ...trading.SessionOption) (*Engine, error) {
	session, err := trading.NewSession(ctx, cfg, opts...)
	if err != nil {
		return nil, err
	}
	return &Engine{
		Config:  cfg,
		Session: session,
		BuiltAt: time.Now(),
		Version: engineSeq.Add(1),
	}, nil
}
