package app

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dyike/CortexTrade/config"
	"github.com/dyike/CortexTrade/internal/trading"
	"github.com/dyike/CortexTrade/models"
	"github.com/sirupsen/logrus"
)

func newManager(t *testing.T) *config.Manager {
	t.Helper()
	logrus.SetOutput(io.Discard)
	mgr, err := config.NewManager(config.WithConfigPath(filepath.Join(t.TempDir(), "config.json")), config.WithDebounce(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return mgr
}

func TestRuntimeRebuildsOnConfigUpdate(t *testing.T) {
	mgr := newManager(t)

	var mu sync.Mutex
	var topics []string
	rt, err := NewRuntime(context.Background(), mgr, WithNotifier(func(topic, _ string) {
		mu.Lock()
		topics = append(topics, topic)
		mu.Unlock()
	}))
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	defer rt.Close()

	first := rt.Engine()
	if first == nil || first.Session == nil {
		t.Fatal("expected an initial engine")
	}

	cfg := mgr.Get()
	cfg.ParallelFetch = !cfg.ParallelFetch
	if err := mgr.Update(cfg); err != nil {
		t.Fatalf("Update: %v", err)
	}

	second := rt.Engine()
	if second.Version <= first.Version || second.Config.ParallelFetch != cfg.ParallelFetch {
		t.Fatalf("engine not rebuilt: v%d -> v%d", first.Version, second.Version)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(topics) < 2 || topics[0] != "engine.reloaded" {
		t.Fatalf("unexpected notifications %v", topics)
	}
}

func TestRuntimeKeepsEngineWhenRebuildFails(t *testing.T) {
	mgr := newManager(t)
	builder := func(ctx context.Context, cfg config.Config, opts ...trading.SessionOption) (*Engine, error) {
		if cfg.SearchResultCount == 7 {
			return nil, errors.New("refused")
		}
		return BuildEngine(ctx, cfg, opts...)
	}
	var failed string
	rt, err := NewRuntime(context.Background(), mgr, WithBuilder(builder), WithNotifier(func(topic, payload string) {
		if topic == "engine.reload_failed" {
			failed = payload
		}
	}))
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	defer rt.Close()
	before := rt.Engine()

	cfg := mgr.Get()
	cfg.SearchResultCount = 7
	if err := mgr.Update(cfg); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if rt.Engine() != before {
		t.Fatal("failed rebuild must keep the previous engine")
	}
	if !strings.Contains(failed, "refused") {
		t.Fatalf("expected failure notification, got %q", failed)
	}
}

func TestRuntimeAnalyzeUsesCurrentEngine(t *testing.T) {
	mgr := newManager(t)
	rt, err := NewRuntime(context.Background(), mgr)
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	defer rt.Close()

	pc := rt.Analyze(context.Background(), models.Request{Symbol: ""})
	if len(pc.StageErrors) != 1 || pc.StageErrors[0].Stage != "request" || pc.Score == nil {
		t.Fatalf("expected request error and score, got %+v", pc)
	}
}

func TestNewRuntimeRequiresManager(t *testing.T) {
	if _, err := NewRuntime(context.Background(), nil); err == nil {
		t.Fatal("expected error")
	}
}
