package config

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestManagerCreatesAndUpdates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	mgr, err := NewManager(WithConfigPath(path))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not created: %v", err)
	}

	cfg := mgr.Get()
	cfg.DataCacheDir = filepath.Join(dir, "cache")
	cfg.FallbackProviders = []string{"finnhub", "yahoo"}
	cfg.SearchResultCount = 5

	if err := mgr.Update(cfg); err != nil {
		t.Fatalf("Update: %v", err)
	}

	updated := mgr.Get()
	if updated.DataCacheDir != cfg.DataCacheDir {
		t.Fatalf("expected cache dir %s, got %s", cfg.DataCacheDir, updated.DataCacheDir)
	}
	if len(updated.FallbackProviders) != 2 || updated.SearchResultCount != 5 {
		t.Fatalf("update not applied: %+v", updated)
	}

	var onDisk Config
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if err := json.Unmarshal(data, &onDisk); err != nil || onDisk.SearchResultCount != 5 {
		t.Fatalf("update not persisted: %v %+v", err, onDisk)
	}
}

func TestNewManagerRequiresPath(t *testing.T) {
	if _, err := NewManager(); err == nil {
		t.Fatal("expected an error without a config path")
	}
}

func TestManagerRejectsInvalidUpdate(t *testing.T) {
	mgr, err := NewManager(WithConfigPath(filepath.Join(t.TempDir(), "config.json")))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	cfg := mgr.Get()
	cfg.DefaultProvider = "bloomberg"
	if err := mgr.Update(cfg); err == nil {
		t.Fatalf("expected validation error for unknown provider")
	}
	if got := mgr.Get().DefaultProvider; got == "bloomberg" {
		t.Fatalf("invalid config must not be applied")
	}
}

func TestManagerWatchReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	mgr, err := NewManager(WithConfigPath(path), WithDebounce(50*time.Millisecond))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan Config, 1)
	if err := mgr.Watch(ctx, func(cfg Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	}); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	cfg := mgr.Get()
	cfg.SearchResultCount = 7
	cfg.ParallelFetch = !cfg.ParallelFetch

	if err := writeConfigFile(path, cfg); err != nil {
		t.Fatalf("writeConfigFile: %v", err)
	}

	select {
	case got := <-reloaded:
		if got.SearchResultCount != 7 {
			t.Fatalf("expected reloaded search count 7, got %d", got.SearchResultCount)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("watcher did not fire on config change")
	}
}
