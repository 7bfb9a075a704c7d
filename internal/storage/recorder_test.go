package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/dyike/CortexTrade/config"
	"github.com/dyike/CortexTrade/models"
)

type memoryStore struct {
	mu   sync.Mutex
	runs []string
	fail bool
}

func (m *memoryStore) SaveRun(_ context.Context, pc models.PipelineContext) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("disk full")
	}
	m.runs = append(m.runs, pc.RunID)
	return nil
}

func TestRunRecorderDrainsOnClose(t *testing.T) {
	store := &memoryStore{}
	rec, err := NewRunRecorder(store, 8)
	if err != nil {
		t.Fatalf("NewRunRecorder: %v", err)
	}
	for _, id := range []string{"a", "b", "c"} {
		if !rec.Record(models.PipelineContext{RunID: id}) {
			t.Fatalf("record %s rejected", id)
		}
	}
	rec.Close()

	if len(store.runs) != 3 || store.runs[0] != "a" || store.runs[2] != "c" {
		t.Fatalf("unexpected saved runs %v", store.runs)
	}
	if saved, failed := rec.Stats(); saved != 3 || failed != 0 {
		t.Fatalf("stats saved=%d failed=%d", saved, failed)
	}
	if rec.Record(models.PipelineContext{RunID: "late"}) {
		t.Fatal("closed recorder must reject runs")
	}
	rec.Close()
}

func TestRunRecorderCountsFailures(t *testing.T) {
	rec, err := NewRunRecorder(&memoryStore{fail: true}, 0)
	if err != nil {
		t.Fatalf("NewRunRecorder: %v", err)
	}
	rec.Record(models.PipelineContext{RunID: "a"})
	rec.Close()
	if _, failed := rec.Stats(); failed != 1 {
		t.Fatalf("expected 1 failure, got %d", failed)
	}
}

func TestNewRunRecorderRequiresStore(t *testing.T) {
	if _, err := NewRunRecorder(nil, 1); err == nil {
		t.Fatal("expected error for nil store")
	}
}

func TestOpenStore(t *testing.T) {
	if _, err := OpenStore(&config.Config{}); !errors.Is(err, ErrDBPathNotConfigured) {
		t.Fatalf("expected ErrDBPathNotConfigured, got %v", err)
	}
	cfg := config.DefaultConfigWithRoot(t.TempDir())
	s, err := OpenStore(cfg)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer s.Close()
	if err := s.SaveRun(context.Background(), models.PipelineContext{RunID: "x", Request: models.Request{Symbol: "AAPL"}}); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if got := filepath.Base(cfg.DBPath); got != "cortextrade.db" {
		t.Fatalf("db path %s", cfg.DBPath)
	}
}
