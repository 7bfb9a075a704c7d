package storage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dyike/CortexTrade/models"
	"github.com/sirupsen/logrus"
)

// RunStore persists finished pipeline runs.
type RunStore interface {
	SaveRun(ctx context.Context, pc models.PipelineContext) error
}

// RunRecorder writes runs on a background goroutine so callers never wait on
// the database. Close drains the queue.
type RunRecorder struct {
	store   RunStore
	timeout time.Duration

	events chan models.PipelineContext
	mu     sync.RWMutex
	closed bool
	once   sync.Once
	wg     sync.WaitGroup

	saved  atomic.Int64
	failed atomic.Int64
}

func NewRunRecorder(store RunStore, queueSize int) (*RunRecorder, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	r := &RunRecorder{
		store:   store,
		timeout: 5 * time.Second,
		events:  make(chan models.PipelineContext, queueSize),
	}
	r.wg.Add(1)
	go r.loop()
	return r, nil
}

func (r *RunRecorder) loop() {
	defer r.wg.Done()
	for pc := range r.events {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		if err := r.store.SaveRun(ctx, pc); err != nil {
			r.failed.Add(1)
			logrus.WithFields(logrus.Fields{"run_id": pc.RunID, "symbol": pc.Request.Symbol}).
				WithError(err).Warn("record run failed")
		} else {
			r.saved.Add(1)
		}
		cancel()
	}
}

// Record queues pc and reports whether it was accepted. A full queue or a
// closed recorder drops the run.
func (r *RunRecorder) Record(pc models.PipelineContext) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return false
	}
	select {
	case r.events <- pc:
		return true
	default:
		logrus.WithField("run_id", pc.RunID).Warn("run recorder queue full, dropping run")
		return false
	}
}

// Stats returns the number of saved and failed writes so far.
func (r *RunRecorder) Stats() (saved, failed int64) {
	return r.saved.Load(), r.failed.Load()
}

func (r *RunRecorder) Close() {
	r.once.Do(func() {
		r.mu.Lock()
		r.closed = true
		close(r.events)
		r.mu.Unlock()
		r.wg.Wait()
	})
}
