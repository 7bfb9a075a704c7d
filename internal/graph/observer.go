package graph

import (
	"time"

	"github.com/dyike/CortexTrade/models"
)

// Observer receives stage and run outcomes, e.g. for metrics. Implementations
// must be safe for concurrent use.
type Observer interface {
	StageFinished(stage string, elapsed time.Duration, err error)
	RunFinished(pc models.PipelineContext, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) StageFinished(string, time.Duration, error)        {}
func (nopObserver) RunFinished(models.PipelineContext, time.Duration) {}
