package metrics

import (
	"net/http"
	"time"

	"github.com/dyike/CortexTrade/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the pipeline metrics. It implements graph.Observer and owns
// its registry so a rebuilt session never double-registers.
type Collector struct {
	registry *prometheus.Registry

	StageDuration *prometheus.HistogramVec // labels: stage
	StageErrors   *prometheus.CounterVec   // labels: stage, kind
	RunsTotal     *prometheus.CounterVec   // labels: outcome=clean|degraded
	RunDuration   prometheus.Histogram
	Score         prometheus.Histogram
	Actions       *prometheus.CounterVec // labels: action
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cortextrade_stage_duration_seconds",
			Help:    "Pipeline stage latency",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"stage"}),
		StageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cortextrade_stage_errors_total",
			Help: "Stage failures recorded on the pipeline context",
		}, []string{"stage", "kind"}),
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cortextrade_runs_total",
			Help: "Completed pipeline runs",
		}, []string{"outcome"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cortextrade_run_duration_seconds",
			Help:    "End-to-end pipeline latency",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		Score: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cortextrade_decision_score",
			Help:    "Distribution of final decision scores",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		Actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cortextrade_suggested_actions_total",
			Help: "Suggested actions by type",
		}, []string{"action"}),
	}

	c.registry.MustRegister(
		c.StageDuration,
		c.StageErrors,
		c.RunsTotal,
		c.RunDuration,
		c.Score,
		c.Actions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) StageFinished(stage string, elapsed time.Duration, err error) {
	c.StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
	if err != nil {
		kind := string(models.KindOf(err))
		if kind == "" {
			kind = "internal"
		}
		c.StageErrors.WithLabelValues(stage, kind).Inc()
	}
}

func (c *Collector) RunFinished(pc models.PipelineContext, elapsed time.Duration) {
	outcome := "clean"
	if len(pc.StageErrors) > 0 {
		outcome = "degraded"
	}
	c.RunsTotal.WithLabelValues(outcome).Inc()
	c.RunDuration.Observe(elapsed.Seconds())
	if pc.Score != nil {
		c.Score.Observe(*pc.Score)
	}
	if pc.Suggestion != nil {
		c.Actions.WithLabelValues(pc.Suggestion.Action).Inc()
	}
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
