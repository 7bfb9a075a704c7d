package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dyike/CortexTrade/consts"
	"github.com/dyike/CortexTrade/internal/storage/sqlite"
	"github.com/dyike/CortexTrade/models"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	decisionsPath = "/v1/decisions"
	runsPath      = "/v1/runs"
)

var (
	errHistoryDisabled = errors.New("run history is not enabled")
	errRunNotFound     = errors.New("run not found")
	errBadCursor       = errors.New("cursor and limit must be integers")
)

// Analyzer runs one pipeline invocation.
type Analyzer interface {
	Analyze(ctx context.Context, req models.Request) models.PipelineContext
}

// RunReader reads stored runs.
type RunReader interface {
	GetRun(ctx context.Context, runID string) (*sqlite.RunRecord, error)
	ListRuns(ctx context.Context, symbol string, cursor int64, limit int) ([]sqlite.RunSummary, error)
}

type Handler struct {
	router   *gin.Engine
	analyzer Analyzer
	runs     RunReader
	metrics  http.Handler
	timeout  time.Duration
}

// NewHandler builds the HTTP API. runs and metrics may be nil.
func NewHandler(analyzer Analyzer, runs RunReader, metrics http.Handler, runTimeout time.Duration) *Handler {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	h := &Handler{
		router:   router,
		analyzer: analyzer,
		runs:     runs,
		metrics:  metrics,
		timeout:  runTimeout,
	}
	h.registerRoutes()
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.router.GET("/healthz", h.health)
	if h.metrics != nil {
		h.router.GET("/metrics", gin.WrapH(h.metrics))
	}
	h.router.POST(decisionsPath, h.createDecision)

	runs := h.router.Group(runsPath)
	{
		runs.GET("", h.listRuns)
		runs.GET("/:id", h.getRun)
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// createDecision runs the pipeline and returns the final context. Stage
// failures are part of a 200 response; only an unusable request is a 400.
func (h *Handler) createDecision(c *gin.Context) {
	var req models.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}

	ctx := c.Request.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}
	pc := h.analyzer.Analyze(ctx, req)

	status := http.StatusOK
	for _, se := range pc.StageErrors {
		if se.Stage == consts.RequestStage {
			status = http.StatusBadRequest
			break
		}
	}
	c.JSON(status, pc)
}

func (h *Handler) listRuns(c *gin.Context) {
	if h.runs == nil {
		writeError(c, http.StatusServiceUnavailable, errHistoryDisabled)
		return
	}
	cursor, err1 := queryInt(c, "cursor", 0)
	limit, err2 := queryInt(c, "limit", 50)
	if err1 != nil || err2 != nil {
		writeError(c, http.StatusBadRequest, errBadCursor)
		return
	}

	runs, err := h.runs.ListRuns(c.Request.Context(), c.Query("symbol"), int64(cursor), limit)
	if err != nil {
		writeError(c, http.StatusInternalServerError, err)
		return
	}
	resp := gin.H{"runs": runs}
	if len(runs) > 0 && len(runs) == limit {
		resp["nextCursor"] = runs[len(runs)-1].RowID
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) getRun(c *gin.Context) {
	if h.runs == nil {
		writeError(c, http.StatusServiceUnavailable, errHistoryDisabled)
		return
	}
	rec, err := h.runs.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, http.StatusInternalServerError, err)
		return
	}
	if rec == nil {
		writeError(c, http.StatusNotFound, errRunNotFound)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func writeError(c *gin.Context, status int, err error) {
	if err == nil {
		status = http.StatusInternalServerError
		err = errors.New("unknown error")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logrus.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"elapsed": time.Since(start).String(),
		}).Debug("http request")
	}
}
