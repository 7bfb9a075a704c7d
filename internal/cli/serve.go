package cli

import (
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dyike/CortexTrade/internal/app"
	"github.com/dyike/CortexTrade/internal/debug"
	"github.com/dyike/CortexTrade/internal/metrics"
	"github.com/dyike/CortexTrade/internal/server"
	"github.com/dyike/CortexTrade/internal/storage"
	"github.com/dyike/CortexTrade/internal/trading"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newServeCmd(st *state) *cobra.Command {
	var (
		addr       string
		runTimeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the decision API over HTTP",
		Long: `Start the HTTP API. The config file is watched and the pipeline is rebuilt
when it changes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if !st.cfg.Debug {
				gin.SetMode(gin.ReleaseMode)
			}
			mgr, err := st.managerForServe()
			if err != nil {
				return err
			}
			cfg := mgr.Get()
			if err := debug.NewEinoDebugger(cfg).Initialize(ctx); err != nil {
				logrus.WithError(err).Warn("eino debug disabled")
			}

			var (
				sessionOpts    []trading.SessionOption
				metricsHandler http.Handler
				runs           server.RunReader
			)
			if cfg.MetricsEnabled {
				collector := metrics.NewCollector()
				sessionOpts = append(sessionOpts, trading.WithMetrics(collector))
				metricsHandler = collector.Handler()
			}
			if store, err := storage.OpenStore(&cfg); err == nil {
				defer store.Close()
				recorder, err := storage.NewRunRecorder(store, 0)
				if err != nil {
					return err
				}
				defer recorder.Close()
				sessionOpts = append(sessionOpts, trading.WithRecorder(recorder))
				runs = store
			} else if !errors.Is(err, storage.ErrDBPathNotConfigured) {
				logrus.WithError(err).Warn("run history disabled")
			}

			rt, err := app.NewRuntime(ctx, mgr,
				app.WithSessionOptions(sessionOpts...),
				app.WithNotifier(func(topic, payload string) {
					logrus.WithField("topic", topic).Info(payload)
				}),
			)
			if err != nil {
				return err
			}
			defer rt.Close()

			if addr == "" {
				addr = cfg.HTTPAddr
			}
			h := server.NewHandler(rt, runs, metricsHandler, runTimeout)
			return server.ListenAndServe(ctx, addr, h)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address; config http_addr when empty")
	cmd.Flags().DurationVar(&runTimeout, "run-timeout", 2*time.Minute, "Upper bound for one pipeline run")
	return cmd
}
