package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/dyike/CortexTrade/internal/display"
	"github.com/dyike/CortexTrade/internal/scheduler"
	"github.com/dyike/CortexTrade/models"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newScheduleCmd(st *state) *cobra.Command {
	var (
		flags   requestFlags
		spec    string
		runNow  bool
		saveRun bool
	)
	cmd := &cobra.Command{
		Use:   "schedule SYMBOL...",
		Short: "Run the pipeline for a list of symbols on a cron schedule",
		Long: `Run the pipeline for every symbol whenever the cron spec fires and record each run.
Example: cortextrade schedule AAPL MSFT --cron "*/30 13-20 * * 1-5" --interval 15m`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reqs := make([]models.Request, 0, len(args))
			for _, symbol := range args {
				req, err := flags.build(symbol)
				if err != nil {
					return err
				}
				reqs = append(reqs, req)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			session, cleanup, err := newCLISession(ctx, *st.cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			var opts []scheduler.Option
			if saveRun {
				resultsDir := st.cfg.ResultsDir
				opts = append(opts, scheduler.WithResultHandler(func(pc models.PipelineContext) {
					if _, err := display.SaveResults(pc, resultsDir); err != nil {
						logrus.WithError(err).Warn("save results failed")
					}
				}))
			}
			s := scheduler.New(ctx, session, opts...)
			if err := s.Register(spec, reqs); err != nil {
				return err
			}
			if runNow {
				s.RunNow()
			}
			s.Start()
			<-ctx.Done()
			s.Stop()
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&spec, "cron", "@hourly", "Cron spec (five fields or descriptor such as @every 15m)")
	cmd.Flags().BoolVar(&runNow, "now", false, "Run once immediately before waiting for the schedule")
	cmd.Flags().BoolVar(&saveRun, "save", false, "Write JSON and markdown reports for every run")
	return cmd
}
