package cli

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dyike/CortexTrade/config"
	"github.com/dyike/CortexTrade/consts"
	"github.com/dyike/CortexTrade/internal/debug"
	"github.com/dyike/CortexTrade/internal/display"
	"github.com/dyike/CortexTrade/internal/storage"
	"github.com/dyike/CortexTrade/internal/trading"
	"github.com/dyike/CortexTrade/models"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// requestFlags are the request fields shared by analyze and schedule.
type requestFlags struct {
	interval    string
	rangeCount  string
	provider    string
	market      string
	timeframe   string
	imageURL    string
	imageFile   string
	contextHint string
	searchQuery string
	maxRiskPct  float64
	rrMin       float64
	equity      float64
}

func (f *requestFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.interval, "interval", consts.DefaultInterval, "Candle interval (1m,5m,15m,30m,1h,4h,1d)")
	fs.StringVar(&f.rangeCount, "range", consts.DefaultRange, "Number of candles to fetch")
	fs.StringVar(&f.provider, "provider", "", "Market data provider (alpha, finnhub, yahoo, longport); config default when empty")
	fs.StringVar(&f.market, "market", consts.DefaultMarket, "Market kind (stock, forex, crypto)")
	fs.StringVar(&f.timeframe, "timeframe", "", "Timeframe label for the chart; defaults to the interval")
	fs.StringVar(&f.imageURL, "image-url", "", "Chart screenshot URL")
	fs.StringVar(&f.imageFile, "image-file", "", "Local chart screenshot, sent base64 encoded")
	fs.StringVar(&f.contextHint, "context", "", "Free-text hint passed to the models")
	fs.StringVar(&f.searchQuery, "search-query", "", "Override the web search query")
	fs.Float64Var(&f.maxRiskPct, "max-risk-pct", consts.DefaultMaxRiskPct, "Maximum account risk per trade in percent")
	fs.Float64Var(&f.rrMin, "rr-min", consts.DefaultRRMin, "Minimum reward to risk ratio")
	fs.Float64Var(&f.equity, "equity", consts.DefaultAccountEquity, "Account equity used for position sizing")
}

func (f *requestFlags) build(symbol string) (models.Request, error) {
	req := models.Request{
		Symbol:        strings.ToUpper(strings.TrimSpace(symbol)),
		Interval:      f.interval,
		Range:         f.rangeCount,
		Provider:      f.provider,
		Market:        f.market,
		Timeframe:     f.timeframe,
		ImageURL:      f.imageURL,
		ContextHint:   f.contextHint,
		SearchQuery:   f.searchQuery,
		Risk:          models.RiskParams{MaxRiskPct: f.maxRiskPct, RRMin: f.rrMin},
		AccountEquity: f.equity,
	}
	if req.Symbol == "" {
		return models.Request{}, errors.New("symbol is required")
	}
	if f.imageFile != "" {
		if f.imageURL != "" {
			return models.Request{}, errors.New("use either --image-url or --image-file, not both")
		}
		encoded, err := encodeImageFile(f.imageFile)
		if err != nil {
			return models.Request{}, err
		}
		req.ImageBase64 = encoded
	}
	return req, nil
}

func encodeImageFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("image file %s is empty", path)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// newAnalyzeCmd creates the analyze command
func newAnalyzeCmd(st *state) *cobra.Command {
	var (
		flags  requestFlags
		asJSON bool
		save   bool
	)
	cmd := &cobra.Command{
		Use:   "analyze SYMBOL",
		Short: "Run the decision pipeline for a symbol",
		Long: `Run the full pipeline for one symbol and print the scored suggestion.
Example: cortextrade analyze AAPL --interval 1d --range 120 --image-file chart.png`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.build(args[0])
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			session, cleanup, err := newCLISession(ctx, *st.cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			pc := session.Analyze(ctx, req)
			if err := writeResult(cmd.OutOrStdout(), pc, asJSON); err != nil {
				return err
			}
			if save {
				dir, err := display.SaveResults(pc, st.cfg.ResultsDir)
				if err != nil {
					return err
				}
				if !asJSON {
					displaySuccess(cmd.OutOrStdout(), "Results saved to "+dir)
				}
			}
			return requestError(pc)
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the final pipeline context as JSON")
	cmd.Flags().BoolVar(&save, "save", false, "Write JSON and markdown reports to the results directory")
	return cmd
}

// newCLISession builds a session that records runs when a history database is
// configured. The returned cleanup drains pending writes.
func newCLISession(ctx context.Context, cfg config.Config, opts ...trading.SessionOption) (*trading.Session, func(), error) {
	if err := debug.NewEinoDebugger(cfg).Initialize(ctx); err != nil {
		logrus.WithError(err).Warn("eino debug disabled")
	}

	cleanup := func() {}
	if store, err := storage.OpenStore(&cfg); err == nil {
		recorder, err := storage.NewRunRecorder(store, 0)
		if err != nil {
			_ = store.Close()
			return nil, nil, err
		}
		opts = append(opts, trading.WithRecorder(recorder))
		cleanup = func() {
			recorder.Close()
			_ = store.Close()
		}
	} else if !errors.Is(err, storage.ErrDBPathNotConfigured) {
		logrus.WithError(err).Warn("run history disabled")
	}

	session, err := trading.NewSession(ctx, cfg, opts...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return session, cleanup, nil
}

func writeResult(w io.Writer, pc models.PipelineContext, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(pc)
	}
	display.NewResultsDisplay(w).DisplayRun(pc)
	return nil
}

// requestError turns a rejected request into a non-zero exit.
func requestError(pc models.PipelineContext) error {
	for _, e := range pc.StageErrors {
		if e.Stage == consts.RequestStage {
			return fmt.Errorf("invalid request: %s", e.Message)
		}
	}
	return nil
}
