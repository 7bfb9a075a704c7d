package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dyike/CortexTrade/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags.
var Version = "dev"

// state is shared by every subcommand once the root pre-run has loaded the
// configuration.
type state struct {
	debug      bool
	configPath string

	cfg     *config.Config
	manager *config.Manager
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	st := &state{}

	rootCmd := &cobra.Command{
		Use:   "cortextrade",
		Short: "CortexTrade - chart, indicator and news driven trade decisions",
		Long: `CortexTrade turns a symbol, an optional chart screenshot and a risk budget into a
scored trade suggestion. Market data, technical indicators, web search and an LLM
are combined into a single deterministic score.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := st.load(); err != nil {
				return err
			}
			if err := setupLogging(st.cfg, os.Stderr); err != nil {
				return err
			}
			if err := st.cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("failed to create directories: %w", err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Default behavior: start interactive mode
			return runInteractiveMode(cmd.Context(), st.cfg, cmd.OutOrStdout())
		},
	}

	rootCmd.AddCommand(newAnalyzeCmd(st))
	rootCmd.AddCommand(newHistoryCmd(st))
	rootCmd.AddCommand(newServeCmd(st))
	rootCmd.AddCommand(newScheduleCmd(st))
	rootCmd.AddCommand(newConfigCmd(st))
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.PersistentFlags().BoolVar(&st.debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&st.configPath, "config", "", "Configuration file path (config.json)")

	return rootCmd
}

// load reads the config file when --config is given, otherwise the defaults
// plus .env and environment overrides.
func (st *state) load() error {
	if st.configPath != "" {
		mgr, err := config.NewManager(
			config.WithConfigPath(st.configPath),
			config.WithInitialConfig(config.DefaultConfigWithRoot(filepath.Dir(st.configPath))),
		)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg := mgr.Get()
		st.cfg = &cfg
		st.manager = mgr
	} else {
		st.cfg = config.DefaultConfig()
		if err := st.cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
	}
	if st.debug {
		st.cfg.Debug = true
		st.cfg.LogLevel = "debug"
	}
	return nil
}

// managerForServe returns the file-backed manager, creating one under the data
// directory when no --config was given.
func (st *state) managerForServe() (*config.Manager, error) {
	if st.manager != nil {
		return st.manager, nil
	}
	mgr, err := config.NewManager(
		config.WithConfigPath(filepath.Join(st.cfg.DataDir, "config.json")),
		config.WithInitialConfig(st.cfg),
	)
	if err != nil {
		return nil, fmt.Errorf("create config manager: %w", err)
	}
	st.manager = mgr
	return mgr, nil
}

func setupLogging(cfg *config.Config, out io.Writer) error {
	levelName := cfg.LogLevel
	if levelName == "" {
		levelName = "info"
	}
	level, err := logrus.ParseLevel(levelName)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	logrus.SetLevel(level)
	logrus.SetOutput(out)
	if strings.EqualFold(cfg.LogFormat, "json") {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}

// newVersionCmd creates the version command
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "CortexTrade %s\n", Version)
		},
	}
}

// newConfigCmd creates the config command
func newConfigCmd(st *state) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Run: func(cmd *cobra.Command, args []string) {
			showConfig(cmd.OutOrStdout(), st.cfg)
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration and credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateConfig(cmd.OutOrStdout(), st.cfg)
		},
	})

	return configCmd
}

func showConfig(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, titleStyle.Render("📋 CortexTrade Configuration"))
	fmt.Fprintf(w, "Project Directory:    %s\n", cfg.ProjectDir)
	fmt.Fprintf(w, "Results Directory:    %s\n", cfg.ResultsDir)
	fmt.Fprintf(w, "Cache Directory:      %s\n", cfg.DataCacheDir)
	fmt.Fprintf(w, "History Database:     %s\n", valueOr(cfg.DBPath, "disabled"))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "LLM Provider:         %s\n", cfg.LLMProvider)
	fmt.Fprintf(w, "Deep Think Model:     %s\n", cfg.DeepThinkLLM)
	fmt.Fprintf(w, "Quick Think Model:    %s\n", cfg.QuickThinkLLM)
	fmt.Fprintf(w, "Vision Model:         %s\n", cfg.VisionLLM)
	fmt.Fprintf(w, "Backend URL:          %s\n", valueOr(cfg.BackendURL, "default"))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Default Provider:     %s\n", cfg.DefaultProvider)
	fmt.Fprintf(w, "Fallback Providers:   %s\n", valueOr(strings.Join(cfg.FallbackProviders, ", "), "none"))
	fmt.Fprintf(w, "Parallel Fetch:       %t\n", cfg.ParallelFetch)
	fmt.Fprintf(w, "Search Results:       %d\n", cfg.SearchResultCount)
	fmt.Fprintf(w, "Cache Enabled:        %t (%d min)\n", cfg.CacheEnabled, cfg.CacheTTLMinutes)
	fmt.Fprintf(w, "HTTP Address:         %s\n", cfg.HTTPAddr)
	fmt.Fprintf(w, "Log Level:            %s (%s)\n", cfg.LogLevel, cfg.LogFormat)
	fmt.Fprintf(w, "Eino Debug:           %t\n", cfg.EinoDebugEnabled)
	if cfg.EinoDebugEnabled {
		fmt.Fprintf(w, "Debug URL:            http://localhost:%d\n", cfg.EinoDebugPort)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, headerStyle.Render("🔌 API Configuration"))
	for _, c := range credentials(cfg) {
		status := completedStyle.Render("✅ Configured")
		if !c.set {
			status = errorStyle.Render("❌ Not configured")
		}
		fmt.Fprintf(w, "%-22s%s\n", c.name+":", status)
	}
}

type credential struct {
	name string
	set  bool
}

func credentials(cfg *config.Config) []credential {
	return []credential{
		{"LLM (" + cfg.LLMProvider + ")", cfg.LLMAPIKey() != ""},
		{"Alpha Vantage", cfg.AlphaVantageAPIKey != ""},
		{"Finnhub", cfg.FinnhubAPIKey != ""},
		{"Longport", cfg.LongportAppKey != "" && cfg.LongportAppSecret != "" && cfg.LongportAccessToken != ""},
		{"Brave Search", cfg.BraveAPIKey != ""},
	}
}

// validateConfig checks the config values and reports missing credentials as
// warnings: a run without them still completes with stage errors.
func validateConfig(w io.Writer, cfg *config.Config) error {
	fmt.Fprintln(w, "🔍 Validating CortexTrade configuration...")

	fmt.Fprint(w, "📁 Checking directories... ")
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Fprintln(w, "❌")
		return fmt.Errorf("directory validation failed: %w", err)
	}
	fmt.Fprintln(w, "✅")

	fmt.Fprint(w, "⚙️  Checking configuration values... ")
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(w, "❌")
		return err
	}
	fmt.Fprintln(w, "✅")

	fmt.Fprint(w, "🔑 Checking API keys... ")
	var warnings []string
	for _, c := range credentials(cfg) {
		if !c.set {
			warnings = append(warnings, c.name+" credentials not configured")
		}
	}
	if len(warnings) == 0 {
		fmt.Fprintln(w, "✅")
		fmt.Fprintln(w, "✅ Configuration validation completed successfully!")
		return nil
	}
	fmt.Fprintln(w, "⚠️")
	for _, warning := range warnings {
		fmt.Fprintf(w, "  ⚠️  %s\n", warning)
	}
	fmt.Fprintf(w, "⚠️  Configuration validation completed with %d warnings.\n", len(warnings))
	return nil
}

func valueOr(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
