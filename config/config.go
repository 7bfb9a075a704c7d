package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ProjectDir   string `json:"project_dir"`
	ResultsDir   string `json:"results_dir"`
	DataDir      string `json:"data_dir"`
	DataCacheDir string `json:"data_cache_dir"`
	DBPath       string `json:"db_path"`

	LLMProvider   string `json:"llm_provider"`
	DeepThinkLLM  string `json:"deep_think_llm"`
	QuickThinkLLM string `json:"quick_think_llm"`
	VisionLLM     string `json:"vision_llm"`
	BackendURL    string `json:"backend_url"`
	MaxTokens     int    `json:"max_tokens"`
	Debug         bool   `json:"debug"`
	LogLevel      string `json:"log_level"`
	LogFormat     string `json:"log_format"`

	// Eino Debug configuration
	EinoDebugEnabled bool `json:"eino_debug_enabled"`
	EinoDebugPort    int  `json:"eino_debug_port"`

	CacheEnabled    bool `json:"cache_enabled"`
	CacheTTLMinutes int  `json:"cache_ttl_minutes"`

	// Pipeline behaviour
	DefaultProvider   string   `json:"default_provider"`
	FallbackProviders []string `json:"fallback_providers"`
	ParallelFetch     bool     `json:"parallel_fetch"`
	SearchResultCount int      `json:"search_result_count"`
	// Download result pages when the search snippet is too short to summarise.
	SearchFetchArticles bool `json:"search_fetch_articles"`

	// Upstream timeouts in seconds
	ProviderTimeoutSeconds int `json:"provider_timeout_seconds"`
	ReasonerTimeoutSeconds int `json:"reasoner_timeout_seconds"`
	SearchTimeoutSeconds   int `json:"search_timeout_seconds"`

	HTTPAddr       string `json:"http_addr"`
	MetricsEnabled bool   `json:"metrics_enabled"`

	// Longport API Configuration
	LongportAppKey      string `json:"longport_app_key"`
	LongportAppSecret   string `json:"longport_app_secret"`
	LongportAccessToken string `json:"longport_access_token"`

	// AI Model API Keys
	DeepSeekAPIKey string `json:"deepseek_api_key"`
	OpenAIAPIKey   string `json:"openai_api_key"`

	// Market/search data API keys
	AlphaVantageAPIKey string `json:"alpha_vantage_api_key"`
	FinnhubAPIKey      string `json:"finnhub_api_key"`
	BraveAPIKey        string `json:"brave_api_key"`
}

var (
	validProviders    = map[string]bool{"alpha": true, "finnhub": true, "yahoo": true, "longport": true}
	validLLMProviders = map[string]bool{"deepseek": true, "openai": true}
)

func DefaultConfig() *Config {
	currentDir, _ := os.Getwd()

	cfg := DefaultConfigWithRoot(currentDir)

	// Load environment variables from .env file
	_ = godotenv.Load()

	// Override with environment variables if they exist
	cfg.loadFromEnv()

	return cfg
}

// DefaultConfigWithRoot returns the defaults with every directory placed under root.
// Environment variables are not consulted.
func DefaultConfigWithRoot(root string) *Config {
	return &Config{
		ProjectDir:   root,
		ResultsDir:   filepath.Join(root, "results"),
		DataDir:      filepath.Join(root, "data"),
		DataCacheDir: filepath.Join(root, "data", "cache"),
		DBPath:       filepath.Join(root, "data", "cortextrade.db"),

		LLMProvider:   "deepseek",
		DeepThinkLLM:  "deepseek-chat",
		QuickThinkLLM: "deepseek-chat",
		VisionLLM:     "deepseek-chat",
		BackendURL:    "",
		MaxTokens:     2000,
		Debug:         false,
		LogLevel:      "info",
		LogFormat:     "text",

		// Eino Debug defaults
		EinoDebugEnabled: false,
		EinoDebugPort:    52538,

		CacheEnabled:    true,
		CacheTTLMinutes: 15,

		DefaultProvider:   "alpha",
		FallbackProviders: []string{},
		ParallelFetch:     false,
		SearchResultCount: 3,

		ProviderTimeoutSeconds: 30,
		ReasonerTimeoutSeconds: 60,
		SearchTimeoutSeconds:   15,

		HTTPAddr:       ":8080",
		MetricsEnabled: true,
	}
}

func (c *Config) loadFromEnv() {
	if val := os.Getenv("PROJECT_DIR"); val != "" {
		c.ProjectDir = val
	}
	if val := os.Getenv("RESULTS_DIR"); val != "" {
		c.ResultsDir = val
	}
	if val := os.Getenv("DATA_DIR"); val != "" {
		c.DataDir = val
	}
	if val := os.Getenv("DATA_CACHE_DIR"); val != "" {
		c.DataCacheDir = val
	}
	if val := os.Getenv("CORTEXTRADE_DB_PATH"); val != "" {
		c.DBPath = val
	}

	if val := os.Getenv("LLM_PROVIDER"); val != "" {
		c.LLMProvider = val
	}
	if val := os.Getenv("DEEP_THINK_LLM"); val != "" {
		c.DeepThinkLLM = val
	}
	if val := os.Getenv("QUICK_THINK_LLM"); val != "" {
		c.QuickThinkLLM = val
	}
	if val := os.Getenv("VISION_LLM"); val != "" {
		c.VisionLLM = val
	}
	if val := os.Getenv("BACKEND_URL"); val != "" {
		c.BackendURL = val
	}
	if val := os.Getenv("LLM_MAX_TOKENS"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.MaxTokens = v
		}
	}

	if val := os.Getenv("CACHE_ENABLED"); val != "" {
		if cache, err := strconv.ParseBool(val); err == nil {
			c.CacheEnabled = cache
		}
	}
	if val := os.Getenv("CACHE_TTL_MINUTES"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.CacheTTLMinutes = v
		}
	}

	if val := os.Getenv("MARKET_DATA_PROVIDER"); val != "" {
		c.DefaultProvider = val
	}
	if val := os.Getenv("MARKET_DATA_FALLBACKS"); val != "" {
		c.FallbackProviders = splitList(val)
	}
	if val := os.Getenv("PARALLEL_FETCH"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.ParallelFetch = enabled
		}
	}
	if val := os.Getenv("SEARCH_RESULT_COUNT"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.SearchResultCount = v
		}
	}

	if val := os.Getenv("SEARCH_FETCH_ARTICLES"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.SearchFetchArticles = enabled
		}
	}

	if val := os.Getenv("PROVIDER_TIMEOUT_SECONDS"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.ProviderTimeoutSeconds = v
		}
	}
	if val := os.Getenv("REASONER_TIMEOUT_SECONDS"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.ReasonerTimeoutSeconds = v
		}
	}
	if val := os.Getenv("SEARCH_TIMEOUT_SECONDS"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.SearchTimeoutSeconds = v
		}
	}

	if val := os.Getenv("CORTEXTRADE_DEBUG"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.Debug = enabled
		}
	}
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.LogLevel = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.LogFormat = val
	}

	if val := os.Getenv("EINO_DEBUG_ENABLED"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.EinoDebugEnabled = enabled
		}
	}
	if val := os.Getenv("EINO_DEBUG_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			c.EinoDebugPort = port
		}
	}

	if val := os.Getenv("HTTP_ADDR"); val != "" {
		c.HTTPAddr = val
	}
	if val := os.Getenv("METRICS_ENABLED"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.MetricsEnabled = enabled
		}
	}

	if val := os.Getenv("LONGPORT_APP_KEY"); val != "" {
		c.LongportAppKey = val
	}
	if val := os.Getenv("LONGPORT_APP_SECRET"); val != "" {
		c.LongportAppSecret = val
	}
	if val := os.Getenv("LONGPORT_ACCESS_TOKEN"); val != "" {
		c.LongportAccessToken = val
	}

	if val := os.Getenv("DEEPSEEK_API_KEY"); val != "" {
		c.DeepSeekAPIKey = val
	}
	if val := os.Getenv("OPENAI_API_KEY"); val != "" {
		c.OpenAIAPIKey = val
	}
	if val := os.Getenv("ALPHA_VANTAGE_API_KEY"); val != "" {
		c.AlphaVantageAPIKey = val
	}
	if val := os.Getenv("FINNHUB_API_KEY"); val != "" {
		c.FinnhubAPIKey = val
	}
	if val := os.Getenv("BRAVE_API_KEY"); val != "" {
		c.BraveAPIKey = val
	}
}

// Validate checks values that would make the pipeline unusable. Missing API keys are
// not errors here: adapters report them per run so the remaining stages still execute.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.DataCacheDir) == "" {
		errs = append(errs, errors.New("data_cache_dir is required"))
	}
	if !validLLMProviders[strings.ToLower(c.LLMProvider)] {
		errs = append(errs, fmt.Errorf("unsupported llm_provider %q", c.LLMProvider))
	}
	if !validProviders[c.DefaultProvider] {
		errs = append(errs, fmt.Errorf("unsupported default_provider %q", c.DefaultProvider))
	}
	for _, p := range c.FallbackProviders {
		if !validProviders[p] {
			errs = append(errs, fmt.Errorf("unsupported fallback provider %q", p))
		}
	}
	if c.SearchResultCount < 1 || c.SearchResultCount > 20 {
		errs = append(errs, fmt.Errorf("search_result_count must be within 1..20, got %d", c.SearchResultCount))
	}
	if c.ProviderTimeoutSeconds <= 0 || c.ReasonerTimeoutSeconds <= 0 || c.SearchTimeoutSeconds <= 0 {
		errs = append(errs, errors.New("timeouts must be positive"))
	}
	if c.CacheEnabled && c.CacheTTLMinutes <= 0 {
		errs = append(errs, errors.New("cache_ttl_minutes must be positive when cache is enabled"))
	}
	if c.EinoDebugEnabled && (c.EinoDebugPort <= 0 || c.EinoDebugPort > 65535) {
		errs = append(errs, fmt.Errorf("invalid eino_debug_port %d", c.EinoDebugPort))
	}
	return errors.Join(errs...)
}

func (c *Config) ProviderTimeout() time.Duration {
	return time.Duration(c.ProviderTimeoutSeconds) * time.Second
}

func (c *Config) ReasonerTimeout() time.Duration {
	return time.Duration(c.ReasonerTimeoutSeconds) * time.Second
}

func (c *Config) SearchTimeout() time.Duration {
	return time.Duration(c.SearchTimeoutSeconds) * time.Second
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMinutes) * time.Minute
}

// LLMAPIKey returns the key matching the configured LLM provider.
func (c *Config) LLMAPIKey() string {
	if strings.EqualFold(c.LLMProvider, "openai") {
		return c.OpenAIAPIKey
	}
	return c.DeepSeekAPIKey
}

func (c *Config) EnsureDirectories() error {
	dirs := []string{c.ProjectDir, c.ResultsDir, c.DataDir, c.DataCacheDir}
	if c.DBPath != "" {
		dirs = append(dirs, filepath.Dir(c.DBPath))
	}
	for _, dir := range dirs {
		path := strings.TrimSpace(dir)
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", path, err)
		}
	}
	return nil
}

func splitList(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
