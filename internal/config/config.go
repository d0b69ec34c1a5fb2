package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"BreakoutScreener/internal/calculator"
	"BreakoutScreener/internal/model"
	"BreakoutScreener/internal/scanner"
	"BreakoutScreener/internal/scheduler"
	"BreakoutScreener/internal/strategy"
	"BreakoutScreener/internal/universe"
)

// Price providers.
const (
	ProviderYahoo = "yahoo"
	ProviderREST  = "rest"
	ProviderMock  = "mock"
)

// DefaultPath is used when CONFIG_PATH is unset.
const DefaultPath = "configs/config.yaml"

// Config holds all application configuration.
type Config struct {
	Server struct {
		Addr         string `yaml:"addr"`
		LookbackDays int    `yaml:"lookback_days"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Provider struct {
		Name    string `yaml:"name"`
		BaseURL string `yaml:"base_url"`
		APIKey  string `yaml:"api_key"`
		// MockPrice is the base price of generated series for the mock provider.
		MockPrice float64 `yaml:"mock_price"`
	} `yaml:"provider"`
	Universes struct {
		CSVURL     string        `yaml:"csv_url"`
		CSVSuffix  string        `yaml:"csv_suffix"`
		CSVIndexes []string      `yaml:"csv_indexes"`
		TTL        time.Duration `yaml:"ttl"`
		StaticFile string        `yaml:"static_file"`
		Wikipedia  bool          `yaml:"wikipedia"`
	} `yaml:"universes"`
	Scan struct {
		Workers      int           `yaml:"workers"`
		FetchTimeout time.Duration `yaml:"fetch_timeout"`
		RSIWindow    int           `yaml:"rsi_window"`
	} `yaml:"scan"`
	Cache struct {
		MaxEntries int `yaml:"max_entries"`
	} `yaml:"cache"`
	Session struct {
		IdleTTL time.Duration `yaml:"idle_ttl"`
	} `yaml:"session"`
	Detector   strategy.DetectorConfig `yaml:"detector"`
	Indicators calculator.Settings     `yaml:"indicators"`
	Telegram   struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Schedule struct {
		Jobs        []scheduler.Job `yaml:"jobs"`
		SweepCron   string          `yaml:"sweep_cron"`
		RunOnStart  bool            `yaml:"run_on_start"`
		ScanTimeout time.Duration   `yaml:"scan_timeout"`
	} `yaml:"schedule"`
	Proxy string `yaml:"proxy"`
}

// overrides are the environment variables applied over the YAML file.
// Unset or zero values leave the file value in place, except for pointer
// fields, which apply whenever the variable is set.
type overrides struct {
	ServerAddr       string        `envconfig:"SCREENER_ADDR"`
	LogLevel         string        `envconfig:"LOG_LEVEL"`
	LogFormat        string        `envconfig:"LOG_FORMAT"`
	Provider         string        `envconfig:"PRICE_PROVIDER"`
	ProviderBaseURL  string        `envconfig:"PRICE_API_BASE_URL"`
	ProviderAPIKey   string        `envconfig:"PRICE_API_KEY"`
	UniverseCSVURL   string        `envconfig:"UNIVERSE_CSV_URL"`
	StaticUniverses  string        `envconfig:"UNIVERSE_FILE"`
	Workers          int           `envconfig:"SCAN_WORKERS"`
	FetchTimeout     time.Duration `envconfig:"FETCH_TIMEOUT"`
	CacheMaxEntries  int           `envconfig:"CACHE_MAX_ENTRIES"`
	SessionIdleTTL   time.Duration `envconfig:"SESSION_IDLE_TTL"`
	Quantile         *float64      `envconfig:"BREAKOUT_QUANTILE"`
	Rule             string        `envconfig:"BREAKOUT_RULE"`
	TelegramBotToken string        `envconfig:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID   string        `envconfig:"TELEGRAM_CHAT_ID"`
	RunOnStart       bool          `envconfig:"RUN_ON_START"`
	Proxy            string        `envconfig:"HTTPS_PROXY"`
}

// Default returns the configuration used for anything the file leaves out.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Addr = ":8080"
	cfg.Server.LookbackDays = 365
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	cfg.Provider.Name = ProviderYahoo
	cfg.Provider.MockPrice = 100
	cfg.Universes.CSVSuffix = ".NS"
	cfg.Universes.CSVIndexes = append([]string(nil), universe.DefaultNSEIndexes...)
	cfg.Universes.TTL = 12 * time.Hour
	cfg.Universes.Wikipedia = true
	cfg.Scan.Workers = 8
	cfg.Scan.FetchTimeout = 30 * time.Second
	cfg.Scan.RSIWindow = 14
	cfg.Cache.MaxEntries = 2000
	cfg.Session.IdleTTL = 2 * time.Hour
	cfg.Detector = strategy.DefaultDetectorConfig()
	cfg.Indicators = calculator.DefaultSettings()
	cfg.Schedule.SweepCron = "0 */10 * * * *"
	cfg.Schedule.ScanTimeout = 15 * time.Minute
	return cfg
}

// Path returns CONFIG_PATH or DefaultPath.
func Path() string {
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		return v
	}
	return DefaultPath
}

// Load reads .env, then the YAML file over the defaults, then environment
// variable overrides. Missing files are not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	var env overrides
	if err := envconfig.Process("", &env); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	env.apply(cfg)
	return cfg, nil
}

func (o overrides) apply(cfg *Config) {
	setString(&cfg.Server.Addr, o.ServerAddr)
	setString(&cfg.Log.Level, o.LogLevel)
	setString(&cfg.Log.Format, o.LogFormat)
	setString(&cfg.Provider.Name, o.Provider)
	setString(&cfg.Provider.BaseURL, o.ProviderBaseURL)
	setString(&cfg.Provider.APIKey, o.ProviderAPIKey)
	setString(&cfg.Universes.CSVURL, o.UniverseCSVURL)
	setString(&cfg.Universes.StaticFile, o.StaticUniverses)
	setString(&cfg.Telegram.BotToken, o.TelegramBotToken)
	setString(&cfg.Telegram.ChatID, o.TelegramChatID)
	setString(&cfg.Proxy, o.Proxy)
	if o.Rule != "" {
		cfg.Detector.Rule = model.BreakoutRule(o.Rule)
	}
	if o.Workers > 0 {
		cfg.Scan.Workers = o.Workers
	}
	if o.FetchTimeout > 0 {
		cfg.Scan.FetchTimeout = o.FetchTimeout
	}
	if o.CacheMaxEntries > 0 {
		cfg.Cache.MaxEntries = o.CacheMaxEntries
	}
	if o.SessionIdleTTL > 0 {
		cfg.Session.IdleTTL = o.SessionIdleTTL
	}
	if o.Quantile != nil {
		cfg.Detector.Quantile = *o.Quantile
	}
	if o.RunOnStart {
		cfg.Schedule.RunOnStart = true
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// TelegramEnabled reports whether a bot token is configured.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != ""
}

// Validate checks that all required fields are set and consistent.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	switch c.Provider.Name {
	case ProviderYahoo, ProviderMock:
	case ProviderREST:
		if c.Provider.BaseURL == "" {
			return fmt.Errorf("provider.base_url is required for the %s provider", ProviderREST)
		}
	default:
		return fmt.Errorf("provider.name must be one of %s, %s, %s: got %q", ProviderYahoo, ProviderREST, ProviderMock, c.Provider.Name)
	}
	if c.Scan.Workers <= 0 {
		return fmt.Errorf("scan.workers must be positive")
	}
	if c.Scan.FetchTimeout <= 0 {
		return fmt.Errorf("scan.fetch_timeout must be positive")
	}
	if c.Cache.MaxEntries < 0 {
		return fmt.Errorf("cache.max_entries must not be negative")
	}
	if err := c.Detector.Validate(); err != nil {
		return fmt.Errorf("detector: %w", err)
	}
	if err := c.Indicators.Validate(); err != nil {
		return fmt.Errorf("indicators: %w", err)
	}
	if c.TelegramEnabled() && c.Telegram.ChatID == "" {
		return fmt.Errorf("telegram.chat_id is required when telegram.bot_token is set")
	}
	for i, job := range c.Schedule.Jobs {
		if job.Cron == "" || job.Universe == "" {
			return fmt.Errorf("schedule.jobs[%d]: cron and universe are required", i)
		}
		if job.RankBy != scanner.RankNone && job.RankBy != scanner.RankRSI {
			return fmt.Errorf("schedule.jobs[%d]: unknown rank_by %q", i, job.RankBy)
		}
	}
	return nil
}
