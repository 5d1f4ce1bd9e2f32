package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/newthinker/equicurve/internal/core"
	"github.com/newthinker/equicurve/internal/plans"
	"github.com/newthinker/equicurve/internal/stats"
)

type Config struct {
	Server    ServerConfig              `mapstructure:"server"`
	Storage   StorageConfig             `mapstructure:"storage"`
	Plans     map[string]plans.Limit    `mapstructure:"plans"`
	Portfolio PortfolioConfig           `mapstructure:"portfolio"`
	Stats     StatsConfig               `mapstructure:"stats"`
	RateLimit RateLimitConfig           `mapstructure:"rate_limit"`
	Notifiers map[string]NotifierConfig `mapstructure:"notifiers"`
	LLM       LLMConfig                 `mapstructure:"llm"`
	Metrics   MetricsConfig             `mapstructure:"metrics"`
	Log       LogConfig                 `mapstructure:"log"`
}

type ServerConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	Mode           string   `mapstructure:"mode"`
	APIKey         string   `mapstructure:"api_key"`
	JobTTLHours    int      `mapstructure:"job_ttl_hours"`
	MaxJobs        int      `mapstructure:"max_jobs"`
	MaxUploadMB    int      `mapstructure:"max_upload_mb"`
	CORSOrigins    []string `mapstructure:"cors_origins"`
	RequestTimeout int      `mapstructure:"request_timeout_seconds"`
}

type StorageConfig struct {
	Type   string   `mapstructure:"type"` // "localfs" or "s3"
	Path   string   `mapstructure:"path"` // For localfs
	Bucket string   `mapstructure:"bucket"`
	S3     S3Config `mapstructure:"s3"` // For S3
	// MaxFeedback caps retained feedback entries.
	MaxFeedback int `mapstructure:"max_feedback"`
}

type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

// PortfolioConfig holds run defaults.
type PortfolioConfig struct {
	TotalCapitalDefault float64 `mapstructure:"total_capital_default"`
	DefaultCurrency     string  `mapstructure:"default_currency"`
	LoadConcurrency     int     `mapstructure:"load_concurrency"`
	RunTimeoutSeconds   int     `mapstructure:"run_timeout_seconds"`
}

// StatsConfig holds summary statistics settings.
type StatsConfig struct {
	RiskFreeRate   float64 `mapstructure:"risk_free_rate"`
	JobTimeoutSecs int     `mapstructure:"job_timeout_seconds"`
}

// RateLimitConfig holds per-route request budgets.
type RateLimitConfig struct {
	BacktestsPerMinute int `mapstructure:"backtests_per_minute"`
	FeedbackPerHour    int `mapstructure:"feedback_per_hour"`
}

// NotifierConfig configures one event sink. Type is "webhook" (default) or
// "telegram". An empty Events list subscribes to every event.
type NotifierConfig struct {
	Type     string            `mapstructure:"type"`
	Enabled  bool              `mapstructure:"enabled"`
	URL      string            `mapstructure:"url"`
	Headers  map[string]string `mapstructure:"headers"`
	BotToken string            `mapstructure:"bot_token"`
	ChatID   string            `mapstructure:"chat_id"`
	Events   []string          `mapstructure:"events"`
}

type LLMConfig struct {
	Provider string       `mapstructure:"provider"`
	Claude   ClaudeConfig `mapstructure:"claude"`
	OpenAI   OpenAIConfig `mapstructure:"openai"`
}

type ClaudeConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LogConfig selects the log level and encoding.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "console"
}

// LoadEnvFile loads KEY=VALUE pairs from the given .env files (default
// ".env") into the process environment. Missing files are skipped and
// variables already set win. A file that fails to parse is an error.
func LoadEnvFile(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("load %s: %w", path, err))
		}
	}
	return nil
}

// Load reads configuration from file on top of Defaults. An empty path
// reads defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Defaults())

	// Support environment variable overrides
	v.SetEnvPrefix("EQUICURVE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.mode", d.Server.Mode)
	v.SetDefault("server.api_key", d.Server.APIKey)
	v.SetDefault("server.job_ttl_hours", d.Server.JobTTLHours)
	v.SetDefault("server.max_jobs", d.Server.MaxJobs)
	v.SetDefault("server.max_upload_mb", d.Server.MaxUploadMB)
	v.SetDefault("server.cors_origins", d.Server.CORSOrigins)
	v.SetDefault("server.request_timeout_seconds", d.Server.RequestTimeout)

	v.SetDefault("storage.type", d.Storage.Type)
	v.SetDefault("storage.path", d.Storage.Path)
	v.SetDefault("storage.bucket", d.Storage.Bucket)
	v.SetDefault("storage.max_feedback", d.Storage.MaxFeedback)
	v.SetDefault("storage.s3.endpoint", d.Storage.S3.Endpoint)
	v.SetDefault("storage.s3.region", d.Storage.S3.Region)
	v.SetDefault("storage.s3.access_key", d.Storage.S3.AccessKey)
	v.SetDefault("storage.s3.secret_key", d.Storage.S3.SecretKey)
	v.SetDefault("storage.s3.prefix", d.Storage.S3.Prefix)

	for plan, l := range d.Plans {
		v.SetDefault("plans."+plan+".max_files", l.MaxFiles)
		v.SetDefault("plans."+plan+".runs_per_day", l.RunsPerDay)
	}

	v.SetDefault("portfolio.total_capital_default", d.Portfolio.TotalCapitalDefault)
	v.SetDefault("portfolio.default_currency", d.Portfolio.DefaultCurrency)
	v.SetDefault("portfolio.load_concurrency", d.Portfolio.LoadConcurrency)
	v.SetDefault("portfolio.run_timeout_seconds", d.Portfolio.RunTimeoutSeconds)

	v.SetDefault("stats.risk_free_rate", d.Stats.RiskFreeRate)
	v.SetDefault("stats.job_timeout_seconds", d.Stats.JobTimeoutSecs)

	v.SetDefault("rate_limit.backtests_per_minute", d.RateLimit.BacktestsPerMinute)
	v.SetDefault("rate_limit.feedback_per_hour", d.RateLimit.FeedbackPerHour)

	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.claude.api_key", d.LLM.Claude.APIKey)
	v.SetDefault("llm.claude.model", d.LLM.Claude.Model)
	v.SetDefault("llm.claude.base_url", d.LLM.Claude.BaseURL)
	v.SetDefault("llm.openai.api_key", d.LLM.OpenAI.APIKey)
	v.SetDefault("llm.openai.model", d.LLM.OpenAI.Model)
	v.SetDefault("llm.openai.base_url", d.LLM.OpenAI.BaseURL)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.path", d.Metrics.Path)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8000,
			Mode:           "release",
			JobTTLHours:    1,
			MaxJobs:        100,
			MaxUploadMB:    50,
			CORSOrigins:    []string{"http://localhost:3000", "http://127.0.0.1:3000"},
			RequestTimeout: 60,
		},
		Storage: StorageConfig{
			Type:        "localfs",
			Path:        "./data",
			Bucket:      "portfolio-uploads",
			MaxFeedback: 10000,
			S3: S3Config{
				Region: "us-east-1",
			},
		},
		Plans: plans.DefaultLimits(),
		Portfolio: PortfolioConfig{
			TotalCapitalDefault: 100_000,
			DefaultCurrency:     "USD",
			LoadConcurrency:     4,
			RunTimeoutSeconds:   120,
		},
		Stats: StatsConfig{
			JobTimeoutSecs: 300,
		},
		RateLimit: RateLimitConfig{
			BacktestsPerMinute: 15,
			FeedbackPerHour:    30,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// JobTTL is how long finished jobs are kept.
func (c *Config) JobTTL() time.Duration {
	return time.Duration(c.Server.JobTTLHours) * time.Hour
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("port must be between 1 and 65535, got %d", c.Server.Port))
	}

	switch c.Storage.Type {
	case "", "localfs":
		if c.Storage.Path == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("storage path required for localfs"))
		}
	case "s3":
		if c.Storage.Bucket == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("storage bucket required for s3"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown storage type %q", c.Storage.Type))
	}

	for name, l := range c.Plans {
		if l.MaxFiles < 0 || l.RunsPerDay < 0 {
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("plan %s limits cannot be negative", name))
		}
	}

	if c.Portfolio.TotalCapitalDefault < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("total_capital_default cannot be negative, got %f", c.Portfolio.TotalCapitalDefault))
	}
	if !stats.ValidRate(c.Stats.RiskFreeRate) {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("risk_free_rate must be finite, got %f", c.Stats.RiskFreeRate))
	}

	// LLM validation - if provider set, check config exists
	if c.LLM.Provider != "" {
		switch c.LLM.Provider {
		case "claude":
			if c.LLM.Claude.APIKey == "" {
				return core.WrapError(core.ErrConfigMissing,
					fmt.Errorf("claude api_key required when provider is claude"))
			}
		case "openai":
			if c.LLM.OpenAI.APIKey == "" {
				return core.WrapError(core.ErrConfigMissing,
					fmt.Errorf("openai api_key required when provider is openai"))
			}
		default:
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("unknown llm provider %q", c.LLM.Provider))
		}
	}

	switch c.Log.Format {
	case "", "json", "console":
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown log format %q", c.Log.Format))
	}

	for name, n := range c.Notifiers {
		if !n.Enabled {
			continue
		}
		switch n.Type {
		case "", "webhook":
			if n.URL == "" {
				return core.WrapError(core.ErrConfigMissing,
					fmt.Errorf("notifier %s: url required when enabled", name))
			}
		case "telegram":
			if n.BotToken == "" || n.ChatID == "" {
				return core.WrapError(core.ErrConfigMissing,
					fmt.Errorf("notifier %s: bot_token and chat_id required", name))
			}
		default:
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("notifier %s: unknown type %q", name, n.Type))
		}
	}

	return nil
}
