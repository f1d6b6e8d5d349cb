package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"ArxivDigest/internal/domain"
)

const (
	defaultTimezone = "UTC"
	configPathEnv   = "ARXIV_DIGEST_CONFIG"

	apiKeyEnv       = "OPENAI_API_KEY"
	baseURLEnv      = "OPENAI_BASE_URL"
	modelNameEnv    = "OPENAI_MODEL_NAME"
	languageEnv     = "SUMMARY_LANGUAGE"
	webhookURLEnv   = "WEBHOOK_URL"
	userInterestEnv = "USER_INTEREST"
	filterLevelEnv  = "FILTER_LEVEL"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging    LoggingConfig    `yaml:"logging"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Sites      []SiteConfig     `yaml:"sites"`
	Digest     DigestConfig     `yaml:"digest"`
	OpenAI     OpenAIConfig     `yaml:"openai"`
	Resilience ResilienceConfig `yaml:"resilience"`
	Limits     LimitsConfig     `yaml:"limits"`
	Webhook    WebhookConfig    `yaml:"webhook"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// SchedulerConfig defines when the digest should run.
type SchedulerConfig struct {
	CronExpression string         `yaml:"cronExpression"`
	Timezone       string         `yaml:"timezone"`
	location       *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// SiteConfig describes a single site with its scanner strategy.
type SiteConfig struct {
	Name       string            `yaml:"name"`
	Scanner    string            `yaml:"scanner"`
	Categories []CategoryConfig  `yaml:"categories"`
	Options    map[string]string `yaml:"options"`
}

// CategoryConfig holds the concrete listing endpoints (e.g. arXiv category URLs).
type CategoryConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// DigestConfig carries the user-facing pipeline parameters.
type DigestConfig struct {
	UserInterest        string `yaml:"userInterest"`
	FilterLevel         string `yaml:"filterLevel"`
	Language            string `yaml:"language"`
	MaxPapersPerMessage int    `yaml:"maxPapersPerMessage"`
}

// OpenAIConfig defines how to contact the completion API.
type OpenAIConfig struct {
	Endpoint          string `yaml:"endpoint"`
	Model             string `yaml:"model"`
	APIKey            string `yaml:"apiKey"`
	RequestTimeoutSec int    `yaml:"requestTimeoutSec"`
}

// RequestTimeout converts the configured seconds into a duration.
func (c OpenAIConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

// ResilienceConfig tunes retry/backoff and the circuit breaker on external calls.
type ResilienceConfig struct {
	MaxAttempts      int     `yaml:"maxAttempts"`
	InitialBackoffMS int     `yaml:"initialBackoffMs"`
	MaxBackoffMS     int     `yaml:"maxBackoffMs"`
	Multiplier       float64 `yaml:"multiplier"`
	BreakerEnabled   bool    `yaml:"breakerEnabled"`
}

// InitialBackoff converts the configured milliseconds into a duration.
func (r ResilienceConfig) InitialBackoff() time.Duration {
	return time.Duration(r.InitialBackoffMS) * time.Millisecond
}

// MaxBackoff converts the configured milliseconds into a duration.
func (r ResilienceConfig) MaxBackoff() time.Duration {
	return time.Duration(r.MaxBackoffMS) * time.Millisecond
}

// LimitsConfig bounds concurrent work and the outbound completion request rate.
type LimitsConfig struct {
	MaxConcurrent     int `yaml:"maxConcurrent"`
	RequestsPerMinute int `yaml:"requestsPerMinute"`
}

// WebhookConfig wires the group-chat endpoint receiving digests.
type WebhookConfig struct {
	URL string `yaml:"url"`
}

// MetricsConfig exposes Prometheus metrics when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Load reads YAML configuration (if present), applies environment overrides,
// and validates the result. Invalid configuration aborts the run before any
// paper is processed.
func Load() (Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	if len(cfg.Sites) == 0 {
		cfg.Sites = defaultConfig().Sites
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(apiKeyEnv); v != "" {
		c.OpenAI.APIKey = v
	}
	if v := os.Getenv(baseURLEnv); v != "" {
		c.OpenAI.Endpoint = v
	}
	if v := os.Getenv(modelNameEnv); v != "" {
		c.OpenAI.Model = v
	}
	if v := os.Getenv(languageEnv); v != "" {
		c.Digest.Language = v
	}
	if v := os.Getenv(webhookURLEnv); v != "" {
		c.Webhook.URL = v
	}
	if v := os.Getenv(userInterestEnv); v != "" {
		c.Digest.UserInterest = v
	}
	if v := os.Getenv(filterLevelEnv); v != "" {
		c.Digest.FilterLevel = v
	}
}

func (c *Config) validate() error {
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("config: %s is required", apiKeyEnv)
	}
	if c.OpenAI.Endpoint == "" || c.OpenAI.Model == "" {
		return fmt.Errorf("config: openai endpoint and model are required")
	}
	if _, err := domain.ParseFilterLevel(c.Digest.FilterLevel); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Digest.MaxPapersPerMessage <= 0 {
		return fmt.Errorf("config: maxPapersPerMessage must be positive")
	}
	return nil
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging:   LoggingConfig{Level: "info"},
		Scheduler: SchedulerConfig{CronExpression: "0 6 * * *", Timezone: defaultTimezone, location: tz},
		Digest: DigestConfig{
			FilterLevel:         "none",
			Language:            "English",
			MaxPapersPerMessage: 10,
		},
		OpenAI: OpenAIConfig{
			Endpoint:          "https://api.openai.com/v1/chat/completions",
			Model:             "gpt-3.5-turbo",
			RequestTimeoutSec: 60,
		},
		Resilience: ResilienceConfig{
			MaxAttempts:      5,
			InitialBackoffMS: 500,
			MaxBackoffMS:     15000,
			Multiplier:       2.0,
			BreakerEnabled:   true,
		},
		Limits: LimitsConfig{
			MaxConcurrent:     4,
			RequestsPerMinute: 60,
		},
		Sites: []SiteConfig{
			{
				Name:    "arxiv",
				Scanner: "arxiv",
				Categories: []CategoryConfig{
					{Name: "eess.AS", URL: "https://arxiv.org/list/eess.AS/new"},
				},
			},
		},
	}
}
