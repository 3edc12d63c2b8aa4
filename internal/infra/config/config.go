// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server       ServerConfig               `yaml:"server"`
	Catalog      CatalogConfig              `yaml:"catalog"`
	Features     FeaturesConfig             `yaml:"features"`
	LLM          LLMConfig                  `yaml:"llm"`
	Cache        CacheConfig                `yaml:"cache"`
	RateLimits   map[string]RateLimitConfig `yaml:"rate_limits"`
	Orchestrator OrchestratorConfig         `yaml:"orchestrator"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr  string      `yaml:"addr" default:":8080"`
	Hooks HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// CatalogConfig represents the Catalog (Spotify-modeled) upstream
// configuration.
type CatalogConfig struct {
	ClientID     string `yaml:"client_id" validate:"required"`
	ClientSecret string `yaml:"client_secret" validate:"required"`
	RefreshToken string `yaml:"refresh_token" validate:"required"`
	Market       string `yaml:"market" validate:"omitempty,len=2" default:"US"`
}

// FeaturesConfig represents the Features (RecoBeat-modeled) upstream
// configuration — a slower, flakier service that needs its own
// timeout and concurrency posture (spec §4.4, §4.6).
type FeaturesConfig struct {
	BaseURL            string `yaml:"base_url" validate:"required"`
	APIKey             string `yaml:"api_key" validate:"required"`
	TimeoutSec         int    `yaml:"timeout_sec" default:"180"`
	UseGlobalSemaphore bool   `yaml:"use_global_semaphore" default:"true"`
	UseCircuitBreaker  bool   `yaml:"use_circuit_breaker" default:"true"`
}

// LLMConfig represents the pluggable LLM capability used by the Mood
// Analysis Engine and Anchor Selector (spec §4.6, §4.7).
type LLMConfig struct {
	Provider string `yaml:"provider" default:"stub"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
}

// CacheConfig represents the namespaced cache configuration of spec
// §4.1.
type CacheConfig struct {
	Backend       string `yaml:"backend" validate:"omitempty,oneof=memory redis" default:"memory"`
	KeyPrefix     string `yaml:"key_prefix" default:"moodplay:"`
	MemoryMaxSize int    `yaml:"memory_max_size" default:"10000"`
	RedisURL      string `yaml:"redis_url"`
}

// RateLimitConfig represents one upstream tool's rate-limiting and
// retry posture (spec §4.4), keyed by tool name in Config.RateLimits.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" default:"60"`
	MinRequestMs      int `yaml:"min_request_ms" default:"0"`
	MaxRetries        int `yaml:"max_retries" default:"3"`
	TimeoutSec        int `yaml:"timeout_sec" default:"30"`
}

// OrchestratorConfig represents the multi-iteration workflow's tunable
// parameters (spec §4.13).
type OrchestratorConfig struct {
	CohesionThreshold float64 `yaml:"cohesion_threshold" default:"0.60" validate:"gte=0,lte=1"`
	MaxIterations     int     `yaml:"max_iterations" default:"3" validate:"gte=1"`
	RatioPositivePct  int     `yaml:"ratio_positive_pct" default:"98" validate:"gte=0,lte=100"`
	RatioNegativePct  int     `yaml:"ratio_negative_pct" default:"2" validate:"gte=0,lte=100"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("CATALOG_CLIENT_ID"); v != "" {
		c.Catalog.ClientID = v
	}
	if v := os.Getenv("CATALOG_CLIENT_SECRET"); v != "" {
		c.Catalog.ClientSecret = v
	}
	if v := os.Getenv("CATALOG_REFRESH_TOKEN"); v != "" {
		c.Catalog.RefreshToken = v
	}
	if v := os.Getenv("FEATURES_API_KEY"); v != "" {
		c.Features.APIKey = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("CACHE_REDIS_URL"); v != "" {
		c.Cache.RedisURL = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if c.Cache.Backend == "redis" && c.Cache.RedisURL == "" {
		return errors.New("cache.redis_url is required when cache.backend is \"redis\"")
	}

	if c.Orchestrator.RatioPositivePct+c.Orchestrator.RatioNegativePct != 100 {
		return errors.Newf("orchestrator ratio_positive_pct (%d) and ratio_negative_pct (%d) must sum to 100",
			c.Orchestrator.RatioPositivePct, c.Orchestrator.RatioNegativePct)
	}

	return nil
}

// RateLimitFor returns the configured RateLimitConfig for toolName, or
// a set of spec defaults if the tool has no explicit entry.
func (c *Config) RateLimitFor(toolName string) RateLimitConfig {
	if rl, ok := c.RateLimits[toolName]; ok {
		return rl
	}
	return RateLimitConfig{RequestsPerMinute: 60, MaxRetries: 3, TimeoutSec: 30}
}

// FeaturesTimeout returns the configured Features-service timeout as a
// time.Duration.
func (c *Config) FeaturesTimeout() time.Duration {
	if c.Features.TimeoutSec <= 0 {
		return 180 * time.Second
	}
	return time.Duration(c.Features.TimeoutSec) * time.Second
}
