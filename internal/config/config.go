package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oriys/vantage/internal/apiclient"
	"github.com/oriys/vantage/internal/cache"
	"github.com/oriys/vantage/internal/circuitbreaker"
	"github.com/oriys/vantage/internal/observability"
	"github.com/oriys/vantage/internal/query"
)

// APIConfig holds dashboard API settings
type APIConfig struct {
	BaseURL string            `yaml:"base_url"`
	Timeout time.Duration     `yaml:"timeout"`
	Headers map[string]string `yaml:"headers"`
}

// QueryConfig holds the default options of every query
type QueryConfig struct {
	StaleTime       time.Duration `yaml:"stale_time"`
	CacheTime       time.Duration `yaml:"cache_time"`
	RetryCount      int           `yaml:"retry_count"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
	AttemptTimeout  time.Duration `yaml:"attempt_timeout"`
	RefetchInterval time.Duration `yaml:"refetch_interval"`
	RefetchOnFocus  bool          `yaml:"refetch_on_focus"`
}

// BreakerConfig holds per-key circuit breaker settings
type BreakerConfig struct {
	Enabled        bool          `yaml:"enabled"`
	ErrorPct       float64       `yaml:"error_pct"`
	MinRequests    int           `yaml:"min_requests"`
	Window         time.Duration `yaml:"window"`
	OpenDuration   time.Duration `yaml:"open_duration"`
	HalfOpenProbes int           `yaml:"half_open_probes"`
}

// RedisConfig holds Redis connection settings for cross-process invalidation
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

// TelemetryConfig holds tracing settings
type TelemetryConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"`
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	SampleRate  float64 `yaml:"sample_rate"`
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	Enabled   bool      `yaml:"enabled"`
	Namespace string    `yaml:"namespace"`
	Buckets   []float64 `yaml:"buckets"`
}

// DaemonConfig holds process-level settings
type DaemonConfig struct {
	HTTPAddr  string `yaml:"http_addr"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	FetchLog  string `yaml:"fetch_log"`
}

// Config is the central configuration struct embedding all component configs
type Config struct {
	API       APIConfig       `yaml:"api"`
	Query     QueryConfig     `yaml:"query"`
	Breaker   BreakerConfig   `yaml:"breaker"`
	Redis     RedisConfig     `yaml:"redis"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Daemon    DaemonConfig    `yaml:"daemon"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "http://localhost:3001",
			Timeout: apiclient.DefaultTimeout,
		},
		Query: QueryConfig{
			StaleTime:      0,
			CacheTime:      query.DefaultCacheTime,
			RetryCount:     query.DefaultRetryCount,
			RetryDelay:     query.DefaultRetryDelay,
			AttemptTimeout: query.DefaultAttemptTimeout,
			RefetchOnFocus: true,
		},
		Breaker: BreakerConfig{
			Enabled:        false,
			ErrorPct:       50,
			MinRequests:    5,
			Window:         30 * time.Second,
			OpenDuration:   10 * time.Second,
			HalfOpenProbes: 1,
		},
		Redis: RedisConfig{
			Addr:    "localhost:6379",
			Channel: cache.DefaultInvalidationChannel,
		},
		Telemetry: TelemetryConfig{
			Exporter:    "otlp-http",
			Endpoint:    "localhost:4318",
			ServiceName: "vantage",
			SampleRate:  1.0,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "vantage",
		},
		Daemon: DaemonConfig{
			HTTPAddr:  ":9090",
			LogLevel:  "info",
			LogFormat: "text",
		},
	}
}

// LoadFromFile loads configuration from a YAML (or JSON) file on top of
// the defaults
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}

// LoadFromEnv applies environment variable overrides to the config.
// Malformed numeric or duration values are reported and leave the field
// unchanged.
func LoadFromEnv(cfg *Config) error {
	var errs []error
	str := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	dur := func(name string, dst *time.Duration) {
		if v := os.Getenv(name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = d
		}
	}
	num := func(name string, dst *int) {
		if v := os.Getenv(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = n
		}
	}
	flag := func(name string, dst *bool) {
		if v := os.Getenv(name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = b
		}
	}

	str("VANTAGE_API_URL", &cfg.API.BaseURL)
	dur("VANTAGE_API_TIMEOUT", &cfg.API.Timeout)
	dur("VANTAGE_STALE_TIME", &cfg.Query.StaleTime)
	dur("VANTAGE_CACHE_TIME", &cfg.Query.CacheTime)
	num("VANTAGE_RETRY_COUNT", &cfg.Query.RetryCount)
	dur("VANTAGE_RETRY_DELAY", &cfg.Query.RetryDelay)
	dur("VANTAGE_REFETCH_INTERVAL", &cfg.Query.RefetchInterval)
	flag("VANTAGE_BREAKER_ENABLED", &cfg.Breaker.Enabled)
	flag("VANTAGE_REDIS_ENABLED", &cfg.Redis.Enabled)
	str("VANTAGE_REDIS_ADDR", &cfg.Redis.Addr)
	str("VANTAGE_REDIS_PASSWORD", &cfg.Redis.Password)
	flag("VANTAGE_TRACING_ENABLED", &cfg.Telemetry.Enabled)
	str("VANTAGE_OTLP_ENDPOINT", &cfg.Telemetry.Endpoint)
	str("VANTAGE_HTTP_ADDR", &cfg.Daemon.HTTPAddr)
	str("VANTAGE_LOG_LEVEL", &cfg.Daemon.LogLevel)
	str("VANTAGE_LOG_FORMAT", &cfg.Daemon.LogFormat)
	str("VANTAGE_FETCH_LOG", &cfg.Daemon.FetchLog)

	return errors.Join(errs...)
}

// Validate checks the configuration for values no component accepts
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.API.BaseURL) == "" {
		errs = append(errs, errors.New("api.base_url is required"))
	}
	if c.API.Timeout < 0 {
		errs = append(errs, errors.New("api.timeout must not be negative"))
	}
	if c.Query.StaleTime < 0 || c.Query.CacheTime < 0 {
		errs = append(errs, errors.New("query.stale_time and query.cache_time must not be negative"))
	}
	if c.Query.RetryCount < 0 {
		errs = append(errs, errors.New("query.retry_count must not be negative"))
	}
	if c.Query.RetryDelay < 0 || c.Query.AttemptTimeout < 0 || c.Query.RefetchInterval < 0 {
		errs = append(errs, errors.New("query durations must not be negative"))
	}
	if c.Breaker.Enabled {
		if c.Breaker.ErrorPct <= 0 || c.Breaker.ErrorPct > 100 {
			errs = append(errs, errors.New("breaker.error_pct must be in (0, 100]"))
		}
		if c.Breaker.Window <= 0 || c.Breaker.OpenDuration <= 0 {
			errs = append(errs, errors.New("breaker.window and breaker.open_duration must be positive"))
		}
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required when redis is enabled"))
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, errors.New("telemetry.sample_rate must be in [0, 1]"))
	}
	switch c.Daemon.LogFormat {
	case "", "text", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("daemon.log_format %q is not one of text, json", c.Daemon.LogFormat))
	}
	return errors.Join(errs...)
}

// QueryOptions converts the query section into client-wide defaults
func (c *Config) QueryOptions() []query.Option {
	return []query.Option{
		query.WithStaleTime(c.Query.StaleTime),
		query.WithCacheTime(c.Query.CacheTime),
		query.WithRetry(c.Query.RetryCount, c.Query.RetryDelay),
		query.WithAttemptTimeout(c.Query.AttemptTimeout),
		query.WithRefetchInterval(c.Query.RefetchInterval),
		query.WithRefetchOnWindowFocus(c.Query.RefetchOnFocus),
	}
}

// BreakerSettings converts the breaker section. A disabled breaker yields
// the zero Config, which the registry treats as off.
func (c *Config) BreakerSettings() circuitbreaker.Config {
	if !c.Breaker.Enabled {
		return circuitbreaker.Config{}
	}
	return circuitbreaker.Config{
		ErrorPct:       c.Breaker.ErrorPct,
		MinRequests:    c.Breaker.MinRequests,
		WindowDuration: c.Breaker.Window,
		OpenDuration:   c.Breaker.OpenDuration,
		HalfOpenProbes: c.Breaker.HalfOpenProbes,
	}
}

// APIClientConfig converts the api section
func (c *Config) APIClientConfig() apiclient.Config {
	return apiclient.Config{
		BaseURL: c.API.BaseURL,
		Timeout: c.API.Timeout,
		Headers: c.API.Headers,
	}
}

// TelemetrySettings converts the telemetry section
func (c *Config) TelemetrySettings(version string) observability.Config {
	return observability.Config{
		Enabled:        c.Telemetry.Enabled,
		Exporter:       c.Telemetry.Exporter,
		Endpoint:       c.Telemetry.Endpoint,
		ServiceName:    c.Telemetry.ServiceName,
		ServiceVersion: version,
		SampleRate:     c.Telemetry.SampleRate,
	}
}
