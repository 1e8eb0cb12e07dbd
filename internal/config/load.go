package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/store-composite/internal/platform/envutil"
)

// UnmarshalYAML accepts "5s"-style strings or an integer number of seconds.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	s := strings.TrimSpace(node.Value)
	if s == "" || s == "null" || s == "~" {
		d.Duration = 0
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		d.Duration = time.Duration(n) * time.Second
		return nil
	}
	dd, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration must be a string like \"5s\" or an int seconds: %w", err)
	}
	d.Duration = dd
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

func defaultConfig() *Config {
	return &Config{
		Env: "development",
		HTTP: HTTPConfig{
			Addr:              ":7000",
			ReadHeaderTimeout: Duration{Duration: 5 * time.Second},
			IdleTimeout:       Duration{Duration: 2 * time.Minute},
			ShutdownTimeout:   Duration{Duration: 15 * time.Second},
			MaxRequestBytes:   1 << 20,
			CORSOrigins:       []string{"http://localhost:3000"},
		},
		Downstream: DownstreamConfig{
			ProductURL:        "http://product:8080",
			RecommendationURL: "http://recommendation:8080",
			ReviewURL:         "http://review:8080",
		},
		Resilience: ResilienceConfig{
			Timeout: Duration{Duration: 2 * time.Second},
			Retry: RetryConfig{
				MaxAttempts: 3,
				InitialWait: Duration{Duration: time.Second},
				Multiplier:  1,
				MaxWait:     Duration{Duration: 5 * time.Second},
			},
			Breaker: BreakerConfig{
				SlidingWindowSize:        5,
				MinimumCalls:             5,
				FailureRateThreshold:     50,
				WaitDurationInOpenState:  Duration{Duration: 10 * time.Second},
				PermittedCallsInHalfOpen: 3,
			},
		},
		Events: EventsConfig{
			Transport:    "memory",
			StreamPrefix: "store",
			MaxLen:       10000,
			Redis:        RedisConfig{Addr: "localhost:6379"},
			Journal:      JournalConfig{Enabled: false, Driver: "sqlite", DSN: "file:events.db"},
		},
		Auth: AuthConfig{Enabled: false},
		Tracing: TracingConfig{
			ServiceName: "store-composite",
			SampleRatio: 0.1,
		},
	}
}

// Load builds the config from defaults, an optional YAML file
// (STORE_CONFIG_PATH or ./config/config.yaml) and environment overrides.
func Load() (*Config, error) {
	cfg := defaultConfig()

	cfgPath := strings.TrimSpace(os.Getenv("STORE_CONFIG_PATH"))
	if cfgPath == "" {
		if wd, err := os.Getwd(); err == nil {
			p := filepath.Join(wd, "config", "config.yaml")
			if _, err := os.Stat(p); err == nil {
				cfgPath = p
			}
		}
	}
	if cfgPath != "" {
		b, err := os.ReadFile(cfgPath)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgPath, err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", cfgPath, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Env = envutil.String("LOG_MODE", cfg.Env)

	cfg.HTTP.Addr = envutil.String("STORE_HTTP_ADDR", cfg.HTTP.Addr)
	cfg.HTTP.ShutdownTimeout.Duration = envutil.Duration("STORE_HTTP_SHUTDOWN_TIMEOUT", cfg.HTTP.ShutdownTimeout.Duration)
	cfg.HTTP.MaxRequestBytes = int64(envutil.Int("STORE_HTTP_MAX_REQUEST_BYTES", int(cfg.HTTP.MaxRequestBytes)))
	cfg.HTTP.CORSOrigins = envutil.List("STORE_CORS_ORIGINS", cfg.HTTP.CORSOrigins)

	cfg.Downstream.ProductURL = envutil.String("PRODUCT_SERVICE_URL", cfg.Downstream.ProductURL)
	cfg.Downstream.RecommendationURL = envutil.String("RECOMMENDATION_SERVICE_URL", cfg.Downstream.RecommendationURL)
	cfg.Downstream.ReviewURL = envutil.String("REVIEW_SERVICE_URL", cfg.Downstream.ReviewURL)

	r := &cfg.Resilience
	r.Timeout.Duration = envutil.Duration("PRODUCT_TIMEOUT", r.Timeout.Duration)
	r.Retry.MaxAttempts = envutil.Int("PRODUCT_RETRY_MAX_ATTEMPTS", r.Retry.MaxAttempts)
	r.Retry.InitialWait.Duration = envutil.Duration("PRODUCT_RETRY_INITIAL_WAIT", r.Retry.InitialWait.Duration)
	r.Retry.Multiplier = envutil.Float("PRODUCT_RETRY_MULTIPLIER", r.Retry.Multiplier)
	r.Breaker.SlidingWindowSize = envutil.Int("PRODUCT_CB_SLIDING_WINDOW_SIZE", r.Breaker.SlidingWindowSize)
	r.Breaker.MinimumCalls = envutil.Int("PRODUCT_CB_MINIMUM_CALLS", r.Breaker.MinimumCalls)
	r.Breaker.FailureRateThreshold = envutil.Float("PRODUCT_CB_FAILURE_RATE_THRESHOLD", r.Breaker.FailureRateThreshold)
	r.Breaker.WaitDurationInOpenState.Duration = envutil.Duration("PRODUCT_CB_WAIT_IN_OPEN", r.Breaker.WaitDurationInOpenState.Duration)
	r.Breaker.PermittedCallsInHalfOpen = envutil.Int("PRODUCT_CB_PERMITTED_HALF_OPEN", r.Breaker.PermittedCallsInHalfOpen)

	e := &cfg.Events
	e.Transport = strings.ToLower(envutil.String("EVENTS_TRANSPORT", e.Transport))
	e.StreamPrefix = envutil.String("EVENTS_STREAM_PREFIX", e.StreamPrefix)
	e.Redis.Addr = envutil.String("REDIS_ADDR", e.Redis.Addr)
	e.Redis.Password = envutil.String("REDIS_PASSWORD", e.Redis.Password)
	e.Redis.DB = envutil.Int("REDIS_DB", e.Redis.DB)
	e.Journal.Enabled = envutil.Bool("EVENTS_JOURNAL_ENABLED", e.Journal.Enabled)
	e.Journal.Driver = strings.ToLower(envutil.String("EVENTS_JOURNAL_DRIVER", e.Journal.Driver))
	e.Journal.DSN = envutil.String("EVENTS_JOURNAL_DSN", e.Journal.DSN)

	cfg.Auth.Enabled = envutil.Bool("AUTH_ENABLED", cfg.Auth.Enabled)
	cfg.Auth.Secret = envutil.String("JWT_SECRET_KEY", cfg.Auth.Secret)
	cfg.Auth.Issuer = envutil.String("JWT_ISSUER", cfg.Auth.Issuer)
	cfg.Auth.Audience = envutil.String("JWT_AUDIENCE", cfg.Auth.Audience)

	t := &cfg.Tracing
	t.Enabled = envutil.Bool("OTEL_ENABLED", t.Enabled)
	t.ServiceName = envutil.String("OTEL_SERVICE_NAME", t.ServiceName)
	t.Version = envutil.String("SERVICE_VERSION", t.Version)
	t.SampleRatio = envutil.Float("OTEL_SAMPLER_RATIO", t.SampleRatio)
	t.Endpoint = envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", t.Endpoint)
	t.Headers = envutil.String("OTEL_EXPORTER_OTLP_HEADERS", t.Headers)
	t.Insecure = envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", t.Insecure)
}

func (c *Config) Validate() error {
	if c.Env == "" {
		c.Env = "development"
	}
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		return errors.New("http.addr is required")
	}
	if c.HTTP.MaxRequestBytes <= 0 {
		c.HTTP.MaxRequestBytes = 1 << 20
	}

	c.Downstream.ProductURL = strings.TrimRight(strings.TrimSpace(c.Downstream.ProductURL), "/")
	c.Downstream.RecommendationURL = strings.TrimRight(strings.TrimSpace(c.Downstream.RecommendationURL), "/")
	c.Downstream.ReviewURL = strings.TrimRight(strings.TrimSpace(c.Downstream.ReviewURL), "/")
	if c.Downstream.ProductURL == "" || c.Downstream.RecommendationURL == "" || c.Downstream.ReviewURL == "" {
		return errors.New("downstream product_url, recommendation_url and review_url are required")
	}

	r := c.Resilience
	if r.Timeout.Duration <= 0 {
		return fmt.Errorf("resilience.timeout must be positive, got %s", r.Timeout.Duration)
	}
	if r.Retry.MaxAttempts < 1 {
		return fmt.Errorf("resilience.retry.max_attempts must be >= 1, got %d", r.Retry.MaxAttempts)
	}
	if r.Retry.InitialWait.Duration < 0 {
		return errors.New("resilience.retry.initial_wait must not be negative")
	}
	if r.Retry.Multiplier < 1 {
		c.Resilience.Retry.Multiplier = 1
	}
	if r.Breaker.SlidingWindowSize < 1 {
		return fmt.Errorf("resilience.breaker.sliding_window_size must be >= 1, got %d", r.Breaker.SlidingWindowSize)
	}
	if r.Breaker.MinimumCalls < 1 || r.Breaker.MinimumCalls > r.Breaker.SlidingWindowSize {
		c.Resilience.Breaker.MinimumCalls = r.Breaker.SlidingWindowSize
	}
	if r.Breaker.FailureRateThreshold <= 0 || r.Breaker.FailureRateThreshold > 100 {
		return fmt.Errorf("resilience.breaker.failure_rate_threshold must be in (0,100], got %v", r.Breaker.FailureRateThreshold)
	}
	if r.Breaker.WaitDurationInOpenState.Duration <= 0 {
		return errors.New("resilience.breaker.wait_duration_in_open_state must be positive")
	}
	if r.Breaker.PermittedCallsInHalfOpen < 1 {
		return fmt.Errorf("resilience.breaker.permitted_calls_in_half_open must be >= 1, got %d", r.Breaker.PermittedCallsInHalfOpen)
	}

	switch c.Events.Transport {
	case "", "memory":
		c.Events.Transport = "memory"
	case "redis":
		if strings.TrimSpace(c.Events.Redis.Addr) == "" {
			return errors.New("events.redis.addr is required for the redis transport")
		}
	default:
		return fmt.Errorf("unknown events.transport %q", c.Events.Transport)
	}
	if strings.TrimSpace(c.Events.StreamPrefix) == "" {
		c.Events.StreamPrefix = "store"
	}
	if c.Events.Journal.Enabled {
		switch c.Events.Journal.Driver {
		case "sqlite", "postgres":
		default:
			return fmt.Errorf("unknown events.journal.driver %q", c.Events.Journal.Driver)
		}
		if strings.TrimSpace(c.Events.Journal.DSN) == "" {
			return errors.New("events.journal.dsn is required when the journal is enabled")
		}
	}

	if c.Auth.Enabled && strings.TrimSpace(c.Auth.Secret) == "" {
		return errors.New("auth.secret is required when auth is enabled")
	}

	if strings.TrimSpace(c.Tracing.ServiceName) == "" {
		c.Tracing.ServiceName = "store-composite"
	}
	if c.Tracing.SampleRatio < 0 {
		c.Tracing.SampleRatio = 0
	}
	if c.Tracing.SampleRatio > 1 {
		c.Tracing.SampleRatio = 1
	}
	return nil
}
