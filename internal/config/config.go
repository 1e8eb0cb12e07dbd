package config

import "time"

type Duration struct {
	Duration time.Duration
}

type HTTPConfig struct {
	Addr              string   `yaml:"addr"`
	ReadHeaderTimeout Duration `yaml:"read_header_timeout"`
	IdleTimeout       Duration `yaml:"idle_timeout"`
	ShutdownTimeout   Duration `yaml:"shutdown_timeout"`
	MaxRequestBytes   int64    `yaml:"max_request_bytes"`
	CORSOrigins       []string `yaml:"cors_origins"`
}

// DownstreamConfig holds the base URLs of the three owning services.
type DownstreamConfig struct {
	ProductURL        string `yaml:"product_url"`
	RecommendationURL string `yaml:"recommendation_url"`
	ReviewURL         string `yaml:"review_url"`
}

type RetryConfig struct {
	MaxAttempts int      `yaml:"max_attempts"`
	InitialWait Duration `yaml:"initial_wait"`
	Multiplier  float64  `yaml:"multiplier"`
	MaxWait     Duration `yaml:"max_wait"`
}

type BreakerConfig struct {
	SlidingWindowSize        int      `yaml:"sliding_window_size"`
	MinimumCalls             int      `yaml:"minimum_calls"`
	FailureRateThreshold     float64  `yaml:"failure_rate_threshold"`
	WaitDurationInOpenState  Duration `yaml:"wait_duration_in_open_state"`
	PermittedCallsInHalfOpen int      `yaml:"permitted_calls_in_half_open"`
}

type ResilienceConfig struct {
	Timeout Duration      `yaml:"timeout"`
	Retry   RetryConfig   `yaml:"retry"`
	Breaker BreakerConfig `yaml:"breaker"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Driver  string `yaml:"driver"`
	DSN     string `yaml:"dsn"`
}

type EventsConfig struct {
	// Transport is "memory" or "redis".
	Transport    string        `yaml:"transport"`
	StreamPrefix string        `yaml:"stream_prefix"`
	MaxLen       int64         `yaml:"max_len"`
	Redis        RedisConfig   `yaml:"redis"`
	Journal      JournalConfig `yaml:"journal"`
}

type AuthConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Secret   string `yaml:"secret"`
	Issuer   string `yaml:"issuer"`
	Audience string `yaml:"audience"`
}

type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"service_name"`
	Version     string  `yaml:"version"`
	SampleRatio float64 `yaml:"sample_ratio"`
	// Endpoint selects the OTLP/HTTP exporter; empty means stdout.
	Endpoint string `yaml:"endpoint"`
	// Headers is a comma-separated key=value list sent with every export.
	Headers  string `yaml:"headers"`
	Insecure bool   `yaml:"insecure"`
}

type Config struct {
	Env        string           `yaml:"env"`
	HTTP       HTTPConfig       `yaml:"http"`
	Downstream DownstreamConfig `yaml:"downstream"`
	Resilience ResilienceConfig `yaml:"resilience"`
	Events     EventsConfig     `yaml:"events"`
	Auth       AuthConfig       `yaml:"auth"`
	Tracing    TracingConfig    `yaml:"tracing"`
}
