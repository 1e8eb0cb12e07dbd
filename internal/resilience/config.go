package resilience

import (
	"errors"
	"fmt"
	"time"
)

type RetryConfig struct {
	// MaxAttempts counts the first call.
	MaxAttempts int
	InitialWait time.Duration
	Multiplier  float64
	MaxWait     time.Duration
}

type BreakerConfig struct {
	SlidingWindowSize int
	// MinimumCalls is how many outcomes the window needs before the failure
	// rate is evaluated.
	MinimumCalls int
	// FailureRateThreshold is a percentage; the breaker opens at or above it.
	FailureRateThreshold     float64
	WaitDurationInOpenState  time.Duration
	PermittedCallsInHalfOpen int
}

type Config struct {
	Timeout time.Duration
	Retry   RetryConfig
	Breaker BreakerConfig
}

func DefaultConfig() Config {
	return Config{
		Timeout: 2 * time.Second,
		Retry: RetryConfig{
			MaxAttempts: 3,
			InitialWait: time.Second,
			Multiplier:  1,
			MaxWait:     5 * time.Second,
		},
		Breaker: DefaultBreakerConfig(),
	}
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		SlidingWindowSize:        5,
		MinimumCalls:             5,
		FailureRateThreshold:     50,
		WaitDurationInOpenState:  10 * time.Second,
		PermittedCallsInHalfOpen: 3,
	}
}

func (c BreakerConfig) validate() error {
	if c.SlidingWindowSize < 1 {
		return fmt.Errorf("sliding window size must be >= 1, got %d", c.SlidingWindowSize)
	}
	if c.FailureRateThreshold <= 0 || c.FailureRateThreshold > 100 {
		return fmt.Errorf("failure rate threshold must be in (0,100], got %v", c.FailureRateThreshold)
	}
	if c.WaitDurationInOpenState <= 0 {
		return errors.New("wait duration in open state must be positive")
	}
	if c.PermittedCallsInHalfOpen < 1 {
		return fmt.Errorf("permitted calls in half-open must be >= 1, got %d", c.PermittedCallsInHalfOpen)
	}
	return nil
}

func (c Config) validate() error {
	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry max attempts must be >= 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.InitialWait < 0 {
		return errors.New("retry initial wait must not be negative")
	}
	return c.Breaker.validate()
}
