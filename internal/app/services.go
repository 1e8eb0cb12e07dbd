package app

import (
	"fmt"

	"github.com/juju/clock"

	catalogclient "github.com/yungbote/store-composite/internal/clients/catalog"
	"github.com/yungbote/store-composite/internal/config"
	"github.com/yungbote/store-composite/internal/events"
	"github.com/yungbote/store-composite/internal/platform/logger"
	"github.com/yungbote/store-composite/internal/platform/serviceaddr"
	"github.com/yungbote/store-composite/internal/resilience"
	"github.com/yungbote/store-composite/internal/services"
)

type Services struct {
	Catalog   *catalogclient.Client
	Product   *resilience.Policy
	Publisher events.Publisher
	Store     services.StoreService
}

func resilienceConfig(cfg config.ResilienceConfig) resilience.Config {
	return resilience.Config{
		Timeout: cfg.Timeout.Duration,
		Retry: resilience.RetryConfig{
			MaxAttempts: cfg.Retry.MaxAttempts,
			InitialWait: cfg.Retry.InitialWait.Duration,
			Multiplier:  cfg.Retry.Multiplier,
			MaxWait:     cfg.Retry.MaxWait.Duration,
		},
		Breaker: resilience.BreakerConfig{
			SlidingWindowSize:        cfg.Breaker.SlidingWindowSize,
			MinimumCalls:             cfg.Breaker.MinimumCalls,
			FailureRateThreshold:     cfg.Breaker.FailureRateThreshold,
			WaitDurationInOpenState:  cfg.Breaker.WaitDurationInOpenState.Duration,
			PermittedCallsInHalfOpen: cfg.Breaker.PermittedCallsInHalfOpen,
		},
	}
}

func wireServices(log *logger.Logger, cfg *config.Config, pub events.Publisher, clk clock.Clock) (Services, error) {
	client, err := catalogclient.New(catalogclient.Options{
		ProductURL:        cfg.Downstream.ProductURL,
		RecommendationURL: cfg.Downstream.RecommendationURL,
		ReviewURL:         cfg.Downstream.ReviewURL,
		Log:               log,
	})
	if err != nil {
		return Services{}, fmt.Errorf("init catalog client: %w", err)
	}

	policy, err := resilience.NewPolicy("product", resilienceConfig(cfg.Resilience), clk, log)
	if err != nil {
		return Services{}, err
	}

	address := serviceaddr.Get()
	store, err := services.NewStoreService(services.StoreOptions{
		Catalog:   client,
		Publisher: pub,
		Policy:    policy,
		Fallback:  services.NewFallbackProvider(address),
		Address:   address,
		Clock:     clk,
		Log:       log,
	})
	if err != nil {
		return Services{}, fmt.Errorf("init store service: %w", err)
	}

	return Services{
		Catalog:   client,
		Product:   policy,
		Publisher: pub,
		Store:     store,
	}, nil
}
