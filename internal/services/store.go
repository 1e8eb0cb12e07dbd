package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/juju/clock"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/store-composite/internal/domain/catalog"
	domainevents "github.com/yungbote/store-composite/internal/domain/events"
	"github.com/yungbote/store-composite/internal/events"
	"github.com/yungbote/store-composite/internal/platform/apierr"
	"github.com/yungbote/store-composite/internal/platform/ctxutil"
	"github.com/yungbote/store-composite/internal/platform/logger"
	"github.com/yungbote/store-composite/internal/resilience"
)

var tracer = otel.Tracer("github.com/yungbote/store-composite/internal/services")

// CatalogReader is the read side of the three owning services.
type CatalogReader interface {
	GetProduct(ctx context.Context, productID, delay, faultPercent int) (*catalog.Product, error)
	GetRecommendations(ctx context.Context, productID int) ([]catalog.Recommendation, error)
	GetReviews(ctx context.Context, productID int) ([]catalog.Review, error)
}

type StoreService interface {
	GetAggregate(ctx context.Context, productID, delay, faultPercent int) (*catalog.ProductAggregate, error)
	CreateAggregate(ctx context.Context, auth ctxutil.AuthContext, body catalog.ProductAggregate) error
	DeleteAggregate(ctx context.Context, auth ctxutil.AuthContext, productID int) error
	CircuitBreakers() map[string]resilience.CircuitState
}

type StoreOptions struct {
	Catalog   CatalogReader
	Publisher events.Publisher
	Policy    *resilience.Policy
	Fallback  *FallbackProvider
	// Address is this instance's own service address.
	Address string
	Clock   clock.Clock
	Log     *logger.Logger
}

type storeService struct {
	catalog   CatalogReader
	publisher events.Publisher
	policy    *resilience.Policy
	fallback  *FallbackProvider
	address   string
	clock     clock.Clock
	log       *logger.Logger
}

func NewStoreService(opts StoreOptions) (StoreService, error) {
	if opts.Catalog == nil {
		return nil, errors.New("catalog reader required")
	}
	if opts.Publisher == nil {
		return nil, errors.New("event publisher required")
	}
	if opts.Policy == nil {
		return nil, errors.New("product resilience policy required")
	}
	if opts.Fallback == nil {
		opts.Fallback = NewFallbackProvider(opts.Address)
	}
	if opts.Clock == nil {
		opts.Clock = clock.WallClock
	}
	if opts.Log == nil {
		opts.Log = logger.Nop()
	}
	return &storeService{
		catalog:   opts.Catalog,
		publisher: opts.Publisher,
		policy:    opts.Policy,
		fallback:  opts.Fallback,
		address:   opts.Address,
		clock:     opts.Clock,
		log:       opts.Log.With("service", "StoreService"),
	}, nil
}

// GetAggregate reads the product, its recommendations and its reviews
// concurrently and waits for all three. A product failure fails the call;
// a secondary failure degrades to an empty list.
func (s *storeService) GetAggregate(ctx context.Context, productID, delay, faultPercent int) (*catalog.ProductAggregate, error) {
	if productID < 1 {
		return nil, apierr.InvalidInput("Invalid productId: %d", productID)
	}

	ctx, span := tracer.Start(ctx, "StoreService.GetAggregate", trace.WithAttributes(
		attribute.Int("product.id", productID),
		attribute.Int("test.delay", delay),
		attribute.Int("test.fault_percent", faultPercent),
	))
	defer span.End()

	var (
		g       errgroup.Group
		product *catalog.Product
		recs    []catalog.Recommendation
		revs    []catalog.Review
	)
	g.Go(func() error {
		p, err := s.getProduct(ctx, productID, delay, faultPercent)
		if err != nil {
			return err
		}
		product = p
		return nil
	})
	g.Go(func() error {
		r, err := s.catalog.GetRecommendations(ctx, productID)
		if err != nil {
			s.log.Warn("Recommendations unavailable, returning partial aggregate", "product_id", productID, "error", err)
			span.AddEvent("recommendations.degraded", trace.WithAttributes(attribute.String("error", err.Error())))
			return nil
		}
		recs = r
		return nil
	})
	g.Go(func() error {
		r, err := s.catalog.GetReviews(ctx, productID)
		if err != nil {
			s.log.Warn("Reviews unavailable, returning partial aggregate", "product_id", productID, "error", err)
			span.AddEvent("reviews.degraded", trace.WithAttributes(attribute.String("error", err.Error())))
			return nil
		}
		revs = r
		return nil
	})

	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.log.Warn("getAggregate failed", "product_id", productID, "error", err)
		return nil, err
	}

	agg := catalog.NewAggregate(*product, recs, revs, s.address)
	span.SetAttributes(
		attribute.Int("aggregate.recommendations", len(agg.Recommendations)),
		attribute.Int("aggregate.reviews", len(agg.Reviews)),
	)
	return &agg, nil
}

func (s *storeService) getProduct(ctx context.Context, productID, delay, faultPercent int) (*catalog.Product, error) {
	p, err := resilience.Execute(ctx, s.policy, func(ctx context.Context) (*catalog.Product, error) {
		return s.catalog.GetProduct(ctx, productID, delay, faultPercent)
	})
	if err == nil {
		return p, nil
	}
	if apierr.KindOf(err) != apierr.KindCircuitOpen {
		return nil, err
	}

	s.log.Warn("Creating a fallback product", "product_id", productID)
	trace.SpanFromContext(ctx).AddEvent("product.fallback", trace.WithAttributes(attribute.Int("product.id", productID)))
	return s.fallback.Product(productID)
}

// CreateAggregate emits one CREATE event for the product and one per
// recommendation and review, in body order. A failed emit does not stop the
// remaining ones; all failures are reported together.
func (s *storeService) CreateAggregate(ctx context.Context, auth ctxutil.AuthContext, body catalog.ProductAggregate) error {
	if err := s.authorizeWrite(auth); err != nil {
		return err
	}
	if body.ProductID < 1 {
		return apierr.InvalidInput("Invalid productId: %d", body.ProductID)
	}

	ctx, span := tracer.Start(ctx, "StoreService.CreateAggregate", trace.WithAttributes(
		attribute.Int("product.id", body.ProductID),
		attribute.Int("body.recommendations", len(body.Recommendations)),
		attribute.Int("body.reviews", len(body.Reviews)),
	))
	defer span.End()

	s.log.Debug("createAggregate: creating composite entities", "product_id", body.ProductID)
	s.logAuthorization(auth)

	now := s.clock.Now()
	var errs []error
	emit := func(ch events.Channel, ev domainevents.Envelope) {
		if err := s.publisher.Publish(ctx, ch, ev); err != nil {
			s.log.Warn("Publish failed", "channel", string(ch), "product_id", body.ProductID, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", ch, err))
		}
	}

	emit(events.ChannelProducts, domainevents.NewCreate(body.ProductID, body.Product(), now))
	for _, r := range body.Recommendations {
		emit(events.ChannelRecommendations, domainevents.NewCreate(body.ProductID, r.ForProduct(body.ProductID), now))
	}
	for _, r := range body.Reviews {
		emit(events.ChannelReviews, domainevents.NewCreate(body.ProductID, r.ForProduct(body.ProductID), now))
	}

	if err := errors.Join(errs...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		return apierr.Unexpected(0, fmt.Errorf("createAggregate for productId %d: %w", body.ProductID, err))
	}
	s.log.Debug("createAggregate: composite entities enqueued", "product_id", body.ProductID)
	return nil
}

// DeleteAggregate emits a DELETE event to each owning service. It does not
// check whether anything exists for productID.
func (s *storeService) DeleteAggregate(ctx context.Context, auth ctxutil.AuthContext, productID int) error {
	if err := s.authorizeWrite(auth); err != nil {
		return err
	}
	if productID < 1 {
		return apierr.InvalidInput("Invalid productId: %d", productID)
	}

	ctx, span := tracer.Start(ctx, "StoreService.DeleteAggregate", trace.WithAttributes(
		attribute.Int("product.id", productID),
	))
	defer span.End()

	s.log.Debug("deleteAggregate: deleting product aggregate", "product_id", productID)
	s.logAuthorization(auth)

	now := s.clock.Now()
	deletes := []struct {
		ch events.Channel
		ev domainevents.Envelope
	}{
		{events.ChannelProducts, domainevents.NewDelete[catalog.Product](productID, now)},
		{events.ChannelRecommendations, domainevents.NewDelete[catalog.Recommendation](productID, now)},
		{events.ChannelReviews, domainevents.NewDelete[catalog.Review](productID, now)},
	}
	var errs []error
	for _, d := range deletes {
		if err := s.publisher.Publish(ctx, d.ch, d.ev); err != nil {
			s.log.Warn("Publish failed", "channel", string(d.ch), "product_id", productID, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", d.ch, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		return apierr.Unexpected(0, fmt.Errorf("deleteAggregate for productId %d: %w", productID, err))
	}
	return nil
}

func (s *storeService) CircuitBreakers() map[string]resilience.CircuitState {
	return map[string]resilience.CircuitState{
		s.policy.Name(): s.policy.Breaker().Snapshot(),
	}
}

func (s *storeService) authorizeWrite(auth ctxutil.AuthContext) error {
	if !auth.HasScope(ctxutil.ScopeProductWrite) {
		return apierr.Forbidden("scope %s required", ctxutil.ScopeProductWrite)
	}
	return nil
}

func (s *storeService) logAuthorization(auth ctxutil.AuthContext) {
	s.log.Debug("Authorization info", "subject", auth.Subject, "scopes", auth.Scopes)
}
