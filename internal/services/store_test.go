package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/store-composite/internal/domain/catalog"
	domainevents "github.com/yungbote/store-composite/internal/domain/events"
	"github.com/yungbote/store-composite/internal/events"
	"github.com/yungbote/store-composite/internal/platform/apierr"
	"github.com/yungbote/store-composite/internal/platform/ctxutil"
	"github.com/yungbote/store-composite/internal/resilience"
)

const storeAddr = "store-1/10.0.0.1:7000"

var testEpoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeCatalog struct {
	productCalls atomic.Int32
	recCalls     atomic.Int32
	revCalls     atomic.Int32

	product   func(ctx context.Context, id int) (*catalog.Product, error)
	recs      func(ctx context.Context, id int) ([]catalog.Recommendation, error)
	revs      func(ctx context.Context, id int) ([]catalog.Review, error)
	lastDelay atomic.Int32
	lastFault atomic.Int32
}

func (f *fakeCatalog) GetProduct(ctx context.Context, id, delay, faultPercent int) (*catalog.Product, error) {
	f.productCalls.Add(1)
	f.lastDelay.Store(int32(delay))
	f.lastFault.Store(int32(faultPercent))
	if f.product == nil {
		return &catalog.Product{ProductID: id, Name: "name", Weight: 1, ServiceAddress: "product-1"}, nil
	}
	return f.product(ctx, id)
}

func (f *fakeCatalog) GetRecommendations(ctx context.Context, id int) ([]catalog.Recommendation, error) {
	f.recCalls.Add(1)
	if f.recs == nil {
		return nil, nil
	}
	return f.recs(ctx, id)
}

func (f *fakeCatalog) GetReviews(ctx context.Context, id int) ([]catalog.Review, error) {
	f.revCalls.Add(1)
	if f.revs == nil {
		return nil, nil
	}
	return f.revs(ctx, id)
}

func (f *fakeCatalog) calls() int32 {
	return f.productCalls.Load() + f.recCalls.Load() + f.revCalls.Load()
}

type failingPublisher struct {
	mu       sync.Mutex
	failOn   events.Channel
	attempts []events.Channel
}

func (p *failingPublisher) Publish(_ context.Context, ch events.Channel, _ domainevents.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts = append(p.attempts, ch)
	if ch == p.failOn {
		return errors.New("broker unavailable")
	}
	return nil
}

func (p *failingPublisher) Close() error { return nil }

func testResilience() resilience.Config {
	return resilience.Config{
		Timeout: 100 * time.Millisecond,
		Retry: resilience.RetryConfig{
			MaxAttempts: 2,
			InitialWait: time.Millisecond,
			Multiplier:  1,
			MaxWait:     time.Millisecond,
		},
		Breaker: resilience.BreakerConfig{
			SlidingWindowSize:        2,
			MinimumCalls:             2,
			FailureRateThreshold:     50,
			WaitDurationInOpenState:  10 * time.Second,
			PermittedCallsInHalfOpen: 1,
		},
	}
}

type harness struct {
	svc     StoreService
	catalog *fakeCatalog
	pub     *events.MemoryPublisher
	clock   *testclock.Clock
}

func newHarness(t *testing.T, fc *fakeCatalog) harness {
	t.Helper()
	clk := testclock.NewClock(testEpoch)
	policy, err := resilience.NewPolicy("product", testResilience(), clk, nil)
	require.NoError(t, err)
	pub := events.NewMemoryPublisher(nil)
	svc, err := NewStoreService(StoreOptions{
		Catalog:   fc,
		Publisher: pub,
		Policy:    policy,
		Fallback:  NewFallbackProvider(storeAddr),
		Address:   storeAddr,
		Clock:     clk,
	})
	require.NoError(t, err)
	return harness{svc: svc, catalog: fc, pub: pub, clock: clk}
}

func writer() ctxutil.AuthContext {
	return ctxutil.AuthContext{Subject: "writer", Scopes: []string{ctxutil.ScopeProductRead, ctxutil.ScopeProductWrite}}
}

func TestGetAggregateComposesAllThree(t *testing.T) {
	fc := &fakeCatalog{
		product: func(_ context.Context, id int) (*catalog.Product, error) {
			return &catalog.Product{ProductID: id, Name: "name", Weight: 1, ServiceAddress: "product-1"}, nil
		},
		recs: func(_ context.Context, id int) ([]catalog.Recommendation, error) {
			return []catalog.Recommendation{
				{ProductID: id, RecommendationID: 1, Author: "a", Rate: 1, Content: "c", ServiceAddress: "rec-1"},
				{ProductID: id, RecommendationID: 2, Author: "b", Rate: 2, Content: "d", ServiceAddress: "rec-1"},
			}, nil
		},
		revs: func(_ context.Context, id int) ([]catalog.Review, error) {
			return []catalog.Review{
				{ProductID: id, ReviewID: 1, Author: "a", Subject: "s", Content: "c", ServiceAddress: "rev-1"},
			}, nil
		},
	}
	h := newHarness(t, fc)

	agg, err := h.svc.GetAggregate(context.Background(), 1, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, agg.ProductID)
	assert.Equal(t, "name", agg.Name)
	require.Len(t, agg.Recommendations, 2)
	assert.Equal(t, 1, agg.Recommendations[0].RecommendationID)
	assert.Equal(t, 2, agg.Recommendations[1].RecommendationID)
	require.Len(t, agg.Reviews, 1)
	require.NotNil(t, agg.ServiceAddresses)
	assert.Equal(t, storeAddr, agg.ServiceAddresses.StoreService)
	assert.Equal(t, "product-1", agg.ServiceAddresses.ProductService)
	assert.Equal(t, "rec-1", agg.ServiceAddresses.RecommendationService)
	assert.Equal(t, "rev-1", agg.ServiceAddresses.ReviewService)
}

func TestGetAggregatePassesTestParameters(t *testing.T) {
	h := newHarness(t, &fakeCatalog{})
	_, err := h.svc.GetAggregate(context.Background(), 3, 20, 40)
	require.NoError(t, err)
	assert.EqualValues(t, 20, h.catalog.lastDelay.Load())
	assert.EqualValues(t, 40, h.catalog.lastFault.Load())
}

func TestGetAggregateEmptySecondaries(t *testing.T) {
	h := newHarness(t, &fakeCatalog{})

	agg, err := h.svc.GetAggregate(context.Background(), 113, 0, 0)
	require.NoError(t, err)
	assert.NotNil(t, agg.Recommendations)
	assert.Empty(t, agg.Recommendations)
	assert.NotNil(t, agg.Reviews)
	assert.Empty(t, agg.Reviews)
	assert.Empty(t, agg.ServiceAddresses.RecommendationService)

	raw, err := json.Marshal(agg)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"recommendations":[]`)
	assert.Contains(t, string(raw), `"reviews":[]`)
}

func TestInvalidProductIDMakesNoCalls(t *testing.T) {
	h := newHarness(t, &fakeCatalog{})
	ctx := context.Background()

	for _, id := range []int{0, -1} {
		_, err := h.svc.GetAggregate(ctx, id, 0, 0)
		assert.Equal(t, apierr.KindInvalidInput, apierr.KindOf(err))
		assert.EqualError(t, err, fmt.Sprintf("Invalid productId: %d", id))

		err = h.svc.DeleteAggregate(ctx, writer(), id)
		assert.Equal(t, apierr.KindInvalidInput, apierr.KindOf(err))

		err = h.svc.CreateAggregate(ctx, writer(), catalog.ProductAggregate{ProductID: id})
		assert.Equal(t, apierr.KindInvalidInput, apierr.KindOf(err))
	}

	assert.Zero(t, h.catalog.calls())
	for _, ch := range events.Channels {
		assert.Empty(t, h.pub.Messages(ch))
	}
}

func TestGetAggregateDegradesSecondaryFailures(t *testing.T) {
	fc := &fakeCatalog{
		recs: func(context.Context, int) ([]catalog.Recommendation, error) {
			return nil, apierr.Unexpected(http.StatusInternalServerError, errors.New("boom"))
		},
		revs: func(_ context.Context, id int) ([]catalog.Review, error) {
			return []catalog.Review{{ProductID: id, ReviewID: 1, ServiceAddress: "rev-1"}}, nil
		},
	}
	h := newHarness(t, fc)

	agg, err := h.svc.GetAggregate(context.Background(), 2, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, agg.Recommendations)
	assert.Len(t, agg.Reviews, 1)
	assert.Equal(t, resilience.StateClosed, h.svc.CircuitBreakers()["product"].State)
	assert.Zero(t, h.svc.CircuitBreakers()["product"].FailedCalls)
}

func TestGetAggregateProductNotFound(t *testing.T) {
	fc := &fakeCatalog{
		product: func(_ context.Context, id int) (*catalog.Product, error) {
			return nil, apierr.NotFound("No product found for productId: %d", id)
		},
	}
	h := newHarness(t, fc)

	_, err := h.svc.GetAggregate(context.Background(), 13, 0, 0)
	require.Error(t, err)
	assert.Equal(t, apierr.KindNotFound, apierr.KindOf(err))
	assert.EqualValues(t, 1, fc.productCalls.Load())
	assert.Equal(t, resilience.StateClosed, h.svc.CircuitBreakers()["product"].State)
}

func TestGetAggregateUsesFallbackWhileOpen(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)
	fc := &fakeCatalog{
		product: func(_ context.Context, id int) (*catalog.Product, error) {
			if failing.Load() {
				return nil, apierr.Unexpected(http.StatusInternalServerError, errors.New("Something went wrong"))
			}
			return &catalog.Product{ProductID: id, Name: "real", Weight: 9, ServiceAddress: "product-1"}, nil
		},
	}
	h := newHarness(t, fc)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := h.svc.GetAggregate(ctx, 1, 0, 100)
		require.Error(t, err)
		assert.Equal(t, apierr.KindUnexpected, apierr.KindOf(err))
	}
	assert.Equal(t, resilience.StateOpen, h.svc.CircuitBreakers()["product"].State)

	before := fc.productCalls.Load()
	agg, err := h.svc.GetAggregate(ctx, 1, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, before, fc.productCalls.Load())
	assert.Equal(t, "Fallback product1", agg.Name)
	assert.Equal(t, 1, agg.Weight)
	assert.Equal(t, storeAddr, agg.ServiceAddresses.ProductService)

	_, err = h.svc.GetAggregate(ctx, 14, 0, 0)
	require.Error(t, err)
	assert.Equal(t, apierr.KindNotFound, apierr.KindOf(err))
	assert.EqualError(t, err, "Product Id: 14 not found in fallback cache!")

	failing.Store(false)
	h.clock.Advance(10 * time.Second)
	assert.Equal(t, resilience.StateHalfOpen, h.svc.CircuitBreakers()["product"].State)

	agg, err = h.svc.GetAggregate(ctx, 1, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "real", agg.Name)
	assert.Equal(t, resilience.StateClosed, h.svc.CircuitBreakers()["product"].State)
}

func TestGetAggregateJoinsConcurrentCalls(t *testing.T) {
	var inFlight, peak atomic.Int32
	gate := make(chan struct{})
	track := func() {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		if n == 3 {
			close(gate)
		}
		<-gate
		inFlight.Add(-1)
	}
	fc := &fakeCatalog{
		product: func(_ context.Context, id int) (*catalog.Product, error) {
			track()
			return &catalog.Product{ProductID: id}, nil
		},
		recs: func(context.Context, int) ([]catalog.Recommendation, error) {
			track()
			return nil, nil
		},
		revs: func(context.Context, int) ([]catalog.Review, error) {
			track()
			return nil, nil
		},
	}
	h := newHarness(t, fc)

	_, err := h.svc.GetAggregate(context.Background(), 5, 0, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 3, peak.Load())
}

func TestCreateAggregateEmitsInOrder(t *testing.T) {
	h := newHarness(t, &fakeCatalog{})
	body := catalog.ProductAggregate{
		ProductID: 1,
		Name:      "n",
		Weight:    1,
		Recommendations: []catalog.RecommendationSummary{
			{RecommendationID: 1, Author: "a", Rate: 1, Content: "c"},
			{RecommendationID: 2, Author: "b", Rate: 2, Content: "d"},
		},
		Reviews: []catalog.ReviewSummary{
			{ReviewID: 1, Author: "a", Subject: "s", Content: "c"},
		},
	}

	require.NoError(t, h.svc.CreateAggregate(context.Background(), writer(), body))
	assert.Zero(t, h.catalog.calls())

	products := h.pub.Messages(events.ChannelProducts)
	require.Len(t, products, 1)
	var pe domainevents.Event[catalog.Product]
	require.NoError(t, json.Unmarshal(products[0].Payload, &pe))
	assert.True(t, pe.Equivalent(domainevents.NewCreate(1, catalog.Product{ProductID: 1, Name: "n", Weight: 1}, testEpoch)))
	assert.Equal(t, testEpoch.Format(domainevents.TimeLayout), pe.CreatedAt.Format(domainevents.TimeLayout))

	recs := h.pub.Messages(events.ChannelRecommendations)
	require.Len(t, recs, 2)
	for i, msg := range recs {
		var ev domainevents.Event[catalog.Recommendation]
		require.NoError(t, json.Unmarshal(msg.Payload, &ev))
		assert.Equal(t, domainevents.TypeCreate, ev.Type)
		assert.Equal(t, 1, ev.Key)
		require.NotNil(t, ev.Data)
		assert.Equal(t, i+1, ev.Data.RecommendationID)
		assert.Equal(t, 1, ev.Data.ProductID)
	}

	revs := h.pub.Messages(events.ChannelReviews)
	require.Len(t, revs, 1)
	var rv domainevents.Event[catalog.Review]
	require.NoError(t, json.Unmarshal(revs[0].Payload, &rv))
	assert.Equal(t, "s", rv.Data.Subject)
}

func TestCreateAggregateProductOnly(t *testing.T) {
	h := newHarness(t, &fakeCatalog{})
	require.NoError(t, h.svc.CreateAggregate(context.Background(), writer(), catalog.ProductAggregate{ProductID: 4, Name: "x"}))
	assert.Len(t, h.pub.Messages(events.ChannelProducts), 1)
	assert.Empty(t, h.pub.Messages(events.ChannelRecommendations))
	assert.Empty(t, h.pub.Messages(events.ChannelReviews))
}

func TestDeleteAggregateEmitsThreeDeletes(t *testing.T) {
	h := newHarness(t, &fakeCatalog{})

	require.NoError(t, h.svc.DeleteAggregate(context.Background(), writer(), 1))
	assert.Zero(t, h.catalog.calls())

	for _, ch := range events.Channels {
		msgs := h.pub.Messages(ch)
		require.Len(t, msgs, 1, string(ch))
		assert.Equal(t, domainevents.TypeDelete, msgs[0].Type)
		assert.Equal(t, 1, msgs[0].Key)
		assert.Contains(t, string(msgs[0].Payload), `"data":null`)
	}
}

func TestWritesRequireWriteScope(t *testing.T) {
	h := newHarness(t, &fakeCatalog{})
	reader := ctxutil.AuthContext{Subject: "reader", Scopes: []string{ctxutil.ScopeProductRead}}

	err := h.svc.CreateAggregate(context.Background(), reader, catalog.ProductAggregate{ProductID: 1})
	assert.Equal(t, apierr.KindForbidden, apierr.KindOf(err))
	err = h.svc.DeleteAggregate(context.Background(), reader, 1)
	assert.Equal(t, apierr.KindForbidden, apierr.KindOf(err))

	for _, ch := range events.Channels {
		assert.Empty(t, h.pub.Messages(ch))
	}
}

func TestWritesContinuePastPublishFailure(t *testing.T) {
	clk := testclock.NewClock(testEpoch)
	policy, err := resilience.NewPolicy("product", testResilience(), clk, nil)
	require.NoError(t, err)
	pub := &failingPublisher{failOn: events.ChannelRecommendations}
	svc, err := NewStoreService(StoreOptions{Catalog: &fakeCatalog{}, Publisher: pub, Policy: policy, Address: storeAddr, Clock: clk})
	require.NoError(t, err)

	err = svc.DeleteAggregate(context.Background(), writer(), 1)
	require.Error(t, err)
	assert.Equal(t, apierr.KindUnexpected, apierr.KindOf(err))
	assert.Equal(t, http.StatusInternalServerError, apierr.StatusOf(err))
	assert.Equal(t, []events.Channel{events.ChannelProducts, events.ChannelRecommendations, events.ChannelReviews}, pub.attempts)
}

func TestNewStoreServiceRequiresDependencies(t *testing.T) {
	_, err := NewStoreService(StoreOptions{})
	assert.Error(t, err)
}
