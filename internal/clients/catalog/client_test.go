package catalog

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yungbote/store-composite/internal/platform/apierr"
	"github.com/yungbote/store-composite/internal/platform/ctxutil"
)

type roundTripperFunc func(req *http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func newTestClient(t *testing.T, rt roundTripperFunc) *Client {
	t.Helper()
	c, err := New(Options{
		ProductURL:        "http://product/",
		RecommendationURL: "http://recommendation",
		ReviewURL:         "http://review",
		HTTPClient:        &http.Client{Transport: rt},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestGetProductForwardsTestControls(t *testing.T) {
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		if req.URL.Host != "product" || req.URL.Path != "/products/1" {
			t.Fatalf("url: got=%s", req.URL)
		}
		q := req.URL.Query()
		if q.Get("delay") != "3" || q.Get("faultPercent") != "40" {
			t.Fatalf("query: got=%s", req.URL.RawQuery)
		}
		return jsonResponse(http.StatusOK, `{"productId":1,"name":"name","weight":1,"serviceAddress":"p/1.2.3.4:80"}`), nil
	})

	p, err := c.GetProduct(context.Background(), 1, 3, 40)
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if p.ProductID != 1 || p.Name != "name" || p.Weight != 1 || p.ServiceAddress != "p/1.2.3.4:80" {
		t.Fatalf("product: got=%+v", p)
	}
}

func TestRequestIDForwardedDownstream(t *testing.T) {
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		if got := req.Header.Get("X-Request-Id"); got != "req-9" {
			t.Fatalf("X-Request-Id: want=req-9 got=%q", got)
		}
		return jsonResponse(http.StatusOK, `[]`), nil
	})
	ctx := ctxutil.WithRequestScope(context.Background(), &ctxutil.RequestScope{RequestID: "req-9", ProductID: "1"})
	if _, err := c.GetReviews(ctx, 1); err != nil {
		t.Fatalf("GetReviews: %v", err)
	}
}

func TestGetRecommendationsKeepsOrder(t *testing.T) {
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/recommendations" || req.URL.Query().Get("productId") != "5" {
			t.Fatalf("url: got=%s", req.URL)
		}
		return jsonResponse(http.StatusOK, `[{"productId":5,"recommendationId":2},{"productId":5,"recommendationId":1}]`), nil
	})

	recs, err := c.GetRecommendations(context.Background(), 5)
	if err != nil {
		t.Fatalf("GetRecommendations: %v", err)
	}
	if len(recs) != 2 || recs[0].RecommendationID != 2 || recs[1].RecommendationID != 1 {
		t.Fatalf("order: got=%+v", recs)
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		kind    apierr.Kind
		message string
	}{
		{"not found", http.StatusNotFound, `{"httpStatus":"NOT_FOUND","message":"No product found for productId: 13","path":"/products/13"}`, apierr.KindNotFound, "No product found for productId: 13"},
		{"unprocessable", http.StatusUnprocessableEntity, `{"httpStatus":"UNPROCESSABLE_ENTITY","message":"Invalid productId: -1"}`, apierr.KindInvalidInput, "Invalid productId: -1"},
		{"unprocessable plain body", http.StatusUnprocessableEntity, `bad`, apierr.KindInvalidInput, "bad"},
		{"server error", http.StatusInternalServerError, `{"message":"Something went wrong"}`, apierr.KindUnexpected, "status=500"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(*http.Request) (*http.Response, error) {
				return jsonResponse(tc.status, tc.body), nil
			})
			_, err := c.GetProduct(context.Background(), 13, 0, 0)
			if err == nil {
				t.Fatalf("expected error")
			}
			if got := apierr.KindOf(err); got != tc.kind {
				t.Fatalf("kind: want=%q got=%q", tc.kind, got)
			}
			if !strings.Contains(err.Error(), tc.message) {
				t.Fatalf("message: want substring %q got=%q", tc.message, err.Error())
			}
			if tc.kind == apierr.KindUnexpected && apierr.StatusOf(err) != tc.status {
				t.Fatalf("status: want=%d got=%d", tc.status, apierr.StatusOf(err))
			}
		})
	}
}

func TestTransportErrorIsTransient(t *testing.T) {
	c := newTestClient(t, func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})
	_, err := c.GetReviews(context.Background(), 1)
	if !apierr.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if apierr.StatusOf(err) != http.StatusServiceUnavailable {
		t.Fatalf("status: want=503 got=%d", apierr.StatusOf(err))
	}
}

func TestMalformedBodyIsNotTransient(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	c, err := New(Options{ProductURL: srv.URL, RecommendationURL: srv.URL, ReviewURL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = c.GetProduct(context.Background(), 1, 0, 0)
	if err == nil {
		t.Fatalf("expected decode error")
	}
	if apierr.IsTransient(err) {
		t.Fatalf("malformed body must not be transient: %v", err)
	}
	if got := apierr.StatusOf(err); got != http.StatusBadGateway {
		t.Fatalf("status: want=%d got=%d", http.StatusBadGateway, got)
	}
	if ae, ok := apierr.As(err); !ok || ae.Code != apierr.CodeMalformedResponse {
		t.Fatalf("code: want=%s got=%v", apierr.CodeMalformedResponse, err)
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("hits: want=1 got=%d", got)
	}
}

func TestDeadlineSurfacesContextError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c, err := New(Options{ProductURL: srv.URL, RecommendationURL: srv.URL, ReviewURL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = c.GetProduct(ctx, 1, 0, 0)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want deadline exceeded, got %v", err)
	}
}

func TestNewRequiresURLs(t *testing.T) {
	if _, err := New(Options{ProductURL: "http://p"}); err == nil {
		t.Fatalf("expected error for missing URLs")
	}
}
