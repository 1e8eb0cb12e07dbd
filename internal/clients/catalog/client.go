package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/yungbote/store-composite/internal/domain/catalog"
	"github.com/yungbote/store-composite/internal/platform/apierr"
	"github.com/yungbote/store-composite/internal/platform/ctxutil"
	"github.com/yungbote/store-composite/internal/platform/logger"
)

const (
	maxBodyBytes    = 1 << 20
	requestIDHeader = "X-Request-Id"
)

type Options struct {
	ProductURL        string
	RecommendationURL string
	ReviewURL         string

	HTTPClient *http.Client
	Log        *logger.Logger
}

// Client reads product, recommendation and review data from the owning
// services. It does not retry and enforces no timeout of its own.
type Client struct {
	productURL        string
	recommendationURL string
	reviewURL         string

	httpClient *http.Client
	log        *logger.Logger
}

func New(opts Options) (*Client, error) {
	productURL := strings.TrimRight(strings.TrimSpace(opts.ProductURL), "/")
	recommendationURL := strings.TrimRight(strings.TrimSpace(opts.RecommendationURL), "/")
	reviewURL := strings.TrimRight(strings.TrimSpace(opts.ReviewURL), "/")
	if productURL == "" || recommendationURL == "" || reviewURL == "" {
		return nil, errors.New("product, recommendation and review base URLs required")
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	log := opts.Log
	if log == nil {
		log = logger.Nop()
	}

	return &Client{
		productURL:        productURL,
		recommendationURL: recommendationURL,
		reviewURL:         reviewURL,
		httpClient:        hc,
		log:               log.With("service", "CatalogClient"),
	}, nil
}

// GetProduct forwards delay and faultPercent to the product service untouched.
func (c *Client) GetProduct(ctx context.Context, productID, delay, faultPercent int) (*catalog.Product, error) {
	params := url.Values{}
	params.Set("delay", strconv.Itoa(delay))
	params.Set("faultPercent", strconv.Itoa(faultPercent))

	var out catalog.Product
	if err := c.get(ctx, c.productURL, "/products/"+strconv.Itoa(productID), params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetRecommendations(ctx context.Context, productID int) ([]catalog.Recommendation, error) {
	params := url.Values{}
	params.Set("productId", strconv.Itoa(productID))

	var out []catalog.Recommendation
	if err := c.get(ctx, c.recommendationURL, "/recommendations", params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetReviews(ctx context.Context, productID int) ([]catalog.Review, error) {
	params := url.Values{}
	params.Set("productId", strconv.Itoa(productID))

	var out []catalog.Review
	if err := c.get(ctx, c.reviewURL, "/reviews", params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, baseURL, path string, params url.Values, out any) error {
	u := baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	c.log.Debug("Calling downstream", "url", u)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return apierr.MalformedResponse(fmt.Errorf("build request %s: %w", u, err))
	}
	req.Header.Set("Accept", "application/json")
	if rs := ctxutil.RequestScopeFrom(ctx); rs != nil && rs.RequestID != "" {
		req.Header.Set(requestIDHeader, rs.RequestID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(ctx, u, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return transportError(ctx, u, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		herr := mapHTTPError(resp.StatusCode, raw)
		if resp.StatusCode != http.StatusNotFound && resp.StatusCode != http.StatusUnprocessableEntity {
			c.log.Warn("Unexpected downstream status", "url", u, "status", resp.StatusCode, "body", truncate(string(raw), 512))
		}
		return herr
	}
	if out == nil || len(strings.TrimSpace(string(raw))) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apierr.MalformedResponse(fmt.Errorf("decode %s: %w", u, err))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
