package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/yungbote/store-composite/internal/platform/apierr"
)

// HTTPError is the non-2xx response of an owning service that has no
// dedicated failure kind.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "http error"
	}
	body := strings.TrimSpace(e.Body)
	if body == "" {
		body = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("http error: status=%d body=%s", e.StatusCode, body)
}

// errorInfo is the error body every service in the system returns.
type errorInfo struct {
	HTTPStatus string `json:"httpStatus"`
	Message    string `json:"message"`
	Path       string `json:"path"`
	Timestamp  string `json:"timestamp"`
}

func mapHTTPError(status int, raw []byte) error {
	switch status {
	case http.StatusNotFound:
		return apierr.NotFound("%s", errorMessage(status, raw))
	case http.StatusUnprocessableEntity:
		return apierr.InvalidInput("%s", errorMessage(status, raw))
	default:
		return apierr.Unexpected(status, &HTTPError{StatusCode: status, Body: strings.TrimSpace(string(raw))})
	}
}

func errorMessage(status int, raw []byte) string {
	var info errorInfo
	if err := json.Unmarshal(raw, &info); err == nil && strings.TrimSpace(info.Message) != "" {
		return strings.TrimSpace(info.Message)
	}
	if body := strings.TrimSpace(string(raw)); body != "" {
		return body
	}
	return http.StatusText(status)
}

// transportError keeps context errors visible to callers so that a deadline
// can be told apart from a refused connection.
func transportError(ctx context.Context, u string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("GET %s: %w", u, ctxErr)
	}
	return apierr.Unexpected(http.StatusServiceUnavailable, fmt.Errorf("GET %s: %w", u, err))
}
