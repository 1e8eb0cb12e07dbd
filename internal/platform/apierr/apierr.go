package apierr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure for retry, breaker and response purposes.
type Kind string

const (
	KindInvalidInput Kind = "invalid_input"
	KindNotFound     Kind = "not_found"
	KindTransient    Kind = "transient"
	KindCircuitOpen  Kind = "circuit_open"
	KindUnexpected   Kind = "unexpected"
	KindBadRequest   Kind = "bad_request"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
)

type Error struct {
	Status int
	Code   string
	Kind   Kind
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Kind: kindForStatus(status), Err: err}
}

func InvalidInput(format string, args ...any) *Error {
	return &Error{Status: http.StatusUnprocessableEntity, Code: "invalid_input", Kind: KindInvalidInput, Err: fmt.Errorf(format, args...)}
}

func NotFound(format string, args ...any) *Error {
	return &Error{Status: http.StatusNotFound, Code: "not_found", Kind: KindNotFound, Err: fmt.Errorf(format, args...)}
}

func BadRequest(format string, args ...any) *Error {
	return &Error{Status: http.StatusBadRequest, Code: "bad_request", Kind: KindBadRequest, Err: fmt.Errorf(format, args...)}
}

func Unauthorized(format string, args ...any) *Error {
	return &Error{Status: http.StatusUnauthorized, Code: "unauthorized", Kind: KindUnauthorized, Err: fmt.Errorf(format, args...)}
}

func Forbidden(format string, args ...any) *Error {
	return &Error{Status: http.StatusForbidden, Code: "forbidden", Kind: KindForbidden, Err: fmt.Errorf(format, args...)}
}

// Timeout marks an attempt that did not complete within its deadline.
func Timeout(service string, err error) *Error {
	return &Error{
		Status: http.StatusGatewayTimeout,
		Code:   "timeout",
		Kind:   KindTransient,
		Err:    fmt.Errorf("%s call timed out: %w", service, err),
	}
}

// CircuitOpen is returned without contacting the backend.
func CircuitOpen(service string) *Error {
	return &Error{
		Status: http.StatusServiceUnavailable,
		Code:   "circuit_open",
		Kind:   KindCircuitOpen,
		Err:    fmt.Errorf("service %s is currently unavailable (circuit breaker open)", service),
	}
}

// Unexpected wraps a failure that has no dedicated kind. status is the
// upstream status when there was one.
func Unexpected(status int, err error) *Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return &Error{Status: status, Code: "unexpected", Kind: KindUnexpected, Err: err}
}

// MalformedResponse marks a backend answer that arrived but could not be
// understood. It is never retried.
func MalformedResponse(err error) *Error {
	return &Error{Status: http.StatusBadGateway, Code: CodeMalformedResponse, Kind: KindUnexpected, Err: err}
}

const CodeMalformedResponse = "malformed_response"

func kindForStatus(status int) Kind {
	switch status {
	case http.StatusBadRequest:
		return KindBadRequest
	case http.StatusUnauthorized:
		return KindUnauthorized
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusUnprocessableEntity:
		return KindInvalidInput
	default:
		return KindUnexpected
	}
}

func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) && ae != nil {
		return ae, true
	}
	return nil, false
}

func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if ae, ok := As(err); ok {
		if ae.Kind != "" {
			return ae.Kind
		}
		return kindForStatus(ae.Status)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	return KindUnexpected
}

func StatusOf(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if ae, ok := As(err); ok && ae.Status != 0 {
		return ae.Status
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// IsTransient reports whether err is worth retrying: timeouts and
// unexpected failures carrying a 5xx status from the backend. Unclassified
// errors and malformed responses are not.
func IsTransient(err error) bool {
	switch KindOf(err) {
	case KindTransient:
		return true
	case KindUnexpected:
		ae, ok := As(err)
		if !ok || ae.Code == CodeMalformedResponse {
			return false
		}
		return ae.Status >= http.StatusInternalServerError
	default:
		return false
	}
}

// IsDefinitive reports whether the backend gave a final answer about the
// request itself rather than failing to produce one.
func IsDefinitive(err error) bool {
	switch KindOf(err) {
	case KindNotFound, KindInvalidInput:
		return true
	default:
		return false
	}
}
