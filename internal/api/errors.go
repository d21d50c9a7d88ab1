package api

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an API failure
type Kind int

// API failure kinds
const (
	KindNetwork Kind = iota + 1
	KindStatus
	KindDecode
	KindRejected
	KindUnauthorized
	KindNotFound
	KindQuotaExhausted
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindStatus:
		return "status"
	case KindDecode:
		return "decode"
	case KindRejected:
		return "rejected"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	case KindQuotaExhausted:
		return "quota_exhausted"
	default:
		return "unknown"
	}
}

// Sentinels matched by errors.Is against an *Error of the corresponding kind
var (
	ErrUnauthorized   = errors.New("authentication required")
	ErrNotFound       = errors.New("not found")
	ErrQuotaExhausted = errors.New("contact request quota exhausted")
)

// Error represents a structured error from the API client
type Error struct {
	Kind       Kind
	StatusCode int
	Retriable  bool
	// Message is the server-provided explanation, if any
	Message string
	Err     error
}

func (e *Error) Error() string {
	detail := e.Message
	if detail == "" && e.Err != nil {
		detail = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("API error (status %d): %s", e.StatusCode, detail)
	}
	return fmt.Sprintf("API error: %s", detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Kind == KindUnauthorized
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrQuotaExhausted:
		return e.Kind == KindQuotaExhausted
	}
	return false
}

// KindOf reports the kind of err, or 0 when err is not an *Error
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return 0
}

// isRetriableStatusCode determines if an HTTP status code should trigger a retry
func isRetriableStatusCode(statusCode int) bool {
	return statusCode == http.StatusServiceUnavailable ||
		statusCode == http.StatusTooManyRequests ||
		statusCode == http.StatusRequestTimeout ||
		statusCode >= 500
}

func statusError(statusCode int, message string) *Error {
	e := &Error{
		Kind:       KindStatus,
		StatusCode: statusCode,
		Retriable:  isRetriableStatusCode(statusCode),
		Message:    message,
		Err:        fmt.Errorf("unexpected status code %d", statusCode),
	}
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		e.Kind = KindUnauthorized
	case http.StatusNotFound:
		e.Kind = KindNotFound
	}
	return e
}
