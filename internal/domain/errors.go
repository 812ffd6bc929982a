package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

var (
	// ErrUnsupportedQuery is returned by providers asked for a lookup shape they do not serve.
	ErrUnsupportedQuery = errors.New("query type not supported by provider")

	// ErrInvalidCoordinates marks a coordinate pair outside the WGS-84 range.
	ErrInvalidCoordinates = errors.New("coordinates out of range")
)

// ConfigurationError reports a provider identity that is not registered, or a
// provider that could not be built from the current settings.
type ConfigurationError struct {
	Identity Identity
	Valid    []Identity
	Reason   string
	Err      error
}

func (e *ConfigurationError) Error() string {
	valid := make([]string, len(e.Valid))
	for i, id := range e.Valid {
		valid[i] = string(id)
	}
	msg := fmt.Sprintf("geocoding provider %q: %s; valid providers are: %s",
		e.Identity, e.Reason, strings.Join(valid, ", "))
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// ErrorKind classifies provider failures.
type ErrorKind int

const (
	ErrorKindUnknown ErrorKind = iota
	ErrorKindRateLimit
	ErrorKindQuotaExceeded
	ErrorKindAuth
	ErrorKindTimeout
	ErrorKindInvalidRequest
	ErrorKindNetwork
	ErrorKindMalformed
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindRateLimit:
		return "rate_limit"
	case ErrorKindQuotaExceeded:
		return "quota_exceeded"
	case ErrorKindAuth:
		return "auth"
	case ErrorKindTimeout:
		return "timeout"
	case ErrorKindInvalidRequest:
		return "invalid_request"
	case ErrorKindNetwork:
		return "network"
	case ErrorKindMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// ProviderError is an upstream failure reported by a provider.
type ProviderError struct {
	Provider   Identity
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Provider, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err is a provider timeout.
func IsTimeout(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Kind == ErrorKindTimeout
}

// ClassifyHTTPStatus maps an upstream HTTP status to a ProviderError.
func ClassifyHTTPStatus(provider Identity, statusCode int, body string) *ProviderError {
	e := &ProviderError{Provider: provider, StatusCode: statusCode}
	switch statusCode {
	case http.StatusTooManyRequests:
		e.Kind, e.Message = ErrorKindRateLimit, "rate limit reached"
	case http.StatusUnauthorized:
		e.Kind, e.Message = ErrorKindAuth, "not authorized"
	case http.StatusForbidden:
		e.Kind, e.Message = ErrorKindQuotaExceeded, "quota exceeded or access denied"
	case http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity:
		e.Kind, e.Message = ErrorKindInvalidRequest, fmt.Sprintf("invalid request (status %d)", statusCode)
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		e.Kind, e.Message = ErrorKindNetwork, fmt.Sprintf("service unavailable (status %d)", statusCode)
	default:
		e.Kind, e.Message = ErrorKindUnknown, fmt.Sprintf("unexpected status %d", statusCode)
	}
	if body != "" {
		e.Message += ": " + body
	}
	return e
}

// CacheStoreError reports a cache backend failure. It is logged and counted,
// never returned from a search.
type CacheStoreError struct {
	Op  string
	Key string
	Err error
}

func (e *CacheStoreError) Error() string {
	return fmt.Sprintf("cache %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *CacheStoreError) Unwrap() error {
	return e.Err
}

// TransportError wraps a failed HTTP round trip, marking deadline and
// net.Error timeouts as ErrorKindTimeout.
func TransportError(provider Identity, err error) *ProviderError {
	kind := ErrorKindNetwork
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = ErrorKindTimeout
	}
	return &ProviderError{Provider: provider, Kind: kind, Message: "request failed", Err: err}
}
