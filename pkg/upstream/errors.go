package upstream

import (
	"errors"
	"fmt"
)

// ErrCircuitOpen is returned by CircuitBreaker.BeforeRequest while the
// breaker is open and the cooldown has not elapsed.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// ErrorKind classifies an upstream failure for the caller's status machine.
type ErrorKind string

const (
	KindUnauthorized ErrorKind = "unauthorized"  // 401
	KindForbidden    ErrorKind = "forbidden"     // 403
	KindNotFound     ErrorKind = "not_found"     // 404
	KindRateLimited  ErrorKind = "rate_limited"  // 429
	KindClientError  ErrorKind = "client_error"  // other 4xx
	KindServerError  ErrorKind = "server_error"  // 5xx
	KindTransport    ErrorKind = "transport"     // connection, DNS, TLS, timeout
)

// maxErrorBody bounds how much of a response body is preserved in errors.
const maxErrorBody = 500

// StatusError is a classified upstream failure. For HTTP failures the
// status code and a truncated body are preserved; transport failures carry
// the underlying error instead.
type StatusError struct {
	Kind       ErrorKind
	StatusCode int
	Body       string
	Attempts   int
	Err        error
}

func (e *StatusError) Error() string {
	if e.Kind == KindTransport {
		return fmt.Sprintf("upstream transport failure after %d attempt(s): %v", e.Attempts, e.Err)
	}
	if e.Body != "" {
		return fmt.Sprintf("upstream returned %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("upstream returned %d", e.StatusCode)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// ClassifyStatus converts a non-2xx HTTP response into a StatusError.
// Returns nil for 2xx codes.
func ClassifyStatus(statusCode int, body []byte) *StatusError {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var kind ErrorKind
	switch {
	case statusCode == 401:
		kind = KindUnauthorized
	case statusCode == 403:
		kind = KindForbidden
	case statusCode == 404:
		kind = KindNotFound
	case statusCode == 429:
		kind = KindRateLimited
	case statusCode >= 400 && statusCode < 500:
		kind = KindClientError
	default:
		kind = KindServerError
	}

	b := string(body)
	if len(b) > maxErrorBody {
		b = b[:maxErrorBody]
	}

	return &StatusError{Kind: kind, StatusCode: statusCode, Body: b}
}

// KindOf extracts the ErrorKind from an error chain, or "" if the error is
// not a StatusError.
func KindOf(err error) ErrorKind {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}
