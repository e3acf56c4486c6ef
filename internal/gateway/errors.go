package gateway

import (
	"errors"
	"fmt"
)

// ErrInvalidResponse marks a 2xx response whose body lacks a required field.
var ErrInvalidResponse = errors.New("invalid gateway response")

// APIError surfaces non-successful HTTP responses from the gateway.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("qpay %s: status=%d body=%s", e.Op, e.StatusCode, e.Body)
}

func (e *APIError) UpstreamStatus() int {
	return e.StatusCode
}

// AuthError reports a failure to obtain a bearer token.
type AuthError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("qpay auth failed: status=%d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("qpay auth failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

func (e *AuthError) UpstreamStatus() int {
	return e.StatusCode
}

// DecodeError wraps a response body that could not be parsed.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode qpay %s response: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func (e *DecodeError) DecodeFailure() bool {
	return true
}

// StatusAndBody extracts upstream status and body from err when it carries them.
func StatusAndBody(err error) (int, string) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode, apiErr.Body
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.StatusCode, authErr.Body
	}
	return 0, ""
}
