package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Error codes shared across the session, normalizer and orchestrator.
// Every session failure maps to exactly one of these.
const (
	CodeResourceUnavailable  = "ResourceUnavailable"
	CodeAuthenticationFailed = "AuthenticationFailed"
	CodeNavigationFailed     = "NavigationFailed"
	CodeFormFillFailed       = "FormFillFailed"
	CodeResultTimeout        = "ResultTimeout"
	CodeElementNotFound      = "ElementNotFound"
	CodePriceParseError      = "PriceParseError"
	CodeStoreUnavailable     = "StoreUnavailable"
)

// ResourceUnavailableError means no automation context could be allocated.
// Retryable at the orchestrator's discretion, never within a session.
type ResourceUnavailableError struct {
	Reason string
}

func (e *ResourceUnavailableError) Error() string {
	return fmt.Sprintf("automation context unavailable: %s", e.Reason)
}

// AuthenticationError means neither the persisted session nor fresh
// credentials yielded an authenticated indicator in time.
type AuthenticationError struct {
	Provider ProviderID
	Cause    error
}

func (e *AuthenticationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("authentication failed for %s: %v", e.Provider, e.Cause)
	}
	return fmt.Sprintf("authentication failed for %s", e.Provider)
}

func (e *AuthenticationError) Unwrap() error { return e.Cause }

// NavigationError means the target surface's identifying marker never
// appeared.
type NavigationError struct {
	Marker string
	Cause  error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigation failed: marker %q not reached: %v", e.Marker, e.Cause)
}

func (e *NavigationError) Unwrap() error { return e.Cause }

// FormFillError names the first field whose locator could not be resolved.
type FormFillError struct {
	Field string
	Cause error
}

func (e *FormFillError) Error() string {
	return fmt.Sprintf("form fill failed at field %q: %v", e.Field, e.Cause)
}

func (e *FormFillError) Unwrap() error { return e.Cause }

// ResultTimeoutError means the results marker did not appear within the
// branch-specific deadline.
type ResultTimeoutError struct {
	Waited time.Duration
}

func (e *ResultTimeoutError) Error() string {
	return fmt.Sprintf("result did not appear within %s", e.Waited)
}

// ElementNotFoundError lists every candidate descriptor that was tried.
type ElementNotFoundError struct {
	Tried []string
}

func (e *ElementNotFoundError) Error() string {
	return fmt.Sprintf("element not found, tried [%s]", strings.Join(e.Tried, ", "))
}

// PriceParseError flags a price string the normalizer could not interpret.
// A malformed price must never silently become zero.
type PriceParseError struct {
	Raw string
}

func (e *PriceParseError) Error() string {
	return fmt.Sprintf("cannot parse price %q", e.Raw)
}

// StoreUnavailableError wraps a persistence failure. Always non-fatal to
// the in-memory aggregate.
type StoreUnavailableError struct {
	Cause error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("offer store unavailable: %v", e.Cause)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Cause }

// NotFoundError is returned by GetStatus for an unknown request id.
type NotFoundError struct {
	RequestID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("request %s not found", e.RequestID)
}

// ErrInvalidSecret is returned by the TOTP generator for non-base32 input.
var ErrInvalidSecret = errors.New("invalid base32 secret")

// ErrorCode maps an error to its taxonomy code; unknown errors report as
// their plain message with an empty code.
func ErrorCode(err error) string {
	var (
		ru *ResourceUnavailableError
		au *AuthenticationError
		na *NavigationError
		ff *FormFillError
		rt *ResultTimeoutError
		en *ElementNotFoundError
		pp *PriceParseError
		su *StoreUnavailableError
	)
	switch {
	case errors.As(err, &ru):
		return CodeResourceUnavailable
	case errors.As(err, &au):
		return CodeAuthenticationFailed
	case errors.As(err, &na):
		return CodeNavigationFailed
	case errors.As(err, &ff):
		return CodeFormFillFailed
	case errors.As(err, &rt):
		return CodeResultTimeout
	case errors.As(err, &en):
		return CodeElementNotFound
	case errors.As(err, &pp):
		return CodePriceParseError
	case errors.As(err, &su):
		return CodeStoreUnavailable
	}
	return ""
}
