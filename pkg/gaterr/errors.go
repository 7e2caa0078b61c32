// Package gaterr defines the error taxonomy shared by the gating engine.
//
// Every error that crosses the verification or decision boundary is one of
// the types below, so callers can classify failures with errors.As and map
// them to a stable code and HTTP status.
package gaterr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Stable error codes reported in API responses.
const (
	CodeConfiguration     = "configuration_error"
	CodeUnknownCategory   = "unknown_category"
	CodeChallengeMismatch = "challenge_mismatch"
	CodeRequirementNotMet = "requirement_not_met"
	CodeProvider          = "provider_error"
	CodeNotFound          = "not_found"
	CodeRateLimited       = "rate_limited"
	CodeConflict          = "conflict"
	CodeInternal          = "internal_error"
)

// Coded is implemented by every error in this package.
type Coded interface {
	error
	Code() string
	HTTPStatus() int
}

// ConfigurationError reports a malformed or semantically invalid lock
// configuration. Raised at create/edit time.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := "invalid lock configuration"
	if e.Field != "" {
		msg += " at " + e.Field
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error   { return e.Err }
func (e *ConfigurationError) Code() string    { return CodeConfiguration }
func (e *ConfigurationError) HTTPStatus() int { return http.StatusBadRequest }

// Configuration builds a ConfigurationError.
func Configuration(field, reason string) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: reason}
}

// UnknownCategoryError reports a category type with no registered verifier,
// or one that is not enabled on the lock being verified.
type UnknownCategoryError struct {
	Type   string
	Reason string
}

func (e *UnknownCategoryError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("unknown category %q: %s", e.Type, e.Reason)
	}
	return fmt.Sprintf("unknown category %q", e.Type)
}

func (e *UnknownCategoryError) Code() string    { return CodeUnknownCategory }
func (e *UnknownCategoryError) HTTPStatus() int { return http.StatusBadRequest }

// ChallengeMismatchError reports a signature that does not bind to the
// current context, lock, category or claimed address. It is a security
// event and is never retried.
type ChallengeMismatchError struct {
	Field    string
	Expected string
	Actual   string
	Err      error
}

func (e *ChallengeMismatchError) Error() string {
	var b strings.Builder
	b.WriteString("challenge mismatch")
	if e.Field != "" {
		b.WriteString(": " + e.Field)
		if e.Expected != "" || e.Actual != "" {
			fmt.Fprintf(&b, " (expected %q, got %q)", e.Expected, e.Actual)
		}
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *ChallengeMismatchError) Unwrap() error   { return e.Err }
func (e *ChallengeMismatchError) Code() string    { return CodeChallengeMismatch }
func (e *ChallengeMismatchError) HTTPStatus() int { return http.StatusUnauthorized }

// Shortfall describes one requirement that the address did not meet.
type Shortfall struct {
	Kind     string `json:"kind"`
	Key      string `json:"key,omitempty"`
	Required string `json:"required"`
	Actual   string `json:"actual"`
}

func (s Shortfall) String() string {
	if s.Key != "" {
		return fmt.Sprintf("%s %s: required %s, have %s", s.Kind, s.Key, s.Required, s.Actual)
	}
	return fmt.Sprintf("%s: required %s, have %s", s.Kind, s.Required, s.Actual)
}

// RequirementNotMetError reports a definite negative evaluation.
type RequirementNotMetError struct {
	Category   string
	Shortfalls []Shortfall
}

func (e *RequirementNotMetError) Error() string {
	if len(e.Shortfalls) == 0 {
		return fmt.Sprintf("requirements not met for %s", e.Category)
	}
	parts := make([]string, len(e.Shortfalls))
	for i, s := range e.Shortfalls {
		parts[i] = s.String()
	}
	return fmt.Sprintf("requirements not met for %s: %s", e.Category, strings.Join(parts, "; "))
}

func (e *RequirementNotMetError) Code() string    { return CodeRequirementNotMet }
func (e *RequirementNotMetError) HTTPStatus() int { return http.StatusForbidden }

// ProviderError reports a transient failure of an external data source
// (RPC timeout, upstream 5xx). Results carrying it must never be cached.
type ProviderError struct {
	Provider string
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s provider error during %s: %v", e.Provider, e.Op, e.Err)
	}
	return fmt.Sprintf("%s provider error: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error   { return e.Err }
func (e *ProviderError) Code() string    { return CodeProvider }
func (e *ProviderError) HTTPStatus() int { return http.StatusServiceUnavailable }

// Temporary reports that the caller may retry.
func (e *ProviderError) Temporary() bool { return true }

// Provider wraps err as a ProviderError. A nil err yields nil.
func Provider(provider, op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &ProviderError{Provider: provider, Op: op, Err: err}
}

// NotFoundError reports a missing lock, application or resource.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

func (e *NotFoundError) Code() string    { return CodeNotFound }
func (e *NotFoundError) HTTPStatus() int { return http.StatusNotFound }

// NotFound builds a NotFoundError.
func NotFound(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// RateLimitedError reports that the caller exceeded the submission budget.
type RateLimitedError struct {
	RetryAfterSeconds int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("too many verification attempts, retry in %ds", e.RetryAfterSeconds)
}

func (e *RateLimitedError) Code() string    { return CodeRateLimited }
func (e *RateLimitedError) HTTPStatus() int { return http.StatusTooManyRequests }

// ConflictError reports a write that clashes with existing state, such as
// a duplicate lock name or deleting a lock that is still applied.
type ConflictError struct {
	Resource string
	Reason   string
	Err      error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s conflict: %s", e.Resource, e.Reason)
}

func (e *ConflictError) Unwrap() error   { return e.Err }
func (e *ConflictError) Code() string    { return CodeConflict }
func (e *ConflictError) HTTPStatus() int { return http.StatusConflict }

// Code returns the stable code for err, or CodeInternal for unclassified errors.
func Code(err error) string {
	var c Coded
	if errors.As(err, &c) {
		return c.Code()
	}
	return CodeInternal
}

// HTTPStatus returns the HTTP status for err, or 500 for unclassified errors.
func HTTPStatus(err error) int {
	var c Coded
	if errors.As(err, &c) {
		return c.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// IsProvider reports whether err is (or wraps) a ProviderError.
func IsProvider(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsChallengeMismatch reports whether err is (or wraps) a ChallengeMismatchError.
func IsChallengeMismatch(err error) bool {
	var cm *ChallengeMismatchError
	return errors.As(err, &cm)
}
