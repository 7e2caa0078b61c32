package gaterr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeAndStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   string
		status int
	}{
		{"configuration", Configuration("categories", "no enabled category"), CodeConfiguration, http.StatusBadRequest},
		{"unknown category", &UnknownCategoryError{Type: "solana"}, CodeUnknownCategory, http.StatusBadRequest},
		{"challenge mismatch", &ChallengeMismatchError{Field: "context"}, CodeChallengeMismatch, http.StatusUnauthorized},
		{"not met", &RequirementNotMetError{Category: "ethereum_profile"}, CodeRequirementNotMet, http.StatusForbidden},
		{"provider", Provider("rpc", "balance", context.DeadlineExceeded), CodeProvider, http.StatusServiceUnavailable},
		{"not found", NotFound("lock", "abc"), CodeNotFound, http.StatusNotFound},
		{"rate limited", &RateLimitedError{RetryAfterSeconds: 3}, CodeRateLimited, http.StatusTooManyRequests},
		{"conflict", &ConflictError{Resource: "lock", Reason: "in use"}, CodeConflict, http.StatusConflict},
		{"plain", errors.New("boom"), CodeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, Code(tt.err))
			assert.Equal(t, tt.status, HTTPStatus(tt.err))

			wrapped := fmt.Errorf("outer: %w", tt.err)
			assert.Equal(t, tt.code, Code(wrapped))
		})
	}
}

func TestProviderWrapping(t *testing.T) {
	assert.Nil(t, Provider("rpc", "call", nil))

	err := Provider("rpc", "balanceOf", context.DeadlineExceeded)
	assert.True(t, IsProvider(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Re-wrapping keeps the innermost provider.
	again := Provider("evm", "evaluate", err)
	assert.Same(t, err, again)

	var pe *ProviderError
	assert.True(t, errors.As(err, &pe))
	assert.True(t, pe.Temporary())
}

func TestRequirementNotMetMessage(t *testing.T) {
	err := &RequirementNotMetError{
		Category: "universal_profile",
		Shortfalls: []Shortfall{
			{Kind: "lyx_balance", Required: "100", Actual: "5"},
			{Kind: "lsp7", Key: "0xabc", Required: "1", Actual: "0"},
		},
	}
	assert.Contains(t, err.Error(), "lyx_balance: required 100, have 5")
	assert.Contains(t, err.Error(), "lsp7 0xabc: required 1, have 0")
}

func TestChallengeMismatchMessage(t *testing.T) {
	err := &ChallengeMismatchError{Field: "context", Expected: "post:1", Actual: "post:2"}
	assert.Equal(t, `challenge mismatch: context (expected "post:1", got "post:2")`, err.Error())
	assert.True(t, IsChallengeMismatch(fmt.Errorf("wrap: %w", err)))
	assert.False(t, IsNotFound(err))
}
