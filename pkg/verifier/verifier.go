// Package verifier defines the category verifier abstraction and the
// registry that maps category types to their verifiers.
//
// Each verifier owns one category type, the shape of that category's
// requirements, and the logic that evaluates an address against them.
// Verifiers register with an explicitly constructed Registry that is
// injected wherever category logic is needed.
package verifier

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/lockgate/lockgate/pkg/challenge"
)

// Fulfillment selects how requirements within a category combine.
type Fulfillment string

const (
	FulfillAll Fulfillment = "all"
	FulfillAny Fulfillment = "any"
)

// ParseFulfillment parses a fulfillment mode. An empty string means all.
func ParseFulfillment(s string) (Fulfillment, error) {
	switch Fulfillment(s) {
	case "":
		return FulfillAll, nil
	case FulfillAll, FulfillAny:
		return Fulfillment(s), nil
	}
	return "", fmt.Errorf("invalid fulfillment %q: must be %q or %q", s, FulfillAll, FulfillAny)
}

// Requirements is the decoded, verifier-specific requirement set of one
// category. Concrete types live with their verifier.
type Requirements interface {
	CategoryType() string
}

// Metadata describes a verifier for discovery endpoints.
type Metadata struct {
	Type             string   `json:"type"`
	Name             string   `json:"name"`
	Description      string   `json:"description"`
	RequirementKinds []string `json:"requirementKinds"`
	// DefaultRequirements is the empty requirement set, a template for
	// lock editors. Filled in by Registry.List.
	DefaultRequirements json.RawMessage `json:"defaultRequirements,omitempty"`
}

// Verifier evaluates one category type.
type Verifier interface {
	// Type returns the category type this verifier owns.
	Type() string

	// Metadata returns display information.
	Metadata() Metadata

	// DefaultRequirements returns an empty requirement set.
	DefaultRequirements() Requirements

	// DecodeRequirements decodes and validates the wire form of the
	// requirement set.
	DecodeRequirements(raw json.RawMessage) (Requirements, error)

	// ValidateRequirements checks a decoded requirement set.
	ValidateRequirements(req Requirements) error

	// Evaluate checks address against req. It never panics and never
	// returns a Go error: failures are reported in Result.Err.
	Evaluate(ctx context.Context, address common.Address, req Requirements, fulfillment Fulfillment) Result
}

// SignatureCheckerProvider is an optional interface for verifiers whose
// addresses cannot be checked with plain ECDSA recovery, such as smart
// contract accounts.
type SignatureCheckerProvider interface {
	SignatureChecker() challenge.SignatureChecker
}

// SignatureCheckerFor returns the checker v provides, or ECDSA recovery.
func SignatureCheckerFor(v Verifier) challenge.SignatureChecker {
	if p, ok := v.(SignatureCheckerProvider); ok {
		if c := p.SignatureChecker(); c != nil {
			return c
		}
	}
	return challenge.ECDSAChecker{}
}
