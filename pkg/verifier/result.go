package verifier

import (
	"errors"

	"github.com/lockgate/lockgate/pkg/gaterr"
)

// ItemResult is the outcome of a single requirement.
type ItemResult struct {
	Kind     string `json:"kind"`
	Key      string `json:"key,omitempty"`
	Required string `json:"required"`
	Actual   string `json:"actual,omitempty"`
	Met      bool   `json:"met"`
	Err      error  `json:"-"`
}

// Result is the outcome of evaluating one category.
type Result struct {
	Valid  bool           `json:"valid"`
	Items  []ItemResult   `json:"items,omitempty"`
	Detail map[string]any `json:"detail,omitempty"`
	Err    error          `json:"-"`
}

// Failed builds an invalid Result carrying err.
func Failed(err error) Result {
	return Result{Valid: false, Err: err}
}

// Combine folds per-requirement outcomes under a fulfillment mode.
//
// Under all, a definite failure wins over a provider failure: a shortfall
// is certain regardless of what the unreachable source would have said.
// Under any, a single success wins; if nothing succeeded and something
// could not be checked, the result is a provider failure so it is not
// cached as a negative. A category with no requirements is valid.
func Combine(category string, mode Fulfillment, items []ItemResult) Result {
	res := Result{Valid: false, Items: items}
	if len(items) == 0 {
		res.Valid = true
		return res
	}

	var shortfalls []gaterr.Shortfall
	var providerErrs []error
	met := 0
	for _, it := range items {
		switch {
		case it.Err != nil:
			providerErrs = append(providerErrs, it.Err)
		case it.Met:
			met++
		default:
			shortfalls = append(shortfalls, gaterr.Shortfall{
				Kind:     it.Kind,
				Key:      it.Key,
				Required: it.Required,
				Actual:   it.Actual,
			})
		}
	}

	if mode == FulfillAny {
		if met > 0 {
			res.Valid = true
			return res
		}
	} else {
		if len(shortfalls) > 0 {
			res.Err = &gaterr.RequirementNotMetError{Category: category, Shortfalls: shortfalls}
			return res
		}
		if len(providerErrs) == 0 {
			res.Valid = true
			return res
		}
	}

	if len(providerErrs) > 0 {
		res.Err = gaterr.Provider(category, "evaluate", errors.Join(providerErrs...))
		return res
	}
	res.Err = &gaterr.RequirementNotMetError{Category: category, Shortfalls: shortfalls}
	return res
}
