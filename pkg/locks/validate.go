package locks

import (
	"errors"
	"fmt"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/lockgate/lockgate/pkg/gaterr"
	"github.com/lockgate/lockgate/pkg/verifier"
)

// ValidateConfig checks cfg against the registered verifiers: at least one
// enabled category, known and unique types, a valid fulfillment mode, and
// requirements each verifier accepts. Empty fulfillment is normalized to
// "all" in place.
func ValidateConfig(cfg *GatingConfig, registry *verifier.Registry) error {
	if len(cfg.Categories) == 0 {
		return gaterr.Configuration("categories", "at least one category is required")
	}
	seen := mapset.NewThreadUnsafeSet[string]()
	enabled := 0
	for i := range cfg.Categories {
		cat := &cfg.Categories[i]
		field := fmt.Sprintf("categories[%d]", i)
		cat.Type = strings.TrimSpace(cat.Type)
		if cat.Type == "" {
			return gaterr.Configuration(field+".type", "is required")
		}
		if !seen.Add(cat.Type) {
			return gaterr.Configuration(field+".type", fmt.Sprintf("duplicate category %q", cat.Type))
		}
		v, err := registry.Lookup(cat.Type)
		if err != nil {
			return err
		}
		f, err := verifier.ParseFulfillment(string(cat.Fulfillment))
		if err != nil {
			return &gaterr.ConfigurationError{Field: field + ".fulfillment", Err: err}
		}
		cat.Fulfillment = f
		if _, err := v.DecodeRequirements(cat.Requirements); err != nil {
			var ce *gaterr.ConfigurationError
			if errors.As(err, &ce) {
				ce.Field = field + "." + requirementsField(cat.Type, ce.Field)
				return ce
			}
			return &gaterr.ConfigurationError{Field: field + ".requirements", Err: err}
		}
		if cat.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		return gaterr.Configuration("categories", "at least one category must be enabled")
	}
	return nil
}

// requirementsField rebases a verifier-reported field path under
// "requirements".
func requirementsField(category, f string) string {
	f = strings.TrimPrefix(f, category+".")
	switch {
	case f == "":
		return "requirements"
	case f == "requirements", strings.HasPrefix(f, "requirements."):
		return f
	}
	return "requirements." + f
}
