package verifier

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/lockgate/lockgate/pkg/gaterr"
)

// Registry maps category types to verifiers. The zero value is not usable;
// construct with NewRegistry.
type Registry struct {
	mu        sync.RWMutex
	verifiers map[string]Verifier
}

// NewRegistry returns a registry holding vs.
func NewRegistry(vs ...Verifier) (*Registry, error) {
	r := &Registry{verifiers: make(map[string]Verifier)}
	for _, v := range vs {
		if err := r.Register(v); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds v. Registering the same type twice is an error.
func (r *Registry) Register(v Verifier) error {
	if v == nil || v.Type() == "" {
		return fmt.Errorf("verifier must have a type")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.verifiers[v.Type()]; exists {
		return fmt.Errorf("verifier %q already registered", v.Type())
	}
	r.verifiers[v.Type()] = v
	return nil
}

// Get returns the verifier for typ.
func (r *Registry) Get(typ string) (Verifier, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.verifiers[typ]
	return v, ok
}

// Lookup is Get returning *gaterr.UnknownCategoryError for unknown types.
func (r *Registry) Lookup(typ string) (Verifier, error) {
	v, ok := r.Get(typ)
	if !ok {
		return nil, &gaterr.UnknownCategoryError{Type: typ, Reason: "no verifier registered"}
	}
	return v, nil
}

// List returns metadata for all registered verifiers, sorted by type,
// each with its verifier's default requirements.
func (r *Registry) List() []Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Metadata, 0, len(r.verifiers))
	for _, v := range r.verifiers {
		md := v.Metadata()
		if raw, err := json.Marshal(v.DefaultRequirements()); err == nil {
			md.DefaultRequirements = raw
		}
		out = append(out, md)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// Decode decodes raw with the verifier for typ.
func (r *Registry) Decode(typ string, raw json.RawMessage) (Requirements, error) {
	v, err := r.Lookup(typ)
	if err != nil {
		return nil, err
	}
	return v.DecodeRequirements(raw)
}
