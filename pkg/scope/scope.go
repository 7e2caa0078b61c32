// Package scope identifies where a verification applies: a single post or
// a whole board.
package scope

import (
	"fmt"
	"strings"
)

// Type is the kind of resource a verification is scoped to.
type Type string

const (
	Post  Type = "post"
	Board Type = "board"
)

// Valid reports whether t is a known scope type.
func (t Type) Valid() bool {
	return t == Post || t == Board
}

// Context is the scope a verification is performed in.
type Context struct {
	Type Type   `json:"type"`
	ID   string `json:"id"`
}

// String renders the context as "type:id".
func (c Context) String() string {
	return string(c.Type) + ":" + c.ID
}

// Validate checks that the context names a known type and a non-empty id.
func (c Context) Validate() error {
	if !c.Type.Valid() {
		return fmt.Errorf("invalid context type %q: must be %q or %q", c.Type, Post, Board)
	}
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("context id is required")
	}
	return nil
}

// Parse parses a "type:id" string.
func Parse(s string) (Context, error) {
	typ, id, ok := strings.Cut(s, ":")
	if !ok {
		return Context{}, fmt.Errorf("invalid context %q: expected type:id", s)
	}
	c := Context{Type: Type(typ), ID: id}
	if err := c.Validate(); err != nil {
		return Context{}, err
	}
	return c, nil
}
