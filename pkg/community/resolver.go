package community

import (
	"fmt"
	"net/http"
	"regexp"
)

const maxIDLen = 64

var idRe = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9_-]*[A-Za-z0-9])?$`)

// QueryParam and Header name where a community id is read from.
const (
	QueryParam = "communityId"
	Header     = "X-Community-ID"
)

// Resolver resolves the community of an HTTP request.
type Resolver interface {
	Resolve(r *http.Request) (string, error)
}

// SingleResolver always returns DefaultID.
type SingleResolver struct{}

// Resolve returns DefaultID.
func (SingleResolver) Resolve(_ *http.Request) (string, error) {
	return DefaultID, nil
}

// HeaderResolver reads the community from the query parameter, falling
// back to the X-Community-ID header. The id is required.
type HeaderResolver struct{}

// Resolve extracts and validates the community id.
func (HeaderResolver) Resolve(r *http.Request) (string, error) {
	id := r.URL.Query().Get(QueryParam)
	if id == "" {
		id = r.Header.Get(Header)
	}
	if id == "" {
		return "", fmt.Errorf("community is required (use ?%s= query param or %s header)", QueryParam, Header)
	}
	if err := ValidateID(id); err != nil {
		return "", err
	}
	return id, nil
}

// ValidateID checks that id is 1-64 characters of letters, digits, '-'
// or '_', starting and ending with a letter or digit.
func ValidateID(id string) error {
	if len(id) > maxIDLen {
		return fmt.Errorf("community id %q exceeds maximum length of %d characters", id, maxIDLen)
	}
	if !idRe.MatchString(id) {
		return fmt.Errorf("community id %q is invalid", id)
	}
	return nil
}
