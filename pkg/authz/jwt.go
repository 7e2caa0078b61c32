package authz

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the token shape accepted by JWTExtractor.
type Claims struct {
	Groups []string `json:"groups,omitempty"`
	jwt.RegisteredClaims
}

// JWTExtractor reads identities from HMAC-signed bearer tokens.
type JWTExtractor struct {
	secret []byte
	issuer string
}

// NewJWTExtractor returns an extractor for tokens signed with secret.
func NewJWTExtractor(secret, issuer string) *JWTExtractor {
	return &JWTExtractor{secret: []byte(secret), issuer: issuer}
}

// Extract returns the identity of the bearer token on r, or the anonymous
// identity when there is none.
func (e *JWTExtractor) Extract(r *http.Request) (Identity, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return Identity{User: Anonymous}, nil
	}
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return Identity{}, errors.New("authorization header must use the Bearer scheme")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}), jwt.WithExpirationRequired()}
	if e.issuer != "" {
		opts = append(opts, jwt.WithIssuer(e.issuer))
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(strings.TrimSpace(raw), &claims, func(*jwt.Token) (any, error) {
		return e.secret, nil
	}, opts...)
	if err != nil {
		return Identity{}, fmt.Errorf("invalid token: %w", err)
	}
	if claims.Subject == "" {
		return Identity{}, errors.New("invalid token: missing subject")
	}
	return Identity{User: claims.Subject, Groups: claims.Groups}, nil
}

// Sign issues a token for id; used by tooling and tests.
func (e *JWTExtractor) Sign(id Identity, claims jwt.RegisteredClaims) (string, error) {
	claims.Subject = id.User
	if claims.Issuer == "" {
		claims.Issuer = e.issuer
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{Groups: id.Groups, RegisteredClaims: claims}).SignedString(e.secret)
}
