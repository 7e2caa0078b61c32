// Package challenge issues and verifies signed ownership challenges.
//
// A challenge is a human-readable message that embeds everything the server
// needs to check a later submission: the lock, the category, the context the
// user is acting in, the claimed address, a random nonce and the issuance
// time. The message is self-describing, so nothing is stored server side
// between issuance and submission.
package challenge

import (
	"bufio"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/lockgate/lockgate/pkg/scope"
)

// Message field labels.
const (
	fieldLock     = "Lock"
	fieldCategory = "Category"
	fieldContext  = "Context"
	fieldAddress  = "Address"
	fieldNonce    = "Nonce"
	fieldIssuedAt = "Issued At"
)

const nonceBytes = 16

// Challenge is a parsed challenge message.
type Challenge struct {
	Domain   string        `json:"domain"`
	Address  string        `json:"address"`
	LockID   string        `json:"lockId"`
	Category string        `json:"category"`
	Context  scope.Context `json:"context"`
	Nonce    string        `json:"nonce"`
	IssuedAt time.Time     `json:"issuedAt"`
	Message  string        `json:"message"`
}

// Request describes the challenge a client wants to sign.
type Request struct {
	Address  string
	LockID   string
	Category string
	Context  scope.Context
}

// Issuer creates challenges for one deployment domain.
type Issuer struct {
	domain string
	now    func() time.Time
	rand   io.Reader
}

// NewIssuer returns an Issuer that names domain in its messages.
func NewIssuer(domain string) *Issuer {
	if domain == "" {
		domain = "lockgate"
	}
	return &Issuer{domain: domain, now: time.Now, rand: rand.Reader}
}

// Domain returns the domain named in this issuer's messages.
func (i *Issuer) Domain() string { return i.domain }

// Create builds a fresh challenge for req.
func (i *Issuer) Create(req Request) (*Challenge, error) {
	if !common.IsHexAddress(req.Address) {
		return nil, fmt.Errorf("invalid address %q", req.Address)
	}
	if req.LockID == "" {
		return nil, fmt.Errorf("lock id is required")
	}
	if req.Category == "" {
		return nil, fmt.Errorf("category is required")
	}
	if err := req.Context.Validate(); err != nil {
		return nil, err
	}

	buf := make([]byte, nonceBytes)
	if _, err := io.ReadFull(i.rand, buf); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	c := &Challenge{
		Domain:   i.domain,
		Address:  common.HexToAddress(req.Address).Hex(),
		LockID:   req.LockID,
		Category: req.Category,
		Context:  req.Context,
		Nonce:    hex.EncodeToString(buf),
		IssuedAt: i.now().UTC().Truncate(time.Second),
	}
	c.Message = c.render()
	return c, nil
}

func (c *Challenge) render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s wants you to prove ownership of %s to unlock gated content.\n\n", c.Domain, c.Address)
	fmt.Fprintf(&b, "%s: %s\n", fieldLock, c.LockID)
	fmt.Fprintf(&b, "%s: %s\n", fieldCategory, c.Category)
	fmt.Fprintf(&b, "%s: %s\n", fieldContext, c.Context.String())
	fmt.Fprintf(&b, "%s: %s\n", fieldAddress, c.Address)
	fmt.Fprintf(&b, "%s: %s\n", fieldNonce, c.Nonce)
	fmt.Fprintf(&b, "%s: %s", fieldIssuedAt, c.IssuedAt.Format(time.RFC3339))
	return b.String()
}

// ParseMessage recovers a Challenge from the text a user signed.
func ParseMessage(msg string) (*Challenge, error) {
	header, body, ok := strings.Cut(msg, "\n\n")
	if !ok {
		return nil, fmt.Errorf("malformed challenge: missing header")
	}
	domain, _, ok := strings.Cut(header, " wants you to prove ownership of ")
	if !ok || domain == "" {
		return nil, fmt.Errorf("malformed challenge: unexpected header")
	}

	fields := make(map[string]string)
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, ": ")
		if !ok {
			return nil, fmt.Errorf("malformed challenge line %q", line)
		}
		if _, dup := fields[key]; dup {
			return nil, fmt.Errorf("malformed challenge: duplicate %s", key)
		}
		fields[key] = value
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read challenge: %w", err)
	}

	for _, k := range []string{fieldLock, fieldCategory, fieldContext, fieldAddress, fieldNonce, fieldIssuedAt} {
		if fields[k] == "" {
			return nil, fmt.Errorf("malformed challenge: missing %s", k)
		}
	}

	ctx, err := scope.Parse(fields[fieldContext])
	if err != nil {
		return nil, fmt.Errorf("malformed challenge: %w", err)
	}
	if !common.IsHexAddress(fields[fieldAddress]) {
		return nil, fmt.Errorf("malformed challenge: invalid address %q", fields[fieldAddress])
	}
	issuedAt, err := time.Parse(time.RFC3339, fields[fieldIssuedAt])
	if err != nil {
		return nil, fmt.Errorf("malformed challenge: issued at: %w", err)
	}

	return &Challenge{
		Domain:   domain,
		Address:  fields[fieldAddress],
		LockID:   fields[fieldLock],
		Category: fields[fieldCategory],
		Context:  ctx,
		Nonce:    fields[fieldNonce],
		IssuedAt: issuedAt,
		Message:  msg,
	}, nil
}
