// Package access computes whether a user currently satisfies a lock.
//
// Decide is a pure function of the lock's categories, the user's recorded
// verifications and the current time. Expired verifications are treated as
// absent at read time; nothing needs to be swept for a decision to be
// correct.
package access

import (
	"fmt"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
)

// Status is the derived verification state of one category.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusPending    Status = "pending"
	StatusVerified   Status = "verified"
	StatusExpired    Status = "expired"
)

// Category is a category configured on a lock.
type Category struct {
	Type    string
	Enabled bool
}

// Record is a stored verification for one category.
type Record struct {
	Category   string
	Status     Status
	VerifiedAt *time.Time
	ExpiresAt  *time.Time
}

// Input is everything Decide looks at.
type Input struct {
	Categories []Category
	RequireAll bool
	Records    []Record
	Now        time.Time
}

// CategoryStatus is the per-category part of a decision.
type CategoryStatus struct {
	Type       string     `json:"type"`
	Status     Status     `json:"verificationStatus"`
	VerifiedAt *time.Time `json:"verifiedAt,omitempty"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
}

// Decision is the outcome of Decide.
type Decision struct {
	CanAccess  bool             `json:"canAccess"`
	RequireAll bool             `json:"requireAll"`
	Total      int              `json:"totalCategories"`
	Verified   int              `json:"verifiedCategories"`
	Categories []CategoryStatus `json:"categories"`
	ExpiresAt  *time.Time       `json:"expiresAt,omitempty"`
	Message    string           `json:"message"`
}

// DeriveStatus returns the effective status of rec at now. A verified
// record whose expiry is not strictly in the future is expired.
func DeriveStatus(rec Record, now time.Time) Status {
	switch rec.Status {
	case StatusVerified:
		if rec.ExpiresAt == nil || !rec.ExpiresAt.After(now) {
			return StatusExpired
		}
		return StatusVerified
	case StatusPending:
		return StatusPending
	}
	return StatusNotStarted
}

// rank orders statuses so the most useful record wins when a category has
// several.
func rank(s Status) int {
	switch s {
	case StatusVerified:
		return 3
	case StatusPending:
		return 2
	case StatusExpired:
		return 1
	}
	return 0
}

// Decide computes the access decision for in.
//
// Required categories are the enabled ones. Under RequireAll every required
// category needs a live verification; otherwise one is enough. A lock with
// no required category grants access. The decision expires with the first
// verification to lapse under RequireAll, or the last one otherwise.
func Decide(in Input) Decision {
	required := mapset.NewSet[string]()
	var order []string
	for _, c := range in.Categories {
		if c.Enabled && required.Add(c.Type) {
			order = append(order, c.Type)
		}
	}

	best := make(map[string]CategoryStatus, len(order))
	for _, rec := range in.Records {
		if !required.Contains(rec.Category) {
			continue
		}
		cs := CategoryStatus{Type: rec.Category, Status: DeriveStatus(rec, in.Now)}
		if cs.Status == StatusVerified || cs.Status == StatusExpired {
			cs.VerifiedAt, cs.ExpiresAt = rec.VerifiedAt, rec.ExpiresAt
		}
		prev, seen := best[rec.Category]
		if !seen || rank(cs.Status) > rank(prev.Status) ||
			(cs.Status == StatusVerified && prev.Status == StatusVerified && cs.ExpiresAt.After(*prev.ExpiresAt)) {
			best[rec.Category] = cs
		}
	}

	verified := mapset.NewSet[string]()
	d := Decision{RequireAll: in.RequireAll, Total: required.Cardinality()}
	d.Categories = make([]CategoryStatus, 0, len(order))
	for _, typ := range order {
		cs, ok := best[typ]
		if !ok {
			cs = CategoryStatus{Type: typ, Status: StatusNotStarted}
		}
		if cs.Status == StatusVerified {
			verified.Add(typ)
			d.ExpiresAt = pickExpiry(d.ExpiresAt, cs.ExpiresAt, in.RequireAll)
		}
		d.Categories = append(d.Categories, cs)
	}
	d.Verified = verified.Intersect(required).Cardinality()

	switch {
	case d.Total == 0:
		d.CanAccess = true
	case in.RequireAll:
		d.CanAccess = d.Verified == d.Total
	default:
		d.CanAccess = d.Verified >= 1
	}
	if !d.CanAccess || d.Total == 0 {
		d.ExpiresAt = nil
	}
	d.Message = message(d)
	return d
}

func pickExpiry(cur, next *time.Time, earliest bool) *time.Time {
	if next == nil {
		return cur
	}
	if cur == nil {
		t := *next
		return &t
	}
	if (earliest && next.Before(*cur)) || (!earliest && next.After(*cur)) {
		t := *next
		return &t
	}
	return cur
}

func message(d Decision) string {
	if d.Total == 0 {
		return "No verification required"
	}
	mode := "any one category required"
	if d.RequireAll {
		mode = "all categories required"
	}
	verdict := "access denied"
	if d.CanAccess {
		verdict = "access granted"
	}
	return fmt.Sprintf("Verified %d/%d categories (%s): %s", d.Verified, d.Total, mode, verdict)
}
