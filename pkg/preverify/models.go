package preverify

import (
	"time"

	"gorm.io/datatypes"

	"github.com/lockgate/lockgate/pkg/access"
	"github.com/lockgate/lockgate/pkg/scope"
)

// Stored statuses. Expired is never stored; it is derived at read time.
const (
	StatusNotStarted = string(access.StatusNotStarted)
	StatusPending    = string(access.StatusPending)
	StatusVerified   = string(access.StatusVerified)
)

// Payload is the evidence kept with a verification.
type Payload struct {
	Signature        string         `json:"signature,omitempty"`
	Message          string         `json:"message,omitempty"`
	Nonce            string         `json:"nonce,omitempty"`
	Result           map[string]any `json:"result,omitempty"`
	VerificationData map[string]any `json:"verificationData,omitempty"`
}

// PreVerification is the GORM model for one user's verification of one
// lock category in one context.
type PreVerification struct {
	ID           string                      `gorm:"primaryKey;column:id;type:varchar(36)"`
	UserID       string                      `gorm:"column:user_id;size:191;not null;uniqueIndex:idx_preverify_key,priority:1"`
	LockID       string                      `gorm:"column:lock_id;size:36;not null;uniqueIndex:idx_preverify_key,priority:2;index:idx_preverify_lock"`
	CategoryType string                      `gorm:"column:category_type;size:64;not null;uniqueIndex:idx_preverify_key,priority:3"`
	ContextType  string                      `gorm:"column:context_type;size:16;not null;uniqueIndex:idx_preverify_key,priority:4"`
	ContextID    string                      `gorm:"column:context_id;size:191;not null;uniqueIndex:idx_preverify_key,priority:5"`
	Status       string                      `gorm:"column:status;size:16;not null;index:idx_preverify_status"`
	Address      string                      `gorm:"column:address;size:64"`
	Payload      datatypes.JSONType[Payload] `gorm:"column:payload"`
	VerifiedAt   *time.Time                  `gorm:"column:verified_at"`
	ExpiresAt    *time.Time                  `gorm:"column:expires_at;index:idx_preverify_expires"`
	CreatedAt    time.Time                   `gorm:"column:created_at;not null"`
	UpdatedAt    time.Time                   `gorm:"column:updated_at;not null"`
}

// TableName returns the GORM table name.
func (PreVerification) TableName() string { return "pre_verifications" }

// Key returns the canonical key of p.
func (p *PreVerification) Key() Key {
	return Key{
		UserID:       p.UserID,
		LockID:       p.LockID,
		CategoryType: p.CategoryType,
		Context:      scope.Context{Type: scope.Type(p.ContextType), ID: p.ContextID},
	}
}

// Record converts p for the decision engine.
func (p *PreVerification) Record() access.Record {
	return access.Record{
		Category:   p.CategoryType,
		Status:     access.Status(p.Status),
		VerifiedAt: p.VerifiedAt,
		ExpiresAt:  p.ExpiresAt,
	}
}

// Records converts rows for the decision engine.
func Records(rows []PreVerification) []access.Record {
	out := make([]access.Record, len(rows))
	for i := range rows {
		out[i] = rows[i].Record()
	}
	return out
}

// Key identifies a verification: user, lock, category and the context
// scope it was performed in.
type Key struct {
	UserID       string
	LockID       string
	CategoryType string
	Context      scope.Context
}

// Grant is a successful verification to record.
type Grant struct {
	Key
	Address    string
	Payload    Payload
	VerifiedAt time.Time
	ExpiresAt  time.Time
}
