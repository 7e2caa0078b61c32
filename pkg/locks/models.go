// Package locks is the lock registry: reusable gating policies scoped to a
// community, and their application to posts and boards.
package locks

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/lockgate/lockgate/pkg/access"
	"github.com/lockgate/lockgate/pkg/scope"
	"github.com/lockgate/lockgate/pkg/verifier"
)

// GatingCategory is one verification category of a lock. Requirements are
// owned by the category's verifier and kept in wire form.
type GatingCategory struct {
	Type         string               `json:"type"`
	Enabled      bool                 `json:"enabled"`
	Fulfillment  verifier.Fulfillment `json:"fulfillment,omitempty"`
	Requirements json.RawMessage      `json:"requirements,omitempty"`
}

// GatingConfig is the lock configuration document. An absent requireAll
// means any one category is enough.
type GatingConfig struct {
	Categories []GatingCategory `json:"categories"`
	RequireAll bool             `json:"requireAll"`
}

// Category returns the category of type typ.
func (c GatingConfig) Category(typ string) (GatingCategory, bool) {
	for _, cat := range c.Categories {
		if cat.Type == typ {
			return cat, true
		}
	}
	return GatingCategory{}, false
}

// AccessCategories converts the categories for the decision engine.
func (c GatingConfig) AccessCategories() []access.Category {
	out := make([]access.Category, len(c.Categories))
	for i, cat := range c.Categories {
		out[i] = access.Category{Type: cat.Type, Enabled: cat.Enabled}
	}
	return out
}

// Lock is the GORM model for a gating policy.
type Lock struct {
	ID           string                           `gorm:"primaryKey;column:id;type:varchar(36)"`
	CommunityID  string                           `gorm:"column:community_id;size:64;not null;uniqueIndex:idx_lock_community_name,priority:1"`
	CreatorID    string                           `gorm:"column:creator_id;size:191;not null;index:idx_lock_creator"`
	Name         string                           `gorm:"column:name;size:255;not null;uniqueIndex:idx_lock_community_name,priority:2"`
	Description  string                           `gorm:"column:description;type:text"`
	Icon         string                           `gorm:"column:icon;size:255"`
	Color        string                           `gorm:"column:color;size:32"`
	GatingConfig datatypes.JSONType[GatingConfig] `gorm:"column:gating_config"`
	IsTemplate   bool                             `gorm:"column:is_template;not null"`
	IsPublic     bool                             `gorm:"column:is_public;not null"`
	UsageCount   int64                            `gorm:"column:usage_count;not null"`
	CreatedAt    time.Time                        `gorm:"column:created_at;not null"`
	UpdatedAt    time.Time                        `gorm:"column:updated_at;not null"`
}

// TableName returns the GORM table name.
func (Lock) TableName() string { return "locks" }

// Config returns the decoded gating configuration.
func (l *Lock) Config() GatingConfig { return l.GatingConfig.Data() }

// LockApplication records that a post or board is gated by a lock.
// A resource references at most one lock.
type LockApplication struct {
	ID           string `gorm:"primaryKey;column:id;type:varchar(36)"`
	LockID       string `gorm:"column:lock_id;size:36;not null;index:idx_lockapp_lock"`
	CommunityID  string `gorm:"column:community_id;size:64;not null;index:idx_lockapp_community"`
	ResourceType string `gorm:"column:resource_type;size:16;not null;uniqueIndex:idx_lockapp_resource,priority:1"`
	ResourceID   string `gorm:"column:resource_id;size:191;not null;uniqueIndex:idx_lockapp_resource,priority:2"`
	RequireAll   bool   `gorm:"column:require_all;not null"`
	// VerificationDurationMinutes overrides the board verification
	// lifetime; 0 uses the policy default. Ignored for posts.
	VerificationDurationMinutes int       `gorm:"column:verification_duration_minutes;not null"`
	AppliedBy                   string    `gorm:"column:applied_by;size:191"`
	CreatedAt                   time.Time `gorm:"column:created_at;not null"`
	UpdatedAt                   time.Time `gorm:"column:updated_at;not null"`
}

// TableName returns the GORM table name.
func (LockApplication) TableName() string { return "lock_applications" }

// Scope returns the verification context of the gated resource.
func (a *LockApplication) Scope() scope.Context {
	return scope.Context{Type: scope.Type(a.ResourceType), ID: a.ResourceID}
}

// BoardOverride returns the configured board lifetime, or zero.
func (a *LockApplication) BoardOverride() time.Duration {
	if a.ResourceType != string(scope.Board) || a.VerificationDurationMinutes <= 0 {
		return 0
	}
	return time.Duration(a.VerificationDurationMinutes) * time.Minute
}
