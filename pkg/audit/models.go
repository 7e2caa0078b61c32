package audit

import (
	"time"

	"gorm.io/datatypes"
)

// Event types.
const (
	EventVerification = "verification" // a submission reached evaluation
	EventSecurity     = "security"     // a submission was rejected before evaluation
	EventManagement   = "management"   // a lock registry mutation
)

// Outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeDenied  = "denied"
)

// Event is an immutable audit log entry.
type Event struct {
	ID            string            `gorm:"primaryKey;column:id;type:varchar(36)"`
	CommunityID   string            `gorm:"column:community_id;size:64;not null;default:default;index:idx_audit_community_time,priority:1"`
	EventType     string            `gorm:"column:event_type;size:32;not null;index:idx_audit_type_time,priority:1"`
	Actor         string            `gorm:"column:actor;size:191;not null;index:idx_audit_actor_time,priority:1"`
	Address       string            `gorm:"column:address;size:64"`
	LockID        string            `gorm:"column:lock_id;size:36;index:idx_audit_lock_time,priority:1"`
	CategoryType  string            `gorm:"column:category_type;size:64"`
	ContextType   string            `gorm:"column:context_type;size:16"`
	ContextID     string            `gorm:"column:context_id;size:191"`
	Action        string            `gorm:"column:action;size:64"`
	Outcome       string            `gorm:"column:outcome;size:16;not null"`
	Code          string            `gorm:"column:code;size:64"`
	Reason        string            `gorm:"column:reason;type:text"`
	StatusCode    int               `gorm:"column:status_code"`
	RequestID     string            `gorm:"column:request_id;size:64;index"`
	CorrelationID string            `gorm:"column:correlation_id;size:64"`
	Metadata      datatypes.JSONMap `gorm:"column:metadata"`
	CreatedAt     time.Time         `gorm:"column:created_at;not null;index:idx_audit_type_time,priority:2;index:idx_audit_actor_time,priority:2;index:idx_audit_lock_time,priority:2;index:idx_audit_community_time,priority:2"`
}

// TableName returns the GORM table name.
func (Event) TableName() string { return "audit_events" }
