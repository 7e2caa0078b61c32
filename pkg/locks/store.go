package locks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/lockgate/lockgate/pkg/gaterr"
	"github.com/lockgate/lockgate/pkg/scope"
	"github.com/lockgate/lockgate/pkg/verifier"
)

// ErrLockInUse is wrapped by Delete when a resource still references the lock.
var ErrLockInUse = errors.New("lock is applied to one or more resources")

// Store provides database operations for locks and lock applications.
type Store struct {
	db       *gorm.DB
	registry *verifier.Registry
	now      func() time.Time
}

// NewStore creates a new Store. registry validates gating configurations.
func NewStore(db *gorm.DB, registry *verifier.Registry) *Store {
	return &Store{db: db, registry: registry, now: time.Now}
}

// AutoMigrate creates or updates the locks and lock_applications tables.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&Lock{}, &LockApplication{})
}

// ListFilter defines filters for listing locks.
type ListFilter struct {
	CommunityID string
	CreatorID   string
	Query       string // Case-insensitive name substring.
	Templates   bool   // Only templates.
	// Viewer limits results to locks the viewer may use, unless
	// ViewerIsAdmin is set.
	Viewer        string
	ViewerIsAdmin bool
}

// Patch holds the lock fields to change; nil fields are left alone.
type Patch struct {
	Name         *string
	Description  *string
	Icon         *string
	Color        *string
	GatingConfig *GatingConfig
	IsTemplate   *bool
	IsPublic     *bool
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

func nameConflict(name string) error {
	return &gaterr.ConflictError{Resource: "lock", Reason: fmt.Sprintf("a lock named %q already exists", name)}
}

// Create validates and inserts l. ID, usage count and timestamps are
// assigned here.
func (s *Store) Create(ctx context.Context, l *Lock) error {
	l.Name = strings.TrimSpace(l.Name)
	if l.CommunityID == "" {
		return gaterr.Configuration("communityId", "is required")
	}
	if l.CreatorID == "" {
		return gaterr.Configuration("creatorId", "is required")
	}
	if l.Name == "" {
		return gaterr.Configuration("name", "is required")
	}
	cfg := l.Config()
	if err := ValidateConfig(&cfg, s.registry); err != nil {
		return err
	}
	l.GatingConfig = datatypes.NewJSONType(cfg)
	now := s.now().UTC()
	l.ID = uuid.NewString()
	l.UsageCount = 0
	l.CreatedAt, l.UpdatedAt = now, now

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&Lock{}).Where("community_id = ? AND name = ?", l.CommunityID, l.Name).Count(&n).Error; err != nil {
			return fmt.Errorf("check lock name: %w", err)
		}
		if n > 0 {
			return nameConflict(l.Name)
		}
		if err := tx.Create(l).Error; err != nil {
			if isDuplicate(err) {
				return nameConflict(l.Name)
			}
			return fmt.Errorf("create lock: %w", err)
		}
		return nil
	})
}

// Get retrieves a lock of a community.
func (s *Store) Get(ctx context.Context, communityID, id string) (*Lock, error) {
	var l Lock
	err := s.db.WithContext(ctx).Where("community_id = ? AND id = ?", communityID, id).First(&l).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, gaterr.NotFound("lock", id)
		}
		return nil, fmt.Errorf("get lock: %w", err)
	}
	return &l, nil
}

// List returns paginated locks ordered by name. The page token is the
// last name of the previous page.
func (s *Store) List(ctx context.Context, filter ListFilter, pageSize int, pageToken string) ([]Lock, string, int, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	buildQuery := func(base *gorm.DB) *gorm.DB {
		q := base.Model(&Lock{}).Where("community_id = ?", filter.CommunityID)
		if filter.CreatorID != "" {
			q = q.Where("creator_id = ?", filter.CreatorID)
		}
		if filter.Query != "" {
			q = q.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(filter.Query)+"%")
		}
		if filter.Templates {
			q = q.Where("is_template = ?", true)
		}
		if !filter.ViewerIsAdmin {
			q = q.Where("creator_id = ? OR is_public = ? OR is_template = ?", filter.Viewer, true, true)
		}
		return q
	}

	var total int64
	if err := buildQuery(s.db.WithContext(ctx)).Count(&total).Error; err != nil {
		return nil, "", 0, fmt.Errorf("count locks: %w", err)
	}

	query := buildQuery(s.db.WithContext(ctx)).Order("name ASC").Limit(pageSize + 1)
	if pageToken != "" {
		query = query.Where("name > ?", pageToken)
	}
	var records []Lock
	if err := query.Find(&records).Error; err != nil {
		return nil, "", 0, fmt.Errorf("list locks: %w", err)
	}

	var next string
	if len(records) > pageSize {
		next = records[pageSize-1].Name
		records = records[:pageSize]
	}
	return records, next, int(total), nil
}

// Update applies p to a lock. A new gating configuration is validated
// like on create.
func (s *Store) Update(ctx context.Context, communityID, id string, p Patch) (*Lock, error) {
	l, err := s.Get(ctx, communityID, id)
	if err != nil {
		return nil, err
	}
	updates := map[string]any{"updated_at": s.now().UTC()}
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return nil, gaterr.Configuration("name", "is required")
		}
		updates["name"] = name
	}
	if p.Description != nil {
		updates["description"] = *p.Description
	}
	if p.Icon != nil {
		updates["icon"] = *p.Icon
	}
	if p.Color != nil {
		updates["color"] = *p.Color
	}
	if p.IsTemplate != nil {
		updates["is_template"] = *p.IsTemplate
	}
	if p.IsPublic != nil {
		updates["is_public"] = *p.IsPublic
	}
	if p.GatingConfig != nil {
		cfg := *p.GatingConfig
		if err := ValidateConfig(&cfg, s.registry); err != nil {
			return nil, err
		}
		updates["gating_config"] = datatypes.NewJSONType(cfg)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if name, ok := updates["name"].(string); ok && name != l.Name {
			var n int64
			if err := tx.Model(&Lock{}).Where("community_id = ? AND name = ? AND id <> ?", communityID, name, id).Count(&n).Error; err != nil {
				return fmt.Errorf("check lock name: %w", err)
			}
			if n > 0 {
				return nameConflict(name)
			}
		}
		if err := tx.Model(&Lock{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			if isDuplicate(err) {
				return nameConflict(fmt.Sprint(updates["name"]))
			}
			return fmt.Errorf("update lock: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, communityID, id)
}

// Delete removes a lock. It fails with a ConflictError wrapping
// ErrLockInUse while any resource references the lock.
func (s *Store) Delete(ctx context.Context, communityID, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var l Lock
		if err := tx.Where("community_id = ? AND id = ?", communityID, id).First(&l).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return gaterr.NotFound("lock", id)
			}
			return fmt.Errorf("get lock: %w", err)
		}
		var n int64
		if err := tx.Model(&LockApplication{}).Where("lock_id = ?", id).Count(&n).Error; err != nil {
			return fmt.Errorf("count lock applications: %w", err)
		}
		if n > 0 {
			return &gaterr.ConflictError{
				Resource: "lock",
				Reason:   fmt.Sprintf("applied to %d resource(s)", n),
				Err:      ErrLockInUse,
			}
		}
		if err := tx.Delete(&Lock{}, "id = ?", id).Error; err != nil {
			return fmt.Errorf("delete lock: %w", err)
		}
		return nil
	})
}

func incrementUsage(tx *gorm.DB, lockID string) error {
	return tx.Model(&Lock{}).Where("id = ?", lockID).
		UpdateColumn("usage_count", gorm.Expr("usage_count + 1")).Error
}

func decrementUsage(tx *gorm.DB, lockID string) error {
	return tx.Model(&Lock{}).Where("id = ?", lockID).
		UpdateColumn("usage_count", gorm.Expr("CASE WHEN usage_count > 0 THEN usage_count - 1 ELSE 0 END")).Error
}

// Apply gates a resource with a lock. Re-applying replaces the resource's
// previous lock and moves the usage counters. The stored application is
// returned.
func (s *Store) Apply(ctx context.Context, app *LockApplication) (*LockApplication, error) {
	sc := app.Scope()
	if err := sc.Validate(); err != nil {
		return nil, gaterr.Configuration("resource", err.Error())
	}
	if app.VerificationDurationMinutes < 0 {
		return nil, gaterr.Configuration("verificationDurationMinutes", "must not be negative")
	}
	if sc.Type != scope.Board {
		app.VerificationDurationMinutes = 0
	}
	if _, err := s.Get(ctx, app.CommunityID, app.LockID); err != nil {
		return nil, err
	}
	now := s.now().UTC()

	var stored LockApplication
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing LockApplication
		err := tx.Where("resource_type = ? AND resource_id = ?", app.ResourceType, app.ResourceID).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			app.ID = uuid.NewString()
			app.CreatedAt, app.UpdatedAt = now, now
			if err := tx.Create(app).Error; err != nil {
				return fmt.Errorf("create lock application: %w", err)
			}
			stored = *app
			return incrementUsage(tx, app.LockID)
		case err != nil:
			return fmt.Errorf("get lock application: %w", err)
		}

		if existing.CommunityID != app.CommunityID {
			return &gaterr.ConflictError{Resource: "resource", Reason: "belongs to another community"}
		}
		if err := tx.Model(&LockApplication{}).Where("id = ?", existing.ID).Updates(map[string]any{
			"lock_id":                       app.LockID,
			"require_all":                   app.RequireAll,
			"verification_duration_minutes": app.VerificationDurationMinutes,
			"applied_by":                    app.AppliedBy,
			"updated_at":                    now,
		}).Error; err != nil {
			return fmt.Errorf("update lock application: %w", err)
		}
		if existing.LockID != app.LockID {
			if err := decrementUsage(tx, existing.LockID); err != nil {
				return fmt.Errorf("release previous lock: %w", err)
			}
			if err := incrementUsage(tx, app.LockID); err != nil {
				return fmt.Errorf("count lock usage: %w", err)
			}
		}
		return tx.First(&stored, "id = ?", existing.ID).Error
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// RemoveApplication ungates a resource. The lock's usage counter is
// decremented, floored at zero.
func (s *Store) RemoveApplication(ctx context.Context, communityID, resourceType, resourceID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var app LockApplication
		err := tx.Where("community_id = ? AND resource_type = ? AND resource_id = ?", communityID, resourceType, resourceID).First(&app).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return gaterr.NotFound("lock application", resourceType+":"+resourceID)
			}
			return fmt.Errorf("get lock application: %w", err)
		}
		if err := tx.Delete(&LockApplication{}, "id = ?", app.ID).Error; err != nil {
			return fmt.Errorf("delete lock application: %w", err)
		}
		return decrementUsage(tx, app.LockID)
	})
}

// GetApplication returns the lock application of a resource.
func (s *Store) GetApplication(ctx context.Context, communityID, resourceType, resourceID string) (*LockApplication, error) {
	var app LockApplication
	err := s.db.WithContext(ctx).
		Where("community_id = ? AND resource_type = ? AND resource_id = ?", communityID, resourceType, resourceID).
		First(&app).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, gaterr.NotFound("lock application", resourceType+":"+resourceID)
		}
		return nil, fmt.Errorf("get lock application: %w", err)
	}
	return &app, nil
}

// ListApplications returns the resources gated by a lock.
func (s *Store) ListApplications(ctx context.Context, communityID, lockID string) ([]LockApplication, error) {
	var apps []LockApplication
	err := s.db.WithContext(ctx).
		Where("community_id = ? AND lock_id = ?", communityID, lockID).
		Order("resource_type ASC, resource_id ASC").
		Find(&apps).Error
	if err != nil {
		return nil, fmt.Errorf("list lock applications: %w", err)
	}
	return apps, nil
}
