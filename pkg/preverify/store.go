// Package preverify persists time-bounded verification grants.
//
// A grant is keyed by (user, lock, category, context type, context id), so a
// verification performed for one post never satisfies another post or a
// board. Expiry is lazy: reads filter on expires_at and nothing has to be
// swept for decisions to be correct.
package preverify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lockgate/lockgate/pkg/scope"
)

var keyColumns = []clause.Column{
	{Name: "user_id"},
	{Name: "lock_id"},
	{Name: "category_type"},
	{Name: "context_type"},
	{Name: "context_id"},
}

// Store provides database operations for pre-verifications.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// NewStore creates a new Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// WithClock replaces the store clock. Grant timestamps and expiry checks
// made through Now follow it.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// AutoMigrate creates or updates the pre_verifications table.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&PreVerification{})
}

// Now returns the store clock, truncated to the precision every supported
// database keeps.
func (s *Store) Now() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func validateKey(k Key) error {
	if k.UserID == "" || k.LockID == "" || k.CategoryType == "" {
		return fmt.Errorf("incomplete pre-verification key")
	}
	return k.Context.Validate()
}

// Upsert records g in a single statement. When a row already exists for the
// key it is replaced only if its verified_at is not newer than the grant's,
// so an out-of-order stale write cannot clobber a fresher grant; on equal
// timestamps the later write wins. It reports whether the row was written.
func (s *Store) Upsert(ctx context.Context, g Grant) (bool, error) {
	if err := validateKey(g.Key); err != nil {
		return false, err
	}
	now := s.Now()
	verifiedAt := g.VerifiedAt.UTC().Truncate(time.Microsecond)
	expiresAt := g.ExpiresAt.UTC().Truncate(time.Microsecond)
	if !expiresAt.After(verifiedAt) {
		return false, fmt.Errorf("grant expires at %s, not after verification at %s", expiresAt, verifiedAt)
	}

	row := &PreVerification{
		ID:           uuid.NewString(),
		UserID:       g.UserID,
		LockID:       g.LockID,
		CategoryType: g.CategoryType,
		ContextType:  string(g.Context.Type),
		ContextID:    g.Context.ID,
		Status:       StatusVerified,
		Address:      g.Address,
		Payload:      datatypes.NewJSONType(g.Payload),
		VerifiedAt:   &verifiedAt,
		ExpiresAt:    &expiresAt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: keyColumns,
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "address", "payload", "verified_at", "expires_at", "updated_at",
		}),
		Where: clause.Where{Exprs: []clause.Expression{clause.Expr{
			SQL: "pre_verifications.verified_at IS NULL OR pre_verifications.verified_at <= excluded.verified_at",
		}}},
	}).Create(row)
	if result.Error != nil {
		return false, fmt.Errorf("upsert pre-verification: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// MarkPending records that an evaluation for k is in flight. A live
// verified row is left untouched; an absent, not-started or expired row
// becomes pending.
func (s *Store) MarkPending(ctx context.Context, k Key) error {
	if err := validateKey(k); err != nil {
		return err
	}
	now := s.Now()
	row := &PreVerification{
		ID:           uuid.NewString(),
		UserID:       k.UserID,
		LockID:       k.LockID,
		CategoryType: k.CategoryType,
		ContextType:  string(k.Context.Type),
		ContextID:    k.Context.ID,
		Status:       StatusPending,
		Payload:      datatypes.NewJSONType(Payload{}),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: keyColumns,
		DoUpdates: clause.Assignments(map[string]any{
			"status":     StatusPending,
			"updated_at": now,
		}),
		Where: clause.Where{Exprs: []clause.Expression{clause.Expr{
			SQL:  "pre_verifications.status = ? OR (pre_verifications.status = ? AND pre_verifications.expires_at <= ?)",
			Vars: []any{StatusNotStarted, StatusVerified, now},
		}}},
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("mark pre-verification pending: %w", err)
	}
	return nil
}

// ResetPending reverts a pending row for k to not_started after a failed
// evaluation. Rows in any other state are left alone.
func (s *Store) ResetPending(ctx context.Context, k Key) error {
	result := s.db.WithContext(ctx).Model(&PreVerification{}).
		Where("user_id = ? AND lock_id = ? AND category_type = ? AND context_type = ? AND context_id = ? AND status = ?",
			k.UserID, k.LockID, k.CategoryType, string(k.Context.Type), k.Context.ID, StatusPending).
		Updates(map[string]any{
			"status":     StatusNotStarted,
			"updated_at": s.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("reset pending pre-verification: %w", result.Error)
	}
	return nil
}

func (s *Store) scoped(ctx context.Context, userID, lockID string, sc scope.Context) *gorm.DB {
	return s.db.WithContext(ctx).Model(&PreVerification{}).
		Where("user_id = ? AND lock_id = ? AND context_type = ? AND context_id = ?",
			userID, lockID, string(sc.Type), sc.ID)
}

// GetValid returns the verified rows for the user, lock and context that
// have not expired at now.
func (s *Store) GetValid(ctx context.Context, userID, lockID string, sc scope.Context, now time.Time) ([]PreVerification, error) {
	var rows []PreVerification
	err := s.scoped(ctx, userID, lockID, sc).
		Where("status = ? AND expires_at > ?", StatusVerified, now.UTC()).
		Order("category_type ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("get valid pre-verifications: %w", err)
	}
	return rows, nil
}

// List returns every row for the user, lock and context regardless of
// status, for status displays.
func (s *Store) List(ctx context.Context, userID, lockID string, sc scope.Context) ([]PreVerification, error) {
	var rows []PreVerification
	if err := s.scoped(ctx, userID, lockID, sc).Order("category_type ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list pre-verifications: %w", err)
	}
	return rows, nil
}

// Get returns the row for k, or nil if none exists.
func (s *Store) Get(ctx context.Context, k Key) (*PreVerification, error) {
	var row PreVerification
	err := s.scoped(ctx, k.UserID, k.LockID, k.Context).
		Where("category_type = ?", k.CategoryType).
		First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get pre-verification: %w", err)
	}
	return &row, nil
}

// CountActive returns how many live verifications exist for a lock.
func (s *Store) CountActive(ctx context.Context, lockID string, now time.Time) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&PreVerification{}).
		Where("lock_id = ? AND status = ? AND expires_at > ?", lockID, StatusVerified, now.UTC()).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count active pre-verifications: %w", err)
	}
	return n, nil
}

// ResetStalePending reverts rows stuck in pending since before cutoff,
// left behind by evaluations that never finished.
func (s *Store) ResetStalePending(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Model(&PreVerification{}).
		Where("status = ? AND updated_at < ?", StatusPending, cutoff.UTC()).
		Updates(map[string]any{
			"status":     StatusNotStarted,
			"updated_at": s.Now(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("reset stale pending pre-verifications: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteExpiredBefore removes verified rows that expired before cutoff and
// not-started rows untouched since cutoff. Decisions never depend on it.
func (s *Store) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	cutoff = cutoff.UTC()
	result := s.db.WithContext(ctx).
		Where("(status = ? AND expires_at < ?) OR (status = ? AND updated_at < ?)",
			StatusVerified, cutoff, StatusNotStarted, cutoff).
		Delete(&PreVerification{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete expired pre-verifications: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteForLock removes every row of a lock.
func (s *Store) DeleteForLock(ctx context.Context, lockID string) (int64, error) {
	result := s.db.WithContext(ctx).Where("lock_id = ?", lockID).Delete(&PreVerification{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete pre-verifications for lock: %w", result.Error)
	}
	return result.RowsAffected, nil
}
