package ha

import (
	"context"
	"fmt"
	"hash/crc32"
	"time"

	"gorm.io/gorm"
)

const migrationLockName = "lockgate-migration"

// MigrationLocker serializes schema migrations across replicas.
type MigrationLocker interface {
	// WithLock runs fn while holding the migration lock, blocking until the
	// lock is acquired or ctx is done.
	WithLock(ctx context.Context, fn func() error) error
}

// Migrator is a store that can migrate its own tables.
type Migrator interface {
	AutoMigrate() error
}

// Migrate runs AutoMigrate of every store under one acquisition of locker.
func Migrate(ctx context.Context, locker MigrationLocker, stores ...Migrator) error {
	return locker.WithLock(ctx, func() error {
		for _, s := range stores {
			if err := s.AutoMigrate(); err != nil {
				return fmt.Errorf("auto-migrate %T: %w", s, err)
			}
		}
		return nil
	})
}

// NewMigrationLocker returns the locker for db's dialect: a session
// advisory lock on PostgreSQL, a lock row elsewhere. A nil db or a config
// with migration locking disabled yields a locker that does not lock.
func NewMigrationLocker(db *gorm.DB, cfg *Config) MigrationLocker {
	if db == nil || (cfg != nil && !cfg.MigrationLockEnabled) {
		return noopMigrationLock{}
	}
	owner := "unknown"
	if cfg != nil && cfg.Identity != "" {
		owner = cfg.Identity
	}
	if db.Dialector.Name() == "postgres" {
		return &pgAdvisoryLock{db: db, key: int64(crc32.ChecksumIEEE([]byte(migrationLockName)))}
	}
	// The lock table must exist before the first concurrent WithLock.
	_ = db.AutoMigrate(&migrationLockRow{})
	return &tableMigrationLock{
		db:            db,
		owner:         owner,
		attempts:      30,
		retryInterval: time.Second,
		staleAfter:    5 * time.Minute,
	}
}

type noopMigrationLock struct{}

func (noopMigrationLock) WithLock(_ context.Context, fn func() error) error {
	return fn()
}

type pgAdvisoryLock struct {
	db  *gorm.DB
	key int64
}

func (l *pgAdvisoryLock) WithLock(ctx context.Context, fn func() error) error {
	// Advisory locks belong to a session, so lock and unlock must share one
	// pooled connection.
	conn, err := l.db.DB()
	if err != nil {
		return fmt.Errorf("migration lock: %w", err)
	}
	c, err := conn.Conn(ctx)
	if err != nil {
		return fmt.Errorf("migration lock: %w", err)
	}
	defer c.Close()

	if _, err := c.ExecContext(ctx, "SELECT pg_advisory_lock($1)", l.key); err != nil {
		return fmt.Errorf("acquire migration advisory lock: %w", err)
	}
	defer func() {
		_, _ = c.ExecContext(context.WithoutCancel(ctx), "SELECT pg_advisory_unlock($1)", l.key)
	}()
	return fn()
}

type migrationLockRow struct {
	ID       string    `gorm:"primaryKey;column:id;size:64"`
	LockedAt time.Time `gorm:"column:locked_at;not null"`
	LockedBy string    `gorm:"column:locked_by;size:191"`
}

func (migrationLockRow) TableName() string { return "gating_migration_lock" }

// tableMigrationLock holds the lock while its row exists. Inserting the
// row fails while another replica holds it. Rows older than staleAfter are
// from crashed holders and are cleared.
type tableMigrationLock struct {
	db            *gorm.DB
	owner         string
	attempts      int
	retryInterval time.Duration
	staleAfter    time.Duration
}

func (l *tableMigrationLock) WithLock(ctx context.Context, fn func() error) error {
	var lastErr error
	for i := 0; i < l.attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		now := time.Now().UTC()
		l.db.WithContext(ctx).
			Where("id = ? AND locked_at < ?", migrationLockName, now.Add(-l.staleAfter)).
			Delete(&migrationLockRow{})

		row := migrationLockRow{ID: migrationLockName, LockedAt: now, LockedBy: l.owner}
		if lastErr = l.db.WithContext(ctx).Create(&row).Error; lastErr == nil {
			defer l.db.WithContext(context.WithoutCancel(ctx)).
				Where("id = ? AND locked_by = ?", migrationLockName, l.owner).
				Delete(&migrationLockRow{})
			return fn()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.retryInterval):
		}
	}
	return fmt.Errorf("acquire migration lock after %d attempts: %w", l.attempts, lastErr)
}
