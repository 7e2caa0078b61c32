package preverify

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupMockDB(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	s := NewStore(db)
	s.now = func() time.Time { return t0 }
	return s, mock
}

// The conditional upsert is one statement on postgres; the guard must sit
// in the DO UPDATE branch so inserts are never filtered.
func TestUpsertSQLPostgres(t *testing.T) {
	s, mock := setupMockDB(t)

	mock.ExpectExec(`INSERT INTO "pre_verifications" .*` +
		regexp.QuoteMeta(`ON CONFLICT ("user_id","lock_id","category_type","context_type","context_id") DO UPDATE SET`) +
		`.*` + regexp.QuoteMeta(`WHERE pre_verifications.verified_at IS NULL OR pre_verifications.verified_at <= excluded.verified_at`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO "pre_verifications"`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	applied, err := s.Upsert(context.Background(), grant(postKey("alice", "p1"), t0, time.Minute, "sig"))
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = s.Upsert(context.Background(), grant(postKey("alice", "p1"), t0, time.Minute, "sig"))
	require.NoError(t, err)
	assert.False(t, applied)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkPendingSQLPostgres(t *testing.T) {
	s, mock := setupMockDB(t)

	mock.ExpectExec(`INSERT INTO "pre_verifications" .*` +
		regexp.QuoteMeta(`ON CONFLICT ("user_id","lock_id","category_type","context_type","context_id") DO UPDATE SET`) +
		`.*` + regexp.QuoteMeta(`WHERE pre_verifications.status = $`) +
		`\d+` + regexp.QuoteMeta(` OR (pre_verifications.status = $`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.MarkPending(context.Background(), postKey("alice", "p1")))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSurfacesDriverError(t *testing.T) {
	s, mock := setupMockDB(t)
	mock.ExpectExec(`INSERT INTO "pre_verifications"`).WillReturnError(assert.AnError)

	_, err := s.Upsert(context.Background(), grant(postKey("alice", "p1"), t0, time.Minute, "sig"))
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "upsert pre-verification")
}
