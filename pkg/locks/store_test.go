package locks

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/lockgate/lockgate/pkg/chain/chaintest"
	"github.com/lockgate/lockgate/pkg/gaterr"
	"github.com/lockgate/lockgate/pkg/scope"
	"github.com/lockgate/lockgate/pkg/verifier"
	"github.com/lockgate/lockgate/pkg/verifier/evm"
	"github.com/lockgate/lockgate/pkg/verifier/universalprofile"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Lock{}, &LockApplication{}))
	return db
}

func testRegistry(t *testing.T) *verifier.Registry {
	t.Helper()
	reader := chaintest.New()
	reg, err := verifier.NewRegistry(
		evm.New(reader, nil, nil),
		universalprofile.New(reader, universalprofile.Config{}, nil),
	)
	require.NoError(t, err)
	return reg
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(setupTestDB(t), testRegistry(t))
}

func upConfig(requireAll bool) GatingConfig {
	return GatingConfig{
		Categories: []GatingCategory{{
			Type:         universalprofile.Type,
			Enabled:      true,
			Requirements: json.RawMessage(`{"minLyxBalance":"1000000000000000000"}`),
		}},
		RequireAll: requireAll,
	}
}

func newTestLock(community, creator, name string) *Lock {
	return &Lock{
		CommunityID:  community,
		CreatorID:    creator,
		Name:         name,
		GatingConfig: datatypes.NewJSONType(upConfig(true)),
	}
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	l := newTestLock("c1", "alice", "LYX holders")
	require.NoError(t, s.Create(ctx, l))
	assert.NotEmpty(t, l.ID)

	got, err := s.Get(ctx, "c1", l.ID)
	require.NoError(t, err)
	assert.Equal(t, "LYX holders", got.Name)
	cfg := got.Config()
	require.Len(t, cfg.Categories, 1)
	assert.Equal(t, verifier.FulfillAll, cfg.Categories[0].Fulfillment)
	assert.True(t, cfg.RequireAll)

	_, err = s.Get(ctx, "c2", l.ID)
	assert.True(t, gaterr.IsNotFound(err), "locks are community scoped")
}

func TestCreateRejectsDuplicateName(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.Create(ctx, newTestLock("c1", "alice", "Holders")))

	err := s.Create(ctx, newTestLock("c1", "bob", "Holders"))
	var ce *gaterr.ConflictError
	require.ErrorAs(t, err, &ce)

	require.NoError(t, s.Create(ctx, newTestLock("c2", "bob", "Holders")))
}

func TestValidateConfig(t *testing.T) {
	reg := testRegistry(t)
	tests := []struct {
		name    string
		cfg     GatingConfig
		wantErr string
	}{
		{"no categories", GatingConfig{}, gaterr.CodeConfiguration},
		{"none enabled", GatingConfig{Categories: []GatingCategory{{Type: evm.Type}}}, gaterr.CodeConfiguration},
		{"unknown type", GatingConfig{Categories: []GatingCategory{{Type: "solana_profile", Enabled: true}}}, gaterr.CodeUnknownCategory},
		{"duplicate type", GatingConfig{Categories: []GatingCategory{{Type: evm.Type, Enabled: true}, {Type: evm.Type}}}, gaterr.CodeConfiguration},
		{"bad fulfillment", GatingConfig{Categories: []GatingCategory{{Type: evm.Type, Enabled: true, Fulfillment: "most"}}}, gaterr.CodeConfiguration},
		{"bad requirements", GatingConfig{Categories: []GatingCategory{{Type: evm.Type, Enabled: true, Requirements: json.RawMessage(`{"minimumETHBalance":"lots"}`)}}}, gaterr.CodeConfiguration},
		{"unknown requirement field", GatingConfig{Categories: []GatingCategory{{Type: evm.Type, Enabled: true, Requirements: json.RawMessage(`{"minimumSOL":"1"}`)}}}, gaterr.CodeConfiguration},
		{"valid any", GatingConfig{Categories: []GatingCategory{{Type: evm.Type, Enabled: true, Fulfillment: verifier.FulfillAny}, {Type: universalprofile.Type}}}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			err := ValidateConfig(&cfg, reg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantErr, gaterr.Code(err))
		})
	}
}

func TestValidateConfigReportsRequirementField(t *testing.T) {
	cfg := GatingConfig{Categories: []GatingCategory{{Type: evm.Type, Enabled: true, Requirements: json.RawMessage(`{"minimumETHBalance":"lots"}`)}}}
	err := ValidateConfig(&cfg, testRegistry(t))
	var ce *gaterr.ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "categories[0].requirements.minimumETHBalance", ce.Field)
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	l := newTestLock("c1", "alice", "Holders")
	require.NoError(t, s.Create(ctx, l))
	require.NoError(t, s.Create(ctx, newTestLock("c1", "alice", "Other")))

	name := "Big holders"
	public := true
	cfg := upConfig(false)
	updated, err := s.Update(ctx, "c1", l.ID, Patch{Name: &name, IsPublic: &public, GatingConfig: &cfg})
	require.NoError(t, err)
	assert.Equal(t, "Big holders", updated.Name)
	assert.True(t, updated.IsPublic)
	assert.False(t, updated.Config().RequireAll)

	taken := "Other"
	_, err = s.Update(ctx, "c1", l.ID, Patch{Name: &taken})
	var ce *gaterr.ConflictError
	assert.ErrorAs(t, err, &ce)

	bad := GatingConfig{}
	_, err = s.Update(ctx, "c1", l.ID, Patch{GatingConfig: &bad})
	assert.Equal(t, gaterr.CodeConfiguration, gaterr.Code(err))
}

func TestList(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	mine := newTestLock("c1", "alice", "A private")
	public := newTestLock("c1", "bob", "B public")
	public.IsPublic = true
	template := newTestLock("c1", "admin", "C template")
	template.IsTemplate = true
	private := newTestLock("c1", "bob", "D private")
	for _, l := range []*Lock{mine, public, template, private} {
		require.NoError(t, s.Create(ctx, l))
	}
	require.NoError(t, s.Create(ctx, newTestLock("c2", "alice", "E elsewhere")))

	records, _, total, err := s.List(ctx, ListFilter{CommunityID: "c1", Viewer: "alice"}, 10, "")
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, records, 3)
	assert.Equal(t, "A private", records[0].Name)

	_, _, total, err = s.List(ctx, ListFilter{CommunityID: "c1", ViewerIsAdmin: true}, 10, "")
	require.NoError(t, err)
	assert.Equal(t, 4, total)

	records, _, _, err = s.List(ctx, ListFilter{CommunityID: "c1", ViewerIsAdmin: true, Templates: true}, 10, "")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "C template", records[0].Name)

	records, _, _, err = s.List(ctx, ListFilter{CommunityID: "c1", ViewerIsAdmin: true, Query: "PRIV"}, 10, "")
	require.NoError(t, err)
	assert.Len(t, records, 2)

	page1, next, _, err := s.List(ctx, ListFilter{CommunityID: "c1", ViewerIsAdmin: true}, 3, "")
	require.NoError(t, err)
	require.Len(t, page1, 3)
	require.Equal(t, "C template", next)
	page2, next, _, err := s.List(ctx, ListFilter{CommunityID: "c1", ViewerIsAdmin: true}, 3, next)
	require.NoError(t, err)
	require.Len(t, page2, 1)
	assert.Equal(t, "D private", page2[0].Name)
	assert.Empty(t, next)
}

func usage(t *testing.T, s *Store, id string) int64 {
	t.Helper()
	l, err := s.Get(context.Background(), "c1", id)
	require.NoError(t, err)
	return l.UsageCount
}

func TestApplyMovesUsage(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a := newTestLock("c1", "alice", "A")
	b := newTestLock("c1", "alice", "B")
	require.NoError(t, s.Create(ctx, a))
	require.NoError(t, s.Create(ctx, b))

	app, err := s.Apply(ctx, &LockApplication{LockID: a.ID, CommunityID: "c1", ResourceType: "post", ResourceID: "p1", RequireAll: true, AppliedBy: "alice"})
	require.NoError(t, err)
	assert.Equal(t, a.ID, app.LockID)
	assert.Equal(t, int64(1), usage(t, s, a.ID))

	// Re-applying the same lock is not a new use.
	_, err = s.Apply(ctx, &LockApplication{LockID: a.ID, CommunityID: "c1", ResourceType: "post", ResourceID: "p1", RequireAll: false, AppliedBy: "alice"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), usage(t, s, a.ID))

	app, err = s.Apply(ctx, &LockApplication{LockID: b.ID, CommunityID: "c1", ResourceType: "post", ResourceID: "p1", AppliedBy: "alice"})
	require.NoError(t, err)
	assert.Equal(t, b.ID, app.LockID)
	assert.Equal(t, int64(0), usage(t, s, a.ID))
	assert.Equal(t, int64(1), usage(t, s, b.ID))

	got, err := s.GetApplication(ctx, "c1", "post", "p1")
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.LockID)

	_, err = s.Apply(ctx, &LockApplication{LockID: a.ID, CommunityID: "c2", ResourceType: "post", ResourceID: "p1"})
	assert.True(t, gaterr.IsNotFound(err), "lock A is not visible from c2")
}

func TestApplyBoardDuration(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	l := newTestLock("c1", "alice", "A")
	require.NoError(t, s.Create(ctx, l))

	app, err := s.Apply(ctx, &LockApplication{LockID: l.ID, CommunityID: "c1", ResourceType: "board", ResourceID: "b1", VerificationDurationMinutes: 120})
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, app.BoardOverride())
	assert.Equal(t, scope.Context{Type: scope.Board, ID: "b1"}, app.Scope())

	app, err = s.Apply(ctx, &LockApplication{LockID: l.ID, CommunityID: "c1", ResourceType: "post", ResourceID: "p1", VerificationDurationMinutes: 120})
	require.NoError(t, err)
	assert.Equal(t, 0, app.VerificationDurationMinutes)
	assert.Zero(t, app.BoardOverride())

	_, err = s.Apply(ctx, &LockApplication{LockID: l.ID, CommunityID: "c1", ResourceType: "comment", ResourceID: "x"})
	assert.Equal(t, gaterr.CodeConfiguration, gaterr.Code(err))
	_, err = s.Apply(ctx, &LockApplication{LockID: l.ID, CommunityID: "c1", ResourceType: "board", ResourceID: "b2", VerificationDurationMinutes: -1})
	assert.Equal(t, gaterr.CodeConfiguration, gaterr.Code(err))
}

func TestDeleteBlockedWhileApplied(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	l := newTestLock("c1", "alice", "A")
	require.NoError(t, s.Create(ctx, l))
	_, err := s.Apply(ctx, &LockApplication{LockID: l.ID, CommunityID: "c1", ResourceType: "post", ResourceID: "p1"})
	require.NoError(t, err)

	err = s.Delete(ctx, "c1", l.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLockInUse))
	assert.Equal(t, gaterr.CodeConflict, gaterr.Code(err))

	require.NoError(t, s.RemoveApplication(ctx, "c1", "post", "p1"))
	assert.Equal(t, int64(0), usage(t, s, l.ID))
	require.NoError(t, s.Delete(ctx, "c1", l.ID))

	_, err = s.Get(ctx, "c1", l.ID)
	assert.True(t, gaterr.IsNotFound(err))
	assert.True(t, gaterr.IsNotFound(s.Delete(ctx, "c1", l.ID)))
}

func TestUsageFloorsAtZero(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	l := newTestLock("c1", "alice", "A")
	require.NoError(t, s.Create(ctx, l))
	_, err := s.Apply(ctx, &LockApplication{LockID: l.ID, CommunityID: "c1", ResourceType: "post", ResourceID: "p1"})
	require.NoError(t, err)

	// Drift the counter as a concurrent writer might.
	require.NoError(t, s.db.Model(&Lock{}).Where("id = ?", l.ID).Update("usage_count", 0).Error)
	require.NoError(t, s.RemoveApplication(ctx, "c1", "post", "p1"))
	assert.Equal(t, int64(0), usage(t, s, l.ID))

	assert.True(t, gaterr.IsNotFound(s.RemoveApplication(ctx, "c1", "post", "p1")))
}

func TestPermissions(t *testing.T) {
	l := &Lock{CreatorID: "alice"}
	assert.True(t, CanUse(l, "alice", false))
	assert.False(t, CanUse(l, "bob", false))
	assert.True(t, CanUse(l, "bob", true))
	assert.False(t, CanUse(l, "", false))

	l.IsPublic = true
	assert.True(t, CanUse(l, "bob", false))
	assert.False(t, CanEdit(l, "bob", false))
	assert.True(t, CanEdit(l, "bob", true))
	assert.True(t, CanEdit(l, "alice", false))

	l = &Lock{CreatorID: "alice", IsTemplate: true}
	assert.True(t, CanUse(l, "bob", false))
}
