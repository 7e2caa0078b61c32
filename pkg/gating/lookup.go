package gating

import (
	"context"

	"github.com/lockgate/lockgate/pkg/locks"
	"github.com/lockgate/lockgate/pkg/scope"
)

// LockSource loads locks within a community.
type LockSource interface {
	Get(ctx context.Context, communityID, id string) (*locks.Lock, error)
}

// ResourceLookup resolves the lock a post or board carries, enforcing that
// the resource belongs to the community. It returns *gaterr.NotFoundError
// when the resource is unknown there or carries no lock.
type ResourceLookup interface {
	Application(ctx context.Context, communityID string, resource scope.Context) (*locks.LockApplication, error)
}

// ApplicationLookup is the default ResourceLookup, backed by the lock
// registry's applications.
type ApplicationLookup struct {
	Store *locks.Store
}

func (l ApplicationLookup) Application(ctx context.Context, communityID string, resource scope.Context) (*locks.LockApplication, error) {
	return l.Store.GetApplication(ctx, communityID, string(resource.Type), resource.ID)
}
