// Package authz provides identity and authorization primitives for the
// gating server. Authorization answers one question: may this identity
// administer a community. Per-lock permissions (creator, public, template)
// are decided by the lock registry on top of that answer.
package authz

import "context"

// APIGroup is the API group for gating resources in Kubernetes RBAC.
const APIGroup = "gating.lockgate.io"

// Resource names for RBAC mapping.
const (
	ResourceCommunities   = "communities"
	ResourceLocks         = "locks"
	ResourceApplications  = "lockapplications"
	ResourceVerifications = "verifications"
	ResourceAudit         = "audit"
)

// Verb names for RBAC mapping.
const (
	VerbGet    = "get"
	VerbList   = "list"
	VerbCreate = "create"
	VerbUpdate = "update"
	VerbDelete = "delete"
	VerbAdmin  = "admin"
)

// Request represents an authorization check.
type Request struct {
	User      string
	Groups    []string
	Resource  string
	Verb      string
	Community string
}

// Authorizer checks whether a user is authorized to perform an action.
type Authorizer interface {
	Authorize(ctx context.Context, req Request) (bool, error)
}

// IsAdmin reports whether id may administer community.
func IsAdmin(ctx context.Context, a Authorizer, id Identity, community string) (bool, error) {
	if a == nil || id.IsAnonymous() {
		return false, nil
	}
	return a.Authorize(ctx, Request{
		User:      id.User,
		Groups:    id.Groups,
		Resource:  ResourceCommunities,
		Verb:      VerbAdmin,
		Community: community,
	})
}
