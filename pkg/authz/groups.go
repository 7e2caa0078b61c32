package authz

import (
	"context"
	"slices"
)

// CommunityAdminGroupPrefix prefixes groups granting admin on one community.
const CommunityAdminGroupPrefix = "community-admin:"

// GroupAuthorizer grants reads to everyone and everything else to members
// of the global admin group or of "community-admin:<community>". The audit
// log is readable by admins only.
type GroupAuthorizer struct {
	AdminGroup string
}

// Authorize implements Authorizer.
func (g *GroupAuthorizer) Authorize(_ context.Context, req Request) (bool, error) {
	if (req.Verb == VerbGet || req.Verb == VerbList) && req.Resource != ResourceAudit {
		return true, nil
	}
	if g.AdminGroup != "" && slices.Contains(req.Groups, g.AdminGroup) {
		return true, nil
	}
	return req.Community != "" && slices.Contains(req.Groups, CommunityAdminGroupPrefix+req.Community), nil
}
