package locks

// CanUse reports whether userID may apply l to a resource: creators,
// anyone for public locks and templates, and community admins.
func CanUse(l *Lock, userID string, isAdmin bool) bool {
	return isAdmin || l.IsPublic || l.IsTemplate || (userID != "" && l.CreatorID == userID)
}

// CanEdit reports whether userID may change or delete l.
func CanEdit(l *Lock, userID string, isAdmin bool) bool {
	return isAdmin || (userID != "" && l.CreatorID == userID)
}
