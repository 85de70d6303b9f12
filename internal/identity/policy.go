package identity

// CanActOn decides whether an administrative action by an identity holding
// actor roles is permitted against an identity holding target roles.
//
// The hierarchy is derived here and only here; storage keeps roles flat.
// Superadmins act on anyone, themselves included. Admins act only on
// identities holding neither the superadmin nor the admin role. Everyone
// else is denied; self-service goes through the profile contract instead.
//
// Callers must evaluate this against the target's current stored role set
// on every operation: assignments change between requests and the result is
// never cached.
func CanActOn(actor, target RoleSet) bool {
	if actor.Has(RoleSuperAdmin) {
		return true
	}
	if actor.Has(RoleAdmin) {
		return !target.Has(RoleSuperAdmin) && !target.Has(RoleAdmin)
	}
	return false
}
