// Package authz implements the console's permission model: identity and role
// normalization, super-admin detection, and wildcard permission matching.
package authz

import "strings"

// normalizeKey lowercases a role key and collapses whitespace runs to
// underscores, so "Super Admin" and "super_admin" compare equal.
func normalizeKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "_")
}

func isSuperKey(s string) bool {
	switch normalizeKey(s) {
	case "super_admin", "superadmin", "root", "owner":
		return true
	}
	return false
}

// IsSuperRole reports super-admin status derived from the explicit flag and
// the role fields alone, ignoring the permission list. The permission
// refresher uses this so a cleared permission cache cannot revoke (or a stale
// one grant) super status.
func IsSuperRole(id *Identity) bool {
	if id == nil {
		return false
	}
	if id.Super {
		return true
	}
	if isSuperKey(id.RoleKey) {
		return true
	}
	for _, r := range id.Roles {
		if r.Super || r.SuperAdmin {
			return true
		}
		if label := r.Label(); label != "" && isSuperKey(label) {
			return true
		}
	}
	return false
}

// IsSuper reports whether the identity carries super-admin privileges, from
// any of the places the platform records them: the explicit flag, the primary
// role key, any entry of the roles list, or a "*" / "super:*" permission.
func IsSuper(id *Identity) bool {
	if id == nil {
		return false
	}
	if IsSuperRole(id) {
		return true
	}
	for _, p := range id.Permissions {
		if p == "*" || p == "super:*" {
			return true
		}
	}
	return false
}

// Match reports whether the granted list satisfies perm. A grant matches
// verbatim, as the global "*", or as the single-level module wildcard
// "<module>.*" where <module> is the part of perm before the first dot.
// Deeper hierarchies are deliberately not supported: requirement strings in
// this system are flat two-segment keys.
func Match(granted []string, perm string) bool {
	module, _, _ := strings.Cut(perm, ".")
	wildcard := module + ".*"
	for _, g := range granted {
		if g == "*" || g == perm || g == wildcard {
			return true
		}
	}
	return false
}

// Has reports whether the identity satisfies perm. Super admins pass every
// check unconditionally.
func Has(id *Identity, perm string) bool {
	if id == nil {
		return false
	}
	if IsSuper(id) {
		return true
	}
	return Match(id.Permissions, perm)
}

// HasAny reports whether the identity satisfies at least one requirement.
func HasAny(id *Identity, perms ...string) bool {
	for _, p := range perms {
		if Has(id, p) {
			return true
		}
	}
	return false
}

// HasAll reports whether the identity satisfies every requirement.
func HasAll(id *Identity, perms ...string) bool {
	for _, p := range perms {
		if !Has(id, p) {
			return false
		}
	}
	return true
}
