package identity

import "time"

// RoleName identifies one of the fixed capability tiers. The set is closed:
// new tiers require a seeding change, never a runtime insert.
type RoleName string

const (
	RoleSuperAdmin RoleName = "superadmin"
	RoleAdmin      RoleName = "admin"
	RoleUser       RoleName = "user"
)

// AllRoles is the seeding order for the role registry.
var AllRoles = []RoleName{RoleSuperAdmin, RoleAdmin, RoleUser}

// KnownRole reports whether name belongs to the fixed role set.
func KnownRole(name RoleName) bool {
	switch name {
	case RoleSuperAdmin, RoleAdmin, RoleUser:
		return true
	}
	return false
}

// RoleSet is an unordered collection of role names held by an identity.
type RoleSet []RoleName

// Has reports whether the set contains the given role.
func (rs RoleSet) Has(name RoleName) bool {
	for _, r := range rs {
		if r == name {
			return true
		}
	}
	return false
}

// Identity is a user account: credentials, profile, department membership
// and role assignments. Identities are never hard-deleted; deactivation
// flips Active instead.
type Identity struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	Username       string    `json:"username"`
	PasswordHash   string    `json:"-"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	Active         bool      `json:"active"`
	EmailConfirmed bool      `json:"email_confirmed"`
	DepartmentID   string    `json:"department_id"`
	Roles          RoleSet   `json:"roles"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// FullName joins the profile names for claim bundles and listings.
func (i Identity) FullName() string {
	switch {
	case i.FirstName == "":
		return i.LastName
	case i.LastName == "":
		return i.FirstName
	}
	return i.FirstName + " " + i.LastName
}

// Department is an organizational unit. ManagerID, when set, must reference
// an identity whose DepartmentID equals this department's ID.
type Department struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Active      bool      `json:"active"`
	ManagerID   string    `json:"manager_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Actor is the acting identity as captured in its session claims: a
// point-in-time snapshot, not a live view of the store.
type Actor struct {
	ID    string
	Roles RoleSet
}

// CreateIdentityRequest carries the fields required to provision an account.
// Exactly one role is assigned at creation.
type CreateIdentityRequest struct {
	Email        string
	Username     string
	Password     string
	FirstName    string
	LastName     string
	DepartmentID string
	Role         RoleName
}

// IdentityUpdate applies partial-update semantics: nil fields are no-ops,
// never clears.
type IdentityUpdate struct {
	Email        *string
	Username     *string
	FirstName    *string
	LastName     *string
	DepartmentID *string
}

// ProfileUpdate is the narrow self-service contract: profile names and an
// optional password change, nothing policy-gated.
type ProfileUpdate struct {
	FirstName *string
	LastName  *string
	Password  *string
}

// DepartmentUpdate applies partial-update semantics for departments.
type DepartmentUpdate struct {
	Name        *string
	Description *string
}
