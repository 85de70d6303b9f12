package identity

import "context"

// Store describes the persistence operations required by the identity
// subsystem. Implementations must keep existence checks and the mutation
// they guard inside a single transaction so a target cannot vanish between
// check and write.
type Store interface {
	CreateIdentity(ctx context.Context, ident *Identity) error
	GetIdentity(ctx context.Context, id string) (Identity, error)
	GetIdentityByEmail(ctx context.Context, email string) (Identity, error)
	ListIdentities(ctx context.Context) ([]Identity, error)
	CountIdentities(ctx context.Context) (int, error)
	// UpdateIdentity applies non-nil fields. When the update moves an
	// identity that currently manages its old department, the manager
	// reference is cleared in the same transaction.
	UpdateIdentity(ctx context.Context, id string, upd IdentityUpdate) (Identity, error)
	SetIdentityActive(ctx context.Context, id string, active bool) error
	// IdentityActive is the per-request gateway check; it must stay cheap.
	IdentityActive(ctx context.Context, id string) (bool, error)
	SetPasswordHash(ctx context.Context, id, hash string) error

	EnsureRoles(ctx context.Context, roles []RoleName) error
	// AssignRole returns ErrConflict when the role is already held.
	AssignRole(ctx context.Context, id string, role RoleName) error
	// RemoveRole returns ErrNotFound when the role is not held.
	RemoveRole(ctx context.Context, id string, role RoleName) error

	CreateDepartment(ctx context.Context, dept *Department) error
	GetDepartment(ctx context.Context, id string) (Department, error)
	GetDepartmentByName(ctx context.Context, name string) (Department, error)
	ListDepartments(ctx context.Context) ([]Department, error)
	UpdateDepartment(ctx context.Context, id string, upd DepartmentUpdate) (Department, error)
	// AssignManager validates the membership invariant inside one
	// transaction: the candidate's DepartmentID must equal deptID.
	AssignManager(ctx context.Context, deptID, managerID string) error
	// DeactivateDepartment returns ErrHasMembers while any identity still
	// references the department.
	DeactivateDepartment(ctx context.Context, deptID string) error
}
