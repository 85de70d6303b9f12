package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"rampline.io/internal/ids"
)

// Service exposes the administrative operations over identities, roles and
// departments. Every operation resolves the target first (NotFound before
// Forbidden, so a denial never confirms existence) and then consults the
// authorization policy against the target's current role set.
type Service struct {
	store Store
	now   func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs a Service over the given store.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("identity store is required")
	}
	svc := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Authenticate verifies credentials and returns the identity with its
// department, ready to be snapshotted into session claims. Any failure maps
// to ErrUnauthorized so the response never explains which check failed.
func (s *Service) Authenticate(ctx context.Context, email, password string) (Identity, Department, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return Identity{}, Department{}, ErrUnauthorized
	}
	ident, err := s.store.GetIdentityByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Identity{}, Department{}, ErrUnauthorized
		}
		return Identity{}, Department{}, err
	}
	if !ident.Active {
		return Identity{}, Department{}, ErrUnauthorized
	}
	if err := VerifyPassword(ident.PasswordHash, password); err != nil {
		return Identity{}, Department{}, ErrUnauthorized
	}
	dept, err := s.store.GetDepartment(ctx, ident.DepartmentID)
	if err != nil {
		return Identity{}, Department{}, err
	}
	return ident, dept, nil
}

// IdentityActive reports whether the identity may still hold a session.
func (s *Service) IdentityActive(ctx context.Context, id string) (bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return false, fmt.Errorf("%w: identity id is required", ErrInvalidInput)
	}
	return s.store.IdentityActive(ctx, id)
}

// CreateIdentity provisions a new account with exactly one role. Superadmins
// may assign any role; admins only the plain user role.
func (s *Service) CreateIdentity(ctx context.Context, actor Actor, req CreateIdentityRequest) (Identity, error) {
	switch {
	case actor.Roles.Has(RoleSuperAdmin):
		// any role
	case actor.Roles.Has(RoleAdmin):
		if req.Role != RoleUser {
			return Identity{}, fmt.Errorf("%w: admins may only create plain users", ErrForbidden)
		}
	default:
		return Identity{}, ErrForbidden
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.Username = strings.TrimSpace(req.Username)
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.DepartmentID = strings.TrimSpace(req.DepartmentID)

	if req.Email == "" || !strings.Contains(req.Email, "@") {
		return Identity{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if req.Username == "" {
		return Identity{}, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if req.Password == "" {
		return Identity{}, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	if !KnownRole(req.Role) {
		return Identity{}, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, req.Role)
	}
	if req.DepartmentID == "" {
		return Identity{}, fmt.Errorf("%w: department_id is required", ErrInvalidInput)
	}
	if _, err := s.store.GetDepartment(ctx, req.DepartmentID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return Identity{}, fmt.Errorf("%w: department %s does not exist", ErrInvalidInput, req.DepartmentID)
		}
		return Identity{}, err
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return Identity{}, err
	}
	now := s.now().UTC()
	ident := Identity{
		ID:             ids.New(),
		Email:          req.Email,
		Username:       req.Username,
		PasswordHash:   hash,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Active:         true,
		EmailConfirmed: true,
		DepartmentID:   req.DepartmentID,
		Roles:          RoleSet{req.Role},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateIdentity(ctx, &ident); err != nil {
		return Identity{}, err
	}
	return ident, nil
}

// GetIdentity returns the target when the policy permits the actor to act
// on it.
func (s *Service) GetIdentity(ctx context.Context, actor Actor, id string) (Identity, error) {
	target, err := s.loadTarget(ctx, id)
	if err != nil {
		return Identity{}, err
	}
	if !CanActOn(actor.Roles, target.Roles) {
		return Identity{}, ErrForbidden
	}
	return target, nil
}

// ListIdentities returns the identities the actor may administer. Admins see
// only identities they can act on; plain users see nothing.
func (s *Service) ListIdentities(ctx context.Context, actor Actor) ([]Identity, error) {
	if !actor.Roles.Has(RoleSuperAdmin) && !actor.Roles.Has(RoleAdmin) {
		return nil, ErrForbidden
	}
	all, err := s.store.ListIdentities(ctx)
	if err != nil {
		return nil, err
	}
	if actor.Roles.Has(RoleSuperAdmin) {
		return all, nil
	}
	visible := make([]Identity, 0, len(all))
	for _, ident := range all {
		if CanActOn(actor.Roles, ident.Roles) {
			visible = append(visible, ident)
		}
	}
	return visible, nil
}

// UpdateIdentity applies the non-nil fields of upd to the target.
func (s *Service) UpdateIdentity(ctx context.Context, actor Actor, id string, upd IdentityUpdate) (Identity, error) {
	target, err := s.loadTarget(ctx, id)
	if err != nil {
		return Identity{}, err
	}
	if !CanActOn(actor.Roles, target.Roles) {
		return Identity{}, ErrForbidden
	}
	if upd.Email != nil {
		trimmed := strings.TrimSpace(strings.ToLower(*upd.Email))
		if trimmed == "" || !strings.Contains(trimmed, "@") {
			return Identity{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
		}
		upd.Email = &trimmed
	}
	if upd.Username != nil {
		trimmed := strings.TrimSpace(*upd.Username)
		if trimmed == "" {
			return Identity{}, fmt.Errorf("%w: username is required", ErrInvalidInput)
		}
		upd.Username = &trimmed
	}
	if upd.DepartmentID != nil {
		deptID := strings.TrimSpace(*upd.DepartmentID)
		if deptID == "" {
			return Identity{}, fmt.Errorf("%w: department_id is required", ErrInvalidInput)
		}
		if _, err := s.store.GetDepartment(ctx, deptID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return Identity{}, fmt.Errorf("%w: department %s does not exist", ErrInvalidInput, deptID)
			}
			return Identity{}, err
		}
		upd.DepartmentID = &deptID
	}
	return s.store.UpdateIdentity(ctx, target.ID, upd)
}

// DeactivateIdentity sets active=false on the target. Nobody may deactivate
// themself, independent of role. Already-issued sessions survive, but the
// session gateway refuses them on the next request.
func (s *Service) DeactivateIdentity(ctx context.Context, actor Actor, id string) error {
	target, err := s.loadTarget(ctx, id)
	if err != nil {
		return err
	}
	if target.ID == actor.ID {
		return ErrSelfDeactivation
	}
	if !CanActOn(actor.Roles, target.Roles) {
		return ErrForbidden
	}
	return s.store.SetIdentityActive(ctx, target.ID, false)
}

// ActivateIdentity reverses a deactivation.
func (s *Service) ActivateIdentity(ctx context.Context, actor Actor, id string) error {
	target, err := s.loadTarget(ctx, id)
	if err != nil {
		return err
	}
	if !CanActOn(actor.Roles, target.Roles) {
		return ErrForbidden
	}
	return s.store.SetIdentityActive(ctx, target.ID, true)
}

// ResetCredential replaces the target's password hash in a single atomic
// update; there is no intermediate state without a usable credential.
func (s *Service) ResetCredential(ctx context.Context, actor Actor, id, newPassword string) error {
	target, err := s.loadTarget(ctx, id)
	if err != nil {
		return err
	}
	if !CanActOn(actor.Roles, target.Roles) {
		return ErrForbidden
	}
	if strings.TrimSpace(newPassword) == "" {
		return fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.store.SetPasswordHash(ctx, target.ID, hash)
}

// UpdateOwnProfile is the self-service contract: profile names and password
// only, no policy consultation.
func (s *Service) UpdateOwnProfile(ctx context.Context, actorID string, upd ProfileUpdate) (Identity, error) {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return Identity{}, fmt.Errorf("%w: identity id is required", ErrInvalidInput)
	}
	if _, err := s.store.GetIdentity(ctx, actorID); err != nil {
		return Identity{}, err
	}
	if upd.Password != nil {
		pw := strings.TrimSpace(*upd.Password)
		if pw == "" {
			return Identity{}, fmt.Errorf("%w: password is required", ErrInvalidInput)
		}
		hash, err := HashPassword(pw)
		if err != nil {
			return Identity{}, err
		}
		if err := s.store.SetPasswordHash(ctx, actorID, hash); err != nil {
			return Identity{}, err
		}
	}
	fields := IdentityUpdate{FirstName: upd.FirstName, LastName: upd.LastName}
	return s.store.UpdateIdentity(ctx, actorID, fields)
}

// AssignRole adds a role to the target. The operation is restricted to
// superadmins entirely; it is not delegated to the acting-vs-target policy.
func (s *Service) AssignRole(ctx context.Context, actor Actor, id string, role RoleName) error {
	if !actor.Roles.Has(RoleSuperAdmin) {
		return ErrForbidden
	}
	target, err := s.loadTarget(ctx, id)
	if err != nil {
		return err
	}
	if !KnownRole(role) {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	return s.store.AssignRole(ctx, target.ID, role)
}

// RemoveRole removes a role from the target. Removing the superadmin role
// from one's own account is rejected by identity equality, not role
// comparison: the system must always retain at least the acting superadmin.
// Removal takes effect on the target's next session issuance; an
// already-issued claims bundle is not revoked.
func (s *Service) RemoveRole(ctx context.Context, actor Actor, id string, role RoleName) error {
	if !actor.Roles.Has(RoleSuperAdmin) {
		return ErrForbidden
	}
	target, err := s.loadTarget(ctx, id)
	if err != nil {
		return err
	}
	if !KnownRole(role) {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	if role == RoleSuperAdmin && target.ID == actor.ID {
		return ErrSelfLockout
	}
	return s.store.RemoveRole(ctx, target.ID, role)
}

// CreateDepartment creates an organizational unit. Manager assignment is
// deliberately deferred to AssignManager: the membership invariant cannot
// hold against a department that does not exist yet.
func (s *Service) CreateDepartment(ctx context.Context, actor Actor, name, description string) (Department, error) {
	if !actor.Roles.Has(RoleSuperAdmin) && !actor.Roles.Has(RoleAdmin) {
		return Department{}, ErrForbidden
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Department{}, fmt.Errorf("%w: department name is required", ErrInvalidInput)
	}
	now := s.now().UTC()
	dept := Department{
		ID:          ids.New(),
		Name:        name,
		Description: strings.TrimSpace(description),
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateDepartment(ctx, &dept); err != nil {
		return Department{}, err
	}
	return dept, nil
}

// GetDepartment returns a department; departments stay queryable after
// deactivation.
func (s *Service) GetDepartment(ctx context.Context, id string) (Department, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Department{}, fmt.Errorf("%w: department id is required", ErrInvalidInput)
	}
	return s.store.GetDepartment(ctx, id)
}

// ListDepartments returns all departments, active or not.
func (s *Service) ListDepartments(ctx context.Context) ([]Department, error) {
	return s.store.ListDepartments(ctx)
}

// UpdateDepartment applies the non-nil fields of upd.
func (s *Service) UpdateDepartment(ctx context.Context, actor Actor, id string, upd DepartmentUpdate) (Department, error) {
	if !actor.Roles.Has(RoleSuperAdmin) && !actor.Roles.Has(RoleAdmin) {
		return Department{}, ErrForbidden
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Department{}, fmt.Errorf("%w: department id is required", ErrInvalidInput)
	}
	if upd.Name != nil {
		trimmed := strings.TrimSpace(*upd.Name)
		if trimmed == "" {
			return Department{}, fmt.Errorf("%w: department name is required", ErrInvalidInput)
		}
		upd.Name = &trimmed
	}
	if upd.Description != nil {
		trimmed := strings.TrimSpace(*upd.Description)
		upd.Description = &trimmed
	}
	return s.store.UpdateDepartment(ctx, id, upd)
}

// AssignManager sets the department's manager. The candidate must already
// be a member of the department.
func (s *Service) AssignManager(ctx context.Context, actor Actor, deptID, managerID string) error {
	if !actor.Roles.Has(RoleSuperAdmin) && !actor.Roles.Has(RoleAdmin) {
		return ErrForbidden
	}
	deptID = strings.TrimSpace(deptID)
	managerID = strings.TrimSpace(managerID)
	if deptID == "" || managerID == "" {
		return fmt.Errorf("%w: department id and manager id are required", ErrInvalidInput)
	}
	return s.store.AssignManager(ctx, deptID, managerID)
}

// DeactivateDepartment soft-deletes a department. Only the top role may do
// this, and only once no identity references the department: reassigning
// every member first is a deliberate administrative step.
func (s *Service) DeactivateDepartment(ctx context.Context, actor Actor, id string) error {
	if !actor.Roles.Has(RoleSuperAdmin) {
		return ErrForbidden
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: department id is required", ErrInvalidInput)
	}
	return s.store.DeactivateDepartment(ctx, id)
}

func (s *Service) loadTarget(ctx context.Context, id string) (Identity, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Identity{}, fmt.Errorf("%w: identity id is required", ErrInvalidInput)
	}
	return s.store.GetIdentity(ctx, id)
}
