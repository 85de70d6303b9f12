package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"rampline.io/internal/ids"
)

// Seeded department names. "System Administration" hosts the bootstrap
// administrator; "General" is the default unit for everyone else, since an
// identity always belongs to exactly one department.
const (
	DefaultDepartmentName = "General"
	SystemDepartmentName  = "System Administration"
)

// EnsureRoles creates any missing role rows for the fixed role set. It is
// idempotent and must succeed before the process serves traffic: the
// authorization policy assumes all three roles exist.
func (s *Service) EnsureRoles(ctx context.Context) error {
	if err := s.store.EnsureRoles(ctx, AllRoles); err != nil {
		return fmt.Errorf("ensure roles: %w", err)
	}
	return nil
}

// EnsureDefaultDepartments creates the seeded departments if absent.
func (s *Service) EnsureDefaultDepartments(ctx context.Context) error {
	for _, name := range []string{DefaultDepartmentName, SystemDepartmentName} {
		if err := s.ensureDepartment(ctx, name); err != nil {
			return fmt.Errorf("ensure department %q: %w", name, err)
		}
	}
	return nil
}

// EnsureBootstrapAdministrator creates the initial superadmin when the
// identity store is empty: one identity in the System Administration
// department, holding the top role and managing that department. A
// populated store short-circuits. Credentials come from configuration; an
// empty store with no configured credentials is a startup error, because an
// administrative system must never start without a usable administrator.
func (s *Service) EnsureBootstrapAdministrator(ctx context.Context, email, password string) error {
	count, err := s.store.CountIdentities(ctx)
	if err != nil {
		return fmt.Errorf("count identities: %w", err)
	}
	if count > 0 {
		return nil
	}

	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return errors.New("bootstrap administrator credentials are not configured")
	}

	dept, err := s.store.GetDepartmentByName(ctx, SystemDepartmentName)
	if errors.Is(err, ErrNotFound) {
		if err := s.ensureDepartment(ctx, SystemDepartmentName); err != nil {
			return fmt.Errorf("create system department: %w", err)
		}
		dept, err = s.store.GetDepartmentByName(ctx, SystemDepartmentName)
	}
	if err != nil {
		return fmt.Errorf("resolve system department: %w", err)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash bootstrap password: %w", err)
	}
	now := s.now().UTC()
	admin := Identity{
		ID:             ids.New(),
		Email:          email,
		Username:       email,
		PasswordHash:   hash,
		FirstName:      "System",
		LastName:       "Administrator",
		Active:         true,
		EmailConfirmed: true,
		DepartmentID:   dept.ID,
		Roles:          RoleSet{RoleSuperAdmin},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateIdentity(ctx, &admin); err != nil {
		return fmt.Errorf("create bootstrap administrator: %w", err)
	}
	if err := s.store.AssignManager(ctx, dept.ID, admin.ID); err != nil {
		return fmt.Errorf("assign bootstrap manager: %w", err)
	}
	return nil
}

func (s *Service) ensureDepartment(ctx context.Context, name string) error {
	_, err := s.store.GetDepartmentByName(ctx, name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}
	now := s.now().UTC()
	dept := Department{
		ID:        ids.New(),
		Name:      name,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = s.store.CreateDepartment(ctx, &dept)
	// Lost race with a concurrent seeder leaves the same final state.
	if errors.Is(err, ErrConflict) {
		return nil
	}
	return err
}
