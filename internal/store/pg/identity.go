package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"rampline.io/internal/identity"
)

var _ identity.Store = (*Store)(nil)

const identityColumns = `id, email, username, password_hash, first_name, last_name,
	active, email_confirmed, department_id, created_at, updated_at`

func (s *Store) CreateIdentity(ctx context.Context, ident *identity.Identity) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		insert into identities (id, email, username, password_hash, first_name, last_name,
			active, email_confirmed, department_id, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
	`, ident.ID, ident.Email, ident.Username, ident.PasswordHash, ident.FirstName, ident.LastName,
		ident.Active, ident.EmailConfirmed, ident.DepartmentID, ident.CreatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return fmt.Errorf("%w: email or username already in use", identity.ErrConflict)
			case pgErrForeignKeyViolation:
				return fmt.Errorf("%w: department does not exist", identity.ErrInvalidInput)
			}
		}
		return err
	}
	for _, role := range ident.Roles {
		if _, err := tx.ExecContext(ctx, `
			insert into identity_roles (identity_id, role_name) values ($1, $2)
		`, ident.ID, string(role)); err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
				return fmt.Errorf("%w: unknown role %s", identity.ErrInvalidInput, role)
			}
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) GetIdentity(ctx context.Context, id string) (identity.Identity, error) {
	return s.identityBy(ctx, "id", id)
}

func (s *Store) GetIdentityByEmail(ctx context.Context, email string) (identity.Identity, error) {
	return s.identityBy(ctx, "email", email)
}

func (s *Store) identityBy(ctx context.Context, column, value string) (identity.Identity, error) {
	if s.db == nil {
		return identity.Identity{}, errors.New("database connection unavailable")
	}
	var ident identity.Identity
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		select %s from identities where %s = $1
	`, identityColumns, column), value).Scan(
		&ident.ID, &ident.Email, &ident.Username, &ident.PasswordHash,
		&ident.FirstName, &ident.LastName, &ident.Active, &ident.EmailConfirmed,
		&ident.DepartmentID, &ident.CreatedAt, &ident.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return identity.Identity{}, identity.ErrNotFound
	}
	if err != nil {
		return identity.Identity{}, err
	}
	roles, err := s.rolesFor(ctx, ident.ID)
	if err != nil {
		return identity.Identity{}, err
	}
	ident.Roles = roles
	return ident, nil
}

func (s *Store) ListIdentities(ctx context.Context) ([]identity.Identity, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		select %s from identities order by email
	`, identityColumns))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []identity.Identity
	index := make(map[string]int)
	for rows.Next() {
		var ident identity.Identity
		if err := rows.Scan(
			&ident.ID, &ident.Email, &ident.Username, &ident.PasswordHash,
			&ident.FirstName, &ident.LastName, &ident.Active, &ident.EmailConfirmed,
			&ident.DepartmentID, &ident.CreatedAt, &ident.UpdatedAt); err != nil {
			return nil, err
		}
		index[ident.ID] = len(result)
		result = append(result, ident)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	roleRows, err := s.db.QueryContext(ctx, `
		select identity_id, role_name from identity_roles order by identity_id, role_name
	`)
	if err != nil {
		return nil, err
	}
	defer roleRows.Close()
	for roleRows.Next() {
		var identityID, role string
		if err := roleRows.Scan(&identityID, &role); err != nil {
			return nil, err
		}
		if i, ok := index[identityID]; ok {
			result[i].Roles = append(result[i].Roles, identity.RoleName(role))
		}
	}
	return result, roleRows.Err()
}

func (s *Store) CountIdentities(ctx context.Context) (int, error) {
	if s.db == nil {
		return 0, errors.New("database connection unavailable")
	}
	var count int
	err := s.db.QueryRowContext(ctx, `select count(*) from identities`).Scan(&count)
	return count, err
}

func (s *Store) UpdateIdentity(ctx context.Context, id string, upd identity.IdentityUpdate) (identity.Identity, error) {
	if s.db == nil {
		return identity.Identity{}, errors.New("database connection unavailable")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return identity.Identity{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var currentDept string
	if err := tx.QueryRowContext(ctx, `
		select department_id from identities where id = $1
	`, id).Scan(&currentDept); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return identity.Identity{}, identity.ErrNotFound
		}
		return identity.Identity{}, err
	}

	var (
		sets []string
		args []any
		idx  = 1
	)
	add := func(column string, value any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, idx))
		args = append(args, value)
		idx++
	}
	if upd.Email != nil {
		add("email", *upd.Email)
	}
	if upd.Username != nil {
		add("username", *upd.Username)
	}
	if upd.FirstName != nil {
		add("first_name", *upd.FirstName)
	}
	if upd.LastName != nil {
		add("last_name", *upd.LastName)
	}
	if upd.DepartmentID != nil {
		add("department_id", *upd.DepartmentID)
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = now()")
		query := fmt.Sprintf(`update identities set %s where id = $%d`, strings.Join(sets, ", "), idx)
		args = append(args, id)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			if pgErr, ok := maybePgError(err); ok {
				switch pgErr.Code {
				case pgErrUniqueViolation:
					return identity.Identity{}, fmt.Errorf("%w: email or username already in use", identity.ErrConflict)
				case pgErrForeignKeyViolation:
					return identity.Identity{}, fmt.Errorf("%w: department does not exist", identity.ErrInvalidInput)
				}
			}
			return identity.Identity{}, err
		}
	}

	// Moving a manager out of the department they manage would leave a
	// dangling reference; clear it in the same transaction.
	if upd.DepartmentID != nil && *upd.DepartmentID != currentDept {
		if _, err := tx.ExecContext(ctx, `
			update departments set manager_id = null, updated_at = now()
			where id = $1 and manager_id = $2
		`, currentDept, id); err != nil {
			return identity.Identity{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return identity.Identity{}, err
	}
	return s.GetIdentity(ctx, id)
}

func (s *Store) SetIdentityActive(ctx context.Context, id string, active bool) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `
		update identities set active = $2, updated_at = now() where id = $1
	`, id, active)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return identity.ErrNotFound
	}
	return nil
}

func (s *Store) IdentityActive(ctx context.Context, id string) (bool, error) {
	if s.db == nil {
		return false, errors.New("database connection unavailable")
	}
	var active bool
	err := s.db.QueryRowContext(ctx, `select active from identities where id = $1`, id).Scan(&active)
	if errors.Is(err, sql.ErrNoRows) {
		return false, identity.ErrNotFound
	}
	if err != nil {
		return false, err
	}
	return active, nil
}

func (s *Store) SetPasswordHash(ctx context.Context, id, hash string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `
		update identities set password_hash = $2, updated_at = now() where id = $1
	`, id, hash)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return identity.ErrNotFound
	}
	return nil
}

func (s *Store) EnsureRoles(ctx context.Context, roles []identity.RoleName) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	for _, role := range roles {
		if _, err := s.db.ExecContext(ctx, `
			insert into roles (name) values ($1) on conflict (name) do nothing
		`, string(role)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) AssignRole(ctx context.Context, id string, role identity.RoleName) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `select 1 from identities where id = $1`, id).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return identity.ErrNotFound
		}
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		insert into identity_roles (identity_id, role_name) values ($1, $2)
	`, id, string(role)); err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return fmt.Errorf("%w: role already assigned", identity.ErrConflict)
			case pgErrForeignKeyViolation:
				return fmt.Errorf("%w: unknown role %s", identity.ErrInvalidInput, role)
			}
		}
		return err
	}
	return tx.Commit()
}

func (s *Store) RemoveRole(ctx context.Context, id string, role identity.RoleName) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `
		delete from identity_roles where identity_id = $1 and role_name = $2
	`, id, string(role))
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return fmt.Errorf("%w: role not assigned", identity.ErrNotFound)
	}
	return nil
}

func (s *Store) rolesFor(ctx context.Context, identityID string) (identity.RoleSet, error) {
	rows, err := s.db.QueryContext(ctx, `
		select role_name from identity_roles where identity_id = $1 order by role_name
	`, identityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles identity.RoleSet
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		roles = append(roles, identity.RoleName(role))
	}
	return roles, rows.Err()
}
