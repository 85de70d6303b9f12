package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"rampline.io/internal/identity"
)

const departmentColumns = `id, name, description, active, manager_id, created_at, updated_at`

func scanDepartment(row interface{ Scan(...any) error }) (identity.Department, error) {
	var (
		dept        identity.Department
		description sql.NullString
		managerID   sql.NullString
	)
	err := row.Scan(&dept.ID, &dept.Name, &description, &dept.Active, &managerID,
		&dept.CreatedAt, &dept.UpdatedAt)
	if err != nil {
		return identity.Department{}, err
	}
	dept.Description = description.String
	dept.ManagerID = managerID.String
	return dept, nil
}

func (s *Store) CreateDepartment(ctx context.Context, dept *identity.Department) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	_, err := s.db.ExecContext(ctx, `
		insert into departments (id, name, description, active, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $5)
	`, dept.ID, dept.Name, nullIfEmpty(dept.Description), dept.Active, dept.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return fmt.Errorf("%w: department name already in use", identity.ErrConflict)
		}
		return err
	}
	return nil
}

func (s *Store) GetDepartment(ctx context.Context, id string) (identity.Department, error) {
	return s.departmentBy(ctx, "id", id)
}

func (s *Store) GetDepartmentByName(ctx context.Context, name string) (identity.Department, error) {
	return s.departmentBy(ctx, "name", name)
}

func (s *Store) departmentBy(ctx context.Context, column, value string) (identity.Department, error) {
	if s.db == nil {
		return identity.Department{}, errors.New("database connection unavailable")
	}
	dept, err := scanDepartment(s.db.QueryRowContext(ctx, fmt.Sprintf(`
		select %s from departments where %s = $1
	`, departmentColumns, column), value))
	if errors.Is(err, sql.ErrNoRows) {
		return identity.Department{}, identity.ErrNotFound
	}
	return dept, err
}

func (s *Store) ListDepartments(ctx context.Context) ([]identity.Department, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		select %s from departments order by name
	`, departmentColumns))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []identity.Department
	for rows.Next() {
		dept, err := scanDepartment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, dept)
	}
	return result, rows.Err()
}

func (s *Store) UpdateDepartment(ctx context.Context, id string, upd identity.DepartmentUpdate) (identity.Department, error) {
	if s.db == nil {
		return identity.Department{}, errors.New("database connection unavailable")
	}
	var (
		sets []string
		args []any
		idx  = 1
	)
	if upd.Name != nil {
		sets = append(sets, fmt.Sprintf("name = $%d", idx))
		args = append(args, *upd.Name)
		idx++
	}
	if upd.Description != nil {
		sets = append(sets, fmt.Sprintf("description = $%d", idx))
		args = append(args, nullIfEmpty(*upd.Description))
		idx++
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = now()")
		query := fmt.Sprintf(`update departments set %s where id = $%d`, strings.Join(sets, ", "), idx)
		args = append(args, id)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
				return identity.Department{}, fmt.Errorf("%w: department name already in use", identity.ErrConflict)
			}
			return identity.Department{}, err
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return identity.Department{}, err
		}
		if aff == 0 {
			return identity.Department{}, identity.ErrNotFound
		}
	}
	return s.GetDepartment(ctx, id)
}

func (s *Store) AssignManager(ctx context.Context, deptID, managerID string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `select 1 from departments where id = $1`, deptID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return identity.ErrNotFound
		}
		return err
	}
	var memberDept string
	if err := tx.QueryRowContext(ctx, `
		select department_id from identities where id = $1
	`, managerID).Scan(&memberDept); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return identity.ErrNotFound
		}
		return err
	}
	if memberDept != deptID {
		return fmt.Errorf("%w: manager must belong to the department", identity.ErrInvalidInput)
	}
	if _, err := tx.ExecContext(ctx, `
		update departments set manager_id = $2, updated_at = now() where id = $1
	`, deptID, managerID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) DeactivateDepartment(ctx context.Context, deptID string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `select 1 from departments where id = $1`, deptID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return identity.ErrNotFound
		}
		return err
	}
	var members int
	if err := tx.QueryRowContext(ctx, `
		select count(*) from identities where department_id = $1
	`, deptID).Scan(&members); err != nil {
		return err
	}
	if members > 0 {
		return fmt.Errorf("%w: %d identities still assigned", identity.ErrHasMembers, members)
	}
	if _, err := tx.ExecContext(ctx, `
		update departments set active = false, manager_id = null, updated_at = now()
		where id = $1
	`, deptID); err != nil {
		return err
	}
	return tx.Commit()
}
