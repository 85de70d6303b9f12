package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"rampline.io/internal/content"
)

var _ content.Store = (*Store)(nil)

// serializableTx wraps fn in a serializable transaction. Position
// renumbering reads sibling counts before writing, so anything weaker
// allows two concurrent inserts to claim the same slot.
func (s *Store) serializableTx(ctx context.Context, fn func(*sql.Tx) error) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) InsertFolder(ctx context.Context, f *content.Folder) error {
	return s.serializableTx(ctx, func(tx *sql.Tx) error {
		var count int
		if err := tx.QueryRowContext(ctx, `select count(*) from folders`).Scan(&count); err != nil {
			return err
		}
		if f.Position > count {
			f.Position = count
		}
		if _, err := tx.ExecContext(ctx, `
			update folders set position = position + 1, updated_at = now()
			where position >= $1
		`, f.Position); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			insert into folders (id, name, position, created_at, updated_at)
			values ($1, $2, $3, $4, $4)
		`, f.ID, f.Name, f.Position, f.CreatedAt)
		if err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
				return fmt.Errorf("%w: folder already exists", content.ErrConflict)
			}
		}
		return err
	})
}

func (s *Store) GetFolder(ctx context.Context, id string) (content.Folder, error) {
	if s.db == nil {
		return content.Folder{}, errors.New("database connection unavailable")
	}
	var f content.Folder
	err := s.db.QueryRowContext(ctx, `
		select id, name, position, created_at, updated_at from folders where id = $1
	`, id).Scan(&f.ID, &f.Name, &f.Position, &f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return content.Folder{}, content.ErrNotFound
	}
	return f, err
}

func (s *Store) ListFolders(ctx context.Context) ([]content.Folder, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, name, position, created_at, updated_at from folders order by position
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []content.Folder
	for rows.Next() {
		var f content.Folder
		if err := rows.Scan(&f.ID, &f.Name, &f.Position, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	return result, rows.Err()
}

func (s *Store) UpdateFolder(ctx context.Context, id string, upd content.FolderUpdate) (content.Folder, error) {
	if s.db == nil {
		return content.Folder{}, errors.New("database connection unavailable")
	}
	if upd.Name != nil {
		res, err := s.db.ExecContext(ctx, `
			update folders set name = $2, updated_at = now() where id = $1
		`, id, *upd.Name)
		if err != nil {
			return content.Folder{}, err
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return content.Folder{}, err
		}
		if aff == 0 {
			return content.Folder{}, content.ErrNotFound
		}
	}
	return s.GetFolder(ctx, id)
}

func (s *Store) DeleteFolder(ctx context.Context, id string) error {
	return s.serializableTx(ctx, func(tx *sql.Tx) error {
		var position int
		if err := tx.QueryRowContext(ctx, `
			select position from folders where id = $1
		`, id).Scan(&position); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return content.ErrNotFound
			}
			return err
		}
		var tasks int
		if err := tx.QueryRowContext(ctx, `
			select count(*) from tasks where folder_id = $1
		`, id).Scan(&tasks); err != nil {
			return err
		}
		if tasks > 0 {
			return fmt.Errorf("%w: folder still has %d tasks", content.ErrConflict, tasks)
		}
		if _, err := tx.ExecContext(ctx, `delete from folders where id = $1`, id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			update folders set position = position - 1, updated_at = now()
			where position > $1
		`, position)
		return err
	})
}

func (s *Store) InsertTask(ctx context.Context, t *content.Task) error {
	return s.serializableTx(ctx, func(tx *sql.Tx) error {
		var count int
		if err := tx.QueryRowContext(ctx, `
			select count(*) from tasks where folder_id = $1
		`, t.FolderID).Scan(&count); err != nil {
			return err
		}
		if t.Position > count {
			t.Position = count
		}
		if _, err := tx.ExecContext(ctx, `
			update tasks set position = position + 1, updated_at = now()
			where folder_id = $1 and position >= $2
		`, t.FolderID, t.Position); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			insert into tasks (id, folder_id, title, description, position, created_at, updated_at)
			values ($1, $2, $3, $4, $5, $6, $6)
		`, t.ID, t.FolderID, t.Title, nullIfEmpty(t.Description), t.Position, t.CreatedAt)
		if err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
				return fmt.Errorf("%w: folder does not exist", content.ErrNotFound)
			}
		}
		return err
	})
}

func (s *Store) GetTask(ctx context.Context, id string) (content.Task, error) {
	if s.db == nil {
		return content.Task{}, errors.New("database connection unavailable")
	}
	var (
		t           content.Task
		description sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select id, folder_id, title, description, position, created_at, updated_at
		from tasks where id = $1
	`, id).Scan(&t.ID, &t.FolderID, &t.Title, &description, &t.Position, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return content.Task{}, content.ErrNotFound
	}
	t.Description = description.String
	return t, err
}

func (s *Store) ListTasks(ctx context.Context, folderID string) ([]content.Task, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, folder_id, title, description, position, created_at, updated_at
		from tasks where folder_id = $1 order by position
	`, folderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []content.Task
	for rows.Next() {
		var (
			t           content.Task
			description sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.FolderID, &t.Title, &description, &t.Position,
			&t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		t.Description = description.String
		result = append(result, t)
	}
	return result, rows.Err()
}

func (s *Store) UpdateTask(ctx context.Context, id string, upd content.TaskUpdate) (content.Task, error) {
	if s.db == nil {
		return content.Task{}, errors.New("database connection unavailable")
	}
	var (
		sets []string
		args []any
		idx  = 1
	)
	if upd.Title != nil {
		sets = append(sets, fmt.Sprintf("title = $%d", idx))
		args = append(args, *upd.Title)
		idx++
	}
	if upd.Description != nil {
		sets = append(sets, fmt.Sprintf("description = $%d", idx))
		args = append(args, nullIfEmpty(*upd.Description))
		idx++
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = now()")
		query := fmt.Sprintf(`update tasks set %s where id = $%d`, strings.Join(sets, ", "), idx)
		args = append(args, id)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return content.Task{}, err
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return content.Task{}, err
		}
		if aff == 0 {
			return content.Task{}, content.ErrNotFound
		}
	}
	return s.GetTask(ctx, id)
}

func (s *Store) DeleteTask(ctx context.Context, id string) error {
	return s.serializableTx(ctx, func(tx *sql.Tx) error {
		var folderID string
		var position int
		if err := tx.QueryRowContext(ctx, `
			select folder_id, position from tasks where id = $1
		`, id).Scan(&folderID, &position); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return content.ErrNotFound
			}
			return err
		}
		if _, err := tx.ExecContext(ctx, `delete from steps where task_id = $1`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `delete from tasks where id = $1`, id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			update tasks set position = position - 1, updated_at = now()
			where folder_id = $1 and position > $2
		`, folderID, position)
		return err
	})
}

func (s *Store) InsertStep(ctx context.Context, st *content.Step) error {
	return s.serializableTx(ctx, func(tx *sql.Tx) error {
		var count int
		if err := tx.QueryRowContext(ctx, `
			select count(*) from steps where task_id = $1
		`, st.TaskID).Scan(&count); err != nil {
			return err
		}
		if st.Position > count {
			st.Position = count
		}
		if _, err := tx.ExecContext(ctx, `
			update steps set position = position + 1, updated_at = now()
			where task_id = $1 and position >= $2
		`, st.TaskID, st.Position); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			insert into steps (id, task_id, title, body, position, created_at, updated_at)
			values ($1, $2, $3, $4, $5, $6, $6)
		`, st.ID, st.TaskID, st.Title, nullIfEmpty(st.Body), st.Position, st.CreatedAt)
		if err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
				return fmt.Errorf("%w: task does not exist", content.ErrNotFound)
			}
		}
		return err
	})
}

func (s *Store) GetStep(ctx context.Context, id string) (content.Step, error) {
	if s.db == nil {
		return content.Step{}, errors.New("database connection unavailable")
	}
	var (
		st   content.Step
		body sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select id, task_id, title, body, position, created_at, updated_at
		from steps where id = $1
	`, id).Scan(&st.ID, &st.TaskID, &st.Title, &body, &st.Position, &st.CreatedAt, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return content.Step{}, content.ErrNotFound
	}
	st.Body = body.String
	return st, err
}

func (s *Store) ListSteps(ctx context.Context, taskID string) ([]content.Step, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, task_id, title, body, position, created_at, updated_at
		from steps where task_id = $1 order by position
	`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []content.Step
	for rows.Next() {
		var (
			st   content.Step
			body sql.NullString
		)
		if err := rows.Scan(&st.ID, &st.TaskID, &st.Title, &body, &st.Position,
			&st.CreatedAt, &st.UpdatedAt); err != nil {
			return nil, err
		}
		st.Body = body.String
		result = append(result, st)
	}
	return result, rows.Err()
}

func (s *Store) UpdateStep(ctx context.Context, id string, upd content.StepUpdate) (content.Step, error) {
	if s.db == nil {
		return content.Step{}, errors.New("database connection unavailable")
	}
	var (
		sets []string
		args []any
		idx  = 1
	)
	if upd.Title != nil {
		sets = append(sets, fmt.Sprintf("title = $%d", idx))
		args = append(args, *upd.Title)
		idx++
	}
	if upd.Body != nil {
		sets = append(sets, fmt.Sprintf("body = $%d", idx))
		args = append(args, nullIfEmpty(*upd.Body))
		idx++
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = now()")
		query := fmt.Sprintf(`update steps set %s where id = $%d`, strings.Join(sets, ", "), idx)
		args = append(args, id)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return content.Step{}, err
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return content.Step{}, err
		}
		if aff == 0 {
			return content.Step{}, content.ErrNotFound
		}
	}
	return s.GetStep(ctx, id)
}

func (s *Store) DeleteStep(ctx context.Context, id string) error {
	return s.serializableTx(ctx, func(tx *sql.Tx) error {
		var taskID string
		var position int
		if err := tx.QueryRowContext(ctx, `
			select task_id, position from steps where id = $1
		`, id).Scan(&taskID, &position); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return content.ErrNotFound
			}
			return err
		}
		if _, err := tx.ExecContext(ctx, `delete from steps where id = $1`, id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			update steps set position = position - 1, updated_at = now()
			where task_id = $1 and position > $2
		`, taskID, position)
		return err
	})
}

func (s *Store) CreateMaterial(ctx context.Context, m *content.Material) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	_, err := s.db.ExecContext(ctx, `
		insert into materials (id, task_id, file_name, content_type, size_bytes, storage_key, created_at)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, m.ID, m.TaskID, m.FileName, m.ContentType, m.SizeBytes, m.StorageKey, m.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return fmt.Errorf("%w: task does not exist", content.ErrNotFound)
		}
	}
	return err
}

func (s *Store) GetMaterial(ctx context.Context, id string) (content.Material, error) {
	if s.db == nil {
		return content.Material{}, errors.New("database connection unavailable")
	}
	var m content.Material
	err := s.db.QueryRowContext(ctx, `
		select id, task_id, file_name, content_type, size_bytes, storage_key, created_at
		from materials where id = $1
	`, id).Scan(&m.ID, &m.TaskID, &m.FileName, &m.ContentType, &m.SizeBytes, &m.StorageKey, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return content.Material{}, content.ErrNotFound
	}
	return m, err
}

func (s *Store) UpdateMaterial(ctx context.Context, m *content.Material) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `
		update materials set file_name = $2, content_type = $3, size_bytes = $4
		where id = $1
	`, m.ID, m.FileName, m.ContentType, m.SizeBytes)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return content.ErrNotFound
	}
	return nil
}

func (s *Store) ListMaterials(ctx context.Context, taskID string) ([]content.Material, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, task_id, file_name, content_type, size_bytes, storage_key, created_at
		from materials where task_id = $1 order by created_at
	`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []content.Material
	for rows.Next() {
		var m content.Material
		if err := rows.Scan(&m.ID, &m.TaskID, &m.FileName, &m.ContentType, &m.SizeBytes,
			&m.StorageKey, &m.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func (s *Store) DeleteMaterial(ctx context.Context, id string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `delete from materials where id = $1`, id)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return content.ErrNotFound
	}
	return nil
}
