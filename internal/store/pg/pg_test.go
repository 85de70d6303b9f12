package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"rampline.io/internal/content"
	"rampline.io/internal/identity"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewWithDB(db), mock
}

func TestGetIdentityAggregatesRoles(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery("select (.+) from identities where id =").
		WithArgs("id-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "email", "username", "password_hash", "first_name", "last_name",
			"active", "email_confirmed", "department_id", "created_at", "updated_at",
		}).AddRow("id-1", "ava@corp.test", "ava", "hash", "Ava", "Reed",
			true, true, "dept-1", now, now))
	mock.ExpectQuery("select role_name from identity_roles").
		WithArgs("id-1").
		WillReturnRows(sqlmock.NewRows([]string{"role_name"}).AddRow("admin").AddRow("user"))

	ident, err := store.GetIdentity(context.Background(), "id-1")
	if err != nil {
		t.Fatalf("GetIdentity: %v", err)
	}
	if !ident.Roles.Has(identity.RoleAdmin) || !ident.Roles.Has(identity.RoleUser) {
		t.Fatalf("roles not aggregated: %v", ident.Roles)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetIdentityNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select (.+) from identities where id =").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.GetIdentity(context.Background(), "missing")
	if !errors.Is(err, identity.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateIdentityClearsManagerOnMove(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()
	dept := "dept-2"

	mock.ExpectBegin()
	mock.ExpectQuery("select department_id from identities").
		WithArgs("id-1").
		WillReturnRows(sqlmock.NewRows([]string{"department_id"}).AddRow("dept-1"))
	mock.ExpectExec("update identities set department_id =").
		WithArgs(dept, "id-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("update departments set manager_id = null").
		WithArgs("dept-1", "id-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectQuery("select (.+) from identities where id =").
		WithArgs("id-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "email", "username", "password_hash", "first_name", "last_name",
			"active", "email_confirmed", "department_id", "created_at", "updated_at",
		}).AddRow("id-1", "ava@corp.test", "ava", "hash", "Ava", "Reed",
			true, true, dept, now, now))
	mock.ExpectQuery("select role_name from identity_roles").
		WithArgs("id-1").
		WillReturnRows(sqlmock.NewRows([]string{"role_name"}).AddRow("user"))

	got, err := store.UpdateIdentity(context.Background(), "id-1", identity.IdentityUpdate{DepartmentID: &dept})
	if err != nil {
		t.Fatalf("UpdateIdentity: %v", err)
	}
	if got.DepartmentID != dept {
		t.Fatalf("department not updated: %s", got.DepartmentID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRemoveRoleNotAssigned(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("delete from identity_roles").
		WithArgs("id-1", "admin").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.RemoveRole(context.Background(), "id-1", identity.RoleAdmin)
	if !errors.Is(err, identity.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAssignManagerRequiresMembership(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("select 1 from departments").
		WithArgs("dept-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery("select department_id from identities").
		WithArgs("id-1").
		WillReturnRows(sqlmock.NewRows([]string{"department_id"}).AddRow("dept-2"))
	mock.ExpectRollback()

	err := store.AssignManager(context.Background(), "dept-1", "id-1")
	if !errors.Is(err, identity.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeactivateDepartmentWithMembers(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("select 1 from departments").
		WithArgs("dept-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery("select count\\(\\*\\) from identities").
		WithArgs("dept-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectRollback()

	err := store.DeactivateDepartment(context.Background(), "dept-1")
	if !errors.Is(err, identity.ErrHasMembers) {
		t.Fatalf("expected ErrHasMembers, got %v", err)
	}
}

func TestDeactivateDepartmentEmpty(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("select 1 from departments").
		WithArgs("dept-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery("select count\\(\\*\\) from identities").
		WithArgs("dept-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec("update departments set active = false").
		WithArgs("dept-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := store.DeactivateDepartment(context.Background(), "dept-1"); err != nil {
		t.Fatalf("DeactivateDepartment: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeleteFolderBlockedByTasks(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("select position from folders").
		WithArgs("folder-1").
		WillReturnRows(sqlmock.NewRows([]string{"position"}).AddRow(0))
	mock.ExpectQuery("select count\\(\\*\\) from tasks").
		WithArgs("folder-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectRollback()

	err := store.DeleteFolder(context.Background(), "folder-1")
	if !errors.Is(err, content.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestInsertTaskShiftsSiblings(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery("select count\\(\\*\\) from tasks").
		WithArgs("folder-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectExec("update tasks set position = position \\+ 1").
		WithArgs("folder-1", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into tasks").
		WithArgs("task-3", "folder-1", "Badge photo", sqlmock.AnyArg(), 1, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	task := &content.Task{ID: "task-3", FolderID: "folder-1", Title: "Badge photo", Position: 1, CreatedAt: now}
	if err := store.InsertTask(context.Background(), task); err != nil {
		t.Fatalf("InsertTask: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsertTaskClampsPositionPastEnd(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("select count\\(\\*\\) from tasks").
		WithArgs("folder-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectExec("update tasks set position = position \\+ 1").
		WithArgs("folder-1", 1).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("insert into tasks").
		WithArgs("task-2", "folder-1", "Laptop setup", sqlmock.AnyArg(), 1, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	task := &content.Task{ID: "task-2", FolderID: "folder-1", Title: "Laptop setup", Position: 99}
	if err := store.InsertTask(context.Background(), task); err != nil {
		t.Fatalf("InsertTask: %v", err)
	}
	if task.Position != 1 {
		t.Fatalf("position not clamped: %d", task.Position)
	}
}

func TestUpdateMaterialPersistsMetadata(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("update materials set file_name").
		WithArgs("mat-1", "handbook-v2.pdf", "application/pdf", int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	m := &content.Material{ID: "mat-1", FileName: "handbook-v2.pdf",
		ContentType: "application/pdf", SizeBytes: 9}
	if err := store.UpdateMaterial(context.Background(), m); err != nil {
		t.Fatalf("UpdateMaterial: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateMaterialNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("update materials set file_name").
		WithArgs("mat-9", "x.pdf", "application/pdf", int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	m := &content.Material{ID: "mat-9", FileName: "x.pdf",
		ContentType: "application/pdf", SizeBytes: 1}
	err := store.UpdateMaterial(context.Background(), m)
	if !errors.Is(err, content.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}
