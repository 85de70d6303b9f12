package content

import "context"

// Store persists the content tree. Insert and delete renumber sibling
// positions inside a serializable transaction so concurrent inserts cannot
// produce duplicate sequence values.
type Store interface {
	// InsertFolder places the folder at its Position, shifting later
	// siblings down. Position past the end appends.
	InsertFolder(ctx context.Context, f *Folder) error
	GetFolder(ctx context.Context, id string) (Folder, error)
	ListFolders(ctx context.Context) ([]Folder, error)
	UpdateFolder(ctx context.Context, id string, upd FolderUpdate) (Folder, error)
	// DeleteFolder fails with ErrConflict while the folder still has tasks
	// and compacts remaining sibling positions.
	DeleteFolder(ctx context.Context, id string) error

	InsertTask(ctx context.Context, t *Task) error
	GetTask(ctx context.Context, id string) (Task, error)
	ListTasks(ctx context.Context, folderID string) ([]Task, error)
	UpdateTask(ctx context.Context, id string, upd TaskUpdate) (Task, error)
	// DeleteTask removes the task with its steps; materials must already
	// be gone (the service clears blob storage and the index first).
	DeleteTask(ctx context.Context, id string) error

	InsertStep(ctx context.Context, st *Step) error
	GetStep(ctx context.Context, id string) (Step, error)
	ListSteps(ctx context.Context, taskID string) ([]Step, error)
	UpdateStep(ctx context.Context, id string, upd StepUpdate) (Step, error)
	DeleteStep(ctx context.Context, id string) error

	CreateMaterial(ctx context.Context, m *Material) error
	GetMaterial(ctx context.Context, id string) (Material, error)
	// UpdateMaterial persists a replaced payload's metadata; the storage
	// key is immutable.
	UpdateMaterial(ctx context.Context, m *Material) error
	ListMaterials(ctx context.Context, taskID string) ([]Material, error)
	DeleteMaterial(ctx context.Context, id string) error
}
