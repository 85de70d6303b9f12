package content

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rampline.io/internal/blob"
	"rampline.io/internal/identity"
	"rampline.io/internal/indexer"
)

// memContentStore mirrors the SQL store's renumbering semantics in memory.
type memContentStore struct {
	mu        sync.Mutex
	folders   map[string]Folder
	tasks     map[string]Task
	steps     map[string]Step
	materials map[string]Material
}

func newMemContentStore() *memContentStore {
	return &memContentStore{
		folders:   make(map[string]Folder),
		tasks:     make(map[string]Task),
		steps:     make(map[string]Step),
		materials: make(map[string]Material),
	}
}

func (m *memContentStore) InsertFolder(ctx context.Context, f *Folder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f.Position > len(m.folders) {
		f.Position = len(m.folders)
	}
	for id, other := range m.folders {
		if other.Position >= f.Position {
			other.Position++
			m.folders[id] = other
		}
	}
	m.folders[f.ID] = *f
	return nil
}

func (m *memContentStore) GetFolder(ctx context.Context, id string) (Folder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.folders[id]
	if !ok {
		return Folder{}, ErrNotFound
	}
	return f, nil
}

func (m *memContentStore) ListFolders(ctx context.Context) ([]Folder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]Folder, 0, len(m.folders))
	for _, f := range m.folders {
		result = append(result, f)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Position < result[j].Position })
	return result, nil
}

func (m *memContentStore) UpdateFolder(ctx context.Context, id string, upd FolderUpdate) (Folder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.folders[id]
	if !ok {
		return Folder{}, ErrNotFound
	}
	if upd.Name != nil {
		f.Name = *upd.Name
	}
	m.folders[id] = f
	return f, nil
}

func (m *memContentStore) DeleteFolder(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.folders[id]
	if !ok {
		return ErrNotFound
	}
	for _, t := range m.tasks {
		if t.FolderID == id {
			return fmt.Errorf("%w: folder still has tasks", ErrConflict)
		}
	}
	delete(m.folders, id)
	for fid, other := range m.folders {
		if other.Position > f.Position {
			other.Position--
			m.folders[fid] = other
		}
	}
	return nil
}

func (m *memContentStore) InsertTask(ctx context.Context, t *Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, other := range m.tasks {
		if other.FolderID == t.FolderID {
			count++
		}
	}
	if t.Position > count {
		t.Position = count
	}
	for id, other := range m.tasks {
		if other.FolderID == t.FolderID && other.Position >= t.Position {
			other.Position++
			m.tasks[id] = other
		}
	}
	m.tasks[t.ID] = *t
	return nil
}

func (m *memContentStore) GetTask(ctx context.Context, id string) (Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return Task{}, ErrNotFound
	}
	return t, nil
}

func (m *memContentStore) ListTasks(ctx context.Context, folderID string) ([]Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []Task
	for _, t := range m.tasks {
		if t.FolderID == folderID {
			result = append(result, t)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Position < result[j].Position })
	return result, nil
}

func (m *memContentStore) UpdateTask(ctx context.Context, id string, upd TaskUpdate) (Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return Task{}, ErrNotFound
	}
	if upd.Title != nil {
		t.Title = *upd.Title
	}
	if upd.Description != nil {
		t.Description = *upd.Description
	}
	m.tasks[id] = t
	return t, nil
}

func (m *memContentStore) DeleteTask(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return ErrNotFound
	}
	for sid, st := range m.steps {
		if st.TaskID == id {
			delete(m.steps, sid)
		}
	}
	delete(m.tasks, id)
	for tid, other := range m.tasks {
		if other.FolderID == t.FolderID && other.Position > t.Position {
			other.Position--
			m.tasks[tid] = other
		}
	}
	return nil
}

func (m *memContentStore) InsertStep(ctx context.Context, st *Step) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, other := range m.steps {
		if other.TaskID == st.TaskID {
			count++
		}
	}
	if st.Position > count {
		st.Position = count
	}
	for id, other := range m.steps {
		if other.TaskID == st.TaskID && other.Position >= st.Position {
			other.Position++
			m.steps[id] = other
		}
	}
	m.steps[st.ID] = *st
	return nil
}

func (m *memContentStore) GetStep(ctx context.Context, id string) (Step, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.steps[id]
	if !ok {
		return Step{}, ErrNotFound
	}
	return st, nil
}

func (m *memContentStore) ListSteps(ctx context.Context, taskID string) ([]Step, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []Step
	for _, st := range m.steps {
		if st.TaskID == taskID {
			result = append(result, st)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Position < result[j].Position })
	return result, nil
}

func (m *memContentStore) UpdateStep(ctx context.Context, id string, upd StepUpdate) (Step, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.steps[id]
	if !ok {
		return Step{}, ErrNotFound
	}
	if upd.Title != nil {
		st.Title = *upd.Title
	}
	if upd.Body != nil {
		st.Body = *upd.Body
	}
	m.steps[id] = st
	return st, nil
}

func (m *memContentStore) DeleteStep(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.steps[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.steps, id)
	for sid, other := range m.steps {
		if other.TaskID == st.TaskID && other.Position > st.Position {
			other.Position--
			m.steps[sid] = other
		}
	}
	return nil
}

func (m *memContentStore) CreateMaterial(ctx context.Context, mat *Material) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[mat.TaskID]; !ok {
		return fmt.Errorf("%w: task does not exist", ErrNotFound)
	}
	m.materials[mat.ID] = *mat
	return nil
}

func (m *memContentStore) GetMaterial(ctx context.Context, id string) (Material, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mat, ok := m.materials[id]
	if !ok {
		return Material{}, ErrNotFound
	}
	return mat, nil
}

func (m *memContentStore) UpdateMaterial(ctx context.Context, mat *Material) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.materials[mat.ID]; !ok {
		return ErrNotFound
	}
	m.materials[mat.ID] = *mat
	return nil
}

func (m *memContentStore) ListMaterials(ctx context.Context, taskID string) ([]Material, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []Material
	for _, mat := range m.materials {
		if mat.TaskID == taskID {
			result = append(result, mat)
		}
	}
	return result, nil
}

func (m *memContentStore) DeleteMaterial(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.materials[id]; !ok {
		return ErrNotFound
	}
	delete(m.materials, id)
	return nil
}

// fakeBlobStore keeps payloads in memory and can be told to fail.
type fakeBlobStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	failPut bool
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{objects: make(map[string][]byte)}
}

func (f *fakeBlobStore) Put(ctx context.Context, key string, body io.Reader, contentType string) error {
	if f.failPut {
		return errors.New("storage unavailable")
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	return nil
}

func (f *fakeBlobStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, blob.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeBlobStore) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[key]; !ok {
		return fmt.Errorf("remove %s: %w", key, blob.ErrNotFound)
	}
	delete(f.objects, key)
	return nil
}

// fakeIndexer records calls and can be told to fail.
type fakeIndexer struct {
	mu       sync.Mutex
	uploads  []string
	updates  []string
	deletes  []string
	failNext bool
}

func (f *fakeIndexer) Upload(ctx context.Context, doc indexer.Document, body io.Reader) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return errors.New("indexer unreachable")
	}
	f.uploads = append(f.uploads, doc.ID)
	return nil
}

func (f *fakeIndexer) Update(ctx context.Context, doc indexer.Document, body io.Reader) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return errors.New("indexer unreachable")
	}
	f.updates = append(f.updates, doc.ID)
	return nil
}

func (f *fakeIndexer) Delete(ctx context.Context, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return errors.New("indexer unreachable")
	}
	f.deletes = append(f.deletes, documentID)
	return nil
}

var (
	editor = identity.Actor{ID: "admin-1", Roles: identity.RoleSet{identity.RoleAdmin}}
	viewer = identity.Actor{ID: "user-1", Roles: identity.RoleSet{identity.RoleUser}}
)

func newContentFixture(t *testing.T) (*Service, *memContentStore, *fakeBlobStore, *fakeIndexer) {
	t.Helper()
	store := newMemContentStore()
	blobs := newFakeBlobStore()
	index := &fakeIndexer{}
	svc, err := NewService(store, blobs, index)
	require.NoError(t, err)
	return svc, store, blobs, index
}

func TestFolderOrdering(t *testing.T) {
	svc, _, _, _ := newContentFixture(t)
	ctx := context.Background()

	first, err := svc.CreateFolder(ctx, editor, "Week one", 0)
	require.NoError(t, err)
	second, err := svc.CreateFolder(ctx, editor, "Week two", 99)
	require.NoError(t, err)
	inserted, err := svc.CreateFolder(ctx, editor, "Before everything", 0)
	require.NoError(t, err)

	list, err := svc.ListFolders(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, inserted.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
	assert.Equal(t, second.ID, list[2].ID)
	for i, f := range list {
		assert.Equal(t, i, f.Position)
	}
}

func TestFolderValidation(t *testing.T) {
	svc, _, _, _ := newContentFixture(t)
	ctx := context.Background()

	_, err := svc.CreateFolder(ctx, editor, "  ", 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.CreateFolder(ctx, editor, "Valid", -1)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.CreateFolder(ctx, viewer, "Valid", 0)
	assert.ErrorIs(t, err, identity.ErrForbidden)
}

func TestDeleteFolderBlockedWhileTasksRemain(t *testing.T) {
	svc, _, _, _ := newContentFixture(t)
	ctx := context.Background()

	folder, err := svc.CreateFolder(ctx, editor, "Week one", 0)
	require.NoError(t, err)
	task, err := svc.CreateTask(ctx, editor, folder.ID, "Badge photo", "", 0)
	require.NoError(t, err)

	err = svc.DeleteFolder(ctx, editor, folder.ID)
	assert.ErrorIs(t, err, ErrConflict)

	require.NoError(t, svc.DeleteTask(ctx, editor, task.ID))
	require.NoError(t, svc.DeleteFolder(ctx, editor, folder.ID))
}

func TestStepPositions(t *testing.T) {
	svc, _, _, _ := newContentFixture(t)
	ctx := context.Background()

	folder, err := svc.CreateFolder(ctx, editor, "Week one", 0)
	require.NoError(t, err)
	task, err := svc.CreateTask(ctx, editor, folder.ID, "Laptop setup", "", 0)
	require.NoError(t, err)

	for _, title := range []string{"Unbox", "Power on", "Enroll"} {
		_, err := svc.CreateStep(ctx, editor, task.ID, title, "", 99)
		require.NoError(t, err)
	}
	middle, err := svc.CreateStep(ctx, editor, task.ID, "Read the guide", "", 1)
	require.NoError(t, err)

	steps, err := svc.ListSteps(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, steps, 4)
	assert.Equal(t, "Unbox", steps[0].Title)
	assert.Equal(t, middle.ID, steps[1].ID)
	assert.Equal(t, "Power on", steps[2].Title)
	for i, st := range steps {
		assert.Equal(t, i, st.Position)
	}
}

func TestUploadMaterial(t *testing.T) {
	svc, _, blobs, index := newContentFixture(t)
	ctx := context.Background()

	folder, err := svc.CreateFolder(ctx, editor, "Week one", 0)
	require.NoError(t, err)
	task, err := svc.CreateTask(ctx, editor, folder.ID, "Policies", "", 0)
	require.NoError(t, err)

	payload := []byte("employee handbook")
	material, err := svc.UploadMaterial(ctx, editor, task.ID, "handbook.pdf", "application/pdf", int64(len(payload)), bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, task.ID, material.TaskID)
	assert.Contains(t, material.StorageKey, task.ID)
	assert.Contains(t, index.uploads, material.ID)

	got, body, err := svc.OpenMaterial(ctx, material.ID)
	require.NoError(t, err)
	defer body.Close()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
	assert.Equal(t, "handbook.pdf", got.FileName)

	_ = blobs
}

func TestUploadMaterialBlobFailureIsFatal(t *testing.T) {
	svc, store, blobs, _ := newContentFixture(t)
	ctx := context.Background()

	folder, err := svc.CreateFolder(ctx, editor, "Week one", 0)
	require.NoError(t, err)
	task, err := svc.CreateTask(ctx, editor, folder.ID, "Policies", "", 0)
	require.NoError(t, err)

	blobs.failPut = true
	_, err = svc.UploadMaterial(ctx, editor, task.ID, "handbook.pdf", "application/pdf", 4, bytes.NewReader([]byte("data")))
	require.Error(t, err)

	materials, err := store.ListMaterials(ctx, task.ID)
	require.NoError(t, err)
	assert.Empty(t, materials, "no record without a stored payload")
}

func TestUploadMaterialIndexFailureIsTolerated(t *testing.T) {
	svc, _, _, index := newContentFixture(t)
	ctx := context.Background()

	folder, err := svc.CreateFolder(ctx, editor, "Week one", 0)
	require.NoError(t, err)
	task, err := svc.CreateTask(ctx, editor, folder.ID, "Policies", "", 0)
	require.NoError(t, err)

	index.failNext = true
	material, err := svc.UploadMaterial(ctx, editor, task.ID, "handbook.pdf", "application/pdf", 4, bytes.NewReader([]byte("data")))
	require.NoError(t, err, "index failure must not fail the upload")

	_, body, err := svc.OpenMaterial(ctx, material.ID)
	require.NoError(t, err)
	_ = body.Close()
}

func TestReplaceMaterial(t *testing.T) {
	svc, store, blobs, index := newContentFixture(t)
	ctx := context.Background()

	folder, err := svc.CreateFolder(ctx, editor, "Week one", 0)
	require.NoError(t, err)
	task, err := svc.CreateTask(ctx, editor, folder.ID, "Policies", "", 0)
	require.NoError(t, err)
	material, err := svc.UploadMaterial(ctx, editor, task.ID, "handbook.pdf", "application/pdf", 2, bytes.NewReader([]byte("v1")))
	require.NoError(t, err)

	_, err = svc.ReplaceMaterial(ctx, viewer, material.ID, "handbook-v2.pdf", "application/pdf", 2, bytes.NewReader([]byte("v2")))
	assert.ErrorIs(t, err, identity.ErrForbidden)

	_, err = svc.ReplaceMaterial(ctx, editor, "no-such-material", "x.pdf", "application/pdf", 2, bytes.NewReader([]byte("v2")))
	assert.ErrorIs(t, err, ErrNotFound)

	replaced, err := svc.ReplaceMaterial(ctx, editor, material.ID, "handbook-v2.pdf", "application/pdf", 2, bytes.NewReader([]byte("v2")))
	require.NoError(t, err)
	assert.Equal(t, material.ID, replaced.ID)
	assert.Equal(t, material.StorageKey, replaced.StorageKey)
	assert.Equal(t, "handbook-v2.pdf", replaced.FileName)
	assert.Contains(t, index.updates, material.ID)

	got, err := store.GetMaterial(ctx, material.ID)
	require.NoError(t, err)
	assert.Equal(t, "handbook-v2.pdf", got.FileName)
	assert.Equal(t, int64(2), got.SizeBytes)

	_, body, err := svc.OpenMaterial(ctx, material.ID)
	require.NoError(t, err)
	defer body.Close()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), data)

	_ = blobs
}

func TestReplaceMaterialIndexFailureIsTolerated(t *testing.T) {
	svc, _, _, index := newContentFixture(t)
	ctx := context.Background()

	folder, err := svc.CreateFolder(ctx, editor, "Week one", 0)
	require.NoError(t, err)
	task, err := svc.CreateTask(ctx, editor, folder.ID, "Policies", "", 0)
	require.NoError(t, err)
	material, err := svc.UploadMaterial(ctx, editor, task.ID, "handbook.pdf", "application/pdf", 2, bytes.NewReader([]byte("v1")))
	require.NoError(t, err)

	index.failNext = true
	replaced, err := svc.ReplaceMaterial(ctx, editor, material.ID, "", "", 2, bytes.NewReader([]byte("v2")))
	require.NoError(t, err)
	assert.Equal(t, "handbook.pdf", replaced.FileName)
	assert.Empty(t, index.updates)
}

func TestDeleteMaterialToleratesMissingPayload(t *testing.T) {
	svc, store, blobs, index := newContentFixture(t)
	ctx := context.Background()

	folder, err := svc.CreateFolder(ctx, editor, "Week one", 0)
	require.NoError(t, err)
	task, err := svc.CreateTask(ctx, editor, folder.ID, "Policies", "", 0)
	require.NoError(t, err)
	material, err := svc.UploadMaterial(ctx, editor, task.ID, "handbook.pdf", "application/pdf", 2, bytes.NewReader([]byte("v1")))
	require.NoError(t, err)

	blobs.mu.Lock()
	delete(blobs.objects, material.StorageKey)
	blobs.mu.Unlock()

	require.NoError(t, svc.DeleteMaterial(ctx, editor, material.ID))
	_, err = store.GetMaterial(ctx, material.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, index.deletes, material.ID)
}

func TestDeleteTaskClearsMaterials(t *testing.T) {
	svc, store, blobs, index := newContentFixture(t)
	ctx := context.Background()

	folder, err := svc.CreateFolder(ctx, editor, "Week one", 0)
	require.NoError(t, err)
	task, err := svc.CreateTask(ctx, editor, folder.ID, "Policies", "", 0)
	require.NoError(t, err)
	material, err := svc.UploadMaterial(ctx, editor, task.ID, "handbook.pdf", "application/pdf", 4, bytes.NewReader([]byte("data")))
	require.NoError(t, err)
	_, err = svc.CreateStep(ctx, editor, task.ID, "Read it", "", 0)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteTask(ctx, editor, task.ID))

	_, err = store.GetMaterial(ctx, material.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = blobs.Open(ctx, material.StorageKey)
	assert.ErrorIs(t, err, blob.ErrNotFound)
	assert.Contains(t, index.deletes, material.ID)

	steps, err := store.ListSteps(ctx, task.ID)
	require.NoError(t, err)
	assert.Empty(t, steps)
}

func TestMutationsRequireEditor(t *testing.T) {
	svc, _, _, _ := newContentFixture(t)
	ctx := context.Background()

	folder, err := svc.CreateFolder(ctx, editor, "Week one", 0)
	require.NoError(t, err)
	task, err := svc.CreateTask(ctx, editor, folder.ID, "Policies", "", 0)
	require.NoError(t, err)

	_, err = svc.CreateTask(ctx, viewer, folder.ID, "Nope", "", 0)
	assert.ErrorIs(t, err, identity.ErrForbidden)
	err = svc.DeleteTask(ctx, viewer, task.ID)
	assert.ErrorIs(t, err, identity.ErrForbidden)
	_, err = svc.UploadMaterial(ctx, viewer, task.ID, "x.txt", "", 1, bytes.NewReader([]byte("x")))
	assert.ErrorIs(t, err, identity.ErrForbidden)

	// Reads stay open to any authenticated identity.
	_, err = svc.ListTasks(ctx, folder.ID)
	assert.NoError(t, err)
}
