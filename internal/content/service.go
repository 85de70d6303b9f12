package content

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"rampline.io/internal/blob"
	"rampline.io/internal/identity"
	"rampline.io/internal/ids"
	"rampline.io/internal/indexer"
	"rampline.io/internal/obs"
)

// Service orchestrates the content tree across the relational store, blob
// storage and the indexing service. Mutations require the admin tier or
// above; reads are open to any authenticated identity.
type Service struct {
	store Store
	blobs blob.Store
	index indexer.Indexer
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

// NewService wires the three collaborators together.
func NewService(store Store, blobs blob.Store, index indexer.Indexer, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("content store is required")
	}
	if blobs == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if index == nil {
		index = indexer.Disabled{}
	}
	svc := &Service{store: store, blobs: blobs, index: index, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

func canEdit(actor identity.Actor) bool {
	return actor.Roles.Has(identity.RoleSuperAdmin) || actor.Roles.Has(identity.RoleAdmin)
}

// CreateFolder inserts a folder at the given position (zero-based;
// anything past the end appends).
func (s *Service) CreateFolder(ctx context.Context, actor identity.Actor, name string, position int) (Folder, error) {
	if !canEdit(actor) {
		return Folder{}, identity.ErrForbidden
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Folder{}, fmt.Errorf("%w: folder name is required", ErrInvalidInput)
	}
	if position < 0 {
		return Folder{}, fmt.Errorf("%w: position must not be negative", ErrInvalidInput)
	}
	now := s.now().UTC()
	f := Folder{ID: ids.New(), Name: name, Position: position, CreatedAt: now, UpdatedAt: now}
	if err := s.store.InsertFolder(ctx, &f); err != nil {
		return Folder{}, err
	}
	return f, nil
}

func (s *Service) GetFolder(ctx context.Context, id string) (Folder, error) {
	return s.store.GetFolder(ctx, strings.TrimSpace(id))
}

func (s *Service) ListFolders(ctx context.Context) ([]Folder, error) {
	return s.store.ListFolders(ctx)
}

func (s *Service) UpdateFolder(ctx context.Context, actor identity.Actor, id string, upd FolderUpdate) (Folder, error) {
	if !canEdit(actor) {
		return Folder{}, identity.ErrForbidden
	}
	if upd.Name != nil {
		trimmed := strings.TrimSpace(*upd.Name)
		if trimmed == "" {
			return Folder{}, fmt.Errorf("%w: folder name is required", ErrInvalidInput)
		}
		upd.Name = &trimmed
	}
	return s.store.UpdateFolder(ctx, strings.TrimSpace(id), upd)
}

// DeleteFolder refuses while the folder still contains tasks.
func (s *Service) DeleteFolder(ctx context.Context, actor identity.Actor, id string) error {
	if !canEdit(actor) {
		return identity.ErrForbidden
	}
	return s.store.DeleteFolder(ctx, strings.TrimSpace(id))
}

// CreateTask inserts a task at the given position within its folder.
func (s *Service) CreateTask(ctx context.Context, actor identity.Actor, folderID, title, description string, position int) (Task, error) {
	if !canEdit(actor) {
		return Task{}, identity.ErrForbidden
	}
	folderID = strings.TrimSpace(folderID)
	title = strings.TrimSpace(title)
	if folderID == "" || title == "" {
		return Task{}, fmt.Errorf("%w: folder_id and title are required", ErrInvalidInput)
	}
	if position < 0 {
		return Task{}, fmt.Errorf("%w: position must not be negative", ErrInvalidInput)
	}
	if _, err := s.store.GetFolder(ctx, folderID); err != nil {
		return Task{}, err
	}
	now := s.now().UTC()
	t := Task{
		ID:          ids.New(),
		FolderID:    folderID,
		Title:       title,
		Description: strings.TrimSpace(description),
		Position:    position,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.InsertTask(ctx, &t); err != nil {
		return Task{}, err
	}
	return t, nil
}

func (s *Service) GetTask(ctx context.Context, id string) (Task, error) {
	return s.store.GetTask(ctx, strings.TrimSpace(id))
}

func (s *Service) ListTasks(ctx context.Context, folderID string) ([]Task, error) {
	folderID = strings.TrimSpace(folderID)
	if folderID == "" {
		return nil, fmt.Errorf("%w: folder_id is required", ErrInvalidInput)
	}
	return s.store.ListTasks(ctx, folderID)
}

func (s *Service) UpdateTask(ctx context.Context, actor identity.Actor, id string, upd TaskUpdate) (Task, error) {
	if !canEdit(actor) {
		return Task{}, identity.ErrForbidden
	}
	if upd.Title != nil {
		trimmed := strings.TrimSpace(*upd.Title)
		if trimmed == "" {
			return Task{}, fmt.Errorf("%w: title is required", ErrInvalidInput)
		}
		upd.Title = &trimmed
	}
	return s.store.UpdateTask(ctx, strings.TrimSpace(id), upd)
}

// DeleteTask clears the task's materials from blob storage and the index
// before removing the row tree.
func (s *Service) DeleteTask(ctx context.Context, actor identity.Actor, id string) error {
	if !canEdit(actor) {
		return identity.ErrForbidden
	}
	id = strings.TrimSpace(id)
	materials, err := s.store.ListMaterials(ctx, id)
	if err != nil {
		return err
	}
	for _, m := range materials {
		if err := s.removeMaterial(ctx, m); err != nil {
			return err
		}
	}
	return s.store.DeleteTask(ctx, id)
}

// CreateStep inserts a step at the given position within its task.
func (s *Service) CreateStep(ctx context.Context, actor identity.Actor, taskID, title, body string, position int) (Step, error) {
	if !canEdit(actor) {
		return Step{}, identity.ErrForbidden
	}
	taskID = strings.TrimSpace(taskID)
	title = strings.TrimSpace(title)
	if taskID == "" || title == "" {
		return Step{}, fmt.Errorf("%w: task_id and title are required", ErrInvalidInput)
	}
	if position < 0 {
		return Step{}, fmt.Errorf("%w: position must not be negative", ErrInvalidInput)
	}
	if _, err := s.store.GetTask(ctx, taskID); err != nil {
		return Step{}, err
	}
	now := s.now().UTC()
	st := Step{ID: ids.New(), TaskID: taskID, Title: title, Body: body, Position: position, CreatedAt: now, UpdatedAt: now}
	if err := s.store.InsertStep(ctx, &st); err != nil {
		return Step{}, err
	}
	return st, nil
}

func (s *Service) ListSteps(ctx context.Context, taskID string) ([]Step, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return nil, fmt.Errorf("%w: task_id is required", ErrInvalidInput)
	}
	return s.store.ListSteps(ctx, taskID)
}

func (s *Service) UpdateStep(ctx context.Context, actor identity.Actor, id string, upd StepUpdate) (Step, error) {
	if !canEdit(actor) {
		return Step{}, identity.ErrForbidden
	}
	if upd.Title != nil {
		trimmed := strings.TrimSpace(*upd.Title)
		if trimmed == "" {
			return Step{}, fmt.Errorf("%w: title is required", ErrInvalidInput)
		}
		upd.Title = &trimmed
	}
	return s.store.UpdateStep(ctx, strings.TrimSpace(id), upd)
}

func (s *Service) DeleteStep(ctx context.Context, actor identity.Actor, id string) error {
	if !canEdit(actor) {
		return identity.ErrForbidden
	}
	return s.store.DeleteStep(ctx, strings.TrimSpace(id))
}

// UploadMaterial stores the payload, records the material and notifies the
// indexing service. Index failures are logged and tolerated: the document
// can be re-indexed later, while a missing blob cannot be served at all.
func (s *Service) UploadMaterial(ctx context.Context, actor identity.Actor, taskID, fileName, contentType string, size int64, body io.Reader) (Material, error) {
	if !canEdit(actor) {
		return Material{}, identity.ErrForbidden
	}
	taskID = strings.TrimSpace(taskID)
	fileName = strings.TrimSpace(fileName)
	if taskID == "" || fileName == "" {
		return Material{}, fmt.Errorf("%w: task_id and file_name are required", ErrInvalidInput)
	}
	if _, err := s.store.GetTask(ctx, taskID); err != nil {
		return Material{}, err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	m := Material{
		ID:          ids.New(),
		TaskID:      taskID,
		FileName:    fileName,
		ContentType: contentType,
		SizeBytes:   size,
		CreatedAt:   s.now().UTC(),
	}
	m.StorageKey = fmt.Sprintf("materials/%s/%s", taskID, m.ID)

	if err := s.blobs.Put(ctx, m.StorageKey, body, contentType); err != nil {
		return Material{}, fmt.Errorf("store material payload: %w", err)
	}
	if err := s.store.CreateMaterial(ctx, &m); err != nil {
		_ = s.blobs.Delete(ctx, m.StorageKey)
		return Material{}, err
	}

	if payload, err := s.blobs.Open(ctx, m.StorageKey); err == nil {
		doc := indexer.Document{ID: m.ID, TaskID: m.TaskID, FileName: m.FileName, ContentType: m.ContentType}
		if err := s.index.Upload(ctx, doc, payload); err != nil {
			obs.Logger().WithError(err).WithField("material_id", m.ID).Warn("material index upload failed")
		}
		_ = payload.Close()
	}
	return m, nil
}

// ReplaceMaterial overwrites a stored payload in place and pushes the new
// version to the index. The storage key stays stable across replacements
// so existing download links keep working.
func (s *Service) ReplaceMaterial(ctx context.Context, actor identity.Actor, id, fileName, contentType string, size int64, body io.Reader) (Material, error) {
	if !canEdit(actor) {
		return Material{}, identity.ErrForbidden
	}
	m, err := s.store.GetMaterial(ctx, strings.TrimSpace(id))
	if err != nil {
		return Material{}, err
	}
	if fileName = strings.TrimSpace(fileName); fileName != "" {
		m.FileName = fileName
	}
	if contentType != "" {
		m.ContentType = contentType
	}
	m.SizeBytes = size

	if err := s.blobs.Put(ctx, m.StorageKey, body, m.ContentType); err != nil {
		return Material{}, fmt.Errorf("store material payload: %w", err)
	}
	if err := s.store.UpdateMaterial(ctx, &m); err != nil {
		return Material{}, err
	}

	if payload, err := s.blobs.Open(ctx, m.StorageKey); err == nil {
		doc := indexer.Document{ID: m.ID, TaskID: m.TaskID, FileName: m.FileName, ContentType: m.ContentType}
		if err := s.index.Update(ctx, doc, payload); err != nil {
			obs.Logger().WithError(err).WithField("material_id", m.ID).Warn("material index update failed")
		}
		_ = payload.Close()
	}
	return m, nil
}

// OpenMaterial streams a stored payload.
func (s *Service) OpenMaterial(ctx context.Context, id string) (Material, io.ReadCloser, error) {
	m, err := s.store.GetMaterial(ctx, strings.TrimSpace(id))
	if err != nil {
		return Material{}, nil, err
	}
	rc, err := s.blobs.Open(ctx, m.StorageKey)
	if err != nil {
		return Material{}, nil, err
	}
	return m, rc, nil
}

func (s *Service) ListMaterials(ctx context.Context, taskID string) ([]Material, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return nil, fmt.Errorf("%w: task_id is required", ErrInvalidInput)
	}
	return s.store.ListMaterials(ctx, taskID)
}

// DeleteMaterial removes the record, the payload and the index entry.
func (s *Service) DeleteMaterial(ctx context.Context, actor identity.Actor, id string) error {
	if !canEdit(actor) {
		return identity.ErrForbidden
	}
	m, err := s.store.GetMaterial(ctx, strings.TrimSpace(id))
	if err != nil {
		return err
	}
	return s.removeMaterial(ctx, m)
}

func (s *Service) removeMaterial(ctx context.Context, m Material) error {
	if err := s.store.DeleteMaterial(ctx, m.ID); err != nil {
		return err
	}
	if err := s.blobs.Delete(ctx, m.StorageKey); err != nil && !errors.Is(err, blob.ErrNotFound) {
		obs.Logger().WithError(err).WithField("material_id", m.ID).Warn("material payload delete failed")
	}
	if err := s.index.Delete(ctx, m.ID); err != nil {
		obs.Logger().WithError(err).WithField("material_id", m.ID).Warn("material index delete failed")
	}
	return nil
}
