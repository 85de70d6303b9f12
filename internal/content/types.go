// Package content manages the onboarding content tree: folders contain
// tasks, tasks contain ordered steps and uploaded materials.
package content

import (
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("content: not found")
	ErrConflict     = errors.New("content: resource conflict")
	ErrInvalidInput = errors.New("content: invalid input")
)

// Folder is a top-level grouping of onboarding tasks, ordered by Position.
type Folder struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Task is one onboarding assignment within a folder.
type Task struct {
	ID          string    `json:"id"`
	FolderID    string    `json:"folder_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Position    int       `json:"position"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Step is one ordered instruction within a task.
type Step struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body,omitempty"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Material is an uploaded file attached to a task. StorageKey addresses the
// payload in blob storage; the indexing service knows it by ID.
type Material struct {
	ID          string    `json:"id"`
	TaskID      string    `json:"task_id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	StorageKey  string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

// FolderUpdate / TaskUpdate / StepUpdate apply partial-update semantics:
// nil fields are no-ops.
type FolderUpdate struct {
	Name *string
}

type TaskUpdate struct {
	Title       *string
	Description *string
}

type StepUpdate struct {
	Title *string
	Body  *string
}
