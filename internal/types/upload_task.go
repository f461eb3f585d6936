package types

import (
	"time"

	"github.com/google/uuid"
)

type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Terminal reports whether the status can no longer change.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// UploadTask tracks one asynchronous upload-and-process request. The task
// store hands out copies; the pipeline mutates tasks only through the store.
type UploadTask struct {
	TaskID         uuid.UUID  `json:"task_id"`
	IdempotencyKey string     `json:"idempotency_key"`
	Status         TaskStatus `json:"status"`
	Progress       int        `json:"progress"`
	Stage          string     `json:"stage,omitempty"`
	Result         *Resource  `json:"result,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}
