package services

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/timottowitz/covidvaccinedetox/internal/logger"
	"github.com/timottowitz/covidvaccinedetox/internal/types"
)

// TaskStore owns every outstanding upload task. All access goes through the
// store; the pipeline never holds a task pointer of its own. Terminal tasks
// are kept for a grace period so clients can still poll the outcome, then
// swept by the janitor.
type TaskStore struct {
	mu        sync.RWMutex
	byID      map[uuid.UUID]*types.UploadTask
	byIdemKey map[string]uuid.UUID

	retention     time.Duration
	maxProcessing time.Duration
	log           *logger.Logger

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewTaskStore(retention, maxProcessing time.Duration, baseLog *logger.Logger) *TaskStore {
	if retention <= 0 {
		retention = time.Hour
	}
	if maxProcessing <= 0 {
		maxProcessing = 30 * time.Minute
	}
	s := &TaskStore{
		byID:          map[uuid.UUID]*types.UploadTask{},
		byIdemKey:     map[string]uuid.UUID{},
		retention:     retention,
		maxProcessing: maxProcessing,
		log:           baseLog.With("component", "TaskStore"),
		stop:          make(chan struct{}),
	}
	s.wg.Add(1)
	go s.janitor()
	return s
}

// Close stops the janitor. Outstanding tasks stay readable until process
// exit.
func (s *TaskStore) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
}

// CreateOrGet returns the live task for idemKey when one exists, otherwise
// creates a fresh pending task. The bool reports whether a task was created.
func (s *TaskStore) CreateOrGet(idemKey string) (types.UploadTask, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byIdemKey[idemKey]; ok {
		if t, ok := s.byID[id]; ok {
			return *t, false
		}
	}

	now := time.Now().UTC()
	t := &types.UploadTask{
		TaskID:         uuid.New(),
		IdempotencyKey: idemKey,
		Status:         types.TaskStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.byID[t.TaskID] = t
	s.byIdemKey[idemKey] = t.TaskID
	return *t, true
}

// Get returns a snapshot of the task, or false when unknown.
func (s *TaskStore) Get(taskID uuid.UUID) (types.UploadTask, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.byID[taskID]
	if !ok {
		return types.UploadTask{}, false
	}
	return *t, true
}

// SetStage moves a non-terminal task to processing and records the current
// pipeline stage. Calls against terminal tasks are ignored.
func (s *TaskStore) SetStage(taskID uuid.UUID, stage string, progress int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[taskID]
	if !ok || t.Status.Terminal() {
		return
	}
	t.Status = types.TaskStatusProcessing
	t.Stage = stage
	t.Progress = progress
	t.UpdatedAt = time.Now().UTC()
}

// Complete marks the task done and attaches the finished resource.
func (s *TaskStore) Complete(taskID uuid.UUID, result *types.Resource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[taskID]
	if !ok || t.Status.Terminal() {
		return
	}
	t.Status = types.TaskStatusCompleted
	t.Progress = 100
	t.Stage = "done"
	t.Result = result
	t.ErrorMessage = ""
	t.UpdatedAt = time.Now().UTC()
}

// Fail marks the task failed with a human-readable message.
func (s *TaskStore) Fail(taskID uuid.UUID, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[taskID]
	if !ok || t.Status.Terminal() {
		return
	}
	t.Status = types.TaskStatusFailed
	t.Stage = "failed"
	t.ErrorMessage = msg
	t.UpdatedAt = time.Now().UTC()
}

func (s *TaskStore) janitor() {
	defer s.wg.Done()
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep(time.Now().UTC())
		}
	}
}

// sweep removes terminal tasks past retention and times out tasks stuck in
// processing beyond the watchdog bound.
func (s *TaskStore) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.byID {
		switch {
		case t.Status.Terminal() && now.Sub(t.UpdatedAt) > s.retention:
			delete(s.byID, id)
			if cur, ok := s.byIdemKey[t.IdempotencyKey]; ok && cur == id {
				delete(s.byIdemKey, t.IdempotencyKey)
			}
		case t.Status == types.TaskStatusProcessing && now.Sub(t.UpdatedAt) > s.maxProcessing:
			s.log.Warn("Task exceeded processing bound, marking failed", "task_id", id)
			t.Status = types.TaskStatusFailed
			t.Stage = "failed"
			t.ErrorMessage = "processing timed out"
			t.UpdatedAt = now
		}
	}
}
