package commissioner

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// TaskFilter selects tracking records
type TaskFilter struct {
	State        TaskState
	UniverseUUID uuid.UUID
	CustomerUUID uuid.UUID
	Limit        int
}

// TaskStore persists tracking record snapshots, queryable by id, by
// owning universe and by state. Records survive process restart and are
// never deleted; the startup recovery pass reads them to reconcile.
type TaskStore interface {
	Save(ctx context.Context, status *TaskStatus) error
	Get(ctx context.Context, id uuid.UUID) (*TaskStatus, error)
	List(ctx context.Context, filter TaskFilter) ([]*TaskStatus, error)
}

// MemTaskStore is an in-memory TaskStore
type MemTaskStore struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]*TaskStatus
}

// NewMemTaskStore creates an empty in-memory task store
func NewMemTaskStore() *MemTaskStore {
	return &MemTaskStore{
		tasks: make(map[uuid.UUID]*TaskStatus),
	}
}

// Save upserts a snapshot by task UUID
func (s *MemTaskStore) Save(ctx context.Context, status *TaskStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[status.TaskUUID] = status
	return nil
}

// Get returns the snapshot for a task UUID
func (s *MemTaskStore) Get(ctx context.Context, id uuid.UUID) (*TaskStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status, exists := s.tasks[id]
	if !exists {
		return nil, NewNotFound("task")
	}
	return status, nil
}

// List returns snapshots matching the filter, newest first
func (s *MemTaskStore) List(ctx context.Context, filter TaskFilter) ([]*TaskStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*TaskStatus, 0, len(s.tasks))
	for _, status := range s.tasks {
		if filter.State != "" && status.State != filter.State {
			continue
		}
		if filter.UniverseUUID != uuid.Nil && status.UniverseUUID != filter.UniverseUUID {
			continue
		}
		if filter.CustomerUUID != uuid.Nil && status.CustomerUUID != filter.CustomerUUID {
			continue
		}
		out = append(out, status)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreateTime.After(out[j].CreateTime)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}
