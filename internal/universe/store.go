package universe

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// Sentinel errors surfaced by the store. The commissioner maps these onto
// its task error taxonomy.
var (
	ErrNotFound      = errors.New("universe not found")
	ErrAlreadyExists = errors.New("universe already exists")
	ErrAlreadyLocked = errors.New("universe update already in progress")
	ErrStaleVersion  = errors.New("universe version mismatch")
	ErrBadHandle     = errors.New("lock handle does not match a held lock")
)

// VersionAny skips the optimistic version check on lock acquisition
const VersionAny int64 = -1

// LockHandle proves ownership of a universe mutation lock. It is bound to
// the version value the universe will carry after a successful release.
type LockHandle struct {
	UniverseUUID uuid.UUID
	NextVersion  int64
}

// Store is the cluster data accessor. Lock and Release implement the
// mutation lock as an atomic compare-and-set on
// (version, updateInProgress); no other method touches those fields.
type Store interface {
	Create(ctx context.Context, u *Universe) error
	Get(ctx context.Context, id uuid.UUID) (*Universe, error)
	List(ctx context.Context) ([]*Universe, error)
	Delete(ctx context.Context, id uuid.UUID) error

	// Update applies a mutation to the universe record. Callers must hold
	// the mutation lock; the mutator cannot change the version counter or
	// the update-in-progress flag.
	Update(ctx context.Context, id uuid.UUID, mutate func(*Universe) error) error

	// Lock acquires the mutation lock. expectedVersion must match the
	// stored version unless it is VersionAny. force bypasses the
	// in-progress check and is reserved for destructive cleanup and crash
	// recovery. Returns a snapshot of the locked universe and a handle
	// bound to the next version value.
	Lock(ctx context.Context, id uuid.UUID, expectedVersion int64, force bool) (*Universe, *LockHandle, error)

	// Release clears update-in-progress. An empty errorString commits the
	// incremented version and clears any stored error; a non-empty one is
	// persisted for observability and the version stays unchanged.
	Release(ctx context.Context, handle *LockHandle, errorString string) error

	// ForceRelease clears a stuck lock without a handle. Used only by the
	// startup recovery pass after confirming no runner owns the record.
	ForceRelease(ctx context.Context, id uuid.UUID, errorString string) error
}

// MemStore is an in-memory Store. A single mutex makes every lock
// acquisition an atomic compare-and-set.
type MemStore struct {
	mu        sync.RWMutex
	universes map[uuid.UUID]*Universe
}

// NewMemStore creates an empty in-memory store
func NewMemStore() *MemStore {
	return &MemStore{
		universes: make(map[uuid.UUID]*Universe),
	}
}

// Create stores a new universe record
func (s *MemStore) Create(ctx context.Context, u *Universe) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.universes[u.UUID]; exists {
		return ErrAlreadyExists
	}
	s.universes[u.UUID] = u.Clone()
	return nil
}

// Get returns a copy of the universe record
func (s *MemStore) Get(ctx context.Context, id uuid.UUID) (*Universe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, exists := s.universes[id]
	if !exists {
		return nil, ErrNotFound
	}
	return u.Clone(), nil
}

// List returns copies of all universe records
func (s *MemStore) List(ctx context.Context) ([]*Universe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Universe, 0, len(s.universes))
	for _, u := range s.universes {
		out = append(out, u.Clone())
	}
	return out, nil
}

// Delete removes the universe record
func (s *MemStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.universes[id]; !exists {
		return ErrNotFound
	}
	delete(s.universes, id)
	return nil
}

// Update applies a mutation to the stored record. The version counter and
// the update-in-progress flag are restored afterwards so a mutator cannot
// subvert the lock protocol.
func (s *MemStore) Update(ctx context.Context, id uuid.UUID, mutate func(*Universe) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, exists := s.universes[id]
	if !exists {
		return ErrNotFound
	}

	version := u.Version
	inProgress := u.UpdateInProgress
	if err := mutate(u); err != nil {
		return err
	}
	u.Version = version
	u.UpdateInProgress = inProgress
	return nil
}

// Lock performs the atomic compare-and-set acquisition
func (s *MemStore) Lock(ctx context.Context, id uuid.UUID, expectedVersion int64, force bool) (*Universe, *LockHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, exists := s.universes[id]
	if !exists {
		return nil, nil, ErrNotFound
	}
	if u.UpdateInProgress && !force {
		return nil, nil, ErrAlreadyLocked
	}
	if expectedVersion != VersionAny && u.Version != expectedVersion {
		return nil, nil, ErrStaleVersion
	}

	u.UpdateInProgress = true
	handle := &LockHandle{
		UniverseUUID: id,
		NextVersion:  u.Version + 1,
	}
	return u.Clone(), handle, nil
}

// Release ends the critical section
func (s *MemStore) Release(ctx context.Context, handle *LockHandle, errorString string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, exists := s.universes[handle.UniverseUUID]
	if !exists {
		// Destroyed inside the critical section; nothing left to unlock.
		return nil
	}
	if !u.UpdateInProgress {
		return ErrBadHandle
	}

	u.UpdateInProgress = false
	if errorString == "" {
		u.Version = handle.NextVersion
		u.ErrorString = ""
	} else {
		u.ErrorString = errorString
	}
	return nil
}

// ForceRelease clears the flag without committing a version
func (s *MemStore) ForceRelease(ctx context.Context, id uuid.UUID, errorString string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, exists := s.universes[id]
	if !exists {
		return ErrNotFound
	}
	u.UpdateInProgress = false
	if errorString != "" {
		u.ErrorString = errorString
	}
	return nil
}
