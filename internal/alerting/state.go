package alerting

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/good-yellow-bee/staleguard/internal/models"
)

// ErrStateNotFound is returned when no cooldown state exists for an entity.
var ErrStateNotFound = errors.New("cooldown state not found")

// UpdateFunc mutates a cooldown state in place. exists is false when the
// state was freshly created for the call. Returning an error aborts the update.
type UpdateFunc func(state *models.CooldownState, exists bool) error

// StateStore persists per-entity cooldown state.
type StateStore interface {
	// Get returns a copy of the state, or ErrStateNotFound.
	Get(ctx context.Context, entityID string) (*models.CooldownState, error)
	// Update applies fn as an atomic read-modify-write and returns the stored result.
	Update(ctx context.Context, entityID string, fn UpdateFunc) (*models.CooldownState, error)
	// List returns all states ordered by entity id.
	List(ctx context.Context) ([]*models.CooldownState, error)
}

// MemoryStateStore is a process-local StateStore.
type MemoryStateStore struct {
	mu     sync.RWMutex
	states map[string]*models.CooldownState
}

// NewMemoryStateStore creates an empty in-memory store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{
		states: make(map[string]*models.CooldownState),
	}
}

// Get returns a copy of the state for an entity.
func (m *MemoryStateStore) Get(_ context.Context, entityID string) (*models.CooldownState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.states[entityID]
	if !ok {
		return nil, ErrStateNotFound
	}
	return s.Clone(), nil
}

// Update applies fn under the store lock. The stored state is replaced only
// when fn succeeds.
func (m *MemoryStateStore) Update(_ context.Context, entityID string, fn UpdateFunc) (*models.CooldownState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, exists := m.states[entityID]
	var working *models.CooldownState
	if exists {
		working = current.Clone()
	} else {
		working = models.NewCooldownState(entityID)
	}

	if err := fn(working, exists); err != nil {
		return nil, err
	}

	m.states[entityID] = working
	return working.Clone(), nil
}

// List returns copies of all states.
func (m *MemoryStateStore) List(_ context.Context) ([]*models.CooldownState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*models.CooldownState, 0, len(m.states))
	for _, s := range m.states {
		result = append(result, s.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].EntityID < result[j].EntityID
	})
	return result, nil
}

// keyedMutex hands out one mutex per key. Entries are never removed; the key
// space is bounded by the number of tracked entities.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

// Lock locks key and returns the matching unlock function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}
