package storage

import (
	"fmt"
	"sync"

	"emabot/internal/models"
)

// MemoryStore implements Interface in memory. It is the test double for the
// engine and also serves dry runs; errors are injectable per call site.
type MemoryStore struct {
	mu              sync.Mutex
	records         map[string]Record
	loadErr         error
	commitErr       error
	commitErrOnce   bool
	loadCallCount   int
	commitCallCount int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// Load implements Interface.
func (m *MemoryStore) Load(key string) (*models.PositionState, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.loadCallCount++
	if m.loadErr != nil {
		return nil, 0, m.loadErr
	}
	rec, ok := m.records[key]
	if !ok || rec.State == nil {
		return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return rec.State.Clone(), rec.Version, nil
}

// Commit implements Interface.
func (m *MemoryStore) Commit(key string, expectedVersion int64, newState *models.PositionState) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.commitCallCount++
	if m.commitErr != nil {
		err := m.commitErr
		if m.commitErrOnce {
			m.commitErr = nil
		}
		return 0, err
	}
	if newState == nil {
		return 0, fmt.Errorf("commit of nil state for %s", key)
	}
	if err := newState.Validate(); err != nil {
		return 0, fmt.Errorf("refusing invalid state for %s: %w", key, err)
	}

	current := m.records[key].Version
	if current != expectedVersion {
		return 0, fmt.Errorf("%w: %s at version %d, expected %d",
			ErrConflict, key, current, expectedVersion)
	}
	next := current + 1
	m.records[key] = Record{Version: next, State: newState.Clone()}
	return next, nil
}

// Seed installs a record directly, bypassing version checks (tests).
func (m *MemoryStore) Seed(key string, version int64, state *models.PositionState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[key] = Record{Version: version, State: state.Clone()}
}

// Current returns the stored record for key without cloning guarantees on
// version bookkeeping (tests).
func (m *MemoryStore) Current(key string) (*models.PositionState, int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key]
	if !ok || rec.State == nil {
		return nil, 0
	}
	return rec.State.Clone(), rec.Version
}

// SetLoadError makes every subsequent Load fail with err.
func (m *MemoryStore) SetLoadError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadErr = err
}

// SetCommitError makes subsequent Commits fail with err; once limits the
// failure to the next call only.
func (m *MemoryStore) SetCommitError(err error, once bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commitErr = err
	m.commitErrOnce = once
}

// LoadCallCount reports how many Loads have been issued.
func (m *MemoryStore) LoadCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadCallCount
}

// CommitCallCount reports how many Commits have been issued.
func (m *MemoryStore) CommitCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commitCallCount
}
