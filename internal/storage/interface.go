// Package storage provides durable persistence for position state records,
// keyed by (symbol, interval), with optimistic concurrency control.
package storage

import "emabot/internal/models"

// Interface defines the state store contract.
//
// Implementations must be safe for concurrent use. A record's version starts
// at 1 on first commit and increases by 1 per commit; Load reports the
// version the caller must later pass to Commit.
type Interface interface {
	// Load returns the state and version for key, or ErrNotFound when the
	// key has never been committed (callers then start from version 0).
	Load(key string) (*models.PositionState, int64, error)

	// Commit writes newState conditioned on expectedVersion matching the
	// stored record (0 for a first write). Returns the new version, or
	// ErrConflict when another writer got there first. The write is atomic:
	// either the full record lands or nothing changes.
	Commit(key string, expectedVersion int64, newState *models.PositionState) (int64, error)
}

// NewStorage creates the default store implementation (currently JSON-file
// based).
func NewStorage(filepath string) (Interface, error) {
	return NewJSONStore(filepath)
}

// Ensure implementations satisfy Interface.
var (
	_ Interface = (*JSONStore)(nil)
	_ Interface = (*MemoryStore)(nil)
)
