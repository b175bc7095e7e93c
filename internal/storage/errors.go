package storage

import "errors"

// ErrNotFound is returned when no state record exists for a key.
var ErrNotFound = errors.New("state not found")

// ErrConflict is returned when a commit's expected version no longer matches
// the stored record: another writer committed since this cycle loaded it.
var ErrConflict = errors.New("concurrent state modification")
