package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"emabot/internal/models"
)

// Record is one versioned state entry.
type Record struct {
	Version int64                 `json:"version"`
	State   *models.PositionState `json:"state"`
}

type fileData struct {
	Records     map[string]Record `json:"records"`
	LastUpdated time.Time         `json:"last_updated"`
}

// JSONStore persists all records in a single JSON file. Writes go to a temp
// file first and are renamed into place so a crash mid-write never corrupts
// the previous state.
type JSONStore struct {
	mu       sync.RWMutex
	filepath string
	data     fileData
}

// NewJSONStore opens (or initializes) the store at filepath.
func NewJSONStore(filepath string) (*JSONStore, error) {
	s := &JSONStore{
		filepath: filepath,
		data:     fileData{Records: make(map[string]Record)},
	}
	if _, err := os.Stat(filepath); err == nil {
		if err := s.load(); err != nil {
			return nil, fmt.Errorf("loading state store: %w", err)
		}
	}
	return s, nil
}

// Load implements Interface.
func (s *JSONStore) Load(key string) (*models.PositionState, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.data.Records[key]
	if !ok || rec.State == nil {
		return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return rec.State.Clone(), rec.Version, nil
}

// Commit implements Interface.
func (s *JSONStore) Commit(key string, expectedVersion int64, newState *models.PositionState) (int64, error) {
	if newState == nil {
		return 0, fmt.Errorf("commit of nil state for %s", key)
	}
	if err := newState.Validate(); err != nil {
		return 0, fmt.Errorf("refusing invalid state for %s: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prior, existed := s.data.Records[key]
	if prior.Version != expectedVersion {
		return 0, fmt.Errorf("%w: %s at version %d, expected %d",
			ErrConflict, key, prior.Version, expectedVersion)
	}

	next := prior.Version + 1
	s.data.Records[key] = Record{Version: next, State: newState.Clone()}
	if err := s.save(); err != nil {
		// Roll back the in-memory record so a later retry with the same
		// expected version still succeeds.
		if existed {
			s.data.Records[key] = prior
		} else {
			delete(s.data.Records, key)
		}
		return 0, err
	}
	return next, nil
}

func (s *JSONStore) load() error {
	raw, err := os.ReadFile(s.filepath)
	if err != nil {
		return err
	}
	var data fileData
	if err := json.Unmarshal(raw, &data); err != nil {
		return err
	}
	if data.Records == nil {
		data.Records = make(map[string]Record)
	}
	s.data = data
	return nil
}

// save must be called with the write lock held.
func (s *JSONStore) save() error {
	s.data.LastUpdated = time.Now().UTC()

	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.filepath + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.filepath)
}
