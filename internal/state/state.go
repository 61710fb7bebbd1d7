// Package state persists the per-day run ledger used to decide
// "already ran today". The map only ever grows: one entry per
// successful run, keyed by date.
package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type fileState struct {
	RunStateByDate map[string]string `json:"runStateByDate"`
}

// Store is the mutex-guarded holder around the persisted run state.
type Store struct {
	path string
	mu   sync.Mutex
	data fileState
}

func NewStore(path string) *Store {
	return &Store{
		path: path,
		data: fileState{RunStateByDate: map[string]string{}},
	}
}

// Load reads the state file. A missing file is an empty state.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var loaded fileState
	if err := json.Unmarshal(data, &loaded); err != nil {
		return err
	}
	if loaded.RunStateByDate == nil {
		loaded.RunStateByDate = map[string]string{}
	}
	s.data = loaded
	return nil
}

// HasRun reports whether a run has been recorded for dateKey.
func (s *Store) HasRun(dateKey string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.RunStateByDate[dateKey] != ""
}

// MarkRun records a completed run for dateKey and persists.
func (s *Store) MarkRun(dateKey string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.RunStateByDate[dateKey] = at.UTC().Format(time.RFC3339)
	return s.save()
}

// Runs returns a copy of the full run map.
func (s *Store) Runs() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.data.RunStateByDate))
	for k, v := range s.data.RunStateByDate {
		out[k] = v
	}
	return out
}

func (s *Store) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, append(data, '\n'), 0600)
}
