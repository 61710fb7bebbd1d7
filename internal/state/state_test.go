package state

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_MissingFileIsEmptyState(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "state.json"))
	if err := s.Load(); err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if s.HasRun("2025-01-10") {
		t.Error("empty state should have no runs")
	}
}

func TestMarkRun_PersistsAcrossStores(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	s := NewStore(path)
	at := time.Date(2025, 1, 11, 9, 0, 0, 0, time.UTC)
	if err := s.MarkRun("2025-01-10", at); err != nil {
		t.Fatalf("MarkRun error: %v", err)
	}
	if !s.HasRun("2025-01-10") {
		t.Error("HasRun false after MarkRun")
	}

	reloaded := NewStore(path)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if !reloaded.HasRun("2025-01-10") {
		t.Error("run not persisted")
	}
	if reloaded.HasRun("2025-01-11") {
		t.Error("unexpected run for other date")
	}
	runs := reloaded.Runs()
	if runs["2025-01-10"] != "2025-01-11T09:00:00Z" {
		t.Errorf("timestamp = %q", runs["2025-01-10"])
	}
}

func TestMarkRun_GrowsMonotonically(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "state.json"))
	now := time.Now()
	for _, key := range []string{"2025-01-08", "2025-01-09", "2025-01-10"} {
		if err := s.MarkRun(key, now); err != nil {
			t.Fatal(err)
		}
	}
	if len(s.Runs()) != 3 {
		t.Errorf("got %d entries, want 3", len(s.Runs()))
	}
}
