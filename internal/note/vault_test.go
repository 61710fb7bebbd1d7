package note

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNormalizePath(t *testing.T) {
	cases := map[string]string{
		`daily\2025\note.md`: "daily/2025/note.md",
		"daily//notes/":      "daily/notes",
		"./daily/./note.md":  "daily/note.md",
		"note.md":            "note.md",
	}
	for in, want := range cases {
		if got := NormalizePath(in); got != want {
			t.Errorf("NormalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatFileName(t *testing.T) {
	now := time.Date(2025, 3, 5, 10, 0, 0, 0, time.UTC)
	if got := FormatFileName("YYYY-MM-DD", now); got != "2025-03-05" {
		t.Errorf("got %q, want 2025-03-05", got)
	}
	if got := FormatFileName("YYYY/MM/YYYY-MM-DD", now); got != "2025/03/2025-03-05" {
		t.Errorf("got %q, want nested pattern expansion", got)
	}
}

func TestResolveDailyNote_CreatesMissingFile(t *testing.T) {
	store := NewFSStore(t.TempDir())
	now := time.Date(2025, 1, 11, 9, 0, 0, 0, time.UTC)

	path, err := ResolveDailyNote(store, "daily", "YYYY-MM-DD", now)
	if err != nil {
		t.Fatalf("ResolveDailyNote error: %v", err)
	}
	if path != "daily/2025-01-11.md" {
		t.Errorf("path = %q, want daily/2025-01-11.md", path)
	}
	content, err := store.Read(path)
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	if content != "" {
		t.Errorf("fresh note should be empty, got %q", content)
	}
}

func TestResolveDailyNote_ReturnsExistingFile(t *testing.T) {
	dir := t.TempDir()
	store := NewFSStore(dir)
	now := time.Date(2025, 1, 11, 9, 0, 0, 0, time.UTC)

	if err := os.MkdirAll(filepath.Join(dir, "daily"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "daily", "2025-01-11.md"), []byte("existing"), 0644); err != nil {
		t.Fatal(err)
	}

	path, err := ResolveDailyNote(store, "daily", "YYYY-MM-DD", now)
	if err != nil {
		t.Fatalf("ResolveDailyNote error: %v", err)
	}
	content, _ := store.Read(path)
	if content != "existing" {
		t.Errorf("existing content clobbered: %q", content)
	}
}

func TestResolveDailyNote_EmptyFormatDefaults(t *testing.T) {
	store := NewFSStore(t.TempDir())
	now := time.Date(2025, 1, 11, 9, 0, 0, 0, time.UTC)

	path, err := ResolveDailyNote(store, "", "  ", now)
	if err != nil {
		t.Fatalf("ResolveDailyNote error: %v", err)
	}
	if path != "2025-01-11.md" {
		t.Errorf("path = %q, want 2025-01-11.md", path)
	}
}

func TestResolveDailyNote_FailureIsResolutionError(t *testing.T) {
	// A file where the folder should be makes folder creation fail.
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "daily"), []byte("not a dir"), 0644); err != nil {
		t.Fatal(err)
	}
	store := NewFSStore(dir)

	_, err := ResolveDailyNote(store, "daily", "YYYY-MM-DD", time.Now())
	if err == nil {
		t.Fatal("expected error")
	}
	var resErr *ResolutionError
	if !errors.As(err, &resErr) {
		t.Errorf("error %v is not a ResolutionError", err)
	}
}
