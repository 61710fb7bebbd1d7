package note

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Store is the document storage the upsert pipeline writes through.
// Paths are vault-relative, forward-slash separated. Content is UTF-8
// text; nothing beyond that is assumed about the format.
type Store interface {
	Read(path string) (string, error)
	Write(path, content string) error
	Exists(path string) (bool, error)
	EnsureFolder(path string) error
}

// ResolutionError means the target daily note could not be located or
// created. It aborts the run without touching any state.
type ResolutionError struct {
	Path string
	Err  error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve daily note %q: %v", e.Path, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// FSStore implements Store on a directory tree rooted at the vault dir.
type FSStore struct {
	Root string
}

func NewFSStore(root string) *FSStore {
	return &FSStore{Root: root}
}

func (s *FSStore) abs(path string) string {
	return filepath.Join(s.Root, filepath.FromSlash(path))
}

func (s *FSStore) Read(path string) (string, error) {
	data, err := os.ReadFile(s.abs(path))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *FSStore) Write(path, content string) error {
	return os.WriteFile(s.abs(path), []byte(content), 0644)
}

func (s *FSStore) Exists(path string) (bool, error) {
	_, err := os.Stat(s.abs(path))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (s *FSStore) EnsureFolder(path string) error {
	if path == "" {
		return nil
	}
	return os.MkdirAll(s.abs(path), 0755)
}

var multiSlashRe = regexp.MustCompile(`/+`)

// NormalizePath canonicalizes a vault-relative path: backslashes to
// slashes, slash runs collapsed, "./" segments and trailing slash
// removed.
func NormalizePath(input string) string {
	p := strings.ReplaceAll(input, `\`, "/")
	p = multiSlashRe.ReplaceAllString(p, "/")
	p = strings.TrimPrefix(p, "./")
	p = strings.ReplaceAll(p, "/./", "/")
	return strings.TrimSuffix(p, "/")
}

// FormatFileName expands a YYYY/MM/DD date pattern (the daily-notes
// filename convention) for the given time.
func FormatFileName(format string, now time.Time) string {
	yyyy := fmt.Sprintf("%04d", now.Year())
	mm := fmt.Sprintf("%02d", int(now.Month()))
	dd := fmt.Sprintf("%02d", now.Day())
	out := strings.ReplaceAll(format, "YYYY", yyyy)
	out = strings.ReplaceAll(out, "MM", mm)
	return strings.ReplaceAll(out, "DD", dd)
}

// ResolveDailyNote returns the vault-relative path of today's daily
// note, creating the folder chain and an empty file when absent.
func ResolveDailyNote(store Store, folder, format string, now time.Time) (string, error) {
	if strings.TrimSpace(format) == "" {
		format = "YYYY-MM-DD"
	}
	fileName := FormatFileName(format, now) + ".md"

	path := fileName
	if folder != "" {
		path = folder + "/" + fileName
	}
	path = NormalizePath(path)

	exists, err := store.Exists(path)
	if err != nil {
		return "", &ResolutionError{Path: path, Err: err}
	}
	if exists {
		return path, nil
	}

	if err := store.EnsureFolder(NormalizePath(folder)); err != nil {
		return "", &ResolutionError{Path: path, Err: err}
	}
	if err := store.Write(path, ""); err != nil {
		return "", &ResolutionError{Path: path, Err: err}
	}
	return path, nil
}
