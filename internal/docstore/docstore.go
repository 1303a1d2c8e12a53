// Package docstore provides the flat, path-addressed persistence abstraction
// the pipeline writes its artifacts through. The core never assumes a
// particular backing filesystem.
package docstore

import (
	"errors"
	"fmt"
	"os"
	"path"

	"github.com/spf13/afero"
)

// ErrNotExist is returned by ReadNote for paths that have never been written.
var ErrNotExist = errors.New("note does not exist")

// Store is the document persistence contract consumed by the pipeline.
type Store interface {
	// WriteNote creates or wholly replaces the note at path.
	WriteNote(path string, content string) error
	// ReadNote returns the note content, or ErrNotExist.
	ReadNote(path string) (string, error)
	// AppendToNote appends content to the note, creating it if absent.
	AppendToNote(path string, content string) error
	// FileExists reports whether a note exists at path.
	FileExists(path string) bool
	// ListFolder returns the file names directly under path.
	ListFolder(path string) ([]string, error)
}

// FS is a Store backed by an afero filesystem rooted at a base directory.
// Tests use afero.NewMemMapFs; the CLI uses the OS filesystem.
type FS struct {
	fs afero.Fs
}

// NewFS creates a Store over the given afero filesystem.
func NewFS(fs afero.Fs) *FS {
	return &FS{fs: fs}
}

// NewOSDir creates a Store over a directory on the OS filesystem.
func NewOSDir(dir string) *FS {
	return &FS{fs: afero.NewBasePathFs(afero.NewOsFs(), dir)}
}

func (s *FS) WriteNote(name string, content string) error {
	if dir := path.Dir(name); dir != "." && dir != "/" {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create folder %s: %w", dir, err)
		}
	}
	if err := afero.WriteFile(s.fs, name, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write note %s: %w", name, err)
	}
	return nil
}

func (s *FS) ReadNote(name string) (string, error) {
	data, err := afero.ReadFile(s.fs, name)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotExist
		}
		return "", fmt.Errorf("failed to read note %s: %w", name, err)
	}
	return string(data), nil
}

func (s *FS) AppendToNote(name string, content string) error {
	if dir := path.Dir(name); dir != "." && dir != "/" {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create folder %s: %w", dir, err)
		}
	}
	f, err := s.fs.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open note %s: %w", name, err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		return fmt.Errorf("failed to append to note %s: %w", name, err)
	}
	return nil
}

func (s *FS) FileExists(name string) bool {
	ok, err := afero.Exists(s.fs, name)
	return err == nil && ok
}

func (s *FS) ListFolder(name string) ([]string, error) {
	infos, err := afero.ReadDir(s.fs, name)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list folder %s: %w", name, err)
	}
	var names []string
	for _, info := range infos {
		if !info.IsDir() {
			names = append(names, info.Name())
		}
	}
	return names, nil
}
