// Package media resolves test-video filenames inside the test video directory.
package media

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var (
	ErrInvalidFilename = errors.New("invalid filename")
	ErrNotFound        = errors.New("video not found")
)

var videoExtensions = map[string]bool{".mp4": true, ".avi": true, ".mov": true}

// ValidateFilename rejects names that could leave the test video directory
func ValidateFilename(name string) error {
	if name == "" || strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	}
	return nil
}

// Library is a directory of test videos
type Library struct {
	dir string
}

// NewLibrary creates a library rooted at dir
func NewLibrary(dir string) *Library {
	return &Library{dir: dir}
}

// Resolve returns the path of a test video after validating its name
func (l *Library) Resolve(name string) (string, error) {
	if err := ValidateFilename(name); err != nil {
		return "", err
	}
	path := filepath.Join(l.dir, name)
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) || (err == nil && info.IsDir()) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", name, err)
	}
	return path, nil
}

// List returns the video files in the library, sorted by name.
// A missing directory is an empty library.
func (l *Library) List() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read test video dir: %w", err)
	}

	videos := []string{}
	for _, e := range entries {
		if e.IsDir() || !videoExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		videos = append(videos, e.Name())
	}
	sort.Strings(videos)
	return videos, nil
}
