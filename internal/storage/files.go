package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileInfo describes one workspace file.
type FileInfo struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// FileListing is the result of listing a workspace directory.
type FileListing struct {
	Path        string     `json:"path"`
	Files       []FileInfo `json:"files"`
	Directories []string   `json:"directories"`
}

// securePath confines path to the session workspace. Absolute paths and
// any path containing a parent-directory segment are rejected before a
// single filesystem call is made. An empty path resolves to the
// workspace root (valid for listing only).
func (s *Session) securePath(path string) (string, error) {
	if path == "" {
		return s.WorkspaceDir, nil
	}
	if filepath.IsAbs(path) {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, path)
	}
	for _, seg := range strings.Split(filepath.ToSlash(path), "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: %s", ErrInvalidPath, path)
		}
	}

	full := filepath.Join(s.WorkspaceDir, filepath.Clean(path))
	if rel, err := filepath.Rel(s.WorkspaceDir, full); err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, path)
	}
	return full, nil
}

// WriteFile writes content to a workspace-relative path, creating parent
// directories as needed. Returns the byte count written.
func (s *Session) WriteFile(path, content string) (int, error) {
	full, err := s.securePath(path)
	if err != nil {
		return 0, err
	}
	if full == s.WorkspaceDir {
		return 0, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}

	if err := os.MkdirAll(filepath.Dir(full), 0750); err != nil {
		return 0, fmt.Errorf("creating parent directory: %w", err)
	}
	if err := os.WriteFile(full, []byte(content), 0640); err != nil {
		return 0, fmt.Errorf("writing file: %w", err)
	}
	return len(content), nil
}

// ReadFile reads a workspace-relative file.
func (s *Session) ReadFile(path string) (string, error) {
	full, err := s.securePath(path)
	if err != nil {
		return "", err
	}
	if full == s.WorkspaceDir {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}

	data, err := os.ReadFile(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("file not found: %s", path)
		}
		return "", fmt.Errorf("reading file: %w", err)
	}
	return string(data), nil
}

// ListFiles lists a workspace-relative directory. A missing directory
// yields an empty listing, not an error.
func (s *Session) ListFiles(path string) (FileListing, error) {
	full, err := s.securePath(path)
	if err != nil {
		return FileListing{}, err
	}

	display := path
	if display == "" {
		display = "/"
	}
	listing := FileListing{Path: display, Files: []FileInfo{}, Directories: []string{}}

	entries, err := os.ReadDir(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return listing, nil
		}
		return FileListing{}, fmt.Errorf("listing directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			listing.Directories = append(listing.Directories, entry.Name())
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		listing.Files = append(listing.Files, FileInfo{Name: entry.Name(), Size: info.Size()})
	}
	return listing, nil
}
