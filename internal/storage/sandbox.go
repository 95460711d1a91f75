// Package storage provides read-only sandboxed access to the media
// directory. Every path resolves inside the base directory or fails.
package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrEscapesSandbox is returned for paths that resolve outside the base directory.
var ErrEscapesSandbox = errors.New("path escapes sandbox")

// Sandbox provides file lookups within a base directory.
type Sandbox struct {
	baseDir string
}

// NewSandbox creates a Sandbox rooted at baseDir, which must be an existing
// directory. Symlinks in baseDir itself are resolved.
func NewSandbox(baseDir string) (*Sandbox, error) {
	absPath, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(absPath); err == nil {
		absPath = resolved
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("opening media directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("media directory %s is not a directory", absPath)
	}

	return &Sandbox{baseDir: absPath}, nil
}

// BaseDir returns the absolute path to the sandbox base directory.
func (s *Sandbox) BaseDir() string {
	return s.baseDir
}

// ResolvePath resolves a relative path within the sandbox without touching
// the filesystem.
func (s *Sandbox) ResolvePath(relativePath string) (string, error) {
	if filepath.IsAbs(relativePath) {
		return "", fmt.Errorf("%w: %s (absolute paths not allowed)", ErrEscapesSandbox, relativePath)
	}

	absPath := filepath.Join(s.baseDir, filepath.Clean(relativePath))
	if !s.contains(absPath) {
		return "", fmt.Errorf("%w: %s", ErrEscapesSandbox, relativePath)
	}
	return absPath, nil
}

// Resolve is ResolvePath followed by symlink evaluation; a link pointing
// outside the sandbox is rejected.
func (s *Sandbox) Resolve(relativePath string) (string, error) {
	absPath, err := s.ResolvePath(relativePath)
	if err != nil {
		return "", err
	}
	real, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		return "", err
	}
	if !s.contains(real) {
		return "", fmt.Errorf("%w: %s links outside", ErrEscapesSandbox, relativePath)
	}
	return real, nil
}

func (s *Sandbox) contains(absPath string) bool {
	return absPath == s.baseDir || strings.HasPrefix(absPath, s.baseDir+string(filepath.Separator))
}

// Stat returns file info for a path within the sandbox, following symlinks
// that stay inside it.
func (s *Sandbox) Stat(relativePath string) (os.FileInfo, error) {
	path, err := s.Resolve(relativePath)
	if err != nil {
		return nil, err
	}
	return os.Stat(path)
}

// Exists checks if a path exists within the sandbox.
func (s *Sandbox) Exists(relativePath string) (bool, error) {
	_, err := s.Stat(relativePath)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// RegularFile returns the resolved path of a regular file in the sandbox.
// Missing files and non-regular files wrap fs.ErrNotExist.
func (s *Sandbox) RegularFile(relativePath string) (string, os.FileInfo, error) {
	path, err := s.Resolve(relativePath)
	if err != nil {
		return "", nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", nil, err
	}
	if !info.Mode().IsRegular() {
		return "", nil, fmt.Errorf("%s is not a regular file: %w", relativePath, fs.ErrNotExist)
	}
	return path, info, nil
}

// FileEntry is a regular file found by ListFiles. Name is the entry name in
// the base directory even when it is a symlink.
type FileEntry struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// ListFiles returns the regular files directly under the base directory,
// sorted by name. Hidden files are skipped.
func (s *Sandbox) ListFiles() ([]FileEntry, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("reading media directory: %w", err)
	}

	files := make([]FileEntry, 0, len(entries))
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := s.Stat(entry.Name())
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		files = append(files, FileEntry{Name: entry.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}
