// Package storage owns the on-disk half of the dual-persistence model.
//
// Every file lives under uploadRoot/<username>/<project>/<relative path>.
// The database row is the other half; the service layer keeps the two in
// step. This package's one hard invariant is containment: no input (username,
// project name, or relative path) may ever resolve to a path
// outside the upload root. Traversal attempts are rejected, not neutralized
// into something that happens to land inside.
package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/anika/codeclass/internal/apperror"
)

// Store reads and writes file content under a single upload root.
type Store struct {
	root string // absolute
}

// New creates the upload root if needed and returns a Store for it.
func New(root string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolving upload root %s: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("storage: creating upload root %s: %w", abs, err)
	}
	return &Store{root: abs}, nil
}

// Root returns the absolute upload root path.
func (s *Store) Root() string {
	return s.root
}

// Write stores data at the resolved path, creating parent directories as
// needed. It reports whether a file already existed there, so a failed
// database commit afterwards knows whether removing the file is a cleanup
// or would destroy a previous submission.
func (s *Store) Write(username, project, relPath string, data []byte) (existed bool, err error) {
	target, err := s.resolve(username, project, relPath)
	if err != nil {
		return false, err
	}

	if _, statErr := os.Stat(target); statErr == nil {
		existed = true
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return existed, apperror.Storage("failed to store file content", err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return existed, apperror.Storage("failed to store file content", err)
	}

	return existed, nil
}

// Open returns a reader over the stored bytes. A row that points at a
// missing path is a data-integrity problem, not an empty file, so the error
// says so, and fs.ErrNotExist stays in the chain so callers can tell the
// missing-on-disk case from an ordinary read failure.
func (s *Store) Open(username, project, relPath string) (io.ReadCloser, error) {
	target, err := s.resolve(username, project, relPath)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperror.Storage("file content missing on disk", err)
		}
		return nil, apperror.Storage("failed to read file content", err)
	}
	return f, nil
}

// Remove deletes the stored bytes. An already-absent path is already clean,
// not an error.
func (s *Store) Remove(username, project, relPath string) error {
	target, err := s.resolve(username, project, relPath)
	if err != nil {
		return err
	}

	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return apperror.Storage("failed to remove file content", err)
	}
	return nil
}

// RemoveProject deletes a project's directory tree. Best-effort semantics
// are the caller's choice; this returns the error and lets the service
// decide whether it is fatal.
func (s *Store) RemoveProject(username, project string) error {
	dir, err := s.resolveDir(username, project)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return apperror.Storage("failed to remove project directory", err)
	}
	return nil
}

// RenameUser moves a user's directory tree to a new username segment.
// A missing source directory is fine, the user may never have submitted.
func (s *Store) RenameUser(oldName, newName string) error {
	oldSeg, err := sanitizeSegment("username", oldName)
	if err != nil {
		return err
	}
	newSeg, err := sanitizeSegment("username", newName)
	if err != nil {
		return err
	}

	src := filepath.Join(s.root, oldSeg)
	if _, err := os.Stat(src); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := os.Rename(src, filepath.Join(s.root, newSeg)); err != nil {
		return apperror.Storage("failed to rename user directory", err)
	}
	return nil
}

// RemoveUser deletes a user's whole directory tree.
func (s *Store) RemoveUser(username string) error {
	seg, err := sanitizeSegment("username", username)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(filepath.Join(s.root, seg)); err != nil {
		return apperror.Storage("failed to remove user directory", err)
	}
	return nil
}

// resolve maps (username, project, relPath) to an absolute path inside the
// upload root, rejecting anything that would escape it.
func (s *Store) resolve(username, project, relPath string) (string, error) {
	dir, err := s.resolveDir(username, project)
	if err != nil {
		return "", err
	}

	rel, err := CleanRelPath(relPath)
	if err != nil {
		return "", err
	}

	joined := filepath.Join(dir, filepath.FromSlash(rel))

	// Belt and braces: filepath.Join cleans the path, but verify containment
	// anyway so no future change to CleanRelPath can silently break it.
	if joined != dir && !strings.HasPrefix(joined, dir+string(filepath.Separator)) {
		return "", apperror.ValidationFailed("file_path", "file path escapes the project directory")
	}

	return joined, nil
}

func (s *Store) resolveDir(username, project string) (string, error) {
	userSeg, err := sanitizeSegment("username", username)
	if err != nil {
		return "", err
	}
	projectSeg, err := sanitizeSegment("project_name", project)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, userSeg, projectSeg), nil
}

// CleanSegment validates a value that will become a single directory name
// under the upload root (a username or a project name). Callers that create
// database rows keyed by such a value should run it through here first, so
// a name the store would later refuse never produces a row.
func CleanSegment(field, value string) (string, error) {
	return sanitizeSegment(field, value)
}

// sanitizeSegment validates a single directory segment (username or project
// name). Segments are used verbatim as one directory name, so anything with
// path structure in it is rejected outright.
func sanitizeSegment(field, value string) (string, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return "", apperror.ValidationFailed(field, field+" must not be empty")
	}
	if v == "." || v == ".." {
		return "", apperror.ValidationFailed(field, field+" is not a valid directory name")
	}
	if strings.ContainsAny(v, "/\\\x00") {
		return "", apperror.ValidationFailed(field, field+" must not contain path separators")
	}
	return v, nil
}

// CleanRelPath normalizes a submitted relative path into slash-separated
// form and rejects traversal: parent references, absolute paths, drive
// letters, and NUL bytes all fail validation. Every surviving path is a
// plain descent like `a/b/c.py` relative to the project directory.
func CleanRelPath(p string) (string, error) {
	if strings.ContainsRune(p, '\x00') {
		return "", apperror.ValidationFailed("file_path", "file path contains invalid characters")
	}

	clean := strings.ReplaceAll(strings.TrimSpace(p), "\\", "/")
	if clean == "" {
		return "", apperror.ValidationFailed("file_path", "file path must not be empty")
	}
	if strings.HasPrefix(clean, "/") || (len(clean) > 1 && clean[1] == ':') {
		return "", apperror.ValidationFailed("file_path", "file path must be relative")
	}

	// path.Clean collapses "." segments and resolves "a/b/../c"; anything
	// still starting with ".." after cleaning tries to climb out.
	clean = path.Clean(clean)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", apperror.ValidationFailed("file_path", "file path escapes the project directory")
	}

	return clean, nil
}
