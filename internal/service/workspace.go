// Project and file workspace logic.
//
// This is the heart of the dual-persistence model. Every file has a
// database row and a disk path; WHICH copy is authoritative depends on the
// binary classification (see model.File). The write order is fixed:
//
//	1. resolve/create the project row
//	2. classify the payload (text or binary)
//	3. write the bytes to disk (the failure-prone step goes first)
//	4. upsert the database row
//
// A disk failure leaves the database untouched; the submission simply
// failed. A database failure after a fresh disk write triggers a
// best-effort removal of the just-written file, so no orphan bytes point
// at nothing. This is at-most-once-with-cleanup, not a transaction: there
// is no rollback spanning both stores, and callers must tolerate the
// window where the disk write has landed and the row has not.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/anika/codeclass/internal/apperror"
	"github.com/anika/codeclass/internal/model"
	"github.com/anika/codeclass/internal/repository"
	"github.com/anika/codeclass/internal/storage"
)

const (
	MaxProjectNameLength = 100
	// MaxSubmissionSize bounds a single file submission. Classroom material
	// is source files and small assets; 10MB is generous.
	MaxSubmissionSize = 10 << 20
)

// WorkspaceService handles the user → project → file hierarchy and its two
// storage halves.
type WorkspaceService struct {
	users    repository.UserRepository
	projects repository.ProjectRepository
	files    repository.FileRepository
	store    *storage.Store
	logger   *slog.Logger
}

func NewWorkspaceService(
	users repository.UserRepository,
	projects repository.ProjectRepository,
	files repository.FileRepository,
	store *storage.Store,
	logger *slog.Logger,
) *WorkspaceService {
	return &WorkspaceService{
		users:    users,
		projects: projects,
		files:    files,
		store:    store,
		logger:   logger,
	}
}

// Submit stores one file under (requester, projectName, relPath), creating
// the project on first use. Re-submitting the same path overwrites in
// place; there is never more than one row per (project, path).
func (s *WorkspaceService) Submit(ctx context.Context, requester *model.User, projectName, relPath string, payload []byte) (*model.File, error) {
	projectName = strings.TrimSpace(projectName)
	if projectName == "" {
		return nil, apperror.ValidationFailed("project_name", "project name is required")
	}
	if len(projectName) > MaxProjectNameLength {
		return nil, apperror.ValidationFailed("project_name",
			fmt.Sprintf("project name must be %d characters or less", MaxProjectNameLength))
	}
	if len(payload) > MaxSubmissionSize {
		return nil, apperror.ValidationFailed("code_content",
			fmt.Sprintf("submission exceeds the %d byte limit", MaxSubmissionSize))
	}

	// Reject traversal before touching anything. The store checks again on
	// every disk operation; failing here just fails earlier and cleaner.
	cleanPath, err := storage.CleanRelPath(relPath)
	if err != nil {
		return nil, err
	}
	// The project name becomes a directory segment. Validate it before the
	// row exists: if the store rejected it at write time, FindOrCreateProject
	// would already have left an empty project visible in listings.
	projectName, err = storage.CleanSegment("project_name", projectName)
	if err != nil {
		return nil, err
	}

	project, err := s.projects.FindOrCreateProject(ctx, requester.ID, projectName)
	if err != nil {
		return nil, err
	}

	c := storage.Classify(payload)

	// Disk first. The raw submitted bytes land on disk even for GBK text;
	// the disk mirrors what the student sent, the row stores UTF-8.
	existed, err := s.store.Write(requester.Username, project.Name, cleanPath, payload)
	if err != nil {
		return nil, err
	}

	file := &model.File{
		ProjectID: project.ID,
		UserID:    requester.ID,
		Path:      cleanPath,
		Content:   c.Text,
		IsBinary:  c.IsBinary,
		Size:      int64(len(payload)),
	}
	if err := s.files.UpsertFile(ctx, file); err != nil {
		// Compensating action: a fresh disk write with no row behind it is
		// an orphan. Only remove what this submission created; an overwrite
		// of an existing path keeps the (new) bytes; the old row still
		// points at the same path.
		if !existed {
			if rmErr := s.store.Remove(requester.Username, project.Name, cleanPath); rmErr != nil {
				s.logger.Warn("failed to clean up orphaned file after DB error",
					slog.String("path", cleanPath),
					slog.String("error", rmErr.Error()),
				)
			}
		}
		return nil, err
	}

	s.logger.Info("file submitted",
		slog.String("userID", requester.ID),
		slog.String("project", project.Name),
		slog.String("path", file.Path),
		slog.Bool("binary", file.IsBinary),
		slog.Int64("size", file.Size),
	)

	return file, nil
}

// ReadFile returns a file's metadata and content for the owner or an admin.
//
// Text content comes straight from the database row; the disk copy is a
// mirror and is deliberately not consulted, so a moved upload root doesn't
// break reads. Binary content is streamed from disk; the caller must Close
// the returned reader. A binary row whose disk path is gone surfaces as a
// data-integrity storage error, never as empty content.
func (s *WorkspaceService) ReadFile(ctx context.Context, requester *model.User, fileID string) (*model.File, io.ReadCloser, error) {
	file, err := s.authorizedFile(ctx, requester, fileID)
	if err != nil {
		return nil, nil, err
	}

	if !file.IsBinary {
		return file, nil, nil
	}

	owner, project, err := s.ownerAndProject(ctx, file)
	if err != nil {
		return nil, nil, err
	}
	r, err := s.store.Open(owner.Username, project.Name, file.Path)
	if err != nil {
		return nil, nil, err
	}
	return file, r, nil
}

// UpdateFile replaces a file's content with new text. The disk copy is
// overwritten first, then the row; size is the UTF-8 byte count of the new
// content. Editing through this path always yields a text file; the
// client edits text, so a former binary is reclassified by the new content.
func (s *WorkspaceService) UpdateFile(ctx context.Context, requester *model.User, fileID, content string) (*model.File, error) {
	file, err := s.authorizedFile(ctx, requester, fileID)
	if err != nil {
		return nil, err
	}
	if len(content) > MaxSubmissionSize {
		return nil, apperror.ValidationFailed("content",
			fmt.Sprintf("content exceeds the %d byte limit", MaxSubmissionSize))
	}

	owner, project, err := s.ownerAndProject(ctx, file)
	if err != nil {
		return nil, err
	}

	if _, err := s.store.Write(owner.Username, project.Name, file.Path, []byte(content)); err != nil {
		return nil, err
	}

	file.Content = content
	file.IsBinary = false
	file.Size = int64(len(content))
	if err := s.files.UpdateFile(ctx, file); err != nil {
		return nil, err
	}

	s.logger.Info("file updated",
		slog.String("fileID", file.ID),
		slog.String("userID", requester.ID),
		slog.Int64("size", file.Size),
	)

	return file, nil
}

// DeleteFile removes the file from both stores. The disk unlink runs
// first: an already-absent path counts as clean, but any other unlink
// failure aborts the delete with a storage error and leaves the row. A row
// without bytes is an integrity error we'd rather not create ourselves.
func (s *WorkspaceService) DeleteFile(ctx context.Context, requester *model.User, fileID string) error {
	file, err := s.authorizedFile(ctx, requester, fileID)
	if err != nil {
		return err
	}

	owner, project, err := s.ownerAndProject(ctx, file)
	if err != nil {
		return err
	}

	if err := s.store.Remove(owner.Username, project.Name, file.Path); err != nil {
		return err
	}
	if err := s.files.DeleteFile(ctx, file.ID); err != nil {
		return err
	}

	s.logger.Info("file deleted",
		slog.String("fileID", file.ID),
		slog.String("userID", requester.ID),
	)

	return nil
}

// Projects lists the requester's own projects with file counts.
func (s *WorkspaceService) Projects(ctx context.Context, requester *model.User) ([]model.ProjectSummary, error) {
	return s.projects.ListProjects(ctx, requester.ID)
}

// ProjectFiles lists a project's files (metadata only) for the owner or an
// admin.
func (s *WorkspaceService) ProjectFiles(ctx context.Context, requester *model.User, projectID string) ([]model.File, error) {
	project, err := s.projects.GetProjectByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !requester.CanAccess(project.UserID) {
		return nil, apperror.Forbidden("you do not have access to this project")
	}
	return s.files.ListProjectFiles(ctx, project.ID)
}

// DeleteProject removes a project, its file rows (transactionally), and,
// best-effort, its directory on disk. A failed directory removal is
// logged, not surfaced: the rows are gone and a stray directory must not
// resurrect the operation as a failure.
func (s *WorkspaceService) DeleteProject(ctx context.Context, requester *model.User, projectID string) error {
	project, err := s.projects.GetProjectByID(ctx, projectID)
	if err != nil {
		return err
	}
	if !requester.CanAccess(project.UserID) {
		return apperror.Forbidden("you do not have access to this project")
	}

	owner, err := s.users.GetUserByID(ctx, project.UserID)
	if err != nil {
		return fmt.Errorf("service/workspace: resolving owner of project %s: %w", project.ID, err)
	}

	if err := s.projects.DeleteProject(ctx, project.ID); err != nil {
		return err
	}

	if err := s.store.RemoveProject(owner.Username, project.Name); err != nil {
		s.logger.Warn("failed to remove project directory",
			slog.String("project", project.Name),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("project deleted",
		slog.String("projectID", project.ID),
		slog.String("requesterID", requester.ID),
	)

	return nil
}

// authorizedFile is the lookup-then-gate sequence every file operation
// starts with. Lookup first: a file that doesn't exist is NotFound for
// everyone; one that exists but belongs to someone else is Forbidden.
func (s *WorkspaceService) authorizedFile(ctx context.Context, requester *model.User, fileID string) (*model.File, error) {
	fileID = strings.TrimSpace(fileID)
	if fileID == "" {
		return nil, apperror.ValidationFailed("id", "file ID is required")
	}

	file, err := s.files.GetFileByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if !requester.CanAccess(file.UserID) {
		return nil, apperror.Forbidden("you do not have access to this file")
	}
	return file, nil
}

// ownerAndProject resolves the names that key a file's disk path. The
// owner's username rather than the requester's: an admin operating on a
// student's file must land in the student's directory.
func (s *WorkspaceService) ownerAndProject(ctx context.Context, file *model.File) (*model.User, *model.Project, error) {
	owner, err := s.users.GetUserByID(ctx, file.UserID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, nil, fmt.Errorf("service/workspace: file %s has no owner: %w", file.ID, err)
		}
		return nil, nil, err
	}
	project, err := s.projects.GetProjectByID(ctx, file.ProjectID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, nil, fmt.Errorf("service/workspace: file %s has no project: %w", file.ID, err)
		}
		return nil, nil, err
	}
	return owner, project, nil
}
