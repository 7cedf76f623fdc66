package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/anika/codeclass/internal/apperror"
	"github.com/anika/codeclass/internal/model"
	"github.com/anika/codeclass/internal/repository"
)

// =========================================================================
// FAKES
// =========================================================================
//
// Hand-written in-memory fakes, not a mock framework: you can read exactly
// what each one does, and the tests stay dependency-free. Each fake has
// error-injection fields to simulate database failures on specific calls.

type fakeUserRepo struct {
	users  map[string]*model.User // keyed by ID
	nextID int

	createErr error
	updateErr error
	deleteErr error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User), nextID: 1}
}

func (f *fakeUserRepo) CreateUser(ctx context.Context, user *model.User) error {
	if f.createErr != nil {
		return f.createErr
	}
	for _, u := range f.users {
		if u.Username == user.Username {
			return apperror.Conflict("username already taken")
		}
	}
	user.ID = fmt.Sprintf("user-%d", f.nextID)
	f.nextID++
	user.CreatedAt = time.Now()
	copied := *user
	f.users[user.ID] = &copied
	return nil
}

func (f *fakeUserRepo) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserRepo) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	for _, u := range f.users {
		if u.Username == username {
			copied := *u
			return &copied, nil
		}
	}
	return nil, apperror.NotFound("user", username)
}

func (f *fakeUserRepo) UpdateUser(ctx context.Context, user *model.User) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	if _, ok := f.users[user.ID]; !ok {
		return apperror.NotFound("user", user.ID)
	}
	copied := *user
	f.users[user.ID] = &copied
	return nil
}

func (f *fakeUserRepo) DeleteUser(ctx context.Context, id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.users[id]; !ok {
		return apperror.NotFound("user", id)
	}
	delete(f.users, id)
	return nil
}

func (f *fakeUserRepo) ListUsers(ctx context.Context, search string, opts repository.ListOptions) ([]model.UserOverview, int, error) {
	var all []*model.User
	for _, u := range f.users {
		if search == "" || strings.Contains(u.Username, search) {
			all = append(all, u)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Username < all[j].Username })

	total := len(all)
	start := opts.Offset
	if start > total {
		start = total
	}
	end := start + opts.Limit
	if end > total {
		end = total
	}

	var page []model.UserOverview
	for _, u := range all[start:end] {
		page = append(page, model.UserOverview{User: *u})
	}
	return page, total, nil
}

type fakeProjectRepo struct {
	projects map[string]*model.Project // keyed by ID
	nextID   int

	deleteErr error
}

func newFakeProjectRepo() *fakeProjectRepo {
	return &fakeProjectRepo{projects: make(map[string]*model.Project), nextID: 1}
}

func (f *fakeProjectRepo) FindOrCreateProject(ctx context.Context, ownerID, name string) (*model.Project, error) {
	for _, p := range f.projects {
		if p.UserID == ownerID && p.Name == name {
			copied := *p
			return &copied, nil
		}
	}
	p := &model.Project{
		ID:        fmt.Sprintf("proj-%d", f.nextID),
		Name:      name,
		UserID:    ownerID,
		CreatedAt: time.Now(),
	}
	f.nextID++
	f.projects[p.ID] = p
	copied := *p
	return &copied, nil
}

func (f *fakeProjectRepo) GetProjectByID(ctx context.Context, id string) (*model.Project, error) {
	p, ok := f.projects[id]
	if !ok {
		return nil, apperror.NotFound("project", id)
	}
	copied := *p
	return &copied, nil
}

func (f *fakeProjectRepo) ListProjects(ctx context.Context, ownerID string) ([]model.ProjectSummary, error) {
	var out []model.ProjectSummary
	for _, p := range f.projects {
		if p.UserID == ownerID {
			out = append(out, model.ProjectSummary{ID: p.ID, Name: p.Name, CreatedAt: p.CreatedAt})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeProjectRepo) DeleteProject(ctx context.Context, id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.projects[id]; !ok {
		return apperror.NotFound("project", id)
	}
	delete(f.projects, id)
	return nil
}

type fakeFileRepo struct {
	files  map[string]*model.File // keyed by ID
	nextID int

	upsertErr error
	updateErr error
	deleteErr error
}

func newFakeFileRepo() *fakeFileRepo {
	return &fakeFileRepo{files: make(map[string]*model.File), nextID: 1}
}

func (f *fakeFileRepo) UpsertFile(ctx context.Context, file *model.File) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	for _, existing := range f.files {
		if existing.ProjectID == file.ProjectID && existing.Path == file.Path {
			// UPDATE path: ID and created_at survive the overwrite.
			existing.Content = file.Content
			existing.IsBinary = file.IsBinary
			existing.Size = file.Size
			existing.UpdatedAt = time.Now()
			*file = *existing
			return nil
		}
	}
	file.ID = fmt.Sprintf("file-%d", f.nextID)
	f.nextID++
	file.CreatedAt = time.Now()
	file.UpdatedAt = file.CreatedAt
	copied := *file
	f.files[file.ID] = &copied
	return nil
}

func (f *fakeFileRepo) GetFileByID(ctx context.Context, id string) (*model.File, error) {
	file, ok := f.files[id]
	if !ok {
		return nil, apperror.NotFound("file", id)
	}
	copied := *file
	return &copied, nil
}

func (f *fakeFileRepo) ListProjectFiles(ctx context.Context, projectID string) ([]model.File, error) {
	var out []model.File
	for _, file := range f.files {
		if file.ProjectID == projectID {
			out = append(out, *file)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (f *fakeFileRepo) UpdateFile(ctx context.Context, file *model.File) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	if _, ok := f.files[file.ID]; !ok {
		return apperror.NotFound("file", file.ID)
	}
	copied := *file
	copied.UpdatedAt = time.Now()
	f.files[file.ID] = &copied
	*file = copied
	return nil
}

func (f *fakeFileRepo) DeleteFile(ctx context.Context, id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.files[id]; !ok {
		return apperror.NotFound("file", id)
	}
	delete(f.files, id)
	return nil
}

func (f *fakeFileRepo) ListAllFiles(ctx context.Context, filter repository.FileFilter, opts repository.ListOptions) ([]model.FileInfo, int, error) {
	var all []model.FileInfo
	for _, file := range f.files {
		if filter.UserID != "" && file.UserID != filter.UserID {
			continue
		}
		if filter.Type == "text" && file.IsBinary {
			continue
		}
		if filter.Type == "binary" && !file.IsBinary {
			continue
		}
		if filter.Search != "" && !strings.Contains(file.Path, filter.Search) {
			continue
		}
		all = append(all, model.FileInfo{File: *file})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Path < all[j].Path })

	total := len(all)
	start := opts.Offset
	if start > total {
		start = total
	}
	end := start + opts.Limit
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

type fakeSessionRepo struct {
	sessions map[string]*model.Session // keyed by token
	nextID   int

	// users backs the username join in ListSessions; fixtures that exercise
	// the admin session listing wire it up.
	users *fakeUserRepo

	createErr error
	touchErr  error
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[string]*model.Session)}
}

func (f *fakeSessionRepo) CreateSession(ctx context.Context, session *model.Session) error {
	if f.createErr != nil {
		return f.createErr
	}
	session.ID = fmt.Sprintf("sess-%d", f.nextID)
	f.nextID++
	session.IsActive = true
	session.IssuedAt = time.Now()
	session.LastActiveAt = session.IssuedAt
	copied := *session
	f.sessions[session.Token] = &copied
	return nil
}

func (f *fakeSessionRepo) GetActiveSession(ctx context.Context, token string) (*model.Session, error) {
	s, ok := f.sessions[token]
	if !ok || !s.IsActive {
		return nil, apperror.NotFound("session", token)
	}
	copied := *s
	return &copied, nil
}

func (f *fakeSessionRepo) TouchSession(ctx context.Context, token string) error {
	if f.touchErr != nil {
		return f.touchErr
	}
	if s, ok := f.sessions[token]; ok {
		s.LastActiveAt = time.Now()
	}
	return nil
}

func (f *fakeSessionRepo) DeactivateSession(ctx context.Context, token string) error {
	if s, ok := f.sessions[token]; ok {
		s.IsActive = false
	}
	return nil
}

func (f *fakeSessionRepo) DeactivateUserSessions(ctx context.Context, userID string) error {
	for _, s := range f.sessions {
		if s.UserID == userID {
			s.IsActive = false
		}
	}
	return nil
}

func (f *fakeSessionRepo) ListSessions(ctx context.Context, filter repository.SessionFilter) ([]model.SessionInfo, error) {
	out := []model.SessionInfo{}
	for _, s := range f.sessions {
		if filter.Active != nil && s.IsActive != *filter.Active {
			continue
		}
		username := f.username(s.UserID)
		if filter.Username != "" && username != filter.Username {
			continue
		}
		out = append(out, model.SessionInfo{Session: *s, Username: username})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActiveAt.After(out[j].LastActiveAt) })
	return out, nil
}

func (f *fakeSessionRepo) username(userID string) string {
	if f.users == nil {
		return ""
	}
	if u, ok := f.users.users[userID]; ok {
		return u.Username
	}
	return ""
}

func (f *fakeSessionRepo) activeCount(userID string) int {
	n := 0
	for _, s := range f.sessions {
		if s.UserID == userID && s.IsActive {
			n++
		}
	}
	return n
}

// Interface checks: a fake drifting from the real contract should fail to
// compile, not silently pass tests.
var (
	_ repository.UserRepository    = (*fakeUserRepo)(nil)
	_ repository.ProjectRepository = (*fakeProjectRepo)(nil)
	_ repository.FileRepository    = (*fakeFileRepo)(nil)
	_ repository.SessionRepository = (*fakeSessionRepo)(nil)
)
