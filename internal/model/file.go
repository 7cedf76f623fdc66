package model

import "time"

// File is one submitted code or resource file.
//
// DUAL PERSISTENCE:
// Every file has a database row and a path on disk under
// uploadRoot/<username>/<project>/<path>. Which copy is authoritative
// depends on the classification:
//
//   - text (IsBinary == false): Content holds the authoritative UTF-8 text;
//     the disk copy is a mirror kept in sync on every write.
//   - binary (IsBinary == true): Content is empty and the authoritative
//     bytes live only on disk. A row whose disk path is missing is a
//     data-integrity error, not an empty file.
//
// Classification happens exactly once per submission, purely from whether
// the payload decodes as text. A re-submission reclassifies from scratch.
//
// UserID duplicates the owning project's user_id so ownership checks and
// admin listings don't need a join through projects.
type File struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	UserID    string    `json:"user_id"`
	Path      string    `json:"path"` // relative path within the project, unique per project
	Content   string    `json:"-"`    // empty when IsBinary; returned explicitly by read endpoints
	IsBinary  bool      `json:"is_binary"`
	Size      int64     `json:"size"` // encoded byte count, not character count
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FileInfo is a File joined with its owner and project names, used by the
// admin listing where rows span many users.
type FileInfo struct {
	File
	Username    string `json:"username"`
	ProjectName string `json:"project_name"`
}
