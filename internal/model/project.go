package model

import "time"

// Project groups a user's submitted files under a name.
//
// Projects are created implicitly: the first submission under a new project
// name creates the row. (user_id, name) is UNIQUE at the database layer, so
// two concurrent first submissions cannot produce duplicate rows; the loser
// of the race fetches the winner's row.
type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ProjectSummary is a Project plus derived counts for listing endpoints.
type ProjectSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	FileCount int       `json:"file_count"`
}
