package sqlite

import (
	"context"
	"testing"

	"github.com/anika/codeclass/internal/model"
	"github.com/anika/codeclass/internal/repository"
)

func TestListSessions_FiltersAndJoin(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	alice := mustCreateUser(t, db, "alice")
	bob := mustCreateUser(t, db, "bob")

	for _, s := range []*model.Session{
		{UserID: alice.ID, Token: "tok-alice-1", IP: "10.0.0.5"},
		{UserID: alice.ID, Token: "tok-alice-2"},
		{UserID: bob.ID, Token: "tok-bob-1"},
	} {
		if err := db.CreateSession(ctx, s); err != nil {
			t.Fatalf("CreateSession(%s): %v", s.Token, err)
		}
	}
	if err := db.DeactivateSession(ctx, "tok-alice-1"); err != nil {
		t.Fatalf("DeactivateSession: %v", err)
	}

	all, err := db.ListSessions(ctx, repository.SessionFilter{})
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}
	for _, s := range all {
		if s.Username == "" {
			t.Errorf("session %s missing username", s.ID)
		}
	}

	active := true
	live, err := db.ListSessions(ctx, repository.SessionFilter{Username: "alice", Active: &active})
	if err != nil {
		t.Fatalf("ListSessions(alice, active) error = %v", err)
	}
	if len(live) != 1 || live[0].Username != "alice" || !live[0].IsActive {
		t.Errorf("alice's live sessions = %+v, want exactly the active one", live)
	}

	revoked := false
	dead, err := db.ListSessions(ctx, repository.SessionFilter{Active: &revoked})
	if err != nil {
		t.Fatalf("ListSessions(revoked) error = %v", err)
	}
	if len(dead) != 1 || dead[0].IP != "10.0.0.5" {
		t.Errorf("revoked sessions = %+v, want the deactivated alice session", dead)
	}

	none, err := db.ListSessions(ctx, repository.SessionFilter{Username: "nobody"})
	if err != nil {
		t.Fatalf("ListSessions(unknown user) error = %v", err)
	}
	if len(none) != 0 {
		t.Errorf("unknown username should match nothing, got %+v", none)
	}
}
