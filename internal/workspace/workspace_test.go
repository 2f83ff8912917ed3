package workspace

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/feedbackhq/feedbackhq/internal/access"
	"github.com/feedbackhq/feedbackhq/internal/notify"
	"github.com/feedbackhq/feedbackhq/internal/store"
	_ "github.com/feedbackhq/feedbackhq/internal/store/sqlite"
)

func newTestService(t *testing.T) (*Service, *notify.Recorder, store.Driver) {
	t.Helper()
	ctx := context.Background()

	db, err := store.New(&store.DriverConfig{Driver: "sqlite", DataDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Init(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	rec := notify.NewRecorder()
	svc := New(db, rec, access.New(db), "https://app.feedback.com", nil)
	return svc, rec, db
}

func newUser(t *testing.T, db store.Driver, email string) *store.User {
	t.Helper()
	u := &store.User{Email: email, FullName: "Someone"}
	if err := db.CreateUser(context.Background(), u); err != nil {
		t.Fatal(err)
	}
	return u
}

func TestCreateWorkspace(t *testing.T) {
	svc, rec, db := newTestService(t)
	ctx := context.Background()
	owner := newUser(t, db, "owner@example.com")

	ws, err := svc.Create(ctx, owner, CreateInput{
		Name:    "Blue Sky",
		Type:    "Company",
		Purpose: "Work",
		Role:    "Engineer",
		Collaborators: []CollaboratorInvite{
			{Email: "a@example.com", AccessLevel: store.AccessEdit},
			{Email: "b@example.com"},
			{Email: "a@example.com"},     // duplicate in input
			{Email: "owner@example.com"}, // owner never invites themself
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if ws.Subdomain != "bluesky.feedback.com" {
		t.Errorf("subdomain: got %q", ws.Subdomain)
	}

	collabs, err := db.ListCollaboratorsByWorkspace(ctx, ws.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(collabs) != 2 {
		t.Errorf("collaborators: got %d want 2", len(collabs))
	}
	if len(rec.Invites) != 2 {
		t.Errorf("invites sent: got %d want 2", len(rec.Invites))
	}

	got, err := db.GetUser(ctx, owner.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Onboarded {
		t.Error("owner not marked onboarded")
	}
}

func TestCreateResolvesExistingUserInvites(t *testing.T) {
	svc, _, db := newTestService(t)
	ctx := context.Background()
	owner := newUser(t, db, "owner@example.com")
	existing := newUser(t, db, "known@example.com")

	ws, err := svc.Create(ctx, owner, CreateInput{
		Name:          "Acme",
		Collaborators: []CollaboratorInvite{{Email: existing.Email}},
	})
	if err != nil {
		t.Fatal(err)
	}

	c, err := db.GetCollaborator(ctx, ws.ID, existing.Email)
	if err != nil {
		t.Fatal(err)
	}
	if c.UserID == nil || *c.UserID != existing.ID {
		t.Error("existing user not linked at invite time")
	}
}

func TestCreateNameCollisionSuggestions(t *testing.T) {
	svc, _, db := newTestService(t)
	ctx := context.Background()
	owner := newUser(t, db, "owner@example.com")

	if _, err := svc.Create(ctx, owner, CreateInput{Name: "Acme"}); err != nil {
		t.Fatal(err)
	}

	_, err := svc.Create(ctx, owner, CreateInput{Name: "Acme"})
	var nameTaken *NameTakenError
	if !errors.As(err, &nameTaken) {
		t.Fatalf("got %v, want NameTakenError", err)
	}
	if !errors.Is(err, store.ErrAlreadyExists) {
		t.Error("NameTakenError should unwrap to ErrAlreadyExists")
	}
	if len(nameTaken.Suggestions) == 0 {
		t.Fatal("no suggestions offered")
	}
	for _, sug := range nameTaken.Suggestions {
		if !strings.HasPrefix(sug, "Acme_") {
			t.Errorf("suggestion %q does not derive from the name", sug)
		}
		if _, err := db.GetWorkspaceByName(ctx, sug); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("suggestion %q is already taken", sug)
		}
	}
}

// raceDriver simulates losing the workspace-name insert race: the pre-check
// sees the name as free, but the insert inside the transaction collides.
type raceDriver struct {
	store.Driver
}

func (d *raceDriver) Transact(ctx context.Context, fn func(store.Store) error) error {
	return d.Driver.Transact(ctx, func(tx store.Store) error {
		return fn(&raceTx{tx})
	})
}

type raceTx struct {
	store.Store
}

func (t *raceTx) CreateWorkspace(ctx context.Context, ws *store.Workspace) error {
	return store.ErrAlreadyExists
}

func TestCreateNameRaceLosesToConcurrentInsert(t *testing.T) {
	svc, _, db := newTestService(t)
	ctx := context.Background()
	owner := newUser(t, db, "owner@example.com")
	svc.db = &raceDriver{Driver: db}

	_, err := svc.Create(ctx, owner, CreateInput{Name: "Acme"})
	var nameTaken *NameTakenError
	if !errors.As(err, &nameTaken) {
		t.Fatalf("got %v, want NameTakenError", err)
	}
	// Suggestions are computed after the write transaction has unwound, so
	// they come back even though the insert collided.
	if len(nameTaken.Suggestions) == 0 {
		t.Fatal("no suggestions offered")
	}
}

func TestSuggestionsSkipTakenSuffixes(t *testing.T) {
	svc, _, db := newTestService(t)
	ctx := context.Background()
	owner := newUser(t, db, "owner@example.com")

	for _, name := range []string{"Acme", "Acme_hub", "Acme_space"} {
		if _, err := svc.Create(ctx, owner, CreateInput{Name: name}); err != nil {
			t.Fatal(err)
		}
	}

	_, err := svc.Create(ctx, owner, CreateInput{Name: "Acme"})
	var nameTaken *NameTakenError
	if !errors.As(err, &nameTaken) {
		t.Fatal(err)
	}
	for _, sug := range nameTaken.Suggestions {
		if sug == "Acme_hub" || sug == "Acme_space" {
			t.Errorf("taken name %q suggested", sug)
		}
	}
}

func TestSubdomainCounterOnCollision(t *testing.T) {
	svc, _, db := newTestService(t)
	ctx := context.Background()
	owner := newUser(t, db, "owner@example.com")

	// Distinct names that lower-case to the same subdomain base
	first, err := svc.Create(ctx, owner, CreateInput{Name: "Blue Sky"})
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.Create(ctx, owner, CreateInput{Name: "BLUE SKY"})
	if err != nil {
		t.Fatal(err)
	}

	if first.Subdomain != "bluesky.feedback.com" {
		t.Errorf("first: got %q", first.Subdomain)
	}
	if second.Subdomain != "bluesky1.feedback.com" {
		t.Errorf("second: got %q", second.Subdomain)
	}

	got, err := svc.BySubdomain(ctx, "bluesky1.feedback.com")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != second.ID {
		t.Error("subdomain lookup resolved the wrong workspace")
	}
}

func TestInviteCollaborator(t *testing.T) {
	svc, rec, db := newTestService(t)
	ctx := context.Background()
	owner := newUser(t, db, "owner@example.com")
	other := newUser(t, db, "other@example.com")

	ws, err := svc.Create(ctx, owner, CreateInput{Name: "Acme"})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.InviteCollaborator(ctx, ws.ID, other, "x@example.com", store.AccessComment); !errors.Is(err, access.ErrForbidden) {
		t.Errorf("non-owner invite: got %v, want ErrForbidden", err)
	}

	c, err := svc.InviteCollaborator(ctx, ws.ID, owner, "guest@example.com", store.AccessEdit)
	if err != nil {
		t.Fatal(err)
	}
	if c.AccessLevel != store.AccessEdit {
		t.Errorf("access level: got %q", c.AccessLevel)
	}
	if len(rec.Invites) != 1 || rec.Invites[0].Email != "guest@example.com" {
		t.Error("invite email not sent")
	}

	if _, err := svc.InviteCollaborator(ctx, ws.ID, owner, "guest@example.com", store.AccessComment); !errors.Is(err, store.ErrAlreadyExists) {
		t.Errorf("duplicate invite: got %v, want ErrAlreadyExists", err)
	}
}

func TestMembers(t *testing.T) {
	svc, _, db := newTestService(t)
	ctx := context.Background()
	owner := newUser(t, db, "owner@example.com")
	active := newUser(t, db, "active@example.com")

	ws, err := svc.Create(ctx, owner, CreateInput{
		Name: "Acme",
		Collaborators: []CollaboratorInvite{
			{Email: active.Email},
			{Email: "pending@example.com"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	devWS := &store.Developer{Email: "dev@example.com", InvitedByWorkspaceID: &ws.ID}
	if err := db.CreateDeveloper(ctx, devWS); err != nil {
		t.Fatal(err)
	}

	members, err := svc.Members(ctx, ws.ID, owner)
	if err != nil {
		t.Fatal(err)
	}
	byEmail := make(map[string]Member)
	for _, m := range members {
		byEmail[m.Email] = m
	}
	if len(members) != 4 {
		t.Fatalf("got %d members, want 4", len(members))
	}
	if m := byEmail["owner@example.com"]; m.Kind != "owner" || !m.Active {
		t.Errorf("owner row: %+v", m)
	}
	if m := byEmail["active@example.com"]; m.Kind != "collaborator" || !m.Active {
		t.Errorf("active collaborator row: %+v", m)
	}
	if m := byEmail["pending@example.com"]; m.Active {
		t.Errorf("unresolved collaborator should be inactive: %+v", m)
	}
	if m := byEmail["dev@example.com"]; m.Kind != "developer" || m.Active {
		t.Errorf("developer row: %+v", m)
	}

	outsider := newUser(t, db, "out@example.com")
	if _, err := svc.Members(ctx, ws.ID, outsider); !errors.Is(err, access.ErrForbidden) {
		t.Errorf("outsider listing: got %v, want ErrForbidden", err)
	}
}

func TestCompleteOnboarding(t *testing.T) {
	svc, _, db := newTestService(t)
	ctx := context.Background()
	u := newUser(t, db, "new@example.com")

	if err := svc.CompleteOnboarding(ctx, u); err != nil {
		t.Fatal(err)
	}
	got, err := db.GetUser(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Onboarded {
		t.Error("onboarded flag not persisted")
	}
}
