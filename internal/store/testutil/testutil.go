// Package testutil provides shared test helpers for store driver tests.
package testutil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/feedbackhq/feedbackhq/internal/store"
)

// TestUser creates a test user.
func TestUser(email string) *store.User {
	return &store.User{
		Email:    email,
		FullName: "Alice Example",
	}
}

// TestWorkspace creates a test workspace owned by ownerID.
func TestWorkspace(name string, ownerID uint) *store.Workspace {
	return &store.Workspace{
		Name:      name,
		Subdomain: name + ".feedback.com",
		Type:      "Company",
		Purpose:   "Work",
		Role:      "Engineer",
		OwnerID:   ownerID,
	}
}

// TestFeedback creates a draft feedback item.
func TestFeedback(workspaceID, createdBy uint) *store.Feedback {
	return &store.Feedback{
		Name:        "Login button misaligned",
		WorkspaceID: workspaceID,
		CreatedBy:   createdBy,
		Status:      store.FeedbackDraft,
		URL:         "https://app.example.com/login",
		Message:     "The login button overlaps the footer on mobile.",
	}
}

// RunDriverTests runs the standard test suite against a driver.
func RunDriverTests(t *testing.T, driverName string, cfg *store.DriverConfig) {
	ctx := context.Background()

	driver, err := store.New(cfg)
	if err != nil {
		t.Fatalf("failed to create %s driver: %v", driverName, err)
	}
	if err := driver.Init(ctx); err != nil {
		t.Fatalf("failed to init %s driver: %v", driverName, err)
	}
	defer driver.Close()

	t.Run("Users", func(t *testing.T) { testUsers(t, ctx, driver) })
	t.Run("Workspaces", func(t *testing.T) { testWorkspaces(t, ctx, driver) })
	t.Run("Collaborators", func(t *testing.T) { testCollaborators(t, ctx, driver) })
	t.Run("FeedbackLifecycle", func(t *testing.T) { testFeedbackLifecycle(t, ctx, driver) })
	t.Run("OTPRecords", func(t *testing.T) { testOTPRecords(t, ctx, driver) })
	t.Run("TransactRollback", func(t *testing.T) { testTransactRollback(t, ctx, driver) })
}

func testUsers(t *testing.T, ctx context.Context, d store.Driver) {
	user := TestUser("alice@example.com")
	if err := d.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if user.ID == 0 {
		t.Fatal("expected user id to be assigned")
	}

	got, err := d.GetUserByEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if got.FullName != user.FullName {
		t.Errorf("full name: got %q want %q", got.FullName, user.FullName)
	}

	// Duplicate email must be rejected
	if err := d.CreateUser(ctx, TestUser("alice@example.com")); !errors.Is(err, store.ErrAlreadyExists) {
		t.Errorf("duplicate email: got %v, want ErrAlreadyExists", err)
	}

	got.Onboarded = true
	if err := d.UpdateUser(ctx, got); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	got2, err := d.GetUser(ctx, got.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if !got2.Onboarded {
		t.Error("onboarded flag not persisted")
	}

	if _, err := d.GetUserByEmail(ctx, "nobody@example.com"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing user: got %v, want ErrNotFound", err)
	}
}

func testWorkspaces(t *testing.T, ctx context.Context, d store.Driver) {
	owner := TestUser("owner@example.com")
	if err := d.CreateUser(ctx, owner); err != nil {
		t.Fatal(err)
	}

	ws := TestWorkspace("acme", owner.ID)
	if err := d.CreateWorkspace(ctx, ws); err != nil {
		t.Fatalf("CreateWorkspace: %v", err)
	}

	if err := d.CreateWorkspace(ctx, TestWorkspace("acme", owner.ID)); !errors.Is(err, store.ErrAlreadyExists) {
		t.Errorf("duplicate name: got %v, want ErrAlreadyExists", err)
	}

	got, err := d.GetWorkspaceBySubdomain(ctx, "acme.feedback.com")
	if err != nil {
		t.Fatalf("GetWorkspaceBySubdomain: %v", err)
	}
	if got.ID != ws.ID {
		t.Errorf("subdomain lookup: got id %d want %d", got.ID, ws.ID)
	}
}

func testCollaborators(t *testing.T, ctx context.Context, d store.Driver) {
	owner := TestUser("collab-owner@example.com")
	if err := d.CreateUser(ctx, owner); err != nil {
		t.Fatal(err)
	}
	ws := TestWorkspace("collabspace", owner.ID)
	if err := d.CreateWorkspace(ctx, ws); err != nil {
		t.Fatal(err)
	}

	c := &store.Collaborator{
		WorkspaceID: ws.ID,
		Email:       "guest@example.com",
		AccessLevel: store.AccessComment,
		InvitedByID: &owner.ID,
	}
	if err := d.CreateCollaborator(ctx, c); err != nil {
		t.Fatalf("CreateCollaborator: %v", err)
	}

	// (workspace, email) is a hard constraint
	dup := &store.Collaborator{WorkspaceID: ws.ID, Email: "guest@example.com", AccessLevel: store.AccessEdit}
	if err := d.CreateCollaborator(ctx, dup); !errors.Is(err, store.ErrAlreadyExists) {
		t.Errorf("duplicate collaborator: got %v, want ErrAlreadyExists", err)
	}

	guest := TestUser("guest@example.com")
	if err := d.CreateUser(ctx, guest); err != nil {
		t.Fatal(err)
	}
	c.UserID = &guest.ID
	if err := d.UpdateCollaborator(ctx, c); err != nil {
		t.Fatalf("UpdateCollaborator: %v", err)
	}

	got, err := d.GetCollaboratorByUser(ctx, ws.ID, guest.ID)
	if err != nil {
		t.Fatalf("GetCollaboratorByUser: %v", err)
	}
	if got.Email != "guest@example.com" {
		t.Errorf("resolved collaborator email: got %q", got.Email)
	}
}

func testFeedbackLifecycle(t *testing.T, ctx context.Context, d store.Driver) {
	owner := TestUser("fb-owner@example.com")
	if err := d.CreateUser(ctx, owner); err != nil {
		t.Fatal(err)
	}
	ws := TestWorkspace("fbspace", owner.ID)
	if err := d.CreateWorkspace(ctx, ws); err != nil {
		t.Fatal(err)
	}

	fb := TestFeedback(ws.ID, owner.ID)
	if err := d.CreateFeedback(ctx, fb); err != nil {
		t.Fatalf("CreateFeedback: %v", err)
	}

	dev := &store.Developer{Email: "dev@example.com", InvitedByWorkspaceID: &ws.ID}
	if err := d.CreateDeveloper(ctx, dev); err != nil {
		t.Fatalf("CreateDeveloper: %v", err)
	}

	link := &store.FeedbackDeveloper{FeedbackID: fb.ID, DeveloperID: dev.ID, Status: store.AssignmentPending}
	if err := d.CreateFeedbackDeveloper(ctx, link); err != nil {
		t.Fatalf("CreateFeedbackDeveloper: %v", err)
	}
	dupLink := &store.FeedbackDeveloper{FeedbackID: fb.ID, DeveloperID: dev.ID, Status: store.AssignmentPending}
	if err := d.CreateFeedbackDeveloper(ctx, dupLink); !errors.Is(err, store.ErrAlreadyExists) {
		t.Errorf("duplicate link: got %v, want ErrAlreadyExists", err)
	}

	grant := &store.FeedbackAccess{FeedbackID: fb.ID, Email: "viewer@example.com", AccessLevel: store.AccessComment}
	if err := d.CreateFeedbackAccess(ctx, grant); err != nil {
		t.Fatalf("CreateFeedbackAccess: %v", err)
	}
	grants, err := d.ListFeedbackAccessByEmail(ctx, "viewer@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if len(grants) != 1 || grants[0].FeedbackID != fb.ID {
		t.Errorf("grants by email: got %d", len(grants))
	}

	// Deleting feedback removes dependent rows
	if err := d.DeleteFeedback(ctx, fb.ID); err != nil {
		t.Fatalf("DeleteFeedback: %v", err)
	}
	links, err := d.ListFeedbackDevelopersByFeedback(ctx, fb.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(links) != 0 {
		t.Errorf("expected links removed with feedback, got %d", len(links))
	}
	grants, err = d.ListFeedbackAccessByFeedback(ctx, fb.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(grants) != 0 {
		t.Errorf("expected grants removed with feedback, got %d", len(grants))
	}
	if err := d.DeleteFeedback(ctx, fb.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("double delete: got %v, want ErrNotFound", err)
	}
}

func testOTPRecords(t *testing.T, ctx context.Context, d store.Driver) {
	now := time.Now()
	otp := &store.PendingOTP{
		Email:       "otp@example.com",
		CodeHash:    []byte("$2a$10$fakehash"),
		FullName:    "New Person",
		CreatedAt:   now,
		ResendCount: 1,
	}
	if err := d.CreateOTP(ctx, otp); err != nil {
		t.Fatalf("CreateOTP: %v", err)
	}

	got, err := d.GetOTP(ctx, "otp@example.com")
	if err != nil {
		t.Fatalf("GetOTP: %v", err)
	}
	if got.ResendCount != 1 || got.Attempts != 0 {
		t.Errorf("counters: got resend=%d attempts=%d", got.ResendCount, got.Attempts)
	}

	got.Attempts = 3
	lock := now.Add(30 * time.Minute)
	got.LockedUntil = &lock
	if err := d.UpdateOTP(ctx, got); err != nil {
		t.Fatalf("UpdateOTP: %v", err)
	}
	got2, err := d.GetOTP(ctx, "otp@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if got2.LockedUntil == nil {
		t.Fatal("locked_until not persisted")
	}

	if err := d.DeleteOTP(ctx, "otp@example.com"); err != nil {
		t.Fatalf("DeleteOTP: %v", err)
	}
	if _, err := d.GetOTP(ctx, "otp@example.com"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("deleted record: got %v, want ErrNotFound", err)
	}
}

func testTransactRollback(t *testing.T, ctx context.Context, d store.Driver) {
	boom := errors.New("boom")
	err := d.Transact(ctx, func(tx store.Store) error {
		if err := tx.CreateUser(ctx, TestUser("rollback@example.com")); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Transact: got %v, want boom", err)
	}
	if _, err := d.GetUserByEmail(ctx, "rollback@example.com"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("rolled-back user visible: got %v, want ErrNotFound", err)
	}
}
