// Package access decides who may see and mutate workspace feedback.
//
// Two layers apply: workspace membership (owner or collaborator) gates any
// listing at all, and per-feedback grants narrow what a collaborator sees
// within the workspace. Grants never widen access beyond workspace scope.
package access

import (
	"context"
	"errors"

	"github.com/feedbackhq/feedbackhq/internal/store"
)

var ErrForbidden = errors.New("forbidden")

// Role is a caller's standing within a workspace.
type Role string

const (
	RoleOwner        Role = "owner"
	RoleCollaborator Role = "collaborator"
	RoleNone         Role = "none"
)

// Checker resolves roles and filters listings.
type Checker struct {
	db store.Driver
}

func New(db store.Driver) *Checker {
	return &Checker{db: db}
}

// WorkspaceRole resolves the caller's role in ws. Collaborator rows are
// matched by user id first, then by email for invites that were created
// before the caller's account was linked.
func (c *Checker) WorkspaceRole(ctx context.Context, ws *store.Workspace, user *store.User) (Role, error) {
	if ws.OwnerID == user.ID {
		return RoleOwner, nil
	}
	if _, err := c.db.GetCollaboratorByUser(ctx, ws.ID, user.ID); err == nil {
		return RoleCollaborator, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return RoleNone, err
	}
	if _, err := c.db.GetCollaborator(ctx, ws.ID, user.Email); err == nil {
		return RoleCollaborator, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return RoleNone, err
	}
	return RoleNone, nil
}

// RequireMember returns the caller's role, or ErrForbidden for non-members.
func (c *Checker) RequireMember(ctx context.Context, ws *store.Workspace, user *store.User) (Role, error) {
	role, err := c.WorkspaceRole(ctx, ws, user)
	if err != nil {
		return RoleNone, err
	}
	if role == RoleNone {
		return RoleNone, ErrForbidden
	}
	return role, nil
}

// CanMutate reports whether userID may update, delete, share, or attach to
// fb. Mutation is creator-only; workspace ownership does not override it.
func CanMutate(fb *store.Feedback, userID uint) error {
	if fb.CreatedBy != userID {
		return ErrForbidden
	}
	return nil
}

// FilterVisible narrows a workspace feedback listing to what user may see.
// Owners see everything. Collaborators see their own items plus non-draft
// items they hold a grant for; drafts are creator-only regardless of grants.
func (c *Checker) FilterVisible(ctx context.Context, ws *store.Workspace, user *store.User, items []*store.Feedback) ([]*store.Feedback, error) {
	role, err := c.RequireMember(ctx, ws, user)
	if err != nil {
		return nil, err
	}
	if role == RoleOwner {
		return items, nil
	}

	granted, err := c.grantedFeedbackIDs(ctx, user)
	if err != nil {
		return nil, err
	}

	visible := make([]*store.Feedback, 0, len(items))
	for _, fb := range items {
		if fb.CreatedBy == user.ID {
			visible = append(visible, fb)
			continue
		}
		if fb.Status != store.FeedbackDraft && granted[fb.ID] {
			visible = append(visible, fb)
		}
	}
	return visible, nil
}

// FilterDrafts narrows a draft listing: owners see all workspace drafts,
// collaborators only their own.
func (c *Checker) FilterDrafts(ctx context.Context, ws *store.Workspace, user *store.User, drafts []*store.Feedback) ([]*store.Feedback, error) {
	role, err := c.RequireMember(ctx, ws, user)
	if err != nil {
		return nil, err
	}
	if role == RoleOwner {
		return drafts, nil
	}

	own := make([]*store.Feedback, 0, len(drafts))
	for _, fb := range drafts {
		if fb.CreatedBy == user.ID {
			own = append(own, fb)
		}
	}
	return own, nil
}

// grantedFeedbackIDs collects the feedback ids user holds grants for, by
// resolved user id and by email (grants created before the account existed).
func (c *Checker) grantedFeedbackIDs(ctx context.Context, user *store.User) (map[uint]bool, error) {
	granted := make(map[uint]bool)

	byUser, err := c.db.ListFeedbackAccessByUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	for _, fa := range byUser {
		granted[fa.FeedbackID] = true
	}

	byEmail, err := c.db.ListFeedbackAccessByEmail(ctx, user.Email)
	if err != nil {
		return nil, err
	}
	for _, fa := range byEmail {
		granted[fa.FeedbackID] = true
	}
	return granted, nil
}
