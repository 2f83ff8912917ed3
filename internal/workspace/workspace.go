// Package workspace manages tenant workspaces: creation with derived
// subdomains, alternate-name suggestions on collision, and collaborator
// invites.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/url"
	"strconv"
	"strings"

	"github.com/feedbackhq/feedbackhq/internal/access"
	"github.com/feedbackhq/feedbackhq/internal/logutil"
	"github.com/feedbackhq/feedbackhq/internal/notify"
	"github.com/feedbackhq/feedbackhq/internal/store"
)

// subdomainBase is the apex under which workspace subdomains are issued.
const subdomainBase = "feedback.com"

// friendlySuffixes seed alternate-name suggestions on a name collision.
var friendlySuffixes = []string{
	"hub", "space", "team", "studio", "hq",
	"zone", "lab", "base", "deck", "works",
}

// NameTakenError reports a workspace name collision together with untaken
// alternatives. It unwraps to store.ErrAlreadyExists.
type NameTakenError struct {
	Name        string
	Suggestions []string
}

func (e *NameTakenError) Error() string {
	return fmt.Sprintf("workspace name %q is taken", e.Name)
}

func (e *NameTakenError) Unwrap() error { return store.ErrAlreadyExists }

// CollaboratorInvite names one invitee in a create request.
type CollaboratorInvite struct {
	Email       string
	AccessLevel store.AccessLevel
}

// CreateInput is the payload for Create.
type CreateInput struct {
	Name          string
	Type          string
	Purpose       string
	Role          string
	IconURL       string
	Collaborators []CollaboratorInvite
}

// Member is one row of a workspace member listing.
type Member struct {
	Email       string            `json:"email"`
	FullName    string            `json:"full_name,omitempty"`
	Kind        string            `json:"kind"` // owner, collaborator, developer
	AccessLevel store.AccessLevel `json:"access_level,omitempty"`
	Active      bool              `json:"active"`
}

// Service manages workspaces.
type Service struct {
	db       store.Driver
	notifier notify.Notifier
	checker  *access.Checker
	origin   string
	log      *slog.Logger
}

// New creates a workspace service. origin is the external base URL used in
// invite links.
func New(db store.Driver, notifier notify.Notifier, checker *access.Checker, origin string, log *slog.Logger) *Service {
	return &Service{
		db:       db,
		notifier: notifier,
		checker:  checker,
		origin:   strings.TrimRight(origin, "/"),
		log:      logutil.NoopIfNil(log),
	}
}

// Create provisions a workspace for owner, seeds collaborator invites, and
// marks the owner onboarded. A name collision returns a NameTakenError
// carrying at least one untaken suggestion.
func (s *Service) Create(ctx context.Context, owner *store.User, in CreateInput) (*store.Workspace, error) {
	if _, err := s.db.GetWorkspaceByName(ctx, in.Name); err == nil {
		return nil, &NameTakenError{Name: in.Name, Suggestions: s.suggestNames(ctx, in.Name)}
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	subdomain, err := s.subdomainFor(ctx, in.Name)
	if err != nil {
		return nil, err
	}

	ws := &store.Workspace{
		Name:      in.Name,
		Subdomain: subdomain,
		Type:      in.Type,
		Purpose:   in.Purpose,
		Role:      in.Role,
		IconURL:   in.IconURL,
		OwnerID:   owner.ID,
	}

	var invited []string
	err = s.db.Transact(ctx, func(tx store.Store) error {
		if err := tx.CreateWorkspace(ctx, ws); err != nil {
			return err
		}

		for _, inv := range in.Collaborators {
			if inv.Email == "" || inv.Email == owner.Email {
				continue
			}
			level := inv.AccessLevel
			if !level.Valid() {
				level = store.AccessComment
			}
			c := &store.Collaborator{
				WorkspaceID: ws.ID,
				Email:       inv.Email,
				AccessLevel: level,
				InvitedByID: &owner.ID,
			}
			if u, err := tx.GetUserByEmail(ctx, inv.Email); err == nil {
				c.UserID = &u.ID
			} else if !errors.Is(err, store.ErrNotFound) {
				return err
			}
			if err := tx.CreateCollaborator(ctx, c); err != nil {
				if errors.Is(err, store.ErrAlreadyExists) {
					continue // duplicate email in the input
				}
				return err
			}
			invited = append(invited, inv.Email)
		}

		if !owner.Onboarded {
			owner.Onboarded = true
			if err := tx.UpdateUser(ctx, owner); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			// Lost a race on the name. Suggestions query the store again, so
			// they wait until the write transaction has unwound.
			return nil, &NameTakenError{Name: in.Name, Suggestions: s.suggestNames(ctx, in.Name)}
		}
		return nil, err
	}

	for _, email := range invited {
		if err := s.notifier.SendInvite(ctx, email, ws.Name, owner.FullName, s.inviteURL(email)); err != nil {
			s.log.Warn("invite delivery failed", "email", email, "workspace_id", ws.ID, "error", err)
		}
	}

	s.log.Info("workspace created", "workspace_id", ws.ID, "subdomain", ws.Subdomain, "invites", len(invited))
	return ws, nil
}

// InviteCollaborator adds an invitee to an existing workspace. Owner-only.
// A duplicate (workspace, email) pair returns store.ErrAlreadyExists.
func (s *Service) InviteCollaborator(ctx context.Context, workspaceID uint, caller *store.User, email string, level store.AccessLevel) (*store.Collaborator, error) {
	ws, err := s.db.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if ws.OwnerID != caller.ID {
		return nil, access.ErrForbidden
	}
	if !level.Valid() {
		level = store.AccessComment
	}

	c := &store.Collaborator{
		WorkspaceID: ws.ID,
		Email:       email,
		AccessLevel: level,
		InvitedByID: &caller.ID,
	}
	if u, err := s.db.GetUserByEmail(ctx, email); err == nil {
		c.UserID = &u.ID
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if err := s.db.CreateCollaborator(ctx, c); err != nil {
		return nil, err
	}

	if err := s.notifier.SendInvite(ctx, email, ws.Name, caller.FullName, s.inviteURL(email)); err != nil {
		s.log.Warn("invite delivery failed", "email", email, "workspace_id", ws.ID, "error", err)
	}
	return c, nil
}

// Members lists the owner, collaborators, and invited developers of a
// workspace. Any member may list; collaborators without an account yet and
// developers without their own workspace report inactive.
func (s *Service) Members(ctx context.Context, workspaceID uint, caller *store.User) ([]Member, error) {
	ws, err := s.db.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if _, err := s.checker.RequireMember(ctx, ws, caller); err != nil {
		return nil, err
	}

	owner, err := s.db.GetUser(ctx, ws.OwnerID)
	if err != nil {
		return nil, err
	}
	members := []Member{{
		Email:    owner.Email,
		FullName: owner.FullName,
		Kind:     "owner",
		Active:   true,
	}}

	collabs, err := s.db.ListCollaboratorsByWorkspace(ctx, ws.ID)
	if err != nil {
		return nil, err
	}
	for _, c := range collabs {
		m := Member{
			Email:       c.Email,
			Kind:        "collaborator",
			AccessLevel: c.AccessLevel,
			Active:      c.UserID != nil,
		}
		if c.UserID != nil {
			if u, err := s.db.GetUser(ctx, *c.UserID); err == nil {
				m.FullName = u.FullName
			}
		}
		members = append(members, m)
	}

	devs, err := s.db.ListDevelopersByInvitingWorkspace(ctx, ws.ID)
	if err != nil {
		return nil, err
	}
	for _, dev := range devs {
		members = append(members, Member{
			Email:  dev.Email,
			Kind:   "developer",
			Active: dev.WorkspaceID != nil,
		})
	}
	return members, nil
}

// BySubdomain resolves a workspace from its subdomain.
func (s *Service) BySubdomain(ctx context.Context, subdomain string) (*store.Workspace, error) {
	return s.db.GetWorkspaceBySubdomain(ctx, subdomain)
}

// CompleteOnboarding marks user onboarded.
func (s *Service) CompleteOnboarding(ctx context.Context, user *store.User) error {
	if user.Onboarded {
		return nil
	}
	user.Onboarded = true
	return s.db.UpdateUser(ctx, user)
}

// suggestNames returns up to three untaken alternatives for a colliding
// name. Curated suffixes first, then a random 4-letter suffix so at least
// one suggestion always comes back.
func (s *Service) suggestNames(ctx context.Context, name string) []string {
	var out []string
	for _, suffix := range friendlySuffixes {
		candidate := name + "_" + suffix
		if s.nameTaken(ctx, candidate) {
			continue
		}
		out = append(out, candidate)
		if len(out) == 3 {
			return out
		}
	}
	for len(out) == 0 {
		candidate := name + "_" + randomLetters(4)
		if !s.nameTaken(ctx, candidate) {
			out = append(out, candidate)
		}
	}
	return out
}

func (s *Service) nameTaken(ctx context.Context, name string) bool {
	_, err := s.db.GetWorkspaceByName(ctx, name)
	return err == nil
}

// subdomainFor derives `<lowername>.feedback.com`, appending a numeric
// counter until the subdomain is free.
func (s *Service) subdomainFor(ctx context.Context, name string) (string, error) {
	base := strings.ToLower(strings.ReplaceAll(name, " ", ""))
	candidate := base
	for i := 1; ; i++ {
		sub := candidate + "." + subdomainBase
		_, err := s.db.GetWorkspaceBySubdomain(ctx, sub)
		if errors.Is(err, store.ErrNotFound) {
			return sub, nil
		}
		if err != nil {
			return "", err
		}
		candidate = base + strconv.Itoa(i)
	}
}

func (s *Service) inviteURL(email string) string {
	return fmt.Sprintf("%s/signin?email=%s", s.origin, url.QueryEscape(email))
}

func randomLetters(n int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	b := make([]byte, n)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return string(b)
}
