// Package feedback manages feedback items: lifecycle within a workspace,
// attachments, and routing to developers.
package feedback

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/feedbackhq/feedbackhq/internal/access"
	"github.com/feedbackhq/feedbackhq/internal/logutil"
	"github.com/feedbackhq/feedbackhq/internal/notify"
	"github.com/feedbackhq/feedbackhq/internal/store"
	"github.com/feedbackhq/feedbackhq/internal/token"
)

var (
	ErrInvalidState     = errors.New("invalid state for this operation")
	ErrUnsupportedMedia = errors.New("unsupported media type")
	ErrTooLarge         = errors.New("file too large")
)

// CollaboratorGrant names one invitee on a new feedback item.
type CollaboratorGrant struct {
	Email       string
	AccessLevel store.AccessLevel
}

// CreateInput is the payload for Create.
type CreateInput struct {
	Name          string
	URL           string
	Message       string
	Collaborators []CollaboratorGrant
}

// UpdateInput carries partial updates; nil fields are left unchanged.
type UpdateInput struct {
	Name    *string
	URL     *string
	Message *string
}

// Service manages feedback items.
type Service struct {
	db       store.Driver
	notifier notify.Notifier
	checker  *access.Checker
	tokens   *token.Service
	origin   string
	mediaDir string
	log      *slog.Logger

	// Developer action timestamps are stamped in IST; see recordedAt.
	ist *time.Location
	now func() time.Time
}

// New creates a feedback service. origin is the external base URL used in
// developer view links; mediaDir is the attachment root.
func New(db store.Driver, notifier notify.Notifier, checker *access.Checker, tokens *token.Service, origin, mediaDir string, log *slog.Logger) *Service {
	ist, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		ist = time.FixedZone("IST", 5*3600+1800)
	}
	return &Service{
		db:       db,
		notifier: notifier,
		checker:  checker,
		tokens:   tokens,
		origin:   strings.TrimRight(origin, "/"),
		mediaDir: mediaDir,
		log:      logutil.NoopIfNil(log),
		ist:      ist,
		now:      time.Now,
	}
}

// Create adds a draft feedback item. The caller must be a workspace member.
// Named collaborators get a workspace Collaborator row (find-or-create) and
// a per-feedback access grant, in the same transaction as the item itself.
func (s *Service) Create(ctx context.Context, workspaceID uint, caller *store.User, in CreateInput) (*store.Feedback, error) {
	ws, err := s.db.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if _, err := s.checker.RequireMember(ctx, ws, caller); err != nil {
		return nil, err
	}

	fb := &store.Feedback{
		Name:        in.Name,
		WorkspaceID: ws.ID,
		CreatedBy:   caller.ID,
		Status:      store.FeedbackDraft,
		URL:         in.URL,
		Message:     in.Message,
	}
	err = s.db.Transact(ctx, func(tx store.Store) error {
		if err := tx.CreateFeedback(ctx, fb); err != nil {
			return err
		}
		for _, grant := range in.Collaborators {
			if grant.Email == "" || grant.Email == caller.Email {
				continue
			}
			level := grant.AccessLevel
			if !level.Valid() {
				level = store.AccessComment
			}
			if err := s.ensureCollaborator(ctx, tx, ws.ID, grant.Email, level, caller.ID); err != nil {
				return err
			}
			fa := &store.FeedbackAccess{
				FeedbackID:  fb.ID,
				Email:       grant.Email,
				AccessLevel: level,
			}
			if u, err := tx.GetUserByEmail(ctx, grant.Email); err == nil {
				fa.UserID = &u.ID
			} else if !errors.Is(err, store.ErrNotFound) {
				return err
			}
			if err := tx.CreateFeedbackAccess(ctx, fa); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("feedback created", "feedback_id", fb.ID, "workspace_id", ws.ID)
	return fb, nil
}

func (s *Service) ensureCollaborator(ctx context.Context, tx store.Store, workspaceID uint, email string, level store.AccessLevel, inviterID uint) error {
	if _, err := tx.GetCollaborator(ctx, workspaceID, email); err == nil {
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	c := &store.Collaborator{
		WorkspaceID: workspaceID,
		Email:       email,
		AccessLevel: level,
		InvitedByID: &inviterID,
	}
	if u, err := tx.GetUserByEmail(ctx, email); err == nil {
		c.UserID = &u.ID
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if err := tx.CreateCollaborator(ctx, c); err != nil && !errors.Is(err, store.ErrAlreadyExists) {
		return err
	}
	return nil
}

// Update applies a partial update. Creator-only; sent items are immutable.
// A draft moves to edited on its first update.
func (s *Service) Update(ctx context.Context, feedbackID uint, caller *store.User, in UpdateInput) (*store.Feedback, error) {
	fb, err := s.db.GetFeedback(ctx, feedbackID)
	if err != nil {
		return nil, err
	}
	if err := access.CanMutate(fb, caller.ID); err != nil {
		return nil, err
	}
	if fb.Status == store.FeedbackSent {
		return nil, ErrInvalidState
	}

	if in.Name != nil {
		fb.Name = *in.Name
	}
	if in.URL != nil {
		fb.URL = *in.URL
	}
	if in.Message != nil {
		fb.Message = *in.Message
	}
	fb.Status = store.FeedbackEdited

	if err := s.db.UpdateFeedback(ctx, fb); err != nil {
		return nil, err
	}
	return fb, nil
}

// Delete removes a feedback item and its dependent rows. Creator-only;
// sent items cannot be deleted.
func (s *Service) Delete(ctx context.Context, feedbackID uint, caller *store.User) error {
	fb, err := s.db.GetFeedback(ctx, feedbackID)
	if err != nil {
		return err
	}
	if err := access.CanMutate(fb, caller.ID); err != nil {
		return err
	}
	if fb.Status == store.FeedbackSent {
		return ErrInvalidState
	}
	return s.db.DeleteFeedback(ctx, fb.ID)
}

// Get returns a feedback item if caller may see it.
func (s *Service) Get(ctx context.Context, feedbackID uint, caller *store.User) (*store.Feedback, error) {
	fb, err := s.db.GetFeedback(ctx, feedbackID)
	if err != nil {
		return nil, err
	}
	ws, err := s.db.GetWorkspace(ctx, fb.WorkspaceID)
	if err != nil {
		return nil, err
	}
	visible, err := s.checker.FilterVisible(ctx, ws, caller, []*store.Feedback{fb})
	if err != nil {
		return nil, err
	}
	if len(visible) == 0 {
		return nil, access.ErrForbidden
	}
	return fb, nil
}

// ListByWorkspace returns the workspace feedback caller may see.
func (s *Service) ListByWorkspace(ctx context.Context, workspaceID uint, caller *store.User) ([]*store.Feedback, error) {
	ws, err := s.db.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	items, err := s.db.ListFeedbackByWorkspace(ctx, ws.ID)
	if err != nil {
		return nil, err
	}
	return s.checker.FilterVisible(ctx, ws, caller, items)
}

// ListDrafts returns workspace drafts: all of them for the owner, the
// caller's own for collaborators.
func (s *Service) ListDrafts(ctx context.Context, workspaceID uint, caller *store.User) ([]*store.Feedback, error) {
	ws, err := s.db.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	drafts, err := s.db.ListFeedbackByWorkspaceAndStatus(ctx, ws.ID, store.FeedbackDraft)
	if err != nil {
		return nil, err
	}
	return s.checker.FilterDrafts(ctx, ws, caller, drafts)
}

// Search matches workspace feedback by name substring, narrowed to what
// caller may see.
func (s *Service) Search(ctx context.Context, workspaceID uint, caller *store.User, query string) ([]*store.Feedback, error) {
	ws, err := s.db.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	items, err := s.db.SearchFeedbackByName(ctx, ws.ID, query)
	if err != nil {
		return nil, err
	}
	return s.checker.FilterVisible(ctx, ws, caller, items)
}
