package feedback

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/feedbackhq/feedbackhq/internal/access"
	"github.com/feedbackhq/feedbackhq/internal/store"
)

// ShareResult is one routed developer with the view link sent to them.
type ShareResult struct {
	Email string `json:"email"`
	URL   string `json:"url"`
}

// ShareWithDevelopers routes a feedback item to one or more developers.
// Creator-only. The item moves to sent; per email a Developer stub is
// found or created (backfilling invited_by_workspace_id), and a pending
// link row is ensured. The transient developer_email takes the first email
// of the batch, so a re-share re-points it rather than keeping a stale
// assignment. Re-sharing with the same email is a no-op for existing rows,
// so the operation is idempotent per (feedback, email).
func (s *Service) ShareWithDevelopers(ctx context.Context, feedbackID uint, caller *store.User, emails []string) ([]ShareResult, error) {
	fb, err := s.db.GetFeedback(ctx, feedbackID)
	if err != nil {
		return nil, err
	}
	if err := access.CanMutate(fb, caller.ID); err != nil {
		return nil, err
	}

	var results []ShareResult
	err = s.db.Transact(ctx, func(tx store.Store) error {
		fb.Status = store.FeedbackSent
		first := true
		for _, email := range emails {
			if email == "" {
				continue
			}
			dev, err := s.ensureDeveloper(ctx, tx, email, fb.WorkspaceID)
			if err != nil {
				return err
			}
			if first || fb.DeveloperEmail == "" {
				fb.DeveloperEmail = email
				first = false
			}
			if err := s.ensureLink(ctx, tx, fb.ID, dev.ID); err != nil {
				return err
			}

			viewURL, err := s.viewURL(fb.ID, email)
			if err != nil {
				return err
			}
			results = append(results, ShareResult{Email: email, URL: viewURL})
		}
		return tx.UpdateFeedback(ctx, fb)
	})
	if err != nil {
		return nil, err
	}

	for _, r := range results {
		if err := s.notifier.SendFeedbackNotice(ctx, r.Email, fb.ID, fb.Name, r.URL); err != nil {
			s.log.Warn("feedback notice delivery failed", "email", r.Email, "feedback_id", fb.ID, "error", err)
		}
	}

	s.log.Info("feedback shared", "feedback_id", fb.ID, "developers", len(results))
	return results, nil
}

func (s *Service) ensureDeveloper(ctx context.Context, tx store.Store, email string, workspaceID uint) (*store.Developer, error) {
	dev, err := tx.GetDeveloperByEmail(ctx, email)
	switch {
	case errors.Is(err, store.ErrNotFound):
		dev = &store.Developer{Email: email, InvitedByWorkspaceID: &workspaceID}
		if err := tx.CreateDeveloper(ctx, dev); err != nil {
			return nil, err
		}
		return dev, nil
	case err != nil:
		return nil, err
	}

	if dev.InvitedByWorkspaceID == nil {
		dev.InvitedByWorkspaceID = &workspaceID
		if err := tx.UpdateDeveloper(ctx, dev); err != nil {
			return nil, err
		}
	}
	return dev, nil
}

func (s *Service) ensureLink(ctx context.Context, tx store.Store, feedbackID, developerID uint) error {
	_, err := tx.GetFeedbackDeveloper(ctx, feedbackID, developerID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	link := &store.FeedbackDeveloper{
		FeedbackID:  feedbackID,
		DeveloperID: developerID,
		Status:      store.AssignmentPending,
	}
	if err := tx.CreateFeedbackDeveloper(ctx, link); err != nil && !errors.Is(err, store.ErrAlreadyExists) {
		return err
	}
	return nil
}

// viewURL builds the tokenized link a developer opens to see the item.
// The token is scoped to the developer's email, not to a session.
func (s *Service) viewURL(feedbackID uint, email string) (string, error) {
	tok, err := s.tokens.Issue(email, 0)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/view-feedback/%d?token=%s&developer=%s",
		s.origin, feedbackID, tok, url.QueryEscape(email)), nil
}

// ResolvePendingAssignments links feedback rows that were routed to
// developer by email before the developer record existed. When the
// developer has their own workspace the feedback moves into it. The
// transient developer_email is cleared once resolved.
func (s *Service) ResolvePendingAssignments(ctx context.Context, developer *store.Developer) error {
	return s.db.Transact(ctx, func(tx store.Store) error {
		pending, err := tx.ListFeedbackByDeveloperEmail(ctx, developer.Email)
		if err != nil {
			return err
		}
		for _, fb := range pending {
			if err := s.ensureLink(ctx, tx, fb.ID, developer.ID); err != nil {
				return err
			}
			if developer.WorkspaceID != nil {
				fb.WorkspaceID = *developer.WorkspaceID
			}
			fb.DeveloperEmail = ""
			if err := tx.UpdateFeedback(ctx, fb); err != nil {
				return err
			}
		}
		if len(pending) > 0 {
			s.log.Info("pending assignments resolved", "developer_id", developer.ID, "count", len(pending))
		}
		return nil
	})
}

// RecordDeveloperAction stores a developer's acknowledged/unclear response
// on a feedback link. Timestamps are stamped in IST: the reviewing team
// works out of that zone and reads the raw column directly.
func (s *Service) RecordDeveloperAction(ctx context.Context, feedbackID uint, developerEmail string, action store.AssignmentStatus) (*store.FeedbackDeveloper, error) {
	if !store.ValidDeveloperAction(action) {
		return nil, ErrInvalidState
	}

	dev, err := s.db.GetDeveloperByEmail(ctx, developerEmail)
	if err != nil {
		return nil, err
	}
	link, err := s.db.GetFeedbackDeveloper(ctx, feedbackID, dev.ID)
	if err != nil {
		return nil, err
	}

	actionTime := s.now().In(s.ist)
	link.Status = action
	link.ActionTime = &actionTime
	if err := s.db.UpdateFeedbackDeveloper(ctx, link); err != nil {
		return nil, err
	}
	return link, nil
}

// ListAssignedToDeveloper returns the feedback items linked to a developer.
func (s *Service) ListAssignedToDeveloper(ctx context.Context, developerEmail string) ([]*store.Feedback, error) {
	dev, err := s.db.GetDeveloperByEmail(ctx, developerEmail)
	if err != nil {
		return nil, err
	}
	links, err := s.db.ListFeedbackDevelopersByDeveloper(ctx, dev.ID)
	if err != nil {
		return nil, err
	}

	items := make([]*store.Feedback, 0, len(links))
	for _, link := range links {
		fb, err := s.db.GetFeedback(ctx, link.FeedbackID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, err
		}
		items = append(items, fb)
	}
	return items, nil
}
