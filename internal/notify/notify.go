// Package notify delivers outbound email for OTP codes, workspace invites,
// and feedback routing notices.
package notify

import (
	"context"
	"sync"
)

// Notifier is the delivery interface consumed by the auth, workspace, and
// feedback services. Implementations must not block on user-visible paths
// longer than their configured timeouts.
type Notifier interface {
	// SendOTP delivers a one-time passcode. The code is plaintext here and
	// only here; it is never persisted unhashed.
	SendOTP(ctx context.Context, email, code string) error

	// SendInvite delivers a workspace invitation.
	SendInvite(ctx context.Context, email, workspaceName, inviterName, url string) error

	// SendFeedbackNotice delivers a feedback-view link to a developer.
	SendFeedbackNotice(ctx context.Context, email string, feedbackID uint, feedbackName, url string) error
}

// Recorder is an in-memory Notifier for tests. It records every message
// instead of delivering it.
type Recorder struct {
	mu       sync.Mutex
	OTPs     []RecordedOTP
	Invites  []RecordedInvite
	Notices  []RecordedNotice
}

type RecordedOTP struct {
	Email string
	Code  string
}

type RecordedInvite struct {
	Email         string
	WorkspaceName string
	InviterName   string
	URL           string
}

type RecordedNotice struct {
	Email        string
	FeedbackID   uint
	FeedbackName string
	URL          string
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) SendOTP(ctx context.Context, email, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.OTPs = append(r.OTPs, RecordedOTP{Email: email, Code: code})
	return nil
}

func (r *Recorder) SendInvite(ctx context.Context, email, workspaceName, inviterName, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Invites = append(r.Invites, RecordedInvite{Email: email, WorkspaceName: workspaceName, InviterName: inviterName, URL: url})
	return nil
}

func (r *Recorder) SendFeedbackNotice(ctx context.Context, email string, feedbackID uint, feedbackName, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Notices = append(r.Notices, RecordedNotice{Email: email, FeedbackID: feedbackID, FeedbackName: feedbackName, URL: url})
	return nil
}

// LastOTP returns the most recent code sent to email, or "" if none.
func (r *Recorder) LastOTP(email string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.OTPs) - 1; i >= 0; i-- {
		if r.OTPs[i].Email == email {
			return r.OTPs[i].Code
		}
	}
	return ""
}

var _ Notifier = (*Recorder)(nil)
