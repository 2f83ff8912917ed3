package store

import "time"

// FeedbackStatus is the lifecycle state of a feedback item.
// Transitions move forward only, except draft -> edited.
// Sent feedback is immutable.
type FeedbackStatus string

const (
	FeedbackDraft  FeedbackStatus = "draft"
	FeedbackSent   FeedbackStatus = "sent"
	FeedbackEdited FeedbackStatus = "edited"
)

// Valid reports whether s is a known feedback status.
func (s FeedbackStatus) Valid() bool {
	switch s {
	case FeedbackDraft, FeedbackSent, FeedbackEdited:
		return true
	}
	return false
}

// AccessLevel is the capability granted to a collaborator.
type AccessLevel string

const (
	AccessComment AccessLevel = "comment"
	AccessEdit    AccessLevel = "edit"
)

// Valid reports whether a is a known access level.
func (a AccessLevel) Valid() bool {
	return a == AccessComment || a == AccessEdit
}

// AssignmentStatus is the state of a feedback-developer link.
type AssignmentStatus string

const (
	AssignmentPending      AssignmentStatus = "pending"
	AssignmentAcknowledged AssignmentStatus = "acknowledged"
	AssignmentUnclear      AssignmentStatus = "unclear"
)

// Valid reports whether s is a known assignment status.
func (s AssignmentStatus) Valid() bool {
	switch s {
	case AssignmentPending, AssignmentAcknowledged, AssignmentUnclear:
		return true
	}
	return false
}

// ValidDeveloperAction reports whether s is a status a developer may set.
// Pending is assigned by the system, never by a developer.
func ValidDeveloperAction(s AssignmentStatus) bool {
	return s == AssignmentAcknowledged || s == AssignmentUnclear
}

// PendingOTP is a live one-time passcode record. The record doubles as
// rate-limiter state: resend and attempt counters live on the row itself.
// Only the bcrypt hash of the code is ever persisted.
type PendingOTP struct {
	ID          uint       `json:"id" gorm:"primaryKey"`
	Email       string     `json:"email" gorm:"uniqueIndex;size:255;not null"`
	CodeHash    []byte     `json:"-" gorm:"not null"`
	FullName    string     `json:"full_name,omitempty" gorm:"size:255"` // signup only
	CreatedAt   time.Time  `json:"created_at"`
	Attempts    int        `json:"attempts"`
	ResendCount int        `json:"resend_count"`
	LockedUntil *time.Time `json:"locked_until,omitempty"`
}

// Expired reports whether the record is past its validity window.
func (o *PendingOTP) Expired(validity time.Duration, now time.Time) bool {
	return now.After(o.CreatedAt.Add(validity))
}

// Locked reports whether verification is currently blocked.
func (o *PendingOTP) Locked(now time.Time) bool {
	return o.LockedUntil != nil && o.LockedUntil.After(now)
}

// User is a registered principal who owns workspaces and feedback.
type User struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	Email        string    `json:"email" gorm:"uniqueIndex;size:255;not null"`
	FullName     string    `json:"full_name" gorm:"size:255;not null"`
	ProfileImage string    `json:"profile_image,omitempty" gorm:"size:1000"`
	Onboarded    bool      `json:"onboarded"`
	CreatedAt    time.Time `json:"created_at"`
}

// Developer is an external principal to whom feedback is routed.
// It may exist as a stub (email only) before the holder ever signs in.
type Developer struct {
	ID                   uint  `json:"id" gorm:"primaryKey"`
	Email                string `json:"email" gorm:"uniqueIndex;size:255;not null"`
	WorkspaceID          *uint  `json:"workspace_id,omitempty"`            // developer's own workspace, once registered
	InvitedByWorkspaceID *uint  `json:"invited_by_workspace_id,omitempty"` // workspace that first shared feedback with them
}

// Workspace is the tenant boundary owning feedback and collaborators.
type Workspace struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"uniqueIndex;size:255;not null"`
	Subdomain string    `json:"subdomain" gorm:"uniqueIndex;size:255"`
	Type      string    `json:"type" gorm:"size:100"`    // Company, Individual
	Purpose   string    `json:"purpose" gorm:"size:100"` // Work, Personal
	Role      string    `json:"role" gorm:"size:100"`    // Engineer, Designer, Developer, Other
	IconURL   string    `json:"icon_url,omitempty" gorm:"size:255"`
	OwnerID   uint      `json:"owner_id" gorm:"index;not null"`
	CreatedAt time.Time `json:"created_at"`
}

// Collaborator is a workspace-scoped guest, keyed by email until the
// invitee signs in and UserID is resolved.
type Collaborator struct {
	ID          uint        `json:"id" gorm:"primaryKey"`
	WorkspaceID uint        `json:"workspace_id" gorm:"uniqueIndex:uix_collaborator_workspace_email;not null"`
	Email       string      `json:"email" gorm:"uniqueIndex:uix_collaborator_workspace_email;size:255;not null"`
	UserID      *uint       `json:"user_id,omitempty" gorm:"index"`
	AccessLevel AccessLevel `json:"access_level" gorm:"size:10;default:comment"`
	InvitedByID *uint       `json:"invited_by_id,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Feedback is a single feedback item within a workspace.
type Feedback struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	Name        string         `json:"name" gorm:"size:255;not null"`
	WorkspaceID uint           `json:"workspace_id" gorm:"index"`
	CreatedBy   uint           `json:"created_by" gorm:"index"`
	Status      FeedbackStatus `json:"status" gorm:"size:16;default:draft"`
	URL         string         `json:"url,omitempty" gorm:"size:500"`
	Message     string         `json:"message,omitempty" gorm:"type:text"`

	ScreenshotURL     string `json:"screenshot_url,omitempty" gorm:"size:500"`
	RecordingURL      string `json:"recording_url,omitempty" gorm:"size:500"`
	VoiceRecordingURL string `json:"voice_recording_url,omitempty" gorm:"size:500"`

	// DeveloperEmail pre-binds a developer assignment before the developer
	// account exists. Cleared when pending assignments are resolved.
	DeveloperEmail string `json:"developer_email,omitempty" gorm:"index;size:255"`

	CreatedAt time.Time `json:"created_at"`
}

// FeedbackAccess is a per-feedback visibility grant, narrower than
// workspace membership. It narrows, never widens, what a collaborator sees.
type FeedbackAccess struct {
	ID          uint        `json:"id" gorm:"primaryKey"`
	FeedbackID  uint        `json:"feedback_id" gorm:"index;not null"`
	Email       string      `json:"email" gorm:"size:255;not null"`
	UserID      *uint       `json:"user_id,omitempty" gorm:"index"`
	AccessLevel AccessLevel `json:"access_level" gorm:"size:10;default:comment"`
}

// FeedbackDeveloper links a feedback item to a developer, unique per pair.
type FeedbackDeveloper struct {
	ID          uint             `json:"id" gorm:"primaryKey"`
	FeedbackID  uint             `json:"feedback_id" gorm:"uniqueIndex:uix_feedback_developer;not null"`
	DeveloperID uint             `json:"developer_id" gorm:"uniqueIndex:uix_feedback_developer;not null"`
	Status      AssignmentStatus `json:"status" gorm:"size:16;default:pending"`
	ActionTime  *time.Time       `json:"action_time,omitempty"`
}
