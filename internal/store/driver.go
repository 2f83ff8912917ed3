// Package store provides persistence primitives and driver abstractions.
package store

import (
	"context"
	"errors"
)

// Common errors for store operations.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrClosed        = errors.New("store closed")
)

// Driver defines the interface for a persistence backend.
// Implementations must be safe for concurrent use.
type Driver interface {
	Store

	// Init initializes the driver (create tables, load data, etc).
	Init(ctx context.Context) error

	// Close releases resources held by the driver.
	Close() error

	// Name returns the driver name (sqlite).
	Name() string

	// Transact runs fn within a single transaction. The Store passed to fn
	// is only valid for the duration of the call. Returning an error rolls
	// the transaction back.
	Transact(ctx context.Context, fn func(Store) error) error
}

// Store aggregates all entity stores. A Driver implements Store directly
// (auto-commit) and hands out transactional Stores via Transact.
type Store interface {
	UserStore
	DeveloperStore
	WorkspaceStore
	CollaboratorStore
	FeedbackStore
	FeedbackAccessStore
	FeedbackDeveloperStore
	OTPStore
}

// UserStore defines operations for user persistence.
type UserStore interface {
	// CreateUser creates a new user. Returns ErrAlreadyExists if the email is taken.
	CreateUser(ctx context.Context, user *User) error

	// GetUser retrieves a user by id. Returns ErrNotFound if not found.
	GetUser(ctx context.Context, id uint) (*User, error)

	// GetUserByEmail retrieves a user by email. Returns ErrNotFound if not found.
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// UpdateUser updates an existing user.
	UpdateUser(ctx context.Context, user *User) error
}

// DeveloperStore defines operations for developer persistence.
type DeveloperStore interface {
	CreateDeveloper(ctx context.Context, dev *Developer) error
	GetDeveloper(ctx context.Context, id uint) (*Developer, error)
	GetDeveloperByEmail(ctx context.Context, email string) (*Developer, error)
	UpdateDeveloper(ctx context.Context, dev *Developer) error
	ListDevelopersByInvitingWorkspace(ctx context.Context, workspaceID uint) ([]*Developer, error)
}

// WorkspaceStore defines operations for workspace persistence.
type WorkspaceStore interface {
	// CreateWorkspace creates a new workspace. Returns ErrAlreadyExists if
	// the name or subdomain is taken.
	CreateWorkspace(ctx context.Context, ws *Workspace) error
	GetWorkspace(ctx context.Context, id uint) (*Workspace, error)
	GetWorkspaceByName(ctx context.Context, name string) (*Workspace, error)
	GetWorkspaceBySubdomain(ctx context.Context, subdomain string) (*Workspace, error)
}

// CollaboratorStore defines operations for workspace collaborator persistence.
type CollaboratorStore interface {
	// CreateCollaborator creates a collaborator row. Returns ErrAlreadyExists
	// if (workspace, email) is already present.
	CreateCollaborator(ctx context.Context, c *Collaborator) error
	GetCollaborator(ctx context.Context, workspaceID uint, email string) (*Collaborator, error)
	GetCollaboratorByUser(ctx context.Context, workspaceID, userID uint) (*Collaborator, error)
	UpdateCollaborator(ctx context.Context, c *Collaborator) error
	ListCollaboratorsByEmail(ctx context.Context, email string) ([]*Collaborator, error)
	ListCollaboratorsByWorkspace(ctx context.Context, workspaceID uint) ([]*Collaborator, error)
}

// FeedbackStore defines operations for feedback persistence.
type FeedbackStore interface {
	CreateFeedback(ctx context.Context, fb *Feedback) error
	GetFeedback(ctx context.Context, id uint) (*Feedback, error)
	UpdateFeedback(ctx context.Context, fb *Feedback) error
	DeleteFeedback(ctx context.Context, id uint) error
	ListFeedbackByWorkspace(ctx context.Context, workspaceID uint) ([]*Feedback, error)
	ListFeedbackByWorkspaceAndStatus(ctx context.Context, workspaceID uint, status FeedbackStatus) ([]*Feedback, error)
	ListFeedbackByDeveloperEmail(ctx context.Context, email string) ([]*Feedback, error)
	SearchFeedbackByName(ctx context.Context, workspaceID uint, query string) ([]*Feedback, error)
}

// FeedbackAccessStore defines operations for per-feedback access grants.
type FeedbackAccessStore interface {
	CreateFeedbackAccess(ctx context.Context, fa *FeedbackAccess) error
	ListFeedbackAccessByUser(ctx context.Context, userID uint) ([]*FeedbackAccess, error)
	// ListFeedbackAccessByEmail matches grants created before the invitee
	// had an account (user_id still unresolved).
	ListFeedbackAccessByEmail(ctx context.Context, email string) ([]*FeedbackAccess, error)
	ListFeedbackAccessByFeedback(ctx context.Context, feedbackID uint) ([]*FeedbackAccess, error)
}

// FeedbackDeveloperStore defines operations for feedback-developer links.
type FeedbackDeveloperStore interface {
	// CreateFeedbackDeveloper creates a link. Returns ErrAlreadyExists if
	// the (feedback, developer) pair is already linked.
	CreateFeedbackDeveloper(ctx context.Context, link *FeedbackDeveloper) error
	GetFeedbackDeveloper(ctx context.Context, feedbackID, developerID uint) (*FeedbackDeveloper, error)
	UpdateFeedbackDeveloper(ctx context.Context, link *FeedbackDeveloper) error
	ListFeedbackDevelopersByFeedback(ctx context.Context, feedbackID uint) ([]*FeedbackDeveloper, error)
	ListFeedbackDevelopersByDeveloper(ctx context.Context, developerID uint) ([]*FeedbackDeveloper, error)
}

// OTPStore defines operations for pending one-time passcode records.
// At most one live record exists per email.
type OTPStore interface {
	CreateOTP(ctx context.Context, otp *PendingOTP) error
	GetOTP(ctx context.Context, email string) (*PendingOTP, error)
	UpdateOTP(ctx context.Context, otp *PendingOTP) error
	DeleteOTP(ctx context.Context, email string) error
}
