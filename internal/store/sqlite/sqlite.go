// Package sqlite implements a SQLite-based persistence driver using GORM.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/feedbackhq/feedbackhq/internal/store"
)

func init() {
	store.Register("sqlite", NewDriver)
}

// Driver implements the store.Driver interface using SQLite via GORM.
type Driver struct {
	dataDir string
	db      *gorm.DB
}

// NewDriver creates a new SQLite driver instance.
func NewDriver(cfg *store.DriverConfig) (store.Driver, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data_dir is required for sqlite driver")
	}

	return &Driver{
		dataDir: cfg.DataDir,
	}, nil
}

// Name returns the driver name.
func (d *Driver) Name() string {
	return "sqlite"
}

// Init initializes the SQLite database and runs AutoMigrate.
func (d *Driver) Init(ctx context.Context) error {
	dbPath := filepath.Join(d.dataDir, "feedbackhq.db")

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	d.db = db

	// AutoMigrate creates/updates tables based on model structs
	if err := db.AutoMigrate(
		&store.User{},
		&store.Developer{},
		&store.Workspace{},
		&store.Collaborator{},
		&store.Feedback{},
		&store.FeedbackAccess{},
		&store.FeedbackDeveloper{},
		&store.PendingOTP{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (d *Driver) Close() error {
	if d.db == nil {
		return nil
	}
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Transact runs fn within a single database transaction.
func (d *Driver) Transact(ctx context.Context, fn func(store.Store) error) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Driver{dataDir: d.dataDir, db: tx})
	})
}

// translate maps GORM errors to store sentinel errors.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return store.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return store.ErrAlreadyExists
	}
	return err
}

// User store

func (d *Driver) CreateUser(ctx context.Context, user *store.User) error {
	return translate(d.db.WithContext(ctx).Create(user).Error)
}

func (d *Driver) GetUser(ctx context.Context, id uint) (*store.User, error) {
	var user store.User
	if err := d.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (d *Driver) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	var user store.User
	if err := d.db.WithContext(ctx).First(&user, "email = ?", email).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (d *Driver) UpdateUser(ctx context.Context, user *store.User) error {
	return translate(d.db.WithContext(ctx).Save(user).Error)
}

// Developer store

func (d *Driver) CreateDeveloper(ctx context.Context, dev *store.Developer) error {
	return translate(d.db.WithContext(ctx).Create(dev).Error)
}

func (d *Driver) GetDeveloper(ctx context.Context, id uint) (*store.Developer, error) {
	var dev store.Developer
	if err := d.db.WithContext(ctx).First(&dev, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &dev, nil
}

func (d *Driver) GetDeveloperByEmail(ctx context.Context, email string) (*store.Developer, error) {
	var dev store.Developer
	if err := d.db.WithContext(ctx).First(&dev, "email = ?", email).Error; err != nil {
		return nil, translate(err)
	}
	return &dev, nil
}

func (d *Driver) UpdateDeveloper(ctx context.Context, dev *store.Developer) error {
	return translate(d.db.WithContext(ctx).Save(dev).Error)
}

func (d *Driver) ListDevelopersByInvitingWorkspace(ctx context.Context, workspaceID uint) ([]*store.Developer, error) {
	var devs []*store.Developer
	if err := d.db.WithContext(ctx).Find(&devs, "invited_by_workspace_id = ?", workspaceID).Error; err != nil {
		return nil, err
	}
	return devs, nil
}

// Workspace store

func (d *Driver) CreateWorkspace(ctx context.Context, ws *store.Workspace) error {
	return translate(d.db.WithContext(ctx).Create(ws).Error)
}

func (d *Driver) GetWorkspace(ctx context.Context, id uint) (*store.Workspace, error) {
	var ws store.Workspace
	if err := d.db.WithContext(ctx).First(&ws, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &ws, nil
}

func (d *Driver) GetWorkspaceByName(ctx context.Context, name string) (*store.Workspace, error) {
	var ws store.Workspace
	if err := d.db.WithContext(ctx).First(&ws, "name = ?", name).Error; err != nil {
		return nil, translate(err)
	}
	return &ws, nil
}

func (d *Driver) GetWorkspaceBySubdomain(ctx context.Context, subdomain string) (*store.Workspace, error) {
	var ws store.Workspace
	if err := d.db.WithContext(ctx).First(&ws, "subdomain = ?", subdomain).Error; err != nil {
		return nil, translate(err)
	}
	return &ws, nil
}

// Collaborator store

func (d *Driver) CreateCollaborator(ctx context.Context, c *store.Collaborator) error {
	return translate(d.db.WithContext(ctx).Create(c).Error)
}

func (d *Driver) GetCollaborator(ctx context.Context, workspaceID uint, email string) (*store.Collaborator, error) {
	var c store.Collaborator
	if err := d.db.WithContext(ctx).First(&c, "workspace_id = ? AND email = ?", workspaceID, email).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (d *Driver) GetCollaboratorByUser(ctx context.Context, workspaceID, userID uint) (*store.Collaborator, error) {
	var c store.Collaborator
	if err := d.db.WithContext(ctx).First(&c, "workspace_id = ? AND user_id = ?", workspaceID, userID).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (d *Driver) UpdateCollaborator(ctx context.Context, c *store.Collaborator) error {
	return translate(d.db.WithContext(ctx).Save(c).Error)
}

func (d *Driver) ListCollaboratorsByEmail(ctx context.Context, email string) ([]*store.Collaborator, error) {
	var cs []*store.Collaborator
	if err := d.db.WithContext(ctx).Find(&cs, "email = ?", email).Error; err != nil {
		return nil, err
	}
	return cs, nil
}

func (d *Driver) ListCollaboratorsByWorkspace(ctx context.Context, workspaceID uint) ([]*store.Collaborator, error) {
	var cs []*store.Collaborator
	if err := d.db.WithContext(ctx).Find(&cs, "workspace_id = ?", workspaceID).Error; err != nil {
		return nil, err
	}
	return cs, nil
}

// Feedback store

func (d *Driver) CreateFeedback(ctx context.Context, fb *store.Feedback) error {
	return translate(d.db.WithContext(ctx).Create(fb).Error)
}

func (d *Driver) GetFeedback(ctx context.Context, id uint) (*store.Feedback, error) {
	var fb store.Feedback
	if err := d.db.WithContext(ctx).First(&fb, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &fb, nil
}

func (d *Driver) UpdateFeedback(ctx context.Context, fb *store.Feedback) error {
	return translate(d.db.WithContext(ctx).Save(fb).Error)
}

func (d *Driver) DeleteFeedback(ctx context.Context, id uint) error {
	// Dependent rows go with the feedback itself.
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&store.FeedbackAccess{}, "feedback_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&store.FeedbackDeveloper{}, "feedback_id = ?", id).Error; err != nil {
			return err
		}
		result := tx.Delete(&store.Feedback{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return store.ErrNotFound
		}
		return nil
	})
}

func (d *Driver) ListFeedbackByWorkspace(ctx context.Context, workspaceID uint) ([]*store.Feedback, error) {
	var fbs []*store.Feedback
	if err := d.db.WithContext(ctx).Find(&fbs, "workspace_id = ?", workspaceID).Error; err != nil {
		return nil, err
	}
	return fbs, nil
}

func (d *Driver) ListFeedbackByWorkspaceAndStatus(ctx context.Context, workspaceID uint, status store.FeedbackStatus) ([]*store.Feedback, error) {
	var fbs []*store.Feedback
	if err := d.db.WithContext(ctx).Find(&fbs, "workspace_id = ? AND status = ?", workspaceID, status).Error; err != nil {
		return nil, err
	}
	return fbs, nil
}

func (d *Driver) ListFeedbackByDeveloperEmail(ctx context.Context, email string) ([]*store.Feedback, error) {
	var fbs []*store.Feedback
	if err := d.db.WithContext(ctx).Find(&fbs, "developer_email = ?", email).Error; err != nil {
		return nil, err
	}
	return fbs, nil
}

func (d *Driver) SearchFeedbackByName(ctx context.Context, workspaceID uint, query string) ([]*store.Feedback, error) {
	var fbs []*store.Feedback
	if err := d.db.WithContext(ctx).
		Where("workspace_id = ? AND name LIKE ?", workspaceID, "%"+query+"%").
		Find(&fbs).Error; err != nil {
		return nil, err
	}
	return fbs, nil
}

// FeedbackAccess store

func (d *Driver) CreateFeedbackAccess(ctx context.Context, fa *store.FeedbackAccess) error {
	return translate(d.db.WithContext(ctx).Create(fa).Error)
}

func (d *Driver) ListFeedbackAccessByUser(ctx context.Context, userID uint) ([]*store.FeedbackAccess, error) {
	var fas []*store.FeedbackAccess
	if err := d.db.WithContext(ctx).Find(&fas, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return fas, nil
}

func (d *Driver) ListFeedbackAccessByEmail(ctx context.Context, email string) ([]*store.FeedbackAccess, error) {
	var fas []*store.FeedbackAccess
	if err := d.db.WithContext(ctx).Find(&fas, "email = ?", email).Error; err != nil {
		return nil, err
	}
	return fas, nil
}

func (d *Driver) ListFeedbackAccessByFeedback(ctx context.Context, feedbackID uint) ([]*store.FeedbackAccess, error) {
	var fas []*store.FeedbackAccess
	if err := d.db.WithContext(ctx).Find(&fas, "feedback_id = ?", feedbackID).Error; err != nil {
		return nil, err
	}
	return fas, nil
}

// FeedbackDeveloper store

func (d *Driver) CreateFeedbackDeveloper(ctx context.Context, link *store.FeedbackDeveloper) error {
	return translate(d.db.WithContext(ctx).Create(link).Error)
}

func (d *Driver) GetFeedbackDeveloper(ctx context.Context, feedbackID, developerID uint) (*store.FeedbackDeveloper, error) {
	var link store.FeedbackDeveloper
	if err := d.db.WithContext(ctx).First(&link, "feedback_id = ? AND developer_id = ?", feedbackID, developerID).Error; err != nil {
		return nil, translate(err)
	}
	return &link, nil
}

func (d *Driver) UpdateFeedbackDeveloper(ctx context.Context, link *store.FeedbackDeveloper) error {
	return translate(d.db.WithContext(ctx).Save(link).Error)
}

func (d *Driver) ListFeedbackDevelopersByFeedback(ctx context.Context, feedbackID uint) ([]*store.FeedbackDeveloper, error) {
	var links []*store.FeedbackDeveloper
	if err := d.db.WithContext(ctx).Find(&links, "feedback_id = ?", feedbackID).Error; err != nil {
		return nil, err
	}
	return links, nil
}

func (d *Driver) ListFeedbackDevelopersByDeveloper(ctx context.Context, developerID uint) ([]*store.FeedbackDeveloper, error) {
	var links []*store.FeedbackDeveloper
	if err := d.db.WithContext(ctx).Find(&links, "developer_id = ?", developerID).Error; err != nil {
		return nil, err
	}
	return links, nil
}

// OTP store

func (d *Driver) CreateOTP(ctx context.Context, otp *store.PendingOTP) error {
	return translate(d.db.WithContext(ctx).Create(otp).Error)
}

func (d *Driver) GetOTP(ctx context.Context, email string) (*store.PendingOTP, error) {
	var otp store.PendingOTP
	if err := d.db.WithContext(ctx).First(&otp, "email = ?", email).Error; err != nil {
		return nil, translate(err)
	}
	return &otp, nil
}

func (d *Driver) UpdateOTP(ctx context.Context, otp *store.PendingOTP) error {
	return translate(d.db.WithContext(ctx).Save(otp).Error)
}

func (d *Driver) DeleteOTP(ctx context.Context, email string) error {
	result := d.db.WithContext(ctx).Delete(&store.PendingOTP{}, "email = ?", email)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Compile-time interface checks
var _ store.Driver = (*Driver)(nil)
var _ store.Store = (*Driver)(nil)
