// Package auth implements the passwordless OTP signup/signin flow.
//
// Per email the flow moves through: no pending code -> code requested ->
// (locked | expired | verified). The pending record doubles as rate-limiter
// state: resend and attempt counters live on the row, so no separate
// token-bucket structure is needed at one-record-per-email cardinality.
package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/feedbackhq/feedbackhq/internal/logutil"
	"github.com/feedbackhq/feedbackhq/internal/notify"
	"github.com/feedbackhq/feedbackhq/internal/store"
	"github.com/feedbackhq/feedbackhq/internal/token"
)

var (
	ErrUserExists    = errors.New("user already exists")
	ErrNotInvited    = errors.New("user not found or not invited")
	ErrNoPendingCode = errors.New("no pending code for this email")
	ErrCodeExpired   = errors.New("code expired")
	ErrCodeIncorrect = errors.New("incorrect code")
	ErrLocked        = errors.New("too many failed attempts")
	ErrResendLimit   = errors.New("resend limit reached")
)

// Limits bounds the OTP lifecycle.
type Limits struct {
	Validity     time.Duration // window in which a code verifies
	ResendLimit  int           // max sends per live record
	AttemptLimit int           // wrong codes before lockout
	LockDuration time.Duration // how long verification stays blocked
}

// DefaultLimits returns the production limits.
func DefaultLimits() Limits {
	return Limits{
		Validity:     5 * time.Minute,
		ResendLimit:  3,
		AttemptLimit: 5,
		LockDuration: 30 * time.Minute,
	}
}

// placeholderName is assigned to auto-provisioned invited collaborators.
// Invited collaborators never sign up explicitly; their first signin
// materializes the account.
const placeholderName = "Invited User"

// Service orchestrates OTP issuance and verification.
type Service struct {
	db       store.Driver
	notifier notify.Notifier
	tokens   *token.Service
	limits   Limits
	log      *slog.Logger

	now func() time.Time

	// Operations on the same email are serialized so two concurrent
	// verify calls cannot both consume one code.
	emailLocks sync.Map // email -> *sync.Mutex
}

// New creates an auth service.
func New(db store.Driver, notifier notify.Notifier, tokens *token.Service, limits Limits, log *slog.Logger) *Service {
	return &Service{
		db:       db,
		notifier: notifier,
		tokens:   tokens,
		limits:   limits,
		log:      logutil.NoopIfNil(log),
		now:      time.Now,
	}
}

func (s *Service) lockEmail(email string) func() {
	v, _ := s.emailLocks.LoadOrStore(email, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// generateCode returns a fresh 6-digit numeric code.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Int64()+100000, 10), nil
}

// RequestSignupOTP starts a signup flow for a new principal.
// Returns ErrUserExists if the email is already registered and
// ErrResendLimit once the live record has been sent 3 times.
func (s *Service) RequestSignupOTP(ctx context.Context, email, fullName string) error {
	unlock := s.lockEmail(email)
	defer unlock()

	if _, err := s.db.GetUserByEmail(ctx, email); err == nil {
		return ErrUserExists
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	code, err := s.refreshCode(ctx, email, fullName)
	if err != nil {
		return err
	}

	if err := s.notifier.SendOTP(ctx, email, code); err != nil {
		return fmt.Errorf("send otp: %w", err)
	}
	s.log.Info("signup otp issued", "email", email)
	return nil
}

// RequestSigninOTP starts a signin flow. The email must belong to an
// existing principal or to an unresolved collaborator invitation; in the
// invitation case a minimal principal is materialized and linked before
// the code is issued.
func (s *Service) RequestSigninOTP(ctx context.Context, email string) error {
	unlock := s.lockEmail(email)
	defer unlock()

	_, err := s.db.GetUserByEmail(ctx, email)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if err := s.provisionInvitedUser(ctx, email); err != nil {
			return err
		}
	case err != nil:
		return err
	}

	code, err := s.refreshCode(ctx, email, "")
	if err != nil {
		return err
	}

	if err := s.notifier.SendOTP(ctx, email, code); err != nil {
		return fmt.Errorf("send otp: %w", err)
	}
	s.log.Info("signin otp issued", "email", email)
	return nil
}

// provisionInvitedUser materializes a principal for an invited collaborator
// and resolves every invite row carrying that email, in one transaction.
func (s *Service) provisionInvitedUser(ctx context.Context, email string) error {
	return s.db.Transact(ctx, func(tx store.Store) error {
		invites, err := tx.ListCollaboratorsByEmail(ctx, email)
		if err != nil {
			return err
		}
		if len(invites) == 0 {
			return ErrNotInvited
		}

		user := &store.User{
			Email:     email,
			FullName:  placeholderName,
			Onboarded: true,
		}
		if err := tx.CreateUser(ctx, user); err != nil {
			return err
		}

		for _, c := range invites {
			if c.UserID != nil {
				continue
			}
			c.UserID = &user.ID
			if err := tx.UpdateCollaborator(ctx, c); err != nil {
				return err
			}
		}
		s.log.Info("invited collaborator provisioned", "email", email, "user_id", user.ID)
		return nil
	})
}

// refreshCode creates or refreshes the pending record and returns the
// plaintext code for delivery. The code itself is stored only as a bcrypt
// hash.
func (s *Service) refreshCode(ctx context.Context, email, fullName string) (string, error) {
	code, err := generateCode()
	if err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}

	now := s.now()
	err = s.db.Transact(ctx, func(tx store.Store) error {
		record, err := tx.GetOTP(ctx, email)
		switch {
		case errors.Is(err, store.ErrNotFound):
			return tx.CreateOTP(ctx, &store.PendingOTP{
				Email:       email,
				CodeHash:    hash,
				FullName:    fullName,
				CreatedAt:   now,
				Attempts:    0,
				ResendCount: 1,
			})
		case err != nil:
			return err
		}

		if record.ResendCount >= s.limits.ResendLimit {
			return ErrResendLimit
		}
		record.CodeHash = hash
		record.CreatedAt = now
		record.ResendCount++
		if fullName != "" {
			record.FullName = fullName
		}
		return tx.UpdateOTP(ctx, record)
	})
	if err != nil {
		return "", err
	}
	return code, nil
}

// VerifySignupOTP completes a signup flow. On success the pending record is
// consumed, the principal is created (or reused if a concurrent signin
// created it first) and a session token is returned.
func (s *Service) VerifySignupOTP(ctx context.Context, email, code string) (*store.User, string, error) {
	unlock := s.lockEmail(email)
	defer unlock()

	record, err := s.checkCode(ctx, email, code)
	if err != nil {
		return nil, "", err
	}

	var user *store.User
	err = s.db.Transact(ctx, func(tx store.Store) error {
		existing, err := tx.GetUserByEmail(ctx, email)
		if err == nil {
			// A concurrent signin already created the principal; signup
			// verification is idempotent.
			user = existing
		} else if errors.Is(err, store.ErrNotFound) {
			user = &store.User{
				Email:     email,
				FullName:  record.FullName,
				Onboarded: false,
			}
			if err := tx.CreateUser(ctx, user); err != nil {
				return err
			}
		} else {
			return err
		}
		return tx.DeleteOTP(ctx, email)
	})
	if err != nil {
		return nil, "", err
	}

	tok, err := s.tokens.Issue(strconv.FormatUint(uint64(user.ID), 10), 0)
	if err != nil {
		return nil, "", err
	}
	s.log.Info("signup verified", "email", email, "user_id", user.ID)
	return user, tok, nil
}

// VerifySigninOTP completes a signin flow for an existing principal.
func (s *Service) VerifySigninOTP(ctx context.Context, email, code string) (*store.User, string, error) {
	unlock := s.lockEmail(email)
	defer unlock()

	if _, err := s.checkCode(ctx, email, code); err != nil {
		return nil, "", err
	}

	var user *store.User
	err := s.db.Transact(ctx, func(tx store.Store) error {
		u, err := tx.GetUserByEmail(ctx, email)
		if err != nil {
			return err
		}
		user = u
		return tx.DeleteOTP(ctx, email)
	})
	if err != nil {
		return nil, "", err
	}

	tok, err := s.tokens.Issue(strconv.FormatUint(uint64(user.ID), 10), 0)
	if err != nil {
		return nil, "", err
	}
	s.log.Info("signin verified", "email", email, "user_id", user.ID)
	return user, tok, nil
}

// checkCode validates a submitted code against the pending record. Failure
// bookkeeping (attempt counter, lockout) is committed immediately; the
// record is NOT deleted on success so callers can still read it inside
// their own transaction. Callers hold the per-email lock.
//
// Ordering is deliberate: the lock check precedes the expiry check, so a
// locked record answers ErrLocked even after its validity window has
// passed. Once the lockout elapses, the next verify falls through to the
// expiry check and the record is deleted. Lockout never resets the
// validity window.
func (s *Service) checkCode(ctx context.Context, email, code string) (*store.PendingOTP, error) {
	record, err := s.db.GetOTP(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoPendingCode
	}
	if err != nil {
		return nil, err
	}

	now := s.now()
	if record.Locked(now) {
		return nil, ErrLocked
	}
	if record.Expired(s.limits.Validity, now) {
		if err := s.db.DeleteOTP(ctx, email); err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, ErrCodeExpired
	}

	if bcrypt.CompareHashAndPassword(record.CodeHash, []byte(code)) != nil {
		record.Attempts++
		if record.Attempts >= s.limits.AttemptLimit {
			lockedUntil := now.Add(s.limits.LockDuration)
			record.LockedUntil = &lockedUntil
			s.log.Warn("otp locked", "email", email, "attempts", record.Attempts)
		}
		if err := s.db.UpdateOTP(ctx, record); err != nil {
			return nil, err
		}
		return nil, ErrCodeIncorrect
	}

	return record, nil
}
