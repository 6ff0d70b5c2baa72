package account

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"user-service/internal/observability"
	"user-service/internal/session"
	"user-service/internal/verification"
)

// UserStore is the persistence contract the service needs. *Repository
// satisfies it; tests substitute fakes.
type UserStore interface {
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	FindByUsername(ctx context.Context, username string) (User, error)
	FindByID(ctx context.Context, id string) (User, error)
	Create(ctx context.Context, user User) (User, error)
}

// VerificationIssuer issues and resends email verification tokens.
type VerificationIssuer interface {
	Issue(ctx context.Context, userID, email string) error
	Resend(ctx context.Context, userID, email string) error
}

// SessionStarter mints an access/refresh token pair for a verified login.
type SessionStarter interface {
	IssueSession(ctx context.Context, username string) (session.Tokens, error)
}

type Service struct {
	store    UserStore
	hasher   *PasswordHasher
	verifier VerificationIssuer
	sessions SessionStarter
	logger   *observability.Logger
}

func NewService(store UserStore, hasher *PasswordHasher, verifier VerificationIssuer, sessions SessionStarter, logger *observability.Logger) *Service {
	return &Service{
		store:    store,
		hasher:   hasher,
		verifier: verifier,
		sessions: sessions,
		logger:   logger,
	}
}

func (s *Service) Register(ctx context.Context, username, email, password string) (User, error) {
	username = normalize(username)
	email = normalize(email)

	taken, err := s.store.ExistsByUsername(ctx, username)
	if err != nil {
		return User{}, err
	}
	if taken {
		s.logger.Warn("register_username_taken", map[string]any{"username": username})
		return User{}, ErrUsernameTaken
	}

	taken, err = s.store.ExistsByEmail(ctx, email)
	if err != nil {
		return User{}, err
	}
	if taken {
		s.logger.Warn("register_email_taken", map[string]any{"email": email})
		return User{}, ErrEmailTaken
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return User{}, err
	}

	user, err := s.store.Create(ctx, User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Enabled:      false,
	})
	if err != nil {
		return User{}, err
	}

	// The user row is already persisted. If delivery fails the token row is
	// rolled back by the issuer and the account can recover through the
	// resend endpoint, it is never stuck unverified without a token path.
	if err := s.verifier.Issue(ctx, user.ID, user.Email); err != nil {
		s.logger.Error("register_verification_delivery_failed", map[string]any{
			"user_id": user.ID,
			"error":   err.Error(),
		})
		return User{}, fmt.Errorf("%w: %v", ErrVerificationDelivery, err)
	}

	s.logger.Info("user_registered", map[string]any{"user_id": user.ID, "username": username})
	return user, nil
}

func (s *Service) Login(ctx context.Context, username, password string) (session.Tokens, error) {
	username = normalize(username)

	user, err := s.store.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// Burn a comparison so unknown usernames cost the same as a
			// wrong password.
			s.hasher.Verify(password, dummyDigest)
			s.logger.Warn("login_failed", map[string]any{"username": username})
			return session.Tokens{}, ErrInvalidCredentials
		}
		return session.Tokens{}, err
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		s.logger.Warn("login_failed", map[string]any{"username": username})
		return session.Tokens{}, ErrInvalidCredentials
	}

	if !user.Enabled {
		if err := s.verifier.Resend(ctx, user.ID, user.Email); err != nil {
			if errors.Is(err, verification.ErrResendThrottled) {
				s.logger.Info("login_unverified_resend_throttled", map[string]any{"user_id": user.ID})
			} else {
				s.logger.Error("login_unverified_resend_failed", map[string]any{
					"user_id": user.ID,
					"error":   err.Error(),
				})
			}
		}
		return session.Tokens{}, ErrAccountNotVerified
	}

	tokens, err := s.sessions.IssueSession(ctx, user.Username)
	if err != nil {
		return session.Tokens{}, err
	}

	s.logger.Info("login_succeeded", map[string]any{"user_id": user.ID, "username": username})
	return tokens, nil
}

func (s *Service) FindByID(ctx context.Context, id string) (User, error) {
	return s.store.FindByID(ctx, id)
}

// ResendVerification re-issues a verification token for an unverified
// account. Already-verified accounts are a silent no-op so the endpoint
// does not leak account state.
func (s *Service) ResendVerification(ctx context.Context, username string) error {
	user, err := s.store.FindByUsername(ctx, normalize(username))
	if err != nil {
		return err
	}
	if user.Enabled {
		return nil
	}

	return s.verifier.Resend(ctx, user.ID, user.Email)
}

func normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// Valid bcrypt digest that matches no issued password, used to equalize
// response timing for unknown usernames.
const dummyDigest = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

var (
	ErrUsernameTaken        = errors.New("username already taken")
	ErrEmailTaken           = errors.New("email already in use")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrAccountNotVerified   = errors.New("account not verified")
	ErrUserNotFound         = errors.New("user not found")
	ErrVerificationDelivery = errors.New("verification email delivery failed")
)
