// Package verification manages single-use email verification tokens: at
// most one live token per user, fixed expiry window, consumed exactly once.
package verification

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"user-service/internal/notification"
	"user-service/internal/observability"
)

const (
	defaultTokenLength = 6
	defaultTokenTTL    = 5 * time.Minute
)

// TokenStore is the persistence contract. *Repository satisfies it; tests
// substitute fakes.
type TokenStore interface {
	Replace(ctx context.Context, userID, token string, expiresAt time.Time) error
	FindByToken(ctx context.Context, token string) (Token, error)
	Delete(ctx context.Context, token string) error
	Redeem(ctx context.Context, token string) (string, error)
}

// ResendGate bounds how often a user can be sent a new token.
type ResendGate interface {
	Allow(ctx context.Context, userID string) (bool, error)
}

type Service struct {
	store       TokenStore
	sender      notification.Sender
	gate        ResendGate
	tokenLength int
	tokenTTL    time.Duration
	baseURL     string
	logger      *observability.Logger
	now         func() time.Time
}

func NewService(store TokenStore, sender notification.Sender, gate ResendGate, baseURL string, logger *observability.Logger) *Service {
	return &Service{
		store:       store,
		sender:      sender,
		gate:        gate,
		tokenLength: defaultTokenLength,
		tokenTTL:    defaultTokenTTL,
		baseURL:     baseURL,
		logger:      logger,
		now:         time.Now,
	}
}

func (s *Service) WithTokenConfig(length int, ttl time.Duration) {
	if length > 0 {
		s.tokenLength = length
	}
	if ttl > 0 {
		s.tokenTTL = ttl
	}
}

// Issue replaces any live token for the user with a fresh one and delivers
// it by email. On delivery failure the persisted row is rolled back so the
// whole operation is all-or-nothing.
func (s *Service) Issue(ctx context.Context, userID, email string) error {
	token := GenerateToken(s.tokenLength)
	expiresAt := s.now().UTC().Add(s.tokenTTL)

	if err := s.store.Replace(ctx, userID, token, expiresAt); err != nil {
		return err
	}

	link := s.baseURL + "/auth/verify?token=" + url.QueryEscape(token)
	if err := s.sender.SendVerificationEmail(ctx, email, link); err != nil {
		if delErr := s.store.Delete(ctx, token); delErr != nil {
			s.logger.Error("verification_rollback_failed", map[string]any{
				"user_id": userID,
				"error":   delErr.Error(),
			})
		}
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	s.logger.Info("verification_token_issued", map[string]any{
		"user_id":    userID,
		"expires_at": expiresAt.Format(time.RFC3339),
	})

	return nil
}

// Resend has the same effect as Issue but is throttled per user.
func (s *Service) Resend(ctx context.Context, userID, email string) error {
	if s.gate != nil {
		allowed, err := s.gate.Allow(ctx, userID)
		if err != nil {
			return fmt.Errorf("check resend gate: %w", err)
		}
		if !allowed {
			return ErrResendThrottled
		}
	}

	return s.Issue(ctx, userID, email)
}

// Consume redeems a token: the owning user is enabled and the token row is
// deleted. Expired tokens are removed without enabling the user. This is
// the only path that flips an account from disabled to enabled.
func (s *Service) Consume(ctx context.Context, token string) error {
	record, err := s.store.FindByToken(ctx, token)
	if err != nil {
		return err
	}

	if !record.ExpiresAt.After(s.now()) {
		if delErr := s.store.Delete(ctx, token); delErr != nil {
			s.logger.Error("expired_token_cleanup_failed", map[string]any{
				"user_id": record.UserID,
				"error":   delErr.Error(),
			})
		}
		s.logger.Info("verification_token_expired", map[string]any{
			"user_id":    record.UserID,
			"expired_at": record.ExpiresAt.Format(time.RFC3339),
		})
		return ErrTokenExpired
	}

	userID, err := s.store.Redeem(ctx, token)
	if err != nil {
		return err
	}

	s.logger.Info("user_verified", map[string]any{"user_id": userID})
	return nil
}

var (
	ErrTokenNotFound   = errors.New("verification token not found")
	ErrTokenExpired    = errors.New("verification token expired")
	ErrDeliveryFailed  = errors.New("verification email delivery failed")
	ErrResendThrottled = errors.New("verification resend throttled")
)
