// Package session mints access/refresh token pairs: a stateless HS256
// access token plus an opaque refresh token held in Redis until logout,
// rotation, or expiry.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour

	refreshTokenBytes = 48
)

// RefreshStore keeps refresh tokens keyed by value with a per-user reverse
// index. *RedisStore satisfies it; tests substitute miniredis-backed
// instances or fakes.
type RefreshStore interface {
	Put(ctx context.Context, username, token string, ttl time.Duration) error
	Get(ctx context.Context, token string) (string, error)
	Delete(ctx context.Context, token string) error
}

type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

type Issuer struct {
	store      RefreshStore
	jwtSecret  []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewIssuer(store RefreshStore, jwtSecret string) *Issuer {
	return &Issuer{
		store:      store,
		jwtSecret:  []byte(jwtSecret),
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
	}
}

func (i *Issuer) WithTokenTTLs(accessTTL, refreshTTL time.Duration) {
	if accessTTL > 0 {
		i.accessTTL = accessTTL
	}
	if refreshTTL > 0 {
		i.refreshTTL = refreshTTL
	}
}

// IssueSession signs a fresh access token and persists a new refresh token
// for the username, replacing any prior one (single active session).
func (i *Issuer) IssueSession(ctx context.Context, username string) (Tokens, error) {
	access, expiresIn, err := i.signAccessToken(username)
	if err != nil {
		return Tokens{}, err
	}

	refresh, err := newRefreshToken()
	if err != nil {
		return Tokens{}, fmt.Errorf("generate refresh token: %w", err)
	}

	if err := i.store.Put(ctx, username, refresh, i.refreshTTL); err != nil {
		return Tokens{}, fmt.Errorf("persist refresh token: %w", err)
	}

	return Tokens{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    expiresIn,
	}, nil
}

// Refresh exchanges a stored refresh token for a fresh pair. The old token
// is revoked before the new one is issued (rotation).
func (i *Issuer) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	username, err := i.store.Get(ctx, refreshToken)
	if err != nil {
		return Tokens{}, err
	}

	// A delete miss means the token was spent concurrently between our Get
	// and now; the whole exchange fails so a token is never spent twice.
	if err := i.store.Delete(ctx, refreshToken); err != nil {
		return Tokens{}, err
	}

	return i.IssueSession(ctx, username)
}

// Revoke removes the refresh token so it can no longer be exchanged.
func (i *Issuer) Revoke(ctx context.Context, refreshToken string) error {
	return i.store.Delete(ctx, refreshToken)
}

func (i *Issuer) signAccessToken(username string) (string, int64, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub":      username,
		"username": username,
		"iat":      now.Unix(),
		"exp":      now.Add(i.accessTTL).Unix(),
		"typ":      "access",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	encoded, err := token.SignedString(i.jwtSecret)
	if err != nil {
		return "", 0, fmt.Errorf("sign jwt: %w", err)
	}

	return encoded, int64(i.accessTTL.Seconds()), nil
}

func newRefreshToken() (string, error) {
	b := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

var ErrInvalidRefreshToken = errors.New("invalid refresh token")
