package verification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Replace removes any prior tokens for the user and inserts the new one in
// a single transaction, so two concurrent issues cannot both leave a live
// row.
func (r *Repository) Replace(ctx context.Context, userID, token string, expiresAt time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin token replace tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM verification_tokens
		WHERE user_id = $1
	`, userID); err != nil {
		return fmt.Errorf("delete prior tokens: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO verification_tokens (token, user_id, expires_at)
		VALUES ($1, $2, $3)
	`, token, userID, expiresAt.UTC()); err != nil {
		return fmt.Errorf("insert token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit token replace tx: %w", err)
	}

	return nil
}

func (r *Repository) FindByToken(ctx context.Context, token string) (Token, error) {
	var record Token
	err := r.db.QueryRowContext(ctx, `
		SELECT token, user_id, expires_at, created_at
		FROM verification_tokens
		WHERE token = $1
	`, token).Scan(&record.Value, &record.UserID, &record.ExpiresAt, &record.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Token{}, ErrTokenNotFound
		}
		return Token{}, fmt.Errorf("query verification token: %w", err)
	}

	return record, nil
}

func (r *Repository) Delete(ctx context.Context, token string) error {
	if _, err := r.db.ExecContext(ctx, `
		DELETE FROM verification_tokens
		WHERE token = $1
	`, token); err != nil {
		return fmt.Errorf("delete verification token: %w", err)
	}

	return nil
}

// Redeem consumes the token and enables its owner in one transaction.
// Returns ErrTokenNotFound if the row vanished since lookup.
func (r *Repository) Redeem(ctx context.Context, token string) (string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin redeem tx: %w", err)
	}
	defer tx.Rollback()

	var userID string
	err = tx.QueryRowContext(ctx, `
		DELETE FROM verification_tokens
		WHERE token = $1
		RETURNING user_id
	`, token).Scan(&userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrTokenNotFound
		}
		return "", fmt.Errorf("consume verification token: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE users
		SET enabled = TRUE, updated_at = NOW()
		WHERE id = $1
	`, userID); err != nil {
		return "", fmt.Errorf("enable user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit redeem tx: %w", err)
	}

	return userID, nil
}

// DeleteExpired purges expired token rows in batches, oldest first.
func (r *Repository) DeleteExpired(ctx context.Context, now time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	res, err := r.db.ExecContext(ctx, `
		WITH stale AS (
			SELECT token
			FROM verification_tokens
			WHERE expires_at < $1
			ORDER BY expires_at ASC
			LIMIT $2
		)
		DELETE FROM verification_tokens t
		USING stale
		WHERE t.token = stale.token
	`, now.UTC(), batchSize)
	if err != nil {
		return 0, fmt.Errorf("delete expired verification tokens: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expired verification tokens rows affected: %w", err)
	}

	return affected, nil
}
