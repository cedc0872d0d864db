package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/duobook/duobook-go/internal/model"
)

// TokenRepository tracks issued JWTs and the ones that have been revoked.
type TokenRepository struct {
	db *sql.DB
}

// NewTokenRepository creates a new TokenRepository.
func NewTokenRepository(db *sql.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// RecordIssued stores a token handed out at login.
func (r *TokenRepository) RecordIssued(ctx context.Context, t model.IssuedToken) error {
	query := `INSERT INTO issued_tokens (token_id, user_id, issued_at, expires_at) VALUES (?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, t.TokenID, t.UserID, t.IssuedAt, t.ExpiresAt)
	return err
}

// Revoke blacklists a single token. Revoking twice is a no-op.
func (r *TokenRepository) Revoke(ctx context.Context, tokenID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT IGNORE INTO revoked_tokens (token_id) VALUES (?)`, tokenID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM issued_tokens WHERE token_id = ?`, tokenID); err != nil {
		return err
	}

	return tx.Commit()
}

// RevokeAllForUser blacklists every outstanding token of a user and returns
// how many were revoked.
func (r *TokenRepository) RevokeAllForUser(ctx context.Context, userID int64) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT IGNORE INTO revoked_tokens (token_id)
		 SELECT token_id FROM issued_tokens WHERE user_id = ?`, userID)
	if err != nil {
		return 0, err
	}
	revoked, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM issued_tokens WHERE user_id = ?`, userID); err != nil {
		return 0, err
	}

	return revoked, tx.Commit()
}

// IsRevoked reports whether the token id has been blacklisted.
func (r *TokenRepository) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM revoked_tokens WHERE token_id = ?`, tokenID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
