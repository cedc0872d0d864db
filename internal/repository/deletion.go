package repository

import (
	"context"
	"database/sql"
	"errors"
)

// DeletionRepository stores per-account tombstones. Tombstones are never removed.
type DeletionRepository struct {
	db *sql.DB
}

// NewDeletionRepository creates a new DeletionRepository.
func NewDeletionRepository(db *sql.DB) *DeletionRepository {
	return &DeletionRepository{db: db}
}

// ListIDs returns every tombstoned book id for the user.
func (r *DeletionRepository) ListIDs(ctx context.Context, ownerID int64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT book_id FROM deleted_books WHERE owner_id = ? ORDER BY deleted_at ASC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// IsDeleted reports whether the user has tombstoned the book.
func (r *DeletionRepository) IsDeleted(ctx context.Context, ownerID int64, bookID string) (bool, error) {
	return isDeleted(ctx, r.db, ownerID, bookID)
}

// IsDeletedTx is IsDeleted inside a transaction.
func (r *DeletionRepository) IsDeletedTx(ctx context.Context, tx *sql.Tx, ownerID int64, bookID string) (bool, error) {
	return isDeleted(ctx, tx, ownerID, bookID)
}

// MarkTx upserts a tombstone. The first deleted_at is kept on repeat calls.
func (r *DeletionRepository) MarkTx(ctx context.Context, tx *sql.Tx, ownerID int64, bookID string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO deleted_books (owner_id, book_id) VALUES (?, ?)
		 ON DUPLICATE KEY UPDATE deleted_at = deleted_at`, ownerID, bookID)
	return err
}

func isDeleted(ctx context.Context, q querier, ownerID int64, bookID string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx,
		`SELECT 1 FROM deleted_books WHERE owner_id = ? AND book_id = ?`, ownerID, bookID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
