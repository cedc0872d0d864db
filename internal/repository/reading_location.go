package repository

import (
	"context"
	"database/sql"

	"github.com/duobook/duobook-go/internal/model"
)

// ReadingLocationRepository handles per-user reading positions.
type ReadingLocationRepository struct {
	db *sql.DB
}

// NewReadingLocationRepository creates a new ReadingLocationRepository.
func NewReadingLocationRepository(db *sql.DB) *ReadingLocationRepository {
	return &ReadingLocationRepository{db: db}
}

// upsertLocationQuery applies last-write-wins on last_modified.
// last_modified must be assigned last so the comparisons above still see the old value.
const upsertLocationQuery = `
	INSERT INTO reading_locations (user_id, book_id, chapter_id, sentence_id, last_modified)
	VALUES (?, ?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE
		chapter_id    = IF(VALUES(last_modified) > last_modified, VALUES(chapter_id), chapter_id),
		sentence_id   = IF(VALUES(last_modified) > last_modified, VALUES(sentence_id), sentence_id),
		last_modified = IF(VALUES(last_modified) > last_modified, VALUES(last_modified), last_modified)`

// BeginTx starts a new database transaction.
func (r *ReadingLocationRepository) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return r.db.BeginTx(ctx, nil)
}

// ListByUser returns every reading location of the user.
func (r *ReadingLocationRepository) ListByUser(ctx context.Context, userID int64) ([]model.ReadingLocation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT book_id, chapter_id, sentence_id, last_modified
		 FROM reading_locations WHERE user_id = ? ORDER BY last_modified DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	locations := []model.ReadingLocation{}
	for rows.Next() {
		var l model.ReadingLocation
		if err := rows.Scan(&l.BookID, &l.ChapterID, &l.SentenceID, &l.LastModified); err != nil {
			return nil, err
		}
		locations = append(locations, l)
	}

	return locations, rows.Err()
}

// UpsertTx inserts or updates a location within the provided transaction.
func (r *ReadingLocationRepository) UpsertTx(ctx context.Context, tx *sql.Tx, userID int64, loc model.ReadingLocation) error {
	_, err := tx.ExecContext(ctx, upsertLocationQuery,
		userID, loc.BookID, loc.ChapterID, loc.SentenceID, loc.LastModified)
	return err
}

// DeleteTx removes the user's location for a book.
func (r *ReadingLocationRepository) DeleteTx(ctx context.Context, tx *sql.Tx, userID int64, bookID string) error {
	_, err := tx.ExecContext(ctx,
		`DELETE FROM reading_locations WHERE user_id = ? AND book_id = ?`, userID, bookID)
	return err
}
