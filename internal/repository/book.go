package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/duobook/duobook-go/internal/model"
)

var ErrBookNotFound = errors.New("book not found")

// BookRepository handles book and chapter persistence.
type BookRepository struct {
	db *sql.DB
}

// NewBookRepository creates a new BookRepository.
func NewBookRepository(db *sql.DB) *BookRepository {
	return &BookRepository{db: db}
}

// BeginTx starts a new database transaction.
func (r *BookRepository) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return r.db.BeginTx(ctx, nil)
}

// ListSummaries returns id, title, author and lastModified of every live book
// owned by the user. Tombstoned ids are excluded.
func (r *BookRepository) ListSummaries(ctx context.Context, ownerID int64) ([]model.BookSummary, error) {
	query := `SELECT b.id, b.title, b.author, b.last_modified
		FROM books b
		LEFT JOIN deleted_books d ON d.owner_id = b.owner_id AND d.book_id = b.id
		WHERE b.owner_id = ? AND d.book_id IS NULL
		ORDER BY b.last_modified DESC`

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	books := []model.BookSummary{}
	for rows.Next() {
		var b model.BookSummary
		if err := rows.Scan(&b.ID, &b.Title, &b.Author, &b.LastModified); err != nil {
			return nil, err
		}
		books = append(books, b)
	}

	return books, rows.Err()
}

// Get retrieves a full book with its chapters in order.
func (r *BookRepository) Get(ctx context.Context, ownerID int64, bookID string) (*model.Book, error) {
	return getBook(ctx, r.db, ownerID, bookID)
}

// LockTx reads the owner and lastModified of a book and locks the row for the
// rest of the transaction. found is false when no row exists yet.
func (r *BookRepository) LockTx(ctx context.Context, tx *sql.Tx, bookID string) (ownerID, lastModified int64, found bool, err error) {
	err = tx.QueryRowContext(ctx,
		`SELECT owner_id, last_modified FROM books WHERE id = ? FOR UPDATE`, bookID,
	).Scan(&ownerID, &lastModified)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, false, nil
	}
	if err != nil {
		return 0, 0, false, err
	}
	return ownerID, lastModified, true, nil
}

// SaveTx writes the book row and replaces all of its chapters.
// The caller is responsible for the last-write-wins check.
func (r *BookRepository) SaveTx(ctx context.Context, tx *sql.Tx, ownerID int64, book *model.Book) error {
	query := `
		INSERT INTO books (id, owner_id, title, author, cover, notes, source_language, target_language, last_modified)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			title           = VALUES(title),
			author          = VALUES(author),
			cover           = VALUES(cover),
			notes           = VALUES(notes),
			source_language = VALUES(source_language),
			target_language = VALUES(target_language),
			last_modified   = VALUES(last_modified)`

	if _, err := tx.ExecContext(ctx, query,
		book.ID, ownerID, book.Title, book.Author, book.Cover, book.Notes,
		book.SourceLanguage, book.TargetLanguage, book.LastModified,
	); err != nil {
		return fmt.Errorf("save book: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM chapters WHERE book_id = ?`, book.ID); err != nil {
		return fmt.Errorf("clear chapters: %w", err)
	}

	for i, ch := range book.Chapters {
		content := ch.Content
		if content == nil {
			content = []model.Sentence{}
		}
		data, err := json.Marshal(content)
		if err != nil {
			return fmt.Errorf("encode chapter %d: %w", i, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chapters (book_id, idx, title, content) VALUES (?, ?, ?, ?)`,
			book.ID, i, ch.Title, data,
		); err != nil {
			return fmt.Errorf("insert chapter %d: %w", i, err)
		}
	}

	return nil
}

// DeleteTx removes a book owned by the user. Chapters go with it through the
// foreign key. Deleting a missing book is not an error.
func (r *BookRepository) DeleteTx(ctx context.Context, tx *sql.Tx, ownerID int64, bookID string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM books WHERE id = ? AND owner_id = ?`, bookID, ownerID)
	return err
}

func getBook(ctx context.Context, q querier, ownerID int64, bookID string) (*model.Book, error) {
	book := &model.Book{}
	err := q.QueryRowContext(ctx,
		`SELECT id, title, author, cover, notes, source_language, target_language, last_modified
		 FROM books WHERE id = ? AND owner_id = ?`, bookID, ownerID,
	).Scan(&book.ID, &book.Title, &book.Author, &book.Cover, &book.Notes,
		&book.SourceLanguage, &book.TargetLanguage, &book.LastModified)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookNotFound
		}
		return nil, err
	}

	rows, err := q.QueryContext(ctx,
		`SELECT title, content FROM chapters WHERE book_id = ? ORDER BY idx ASC`, bookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	book.Chapters = []model.Chapter{}
	for rows.Next() {
		var (
			ch      model.Chapter
			content []byte
		)
		if err := rows.Scan(&ch.Title, &content); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(content, &ch.Content); err != nil {
			return nil, fmt.Errorf("decode chapter content: %w", err)
		}
		book.Chapters = append(book.Chapters, ch)
	}

	return book, rows.Err()
}
