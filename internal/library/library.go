// Package library applies the user's own edits to the local store. Every
// mutation is stamped so that it wins the next sync against older copies.
package library

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/duobook/duobook-go/internal/localstore"
	"github.com/duobook/duobook-go/internal/model"
)

var (
	ErrBookNotFound = errors.New("book not found")
	ErrBookDeleted  = errors.New("book was deleted")
	ErrInvalidBook  = errors.New("invalid book")
)

// Library performs local reads and writes on behalf of the user.
type Library struct {
	store *localstore.Store
	now   func() time.Time
}

// New creates a Library over store.
func New(store *localstore.Store) *Library {
	return &Library{store: store, now: time.Now}
}

// NewBook describes a freshly created, empty project.
type NewBook struct {
	Title          string
	Author         string
	SourceLanguage string
	TargetLanguage string
}

// CreateBook stores a new book with a random id and no chapters.
func (l *Library) CreateBook(ctx context.Context, nb NewBook) (model.Book, error) {
	if strings.TrimSpace(nb.Title) == "" {
		return model.Book{}, fmt.Errorf("%w: title is required", ErrInvalidBook)
	}

	return l.SaveBook(ctx, model.Book{
		ID:             uuid.NewString(),
		Title:          nb.Title,
		Author:         nb.Author,
		SourceLanguage: nb.SourceLanguage,
		TargetLanguage: nb.TargetLanguage,
		Chapters:       []model.Chapter{},
	})
}

// SaveBook stores b with a lastModified strictly greater than the stored
// copy's, even if the wall clock stalls or steps back. The stored copy is
// read and replaced in one transaction.
func (l *Library) SaveBook(ctx context.Context, b model.Book) (model.Book, error) {
	if b.ID == "" {
		return model.Book{}, fmt.Errorf("%w: id is required", ErrInvalidBook)
	}

	saved, err := l.store.UpdateBook(ctx, b.ID, func(prev *model.Book) (*model.Book, error) {
		var last int64
		if prev != nil {
			last = prev.LastModified
		}
		b.LastModified = l.stamp(last)
		return &b, nil
	})
	if err != nil {
		return model.Book{}, translate(err)
	}
	return *saved, nil
}

// GetBook returns a live local book.
func (l *Library) GetBook(ctx context.Context, id string) (model.Book, error) {
	b, err := l.store.Books.Get(ctx, id)
	if err != nil {
		return model.Book{}, translate(err)
	}
	return *b, nil
}

// ListBooks returns the live local books ordered by title.
func (l *Library) ListBooks(ctx context.Context) ([]model.Book, error) {
	books, err := l.store.Books.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	dead, err := l.store.TombstoneIDs(ctx)
	if err != nil {
		return nil, err
	}

	books = slices.DeleteFunc(books, func(b model.Book) bool {
		_, ok := dead[b.ID]
		return ok
	})
	slices.SortFunc(books, func(a, b model.Book) int {
		if c := strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title)); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return books, nil
}

// DeleteBook removes the book and its reading location and leaves a pending
// tombstone for the next sync to upload.
func (l *Library) DeleteBook(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidBook)
	}
	return l.store.DeleteBook(ctx, id, l.now().UnixMilli(), true)
}

// SetReadingLocation records the reader's position in a live book.
func (l *Library) SetReadingLocation(ctx context.Context, bookID string, chapter, sentence int) (model.ReadingLocation, error) {
	if chapter < 0 || sentence < 0 {
		return model.ReadingLocation{}, fmt.Errorf("%w: position must not be negative", ErrInvalidBook)
	}
	loc, err := l.store.UpdateLocation(ctx, bookID, func(prev *model.ReadingLocation) (*model.ReadingLocation, error) {
		var last int64
		if prev != nil {
			last = prev.LastModified
		}
		return &model.ReadingLocation{
			BookID:       bookID,
			ChapterID:    chapter,
			SentenceID:   sentence,
			LastModified: l.stamp(last),
		}, nil
	})
	if err != nil {
		return model.ReadingLocation{}, translate(err)
	}
	return *loc, nil
}

// ReadingLocation returns the stored position for bookID.
func (l *Library) ReadingLocation(ctx context.Context, bookID string) (model.ReadingLocation, error) {
	loc, err := l.store.Locations.Get(ctx, bookID)
	if err != nil {
		return model.ReadingLocation{}, translate(err)
	}
	return *loc, nil
}

func (l *Library) stamp(prev int64) int64 {
	return max(l.now().UnixMilli(), prev+1)
}

func translate(err error) error {
	switch {
	case errors.Is(err, localstore.ErrNotFound):
		return ErrBookNotFound
	case errors.Is(err, localstore.ErrTombstoned):
		return ErrBookDeleted
	default:
		return err
	}
}
