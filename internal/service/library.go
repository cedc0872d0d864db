package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/duobook/duobook-go/internal/model"
	"github.com/duobook/duobook-go/internal/repository"
)

const (
	maxBookIDLength  = 64
	maxLocationBatch = 1000

	skipReasonMissingField = "Missing required fields"
	skipReasonBookDeleted  = "Book is deleted"
)

var (
	ErrBookNotFound     = errors.New("book not found")
	ErrBookDeleted      = errors.New("cannot update deleted book")
	ErrInvalidBookID    = errors.New("invalid book id")
	ErrNoLocations      = errors.New("at least one reading location is required")
	ErrTooManyLocations = fmt.Errorf("too many reading locations in one request (max %d)", maxLocationBatch)
)

// LibraryService is the server of record for books, tombstones and reading
// locations. Every write applies last-write-wins on lastModified.
type LibraryService struct {
	books     *repository.BookRepository
	deletions *repository.DeletionRepository
	locations *repository.ReadingLocationRepository
	now       func() time.Time
}

// NewLibraryService creates a new LibraryService.
func NewLibraryService(books *repository.BookRepository, deletions *repository.DeletionRepository, locations *repository.ReadingLocationRepository) *LibraryService {
	return &LibraryService{
		books:     books,
		deletions: deletions,
		locations: locations,
		now:       time.Now,
	}
}

// ListDeletedIDs returns the caller's tombstoned book ids.
func (s *LibraryService) ListDeletedIDs(ctx context.Context, userID int64) (model.DeletedBooksResponse, error) {
	ids, err := s.deletions.ListIDs(ctx, userID)
	if err != nil {
		return model.DeletedBooksResponse{}, err
	}
	return model.DeletedBooksResponse{DeletedBookIDs: ids}, nil
}

// MarkDeleted records a tombstone and removes the book, its chapters and the
// caller's reading location in a single transaction. Repeating it is harmless.
func (s *LibraryService) MarkDeleted(ctx context.Context, userID int64, req model.MarkDeletedRequest) (model.MarkDeletedResponse, error) {
	if err := validateStruct(req); err != nil {
		return model.MarkDeletedResponse{}, err
	}

	tx, err := s.books.BeginTx(ctx)
	if err != nil {
		return model.MarkDeletedResponse{}, err
	}
	defer tx.Rollback()

	if err := s.deletions.MarkTx(ctx, tx, userID, req.BookID); err != nil {
		return model.MarkDeletedResponse{}, fmt.Errorf("mark deleted: %w", err)
	}
	if err := s.books.DeleteTx(ctx, tx, userID, req.BookID); err != nil {
		return model.MarkDeletedResponse{}, fmt.Errorf("delete book: %w", err)
	}
	if err := s.locations.DeleteTx(ctx, tx, userID, req.BookID); err != nil {
		return model.MarkDeletedResponse{}, fmt.Errorf("delete reading location: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.MarkDeletedResponse{}, err
	}

	slog.Info("book deleted", "uid", userID, "book_id", req.BookID)
	return model.MarkDeletedResponse{BookID: req.BookID, Status: "deleted"}, nil
}

// ListBooks returns summaries of the caller's live books.
func (s *LibraryService) ListBooks(ctx context.Context, userID int64) (model.BookListResponse, error) {
	books, err := s.books.ListSummaries(ctx, userID)
	if err != nil {
		return model.BookListResponse{}, err
	}
	return model.BookListResponse{Books: books}, nil
}

// GetBook returns a full book. Tombstoned and foreign books are not found.
func (s *LibraryService) GetBook(ctx context.Context, userID int64, bookID string) (model.Book, error) {
	if !validBookID(bookID) {
		return model.Book{}, ErrInvalidBookID
	}

	deleted, err := s.deletions.IsDeleted(ctx, userID, bookID)
	if err != nil {
		return model.Book{}, err
	}
	if deleted {
		return model.Book{}, ErrBookNotFound
	}

	book, err := s.books.Get(ctx, userID, bookID)
	if err != nil {
		if errors.Is(err, repository.ErrBookNotFound) {
			return model.Book{}, ErrBookNotFound
		}
		return model.Book{}, err
	}
	return *book, nil
}

// UpsertBook stores the book only when it is new or strictly newer than the
// stored copy, and returns whatever is stored afterwards.
func (s *LibraryService) UpsertBook(ctx context.Context, userID int64, bookID string, req model.UpsertBookRequest) (model.Book, error) {
	if !validBookID(bookID) {
		return model.Book{}, ErrInvalidBookID
	}
	if err := validateStruct(req); err != nil {
		return model.Book{}, err
	}
	if req.LastModified == 0 {
		req.LastModified = s.now().UnixMilli()
	}

	tx, err := s.books.BeginTx(ctx)
	if err != nil {
		return model.Book{}, err
	}
	defer tx.Rollback()

	deleted, err := s.deletions.IsDeletedTx(ctx, tx, userID, bookID)
	if err != nil {
		return model.Book{}, err
	}
	if deleted {
		return model.Book{}, ErrBookDeleted
	}

	ownerID, stored, found, err := s.books.LockTx(ctx, tx, bookID)
	if err != nil {
		return model.Book{}, err
	}
	if found && ownerID != userID {
		return model.Book{}, ErrBookNotFound
	}

	if !found || req.LastModified > stored {
		book := bookFromRequest(bookID, req)
		if err := s.books.SaveTx(ctx, tx, userID, &book); err != nil {
			return model.Book{}, err
		}
	} else {
		slog.Debug("book upsert ignored, stored copy is not older",
			"book_id", bookID, "incoming", req.LastModified, "stored", stored)
	}

	if err := tx.Commit(); err != nil {
		return model.Book{}, err
	}

	return s.GetBook(ctx, userID, bookID)
}

// ListReadingLocations returns every reading location of the caller.
func (s *LibraryService) ListReadingLocations(ctx context.Context, userID int64) (model.ReadingLocationsResponse, error) {
	locations, err := s.locations.ListByUser(ctx, userID)
	if err != nil {
		return model.ReadingLocationsResponse{}, err
	}
	return model.ReadingLocationsResponse{ReadingLocations: locations}, nil
}

// UpsertReadingLocations applies a batch with per-item last-write-wins.
// Items that are incomplete or belong to a deleted book are reported as skipped.
func (s *LibraryService) UpsertReadingLocations(ctx context.Context, userID int64, req model.ReadingLocationsRequest) (model.ReadingLocationsResponse, error) {
	if len(req.ReadingLocations) == 0 {
		return model.ReadingLocationsResponse{}, ErrNoLocations
	}
	if len(req.ReadingLocations) > maxLocationBatch {
		return model.ReadingLocationsResponse{}, ErrTooManyLocations
	}

	deletedIDs, err := s.deletions.ListIDs(ctx, userID)
	if err != nil {
		return model.ReadingLocationsResponse{}, err
	}
	deleted := make(map[string]struct{}, len(deletedIDs))
	for _, id := range deletedIDs {
		deleted[id] = struct{}{}
	}

	tx, err := s.locations.BeginTx(ctx)
	if err != nil {
		return model.ReadingLocationsResponse{}, err
	}
	defer tx.Rollback()

	resp := model.ReadingLocationsResponse{
		ReadingLocations: []model.ReadingLocation{},
		SkippedLocations: []model.SkippedLocation{},
	}
	for _, in := range req.ReadingLocations {
		if in.BookID == "" || in.ChapterID == nil || in.SentenceID == nil {
			id := in.BookID
			if id == "" {
				id = "unknown"
			}
			resp.SkippedLocations = append(resp.SkippedLocations, model.SkippedLocation{BookID: id, Reason: skipReasonMissingField})
			continue
		}
		if _, ok := deleted[in.BookID]; ok {
			resp.SkippedLocations = append(resp.SkippedLocations, model.SkippedLocation{BookID: in.BookID, Reason: skipReasonBookDeleted})
			continue
		}

		loc := model.ReadingLocation{
			BookID:       in.BookID,
			ChapterID:    *in.ChapterID,
			SentenceID:   *in.SentenceID,
			LastModified: in.LastModified,
		}
		if loc.LastModified == 0 {
			loc.LastModified = s.now().UnixMilli()
		}

		if err := s.locations.UpsertTx(ctx, tx, userID, loc); err != nil {
			return model.ReadingLocationsResponse{}, fmt.Errorf("upsert reading location %s: %w", loc.BookID, err)
		}
		resp.ReadingLocations = append(resp.ReadingLocations, loc)
	}

	if err := tx.Commit(); err != nil {
		return model.ReadingLocationsResponse{}, err
	}

	if len(resp.SkippedLocations) > 0 {
		slog.Warn("reading locations skipped", "uid", userID, "skipped", len(resp.SkippedLocations))
	}
	return resp, nil
}

func validBookID(id string) bool {
	return id != "" && len(id) <= maxBookIDLength
}

func bookFromRequest(id string, req model.UpsertBookRequest) model.Book {
	return model.Book{
		ID:             id,
		Title:          req.Title,
		Author:         req.Author,
		Cover:          req.Cover,
		Notes:          req.Notes,
		SourceLanguage: req.SourceLanguage,
		TargetLanguage: req.TargetLanguage,
		Chapters:       req.Chapters,
		LastModified:   req.LastModified,
	}
}
