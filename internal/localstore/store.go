// Package localstore is the device-local record store. It keeps books,
// deletion tombstones, reading locations and session settings in badger.
package localstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/duobook/duobook-go/internal/model"
)

var (
	ErrNotFound   = errors.New("record not found")
	ErrTombstoned = errors.New("book is deleted")
	ErrStale      = errors.New("stored copy is as new or newer")
)

const (
	bookPrefix      = "book:"
	tombstonePrefix = "tombstone:"
	locationPrefix  = "location:"
	settingPrefix   = "setting:"

	pendingIndex = "pending"
)

// Store holds the four local collections.
type Store struct {
	db     *badger.DB
	logger *slog.Logger

	Books      *Collection[model.Book]
	Tombstones *Collection[model.Tombstone]
	Locations  *Collection[model.ReadingLocation]
}

// Open opens the store at path. An empty path opens an in-memory store.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	} else {
		opts.SyncWrites = true
		opts.CompactL0OnClose = true
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logger,
		Books: newCollection(db, bookPrefix, func(b *model.Book) string {
			return b.ID
		}),
		Tombstones: newCollection(db, tombstonePrefix, func(t *model.Tombstone) string {
			return t.BookID
		}).withIndex(pendingIndex, func(t *model.Tombstone) []string {
			if t.Pending {
				return []string{"true"}
			}
			return nil
		}),
		Locations: newCollection(db, locationPrefix, func(l *model.ReadingLocation) string {
			return l.BookID
		}),
	}

	logger.Debug("local store opened", "path", path)
	return s, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// IsTombstoned reports whether id has a local tombstone.
func (s *Store) IsTombstoned(ctx context.Context, id string) (bool, error) {
	_, err := s.Tombstones.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// TombstoneIDs returns the set of locally tombstoned book ids.
func (s *Store) TombstoneIDs(ctx context.Context) (map[string]struct{}, error) {
	all, err := s.Tombstones.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]struct{}, len(all))
	for _, t := range all {
		ids[t.BookID] = struct{}{}
	}
	return ids, nil
}

// PendingTombstoneIDs returns ids deleted on this device that the server has
// not acknowledged yet.
func (s *Store) PendingTombstoneIDs(ctx context.Context) ([]string, error) {
	return s.Tombstones.GetAllKeysByIndex(ctx, pendingIndex, "true")
}

// DeleteBook removes the book and its reading location and records a
// tombstone, all in one transaction. An existing tombstone is kept as is.
func (s *Store) DeleteBook(ctx context.Context, id string, deletedAt int64, pending bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := s.Books.deleteTxn(txn, id); err != nil {
			return err
		}
		if err := s.Locations.deleteTxn(txn, id); err != nil {
			return err
		}

		_, err := s.Tombstones.getTxn(txn, id)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		return s.Tombstones.putTxn(txn, &model.Tombstone{
			BookID:    id,
			DeletedAt: deletedAt,
			Pending:   pending,
		})
	})
}

// AcknowledgeTombstone clears the pending flag once the server holds the
// tombstone. The tombstone itself stays.
func (s *Store) AcknowledgeTombstone(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		t, err := s.Tombstones.getTxn(txn, id)
		if err != nil {
			return err
		}
		if !t.Pending {
			return nil
		}
		t.Pending = false
		return s.Tombstones.putTxn(txn, t)
	})
}

// MergeBook stores a book received from the server. It is written only when
// it is newer than the stored copy; otherwise ErrStale is returned.
func (s *Store) MergeBook(ctx context.Context, b *model.Book) error {
	_, err := updateLive(ctx, s, s.Books, b.ID, nil, newerThan(b, b.LastModified, func(cur *model.Book) int64 {
		return cur.LastModified
	}))
	return err
}

// MergeLocation is MergeBook for reading locations.
func (s *Store) MergeLocation(ctx context.Context, loc *model.ReadingLocation) error {
	_, err := updateLive(ctx, s, s.Locations, loc.BookID, nil, newerThan(loc, loc.LastModified, func(cur *model.ReadingLocation) int64 {
		return cur.LastModified
	}))
	return err
}

// UpdateBook reads the book with id, passes it to fn (nil when absent) and
// stores what fn returns, all in one transaction.
func (s *Store) UpdateBook(ctx context.Context, id string, fn func(prev *model.Book) (*model.Book, error)) (*model.Book, error) {
	return updateLive(ctx, s, s.Books, id, nil, fn)
}

// UpdateLocation is UpdateBook for the reading location of a live local book.
// It returns ErrNotFound when the book is not stored.
func (s *Store) UpdateLocation(ctx context.Context, bookID string, fn func(prev *model.ReadingLocation) (*model.ReadingLocation, error)) (*model.ReadingLocation, error) {
	bookExists := func(txn *badger.Txn) error {
		_, err := s.Books.getTxn(txn, bookID)
		return err
	}
	return updateLive(ctx, s, s.Locations, bookID, bookExists, fn)
}

func newerThan[T any](v *T, stamp int64, stampOf func(*T) int64) func(*T) (*T, error) {
	return func(cur *T) (*T, error) {
		if cur != nil && stamp <= stampOf(cur) {
			return nil, ErrStale
		}
		return v, nil
	}
}

// updateLive runs a read-modify-write on one record of c, refusing tombstoned
// ids. Transactions that lose a write conflict are retried.
func updateLive[T any](ctx context.Context, s *Store, c *Collection[T], id string, guard func(*badger.Txn) error, fn func(prev *T) (*T, error)) (*T, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var out *T
		err := s.db.Update(func(txn *badger.Txn) error {
			_, err := s.Tombstones.getTxn(txn, id)
			if err == nil {
				return ErrTombstoned
			}
			if !errors.Is(err, ErrNotFound) {
				return err
			}
			if guard != nil {
				if err := guard(txn); err != nil {
					return err
				}
			}

			prev, err := c.getTxn(txn, id)
			if errors.Is(err, ErrNotFound) {
				prev = nil
			} else if err != nil {
				return err
			}

			next, err := fn(prev)
			if err != nil {
				return err
			}
			if got := c.idOf(next); got != id {
				return fmt.Errorf("update %s%s: record has id %q", c.prefix, id, got)
			}
			if err := c.putTxn(txn, next); err != nil {
				return err
			}
			out = next
			return nil
		})
		if errors.Is(err, badger.ErrConflict) {
			s.logger.Debug("local write conflict, retrying", "key", c.prefix+id)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", id, err)
		}
		return out, nil
	}
}
