package localstore

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duobook/duobook-go/internal/model"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "store"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCollection_CRUD(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	_, err := s.Books.Get(ctx, "b1")
	require.ErrorIs(t, err, ErrNotFound)

	book := &model.Book{ID: "b1", Title: "First", LastModified: 100}
	require.NoError(t, s.Books.Put(ctx, book))

	got, err := s.Books.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "First", got.Title)
	assert.Equal(t, int64(100), got.LastModified)

	book.Title = "Second"
	book.LastModified = 200
	require.NoError(t, s.Books.Put(ctx, book))

	all, err := s.Books.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Second", all[0].Title)

	require.NoError(t, s.Books.Delete(ctx, "b1"))
	require.NoError(t, s.Books.Delete(ctx, "b1"), "delete is idempotent")

	_, err = s.Books.Get(ctx, "b1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCollection_PutRejectsEmptyID(t *testing.T) {
	s := setupTestStore(t)

	err := s.Books.Put(context.Background(), &model.Book{Title: "no id"})
	assert.Error(t, err)
}

func TestCollection_GetAllIgnoresOtherCollections(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	require.NoError(t, s.Books.Put(ctx, &model.Book{ID: "a"}))
	require.NoError(t, s.Books.Put(ctx, &model.Book{ID: "b"}))
	require.NoError(t, s.Locations.Put(ctx, &model.ReadingLocation{BookID: "a", ChapterID: 1}))
	require.NoError(t, s.DeleteBook(ctx, "c", 5, true))

	books, err := s.Books.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, books, 2)

	locations, err := s.Locations.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, locations, 1)

	tombstones, err := s.Tombstones.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, tombstones, 1)
}

func TestStore_DeleteBook(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	require.NoError(t, s.Books.Put(ctx, &model.Book{ID: "b1", LastModified: 10}))
	require.NoError(t, s.Locations.Put(ctx, &model.ReadingLocation{BookID: "b1", ChapterID: 2, SentenceID: 3, LastModified: 11}))

	require.NoError(t, s.DeleteBook(ctx, "b1", 99, true))

	_, err := s.Books.Get(ctx, "b1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Locations.Get(ctx, "b1")
	assert.ErrorIs(t, err, ErrNotFound)

	ts, err := s.Tombstones.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, int64(99), ts.DeletedAt)
	assert.True(t, ts.Pending)

	// A second deletion keeps the original tombstone.
	require.NoError(t, s.DeleteBook(ctx, "b1", 500, false))
	ts, err = s.Tombstones.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, int64(99), ts.DeletedAt)
	assert.True(t, ts.Pending)
}

func TestStore_PendingIndex(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	require.NoError(t, s.DeleteBook(ctx, "local", 1, true))
	require.NoError(t, s.DeleteBook(ctx, "remote", 2, false))

	pending, err := s.PendingTombstoneIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"local"}, pending)

	require.NoError(t, s.AcknowledgeTombstone(ctx, "local"))
	require.NoError(t, s.AcknowledgeTombstone(ctx, "local"))

	pending, err = s.PendingTombstoneIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	ids, err := s.TombstoneIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 2, "acknowledged tombstones are kept")

	assert.ErrorIs(t, s.AcknowledgeTombstone(ctx, "missing"), ErrNotFound)
}

func TestStore_MergeRefusesTombstoned(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	require.NoError(t, s.DeleteBook(ctx, "gone", 1, false))

	err := s.MergeBook(ctx, &model.Book{ID: "gone", LastModified: 1000})
	assert.ErrorIs(t, err, ErrTombstoned)

	err = s.MergeLocation(ctx, &model.ReadingLocation{BookID: "gone", LastModified: 1000})
	assert.ErrorIs(t, err, ErrTombstoned)

	require.NoError(t, s.MergeBook(ctx, &model.Book{ID: "live", LastModified: 1}))

	dead, err := s.IsTombstoned(ctx, "gone")
	require.NoError(t, err)
	assert.True(t, dead)

	dead, err = s.IsTombstoned(ctx, "live")
	require.NoError(t, err)
	assert.False(t, dead)
}

func TestStore_MergeKeepsNewerLocalCopy(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	require.NoError(t, s.Books.Put(ctx, &model.Book{ID: "b1", Title: "local edit", LastModified: 500}))

	err := s.MergeBook(ctx, &model.Book{ID: "b1", Title: "older", LastModified: 200})
	assert.ErrorIs(t, err, ErrStale)
	err = s.MergeBook(ctx, &model.Book{ID: "b1", Title: "same", LastModified: 500})
	assert.ErrorIs(t, err, ErrStale, "equal stamps leave the stored copy alone")

	got, err := s.Books.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "local edit", got.Title)

	require.NoError(t, s.MergeBook(ctx, &model.Book{ID: "b1", Title: "newer", LastModified: 501}))
	got, err = s.Books.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "newer", got.Title)

	require.NoError(t, s.Locations.Put(ctx, &model.ReadingLocation{BookID: "b1", ChapterID: 5, LastModified: 30}))
	err = s.MergeLocation(ctx, &model.ReadingLocation{BookID: "b1", ChapterID: 1, LastModified: 20})
	assert.ErrorIs(t, err, ErrStale)
	require.NoError(t, s.MergeLocation(ctx, &model.ReadingLocation{BookID: "absent", ChapterID: 1, LastModified: 1}))
}

func TestStore_UpdateBook(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	var seen []*model.Book
	stamp := func(title string) func(*model.Book) (*model.Book, error) {
		return func(prev *model.Book) (*model.Book, error) {
			seen = append(seen, prev)
			var last int64
			if prev != nil {
				last = prev.LastModified
			}
			return &model.Book{ID: "b1", Title: title, LastModified: last + 1}, nil
		}
	}

	first, err := s.UpdateBook(ctx, "b1", stamp("A"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.LastModified)

	second, err := s.UpdateBook(ctx, "b1", stamp("B"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.LastModified)

	require.Len(t, seen, 2)
	assert.Nil(t, seen[0])
	assert.Equal(t, "A", seen[1].Title)

	boom := errors.New("boom")
	_, err = s.UpdateBook(ctx, "b1", func(*model.Book) (*model.Book, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)

	_, err = s.UpdateBook(ctx, "b1", func(*model.Book) (*model.Book, error) {
		return &model.Book{ID: "other"}, nil
	})
	assert.Error(t, err)

	got, err := s.Books.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "B", got.Title, "failed updates write nothing")

	require.NoError(t, s.DeleteBook(ctx, "b1", 9, true))
	_, err = s.UpdateBook(ctx, "b1", stamp("C"))
	assert.ErrorIs(t, err, ErrTombstoned)
}

func TestStore_UpdateLocationRequiresBook(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	set := func(prev *model.ReadingLocation) (*model.ReadingLocation, error) {
		return &model.ReadingLocation{BookID: "b1", ChapterID: 2, LastModified: 7}, nil
	}

	_, err := s.UpdateLocation(ctx, "b1", set)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Books.Put(ctx, &model.Book{ID: "b1", LastModified: 1}))
	loc, err := s.UpdateLocation(ctx, "b1", set)
	require.NoError(t, err)
	assert.Equal(t, 2, loc.ChapterID)
}

func TestStore_ConcurrentUpdatesSerialize(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	const writers, perWriter = 8, 5
	var wg sync.WaitGroup
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWriter {
				_, err := s.UpdateBook(ctx, "b1", func(prev *model.Book) (*model.Book, error) {
					next := &model.Book{ID: "b1", LastModified: 1}
					if prev != nil {
						next.LastModified = prev.LastModified + 1
					}
					return next, nil
				})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	got, err := s.Books.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, int64(writers*perWriter), got.LastModified, "no increment is lost")
}

func TestStore_Settings(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	sess, err := s.Session(ctx)
	require.NoError(t, err)
	assert.Empty(t, sess.Token)

	_, err = s.LoginInfo(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SetSession(ctx, model.Session{Token: "tok", ExpiresAt: 42}))
	require.NoError(t, s.SetLoginInfo(ctx, model.LoginInfo{ServerAddress: "https://x/", Email: "a@b.c"}))

	sess, err = s.Session(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.Session{Token: "tok", ExpiresAt: 42}, sess)

	info, err := s.LoginInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a@b.c", info.Email)
}

func TestOpen_InMemory(t *testing.T) {
	s, err := Open("", nil)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Books.Put(context.Background(), &model.Book{ID: "m"}))
}

func TestStore_CanceledContext(t *testing.T) {
	s := setupTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Books.Get(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, s.DeleteBook(ctx, "x", 1, true), context.Canceled)
}
