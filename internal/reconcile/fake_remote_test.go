package reconcile

import (
	"context"
	"net/http"
	"slices"
	"sync"

	"github.com/duobook/duobook-go/internal/model"
	"github.com/duobook/duobook-go/internal/remote"
)

// fakeServer is an in-memory server of record with the same last-write-wins
// rules as the real one.
type fakeServer struct {
	mu        sync.Mutex
	deleted   map[string]bool
	books     map[string]model.Book
	locations map[string]model.ReadingLocation

	writes  []string
	batches [][]model.ReadingLocation
	reads   map[string]int

	failures map[string]error

	// deleteBeforeUpsert tombstones the id just before an upsert for it
	// arrives, as if another device deleted it mid-sync.
	deleteBeforeUpsert map[string]bool

	// beforeGetBook and beforeLocationBatch run ahead of the request, outside
	// the lock, to simulate local edits racing the sync.
	beforeGetBook       func(id string)
	beforeLocationBatch func()

	// gate, when set, blocks ListDeletedIDs until closed. entered receives
	// one value per blocked call.
	gate    chan struct{}
	entered chan struct{}
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		deleted:            map[string]bool{},
		books:              map[string]model.Book{},
		locations:          map[string]model.ReadingLocation{},
		reads:              map[string]int{},
		failures:           map[string]error{},
		deleteBeforeUpsert: map[string]bool{},
	}
}

func (f *fakeServer) enter(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads[op]++
	return f.failures[op]
}

func (f *fakeServer) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

func (f *fakeServer) ListDeletedIDs(ctx context.Context, token string) ([]string, error) {
	if f.gate != nil {
		f.entered <- struct{}{}
		<-f.gate
	}
	if err := f.enter("ListDeletedIDs"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.deleted))
	for id := range f.deleted {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func (f *fakeServer) MarkDeleted(ctx context.Context, token, id string) (model.MarkDeletedResponse, error) {
	if err := f.enter("MarkDeleted"); err != nil {
		return model.MarkDeletedResponse{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, "MarkDeleted "+id)
	f.deleted[id] = true
	delete(f.books, id)
	delete(f.locations, id)
	return model.MarkDeletedResponse{BookID: id, Status: "deleted"}, nil
}

func (f *fakeServer) ListBookSummaries(ctx context.Context, token string) ([]model.BookSummary, error) {
	if err := f.enter("ListBookSummaries"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.BookSummary, 0, len(f.books))
	for _, b := range f.books {
		if !f.deleted[b.ID] {
			out = append(out, b.Summary())
		}
	}
	return out, nil
}

func (f *fakeServer) GetBook(ctx context.Context, token, id string) (model.Book, error) {
	if f.beforeGetBook != nil {
		f.beforeGetBook(id)
	}
	if err := f.enter("GetBook"); err != nil {
		return model.Book{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.books[id]
	if !ok || f.deleted[id] {
		return model.Book{}, &remote.Error{Op: "getBook", Status: http.StatusNotFound, Err: remote.ErrNotFound}
	}
	return b, nil
}

func (f *fakeServer) UpsertBook(ctx context.Context, token string, book model.Book) (model.Book, error) {
	if err := f.enter("UpsertBook"); err != nil {
		return model.Book{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteBeforeUpsert[book.ID] {
		f.deleted[book.ID] = true
		delete(f.books, book.ID)
	}
	if f.deleted[book.ID] {
		return model.Book{}, &remote.Error{Op: "upsertBook", Status: http.StatusGone, Err: remote.ErrBookDeleted}
	}
	f.writes = append(f.writes, "UpsertBook "+book.ID)
	if stored, ok := f.books[book.ID]; !ok || book.LastModified > stored.LastModified {
		f.books[book.ID] = book
	}
	return f.books[book.ID], nil
}

func (f *fakeServer) ListReadingLocations(ctx context.Context, token string) ([]model.ReadingLocation, error) {
	if err := f.enter("ListReadingLocations"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.ReadingLocation, 0, len(f.locations))
	for _, l := range f.locations {
		out = append(out, l)
	}
	return out, nil
}

func (f *fakeServer) UpsertReadingLocations(ctx context.Context, token string, locs []model.ReadingLocation) (model.ReadingLocationsResponse, error) {
	if f.beforeLocationBatch != nil {
		f.beforeLocationBatch()
	}
	if err := f.enter("UpsertReadingLocations"); err != nil {
		return model.ReadingLocationsResponse{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, "UpsertReadingLocations")
	f.batches = append(f.batches, slices.Clone(locs))

	var resp model.ReadingLocationsResponse
	for _, l := range locs {
		if f.deleted[l.BookID] {
			resp.SkippedLocations = append(resp.SkippedLocations, model.SkippedLocation{BookID: l.BookID, Reason: "Book deleted"})
			continue
		}
		if stored, ok := f.locations[l.BookID]; !ok || l.LastModified > stored.LastModified {
			f.locations[l.BookID] = l
		}
		resp.ReadingLocations = append(resp.ReadingLocations, l)
	}
	return resp, nil
}

type fakeSession struct {
	mu          sync.Mutex
	token       string
	invalidated bool
}

func (s *fakeSession) Token(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" || s.invalidated {
		return "", errNoToken
	}
	return s.token, nil
}

func (s *fakeSession) HandleError(_ context.Context, err error) bool {
	if !remote.IsAuth(err) {
		return false
	}
	s.mu.Lock()
	s.invalidated = true
	s.mu.Unlock()
	return true
}
