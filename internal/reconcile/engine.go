// Package reconcile merges the local store with the server in four ordered
// phases: tombstones, books, reading locations, completion.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/duobook/duobook-go/internal/localstore"
	"github.com/duobook/duobook-go/internal/model"
	"github.com/duobook/duobook-go/internal/remote"
)

// Remote is the server API used by the engine.
type Remote interface {
	ListDeletedIDs(ctx context.Context, token string) ([]string, error)
	MarkDeleted(ctx context.Context, token, id string) (model.MarkDeletedResponse, error)
	ListBookSummaries(ctx context.Context, token string) ([]model.BookSummary, error)
	GetBook(ctx context.Context, token, id string) (model.Book, error)
	UpsertBook(ctx context.Context, token string, book model.Book) (model.Book, error)
	ListReadingLocations(ctx context.Context, token string) ([]model.ReadingLocation, error)
	UpsertReadingLocations(ctx context.Context, token string, locs []model.ReadingLocation) (model.ReadingLocationsResponse, error)
}

// Session supplies the bearer token and is told about failed calls so it can
// drop a rejected token.
type Session interface {
	Token(ctx context.Context) (string, error)
	HandleError(ctx context.Context, err error) bool
}

// Engine runs reconciliation. Concurrent calls to Run share one execution.
type Engine struct {
	store   *localstore.Store
	remote  Remote
	session Session
	logger  *slog.Logger
	now     func() time.Time

	group singleflight.Group

	mu        sync.Mutex
	observers []Observer
}

// NewEngine creates an Engine. A nil logger means slog.Default().
func NewEngine(store *localstore.Store, rc Remote, sess Session, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:   store,
		remote:  rc,
		session: sess,
		logger:  logger,
		now:     time.Now,
	}
}

// Subscribe registers o for completion events.
func (e *Engine) Subscribe(o Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, o)
}

// Run performs one reconciliation. A call made while another is in flight
// waits for it and receives the same result. A started run is not cancelled
// by its caller's context.
func (e *Engine) Run(ctx context.Context) Result {
	v, _, shared := e.group.Do("sync", func() (any, error) {
		return e.run(context.WithoutCancel(ctx)), nil
	})
	res := v.(Result)
	if shared {
		e.logger.Debug("joined in-flight sync")
	}
	res.NewBookIDs = slices.Clone(res.NewBookIDs)
	return res
}

// run state shared by the phases of one invocation.
type pass struct {
	token    string
	dead     map[string]struct{}
	newIDs   []string
	newBooks []model.BookSummary
	stats    Stats
}

func (e *Engine) run(ctx context.Context) Result {
	start := time.Now()

	token, err := e.session.Token(ctx)
	if err != nil {
		return Result{
			Error:      "Please log in to sync.",
			Kind:       KindNoSession,
			Err:        err,
			NewBookIDs: []string{},
		}
	}

	p := &pass{token: token, newIDs: []string{}}
	phases := []struct {
		name string
		fn   func(context.Context, *pass) error
	}{
		{"tombstones", e.syncTombstones},
		{"books", e.syncBooks},
		{"reading locations", e.syncLocations},
	}
	for _, ph := range phases {
		if err := ph.fn(ctx, p); err != nil {
			res := e.failure(ctx, ph.name, err)
			res.NewBookIDs = p.newIDs
			res.Stats = p.stats
			return res
		}
	}

	e.notify(Event{NewBookIDs: slices.Clone(p.newIDs), Books: slices.Clone(p.newBooks)})

	e.logger.Info("sync completed",
		"new_books", len(p.newIDs),
		"remote_writes", p.stats.RemoteWrites(),
		"duration", time.Since(start),
	)
	return Result{Success: true, NewBookIDs: p.newIDs, Stats: p.stats}
}

func (e *Engine) failure(ctx context.Context, phase string, err error) Result {
	res := Result{Err: fmt.Errorf("%s: %w", phase, err)}

	switch {
	case remote.IsAuth(err):
		e.session.HandleError(ctx, err)
		res.Kind = KindAuth
		res.Error = "Session expired. Please log in again."
	case remote.IsNetwork(err):
		res.Kind = KindOffline
		res.Error = "Saved locally. Will sync when online."
	case errors.Is(err, remote.ErrMalformedResponse):
		res.Kind = KindMalformed
		res.Error = "The server sent an unexpected response."
	case errors.As(err, new(*remote.Error)):
		res.Kind = KindServer
		res.Error = "The server could not complete the sync."
	default:
		res.Kind = KindLocal
		res.Error = "Local storage error."
	}

	e.logger.Warn("sync aborted", "phase", phase, "kind", res.Kind, "error", err)
	return res
}

// syncTombstones unions the two tombstone sets.
func (e *Engine) syncTombstones(ctx context.Context, p *pass) error {
	remoteIDs, err := e.remote.ListDeletedIDs(ctx, p.token)
	if err != nil {
		return err
	}
	local, err := e.store.Tombstones.GetAll(ctx)
	if err != nil {
		return err
	}

	plan := PlanTombstones(local, remoteIDs)

	for _, id := range plan.Push {
		if _, err := e.remote.MarkDeleted(ctx, p.token, id); err != nil {
			return err
		}
		p.stats.DeletionsPushed++
		if err := e.store.AcknowledgeTombstone(ctx, id); err != nil {
			return err
		}
	}
	for _, id := range plan.Acknowledge {
		if err := e.store.AcknowledgeTombstone(ctx, id); err != nil {
			return err
		}
	}
	for _, id := range plan.Pull {
		if err := e.store.DeleteBook(ctx, id, e.now().UnixMilli(), false); err != nil {
			return err
		}
		p.stats.DeletionsPulled++
	}

	p.dead = toSet(remoteIDs)
	for _, t := range local {
		p.dead[t.BookID] = struct{}{}
	}

	e.logger.Debug("tombstones reconciled",
		"pushed", len(plan.Push), "pulled", len(plan.Pull), "total", len(p.dead))
	return nil
}

func (e *Engine) syncBooks(ctx context.Context, p *pass) error {
	summaries, err := e.remote.ListBookSummaries(ctx, p.token)
	if err != nil {
		return err
	}
	local, err := e.store.Books.GetAll(ctx)
	if err != nil {
		return err
	}

	plan := PlanTransfers(bookStamps(local), summaryStamps(summaries), p.dead)

	byID := make(map[string]model.Book, len(local))
	for _, b := range local {
		byID[b.ID] = b
	}

	for _, id := range plan.Push {
		_, err := e.remote.UpsertBook(ctx, p.token, byID[id])
		if errors.Is(err, remote.ErrBookDeleted) {
			// Deleted on another device after the tombstone list was read.
			e.logger.Info("book deleted remotely during sync", "book_id", id)
			if err := e.store.DeleteBook(ctx, id, e.now().UnixMilli(), false); err != nil {
				return err
			}
			p.dead[id] = struct{}{}
			p.stats.DeletionsPulled++
			continue
		}
		if err != nil {
			return err
		}
		p.stats.BooksPushed++
	}

	for _, id := range plan.Pull {
		book, err := e.remote.GetBook(ctx, p.token, id)
		if errors.Is(err, remote.ErrNotFound) {
			e.logger.Info("book vanished remotely during sync", "book_id", id)
			continue
		}
		if err != nil {
			return err
		}

		if err := e.store.MergeBook(ctx, &book); err != nil {
			if errors.Is(err, localstore.ErrStale) {
				e.logger.Debug("local book changed during sync, keeping it", "book_id", id)
				continue
			}
			if errors.Is(err, localstore.ErrTombstoned) {
				continue
			}
			return err
		}
		p.stats.BooksPulled++
		p.newIDs = append(p.newIDs, id)
		p.newBooks = append(p.newBooks, book.Summary())
	}

	e.logger.Debug("books reconciled", "pushed", len(plan.Push), "pulled", len(plan.Pull))
	return nil
}

func (e *Engine) syncLocations(ctx context.Context, p *pass) error {
	remoteLocs, err := e.remote.ListReadingLocations(ctx, p.token)
	if err != nil {
		return err
	}
	local, err := e.store.Locations.GetAll(ctx)
	if err != nil {
		return err
	}

	plan := PlanTransfers(locationStamps(local), locationStamps(remoteLocs), p.dead)

	if len(plan.Push) > 0 {
		byID := make(map[string]model.ReadingLocation, len(local))
		for _, l := range local {
			byID[l.BookID] = l
		}
		batch := make([]model.ReadingLocation, 0, len(plan.Push))
		for _, id := range plan.Push {
			batch = append(batch, byID[id])
		}

		resp, err := e.remote.UpsertReadingLocations(ctx, p.token, batch)
		if err != nil {
			return err
		}
		p.stats.LocationsPushed = len(batch)
		for _, s := range resp.SkippedLocations {
			e.logger.Warn("reading location skipped by server", "book_id", s.BookID, "reason", s.Reason)
		}
	}

	byID := make(map[string]model.ReadingLocation, len(remoteLocs))
	for _, l := range remoteLocs {
		byID[l.BookID] = l
	}
	for _, id := range plan.Pull {
		loc := byID[id]
		if err := e.store.MergeLocation(ctx, &loc); err != nil {
			if errors.Is(err, localstore.ErrStale) || errors.Is(err, localstore.ErrTombstoned) {
				continue
			}
			return err
		}
		p.stats.LocationsPulled++
	}

	e.logger.Debug("reading locations reconciled", "pushed", len(plan.Push), "pulled", len(plan.Pull))
	return nil
}

func (e *Engine) notify(ev Event) {
	e.mu.Lock()
	observers := make([]Observer, len(e.observers))
	copy(observers, e.observers)
	e.mu.Unlock()

	for _, o := range observers {
		o.SyncCompleted(ev)
	}
}
