package remote

import (
	"context"
	"net/http"

	"github.com/duobook/duobook-go/internal/model"
)

// ListDeletedIDs returns the server's tombstoned book ids.
func (c *Client) ListDeletedIDs(ctx context.Context, token string) ([]string, error) {
	const op = "listDeletedIds"

	var resp struct {
		DeletedBookIDs *[]string `json:"deletedBookIds"`
	}
	if err := c.do(ctx, op, http.MethodGet, "deleted-books", token, nil, &resp); err != nil {
		return nil, err
	}
	if resp.DeletedBookIDs == nil {
		return nil, malformed(op, "missing deletedBookIds")
	}
	return *resp.DeletedBookIDs, nil
}

// MarkDeleted records a tombstone for id. Repeating it is harmless.
func (c *Client) MarkDeleted(ctx context.Context, token, id string) (model.MarkDeletedResponse, error) {
	var resp model.MarkDeletedResponse
	err := c.do(ctx, "markDeleted", http.MethodPost, "deleted-books", token, model.MarkDeletedRequest{BookID: id}, &resp)
	return resp, err
}

// ListBookSummaries returns id, title, author and lastModified of every live
// remote book.
func (c *Client) ListBookSummaries(ctx context.Context, token string) ([]model.BookSummary, error) {
	const op = "listBookSummaries"

	var resp struct {
		Books *[]model.BookSummary `json:"books"`
	}
	if err := c.do(ctx, op, http.MethodGet, "books", token, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Books == nil {
		return nil, malformed(op, "missing books")
	}
	for _, b := range *resp.Books {
		if b.ID == "" {
			return nil, malformed(op, "book summary without id")
		}
	}
	return *resp.Books, nil
}

// GetBook fetches the full book with its chapters.
func (c *Client) GetBook(ctx context.Context, token, id string) (model.Book, error) {
	const op = "getBook"

	var book model.Book
	if err := c.do(ctx, op, http.MethodGet, bookPath(id), token, nil, &book); err != nil {
		return model.Book{}, err
	}
	if book.ID != id {
		return model.Book{}, malformed(op, "asked for %q, got %q", id, book.ID)
	}
	if book.Chapters == nil {
		book.Chapters = []model.Chapter{}
	}
	return book, nil
}

// UpsertBook sends the full book. The server keeps whichever copy is newer and
// returns it.
func (c *Client) UpsertBook(ctx context.Context, token string, book model.Book) (model.Book, error) {
	const op = "upsertBook"

	var stored model.Book
	if err := c.do(ctx, op, http.MethodPost, bookPath(book.ID), token, book.UpsertRequest(), &stored); err != nil {
		return model.Book{}, err
	}
	if stored.ID != book.ID {
		return model.Book{}, malformed(op, "sent %q, got %q", book.ID, stored.ID)
	}
	return stored, nil
}

// ListReadingLocations returns every reading location of the account.
func (c *Client) ListReadingLocations(ctx context.Context, token string) ([]model.ReadingLocation, error) {
	const op = "listReadingLocations"

	var resp struct {
		ReadingLocations *[]model.ReadingLocation `json:"readingLocations"`
	}
	if err := c.do(ctx, op, http.MethodGet, "reading-locations", token, nil, &resp); err != nil {
		return nil, err
	}
	if resp.ReadingLocations == nil {
		return nil, malformed(op, "missing readingLocations")
	}
	for _, l := range *resp.ReadingLocations {
		if l.BookID == "" {
			return nil, malformed(op, "reading location without bookId")
		}
	}
	return *resp.ReadingLocations, nil
}

// UpsertReadingLocations sends locs in one batch request.
func (c *Client) UpsertReadingLocations(ctx context.Context, token string, locs []model.ReadingLocation) (model.ReadingLocationsResponse, error) {
	req := model.ReadingLocationsRequest{
		ReadingLocations: make([]model.ReadingLocationInput, 0, len(locs)),
	}
	for _, l := range locs {
		req.ReadingLocations = append(req.ReadingLocations, l.Input())
	}

	var resp model.ReadingLocationsResponse
	err := c.do(ctx, "upsertReadingLocations", http.MethodPost, "reading-locations", token, req, &resp)
	return resp, err
}
