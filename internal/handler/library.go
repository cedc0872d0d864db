package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/duobook/duobook-go/internal/model"
	"github.com/duobook/duobook-go/internal/service"
	"github.com/go-chi/chi/v5"
)

// LibraryHandler serves the book, tombstone and reading location resources.
type LibraryHandler struct {
	service *service.LibraryService
}

// NewLibraryHandler creates a new LibraryHandler.
func NewLibraryHandler(svc *service.LibraryService) *LibraryHandler {
	return &LibraryHandler{service: svc}
}

// HandleListDeleted handles GET /deleted-books requests.
func (h *LibraryHandler) HandleListDeleted(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	resp, err := h.service.ListDeletedIDs(r.Context(), p.UserID)
	if err != nil {
		h.fail(w, "list deleted books", p, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleMarkDeleted handles POST /deleted-books requests.
func (h *LibraryHandler) HandleMarkDeleted(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req model.MarkDeletedRequest
	if !decodeBody(w, r, maxAuthBody, &req) {
		return
	}

	resp, err := h.service.MarkDeleted(r.Context(), p.UserID, req)
	if err != nil {
		h.fail(w, "mark book deleted", p, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleListBooks handles GET /books requests.
func (h *LibraryHandler) HandleListBooks(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	resp, err := h.service.ListBooks(r.Context(), p.UserID)
	if err != nil {
		h.fail(w, "list books", p, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleGetBook handles GET /books/{bookID} requests.
func (h *LibraryHandler) HandleGetBook(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	book, err := h.service.GetBook(r.Context(), p.UserID, chi.URLParam(r, "bookID"))
	if err != nil {
		h.fail(w, "get book", p, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

// HandleUpsertBook handles POST /books/{bookID} requests.
func (h *LibraryHandler) HandleUpsertBook(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req model.UpsertBookRequest
	if !decodeBody(w, r, maxLibraryBody, &req) {
		return
	}

	book, err := h.service.UpsertBook(r.Context(), p.UserID, chi.URLParam(r, "bookID"), req)
	if err != nil {
		h.fail(w, "upsert book", p, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

// HandleListLocations handles GET /reading-locations requests.
func (h *LibraryHandler) HandleListLocations(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	resp, err := h.service.ListReadingLocations(r.Context(), p.UserID)
	if err != nil {
		h.fail(w, "list reading locations", p, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleUpsertLocations handles POST /reading-locations requests.
func (h *LibraryHandler) HandleUpsertLocations(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req model.ReadingLocationsRequest
	if !decodeBody(w, r, maxLibraryBody, &req) {
		return
	}

	resp, err := h.service.UpsertReadingLocations(r.Context(), p.UserID, req)
	if err != nil {
		h.fail(w, "upsert reading locations", p, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *LibraryHandler) fail(w http.ResponseWriter, op string, p service.Principal, err error) {
	switch {
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, service.ErrInvalidBookID),
		errors.Is(err, service.ErrNoLocations),
		errors.Is(err, service.ErrTooManyLocations):
		writeJSON(w, http.StatusBadRequest, errorResponse(err.Error()))
	case errors.Is(err, service.ErrBookNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse(err.Error()))
	case errors.Is(err, service.ErrBookDeleted):
		writeJSON(w, http.StatusGone, errorResponse(err.Error()))
	default:
		slog.Error(op+" failed", "uid", p.UserID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse("internal server error"))
	}
}
