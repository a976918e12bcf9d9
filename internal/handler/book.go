package handler

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/book-club/internal/apperror"
	"github.com/sakif/book-club/internal/service"
)

// BookHandler serves the shared catalog and the external search that feeds it.
type BookHandler struct {
	catalog  *service.CatalogService
	progress *service.ProgressService
	logger   *slog.Logger
}

func NewBookHandler(catalog *service.CatalogService, progress *service.ProgressService, logger *slog.Logger) *BookHandler {
	return &BookHandler{catalog: catalog, progress: progress, logger: logger}
}

// HandleList returns the whole catalog, or just the books named in ids.
//
// HTTP: GET /api/books?ids=OL1W,OL2W
func (h *BookHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	var ids []string
	if raw := r.URL.Query().Get("ids"); raw != "" {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}

	books, err := h.catalog.GetBooks(r.Context(), ids)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, books)
}

// HandleGet returns one catalog book.
//
// HTTP: GET /api/books/{id}
func (h *BookHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	book, err := h.catalog.GetBook(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

// HandleProgress returns the rounded mean progress across all readers.
//
// HTTP: GET /api/books/{id}/progress
func (h *BookHandler) HandleProgress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	value, err := h.progress.GetBookClubProgress(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, progressSummary{BookID: id, Progress: value})
}

// HandleSearch queries the external catalog; results are stored as a side effect.
//
// HTTP: GET /api/books/search?q=dune&limit=10
func (h *BookHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	books, err := h.catalog.Search(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, books)
}

// HandleDiscover lists books for one or more subjects.
//
// HTTP: GET /api/books/discover?subject=fantasy&subject=horror&limit=10
func (h *BookHandler) HandleDiscover(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	books, err := h.catalog.Discover(r.Context(), r.URL.Query()["subject"], limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, books)
}

// HandleAdd accepts one raw book record or an array of them, in either the
// seed shape or the search-result shape.
//
// HTTP: POST /api/books
func (h *BookHandler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := decodeJSON(w, r, &raw); err != nil {
		writeError(w, err)
		return
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			writeError(w, apperror.ValidationFailed("body", "invalid JSON array"))
			return
		}
		if len(items) == 0 {
			writeError(w, apperror.ValidationFailed("body", "at least one book is required"))
			return
		}
		books, err := h.catalog.AddBooks(r.Context(), items)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, books)
		return
	}

	book, err := h.catalog.AddBook(r.Context(), raw)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, book)
}
