package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/book-club/internal/service"
)

// MeHandler serves the signed-in user's own resources: profile, clubs,
// reading ledger and shelf. Every route sits behind RequireAuth.
type MeHandler struct {
	auth     *service.AuthService
	clubs    *service.ClubService
	progress *service.ProgressService
	logger   *slog.Logger
}

func NewMeHandler(authSvc *service.AuthService, clubs *service.ClubService, progress *service.ProgressService, logger *slog.Logger) *MeHandler {
	return &MeHandler{auth: authSvc, clubs: clubs, progress: progress, logger: logger}
}

// HandleGet returns the profile (never the password hash).
//
// HTTP: GET /api/me
func (h *MeHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	user, err := h.auth.GetUser(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user.Profile())
}

type profileRequest struct {
	Name *string `json:"name"`
	Bio  *string `json:"bio"`
}

// HandleUpdate changes name and/or bio.
//
// HTTP: PUT /api/me
func (h *MeHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	user, err := h.auth.UpdateProfile(r.Context(), currentUser(r), req.Name, req.Bio)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user.Profile())
}

// HandleClubs lists the clubs the user belongs to.
//
// HTTP: GET /api/me/clubs
func (h *MeHandler) HandleClubs(w http.ResponseWriter, r *http.Request) {
	clubs, err := h.clubs.GetMyClubs(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, clubs)
}

// ===== READING LEDGER =====

// HandleProgress lists every ledger entry, most recent first.
//
// HTTP: GET /api/me/progress
func (h *MeHandler) HandleProgress(w http.ResponseWriter, r *http.Request) {
	entries, err := h.progress.GetReadingProgress(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

type progressRequest struct {
	Progress *int `json:"progress"`
	Rating   *int `json:"rating"`
}

// HandleUpdateProgress records a percentage and optional rating.
//
// HTTP: PUT /api/me/progress/{bookID}
// BODY: {"progress": 100, "rating": 5}
func (h *MeHandler) HandleUpdateProgress(w http.ResponseWriter, r *http.Request) {
	var req progressRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Progress == nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "validation_error", Message: "progress is required", Field: "progress",
		})
		return
	}

	entry, err := h.progress.UpdateProgress(r.Context(), currentUser(r), chi.URLParam(r, "bookID"), *req.Progress, req.Rating)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// HandleResetProgress returns the entry to not_started.
//
// HTTP: DELETE /api/me/progress/{bookID}
func (h *MeHandler) HandleResetProgress(w http.ResponseWriter, r *http.Request) {
	entry, err := h.progress.ResetProgress(r.Context(), currentUser(r), chi.URLParam(r, "bookID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// HandlePause pauses a book being read.
//
// HTTP: POST /api/me/progress/{bookID}/pause
func (h *MeHandler) HandlePause(w http.ResponseWriter, r *http.Request) {
	entry, err := h.progress.PauseReading(r.Context(), currentUser(r), chi.URLParam(r, "bookID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

type reviewRequest struct {
	Rating int    `json:"rating"`
	Review string `json:"review"`
}

// HandleReview rates and reviews a book with an existing entry.
//
// HTTP: POST /api/me/progress/{bookID}/review
func (h *MeHandler) HandleReview(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	entry, err := h.progress.ReviewBook(r.Context(), currentUser(r), chi.URLParam(r, "bookID"), req.Rating, req.Review)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// ===== SHELF =====

// HandleShelf returns the shelved books in shelf order.
//
// HTTP: GET /api/me/shelf
func (h *MeHandler) HandleShelf(w http.ResponseWriter, r *http.Request) {
	books, err := h.progress.GetShelf(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, books)
}

type shelfResponse struct {
	Shelf []string `json:"shelf"`
}

// HandleAddToShelf is idempotent.
//
// HTTP: PUT /api/me/shelf/{bookID}
func (h *MeHandler) HandleAddToShelf(w http.ResponseWriter, r *http.Request) {
	shelf, err := h.progress.AddToShelf(r.Context(), currentUser(r), chi.URLParam(r, "bookID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, shelfResponse{Shelf: shelf})
}

// HandleRemoveFromShelf is idempotent.
//
// HTTP: DELETE /api/me/shelf/{bookID}
func (h *MeHandler) HandleRemoveFromShelf(w http.ResponseWriter, r *http.Request) {
	shelf, err := h.progress.RemoveFromShelf(r.Context(), currentUser(r), chi.URLParam(r, "bookID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, shelfResponse{Shelf: shelf})
}
