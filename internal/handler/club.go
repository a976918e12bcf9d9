package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/book-club/internal/model"
	"github.com/sakif/book-club/internal/service"
)

// ClubHandler serves the club directory, membership and reading lists.
//
// Permission checks live in ClubService; this handler only parses requests
// and passes the caller's ID along. On public routes (list, get) the caller
// may be anonymous, in which case private clubs are hidden.
type ClubHandler struct {
	clubs    *service.ClubService
	progress *service.ProgressService
	logger   *slog.Logger
}

func NewClubHandler(clubs *service.ClubService, progress *service.ProgressService, logger *slog.Logger) *ClubHandler {
	return &ClubHandler{clubs: clubs, progress: progress, logger: logger}
}

// HandleList searches clubs.
//
// HTTP: GET /api/clubs?q=mystery
func (h *ClubHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	clubs, err := h.clubs.ListClubs(r.Context(), r.URL.Query().Get("q"), currentUser(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, clubs)
}

// HandleGet returns one club. A private club is reported as not found to
// anyone who is not a member.
//
// HTTP: GET /api/clubs/{id}
func (h *ClubHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	club, err := h.clubs.GetVisibleClub(r.Context(), chi.URLParam(r, "id"), currentUser(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, club)
}

// HandleCreate creates a club owned by the caller.
//
// HTTP: POST /api/clubs
// BODY: service.ClubDraft
func (h *ClubHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var draft service.ClubDraft
	if err := decodeJSON(w, r, &draft); err != nil {
		writeError(w, err)
		return
	}
	club, err := h.clubs.CreateClub(r.Context(), currentUser(r), draft)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, club)
}

// HandleUpdate applies a partial update.
//
// HTTP: PUT /api/clubs/{id}
// BODY: service.ClubPatch (omitted fields are left alone)
func (h *ClubHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var patch service.ClubPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, err)
		return
	}
	club, err := h.clubs.UpdateClub(r.Context(), currentUser(r), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, club)
}

// HandleDelete removes a club (owners only).
//
// HTTP: DELETE /api/clubs/{id}
func (h *ClubHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.clubs.DeleteClub(r.Context(), currentUser(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ===== MEMBERSHIP =====

// HandleJoin is idempotent.
//
// HTTP: POST /api/clubs/{id}/join
func (h *ClubHandler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	club, err := h.clubs.JoinClub(r.Context(), chi.URLParam(r, "id"), currentUser(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, club)
}

// HandleLeave is idempotent.
//
// HTTP: POST /api/clubs/{id}/leave
func (h *ClubHandler) HandleLeave(w http.ResponseWriter, r *http.Request) {
	club, err := h.clubs.LeaveClub(r.Context(), chi.URLParam(r, "id"), currentUser(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, club)
}

type roleRequest struct {
	Role model.Role `json:"role"`
}

// HandleChangeRole sets a member's role (owners only).
//
// HTTP: PUT /api/clubs/{id}/members/{userID}/role
// BODY: {"role": "moderator"}
//
// Responds 409 when the change would leave the club with zero or more
// than three owners.
func (h *ClubHandler) HandleChangeRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	club, err := h.clubs.ChangeRole(r.Context(), currentUser(r), chi.URLParam(r, "id"), chi.URLParam(r, "userID"), req.Role)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, club)
}

type suspendRequest struct {
	Suspended bool `json:"suspended"`
}

// HandleSetSuspended suspends or reinstates a member.
//
// HTTP: PUT /api/clubs/{id}/members/{userID}/suspended
// BODY: {"suspended": true}
func (h *ClubHandler) HandleSetSuspended(w http.ResponseWriter, r *http.Request) {
	var req suspendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	club, err := h.clubs.SetSuspended(r.Context(), currentUser(r), chi.URLParam(r, "id"), chi.URLParam(r, "userID"), req.Suspended)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, club)
}

// ===== READING LIST =====

type clubBookRequest struct {
	BookID string               `json:"bookId"`
	Status model.ClubBookStatus `json:"status"`
}

// HandleAddBook puts a catalog book on the reading list.
//
// HTTP: POST /api/clubs/{id}/books
// BODY: {"bookId": "OL893415W", "status": "upcoming"}
func (h *ClubHandler) HandleAddBook(w http.ResponseWriter, r *http.Request) {
	var req clubBookRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	club, err := h.clubs.AddClubBook(r.Context(), currentUser(r), chi.URLParam(r, "id"), req.BookID, req.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, club)
}

// HandleSetBookStatus moves a listed book to another status.
//
// HTTP: PUT /api/clubs/{id}/books/{bookID}
// BODY: {"status": "completed"}
func (h *ClubHandler) HandleSetBookStatus(w http.ResponseWriter, r *http.Request) {
	var req clubBookRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	club, err := h.clubs.SetClubBookStatus(r.Context(), currentUser(r), chi.URLParam(r, "id"), chi.URLParam(r, "bookID"), req.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, club)
}

// HandleRemoveBook takes a book off the list.
//
// HTTP: DELETE /api/clubs/{id}/books/{bookID}
func (h *ClubHandler) HandleRemoveBook(w http.ResponseWriter, r *http.Request) {
	club, err := h.clubs.RemoveClubBook(r.Context(), currentUser(r), chi.URLParam(r, "id"), chi.URLParam(r, "bookID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, club)
}

// HandleSetCurrentBook makes a book the club's current read.
//
// HTTP: PUT /api/clubs/{id}/current-book
// BODY: {"bookId": "OL893415W"}
func (h *ClubHandler) HandleSetCurrentBook(w http.ResponseWriter, r *http.Request) {
	var req clubBookRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	club, err := h.clubs.SetCurrentBook(r.Context(), currentUser(r), chi.URLParam(r, "id"), req.BookID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, club)
}

type progressSummary struct {
	BookID   string `json:"bookId"`
	ClubID   string `json:"clubId,omitempty"`
	Progress int    `json:"progress"`
}

// HandleBookProgress returns the members' rounded mean progress on a book.
// Like HandleGet, a private club is not found for non-members.
//
// HTTP: GET /api/clubs/{id}/books/{bookID}/progress
func (h *ClubHandler) HandleBookProgress(w http.ResponseWriter, r *http.Request) {
	clubID, bookID := chi.URLParam(r, "id"), chi.URLParam(r, "bookID")
	if _, err := h.clubs.GetVisibleClub(r.Context(), clubID, currentUser(r)); err != nil {
		writeError(w, err)
		return
	}
	value, err := h.progress.GetClubBookProgress(r.Context(), clubID, bookID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, progressSummary{BookID: bookID, ClubID: clubID, Progress: value})
}
