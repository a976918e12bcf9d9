package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/book-club/internal/apperror"
	"github.com/sakif/book-club/internal/model"
	"github.com/sakif/book-club/internal/service"
)

// multipartOverhead is the allowance for form fields and boundaries on top
// of the file itself.
const multipartOverhead = 64 << 10

// ImageHandler uploads and serves avatars and club images.
type ImageHandler struct {
	images   *service.ImageService
	maxBytes int64
	logger   *slog.Logger
}

func NewImageHandler(images *service.ImageService, maxBytes int64, logger *slog.Logger) *ImageHandler {
	return &ImageHandler{images: images, maxBytes: maxBytes, logger: logger}
}

// HandleUpload stores an image from a multipart form.
//
// HTTP: POST /api/images
// FORM: file=<binary>, type=avatar|club, clubId=<id, club images only>
//
// The body is capped before parsing so an oversized upload fails fast with
// a 400 instead of being buffered to disk.
func (h *ImageHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(h.maxBytes + multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, apperror.ValidationFailed("file", fmt.Sprintf("image must be %d bytes or less", h.maxBytes)))
			return
		}
		writeError(w, apperror.ValidationFailed("file", "expected a multipart form with a file field"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, apperror.ValidationFailed("file", "file is required"))
		return
	}
	defer file.Close()

	imgType := model.ImageType(r.FormValue("type"))
	if imgType == "" {
		imgType = model.ImageAvatar
	}

	img, err := h.images.UploadImage(r.Context(), currentUser(r), imgType, r.FormValue("clubId"), file)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, img)
}

// HandleGet serves the image bytes.
//
// HTTP: GET /api/images/{id}
func (h *ImageHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	img, err := h.images.GetImageByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	h.writeImage(w, img, "public, max-age=86400, immutable")
}

// HandleGetByOwner serves the newest image of a user or club. A private
// club's image is only served to its members.
//
// HTTP: GET /api/images/owner/{ownerKey}
func (h *ImageHandler) HandleGetByOwner(w http.ResponseWriter, r *http.Request) {
	img, err := h.images.GetVisibleImage(r.Context(), chi.URLParam(r, "ownerKey"), currentUser(r))
	if err != nil {
		writeError(w, err)
		return
	}
	// The owner's image changes on every upload.
	h.writeImage(w, img, "no-cache")
}

// HandleDelete removes an image.
//
// HTTP: DELETE /api/images/{id}
func (h *ImageHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.images.DeleteImage(r.Context(), currentUser(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeImage sends the raw bytes.
func (h *ImageHandler) writeImage(w http.ResponseWriter, img *model.Image, cacheControl string) {
	w.Header().Set("Content-Type", img.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Data)))
	w.Header().Set("Cache-Control", cacheControl)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(img.Data); err != nil {
		h.logger.Warn("failed to write image", slog.String("image_id", img.ID), slog.String("error", err.Error()))
	}
}
