package handler

import (
	"context"
	"errors"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/video-portal/internal/apperror"
	"github.com/sakif/video-portal/internal/auth"
	"github.com/sakif/video-portal/internal/model"
	"github.com/sakif/video-portal/internal/service"
)

// Multipart parts beyond this stay on disk while the request is handled.
const multipartMemory = 32 << 20

// maxUploadBody bounds an upload request: both files plus form overhead.
const maxUploadBody = service.MaxVideoSize + service.MaxThumbnailSize + 1<<20

type VideoManager interface {
	CreateLink(ctx context.Context, actor model.Role, in service.LinkInput) (*model.Video, error)
	CreateFromUpload(ctx context.Context, actor model.Role, in service.UploadInput) (*model.Video, error)
	Update(ctx context.Context, actor model.Role, id, title, description string) (*model.Video, error)
	Delete(ctx context.Context, actor model.Role, id string) error
	Get(ctx context.Context, viewer model.Role, id string) (*model.Video, error)
	List(ctx context.Context, viewer model.Role, limit, offset int) ([]model.Video, error)
}

// VideoHandler serves the catalogue and its staff mutations.
type VideoHandler struct {
	videos VideoManager
	logger *slog.Logger
}

func NewVideoHandler(videos VideoManager, logger *slog.Logger) *VideoHandler {
	return &VideoHandler{videos: videos, logger: logger}
}

// HandleList returns the catalogue as the caller may see it.
//
// HTTP: GET /api/videos?limit=&offset=
func (h *VideoHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.SessionFromContext(r.Context())
	role := sess.Role
	if role == "" {
		role = model.RoleGuest
	}

	limit, offset := pageParams(r)
	videos, err := h.videos.List(r.Context(), role, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"videos": videos})
}

// HandleGet returns one video.
//
// HTTP: GET /api/videos/{id}
func (h *VideoHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized())
		return
	}

	v, err := h.videos.Get(r.Context(), sess.Role, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type linkRequest struct {
	VideoURL     string `json:"videoUrl"`
	ThumbnailURL string `json:"thumbnailUrl"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	IsPublished  bool   `json:"isPublished"`
}

// HandleUpload adds a video. A JSON body registers an external link; a
// multipart body uploads the media files.
//
// HTTP: POST /api/upload
func (h *VideoHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized())
		return
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var req linkRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		v, err := h.videos.CreateLink(r.Context(), sess.Role, service.LinkInput{
			Title:        req.Title,
			Description:  req.Description,
			VideoURL:     req.VideoURL,
			ThumbnailURL: req.ThumbnailURL,
			Published:    req.IsPublished,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"success": true,
			"video":   v,
			"message": "Video added successfully",
		})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, apperror.ValidationFailed("video",
				"Video file too large. Maximum size is 500MB. For larger files, please compress your video or split it into smaller parts."))
			return
		}
		writeError(w, apperror.ValidationFailed("body", "Invalid form data"))
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			h.logger.Warn("removing multipart temp files", slog.String("error", err.Error()))
		}
	}()

	in := service.UploadInput{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Published:   r.FormValue("isPublished") == "true",
	}

	video, closeVideo, err := formFile(r, "video")
	if err != nil {
		writeError(w, err)
		return
	}
	defer closeVideo()
	in.Video = video

	thumb, closeThumb, err := formFile(r, "thumbnail")
	if err != nil {
		writeError(w, err)
		return
	}
	defer closeThumb()
	in.Thumbnail = thumb

	v, err := h.videos.CreateFromUpload(r.Context(), sess.Role, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"video":   v,
		"message": "Video uploaded successfully",
	})
}

// formFile opens an optional multipart file. A missing part yields nil.
func formFile(r *http.Request, field string) (*service.File, func(), error) {
	f, hdr, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, func() {}, nil
	}
	if err != nil {
		return nil, func() {}, apperror.ValidationFailed(field, "Invalid form data")
	}
	return fileFromHeader(f, hdr), func() { _ = f.Close() }, nil
}

func fileFromHeader(f multipart.File, hdr *multipart.FileHeader) *service.File {
	return &service.File{
		Name:        hdr.Filename,
		ContentType: hdr.Header.Get("Content-Type"),
		Size:        hdr.Size,
		Body:        f,
	}
}

type updateVideoRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// HandleUpdate edits a video's title and description.
//
// HTTP: PATCH /api/videos/{id}
func (h *VideoHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized())
		return
	}

	var req updateVideoRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	v, err := h.videos.Update(r.Context(), sess.Role, chi.URLParam(r, "id"), req.Title, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "video": v})
}

// HandleDelete removes a video and its media.
//
// HTTP: DELETE /api/videos/{id}
func (h *VideoHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized())
		return
	}

	if err := h.videos.Delete(r.Context(), sess.Role, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Video deleted successfully"})
}
