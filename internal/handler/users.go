package handler

import (
	"context"
	"net/http"

	"github.com/sakif/video-portal/internal/apperror"
	"github.com/sakif/video-portal/internal/auth"
	"github.com/sakif/video-portal/internal/model"
)

type ProfileManager interface {
	UpdateRole(ctx context.Context, actor auth.Session, userID, role string) (*model.Profile, error)
	ListProfiles(ctx context.Context, actor auth.Session, query string, limit, offset int) ([]model.Profile, error)
}

// UserHandler serves the staff user-management endpoints.
type UserHandler struct {
	profiles ProfileManager
}

func NewUserHandler(profiles ProfileManager) *UserHandler {
	return &UserHandler{profiles: profiles}
}

type updateRoleRequest struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

// HandleUpdateRole sets a user's role.
//
// HTTP: POST /api/users/update-role
// REQUEST BODY: {"userId": "...", "role": "subscriber"}
func (h *UserHandler) HandleUpdateRole(w http.ResponseWriter, r *http.Request) {
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized())
		return
	}

	var req updateRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.profiles.UpdateRole(r.Context(), sess, req.UserID, req.Role)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": user})
}

// HandleList pages through profiles.
//
// HTTP: GET /api/users?q=&limit=&offset=
func (h *UserHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized())
		return
	}

	limit, offset := pageParams(r)
	users, err := h.profiles.ListProfiles(r.Context(), sess, r.URL.Query().Get("q"), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}
