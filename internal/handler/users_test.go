package handler_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sakif/video-portal/internal/apperror"
	"github.com/sakif/video-portal/internal/auth"
	"github.com/sakif/video-portal/internal/handler"
	"github.com/sakif/video-portal/internal/model"
)

var admin = auth.Session{UserID: "admin-1", DiscordID: "100000000000000009", Role: model.RoleAdmin}

func TestUpdateRole(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		profiles := &mockProfiles{profile: &model.Profile{ID: "user-2"}}
		router := sessionRouter(admin)
		router.Post("/api/users/update-role", handler.NewUserHandler(profiles).HandleUpdateRole)

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/users/update-role",
			strings.NewReader(`{"userId":"user-2","role":"subscriber"}`)))

		assert.Equal(t, http.StatusOK, rr.Code)
		body := decodeBody(t, rr)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, "subscriber", body["user"].(map[string]any)["role"])
		assert.Equal(t, "user-2", profiles.gotUserID)
		assert.Equal(t, model.RoleAdmin, profiles.gotActor.Role)
	})

	t.Run("forbidden maps to 403", func(t *testing.T) {
		profiles := &mockProfiles{err: apperror.Forbidden("Only owners can promote users to admin")}
		router := sessionRouter(admin)
		router.Post("/api/users/update-role", handler.NewUserHandler(profiles).HandleUpdateRole)

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/users/update-role",
			strings.NewReader(`{"userId":"user-2","role":"admin"}`)))

		assert.Equal(t, http.StatusForbidden, rr.Code)
		assert.Equal(t, "Only owners can promote users to admin", decodeBody(t, rr)["error"])
	})

	t.Run("invalid json", func(t *testing.T) {
		router := sessionRouter(admin)
		router.Post("/api/users/update-role", handler.NewUserHandler(&mockProfiles{}).HandleUpdateRole)

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/users/update-role", strings.NewReader(`{"userId":`)))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestListUsers(t *testing.T) {
	profiles := &mockProfiles{profile: &model.Profile{ID: "user-2", Email: "b@example.com"}}
	router := sessionRouter(admin)
	router.Get("/api/users", handler.NewUserHandler(profiles).HandleList)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/users?q=b%40&limit=5", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "b@", profiles.gotQuery)
	assert.Equal(t, 5, profiles.gotLimit)
	assert.Len(t, decodeBody(t, rr)["users"], 1)
}
