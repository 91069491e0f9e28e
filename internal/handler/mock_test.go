package handler_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/video-portal/internal/auth"
	"github.com/sakif/video-portal/internal/model"
	"github.com/sakif/video-portal/internal/service"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// withSession attaches sess to every request, standing in for RequireAuth.
func withSession(sess auth.Session) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(auth.WithSession(r.Context(), sess)))
		})
	}
}

func sessionRouter(sess auth.Session) chi.Router {
	r := chi.NewRouter()
	r.Use(withSession(sess))
	return r
}

// =========================================================================
// MOCK SERVICES
// =========================================================================

type mockProvider struct {
	user *auth.DiscordUser
	err  error
	code string
}

func (m *mockProvider) AuthURL(state string) string {
	return "https://discord.example/authorize?state=" + state
}

func (m *mockProvider) Exchange(_ context.Context, code string) (*auth.DiscordUser, error) {
	m.code = code
	return m.user, m.err
}

type mockResolver struct {
	calls []service.Identity
}

func (m *mockResolver) ResolveLogin(_ context.Context, id service.Identity) {
	m.calls = append(m.calls, id)
}

// mockRefresher gives every session with a Discord id a fixed profile.
type mockRefresher struct {
	userID string
	role   model.Role
}

func (m *mockRefresher) Refresh(_ context.Context, sess auth.Session) (auth.Session, error) {
	if sess.DiscordID == "" {
		sess.Role = model.RoleGuest
		return sess, nil
	}
	sess.UserID = m.userID
	sess.Role = m.role
	return sess, nil
}

type mockProfiles struct {
	profile *model.Profile
	err     error

	gotActor  auth.Session
	gotUserID string
	gotRole   string
	gotQuery  string
	gotLimit  int
}

func (m *mockProfiles) Me(_ context.Context, _ auth.Session) (*model.Profile, error) {
	return m.profile, m.err
}

func (m *mockProfiles) UpdateRole(_ context.Context, actor auth.Session, userID, role string) (*model.Profile, error) {
	m.gotActor, m.gotUserID, m.gotRole = actor, userID, role
	if m.err != nil {
		return nil, m.err
	}
	p := *m.profile
	p.Role = model.Role(role)
	return &p, nil
}

func (m *mockProfiles) ListProfiles(_ context.Context, actor auth.Session, query string, limit, _ int) ([]model.Profile, error) {
	m.gotActor, m.gotQuery, m.gotLimit = actor, query, limit
	if m.err != nil {
		return nil, m.err
	}
	return []model.Profile{*m.profile}, nil
}

type mockCheckout struct {
	url       string
	err       error
	gotOrigin string
}

func (m *mockCheckout) StartCheckout(_ context.Context, _ auth.Session, origin string) (string, error) {
	m.gotOrigin = origin
	return m.url, m.err
}

type mockCanceler struct {
	res *service.CancelResult
	err error
}

func (m *mockCanceler) Cancel(_ context.Context, _ auth.Session) (*service.CancelResult, error) {
	return m.res, m.err
}

type mockReconciler struct {
	res        *service.WebhookResult
	err        error
	gotPayload []byte
	gotSig     string
}

func (m *mockReconciler) Reconcile(_ context.Context, payload []byte, sig string) (*service.WebhookResult, error) {
	m.gotPayload, m.gotSig = payload, sig
	return m.res, m.err
}

type mockVideos struct {
	video  *model.Video
	videos []model.Video
	err    error

	gotRole   model.Role
	gotID     string
	gotLink   service.LinkInput
	gotUpload service.UploadInput
	uploaded  []byte
}

func (m *mockVideos) CreateLink(_ context.Context, actor model.Role, in service.LinkInput) (*model.Video, error) {
	m.gotRole, m.gotLink = actor, in
	return m.video, m.err
}

func (m *mockVideos) CreateFromUpload(_ context.Context, actor model.Role, in service.UploadInput) (*model.Video, error) {
	m.gotRole, m.gotUpload = actor, in
	if in.Video != nil {
		m.uploaded, _ = io.ReadAll(in.Video.Body)
	}
	return m.video, m.err
}

func (m *mockVideos) Update(_ context.Context, actor model.Role, id, title, _ string) (*model.Video, error) {
	m.gotRole, m.gotID = actor, id
	if m.err != nil {
		return nil, m.err
	}
	v := *m.video
	v.Title = title
	return &v, nil
}

func (m *mockVideos) Delete(_ context.Context, actor model.Role, id string) error {
	m.gotRole, m.gotID = actor, id
	return m.err
}

func (m *mockVideos) Get(_ context.Context, viewer model.Role, id string) (*model.Video, error) {
	m.gotRole, m.gotID = viewer, id
	return m.video, m.err
}

func (m *mockVideos) List(_ context.Context, viewer model.Role, _, _ int) ([]model.Video, error) {
	m.gotRole = viewer
	return m.videos, m.err
}
