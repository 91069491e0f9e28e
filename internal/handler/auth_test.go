package handler_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/video-portal/internal/auth"
	"github.com/sakif/video-portal/internal/handler"
	"github.com/sakif/video-portal/internal/model"
)

func newAuthFixture(t *testing.T, provider *mockProvider) (*handler.AuthHandler, *mockResolver, *auth.TokenService) {
	t.Helper()
	tokens, err := auth.NewTokenService("handler-test-secret-0123456789", auth.DefaultTTL)
	require.NoError(t, err)
	authn := auth.NewAuthenticator(tokens, &mockRefresher{userID: "user-1", role: model.RoleSubscriber}, 0, false, quietLogger())
	resolver := &mockResolver{}
	profiles := &mockProfiles{profile: &model.Profile{ID: "user-1", Email: "a@example.com"}}
	return handler.NewAuthHandler(provider, resolver, profiles, authn, false, quietLogger()), resolver, tokens
}

func findCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestDiscordLogin_SetsStateAndRedirects(t *testing.T) {
	h, _, _ := newAuthFixture(t, &mockProvider{})

	rr := httptest.NewRecorder()
	h.HandleDiscordLogin(rr, httptest.NewRequest(http.MethodGet, "/auth/discord/login", nil))

	assert.Equal(t, http.StatusTemporaryRedirect, rr.Code)
	state := findCookie(rr, "oauth_state")
	require.NotNil(t, state)
	assert.True(t, state.HttpOnly)

	loc, err := url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, state.Value, loc.Query().Get("state"))
}

func callbackRequest(state, cookieState, code string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/auth/discord/callback?state="+state+"&code="+code, nil)
	if cookieState != "" {
		req.AddCookie(&http.Cookie{Name: "oauth_state", Value: cookieState})
	}
	return req
}

func TestDiscordCallback_IssuesEnrichedSession(t *testing.T) {
	provider := &mockProvider{user: &auth.DiscordUser{ID: "100000000000000001", Email: "a@example.com", Username: "alice"}}
	h, resolver, tokens := newAuthFixture(t, provider)

	rr := httptest.NewRecorder()
	h.HandleDiscordCallback(rr, callbackRequest("s1", "s1", "the-code"))

	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/dashboard", rr.Header().Get("Location"))
	assert.Equal(t, "the-code", provider.code)

	require.Len(t, resolver.calls, 1)
	assert.Equal(t, "100000000000000001", resolver.calls[0].DiscordID)
	assert.Equal(t, "a@example.com", resolver.calls[0].Email)

	cookie := findCookie(rr, auth.CookieName)
	require.NotNil(t, cookie)
	sess, err := tokens.Validate(cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, "user-1", sess.UserID)
	assert.Equal(t, model.RoleSubscriber, sess.Role)
}

func TestDiscordCallback_StateMismatch(t *testing.T) {
	h, resolver, _ := newAuthFixture(t, &mockProvider{})

	for _, req := range []*http.Request{
		callbackRequest("s1", "other", "c"),
		callbackRequest("s1", "", "c"),
	} {
		rr := httptest.NewRecorder()
		h.HandleDiscordCallback(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	}
	assert.Empty(t, resolver.calls)
}

func TestDiscordCallback_ExchangeFailure(t *testing.T) {
	h, resolver, _ := newAuthFixture(t, &mockProvider{err: errors.New("invalid_grant")})

	rr := httptest.NewRecorder()
	h.HandleDiscordCallback(rr, callbackRequest("s", "s", "bad"))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Empty(t, resolver.calls)
	assert.Nil(t, findCookie(rr, auth.CookieName))
}

func TestDiscordCallback_Denied(t *testing.T) {
	h, _, _ := newAuthFixture(t, &mockProvider{})

	req := httptest.NewRequest(http.MethodGet, "/auth/discord/callback?state=s&error=access_denied", nil)
	req.AddCookie(&http.Cookie{Name: "oauth_state", Value: "s"})
	rr := httptest.NewRecorder()
	h.HandleDiscordCallback(rr, req)

	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/?auth=denied", rr.Header().Get("Location"))
}

func TestLogout_ClearsCookie(t *testing.T) {
	h, _, _ := newAuthFixture(t, &mockProvider{})

	rr := httptest.NewRecorder()
	h.HandleLogout(rr, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	cookie := findCookie(rr, auth.CookieName)
	require.NotNil(t, cookie)
	assert.Equal(t, -1, cookie.MaxAge)
}

func TestRefresh_ReissuesCookie(t *testing.T) {
	h, _, tokens := newAuthFixture(t, &mockProvider{})

	router := sessionRouter(auth.Session{DiscordID: "100000000000000001", Role: model.RoleGuest})
	router.Post("/auth/refresh", h.HandleRefresh)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/auth/refresh", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"role":"subscriber"`)
	cookie := findCookie(rr, auth.CookieName)
	require.NotNil(t, cookie)
	sess, err := tokens.Validate(cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, model.RoleSubscriber, sess.Role)
}

func TestMe(t *testing.T) {
	h, _, _ := newAuthFixture(t, &mockProvider{})

	router := sessionRouter(auth.Session{UserID: "user-1", DiscordID: "100000000000000001", Role: model.RoleSubscriber})
	router.Get("/api/me", h.HandleMe)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/me", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"email":"a@example.com"`)

	rr = httptest.NewRecorder()
	h.HandleMe(rr, httptest.NewRequest(http.MethodGet, "/api/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
