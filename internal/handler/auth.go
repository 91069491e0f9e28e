package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/rs/xid"

	"github.com/sakif/video-portal/internal/apperror"
	"github.com/sakif/video-portal/internal/auth"
	"github.com/sakif/video-portal/internal/model"
	"github.com/sakif/video-portal/internal/service"
)

const stateCookieName = "oauth_state"

// OAuthProvider runs the authorization-code flow against Discord.
type OAuthProvider interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.DiscordUser, error)
}

// LoginResolver persists the profile for a completed login.
type LoginResolver interface {
	ResolveLogin(ctx context.Context, id service.Identity)
}

// ProfileReader returns the caller's stored profile.
type ProfileReader interface {
	Me(ctx context.Context, sess auth.Session) (*model.Profile, error)
}

// AuthHandler manages the Discord login flow and the session cookie.
//
//   - HandleDiscordLogin    → redirect to Discord's consent page
//   - HandleDiscordCallback → exchange the code, persist the profile, issue the session
//   - HandleLogout          → clear the session cookie
//   - HandleRefresh         → re-derive the session from the stored profile now
//   - HandleMe              → the caller's profile and session role
type AuthHandler struct {
	provider      OAuthProvider
	identities    LoginResolver
	profiles      ProfileReader
	authn         *auth.Authenticator
	secure        bool
	afterLoginURL string
	logger        *slog.Logger
}

func NewAuthHandler(
	provider OAuthProvider,
	identities LoginResolver,
	profiles ProfileReader,
	authn *auth.Authenticator,
	secure bool,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		provider:      provider,
		identities:    identities,
		profiles:      profiles,
		authn:         authn,
		secure:        secure,
		afterLoginURL: "/dashboard",
		logger:        logger,
	}
}

// HandleDiscordLogin redirects the browser to Discord.
//
// HTTP: GET /auth/discord/login
//
// The state value is kept in a short-lived HttpOnly cookie and compared on
// callback, which ties the callback to a login this server started.
func (h *AuthHandler) HandleDiscordLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.provider.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleDiscordCallback completes the login.
//
// HTTP: GET /auth/discord/callback?code=xxx&state=yyy
//
// Profile persistence never fails the login; at worst the first session is
// a guest session without an internal id, corrected on the next refresh.
func (h *AuthHandler) HandleDiscordCallback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" {
		h.logger.Warn("auth callback: missing state cookie")
		writeError(w, apperror.ValidationFailed("state", "Invalid OAuth state"))
		return
	}
	if r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.Warn("auth callback: state mismatch")
		writeError(w, apperror.ValidationFailed("state", "Invalid OAuth state"))
		return
	}

	// Single use.
	http.SetCookie(w, &http.Cookie{
		Name:   stateCookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization", slog.String("error", errParam))
		http.Redirect(w, r, "/?auth=denied", http.StatusSeeOther)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, apperror.ValidationFailed("code", "Missing OAuth code"))
		return
	}

	user, err := h.provider.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: Discord exchange failed", slog.String("error", err.Error()))
		writeError(w, apperror.Upstream("Authentication failed", nil))
		return
	}

	id := service.Identity{
		DiscordID: user.ID,
		Email:     user.Email,
		AvatarURL: user.AvatarURL(),
		Username:  user.DisplayName(),
	}
	h.identities.ResolveLogin(r.Context(), id)

	sess, err := h.authn.Reissue(w, r, auth.Session{DiscordID: id.DiscordID, Email: id.Email})
	if err != nil {
		h.logger.Error("auth callback: issuing session failed", slog.String("error", err.Error()))
		writeError(w, apperror.Upstream("Authentication failed", nil))
		return
	}

	h.logger.Info("user signed in",
		slog.String("user_id", sess.UserID),
		slog.String("discord_id", sess.DiscordID),
		slog.String("role", sess.Role.String()),
	)
	http.Redirect(w, r, h.afterLoginURL, http.StatusSeeOther)
}

// HandleLogout clears the session cookie.
//
// HTTP: POST /auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.authn.ClearCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// SessionResponse is what the frontend learns about the current session.
type SessionResponse struct {
	UserID    string     `json:"userId"`
	DiscordID string     `json:"discordId"`
	Email     string     `json:"email"`
	Role      model.Role `json:"role"`
}

func sessionResponse(sess auth.Session) SessionResponse {
	return SessionResponse{
		UserID:    sess.UserID,
		DiscordID: sess.DiscordID,
		Email:     sess.Email,
		Role:      sess.Role,
	}
}

// HandleRefresh re-reads the profile and reissues the cookie immediately,
// e.g. right after a checkout completes.
//
// HTTP: POST /auth/refresh
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized())
		return
	}
	fresh, err := h.authn.Reissue(w, r, sess)
	if err != nil {
		h.logger.Error("session refresh failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(fresh))
}

// HandleMe returns the caller's profile together with the session view.
//
// HTTP: GET /api/me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized())
		return
	}

	p, err := h.profiles.Me(r.Context(), sess)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session": sessionResponse(sess),
		"profile": p,
	})
}
