package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/video-portal/internal/policy"
)

type contextKey string

const sessionKey contextKey = "session"

// CookieName is the session cookie.
const CookieName = "token"

// Refresher re-derives a session from the persisted profile. It must not
// fail closed by returning an error for a missing profile; an error means
// the refresh could not run and the current session should be kept.
type Refresher interface {
	Refresh(ctx context.Context, sess Session) (Session, error)
}

// Authenticator reads the session cookie, refreshes stale sessions, and puts
// the session in the request context.
type Authenticator struct {
	tokens       *TokenService
	refresher    Refresher
	refreshAfter time.Duration
	secure       bool
	logger       *slog.Logger
	now          func() time.Time
}

// NewAuthenticator builds an Authenticator. refresher may be nil, in which
// case sessions are never refreshed. secure marks cookies Secure.
func NewAuthenticator(tokens *TokenService, refresher Refresher, refreshAfter time.Duration, secure bool, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{
		tokens:       tokens,
		refresher:    refresher,
		refreshAfter: refreshAfter,
		secure:       secure,
		logger:       logger,
		now:          time.Now,
	}
}

// RequireAuth rejects requests without a valid session with 401.
func (a *Authenticator) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := a.authenticate(w, r)
		if !ok {
			writeAuthError(w, http.StatusUnauthorized, "Unauthorized", "unauthorized", "")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
	})
}

// OptionalAuth attaches the session when there is one and never blocks.
func (a *Authenticator) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sess, ok := a.authenticate(w, r); ok {
			r = r.WithContext(WithSession(r.Context(), sess))
		}
		next.ServeHTTP(w, r)
	})
}

// Reissue forces a refresh of sess and writes the new cookie. Used by the
// explicit refresh endpoint and right after login.
func (a *Authenticator) Reissue(w http.ResponseWriter, r *http.Request, sess Session) (Session, error) {
	if a.refresher != nil {
		fresh, err := a.refresher.Refresh(r.Context(), sess)
		if err != nil {
			return sess, err
		}
		sess = fresh
	}
	token, err := a.tokens.Generate(sess)
	if err != nil {
		return sess, err
	}
	sess.IssuedAt = a.now()
	a.SetCookie(w, token)
	return sess, nil
}

func (a *Authenticator) authenticate(w http.ResponseWriter, r *http.Request) (Session, bool) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return Session{}, false
	}

	sess, err := a.tokens.Validate(cookie.Value)
	if err != nil {
		return Session{}, false
	}

	if a.refresher == nil || a.refreshAfter <= 0 || a.now().Sub(sess.IssuedAt) < a.refreshAfter {
		return *sess, true
	}

	fresh, err := a.Reissue(w, r, *sess)
	if err != nil {
		a.logger.Warn("session refresh failed, keeping current token",
			slog.String("discord_id", sess.DiscordID),
			slog.String("error", err.Error()),
		)
		return *sess, true
	}
	return fresh, true
}

// SetCookie writes the session cookie.
func (a *Authenticator) SetCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(a.tokens.TTL().Seconds()),
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie.
func (a *Authenticator) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// RequireAction denies the request unless the session role may perform
// action. It must run after RequireAuth. Only the token role is consulted.
func RequireAction(action policy.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, ok := SessionFromContext(r.Context())
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, "Unauthorized", "unauthorized", "")
				return
			}
			if d := policy.Decide(sess.Role, action); !d.Allowed {
				code := "forbidden"
				if d.Status == http.StatusUnauthorized {
					code = "unauthorized"
				}
				writeAuthError(w, d.Status, d.Message, code, d.Redirect)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithSession returns a copy of ctx carrying sess.
func WithSession(ctx context.Context, sess Session) context.Context {
	return context.WithValue(ctx, sessionKey, sess)
}

// SessionFromContext returns the session attached by RequireAuth or OptionalAuth.
func SessionFromContext(ctx context.Context) (Session, bool) {
	sess, ok := ctx.Value(sessionKey).(Session)
	return sess, ok
}

func writeAuthError(w http.ResponseWriter, status int, message, code, redirect string) {
	body := map[string]string{"error": message, "code": code}
	if redirect != "" {
		body["redirect"] = redirect
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
