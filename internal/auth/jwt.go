// Package auth issues and checks the portal's session tokens and runs the
// Discord OAuth flow.
//
// A session is an HS256 JWT stored in the HttpOnly "token" cookie. It carries
// the internal profile id (sub), the Discord id, the email and the role the
// holder had when the token was last enriched. The role on the token is what
// every authorization check consults; it is refreshed by RequireAuth and
// OptionalAuth once the token is older than the refresh interval.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sakif/video-portal/internal/model"
)

const issuer = "video-portal"

// DefaultTTL is the session lifetime when none is configured.
const DefaultTTL = 30 * 24 * time.Hour

// Session is the decoded content of a session token.
type Session struct {
	UserID    string // internal profile id; empty if the profile could not be read
	DiscordID string
	Email     string
	Role      model.Role
	IssuedAt  time.Time
}

// TokenService handles JWT creation and validation.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a TokenService. A zero ttl means DefaultTTL.
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// TTL is how long issued tokens stay valid.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

type claims struct {
	Role      model.Role `json:"role"`
	DiscordID string     `json:"discord_id,omitempty"`
	Email     string     `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Generate signs a token for sess. IssuedAt is set to now.
func (s *TokenService) Generate(sess Session) (string, error) {
	return s.generate(sess, time.Now(), s.ttl)
}

func (s *TokenService) generate(sess Session, now time.Time, ttl time.Duration) (string, error) {
	if !sess.Role.Valid() {
		return "", fmt.Errorf("auth: cannot sign token with role %q", sess.Role)
	}

	c := claims{
		Role:      sess.Role,
		DiscordID: sess.DiscordID,
		Email:     sess.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sess.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a token string and returns its session.
// Signature, issuer, algorithm and expiry are all checked; a token whose
// role is not one of the four known roles is rejected.
func (s *TokenService) Validate(tokenStr string) (*Session, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("auth: token expired")
		}
		return nil, fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("auth: invalid token claims")
	}
	if !c.Role.Valid() {
		return nil, fmt.Errorf("auth: token has unknown role %q", c.Role)
	}

	sess := &Session{
		UserID:    c.Subject,
		DiscordID: c.DiscordID,
		Email:     c.Email,
		Role:      c.Role,
	}
	if c.IssuedAt != nil {
		sess.IssuedAt = c.IssuedAt.Time
	}
	return sess, nil
}
