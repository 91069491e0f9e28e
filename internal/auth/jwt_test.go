package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/sakif/video-portal/internal/model"
)

// newTestTokenService uses a fixed, known secret so tests are deterministic.
func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	ts, err := NewTokenService("test-secret-at-least-16-chars!!", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts
}

func testSession() Session {
	return Session{
		UserID:    "cv37rs3pp9olc6atsptg",
		DiscordID: "80351110224678912",
		Email:     "member@example.com",
		Role:      model.RoleSubscriber,
	}
}

// =========================================================================
// TOKEN SERVICE CONSTRUCTION TESTS
// =========================================================================

func TestNewTokenService_ShortSecret(t *testing.T) {
	_, err := NewTokenService("short", time.Hour)
	if err == nil {
		t.Fatal("NewTokenService() should reject secrets shorter than 16 chars")
	}
}

func TestNewTokenService_DefaultTTL(t *testing.T) {
	ts, err := NewTokenService("this-is-16-chars", 0)
	if err != nil {
		t.Fatalf("NewTokenService() unexpected error: %v", err)
	}
	if ts.TTL() != DefaultTTL {
		t.Errorf("TTL() = %v, want %v", ts.TTL(), DefaultTTL)
	}
}

// =========================================================================
// GENERATE / VALIDATE
// =========================================================================

func TestValidate_RoundTrip(t *testing.T) {
	ts := newTestTokenService(t)
	want := testSession()

	token, err := ts.Generate(want)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if strings.Count(token, ".") != 2 {
		t.Errorf("Generate() token doesn't look like a JWT: %q", token)
	}

	got, err := ts.Validate(token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got.UserID != want.UserID || got.DiscordID != want.DiscordID || got.Email != want.Email || got.Role != want.Role {
		t.Errorf("Validate() = %+v, want %+v", got, want)
	}
	if got.IssuedAt.IsZero() {
		t.Error("Validate() did not populate IssuedAt")
	}
}

func TestValidate_EmptySubjectAllowed(t *testing.T) {
	// A login whose profile could not be read still gets a guest session.
	ts := newTestTokenService(t)

	token, err := ts.Generate(Session{DiscordID: "80351110224678912", Role: model.RoleGuest})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	got, err := ts.Validate(token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got.UserID != "" || got.Role != model.RoleGuest {
		t.Errorf("Validate() = %+v", got)
	}
}

func TestGenerate_RejectsUnknownRole(t *testing.T) {
	ts := newTestTokenService(t)

	_, err := ts.Generate(Session{Role: model.Role("superuser")})
	if err == nil {
		t.Fatal("Generate() should reject an unknown role")
	}
}

func TestValidate_ExpiredToken(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.generate(testSession(), time.Now().Add(-2*time.Hour), time.Hour)
	if err != nil {
		t.Fatalf("generate() error = %v", err)
	}

	_, err = ts.Validate(token)
	if err == nil {
		t.Fatal("Validate() should return an error for an expired token")
	}
}

func TestValidate_TamperedToken(t *testing.T) {
	ts := newTestTokenService(t)
	token, _ := ts.Generate(testSession())

	tampered := token[:len(token)-3] + "xxx"

	if _, err := ts.Validate(tampered); err == nil {
		t.Fatal("Validate() should return an error for a tampered token")
	}
}

func TestValidate_WrongSecret(t *testing.T) {
	ts1, _ := NewTokenService("correct-secret-32-chars-long!!!!", time.Hour)
	ts2, _ := NewTokenService("wrong-secret-32-chars-long!!!!!!", time.Hour)

	token, _ := ts1.Generate(testSession())

	if _, err := ts2.Validate(token); err == nil {
		t.Fatal("Validate() should fail when using a different secret")
	}
}

func TestValidate_Garbage(t *testing.T) {
	ts := newTestTokenService(t)

	for _, in := range []string{"", "not.a.jwt.token"} {
		if _, err := ts.Validate(in); err == nil {
			t.Errorf("Validate(%q) should return an error", in)
		}
	}
}
