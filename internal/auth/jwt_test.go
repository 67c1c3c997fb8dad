package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// newTestTokenService creates a TokenService with a fixed, known secret so
// tests are deterministic and can cross-validate tokens they mint themselves.
const testSecret = "test-secret-at-least-16-chars!!"

func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	ts, err := NewTokenService(testSecret)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts
}

// =========================================================================
// TOKEN SERVICE CONSTRUCTION TESTS
// =========================================================================

func TestNewTokenService_ShortSecret(t *testing.T) {
	_, err := NewTokenService("short")
	if err == nil {
		t.Fatal("NewTokenService() should reject secrets shorter than 16 chars")
	}
}

func TestNewTokenService_ValidSecret(t *testing.T) {
	_, err := NewTokenService("this-is-16-chars")
	if err != nil {
		t.Fatalf("NewTokenService() unexpected error for valid secret: %v", err)
	}
}

// =========================================================================
// SESSION TOKEN GENERATION TESTS
// =========================================================================

func TestGenerate_WellFormedToken(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.Generate("user-123")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if token == "" {
		t.Error("Generate() returned empty token")
	}

	// A JWT is header.payload.signature — three dot-separated segments.
	if parts := strings.Split(token, "."); len(parts) != 3 {
		t.Errorf("Generate() token has %d segments, want 3", len(parts))
	}
}

func TestGenerate_SessionExpiry(t *testing.T) {
	ts := newTestTokenService(t)

	// JWT NumericDate claims carry second precision, so truncate the lower
	// bound to seconds to match what the parsed ExpiresAt can express.
	before := time.Now().Truncate(time.Second)
	token, err := ts.Generate("user-123")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	after := time.Now()

	// Parse the claims directly to confirm the session length Generate bakes
	// in. The cookie's MaxAge is derived from the same constant, so a drift
	// here would silently desynchronize cookie and token lifetimes.
	var c claims
	_, err = jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return []byte(testSecret), nil
	})
	if err != nil {
		t.Fatalf("parsing generated token: %v", err)
	}

	exp := c.ExpiresAt.Time
	if exp.Before(before.Add(SessionDuration)) || exp.After(after.Add(SessionDuration)) {
		t.Errorf("session token expires at %v, want %v out from issuance", exp, SessionDuration)
	}
}

func TestGenerate_DifferentUsersGetDifferentTokens(t *testing.T) {
	ts := newTestTokenService(t)

	token1, _ := ts.Generate("user-aaa")
	token2, _ := ts.Generate("user-bbb")

	if token1 == token2 {
		t.Error("Generate() returned identical session tokens for different user IDs")
	}
}

// =========================================================================
// VALIDATE TESTS
// =========================================================================

func TestValidate_RoundTrip(t *testing.T) {
	ts := newTestTokenService(t)
	userID := "user-abc-123"

	token, err := ts.Generate(userID)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	got, err := ts.Validate(token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got != userID {
		t.Errorf("Validate() userID = %q, want %q", got, userID)
	}
}

func TestValidate_ExpiredToken(t *testing.T) {
	ts := newTestTokenService(t)

	// A session that ended one second ago.
	token, err := ts.GenerateWithDuration("user-123", -1*time.Second)
	if err != nil {
		t.Fatalf("GenerateWithDuration() error = %v", err)
	}

	_, err = ts.Validate(token)
	if err == nil {
		t.Fatal("Validate() should reject an expired session token")
	}
}

func TestValidate_TamperedToken(t *testing.T) {
	ts := newTestTokenService(t)

	token, _ := ts.Generate("user-123")

	// Corrupt the signature segment to simulate a forged cookie.
	tampered := token[:len(token)-3] + "xxx"

	_, err := ts.Validate(tampered)
	if err == nil {
		t.Fatal("Validate() should reject a tampered token")
	}
}

func TestValidate_WrongSecret(t *testing.T) {
	ts1, _ := NewTokenService("correct-secret-32-chars-long!!!!")
	ts2, _ := NewTokenService("wrong-secret-32-chars-long!!!!!!")

	token, _ := ts1.Generate("user-123")

	_, err := ts2.Validate(token)
	if err == nil {
		t.Fatal("Validate() should fail when using a different secret")
	}
}

func TestValidate_WrongIssuer(t *testing.T) {
	ts := newTestTokenService(t)

	// A token signed with our secret but minted by some other app. Even with
	// a valid signature and future expiry, Validate must refuse it: the
	// issuer claim is what keeps a shared or leaked secret from turning
	// another app's tokens into valid sessions here.
	now := time.Now()
	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-123",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		Issuer:    "some-other-app",
	})
	signed, err := foreign.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("signing foreign-issuer token: %v", err)
	}

	_, err = ts.Validate(signed)
	if err == nil {
		t.Fatal("Validate() should reject a token minted by a different issuer")
	}
}

func TestValidate_MissingExpiry(t *testing.T) {
	ts := newTestTokenService(t)

	// Sessions must always end. A token without an exp claim would never
	// expire, so Validate requires one.
	eternal := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:  "user-123",
		IssuedAt: jwt.NewNumericDate(time.Now()),
		Issuer:   issuer,
	})
	signed, err := eternal.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("signing expiry-less token: %v", err)
	}

	_, err = ts.Validate(signed)
	if err == nil {
		t.Fatal("Validate() should reject a token with no expiry claim")
	}
}

func TestValidate_EmptyToken(t *testing.T) {
	ts := newTestTokenService(t)

	_, err := ts.Validate("")
	if err == nil {
		t.Fatal("Validate() should return an error for an empty string")
	}
}

func TestValidate_GarbageString(t *testing.T) {
	ts := newTestTokenService(t)

	_, err := ts.Validate("not.a.jwt.token")
	if err == nil {
		t.Fatal("Validate() should return an error for a garbage string")
	}
}
