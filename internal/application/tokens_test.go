package application

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/example/autoescola/internal/domain"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestTokenIssuer_RoundTrip(t *testing.T) {
	t.Parallel()

	issuer, err := NewTokenIssuer(testSecret, "")
	if err != nil {
		t.Fatalf("NewTokenIssuer failed: %v", err)
	}

	issued := time.Date(2025, time.March, 28, 12, 0, 0, 0, time.UTC)
	token, err := issuer.Issue("sess-1", "user-1", domain.RoleInstructor, issued, issued.Add(time.Hour))
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	claims, err := issuer.Parse(token)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if claims.ID != "sess-1" || claims.Subject != "user-1" || claims.Role != domain.RoleInstructor {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestTokenIssuer_RejectsForeignTokens(t *testing.T) {
	t.Parallel()

	issuer, _ := NewTokenIssuer(testSecret, "autoescola")
	other, _ := NewTokenIssuer("ffffffffffffffffffffffffffffffff", "autoescola")
	otherIssuer, _ := NewTokenIssuer(testSecret, "someone-else")
	now := time.Now()

	foreign, _ := other.Issue("s", "u", domain.RoleStudent, now, now.Add(time.Hour))
	wrongIssuer, _ := otherIssuer.Issue("s", "u", domain.RoleStudent, now, now.Add(time.Hour))
	noRole, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{ID: "s", Subject: "u", Issuer: "autoescola"},
	}).SignedString([]byte(testSecret))
	unsigned, _ := jwt.NewWithClaims(jwt.SigningMethodNone, SessionClaims{Role: domain.RoleAdmin}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)

	for name, token := range map[string]string{
		"other secret": foreign,
		"other issuer": wrongIssuer,
		"missing role": noRole,
		"alg none":     unsigned,
		"garbage":      "not-a-token",
	} {
		if _, err := issuer.Parse(token); !errors.Is(err, domain.ErrAuth) {
			t.Errorf("%s: expected auth error, got %v", name, err)
		}
	}
}

func TestNewTokenIssuer_RequiresLongSecret(t *testing.T) {
	t.Parallel()

	if _, err := NewTokenIssuer("short", ""); err == nil {
		t.Fatalf("expected short secret to be rejected")
	}
}
