package api

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestAccountIDFromAuthHeaderLocalSecret(t *testing.T) {
	auth := NewAuth(AuthConfig{LocalSecret: testSecret})
	token := signToken(t, testSecret, jwt.MapClaims{
		"sub": "acct-1",
		"exp": time.Now().Add(time.Hour).Unix(),
		"iat": time.Now().Unix(),
	})

	got, err := auth.AccountIDFromAuthHeader("Bearer " + token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "acct-1" {
		t.Fatalf("expected acct-1, got %q", got)
	}
}

func TestAccountIDFromAuthHeaderRejectsWrongSecret(t *testing.T) {
	auth := NewAuth(AuthConfig{LocalSecret: testSecret})
	token := signToken(t, []byte("other-secret"), jwt.MapClaims{
		"sub": "acct-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	if _, err := auth.AccountIDFromAuthHeader("Bearer " + token); err == nil {
		t.Fatal("expected signature validation to fail")
	}
}

func TestAccountIDFromAuthHeaderRejectsExpired(t *testing.T) {
	auth := NewAuth(AuthConfig{LocalSecret: testSecret})
	token := signToken(t, testSecret, jwt.MapClaims{
		"sub": "acct-1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	if _, err := auth.AccountIDFromAuthHeader("Bearer " + token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestAccountIDFromAuthHeaderRequiresSub(t *testing.T) {
	auth := NewAuth(AuthConfig{LocalSecret: testSecret})
	token := signToken(t, testSecret, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	if _, err := auth.AccountIDFromAuthHeader("Bearer " + token); err == nil {
		t.Fatal("expected missing sub to be rejected")
	}
}

func TestAccountIDFromAuthHeaderEnforcesIssuer(t *testing.T) {
	auth := NewAuth(AuthConfig{LocalSecret: testSecret, Issuer: "dataflow-api"})
	token := signToken(t, testSecret, jwt.MapClaims{
		"sub": "acct-1",
		"iss": "someone-else",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	if _, err := auth.AccountIDFromAuthHeader("Bearer " + token); err == nil {
		t.Fatal("expected issuer mismatch to be rejected")
	}
}

func TestBearerTokenFromHeader(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr error
	}{
		{name: "empty", header: "", wantErr: errMissingAuthorization},
		{name: "blank", header: "   ", wantErr: errMissingAuthorization},
		{name: "noScheme", header: "a.b.c", wantErr: errBadAuthorization},
		{name: "wrongScheme", header: "Basic a.b.c", wantErr: errBadAuthorization},
		{name: "notAJWT", header: "Bearer abc", wantErr: errBadAuthorization},
		{name: "tooManyDots", header: "Bearer a.b.c.d", wantErr: errBadAuthorization},
		{name: "valid", header: "Bearer a.b.c", want: "a.b.c"},
		{name: "validPadded", header: "  Bearer a.b.c  ", want: "a.b.c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := bearerTokenFromHeader(tt.header)
			if tt.wantErr != nil {
				if err != tt.wantErr {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
