package accounts

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const tokenIssuer = "dataflow-api"

// tokenManager issues signed session tokens for authenticated accounts.
type tokenManager struct {
	secret []byte
	ttl    time.Duration
}

func newTokenManager(secret []byte, ttl time.Duration) tokenManager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return tokenManager{secret: secret, ttl: ttl}
}

func (m tokenManager) issue(accountID, email string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   accountID,
		"email": email,
		"iss":   tokenIssuer,
		"iat":   now.Unix(),
		"exp":   now.Add(m.ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// opaqueToken returns a random hex string for email verification and
// password reset links.
func opaqueToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
