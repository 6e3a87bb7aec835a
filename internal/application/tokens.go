package application

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/example/autoescola/internal/domain"
)

// SessionClaims are carried by every issued session token.
type SessionClaims struct {
	Role domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and parses HS256 session tokens.
//
// Expiry is enforced against the stored session, not the exp claim, so that
// the service clock decides.
type TokenIssuer struct {
	secret []byte
	issuer string
}

// NewTokenIssuer returns an issuer signing with secret.
func NewTokenIssuer(secret, issuer string) (*TokenIssuer, error) {
	if len(secret) < 16 {
		return nil, errors.New("application: token secret must be at least 16 bytes")
	}
	if issuer == "" {
		issuer = "autoescola"
	}
	return &TokenIssuer{secret: []byte(secret), issuer: issuer}, nil
}

// Issue signs a token for session id of userID acting as role.
func (t *TokenIssuer) Issue(sessionID, userID string, role domain.Role, issuedAt, expiresAt time.Time) (string, error) {
	claims := SessionClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			Subject:   userID,
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("application: sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies the signature and issuer of token and returns its claims.
func (t *TokenIssuer) Parse(token string) (SessionClaims, error) {
	var claims SessionClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithoutClaimsValidation())
	if err != nil || !parsed.Valid {
		return SessionClaims{}, ErrInvalidCredentials
	}
	if claims.Issuer != t.issuer || claims.ID == "" || claims.Subject == "" || !claims.Role.Valid() {
		return SessionClaims{}, ErrInvalidCredentials
	}
	return claims, nil
}
