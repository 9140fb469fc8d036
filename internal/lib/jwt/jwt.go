// Package jwt issues and verifies stateless session tokens. A session
// token carries the username claim, is signed with a process-wide
// secret and expires after a fixed window; nothing is persisted server
// side.
package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid session token")

type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}

// NewToken mints a signed session token for username, valid for ttl.
func NewToken(username, secret string, ttl time.Duration) (string, error) {
	const op = "jwt.NewToken"

	now := time.Now()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Username: username,
	})

	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return signed, nil
}

// ParseToken verifies the signature and expiry of a session token and
// returns the username claim. Any malformed, forged or expired token
// yields ErrInvalidToken.
func ParseToken(tokenStr, secret string) (string, error) {
	const op = "jwt.ParseToken"

	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	if !token.Valid || claims.Username == "" {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	return claims.Username, nil
}
