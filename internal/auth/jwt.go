package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// TokenValidator resolves a bearer token to the subject email it was issued
// for. Token issuance lives in the auth service; this side only verifies.
type TokenValidator interface {
	Validate(token string) (string, error)
}

// JWTValidator verifies HS256 tokens whose subject is the user's email.
type JWTValidator struct {
	signKey []byte
}

// NewJWTValidator constructs a JWTValidator.
func NewJWTValidator(secret string) *JWTValidator {
	return &JWTValidator{signKey: []byte(secret)}
}

// Validate parses and verifies the token and returns its subject.
func (v *JWTValidator) Validate(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.signKey, nil
	})
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// Sign issues an HS256 token for the subject. Used by tests and local
// tooling; production tokens come from the auth service with the same key.
func (v *JWTValidator) Sign(subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.signKey)
}
