// Package auth implements JWT issuance/verification and credential checks
// (C17): HS256 bearer tokens with a configurable TTL, bcrypt-hashed
// passwords.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// ErrBadCredentials is returned by Authenticate on a username/password
// mismatch, surfaced by the HTTP layer as business code 1004.
var ErrBadCredentials = errors.New("invalid username or password")

// UserStore resolves a username to its bcrypt password hash.
type UserStore interface {
	PasswordHash(ctx context.Context, username string) (hash string, ok bool, err error)
}

// claims is the JWT payload: subject plus the registered expiry claim.
type claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}

// Issuer issues and verifies bearer tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	users  UserStore
}

// NewIssuer builds an Issuer signing with secret and expiring tokens after
// ttl.
func NewIssuer(secret []byte, ttl time.Duration, users UserStore) *Issuer {
	return &Issuer{secret: secret, ttl: ttl, users: users}
}

// Authenticate verifies username/password against the UserStore and, on
// success, issues a signed token.
func (i *Issuer) Authenticate(ctx context.Context, username, password string) (string, error) {
	hash, ok, err := i.users.PasswordHash(ctx, username)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return "", ErrBadCredentials
	}
	return i.Issue(username)
}

// Issue mints a signed token for username without checking a password,
// used by tests and trusted internal callers.
func (i *Issuer) Issue(username string) (string, error) {
	now := time.Now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		Username: username,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return token.SignedString(i.secret)
}

// Verify parses and validates a bearer token, returning the subject
// username.
func (i *Issuer) Verify(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		return "", err
	}
	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid token")
	}
	return c.Username, nil
}

// HashPassword bcrypt-hashes a plaintext password for storage.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(b), err
}
