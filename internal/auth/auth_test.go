package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIssuer(t *testing.T, ttl time.Duration) (*Issuer, UserStore) {
	t.Helper()
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	store := StaticUserStore{"alice": hash}
	return NewIssuer([]byte("test-secret"), ttl, store), store
}

func TestAuthenticateSucceedsWithCorrectPassword(t *testing.T) {
	issuer, _ := newTestIssuer(t, time.Hour)
	token, err := issuer.Authenticate(context.Background(), "alice", "correct horse battery staple")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	username, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", username)
}

func TestAuthenticateFailsWithWrongPassword(t *testing.T) {
	issuer, _ := newTestIssuer(t, time.Hour)
	_, err := issuer.Authenticate(context.Background(), "alice", "wrong password")
	assert.ErrorIs(t, err, ErrBadCredentials)
}

func TestAuthenticateFailsForUnknownUser(t *testing.T) {
	issuer, _ := newTestIssuer(t, time.Hour)
	_, err := issuer.Authenticate(context.Background(), "nobody", "anything")
	assert.ErrorIs(t, err, ErrBadCredentials)
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	issuer, _ := newTestIssuer(t, time.Hour)
	token, err := issuer.Issue("alice")
	require.NoError(t, err)

	tampered := token[:len(token)-1] + "x"
	_, err = issuer.Verify(tampered)
	assert.Error(t, err)
}

func TestVerifyRejectsTokenSignedWithDifferentSecret(t *testing.T) {
	issuerA, _ := newTestIssuer(t, time.Hour)
	token, err := issuerA.Issue("alice")
	require.NoError(t, err)

	issuerB := NewIssuer([]byte("a-different-secret"), time.Hour, StaticUserStore{})
	_, err = issuerB.Verify(token)
	assert.Error(t, err)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	issuer, _ := newTestIssuer(t, -time.Minute) // already expired
	token, err := issuer.Issue("alice")
	require.NoError(t, err)

	_, err = issuer.Verify(token)
	assert.Error(t, err)
}

func TestHashPasswordProducesVerifiableHash(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter2", hash)

	store := StaticUserStore{"bob": hash}
	got, ok, err := store.PasswordHash(context.Background(), "bob")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, hash, got)
}
