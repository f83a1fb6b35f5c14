package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGuestIDShape(t *testing.T) {
	for i := 0; i < 10; i++ {
		id := NewGuestID()
		assert.True(t, ValidGuestID(id), "generated id %q must validate", id)
	}
}

func TestValidGuestID(t *testing.T) {
	cases := []struct {
		id   string
		want bool
	}{
		{"guest_6f1f0d9c-9f6e-4f3a-8a2b-1c2d3e4f5a6b", true},
		{"guest_6F1F0D9C-9F6E-4F3A-8A2B-1C2D3E4F5A6B", true},
		{"guest_", false},
		{"guest_short", false},
		{"user_6f1f0d9c-9f6e-4f3a-8a2b-1c2d3e4f5a6b", false},
		{"6f1f0d9c-9f6e-4f3a-8a2b-1c2d3e4f5a6b", false},
		{"guest_6f1f0d9c-9f6e-4f3a-8a2b-1c2d3e4f5a6bX", false},
		{"", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ValidGuestID(tc.id), "id %q", tc.id)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	svc := NewService(nil, "nierade", []byte("test-secret"), time.Hour)

	token, err := svc.signToken("user-1")
	require.NoError(t, err)

	subject, err := svc.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", subject)
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	issuer := NewService(nil, "nierade", []byte("secret-a"), time.Hour)
	verifier := NewService(nil, "nierade", []byte("secret-b"), time.Hour)

	token, err := issuer.signToken("user-1")
	require.NoError(t, err)

	_, err = verifier.ParseToken(token)
	assert.Error(t, err)
}

func TestParseTokenRejectsWrongIssuer(t *testing.T) {
	issuer := NewService(nil, "someone-else", []byte("secret"), time.Hour)
	verifier := NewService(nil, "nierade", []byte("secret"), time.Hour)

	token, err := issuer.signToken("user-1")
	require.NoError(t, err)

	_, err = verifier.ParseToken(token)
	assert.Error(t, err)
}

func TestParseTokenRejectsExpired(t *testing.T) {
	svc := NewService(nil, "nierade", []byte("secret"), -time.Minute)

	token, err := svc.signToken("user-1")
	require.NoError(t, err)

	_, err = svc.ParseToken(token)
	assert.Error(t, err)
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	svc := NewService(nil, "nierade", []byte("secret"), time.Hour)
	_, err := svc.ParseToken("not.a.token")
	assert.Error(t, err)
}
