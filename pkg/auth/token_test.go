package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	tok, err := GenerateToken("dashboard", "s3cret", time.Hour)
	require.NoError(t, err)

	client, err := ParseToken(tok, "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "dashboard", client)
}

func TestTokenRejected(t *testing.T) {
	tok, err := GenerateToken("dashboard", "s3cret", time.Hour)
	require.NoError(t, err)

	_, err = ParseToken(tok, "other")
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := GenerateToken("dashboard", "s3cret", -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken(expired, "s3cret")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ParseToken("garbage", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = GenerateToken("x", "", time.Hour)
	assert.Error(t, err)
}
