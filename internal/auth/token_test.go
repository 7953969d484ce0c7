package auth_test

import (
	"testing"
	"time"

	"github.com/datacove/datacove/internal/auth"
	"github.com/datacove/datacove/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-at-least-32-bytes-long"

func TestIssueAndParseAccessToken(t *testing.T) {
	token, err := auth.IssueAccessToken("acc-1", "user@example.com", model.KindIndividual, testSecret, 15*time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := auth.ParseAccessToken(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", claims.AccountID)
	assert.Equal(t, "user@example.com", claims.Email)
	assert.Equal(t, model.KindIndividual, claims.Kind)
}

func TestParseAccessToken_ExpiredToken(t *testing.T) {
	// Issue a token with a -1 minute TTL so it is already expired.
	token, err := auth.IssueAccessToken("acc-1", "user@example.com", model.KindClient, testSecret, -time.Minute)
	require.NoError(t, err)

	_, err = auth.ParseAccessToken(token, testSecret)
	require.Error(t, err)
}

func TestParseAccessToken_WrongSecret(t *testing.T) {
	token, err := auth.IssueAccessToken("acc-1", "user@example.com", model.KindOrganization, testSecret, 15*time.Minute)
	require.NoError(t, err)

	_, err = auth.ParseAccessToken(token, "wrong-secret")
	require.Error(t, err)
}

func TestParseAccessToken_Garbage(t *testing.T) {
	_, err := auth.ParseAccessToken("not.a.jwt", testSecret)
	require.Error(t, err)
}

func TestHashPassword_Policy(t *testing.T) {
	_, err := auth.HashPassword("short")
	require.ErrorIs(t, err, auth.ErrWeakPassword)

	hash, err := auth.HashPassword("pw123456")
	require.NoError(t, err)
	assert.True(t, auth.CheckPassword(hash, "pw123456"))
	assert.False(t, auth.CheckPassword(hash, "pw1234567"))
}

func TestGenerateOTP_SixDigits(t *testing.T) {
	for range 20 {
		otp, err := auth.GenerateOTP()
		require.NoError(t, err)
		assert.Len(t, otp, 6)
	}
}
