package handler_test

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datacove/datacove/internal/auth"
	"github.com/datacove/datacove/internal/model"
)

func TestSignupIndividual(t *testing.T) {
	e := newEnv(t)
	id, token := e.signupOwner(t, "Ada Lovelace", "ada@example.com")
	require.NotEmpty(t, token)

	var account model.Account
	require.NoError(t, e.db.First(&account, "id = ?", id).Error)
	assert.Equal(t, model.KindIndividual, account.Kind)
	assert.Equal(t, "adalovelace", account.Name)
	assert.False(t, account.EmailVerified)
	assert.NotEmpty(t, account.OTPCode)
	assert.Equal(t, "user-adalovelace-"+id+"-documents", account.StorageBucket)

	// bucket base folders were seeded
	_, ok := e.store.objects[account.StorageBucket+"/private/"]
	assert.True(t, ok)

	// the verification code went out by email
	require.Len(t, e.queue.sent, 1)
	assert.Equal(t, "ada@example.com", e.queue.sent[0].To)
	assert.Contains(t, e.queue.sent[0].Text, account.OTPCode)
}

func TestSignupOrganization(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, http.MethodPost, "/api/v1/auth/signup-organization", "", map[string]string{
		"organizationName": "Acme Corp", "email": "ops@acme.test", "password": "org-password-1",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var account model.Account
	require.NoError(t, e.db.First(&account, "email = ?", "ops@acme.test").Error)
	assert.Equal(t, model.KindOrganization, account.Kind)
	assert.Equal(t, "Acme Corp", account.OrganizationName)
}

func TestSignup_DuplicateEmailConflictsAcrossKinds(t *testing.T) {
	e := newEnv(t)
	e.signupOwner(t, "Ada", "ada@example.com")

	w := e.do(t, http.MethodPost, "/api/v1/auth/signup-organization", "", map[string]string{
		"organizationName": "Acme", "email": "ada@example.com", "password": "org-password-1",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	code, _ := decodeError(t, w)
	assert.Equal(t, "email_taken", code)
}

func TestSignup_WeakPassword(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, http.MethodPost, "/api/v1/auth/signup", "", map[string]string{
		"name": "Ada", "email": "ada@example.com", "password": "short",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestLogin(t *testing.T) {
	e := newEnv(t)
	e.signupOwner(t, "Ada", "ada@example.com")

	w := e.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "ada@example.com", "password": "owner-password-1",
	})
	require.Equal(t, http.StatusOK, w.Code)
	_, attrs := decode(t, w)
	assert.NotEmpty(t, attrs["access_token"])
	assert.Equal(t, "individual", attrs["kind"])

	w = e.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "ada@example.com", "password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestVerifyOTP(t *testing.T) {
	e := newEnv(t)
	id, _ := e.signupOwner(t, "Ada", "ada@example.com")

	var account model.Account
	require.NoError(t, e.db.First(&account, "id = ?", id).Error)

	w := e.do(t, http.MethodPost, "/api/v1/auth/verify-otp", "", map[string]string{
		"email": "ada@example.com", "otp": "000000",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(t, http.MethodPost, "/api/v1/auth/verify-otp", "", map[string]string{
		"email": "ada@example.com", "otp": account.OTPCode,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	require.NoError(t, e.db.First(&account, "id = ?", id).Error)
	assert.True(t, account.EmailVerified)
	assert.Empty(t, account.OTPCode)
}

func TestVerifyOTP_Expired(t *testing.T) {
	e := newEnv(t)
	id, _ := e.signupOwner(t, "Ada", "ada@example.com")

	var account model.Account
	require.NoError(t, e.db.First(&account, "id = ?", id).Error)
	past := time.Now().Add(-time.Minute)
	require.NoError(t, e.db.Model(&account).Update("otp_expires_at", past).Error)

	w := e.do(t, http.MethodPost, "/api/v1/auth/verify-otp", "", map[string]string{
		"email": "ada@example.com", "otp": account.OTPCode,
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	code, _ := decodeError(t, w)
	assert.Equal(t, "otp_expired", code)
}

func TestResendOTP_RotatesCode(t *testing.T) {
	e := newEnv(t)
	id, _ := e.signupOwner(t, "Ada", "ada@example.com")

	var before model.Account
	require.NoError(t, e.db.First(&before, "id = ?", id).Error)

	w := e.do(t, http.MethodPost, "/api/v1/auth/resend-otp", "", map[string]string{"email": "ada@example.com"})
	require.Equal(t, http.StatusNoContent, w.Code)

	var after model.Account
	require.NoError(t, e.db.First(&after, "id = ?", id).Error)
	assert.NotEqual(t, before.OTPCode, after.OTPCode)
	assert.Len(t, e.queue.sent, 2)
}

func TestPasswordReset(t *testing.T) {
	e := newEnv(t)
	id, _ := e.signupOwner(t, "Ada", "ada@example.com")

	// unknown email still answers 204
	w := e.do(t, http.MethodPost, "/api/v1/auth/forgot-password", "", map[string]string{"email": "ghost@example.com"})
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Len(t, e.queue.sent, 1) // only the signup OTP so far

	w = e.do(t, http.MethodPost, "/api/v1/auth/forgot-password", "", map[string]string{"email": "ada@example.com"})
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Len(t, e.queue.sent, 2)

	// pull the raw token out of the emailed link
	text := e.queue.sent[1].Text
	idx := strings.Index(text, "token=")
	require.GreaterOrEqual(t, idx, 0)
	token := text[idx+len("token="):][:64] // 32 random bytes, hex encoded

	var account model.Account
	require.NoError(t, e.db.First(&account, "id = ?", id).Error)
	assert.Equal(t, auth.HashToken(token), account.ResetTokenHash)

	w = e.do(t, http.MethodPost, "/api/v1/auth/reset-password", "", map[string]string{
		"token": token, "password": "new-password-1",
	})
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	// old password dead, new one works
	w = e.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "ada@example.com", "password": "owner-password-1",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = e.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "ada@example.com", "password": "new-password-1",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	// the token is single use
	w = e.do(t, http.MethodPost, "/api/v1/auth/reset-password", "", map[string]string{
		"token": token, "password": "another-password-1",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRefreshAndLogout(t *testing.T) {
	e := newEnv(t)
	e.signupOwner(t, "Ada", "ada@example.com")

	w := e.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "ada@example.com", "password": "owner-password-1",
	})
	require.Equal(t, http.StatusOK, w.Code)
	_, attrs := decode(t, w)
	refreshToken := attrs["refresh_token"].(string)

	w = e.do(t, http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{"refresh_token": refreshToken})
	require.Equal(t, http.StatusOK, w.Code)
	_, attrs = decode(t, w)
	rotated := attrs["refresh_token"].(string)
	assert.NotEqual(t, refreshToken, rotated)

	// the pre-rotation token is no longer valid
	w = e.do(t, http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{"refresh_token": refreshToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token := attrs["access_token"].(string)
	w = e.do(t, http.MethodPost, "/api/v1/auth/logout", token, map[string]string{"refresh_token": rotated})
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = e.do(t, http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{"refresh_token": rotated})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMe(t *testing.T) {
	e := newEnv(t)
	id, token := e.signupOwner(t, "Ada", "ada@example.com")

	w := e.do(t, http.MethodGet, "/api/v1/auth/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	gotID, attrs := decode(t, w)
	assert.Equal(t, id, gotID)
	assert.Equal(t, "ada@example.com", attrs["email"])

	w = e.do(t, http.MethodGet, "/api/v1/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
