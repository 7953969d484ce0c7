package handler_test

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datacove/datacove/internal/model"
)

func (e *env) inviteClient(t *testing.T, ownerToken, name, email string) (invitationID, token string) {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/v1/invitations", ownerToken, map[string]string{
		"name": name, "email": email,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id, _ := decode(t, w)

	var inv model.Invitation
	require.NoError(t, e.db.First(&inv, "id = ?", id).Error)
	return id, inv.Token
}

func TestInviteAndAcceptFlow(t *testing.T) {
	e := newEnv(t)
	ownerID, ownerToken := e.signupOwner(t, "Ada", "ada@example.com")
	sentBefore := len(e.queue.sent)

	_, token := e.inviteClient(t, ownerToken, "Jane", "jane@client.test")

	// the invite email carries the accept link
	require.Len(t, e.queue.sent, sentBefore+1)
	assert.Equal(t, "jane@client.test", e.queue.sent[sentBefore].To)
	assert.Contains(t, e.queue.sent[sentBefore].Text, token)

	// public lookup for the accept page
	w := e.do(t, http.MethodGet, "/api/v1/invitations?token="+token, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	_, attrs := decode(t, w)
	assert.Equal(t, "jane@client.test", attrs["inviteeEmail"])
	assert.Equal(t, "Ada", attrs["inviterName"])
	assert.Equal(t, "pending", attrs["status"])

	// accept creates the client account
	w = e.do(t, http.MethodPost, "/api/v1/invitations/accept", "", map[string]string{
		"token": token, "name": "Jane Doe", "email": "jane@client.test", "password": "client-password-1",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	clientID, attrs := decode(t, w)
	assert.Equal(t, "client", attrs["kind"])
	assert.Equal(t, true, attrs["emailVerified"])
	assert.True(t, strings.HasPrefix(attrs["storageFolder"].(string), "clients/client-janedoe-"))

	// the client's folder marker landed in the owner's bucket
	var owner model.Account
	require.NoError(t, e.db.First(&owner, "id = ?", ownerID).Error)
	_, ok := e.store.objects[owner.StorageBucket+"/"+attrs["storageFolder"].(string)+"/"]
	assert.True(t, ok)

	// the client can log in right away
	w = e.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "jane@client.test", "password": "client-password-1",
	})
	require.Equal(t, http.StatusOK, w.Code)
	_, loginAttrs := decode(t, w)
	assert.Equal(t, "client", loginAttrs["kind"])
	clientToken := loginAttrs["access_token"].(string)

	// the owner's roster shows the client and no open invitation
	w = e.do(t, http.MethodGet, "/api/v1/clients", ownerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, clientID)
	assert.NotContains(t, body, token)

	// accepting twice fails
	w = e.do(t, http.MethodPost, "/api/v1/invitations/accept", "", map[string]string{
		"token": token, "name": "Jane Doe", "email": "jane@client.test", "password": "client-password-1",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	// clients cannot invite
	w = e.do(t, http.MethodPost, "/api/v1/invitations", clientToken, map[string]string{
		"name": "Bob", "email": "bob@client.test",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestGetInvitation_ExpiredCarriesMeta(t *testing.T) {
	e := newEnv(t)
	_, ownerToken := e.signupOwner(t, "Ada", "ada@example.com")
	id, token := e.inviteClient(t, ownerToken, "Jane", "jane@client.test")

	require.NoError(t, e.db.Model(&model.Invitation{}).Where("id = ?", id).
		Update("expires_at", time.Now().Add(-time.Minute)).Error)

	w := e.do(t, http.MethodGet, "/api/v1/invitations?token="+token, "", nil)
	assert.Equal(t, http.StatusGone, w.Code)
	code, meta := decodeError(t, w)
	assert.Equal(t, "invitation_expired", code)
	assert.Equal(t, true, meta["expired"])

	// the lapse was persisted by the read
	var inv model.Invitation
	require.NoError(t, e.db.First(&inv, "id = ?", id).Error)
	assert.Equal(t, model.InvitationExpired, inv.Status)
}

func TestAcceptInvitation_EmailMismatch(t *testing.T) {
	e := newEnv(t)
	_, ownerToken := e.signupOwner(t, "Ada", "ada@example.com")
	_, token := e.inviteClient(t, ownerToken, "Jane", "jane@client.test")

	w := e.do(t, http.MethodPost, "/api/v1/invitations/accept", "", map[string]string{
		"token": token, "name": "Jane", "email": "other@client.test", "password": "client-password-1",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	code, _ := decodeError(t, w)
	assert.Equal(t, "email_mismatch", code)
}

func TestReinvite_RefreshesTokenAndWindow(t *testing.T) {
	e := newEnv(t)
	_, ownerToken := e.signupOwner(t, "Ada", "ada@example.com")
	firstID, firstToken := e.inviteClient(t, ownerToken, "Jane", "jane@client.test")
	secondID, secondToken := e.inviteClient(t, ownerToken, "Jane", "jane@client.test")

	assert.Equal(t, firstID, secondID)
	assert.NotEqual(t, firstToken, secondToken)

	w := e.do(t, http.MethodGet, "/api/v1/invitations?token="+firstToken, "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = e.do(t, http.MethodGet, "/api/v1/invitations?token="+secondToken, "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestInvite_ExistingAccountConflicts(t *testing.T) {
	e := newEnv(t)
	_, ownerToken := e.signupOwner(t, "Ada", "ada@example.com")
	e.signupOwner(t, "Bob", "bob@example.com")

	w := e.do(t, http.MethodPost, "/api/v1/invitations", ownerToken, map[string]string{
		"name": "Bob", "email": "bob@example.com",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}
