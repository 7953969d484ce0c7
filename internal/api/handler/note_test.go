package handler_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datacove/datacove/internal/model"
)

func TestNotesCRUD(t *testing.T) {
	e := newEnv(t)
	_, ownerToken := e.signupOwner(t, "Ada", "ada@example.com")

	w := e.do(t, http.MethodPost, "/api/v1/notes", ownerToken, map[string]string{
		"title": "meeting", "content": "follow up on contract",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	noteID, _ := decode(t, w)

	w = e.do(t, http.MethodGet, "/api/v1/notes", ownerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "meeting")

	// another account cannot delete it
	_, otherToken := e.signupOwner(t, "Bob", "bob@example.com")
	w = e.do(t, http.MethodDelete, "/api/v1/notes/"+noteID, otherToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, http.MethodDelete, "/api/v1/notes/"+noteID, ownerToken, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	var count int64
	require.NoError(t, e.db.Model(&model.Note{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestNotes_TitleRequired(t *testing.T) {
	e := newEnv(t)
	_, ownerToken := e.signupOwner(t, "Ada", "ada@example.com")

	w := e.do(t, http.MethodPost, "/api/v1/notes", ownerToken, map[string]string{"content": "no title"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
