package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"gorm.io/gorm"

	"github.com/datacove/datacove/internal/api/jsonapi"
	"github.com/datacove/datacove/internal/api/middleware"
	"github.com/datacove/datacove/internal/model"
)

// NoteHandler handles /api/v1/notes.
type NoteHandler struct {
	db  *gorm.DB
	log *slog.Logger
}

// NewNoteHandler creates a NoteHandler.
func NewNoteHandler(db *gorm.DB, log *slog.Logger) *NoteHandler {
	return &NoteHandler{db: db, log: log}
}

type noteAttrs struct {
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

func noteResource(n *model.Note) jsonapi.ResourceObject {
	return jsonapi.ResourceObject{
		Type: "notes",
		ID:   n.ID,
		Attributes: noteAttrs{
			Title:     n.Title,
			Content:   n.Content,
			CreatedAt: n.CreatedAt,
		},
	}
}

// Create handles POST /api/v1/notes.
func (h *NoteHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title   string `json:"title"`
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Title == "" {
		jsonapi.RenderError(w, http.StatusBadRequest, "invalid_body", "Bad Request", "title is required")
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	note := &model.Note{
		AccountID: claims.AccountID,
		Title:     req.Title,
		Content:   req.Content,
		CreatedAt: time.Now(),
	}
	if err := h.db.WithContext(r.Context()).Create(note).Error; err != nil {
		h.log.Error("create note failed", "error", err)
		jsonapi.RenderError(w, http.StatusInternalServerError, "internal_error", "Internal Server Error", "an unexpected error occurred")
		return
	}
	jsonapi.RenderOne(w, http.StatusCreated, noteResource(note))
}

// List handles GET /api/v1/notes.
func (h *NoteHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	var notes []model.Note
	if err := h.db.WithContext(r.Context()).
		Where("account_id = ?", claims.AccountID).
		Order("created_at desc").
		Find(&notes).Error; err != nil {
		h.log.Error("list notes failed", "error", err)
		jsonapi.RenderError(w, http.StatusInternalServerError, "internal_error", "Internal Server Error", "an unexpected error occurred")
		return
	}

	data := make([]any, 0, len(notes))
	for i := range notes {
		data = append(data, noteResource(&notes[i]))
	}
	jsonapi.RenderList(w, http.StatusOK, data)
}

// Delete handles DELETE /api/v1/notes/{id}. Notes are only deletable by the
// account that created them.
func (h *NoteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	id := r.PathValue("id")

	res := h.db.WithContext(r.Context()).
		Where("id = ? AND account_id = ?", id, claims.AccountID).
		Delete(&model.Note{})
	if res.Error != nil {
		h.log.Error("delete note failed", "error", res.Error)
		jsonapi.RenderError(w, http.StatusInternalServerError, "internal_error", "Internal Server Error", "an unexpected error occurred")
		return
	}
	if res.RowsAffected == 0 {
		jsonapi.RenderError(w, http.StatusNotFound, "not_found", "Not Found", "note does not exist")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
