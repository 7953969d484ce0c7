package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/datacove/datacove/internal/api/jsonapi"
	"github.com/datacove/datacove/internal/api/middleware"
	"github.com/datacove/datacove/internal/directory"
	"github.com/datacove/datacove/internal/model"
	"github.com/datacove/datacove/internal/storage"
)

// maxUploadBytes bounds a single multipart upload request.
const maxUploadBytes = 50 << 20

// presignTTL is how long document download links stay valid.
const presignTTL = 15 * time.Minute

// DocumentHandler handles /api/v1/documents: multipart uploads into the
// account's storage, listings and presigned downloads.
type DocumentHandler struct {
	db    *gorm.DB
	dir   *directory.Directory
	store storage.ObjectStore
	log   *slog.Logger
}

// NewDocumentHandler creates a DocumentHandler.
func NewDocumentHandler(db *gorm.DB, dir *directory.Directory, store storage.ObjectStore, log *slog.Logger) *DocumentHandler {
	return &DocumentHandler{db: db, dir: dir, store: store, log: log}
}

type documentAttrs struct {
	Name      string    `json:"name"`
	ForClient bool      `json:"forClient"`
	CreatedAt time.Time `json:"createdAt"`
}

func documentResource(d *model.Document) jsonapi.ResourceObject {
	return jsonapi.ResourceObject{
		Type: "documents",
		ID:   d.ID,
		Attributes: documentAttrs{
			Name:      d.Name,
			ForClient: d.ForClient,
			CreatedAt: d.CreatedAt,
		},
	}
}

// uploadPrefix picks where an account's uploads land. Owners write under
// private/ in their own bucket; clients write inside their folder in the
// inviter's bucket.
func uploadPrefix(a *model.Account) string {
	if a.Kind == model.KindClient {
		return a.StorageFolder
	}
	return "private"
}

// Upload handles POST /api/v1/documents. Accepts one or more files in the
// "files" multipart field; the optional "forClient" field marks owner
// uploads as visible to clients.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	account, err := h.dir.ByID(r.Context(), claims.AccountID)
	if err != nil {
		jsonapi.RenderError(w, http.StatusNotFound, "account_not_found", "Not Found", "account does not exist")
		return
	}
	if account.StorageBucket == "" {
		jsonapi.RenderError(w, http.StatusConflict, "no_storage", "Conflict", "account has no storage provisioned")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		jsonapi.RenderError(w, http.StatusBadRequest, "invalid_body", "Bad Request", "multipart form data is required")
		return
	}
	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		jsonapi.RenderError(w, http.StatusUnprocessableEntity, "missing_field", "Unprocessable Entity", "at least one file is required")
		return
	}
	forClient := account.Kind.IsOwner() && r.FormValue("forClient") == "true"

	prefix := uploadPrefix(account)
	data := make([]any, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			jsonapi.RenderError(w, http.StatusBadRequest, "invalid_file", "Bad Request", "could not read uploaded file")
			return
		}

		key := fmt.Sprintf("%s/%s-%s", prefix, uuid.New().String(), path.Base(fh.Filename))
		err = h.store.Put(r.Context(), account.StorageBucket, key, f, fh.Header.Get("Content-Type"))
		f.Close()
		if err != nil {
			if errors.Is(err, storage.ErrStorageDisabled) {
				jsonapi.RenderError(w, http.StatusServiceUnavailable, "storage_disabled", "Service Unavailable", "object storage is not configured")
				return
			}
			h.internalError(w, "upload document", err)
			return
		}

		doc := &model.Document{
			AccountID: account.ID,
			Name:      path.Base(fh.Filename),
			ObjectKey: key,
			ForClient: forClient,
			CreatedAt: time.Now(),
		}
		if err := h.db.WithContext(r.Context()).Create(doc).Error; err != nil {
			h.internalError(w, "record document", err)
			return
		}
		data = append(data, documentResource(doc))
	}
	jsonapi.RenderList(w, http.StatusCreated, data)
}

// List handles GET /api/v1/documents: the account's own uploads.
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	var docs []model.Document
	if err := h.db.WithContext(r.Context()).
		Where("account_id = ?", claims.AccountID).
		Order("created_at desc").
		Find(&docs).Error; err != nil {
		h.internalError(w, "list documents", err)
		return
	}

	data := make([]any, 0, len(docs))
	for i := range docs {
		data = append(data, documentResource(&docs[i]))
	}
	jsonapi.RenderList(w, http.StatusOK, data)
}

// Shared handles GET /api/v1/documents/shared: the inviter's documents that
// were marked visible to clients. Client accounts only.
func (h *DocumentHandler) Shared(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	account, err := h.dir.ByID(r.Context(), claims.AccountID)
	if err != nil || account.InviterID == nil {
		jsonapi.RenderError(w, http.StatusNotFound, "account_not_found", "Not Found", "no inviter on record")
		return
	}

	var docs []model.Document
	if err := h.db.WithContext(r.Context()).
		Where("account_id = ? AND for_client = ?", *account.InviterID, true).
		Order("created_at desc").
		Find(&docs).Error; err != nil {
		h.internalError(w, "list shared documents", err)
		return
	}

	data := make([]any, 0, len(docs))
	for i := range docs {
		data = append(data, documentResource(&docs[i]))
	}
	jsonapi.RenderList(w, http.StatusOK, data)
}

// Download handles GET /api/v1/documents/{id}/url. Returns a presigned URL
// for the caller's own document, or for an inviter document shared with the
// calling client.
func (h *DocumentHandler) Download(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	account, err := h.dir.ByID(r.Context(), claims.AccountID)
	if err != nil {
		jsonapi.RenderError(w, http.StatusNotFound, "account_not_found", "Not Found", "account does not exist")
		return
	}

	var doc model.Document
	if err := h.db.WithContext(r.Context()).First(&doc, "id = ?", r.PathValue("id")).Error; err != nil {
		jsonapi.RenderError(w, http.StatusNotFound, "not_found", "Not Found", "document does not exist")
		return
	}
	if !h.canAccess(account, &doc) {
		jsonapi.RenderError(w, http.StatusForbidden, "forbidden", "Forbidden", "you do not have access to this document")
		return
	}

	bucket := account.StorageBucket
	if doc.AccountID != account.ID {
		owner, err := h.dir.ByID(r.Context(), doc.AccountID)
		if err != nil {
			h.internalError(w, "resolve document owner", err)
			return
		}
		bucket = owner.StorageBucket
	}

	url, err := h.store.PresignGet(r.Context(), bucket, doc.ObjectKey, presignTTL)
	if err != nil {
		if errors.Is(err, storage.ErrStorageDisabled) {
			jsonapi.RenderError(w, http.StatusServiceUnavailable, "storage_disabled", "Service Unavailable", "object storage is not configured")
			return
		}
		h.internalError(w, "presign document", err)
		return
	}

	jsonapi.RenderOne(w, http.StatusOK, jsonapi.ResourceObject{
		Type:       "document_urls",
		ID:         doc.ID,
		Attributes: map[string]any{"url": url, "expiresIn": int(presignTTL.Seconds())},
	})
}

func (h *DocumentHandler) canAccess(a *model.Account, doc *model.Document) bool {
	if doc.AccountID == a.ID {
		return true
	}
	return a.Kind == model.KindClient && a.InviterID != nil && doc.AccountID == *a.InviterID && doc.ForClient
}

func (h *DocumentHandler) internalError(w http.ResponseWriter, what string, err error) {
	h.log.Error(what+" failed", "error", err)
	jsonapi.RenderError(w, http.StatusInternalServerError, "internal_error", "Internal Server Error", "an unexpected error occurred")
}
