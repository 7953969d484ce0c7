package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/datacove/datacove/internal/api"
	"github.com/datacove/datacove/internal/api/handler"
	"github.com/datacove/datacove/internal/auth"
	"github.com/datacove/datacove/internal/billing"
	"github.com/datacove/datacove/internal/db"
	"github.com/datacove/datacove/internal/directory"
	"github.com/datacove/datacove/internal/health"
	"github.com/datacove/datacove/internal/invite"
	"github.com/datacove/datacove/internal/model"
	"github.com/datacove/datacove/internal/provision"
	"github.com/datacove/datacove/internal/worker"
)

const (
	testJWTSecret     = "handler-test-secret"
	testWebhookSecret = "whsec_handler_test"
)

// memQueue records email jobs instead of queueing them.
type memQueue struct {
	mu   sync.Mutex
	sent []worker.EmailArgs
}

func (q *memQueue) Start(context.Context) error { return nil }
func (q *memQueue) Stop(context.Context) error  { return nil }
func (q *memQueue) Enqueue(_ context.Context, args worker.EmailArgs) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sent = append(q.sent, args)
	return nil
}

// memStore is an in-memory ObjectStore.
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte // bucket/key -> body
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}}
}

func (s *memStore) CreateOwnerBucket(_ context.Context, ownerID, ownerName string) (string, error) {
	bucket := fmt.Sprintf("user-%s-%s-documents", ownerName, ownerID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[bucket+"/private/"] = nil
	s.objects[bucket+"/clients/"] = nil
	return bucket, nil
}

func (s *memStore) PutMarker(_ context.Context, bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[bucket+"/"+key] = nil
	return nil
}

func (s *memStore) Put(_ context.Context, bucket, key string, body io.Reader, _ string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[bucket+"/"+key] = data
	return nil
}

func (s *memStore) PresignGet(_ context.Context, bucket, key string, _ time.Duration) (string, error) {
	return "https://storage.test/" + bucket + "/" + key + "?signed=1", nil
}

// stubProcessor serves the billing ledger in handler tests.
type stubProcessor struct {
	mu   sync.Mutex
	subs map[string]*billing.ProcessorSubscription
}

func (p *stubProcessor) CreateCheckoutSession(_ context.Context, params billing.CheckoutParams) (*billing.Session, error) {
	return &billing.Session{ID: "cs_test", URL: "https://checkout.test/" + params.PlanID}, nil
}

func (p *stubProcessor) CreatePortalSession(context.Context, string, string) (*billing.Session, error) {
	return &billing.Session{ID: "bps_test", URL: "https://portal.test/session"}, nil
}

func (p *stubProcessor) GetSubscription(_ context.Context, id string) (*billing.ProcessorSubscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if sub, ok := p.subs[id]; ok {
		return sub, nil
	}
	return nil, fmt.Errorf("no such subscription %s", id)
}

type env struct {
	mux   *http.ServeMux
	db    *gorm.DB
	queue *memQueue
	store *memStore
	proc  *stubProcessor
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(
		&model.Account{}, &model.Invitation{}, &model.ClientLink{},
		&model.Note{}, &model.Document{}, &model.Subscription{}, &model.RefreshToken{},
	))

	log := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	queue := &memQueue{}
	store := newMemStore()
	proc := &stubProcessor{subs: map[string]*billing.ProcessorSubscription{}}

	dir := directory.New(gdb)
	refresh := auth.NewRefreshStore(gdb, time.Hour)
	prov := provision.New(gdb, store, log)
	inviteLedger := invite.New(gdb, dir, prov, queue, "http://localhost:5173", log)
	billingLedger := billing.New(gdb, dir, proc, testWebhookSecret, "http://localhost:5173", log)

	mux := http.NewServeMux()
	api.RegisterRoutes(mux, api.Handlers{
		Health:       health.New(db.NewPinger(gdb)),
		Auth:         handler.NewAuthHandler(gdb, dir, refresh, store, queue, testJWTSecret, time.Minute, "http://localhost:5173", log),
		Invitation:   handler.NewInvitationHandler(inviteLedger, log),
		Subscription: handler.NewSubscriptionHandler(billingLedger, log),
		Note:         handler.NewNoteHandler(gdb, log),
		Document:     handler.NewDocumentHandler(gdb, dir, store, log),
	}, testJWTSecret)

	return &env{mux: mux, db: gdb, queue: queue, store: store, proc: proc}
}

// do issues a JSON request against the router.
func (e *env) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, req)
	return w
}

// decode unpacks a JSON:API single-resource response body.
func decode(t *testing.T, w *httptest.ResponseRecorder) (id string, attrs map[string]any) {
	t.Helper()
	var doc struct {
		Data struct {
			ID         string         `json:"id"`
			Attributes map[string]any `json:"attributes"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	return doc.Data.ID, doc.Data.Attributes
}

// decodeError unpacks the first JSON:API error.
func decodeError(t *testing.T, w *httptest.ResponseRecorder) (code string, meta map[string]any) {
	t.Helper()
	var doc struct {
		Errors []struct {
			Code string         `json:"code"`
			Meta map[string]any `json:"meta"`
		} `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	require.NotEmpty(t, doc.Errors)
	return doc.Errors[0].Code, doc.Errors[0].Meta
}

// signupOwner registers an individual owner and returns its id and token.
func (e *env) signupOwner(t *testing.T, name, email string) (accountID, token string) {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/v1/auth/signup", "", map[string]string{
		"name": name, "email": email, "password": "owner-password-1",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id, attrs := decode(t, w)
	return id, attrs["access_token"].(string)
}
