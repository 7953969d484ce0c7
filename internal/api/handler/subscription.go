package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/datacove/datacove/internal/api/jsonapi"
	"github.com/datacove/datacove/internal/api/middleware"
	"github.com/datacove/datacove/internal/billing"
	"github.com/datacove/datacove/internal/directory"
	"github.com/datacove/datacove/internal/model"
)

// maxWebhookBody bounds webhook payload reads.
const maxWebhookBody = 1 << 20

// SubscriptionHandler handles checkout initiation, the processor webhook and
// the owner's subscription view.
type SubscriptionHandler struct {
	ledger *billing.Ledger
	log    *slog.Logger
}

// NewSubscriptionHandler creates a SubscriptionHandler.
func NewSubscriptionHandler(ledger *billing.Ledger, log *slog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{ledger: ledger, log: log}
}

type checkoutRequest struct {
	PlanID   string `json:"planId"`
	PlanName string `json:"planName"`
	Amount   string `json:"amount"`
	Intent   string `json:"intent"`
}

// CreateCheckout handles POST /api/v1/subscriptions/checkout. Owner only.
func (h *SubscriptionHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonapi.RenderError(w, http.StatusBadRequest, "invalid_body", "Bad Request", "request body must be valid JSON")
		return
	}
	if req.Intent != "manage" && (req.PlanID == "" || req.PlanName == "") {
		jsonapi.RenderError(w, http.StatusUnprocessableEntity, "missing_field", "Unprocessable Entity", "planId and planName are required")
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	sess, err := h.ledger.StartCheckout(r.Context(), claims.AccountID, req.PlanID, req.PlanName, req.Amount, req.Intent)
	switch {
	case err == nil:
		jsonapi.RenderOne(w, http.StatusCreated, jsonapi.ResourceObject{
			Type:       "checkout_sessions",
			ID:         sess.ID,
			Attributes: map[string]string{"url": sess.URL},
		})
	case errors.Is(err, billing.ErrBillingDisabled):
		jsonapi.RenderError(w, http.StatusServiceUnavailable, "billing_disabled", "Service Unavailable", "billing is not configured")
	case errors.Is(err, directory.ErrNotFound):
		jsonapi.RenderError(w, http.StatusForbidden, "forbidden", "Forbidden", "only owner accounts can manage subscriptions")
	default:
		h.internalError(w, "start checkout", err)
	}
}

// Webhook handles POST /api/v1/subscriptions/webhook. The payload must be
// read raw: the signature covers the exact bytes on the wire.
func (h *SubscriptionHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		jsonapi.RenderError(w, http.StatusBadRequest, "invalid_body", "Bad Request", "could not read request body")
		return
	}

	err = h.ledger.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		jsonapi.RenderError(w, http.StatusBadRequest, "invalid_signature", "Bad Request", "webhook verification failed")
		return
	}
	w.WriteHeader(http.StatusOK)
}

type subscriptionAttrs struct {
	PlanName           string                   `json:"planName"`
	Status             model.SubscriptionStatus `json:"status"`
	CurrentPeriodStart time.Time                `json:"currentPeriodStart"`
	CurrentPeriodEnd   time.Time                `json:"currentPeriodEnd"`
	CancelAtPeriodEnd  bool                     `json:"cancelAtPeriodEnd"`
	Amount             string                   `json:"amount,omitempty"`
	Features           model.Entitlements       `json:"features"`
}

// Current handles GET /api/v1/subscriptions/current. Owner only.
func (h *SubscriptionHandler) Current(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	sub, err := h.ledger.Current(r.Context(), claims.AccountID)
	switch {
	case err == nil:
		jsonapi.RenderOne(w, http.StatusOK, jsonapi.ResourceObject{
			Type: "subscriptions",
			ID:   sub.ID,
			Attributes: subscriptionAttrs{
				PlanName:           sub.PlanName,
				Status:             sub.Status,
				CurrentPeriodStart: sub.CurrentPeriodStart,
				CurrentPeriodEnd:   sub.CurrentPeriodEnd,
				CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
				Amount:             sub.Amount,
				Features:           sub.Features,
			},
		})
	case errors.Is(err, billing.ErrNoSubscription):
		jsonapi.RenderError(w, http.StatusNotFound, "no_subscription", "Not Found", "no subscription on record")
	default:
		h.internalError(w, "load subscription", err)
	}
}

func (h *SubscriptionHandler) internalError(w http.ResponseWriter, what string, err error) {
	h.log.Error(what+" failed", "error", err)
	jsonapi.RenderError(w, http.StatusInternalServerError, "internal_error", "Internal Server Error", "an unexpected error occurred")
}
