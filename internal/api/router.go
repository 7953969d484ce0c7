// Package api wires all API routes onto the provided ServeMux.
package api

import (
	"net/http"

	"github.com/datacove/datacove/internal/api/handler"
	"github.com/datacove/datacove/internal/api/middleware"
	"github.com/datacove/datacove/internal/health"
	"github.com/datacove/datacove/internal/model"
)

// Handlers bundles everything RegisterRoutes mounts.
type Handlers struct {
	Health       *health.Handler
	Auth         *handler.AuthHandler
	Invitation   *handler.InvitationHandler
	Subscription *handler.SubscriptionHandler
	Note         *handler.NoteHandler
	Document     *handler.DocumentHandler
}

// RegisterRoutes registers all application routes on mux.
func RegisterRoutes(mux *http.ServeMux, h Handlers, jwtSecret string) {
	// Public health endpoints (no auth required)
	mux.HandleFunc("GET /api/v1/health", h.Health.ServeHealth)
	mux.HandleFunc("GET /api/v1/ready", h.Health.ServeReady)

	// Auth endpoints (no auth required)
	mux.HandleFunc("POST /api/v1/auth/signup", h.Auth.SignupIndividual)
	mux.HandleFunc("POST /api/v1/auth/signup-organization", h.Auth.SignupOrganization)
	mux.HandleFunc("POST /api/v1/auth/login", h.Auth.Login)
	mux.HandleFunc("POST /api/v1/auth/refresh", h.Auth.Refresh)
	mux.HandleFunc("POST /api/v1/auth/verify-otp", h.Auth.VerifyOTP)
	mux.HandleFunc("POST /api/v1/auth/resend-otp", h.Auth.ResendOTP)
	mux.HandleFunc("POST /api/v1/auth/forgot-password", h.Auth.ForgotPassword)
	mux.HandleFunc("POST /api/v1/auth/reset-password", h.Auth.ResetPassword)

	// Public invitation endpoints: the accept page runs unauthenticated
	mux.HandleFunc("GET /api/v1/invitations", h.Invitation.Get)
	mux.HandleFunc("POST /api/v1/invitations/accept", h.Invitation.Accept)

	// Processor webhook authenticates via its signature header
	mux.HandleFunc("POST /api/v1/subscriptions/webhook", h.Subscription.Webhook)

	protected := middleware.RequireAuth(jwtSecret)
	ownerOnly := func(next http.HandlerFunc) http.Handler {
		return protected(middleware.RequireOwner()(next))
	}
	clientOnly := func(next http.HandlerFunc) http.Handler {
		return protected(middleware.RequireKind(model.KindClient)(next))
	}

	mux.Handle("POST /api/v1/auth/logout", protected(http.HandlerFunc(h.Auth.Logout)))
	mux.Handle("GET /api/v1/auth/me", protected(http.HandlerFunc(h.Auth.Me)))

	mux.Handle("POST /api/v1/invitations", ownerOnly(h.Invitation.Invite))
	mux.Handle("GET /api/v1/clients", ownerOnly(h.Invitation.ListClients))

	mux.Handle("POST /api/v1/subscriptions/checkout", ownerOnly(h.Subscription.CreateCheckout))
	mux.Handle("GET /api/v1/subscriptions/current", ownerOnly(h.Subscription.Current))

	mux.Handle("POST /api/v1/notes", protected(http.HandlerFunc(h.Note.Create)))
	mux.Handle("GET /api/v1/notes", protected(http.HandlerFunc(h.Note.List)))
	mux.Handle("DELETE /api/v1/notes/{id}", protected(http.HandlerFunc(h.Note.Delete)))

	mux.Handle("POST /api/v1/documents", protected(http.HandlerFunc(h.Document.Upload)))
	mux.Handle("GET /api/v1/documents", protected(http.HandlerFunc(h.Document.List)))
	mux.Handle("GET /api/v1/documents/shared", clientOnly(h.Document.Shared))
	mux.Handle("GET /api/v1/documents/{id}/url", protected(http.HandlerFunc(h.Document.Download)))

	// Catch-all 404
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
}
