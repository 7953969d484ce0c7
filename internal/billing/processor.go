package billing

import (
	"context"
	"time"

	"github.com/datacove/datacove/internal/model"
)

// Session is a hosted payment page created by the processor. The caller
// redirects the browser to URL.
type Session struct {
	ID  string
	URL string
}

// CheckoutParams describes a new subscription checkout.
type CheckoutParams struct {
	OwnerID    string
	Email      string
	PlanID     string
	PlanName   string
	Amount     string
	SuccessURL string
	CancelURL  string
}

// ProcessorSubscription is the processor's authoritative view of a
// subscription, used for webhook enrichment and reconciliation.
type ProcessorSubscription struct {
	ID                 string
	CustomerID         string
	PlanID             string
	Status             model.SubscriptionStatus
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CancelAtPeriodEnd  bool
}

// Processor is the outbound payment API surface. The Stripe implementation
// is the only production one; tests substitute fakes.
type Processor interface {
	CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*Session, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (*Session, error)
	GetSubscription(ctx context.Context, id string) (*ProcessorSubscription, error)
}
