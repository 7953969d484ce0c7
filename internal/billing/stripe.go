package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"

	"github.com/datacove/datacove/internal/model"
)

// StripeProcessor implements Processor against the Stripe API.
type StripeProcessor struct {
	api *client.API
}

// NewStripeProcessor creates a StripeProcessor with the given secret key.
func NewStripeProcessor(secretKey string) *StripeProcessor {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeProcessor{api: api}
}

// CreateCheckoutSession opens a hosted subscription checkout. The owner id
// and plan details ride along as metadata so the completion webhook can
// attribute the subscription without a second lookup.
func (s *StripeProcessor) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*Session, error) {
	params := &stripe.CheckoutSessionParams{
		Params:            stripe.Params{Context: ctx},
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL:        stripe.String(p.SuccessURL),
		CancelURL:         stripe.String(p.CancelURL),
		ClientReferenceID: stripe.String(p.OwnerID),
		CustomerEmail:     stripe.String(p.Email),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(p.PlanID), Quantity: stripe.Int64(1)},
		},
	}
	params.AddMetadata("owner_id", p.OwnerID)
	params.AddMetadata("plan_name", p.PlanName)
	params.AddMetadata("amount", p.Amount)

	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return &Session{ID: sess.ID, URL: sess.URL}, nil
}

// CreatePortalSession opens the billing portal for an existing customer.
func (s *StripeProcessor) CreatePortalSession(ctx context.Context, customerID, returnURL string) (*Session, error) {
	sess, err := s.api.BillingPortalSessions.New(&stripe.BillingPortalSessionParams{
		Params:    stripe.Params{Context: ctx},
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	})
	if err != nil {
		return nil, fmt.Errorf("create portal session: %w", err)
	}
	return &Session{ID: sess.ID, URL: sess.URL}, nil
}

// GetSubscription fetches the authoritative subscription state.
func (s *StripeProcessor) GetSubscription(ctx context.Context, id string) (*ProcessorSubscription, error) {
	sub, err := s.api.Subscriptions.Get(id, &stripe.SubscriptionParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, fmt.Errorf("get subscription %s: %w", id, err)
	}

	out := &ProcessorSubscription{
		ID:                 sub.ID,
		Status:             model.SubscriptionStatus(sub.Status),
		CurrentPeriodStart: time.Unix(sub.CurrentPeriodStart, 0),
		CurrentPeriodEnd:   time.Unix(sub.CurrentPeriodEnd, 0),
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		out.PlanID = sub.Items.Data[0].Price.ID
	}
	return out, nil
}
