// Package billing implements the subscription ledger: checkout initiation,
// webhook-driven lifecycle transitions and reconciliation reads. The local
// subscriptions table is a cache of the processor's state, never the source
// of truth.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/datacove/datacove/internal/directory"
	"github.com/datacove/datacove/internal/model"
)

var (
	// ErrNoSubscription means the owner has no subscription on record.
	ErrNoSubscription = errors.New("no subscription found")
	// ErrBillingDisabled means no processor credentials are configured.
	ErrBillingDisabled = errors.New("billing is not configured")
)

// Ledger owns the subscription lifecycle.
type Ledger struct {
	db            *gorm.DB
	dir           *directory.Directory
	proc          Processor
	webhookSecret string
	frontendURL   string
	log           *slog.Logger
}

// New creates a Ledger. proc may be nil when billing is not configured, in
// which case StartCheckout and Current return ErrBillingDisabled.
func New(db *gorm.DB, dir *directory.Directory, proc Processor, webhookSecret, frontendURL string, log *slog.Logger) *Ledger {
	return &Ledger{db: db, dir: dir, proc: proc, webhookSecret: webhookSecret, frontendURL: frontendURL, log: log}
}

// StartCheckout opens a hosted payment page for the owner. With
// intent="manage" and an existing subscription it opens the billing portal
// instead of a new checkout, so plan changes and cancellations go through
// the processor's own UI.
func (l *Ledger) StartCheckout(ctx context.Context, ownerID, planID, planName, amount, intent string) (*Session, error) {
	if l.proc == nil {
		return nil, ErrBillingDisabled
	}
	owner, err := l.dir.Owner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	if intent == "manage" {
		sub, err := l.byOwner(ctx, ownerID)
		if err == nil {
			return l.proc.CreatePortalSession(ctx, sub.CustomerID, l.frontendURL+"/dashboard")
		}
		if !errors.Is(err, ErrNoSubscription) {
			return nil, err
		}
		// no subscription to manage yet, fall through to checkout
	}

	return l.proc.CreateCheckoutSession(ctx, CheckoutParams{
		OwnerID:    owner.ID,
		Email:      owner.Email,
		PlanID:     planID,
		PlanName:   planName,
		Amount:     amount,
		SuccessURL: l.frontendURL + "/dashboard?checkout=success",
		CancelURL:  l.frontendURL + "/pricing?checkout=cancelled",
	})
}

// HandleWebhook verifies and applies one webhook delivery. Signature and
// envelope failures are returned so the transport layer can answer 400;
// everything after that is acknowledged: per-event handler errors are
// logged, and events referencing unknown subscriptions are skipped, because
// the processor retries deliveries and a non-2xx would only replay an event
// we cannot apply.
func (l *Ledger) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	ev, err := ParseEvent(payload, signature, l.webhookSecret)
	if err != nil {
		return err
	}

	var herr error
	switch ev.Type {
	case "checkout.session.completed":
		herr = l.applyCheckoutCompleted(ctx, ev)
	case "customer.subscription.updated":
		herr = l.applySubscriptionUpdated(ctx, ev)
	case "customer.subscription.deleted":
		herr = l.applySubscriptionDeleted(ctx, ev)
	case "invoice.payment_succeeded":
		herr = l.applyPaymentSucceeded(ctx, ev)
	case "invoice.payment_failed":
		herr = l.applyPaymentFailed(ctx, ev)
	default:
		l.log.Debug("unhandled webhook event", "type", ev.Type, "event_id", ev.ID)
	}
	if herr != nil {
		l.log.Error("webhook handler failed", "type", ev.Type, "event_id", ev.ID, "error", herr)
	}
	return nil
}

// applyCheckoutCompleted records a completed checkout as the owner's
// subscription, replacing any previous row. Re-delivery of the same event
// converges on the same row state.
func (l *Ledger) applyCheckoutCompleted(ctx context.Context, ev *Event) error {
	sess, err := decode[checkoutSession](ev)
	if err != nil {
		return err
	}
	ownerID := sess.Metadata["owner_id"]
	if ownerID == "" {
		ownerID = sess.ClientReferenceID
	}
	if ownerID == "" || sess.Subscription == "" {
		l.log.Warn("checkout completed without attribution", "event_id", ev.ID)
		return nil
	}

	planName := sess.Metadata["plan_name"]
	sub := model.Subscription{
		OwnerID:        ownerID,
		PlanName:       planName,
		CustomerID:     sess.Customer,
		SubscriptionID: sess.Subscription,
		Status:         model.SubscriptionActive,
		Features:       FeaturesForPlan(planName),
		Amount:         sess.Metadata["amount"],
	}
	if remote, err := l.proc.GetSubscription(ctx, sess.Subscription); err == nil {
		sub.Status = remote.Status
		sub.CurrentPeriodStart = remote.CurrentPeriodStart
		sub.CurrentPeriodEnd = remote.CurrentPeriodEnd
		sub.CancelAtPeriodEnd = remote.CancelAtPeriodEnd
		sub.PlanID = remote.PlanID
		if sub.CustomerID == "" {
			sub.CustomerID = remote.CustomerID
		}
	} else {
		l.log.Warn("could not enrich subscription from processor", "subscription_id", sess.Subscription, "error", err)
	}

	var existing model.Subscription
	err = l.db.WithContext(ctx).Where("owner_id = ?", ownerID).First(&existing).Error
	switch {
	case err == nil:
		sub.ID = existing.ID
		sub.CreatedAt = existing.CreatedAt
		sub.UpdatedAt = time.Now()
		return l.db.WithContext(ctx).Save(&sub).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		return l.db.WithContext(ctx).Create(&sub).Error
	default:
		return fmt.Errorf("lookup subscription: %w", err)
	}
}

// applySubscriptionUpdated refreshes status, period and the cancellation
// flag. Plan and entitlements only change through checkout completion.
func (l *Ledger) applySubscriptionUpdated(ctx context.Context, ev *Event) error {
	obj, err := decode[subscriptionObject](ev)
	if err != nil {
		return err
	}
	return l.updateBySubscriptionID(ctx, obj.ID, map[string]any{
		"status":               model.SubscriptionStatus(obj.Status),
		"current_period_start": time.Unix(obj.CurrentPeriodStart, 0),
		"current_period_end":   time.Unix(obj.CurrentPeriodEnd, 0),
		"cancel_at_period_end": obj.CancelAtPeriodEnd,
		"updated_at":           time.Now(),
	})
}

func (l *Ledger) applySubscriptionDeleted(ctx context.Context, ev *Event) error {
	obj, err := decode[subscriptionObject](ev)
	if err != nil {
		return err
	}
	return l.updateBySubscriptionID(ctx, obj.ID, map[string]any{
		"status":     model.SubscriptionCanceled,
		"updated_at": time.Now(),
	})
}

// applyPaymentSucceeded refreshes the cached state from the processor, since
// a successful renewal moves the billing period forward.
func (l *Ledger) applyPaymentSucceeded(ctx context.Context, ev *Event) error {
	inv, err := decode[invoiceObject](ev)
	if err != nil {
		return err
	}
	if inv.Subscription == "" {
		return nil
	}
	remote, err := l.proc.GetSubscription(ctx, inv.Subscription)
	if err != nil {
		return err
	}
	return l.updateBySubscriptionID(ctx, inv.Subscription, map[string]any{
		"status":               remote.Status,
		"current_period_start": remote.CurrentPeriodStart,
		"current_period_end":   remote.CurrentPeriodEnd,
		"cancel_at_period_end": remote.CancelAtPeriodEnd,
		"updated_at":           time.Now(),
	})
}

func (l *Ledger) applyPaymentFailed(ctx context.Context, ev *Event) error {
	inv, err := decode[invoiceObject](ev)
	if err != nil {
		return err
	}
	if inv.Subscription == "" {
		return nil
	}
	return l.updateBySubscriptionID(ctx, inv.Subscription, map[string]any{
		"status":     model.SubscriptionPastDue,
		"updated_at": time.Now(),
	})
}

// Current returns the owner's subscription. When a processor is configured
// the cache is reconciled against the authoritative state first, so a
// missed webhook cannot leave a stale status visible indefinitely.
func (l *Ledger) Current(ctx context.Context, ownerID string) (*model.Subscription, error) {
	sub, err := l.byOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if l.proc == nil {
		return sub, nil
	}

	remote, err := l.proc.GetSubscription(ctx, sub.SubscriptionID)
	if err != nil {
		l.log.Warn("reconciliation fetch failed, serving cached state", "subscription_id", sub.SubscriptionID, "error", err)
		return sub, nil
	}
	if sub.Status != remote.Status ||
		!sub.CurrentPeriodStart.Equal(remote.CurrentPeriodStart) ||
		!sub.CurrentPeriodEnd.Equal(remote.CurrentPeriodEnd) ||
		sub.CancelAtPeriodEnd != remote.CancelAtPeriodEnd {
		sub.Status = remote.Status
		sub.CurrentPeriodStart = remote.CurrentPeriodStart
		sub.CurrentPeriodEnd = remote.CurrentPeriodEnd
		sub.CancelAtPeriodEnd = remote.CancelAtPeriodEnd
		sub.UpdatedAt = time.Now()
		if err := l.db.WithContext(ctx).Save(sub).Error; err != nil {
			return nil, fmt.Errorf("reconcile subscription: %w", err)
		}
		l.log.Info("subscription cache reconciled", "subscription_id", sub.SubscriptionID, "status", sub.Status)
	}
	return sub, nil
}

func (l *Ledger) byOwner(ctx context.Context, ownerID string) (*model.Subscription, error) {
	var sub model.Subscription
	err := l.db.WithContext(ctx).Where("owner_id = ?", ownerID).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoSubscription
	}
	if err != nil {
		return nil, fmt.Errorf("lookup subscription: %w", err)
	}
	return &sub, nil
}

func (l *Ledger) updateBySubscriptionID(ctx context.Context, subscriptionID string, fields map[string]any) error {
	res := l.db.WithContext(ctx).Model(&model.Subscription{}).
		Where("subscription_id = ?", subscriptionID).
		Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("update subscription %s: %w", subscriptionID, res.Error)
	}
	if res.RowsAffected == 0 {
		l.log.Debug("webhook for unknown subscription skipped", "subscription_id", subscriptionID)
	}
	return nil
}

func decode[T any](ev *Event) (*T, error) {
	var out T
	if err := json.Unmarshal(ev.Data.Object, &out); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", ev.Type, err)
	}
	return &out, nil
}
