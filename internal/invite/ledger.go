// Package invite implements the invitation ledger: owners issue invitations
// to client email addresses, and clients redeem them to obtain accounts
// linked to the inviter's storage.
package invite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/datacove/datacove/internal/auth"
	"github.com/datacove/datacove/internal/directory"
	"github.com/datacove/datacove/internal/mailer"
	"github.com/datacove/datacove/internal/model"
	"github.com/datacove/datacove/internal/provision"
	"github.com/datacove/datacove/internal/worker"
)

// TTL is how long an invitation stays redeemable after (re-)issue.
const TTL = 72 * time.Hour

var (
	// ErrNotFound means no invitation carries the given token.
	ErrNotFound = errors.New("invitation not found")
	// ErrExpired means the invitation's redemption window has passed.
	ErrExpired = errors.New("invitation expired")
	// ErrAlreadyUsed means the invitation was already accepted or rejected.
	ErrAlreadyUsed = errors.New("invitation already used")
	// ErrEmailMismatch means redemption was attempted with an email other
	// than the one the invitation was issued to.
	ErrEmailMismatch = errors.New("email does not match invitation")
	// ErrAlreadyClient means the invitee already holds an account.
	ErrAlreadyClient = errors.New("an account with this email already exists")
)

// Resolution is the public view of an invitation returned to the accept page.
type Resolution struct {
	Invitation  *model.Invitation
	InviterName string
}

// Ledger owns the invitation lifecycle.
type Ledger struct {
	db          *gorm.DB
	dir         *directory.Directory
	prov        *provision.Provisioner
	queue       worker.Queue
	frontendURL string
	log         *slog.Logger
}

// New creates a Ledger.
func New(db *gorm.DB, dir *directory.Directory, prov *provision.Provisioner, queue worker.Queue, frontendURL string, log *slog.Logger) *Ledger {
	return &Ledger{db: db, dir: dir, prov: prov, queue: queue, frontendURL: frontendURL, log: log}
}

// Issue creates or refreshes the invitation from ownerID to email. Re-inviting
// an address with a live (pending or expired) invitation overwrites that row
// in place with a fresh token and a fresh 72 hour window, so at most one
// redeemable token per owner and invitee exists at any time. Invitations
// whose client already signed up cannot be re-issued.
//
// The invitation email is dispatched after the row is committed; delivery
// failures are logged and do not fail the issue.
func (l *Ledger) Issue(ctx context.Context, ownerID, clientName, email string) (*model.Invitation, error) {
	owner, err := l.dir.Owner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := l.dir.ByEmail(ctx, email); err == nil {
		return nil, ErrAlreadyClient
	} else if !errors.Is(err, directory.ErrNotFound) {
		return nil, err
	}

	token, err := auth.GenerateInviteToken()
	if err != nil {
		return nil, err
	}
	now := time.Now()

	var inv model.Invitation
	err = l.db.WithContext(ctx).
		Where("owner_id = ? AND invitee_email = ?", owner.ID, email).
		First(&inv).Error
	switch {
	case err == nil:
		if inv.Status == model.InvitationAccepted {
			return nil, ErrAlreadyUsed
		}
		inv.Token = token
		inv.Status = model.InvitationPending
		inv.ExpiresAt = now.Add(TTL)
		inv.UpdatedAt = now
		if err := l.db.WithContext(ctx).Save(&inv).Error; err != nil {
			return nil, fmt.Errorf("refresh invitation: %w", err)
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		inv = model.Invitation{
			OwnerID:      owner.ID,
			InviteeEmail: email,
			Token:        token,
			Status:       model.InvitationPending,
			ExpiresAt:    now.Add(TTL),
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := l.db.WithContext(ctx).Create(&inv).Error; err != nil {
			return nil, fmt.Errorf("create invitation: %w", err)
		}
	default:
		return nil, fmt.Errorf("lookup invitation: %w", err)
	}

	link := fmt.Sprintf("%s/accept-invitation?token=%s", l.frontendURL, token)
	msg := mailer.InvitationEmail(email, owner.DisplayName, link)
	if err := l.queue.Enqueue(ctx, worker.EmailArgs{To: msg.To, Subject: msg.Subject, Text: msg.Text, HTML: msg.HTML}); err != nil {
		l.log.Warn("invitation email dispatch failed", "invitation_id", inv.ID, "error", err)
	}

	l.log.Info("invitation issued", "invitation_id", inv.ID, "owner_id", owner.ID)
	return &inv, nil
}

// Resolve looks up an invitation by token for the public accept page. A
// pending invitation whose window has lapsed is repaired to expired on read
// before ErrExpired is returned; the repaired row rides back alongside the
// error so handlers can still render it.
func (l *Ledger) Resolve(ctx context.Context, token string) (*Resolution, error) {
	inv, err := l.byToken(ctx, token)
	if err != nil {
		return nil, err
	}

	res := &Resolution{Invitation: inv}
	if owner, err := l.dir.ByID(ctx, inv.OwnerID); err == nil {
		res.InviterName = owner.DisplayName
	}

	switch {
	case inv.Status == model.InvitationPending && time.Now().After(inv.ExpiresAt):
		if err := l.expire(ctx, inv); err != nil {
			return nil, err
		}
		return res, ErrExpired
	case inv.Status == model.InvitationExpired:
		return res, ErrExpired
	case inv.Status != model.InvitationPending:
		return res, ErrAlreadyUsed
	}
	return res, nil
}

// Redeem turns a pending invitation into a client account. The client row,
// the invitation transition to accepted and the owner's client link commit
// in one transaction.
func (l *Ledger) Redeem(ctx context.Context, token, name, email, password string) (*model.Account, error) {
	inv, err := l.byToken(ctx, token)
	if err != nil {
		return nil, err
	}

	if inv.Status == model.InvitationPending && time.Now().After(inv.ExpiresAt) {
		if err := l.expire(ctx, inv); err != nil {
			return nil, err
		}
		return nil, ErrExpired
	}
	switch inv.Status {
	case model.InvitationPending:
	case model.InvitationExpired:
		return nil, ErrExpired
	default:
		return nil, ErrAlreadyUsed
	}

	email = strings.ToLower(strings.TrimSpace(email))
	if email != inv.InviteeEmail {
		return nil, ErrEmailMismatch
	}
	if len(password) < auth.MinPasswordLen {
		return nil, auth.ErrWeakPassword
	}
	if _, err := l.dir.ByEmail(ctx, email); err == nil {
		return nil, ErrAlreadyClient
	} else if !errors.Is(err, directory.ErrNotFound) {
		return nil, err
	}

	owner, err := l.dir.Owner(ctx, inv.OwnerID)
	if err != nil {
		return nil, err
	}

	var client *model.Account
	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		client, err = l.prov.CreateClient(ctx, tx, owner, name, email, password)
		if err != nil {
			return err
		}
		now := time.Now()
		inv.Status = model.InvitationAccepted
		inv.ClientID = &client.ID
		inv.UpdatedAt = now
		if err := tx.Save(inv).Error; err != nil {
			return fmt.Errorf("accept invitation: %w", err)
		}
		link := model.ClientLink{
			OwnerID:       owner.ID,
			ClientID:      client.ID,
			Name:          client.DisplayName,
			Email:         client.Email,
			StorageFolder: client.StorageFolder,
			StorageBucket: client.StorageBucket,
			CreatedAt:     now,
		}
		if err := tx.Create(&link).Error; err != nil {
			return fmt.Errorf("record client link: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.log.Info("invitation redeemed", "invitation_id", inv.ID, "client_id", client.ID)
	return client, nil
}

// ListForOwner returns the owner's client links and every invitation that has
// not yet produced a client, repairing lapsed pending rows to expired as a
// side effect of the read.
func (l *Ledger) ListForOwner(ctx context.Context, ownerID string) ([]model.ClientLink, []model.Invitation, error) {
	var links []model.ClientLink
	if err := l.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("created_at desc").Find(&links).Error; err != nil {
		return nil, nil, fmt.Errorf("list clients: %w", err)
	}

	var invs []model.Invitation
	if err := l.db.WithContext(ctx).
		Where("owner_id = ? AND status <> ?", ownerID, model.InvitationAccepted).
		Order("created_at desc").
		Find(&invs).Error; err != nil {
		return nil, nil, fmt.Errorf("list invitations: %w", err)
	}

	now := time.Now()
	for i := range invs {
		if invs[i].Status == model.InvitationPending && now.After(invs[i].ExpiresAt) {
			if err := l.expire(ctx, &invs[i]); err != nil {
				return nil, nil, err
			}
		}
	}
	return links, invs, nil
}

func (l *Ledger) byToken(ctx context.Context, token string) (*model.Invitation, error) {
	var inv model.Invitation
	err := l.db.WithContext(ctx).Where("token = ?", token).First(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup invitation: %w", err)
	}
	return &inv, nil
}

func (l *Ledger) expire(ctx context.Context, inv *model.Invitation) error {
	inv.Status = model.InvitationExpired
	inv.UpdatedAt = time.Now()
	if err := l.db.WithContext(ctx).Save(inv).Error; err != nil {
		return fmt.Errorf("expire invitation: %w", err)
	}
	return nil
}
