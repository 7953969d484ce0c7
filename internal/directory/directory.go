// Package directory resolves opaque identities to accounts. It is the only
// place that knows how the three account variants (individual, organization,
// client) are discriminated; everything above it works with the resolved
// tagged record.
package directory

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/datacove/datacove/internal/model"
)

// ErrNotFound is returned when no account matches the given identity.
var ErrNotFound = errors.New("account not found")

// Directory looks up accounts by id or email in a single indexed query.
type Directory struct {
	db *gorm.DB
}

// New creates a Directory backed by the given GORM DB.
func New(db *gorm.DB) *Directory {
	return &Directory{db: db}
}

// ByID resolves an account id to its record.
func (d *Directory) ByID(ctx context.Context, id string) (*model.Account, error) {
	var acc model.Account
	if err := d.db.WithContext(ctx).Where("id = ?", id).First(&acc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lookup account by id: %w", err)
	}
	return &acc, nil
}

// ByEmail resolves an email to an account of any kind. Login uses this:
// the original system probed three collections in sequence, here the kind
// tag makes it one query.
func (d *Directory) ByEmail(ctx context.Context, email string) (*model.Account, error) {
	var acc model.Account
	if err := d.db.WithContext(ctx).Where("email = ?", email).First(&acc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lookup account by email: %w", err)
	}
	return &acc, nil
}

// OwnerByEmail resolves an email to an owner-kind account only. Password
// reset is restricted to owners, matching the original flows.
func (d *Directory) OwnerByEmail(ctx context.Context, email string) (*model.Account, error) {
	var acc model.Account
	err := d.db.WithContext(ctx).
		Where("email = ? AND kind IN ?", email, []model.AccountKind{model.KindIndividual, model.KindOrganization}).
		First(&acc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lookup owner by email: %w", err)
	}
	return &acc, nil
}

// Owner resolves an account id and verifies it is an owner kind. Callers
// that issue invitations or hold subscriptions go through this.
func (d *Directory) Owner(ctx context.Context, id string) (*model.Account, error) {
	acc, err := d.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !acc.Kind.IsOwner() {
		return nil, ErrNotFound
	}
	return acc, nil
}
