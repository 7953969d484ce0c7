// Package provision creates client accounts and their storage folders inside
// the inviting owner's bucket.
package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/datacove/datacove/internal/auth"
	"github.com/datacove/datacove/internal/model"
	"github.com/datacove/datacove/internal/storage"
)

// Provisioner creates client accounts under an owner.
type Provisioner struct {
	db    *gorm.DB
	store storage.ObjectStore
	log   *slog.Logger
}

// New creates a Provisioner.
func New(db *gorm.DB, store storage.ObjectStore, log *slog.Logger) *Provisioner {
	return &Provisioner{db: db, store: store, log: log}
}

// ClientFolder builds the storage prefix for a client inside the owner's
// bucket. The id suffix keeps folders unique across clients with the same
// name.
func ClientFolder(clientName, clientID string) string {
	return fmt.Sprintf("clients/client-%s-%s", model.NormalizeName(clientName), clientID)
}

// CreateClient provisions a client account for owner. The storage folder
// marker is written before the account row so a storage failure never leaves
// a client without a home for its documents. The caller is responsible for
// checking that no account with the client's email already exists.
//
// When tx is non-nil the account insert runs inside it, so invitation
// acceptance can commit the client and the invitation state together.
func (p *Provisioner) CreateClient(ctx context.Context, tx *gorm.DB, owner *model.Account, name, email, password string) (*model.Account, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	folder := ClientFolder(name, id)
	if err := p.store.PutMarker(ctx, owner.StorageBucket, folder+"/"); err != nil {
		if !errors.Is(err, storage.ErrStorageDisabled) {
			return nil, fmt.Errorf("create client folder: %w", err)
		}
		p.log.Warn("client folder not provisioned", "owner_id", owner.ID, "error", err)
	}

	client := &model.Account{
		ID:            id,
		Kind:          model.KindClient,
		Name:          model.NormalizeName(name),
		DisplayName:   name,
		Email:         email,
		PasswordHash:  hash,
		EmailVerified: true, // redeeming the emailed invite proves address ownership
		StorageBucket: owner.StorageBucket,
		StorageFolder: folder,
		InviterID:     &owner.ID,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}

	db := p.db
	if tx != nil {
		db = tx
	}
	if err := db.WithContext(ctx).Create(client).Error; err != nil {
		return nil, fmt.Errorf("create client account: %w", err)
	}

	p.log.Info("client provisioned",
		"client_id", client.ID,
		"owner_id", owner.ID,
		"folder", folder,
	)
	return client, nil
}
