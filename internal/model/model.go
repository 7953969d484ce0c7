// Package model contains GORM model definitions shared across packages.
// All models are driver-agnostic: they work with both PostgreSQL and SQLite.
package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AccountKind discriminates the three account variants. Exactly one kind
// is recorded per account row.
type AccountKind string

const (
	KindIndividual   AccountKind = "individual"
	KindOrganization AccountKind = "organization"
	KindClient       AccountKind = "client"
)

// IsOwner reports whether the kind may invite clients and hold a subscription.
func (k AccountKind) IsOwner() bool {
	return k == KindIndividual || k == KindOrganization
}

// Account is the GORM model for the accounts table. It is the single
// tagged-variant identity type: owner variants (individual, organization)
// carry a storage bucket and OTP fields, the client variant carries a
// storage folder plus a back-reference to its inviter.
type Account struct {
	ID               string      `gorm:"type:text;primaryKey"`
	Kind             AccountKind `gorm:"type:text;not null;index"`
	Name             string      `gorm:"type:text;not null"` // normalized: lowercase, no spaces
	DisplayName      string      `gorm:"type:text;not null"`
	OrganizationName string      `gorm:"type:text;not null;default:''"`
	Email            string      `gorm:"type:text;not null;index"`
	PhoneNumber      string      `gorm:"type:text;not null;default:''"`
	PasswordHash     string      `gorm:"type:text;not null"`

	EmailVerified bool   `gorm:"not null;default:false"`
	OTPCode       string `gorm:"type:text;not null;default:''"`
	OTPExpiresAt  *time.Time

	// Owner variants: the account's own bucket. Client variant: the
	// inviter's bucket plus the client's subpath inside it.
	StorageBucket string  `gorm:"type:text;not null;default:''"`
	StorageFolder string  `gorm:"type:text;not null;default:''"`
	InviterID     *string `gorm:"type:text;index"`

	ResetTokenHash string `gorm:"type:text;not null;default:''"`
	ResetExpiresAt *time.Time
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (a *Account) BeforeCreate(_ *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return nil
}

// InvitationStatus is the lifecycle state of an invitation.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationExpired  InvitationStatus = "expired"
	InvitationRejected InvitationStatus = "rejected"
)

// Invitation is the GORM model for the invitations table. Invitations are
// stored top-level and keyed by a globally unique token so redemption is a
// single indexed lookup instead of a scan over every owner account. Rows
// are never deleted; re-inviting the same email overwrites the live row in
// place.
type Invitation struct {
	ID           string           `gorm:"type:text;primaryKey"`
	OwnerID      string           `gorm:"type:text;not null;index:idx_invitations_owner_email,unique"`
	InviteeEmail string           `gorm:"type:text;not null;index:idx_invitations_owner_email,unique"`
	Token        string           `gorm:"type:text;not null;uniqueIndex"`
	Status       InvitationStatus `gorm:"type:text;not null;default:'pending'"`
	ClientID     *string          `gorm:"type:text"`
	ExpiresAt    time.Time        `gorm:"not null"`
	CreatedAt    time.Time        `gorm:"not null"`
	UpdatedAt    time.Time        `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (i *Invitation) BeforeCreate(_ *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.New().String()
	}
	return nil
}

// ClientLink is a denormalized snapshot of a client account kept on the
// inviter's side for fast listing. Owned and mutated only by the owner.
type ClientLink struct {
	ID            string    `gorm:"type:text;primaryKey"`
	OwnerID       string    `gorm:"type:text;not null;index"`
	ClientID      string    `gorm:"type:text;not null"`
	Name          string    `gorm:"type:text;not null"`
	Email         string    `gorm:"type:text;not null"`
	StorageFolder string    `gorm:"type:text;not null"`
	StorageBucket string    `gorm:"type:text;not null"`
	CreatedAt     time.Time `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (c *ClientLink) BeforeCreate(_ *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

// Note is a free-form note attached to any account.
type Note struct {
	ID        string    `gorm:"type:text;primaryKey"`
	AccountID string    `gorm:"type:text;not null;index"`
	Title     string    `gorm:"type:text;not null"`
	Content   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (n *Note) BeforeCreate(_ *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	return nil
}

// Document records an uploaded file. ObjectKey is the path inside the
// account's storage bucket; access goes through presigned URLs. ForClient
// marks owner documents that are visible to the owner's clients.
type Document struct {
	ID        string    `gorm:"type:text;primaryKey"`
	AccountID string    `gorm:"type:text;not null;index"`
	Name      string    `gorm:"type:text;not null"`
	ObjectKey string    `gorm:"type:text;not null"`
	ForClient bool      `gorm:"not null;default:false"`
	CreatedAt time.Time `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (d *Document) BeforeCreate(_ *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	return nil
}

// SubscriptionStatus mirrors the payment processor's subscription states.
type SubscriptionStatus string

const (
	SubscriptionActive     SubscriptionStatus = "active"
	SubscriptionTrialing   SubscriptionStatus = "trialing"
	SubscriptionPastDue    SubscriptionStatus = "past_due"
	SubscriptionCanceled   SubscriptionStatus = "canceled"
	SubscriptionUnpaid     SubscriptionStatus = "unpaid"
	SubscriptionIncomplete SubscriptionStatus = "incomplete"
)

// Entitlements is the plan-derived feature/quota snapshot cached on a
// subscription at checkout-completion time.
type Entitlements struct {
	Seats             int  `gorm:"not null;default:1" json:"seats"`
	MonthlyUploads    int  `gorm:"not null;default:100" json:"monthlyUploads"`
	UnlimitedUploads  bool `gorm:"not null;default:false" json:"unlimitedUploads"`
	UnlimitedSeats    bool `gorm:"not null;default:false" json:"unlimitedSeats"`
	AdvancedReporting bool `gorm:"not null;default:false" json:"advancedReporting"`
	APIAccess         bool `gorm:"not null;default:false" json:"apiAccess"`
	DedicatedSupport  bool `gorm:"not null;default:false" json:"dedicatedSupport"`
}

// Subscription is the GORM model for the subscriptions table, one per owner
// account. Status and period fields are a cache of the processor's last
// known state, never the source of truth.
type Subscription struct {
	ID                 string             `gorm:"type:text;primaryKey"`
	OwnerID            string             `gorm:"type:text;not null;uniqueIndex"`
	PlanID             string             `gorm:"type:text;not null"`
	PlanName           string             `gorm:"type:text;not null"`
	CustomerID         string             `gorm:"type:text;not null"`
	SubscriptionID     string             `gorm:"type:text;not null;uniqueIndex"` // processor id
	Status             SubscriptionStatus `gorm:"type:text;not null;default:'active'"`
	CurrentPeriodStart time.Time          `gorm:"not null"`
	CurrentPeriodEnd   time.Time          `gorm:"not null"`
	CancelAtPeriodEnd  bool               `gorm:"not null;default:false"`
	Features           Entitlements       `gorm:"embedded;embeddedPrefix:feature_"`
	Amount             string             `gorm:"type:text;not null;default:''"`
	CreatedAt          time.Time          `gorm:"not null"`
	UpdatedAt          time.Time          `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (s *Subscription) BeforeCreate(_ *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}

// RefreshToken is the GORM model for the refresh_tokens table.
type RefreshToken struct {
	ID        string    `gorm:"type:text;primaryKey"`
	AccountID string    `gorm:"type:text;not null;index"`
	TokenHash string    `gorm:"type:text;not null;uniqueIndex"`
	ExpiresAt time.Time `gorm:"not null"`
	RevokedAt *time.Time
	CreatedAt time.Time `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (rt *RefreshToken) BeforeCreate(_ *gorm.DB) error {
	if rt.ID == "" {
		rt.ID = uuid.New().String()
	}
	return nil
}
