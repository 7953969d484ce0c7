package invite

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/datacove/datacove/internal/auth"
	"github.com/datacove/datacove/internal/directory"
	"github.com/datacove/datacove/internal/model"
	"github.com/datacove/datacove/internal/provision"
	"github.com/datacove/datacove/internal/worker"
)

type memQueue struct {
	sent []worker.EmailArgs
}

func (q *memQueue) Start(context.Context) error { return nil }
func (q *memQueue) Stop(context.Context) error  { return nil }
func (q *memQueue) Enqueue(_ context.Context, args worker.EmailArgs) error {
	q.sent = append(q.sent, args)
	return nil
}

type memStore struct{}

func (memStore) CreateOwnerBucket(context.Context, string, string) (string, error) { return "", nil }
func (memStore) PutMarker(context.Context, string, string) error                   { return nil }
func (memStore) Put(context.Context, string, string, io.Reader, string) error      { return nil }
func (memStore) PresignGet(context.Context, string, string, time.Duration) (string, error) {
	return "", nil
}

func newTestLedger(t *testing.T) (*Ledger, *gorm.DB, *memQueue) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Account{}, &model.Invitation{}, &model.ClientLink{}))

	log := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	dir := directory.New(db)
	prov := provision.New(db, memStore{}, log)
	queue := &memQueue{}
	return New(db, dir, prov, queue, "http://localhost:5173", log), db, queue
}

func seedOwner(t *testing.T, db *gorm.DB) *model.Account {
	t.Helper()
	owner := &model.Account{
		Kind:          model.KindOrganization,
		Name:          "acme",
		DisplayName:   "Acme",
		Email:         "billing@acme.test",
		PasswordHash:  "x",
		StorageBucket: "user-acme-1-documents",
	}
	require.NoError(t, db.Create(owner).Error)
	return owner
}

func TestIssue_CreatesPendingWithWindow(t *testing.T) {
	ledger, db, queue := newTestLedger(t)
	owner := seedOwner(t, db)

	before := time.Now()
	inv, err := ledger.Issue(context.Background(), owner.ID, "Jane", "jane@client.test")
	require.NoError(t, err)

	assert.Equal(t, model.InvitationPending, inv.Status)
	assert.Len(t, inv.Token, 40) // 20 random bytes, hex encoded
	assert.WithinDuration(t, before.Add(TTL), inv.ExpiresAt, 5*time.Second)

	require.Len(t, queue.sent, 1)
	assert.Equal(t, "jane@client.test", queue.sent[0].To)
	assert.Contains(t, queue.sent[0].Text, inv.Token)
}

func TestIssue_ReinviteOverwritesInPlace(t *testing.T) {
	ledger, db, _ := newTestLedger(t)
	owner := seedOwner(t, db)
	ctx := context.Background()

	first, err := ledger.Issue(ctx, owner.ID, "Jane", "jane@client.test")
	require.NoError(t, err)
	second, err := ledger.Issue(ctx, owner.ID, "Jane", "jane@client.test")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.NotEqual(t, first.Token, second.Token)
	assert.True(t, second.ExpiresAt.After(first.ExpiresAt) || second.ExpiresAt.Equal(first.ExpiresAt))

	// the old token is dead: only one redeemable row per owner and invitee
	var count int64
	require.NoError(t, db.Model(&model.Invitation{}).
		Where("owner_id = ? AND invitee_email = ?", owner.ID, "jane@client.test").
		Count(&count).Error)
	assert.EqualValues(t, 1, count)
	_, err = ledger.Resolve(ctx, first.Token)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIssue_RejectsNonOwnerAndExistingAccount(t *testing.T) {
	ledger, db, _ := newTestLedger(t)
	owner := seedOwner(t, db)
	ctx := context.Background()

	client := &model.Account{
		Kind: model.KindClient, Name: "bob", DisplayName: "Bob",
		Email: "bob@client.test", PasswordHash: "x",
	}
	require.NoError(t, db.Create(client).Error)

	_, err := ledger.Issue(ctx, client.ID, "Jane", "jane@client.test")
	assert.ErrorIs(t, err, directory.ErrNotFound)

	_, err = ledger.Issue(ctx, owner.ID, "Bob", "bob@client.test")
	assert.ErrorIs(t, err, ErrAlreadyClient)
}

func TestResolve_LazyExpiryPersists(t *testing.T) {
	ledger, db, _ := newTestLedger(t)
	owner := seedOwner(t, db)
	ctx := context.Background()

	inv, err := ledger.Issue(ctx, owner.ID, "Jane", "jane@client.test")
	require.NoError(t, err)

	require.NoError(t, db.Model(&model.Invitation{}).Where("id = ?", inv.ID).
		Update("expires_at", time.Now().Add(-time.Minute)).Error)

	res, err := ledger.Resolve(ctx, inv.Token)
	assert.ErrorIs(t, err, ErrExpired)
	require.NotNil(t, res)
	assert.Equal(t, model.InvitationExpired, res.Invitation.Status)

	var stored model.Invitation
	require.NoError(t, db.First(&stored, "id = ?", inv.ID).Error)
	assert.Equal(t, model.InvitationExpired, stored.Status)

	// second read hits the repaired row, same answer
	_, err = ledger.Resolve(ctx, inv.Token)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestResolve_ReturnsInviterName(t *testing.T) {
	ledger, db, _ := newTestLedger(t)
	owner := seedOwner(t, db)

	inv, err := ledger.Issue(context.Background(), owner.ID, "Jane", "jane@client.test")
	require.NoError(t, err)

	res, err := ledger.Resolve(context.Background(), inv.Token)
	require.NoError(t, err)
	assert.Equal(t, "Acme", res.InviterName)
	assert.Equal(t, "jane@client.test", res.Invitation.InviteeEmail)
}

func TestRedeem_HappyPath(t *testing.T) {
	ledger, db, _ := newTestLedger(t)
	owner := seedOwner(t, db)
	ctx := context.Background()

	inv, err := ledger.Issue(ctx, owner.ID, "Jane", "jane@client.test")
	require.NoError(t, err)

	client, err := ledger.Redeem(ctx, inv.Token, "Jane Doe", "jane@client.test", "jane-secret-1")
	require.NoError(t, err)
	assert.Equal(t, model.KindClient, client.Kind)
	assert.Equal(t, owner.StorageBucket, client.StorageBucket)

	var stored model.Invitation
	require.NoError(t, db.First(&stored, "id = ?", inv.ID).Error)
	assert.Equal(t, model.InvitationAccepted, stored.Status)
	require.NotNil(t, stored.ClientID)
	assert.Equal(t, client.ID, *stored.ClientID)

	var link model.ClientLink
	require.NoError(t, db.First(&link, "owner_id = ?", owner.ID).Error)
	assert.Equal(t, client.ID, link.ClientID)
	assert.Equal(t, client.StorageFolder, link.StorageFolder)

	// the same token cannot be redeemed twice
	_, err = ledger.Redeem(ctx, inv.Token, "Jane Doe", "jane@client.test", "jane-secret-1")
	assert.ErrorIs(t, err, ErrAlreadyUsed)
}

func TestRedeem_Guards(t *testing.T) {
	ledger, db, _ := newTestLedger(t)
	owner := seedOwner(t, db)
	ctx := context.Background()

	inv, err := ledger.Issue(ctx, owner.ID, "Jane", "jane@client.test")
	require.NoError(t, err)

	_, err = ledger.Redeem(ctx, "deadbeef", "Jane", "jane@client.test", "jane-secret-1")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = ledger.Redeem(ctx, inv.Token, "Jane", "other@client.test", "jane-secret-1")
	assert.ErrorIs(t, err, ErrEmailMismatch)

	_, err = ledger.Redeem(ctx, inv.Token, "Jane", "jane@client.test", "short")
	assert.ErrorIs(t, err, auth.ErrWeakPassword)

	require.NoError(t, db.Model(&model.Invitation{}).Where("id = ?", inv.ID).
		Update("expires_at", time.Now().Add(-time.Minute)).Error)
	_, err = ledger.Redeem(ctx, inv.Token, "Jane", "jane@client.test", "jane-secret-1")
	assert.ErrorIs(t, err, ErrExpired)
}

func TestListForOwner_RepairsLapsedInvitations(t *testing.T) {
	ledger, db, _ := newTestLedger(t)
	owner := seedOwner(t, db)
	ctx := context.Background()

	_, err := ledger.Issue(ctx, owner.ID, "Jane", "jane@client.test")
	require.NoError(t, err)
	stale, err := ledger.Issue(ctx, owner.ID, "Ken", "ken@client.test")
	require.NoError(t, err)
	require.NoError(t, db.Model(&model.Invitation{}).Where("id = ?", stale.ID).
		Update("expires_at", time.Now().Add(-time.Minute)).Error)

	accepted, err := ledger.Issue(ctx, owner.ID, "Ada", "ada@client.test")
	require.NoError(t, err)
	_, err = ledger.Redeem(ctx, accepted.Token, "Ada", "ada@client.test", "ada-secret-1")
	require.NoError(t, err)

	links, invs, err := ledger.ListForOwner(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "ada@client.test", links[0].Email)

	statuses := map[string]model.InvitationStatus{}
	for _, inv := range invs {
		statuses[inv.InviteeEmail] = inv.Status
	}
	assert.Equal(t, model.InvitationPending, statuses["jane@client.test"])
	assert.Equal(t, model.InvitationExpired, statuses["ken@client.test"])
	assert.NotContains(t, statuses, "ada@client.test")
}

func TestGenerateInviteToken_Unique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 256; i++ {
		tok, err := auth.GenerateInviteToken()
		require.NoError(t, err)
		require.Len(t, tok, 40)
		require.False(t, seen[tok], "duplicate token generated")
		seen[tok] = true
	}
}
