// Package storage provisions and accesses per-owner object storage. Each
// owner account gets its own bucket with a public-read policy and the base
// folders "private/" and "clients/"; client accounts get a subpath inside
// their inviter's bucket.
package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"
)

// ErrStorageDisabled is returned by the no-op store; callers surface it as
// an external-dependency failure.
var ErrStorageDisabled = errors.New("object storage is not configured")

// ObjectStore is the contract consumed by provisioning and upload flows.
type ObjectStore interface {
	// CreateOwnerBucket creates the owner's bucket, applies the
	// public-read policy, and seeds the base folder markers. Returns the
	// bucket name. Safe to call again for the same owner.
	CreateOwnerBucket(ctx context.Context, ownerID, ownerName string) (string, error)
	// PutMarker writes an empty object so the key prefix exists before
	// any real upload. Idempotent: last write wins on an empty payload.
	PutMarker(ctx context.Context, bucket, key string) error
	// Put uploads an object.
	Put(ctx context.Context, bucket, key string, body io.Reader, contentType string) error
	// PresignGet returns a time-limited public URL for the given object.
	PresignGet(ctx context.Context, bucket, key string, expiry time.Duration) (string, error)
}

// NoopStore stands in when S3 credentials are absent: provisioning and
// uploads fail with ErrStorageDisabled and a log line, mirroring the
// worker-queue fallback used elsewhere in the process.
type NoopStore struct {
	log *slog.Logger
}

// NewNoopStore creates a NoopStore.
func NewNoopStore(log *slog.Logger) *NoopStore {
	return &NoopStore{log: log}
}

func (n *NoopStore) CreateOwnerBucket(_ context.Context, ownerID, _ string) (string, error) {
	n.log.Warn("object storage disabled; owner bucket not created", "owner_id", ownerID)
	return "", ErrStorageDisabled
}

func (n *NoopStore) PutMarker(_ context.Context, bucket, key string) error {
	n.log.Warn("object storage disabled; marker not written", "bucket", bucket, "key", key)
	return ErrStorageDisabled
}

func (n *NoopStore) Put(_ context.Context, bucket, key string, _ io.Reader, _ string) error {
	n.log.Warn("object storage disabled; upload dropped", "bucket", bucket, "key", key)
	return ErrStorageDisabled
}

func (n *NoopStore) PresignGet(_ context.Context, _, _ string, _ time.Duration) (string, error) {
	return "", ErrStorageDisabled
}
