package checkpoint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"github.com/pavelkushtia/spotsdk/pkg/types"
)

// Store is the durable, key-addressed blob store for serialized
// application state. Records are immutable: Save rejects an existing
// checkpoint ID, so readers of prior records are always safe while a
// new save is in flight.
type Store interface {
	Save(ctx context.Context, record *types.CheckpointRecord) error
	Load(ctx context.Context, checkpointID string) (*types.CheckpointRecord, error)
	// List returns record metadata (no payload), newest first.
	List(ctx context.Context) ([]*types.CheckpointRecord, error)
	Delete(ctx context.Context, checkpointID string) error
	Close() error
}

// ContentHash returns the hex SHA-256 of a checkpoint payload
func ContentHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// sortNewestFirst orders records by CreatedAt descending
func sortNewestFirst(records []*types.CheckpointRecord) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
}

// stripPayload returns a metadata-only copy of a record
func stripPayload(r *types.CheckpointRecord) *types.CheckpointRecord {
	meta := *r
	meta.Payload = nil
	meta.PlatformState = nil
	return &meta
}
