package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/pavelkushtia/spotsdk/pkg/types"
)

var bucketCheckpoints = []byte("checkpoints")

// BoltStore implements Store using an embedded bbolt database. Suited
// to instances with an attached persistent volume: records survive the
// process and can be copied off the node by the replacement.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the checkpoint database in dataDir
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "checkpoints.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCheckpoints)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Save writes a new record, rejecting an existing checkpoint ID
func (s *BoltStore) Save(ctx context.Context, record *types.CheckpointRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCheckpoints)
		if b.Get([]byte(record.CheckpointID)) != nil {
			return fmt.Errorf("checkpoint already exists: %s", record.CheckpointID)
		}
		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		return b.Put([]byte(record.CheckpointID), data)
	})
}

// Load reads a full record including the payload
func (s *BoltStore) Load(ctx context.Context, checkpointID string) (*types.CheckpointRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var record types.CheckpointRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCheckpoints)
		data := b.Get([]byte(checkpointID))
		if data == nil {
			return types.ErrCheckpointNotFound
		}
		return json.Unmarshal(data, &record)
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// List returns metadata for all records, newest first
func (s *BoltStore) List(ctx context.Context) ([]*types.CheckpointRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var records []*types.CheckpointRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCheckpoints)
		return b.ForEach(func(k, v []byte) error {
			var record types.CheckpointRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return err
			}
			records = append(records, stripPayload(&record))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sortNewestFirst(records)
	return records, nil
}

// Delete removes a record; deleting a missing record is not an error
func (s *BoltStore) Delete(ctx context.Context, checkpointID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCheckpoints)
		return b.Delete([]byte(checkpointID))
	})
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}
