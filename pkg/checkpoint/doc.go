/*
Package checkpoint provides durable application state snapshots.

A checkpoint is an immutable record of serialized application state
plus metadata (owner node, content hash, payload size). Records are
never overwritten: a new save always creates a new record, and
retention pruning removes the oldest ones once the per-node limit is
exceeded.

# Architecture

	┌──────────────────── CHECKPOINT SYSTEM ───────────────────┐
	│                                                            │
	│  Manager                                                   │
	│   - periodic writer (checkpoint_interval)                  │
	│   - emergency saves during termination handling            │
	│   - per-node save mutex (one writer at a time)             │
	│   - retention pruning (max_checkpoints, oldest first)      │
	│        │                                                   │
	│        ▼                                                   │
	│  Store interface                                           │
	│   ├─ FileStore       one JSON file per record              │
	│   ├─ BoltStore       bbolt bucket "checkpoints"            │
	│   └─ EncryptedStore  AES-256-GCM decorator over any store  │
	└────────────────────────────────────────────────────────────┘

# Store Semantics

Save rejects an existing checkpoint ID, List returns metadata-only
records newest first, Load returns types.ErrCheckpointNotFound for
missing IDs, and Delete of a missing record is a no-op. The encrypting
decorator keeps the content hash and payload size describing the
plaintext so integrity checks work after decryption.

# Usage

	store, err := checkpoint.NewBoltStore(cfg.StateDir)
	if err != nil {
		return err
	}

	mgr, err := checkpoint.NewManager(checkpoint.ManagerOptions{
		Store:          store,
		NodeID:         cfg.NodeID,
		Snapshot:       app.Snapshot,
		Interval:       cfg.CheckpointInterval,
		MaxCheckpoints: cfg.MaxCheckpoints,
	})
	if err != nil {
		return err
	}
	mgr.Start()
	defer mgr.Close()

	record, err := mgr.SaveSnapshot(ctx, "manual")
*/
package checkpoint
