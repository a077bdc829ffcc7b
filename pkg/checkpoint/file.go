package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pavelkushtia/spotsdk/pkg/types"
)

// FileStore keeps checkpoints as JSON files in a local directory. Meant
// for development, testing, and single-node deployments; durable object
// storage lives behind the same Store contract.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed and returns a store
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(checkpointID string) string {
	return filepath.Join(s.dir, checkpointID+".json")
}

// Save writes a new record. An existing checkpoint ID is an error:
// records are immutable once written.
func (s *FileStore) Save(ctx context.Context, record *types.CheckpointRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := s.path(record.CheckpointID)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("checkpoint already exists: %s", record.CheckpointID)
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	// Write to a temp file then rename so readers never see a partial
	// record.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to finalize checkpoint: %w", err)
	}
	return nil
}

// Load reads a full record including the payload
func (s *FileStore) Load(ctx context.Context, checkpointID string) (*types.CheckpointRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(checkpointID))
	if os.IsNotExist(err) {
		return nil, types.ErrCheckpointNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var record types.CheckpointRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	return &record, nil
}

// List returns metadata for all records, newest first
func (s *FileStore) List(ctx context.Context) ([]*types.CheckpointRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint directory: %w", err)
	}

	var records []*types.CheckpointRecord
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			continue
		}
		var record types.CheckpointRecord
		if err := json.Unmarshal(data, &record); err != nil {
			continue
		}
		records = append(records, stripPayload(&record))
	}

	sortNewestFirst(records)
	return records, nil
}

// Delete removes a record; deleting a missing record is not an error
func (s *FileStore) Delete(ctx context.Context, checkpointID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := os.Remove(s.path(checkpointID))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Close is a no-op for the file backend
func (s *FileStore) Close() error {
	return nil
}
