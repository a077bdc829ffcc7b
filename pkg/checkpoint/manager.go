package checkpoint

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pavelkushtia/spotsdk/pkg/log"
	"github.com/pavelkushtia/spotsdk/pkg/metrics"
	"github.com/pavelkushtia/spotsdk/pkg/types"
)

// SnapshotFunc captures the protected application's current state as an
// opaque byte sequence. The serialization format is the application's
// concern; the SDK never interprets the bytes.
type SnapshotFunc func(ctx context.Context) ([]byte, error)

// Manager owns the checkpoint lifecycle for one node: periodic saves to
// bound recovery-point staleness, emergency saves during a termination
// reaction, and retention pruning after each successful save.
//
// Periodic and emergency writers are mutually exclusive through the
// per-node save mutex; the store itself stays free for concurrent
// readers while a save is in flight.
type Manager struct {
	store    Store
	nodeID   string
	snapshot SnapshotFunc

	interval       time.Duration
	maxCheckpoints int
	metrics        *metrics.Metrics

	saveMu sync.Mutex

	stopCh  chan struct{}
	stopped sync.Once
}

// ManagerOptions configures a checkpoint Manager
type ManagerOptions struct {
	Store          Store
	NodeID         string
	Snapshot       SnapshotFunc
	Interval       time.Duration // zero disables the periodic writer
	MaxCheckpoints int
	Metrics        *metrics.Metrics
}

// NewManager creates a checkpoint manager
func NewManager(opts ManagerOptions) (*Manager, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("checkpoint store is required")
	}
	if opts.NodeID == "" {
		return nil, fmt.Errorf("node ID is required")
	}
	if opts.MaxCheckpoints < 1 {
		opts.MaxCheckpoints = 1
	}
	return &Manager{
		store:          opts.Store,
		nodeID:         opts.NodeID,
		snapshot:       opts.Snapshot,
		interval:       opts.Interval,
		maxCheckpoints: opts.MaxCheckpoints,
		metrics:        opts.Metrics,
		stopCh:         make(chan struct{}),
	}, nil
}

// Start begins the periodic checkpoint loop. It is independent of the
// termination state machine and exists only to bound how stale the
// latest recovery point can get.
func (m *Manager) Start() {
	if m.interval <= 0 || m.snapshot == nil {
		return
	}
	go m.run()
}

// Stop stops the periodic loop
func (m *Manager) Stop() {
	m.stopped.Do(func() {
		close(m.stopCh)
	})
}

func (m *Manager) run() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	logger := log.WithComponent("checkpoint")
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), m.interval)
			if _, err := m.SaveSnapshot(ctx, "periodic"); err != nil {
				logger.Error().Err(err).Msg("periodic checkpoint failed")
			}
			cancel()
		case <-m.stopCh:
			return
		}
	}
}

// SaveSnapshot captures application state via the snapshot callback and
// persists it. Used by both the periodic writer and the emergency path.
func (m *Manager) SaveSnapshot(ctx context.Context, reason string) (*types.CheckpointRecord, error) {
	if m.snapshot == nil {
		return nil, types.NewCheckpointError(fmt.Errorf("no snapshot callback configured"))
	}
	payload, err := m.snapshot(ctx)
	if err != nil {
		return nil, types.NewCheckpointError(fmt.Errorf("snapshot callback failed: %w", err))
	}
	return m.Save(ctx, payload, reason)
}

// Save persists an opaque payload as a new immutable record, then
// prunes records beyond the retention limit. Pruning failure is logged,
// never fatal.
func (m *Manager) Save(ctx context.Context, payload []byte, reason string) (*types.CheckpointRecord, error) {
	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	record := &types.CheckpointRecord{
		CheckpointID: newCheckpointID(),
		CreatedAt:    time.Now().UTC(),
		OwnerNodeID:  m.nodeID,
		Payload:      payload,
		PayloadSize:  int64(len(payload)),
		ContentHash:  ContentHash(payload),
		SDKMetadata:  map[string]string{"reason": reason},
	}

	logger := log.WithCheckpointID(record.CheckpointID)
	if err := m.store.Save(ctx, record); err != nil {
		return nil, types.NewCheckpointError(err)
	}
	if m.metrics != nil {
		m.metrics.CheckpointSaves.Inc()
	}
	logger.Info().
		Str("reason", reason).
		Int64("payload_size", record.PayloadSize).
		Msg("checkpoint saved")

	if err := m.prune(ctx); err != nil {
		logger.Warn().Err(err).Msg("checkpoint pruning failed")
	}
	return record, nil
}

// Load fetches a record by ID
func (m *Manager) Load(ctx context.Context, checkpointID string) (*types.CheckpointRecord, error) {
	record, err := m.store.Load(ctx, checkpointID)
	if err != nil {
		return nil, types.NewCheckpointError(err)
	}
	if m.metrics != nil {
		m.metrics.CheckpointLoads.Inc()
	}
	return record, nil
}

// List returns record metadata, newest first
func (m *Manager) List(ctx context.Context) ([]*types.CheckpointRecord, error) {
	return m.store.List(ctx)
}

// Delete removes a record by ID
func (m *Manager) Delete(ctx context.Context, checkpointID string) error {
	return m.store.Delete(ctx, checkpointID)
}

// Latest returns the newest record metadata for this node, or
// ErrCheckpointNotFound when none exists.
func (m *Manager) Latest(ctx context.Context) (*types.CheckpointRecord, error) {
	records, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, record := range records {
		if record.OwnerNodeID == m.nodeID {
			return record, nil
		}
	}
	return nil, types.ErrCheckpointNotFound
}

// Close stops the periodic loop and closes the store
func (m *Manager) Close() error {
	m.Stop()
	return m.store.Close()
}

// prune removes records beyond maxCheckpoints, oldest first
func (m *Manager) prune(ctx context.Context) error {
	records, err := m.store.List(ctx)
	if err != nil {
		return err
	}

	var owned []*types.CheckpointRecord
	for _, record := range records {
		if record.OwnerNodeID == m.nodeID {
			owned = append(owned, record)
		}
	}
	if len(owned) <= m.maxCheckpoints {
		return nil
	}

	// List is newest first, so everything past the limit goes
	for _, record := range owned[m.maxCheckpoints:] {
		if err := m.store.Delete(ctx, record.CheckpointID); err != nil {
			return fmt.Errorf("failed to delete %s: %w", record.CheckpointID, err)
		}
	}
	return nil
}

// newCheckpointID builds a unique ID with a millisecond timestamp
// prefix so lexical order roughly tracks creation order.
func newCheckpointID() string {
	return fmt.Sprintf("%013d-%s", time.Now().UnixMilli(), uuid.New().String()[:8])
}
