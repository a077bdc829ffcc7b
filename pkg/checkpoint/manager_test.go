package checkpoint

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelkushtia/spotsdk/pkg/metrics"
	"github.com/pavelkushtia/spotsdk/pkg/types"
)

func newTestManager(t *testing.T, maxCheckpoints int, snapshot SnapshotFunc) *Manager {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	mgr, err := NewManager(ManagerOptions{
		Store:          store,
		NodeID:         "node-1",
		Snapshot:       snapshot,
		MaxCheckpoints: maxCheckpoints,
		Metrics:        metrics.New(),
	})
	require.NoError(t, err)
	return mgr
}

// TestManagerRetention verifies that after N saves with max_checkpoints
// = k, exactly the k most-recent records remain, newest first.
func TestManagerRetention(t *testing.T) {
	const saves = 7
	const keep = 3

	mgr := newTestManager(t, keep, nil)
	defer mgr.Close()
	ctx := context.Background()

	var ids []string
	for i := 0; i < saves; i++ {
		record, err := mgr.Save(ctx, []byte(fmt.Sprintf("state-%d", i)), "test")
		require.NoError(t, err)
		ids = append(ids, record.CheckpointID)
		time.Sleep(2 * time.Millisecond) // distinct created_at
	}

	records, err := mgr.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, keep)

	// Newest first, and only the most recent saves survived
	assert.Equal(t, ids[saves-1], records[0].CheckpointID)
	assert.Equal(t, ids[saves-2], records[1].CheckpointID)
	assert.Equal(t, ids[saves-3], records[2].CheckpointID)
	for i := 0; i < len(records)-1; i++ {
		assert.True(t, records[i].CreatedAt.After(records[i+1].CreatedAt) ||
			records[i].CreatedAt.Equal(records[i+1].CreatedAt))
	}
}

// TestManagerLatest verifies Latest returns the newest owned record
func TestManagerLatest(t *testing.T) {
	mgr := newTestManager(t, 10, nil)
	defer mgr.Close()
	ctx := context.Background()

	_, err := mgr.Latest(ctx)
	assert.ErrorIs(t, err, types.ErrCheckpointNotFound)

	_, err = mgr.Save(ctx, []byte("one"), "test")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := mgr.Save(ctx, []byte("two"), "test")
	require.NoError(t, err)

	latest, err := mgr.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.CheckpointID, latest.CheckpointID)
}

// slowStore injects latency into Save and counts in-flight saves so
// tests can prove writers never interleave.
type slowStore struct {
	Store
	delay    time.Duration
	inFlight int32
	maxSeen  int32
}

func (s *slowStore) Save(ctx context.Context, record *types.CheckpointRecord) error {
	current := atomic.AddInt32(&s.inFlight, 1)
	defer atomic.AddInt32(&s.inFlight, -1)

	for {
		seen := atomic.LoadInt32(&s.maxSeen)
		if current <= seen || atomic.CompareAndSwapInt32(&s.maxSeen, seen, current) {
			break
		}
	}

	time.Sleep(s.delay)
	return s.Store.Save(ctx, record)
}

// TestManagerSaveExclusion verifies the per-node save lock: concurrent
// periodic-style and emergency-style saves never overlap.
func TestManagerSaveExclusion(t *testing.T) {
	inner, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	slow := &slowStore{Store: inner, delay: 20 * time.Millisecond}

	mgr, err := NewManager(ManagerOptions{
		Store:          slow,
		NodeID:         "node-1",
		MaxCheckpoints: 100,
	})
	require.NoError(t, err)
	defer mgr.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reason := "periodic"
			if i%2 == 0 {
				reason = "emergency"
			}
			_, err := mgr.Save(context.Background(), []byte("state"), reason)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&slow.maxSeen),
		"at most one save may be in flight per owner node")

	records, err := mgr.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 8)
}

// TestManagerSnapshotFailure verifies snapshot errors surface as
// checkpoint errors.
func TestManagerSnapshotFailure(t *testing.T) {
	mgr := newTestManager(t, 3, func(ctx context.Context) ([]byte, error) {
		return nil, fmt.Errorf("application not ready")
	})
	defer mgr.Close()

	_, err := mgr.SaveSnapshot(context.Background(), "test")
	require.Error(t, err)
	assert.Equal(t, types.ErrKindCheckpoint, types.KindOf(err))
}

// TestManagerPeriodicLoop verifies the periodic writer saves on its own
// timer and stops cleanly.
func TestManagerPeriodicLoop(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	var snapshots int32
	mgr, err := NewManager(ManagerOptions{
		Store:  store,
		NodeID: "node-1",
		Snapshot: func(ctx context.Context) ([]byte, error) {
			atomic.AddInt32(&snapshots, 1)
			return []byte("state"), nil
		},
		Interval:       20 * time.Millisecond,
		MaxCheckpoints: 100,
	})
	require.NoError(t, err)

	mgr.Start()
	time.Sleep(110 * time.Millisecond)
	mgr.Stop()

	// Let any in-flight tick finish before taking the baseline
	time.Sleep(50 * time.Millisecond)
	count := atomic.LoadInt32(&snapshots)
	assert.GreaterOrEqual(t, count, int32(2))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, count, atomic.LoadInt32(&snapshots), "loop kept running after Stop")
}
