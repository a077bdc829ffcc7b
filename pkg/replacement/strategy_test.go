package replacement

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelkushtia/spotsdk/pkg/checkpoint"
	"github.com/pavelkushtia/spotsdk/pkg/config"
	"github.com/pavelkushtia/spotsdk/pkg/types"
)

// scriptedDrainer answers ClusterState from a queue of snapshots,
// repeating the last one once the script runs out.
type scriptedDrainer struct {
	mu      sync.Mutex
	states  []*types.ClusterState
	scaleOK bool
	drainOK bool
	scales  []int
	drains  int
}

func (d *scriptedDrainer) Drain(ctx context.Context, notice *types.TerminationNotice) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.drains++
	return d.drainOK
}

func (d *scriptedDrainer) ClusterState(ctx context.Context) *types.ClusterState {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.states) == 0 {
		return &types.ClusterState{}
	}
	state := d.states[0]
	if len(d.states) > 1 {
		d.states = d.states[1:]
	}
	return state
}

func (d *scriptedDrainer) Scale(ctx context.Context, targetCapacity int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scales = append(d.scales, targetCapacity)
	return d.scaleOK
}

func clusterOf(nodes ...string) *types.ClusterState {
	state := &types.ClusterState{
		TotalNodes:   len(nodes),
		HealthyNodes: len(nodes),
		Nodes:        make(map[string]types.NodeState, len(nodes)),
	}
	for _, id := range nodes {
		state.Nodes[id] = types.NodeStateHealthy
	}
	return state
}

func fastPoll(t *testing.T) {
	t.Helper()
	prev := joinPollInterval
	joinPollInterval = 5 * time.Millisecond
	t.Cleanup(func() { joinPollInterval = prev })
}

func rcFor(nodeID string) *types.ReplacementContext {
	return &types.ReplacementContext{
		Notice:           &types.TerminationNotice{CloudProvider: types.CloudProviderAWS, Action: types.ActionTerminate},
		RequiredCapacity: 1,
		InstanceTemplate: map[string]string{"node_id": nodeID},
		StartTime:        time.Now(),
		Attempt:          1,
	}
}

func TestElasticScaleJoins(t *testing.T) {
	fastPoll(t)
	drainer := &scriptedDrainer{
		scaleOK: true,
		states: []*types.ClusterState{
			clusterOf("node-1", "node-2"), // baseline
			clusterOf("node-1", "node-2"), // not joined yet
			clusterOf("node-1", "node-2", "node-3"),
		},
	}

	result := NewElasticScale(drainer).Execute(context.Background(), rcFor("node-1"))

	require.True(t, result.Success)
	assert.Equal(t, []string{"node-3"}, result.ReplacementIDs)
	assert.Equal(t, []int{3}, drainer.scales, "target is baseline total plus required capacity")
}

func TestElasticScaleScaleRejected(t *testing.T) {
	drainer := &scriptedDrainer{scaleOK: false, states: []*types.ClusterState{clusterOf("node-1")}}

	result := NewElasticScale(drainer).Execute(context.Background(), rcFor("node-1"))

	require.False(t, result.Success)
	assert.Equal(t, types.ErrKindReplacement, types.KindOf(result.Err))
}

func TestElasticScaleJoinTimeout(t *testing.T) {
	fastPoll(t)
	drainer := &scriptedDrainer{
		scaleOK: true,
		states:  []*types.ClusterState{clusterOf("node-1")}, // never grows
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	result := NewElasticScale(drainer).Execute(ctx, rcFor("node-1"))

	require.False(t, result.Success)
	assert.Error(t, result.Err)
}

// An unhealthy newcomer does not count as joined
func TestElasticScaleIgnoresUnhealthyJoin(t *testing.T) {
	fastPoll(t)
	sick := clusterOf("node-1")
	sick.Nodes["node-2"] = types.NodeStateDraining
	sick.TotalNodes = 2

	drainer := &scriptedDrainer{
		scaleOK: true,
		states:  []*types.ClusterState{clusterOf("node-1"), sick},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	result := NewElasticScale(drainer).Execute(ctx, rcFor("node-1"))
	assert.False(t, result.Success)
}

func TestMigrationPicksSurvivors(t *testing.T) {
	drainer := &scriptedDrainer{
		drainOK: true,
		states:  []*types.ClusterState{clusterOf("node-1", "node-2", "node-3")},
	}

	result := NewMigration(drainer).Execute(context.Background(), rcFor("node-1"))

	require.True(t, result.Success)
	assert.Len(t, result.ReplacementIDs, 2)
	assert.NotContains(t, result.ReplacementIDs, "node-1")
	assert.Equal(t, 1, drainer.drains)
}

func TestMigrationNoTargets(t *testing.T) {
	drainer := &scriptedDrainer{
		drainOK: true,
		states:  []*types.ClusterState{clusterOf("node-1")}, // only the dying node
	}

	result := NewMigration(drainer).Execute(context.Background(), rcFor("node-1"))

	require.False(t, result.Success)
	assert.Equal(t, types.ErrKindReplacement, types.KindOf(result.Err))
	assert.Equal(t, 0, drainer.drains)
}

func newTestCheckpoints(t *testing.T) *checkpoint.Manager {
	t.Helper()
	store, err := checkpoint.NewFileStore(t.TempDir())
	require.NoError(t, err)
	mgr, err := checkpoint.NewManager(checkpoint.ManagerOptions{
		Store:          store,
		NodeID:         "node-1",
		Snapshot:       func(ctx context.Context) ([]byte, error) { return []byte("state"), nil },
		MaxCheckpoints: 5,
	})
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })
	return mgr
}

func TestCheckpointRestoreEnsuresCheckpoint(t *testing.T) {
	fastPoll(t)
	checkpoints := newTestCheckpoints(t)
	drainer := &scriptedDrainer{
		scaleOK: true,
		states: []*types.ClusterState{
			clusterOf("node-1"),
			clusterOf("node-1", "node-2"),
		},
	}

	rc := rcFor("node-1")
	result := NewCheckpointRestore(drainer, checkpoints).Execute(context.Background(), rc)

	require.True(t, result.Success)
	assert.NotEmpty(t, rc.CheckpointID, "a fresh checkpoint must be saved when none exists")

	record, err := checkpoints.Load(context.Background(), rc.CheckpointID)
	require.NoError(t, err)
	assert.Equal(t, []byte("state"), record.Payload)
}

func TestCheckpointRestoreReusesLatest(t *testing.T) {
	fastPoll(t)
	checkpoints := newTestCheckpoints(t)
	existing, err := checkpoints.SaveSnapshot(context.Background(), "periodic")
	require.NoError(t, err)

	drainer := &scriptedDrainer{
		scaleOK: true,
		states: []*types.ClusterState{
			clusterOf("node-1"),
			clusterOf("node-1", "node-2"),
		},
	}

	rc := rcFor("node-1")
	rc.CheckpointID = "" // force resolution through Latest
	result := NewCheckpointRestore(drainer, checkpoints).Execute(context.Background(), rc)

	require.True(t, result.Success)
	assert.Equal(t, existing.CheckpointID, rc.CheckpointID)
}

func TestNewResolvesStrategies(t *testing.T) {
	drainer := &scriptedDrainer{}
	checkpoints := newTestCheckpoints(t)

	tests := []struct {
		strategy types.Strategy
		want     any
	}{
		{types.StrategyElasticScale, &ElasticScale{}},
		{types.StrategyCheckpointRestore, &CheckpointRestore{}},
		{types.StrategyMigration, &Migration{}},
	}

	for _, tt := range tests {
		t.Run(string(tt.strategy), func(t *testing.T) {
			cfg := config.Default()
			cfg.ReplacementStrategy = tt.strategy
			got, err := New(cfg, drainer, checkpoints)
			require.NoError(t, err)
			assert.IsType(t, tt.want, got)
		})
	}

	cfg := config.Default()
	cfg.ReplacementStrategy = "teleport"
	_, err := New(cfg, drainer, checkpoints)
	assert.Error(t, err)
}
