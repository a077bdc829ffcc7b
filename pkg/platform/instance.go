package platform

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/pavelkushtia/spotsdk/pkg/log"
	"github.com/pavelkushtia/spotsdk/pkg/types"
)

// InstancePlatform manages a single bare instance without a cluster
// scheduler. Draining means signaling the local application through
// environment markers and drain callbacks so it stops accepting work;
// scaling is outside a lone instance's power and reports failure.
type InstancePlatform struct {
	nodeID string

	mu       sync.Mutex
	draining bool
	hooks    []func(ctx context.Context, notice *types.TerminationNotice) error
}

// NewInstancePlatform creates a single-instance platform manager
func NewInstancePlatform(nodeID string) *InstancePlatform {
	return &InstancePlatform{nodeID: nodeID}
}

// OnDrain registers a callback invoked during Drain. Callbacks run in
// registration order and share the drain deadline.
func (p *InstancePlatform) OnDrain(hook func(ctx context.Context, notice *types.TerminationNotice) error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hooks = append(p.hooks, hook)
}

// Drain marks the instance as draining and runs the registered hooks.
// Hook failures make the drain report false but do not stop remaining
// hooks: a partial drain is still better than none.
func (p *InstancePlatform) Drain(ctx context.Context, notice *types.TerminationNotice) bool {
	p.mu.Lock()
	p.draining = true
	hooks := make([]func(ctx context.Context, notice *types.TerminationNotice) error, len(p.hooks))
	copy(hooks, p.hooks)
	p.mu.Unlock()

	os.Setenv("SPOT_SDK_TERMINATING", "true")
	os.Setenv("SPOT_SDK_TERMINATION_TIME", notice.EffectiveTime.Format(time.RFC3339))

	logger := log.WithComponent("platform")
	ok := true
	for _, hook := range hooks {
		if err := ctx.Err(); err != nil {
			logger.Warn().Err(err).Msg("drain deadline reached before all hooks ran")
			return false
		}
		if err := hook(ctx, notice); err != nil {
			logger.Error().Err(err).Msg("drain hook failed")
			ok = false
		}
	}
	return ok
}

// ClusterState reports the one-node view of this instance
func (p *InstancePlatform) ClusterState(ctx context.Context) *types.ClusterState {
	p.mu.Lock()
	defer p.mu.Unlock()

	state := types.NodeStateHealthy
	if p.draining {
		state = types.NodeStateDraining
	}
	return &types.ClusterState{
		TotalNodes:   1,
		HealthyNodes: 1,
		Nodes:        map[string]types.NodeState{p.nodeID: state},
		CapturedAt:   time.Now(),
	}
}

// Scale is not possible for a lone instance
func (p *InstancePlatform) Scale(ctx context.Context, targetCapacity int) bool {
	lg := log.WithComponent("platform")
	lg.Warn().
		Int("target_capacity", targetCapacity).
		Msg("single-instance platform cannot scale")
	return false
}
