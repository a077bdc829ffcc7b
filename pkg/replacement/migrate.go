package replacement

import (
	"context"
	"fmt"
	"time"

	"github.com/pavelkushtia/spotsdk/pkg/log"
	"github.com/pavelkushtia/spotsdk/pkg/platform"
	"github.com/pavelkushtia/spotsdk/pkg/types"
)

// Migration moves in-flight work onto capacity that already exists in
// the pool instead of launching new instances, so there is no
// new-instance wait. It needs at least one other healthy node to
// receive the work.
type Migration struct {
	drainer platform.Drainer
}

// NewMigration creates the migration strategy
func NewMigration(drainer platform.Drainer) *Migration {
	return &Migration{drainer: drainer}
}

// Execute picks the surviving healthy nodes as migration targets and
// re-issues the drain so the platform reschedules the work there.
func (s *Migration) Execute(ctx context.Context, rc *types.ReplacementContext) *types.ReplacementResult {
	start := time.Now()
	logger := log.WithComponent("replacement")

	state := s.drainer.ClusterState(ctx)
	targets := survivingHealthyNodes(state, rc)
	if len(targets) == 0 {
		return &types.ReplacementResult{
			Elapsed: time.Since(start),
			Err:     types.NewReplacementError(fmt.Errorf("no healthy nodes available to receive migrated work")),
		}
	}

	logger.Info().
		Int("target_nodes", len(targets)).
		Msg("migrating work to existing capacity")

	// The platform owns actual work placement; the drain is the
	// migration trigger on schedulers that reschedule evicted work.
	if !s.drainer.Drain(ctx, rc.Notice) {
		return &types.ReplacementResult{
			Elapsed: time.Since(start),
			Err:     types.NewReplacementError(fmt.Errorf("platform rejected migration drain")),
		}
	}

	return &types.ReplacementResult{
		Success:        true,
		ReplacementIDs: targets,
		Elapsed:        time.Since(start),
	}
}

// survivingHealthyNodes lists healthy nodes other than the one being
// reclaimed.
func survivingHealthyNodes(state *types.ClusterState, rc *types.ReplacementContext) []string {
	var targets []string
	for id, nodeState := range state.Nodes {
		if nodeState != types.NodeStateHealthy {
			continue
		}
		if rc.InstanceTemplate != nil && rc.InstanceTemplate["node_id"] == id {
			continue
		}
		targets = append(targets, id)
	}
	return targets
}
