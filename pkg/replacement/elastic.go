package replacement

import (
	"context"
	"fmt"
	"time"

	"github.com/pavelkushtia/spotsdk/pkg/log"
	"github.com/pavelkushtia/spotsdk/pkg/platform"
	"github.com/pavelkushtia/spotsdk/pkg/types"
)

// joinPollInterval is how often the pool is re-inspected while waiting
// for replacements to join.
var joinPollInterval = 2 * time.Second

// ElasticScale launches replacement capacity matching the template and
// waits, bounded by the context deadline, for it to join the pool.
type ElasticScale struct {
	drainer platform.Drainer
}

// NewElasticScale creates the elastic-scale strategy
func NewElasticScale(drainer platform.Drainer) *ElasticScale {
	return &ElasticScale{drainer: drainer}
}

// Execute scales the pool out by the required capacity and waits for
// the new nodes to become healthy.
func (s *ElasticScale) Execute(ctx context.Context, rc *types.ReplacementContext) *types.ReplacementResult {
	start := time.Now()
	logger := log.WithComponent("replacement")

	required := rc.RequiredCapacity
	if required < 1 {
		required = 1
	}

	before := s.drainer.ClusterState(ctx)
	target := before.TotalNodes + required

	logger.Info().
		Int("required_capacity", required).
		Int("target_capacity", target).
		Msg("scaling out replacement capacity")

	if !s.drainer.Scale(ctx, target) {
		return &types.ReplacementResult{
			Elapsed: time.Since(start),
			Err:     types.NewReplacementError(fmt.Errorf("platform rejected scale to %d", target)),
		}
	}

	joined, err := s.waitForJoin(ctx, before, required)
	if err != nil {
		return &types.ReplacementResult{
			Elapsed: time.Since(start),
			Err:     types.NewReplacementError(err),
		}
	}

	return &types.ReplacementResult{
		Success:        true,
		ReplacementIDs: joined,
		Elapsed:        time.Since(start),
	}
}

// waitForJoin polls cluster state until `required` nodes beyond the
// baseline are healthy, or the context deadline expires.
func (s *ElasticScale) waitForJoin(ctx context.Context, baseline *types.ClusterState, required int) ([]string, error) {
	ticker := time.NewTicker(joinPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("timed out waiting for replacements to join: %w", ctx.Err())
		case <-ticker.C:
			state := s.drainer.ClusterState(ctx)
			joined := newHealthyNodes(baseline, state)
			if len(joined) >= required {
				return joined, nil
			}
		}
	}
}

// newHealthyNodes lists healthy nodes present now but not at baseline
func newHealthyNodes(baseline, current *types.ClusterState) []string {
	var joined []string
	for id, state := range current.Nodes {
		if state != types.NodeStateHealthy {
			continue
		}
		if _, existed := baseline.Nodes[id]; !existed {
			joined = append(joined, id)
		}
	}
	return joined
}
