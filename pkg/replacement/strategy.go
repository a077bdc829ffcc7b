package replacement

import (
	"context"
	"fmt"

	"github.com/pavelkushtia/spotsdk/pkg/checkpoint"
	"github.com/pavelkushtia/spotsdk/pkg/config"
	"github.com/pavelkushtia/spotsdk/pkg/platform"
	"github.com/pavelkushtia/spotsdk/pkg/types"
)

// Strategy decides and executes how replacement capacity is obtained
// after a reclaim. Every variant reports through the same
// ReplacementResult; the orchestrator treats any non-success alike and
// only the retry budget differs.
type Strategy interface {
	Execute(ctx context.Context, rc *types.ReplacementContext) *types.ReplacementResult
}

// New resolves the configured strategy
func New(cfg *config.SpotConfig, drainer platform.Drainer, checkpoints *checkpoint.Manager) (Strategy, error) {
	switch cfg.ReplacementStrategy {
	case types.StrategyElasticScale:
		return NewElasticScale(drainer), nil
	case types.StrategyCheckpointRestore:
		return NewCheckpointRestore(drainer, checkpoints), nil
	case types.StrategyMigration:
		return NewMigration(drainer), nil
	}
	return nil, fmt.Errorf("unknown replacement strategy: %s", cfg.ReplacementStrategy)
}
