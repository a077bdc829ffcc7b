package replacement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pavelkushtia/spotsdk/pkg/checkpoint"
	"github.com/pavelkushtia/spotsdk/pkg/log"
	"github.com/pavelkushtia/spotsdk/pkg/platform"
	"github.com/pavelkushtia/spotsdk/pkg/types"
)

// CheckpointRestore guarantees a checkpoint exists before launching a
// replacement instructed to resume from it. A failure to secure the
// checkpoint is propagated, never silently skipped: a replacement
// without state to restore would defeat the strategy.
type CheckpointRestore struct {
	scale       *ElasticScale
	checkpoints *checkpoint.Manager
}

// NewCheckpointRestore creates the checkpoint-restore strategy
func NewCheckpointRestore(drainer platform.Drainer, checkpoints *checkpoint.Manager) *CheckpointRestore {
	return &CheckpointRestore{
		scale:       NewElasticScale(drainer),
		checkpoints: checkpoints,
	}
}

// Execute secures a checkpoint, then scales out a replacement that will
// resume from it. The checkpoint ID travels in the replacement context
// so launch templates can point the new instance at it.
func (s *CheckpointRestore) Execute(ctx context.Context, rc *types.ReplacementContext) *types.ReplacementResult {
	start := time.Now()
	logger := log.WithComponent("replacement")

	checkpointID := rc.CheckpointID
	if checkpointID == "" {
		record, err := s.ensureCheckpoint(ctx)
		if err != nil {
			return &types.ReplacementResult{
				Elapsed: time.Since(start),
				Err:     types.NewReplacementError(fmt.Errorf("cannot secure checkpoint: %w", err)),
			}
		}
		checkpointID = record.CheckpointID
		rc.CheckpointID = checkpointID
	}

	logger.Info().
		Str("checkpoint_id", checkpointID).
		Msg("launching replacement with checkpoint restore")

	result := s.scale.Execute(ctx, rc)
	result.Elapsed = time.Since(start)
	return result
}

// ensureCheckpoint returns the latest checkpoint for this node, saving
// a fresh one when none exists.
func (s *CheckpointRestore) ensureCheckpoint(ctx context.Context) (*types.CheckpointRecord, error) {
	if s.checkpoints == nil {
		return nil, fmt.Errorf("no checkpoint manager configured")
	}

	record, err := s.checkpoints.Latest(ctx)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, types.ErrCheckpointNotFound) {
		return nil, err
	}
	return s.checkpoints.SaveSnapshot(ctx, "replacement")
}
