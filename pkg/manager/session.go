package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/pavelkushtia/spotsdk/pkg/events"
	"github.com/pavelkushtia/spotsdk/pkg/log"
	"github.com/pavelkushtia/spotsdk/pkg/metrics"
	"github.com/pavelkushtia/spotsdk/pkg/types"
)

// minStageBudget is the floor for any stage timeout. Even with the
// provider budget exhausted the sequence continues best-effort (a
// missed drain is less catastrophic than losing state), so a stage is
// never started with a zero or negative deadline; force_kill_after
// remains the true ceiling.
const minStageBudget = 2 * time.Second

// checkpointReserve is the slice of remaining budget held back from the
// checkpoint stage so the replacement step is not starved.
const checkpointReserve = 10 * time.Second

// handleTermination drives one termination session through
// DETECTED → DRAINING → CHECKPOINTING → REPLACING → {RECOVERED|FAILED}.
//
// All stage timeouts are computed against the single deadline
// established at DETECTED, never reset per stage. force_kill_after from
// DETECTED is a hard ceiling: when it fires, whatever stage is running
// is abandoned and the session fails.
func (o *Orchestrator) handleTermination(notice *types.TerminationNotice) {
	detectedAt := time.Now()
	budget := notice.Deadline(time.Duration(o.cfg.EarlyWarningSeconds) * time.Second)
	deadline := detectedAt.Add(budget)

	logger := log.WithSession(o.sessionID)

	o.mu.Lock()
	o.state = types.StateDetected
	o.notice = notice
	killCtx, cancel := context.WithDeadline(context.Background(), detectedAt.Add(o.cfg.ForceKillAfter))
	o.forceKill = cancel
	o.mu.Unlock()
	defer cancel()

	o.metrics.TerminationsDetected.Inc()
	o.publish(events.EventTerminationDetected, string(notice.Action))
	logger.Warn().
		Str("cloud_provider", string(notice.CloudProvider)).
		Str("action", string(notice.Action)).
		Dur("budget", budget).
		Msg("termination detected, starting reaction sequence")

	remaining := func() time.Duration {
		r := time.Until(deadline)
		if r < minStageBudget {
			return minStageBudget
		}
		return r
	}

	// DETECTED → DRAINING
	o.setState(types.StateDraining)
	o.runDrain(killCtx, notice, remaining(), logger)
	if killCtx.Err() != nil {
		o.fail(logger, types.StateDraining, killCtx.Err())
		return
	}

	// DRAINING → CHECKPOINTING
	o.setState(types.StateCheckpointing)
	checkpointID, err := o.runCheckpoint(killCtx, remaining(), logger)
	if killCtx.Err() != nil {
		o.fail(logger, types.StateCheckpointing, killCtx.Err())
		return
	}
	if err != nil {
		// State loss is fatal to the recovery guarantee; replacement
		// never runs without a checkpoint.
		o.fail(logger, types.StateCheckpointing, err)
		return
	}

	// CHECKPOINTING → REPLACING
	o.setState(types.StateReplacing)
	if err := o.runReplacement(killCtx, notice, checkpointID, remaining, logger); err != nil {
		stage := types.StateReplacing
		if killCtx.Err() != nil {
			err = killCtx.Err()
		}
		o.fail(logger, stage, err)
		return
	}

	o.setState(types.StateRecovered)
	o.metrics.TerminationsHandled.Inc()
	o.publish(events.EventSessionRecovered, "termination handled, replacement capacity ready")
	logger.Info().Dur("elapsed", time.Since(detectedAt)).Msg("session recovered")
	o.finish(types.StateRecovered)
}

// runDrain invokes the platform drain bounded by the smaller of the
// grace period and the remaining budget. Drain failure is soft: it is
// logged and the sequence continues best-effort.
func (o *Orchestrator) runDrain(killCtx context.Context, notice *types.TerminationNotice, remaining time.Duration, logger zerolog.Logger) {
	if !o.cfg.EnablePreemptiveDrain {
		logger.Debug().Msg("preemptive drain disabled, skipping")
		return
	}

	timeout := o.cfg.MaxGracePeriod
	if remaining < timeout {
		timeout = remaining
	}

	o.publish(events.EventDrainStarted, "draining node")
	ctx, cancel := context.WithTimeout(killCtx, timeout)
	defer cancel()

	if ok := o.drainer.Drain(ctx, notice); !ok {
		logger.Warn().Msg("drain rejected or timed out, continuing to checkpoint")
	} else {
		logger.Info().Msg("drain completed")
	}
	o.publish(events.EventDrainCompleted, "drain finished")
}

// runCheckpoint saves an emergency checkpoint, retrying once
// immediately on failure. The stage budget is the remaining budget
// minus a reserve for the replacement step.
func (o *Orchestrator) runCheckpoint(killCtx context.Context, remaining time.Duration, logger zerolog.Logger) (string, error) {
	timeout := remaining - checkpointReserve
	if timeout < minStageBudget {
		timeout = minStageBudget
	}

	ctx, cancel := context.WithTimeout(killCtx, timeout)
	defer cancel()

	record, err := o.checkpoints.SaveSnapshot(ctx, "emergency")
	if err != nil {
		logger.Warn().Err(err).Msg("emergency checkpoint failed, retrying once")
		record, err = o.checkpoints.SaveSnapshot(ctx, "emergency-retry")
	}
	if err != nil {
		o.publish(events.EventCheckpointFailed, err.Error())
		return "", err
	}

	o.publish(events.EventCheckpointSaved, record.CheckpointID)
	return record.CheckpointID, nil
}

// runReplacement executes the configured strategy up to the attempt
// limit. Attempts are independent; nothing carries between them except
// the incrementing counter.
func (o *Orchestrator) runReplacement(killCtx context.Context, notice *types.TerminationNotice, checkpointID string, remaining func() time.Duration, logger zerolog.Logger) error {
	o.publish(events.EventReplacementStarted, string(o.cfg.ReplacementStrategy))

	var lastErr error
	for attempt := 1; attempt <= o.cfg.MaxReplacementAttempts; attempt++ {
		if killCtx.Err() != nil {
			return killCtx.Err()
		}

		timeout := o.cfg.ReplacementTimeout
		if r := remaining(); r < timeout {
			timeout = r
		}

		rc := &types.ReplacementContext{
			Notice:           notice,
			RequiredCapacity: 1,
			InstanceTemplate: map[string]string{"node_id": o.cfg.NodeID},
			StartTime:        time.Now(),
			CheckpointID:     checkpointID,
			Attempt:          attempt,
		}

		o.metrics.ReplacementAttempts.Inc()
		timer := metrics.NewTimer()
		ctx, cancel := context.WithTimeout(killCtx, timeout)
		result := o.strategy.Execute(ctx, rc)
		cancel()

		if result.Success {
			o.metrics.ReplacementSuccesses.Inc()
			timer.ObserveReplacement(o.metrics)
			logger.Info().
				Int("attempt", attempt).
				Strs("replacement_ids", result.ReplacementIDs).
				Dur("elapsed", result.Elapsed).
				Msg("replacement succeeded")
			return nil
		}

		lastErr = result.Err
		logger.Warn().
			Int("attempt", attempt).
			Err(result.Err).
			Msg("replacement attempt failed")
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("replacement failed after %d attempts", o.cfg.MaxReplacementAttempts)
	}
	return types.NewReplacementError(lastErr)
}

// fail records the terminal FAILED state and performs the local
// last-resort action: flush what we can, then hand control to the
// forced-exit hook if one is configured.
func (o *Orchestrator) fail(logger zerolog.Logger, stage types.SessionState, cause error) {
	o.setState(types.StateFailed)
	o.publish(events.EventSessionFailed, cause.Error())
	logger.Error().
		Str("stage", string(stage)).
		Err(cause).
		Msg("termination handling failed")

	if o.forcedExit != nil {
		o.forcedExit(types.StateFailed)
	}
	o.finish(types.StateFailed)
}

func (o *Orchestrator) setState(state types.SessionState) {
	o.mu.Lock()
	o.state = state
	o.mu.Unlock()
}

func (o *Orchestrator) finish(state types.SessionState) {
	select {
	case o.doneCh <- state:
	default:
	}
}
