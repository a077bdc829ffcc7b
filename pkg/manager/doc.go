/*
Package manager implements the spot termination orchestrator.

The manager package composes the termination detector, platform drainer,
checkpoint manager and replacement strategy into a single state machine
that takes an instance from the first provider reclaim signal all the
way to recovered replacement capacity. It owns the background monitoring
loop and the stage budget accounting for the reaction sequence.

# Architecture

One Orchestrator instance protects one spot instance:

	┌──────────────────── ORCHESTRATOR ────────────────────────┐
	│                                                            │
	│  Monitor Loop (poll_interval)                              │
	│       │                                                    │
	│       ▼  first positive detection                          │
	│  ┌─────────────────────────────────────────────┐          │
	│  │          Reaction State Machine              │          │
	│  │                                               │          │
	│  │  MONITORING → DETECTED → DRAINING            │          │
	│  │       → CHECKPOINTING → REPLACING            │          │
	│  │       → RECOVERED | FAILED                   │          │
	│  └──────┬──────────┬───────────┬───────────────┘          │
	│         │          │           │                           │
	│         ▼          ▼           ▼                           │
	│     Drainer   Checkpoint   Replacement                     │
	│    (platform)  Manager      Strategy                       │
	│                                                            │
	│  Metrics (per-instance registry)   Events (broker)         │
	└────────────────────────────────────────────────────────────┘

# Deadline Budget

All stage timeouts derive from one deadline established the moment the
notice is detected. The budget is the notice's own deadline, falling
back to the provider default (AWS 120s, GCP/Azure 30s). No stage ever
resets the clock. Independently, force_kill_after from detection is a
hard ceiling: when it expires, whatever stage is running is abandoned
and the session fails.

Stage failure policy:

  - drain: soft, logged and the sequence continues
  - checkpoint: one immediate retry, then the session fails without
    ever starting replacement
  - replacement: retried up to max_replacement_attempts, each attempt
    independent

# Usage

	cfg, err := config.Load("/etc/spotsdk/config.yaml")
	if err != nil {
		return err
	}

	orch, err := manager.New(cfg, manager.Options{
		Snapshot: func(ctx context.Context) ([]byte, error) {
			return app.Serialize()
		},
	})
	if err != nil {
		return err
	}

	if err := orch.Start(); err != nil {
		return err
	}
	defer orch.Stop()

	state := orch.Wait() // blocks until RECOVERED or FAILED

Long-lived daemons reset between instance lifecycles:

	for {
		<-orch.Done()
		if err := orch.Reset(); err != nil {
			break
		}
		orch.Start()
	}

# Integration Points

  - pkg/detector: termination signal polling
  - pkg/platform: graceful drain and capacity scaling
  - pkg/checkpoint: durable state snapshots
  - pkg/replacement: capacity recovery strategies
  - pkg/metrics: per-instance Prometheus registry
  - pkg/events: lifecycle event broker for shutdown hooks
*/
package manager
