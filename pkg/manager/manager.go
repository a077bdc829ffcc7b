package manager

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pavelkushtia/spotsdk/pkg/checkpoint"
	"github.com/pavelkushtia/spotsdk/pkg/config"
	"github.com/pavelkushtia/spotsdk/pkg/detector"
	"github.com/pavelkushtia/spotsdk/pkg/events"
	"github.com/pavelkushtia/spotsdk/pkg/log"
	"github.com/pavelkushtia/spotsdk/pkg/metrics"
	"github.com/pavelkushtia/spotsdk/pkg/platform"
	"github.com/pavelkushtia/spotsdk/pkg/replacement"
	"github.com/pavelkushtia/spotsdk/pkg/types"
)

// Orchestrator owns the monitoring loop and the termination-reaction
// state machine. It composes the detector, platform drainer, checkpoint
// manager and replacement strategy, and emits metrics events. At most
// one termination notice is active per orchestrator instance.
type Orchestrator struct {
	cfg         *config.SpotConfig
	detector    detector.Detector
	drainer     platform.Drainer
	checkpoints *checkpoint.Manager
	strategy    replacement.Strategy
	metrics     *metrics.Metrics
	broker      *events.Broker
	forcedExit  func(state types.SessionState)

	mu        sync.Mutex
	state     types.SessionState
	notice    *types.TerminationNotice // write-once per session
	sessionID string
	running   bool

	stopCh    chan struct{}
	doneCh    chan types.SessionState
	forceKill context.CancelFunc

	// broker and periodic checkpointing outlive individual sessions
	startOnce sync.Once
}

// Options injects pre-built collaborators. Zero fields are resolved
// from the configuration; tests supply fakes here.
type Options struct {
	Detector    detector.Detector
	Drainer     platform.Drainer
	Checkpoints *checkpoint.Manager
	Strategy    replacement.Strategy
	Metrics     *metrics.Metrics
	Broker      *events.Broker

	// Snapshot captures application state for checkpoints. Required
	// unless a checkpoint manager is injected.
	Snapshot checkpoint.SnapshotFunc

	// ForcedExit runs as the last-resort action after FAILED
	ForcedExit func(state types.SessionState)
}

// New builds an orchestrator, resolving any collaborator not supplied
// in opts from the configuration.
func New(cfg *config.SpotConfig, opts Options) (*Orchestrator, error) {
	o := &Orchestrator{
		cfg:         cfg,
		detector:    opts.Detector,
		drainer:     opts.Drainer,
		checkpoints: opts.Checkpoints,
		strategy:    opts.Strategy,
		metrics:     opts.Metrics,
		broker:      opts.Broker,
		forcedExit:  opts.ForcedExit,
		state:       types.StateMonitoring,
		sessionID:   uuid.New().String(),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan types.SessionState, 1),
	}

	if o.metrics == nil {
		o.metrics = metrics.New()
	}
	if o.broker == nil {
		o.broker = events.NewBroker()
	}

	if o.detector == nil {
		det, err := detector.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize detector: %w", err)
		}
		o.detector = detector.NewCached(det, detector.DefaultCacheTTL)
	}

	if o.drainer == nil {
		drainer, err := platform.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize platform: %w", err)
		}
		o.drainer = drainer
	}

	if o.checkpoints == nil {
		store, err := newStore(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize checkpoint store: %w", err)
		}
		mgr, err := checkpoint.NewManager(checkpoint.ManagerOptions{
			Store:          store,
			NodeID:         cfg.NodeID,
			Snapshot:       opts.Snapshot,
			Interval:       cfg.CheckpointInterval,
			MaxCheckpoints: cfg.MaxCheckpoints,
			Metrics:        o.metrics,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize checkpoint manager: %w", err)
		}
		o.checkpoints = mgr
	}

	if o.strategy == nil {
		strategy, err := replacement.New(cfg, o.drainer, o.checkpoints)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize replacement strategy: %w", err)
		}
		o.strategy = strategy
	}

	return o, nil
}

// newStore builds the configured checkpoint backend, wrapping it with
// encryption when enabled. Key material comes from the environment so
// it never lands in config files.
func newStore(cfg *config.SpotConfig) (checkpoint.Store, error) {
	var store checkpoint.Store
	var err error

	switch cfg.StateBackend {
	case "local":
		store, err = checkpoint.NewFileStore(cfg.StateDir)
	case "bolt":
		store, err = checkpoint.NewBoltStore(cfg.StateDir)
	default:
		return nil, fmt.Errorf("unknown state_backend: %s", cfg.StateBackend)
	}
	if err != nil {
		return nil, err
	}

	if cfg.EnableEncryption {
		passphrase := os.Getenv("SPOT_SDK_ENCRYPTION_KEY")
		if passphrase == "" {
			store.Close()
			return nil, fmt.Errorf("enable_encryption is set but SPOT_SDK_ENCRYPTION_KEY is empty")
		}
		return checkpoint.NewEncryptedStoreFromPassphrase(store, passphrase)
	}
	return store, nil
}

// Start launches the background monitoring loop and the periodic
// checkpoint writer. The protected application is never blocked by
// polling.
func (o *Orchestrator) Start() error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return fmt.Errorf("monitoring already started")
	}
	o.running = true
	o.mu.Unlock()

	o.startOnce.Do(func() {
		o.broker.Start()
		o.checkpoints.Start()
	})
	go o.monitorLoop()

	o.publish(events.EventMonitoringStarted, "spot termination monitoring started")
	lg := log.WithSession(o.sessionID)
	lg.Info().
		Str("platform", o.cfg.Platform).
		Str("cloud_provider", string(o.cfg.CloudProvider)).
		Msg("monitoring started")
	return nil
}

// Stop halts monitoring and the periodic checkpoint writer. A reaction
// sequence already in flight keeps running to its terminal state.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.running = false
	o.mu.Unlock()

	close(o.stopCh)
	o.checkpoints.Stop()
	o.publish(events.EventMonitoringStopped, "spot termination monitoring stopped")
}

// ForceFail is the host's stronger second signal: it short-circuits the
// reaction sequence to FAILED regardless of the current stage.
func (o *Orchestrator) ForceFail() {
	o.mu.Lock()
	cancel := o.forceKill
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// State returns the current state machine stage
func (o *Orchestrator) State() types.SessionState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Notice returns the active termination notice, nil while monitoring
func (o *Orchestrator) Notice() *types.TerminationNotice {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.notice
}

// SessionID identifies the current logical session
func (o *Orchestrator) SessionID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sessionID
}

// Metrics exposes the orchestrator's metrics instance
func (o *Orchestrator) Metrics() *metrics.Metrics {
	return o.metrics
}

// Events exposes the lifecycle event broker for shutdown hooks
func (o *Orchestrator) Events() *events.Broker {
	return o.broker
}

// Checkpoints exposes the checkpoint manager
func (o *Orchestrator) Checkpoints() *checkpoint.Manager {
	return o.checkpoints
}

// Wait blocks until the current session reaches a terminal state
func (o *Orchestrator) Wait() types.SessionState {
	return <-o.doneCh
}

// Done exposes the terminal-state channel for select loops
func (o *Orchestrator) Done() <-chan types.SessionState {
	return o.doneCh
}

// Reset prepares the orchestrator for the next instance lifecycle in
// long-lived-daemon mode. It only applies once the previous session has
// reached a terminal state.
func (o *Orchestrator) Reset() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.state.Terminal() {
		return fmt.Errorf("cannot reset: session in state %s", o.state)
	}
	o.state = types.StateMonitoring
	o.notice = nil
	o.sessionID = uuid.New().String()
	o.running = false
	o.stopCh = make(chan struct{})
	o.doneCh = make(chan types.SessionState, 1)
	o.forceKill = nil
	return nil
}

// monitorLoop polls the detector until the first positive detection,
// which permanently exits the loop for this session. Detection failures
// are invisible here: the detector contract swallows them as nil.
func (o *Orchestrator) monitorLoop() {
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), o.cfg.DetectorTimeout)
			notice := o.detector.Check(ctx)
			cancel()

			if notice != nil {
				o.handleTermination(notice)
				return
			}
		case <-o.stopCh:
			return
		}
	}
}

// publish emits a lifecycle event
func (o *Orchestrator) publish(eventType events.EventType, message string) {
	o.broker.Publish(&events.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		SessionID: o.sessionID,
		Message:   message,
	})
}
