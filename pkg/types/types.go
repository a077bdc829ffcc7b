package types

import (
	"time"
)

// CloudProvider identifies the cloud hosting the protected instance
type CloudProvider string

const (
	CloudProviderAWS    CloudProvider = "aws"
	CloudProviderGCP    CloudProvider = "gcp"
	CloudProviderAzure  CloudProvider = "azure"
	CloudProviderCustom CloudProvider = "custom"
)

// TerminationAction is the kind of reclaim the provider announced
type TerminationAction string

const (
	ActionTerminate TerminationAction = "terminate"
	ActionPreempt   TerminationAction = "preempt"
	ActionStop      TerminationAction = "stop"
)

// TerminationNotice is an immutable record of an impending reclaim.
// DeadlineSeconds is the hard upper bound for completing the whole
// drain/checkpoint/replace sequence; zero means the provider gave no
// explicit deadline and the caller must apply a provider default.
type TerminationNotice struct {
	CloudProvider   CloudProvider
	Action          TerminationAction
	EffectiveTime   time.Time
	Reason          string
	DeadlineSeconds int
}

// Deadline returns the notice deadline, falling back to the provider
// default when the notice carries none.
func (n *TerminationNotice) Deadline(fallback time.Duration) time.Duration {
	if n.DeadlineSeconds > 0 {
		return time.Duration(n.DeadlineSeconds) * time.Second
	}
	switch n.CloudProvider {
	case CloudProviderAWS:
		return 120 * time.Second
	case CloudProviderGCP, CloudProviderAzure:
		return 30 * time.Second
	}
	return fallback
}

// InstanceMetadata is a read-only snapshot of the instance identity
type InstanceMetadata struct {
	InstanceID    string
	InstanceType  string
	Region        string
	Zone          string
	Platform      string
	CloudProvider CloudProvider
	Tags          map[string]string
}

// CheckpointRecord describes one durable checkpoint. Records are
// immutable once written: a new save always creates a new record.
type CheckpointRecord struct {
	CheckpointID  string            `json:"checkpoint_id"`
	CreatedAt     time.Time         `json:"created_at"`
	OwnerNodeID   string            `json:"owner_node_id"`
	Payload       []byte            `json:"payload,omitempty"`
	PayloadSize   int64             `json:"payload_size"`
	ContentHash   string            `json:"content_hash"`
	PlatformState []byte            `json:"platform_state,omitempty"`
	SDKMetadata   map[string]string `json:"sdk_metadata,omitempty"`
}

// NodeState represents the lifecycle state of a cluster node
type NodeState string

const (
	NodeStateHealthy     NodeState = "healthy"
	NodeStateDraining    NodeState = "draining"
	NodeStateTerminating NodeState = "terminating"
	NodeStateTerminated  NodeState = "terminated"
	NodeStateUnknown     NodeState = "unknown"
)

// ClusterState is a read-only snapshot of the platform's view
type ClusterState struct {
	TotalNodes   int
	HealthyNodes int
	Nodes        map[string]NodeState
	CapturedAt   time.Time
}

// Strategy names the configured replacement policy
type Strategy string

const (
	StrategyElasticScale      Strategy = "elastic_scale"
	StrategyCheckpointRestore Strategy = "checkpoint_restore"
	StrategyMigration         Strategy = "migration"
)

// ReplacementContext carries everything a replacement strategy needs
// for one termination event. A context is built fresh per event and
// never reused.
type ReplacementContext struct {
	Notice           *TerminationNotice
	RequiredCapacity int
	InstanceTemplate map[string]string
	StartTime        time.Time
	CheckpointID     string
	Attempt          int
}

// ReplacementResult reports the outcome of one replacement attempt
type ReplacementResult struct {
	Success        bool
	ReplacementIDs []string
	Elapsed        time.Duration
	Err            error
}

// SessionState is a stage of the termination-reaction state machine
type SessionState string

const (
	StateMonitoring    SessionState = "monitoring"
	StateDetected      SessionState = "detected"
	StateDraining      SessionState = "draining"
	StateCheckpointing SessionState = "checkpointing"
	StateReplacing     SessionState = "replacing"
	StateRecovered     SessionState = "recovered"
	StateFailed        SessionState = "failed"
)

// Terminal reports whether the state ends a termination session
func (s SessionState) Terminal() bool {
	return s == StateRecovered || s == StateFailed
}
