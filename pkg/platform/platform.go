package platform

import (
	"context"
	"fmt"
	"sync"

	"github.com/pavelkushtia/spotsdk/pkg/config"
	"github.com/pavelkushtia/spotsdk/pkg/types"
)

// Drainer is the platform-specific graceful-drain and capacity-scaling
// contract. Concrete schedulers (Ray, Kubernetes, Slurm, bare metal)
// live behind it as external collaborators.
//
// Drain and Scale are best-effort: a platform that is unreachable or
// not initialized answers false, it never panics or returns an error
// through this contract. Callers bound each call with the context
// deadline.
type Drainer interface {
	Drain(ctx context.Context, notice *types.TerminationNotice) bool
	ClusterState(ctx context.Context) *types.ClusterState
	Scale(ctx context.Context, targetCapacity int) bool
}

// Factory builds a drainer for a custom platform
type Factory func(cfg *config.SpotConfig) (Drainer, error)

// Handle identifies a registered custom platform factory
type Handle struct {
	name string
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register installs a factory for a third-party platform and returns a
// handle naming it. Built-in platforms resolve without the registry.
func Register(name string, factory Factory) Handle {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
	return Handle{name: name}
}

// Unregister removes the factory this handle was issued for
func (h Handle) Unregister() {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(registry, h.name)
}

// New resolves the drainer for the configured platform
func New(cfg *config.SpotConfig) (Drainer, error) {
	switch cfg.Platform {
	case "instance":
		return NewInstancePlatform(cfg.NodeID), nil
	case "remote":
		return NewRemotePlatform(cfg.PlatformEndpoint, cfg.NodeID)
	case "noop":
		return NoopPlatform{}, nil
	}

	registryMu.RLock()
	factory, ok := registry[cfg.Platform]
	registryMu.RUnlock()
	if ok {
		return factory(cfg)
	}
	return nil, fmt.Errorf("unknown platform: %s", cfg.Platform)
}

// NoopPlatform accepts every drain and scale request without doing
// anything. Useful for workloads that handle drain themselves through
// lifecycle events.
type NoopPlatform struct{}

func (NoopPlatform) Drain(ctx context.Context, notice *types.TerminationNotice) bool {
	return true
}

func (NoopPlatform) ClusterState(ctx context.Context) *types.ClusterState {
	return &types.ClusterState{TotalNodes: 1, HealthyNodes: 1}
}

func (NoopPlatform) Scale(ctx context.Context, targetCapacity int) bool {
	return true
}
