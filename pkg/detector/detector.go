package detector

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/pavelkushtia/spotsdk/pkg/config"
	"github.com/pavelkushtia/spotsdk/pkg/types"
)

// Detector checks a cloud-specific source for a termination signal.
//
// Check returns nil when no termination is pending. Network errors,
// timeouts, non-200 responses and malformed bodies are all treated the
// same as "no notice": absence of signal is the steady state and must
// be cheap and silent, so Check never surfaces an error.
type Detector interface {
	Check(ctx context.Context) *types.TerminationNotice
	Metadata(ctx context.Context) (*types.InstanceMetadata, error)
}

// Factory builds a detector for a custom provider
type Factory func(cfg *config.SpotConfig) (Detector, error)

// Handle identifies a registered custom detector factory
type Handle struct {
	name string
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register installs a factory for a third-party detector and returns a
// handle naming it. Built-in providers are resolved without the
// registry; registration exists for custom integrations only.
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

// New resolves the detector for the configured cloud provider. The
// provider set is closed over the built-ins; anything else must have
// been registered as a custom factory.
func New(cfg *config.SpotConfig) (Detector, error) {
	switch cfg.CloudProvider {
	case types.CloudProviderAWS:
		return NewAWSDetector(cfg.DetectorTimeout), nil
	case types.CloudProviderGCP:
		return NewGCPDetector(cfg.DetectorTimeout), nil
	case types.CloudProviderAzure:
		return NewAzureDetector(cfg.DetectorTimeout), nil
	}

	registryMu.RLock()
	factory, ok := registry[string(cfg.CloudProvider)]
	registryMu.RUnlock()
	if ok {
		return factory(cfg)
	}
	return nil, fmt.Errorf("unknown cloud provider: %s", cfg.CloudProvider)
}

// newMetadataClient returns an HTTP client for link-local metadata
// endpoints with the short per-request timeout detectors require.
func newMetadataClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
