package detector

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pavelkushtia/spotsdk/pkg/log"
	"github.com/pavelkushtia/spotsdk/pkg/types"
)

const gcpMetadataURL = "http://metadata.google.internal/computeMetadata/v1"

// gcpDeadlineSeconds is the advance notice GCP gives preemptible VMs
const gcpDeadlineSeconds = 30

// GCPDetector polls the GCE metadata server's preemption flag
type GCPDetector struct {
	client  *http.Client
	baseURL string
}

// NewGCPDetector creates a GCP metadata detector
func NewGCPDetector(timeout time.Duration) *GCPDetector {
	return &GCPDetector{
		client:  newMetadataClient(timeout),
		baseURL: gcpMetadataURL,
	}
}

// Check queries the preempted flag. A literal "TRUE" body means the VM
// is being preempted with a 30 second deadline.
func (d *GCPDetector) Check(ctx context.Context) *types.TerminationNotice {
	body := d.get(ctx, "/instance/preempted")
	if body != "TRUE" {
		return nil
	}

	notice := &types.TerminationNotice{
		CloudProvider:   types.CloudProviderGCP,
		Action:          types.ActionPreempt,
		EffectiveTime:   time.Now(),
		Reason:          "gcp_preemption",
		DeadlineSeconds: gcpDeadlineSeconds,
	}
	lg := log.WithProvider("gcp")
	lg.Warn().
		Int("deadline_seconds", notice.DeadlineSeconds).
		Msg("preemption notice received")
	return notice
}

// Metadata fetches the instance identity snapshot
func (d *GCPDetector) Metadata(ctx context.Context) (*types.InstanceMetadata, error) {
	zone := d.get(ctx, "/instance/zone")
	// Zone is returned as projects/<num>/zones/<zone>
	if idx := strings.LastIndex(zone, "/"); idx >= 0 {
		zone = zone[idx+1:]
	}
	region := zone
	if idx := strings.LastIndex(zone, "-"); idx >= 0 {
		region = zone[:idx]
	}

	return &types.InstanceMetadata{
		InstanceID:    d.get(ctx, "/instance/id"),
		InstanceType:  d.get(ctx, "/instance/machine-type"),
		Zone:          zone,
		Region:        region,
		CloudProvider: types.CloudProviderGCP,
	}, nil
}

func (d *GCPDetector) get(ctx context.Context, path string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+path, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("Metadata-Flavor", "Google")

	resp, err := d.client.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ""
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return strings.TrimSpace(string(body))
}
