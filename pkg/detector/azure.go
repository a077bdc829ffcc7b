package detector

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pavelkushtia/spotsdk/pkg/log"
	"github.com/pavelkushtia/spotsdk/pkg/types"
)

const (
	azureMetadataURL = "http://169.254.169.254/metadata"
	azureAPIVersion  = "2020-07-01"
)

// azureDeadlineSeconds is the advance notice Azure gives spot VMs
const azureDeadlineSeconds = 30

// AzureDetector polls the Azure IMDS scheduled-events endpoint for
// Preempt and Terminate events targeting this VM.
type AzureDetector struct {
	client  *http.Client
	baseURL string
}

type azureScheduledEvents struct {
	Events []azureEvent `json:"Events"`
}

type azureEvent struct {
	EventID   string   `json:"EventId"`
	EventType string   `json:"EventType"`
	NotBefore string   `json:"NotBefore"`
	Resources []string `json:"Resources"`
}

// NewAzureDetector creates an Azure IMDS detector
func NewAzureDetector(timeout time.Duration) *AzureDetector {
	return &AzureDetector{
		client:  newMetadataClient(timeout),
		baseURL: azureMetadataURL,
	}
}

// Check queries scheduled events. Any event typed Preempt or Terminate
// yields a notice with a 30 second deadline; the action is the event
// type lower-cased.
func (d *AzureDetector) Check(ctx context.Context) *types.TerminationNotice {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		d.baseURL+"/scheduledevents?api-version="+azureAPIVersion, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("Metadata", "true")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil
	}

	var events azureScheduledEvents
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		lg := log.WithComponent("detector")
		lg.Debug().Err(err).Msg("malformed scheduled-events body")
		return nil
	}

	for _, ev := range events.Events {
		if ev.EventType != "Preempt" && ev.EventType != "Terminate" {
			continue
		}
		notice := &types.TerminationNotice{
			CloudProvider:   types.CloudProviderAzure,
			Action:          types.TerminationAction(strings.ToLower(ev.EventType)),
			EffectiveTime:   parseAzureTime(ev.NotBefore),
			Reason:          "azure_scheduled_event",
			DeadlineSeconds: azureDeadlineSeconds,
		}
		lg := log.WithProvider("azure")
		lg.Warn().
			Str("event_id", ev.EventID).
			Str("event_type", ev.EventType).
			Msg("eviction notice received")
		return notice
	}
	return nil
}

// Metadata fetches the instance identity snapshot
func (d *AzureDetector) Metadata(ctx context.Context) (*types.InstanceMetadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		d.baseURL+"/instance/compute?api-version=2020-09-01", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Metadata", "true")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var compute struct {
		VMID     string `json:"vmId"`
		VMSize   string `json:"vmSize"`
		Location string `json:"location"`
		Zone     string `json:"zone"`
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(body, &compute); err != nil {
		return nil, err
	}

	return &types.InstanceMetadata{
		InstanceID:    compute.VMID,
		InstanceType:  compute.VMSize,
		Region:        compute.Location,
		Zone:          compute.Zone,
		CloudProvider: types.CloudProviderAzure,
	}, nil
}

// parseAzureTime parses the RFC1123 timestamps scheduled events carry
func parseAzureTime(s string) time.Time {
	if t, err := time.Parse(time.RFC1123, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Now()
}
