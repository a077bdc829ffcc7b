package detector

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pavelkushtia/spotsdk/pkg/log"
	"github.com/pavelkushtia/spotsdk/pkg/types"
)

const (
	awsMetadataURL = "http://169.254.169.254/latest"
	awsTokenTTL    = 6 * time.Hour
)

// AWSDetector polls the EC2 Instance Metadata Service for a spot
// instance-action notice. It authenticates with a short-lived IMDSv2
// token and falls back to the unauthenticated path when token issuance
// fails.
type AWSDetector struct {
	client  *http.Client
	baseURL string

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// awsInstanceAction is the IMDS spot/instance-action response body
type awsInstanceAction struct {
	Action string `json:"action"`
	Time   string `json:"time"`
}

// NewAWSDetector creates an AWS IMDS detector
func NewAWSDetector(timeout time.Duration) *AWSDetector {
	return &AWSDetector{
		client:  newMetadataClient(timeout),
		baseURL: awsMetadataURL,
	}
}

// Check queries the spot instance-action path. A 200 response carrying
// an action/time body yields a notice without an explicit deadline
// (AWS gives roughly two minutes); everything else means no notice.
func (d *AWSDetector) Check(ctx context.Context) *types.TerminationNotice {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/meta-data/spot/instance-action", nil)
	if err != nil {
		return nil
	}
	if token := d.imdsToken(ctx); token != "" {
		req.Header.Set("X-aws-ec2-metadata-token", token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		// Timeouts and connection errors are normal off EC2
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil
	}

	var action awsInstanceAction
	if err := json.NewDecoder(resp.Body).Decode(&action); err != nil {
		lg := log.WithComponent("detector")
		lg.Debug().Err(err).Msg("malformed instance-action body")
		return nil
	}

	notice := &types.TerminationNotice{
		CloudProvider: types.CloudProviderAWS,
		Action:        parseAction(action.Action),
		EffectiveTime: parseMetadataTime(action.Time),
		Reason:        "spot_interruption",
	}
	lg := log.WithProvider("aws")
	lg.Warn().
		Str("action", string(notice.Action)).
		Time("effective_time", notice.EffectiveTime).
		Msg("spot termination notice received")
	return notice
}

// Metadata fetches the instance identity snapshot
func (d *AWSDetector) Metadata(ctx context.Context) (*types.InstanceMetadata, error) {
	token := d.imdsToken(ctx)

	get := func(path string) string {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/meta-data/"+path, nil)
		if err != nil {
			return ""
		}
		if token != "" {
			req.Header.Set("X-aws-ec2-metadata-token", token)
		}
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

	zone := get("placement/availability-zone")
	region := zone
	if len(zone) > 1 {
		region = zone[:len(zone)-1]
	}

	return &types.InstanceMetadata{
		InstanceID:    get("instance-id"),
		InstanceType:  get("instance-type"),
		Zone:          zone,
		Region:        region,
		CloudProvider: types.CloudProviderAWS,
	}, nil
}

// imdsToken returns a cached IMDSv2 token, requesting a fresh one when
// the cached token is within 10 seconds of expiry. An empty return
// means fall back to IMDSv1.
func (d *AWSDetector) imdsToken(ctx context.Context) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.token != "" && time.Now().Before(d.tokenExpiry.Add(-10*time.Second)) {
		return d.token
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, d.baseURL+"/api/token", nil)
	if err != nil {
		return ""
	}
	req.Header.Set("X-aws-ec2-metadata-token-ttl-seconds", "21600")

	resp, err := d.client.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ""
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return ""
	}

	d.token = strings.TrimSpace(string(body))
	d.tokenExpiry = time.Now().Add(awsTokenTTL)
	return d.token
}

func parseAction(s string) types.TerminationAction {
	switch strings.ToLower(s) {
	case "stop":
		return types.ActionStop
	case "hibernate", "preempt":
		return types.ActionPreempt
	default:
		return types.ActionTerminate
	}
}

// parseMetadataTime parses the RFC3339 timestamps metadata services
// emit, falling back to now for unparseable values.
func parseMetadataTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Now()
}
