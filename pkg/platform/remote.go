package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pavelkushtia/spotsdk/pkg/log"
	"github.com/pavelkushtia/spotsdk/pkg/types"
)

// RemotePlatform talks to an external scheduler controller over HTTP.
// The controller exposes the drain/scale contract as a small JSON API:
//
//	POST {endpoint}/v1/drain  {"node_id", "action", "reason", "deadline_seconds"}
//	POST {endpoint}/v1/scale  {"target_capacity"}
//	GET  {endpoint}/v1/state
//
// Any transport or non-2xx failure reads as a rejected request (false),
// matching the contract: platform unavailability is never an error.
type RemotePlatform struct {
	endpoint string
	nodeID   string
	client   *http.Client
}

type drainRequest struct {
	NodeID          string `json:"node_id"`
	Action          string `json:"action"`
	Reason          string `json:"reason"`
	DeadlineSeconds int    `json:"deadline_seconds"`
}

type scaleRequest struct {
	TargetCapacity int `json:"target_capacity"`
}

type stateResponse struct {
	TotalNodes   int               `json:"total_nodes"`
	HealthyNodes int               `json:"healthy_nodes"`
	Nodes        map[string]string `json:"nodes"`
}

// NewRemotePlatform creates a controller-backed platform client
func NewRemotePlatform(endpoint, nodeID string) (*RemotePlatform, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("platform_endpoint is required for the remote platform")
	}
	return &RemotePlatform{
		endpoint: strings.TrimRight(endpoint, "/"),
		nodeID:   nodeID,
		client:   &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// Drain asks the controller to gracefully remove this node
func (p *RemotePlatform) Drain(ctx context.Context, notice *types.TerminationNotice) bool {
	req := drainRequest{
		NodeID:          p.nodeID,
		Action:          string(notice.Action),
		Reason:          notice.Reason,
		DeadlineSeconds: notice.DeadlineSeconds,
	}
	return p.post(ctx, "/v1/drain", req)
}

// Scale asks the controller for a new target capacity
func (p *RemotePlatform) Scale(ctx context.Context, targetCapacity int) bool {
	return p.post(ctx, "/v1/scale", scaleRequest{TargetCapacity: targetCapacity})
}

// ClusterState fetches the controller's view of the pool. An
// unreachable controller yields an unknown-sized snapshot rather than
// an error.
func (p *RemotePlatform) ClusterState(ctx context.Context) *types.ClusterState {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"/v1/state", nil)
	if err != nil {
		return &types.ClusterState{CapturedAt: time.Now()}
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		lg := log.WithComponent("platform")
		lg.Debug().Err(err).Msg("cluster state fetch failed")
		return &types.ClusterState{CapturedAt: time.Now()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &types.ClusterState{CapturedAt: time.Now()}
	}

	var body stateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return &types.ClusterState{CapturedAt: time.Now()}
	}

	nodes := make(map[string]types.NodeState, len(body.Nodes))
	for id, state := range body.Nodes {
		nodes[id] = types.NodeState(state)
	}
	return &types.ClusterState{
		TotalNodes:   body.TotalNodes,
		HealthyNodes: body.HealthyNodes,
		Nodes:        nodes,
		CapturedAt:   time.Now(),
	}
}

func (p *RemotePlatform) post(ctx context.Context, path string, payload any) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		return false
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+path, bytes.NewReader(data))
	if err != nil {
		return false
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		lg := log.WithComponent("platform")
		lg.Warn().Err(err).Str("path", path).Msg("controller request failed")
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
