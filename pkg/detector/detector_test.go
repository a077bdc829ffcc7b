package detector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelkushtia/spotsdk/pkg/config"
	"github.com/pavelkushtia/spotsdk/pkg/log"
	"github.com/pavelkushtia/spotsdk/pkg/types"
)

func init() {
	log.Init(log.Config{Level: log.ErrorLevel})
}

// TestAWSDetectorNotice tests parsing of a spot instance-action notice
func TestAWSDetectorNotice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/api/token":
			w.Write([]byte("test-token"))
		case r.URL.Path == "/meta-data/spot/instance-action":
			assert.Equal(t, "test-token", r.Header.Get("X-aws-ec2-metadata-token"))
			w.Write([]byte(`{"action": "terminate", "time": "2026-08-26T12:00:00Z"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	d := NewAWSDetector(2 * time.Second)
	d.baseURL = srv.URL

	notice := d.Check(context.Background())
	require.NotNil(t, notice)
	assert.Equal(t, types.CloudProviderAWS, notice.CloudProvider)
	assert.Equal(t, types.ActionTerminate, notice.Action)
	// AWS gives no explicit deadline; the provider default applies
	assert.Equal(t, 0, notice.DeadlineSeconds)
	assert.Equal(t, 120*time.Second, notice.Deadline(time.Minute))
}

// TestAWSDetectorNoNotice tests that non-200 responses yield nil
func TestAWSDetectorNoNotice(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "404 steady state", status: http.StatusNotFound, body: ""},
		{name: "500 server error", status: http.StatusInternalServerError, body: ""},
		{name: "malformed body", status: http.StatusOK, body: "{not-json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method == http.MethodPut {
					w.WriteHeader(http.StatusNotFound)
					return
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			d := NewAWSDetector(2 * time.Second)
			d.baseURL = srv.URL

			assert.Nil(t, d.Check(context.Background()))
		})
	}
}

// TestAWSDetectorTimeout tests that a hung endpoint yields nil
func TestAWSDetectorTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	d := NewAWSDetector(50 * time.Millisecond)
	d.baseURL = srv.URL

	assert.Nil(t, d.Check(context.Background()))
}

// TestAWSDetectorUnreachable tests that a dead endpoint yields nil
func TestAWSDetectorUnreachable(t *testing.T) {
	d := NewAWSDetector(50 * time.Millisecond)
	d.baseURL = "http://127.0.0.1:1"

	assert.Nil(t, d.Check(context.Background()))
}

// TestGCPDetector tests the preemption flag semantics
func TestGCPDetector(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		want   bool
	}{
		{name: "preempted", body: "TRUE", status: http.StatusOK, want: true},
		{name: "not preempted", body: "FALSE", status: http.StatusOK, want: false},
		{name: "empty body", body: "", status: http.StatusOK, want: false},
		{name: "error status", body: "TRUE", status: http.StatusServiceUnavailable, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "Google", r.Header.Get("Metadata-Flavor"))
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			d := NewGCPDetector(2 * time.Second)
			d.baseURL = srv.URL

			notice := d.Check(context.Background())
			if !tt.want {
				assert.Nil(t, notice)
				return
			}
			require.NotNil(t, notice)
			assert.Equal(t, types.CloudProviderGCP, notice.CloudProvider)
			assert.Equal(t, types.ActionPreempt, notice.Action)
			assert.Equal(t, 30, notice.DeadlineSeconds)
		})
	}
}

// TestAzureDetector tests scheduled-event interpretation
func TestAzureDetector(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantAction types.TerminationAction
		wantNotice bool
	}{
		{
			name:       "preempt event",
			body:       `{"Events": [{"EventId": "e1", "EventType": "Preempt", "NotBefore": "Mon, 19 Sep 2016 18:29:47 GMT"}]}`,
			wantAction: types.ActionPreempt,
			wantNotice: true,
		},
		{
			name:       "terminate event",
			body:       `{"Events": [{"EventId": "e2", "EventType": "Terminate"}]}`,
			wantAction: types.ActionTerminate,
			wantNotice: true,
		},
		{
			name:       "reboot only is informational",
			body:       `{"Events": [{"EventId": "e3", "EventType": "Reboot"}]}`,
			wantNotice: false,
		},
		{
			name:       "no events",
			body:       `{"Events": []}`,
			wantNotice: false,
		},
		{
			name:       "malformed body",
			body:       `{{{`,
			wantNotice: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "true", r.Header.Get("Metadata"))
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			d := NewAzureDetector(2 * time.Second)
			d.baseURL = srv.URL

			notice := d.Check(context.Background())
			if !tt.wantNotice {
				assert.Nil(t, notice)
				return
			}
			require.NotNil(t, notice)
			assert.Equal(t, types.CloudProviderAzure, notice.CloudProvider)
			assert.Equal(t, tt.wantAction, notice.Action)
			assert.Equal(t, 30, notice.DeadlineSeconds)
		})
	}
}

// countingDetector counts real checks for cache tests
type countingDetector struct {
	checks int32
	notice *types.TerminationNotice
}

func (d *countingDetector) Check(ctx context.Context) *types.TerminationNotice {
	atomic.AddInt32(&d.checks, 1)
	return d.notice
}

func (d *countingDetector) Metadata(ctx context.Context) (*types.InstanceMetadata, error) {
	return &types.InstanceMetadata{}, nil
}

// TestCachedDetector tests that results are memoized within the TTL
func TestCachedDetector(t *testing.T) {
	inner := &countingDetector{}
	cached := NewCached(inner, 100*time.Millisecond)

	for i := 0; i < 5; i++ {
		assert.Nil(t, cached.Check(context.Background()))
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&inner.checks))

	time.Sleep(120 * time.Millisecond)
	cached.Check(context.Background())
	assert.Equal(t, int32(2), atomic.LoadInt32(&inner.checks))
}

// TestCachedDetectorCachesNotice tests that a positive result is reused
func TestCachedDetectorCachesNotice(t *testing.T) {
	inner := &countingDetector{notice: &types.TerminationNotice{CloudProvider: types.CloudProviderGCP}}
	cached := NewCached(inner, time.Minute)

	first := cached.Check(context.Background())
	second := cached.Check(context.Background())
	require.NotNil(t, first)
	assert.Same(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&inner.checks))
}

// TestNewResolvesProviders tests detector resolution from config
func TestNewResolvesProviders(t *testing.T) {
	for _, provider := range []types.CloudProvider{
		types.CloudProviderAWS, types.CloudProviderGCP, types.CloudProviderAzure,
	} {
		cfg := config.Default()
		cfg.CloudProvider = provider
		d, err := New(cfg)
		require.NoError(t, err)
		assert.NotNil(t, d)
	}

	cfg := config.Default()
	cfg.CloudProvider = "nonexistent"
	_, err := New(cfg)
	assert.Error(t, err)
}

// TestCustomDetectorRegistration tests the open registry
func TestCustomDetectorRegistration(t *testing.T) {
	handle := Register("mycloud", func(cfg *config.SpotConfig) (Detector, error) {
		return &countingDetector{}, nil
	})
	defer handle.Unregister()

	cfg := config.Default()
	cfg.CloudProvider = "mycloud"
	d, err := New(cfg)
	require.NoError(t, err)
	assert.NotNil(t, d)

	handle.Unregister()
	_, err = New(cfg)
	assert.Error(t, err)
}
