package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/opscart/gpu-fleet-sim/pkg/broadcast"
	"github.com/opscart/gpu-fleet-sim/pkg/engine"
	"github.com/opscart/gpu-fleet-sim/pkg/gateway"
	"github.com/opscart/gpu-fleet-sim/pkg/metrics"
	"github.com/opscart/gpu-fleet-sim/pkg/models"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func newTestServer(t *testing.T, health Pinger) (*httptest.Server, *engine.Engine) {
	t.Helper()
	eng, err := engine.New(engine.Options{Seed: 7})
	if err != nil {
		t.Fatalf("engine.New failed: %v", err)
	}
	hub := broadcast.NewHub(eng, gateway.NewOffline(), broadcast.HubOptions{})

	s, err := New(Config{
		Engine:  eng,
		Hub:     hub,
		Metrics: metrics.New().Handler(),
		Health:  health,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts, eng
}

func getJSON(t *testing.T, url string, wantStatus int, v any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		t.Fatalf("GET %s: expected status %d, got %d", url, wantStatus, resp.StatusCode)
	}
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("GET %s: invalid JSON: %v", url, err)
		}
	}
}

func TestNewRequiresEngineAndHub(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("Expected error without engine")
	}
	eng, err := engine.New(engine.Options{Seed: 1})
	if err != nil {
		t.Fatalf("engine.New failed: %v", err)
	}
	if _, err := New(Config{Engine: eng}); err == nil {
		t.Error("Expected error without hub")
	}
}

func TestSnapshot(t *testing.T) {
	ts, eng := newTestServer(t, nil)

	var report models.FleetReport
	getJSON(t, ts.URL+"/api/snapshot", http.StatusOK, &report)

	if len(report.Fleet.Clusters) != 8 {
		t.Errorf("Expected 8 clusters, got %d", len(report.Fleet.Clusters))
	}
	if len(report.Regions) == 0 {
		t.Error("Expected regional summaries")
	}
	if report.Stats.PowerDrawMW <= 0 {
		t.Errorf("Expected positive power draw, got %v", report.Stats.PowerDrawMW)
	}
	if len(eng.ChartHistory()) != 0 {
		t.Error("Snapshots must not advance the chart history")
	}
}

func TestRegions(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	var resp regionsResponse
	getJSON(t, ts.URL+"/api/regions", http.StatusOK, &resp)

	if resp.Timestamp == "" {
		t.Error("Expected a timestamp")
	}
	clusters := 0
	for _, r := range resp.Regions {
		clusters += r.ClusterCount
	}
	if clusters != 8 {
		t.Errorf("Regions should cover 8 clusters, got %d", clusters)
	}
}

func TestChartReflectsPushes(t *testing.T) {
	ts, eng := newTestServer(t, nil)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	eng.Telemetry(now)
	eng.Telemetry(now.Add(2 * time.Second))

	var chart models.ChartData
	getJSON(t, ts.URL+"/api/chart", http.StatusOK, &chart)

	if len(chart.Labels) != 2 || chart.Labels[1] != "12:00:02" {
		t.Errorf("Unexpected labels: %v", chart.Labels)
	}
	if len(chart.Datasets) != 3 {
		t.Errorf("Expected 3 datasets, got %d", len(chart.Datasets))
	}
}

func TestProfiles(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	var profiles []models.ClusterProfile
	getJSON(t, ts.URL+"/api/profiles", http.StatusOK, &profiles)
	if len(profiles) != 8 || profiles[0].Letter != "A" {
		t.Errorf("Unexpected profiles: %+v", profiles)
	}
}

func TestSpikeTrigger(t *testing.T) {
	ts, eng := newTestServer(t, nil)

	var before spikeResponse
	getJSON(t, ts.URL+"/api/spike", http.StatusOK, &before)
	if before.Status != models.SpikeNormal || before.NextSpikeInTicks <= 0 {
		t.Errorf("Expected normal state with a countdown, got %+v", before)
	}

	resp, err := http.Post(ts.URL+"/api/spike/trigger", "application/json", nil)
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", resp.StatusCode)
	}

	var triggered spikeResponse
	if err := json.NewDecoder(resp.Body).Decode(&triggered); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if triggered.Status != models.SpikeActive || triggered.AffectedRegion != models.GlobalRegion || triggered.Multiplier != 1.5 {
		t.Errorf("Unexpected triggered state: %+v", triggered)
	}
	if !eng.SpikeState().Active() {
		t.Error("Engine should report an active spike")
	}
}

func TestTriggerRequiresPost(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	getJSON(t, ts.URL+"/api/spike/trigger", http.StatusMethodNotAllowed, nil)
}

func TestSetMute(t *testing.T) {
	ts, eng := newTestServer(t, nil)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantMuted  bool
	}{
		{"mute", `{"muted":true}`, http.StatusOK, true},
		{"unmute", `{"muted":false}`, http.StatusOK, false},
		{"missing field", `{}`, http.StatusBadRequest, false},
		{"not json", `yes`, http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodPut, ts.URL+"/api/mute", strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("NewRequest failed: %v", err)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("PUT failed: %v", err)
			}
			resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, resp.StatusCode)
			}
			if eng.Muted() != tt.wantMuted {
				t.Errorf("Expected muted=%v, got %v", tt.wantMuted, eng.Muted())
			}
		})
	}

	var state muteResponse
	getJSON(t, ts.URL+"/api/mute", http.StatusOK, &state)
	if state.Muted {
		t.Error("Expected unmuted state")
	}
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t, fakePinger{})
	getJSON(t, ts.URL+"/healthz", http.StatusOK, nil)

	failing, _ := newTestServer(t, fakePinger{err: errors.New("connection refused")})
	var body map[string]string
	getJSON(t, failing.URL+"/healthz", http.StatusServiceUnavailable, &body)
	if body["error"] == "" {
		t.Error("Expected an error message")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("Expected runtime metrics in exposition")
	}
}
