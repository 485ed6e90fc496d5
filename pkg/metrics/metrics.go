package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opscart/gpu-fleet-sim/pkg/models"
)

// Series names exported on /metrics. The datasource queries them back.
const (
	PowerDrawMW      = "fleet_power_draw_mw"
	EnergySavingsPct = "fleet_energy_savings_pct"
	CoolingPUE       = "fleet_cooling_pue"
	CO2OffsetKg      = "fleet_co2_offset_kg"
	AvgGPULoadPct    = "fleet_avg_gpu_load_pct"
	AvgCoolingPct    = "fleet_avg_cooling_pct"
	OnlineNodes      = "fleet_online_nodes"
	ClusterGPULoad   = "fleet_cluster_gpu_load_pct"
	ClusterPowerKW   = "fleet_cluster_power_kw"
	SpikeActive      = "fleet_spike_active"
	SpikeMultiplier  = "fleet_spike_multiplier"
)

// Metrics holds the simulator's collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	powerDraw     prometheus.Gauge
	energySavings prometheus.Gauge
	coolingPUE    prometheus.Gauge
	co2Offset     prometheus.Gauge
	avgGPULoad    prometheus.Gauge
	avgCooling    prometheus.Gauge
	onlineNodes   prometheus.Gauge

	clusterLoad  *prometheus.GaugeVec
	clusterPower *prometheus.GaugeVec

	spikeActive      prometheus.Gauge
	spikeMultiplier  prometheus.Gauge
	spikeTransitions *prometheus.CounterVec

	sessionsOpen     prometheus.Gauge
	telemetryPushes  prometheus.Counter
	messagesReceived *prometheus.CounterVec
	analysisRequests *prometheus.CounterVec
	storageErrors    prometheus.Counter
}

// New creates and registers all collectors, plus the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		powerDraw:     gauge(PowerDrawMW, "Total fleet IT power draw in megawatts."),
		energySavings: gauge(EnergySavingsPct, "Energy savings against the baseline power draw, in percent. May be negative."),
		coolingPUE:    gauge(CoolingPUE, "Power usage effectiveness including cooling plant power."),
		co2Offset:     gauge(CO2OffsetKg, "CO2 offset estimate in kilograms."),
		avgGPULoad:    gauge(AvgGPULoadPct, "Mean GPU load over all nodes, offline nodes counted as zero."),
		avgCooling:    gauge(AvgCoolingPct, "Mean cooling output over all nodes, offline nodes counted as zero."),
		onlineNodes:   gauge(OnlineNodes, "Number of online nodes."),

		clusterLoad: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: ClusterGPULoad,
			Help: "Mean GPU load per cluster.",
		}, []string{"cluster", "region"}),
		clusterPower: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: ClusterPowerKW,
			Help: "Total power draw per cluster in kilowatts.",
		}, []string{"cluster", "region"}),

		spikeActive:     gauge(SpikeActive, "1 while a load spike is in progress."),
		spikeMultiplier: gauge(SpikeMultiplier, "Load multiplier of the current spike, 1 when normal."),
		spikeTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleet_spike_transitions_total",
			Help: "Spike state machine transitions.",
		}, []string{"transition", "region"}),

		sessionsOpen: gauge("fleet_sessions_open", "Currently open observer sessions."),
		telemetryPushes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleet_telemetry_pushes_total",
			Help: "Telemetry payloads sent to sessions.",
		}),
		messagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleet_messages_received_total",
			Help: "Inbound session messages by kind.",
		}, []string{"type"}),
		analysisRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleet_analysis_requests_total",
			Help: "Analysis gateway requests by kind and outcome.",
		}, []string{"kind", "outcome"}),
		storageErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleet_storage_errors_total",
			Help: "Failed writes to the history store.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.powerDraw, m.energySavings, m.coolingPUE, m.co2Offset,
		m.avgGPULoad, m.avgCooling, m.onlineNodes,
		m.clusterLoad, m.clusterPower,
		m.spikeActive, m.spikeMultiplier, m.spikeTransitions,
		m.sessionsOpen, m.telemetryPushes, m.messagesReceived,
		m.analysisRequests, m.storageErrors,
	)
	return m
}

func gauge(name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
}

// Registry exposes the underlying registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveReport updates the fleet gauges from a one-shot report
func (m *Metrics) ObserveReport(r models.FleetReport) {
	m.powerDraw.Set(r.Stats.PowerDrawMW)
	m.energySavings.Set(r.Stats.EnergySavingsPct)
	m.coolingPUE.Set(r.Stats.CoolingPUE)
	m.co2Offset.Set(r.Stats.CO2OffsetKg)

	var load, cooling float64
	online := 0
	nodes := r.Fleet.Nodes()
	for _, n := range nodes {
		load += n.GPULoad
		cooling += n.Cooling
		if n.Online() {
			online++
		}
	}
	if len(nodes) > 0 {
		load /= float64(len(nodes))
		cooling /= float64(len(nodes))
	}
	m.avgGPULoad.Set(load)
	m.avgCooling.Set(cooling)
	m.onlineNodes.Set(float64(online))

	for _, c := range r.Fleet.Clusters {
		m.clusterLoad.WithLabelValues(c.Profile.Letter, c.Profile.Region).Set(c.AvgGPULoad)
		m.clusterPower.WithLabelValues(c.Profile.Letter, c.Profile.Region).Set(c.TotalPowerKW)
	}

	m.ObserveSpike(r.Spike)
}

// ObserveSpike updates the spike gauges
func (m *Metrics) ObserveSpike(s models.SpikeState) {
	active := 0.0
	if s.Active() {
		active = 1
	}
	m.spikeActive.Set(active)
	m.spikeMultiplier.Set(s.Multiplier)
}

// SpikeTransition counts one state machine transition
func (m *Metrics) SpikeTransition(e models.SpikeEvent) {
	m.spikeTransitions.WithLabelValues(string(e.Transition), e.Region).Inc()
}

// SessionOpened and SessionClosed track the open session gauge
func (m *Metrics) SessionOpened() { m.sessionsOpen.Inc() }

func (m *Metrics) SessionClosed() { m.sessionsOpen.Dec() }

// TelemetryPushed counts one payload sent to a session
func (m *Metrics) TelemetryPushed() { m.telemetryPushes.Inc() }

// MessageReceived counts one inbound message by kind
func (m *Metrics) MessageReceived(kind string) {
	m.messagesReceived.WithLabelValues(kind).Inc()
}

// AnalysisRequest counts one gateway call. outcome is "ok" or "error".
func (m *Metrics) AnalysisRequest(kind, outcome string) {
	m.analysisRequests.WithLabelValues(kind, outcome).Inc()
}

// StorageError counts one failed store write
func (m *Metrics) StorageError() { m.storageErrors.Inc() }
