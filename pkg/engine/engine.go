package engine

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/opscart/gpu-fleet-sim/pkg/aggregator"
	"github.com/opscart/gpu-fleet-sim/pkg/analyzer"
	"github.com/opscart/gpu-fleet-sim/pkg/config"
	"github.com/opscart/gpu-fleet-sim/pkg/models"
	"github.com/opscart/gpu-fleet-sim/pkg/simulator"
	"github.com/opscart/gpu-fleet-sim/pkg/spike"
	"github.com/opscart/gpu-fleet-sim/pkg/storage"
)

// ChartLabelLayout formats chart point labels
const ChartLabelLayout = "15:04:05"

const storeTimeout = 5 * time.Second

// Observer receives engine activity, typically the metrics registry
type Observer interface {
	ObserveReport(models.FleetReport)
	ObserveSpike(models.SpikeState)
	SpikeTransition(models.SpikeEvent)
	StorageError()
}

// Options configure an Engine. Zero values fall back to the canonical
// profiles, heuristics, spike table and aggregation constants.
type Options struct {
	Profiles        *simulator.ProfileSet
	Params          *simulator.Params
	Spike           *spike.Config
	ChartCapacity   int
	BaselinePowerMW float64
	CO2Factor       *float64 // nil uses the default; zero disables the offset
	Seed            uint64   // 0 seeds from the clock

	Store    storage.Store // receives spike events; may be nil
	Observer Observer      // may be nil
	Logger   *zap.Logger   // may be nil
	Clock    func() time.Time
}

// Engine owns all shared simulation state: the spike machine, the chart
// history and the mute flag. One Engine is created at startup and shared
// by every session and handler.
type Engine struct {
	machine *spike.Machine
	synth   *simulator.Synthesizer
	agg     *aggregator.Aggregator
	history *aggregator.ChartHistory
	muted   atomic.Bool

	store    storage.Store
	observer Observer
	logger   *zap.Logger
	now      func() time.Time
}

// New creates an engine and wires spike transitions to the logger,
// observer and store.
func New(opts Options) (*Engine, error) {
	profiles := simulator.DefaultProfileSet()
	if opts.Profiles != nil {
		profiles = *opts.Profiles
	}
	params := simulator.DefaultParams()
	if opts.Params != nil {
		params = *opts.Params
	}
	spikeCfg := spike.DefaultConfig()
	if opts.Spike != nil {
		spikeCfg = *opts.Spike
	}
	if opts.ChartCapacity == 0 {
		opts.ChartCapacity = aggregator.DefaultChartCapacity
	}
	if opts.BaselinePowerMW == 0 {
		opts.BaselinePowerMW = aggregator.DefaultBaselinePowerMW
	}
	co2Factor := aggregator.DefaultCO2Factor
	if opts.CO2Factor != nil {
		co2Factor = *opts.CO2Factor
	}
	if opts.Seed == 0 {
		opts.Seed = uint64(time.Now().UnixNano())
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	// separate streams: the machine and the synthesizer lock independently
	synth, err := simulator.NewSynthesizer(profiles, params, rand.New(rand.NewPCG(opts.Seed, 1)))
	if err != nil {
		return nil, fmt.Errorf("invalid simulator setup: %w", err)
	}
	machine, err := spike.New(spikeCfg, rand.New(rand.NewPCG(opts.Seed, 2)))
	if err != nil {
		return nil, fmt.Errorf("invalid spike setup: %w", err)
	}

	e := &Engine{
		machine:  machine,
		synth:    synth,
		agg:      aggregator.New(opts.BaselinePowerMW, co2Factor),
		history:  aggregator.NewChartHistory(opts.ChartCapacity),
		store:    opts.Store,
		observer: opts.Observer,
		logger:   opts.Logger,
		now:      opts.Clock,
	}
	machine.OnTransition(e.handleTransition)

	opts.Logger.Info("simulation engine ready",
		zap.Int("clusters", len(profiles.Profiles)),
		zap.Int("nodes_per_cluster", params.NodesPerCluster),
		zap.Int("next_spike_in_ticks", machine.Countdown()),
	)
	return e, nil
}

// NewFromConfig builds an engine from application configuration
func NewFromConfig(cfg *config.Config, store storage.Store, observer Observer, logger *zap.Logger) (*Engine, error) {
	profiles := simulator.DefaultProfileSet()
	if cfg.ProfilesPath != "" {
		loaded, err := simulator.LoadProfiles(cfg.ProfilesPath)
		if err != nil {
			return nil, err
		}
		profiles = loaded
	}

	params := simulator.DefaultParams()
	params.NodesPerCluster = cfg.NodesPerCluster

	spikeCfg := spike.DefaultConfig()
	spikeCfg.CountdownMin = cfg.SpikeCountdownMin
	spikeCfg.CountdownMax = cfg.SpikeCountdownMax

	co2Factor := cfg.CO2Factor

	return New(Options{
		Profiles:        &profiles,
		Params:          &params,
		Spike:           &spikeCfg,
		ChartCapacity:   cfg.ChartCapacity,
		BaselinePowerMW: cfg.BaselinePowerMW,
		CO2Factor:       &co2Factor,
		Seed:            cfg.Seed,
		Store:           store,
		Observer:        observer,
		Logger:          logger,
	})
}

// Telemetry synthesizes a fresh fleet, appends its chart point to the
// shared history and returns the wire payload. Every call advances the
// history by one point.
func (e *Engine) Telemetry(now time.Time) models.TelemetryPayload {
	report := e.report(now)
	point := aggregator.ChartPoint(report.Fleet, now.UTC().Format(ChartLabelLayout))
	points := e.history.Append(point)
	return models.NewTelemetryPayload(now, report.Fleet, report.Stats, points)
}

// Peek synthesizes a one-shot report without touching the chart history
func (e *Engine) Peek(now time.Time) models.FleetReport {
	return e.report(now)
}

func (e *Engine) report(now time.Time) models.FleetReport {
	state := e.machine.State()
	fleet := e.synth.Synthesize(state)

	report := models.FleetReport{
		Timestamp: now,
		Stats:     e.agg.Stats(fleet),
		Spike:     state,
		Regions:   analyzer.GroupByRegion(fleet),
		Fleet:     fleet,
	}
	e.observer.ObserveReport(report)
	return report
}

// ChartHistory returns a copy of the shared chart history, oldest first
func (e *Engine) ChartHistory() []models.ChartPoint {
	return e.history.Snapshot()
}

// Profiles returns the cluster profiles in fleet order
func (e *Engine) Profiles() []models.ClusterProfile {
	return e.synth.Profiles()
}

// SpikeState returns a copy of the current spike state
func (e *Engine) SpikeState() models.SpikeState {
	return e.machine.State()
}

// SpikeCountdown returns the ticks until the next scheduled spike
func (e *Engine) SpikeCountdown() int {
	return e.machine.Countdown()
}

// TriggerSpike forces the manual global spike
func (e *Engine) TriggerSpike() models.SpikeState {
	return e.machine.Trigger()
}

// Muted reports whether analysis responses omit synthesized audio
func (e *Engine) Muted() bool {
	return e.muted.Load()
}

// SetMuted sets the process-wide mute flag
func (e *Engine) SetMuted(muted bool) {
	e.muted.Store(muted)
}

// RunSpikeClock is the single writer of the spike state. It blocks until
// ctx is cancelled.
func (e *Engine) RunSpikeClock(ctx context.Context, interval time.Duration) {
	e.logger.Info("spike clock started", zap.Duration("interval", interval))
	e.machine.Run(ctx, interval)
	e.logger.Info("spike clock stopped")
}

// RunRecorder saves a stats sample every interval until ctx is cancelled.
// Store failures are logged and counted, never fatal.
func (e *Engine) RunRecorder(ctx context.Context, interval time.Duration, store storage.Store) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sample := SampleFromReport(e.Peek(e.now()))
			if err := e.save(ctx, store, &sample); err != nil {
				e.logger.Warn("failed to record stats sample", zap.Error(err))
				e.observer.StorageError()
			}
		}
	}
}

func (e *Engine) save(ctx context.Context, store storage.Store, sample *models.StatsSample) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	return store.SaveSample(ctx, sample)
}

func (e *Engine) handleTransition(event models.SpikeEvent) {
	e.logger.Info("load spike transition",
		zap.String("transition", string(event.Transition)),
		zap.String("region", event.Region),
		zap.Float64("multiplier", event.Multiplier),
		zap.Int("duration_ticks", event.DurationTicks),
	)
	e.observer.SpikeTransition(event)
	e.observer.ObserveSpike(e.machine.State())

	if e.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := e.store.LogSpikeEvent(ctx, &event); err != nil {
		e.logger.Warn("failed to persist spike event", zap.Error(err))
		e.observer.StorageError()
	}
}

// SampleFromReport flattens a report into a storable sample. Fleet-wide
// averages are node-level, offline nodes counted as zero.
func SampleFromReport(r models.FleetReport) models.StatsSample {
	sample := models.StatsSample{
		RecordedAt:      r.Timestamp,
		Stats:           r.Stats,
		SpikeActive:     r.Spike.Active(),
		SpikeMultiplier: r.Spike.Multiplier,
	}
	if sample.SpikeActive {
		sample.SpikeRegion = r.Spike.AffectedRegion
	}

	point := aggregator.ChartPoint(r.Fleet, "")
	sample.AvgGPULoad = point.AvgGPULoad
	sample.AvgCooling = point.AvgCooling

	for _, n := range r.Fleet.Nodes() {
		sample.TotalNodes++
		if n.Online() {
			sample.OnlineNodes++
		}
	}
	return sample
}

type nopObserver struct{}

func (nopObserver) ObserveReport(models.FleetReport)  {}
func (nopObserver) ObserveSpike(models.SpikeState)    {}
func (nopObserver) SpikeTransition(models.SpikeEvent) {}
func (nopObserver) StorageError()                     {}
