package spike

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/opscart/gpu-fleet-sim/pkg/models"
)

// Rand is the random source the machine draws spike profiles and
// countdowns from. *rand.Rand from math/rand/v2 satisfies it.
type Rand interface {
	IntN(n int) int
}

// Config describes the spike table and countdown range, in ticks
type Config struct {
	Table        []models.SpikeProfile
	CountdownMin int
	CountdownMax int
	Manual       models.SpikeProfile
}

// DefaultTable is the canonical set of regional spikes
var DefaultTable = []models.SpikeProfile{
	{Region: "US", Multiplier: 1.4, DurationTicks: 15},
	{Region: "EU", Multiplier: 1.3, DurationTicks: 10},
	{Region: "Asia", Multiplier: 1.5, DurationTicks: 12},
	{Region: models.GlobalRegion, Multiplier: 1.25, DurationTicks: 8},
}

// ManualSpike is applied by Trigger
var ManualSpike = models.SpikeProfile{
	Region:        models.GlobalRegion,
	Multiplier:    1.5,
	DurationTicks: 15,
}

// DefaultConfig returns the canonical configuration: a spike every
// 60-150 ticks (120-300s at a 2s tick).
func DefaultConfig() Config {
	table := make([]models.SpikeProfile, len(DefaultTable))
	copy(table, DefaultTable)
	return Config{
		Table:        table,
		CountdownMin: 60,
		CountdownMax: 150,
		Manual:       ManualSpike,
	}
}

// Validate checks the table and countdown range
func (c Config) Validate() error {
	if len(c.Table) == 0 {
		return fmt.Errorf("spike table must not be empty")
	}
	for i, p := range c.Table {
		if p.Multiplier < 1.0 {
			return fmt.Errorf("spike profile %d: multiplier must be >= 1.0, got %.2f", i, p.Multiplier)
		}
		if p.DurationTicks < 1 {
			return fmt.Errorf("spike profile %d: duration must be at least 1 tick", i)
		}
		if p.Region == "" {
			return fmt.Errorf("spike profile %d: region must be set", i)
		}
	}
	if c.CountdownMin < 1 || c.CountdownMax < c.CountdownMin {
		return fmt.Errorf("invalid countdown range [%d, %d]", c.CountdownMin, c.CountdownMax)
	}
	if c.Manual.Multiplier < 1.0 || c.Manual.DurationTicks < 1 {
		return fmt.Errorf("invalid manual spike profile")
	}
	return nil
}

// Machine is the process-wide load-spike state. Tick is meant to be
// driven by a single goroutine; State is safe from any goroutine.
type Machine struct {
	mu        sync.RWMutex
	cfg       Config
	rnd       Rand
	state     models.SpikeState
	countdown int

	now          func() time.Time
	onTransition func(models.SpikeEvent)
}

// New creates a machine in the normal state with a freshly drawn countdown
func New(cfg Config, rnd Rand) (*Machine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Machine{
		cfg:   cfg,
		rnd:   rnd,
		state: normalState(),
		now:   time.Now,
	}
	m.countdown = m.drawCountdown()
	return m, nil
}

// OnTransition registers a callback invoked after every state change.
// The callback runs outside the machine lock on the ticking goroutine.
func (m *Machine) OnTransition(fn func(models.SpikeEvent)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onTransition = fn
}

// State returns a copy of the current state
func (m *Machine) State() models.SpikeState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Countdown returns the ticks left until the next scheduled spike.
// It is meaningless while a spike is active.
func (m *Machine) Countdown() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.countdown
}

// Tick advances the machine by one period
func (m *Machine) Tick() {
	m.mu.Lock()
	var event *models.SpikeEvent

	if m.state.Active() {
		m.state.TicksRemaining--
		if m.state.TicksRemaining <= 0 {
			ended := m.state
			m.state = normalState()
			m.countdown = m.drawCountdown()
			event = m.event(models.TransitionEnded, models.SpikeProfile{
				Region:     ended.AffectedRegion,
				Multiplier: ended.Multiplier,
			})
		}
	} else {
		m.countdown--
		if m.countdown <= 0 {
			profile := m.cfg.Table[m.rnd.IntN(len(m.cfg.Table))]
			m.state = spikeState(profile)
			m.countdown = 0
			event = m.event(models.TransitionStarted, profile)
		}
	}

	callback := m.onTransition
	m.mu.Unlock()

	if event != nil && callback != nil {
		callback(*event)
	}
}

// Trigger forces an immediate global spike, overriding the countdown or
// any spike already in progress.
func (m *Machine) Trigger() models.SpikeState {
	m.mu.Lock()
	m.state = spikeState(m.cfg.Manual)
	m.countdown = 0
	state := m.state
	event := m.event(models.TransitionTriggered, m.cfg.Manual)
	callback := m.onTransition
	m.mu.Unlock()

	if callback != nil {
		callback(*event)
	}
	return state
}

// Run ticks the machine every interval until ctx is cancelled. Only one
// Run may be active per machine.
func (m *Machine) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Tick()
		}
	}
}

func (m *Machine) drawCountdown() int {
	span := m.cfg.CountdownMax - m.cfg.CountdownMin + 1
	return m.cfg.CountdownMin + m.rnd.IntN(span)
}

func (m *Machine) event(transition models.SpikeTransition, profile models.SpikeProfile) *models.SpikeEvent {
	return &models.SpikeEvent{
		Transition:    transition,
		Region:        profile.Region,
		Multiplier:    profile.Multiplier,
		DurationTicks: profile.DurationTicks,
		OccurredAt:    m.now(),
	}
}

func normalState() models.SpikeState {
	return models.SpikeState{
		Status:         models.SpikeNormal,
		Multiplier:     1.0,
		AffectedRegion: models.GlobalRegion,
	}
}

func spikeState(p models.SpikeProfile) models.SpikeState {
	return models.SpikeState{
		Status:         models.SpikeActive,
		Multiplier:     p.Multiplier,
		AffectedRegion: p.Region,
		TicksRemaining: p.DurationTicks,
	}
}
