package spike

import (
	"sync"
	"testing"

	"github.com/opscart/gpu-fleet-sim/pkg/models"
)

// sequenceRand replays fixed draws, each reduced modulo n
type sequenceRand struct {
	values []int
	next   int
}

func (r *sequenceRand) IntN(n int) int {
	v := r.values[r.next%len(r.values)]
	r.next++
	return v % n
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.CountdownMin = 3
	cfg.CountdownMax = 5
	return cfg
}

func TestNewStartsNormal(t *testing.T) {
	m, err := New(testConfig(), &sequenceRand{values: []int{1}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	state := m.State()
	if state.Status != models.SpikeNormal {
		t.Errorf("Expected normal status, got %s", state.Status)
	}
	if state.Multiplier != 1.0 || state.TicksRemaining != 0 {
		t.Errorf("Normal state must have multiplier 1.0 and 0 ticks, got %.2f / %d", state.Multiplier, state.TicksRemaining)
	}
	if state.AffectedRegion != models.GlobalRegion {
		t.Errorf("Expected region %q, got %q", models.GlobalRegion, state.AffectedRegion)
	}
	if m.Countdown() != 4 {
		t.Errorf("Expected countdown 4 (3 + draw 1), got %d", m.Countdown())
	}
}

func TestSpikeStartsAfterCountdown(t *testing.T) {
	// countdown draw 1 -> 4 ticks, table draw 2 -> Asia
	m, err := New(testConfig(), &sequenceRand{values: []int{1, 2, 0}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	countdown := m.Countdown()
	for i := 0; i < countdown-1; i++ {
		m.Tick()
		if m.State().Active() {
			t.Fatalf("Spike started early after %d ticks", i+1)
		}
	}

	m.Tick()
	state := m.State()
	if !state.Active() {
		t.Fatalf("Expected spike after %d ticks, got %s", countdown, state.Status)
	}

	want := DefaultTable[2]
	if state.AffectedRegion != want.Region || state.Multiplier != want.Multiplier || state.TicksRemaining != want.DurationTicks {
		t.Errorf("Expected %+v, got %+v", want, state)
	}
}

func TestSpikeEndsAfterDuration(t *testing.T) {
	m, err := New(testConfig(), &sequenceRand{values: []int{0, 1, 2}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	for !m.State().Active() {
		m.Tick()
	}
	duration := m.State().TicksRemaining

	for i := 0; i < duration-1; i++ {
		m.Tick()
		if !m.State().Active() {
			t.Fatalf("Spike ended early after %d of %d ticks", i+1, duration)
		}
	}

	m.Tick()
	state := m.State()
	if state.Status != models.SpikeNormal {
		t.Fatalf("Expected normal after %d ticks, got %s", duration, state.Status)
	}
	if state.Multiplier != 1.0 || state.TicksRemaining != 0 || state.AffectedRegion != models.GlobalRegion {
		t.Errorf("Normal state not reset: %+v", state)
	}
	// reseeded from draw 2 -> 3 + 2
	if m.Countdown() != 5 {
		t.Errorf("Expected reseeded countdown 5, got %d", m.Countdown())
	}
}

func TestTriggerOverridesCountdown(t *testing.T) {
	m, err := New(testConfig(), &sequenceRand{values: []int{2, 0}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	state := m.Trigger()
	if !state.Active() {
		t.Fatal("Trigger did not start a spike")
	}
	if state.AffectedRegion != models.GlobalRegion || state.Multiplier != ManualSpike.Multiplier {
		t.Errorf("Expected manual global spike, got %+v", state)
	}
	if m.State() != state {
		t.Errorf("State() %+v differs from Trigger result %+v", m.State(), state)
	}

	for i := 0; i < ManualSpike.DurationTicks; i++ {
		m.Tick()
	}
	if m.State().Active() {
		t.Errorf("Manual spike should end after %d ticks", ManualSpike.DurationTicks)
	}
}

func TestTriggerDuringSpikeRestartsDuration(t *testing.T) {
	m, err := New(testConfig(), &sequenceRand{values: []int{0, 1}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	for !m.State().Active() {
		m.Tick()
	}
	m.Tick()

	state := m.Trigger()
	if state.TicksRemaining != ManualSpike.DurationTicks {
		t.Errorf("Expected %d ticks remaining, got %d", ManualSpike.DurationTicks, state.TicksRemaining)
	}
	if state.AffectedRegion != models.GlobalRegion {
		t.Errorf("Expected global region, got %s", state.AffectedRegion)
	}
}

func TestStateReturnsCopy(t *testing.T) {
	m, err := New(testConfig(), &sequenceRand{values: []int{0}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	state := m.State()
	state.Status = models.SpikeActive
	state.Multiplier = 9

	if m.State().Status != models.SpikeNormal || m.State().Multiplier != 1.0 {
		t.Error("Mutating the returned state changed the machine")
	}
}

func TestOnTransitionEvents(t *testing.T) {
	m, err := New(testConfig(), &sequenceRand{values: []int{0, 3}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	var events []models.SpikeEvent
	m.OnTransition(func(e models.SpikeEvent) {
		events = append(events, e)
	})

	for len(events) < 2 {
		m.Tick()
	}
	m.Trigger()

	want := []models.SpikeTransition{models.TransitionStarted, models.TransitionEnded, models.TransitionTriggered}
	if len(events) != len(want) {
		t.Fatalf("Expected %d events, got %d", len(want), len(events))
	}
	for i, e := range events {
		if e.Transition != want[i] {
			t.Errorf("Event %d: expected %s, got %s", i, want[i], e.Transition)
		}
	}
	if events[0].Region != models.GlobalRegion {
		t.Errorf("Expected table row 3 (global), got %s", events[0].Region)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		valid  bool
	}{
		{"default", func(c *Config) {}, true},
		{"empty table", func(c *Config) { c.Table = nil }, false},
		{"multiplier below one", func(c *Config) { c.Table[0].Multiplier = 0.5 }, false},
		{"zero duration", func(c *Config) { c.Table[1].DurationTicks = 0 }, false},
		{"inverted countdown", func(c *Config) { c.CountdownMin, c.CountdownMax = 10, 5 }, false},
		{"zero countdown", func(c *Config) { c.CountdownMin = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.valid && err != nil {
				t.Errorf("Expected valid config, got %v", err)
			}
			if !tt.valid && err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestConcurrentReadsDuringTicks(t *testing.T) {
	m, err := New(testConfig(), &sequenceRand{values: []int{0, 1, 2, 3}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				s := m.State()
				if s.Status == models.SpikeNormal && (s.Multiplier != 1.0 || s.TicksRemaining != 0) {
					t.Errorf("Torn read: %+v", s)
					return
				}
			}
		}()
	}

	for i := 0; i < 200; i++ {
		m.Tick()
	}
	wg.Wait()
}
