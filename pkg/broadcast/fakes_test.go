package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opscart/gpu-fleet-sim/pkg/gateway"
	"github.com/opscart/gpu-fleet-sim/pkg/models"
)

var errConnClosed = errors.New("connection closed")

// fakeConn feeds inbound frames from a channel and records every write
type fakeConn struct {
	in       chan []byte
	closed   chan struct{}
	once     sync.Once
	writeErr error

	mu  sync.Mutex
	out []map[string]any
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case data, ok := <-c.in:
		if !ok {
			return nil, io.EOF
		}
		return data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closed:
		return nil, errConnClosed
	}
}

func (c *fakeConn) WriteJSON(ctx context.Context, v any) error {
	select {
	case <-c.closed:
		return errConnClosed
	default:
	}
	if c.writeErr != nil {
		return c.writeErr
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.out = append(c.out, msg)
	return nil
}

func (c *fakeConn) Close(string) error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) send(s string) {
	c.in <- []byte(s)
}

func (c *fakeConn) messages(kind MessageKind) []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []map[string]any
	for _, m := range c.out {
		if m["type"] == string(kind) {
			out = append(out, m)
		}
	}
	return out
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.out)
}

// waitFor polls until at least n messages of kind were written
func waitFor(t *testing.T, c *fakeConn, kind MessageKind, n int) []map[string]any {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if msgs := c.messages(kind); len(msgs) >= n {
			return msgs
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %d %q messages, got %d", n, kind, len(c.messages(kind)))
	return nil
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

type fakeEngine struct {
	telemetry atomic.Int32
	peeks     atomic.Int32
	muted     atomic.Bool
}

func (e *fakeEngine) Telemetry(now time.Time) models.TelemetryPayload {
	e.telemetry.Add(1)
	return models.NewTelemetryPayload(now, models.FleetSnapshot{}, models.StatsSnapshot{}, nil)
}

func (e *fakeEngine) Peek(now time.Time) models.FleetReport {
	e.peeks.Add(1)
	return models.FleetReport{Timestamp: now}
}

func (e *fakeEngine) Muted() bool         { return e.muted.Load() }
func (e *fakeEngine) SetMuted(muted bool) { e.muted.Store(muted) }

// fakeGateway answers with fixed text; when release is set every call
// blocks until it is closed.
type fakeGateway struct {
	text    string
	audio   []byte
	err     error
	release chan struct{}
	calls   atomic.Int32
	spoken  atomic.Int32
}

func (g *fakeGateway) wait(ctx context.Context) error {
	g.calls.Add(1)
	if g.release == nil {
		return nil
	}
	select {
	case <-g.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *fakeGateway) Analyze(ctx context.Context, _ models.FleetReport) (string, error) {
	if err := g.wait(ctx); err != nil {
		return "", err
	}
	return g.text, g.err
}

func (g *fakeGateway) Answer(ctx context.Context, _ models.FleetReport, question string) (string, error) {
	if err := g.wait(ctx); err != nil {
		return "", err
	}
	if g.err != nil {
		return "", g.err
	}
	return g.text + " " + question, nil
}

func (g *fakeGateway) Speak(context.Context, string) ([]byte, error) {
	g.spoken.Add(1)
	if g.audio == nil {
		return nil, gateway.ErrSpeechUnavailable
	}
	return g.audio, nil
}

type countingRecorder struct {
	opened, closed, pushed atomic.Int32

	mu       sync.Mutex
	received map[string]int
	outcomes map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{received: map[string]int{}, outcomes: map[string]int{}}
}

func (r *countingRecorder) SessionOpened()   { r.opened.Add(1) }
func (r *countingRecorder) SessionClosed()   { r.closed.Add(1) }
func (r *countingRecorder) TelemetryPushed() { r.pushed.Add(1) }

func (r *countingRecorder) MessageReceived(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.received[kind]++
}

func (r *countingRecorder) AnalysisRequest(kind, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes[kind+"/"+outcome]++
}

func (r *countingRecorder) outcome(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outcomes[key]
}
