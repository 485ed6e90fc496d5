package broadcast

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/opscart/gpu-fleet-sim/pkg/models"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	hub    *Hub
	engine *fakeEngine
	gw     *fakeGateway
	rec    *countingRecorder
}

func newHarness(gw *fakeGateway, pushInterval time.Duration) *harness {
	h := &harness{
		engine: &fakeEngine{},
		gw:     gw,
		rec:    newCountingRecorder(),
	}
	h.hub = NewHub(h.engine, gw, HubOptions{
		PushInterval: pushInterval,
		Recorder:     h.rec,
		Clock:        func() time.Time { return fixedNow },
	})
	return h
}

// start runs a session and waits until it has joined the hub
func (h *harness) start(t *testing.T) (*Session, *fakeConn, <-chan error) {
	t.Helper()
	conn := newFakeConn()
	s := h.hub.NewSession(conn)
	before := h.rec.opened.Load()

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()
	t.Cleanup(s.Close)

	waitUntil(t, "session to open", func() bool { return h.rec.opened.Load() > before })
	return s, conn, done
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Session did not stop")
		return nil
	}
}

func TestSessionPushesTelemetry(t *testing.T) {
	h := newHarness(&fakeGateway{}, 5*time.Millisecond)
	s, conn, done := h.start(t)

	msgs := waitFor(t, conn, KindTelemetry, 3)
	payload, ok := msgs[0]["payload"].(map[string]any)
	if !ok {
		t.Fatalf("Telemetry has no payload: %v", msgs[0])
	}
	for _, key := range []string{"timestamp", "stats", "chart", "clusters", "nodes"} {
		if _, ok := payload[key]; !ok {
			t.Errorf("Payload missing %q", key)
		}
	}

	close(conn.in)
	if err := waitDone(t, done); err != nil {
		t.Errorf("Expected clean close, got %v", err)
	}
	if s.State() != StateClosed {
		t.Errorf("Expected closed state, got %s", s.State())
	}
	if h.hub.Len() != 0 {
		t.Errorf("Expected empty hub, got %d sessions", h.hub.Len())
	}
	if h.rec.opened.Load() != 1 || h.rec.closed.Load() != 1 {
		t.Errorf("Expected one open and one close, got %d/%d", h.rec.opened.Load(), h.rec.closed.Load())
	}
	if h.rec.pushed.Load() < 3 {
		t.Errorf("Expected at least 3 recorded pushes, got %d", h.rec.pushed.Load())
	}
}

func TestSessionStopsPushingAfterClose(t *testing.T) {
	h := newHarness(&fakeGateway{}, 2*time.Millisecond)
	s, conn, done := h.start(t)

	waitFor(t, conn, KindTelemetry, 2)
	s.Close()
	waitDone(t, done)

	calls := h.engine.telemetry.Load()
	time.Sleep(20 * time.Millisecond)
	if got := h.engine.telemetry.Load(); got != calls {
		t.Errorf("Telemetry still synthesized after close: %d -> %d", calls, got)
	}
}

func TestSessionStopsWhenContextCancelled(t *testing.T) {
	h := newHarness(&fakeGateway{}, time.Hour)
	conn := newFakeConn()
	s := h.hub.NewSession(conn)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	waitUntil(t, "session to open", func() bool { return h.hub.Len() == 1 })

	cancel()
	if err := waitDone(t, done); err != nil {
		t.Errorf("Expected nil on cancellation, got %v", err)
	}
	if h.hub.Len() != 0 {
		t.Error("Cancelled session still registered")
	}
}

func TestPingRepliesWithPong(t *testing.T) {
	h := newHarness(&fakeGateway{}, time.Hour)
	_, conn, _ := h.start(t)

	conn.send(`{"type":"ping"}`)
	pong := waitFor(t, conn, KindPong, 1)[0]
	if pong["time"] != float64(fixedNow.UnixMilli()) {
		t.Errorf("Expected time %d, got %v", fixedNow.UnixMilli(), pong["time"])
	}
}

func TestMuteReachesEverySession(t *testing.T) {
	h := newHarness(&fakeGateway{}, time.Hour)
	_, connA, _ := h.start(t)
	_, connB, _ := h.start(t)

	connA.send(`{"type":"mute"}`)
	for name, conn := range map[string]*fakeConn{"A": connA, "B": connB} {
		msg := waitFor(t, conn, KindMuteState, 1)[0]
		if msg["muted"] != true {
			t.Errorf("Session %s: expected muted=true, got %v", name, msg["muted"])
		}
	}
	if !h.engine.Muted() {
		t.Error("Engine should be muted")
	}

	connB.send(`{"type":"unmute"}`)
	for name, conn := range map[string]*fakeConn{"A": connA, "B": connB} {
		msg := waitFor(t, conn, KindMuteState, 2)[1]
		if msg["muted"] != false {
			t.Errorf("Session %s: expected muted=false, got %v", name, msg["muted"])
		}
	}

	// get-mute-state only answers the asking session
	connA.send(`{"type":"get-mute-state"}`)
	waitFor(t, connA, KindMuteState, 3)
	time.Sleep(10 * time.Millisecond)
	if n := len(connB.messages(KindMuteState)); n != 2 {
		t.Errorf("Session B should not see the get-mute-state reply, has %d mute-state messages", n)
	}
}

func TestMalformedAndUnknownMessagesAreIgnored(t *testing.T) {
	h := newHarness(&fakeGateway{}, time.Hour)
	s, conn, _ := h.start(t)

	conn.send(`not json`)
	conn.send(`{}`)
	conn.send(`{"type":"dance"}`)
	conn.send(`{"type":"ping"}`)

	waitFor(t, conn, KindPong, 1)
	if s.State() != StateOpen {
		t.Errorf("Session should stay open, got %s", s.State())
	}
	if n := conn.count(); n != 1 {
		t.Errorf("Expected only the pong to be written, got %d messages", n)
	}
}

func TestAskAIRepliesWithAnalysis(t *testing.T) {
	h := newHarness(&fakeGateway{text: "Fleet is efficient."}, time.Hour)
	_, conn, _ := h.start(t)

	conn.send(`{"type":"ask_ai"}`)
	msg := waitFor(t, conn, KindAIResponse, 1)[0]
	if msg["text"] != "Fleet is efficient." {
		t.Errorf("Unexpected text: %v", msg["text"])
	}
	if msg["timestamp"] != models.FormatTimestamp(fixedNow) {
		t.Errorf("Unexpected timestamp: %v", msg["timestamp"])
	}
	if _, ok := msg["audio"]; ok {
		t.Error("Audio was not requested")
	}
	if h.engine.peeks.Load() != 1 {
		t.Errorf("Expected one snapshot, got %d", h.engine.peeks.Load())
	}
	if h.rec.outcome("ask_ai/ok") != 1 {
		t.Error("Expected a recorded successful analysis")
	}
}

func TestAskAIAudioOnlyWhenUnmuted(t *testing.T) {
	gw := &fakeGateway{text: "ok", audio: []byte("mp3-bytes")}
	h := newHarness(gw, time.Hour)
	_, conn, _ := h.start(t)

	conn.send(`{"type":"ask_ai","withAudio":true}`)
	msg := waitFor(t, conn, KindAIResponse, 1)[0]
	if want := base64.StdEncoding.EncodeToString([]byte("mp3-bytes")); msg["audio"] != want {
		t.Errorf("Expected audio %q, got %v", want, msg["audio"])
	}

	h.engine.SetMuted(true)
	conn.send(`{"type":"ask_ai","withAudio":true}`)
	msg = waitFor(t, conn, KindAIResponse, 2)[1]
	if _, ok := msg["audio"]; ok {
		t.Error("Muted response should carry no audio")
	}
	if gw.spoken.Load() != 1 {
		t.Errorf("Expected one speech call, got %d", gw.spoken.Load())
	}
}

func TestAskAIWithoutSpeechStillAnswers(t *testing.T) {
	h := newHarness(&fakeGateway{text: "ok"}, time.Hour)
	_, conn, _ := h.start(t)

	conn.send(`{"type":"ask_ai","withAudio":true}`)
	msg := waitFor(t, conn, KindAIResponse, 1)[0]
	if _, ok := msg["audio"]; ok {
		t.Error("Expected no audio when speech is unavailable")
	}
}

func TestAskQuestionRepliesWithAnswer(t *testing.T) {
	h := newHarness(&fakeGateway{text: "Answer to"}, time.Hour)
	_, conn, _ := h.start(t)

	conn.send(`{"type":"ask_question","question":"Why is cluster B hot?"}`)
	msg := waitFor(t, conn, KindAIAnswer, 1)[0]
	if msg["question"] != "Why is cluster B hot?" {
		t.Errorf("Unexpected question echo: %v", msg["question"])
	}
	if msg["answer"] != "Answer to Why is cluster B hot?" {
		t.Errorf("Unexpected answer: %v", msg["answer"])
	}
}

func TestBlankQuestionRepliesWithError(t *testing.T) {
	gw := &fakeGateway{text: "unused"}
	h := newHarness(gw, time.Hour)
	_, conn, _ := h.start(t)

	conn.send(`{"type":"ask_question","question":"   "}`)
	msg := waitFor(t, conn, KindAIError, 1)[0]
	if msg["error"] != "A question is required." {
		t.Errorf("Unexpected error text: %v", msg["error"])
	}
	if gw.calls.Load() != 0 {
		t.Error("Gateway should not be called for a blank question")
	}
}

func TestGatewayFailureRepliesWithError(t *testing.T) {
	h := newHarness(&fakeGateway{err: errors.New("upstream down")}, time.Hour)
	s, conn, _ := h.start(t)

	conn.send(`{"type":"ask_ai"}`)
	msg := waitFor(t, conn, KindAIError, 1)[0]
	if text, _ := msg["error"].(string); !strings.Contains(text, "upstream down") {
		t.Errorf("Expected upstream error in %q", text)
	}
	if s.State() != StateOpen {
		t.Error("A failed analysis should not close the session")
	}
	if h.rec.outcome("ask_ai/error") != 1 {
		t.Error("Expected a recorded failed analysis")
	}
}

func TestSlowAnalysisDoesNotBlockSession(t *testing.T) {
	gw := &fakeGateway{text: "done", release: make(chan struct{})}
	h := newHarness(gw, 5*time.Millisecond)
	_, conn, _ := h.start(t)

	conn.send(`{"type":"ask_ai"}`)
	waitUntil(t, "gateway call", func() bool { return gw.calls.Load() == 1 })

	before := len(conn.messages(KindTelemetry))
	waitFor(t, conn, KindTelemetry, before+3)

	conn.send(`{"type":"ping"}`)
	waitFor(t, conn, KindPong, 1)

	if len(conn.messages(KindAIResponse)) != 0 {
		t.Fatal("Analysis answered before it was released")
	}
	close(gw.release)
	waitFor(t, conn, KindAIResponse, 1)
}

func TestAnalysisAfterCloseIsDiscarded(t *testing.T) {
	gw := &fakeGateway{text: "late", release: make(chan struct{})}
	h := newHarness(gw, time.Hour)
	s, conn, done := h.start(t)

	conn.send(`{"type":"ask_ai"}`)
	waitUntil(t, "gateway call", func() bool { return gw.calls.Load() == 1 })

	s.Close()
	waitDone(t, done)
	close(gw.release)
	s.Wait()

	if n := len(conn.messages(KindAIResponse)); n != 0 {
		t.Errorf("Expected discarded analysis, got %d responses", n)
	}
}

func TestFailedWriteClosesSession(t *testing.T) {
	h := newHarness(&fakeGateway{}, 2*time.Millisecond)
	conn := newFakeConn()
	conn.writeErr = errors.New("broken pipe")
	s := h.hub.NewSession(conn)

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()
	waitDone(t, done)

	if s.State() != StateClosed {
		t.Errorf("Expected closed state, got %s", s.State())
	}
	if h.hub.Len() != 0 {
		t.Error("Failed session still registered")
	}
}

func TestSendOutsideOpenState(t *testing.T) {
	h := newHarness(&fakeGateway{}, time.Hour)
	s := h.hub.NewSession(newFakeConn())

	if err := s.Send(NewPong(fixedNow)); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Send while connecting: expected ErrSessionClosed, got %v", err)
	}

	s, _, done := h.start(t)
	s.Close()
	waitDone(t, done)
	if err := s.Send(NewPong(fixedNow)); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Send after close: expected ErrSessionClosed, got %v", err)
	}
	if err := s.Run(context.Background()); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Run after close: expected ErrSessionClosed, got %v", err)
	}
}

func TestSessionStateString(t *testing.T) {
	tests := map[SessionState]string{
		StateConnecting: "connecting",
		StateOpen:       "open",
		StateClosed:     "closed",
		SessionState(9): "SessionState(9)",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("Expected %q, got %q", want, got)
		}
	}
}
