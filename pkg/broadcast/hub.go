package broadcast

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/opscart/gpu-fleet-sim/pkg/gateway"
	"github.com/opscart/gpu-fleet-sim/pkg/models"
)

// Defaults for HubOptions
const (
	DefaultPushInterval    = 2 * time.Second
	DefaultAnalysisTimeout = 30 * time.Second
	DefaultWriteTimeout    = 5 * time.Second
)

// Engine is the simulation state a hub serves sessions from
type Engine interface {
	Telemetry(now time.Time) models.TelemetryPayload
	Peek(now time.Time) models.FleetReport
	Muted() bool
	SetMuted(muted bool)
}

// Recorder receives session activity, typically the metrics registry
type Recorder interface {
	SessionOpened()
	SessionClosed()
	TelemetryPushed()
	MessageReceived(kind string)
	AnalysisRequest(kind, outcome string)
}

type HubOptions struct {
	PushInterval    time.Duration
	AnalysisTimeout time.Duration
	WriteTimeout    time.Duration
	OriginPatterns  []string // extra origins allowed to open sessions
	Recorder        Recorder
	Logger          *zap.Logger
	Clock           func() time.Time
}

// Hub is the registry of open sessions. Telemetry is pushed by each
// session on its own schedule; the hub only fans out cross-session
// messages such as mute state.
type Hub struct {
	engine  Engine
	gateway gateway.Gateway
	opts    HubOptions

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewHub(engine Engine, gw gateway.Gateway, opts HubOptions) *Hub {
	if opts.PushInterval <= 0 {
		opts.PushInterval = DefaultPushInterval
	}
	if opts.AnalysisTimeout <= 0 {
		opts.AnalysisTimeout = DefaultAnalysisTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if gw == nil {
		gw = gateway.NewOffline()
	}

	return &Hub{
		engine:   engine,
		gateway:  gw,
		opts:     opts,
		sessions: make(map[string]*Session),
	}
}

// Serve runs a session over conn until the peer goes away or ctx is
// cancelled.
func (h *Hub) Serve(ctx context.Context, conn Conn) error {
	return h.NewSession(conn).Run(ctx)
}

// ServeHTTP upgrades the request to a WebSocket session
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.opts.OriginPatterns,
	})
	if err != nil {
		h.opts.Logger.Warn("websocket upgrade failed", zap.Error(err), zap.String("remote", r.RemoteAddr))
		return
	}

	h.Serve(r.Context(), NewWebSocketConn(c))
}

// SetMuted updates the process-wide mute flag and tells every open session
func (h *Hub) SetMuted(muted bool) int {
	h.engine.SetMuted(muted)
	return h.Broadcast(NewMuteState(muted))
}

// Broadcast sends msg to every open session and returns how many accepted
// it. Failed sessions close themselves.
func (h *Hub) Broadcast(msg any) int {
	delivered := 0
	for _, s := range h.snapshot() {
		if err := s.Send(msg); err == nil {
			delivered++
		}
	}
	return delivered
}

// Len returns the number of open sessions
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// CloseAll closes every open session, e.g. on shutdown
func (h *Hub) CloseAll() {
	for _, s := range h.snapshot() {
		s.Close()
	}
}

func (h *Hub) snapshot() []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

func (h *Hub) add(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[s.id] = s
}

func (h *Hub) remove(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, s.id)
}

type nopRecorder struct{}

func (nopRecorder) SessionOpened()                 {}
func (nopRecorder) SessionClosed()                 {}
func (nopRecorder) TelemetryPushed()               {}
func (nopRecorder) MessageReceived(string)         {}
func (nopRecorder) AnalysisRequest(string, string) {}
