package broadcast

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opscart/gpu-fleet-sim/pkg/gateway"
)

// ErrSessionClosed is returned by Send once a session has closed
var ErrSessionClosed = errors.New("session closed")

// SessionState is the lifecycle of a session: Connecting, Open, Closed
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateOpen
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("SessionState(%d)", int32(s))
	}
}

// Session is one observer connection with its own push loop
type Session struct {
	id     string
	hub    *Hub
	conn   Conn
	logger *zap.Logger

	state  atomic.Int32
	ctx    context.Context
	cancel context.CancelFunc

	writeMu   sync.Mutex
	closeOnce sync.Once

	pushLoop sync.WaitGroup
	analyses sync.WaitGroup
}

// NewSession creates a session in the Connecting state. It joins the hub
// when Run is called.
func (h *Hub) NewSession(conn Conn) *Session {
	id := uuid.New().String()
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:     id,
		hub:    h,
		conn:   conn,
		logger: h.opts.Logger.With(zap.String("session", id)),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// Run opens the session, starts its push loop and dispatches inbound
// messages in order until the connection fails or ctx is cancelled.
// It returns once the push loop has stopped; in-flight analyses may
// still finish later and are discarded.
func (s *Session) Run(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen)) {
		return ErrSessionClosed
	}
	s.hub.add(s)
	s.hub.opts.Recorder.SessionOpened()
	s.logger.Info("session opened")

	stop := context.AfterFunc(ctx, s.Close)
	defer stop()

	s.pushLoop.Add(1)
	go s.push()

	var err error
	for {
		var data []byte
		data, err = s.conn.Read(s.ctx)
		if err != nil {
			break
		}
		s.dispatch(data)
	}
	closedLocally := s.ctx.Err() != nil

	s.Close()
	s.pushLoop.Wait()

	if closedLocally || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// Close cancels the push loop and closes the connection. Safe to call
// more than once and from any goroutine.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		wasOpen := s.state.Swap(int32(StateClosed)) == int32(StateOpen)
		s.cancel()
		s.conn.Close("session closed")
		if wasOpen {
			s.hub.remove(s)
			s.hub.opts.Recorder.SessionClosed()
			s.logger.Info("session closed")
		}
	})
}

// Wait blocks until the push loop and all in-flight analyses are done
func (s *Session) Wait() {
	s.pushLoop.Wait()
	s.analyses.Wait()
}

// Send writes one message. It returns ErrSessionClosed without writing
// once the session is closed; a failed write closes the session.
func (s *Session) Send(msg any) error {
	if s.State() != StateOpen {
		return ErrSessionClosed
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.State() != StateOpen {
		return ErrSessionClosed
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.hub.opts.WriteTimeout)
	defer cancel()
	if err := s.conn.WriteJSON(ctx, msg); err != nil {
		s.logger.Debug("send failed, closing session", zap.Error(err))
		s.Close()
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

func (s *Session) push() {
	defer s.pushLoop.Done()

	ticker := time.NewTicker(s.hub.opts.PushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			payload := s.hub.engine.Telemetry(s.hub.opts.Clock())
			if err := s.Send(NewTelemetryMessage(payload)); err != nil {
				return
			}
			s.hub.opts.Recorder.TelemetryPushed()
		}
	}
}

func (s *Session) dispatch(data []byte) {
	msg, err := ParseInbound(data)
	if err != nil {
		s.logger.Warn("ignoring malformed message", zap.Error(err), zap.Int("bytes", len(data)))
		return
	}
	s.hub.opts.Recorder.MessageReceived(string(msg.Kind()))

	switch m := msg.(type) {
	case Ping:
		s.reply(NewPong(s.hub.opts.Clock()))
	case SetMute:
		s.hub.SetMuted(m.Muted)
	case GetMuteState:
		s.reply(NewMuteState(s.hub.engine.Muted()))
	case AskAI:
		s.analyze(KindAskAI, "", m.WithAudio)
	case AskQuestion:
		if strings.TrimSpace(m.Question) == "" {
			s.reply(NewAIError("A question is required."))
			return
		}
		s.analyze(KindAskQuestion, m.Question, m.WithAudio)
	case Unknown:
		s.logger.Debug("ignoring unknown message kind", zap.String("type", m.Type))
	}
}

func (s *Session) reply(msg any) {
	if err := s.Send(msg); err != nil && !errors.Is(err, ErrSessionClosed) {
		s.logger.Debug("reply failed", zap.Error(err))
	}
}

// analyze snapshots the fleet now and calls the gateway on its own
// goroutine so slow analyses never delay telemetry pushes.
func (s *Session) analyze(kind MessageKind, question string, withAudio bool) {
	report := s.hub.engine.Peek(s.hub.opts.Clock())

	s.analyses.Add(1)
	go func() {
		defer s.analyses.Done()

		// not tied to the session: a completion after close is discarded by Send
		ctx, cancel := context.WithTimeout(context.Background(), s.hub.opts.AnalysisTimeout)
		defer cancel()

		var text string
		var err error
		if kind == KindAskQuestion {
			text, err = s.hub.gateway.Answer(ctx, report, question)
		} else {
			text, err = s.hub.gateway.Analyze(ctx, report)
		}
		if err != nil {
			s.logger.Warn("analysis failed", zap.String("kind", string(kind)), zap.Error(err))
			s.hub.opts.Recorder.AnalysisRequest(string(kind), "error")
			s.reply(NewAIError(fmt.Sprintf("Analysis failed: %v", err)))
			return
		}
		s.hub.opts.Recorder.AnalysisRequest(string(kind), "ok")

		var audio string
		if withAudio && !s.hub.engine.Muted() {
			audio = s.speak(ctx, text)
		}

		now := s.hub.opts.Clock()
		if kind == KindAskQuestion {
			s.reply(NewAIAnswer(question, text, audio, now))
		} else {
			s.reply(NewAIResponse(text, audio, now))
		}
	}()
}

// speak returns base64 audio, or "" when speech is unavailable or fails
func (s *Session) speak(ctx context.Context, text string) string {
	audio, err := s.hub.gateway.Speak(ctx, text)
	if err != nil {
		if !errors.Is(err, gateway.ErrSpeechUnavailable) {
			s.logger.Warn("speech synthesis failed", zap.Error(err))
		}
		return ""
	}
	return base64.StdEncoding.EncodeToString(audio)
}
