package broadcast

import (
	"context"
	"io"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// Conn is the transport of one session. Write may be called concurrently
// with Read but not with another Write.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	WriteJSON(ctx context.Context, v any) error
	Close(reason string) error
}

// MaxMessageBytes bounds one inbound message. Larger messages close the
// session with StatusMessageTooBig.
const MaxMessageBytes = 1 << 20

// WebSocketConn adapts a coder/websocket connection
type WebSocketConn struct {
	c *websocket.Conn
}

func NewWebSocketConn(c *websocket.Conn) *WebSocketConn {
	c.SetReadLimit(MaxMessageBytes)
	return &WebSocketConn{c: c}
}

// Read returns the next text or binary message. A normal close by the
// peer is reported as io.EOF.
func (w *WebSocketConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := w.c.Read(ctx)
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return nil, io.EOF
	}
	return data, err
}

func (w *WebSocketConn) WriteJSON(ctx context.Context, v any) error {
	return wsjson.Write(ctx, w.c, v)
}

func (w *WebSocketConn) Close(reason string) error {
	return w.c.Close(websocket.StatusNormalClosure, reason)
}
