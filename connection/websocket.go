package connection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hupe1980/dialogmesh/codec"
)

// WebSocket carries envelopes over a websocket link, one marshalled
// envelope per binary frame.
type WebSocket struct {
	url     string
	dialer  *websocket.Dialer
	writeMu sync.Mutex
	mu      sync.Mutex
	conn    *websocket.Conn
}

// WebSocketOptions configures a WebSocket connection.
type WebSocketOptions struct {
	Dialer *websocket.Dialer
}

// NewWebSocket creates a websocket connection to the given URL. The
// connection is established by Connect, not here.
func NewWebSocket(url string, optFns ...func(o *WebSocketOptions)) *WebSocket {
	opts := WebSocketOptions{Dialer: websocket.DefaultDialer}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &WebSocket{url: url, dialer: opts.Dialer}
}

// Connect dials the endpoint.
func (w *WebSocket) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		return nil
	}
	conn, _, err := w.dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", w.url, err)
	}
	w.conn = conn
	return nil
}

// Send writes one envelope as a binary frame.
func (w *WebSocket) Send(e *codec.Envelope) error {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	data, err := e.MarshalBinary()
	if err != nil {
		return err
	}
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	return conn.WriteMessage(websocket.BinaryMessage, data)
}

// Receive reads the next envelope frame. A close frame from the peer yields
// ErrClosed.
func (w *WebSocket) Receive(ctx context.Context) (*codec.Envelope, error) {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		return nil, ErrNotConnected
	}

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetReadDeadline(deadline); err != nil {
			return nil, err
		}
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, ErrClosed
		}
		return nil, err
	}
	var e codec.Envelope
	if err := e.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return &e, nil
}

// Disconnect sends a close frame and tears the link down.
func (w *WebSocket) Disconnect() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return nil
	}
	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = w.conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second))
	err := w.conn.Close()
	w.conn = nil
	return err
}
