package resource

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roach88/statewire/internal/ir"
	"github.com/roach88/statewire/internal/state"
)

// WebSocket backs a Cell with a stream of JSON text messages. Every message
// received is a new value; a write sends the value as one message.
type WebSocket struct {
	url    string
	dialer *websocket.Dialer
	logger *slog.Logger

	live *session
	conn *wsConn
}

// wsConn serializes writes; gorilla connections allow one concurrent writer.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) send(v ir.Value) error {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("connection closed")
	}
	c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) set(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *wsConn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.conn.Close()
		c.conn = nil
	}
}

// NewWebSocket creates a connector for the ws:// or wss:// url.
func NewWebSocket(url string, logger *slog.Logger) *WebSocket {
	return &WebSocket{
		url:    url,
		dialer: &websocket.Dialer{HandshakeTimeout: 5 * time.Second},
		logger: loggerOr(logger).With("backend", ir.BackendWebSocket, "url", url),
	}
}

func (w *WebSocket) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := w.dialer.DialContext(ctx, w.url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn, err
}

func readValue(conn *websocket.Conn) (ir.Value, error) {
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if kind != websocket.TextMessage {
			continue
		}
		return ir.Unmarshal(data)
	}
}

// SingleGet connects, takes the first message and disconnects.
func (w *WebSocket) SingleGet(r *Cell) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		conn, err := w.dial(ctx)
		if err != nil {
			w.logger.Warn("dial failed", "error", err)
			deliver(r, failure("dial", err))
			return
		}
		defer conn.Close()

		if deadline, ok := ctx.Deadline(); ok {
			conn.SetReadDeadline(deadline)
		}
		v, err := readValue(conn)
		if err != nil {
			deliver(r, failure("read", err))
			return
		}
		deliver(r, ok(v))
	}()
}

func (w *WebSocket) SetupConnection(r *Cell) {
	wc := &wsConn{}
	w.conn = wc
	w.live = startSession(func(ctx context.Context) {
		conn, err := w.dial(ctx)
		if err != nil {
			if ctx.Err() == nil {
				w.logger.Warn("dial failed", "error", err)
				deliver(r, failure("dial", err))
			}
			return
		}
		wc.set(conn)
		go func() {
			<-ctx.Done()
			wc.close()
		}()

		for {
			v, err := readValue(conn)
			if err != nil {
				if ctx.Err() == nil {
					w.logger.Warn("stream ended", "error", err)
					deliver(r, failure("read", err))
				}
				return
			}
			deliver(r, ok(v))
		}
	})
}

func (w *WebSocket) TeardownConnection(*Cell) {
	w.live.stop()
	w.live = nil
	w.conn = nil
}

// WriteAction sends v over the live connection, or over a short-lived one
// when none is open.
func (w *WebSocket) WriteAction(r *Cell, v ir.Value) *state.Future[error] {
	done := state.NewFuture[error]()
	live := w.conn
	go func() {
		var err error
		if live != nil {
			err = live.send(v)
		} else {
			err = w.sendOnce(v)
		}
		if err != nil {
			w.logger.Warn("write failed", "error", err)
			err = fmt.Errorf("write: %w", err)
		}
		settle(r, done, err)
	}()
	return done
}

func (w *WebSocket) sendOnce(v ir.Value) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := w.dial(ctx)
	if err != nil {
		return err
	}
	wc := &wsConn{conn: conn}
	defer wc.close()
	return wc.send(v)
}

var _ Connector = (*WebSocket)(nil)
