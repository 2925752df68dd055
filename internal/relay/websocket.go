package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second
)

// ErrClosed is returned by Send on a closed connection.
var ErrClosed = errors.New("relay connection closed")

// frame is the wire envelope; exactly one field is set.
type frame struct {
	Message  *Message  `json:"message,omitempty"`
	Response *Response `json:"response,omitempty"`
}

// Conn is one websocket relay link. Both ends may send messages; incoming
// messages are served by the local dispatcher.
type Conn struct {
	ws      *websocket.Conn
	local   *Dispatcher
	timeout time.Duration

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan Response
	closed  bool
	done    chan struct{}
}

func newConn(ws *websocket.Conn, local *Dispatcher, timeout time.Duration) *Conn {
	return &Conn{
		ws:      ws,
		local:   local,
		timeout: timeout,
		pending: map[string]chan Response{},
		done:    make(chan struct{}),
	}
}

// Dial connects to a relay endpoint. local serves messages pushed by the
// server and may be nil.
func Dial(ctx context.Context, url string, local *Dispatcher, timeout time.Duration) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}
	c := newConn(ws, local, timeout)
	go c.serve(context.Background(), false)
	return c, nil
}

// Done is closed when the connection stops reading.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Close terminates the connection.
func (c *Conn) Close() error {
	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	c.writeMu.Unlock()
	return c.ws.Close()
}

// Send writes msg and waits for the matching response.
func (c *Conn) Send(ctx context.Context, msg Message) (Response, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	ch := make(chan Response, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Response{}, ErrClosed
	}
	c.pending[msg.ID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, msg.ID)
		c.mu.Unlock()
	}()

	if err := c.write(frame{Message: &msg}); err != nil {
		return Response{}, err
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return Response{}, ErrClosed
		}
		return resp, nil
	case <-ctx.Done():
		return Response{}, fmt.Errorf("relay %s: %w", msg.Subtype, ctx.Err())
	}
}

func (c *Conn) write(f frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func (c *Conn) serve(ctx context.Context, keepalive bool) {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		c.mu.Lock()
		c.closed = true
		for id, ch := range c.pending {
			close(ch)
			delete(c.pending, id)
		}
		c.mu.Unlock()
		close(c.done)
	}()

	if keepalive {
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		c.ws.SetPongHandler(func(string) error {
			return c.ws.SetReadDeadline(time.Now().Add(pongWait))
		})
		go func() {
			ticker := time.NewTicker(pingInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					c.writeMu.Lock()
					err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
					c.writeMu.Unlock()
					if err != nil {
						return
					}
				}
			}
		}()
	}

	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				slog.Error("Relay connection error", "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			slog.Warn("Dropping malformed relay frame", "error", err)
			continue
		}
		switch {
		case f.Response != nil:
			c.mu.Lock()
			ch, ok := c.pending[f.Response.ID]
			c.mu.Unlock()
			if ok {
				ch <- *f.Response
			}
		case f.Message != nil:
			go c.answer(ctx, *f.Message)
		}
	}
}

func (c *Conn) answer(ctx context.Context, msg Message) {
	var resp Response
	if c.local == nil {
		resp = Response{ID: msg.ID, Error: fmt.Sprintf("unsupported message %s/%s", msg.Type, msg.Subtype)}
	} else {
		ctx, cancel := withTimeout(ctx, c.timeout)
		resp = c.local.Dispatch(ctx, msg)
		cancel()
	}
	if err := c.write(frame{Response: &resp}); err != nil {
		slog.Debug("Failed to write relay response", "id", msg.ID, "error", err)
	}
}

// Handler upgrades HTTP requests to relay connections served by Dispatcher.
type Handler struct {
	Dispatcher *Dispatcher
	Timeout    time.Duration
	Upgrader   websocket.Upgrader
	// OnConnect, when set, receives every established connection.
	OnConnect func(*Conn)
}

// NewHandler returns a handler that accepts any origin.
func NewHandler(d *Dispatcher) *Handler {
	return &Handler{
		Dispatcher: d,
		Timeout:    DefaultTimeout,
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP blocks until the connection closes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade relay connection", "error", err)
		return
	}
	c := newConn(ws, h.Dispatcher, h.Timeout)
	defer func() { _ = ws.Close() }()

	slog.Info("Relay connection established", "remote_addr", r.RemoteAddr)
	if h.OnConnect != nil {
		h.OnConnect(c)
	}
	c.serve(r.Context(), true)
}
