package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/MeKo-Tech/lahidna/internal/telemetry"
)

var messagesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "lahidna_relay_messages_total",
		Help: "Total number of relay messages dispatched",
	},
	[]string{"subtype", "result"},
)

// HandlerFunc serves one message subtype. The returned value is encoded as
// the response result.
type HandlerFunc func(ctx context.Context, payload json.RawMessage) (any, error)

// Dispatcher routes incoming messages to registered handlers.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[Subtype]HandlerFunc
	sink     telemetry.Sink
	side     string
}

// NewDispatcher returns a dispatcher named side ("background" or "content")
// reporting unsupported traffic to sink.
func NewDispatcher(side string, sink telemetry.Sink) *Dispatcher {
	if sink == nil {
		sink = telemetry.Nop{}
	}
	return &Dispatcher{handlers: map[Subtype]HandlerFunc{}, sink: sink, side: side}
}

// Handle registers fn for subtype, replacing any previous handler.
func (d *Dispatcher) Handle(subtype Subtype, fn HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[subtype] = fn
}

// Dispatch runs the handler for msg. It never panics.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) (resp Response) {
	resp.ID = msg.ID

	d.mu.RLock()
	fn, ok := d.handlers[msg.Subtype]
	d.mu.RUnlock()

	if msg.Type != TypeContent || !ok {
		desc := fmt.Sprintf("-> %s messages from '%s' type '%s' are not supported", d.side, msg.Type, msg.Subtype)
		d.sink.ReportError(desc, nil, nil)
		messagesTotal.WithLabelValues(string(msg.Subtype), "unsupported").Inc()
		slog.Warn("Unsupported relay message", "side", d.side, "type", msg.Type, "subtype", msg.Subtype)
		resp.Error = fmt.Sprintf("unsupported message %s/%s", msg.Type, msg.Subtype)
		return resp
	}

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			d.sink.ReportError(fmt.Sprintf("-> %s message type '%s': error in handler", d.side, msg.Subtype), err, nil)
			messagesTotal.WithLabelValues(string(msg.Subtype), "error").Inc()
			resp = Response{ID: msg.ID, Error: err.Error()}
		}
	}()

	result, err := fn(ctx, msg.Payload)
	if err != nil {
		messagesTotal.WithLabelValues(string(msg.Subtype), "error").Inc()
		resp.Error = err.Error()
		return resp
	}
	if result != nil {
		raw, err := json.Marshal(result)
		if err != nil {
			messagesTotal.WithLabelValues(string(msg.Subtype), "error").Inc()
			resp.Error = fmt.Sprintf("encode result: %v", err)
			return resp
		}
		resp.Result = raw
	}
	messagesTotal.WithLabelValues(string(msg.Subtype), "ok").Inc()
	resp.OK = true
	return resp
}

// Typed adapts a handler taking a decoded payload.
func Typed[P any](fn func(ctx context.Context, p P) (any, error)) HandlerFunc {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p P
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &p); err != nil {
				return nil, fmt.Errorf("decode payload: %w", err)
			}
		}
		return fn(ctx, p)
	}
}
