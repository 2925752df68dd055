// Package telemetry sends best-effort usage events and error reports.
// Nothing in this package returns an error to callers; failures are logged
// at debug level and dropped.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"

	"github.com/MeKo-Tech/lahidna/internal/storage"
)

var (
	sentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lahidna_telemetry_sent_total",
			Help: "Telemetry payloads by kind and result",
		},
		[]string{"kind", "result"}, // kind: event, error; result: sent, failed, dropped, gated
	)
)

// Sink is the capability the engine reports through.
type Sink interface {
	SendEvent(name string, data any)
	ReportError(desc string, err error, data any)
}

// Nop discards everything.
type Nop struct{}

func (Nop) SendEvent(string, any)          {}
func (Nop) ReportError(string, error, any) {}

// Config controls delivery.
type Config struct {
	Enabled bool
	APIBase string
	Version string
	// Burst is the token bucket size, also its initial fill.
	Burst int
	// Refill adds one token per interval.
	Refill time.Duration
	// HighWater bounds the queue; payloads beyond it are dropped.
	HighWater int
}

// DefaultConfig mirrors the delivery limits of the hosted collector.
func DefaultConfig() Config {
	return Config{
		Enabled:   true,
		Burst:     50,
		Refill:    3 * time.Second,
		HighWater: 20,
	}
}

// eventBody is the body posted to <api_base>/events.
type eventBody struct {
	UserID  string `json:"userId"`
	EventID string `json:"eventId"`
	Version string `json:"version"`
	Type    string `json:"type"`
	Data    any    `json:"data"`
}

// errorBody is the body posted to <api_base>/error.
type errorBody struct {
	UserID     string `json:"userId"`
	EventID    string `json:"eventId"`
	Version    string `json:"version"`
	Desc       string `json:"desc"`
	Data       any    `json:"data"`
	PageviewID string `json:"pageviewId,omitempty"`
}

type job struct {
	kind string
	url  string
	body []byte
}

// Reporter queues payloads and delivers them from a single worker.
type Reporter struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	queue   chan job
	logger  *slog.Logger

	gate       func() bool
	userID     string
	pageviewID string

	startOnce sync.Once
	done      chan struct{}
}

// Option customizes a Reporter.
type Option func(*Reporter)

// WithHTTPClient sets the client used for delivery.
func WithHTTPClient(c *http.Client) Option { return func(r *Reporter) { r.client = c } }

// WithGate sets the consent check consulted before queueing. Payloads are
// dropped while it returns false.
func WithGate(g func() bool) Option { return func(r *Reporter) { r.gate = g } }

// WithUserID sets the id attached to every payload.
func WithUserID(id string) Option { return func(r *Reporter) { r.userID = id } }

// WithPageviewID tags error reports with the current page view.
func WithPageviewID(id string) Option { return func(r *Reporter) { r.pageviewID = id } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(r *Reporter) { r.logger = l } }

// New returns a Reporter. Call Start to begin delivery.
func New(cfg Config, opts ...Option) *Reporter {
	def := DefaultConfig()
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.Refill <= 0 {
		cfg.Refill = def.Refill
	}
	if cfg.HighWater <= 0 {
		cfg.HighWater = def.HighWater
	}
	r := &Reporter{
		cfg:     cfg,
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Every(cfg.Refill), cfg.Burst),
		queue:   make(chan job, cfg.HighWater),
		logger:  slog.Default(),
		gate:    func() bool { return true },
		userID:  "unknown",
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Start launches the delivery worker. It stops when ctx ends; queued
// payloads left at that point are dropped.
func (r *Reporter) Start(ctx context.Context) {
	r.startOnce.Do(func() {
		go r.run(ctx)
	})
}

// Done is closed once the worker has stopped.
func (r *Reporter) Done() <-chan struct{} { return r.done }

func (r *Reporter) run(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-r.queue:
			if err := r.limiter.Wait(ctx); err != nil {
				return
			}
			if err := r.post(ctx, j); err != nil {
				sentTotal.WithLabelValues(j.kind, "failed").Inc()
				r.logger.Debug("Telemetry delivery failed", "kind", j.kind, "error", err)
				continue
			}
			sentTotal.WithLabelValues(j.kind, "sent").Inc()
		}
	}
}

func (r *Reporter) post(ctx context.Context, j job) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.url, bytes.NewReader(j.body))
	if err != nil {
		return err
	}
	req.Header.Set("content-type", "application/json")
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("collector answered %d", resp.StatusCode)
	}
	return nil
}

// SendEvent queues a usage event.
func (r *Reporter) SendEvent(name string, data any) {
	if data == nil {
		data = map[string]any{}
	}
	r.logger.Debug("Telemetry event", "type", name)
	r.enqueue("event", "/events", eventBody{
		UserID:  r.userID,
		EventID: uuid.NewString(),
		Version: r.cfg.Version,
		Type:    name,
		Data:    data,
	})
}

// ReportError queues an error report. err is serialized by its message.
func (r *Reporter) ReportError(desc string, err error, data any) {
	r.logger.Debug("Telemetry error report", "desc", desc, "error", err)
	payload := data
	if err != nil {
		payload = map[string]any{"message": err.Error(), "data": data}
	}
	r.enqueue("error", "/error", errorBody{
		UserID:     r.userID,
		EventID:    uuid.NewString(),
		Version:    r.cfg.Version,
		Desc:       desc,
		Data:       payload,
		PageviewID: r.pageviewID,
	})
}

func (r *Reporter) enqueue(kind, path string, body any) {
	if !r.cfg.Enabled || r.cfg.APIBase == "" || !r.gate() {
		sentTotal.WithLabelValues(kind, "gated").Inc()
		return
	}
	b, err := json.Marshal(body)
	if err != nil {
		r.logger.Debug("Telemetry payload not serializable", "kind", kind, "error", err)
		return
	}
	j := job{kind: kind, url: strings.TrimRight(r.cfg.APIBase, "/") + path, body: b}
	select {
	case r.queue <- j:
	default:
		sentTotal.WithLabelValues(kind, "dropped").Inc()
		r.logger.Debug("Telemetry queue full, dropping payload", "kind", kind)
	}
}

// UserID returns the persistent anonymous user id, creating it on first use.
// created reports whether a new id was generated.
func UserID(ctx context.Context, local storage.Store) (id string, created bool, err error) {
	found, err := storage.GetJSON(ctx, local, storage.KeyUserID, &id)
	if err != nil && !found {
		return "", false, err
	}
	// An undecodable value is replaced with a fresh id.
	if err == nil && id != "" {
		return id, false, nil
	}
	id = uuid.NewString()
	if err := storage.SetJSON(ctx, local, storage.KeyUserID, id); err != nil {
		return "", false, err
	}
	return id, true, nil
}
