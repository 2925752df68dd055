package server

import (
	"net/http"
	"time"

	"github.com/MeKo-Tech/lahidna/internal/langdetect"
	"github.com/MeKo-Tech/lahidna/internal/relay"
)

// Rewriter applies the search rewrite rule to a URL.
type Rewriter interface {
	RewriteString(raw string) (string, bool, error)
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	rewriter    Rewriter
	detector    *langdetect.Detector
	relay       http.Handler
	corsOrigin  string
	timeoutSec  int
	version     string
	rateLimiter *RateLimiter
}

// Config holds server configuration.
type Config struct {
	Host       string
	Port       int
	CORSOrigin string
	TimeoutSec int
	Version    string

	RateLimitEnabled  bool
	RequestsPerMinute int
	RequestsPerHour   int
	MaxRequestsPerDay int

	Rewriter Rewriter
	Detector *langdetect.Detector
	// Relay serves /relay; nil disables the endpoint.
	Relay        *relay.Dispatcher
	RelayTimeout time.Duration
}

// Response types for API endpoints.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Time    string `json:"time"`
}

type RewriteResponse struct {
	URL       string `json:"url"`
	Rewritten bool   `json:"rewritten"`
}

type DetectResponse struct {
	Language string `json:"language"`
}

type RouteResponse struct {
	Host    string `json:"host"`
	Adapter string `json:"adapter,omitempty"`
	Matched bool   `json:"matched"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// NewServer creates a server from config.
func NewServer(config Config) *Server {
	s := &Server{
		rewriter:   config.Rewriter,
		detector:   config.Detector,
		corsOrigin: config.CORSOrigin,
		timeoutSec: config.TimeoutSec,
		version:    config.Version,
	}
	if s.detector == nil {
		s.detector = langdetect.Default()
	}
	if config.Relay != nil {
		h := relay.NewHandler(config.Relay)
		if config.RelayTimeout > 0 {
			h.Timeout = config.RelayTimeout
		}
		s.relay = countConnections(h)
	}
	if config.RateLimitEnabled {
		s.rateLimiter = NewRateLimiter(config.RequestsPerMinute, config.RequestsPerHour, config.MaxRequestsPerDay)
	}
	return s
}

// PruneRateLimits drops idle client usage and reports how many entries
// were removed. It is a no-op without rate limiting.
func (s *Server) PruneRateLimits() int {
	if s.rateLimiter == nil {
		return 0
	}
	return s.rateLimiter.Prune()
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.Handle("/metrics", metricsHandler())
	mux.HandleFunc("/rewrite", s.corsMiddleware(s.rateLimitMiddleware(s.rewriteHandler)))
	mux.HandleFunc("/detect", s.corsMiddleware(s.rateLimitMiddleware(s.detectHandler)))
	mux.HandleFunc("/route", s.corsMiddleware(s.routeHandler))
	if s.relay != nil {
		mux.HandleFunc("/relay", s.rateLimitMiddleware(s.relay.ServeHTTP))
	}
}

// Handler returns the routed handler with a per-request timeout. The relay
// endpoint is excluded from the timeout since its connections are long lived.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	if s.timeoutSec <= 0 {
		return mux
	}
	timed := http.TimeoutHandler(mux, time.Duration(s.timeoutSec)*time.Second, `{"success":false,"error":"timeout"}`)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/relay" {
			mux.ServeHTTP(w, r)
			return
		}
		timed.ServeHTTP(w, r)
	})
}
