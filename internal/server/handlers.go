package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MeKo-Tech/lahidna/internal/router"
)

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: s.version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	})
}

// rewriteHandler applies the search rewrite rule to ?url=.
func (s *Server) rewriteHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	raw := r.URL.Query().Get("url")
	if raw == "" {
		s.writeErrorResponse(w, "Missing url parameter", http.StatusBadRequest)
		return
	}
	if s.rewriter == nil {
		s.writeErrorResponse(w, "Rewrite rules not configured", http.StatusServiceUnavailable)
		return
	}
	out, changed, err := s.rewriter.RewriteString(raw)
	if err != nil {
		s.writeErrorResponse(w, "Invalid url parameter", http.StatusBadRequest)
		return
	}
	s.writeJSON(w, http.StatusOK, RewriteResponse{URL: out, Rewritten: changed})
}

// detectHandler classifies the text of ?text= or a POSTed body.
func (s *Server) detectHandler(w http.ResponseWriter, r *http.Request) {
	var text string
	switch r.Method {
	case http.MethodGet:
		text = r.URL.Query().Get("text")
	case http.MethodPost:
		var req struct {
			Text string `json:"text"`
		}
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeErrorResponse(w, "Invalid JSON body", http.StatusBadRequest)
			return
		}
		text = req.Text
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if strings.TrimSpace(text) == "" {
		s.writeErrorResponse(w, "Missing text", http.StatusBadRequest)
		return
	}
	s.writeJSON(w, http.StatusOK, DetectResponse{Language: s.detector.Detect(text)})
}

// routeHandler reports which adapter serves ?host= (a hostname or URL).
func (s *Server) routeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	host := hostOf(r.URL.Query().Get("host"))
	if host == "" {
		s.writeErrorResponse(w, "Missing host parameter", http.StatusBadRequest)
		return
	}
	resp := RouteResponse{Host: host}
	if e, ok := router.Lookup(host); ok {
		resp.Adapter, resp.Matched = e.Adapter, true
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// hostOf accepts a bare hostname or an absolute URL.
func hostOf(v string) string {
	v = strings.TrimSpace(v)
	if strings.Contains(v, "://") {
		if u, err := url.Parse(v); err == nil {
			return u.Hostname()
		}
		return ""
	}
	return v
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeErrorResponse writes a JSON error response.
func (s *Server) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	s.writeJSON(w, statusCode, ErrorResponse{Success: false, Error: message})
}
