package testutil

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
)

// Request is a request seen by Web.
type Request struct {
	Method string
	URL    *url.URL
	Header http.Header
	Body   string
}

// Web is an http.RoundTripper serving canned responses for absolute URLs,
// so code talking to real hostnames can be tested without a network.
type Web struct {
	mu       sync.Mutex
	routes   map[string]http.HandlerFunc
	requests []Request
}

// NewWeb returns an empty Web. Unknown URLs answer 404.
func NewWeb() *Web {
	return &Web{routes: map[string]http.HandlerFunc{}}
}

// Handle registers fn for pattern, either "https://host/path" for any
// method or "POST https://host/path" for one method. Query strings are
// ignored when matching.
func (w *Web) Handle(pattern string, fn http.HandlerFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.routes[pattern] = fn
}

// Respond registers a fixed response for pattern.
func (w *Web) Respond(pattern string, status int, body string) {
	w.Handle(pattern, func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(status)
		_, _ = io.WriteString(rw, body)
	})
}

// RoundTrip implements http.RoundTripper.
func (w *Web) RoundTrip(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		_ = req.Body.Close()
	}

	u := *req.URL
	key := u.Scheme + "://" + u.Host + u.Path

	w.mu.Lock()
	w.requests = append(w.requests, Request{Method: req.Method, URL: &u, Header: req.Header.Clone(), Body: string(body)})
	fn, ok := w.routes[req.Method+" "+key]
	if !ok {
		fn, ok = w.routes[key]
	}
	w.mu.Unlock()

	if !ok {
		fn = func(rw http.ResponseWriter, _ *http.Request) { http.NotFound(rw, nil) }
	}
	served := req.Clone(req.Context())
	served.Body = io.NopCloser(bytes.NewReader(body))
	rec := httptest.NewRecorder()
	fn(rec, served)

	resp := rec.Result()
	resp.Request = req
	return resp, nil
}

// Client returns an http.Client backed by w.
func (w *Web) Client() *http.Client {
	return &http.Client{Transport: w}
}

// Requests returns every request seen so far.
func (w *Web) Requests() []Request {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Request(nil), w.requests...)
}

// RequestsTo returns the requests whose path ends with suffix.
func (w *Web) RequestsTo(suffix string) []Request {
	var out []Request
	for _, r := range w.Requests() {
		if strings.HasSuffix(r.URL.Path, suffix) {
			out = append(out, r)
		}
	}
	return out
}
