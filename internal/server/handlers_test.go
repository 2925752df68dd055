package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/lahidna/internal/lang"
	"github.com/MeKo-Tech/lahidna/internal/relay"
	"github.com/MeKo-Tech/lahidna/internal/rewrite"
	"github.com/MeKo-Tech/lahidna/internal/storage"
)

func newRules(t *testing.T, less ...string) *rewrite.Rules {
	t.Helper()
	ctx := context.Background()
	store := storage.NewMemory()
	p := lang.Preference{MoreLanguages: []string{"uk"}, LessLanguages: less}
	require.NoError(t, storage.SetJSON(ctx, store, lang.PreferenceKey, p))
	r := rewrite.New(store, nil)
	_, err := r.Sync(ctx)
	require.NoError(t, err)
	return r
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestServer_HealthHandler(t *testing.T) {
	server := &Server{version: "1.0.0"}

	tests := []struct {
		name           string
		method         string
		expectedStatus int
	}{
		{"GET request success", http.MethodGet, http.StatusOK},
		{"POST request not allowed", http.MethodPost, http.StatusMethodNotAllowed},
		{"PUT request not allowed", http.MethodPut, http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			server.healthHandler(w, httptest.NewRequest(tt.method, "/health", nil))
			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedStatus != http.StatusOK {
				return
			}
			resp := decode[HealthResponse](t, w)
			assert.Equal(t, "healthy", resp.Status)
			assert.Equal(t, "1.0.0", resp.Version)
			assert.NotEmpty(t, resp.Time)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		})
	}
}

func TestServer_RewriteHandler(t *testing.T) {
	server := &Server{rewriter: newRules(t, "ru")}

	tests := []struct {
		name      string
		target    string
		status    int
		url       string
		rewritten bool
	}{
		{"search rewritten", "/rewrite?url=" + urlQuery("https://www.google.com/search?q=kyiv"), http.StatusOK,
			"https://www.google.com/search?lr=-lang_ru&q=kyiv", true},
		{"other page untouched", "/rewrite?url=" + urlQuery("https://example.com/?q=1"), http.StatusOK,
			"https://example.com/?q=1", false},
		{"missing url", "/rewrite", http.StatusBadRequest, "", false},
		{"invalid url", "/rewrite?url=" + urlQuery("http://[::1"), http.StatusBadRequest, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			server.rewriteHandler(w, httptest.NewRequest(http.MethodGet, tt.target, nil))
			require.Equal(t, tt.status, w.Code)
			if tt.status != http.StatusOK {
				assert.False(t, decode[ErrorResponse](t, w).Success)
				return
			}
			resp := decode[RewriteResponse](t, w)
			assert.Equal(t, tt.url, resp.URL)
			assert.Equal(t, tt.rewritten, resp.Rewritten)
		})
	}
}

func TestServer_RewriteHandler_NotConfigured(t *testing.T) {
	server := &Server{}
	w := httptest.NewRecorder()
	server.rewriteHandler(w, httptest.NewRequest(http.MethodGet, "/rewrite?url=x", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestServer_DetectHandler(t *testing.T) {
	server := NewServer(Config{})

	w := httptest.NewRecorder()
	server.detectHandler(w, httptest.NewRequest(http.MethodGet, "/detect?text="+urlQuery("Привіт, як справи?"), nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "uk", decode[DetectResponse](t, w).Language)

	w = httptest.NewRecorder()
	body := strings.NewReader(`{"text":"Привет, как дела?"}`)
	server.detectHandler(w, httptest.NewRequest(http.MethodPost, "/detect", body))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ru", decode[DetectResponse](t, w).Language)

	w = httptest.NewRecorder()
	server.detectHandler(w, httptest.NewRequest(http.MethodPost, "/detect", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	server.detectHandler(w, httptest.NewRequest(http.MethodGet, "/detect?text=%20", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	server.detectHandler(w, httptest.NewRequest(http.MethodDelete, "/detect", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestServer_RouteHandler(t *testing.T) {
	server := &Server{}

	tests := []struct {
		query   string
		adapter string
		matched bool
	}{
		{"myaccount.google.com", "google-myaccount", true},
		{urlQuery("https://www.google.com.ua/search?q=x"), "google-search", true},
		{"uk.wikipedia.org", "wikipedia", true},
		{"example.com", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := httptest.NewRecorder()
			server.routeHandler(w, httptest.NewRequest(http.MethodGet, "/route?host="+tt.query, nil))
			require.Equal(t, http.StatusOK, w.Code)
			resp := decode[RouteResponse](t, w)
			assert.Equal(t, tt.adapter, resp.Adapter)
			assert.Equal(t, tt.matched, resp.Matched)
		})
	}

	w := httptest.NewRecorder()
	server.routeHandler(w, httptest.NewRequest(http.MethodGet, "/route", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_Routes(t *testing.T) {
	d := relay.NewDispatcher("background", nil)
	(&relay.Background{Local: storage.NewMemory()}).Register(d)
	server := NewServer(Config{
		CORSOrigin: "*",
		TimeoutSec: 5,
		Version:    "test",
		Rewriter:   newRules(t, "ru"),
		Relay:      d,
	})
	srv := httptest.NewServer(server.Handler())
	defer srv.Close()

	for _, path := range []string{"/health", "/metrics", "/route?host=duckduckgo.com"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err, path)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}

	before := testutil.ToFloat64(websocketConnections)
	ctx := context.Background()
	c, err := relay.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/relay", nil, time.Second)
	require.NoError(t, err)
	a := relay.Achievements{Client: c}
	require.NoError(t, a.Expect(ctx, "youtube", "lng_choice"))
	got, err := a.TakeExpected(ctx, "youtube")
	require.NoError(t, err)
	assert.True(t, got.Expected)
	assert.Equal(t, before+1, testutil.ToFloat64(websocketConnections))
	require.NoError(t, c.Close())
	assert.Eventually(t, func() bool { return testutil.ToFloat64(websocketConnections) == before },
		2*time.Second, 10*time.Millisecond)
}

func TestServer_RateLimitedRoutes(t *testing.T) {
	server := NewServer(Config{
		RateLimitEnabled:  true,
		RequestsPerMinute: 100,
		RequestsPerHour:   100,
		MaxRequestsPerDay: 1,
		Rewriter:          newRules(t, "ru"),
	})
	handler := server.Handler()
	status := func(path string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "192.0.2.44:1234"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, status("/detect?text=hello"))
	assert.Equal(t, http.StatusTooManyRequests, status("/rewrite?url="+urlQuery("https://www.google.com/search?q=kyiv")))
	// Health and route lookups are not counted.
	assert.Equal(t, http.StatusOK, status("/health"))
	assert.Equal(t, http.StatusOK, status("/route?host=www.youtube.com"))
	assert.Zero(t, server.PruneRateLimits())
}

func TestServer_NoRelayEndpoint(t *testing.T) {
	srv := httptest.NewServer(NewServer(Config{}).Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/relay")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_WriteErrorResponse(t *testing.T) {
	server := &Server{}
	w := httptest.NewRecorder()
	server.writeErrorResponse(w, "boom", http.StatusTeapot)
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.JSONEq(t, `{"success":false,"error":"boom"}`, w.Body.String())
}

func TestHostOf(t *testing.T) {
	assert.Equal(t, "www.linkedin.com", hostOf("https://www.linkedin.com/mypreferences/d/language"))
	assert.Equal(t, "m.facebook.com", hostOf(" m.facebook.com "))
	assert.Equal(t, "", hostOf("http://[::1"))
}

func urlQuery(s string) string {
	return strings.NewReplacer("%", "%25", "&", "%26", "?", "%3F", "#", "%23", " ", "%20", "+", "%2B", "=", "%3D").Replace(s)
}

func BenchmarkServer_HealthHandler(b *testing.B) {
	server := &Server{}
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	for range b.N {
		server.healthHandler(httptest.NewRecorder(), req)
	}
}
