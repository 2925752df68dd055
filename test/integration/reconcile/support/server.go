package support

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"time"

	"github.com/cucumber/godog"

	"github.com/MeKo-Tech/lahidna/internal/features"
	"github.com/MeKo-Tech/lahidna/internal/relay"
	"github.com/MeKo-Tech/lahidna/internal/rewrite"
	"github.com/MeKo-Tech/lahidna/internal/server"
)

// HTTPTestServer wraps an httptest server running the background API.
type HTTPTestServer struct {
	Server *httptest.Server
	Rules  *rewrite.Rules

	LastStatus int
	LastBody   string
	LastFields map[string]any
	LastFetch  relay.FetchResponse
}

// Close shuts the server down.
func (s *HTTPTestServer) Close() {
	s.Server.Close()
}

// RegisterServerSteps registers the HTTP API steps.
func (tc *TestContext) RegisterServerSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the background server is running$`, tc.startServer)
	sc.Step(`^I request "([^"]*)"$`, tc.request)
	sc.Step(`^I detect the language of "([^"]*)"$`, tc.detect)
	sc.Step(`^I rewrite "([^"]*)"$`, tc.rewrite)
	sc.Step(`^the response status is (\d+)$`, tc.statusIs)
	sc.Step(`^the response field "([^"]*)" is "([^"]*)"$`, tc.fieldIs)
	sc.Step(`^the response field "([^"]*)" is (true|false)$`, tc.boolFieldIs)
	sc.Step(`^the upstream "([^"]*)" answers (\d+) with "([^"]*)"$`, tc.upstream)
	sc.Step(`^a page fetches "([^"]*)" through the relay$`, tc.relayFetch)
	sc.Step(`^the relayed response is (\d+) with "([^"]*)"$`, tc.relayedIs)
}

func (tc *TestContext) startServer() error {
	flags := features.Static(tc.Flags)
	rules := rewrite.New(tc.Scopes.Sync, flags)
	if _, err := rules.Sync(context.Background()); err != nil {
		return fmt.Errorf("sync rules: %w", err)
	}
	srv := server.NewServer(server.Config{
		CORSOrigin: "*",
		TimeoutSec: 5,
		Version:    "test",
		Rewriter:   rules,
		Relay:      tc.Background,
	})
	tc.Server = &HTTPTestServer{Server: httptest.NewServer(srv.Handler()), Rules: rules}
	return nil
}

func (tc *TestContext) request(path string) error {
	if tc.Server == nil {
		return fmt.Errorf("server not started")
	}
	resp, err := http.Get(tc.Server.Server.URL + path)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	tc.Server.LastStatus, tc.Server.LastBody = resp.StatusCode, string(body)
	tc.Server.LastFields = nil
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(body, &tc.Server.LastFields); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (tc *TestContext) detect(text string) error {
	return tc.request("/detect?text=" + url.QueryEscape(text))
}

func (tc *TestContext) rewrite(raw string) error {
	return tc.request("/rewrite?url=" + url.QueryEscape(raw))
}

func (tc *TestContext) statusIs(want int) error {
	if tc.Server.LastStatus != want {
		return fmt.Errorf("expected status %d, got %d: %s", want, tc.Server.LastStatus, tc.Server.LastBody)
	}
	return nil
}

func (tc *TestContext) fieldIs(name, want string) error {
	got, ok := tc.Server.LastFields[name]
	if !ok {
		return fmt.Errorf("field %q missing in %s", name, tc.Server.LastBody)
	}
	if fmt.Sprint(got) != want {
		return fmt.Errorf("expected %s=%q, got %q", name, want, got)
	}
	return nil
}

func (tc *TestContext) boolFieldIs(name, want string) error {
	return tc.fieldIs(name, want)
}

func (tc *TestContext) upstream(rawURL string, status int, body string) error {
	tc.Web.Respond(rawURL, status, body)
	return nil
}

func (tc *TestContext) relayFetch(rawURL string) error {
	if tc.Server == nil {
		return fmt.Errorf("server not started")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(tc.Server.Server.URL, "http") + "/relay"
	conn, err := relay.Dial(ctx, wsURL, nil, time.Second)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	tc.Server.LastFetch, err = relay.Fetch(ctx, conn, relay.FetchRequest{URL: rawURL})
	return err
}

func (tc *TestContext) relayedIs(status int, body string) error {
	got := tc.Server.LastFetch
	if got.Status != status || got.Body != body {
		return fmt.Errorf("expected %d %q, got %d %q", status, body, got.Status, got.Body)
	}
	return nil
}
