package support

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/MeKo-Tech/lahidna/internal/consent"
	"github.com/MeKo-Tech/lahidna/internal/features"
	"github.com/MeKo-Tech/lahidna/internal/lang"
	"github.com/MeKo-Tech/lahidna/internal/page"
	"github.com/MeKo-Tech/lahidna/internal/reconcile"
	"github.com/MeKo-Tech/lahidna/internal/relay"
	"github.com/MeKo-Tech/lahidna/internal/router"
	"github.com/MeKo-Tech/lahidna/internal/sites"
	"github.com/MeKo-Tech/lahidna/internal/storage"
	"github.com/MeKo-Tech/lahidna/internal/telemetry"
	"github.com/MeKo-Tech/lahidna/internal/testutil"
)

// TestContext holds the state of one scenario.
type TestContext struct {
	Now     time.Time
	Pref    lang.Preference
	Scopes  storage.Scopes
	Sink    *telemetry.Memory
	Web     *testutil.Web
	Flags   map[string]bool
	Fixture string
	Cookies http.CookieJar

	Doc        *page.Document
	Navigator  *page.RecordingNavigator
	Background *relay.Dispatcher

	Outcome reconcile.Outcome
	RunErr  error
	Prompts []string

	Server *HTTPTestServer
}

// NewTestContext returns a context with empty storage and a fixed clock.
func NewTestContext() (*TestContext, error) {
	root, err := testutil.ModuleRoot()
	if err != nil {
		return nil, fmt.Errorf("locate project root: %w", err)
	}
	tc := &TestContext{
		Now:     time.UnixMilli(1_700_000_000_000),
		Pref:    lang.Preference{}.Normalized(),
		Scopes:  storage.NewMemoryScopes(),
		Sink:    &telemetry.Memory{},
		Web:     testutil.NewWeb(),
		Flags:   map[string]bool{},
		Fixture: filepath.Join(root, "internal", "sites", "testdata"),
		Cookies: page.NewJar(),
	}
	tc.Background = relay.NewDispatcher("background", tc.Sink)
	(&relay.Background{Local: tc.Scopes.Local, Client: tc.Web.Client(), Jar: tc.Cookies, Sink: tc.Sink}).Register(tc.Background)
	return tc, nil
}

// Cleanup stops anything the scenario started.
func (tc *TestContext) Cleanup() error {
	if tc.Server != nil {
		tc.Server.Close()
		tc.Server = nil
	}
	return nil
}

// LoadPage parses the named fixture as location.
func (tc *TestContext) LoadPage(location, fixture string) error {
	src, err := os.ReadFile(filepath.Join(tc.Fixture, fixture))
	if err != nil {
		return err
	}
	return tc.ParsePage(location, string(src))
}

// ParsePage parses src as location.
func (tc *TestContext) ParsePage(location, src string) error {
	tc.Navigator = &page.RecordingNavigator{}
	doc, err := page.ParseString(src, location, page.WithJar(tc.Cookies), page.WithNavigator(tc.Navigator))
	if err != nil {
		return err
	}
	tc.Doc = doc
	return nil
}

// Run executes the flow on the loaded page and answers the prompt with
// answer: "yes", "no" or "" to leave the page instead.
func (tc *TestContext) Run(answer string) error {
	if tc.Doc == nil {
		return fmt.Errorf("no page loaded")
	}
	flags := map[string]bool{}
	for _, name := range router.Adapters() {
		flags[features.HandlerFlag(name)] = true
	}
	for k, v := range tc.Flags {
		flags[k] = v
	}

	env := &sites.Env{
		Doc:     tc.Doc,
		Pref:    tc.Pref,
		Storage: tc.Scopes,
		HTTP:    &http.Client{Transport: tc.Web, Jar: tc.Cookies},
		Relay:   relay.NewLoopback(tc.Background),
		Flags:   features.Static(flags),
		Sink:    tc.Sink,
		Now:     func() time.Time { return tc.Now },
	}

	ctrl := consent.NewController()
	o := reconcile.New(ctrl)
	o.OnPrompt = func(_, cta string) {
		tc.Prompts = append(tc.Prompts, cta)
		switch answer {
		case "yes":
			ctrl.Answer(true)
		case "no":
			ctrl.Answer(false)
		default:
			tc.Doc.Unload()
		}
	}

	tc.Outcome, tc.RunErr = o.Run(context.Background(), env)
	return nil
}
