package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync/atomic"

	"github.com/MeKo-Tech/lahidna/internal/config"
	"github.com/MeKo-Tech/lahidna/internal/features"
	"github.com/MeKo-Tech/lahidna/internal/lang"
	"github.com/MeKo-Tech/lahidna/internal/langdetect"
	"github.com/MeKo-Tech/lahidna/internal/page"
	"github.com/MeKo-Tech/lahidna/internal/reconcile"
	"github.com/MeKo-Tech/lahidna/internal/relay"
	"github.com/MeKo-Tech/lahidna/internal/rewrite"
	"github.com/MeKo-Tech/lahidna/internal/router"
	"github.com/MeKo-Tech/lahidna/internal/sites"
	"github.com/MeKo-Tech/lahidna/internal/storage"
	"github.com/MeKo-Tech/lahidna/internal/telemetry"
	"github.com/MeKo-Tech/lahidna/internal/version"
)

// app is the background half of the engine built from one Config.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	scopes storage.Scopes
	db     *storage.DB

	sink     telemetry.Sink
	reporter *telemetry.Reporter
	memory   *telemetry.Memory
	stats    atomic.Bool
	userID   string

	flags      *features.Flags
	rules      *rewrite.Rules
	pref       lang.Preference
	detector   *langdetect.Detector
	background *relay.Dispatcher

	// cookies is shared by every page and the background fetcher.
	cookies http.CookieJar
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, logger: slog.Default(), detector: langdetect.Default(), cookies: page.NewJar()}

	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		db, err := storage.OpenSQLite(cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
		a.db, a.scopes = db, db.Scopes()
	default:
		a.scopes = storage.NewMemoryScopes()
	}

	id, created, err := telemetry.UserID(ctx, a.scopes.Local)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("load user id: %w", err)
	}
	a.userID = id
	if created {
		a.logger.Debug("Created user id", "user_id", id)
	}

	if a.pref, err = reconcile.LoadPreference(ctx, a.scopes.Sync, cfg.ToPreference()); err != nil {
		a.logger.Warn("Using configured preference", "error", err)
		a.pref = cfg.ToPreference()
	}
	a.stats.Store(a.pref.CollectStats)

	if cfg.Telemetry.Enabled && cfg.Telemetry.APIBase != "" {
		a.reporter = telemetry.New(cfg.ToTelemetryConfig(version.Version),
			telemetry.WithUserID(id),
			telemetry.WithGate(a.stats.Load),
			telemetry.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout()}),
			telemetry.WithLogger(a.logger.With("component", "telemetry")),
		)
		a.sink = a.reporter
	} else {
		a.memory = &telemetry.Memory{}
		a.sink = a.memory
	}

	a.flags = features.New(cfg.Features.URL, cfg.FeaturesRefresh(), a.scopes.Local, defaultFlags(cfg)...)
	a.flags.SetHTTPClient(a.httpClient(nil))
	if err := a.flags.Refresh(ctx); err != nil {
		a.logger.Warn("Failed to refresh feature flags", "error", err)
	}

	a.rules = rewrite.New(a.scopes.Sync, a.flags)
	if _, err := a.rules.Sync(ctx); err != nil {
		a.logger.Warn("Failed to load search rewrite rule", "error", err)
	}

	a.background = relay.NewDispatcher("background", a.sink)
	(&relay.Background{
		Local:     a.scopes.Local,
		Client:    a.httpClient(nil),
		Jar:       a.cookies,
		Sink:      a.sink,
		UserAgent: cfg.HTTP.UserAgent,
	}).Register(a.background)

	return a, nil
}

// defaultFlags lists the flags that are on unless published otherwise.
func defaultFlags(cfg *config.Config) []string {
	flags := slices.Clone(cfg.Features.Defaults)
	if cfg.Features.URL == "" {
		for _, name := range router.Adapters() {
			flags = append(flags, features.HandlerFlag(name))
		}
	}
	return flags
}

// Close releases the storage backend.
func (a *app) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// httpClient returns a client sending the configured user agent.
func (a *app) httpClient(jar http.CookieJar) *http.Client {
	return &http.Client{
		Jar:       jar,
		Timeout:   a.cfg.HTTPTimeout(),
		Transport: &userAgentTransport{agent: a.cfg.HTTP.UserAgent, next: http.DefaultTransport},
	}
}

// relayClient connects doc to the background. Without a relay URL the
// in-process dispatcher answers directly; the returned close func is
// always safe to call.
func (a *app) relayClient(ctx context.Context, doc *page.Document) (relay.Client, func(), error) {
	if a.cfg.Relay.URL == "" {
		lb := relay.NewLoopback(a.background)
		lb.Timeout = a.cfg.RelayTimeout()
		return lb, func() {}, nil
	}
	content := relay.NewDispatcher("content", a.sink)
	relay.RegisterPage(content, doc)
	conn, err := relay.Dial(ctx, a.cfg.Relay.URL, content, a.cfg.RelayTimeout())
	if err != nil {
		return nil, nil, err
	}
	return conn, func() { _ = conn.Close() }, nil
}

// env assembles the adapter environment for doc.
func (a *app) env(doc *page.Document, rc relay.Client) *sites.Env {
	return &sites.Env{
		Doc:      doc,
		Pref:     a.pref,
		Storage:  a.scopes,
		HTTP:     a.httpClient(doc.Jar()),
		Relay:    rc,
		Flags:    a.flags,
		Detector: a.detector,
		Sink:     a.sink,
		Logger:   a.logger.With("host", doc.Hostname()),
		Version:  version.Version,
		UserID:   a.userID,
	}
}

type userAgentTransport struct {
	agent string
	next  http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if t.agent == "" || r.Header.Get("User-Agent") != "" {
		return t.next.RoundTrip(r)
	}
	r = r.Clone(r.Context())
	r.Header.Set("User-Agent", t.agent)
	return t.next.RoundTrip(r)
}
