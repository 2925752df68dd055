package reconcile

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/lahidna/internal/consent"
	"github.com/MeKo-Tech/lahidna/internal/features"
	"github.com/MeKo-Tech/lahidna/internal/lang"
	"github.com/MeKo-Tech/lahidna/internal/page"
	"github.com/MeKo-Tech/lahidna/internal/relay"
	"github.com/MeKo-Tech/lahidna/internal/sites"
	"github.com/MeKo-Tech/lahidna/internal/storage"
	"github.com/MeKo-Tech/lahidna/internal/telemetry"
	"github.com/MeKo-Tech/lahidna/internal/testutil"
)

var testNow = time.UnixMilli(1_700_000_000_000)

// listSite reports a fixed language list and reconciles it generically.
type listSite struct {
	env       *sites.Env
	current   []string
	supported []string
	applyErr  error
	panics    bool
	applied   [][]string
}

func (s *listSite) Name() string                 { return "stub" }
func (s *listSite) SupportedLanguages() []string { return s.supported }
func (s *listSite) CacheTTL() time.Duration      { return time.Hour }
func (s *listSite) CallToAction([]string) string { return "Stub підтримує Українську. Налаштувати?" }

func (s *listSite) ComputeDesiredConfig(context.Context) ([]string, error) {
	if s.panics {
		panic("markup exploded")
	}
	next, changed := lang.Reconcile(s.current, s.env.Pref, s.supported)
	if !changed {
		return nil, sites.ErrSkip
	}
	return next, nil
}

func (s *listSite) Apply(_ context.Context, cfg []string) error {
	s.applied = append(s.applied, cfg)
	if s.applyErr != nil {
		return s.applyErr
	}
	s.current = cfg
	return nil
}

type flow struct {
	env     *sites.Env
	site    *listSite
	sink    *telemetry.Memory
	ctrl    *consent.Controller
	orch    *Orchestrator
	prompts []string
}

// newFlow wires a stub adapter for stub.example. answer decides how the
// prompt is handled once shown.
func newFlow(t *testing.T, current, more []string, answer func(f *flow)) *flow {
	t.Helper()
	doc := testutil.BlankPage(t, "https://stub.example/", "en")
	sink := &telemetry.Memory{}
	env := &sites.Env{
		Doc:     doc,
		Pref:    lang.Preference{MoreLanguages: more, Speed: lang.SpeedGentle}.Normalized(),
		Storage: storage.NewMemoryScopes(),
		Sink:    sink,
		Now:     func() time.Time { return testNow },
	}
	site := &listSite{env: env, current: current, supported: []string{"uk", "en"}}
	ctrl := consent.NewController()
	f := &flow{env: env, site: site, sink: sink, ctrl: ctrl}
	f.orch = &Orchestrator{
		Route: func(host string) (sites.Constructor, bool) {
			if host != "stub.example" {
				return nil, false
			}
			return sites.Wrap(func(*sites.Env) sites.Site[[]string] { return site }), true
		},
		Prompter: ctrl,
		OnPrompt: func(_, cta string) {
			f.prompts = append(f.prompts, cta)
			if answer != nil {
				answer(f)
			}
		},
	}
	return f
}

func accept(f *flow)  { f.ctrl.Answer(true) }
func decline(f *flow) { f.ctrl.Answer(false) }

func (f *flow) promptedAt(t *testing.T) (int64, bool) {
	t.Helper()
	var ts int64
	found, err := storage.GetJSON(context.Background(), f.env.Storage.Local, storage.KeyLastPromptTimestamp, &ts)
	require.NoError(t, err)
	return ts, found
}

func TestRun_PrependsWantedLanguage(t *testing.T) {
	f := newFlow(t, []string{"en"}, []string{"uk"}, accept)

	out, err := f.orch.Run(context.Background(), f.env)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, out)
	assert.Equal(t, []string{"Stub підтримує Українську. Налаштувати?"}, f.prompts)
	assert.Equal(t, [][]string{{"uk", "en"}}, f.site.applied)

	ts, found := f.promptedAt(t)
	assert.True(t, found)
	assert.Equal(t, testNow.UnixMilli(), ts)

	raw, err := f.env.Storage.Local.Get(context.Background(), storage.CacheKey("stub"))
	require.NoError(t, err)
	assert.Empty(t, raw, "cache is dropped after apply")

	nav := f.env.Doc.Navigator().(*page.RecordingNavigator).History()
	require.Len(t, nav, 1)
	assert.Equal(t, page.NavReload, nav[0].Kind)
	assert.Nil(t, f.env.Doc.NodeByID(consent.HostID), "prompt is removed once answered")
}

func TestRun_AddsMissingLanguageWhenAnotherIsPresent(t *testing.T) {
	f := newFlow(t, []string{"en"}, []string{"uk", "en"}, accept)

	out, err := f.orch.Run(context.Background(), f.env)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, out)
	assert.Len(t, f.prompts, 1)
	assert.Equal(t, [][]string{{"uk", "en"}}, f.site.applied)
}

func TestRun_SkipsWhenSatisfied(t *testing.T) {
	f := newFlow(t, []string{"en", "uk"}, []string{"uk"}, accept)

	out, err := f.orch.Run(context.Background(), f.env)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, out)
	assert.Empty(t, f.prompts)
	_, found := f.promptedAt(t)
	assert.False(t, found, "no prompt means no backoff")
}

func TestRun_DeclineCountsAgainstBackoff(t *testing.T) {
	f := newFlow(t, []string{"en"}, []string{"uk"}, decline)

	out, err := f.orch.Run(context.Background(), f.env)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeclined, out)
	assert.Empty(t, f.site.applied)
	_, found := f.promptedAt(t)
	assert.True(t, found)

	out, err = f.orch.Run(context.Background(), f.env)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, out)
	assert.Len(t, f.prompts, 1, "backoff suppresses the second prompt")
}

func TestRun_Cancelled(t *testing.T) {
	t.Run("context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		f := newFlow(t, []string{"en"}, []string{"uk"}, func(*flow) { cancel() })

		out, err := f.orch.Run(ctx, f.env)
		require.NoError(t, err)
		assert.Equal(t, OutcomeCancelled, out)
		assert.Nil(t, f.env.Doc.NodeByID(consent.HostID))
	})

	t.Run("prompt removed by the page", func(t *testing.T) {
		f := newFlow(t, []string{"en"}, []string{"uk"}, func(f *flow) {
			require.NoError(t, f.env.Doc.Remove(f.env.Doc.NodeByID(consent.HostID)))
		})

		out, err := f.orch.Run(context.Background(), f.env)
		require.NoError(t, err)
		assert.Equal(t, OutcomeCancelled, out)
		assert.Empty(t, f.site.applied)
	})
}

func TestRun_ApplyFailure(t *testing.T) {
	f := newFlow(t, []string{"en"}, []string{"uk"}, accept)
	f.site.applyErr = &sites.NetworkError{Adapter: "stub", Op: "write", Status: http.StatusForbidden}
	before := promtest.ToFloat64(adapterErrors.WithLabelValues("stub", "network"))

	out, err := f.orch.Run(context.Background(), f.env)
	assert.Equal(t, OutcomeFailed, out)
	var netErr *sites.NetworkError
	require.ErrorAs(t, err, &netErr)

	require.Len(t, f.sink.Errors(), 1)
	assert.Equal(t, "Error in stub content flow", f.sink.Errors()[0].Desc)
	assert.Equal(t, before+1, promtest.ToFloat64(adapterErrors.WithLabelValues("stub", "network")))
	assert.Empty(t, f.env.Doc.Navigator().(*page.RecordingNavigator).History(), "no reload after failure")
}

func TestRun_RecoversPanics(t *testing.T) {
	f := newFlow(t, []string{"en"}, []string{"uk"}, accept)
	f.site.panics = true

	out, err := f.orch.Run(context.Background(), f.env)
	assert.Equal(t, OutcomeFailed, out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "markup exploded")
	require.Len(t, f.sink.Errors(), 1)
	assert.Equal(t, "Error in stub content flow", f.sink.Errors()[0].Desc)
}

func TestRun_Disabled(t *testing.T) {
	tests := map[string]map[string]bool{
		"content flag off": {features.Content: false},
		"adapter flag off": {features.HandlerFlag("stub"): false},
	}
	for name, flags := range tests {
		t.Run(name, func(t *testing.T) {
			f := newFlow(t, []string{"en"}, []string{"uk"}, accept)
			f.env.Flags = features.Static(flags, features.HandlerFlag("stub"))

			out, err := f.orch.Run(context.Background(), f.env)
			require.NoError(t, err)
			assert.Equal(t, OutcomeDisabled, out)
			assert.Empty(t, f.prompts)
		})
	}
}

func TestRun_NoAdapter(t *testing.T) {
	f := newFlow(t, nil, []string{"uk"}, accept)
	doc := testutil.BlankPage(t, "https://example.org/", "en")
	f.env.Doc = doc

	out, err := f.orch.Run(context.Background(), f.env)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoAdapter, out)
	assert.Empty(t, doc.Nodes("#"+consent.HostID))
}

func TestRun_ExpectsAchievementAfterApply(t *testing.T) {
	f := newFlow(t, []string{"en"}, []string{"uk"}, accept)
	d := relay.NewDispatcher("background", f.sink)
	(&relay.Background{Local: f.env.Storage.Local, Sink: f.sink}).Register(d)
	f.env.Relay = relay.NewLoopback(d)

	out, err := f.orch.Run(context.Background(), f.env)
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, out)

	// The next load verifies the change instead of prompting.
	f.env.Doc = testutil.BlankPage(t, "https://stub.example/", "en")
	out, err = f.orch.Run(context.Background(), f.env)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, out)
	assert.Equal(t, []string{"achievement"}, f.sink.EventNames())
}

func TestRun_RealRouterPrefersAccountSettings(t *testing.T) {
	doc := testutil.BlankPage(t, "https://myaccount.google.com/", "en")
	env := &sites.Env{
		Doc:     doc,
		Pref:    lang.Preference{MoreLanguages: []string{"crh"}}.Normalized(),
		Storage: storage.NewMemoryScopes(),
		Now:     func() time.Time { return testNow },
	}
	account := flowsTotal.WithLabelValues("google-myaccount", string(OutcomeSkipped))
	search := flowsTotal.WithLabelValues("google-search", string(OutcomeSkipped))
	beforeAccount, beforeSearch := promtest.ToFloat64(account), promtest.ToFloat64(search)

	out, err := New(consent.NewController()).Run(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, out)
	assert.Equal(t, beforeAccount+1, promtest.ToFloat64(account))
	assert.Equal(t, beforeSearch, promtest.ToFloat64(search))
}

func TestRun_YouTubeEndToEnd(t *testing.T) {
	doc := testutil.BlankPage(t, "https://www.youtube.com/", "en")
	env := &sites.Env{
		Doc:     doc,
		Pref:    lang.Preference{MoreLanguages: []string{"uk"}}.Normalized(),
		Storage: storage.NewMemoryScopes(),
		Now:     func() time.Time { return testNow },
	}
	ctrl := consent.NewController()
	orch := New(ctrl)
	orch.OnPrompt = func(adapter, cta string) {
		assert.Equal(t, "youtube", adapter)
		assert.True(t, ctrl.Answer(true))
	}

	out, err := orch.Run(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, out)
	pref, ok := doc.Cookie("PREF")
	require.True(t, ok)
	assert.Equal(t, "hl=uk", pref)
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "parse", errorKind(&sites.ParseError{}))
	assert.Equal(t, "network", errorKind(errors.Join(errors.New("x"), &sites.NetworkError{})))
	assert.Equal(t, "other", errorKind(errors.New("x")))
}

func TestRun_GoogleSearchEndToEnd(t *testing.T) {
	doc := testutil.BlankPage(t, "https://www.google.com/search?q=kyiv", "en")
	web := testutil.NewWeb()
	web.Respond("https://www.google.com/preferences", http.StatusOK, testutil.ReadFixture(t, "google_preferences.html"))
	web.Respond("https://www.google.com/setprefs", http.StatusOK, "")
	env := &sites.Env{
		Doc:     doc,
		Pref:    lang.Preference{MoreLanguages: []string{"uk"}, LessLanguages: []string{"ru"}}.Normalized(),
		Storage: storage.NewMemoryScopes(),
		HTTP:    web.Client(),
		Now:     func() time.Time { return testNow },
	}
	ctrl := consent.NewController()
	orch := New(ctrl)
	orch.OnPrompt = func(adapter, cta string) {
		assert.Equal(t, "google-search", adapter)
		assert.Contains(t, cta, "Пошук Google")
		assert.True(t, ctrl.Answer(true))
	}

	out, err := orch.Run(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, out)

	set := web.RequestsTo("/setprefs")
	require.Len(t, set, 1)
	assert.Equal(t, []string{"lang_uk", "lang_en"}, set[0].URL.Query()["lr"])
	assert.Equal(t, "uk", set[0].URL.Query().Get("hl"))
}
