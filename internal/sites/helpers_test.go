package sites

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/lahidna/internal/lang"
	"github.com/MeKo-Tech/lahidna/internal/page"
	"github.com/MeKo-Tech/lahidna/internal/relay"
	"github.com/MeKo-Tech/lahidna/internal/storage"
	"github.com/MeKo-Tech/lahidna/internal/telemetry"
	"github.com/MeKo-Tech/lahidna/internal/testutil"
)

var testNow = time.UnixMilli(1_700_000_000_000)

type fixture struct {
	env  *Env
	web  *testutil.Web
	sink *telemetry.Memory
}

func newFixture(t *testing.T, doc *page.Document, pref lang.Preference) *fixture {
	t.Helper()
	web := testutil.NewWeb()
	sink := &telemetry.Memory{}
	client := web.Client()
	client.Jar = doc.Jar()
	return &fixture{
		env: &Env{
			Doc:     doc,
			Pref:    pref.Normalized(),
			Storage: storage.NewMemoryScopes(),
			HTTP:    client,
			Sink:    sink,
			Now:     func() time.Time { return testNow },
		},
		web:  web,
		sink: sink,
	}
}

// withRelay routes relay messages to an in-process background sharing the
// fixture's fake web, cookie jar and local storage.
func (f *fixture) withRelay() *fixture {
	d := relay.NewDispatcher("background", f.sink)
	back := &relay.Background{
		Local:  f.env.Storage.Local,
		Client: f.web.Client(),
		Jar:    f.env.Doc.Jar(),
		Sink:   f.sink,
	}
	back.Register(d)
	f.env.Relay = relay.NewLoopback(d)
	return f
}

func (f *fixture) navigations() []page.Navigation {
	return f.env.Doc.Navigator().(*page.RecordingNavigator).History()
}

func posts(web *testutil.Web, suffix string) []testutil.Request {
	var out []testutil.Request
	for _, r := range web.RequestsTo(suffix) {
		if r.Method == http.MethodPost {
			out = append(out, r)
		}
	}
	return out
}

func pref(more, less []string) lang.Preference {
	return lang.Preference{MoreLanguages: more, LessLanguages: less, Speed: lang.SpeedGentle}
}

func mustSkip(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	require.True(t, IsSkip(err), "expected skip, got %v", err)
}

var bg = context.Background()
