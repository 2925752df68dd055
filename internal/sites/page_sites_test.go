package sites

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/lahidna/internal/lang"
	"github.com/MeKo-Tech/lahidna/internal/page"
	"github.com/MeKo-Tech/lahidna/internal/testutil"
)

func TestYouTube_ComputeAndApply(t *testing.T) {
	doc := testutil.BlankPage(t, "https://www.youtube.com/watch?v=x", "en")
	require.NoError(t, doc.SetCookie("PREF=f6=40000000&tz=Europe.Kyiv; domain=.youtube.com; path=/"))
	f := newFixture(t, doc, pref([]string{"uk"}, nil))
	site := NewYouTube(f.env)

	cfg, err := site.ComputeDesiredConfig(bg)
	require.NoError(t, err)
	assert.Equal(t, []string{"uk"}, cfg)

	require.NoError(t, site.Apply(bg, cfg))
	got, ok := doc.Cookie("PREF")
	require.True(t, ok)
	assert.Equal(t, "f6=40000000&hl=uk&tz=Europe.Kyiv", got)
}

func TestYouTube_AlreadyUkrainian(t *testing.T) {
	doc := testutil.BlankPage(t, "https://www.youtube.com/", "uk-UA")
	f := newFixture(t, doc, pref([]string{"uk"}, nil))

	_, err := NewYouTube(f.env).ComputeDesiredConfig(bg)
	mustSkip(t, err)
}

func TestWikipedia_OpensTranslation(t *testing.T) {
	doc := testutil.LoadPage(t, "wikipedia_article.html", "https://en.wikipedia.org/wiki/Kyiv")
	f := newFixture(t, doc, pref([]string{"uk", "de"}, nil))
	a := Wrap(NewWikipedia)(f.env)

	cfg, err := a.NeedToTweak(bg)
	require.NoError(t, err)
	assert.Equal(t, WikipediaConfig{Lang: "uk", Href: "https://uk.wikipedia.org/wiki/Kyiv"}, cfg)
	assert.Equal(t, "Ця сторінка є Українською. Переглянути?", a.CallToAction(cfg))

	require.NoError(t, a.Apply(bg, cfg))
	require.NoError(t, a.PostApplyAction(bg))
	assert.Equal(t, []page.Navigation{{Kind: page.NavReplace, URL: "https://uk.wikipedia.org/wiki/Kyiv"}}, f.navigations())
	assert.True(t, doc.Unloaded())
}

func TestWikipedia_Skips(t *testing.T) {
	t.Run("already in a wanted language", func(t *testing.T) {
		doc := testutil.BlankPage(t, "https://uk.wikipedia.org/wiki/Kyiv", "uk")
		f := newFixture(t, doc, pref([]string{"uk"}, nil))
		_, err := NewWikipedia(f.env).ComputeDesiredConfig(bg)
		mustSkip(t, err)
	})

	t.Run("no translation", func(t *testing.T) {
		doc := testutil.LoadPage(t, "wikipedia_article.html", "https://en.wikipedia.org/wiki/Kyiv")
		f := newFixture(t, doc, pref([]string{"crh"}, nil))
		_, err := NewWikipedia(f.env).ComputeDesiredConfig(bg)
		mustSkip(t, err)
	})
}

func TestHmara_AnnouncesStatus(t *testing.T) {
	doc := testutil.BlankPage(t, "https://hmara.info/", "uk")
	f := newFixture(t, doc, lang.Preference{})
	f.env.Version = "2.4.0"
	f.env.UserID = "user-1"
	f.env.OptionsURL = "chrome-extension://abc/options.html"
	require.NoError(t, f.env.Storage.Sync.Set(bg, map[string]any{
		lang.PreferenceKey: json.RawMessage(`{"moreLanguages":["uk"],"lessLanguages":["ru"]}`),
		"AC_lng_choice":    true,
	}))

	var details []string
	doc.OnCustomEvent(HmaraEvent, func(detail string) { details = append(details, detail) })

	_, err := Wrap(NewHmara)(f.env).NeedToTweak(bg)
	mustSkip(t, err)

	require.Len(t, details, 1)
	var status HmaraStatus
	require.NoError(t, json.Unmarshal([]byte(details[0]), &status))
	assert.Equal(t, HmaraStatus{
		Version:       "2.4.0",
		IsInstalled:   true,
		IsConfigured:  true,
		IsExperienced: true,
		OptionsURL:    "chrome-extension://abc/options.html",
		UserID:        "user-1",
		MoreLanguages: []string{"uk"},
		LessLanguages: []string{"ru"},
	}, status)
}

func TestHmara_Unconfigured(t *testing.T) {
	doc := testutil.BlankPage(t, "https://hmara.info/", "uk")
	f := newFixture(t, doc, lang.Preference{})
	require.NoError(t, f.env.Storage.Sync.Set(bg, map[string]any{
		lang.PreferenceKey: json.RawMessage(`{"moreLanguages":["uk"]}`),
	}))

	var detail string
	doc.OnCustomEvent(HmaraEvent, func(d string) { detail = d })
	require.NoError(t, NewHmara(f.env).(*Hmara).Preflight(bg))

	var status HmaraStatus
	require.NoError(t, json.Unmarshal([]byte(detail), &status))
	assert.True(t, status.IsInstalled)
	assert.False(t, status.IsConfigured, "less list was never saved")
	assert.False(t, status.IsExperienced)
	assert.Nil(t, status.LessLanguages)
}
