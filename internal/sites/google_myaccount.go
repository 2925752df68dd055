package sites

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"slices"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/MeKo-Tech/lahidna/internal/lang"
)

const (
	myAccountParserVersion = 1
	myAccountPreferences   = "https://myaccount.google.com/language"
	myAccountFormHeader    = "application/x-www-form-urlencoded;charset=UTF-8"
)

var (
	myAccountAtRE = regexp.MustCompile(`https:\\/\\/www\.google\.com\\/settings','(.*?)'`)

	myAccountTags = map[string]string{
		"uk": "uk",
		"en": "en-GB",
	}
	myAccountSupported = []string{"uk", "en"}
)

// MyAccountConfig is the ordered list of preferred Google languages plus the
// request token scraped with it.
type MyAccountConfig struct {
	PreferredLangs []string `json:"preferredLangs"`
	SettingsAt     string   `json:"settingsAt"`
}

// GoogleMyAccount edits the account-wide Google language list.
type GoogleMyAccount struct {
	base Default
}

// NewGoogleMyAccount builds the adapter for myaccount.google.com.
func NewGoogleMyAccount(env *Env) Site[MyAccountConfig] {
	return &GoogleMyAccount{base: Default{Env: env, Name: "google-myaccount", Supported: myAccountSupported}}
}

func (g *GoogleMyAccount) Name() string                 { return g.base.Name }
func (g *GoogleMyAccount) SupportedLanguages() []string { return g.base.Supported }

func (g *GoogleMyAccount) CallToAction(MyAccountConfig) string {
	return "Інтерфейси Google підтримують Українську. Налаштувати?"
}

func (g *GoogleMyAccount) ComputeDesiredConfig(ctx context.Context) (MyAccountConfig, error) {
	pref := g.base.Env.Pref
	if len(lang.SupportedWanted(pref, g.base.Supported)) == 0 {
		return MyAccountConfig{}, ErrSkip
	}

	var (
		doc *goquery.Document
		raw string
	)
	endpoint := g.base.Origin() + "/language"
	if g.base.Env.Doc.Location().String() == myAccountPreferences {
		raw = g.base.Env.Doc.HTML()
		var err error
		doc, err = goquery.NewDocumentFromReader(strings.NewReader(raw))
		if err != nil {
			return MyAccountConfig{}, &ParseError{Adapter: g.Name(), Version: myAccountParserVersion, What: "page", Err: err}
		}
	} else {
		var err error
		doc, raw, err = g.base.GetDocument(ctx, "fetch preferences", endpoint)
		if err != nil {
			return MyAccountConfig{}, err
		}
	}

	var current []string
	doc.Find(".GqRghe .mMsbvc > span[lang]").Each(func(_ int, s *goquery.Selection) {
		if v, ok := s.Attr("lang"); ok && v != "" {
			current = append(current, v)
		}
	})
	if len(current) == 0 {
		return MyAccountConfig{}, &ParseError{Adapter: g.Name(), Version: myAccountParserVersion, What: "preferred languages"}
	}

	next := desiredGoogleLanguages(current, pref)
	if slices.Equal(next, current) {
		return MyAccountConfig{}, ErrSkip
	}

	m := myAccountAtRE.FindStringSubmatch(raw)
	if m == nil {
		return MyAccountConfig{}, &ParseError{Adapter: g.Name(), Version: myAccountParserVersion, What: `"at" token`}
	}
	return MyAccountConfig{PreferredLangs: next, SettingsAt: m[1]}, nil
}

// desiredGoogleLanguages drops unwanted languages, adds the wanted ones
// Google knows and orders the list by user priority. Languages the user did
// not rank keep their relative order after the ranked ones.
func desiredGoogleLanguages(current []string, pref lang.Preference) []string {
	// Added languages use Google's own spelling.
	spelled := pref
	spelled.MoreLanguages = make([]string, 0, len(pref.MoreLanguages))
	for _, want := range pref.MoreLanguages {
		if tag, ok := myAccountTags[lang.Primary(want)]; ok {
			spelled.MoreLanguages = append(spelled.MoreLanguages, tag)
		}
	}
	next, _ := lang.Reconcile(current, spelled, myAccountSupported)

	rank := func(tag string) int {
		if i := lang.Index(pref.MoreLanguages, tag); i >= 0 {
			return i
		}
		return len(pref.MoreLanguages)
	}
	sort.SliceStable(next, func(i, j int) bool { return rank(next[i]) < rank(next[j]) })
	return next
}

func (g *GoogleMyAccount) Apply(ctx context.Context, cfg MyAccountConfig) error {
	headers := map[string]string{"content-type": myAccountFormHeader}
	origin := g.base.Origin()

	disable := Form{
		{"f.req", `[[["NeP2w","[2]",null,"generic"]]]`},
		{"at", cfg.SettingsAt},
	}
	if _, _, err := g.base.Do(ctx, "disable language suggestions", http.MethodPost,
		origin+"/_/AccountSettingsUi/data/batchexecute", headers, disable.Encode()); err != nil {
		return err
	}

	langs, err := json.Marshal([][]string{cfg.PreferredLangs})
	if err != nil {
		return err
	}
	update := Form{
		{"f.req", string(langs)},
		{"at", cfg.SettingsAt},
	}
	status, _, err := g.base.Do(ctx, "update languages", http.MethodPost, origin+"/_/language_update", headers, update.Encode())
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return &NetworkError{Adapter: g.Name(), Op: "update languages", Status: status}
	}
	return nil
}
