package sites

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/MeKo-Tech/lahidna/internal/lang"
)

const googleSearchParserVersion = 1

// SearchConfig is the Google Search preference change.
type SearchConfig struct {
	SearchLangs []string `json:"googleSearchLangs"`
	DisplayLang string   `json:"googleDisplayLang,omitempty"`
	Sig         string   `json:"sig"`
}

// GoogleSearch sets the search result languages and display language.
type GoogleSearch struct {
	base Default
}

// NewGoogleSearch builds the adapter for Google Search domains.
func NewGoogleSearch(env *Env) Site[SearchConfig] {
	return &GoogleSearch{base: Default{Env: env, Name: "google-search", Supported: []string{"uk"}}}
}

func (g *GoogleSearch) Name() string                 { return g.base.Name }
func (g *GoogleSearch) SupportedLanguages() []string { return g.base.Supported }
func (g *GoogleSearch) CacheTTL() time.Duration      { return 3 * time.Hour }

func (g *GoogleSearch) CallToAction(SearchConfig) string {
	return "Пошук Google підтримує Українську. Налаштувати?"
}

func (g *GoogleSearch) ComputeDesiredConfig(ctx context.Context) (SearchConfig, error) {
	doc, _, err := g.base.GetDocument(ctx, "fetch preferences", g.base.Origin()+"/preferences")
	if err != nil {
		return SearchConfig{}, err
	}
	parseErr := func(what string) error {
		return &ParseError{Adapter: g.Name(), Version: googleSearchParserVersion, What: what}
	}

	var current []string
	doc.Find(`#tsuid_1 input[name="lr"][checked="1"]`).Each(func(_ int, s *goquery.Selection) {
		current = append(current, s.AttrOr("value", ""))
	})
	display, ok := doc.Find(`#tsuid_1 .URIeEf input[name="lang"][checked="1"]`).First().Attr("value")
	if !ok {
		return SearchConfig{}, parseErr("display language")
	}
	sig, ok := doc.Find(`input[name="sig"]`).First().Attr("value")
	if !ok {
		return SearchConfig{}, parseErr("sig")
	}

	pref := g.base.Env.Pref
	wanted := lang.SupportedWanted(pref, g.base.Supported)

	if len(wanted) == 0 || lang.Primary(wanted[0]) == lang.Primary(display) {
		display = ""
	} else {
		display = wanted[0]
	}

	// lr values are "lang_" plus a tag; reconcile the tags and keep the
	// site's spelling of the entries that stay.
	spelling := make(map[string]string, len(current))
	codes := make([]string, 0, len(current))
	for _, lr := range current {
		code := strings.TrimPrefix(lr, "lang_")
		spelling[code] = lr
		codes = append(codes, code)
	}
	tags, changed := lang.Reconcile(codes, pref, g.base.Supported)
	if !changed && display == "" {
		return SearchConfig{}, ErrSkip
	}

	next := make([]string, 0, len(tags))
	for _, tag := range tags {
		if lr, ok := spelling[tag]; ok {
			next = append(next, lr)
		} else {
			next = append(next, "lang_"+tag)
		}
	}
	return SearchConfig{SearchLangs: next, DisplayLang: display, Sig: sig}, nil
}

func (g *GoogleSearch) Apply(ctx context.Context, cfg SearchConfig) error {
	q := Form{{"sig", cfg.Sig}}
	if cfg.DisplayLang != "" {
		q = append(q, Field{"hl", cfg.DisplayLang}, Field{"lang", cfg.DisplayLang})
	}
	for _, lr := range cfg.SearchLangs {
		q = append(q, Field{"lr", lr})
	}
	_, err := g.base.Get(ctx, "set preferences", g.base.Origin()+"/setprefs?"+q.Query())
	return err
}
