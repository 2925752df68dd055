package sites

import (
	"context"
	"slices"
	"time"
)

var wikipediaLanguages = []string{
	"uk", "crh", "hy", "af", "be", "bg", "de", "en", "tl", "id", "sw", "nl",
	"vi", "tr", "ca", "da", "et", "es", "eo", "fr", "hr", "it", "lv", "lt",
	"hu", "no", "pl", "pt", "ro", "ru", "sk", "sl", "fi", "sv", "is", "cs",
	"el", "sr", "iw", "ar", "fa", "hi", "th", "zh-CN", "zh-TW", "ja", "ko",
}

// WikipediaConfig is the article translation to open.
type WikipediaConfig struct {
	Lang string `json:"lang"`
	Href string `json:"href"`
}

// Wikipedia offers the same article in a wanted language.
type Wikipedia struct {
	base Default
}

// NewWikipedia builds the adapter for wikipedia.org.
func NewWikipedia(env *Env) Site[WikipediaConfig] {
	return &Wikipedia{base: Default{Env: env, Name: "wikipedia", Supported: wikipediaLanguages}}
}

func (w *Wikipedia) Name() string                 { return w.base.Name }
func (w *Wikipedia) SupportedLanguages() []string { return w.base.Supported }
func (w *Wikipedia) CacheTTL() time.Duration      { return 0 }

func (w *Wikipedia) CallToAction(WikipediaConfig) string {
	return "Ця сторінка є Українською. Переглянути?"
}

func (w *Wikipedia) ComputeDesiredConfig(context.Context) (WikipediaConfig, error) {
	doc := w.base.Env.Doc
	more := w.base.Env.Pref.MoreLanguages
	if slices.Contains(more, doc.Lang()) {
		return WikipediaConfig{}, ErrSkip
	}

	links := interlanguageLinks(w.base, "#p-lang .vector-menu-content a.interlanguage-link-target")
	if len(links) == 0 {
		links = interlanguageLinks(w.base, "li.interlanguage-link a.interlanguage-link-target")
	}
	for _, l := range more {
		if href, ok := links[l]; ok {
			return WikipediaConfig{Lang: l, Href: href}, nil
		}
	}
	return WikipediaConfig{}, ErrSkip
}

func interlanguageLinks(d Default, selector string) map[string]string {
	links := map[string]string{}
	for _, n := range d.Env.Doc.Nodes(selector) {
		var code, href string
		for _, a := range n.Attr {
			switch a.Key {
			case "lang":
				code = a.Val
			case "href":
				href = a.Val
			}
		}
		if code != "" && href != "" {
			links[code] = href
		}
	}
	return links
}

func (w *Wikipedia) Apply(ctx context.Context, cfg WikipediaConfig) error {
	return w.base.Env.Doc.Replace(ctx, cfg.Href)
}

// PostApplyAction does nothing: Apply already navigated away.
func (w *Wikipedia) PostApplyAction(context.Context) error { return nil }
