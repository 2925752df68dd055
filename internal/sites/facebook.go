package sites

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/MeKo-Tech/lahidna/internal/lang"
)

const (
	facebookParserVersion = 1
	facebookOrigin        = "https://www.facebook.com"
	facebookSettings      = facebookOrigin + "/ajax/settings/language/"
)

var (
	facebookTokenRE    = regexp.MustCompile(`"token":"([^"]+?)","async_get_token":"([^"]+?)"`)
	facebookUserRE     = regexp.MustCompile(`__user=(\d+)&`)
	facebookSelectedRE = regexp.MustCompile(`value=\\*"([^"]+?)\\*" selected=\\*"1\\*"`)
	facebookUniqueIDRE = regexp.MustCompile(`"uniqueID":"(.+?)"`)

	facebookDialects = map[string]string{
		"uk": "uk_UA",
		"en": "en_XX",
		"ru": "ru_RU",
	}
)

// FacebookConfig bundles the four Facebook language settings. Empty fields
// are left untouched.
type FacebookConfig struct {
	UILangs                   []string `json:"uiLangs,omitempty"`
	TranslateLang             string   `json:"translateLang,omitempty"`
	NoTranslateLangs          []string `json:"noTranslateLangs,omitempty"`
	DisableAutotranslateLangs []string `json:"disableAutotranslateLangs,omitempty"`
}

func (c FacebookConfig) empty() bool {
	return len(c.UILangs) == 0 && c.TranslateLang == "" &&
		len(c.NoTranslateLangs) == 0 && len(c.DisableAutotranslateLangs) == 0
}

type facebookTokens struct {
	dtsg      string
	dtsgAsync string
	user      string
}

// Facebook changes the UI, translation and no-translation languages.
type Facebook struct {
	base   Default
	tokens *facebookTokens
}

// NewFacebook builds the adapter for facebook.com.
func NewFacebook(env *Env) Site[FacebookConfig] {
	return &Facebook{base: Default{Env: env, Name: "facebook", Supported: []string{"uk"}}}
}

func (f *Facebook) Name() string                 { return f.base.Name }
func (f *Facebook) SupportedLanguages() []string { return f.base.Supported }
func (f *Facebook) CacheTTL() time.Duration      { return 5 * time.Minute }

func (f *Facebook) CallToAction(FacebookConfig) string {
	return "Facebook підтримує Українську. Налаштувати?"
}

func (f *Facebook) parseErr(what string) error {
	return &ParseError{Adapter: f.Name(), Version: facebookParserVersion, What: what}
}

func (f *Facebook) pageTokens() (*facebookTokens, error) {
	if f.tokens != nil {
		return f.tokens, nil
	}
	src := f.base.Env.Doc.HTML()
	tm := facebookTokenRE.FindStringSubmatch(src)
	if tm == nil {
		return nil, f.parseErr("fb_dtsg token")
	}
	um := facebookUserRE.FindStringSubmatch(src)
	if um == nil {
		return nil, f.parseErr("user id")
	}
	f.tokens = &facebookTokens{dtsg: tm[1], dtsgAsync: tm[2], user: um[1]}
	return f.tokens, nil
}

func (f *Facebook) ComputeDesiredConfig(ctx context.Context) (FacebookConfig, error) {
	if !f.base.Env.Doc.Exists(`a[href="/me/"]`) {
		return FacebookConfig{}, ErrNotAuthenticated
	}
	tok, err := f.pageTokens()
	if err != nil {
		return FacebookConfig{}, err
	}
	query := fmt.Sprintf("?fb_dtsg_ag=%s&__user=%s&__a=1", tok.dtsgAsync, tok.user)

	var cfg FacebookConfig
	err = All(ctx,
		func(context.Context) error {
			ui, err := f.base.UITarget(f.base.UILanguage())
			if err != nil && !IsSkip(err) {
				return err
			}
			cfg.UILangs = ui
			return nil
		},
		func(ctx context.Context) error {
			body, err := f.base.Get(ctx, "read translate language", facebookSettings+"primary.php"+query+"&__dyn="+tok.dtsgAsync)
			if err != nil {
				return err
			}
			cfg.TranslateLang = f.translateTarget(body)
			return nil
		},
		func(ctx context.Context) error {
			body, err := f.base.Get(ctx, "read no-translate languages", facebookSettings+"secondary.php"+query)
			if err != nil {
				return err
			}
			cfg.NoTranslateLangs = f.dialectsTarget(body)
			return nil
		},
		func(ctx context.Context) error {
			body, err := f.base.Get(ctx, "read auto-translate languages", facebookSettings+"disable_autotranslate.php"+query)
			if err != nil {
				return err
			}
			cfg.DisableAutotranslateLangs = f.dialectsTarget(body)
			return nil
		},
	)
	if err != nil {
		return FacebookConfig{}, err
	}
	if cfg.empty() {
		return FacebookConfig{}, ErrSkip
	}
	return cfg, nil
}

// translateTarget returns the most wanted language when posts are not yet
// translated into it.
func (f *Facebook) translateTarget(body string) string {
	more := f.base.Env.Pref.MoreLanguages
	if len(more) == 0 {
		return ""
	}
	first := lang.Primary(more[0])
	want, ok := facebookDialects[first]
	if !ok {
		return ""
	}
	if m := facebookSelectedRE.FindStringSubmatch(body); m != nil && m[1] == want {
		return ""
	}
	return first
}

// dialectsTarget rewrites a dialect list only when it holds unwanted
// languages: those are dropped and missing wanted ones appended.
func (f *Facebook) dialectsTarget(body string) []string {
	var current []string
	for _, m := range facebookUniqueIDRE.FindAllStringSubmatch(body, -1) {
		current = append(current, m[1])
	}
	pref := f.base.Env.Pref
	kept := lang.Without(current, pref.LessLanguages)
	if len(kept) == len(current) {
		return nil
	}

	spelled := pref
	spelled.MoreLanguages = mapDialects(pref.MoreLanguages)
	next, _ := reconcileAppending(current, spelled, spelled.MoreLanguages)
	return next
}

func mapDialects(langs []string) []string {
	var out []string
	for _, l := range langs {
		if d, ok := facebookDialects[lang.Primary(l)]; ok {
			out = append(out, d)
		}
	}
	return out
}

func (f *Facebook) Apply(ctx context.Context, cfg FacebookConfig) error {
	tok, err := f.pageTokens()
	if err != nil {
		return err
	}
	headers := map[string]string{"Content-Type": "application/x-www-form-urlencoded"}
	post := func(op, endpoint, body string) func(context.Context) error {
		return func(ctx context.Context) error {
			return f.base.RelayPost(ctx, op, facebookSettings+endpoint, headers, body)
		}
	}

	var jobs []func(context.Context) error
	if len(cfg.UILangs) > 0 {
		dialect, ok := facebookDialects[lang.Primary(cfg.UILangs[0])]
		if !ok {
			return fmt.Errorf("%s: %s: %w", f.Name(), cfg.UILangs[0], ErrUnsupportedLanguage)
		}
		jobs = append(jobs, post("set UI language", "account.php",
			"fb_dtsg="+tok.dtsg+"&new_language="+dialect+"&new_fallback_language=&__user="+tok.user))
	}
	if len(cfg.NoTranslateLangs) > 0 {
		jobs = append(jobs, post("set no-translate languages", "secondary.php", f.tokenizedBody(tok, cfg.NoTranslateLangs)))
	}
	if cfg.TranslateLang != "" {
		dialect, ok := facebookDialects[lang.Primary(cfg.TranslateLang)]
		if !ok {
			return fmt.Errorf("%s: %s: %w", f.Name(), cfg.TranslateLang, ErrUnsupportedLanguage)
		}
		jobs = append(jobs, post("set translate language", "primary.php",
			"fb_dtsg="+tok.dtsg+"&primary_dialect="+dialect+"&__user="+tok.user+"&__a=1"))
	}
	if len(cfg.DisableAutotranslateLangs) > 0 {
		jobs = append(jobs, post("set auto-translate languages", "disable_autotranslate.php", f.tokenizedBody(tok, cfg.DisableAutotranslateLangs)))
	}
	return All(ctx, jobs...)
}

func (f *Facebook) tokenizedBody(tok *facebookTokens, dialects []string) string {
	var b strings.Builder
	for _, d := range dialects {
		b.WriteString("%20")
		b.WriteString(d)
	}
	return "fb_dtsg=" + tok.dtsg + "&tokenized_dialects=" + b.String() + "&__user=" + tok.user + "&__a=1"
}
