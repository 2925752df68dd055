package sites

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/MeKo-Tech/lahidna/internal/lang"
)

const (
	linkedinParserVersion = 1
	linkedinOrigin        = "https://www.linkedin.com"
	linkedinTranslation   = linkedinOrigin + "/psettings/select-language-for-translation"
	linkedinSettingsPage  = linkedinTranslation + "?li_theme=light&openInMobileMode=true"
)

var (
	linkedinCSRFRE   = regexp.MustCompile(`"csrfToken":"(.*?)"`)
	linkedinSuffixRE = regexp.MustCompile(`\s*\(.*`)

	linkedinLocales = map[string]string{
		"ar": "ar_AE", "cs": "cs_CZ", "da": "da_DK", "de": "de_DE", "en": "en_US",
		"es": "es_ES", "fr": "fr_FR", "hi": "hi_IN", "in": "in_ID", "it": "it_IT",
		"ja": "ja_JP", "ko": "ko_KR", "ms": "ms_MY", "nl": "nl_NL", "no": "no_NO",
		"pl": "pl_PL", "pt": "pt_BR", "ro": "ro_RO", "ru": "ru_RU", "sv": "sv_SE",
		"th": "th_TH", "tl": "tl_PH", "tr": "tr_TR", "uk": "uk_UA", "zh": "zh_CN",
	}

	linkedinSecondaryNames = map[string]string{
		"af": "Afrikaans", "in": "Bahasa Indonesia", "ms": "Bahasa Malaysia", "bs": "Bosanski",
		"ca": "Català", "cs": "Čeština", "cy": "Cymraeg", "da": "Dansk", "de": "Deutsch",
		"et": "Eesti keel", "en": "English", "es": "Español", "fr": "Français", "hr": "Hrvatski",
		"it": "Italiano", "sw": "Kiswahili", "lv": "Latviešu valoda", "lt": "Lietuvių kalba",
		"hu": "Magyar", "mt": "Malti", "nl": "Nederlands", "no": "Norsk", "pl": "Polski",
		"pt": "Português", "ro": "Română", "sk": "Slovenčina", "sl": "Slovenščina", "sr": "Cрпски",
		"fi": "Suomi", "sv": "Svenska", "tl": "Tagalog", "vi": "Tiếng việt", "tr": "Türkçe",
		"zh": "正體中文", "ja": "日本語", "ko": "한국어", "ar": "العربية", "fa": "فارسى",
		"he": "עברית", "ur": "اردو", "hi": "हिन्दी", "th": "ภาษาไทย", "el": "ελληνικά",
		"bg": "български", "ru": "Русский", "uk": "Українська",
	}

	linkedinLanguageByName = invert(linkedinSecondaryNames)
)

func invert(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}

// LinkedInSettings is the language state read from the preferences page.
type LinkedInSettings struct {
	UILanguage    string   `json:"uiLanguage,omitempty"`
	TranslateTo   string   `json:"languageTranslateTo,omitempty"`
	DontTranslate []string `json:"dontTranslateLanguagesElements,omitempty"`
}

// LinkedInConfig holds the settings read and the fields to change.
type LinkedInConfig struct {
	Old LinkedInSettings `json:"oldConfig"`
	New LinkedInSettings `json:"newConfig"`
}

// LinkedIn changes the UI, translate-to and secondary languages.
type LinkedIn struct {
	base Default
}

// NewLinkedIn builds the adapter for linkedin.com.
func NewLinkedIn(env *Env) Site[LinkedInConfig] {
	return &LinkedIn{base: Default{Env: env, Name: "linkedin", Supported: []string{"uk"}}}
}

func (l *LinkedIn) Name() string                 { return l.base.Name }
func (l *LinkedIn) SupportedLanguages() []string { return l.base.Supported }

func (l *LinkedIn) CallToAction(LinkedInConfig) string {
	return "LinkedIn підтримує Українську. Налаштувати?"
}

func (l *LinkedIn) parseErr(what string) error {
	return &ParseError{Adapter: l.Name(), Version: linkedinParserVersion, What: what}
}

func (l *LinkedIn) ComputeDesiredConfig(ctx context.Context) (LinkedInConfig, error) {
	if !l.base.Env.Doc.Exists(".global-nav__me") {
		return LinkedInConfig{}, ErrNotAuthenticated
	}
	pref := l.base.Env.Pref
	if len(pref.MoreLanguages) == 0 {
		return LinkedInConfig{}, ErrSkip
	}

	doc, _, err := l.base.GetDocument(ctx, "fetch preferences", linkedinSettingsPage)
	if err != nil {
		return LinkedInConfig{}, err
	}
	old, err := l.parseSettings(doc)
	if err != nil {
		return LinkedInConfig{}, err
	}

	first := lang.Primary(pref.MoreLanguages[0])
	cfg := LinkedInConfig{Old: old}
	if _, ok := linkedinLocales[first]; ok {
		if old.UILanguage != first {
			cfg.New.UILanguage = first
		}
		if old.TranslateTo != first {
			cfg.New.TranslateTo = first
		}
	}

	if names := linkedinSecondaryTarget(old.DontTranslate, pref); !slices.Equal(names, old.DontTranslate) {
		cfg.New.DontTranslate = names
	}

	if cfg.New.UILanguage == "" && cfg.New.TranslateTo == "" && cfg.New.DontTranslate == nil {
		return LinkedInConfig{}, ErrSkip
	}
	return cfg, nil
}

// linkedinSecondaryTarget reconciles the secondary languages, which
// LinkedIn names in the language itself. Unknown names are kept.
func linkedinSecondaryTarget(names []string, pref lang.Preference) []string {
	codes := make([]string, len(names))
	for i, name := range names {
		if code, ok := linkedinLanguageByName[name]; ok {
			codes[i] = code
		} else {
			codes[i] = name
		}
	}
	spelled := pref
	spelled.MoreLanguages = nil
	for _, m := range pref.MoreLanguages {
		if _, ok := linkedinSecondaryNames[lang.Primary(m)]; ok {
			spelled.MoreLanguages = append(spelled.MoreLanguages, lang.Primary(m))
		}
	}
	next, _ := reconcileAppending(codes, spelled, spelled.MoreLanguages)

	out := make([]string, len(next))
	for i, code := range next {
		if name, ok := linkedinSecondaryNames[code]; ok {
			out[i] = name
		} else {
			out[i] = code
		}
	}
	return out
}

func (l *LinkedIn) parseSettings(doc *goquery.Document) (LinkedInSettings, error) {
	var s LinkedInSettings
	s.UILanguage = lang.Primary(doc.Find("html").AttrOr("lang", ""))

	translate := doc.Find(`input[name="primaryLanguageSetting"][checked]`).First().AttrOr("value", "")
	translate, _, _ = strings.Cut(translate, "_")
	if translate == "" {
		return s, l.parseErr("translate-to language")
	}
	s.TranslateTo = translate

	doc.Find("span.label-secondary-langauge-item").Each(func(_ int, sel *goquery.Selection) {
		s.DontTranslate = append(s.DontTranslate, linkedinSuffixRE.ReplaceAllString(strings.TrimSpace(sel.Text()), ""))
	})
	return s, nil
}

func (l *LinkedIn) csrf(ctx context.Context) (string, error) {
	body, err := l.base.Get(ctx, "fetch csrf token", linkedinSettingsPage)
	if err != nil {
		return "", err
	}
	m := linkedinCSRFRE.FindStringSubmatch(body)
	if m == nil || m[1] == "" {
		return "", l.parseErr("csrf token")
	}
	return m[1], nil
}

func (l *LinkedIn) Apply(ctx context.Context, cfg LinkedInConfig) error {
	token, err := l.csrf(ctx)
	if err != nil {
		return err
	}
	headers := map[string]string{
		"Content-Type":     "application/x-www-form-urlencoded; charset=UTF-8",
		"x-requested-with": "XMLHttpRequest",
	}
	post := func(op, endpoint string, form Form) func(context.Context) error {
		return func(ctx context.Context) error {
			return l.base.Post(ctx, op, endpoint, headers, form.Encode())
		}
	}

	locale := func(code string) (string, error) {
		if v, ok := linkedinLocales[code]; ok {
			return v, nil
		}
		return "", fmt.Errorf("%s: %s: %w", l.Name(), code, ErrUnsupportedLanguage)
	}

	var jobs []func(context.Context) error
	if ui := cfg.New.UILanguage; ui != "" {
		v, err := locale(ui)
		if err != nil {
			return err
		}
		jobs = append(jobs, post("set UI language", linkedinOrigin+"/psettings/select-language",
			Form{{"locale", v}, {"csrfToken", token}}))
	}
	if tr := cfg.New.TranslateTo; tr != "" {
		v, err := locale(tr)
		if err != nil {
			return err
		}
		jobs = append(jobs, post("set translate language", linkedinTranslation,
			Form{{"locale", v}, {"csrfToken", token}}))
	}
	if names := cfg.New.DontTranslate; names != nil {
		jobs = append(jobs, post("set secondary languages", linkedinTranslation+"/secondary-languages",
			Form{{"locales", strings.Join(names, ",")}, {"csrfToken", token}}))
	}
	return All(ctx, jobs...)
}
