package sites

import (
	"context"
	"net/url"
	"strconv"
)

const youtubePrefMaxAge = 63072000

// YouTube switches the interface language through the PREF cookie.
type YouTube struct {
	base Default
}

// NewYouTube builds the adapter for youtube.com.
func NewYouTube(env *Env) Site[[]string] {
	return &YouTube{base: Default{Env: env, Name: "youtube", Supported: []string{"uk"}}}
}

func (y *YouTube) Name() string                 { return y.base.Name }
func (y *YouTube) SupportedLanguages() []string { return y.base.Supported }
func (y *YouTube) CallToAction([]string) string { return "YouTube підтримує Українську. Налаштувати?" }

func (y *YouTube) ComputeDesiredConfig(context.Context) ([]string, error) {
	return y.base.UITarget(y.base.UILanguage())
}

// Apply rewrites the hl entry of PREF and keeps the other entries.
func (y *YouTube) Apply(_ context.Context, cfg []string) error {
	if len(cfg) == 0 {
		return nil
	}
	pref, _ := y.base.Env.Doc.Cookie("PREF")
	values, err := url.ParseQuery(pref)
	if err != nil {
		values = url.Values{}
	}
	values.Set("hl", cfg[0])
	return y.base.Env.Doc.SetCookie("PREF=" + values.Encode() +
		"; domain=.youtube.com; path=/; max-age=" + strconv.Itoa(youtubePrefMaxAge))
}
