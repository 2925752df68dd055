package sites

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/MeKo-Tech/lahidna/internal/lang"
)

// HmaraEvent is the page event announcing the installed extension.
const HmaraEvent = "LU"

// HmaraStatus is the detail of HmaraEvent.
type HmaraStatus struct {
	Version       string   `json:"version"`
	IsInstalled   bool     `json:"isInstalled"`
	IsConfigured  bool     `json:"isConfigured"`
	IsExperienced bool     `json:"isExperienced"`
	OptionsURL    string   `json:"optionsUrl"`
	UserID        string   `json:"userId"`
	MoreLanguages []string `json:"moreLanguages"`
	LessLanguages []string `json:"lessLanguages"`
}

// Hmara tells the project site about the user's progress. It never
// prompts.
type Hmara struct {
	base Default
}

// NewHmara builds the adapter for hmara.info.
func NewHmara(env *Env) Site[struct{}] {
	return &Hmara{base: Default{Env: env, Name: "hmara"}}
}

func (h *Hmara) Name() string                 { return h.base.Name }
func (h *Hmara) SupportedLanguages() []string { return nil }
func (h *Hmara) CacheTTL() time.Duration      { return 0 }
func (h *Hmara) CallToAction(struct{}) string { return "" }

func (h *Hmara) Preflight(ctx context.Context) error {
	env := h.base.Env
	all, err := env.Storage.Sync.Get(ctx)
	if err != nil {
		return err
	}
	var pref *lang.Preference
	if raw, ok := all[lang.PreferenceKey]; ok {
		var p lang.Preference
		if err := json.Unmarshal(raw, &p); err == nil {
			pref = &p
		}
	}
	experienced := false
	for k := range all {
		if strings.HasPrefix(k, "AC_") {
			experienced = true
			break
		}
	}

	status := HmaraStatus{
		Version:       env.Version,
		IsInstalled:   true,
		IsExperienced: experienced,
		OptionsURL:    env.OptionsURL,
		UserID:        env.UserID,
	}
	if pref != nil {
		status.IsConfigured = pref.MoreLanguages != nil && pref.LessLanguages != nil
		status.MoreLanguages = pref.MoreLanguages
		status.LessLanguages = pref.LessLanguages
	}
	detail, err := json.Marshal(status)
	if err != nil {
		return err
	}
	env.Doc.DispatchCustomEvent(HmaraEvent, string(detail))
	return nil
}

func (h *Hmara) ComputeDesiredConfig(context.Context) (struct{}, error) {
	return struct{}{}, ErrSkip
}

func (h *Hmara) Apply(context.Context, struct{}) error { return ErrSkip }
