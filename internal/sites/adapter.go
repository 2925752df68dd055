// Package sites holds one adapter per supported website. Each adapter knows
// how to read the site's language settings, compute the settings the user
// wants and write them back.
package sites

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MeKo-Tech/lahidna/internal/features"
	"github.com/MeKo-Tech/lahidna/internal/relay"
	"github.com/MeKo-Tech/lahidna/internal/storage"
)

// TargetConfig is an adapter-specific desired configuration.
type TargetConfig = any

// AchievementLanguageChoice is verified on the load following an apply.
const AchievementLanguageChoice = "lng_choice"

// Adapter is the uniform lifecycle every site exposes to the orchestrator.
type Adapter interface {
	Name() string
	SupportedLanguages() []string
	IsApplicableEnabled() bool
	NeedToTweak(ctx context.Context) (TargetConfig, error)
	ComputeDesiredConfig(ctx context.Context) (TargetConfig, error)
	CallToAction(cfg TargetConfig) string
	Apply(ctx context.Context, cfg TargetConfig) error
	PostApplyAction(ctx context.Context) error
	DropCache(ctx context.Context) error
}

// Constructor builds an adapter for one page load.
type Constructor func(env *Env) Adapter

// Site is the part each website implements.
type Site[C any] interface {
	Name() string
	SupportedLanguages() []string
	CallToAction(cfg C) string
	ComputeDesiredConfig(ctx context.Context) (C, error)
	Apply(ctx context.Context, cfg C) error
}

// CacheTTLer overrides DefaultCacheTTL. Zero disables caching.
type CacheTTLer interface {
	CacheTTL() time.Duration
}

// PostApplier replaces the default page reload after a successful apply.
type PostApplier interface {
	PostApplyAction(ctx context.Context) error
}

// Preflighter runs before the backoff gate on every page load.
type Preflighter interface {
	Preflight(ctx context.Context) error
}

type cacheEntry struct {
	Data       json.RawMessage `json:"data"`
	CapturedAt int64           `json:"capturedAt"`
}

// Handler adapts a Site to Adapter and owns caching, backoff and the
// achievement check.
type Handler[C any] struct {
	site Site[C]
	env  *Env
}

// NewHandler wraps site.
func NewHandler[C any](env *Env, site Site[C]) *Handler[C] {
	return &Handler[C]{site: site, env: env}
}

// Wrap returns a Constructor for a site factory.
func Wrap[C any](newSite func(env *Env) Site[C]) Constructor {
	return func(env *Env) Adapter { return NewHandler(env, newSite(env)) }
}

func (h *Handler[C]) Name() string                 { return h.site.Name() }
func (h *Handler[C]) SupportedLanguages() []string { return h.site.SupportedLanguages() }

// Site returns the wrapped site.
func (h *Handler[C]) Site() Site[C] { return h.site }

func (h *Handler[C]) IsApplicableEnabled() bool {
	if h.env.Flags == nil {
		return true
	}
	return h.env.Flags.Enabled(features.HandlerFlag(h.Name()))
}

func (h *Handler[C]) cacheTTL() time.Duration {
	if c, ok := h.site.(CacheTTLer); ok {
		return c.CacheTTL()
	}
	return DefaultCacheTTL
}

func (h *Handler[C]) NeedToTweak(ctx context.Context) (TargetConfig, error) {
	if p, ok := h.site.(Preflighter); ok {
		if err := p.Preflight(ctx); err != nil {
			h.env.Telemetry().ReportError(fmt.Sprintf("Error in %s preflight", h.Name()), err, nil)
			h.env.Log().Warn("Preflight failed", "adapter", h.Name(), "error", err)
		}
	}

	if bypass, err := h.checkAchievement(ctx); bypass {
		return nil, err
	}

	if err := h.backoff(ctx); err != nil {
		return nil, err
	}

	cfg, err := h.cachedOrCompute(ctx)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// checkAchievement consumes a pending expectation and verifies it. It
// reports true when the flow must stop for this load.
func (h *Handler[C]) checkAchievement(ctx context.Context) (bool, error) {
	if h.env.Relay == nil {
		return false, nil
	}
	ach := relay.Achievements{Client: h.env.Relay}
	exp, err := ach.TakeExpected(ctx, h.Name())
	if err != nil {
		h.env.Log().Debug("Achievement check unavailable", "adapter", h.Name(), "error", err)
		return false, nil
	}
	if !exp.Expected {
		return false, nil
	}

	_, err = h.site.ComputeDesiredConfig(ctx)
	switch {
	case IsSkip(err):
		key := exp.Key
		if key == "" {
			key = AchievementLanguageChoice
		}
		if err := ach.Track(ctx, key); err != nil {
			h.env.Log().Debug("Failed to track achievement", "adapter", h.Name(), "error", err)
		}
	case err != nil:
		h.env.Log().Debug("Achievement verification failed", "adapter", h.Name(), "error", err)
	default:
		h.env.Log().Debug("Change did not stick", "adapter", h.Name())
	}
	return true, fmt.Errorf("achievement check: %w", ErrSkip)
}

func (h *Handler[C]) backoff(ctx context.Context) error {
	var last int64
	found, err := storage.GetJSON(ctx, h.env.Storage.Local, storage.KeyLastPromptTimestamp, &last)
	if err != nil && !found {
		return err
	}
	if !found || err != nil {
		return nil
	}
	elapsed := h.env.Time().Sub(time.UnixMilli(last))
	if elapsed < h.env.Pref.Normalized().Speed.Threshold() {
		return fmt.Errorf("prompted %s ago: %w", elapsed.Round(time.Second), ErrSkip)
	}
	return nil
}

func (h *Handler[C]) cachedOrCompute(ctx context.Context) (TargetConfig, error) {
	ttl := h.cacheTTL()
	key := storage.CacheKey(h.Name())

	if ttl > 0 {
		var entry cacheEntry
		found, err := storage.GetJSON(ctx, h.env.Storage.Local, key, &entry)
		if found && err == nil && h.env.Time().Sub(time.UnixMilli(entry.CapturedAt)) < ttl {
			if len(entry.Data) == 0 || string(entry.Data) == "null" {
				return nil, fmt.Errorf("cached: %w", ErrSkip)
			}
			var cfg C
			if err := json.Unmarshal(entry.Data, &cfg); err == nil {
				return cfg, nil
			}
		}
	}

	cfg, err := h.site.ComputeDesiredConfig(ctx)
	if err != nil && !IsSkip(err) {
		return nil, err
	}
	if ttl > 0 {
		entry := cacheEntry{Data: json.RawMessage("null"), CapturedAt: h.env.Time().UnixMilli()}
		if err == nil {
			raw, mErr := json.Marshal(cfg)
			if mErr == nil {
				entry.Data = raw
			}
		}
		if wErr := storage.SetJSON(ctx, h.env.Storage.Local, key, entry); wErr != nil {
			h.env.Log().Warn("Failed to write adapter cache", "adapter", h.Name(), "error", wErr)
		}
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func (h *Handler[C]) ComputeDesiredConfig(ctx context.Context) (TargetConfig, error) {
	cfg, err := h.site.ComputeDesiredConfig(ctx)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func (h *Handler[C]) CallToAction(cfg TargetConfig) string {
	c, ok := cfg.(C)
	if !ok {
		return DefaultCallToAction
	}
	if cta := h.site.CallToAction(c); cta != "" {
		return cta
	}
	return DefaultCallToAction
}

func (h *Handler[C]) Apply(ctx context.Context, cfg TargetConfig) error {
	c, ok := cfg.(C)
	if !ok {
		return fmt.Errorf("%s: unexpected config type %T", h.Name(), cfg)
	}
	return h.site.Apply(ctx, c)
}

func (h *Handler[C]) PostApplyAction(ctx context.Context) error {
	if p, ok := h.site.(PostApplier); ok {
		return p.PostApplyAction(ctx)
	}
	return h.env.Doc.Reload(ctx)
}

func (h *Handler[C]) DropCache(ctx context.Context) error {
	return h.env.Storage.Local.Remove(ctx, storage.CacheKey(h.Name()))
}

// ErrUnsupportedLanguage is returned when a site has no code for a language.
var ErrUnsupportedLanguage = errors.New("language is not supported")
