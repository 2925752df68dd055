// Package rewrite keeps the Google Search redirect rule that excludes the
// user's unwanted languages from results.
package rewrite

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/MeKo-Tech/lahidna/internal/features"
	"github.com/MeKo-Tech/lahidna/internal/lang"
	"github.com/MeKo-Tech/lahidna/internal/storage"
)

// DefaultInterval is how often Run reloads the synced settings, which may
// change on another device.
const DefaultInterval = 30 * time.Minute

// RuleID identifies the single dynamic rule.
const RuleID = 1

// SearchPattern matches Google Search result URLs.
var SearchPattern = regexp.MustCompile(`google\.(\w\w|co\.(\w\w)|com|com\.(\w\w)|\w\w)/search`)

var rewritesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "lahidna_search_rewrites_total",
		Help: "Search URLs checked by the rewrite rule",
	},
	[]string{"result"}, // result: rewritten, unchanged, disabled
)

// Param is one query parameter set by the rule.
type Param struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Rule is the declarative redirect rule.
type Rule struct {
	ID        int       `json:"id"`
	Priority  int       `json:"priority"`
	Action    Action    `json:"action"`
	Condition Condition `json:"condition"`
}

type Action struct {
	Type     string   `json:"type"`
	Redirect Redirect `json:"redirect"`
}

type Redirect struct {
	Transform Transform `json:"transform"`
}

type Transform struct {
	QueryTransform QueryTransform `json:"queryTransform"`
}

type QueryTransform struct {
	AddOrReplaceParams []Param `json:"addOrReplaceParams"`
}

type Condition struct {
	RegexFilter   string   `json:"regexFilter"`
	ResourceTypes []string `json:"resourceTypes"`
}

// Rules holds the unwanted languages last read from the synced scope.
type Rules struct {
	store storage.Store
	flags *features.Flags

	mu     sync.RWMutex
	less   []string
	loaded bool
}

// New returns Rules reading settings from store. A nil flags leaves the
// rule always on.
func New(store storage.Store, flags *features.Flags) *Rules {
	return &Rules{store: store, flags: flags}
}

// Sync reloads the unwanted languages. It reports whether they changed.
// Missing settings keep the previous rule.
func (r *Rules) Sync(ctx context.Context) (bool, error) {
	raw, err := r.store.Get(ctx, lang.PreferenceKey)
	if err != nil {
		return false, err
	}
	data, ok := raw[lang.PreferenceKey]
	if !ok {
		return false, nil
	}
	var p struct {
		LessLanguages []string `json:"lessLanguages"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loaded && slices.Equal(r.less, p.LessLanguages) {
		return false, nil
	}
	r.less, r.loaded = p.LessLanguages, true
	slog.Debug("Search rewrite rule updated", "less_languages", p.LessLanguages)
	return true, nil
}

// Less returns the current unwanted languages.
func (r *Rules) Less() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.less)
}

func (r *Rules) enabled() bool {
	return r.flags == nil || r.flags.Enabled(features.GoogleSearchRewrite)
}

// FilterValue is the lr value excluding less, e.g. "-lang_ru|lang_be".
func FilterValue(less []string) string {
	codes := make([]string, len(less))
	for i, l := range less {
		codes[i] = "lang_" + l
	}
	return "-" + strings.Join(codes, "|")
}

// Rule returns the declarative form of the current rule. It reports false
// when there is nothing to exclude.
func (r *Rules) Rule() (Rule, bool) {
	less := r.Less()
	if len(less) == 0 || !r.enabled() {
		return Rule{}, false
	}
	return Rule{
		ID:       RuleID,
		Priority: 1,
		Action: Action{
			Type: "redirect",
			Redirect: Redirect{Transform: Transform{QueryTransform: QueryTransform{
				AddOrReplaceParams: []Param{{Key: "lr", Value: FilterValue(less)}},
			}}},
		},
		Condition: Condition{
			RegexFilter:   SearchPattern.String(),
			ResourceTypes: []string{"main_frame"},
		},
	}, true
}

// Rewrite applies the rule to u. The returned URL is a copy; ok is false
// when u is left as is.
func (r *Rules) Rewrite(u *url.URL) (*url.URL, bool) {
	if !r.enabled() {
		rewritesTotal.WithLabelValues("disabled").Inc()
		return u, false
	}
	less := r.Less()
	if len(less) == 0 || !SearchPattern.MatchString(u.Host+u.Path) {
		rewritesTotal.WithLabelValues("unchanged").Inc()
		return u, false
	}
	value := FilterValue(less)
	q := u.Query()
	if vals := q["lr"]; len(vals) == 1 && vals[0] == value {
		rewritesTotal.WithLabelValues("unchanged").Inc()
		return u, false
	}
	q.Set("lr", value)
	out := *u
	out.RawQuery = q.Encode()
	rewritesTotal.WithLabelValues("rewritten").Inc()
	return &out, true
}

// RewriteString parses raw and rewrites it.
func (r *Rules) RewriteString(raw string) (string, bool, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", false, err
	}
	out, ok := r.Rewrite(u)
	return out.String(), ok, nil
}

// Run syncs now, then on every interval tick and every change of the
// settings key, until ctx ends.
func (r *Rules) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	changed := make(chan struct{}, 1)
	cancel := r.store.Watch(func(cs []storage.Change) {
		for _, c := range cs {
			if c.Key == lang.PreferenceKey {
				select {
				case changed <- struct{}{}:
				default:
				}
				return
			}
		}
	})
	defer cancel()

	reload := func() {
		if _, err := r.Sync(ctx); err != nil {
			slog.Warn("Failed to sync search rewrite rule", "error", err)
		}
	}
	reload()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			reload()
		case <-changed:
			reload()
		}
	}
}
