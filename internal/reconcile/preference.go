package reconcile

import (
	"context"
	"fmt"

	"github.com/MeKo-Tech/lahidna/internal/lang"
	"github.com/MeKo-Tech/lahidna/internal/storage"
)

// LoadPreference reads the user's preference from the synced scope. When
// none is stored and seed is configured, seed is written and returned.
func LoadPreference(ctx context.Context, sync storage.Store, seed lang.Preference) (lang.Preference, error) {
	raw, err := sync.Get(ctx, lang.PreferenceKey)
	if err != nil {
		return lang.Preference{}, fmt.Errorf("read %s: %w", lang.PreferenceKey, err)
	}
	if data, ok := raw[lang.PreferenceKey]; ok {
		return lang.DecodePreference(data)
	}
	seed = seed.Normalized()
	if !seed.Configured() {
		return seed, nil
	}
	if err := storage.SetJSON(ctx, sync, lang.PreferenceKey, seed); err != nil {
		return seed, fmt.Errorf("seed %s: %w", lang.PreferenceKey, err)
	}
	return seed, nil
}
