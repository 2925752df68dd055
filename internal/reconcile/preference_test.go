package reconcile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/lahidna/internal/lang"
	"github.com/MeKo-Tech/lahidna/internal/storage"
)

func TestLoadPreference_SeedsEmptyStore(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	seed := lang.Preference{MoreLanguages: []string{"uk"}, LessLanguages: []string{"ru"}, Speed: lang.SpeedFast}

	got, err := LoadPreference(ctx, store, seed)
	require.NoError(t, err)
	assert.Equal(t, seed.Normalized(), got)

	var stored lang.Preference
	found, err := storage.GetJSON(ctx, store, lang.PreferenceKey, &stored)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []string{"uk"}, stored.MoreLanguages)
}

func TestLoadPreference_StoredWins(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	require.NoError(t, storage.SetJSON(ctx, store, lang.PreferenceKey,
		lang.Preference{MoreLanguages: []string{"uk", "en"}, Speed: lang.SpeedSlow}))

	got, err := LoadPreference(ctx, store, lang.Preference{MoreLanguages: []string{"de"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"uk", "en"}, got.MoreLanguages)
	assert.Equal(t, lang.SpeedSlow, got.Speed)
}

func TestLoadPreference_UnconfiguredSeedIsNotWritten(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()

	got, err := LoadPreference(ctx, store, lang.Preference{})
	require.NoError(t, err)
	assert.False(t, got.Configured())
	assert.Equal(t, lang.DefaultSpeed, got.Speed)

	all, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestLoadPreference_Corrupt(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	require.NoError(t, store.Set(ctx, map[string]any{lang.PreferenceKey: "not an object"}))

	_, err := LoadPreference(ctx, store, lang.Preference{MoreLanguages: []string{"uk"}})
	assert.Error(t, err)
}
