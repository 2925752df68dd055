package features

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/lahidna/internal/storage"
)

func TestFlags_Defaults(t *testing.T) {
	f := Static(nil, HandlerFlag("facebook"))

	assert.True(t, f.Enabled(Content))
	assert.True(t, f.Enabled(GoogleSearchRewrite))
	assert.True(t, f.Enabled(HandlerFlag("facebook")))
	assert.False(t, f.Enabled(HandlerFlag("unknown")))
	assert.False(t, f.Enabled("NEW_EXPERIMENT"))
}

func TestFlags_ExplicitValueWins(t *testing.T) {
	f := Static(map[string]bool{Content: false, "NEW_EXPERIMENT": true})

	assert.False(t, f.Enabled(Content))
	assert.True(t, f.Enabled("NEW_EXPERIMENT"))
}

func TestFlags_RefreshFetchesAndCaches(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"handler_linkedin": false, "DDG_FILTER": true}`))
	}))
	defer srv.Close()

	ctx := context.Background()
	local := storage.NewMemory()
	now := time.UnixMilli(1_700_000_000_000)

	f := New(srv.URL, time.Hour, local, HandlerFlag("linkedin"))
	f.SetClock(func() time.Time { return now })
	require.NoError(t, f.Refresh(ctx))

	assert.False(t, f.Enabled(HandlerFlag("linkedin")))
	assert.True(t, f.Enabled("DDG_FILTER"))
	assert.EqualValues(t, 1, hits.Load())

	// Fresh cache: no second fetch, values come from storage.
	g := New(srv.URL, time.Hour, local)
	g.SetClock(func() time.Time { return now.Add(30 * time.Minute) })
	require.NoError(t, g.Refresh(ctx))
	assert.True(t, g.Enabled("DDG_FILTER"))
	assert.EqualValues(t, 1, hits.Load())

	// Stale cache triggers a fetch.
	g.SetClock(func() time.Time { return now.Add(2 * time.Hour) })
	require.NoError(t, g.Refresh(ctx))
	assert.EqualValues(t, 2, hits.Load())
}

func TestFlags_RefreshFailureKeepsValues(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx := context.Background()
	local := storage.NewMemory()
	require.NoError(t, storage.SetJSON(ctx, local, storage.KeyFeatures, cached{
		Flags:     map[string]bool{Content: false},
		FetchedAt: 0,
	}))

	f := New(srv.URL, time.Minute, local)
	err := f.Refresh(ctx)
	require.Error(t, err)
	assert.False(t, f.Enabled(Content))
}
