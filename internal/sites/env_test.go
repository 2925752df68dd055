package sites

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/lahidna/internal/testutil"
)

func TestAll(t *testing.T) {
	var ran atomic.Int32
	boom := errors.New("boom")

	err := All(bg,
		func(context.Context) error { ran.Add(1); return nil },
		func(context.Context) error { ran.Add(1); return boom },
		func(context.Context) error { ran.Add(1); panic("kaput") },
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "panic: kaput")
	assert.Equal(t, int32(3), ran.Load(), "a failure does not stop the others")

	assert.NoError(t, All(bg))
}

func TestDefault_Requests(t *testing.T) {
	doc := testutil.BlankPage(t, "https://example.com/path?q=1", "en-GB")
	f := newFixture(t, doc, pref([]string{"uk"}, nil))
	f.web.Respond("https://example.com/ok", http.StatusOK, "fine")
	f.web.Respond("https://example.com/gone", http.StatusGone, "")
	d := Default{Env: f.env, Name: "example", Supported: []string{"uk"}}

	assert.Equal(t, "https://example.com", d.Origin())
	assert.Equal(t, "en", d.UILanguage())

	body, err := d.Get(bg, "read", "https://example.com/ok")
	require.NoError(t, err)
	assert.Equal(t, "fine", body)

	_, err = d.Get(bg, "read gone", "https://example.com/gone")
	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, "example: read gone: unexpected status 410", err.Error())

	require.Error(t, d.Post(bg, "write", "https://example.com/gone", nil, "x=1"))
	require.NoError(t, d.RelayPost(bg, "write", "https://example.com/ok", nil, "x=1"), "without a relay the page posts itself")
}

func TestDefault_RelayPost(t *testing.T) {
	doc := testutil.BlankPage(t, "https://www.facebook.com/", "en")
	f := newFixture(t, doc, pref([]string{"uk"}, nil)).withRelay()
	f.web.Respond("POST https://www.facebook.com/ajax/x", http.StatusOK, "")
	d := Default{Env: f.env, Name: "facebook"}

	require.NoError(t, d.RelayPost(bg, "write", "https://www.facebook.com/ajax/x", map[string]string{"X-Test": "1"}, "a=b"))
	got := posts(f.web, "/ajax/x")
	require.Len(t, got, 1)
	assert.Equal(t, "a=b", got[0].Body)
	assert.Equal(t, "1", got[0].Header.Get("X-Test"))

	err := d.RelayPost(bg, "write", "https://www.facebook.com/ajax/missing", nil, "")
	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, http.StatusNotFound, netErr.Status)
}

func TestDefault_UITarget(t *testing.T) {
	doc := testutil.BlankPage(t, "https://example.com/", "en")
	f := newFixture(t, doc, pref([]string{"de", "uk", "en"}, nil))
	d := Default{Env: f.env, Supported: []string{"uk", "en"}}

	target, err := d.UITarget("ru")
	require.NoError(t, err)
	assert.Equal(t, []string{"uk", "en"}, target)

	_, err = d.UITarget("uk")
	mustSkip(t, err)
}

func TestErrors(t *testing.T) {
	assert.True(t, IsSkip(ErrNotAuthenticated))
	assert.False(t, IsSkip(&ParseError{Adapter: "x", What: "y"}))

	inner := errors.New("eof")
	err := &ParseError{Adapter: "linkedin", Version: 2, What: "page", Err: inner}
	assert.Equal(t, "linkedin (parser v2): cannot parse page: eof", err.Error())
	assert.ErrorIs(t, err, inner)

	netErr := &NetworkError{Adapter: "facebook", Op: "read", Err: inner}
	assert.Equal(t, "facebook: read: eof", netErr.Error())
	assert.ErrorIs(t, netErr, inner)
}

func TestReconcileAppending(t *testing.T) {
	next, changed := reconcileAppending([]string{"de", "ru"}, pref([]string{"uk", "en"}, []string{"ru"}), []string{"uk", "en"})
	assert.True(t, changed)
	assert.Equal(t, []string{"de", "uk", "en"}, next)

	next, changed = reconcileAppending([]string{"en", "uk"}, pref([]string{"uk"}, nil), []string{"uk"})
	assert.False(t, changed)
	assert.Equal(t, []string{"en", "uk"}, next)
}
