// Package features reads the remotely published feature-flag map.
package features

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/MeKo-Tech/lahidna/internal/storage"
)

// Global flags. Adapter flags are named by HandlerFlag.
const (
	Content             = "CONTENT"
	GoogleSearchRewrite = "GOOGLE_SEARCH_REWRITE"
)

// HandlerFlag returns the flag guarding one site adapter.
func HandlerFlag(adapter string) string { return "handler_" + adapter }

// cached is the local storage record of the last fetch.
type cached struct {
	Flags     map[string]bool `json:"flags"`
	FetchedAt int64           `json:"fetchedAt"`
}

// Flags answers flag lookups from the last fetched map.
//
// A flag missing from the map is enabled only when it is registered as
// legacy; anything else that was never published stays off.
type Flags struct {
	url    string
	ttl    time.Duration
	client *http.Client
	local  storage.Store
	now    func() time.Time

	mu     sync.RWMutex
	values map[string]bool
	legacy map[string]bool
}

// New returns Flags fetching from url and caching in local for ttl.
// legacy names the flags that default to enabled.
func New(url string, ttl time.Duration, local storage.Store, legacy ...string) *Flags {
	f := &Flags{
		url:    url,
		ttl:    ttl,
		client: &http.Client{Timeout: 10 * time.Second},
		local:  local,
		now:    time.Now,
		values: map[string]bool{},
		legacy: map[string]bool{Content: true, GoogleSearchRewrite: true},
	}
	for _, l := range legacy {
		f.legacy[l] = true
	}
	return f
}

// Static returns Flags with fixed values and no remote source.
func Static(values map[string]bool, legacy ...string) *Flags {
	f := New("", 0, nil, legacy...)
	for k, v := range values {
		f.values[k] = v
	}
	return f
}

// SetHTTPClient replaces the client used by Refresh.
func (f *Flags) SetHTTPClient(c *http.Client) { f.client = c }

// SetClock replaces the time source.
func (f *Flags) SetClock(now func() time.Time) { f.now = now }

// Enabled reports whether name is on.
func (f *Flags) Enabled(name string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if v, ok := f.values[name]; ok {
		return v
	}
	return f.legacy[name]
}

// Refresh loads the map from local storage, fetching it again when the cached
// copy is older than the ttl. A failed fetch keeps the previous values.
func (f *Flags) Refresh(ctx context.Context) error {
	var c cached
	if f.local != nil {
		if _, err := storage.GetJSON(ctx, f.local, storage.KeyFeatures, &c); err != nil {
			slog.Debug("Ignoring unreadable feature cache", "error", err)
		}
		if c.Flags != nil {
			f.set(c.Flags)
		}
	}
	if f.url == "" {
		return nil
	}
	if c.Flags != nil && f.now().Sub(time.UnixMilli(c.FetchedAt)) < f.ttl {
		return nil
	}

	fetched, err := f.fetch(ctx)
	if err != nil {
		return err
	}
	f.set(fetched)
	if f.local != nil {
		return storage.SetJSON(ctx, f.local, storage.KeyFeatures, cached{Flags: fetched, FetchedAt: f.now().UnixMilli()})
	}
	return nil
}

func (f *Flags) fetch(ctx context.Context) (map[string]bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feature flags: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch feature flags: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	var m map[string]bool
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("decode feature flags: %w", err)
	}
	return m, nil
}

func (f *Flags) set(m map[string]bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values = make(map[string]bool, len(m))
	for k, v := range m {
		f.values[k] = v
	}
}
