// Package storage provides the key/value scopes the engine persists to:
// a synced scope for user settings and a local scope for caches, backoff
// timestamps and flags.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Well known keys of the local scope.
const (
	KeyLastPromptTimestamp = "lastPromptTimestamp"
	KeyUserID              = "userId"
	KeyFeatures            = "features"
	cachePrefix            = "cache:"
	expectedPrefix         = "achievementExpected:"
)

// CacheKey returns the local key holding the cached config of an adapter.
func CacheKey(adapter string) string { return cachePrefix + adapter }

// ExpectedAchievementKey returns the local key marking a pending achievement check.
func ExpectedAchievementKey(adapter string) string { return expectedPrefix + adapter }

// Change describes one key update. New is nil when the key was removed.
type Change struct {
	Key string
	Old json.RawMessage
	New json.RawMessage
}

// Store is a JSON key/value scope. Writes are last-write-wins.
type Store interface {
	// Get returns the stored values of keys; missing keys are absent from
	// the result. Without keys every entry is returned.
	Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error)
	// Set stores every value JSON encoded.
	Set(ctx context.Context, values map[string]any) error
	Remove(ctx context.Context, keys ...string) error
	// Watch registers fn for changes made through this store. The returned
	// function unregisters it.
	Watch(fn func([]Change)) (cancel func())
}

// Scopes groups the two storage areas.
type Scopes struct {
	Sync  Store
	Local Store
}

// NewMemoryScopes returns in-memory scopes.
func NewMemoryScopes() Scopes {
	return Scopes{Sync: NewMemory(), Local: NewMemory()}
}

// GetJSON decodes key into v. It reports false when the key is missing.
func GetJSON(ctx context.Context, s Store, key string, v any) (bool, error) {
	vals, err := s.Get(ctx, key)
	if err != nil {
		return false, err
	}
	raw, ok := vals[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON stores v under key.
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	return s.Set(ctx, map[string]any{key: v})
}

func encodeAll(values map[string]any) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(values))
	for k, v := range values {
		if raw, ok := v.(json.RawMessage); ok {
			out[k] = append(json.RawMessage(nil), raw...)
			continue
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", k, err)
		}
		out[k] = b
	}
	return out, nil
}

// watchers fans change notifications out to registered callbacks.
type watchers struct {
	mu   sync.Mutex
	next int
	fns  map[int]func([]Change)
}

func (w *watchers) add(fn func([]Change)) func() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fns == nil {
		w.fns = make(map[int]func([]Change))
	}
	id := w.next
	w.next++
	w.fns[id] = fn
	return func() {
		w.mu.Lock()
		delete(w.fns, id)
		w.mu.Unlock()
	}
}

func (w *watchers) notify(changes []Change) {
	if len(changes) == 0 {
		return
	}
	w.mu.Lock()
	fns := make([]func([]Change), 0, len(w.fns))
	for _, fn := range w.fns {
		fns = append(fns, fn)
	}
	w.mu.Unlock()
	for _, fn := range fns {
		fn(changes)
	}
}
