package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
)

// Memory is an in-process Store.
type Memory struct {
	mu   sync.RWMutex
	data map[string]json.RawMessage
	watchers
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]json.RawMessage)}
}

func (m *Memory) Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]json.RawMessage)
	if len(keys) == 0 {
		for k, v := range m.data {
			out[k] = append(json.RawMessage(nil), v...)
		}
		return out, nil
	}
	for _, k := range keys {
		if v, ok := m.data[k]; ok {
			out[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out, nil
}

func (m *Memory) Set(ctx context.Context, values map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	encoded, err := encodeAll(values)
	if err != nil {
		return err
	}

	m.mu.Lock()
	var changes []Change
	for k, v := range encoded {
		old := m.data[k]
		m.data[k] = v
		if !bytes.Equal(old, v) {
			changes = append(changes, Change{Key: k, Old: old, New: v})
		}
	}
	m.mu.Unlock()

	m.notify(changes)
	return nil
}

func (m *Memory) Remove(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	var changes []Change
	for _, k := range keys {
		if old, ok := m.data[k]; ok {
			delete(m.data, k)
			changes = append(changes, Change{Key: k, Old: old})
		}
	}
	m.mu.Unlock()

	m.notify(changes)
	return nil
}

func (m *Memory) Watch(fn func([]Change)) func() {
	return m.add(fn)
}
