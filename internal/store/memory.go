package store

import (
	"context"
	"fmt"
	"maps"
	"sync"
)

// Memory is an in-memory Store, used by tests and by a single-node
// deployment that doesn't need durability across restarts.
type Memory struct {
	mu   sync.Mutex
	data map[string][]Doc // collection -> documents
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: map[string][]Doc{}}
}

func (m *Memory) Insert(_ context.Context, collection string, doc Doc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[collection] = append(m.data[collection], cloneDoc(doc))
	return nil
}

func (m *Memory) UpdateOne(_ context.Context, collection string, selector, payload Doc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	docs := m.data[collection]
	for i, d := range docs {
		if matches(d, selector) {
			docs[i] = mergeDoc(d, payload)
			return nil
		}
	}
	return fmt.Errorf("store: no document in %q matches selector %v", collection, selector)
}

func (m *Memory) UpdateMany(_ context.Context, collection string, selector, payload Doc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	docs := m.data[collection]
	for i, d := range docs {
		if matches(d, selector) {
			docs[i] = mergeDoc(d, payload)
		}
	}
	return nil
}

func (m *Memory) DeleteOne(_ context.Context, collection string, selector Doc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	docs := m.data[collection]
	for i, d := range docs {
		if matches(d, selector) {
			m.data[collection] = append(docs[:i:i], docs[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *Memory) DeleteMany(_ context.Context, collection string, selector Doc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	docs := m.data[collection]
	kept := docs[:0]
	for _, d := range docs {
		if !matches(d, selector) {
			kept = append(kept, d)
		}
	}
	m.data[collection] = kept
	return nil
}

func (m *Memory) FindOne(_ context.Context, collection string, selector Doc) (Doc, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.data[collection] {
		if matches(d, selector) {
			return cloneDoc(d), true, nil
		}
	}
	return nil, false, nil
}

func (m *Memory) FindMany(_ context.Context, collection string, selector Doc) ([]Doc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Doc
	for _, d := range m.data[collection] {
		if matches(d, selector) {
			out = append(out, cloneDoc(d))
		}
	}
	return out, nil
}

func cloneDoc(d Doc) Doc {
	out := make(Doc, len(d))
	maps.Copy(out, d)
	return out
}

func mergeDoc(base, payload Doc) Doc {
	out := cloneDoc(base)
	maps.Copy(out, payload)
	return out
}
