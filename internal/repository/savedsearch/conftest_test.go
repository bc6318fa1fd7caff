package savedsearch

import (
	"context"

	"github.com/openfacet/facetd/internal/db"
)

// memStore implements the consumer interface in memory for tests.
type memStore struct {
	kv       map[string][]byte
	sets     map[string]map[string]struct{}
	counters map[string]int64

	getErr error
	setErr error
}

func newMemStore() *memStore {
	return &memStore{
		kv:       make(map[string][]byte),
		sets:     make(map[string]map[string]struct{}),
		counters: make(map[string]int64),
	}
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	data, ok := m.kv[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return data, nil
}

func (m *memStore) Set(_ context.Context, key string, value []byte) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.kv[key] = value
	return nil
}

func (m *memStore) Del(_ context.Context, key string) error {
	delete(m.kv, key)
	return nil
}

func (m *memStore) Incr(_ context.Context, key string) (int64, error) {
	m.counters[key]++
	return m.counters[key], nil
}

func (m *memStore) SAdd(_ context.Context, key string, members ...string) error {
	set, ok := m.sets[key]
	if !ok {
		set = make(map[string]struct{})
		m.sets[key] = set
	}
	for _, member := range members {
		set[member] = struct{}{}
	}
	return nil
}

func (m *memStore) SRem(_ context.Context, key string, members ...string) error {
	for _, member := range members {
		delete(m.sets[key], member)
	}
	return nil
}

func (m *memStore) SMembers(_ context.Context, key string) ([]string, error) {
	var out []string
	for member := range m.sets[key] {
		out = append(out, member)
	}
	return out, nil
}
