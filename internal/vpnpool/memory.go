// ABOUTME: In-memory SetStore for the port pool
// ABOUTME: Mutex-guarded sets for tests and single-process deployments

package vpnpool

import (
	"context"
	"sync"
)

// MemSets implements SetStore with in-process maps. Every operation
// holds one mutex, so the atomicity contract of SetStore is met
// trivially. Suitable for tests and single-process deployments; use
// RedisSets when multiple processes share a pool.
type MemSets struct {
	mu      sync.Mutex
	sets    map[string]map[int]struct{}
	markers map[string]string
}

// NewMemSets creates an empty in-memory set store.
func NewMemSets() *MemSets {
	return &MemSets{
		sets:    make(map[string]map[int]struct{}),
		markers: make(map[string]string),
	}
}

func (m *MemSets) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.markers[key]; ok {
		return true, nil
	}
	s, ok := m.sets[key]
	return ok && len(s) > 0, nil
}

func (m *MemSets) SetNX(_ context.Context, key, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.markers[key]; ok {
		return false, nil
	}
	m.markers[key] = value
	return true, nil
}

func (m *MemSets) SAdd(_ context.Context, key string, members ...int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sets[key]
	if !ok {
		s = make(map[int]struct{})
		m.sets[key] = s
	}
	for _, member := range members {
		s[member] = struct{}{}
	}
	return nil
}

func (m *MemSets) SPop(_ context.Context, key string) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sets[key]
	for member := range s {
		delete(s, member)
		return member, true, nil
	}
	return 0, false, nil
}

func (m *MemSets) SCard(_ context.Context, key string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sets[key]), nil
}
