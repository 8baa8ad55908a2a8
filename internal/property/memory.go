package property

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// MemoryLookup is an in-memory property source for development and tests.
type MemoryLookup struct {
	mu    sync.RWMutex
	props map[string]*Property
}

// NewMemoryLookup creates a lookup seeded with the given properties.
func NewMemoryLookup(props ...*Property) *MemoryLookup {
	m := &MemoryLookup{props: make(map[string]*Property, len(props))}
	for _, p := range props {
		m.Put(p)
	}
	return m
}

// LoadFile seeds a MemoryLookup from a JSON array of properties.
func LoadFile(path string) (*MemoryLookup, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied seed file
	if err != nil {
		return nil, fmt.Errorf("read properties file: %w", err)
	}
	var props []*Property
	if err := json.Unmarshal(data, &props); err != nil {
		return nil, fmt.Errorf("parse properties file: %w", err)
	}
	return NewMemoryLookup(props...), nil
}

// Put inserts or replaces a property.
func (m *MemoryLookup) Put(p *Property) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.props[p.ID] = &cp
}

func (m *MemoryLookup) GetPropertyByID(ctx context.Context, id string) (*Property, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.props[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// Len returns the number of seeded properties.
func (m *MemoryLookup) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.props)
}
