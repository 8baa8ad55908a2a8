package notify

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mbd888/homeescrow/internal/pagination"
)

// MemoryStore is an in-memory inbox for development and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]*Notification
}

// NewMemoryStore creates an empty inbox store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]*Notification)}
}

func (m *MemoryStore) Create(ctx context.Context, n *Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.items[n.ID]; exists {
		return nil
	}
	m.items[n.ID] = copyNotification(n)
	return nil
}

func (m *MemoryStore) ListByRecipient(ctx context.Context, recipient string, unreadOnly bool, page pagination.Page) ([]*Notification, int, error) {
	m.mu.RLock()
	var all []*Notification
	for _, n := range m.items {
		if n.Recipient != recipient || (unreadOnly && n.Read) {
			continue
		}
		all = append(all, copyNotification(n))
	}
	m.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	return pagination.Slice(all, page), len(all), nil
}

func (m *MemoryStore) MarkRead(ctx context.Context, id, recipient string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.items[id]
	if !ok || n.Recipient != recipient {
		return ErrNotFound
	}
	if !n.Read {
		n.Read = true
		n.ReadAt = &at
	}
	return nil
}

func (m *MemoryStore) CountUnread(ctx context.Context, recipient string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, n := range m.items {
		if n.Recipient == recipient && !n.Read {
			count++
		}
	}
	return count, nil
}

func copyNotification(n *Notification) *Notification {
	cp := *n
	if n.Data != nil {
		cp.Data = make(map[string]any, len(n.Data))
		for k, v := range n.Data {
			cp.Data[k] = v
		}
	}
	if n.ReadAt != nil {
		t := *n.ReadAt
		cp.ReadAt = &t
	}
	return &cp
}

var _ Store = (*MemoryStore)(nil)
