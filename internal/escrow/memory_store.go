package escrow

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mbd888/homeescrow/internal/pagination"
)

// MemoryStore is an in-memory transaction store for development and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	txns map[string]*Transaction
	// live maps a property id to the id of its live transaction.
	live map[string]string
}

// NewMemoryStore creates a new in-memory transaction store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		txns: make(map[string]*Transaction),
		live: make(map[string]string),
	}
}

func (m *MemoryStore) Create(ctx context.Context, tx *Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tx.Status.IsLive() {
		if _, taken := m.live[tx.PropertyID]; taken {
			return ErrDuplicateActiveEscrow
		}
		m.live[tx.PropertyID] = tx.ID
	}
	m.txns[tx.ID] = tx.Clone()
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tx, ok := m.txns[id]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	return tx.Clone(), nil
}

func (m *MemoryStore) ConditionalUpdate(ctx context.Context, id string, expected Status, p Patch) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.txns[id]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	if tx.Status != expected {
		return nil, ErrConflict
	}
	p.apply(tx)
	if !tx.Status.IsLive() && m.live[tx.PropertyID] == tx.ID {
		delete(m.live, tx.PropertyID)
	}
	return tx.Clone(), nil
}

func (m *MemoryStore) List(ctx context.Context, f ListFilter, page pagination.Page) ([]*Transaction, int, error) {
	m.mu.RLock()
	var matched []*Transaction
	for _, tx := range m.txns {
		if f.matches(tx) {
			matched = append(matched, tx.Clone())
		}
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})
	return pagination.Slice(matched, page), len(matched), nil
}

func (m *MemoryStore) CountByStatus(ctx context.Context, statuses ...Status) (map[Status]int, error) {
	if len(statuses) == 0 {
		statuses = AllStatuses
	}
	counts := make(map[Status]int, len(statuses))
	for _, s := range statuses {
		counts[s] = 0
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, tx := range m.txns {
		if _, ok := counts[tx.Status]; ok {
			counts[tx.Status]++
		}
	}
	return counts, nil
}

func (m *MemoryStore) MonthlyRollups(ctx context.Context) ([]MonthlyRollup, error) {
	m.mu.RLock()
	byMonth := make(map[string]*MonthlyRollup)
	for _, tx := range m.txns {
		key := tx.CreatedAt.UTC().Format(monthLayout)
		r, ok := byMonth[key]
		if !ok {
			r = &MonthlyRollup{Month: key, Volume: decimal.Zero, Fees: decimal.Zero}
			byMonth[key] = r
		}
		r.Count++
		r.Volume = r.Volume.Add(tx.Amount)
		r.Fees = r.Fees.Add(tx.Fees.TotalFees)
	}
	m.mu.RUnlock()

	out := make([]MonthlyRollup, 0, len(byMonth))
	for _, r := range byMonth {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out, nil
}

func (m *MemoryStore) DailyVolumes(ctx context.Context, from, to time.Time) ([]DailyVolume, error) {
	m.mu.RLock()
	byDay := make(map[string]*DailyVolume)
	for _, tx := range m.txns {
		if tx.CreatedAt.Before(from) || !tx.CreatedAt.Before(to) {
			continue
		}
		key := tx.CreatedAt.UTC().Format(dayLayout)
		d, ok := byDay[key]
		if !ok {
			d = &DailyVolume{Date: key, Volume: decimal.Zero}
			byDay[key] = d
		}
		d.Count++
		d.Volume = d.Volume.Add(tx.Amount)
	}
	m.mu.RUnlock()

	out := make([]DailyVolume, 0, len(byDay))
	for _, d := range byDay {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
