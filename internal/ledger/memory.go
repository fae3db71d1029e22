package ledger

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
)

// MemoryStore is an in-process Store
type MemoryStore struct {
	name string

	mu        sync.Mutex
	entries   []LedgerEntry
	remaining decimal.Decimal
	version   int64

	// failAppend, when set, fails the next appends after the version check
	failAppend func() error
}

// NewMemoryStore creates a MemoryStore holding the initial budget
func NewMemoryStore(name string, budget decimal.Decimal) *MemoryStore {
	return &MemoryStore{name: name, remaining: budget}
}

func (m *MemoryStore) Name() string { return "memory:" + m.name }

func (m *MemoryStore) ReadState(ctx context.Context) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return State{Remaining: m.remaining, Version: m.version}, nil
}

func (m *MemoryStore) Append(ctx context.Context, entry LedgerEntry, expectedVersion int64) (LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.entries {
		if e.ID == entry.ID {
			return e, nil
		}
	}
	if m.version != expectedVersion {
		return LedgerEntry{}, ErrConflict
	}
	if m.failAppend != nil {
		if err := m.failAppend(); err != nil {
			return LedgerEntry{}, err
		}
	}
	if err := ctx.Err(); err != nil {
		return LedgerEntry{}, err
	}

	m.entries = append(m.entries, entry)
	m.remaining = entry.BudgetRemainingAfter
	m.version++
	return entry, nil
}

func (m *MemoryStore) Entries(ctx context.Context) ([]LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]LedgerEntry, len(m.entries))
	copy(out, m.entries)
	return out, nil
}
