package ledger

import (
	"context"
	"sync"
	"time"
)

// lockTable hands out one lock per ledger name
type lockTable struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

var ledgerLocks = &lockTable{locks: make(map[string]chan struct{})}

func (t *lockTable) get(name string) chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch, ok := t.locks[name]
	if !ok {
		ch = make(chan struct{}, 1)
		t.locks[name] = ch
	}
	return ch
}

// acquire takes the lock for name, waiting at most timeout. The returned
// func releases it.
func (t *lockTable) acquire(ctx context.Context, name string, timeout time.Duration) (func(), error) {
	ch := t.get(name)
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-timer.C:
		return nil, ErrLedgerConcurrency
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
