package inventory

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// LockTable hands out one exclusive lock per variant id. Entries are
// ref-counted and dropped when nobody holds or waits on them.
type LockTable struct {
	mu    sync.Mutex
	locks map[int64]*lockEntry
}

type lockEntry struct {
	sem  chan struct{}
	refs int
}

func NewLockTable() *LockTable {
	return &LockTable{locks: make(map[int64]*lockEntry)}
}

// Lock blocks until id is free or ctx is done. The returned func releases
// the lock and must be called exactly once.
func (t *LockTable) Lock(ctx context.Context, id int64) (func(), error) {
	t.mu.Lock()
	e, ok := t.locks[id]
	if !ok {
		e = &lockEntry{sem: make(chan struct{}, 1)}
		t.locks[id] = e
	}
	e.refs++
	t.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-e.sem
				t.drop(id, e)
			})
		}, nil
	case <-ctx.Done():
		t.drop(id, e)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("variant %d: %w", id, ErrLockTimeout)
		}
		return nil, ctx.Err()
	}
}

func (t *LockTable) drop(id int64, e *lockEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(t.locks, id)
	}
}

// size is the number of live entries; used by tests.
func (t *LockTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}
