package worker

import (
	"context"
	"sync"
)

// AccountLocks is the in-process exclusion shared by the Consumer and the
// Scheduler. A holder owns every account id it locked until it unlocks
// them. Ids are taken all at once or not at all.
type AccountLocks struct {
	mu      sync.Mutex
	held    map[int64]struct{}
	changed chan struct{}
}

func NewAccountLocks() *AccountLocks {
	return &AccountLocks{
		held:    make(map[int64]struct{}),
		changed: make(chan struct{}),
	}
}

// TryLock takes ids when none of them is held and reports whether it did.
func (l *AccountLocks) TryLock(ids []int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tryLocked(ids)
}

// Lock waits until every id is free and takes them, or returns ctx.Err().
func (l *AccountLocks) Lock(ctx context.Context, ids []int64) error {
	for {
		l.mu.Lock()
		if l.tryLocked(ids) {
			l.mu.Unlock()
			return nil
		}
		changed := l.changed
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

func (l *AccountLocks) Unlock(ids []int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, id := range ids {
		delete(l.held, id)
	}
	close(l.changed)
	l.changed = make(chan struct{})
}

// Changed is closed by the next Unlock.
func (l *AccountLocks) Changed() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.changed
}

func (l *AccountLocks) tryLocked(ids []int64) bool {
	for _, id := range ids {
		if _, ok := l.held[id]; ok {
			return false
		}
	}
	for _, id := range ids {
		l.held[id] = struct{}{}
	}
	return true
}
