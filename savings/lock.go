package savings

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/warp/savings-engine/generic"
)

// Locker serializes mutations of one goal. Different goals never contend.
type Locker interface {
	// Lock blocks until the goal's lock is held or ctx is done. The returned
	// func releases it and is safe to call more than once.
	Lock(ctx context.Context, id generic.GoalID) (unlock func(), err error)
}

// KeyedLocker is an in-process Locker with one lock per goal id.
// Entries are dropped when the last waiter leaves, so the table only holds
// goals that are in use.
type KeyedLocker struct {
	// WaitTimeout bounds a single Lock call. Zero means only ctx bounds it.
	WaitTimeout time.Duration

	mu    sync.Mutex
	locks map[generic.GoalID]*keyedEntry
}

type keyedEntry struct {
	ch   chan struct{}
	refs int
}

func NewKeyedLocker(waitTimeout time.Duration) *KeyedLocker {
	return &KeyedLocker{
		WaitTimeout: waitTimeout,
		locks:       make(map[generic.GoalID]*keyedEntry),
	}
}

func (l *KeyedLocker) Lock(ctx context.Context, id generic.GoalID) (func(), error) {
	if l.WaitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.WaitTimeout)
		defer cancel()
	}

	e := l.acquire(id)
	select {
	case e.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-e.ch
				l.release(id, e)
			})
		}, nil
	case <-ctx.Done():
		l.release(id, e)
		return nil, fmt.Errorf("%w: goal %s: %w", generic.ErrLockTimeout, id, ctx.Err())
	}
}

func (l *KeyedLocker) acquire(id generic.GoalID) *keyedEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locks == nil {
		l.locks = make(map[generic.GoalID]*keyedEntry)
	}
	e, ok := l.locks[id]
	if !ok {
		e = &keyedEntry{ch: make(chan struct{}, 1)}
		l.locks[id] = e
	}
	e.refs++
	return e
}

func (l *KeyedLocker) release(id generic.GoalID, e *keyedEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, id)
	}
}

// held returns the number of goals with a holder or waiter.
func (l *KeyedLocker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
