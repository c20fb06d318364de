// Package lock provides entity lockers: an in-process keyed lock for single
// replica deployments and a Redis lock for several replicas sharing a store.
package lock

import (
	"context"
	"sync"
	"time"

	"github.com/garyjia/workflow-engine/internal/application/port"
)

type keyLock struct {
	sem  chan struct{}
	refs int
}

// Local is an in-process keyed lock. Waiters honour context cancellation.
// TTLs are ignored because holders cannot outlive the process.
type Local struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

// NewLocal creates an in-process locker
func NewLocal() *Local {
	return &Local{locks: make(map[string]*keyLock)}
}

// Lock blocks until key is free or ctx is done
func (l *Local) Lock(ctx context.Context, key string, ttl time.Duration) (port.UnlockFunc, error) {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{sem: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(key, kl)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			<-kl.sem
			l.release(key, kl)
		})
		return nil
	}, nil
}

func (l *Local) release(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

// Held returns the number of keys currently locked or waited on
func (l *Local) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
