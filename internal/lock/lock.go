package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrNotAcquired = errors.New("lock not acquired")

// Locker guards a critical section per key. Implementations wait for a held
// key to be released until their wait budget or ctx runs out.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

type keyLock struct {
	sem  chan struct{}
	refs int
}

// Local serializes callers inside a single process.
type Local struct {
	mu   sync.Mutex
	keys map[string]*keyLock
	wait time.Duration
}

// NewLocal returns an in-process Locker. A zero wait means callers block
// until ctx is done.
func NewLocal(wait time.Duration) *Local {
	return &Local{
		keys: make(map[string]*keyLock),
		wait: wait,
	}
}

func (l *Local) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	kl := l.ref(key)
	defer l.unref(key, kl)

	acquireCtx := ctx
	if l.wait > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	select {
	case kl.sem <- struct{}{}:
	case <-acquireCtx.Done():
		return fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, acquireCtx.Err())
	}
	defer func() { <-kl.sem }()

	return fn(ctx)
}

func (l *Local) ref(key string) *keyLock {
	l.mu.Lock()
	defer l.mu.Unlock()

	kl, ok := l.keys[key]
	if !ok {
		kl = &keyLock{sem: make(chan struct{}, 1)}
		l.keys[key] = kl
	}
	kl.refs++
	return kl
}

func (l *Local) unref(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	kl.refs--
	if kl.refs == 0 {
		delete(l.keys, key)
	}
}
