package memory

import (
	"context"
	"sync"
	"time"

	"github.com/blockmart/marketd/internal/domain"
)

// LockManager is an in-process domain.LockManager built on a held-key set.
// It serializes settlement per listing within a single process; multi-node
// deployments use the redis implementation instead.
type LockManager struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLockManager creates an empty LockManager.
func NewLockManager() *LockManager {
	return &LockManager{held: make(map[string]struct{})}
}

// Acquire takes the lock for key or fails with domain.ErrLockHeld. The TTL is
// ignored: an in-process lock cannot outlive its holder. The returned unlock
// function is safe to call more than once.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if _, ok := lm.held[key]; ok {
		return nil, domain.ErrLockHeld
	}
	lm.held[key] = struct{}{}

	released := false
	unlock := func() {
		lm.mu.Lock()
		defer lm.mu.Unlock()
		if released {
			return
		}
		released = true
		delete(lm.held, key)
	}
	return unlock, nil
}

var _ domain.LockManager = (*LockManager)(nil)
