package concurrency

import (
	"sync"
	"time"

	"github.com/concordkv/concordkv/internal/errs"
	"github.com/concordkv/concordkv/internal/logging"
)

// DeadlockDetector is a coarse timeout-based detector: it does not build a
// wait-for graph, it simply declares a global deadlock once any registered
// waiter has been blocked longer than the deadline passed to Check (spec §5,
// "Cancellation / timeout"). Waiters carry no deadline of their own: one
// Check applies the same deadline to every registered waiter. Real callers get this for free by using
// RWMutex/StripedLock, whose Lock/RLock already return errs.Timeout; this
// type exists for subsystems (e.g. the compaction scheduler) that want a
// single place to observe and log when that happens across many locks.
type DeadlockDetector struct {
	mu      sync.Mutex
	waiters map[string]time.Time
	logger  *logging.Logger
}

// NewDeadlockDetector creates a detector that logs through logger.
func NewDeadlockDetector(logger *logging.Logger) *DeadlockDetector {
	if logger == nil {
		logger = logging.Discard()
	}
	return &DeadlockDetector{waiters: make(map[string]time.Time), logger: logger}
}

// Enter records that a goroutine has started waiting on a named lock.
func (d *DeadlockDetector) Enter(waiter string) {
	d.mu.Lock()
	d.waiters[waiter] = time.Now()
	d.mu.Unlock()
}

// Exit records that a goroutine stopped waiting (lock acquired or gave up).
func (d *DeadlockDetector) Exit(waiter string) {
	d.mu.Lock()
	delete(d.waiters, waiter)
	d.mu.Unlock()
}

// Check reports errs.Timeout if any registered waiter has exceeded deadline.
// It stops at the first offender it finds and logs only that one.
func (d *DeadlockDetector) Check(deadline time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	for waiter, since := range d.waiters {
		if now.Sub(since) > deadline {
			d.logger.Warn("possible deadlock", logging.String("waiter", waiter), logging.Duration("waited", now.Sub(since)))
			return errs.New(errs.Timeout, "DeadlockDetector.Check", waiter)
		}
	}
	return nil
}

// WaiterCount returns the number of goroutines currently registered as
// waiting; useful for tests and diagnostics.
func (d *DeadlockDetector) WaiterCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.waiters)
}
