// Package watchdog implements the liveness deadline of a streaming session.
package watchdog

import (
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// DefaultTimeout is how long a session may go without hearing from the
// service.
const DefaultTimeout = 30 * time.Second

// Watchdog is a single re-armable deadline. Every Arm cancels the previous
// deadline and issues a new token; an expiry is only genuine when Expired
// confirms its token is still current.
type Watchdog struct {
	clock    clock.WithDelayedExecution
	timeout  time.Duration
	onExpire func(token uint64)

	mu    sync.Mutex
	timer clock.Timer
	token uint64
}

// New creates a stopped watchdog. onExpire is called from the clock's timer
// goroutine and must not block or call back into the watchdog.
func New(clk clock.WithDelayedExecution, timeout time.Duration, onExpire func(token uint64)) *Watchdog {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Watchdog{
		clock:    clk,
		timeout:  timeout,
		onExpire: onExpire,
	}
}

// Arm starts the deadline, replacing any pending one, and returns its token.
func (w *Watchdog) Arm() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.token++
	token := w.token
	w.timer = w.clock.AfterFunc(w.timeout, func() {
		w.onExpire(token)
	})
	return token
}

// Stop cancels the pending deadline, if any. Expiries already in flight are
// invalidated.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.token++
}

// Armed reports whether a deadline is pending.
func (w *Watchdog) Armed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.timer != nil
}

// Expired reports whether token belongs to the pending deadline, and if so
// marks the watchdog as no longer armed.
func (w *Watchdog) Expired(token uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer == nil || token != w.token {
		return false
	}
	w.timer = nil
	return true
}

// Timeout returns the configured deadline.
func (w *Watchdog) Timeout() time.Duration {
	return w.timeout
}
