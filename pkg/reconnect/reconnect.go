// Package reconnect decides what a session does after its channel closes.
package reconnect

import (
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
)

// DefaultDelay is the fixed wait before a reconnection attempt.
const DefaultDelay = 3 * time.Second

// Decision is the outcome of a close.
type Decision struct {
	Reconnect bool
	Delay     time.Duration
}

// IsTerminal reports whether a close code ends the session for good:
// a normal closure (user stop) or going away (shutdown, liveness timeout).
func IsTerminal(code int) bool {
	return code == websocket.CloseNormalClosure || code == websocket.CloseGoingAway
}

// Policy maps close codes to decisions. It is not safe for concurrent use;
// the session controller owns it.
type Policy struct {
	backoff backoff.BackOff
}

// NewPolicy returns the default policy: retry after a constant DefaultDelay,
// forever, for every non-terminal code.
func NewPolicy() *Policy {
	return WithBackOff(backoff.NewConstantBackOff(DefaultDelay))
}

// WithBackOff returns a policy drawing its delays from b. A b that returns
// backoff.Stop ends retrying.
func WithBackOff(b backoff.BackOff) *Policy {
	return &Policy{backoff: b}
}

// Decide returns what to do after a close with the given code.
func (p *Policy) Decide(code int) Decision {
	if IsTerminal(code) {
		p.backoff.Reset()
		return Decision{}
	}

	delay := p.backoff.NextBackOff()
	if delay == backoff.Stop {
		return Decision{}
	}
	return Decision{Reconnect: true, Delay: delay}
}

// Reset restarts the backoff, e.g. after a connection reached streaming.
func (p *Policy) Reset() {
	p.backoff.Reset()
}
