package reconnect

import (
	"testing"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
)

func TestDecide_TerminalCodes(t *testing.T) {
	p := NewPolicy()
	for _, code := range []int{1000, 1001} {
		d := p.Decide(code)
		assert.False(t, d.Reconnect, "code %d", code)
		assert.Zero(t, d.Delay, "code %d", code)
	}
}

func TestDecide_RetryableCodes(t *testing.T) {
	p := NewPolicy()
	for _, code := range []int{1002, 1006, 1011, 1012, 4000} {
		d := p.Decide(code)
		assert.True(t, d.Reconnect, "code %d", code)
		assert.Equal(t, DefaultDelay, d.Delay, "code %d", code)
	}
}

func TestDecide_DelayDoesNotGrow(t *testing.T) {
	p := NewPolicy()
	for i := 0; i < 10; i++ {
		assert.Equal(t, DefaultDelay, p.Decide(1006).Delay)
	}
}

func TestDecide_StopBackOff(t *testing.T) {
	p := WithBackOff(&backoff.StopBackOff{})
	assert.False(t, p.Decide(1006).Reconnect)
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(1000))
	assert.True(t, IsTerminal(1001))
	assert.False(t, IsTerminal(1006))
}
