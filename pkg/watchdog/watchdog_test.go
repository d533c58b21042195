package watchdog

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testclock "k8s.io/utils/clock/testing"
)

type expiries struct {
	mu     sync.Mutex
	tokens []uint64
}

func (e *expiries) record(token uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tokens = append(e.tokens, token)
}

func (e *expiries) list() []uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]uint64(nil), e.tokens...)
}

func TestWatchdog_FiresAfterTimeout(t *testing.T) {
	clk := testclock.NewFakeClock(time.Now())
	var got expiries
	w := New(clk, DefaultTimeout, got.record)

	token := w.Arm()
	assert.True(t, w.Armed())

	clk.Step(DefaultTimeout - time.Millisecond)
	assert.Empty(t, got.list())

	clk.Step(time.Millisecond)
	require.Equal(t, []uint64{token}, got.list())

	assert.True(t, w.Expired(token))
	assert.False(t, w.Armed())
	assert.False(t, w.Expired(token), "an expiry is only accepted once")
}

func TestWatchdog_RearmPostponesDeadline(t *testing.T) {
	clk := testclock.NewFakeClock(time.Now())
	var got expiries
	w := New(clk, DefaultTimeout, got.record)

	first := w.Arm()
	clk.Step(20 * time.Second)
	second := w.Arm()
	assert.NotEqual(t, first, second)

	clk.Step(20 * time.Second)
	assert.Empty(t, got.list(), "re-arming must cancel the first deadline")

	clk.Step(10 * time.Second)
	assert.Equal(t, []uint64{second}, got.list())
	assert.False(t, w.Expired(first))
	assert.True(t, w.Expired(second))
}

func TestWatchdog_Stop(t *testing.T) {
	clk := testclock.NewFakeClock(time.Now())
	var got expiries
	w := New(clk, DefaultTimeout, got.record)

	w.Arm()
	w.Stop()
	w.Stop()
	assert.False(t, w.Armed())
	assert.False(t, clk.HasWaiters())

	clk.Step(time.Minute)
	assert.Empty(t, got.list())
}

func TestWatchdog_StaleTokenAfterStop(t *testing.T) {
	w := New(testclock.NewFakeClock(time.Now()), DefaultTimeout, func(uint64) {})

	token := w.Arm()
	w.Stop()
	assert.False(t, w.Expired(token))
}

func TestWatchdog_DefaultTimeout(t *testing.T) {
	w := New(testclock.NewFakeClock(time.Now()), 0, func(uint64) {})
	assert.Equal(t, 30*time.Second, w.Timeout())
}
