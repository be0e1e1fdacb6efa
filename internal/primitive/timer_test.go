package primitive

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelsec/kestrel/internal/signal"
)

// countingTarget is a thread-safe tick counter; timer ticks arrive on the
// timer goroutine.
type countingTarget struct {
	mu    sync.Mutex
	count int
}

func (c *countingTarget) target() *signal.Target {
	return signal.NewTarget(nil, func(_, _ any) {
		c.mu.Lock()
		c.count++
		c.mu.Unlock()
	})
}

func (c *countingTarget) value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

func TestTimerSource_StartsOnFirstTargetAndStopsWhenPaused(t *testing.T) {
	env, _ := testEnv(nil)
	timer := newTimerSource(env)
	require.NoError(t, timer.Setup(Config{"Frequency": "OneTenthSecond"}, nil))
	defer timer.Close()

	counter := &countingTarget{}
	target := counter.target()

	// Connecting the first target starts the timer.
	timer.Source().Connect(target, signal.Literal(1))
	time.Sleep(350 * time.Millisecond)
	ticked := counter.value()
	assert.GreaterOrEqual(t, ticked, 2, "expected ticks while running")

	// Pausing the only target stops it.
	timer.Source().Pause(target)
	time.Sleep(150 * time.Millisecond)
	settled := counter.value()
	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, settled, counter.value(), "no ticks after all targets paused")

	// Resuming restarts the timer.
	timer.Source().Resume(target)
	time.Sleep(250 * time.Millisecond)
	assert.Greater(t, counter.value(), settled)
}

func TestTimerSource_CloseStopsTimer(t *testing.T) {
	env, _ := testEnv(nil)
	timer := newTimerSource(env)
	require.NoError(t, timer.Setup(Config{"Frequency": "OneTenthSecond"}, nil))

	counter := &countingTarget{}
	timer.Source().Connect(counter.target(), signal.Literal(1))
	time.Sleep(150 * time.Millisecond)

	timer.Close()
	time.Sleep(120 * time.Millisecond)
	settled := counter.value()
	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, settled, counter.value())
}

func TestTimerSource_IsNonTargetable(t *testing.T) {
	env, _ := testEnv(nil)
	timer := newTimerSource(env)
	assert.Nil(t, timer.Target())
	var _ NonTargetable = timer
}

func TestTimerSource_ConfigValidation(t *testing.T) {
	env, _ := testEnv(nil)
	timer := newTimerSource(env)
	assert.Error(t, timer.Setup(Config{}, nil))
	assert.Error(t, timer.Setup(Config{"Frequency": "Hourly"}, nil))

	require.NoError(t, timer.Setup(Config{"Frequency": "Second"}, nil))
	assert.True(t, timer.SameConfig(Config{"Frequency": "Second"}, nil))
	assert.False(t, timer.SameConfig(Config{"Frequency": "Minute"}, nil))
}
