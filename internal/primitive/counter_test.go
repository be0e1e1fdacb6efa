package primitive

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelsec/kestrel/internal/signal"
)

func TestBasicCounter_AddSubtractReset(t *testing.T) {
	env, _ := testEnv(nil)
	c := newBasicCounter(env)
	require.NoError(t, c.Setup(Config{}, nil))

	c.Target().Trigger(1, nil)
	c.Target().Trigger(1, nil)
	c.Target().Trigger(-1, nil)
	assert.Equal(t, int64(1), c.Check(nil))

	c.Target().Trigger(0, nil)
	assert.Equal(t, int64(0), c.Check(nil))
}

func TestBasicCounter_IgnoresNonInteger(t *testing.T) {
	env, _ := testEnv(nil)
	c := newBasicCounter(env)
	require.NoError(t, c.Setup(Config{}, nil))

	c.Target().Trigger("nope", nil)
	assert.Equal(t, int64(0), c.Check(nil))
}

func TestBasicCounter_RejectsConfig(t *testing.T) {
	env, _ := testEnv(nil)
	c := newBasicCounter(env)
	assert.Error(t, c.Setup(Config{"StartFrom": 3}, nil))
}

func TestBasicCounter_ConcurrentIncrements(t *testing.T) {
	env, _ := testEnv(nil)
	c := newBasicCounter(env)
	require.NoError(t, c.Setup(Config{}, nil))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				c.Target().Trigger(1, nil)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(8000), c.Check(nil))
}

func TestCountdownCounter_FiresOncePerCycleAndPausesUpstream(t *testing.T) {
	env, _ := testEnv(nil)
	c := newCountdownCounter(env)
	require.NoError(t, c.Setup(Config{"StartFrom": 3}, nil))
	fired := capture(c.Source())

	c.Target().Trigger(1, "a")
	c.Target().Trigger(1, "b")
	assert.Empty(t, *fired)

	c.Target().Trigger(1, "c")
	require.Len(t, *fired, 1)
	assert.Equal(t, "c", (*fired)[0])

	// Clamped at zero; no second fire.
	c.Target().Trigger(1, "d")
	assert.Len(t, *fired, 1)
}

func TestCountdownCounter_PauseResumeThroughFeedingSource(t *testing.T) {
	env, _ := testEnv(nil)
	c := newCountdownCounter(env)
	require.NoError(t, c.Setup(Config{"StartFrom": 2}, nil))
	fired := capture(c.Source())

	up := feed(c, signal.Literal(1))

	up.Trigger("a")
	up.Trigger("b")
	require.Len(t, *fired, 1)

	// The countdown paused its inbound edge after firing; further
	// upstream triggers never reach it.
	up.Trigger("c")
	up.Trigger("d")
	assert.Len(t, *fired, 1)

	// Reset resumes the edge and a fresh cycle runs.
	c.Target().Trigger(0, nil)
	up.Trigger("e")
	up.Trigger("f")
	assert.Len(t, *fired, 2)
}

func TestCountdownCounter_ResetRestartsCycle(t *testing.T) {
	env, _ := testEnv(nil)
	c := newCountdownCounter(env)
	require.NoError(t, c.Setup(Config{"StartFrom": 2}, nil))
	fired := capture(c.Source())

	c.Target().Trigger(1, nil)
	c.Target().Trigger(1, nil)
	require.Len(t, *fired, 1)

	// Reset rearms and a new cycle can fire again.
	c.Target().Trigger(0, nil)
	c.Target().Trigger(1, nil)
	c.Target().Trigger(1, nil)
	assert.Len(t, *fired, 2)
}

func TestCountdownCounter_ConfigValidation(t *testing.T) {
	env, _ := testEnv(nil)
	c := newCountdownCounter(env)
	assert.Error(t, c.Setup(Config{}, nil))
	assert.Error(t, c.Setup(Config{"StartFrom": 0}, nil))
	assert.Error(t, c.Setup(Config{"StartFrom": "ten"}, nil))
}

func TestCountdownCounter_SameConfig(t *testing.T) {
	env, _ := testEnv(nil)
	c := newCountdownCounter(env)
	require.NoError(t, c.Setup(Config{"StartFrom": 10}, nil))

	assert.True(t, c.SameConfig(Config{"StartFrom": 10}, nil))
	assert.False(t, c.SameConfig(Config{"StartFrom": 9}, nil))
}

func TestRepeatCounter_FiresAndRearms(t *testing.T) {
	env, _ := testEnv(nil)
	c := newRepeatCounter(env)
	require.NoError(t, c.Setup(Config{"RestartAt": 2}, nil))
	fired := capture(c.Source())

	c.Target().Trigger(1, "a")
	c.Target().Trigger(1, "b")
	c.Target().Trigger(1, "c")
	c.Target().Trigger(1, "d")

	require.Len(t, *fired, 2)
	assert.Equal(t, "b", (*fired)[0])
	assert.Equal(t, "d", (*fired)[1])
}

func TestRepeatCounter_ZeroResetsWithoutFiring(t *testing.T) {
	env, _ := testEnv(nil)
	c := newRepeatCounter(env)
	require.NoError(t, c.Setup(Config{"RestartAt": 2}, nil))
	fired := capture(c.Source())

	c.Target().Trigger(1, nil)
	c.Target().Trigger(0, nil) // reset, no fire
	c.Target().Trigger(1, nil)
	assert.Empty(t, *fired)

	c.Target().Trigger(1, nil)
	assert.Len(t, *fired, 1)
}
