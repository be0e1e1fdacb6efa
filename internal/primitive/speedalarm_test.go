package primitive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSpeedAlarm(t *testing.T, maximum, period int) (*SpeedAlarm, *[]any, func(d time.Duration)) {
	t.Helper()
	clk := testClock()
	env, _ := testEnv(clk)
	s := newSpeedAlarm(env)
	require.NoError(t, s.Setup(Config{"MaximumSpeed": maximum, "Period": period}, nil))
	return s, capture(s.Source()), clk.Advance
}

func TestSpeedAlarm_SlowTrafficNeverFires(t *testing.T) {
	s, fired, advance := newTestSpeedAlarm(t, 3, 5)

	// 5 events 2s apart: any 5s window holds at most 3.
	for i := 0; i < 5; i++ {
		s.Target().Trigger(1, i)
		advance(2 * time.Second)
	}
	assert.Empty(t, *fired)
}

func TestSpeedAlarm_FastTrafficFiresOnceAndClears(t *testing.T) {
	s, fired, advance := newTestSpeedAlarm(t, 3, 5)

	// 1s apart: the 4th event puts 4 inside a 5s window.
	for i := 0; i < 5; i++ {
		s.Target().Trigger(1, i)
		advance(1 * time.Second)
	}
	require.Len(t, *fired, 1)
	assert.Equal(t, 3, (*fired)[0], "fires on the event that tips the window")
}

func TestSpeedAlarm_ZeroClearsWithoutFiring(t *testing.T) {
	s, fired, _ := newTestSpeedAlarm(t, 2, 5)

	s.Target().Trigger(1, nil)
	s.Target().Trigger(1, nil)
	s.Target().Trigger(0, nil)
	s.Target().Trigger(1, nil)
	assert.Empty(t, *fired)
}

func TestSpeedAlarm_WeightedInputs(t *testing.T) {
	s, fired, _ := newTestSpeedAlarm(t, 10, 5)

	s.Target().Trigger(6, "a")
	assert.Empty(t, *fired)
	s.Target().Trigger(6, "b")
	require.Len(t, *fired, 1)
	assert.Equal(t, "b", (*fired)[0])
}

func TestSpeedAlarm_DropsNegativeAndNonInteger(t *testing.T) {
	s, fired, _ := newTestSpeedAlarm(t, 1, 5)

	s.Target().Trigger(-5, nil)
	s.Target().Trigger("x", nil)
	assert.Empty(t, *fired)

	s.Target().Trigger(2, "boom")
	assert.Len(t, *fired, 1)
}

func TestSpeedAlarm_ConfigValidation(t *testing.T) {
	env, _ := testEnv(nil)
	s := newSpeedAlarm(env)
	assert.Error(t, s.Setup(Config{"Period": 5}, nil))
	assert.Error(t, s.Setup(Config{"MaximumSpeed": 3}, nil))
	assert.Error(t, s.Setup(Config{"MaximumSpeed": 0, "Period": 5}, nil))
}
