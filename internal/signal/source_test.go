package signal

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type received struct {
	param   any
	context any
}

// recorder collects triggers for assertions.
func recorder() (*Target, *[]received) {
	var got []received
	t := NewTarget(nil, func(param, context any) {
		got = append(got, received{param, context})
	})
	return t, &got
}

func TestSource_TriggerInInsertionOrder(t *testing.T) {
	s := NewSource(nil, "test", slog.Default())

	var order []string
	a := NewTarget(nil, func(_, _ any) { order = append(order, "a") })
	b := NewTarget(nil, func(_, _ any) { order = append(order, "b") })
	s.Connect(a, Literal(nil))
	s.Connect(b, Literal(nil))

	s.Trigger("ctx")
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestSource_ParameterEvaluatedPerEdge(t *testing.T) {
	s := NewSource(nil, "test", slog.Default())
	target, got := recorder()

	s.Connect(target, Literal(7))
	s.Trigger("ctx")

	require.Len(t, *got, 1)
	assert.Equal(t, 7, (*got)[0].param)
	assert.Equal(t, "ctx", (*got)[0].context)
}

func TestSource_MacroErrorSkipsOnlyThatEdge(t *testing.T) {
	s := NewSource(nil, "test", slog.Default())

	bad, badGot := recorder()
	good, goodGot := recorder()

	// A collection macro against a non-list context fails at eval time.
	failing := &macroExpr{src: "Contexts[0]", rootList: true, propID: -1, path: []int{0}}
	s.Connect(bad, failing)
	s.Connect(good, Literal(1))

	s.Trigger("not a list")

	assert.Empty(t, *badGot)
	require.Len(t, *goodGot, 1)
}

func TestSource_PauseSuppressesEdge(t *testing.T) {
	s := NewSource(nil, "test", slog.Default())
	a, aGot := recorder()
	b, bGot := recorder()
	s.Connect(a, Literal(nil))
	s.Connect(b, Literal(nil))

	s.Pause(a)
	s.Trigger("ctx")
	assert.Empty(t, *aGot)
	assert.Len(t, *bGot, 1)

	s.Resume(a)
	s.Trigger("ctx")
	assert.Len(t, *aGot, 1)
	assert.Len(t, *bGot, 2)
}

func TestSource_ActivationLifecycle(t *testing.T) {
	s := NewSource(nil, "test", slog.Default())

	var events []string
	s.OnActivation(
		func() { events = append(events, "active") },
		func() { events = append(events, "idle") },
	)

	a, _ := recorder()
	b, _ := recorder()

	s.Connect(a, Literal(nil)) // 0 -> 1 active
	s.Connect(b, Literal(nil)) // no transition
	assert.Equal(t, []string{"active"}, events)

	s.Pause(a) // still one active
	assert.Equal(t, []string{"active"}, events)

	s.Pause(b) // all paused
	assert.Equal(t, []string{"active", "idle"}, events)

	s.Resume(b) // any active again
	assert.Equal(t, []string{"active", "idle", "active"}, events)
}

func TestSource_DisconnectRemovesBackLink(t *testing.T) {
	s := NewSource(nil, "test", slog.Default())
	a, _ := recorder()

	s.Connect(a, Literal(nil))
	require.Len(t, a.Sources(), 1)
	require.Equal(t, 1, s.TargetCount())

	removed := s.Disconnect(a)
	assert.Equal(t, 1, removed)
	assert.Empty(t, a.Sources())
	assert.Zero(t, s.TargetCount())
}

func TestSource_DisconnectToEmptyRaisesIdle(t *testing.T) {
	s := NewSource(nil, "test", slog.Default())
	idle := 0
	s.OnActivation(nil, func() { idle++ })

	a, _ := recorder()
	s.Connect(a, Literal(nil))
	s.Disconnect(a)
	assert.Equal(t, 1, idle)
}

func TestSource_ResumeNeverPausedIsNoOp(t *testing.T) {
	s := NewSource(nil, "test", slog.Default())
	active := 0
	s.OnActivation(func() { active++ }, nil)

	a, _ := recorder()
	s.Connect(a, Literal(nil))
	s.Resume(a)
	assert.Equal(t, 1, active, "resume of an active edge must not re-raise activation")
}

func TestSource_ParamFor(t *testing.T) {
	s := NewSource(nil, "test", slog.Default())
	a, _ := recorder()
	s.Connect(a, Literal("x"))

	p, ok := s.ParamFor(a)
	require.True(t, ok)
	assert.Equal(t, "x", p.Raw())

	b, _ := recorder()
	_, ok = s.ParamFor(b)
	assert.False(t, ok)
}
