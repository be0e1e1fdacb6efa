package primitive

import (
	"log/slog"
	"time"

	"github.com/kestrelsec/kestrel/event"
	"github.com/kestrelsec/kestrel/internal/signal"
	"github.com/kestrelsec/kestrel/internal/testutil"
)

// testEnv builds a primitive environment over a deterministic clock and a
// meta event with the property names the tests use.
func testEnv(clk *testutil.Clock) (*Env, *[]event.Event) {
	var emitted []event.Event
	env := &Env{
		Meta:   event.NewMeta("path", "pid", "creator", "Score", "name"),
		Emit:   func(ev event.Event) { emitted = append(emitted, ev) },
		Logger: slog.New(slog.DiscardHandler),
	}
	if clk != nil {
		env.Now = clk.Now
	}
	return env, &emitted
}

func testClock() *testutil.Clock {
	return testutil.NewClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
}

// capture subscribes a recording target to src and returns the contexts it
// receives.
func capture(src *signal.Source) *[]any {
	var got []any
	t := signal.NewTarget(nil, func(_, context any) {
		got = append(got, context)
	})
	src.Connect(t, signal.Literal(nil))
	return &got
}

// feed creates a source wired into p's target with the given parameter
// template, so tests can exercise pause/resume back-pressure.
func feed(p Primitive, param signal.Param) *signal.Source {
	src := signal.NewSource(nil, "test-feed", slog.New(slog.DiscardHandler))
	src.Connect(p.Target(), param)
	return src
}
