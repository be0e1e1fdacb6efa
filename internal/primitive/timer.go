package primitive

import (
	"sync"
	"time"

	"github.com/kestrelsec/kestrel/internal/signal"
)

// TimerSource frequencies.
const (
	FreqOneTenthSecond = "OneTenthSecond"
	FreqSecond         = "Second"
	FreqMinute         = "Minute"
)

// TimerSource is a self-driven primitive: it accepts no inbound signal and
// fires its source on a fixed interval from a platform timer goroutine.
//
// The timer participates in back-pressure through the source's activation
// hooks: it starts on the first active target and stops when every target
// has paused (or been disconnected), so a countdown counter that pauses
// its edge after firing shuts the timer down until it is reset.
//
// Ticks fire with a nil context, so each target receives only its edge's
// parameter template; they run concurrently with host event ingestion;
// downstream primitives serialize with their own locks.
type TimerSource struct {
	base
	src      *signal.Source
	interval time.Duration

	mu   sync.Mutex
	stop chan struct{} // nil while the timer is not running
}

func newTimerSource(env *Env) *TimerSource {
	t := &TimerSource{base: base{kind: KindTimerSource, env: env}}
	t.src = signal.NewSource(t, KindTimerSource, env.logger())
	t.src.OnActivation(t.start, t.pause)
	return t
}

// NonTargetable implements the capability tag.
func (t *TimerSource) NonTargetable() {}

// Setup implements Primitive.
func (t *TimerSource) Setup(cfg Config, _ map[string]Primitive) error {
	freq, err := cfg.requireString(t.kind, "Frequency")
	if err != nil {
		return err
	}
	switch freq {
	case FreqOneTenthSecond:
		t.interval = 100 * time.Millisecond
	case FreqSecond:
		t.interval = time.Second
	case FreqMinute:
		t.interval = time.Minute
	default:
		return cfgErr(t.kind, "Frequency", "unknown frequency %q", freq)
	}
	return nil
}

// SameConfig implements Primitive.
func (t *TimerSource) SameConfig(cfg Config, _ map[string]Primitive) bool {
	freq, err := cfg.requireString(t.kind, "Frequency")
	if err != nil {
		return false
	}
	switch freq {
	case FreqOneTenthSecond:
		return t.interval == 100*time.Millisecond
	case FreqSecond:
		return t.interval == time.Second
	case FreqMinute:
		return t.interval == time.Minute
	}
	return false
}

func (t *TimerSource) Target() *signal.Target { return nil }
func (t *TimerSource) Source() *signal.Source { return t.src }

// start launches the timer goroutine. Invoked by the source when its first
// target becomes active.
func (t *TimerSource) start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop != nil {
		return
	}
	stop := make(chan struct{})
	t.stop = stop
	go t.run(stop)
}

// pause stops the timer. Invoked by the source when all targets paused.
func (t *TimerSource) pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

// Close implements Primitive; the rule remover calls it on teardown.
func (t *TimerSource) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

func (t *TimerSource) stopLocked() {
	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
}

func (t *TimerSource) run(stop chan struct{}) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.src.Trigger(nil)
		}
	}
}

var (
	_ Primitive     = (*TimerSource)(nil)
	_ NonTargetable = (*TimerSource)(nil)
)
