package primitive

import (
	"sync"
	"time"

	"github.com/kestrelsec/kestrel/internal/signal"
)

// ResetParameter clears an Accumulator when received as its signal
// parameter.
const ResetParameter = "Reset"

// Accumulator sums weighted inputs inside an optional time window and
// fires when the running total reaches Threshold.
//
// The emitted context is a list whose first element is the total and whose
// remaining elements are the contexts of the retained inputs, in arrival
// order, including the triggering one. State is cleared after firing.
//
// Expiry is lazy: entries older than Timeout are pruned only when a new
// input arrives. Totals are 64-bit so large timeouts cannot overflow.
type Accumulator struct {
	base
	target *signal.Target
	src    *signal.Source

	threshold int64
	timeout   time.Duration // zero means no window

	mu      sync.Mutex
	inputs  []accEntry
	total   int64
}

type accEntry struct {
	value    int64
	context  any
	deadline time.Time
}

func newAccumulator(env *Env) *Accumulator {
	a := &Accumulator{base: base{kind: KindAccumulator, env: env}}
	a.target = signal.NewTarget(a, a.onSignal)
	a.src = signal.NewSource(a, KindAccumulator, env.logger())
	return a
}

// Setup implements Primitive. Timeout is in milliseconds.
func (a *Accumulator) Setup(cfg Config, _ map[string]Primitive) error {
	threshold, err := cfg.requireInt(a.kind, "Threshold")
	if err != nil {
		return err
	}
	if threshold <= 0 {
		return cfgErr(a.kind, "Threshold", "must be positive, got %d", threshold)
	}
	timeout, err := cfg.optionalInt(a.kind, "Timeout", 0)
	if err != nil {
		return err
	}
	if timeout < 0 {
		return cfgErr(a.kind, "Timeout", "must not be negative, got %d", timeout)
	}
	a.threshold = threshold
	a.timeout = time.Duration(timeout) * time.Millisecond
	return nil
}

// SameConfig implements Primitive.
func (a *Accumulator) SameConfig(cfg Config, _ map[string]Primitive) bool {
	threshold, err := cfg.requireInt(a.kind, "Threshold")
	if err != nil || threshold != a.threshold {
		return false
	}
	timeout, err := cfg.optionalInt(a.kind, "Timeout", 0)
	return err == nil && time.Duration(timeout)*time.Millisecond == a.timeout
}

func (a *Accumulator) Target() *signal.Target { return a.target }
func (a *Accumulator) Source() *signal.Source { return a.src }

func (a *Accumulator) onSignal(param, context any) {
	if s, ok := param.(string); ok && s == ResetParameter {
		a.mu.Lock()
		a.inputs = nil
		a.total = 0
		a.mu.Unlock()
		return
	}
	value, ok := asInt(param)
	if !ok {
		a.warn("accumulator parameter is neither an integer nor Reset", "param", param)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.env.now()
	if a.timeout > 0 {
		for len(a.inputs) > 0 && !a.inputs[0].deadline.After(now) {
			a.total -= a.inputs[0].value
			a.inputs = a.inputs[1:]
		}
	}

	e := accEntry{value: value, context: context}
	if a.timeout > 0 {
		e.deadline = now.Add(a.timeout)
	}
	a.inputs = append(a.inputs, e)
	a.total += value

	if a.total < a.threshold {
		return
	}

	// Snapshot before clearing so the output includes the triggering input.
	out := make([]any, 0, len(a.inputs)+1)
	out = append(out, a.total)
	for _, in := range a.inputs {
		out = append(out, in.context)
	}
	a.inputs = nil
	a.total = 0

	// Fired under the lock to preserve causal ordering downstream.
	a.src.Trigger(out)
}

var _ Primitive = (*Accumulator)(nil)
