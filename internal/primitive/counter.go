package primitive

import (
	"sync/atomic"

	"github.com/kestrelsec/kestrel/internal/signal"
)

// BasicCounter is a plain up/down counter with no outbound signal.
//
// Signal parameter: a positive value adds, a negative value subtracts,
// zero resets. The value is observable through Check, which is how shared
// counters feed Checker primitives across rules.
type BasicCounter struct {
	base
	target *signal.Target
	value  atomic.Int64
}

func newBasicCounter(env *Env) *BasicCounter {
	c := &BasicCounter{base: base{kind: KindBasicCounter, env: env}}
	c.target = signal.NewTarget(c, c.onSignal)
	return c
}

// Setup implements Primitive. BasicCounter takes no configuration.
func (c *BasicCounter) Setup(cfg Config, _ map[string]Primitive) error {
	for k := range cfg {
		return cfgErr(c.kind, k, "takes no configuration")
	}
	return nil
}

// SameConfig implements Primitive.
func (c *BasicCounter) SameConfig(cfg Config, _ map[string]Primitive) bool {
	return len(cfg) == 0
}

func (c *BasicCounter) Target() *signal.Target { return c.target }
func (c *BasicCounter) Source() *signal.Source { return nil }

// Check implements Checkable.
func (c *BasicCounter) Check(any) any { return c.value.Load() }

func (c *BasicCounter) onSignal(param, _ any) {
	n, ok := asInt(param)
	if !ok {
		c.warn("counter parameter is not an integer", "param", param)
		return
	}
	if n == 0 {
		c.value.Store(0)
		return
	}
	c.value.Add(n)
}

// CountdownCounter counts down from StartFrom and fires exactly once per
// cycle when it reaches zero. After firing it pauses its inbound edges so
// upstream (typically a TimerSource) can stop producing; a zero parameter
// resets the count and resumes them.
type CountdownCounter struct {
	base
	target *signal.Target
	src    *signal.Source

	startFrom int64
	value     atomic.Int64
}

func newCountdownCounter(env *Env) *CountdownCounter {
	c := &CountdownCounter{base: base{kind: KindCountdownCounter, env: env}}
	c.target = signal.NewTarget(c, c.onSignal)
	c.src = signal.NewSource(c, KindCountdownCounter, env.logger())
	return c
}

// Setup implements Primitive.
func (c *CountdownCounter) Setup(cfg Config, _ map[string]Primitive) error {
	n, err := cfg.requireInt(c.kind, "StartFrom")
	if err != nil {
		return err
	}
	if n <= 0 {
		return cfgErr(c.kind, "StartFrom", "must be positive, got %d", n)
	}
	c.startFrom = n
	c.value.Store(n)
	return nil
}

// SameConfig implements Primitive.
func (c *CountdownCounter) SameConfig(cfg Config, _ map[string]Primitive) bool {
	n, err := cfg.requireInt(c.kind, "StartFrom")
	return err == nil && n == c.startFrom && len(cfg) == 1
}

func (c *CountdownCounter) Target() *signal.Target { return c.target }
func (c *CountdownCounter) Source() *signal.Source { return c.src }

func (c *CountdownCounter) onSignal(param, context any) {
	n, ok := asInt(param)
	if !ok {
		c.warn("counter parameter is not an integer", "param", param)
		return
	}
	if n == 0 {
		c.value.Store(c.startFrom)
		for _, src := range c.target.Sources() {
			src.Resume(c.target)
		}
		return
	}
	for {
		cur := c.value.Load()
		if cur <= 0 {
			// Already fired this cycle; stay clamped at zero.
			return
		}
		if !c.value.CompareAndSwap(cur, cur-1) {
			continue
		}
		if cur-1 == 0 {
			c.src.Trigger(context)
			for _, src := range c.target.Sources() {
				src.Pause(c.target)
			}
		}
		return
	}
}

// RepeatCounter fires every RestartAt-th non-zero trigger and rearms
// itself. A zero parameter forces a reset without firing.
type RepeatCounter struct {
	base
	target *signal.Target
	src    *signal.Source

	restartAt int64
	value     atomic.Int64
}

func newRepeatCounter(env *Env) *RepeatCounter {
	c := &RepeatCounter{base: base{kind: KindRepeatCounter, env: env}}
	c.target = signal.NewTarget(c, c.onSignal)
	c.src = signal.NewSource(c, KindRepeatCounter, env.logger())
	return c
}

// Setup implements Primitive.
func (c *RepeatCounter) Setup(cfg Config, _ map[string]Primitive) error {
	n, err := cfg.requireInt(c.kind, "RestartAt")
	if err != nil {
		return err
	}
	if n <= 0 {
		return cfgErr(c.kind, "RestartAt", "must be positive, got %d", n)
	}
	c.restartAt = n
	c.value.Store(n)
	return nil
}

// SameConfig implements Primitive.
func (c *RepeatCounter) SameConfig(cfg Config, _ map[string]Primitive) bool {
	n, err := cfg.requireInt(c.kind, "RestartAt")
	return err == nil && n == c.restartAt && len(cfg) == 1
}

func (c *RepeatCounter) Target() *signal.Target { return c.target }
func (c *RepeatCounter) Source() *signal.Source { return c.src }

func (c *RepeatCounter) onSignal(param, context any) {
	n, ok := asInt(param)
	if !ok {
		c.warn("counter parameter is not an integer", "param", param)
		return
	}
	if n == 0 {
		c.value.Store(c.restartAt)
		return
	}
	for {
		cur := c.value.Load()
		next := cur - 1
		fire := false
		if next <= 0 {
			next = c.restartAt
			fire = true
		}
		if !c.value.CompareAndSwap(cur, next) {
			continue
		}
		if fire {
			c.src.Trigger(context)
		}
		return
	}
}

var (
	_ Primitive = (*BasicCounter)(nil)
	_ Checkable = (*BasicCounter)(nil)
	_ Primitive = (*CountdownCounter)(nil)
	_ Primitive = (*RepeatCounter)(nil)
)
