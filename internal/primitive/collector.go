package primitive

import (
	"sync"
	"time"

	"github.com/kestrelsec/kestrel/internal/signal"
)

// CancelParameter cancels a previously triggered slot when it appears in a
// collector signal parameter.
const CancelParameter = "Cancel"

// RemoveKeyParameter discards a keyed collector's state for one key.
const RemoveKeyParameter = "RemoveKey"

// collectorConfig is the configuration shared by all four collectors.
type collectorConfig struct {
	count    int
	timeouts []time.Duration // per-slot, zero means none; nil when absent
}

func parseCollectorConfig(kind string, cfg Config) (collectorConfig, error) {
	var out collectorConfig
	count, err := cfg.requireInt(kind, "SourceCount")
	if err != nil {
		return out, err
	}
	if count <= 0 {
		return out, cfgErr(kind, "SourceCount", "must be positive, got %d", count)
	}
	out.count = int(count)

	raw, present, err := cfg.intList(kind, "Timeouts")
	if err != nil {
		return out, err
	}
	if present {
		if len(raw) != out.count {
			return out, cfgErr(kind, "Timeouts",
				"length %d does not match SourceCount %d", len(raw), out.count)
		}
		out.timeouts = make([]time.Duration, len(raw))
		for i, ms := range raw {
			if ms < 0 {
				return out, cfgErr(kind, "Timeouts", "must not be negative at index %d", i)
			}
			out.timeouts[i] = time.Duration(ms) * time.Millisecond
		}
	}
	return out, nil
}

func (c collectorConfig) equal(other collectorConfig) bool {
	if c.count != other.count || len(c.timeouts) != len(other.timeouts) {
		return false
	}
	for i := range c.timeouts {
		if c.timeouts[i] != other.timeouts[i] {
			return false
		}
	}
	return true
}

// deadlineFor returns the expiry for a slot, or the zero time when the
// slot has no timeout.
func (c collectorConfig) deadlineFor(index int, now time.Time) time.Time {
	if c.timeouts == nil || c.timeouts[index] == 0 {
		return time.Time{}
	}
	return now.Add(c.timeouts[index])
}

type slot struct {
	triggered bool
	context   any
	deadline  time.Time
}

func (s *slot) expired(now time.Time) bool {
	return s.triggered && !s.deadline.IsZero() && !s.deadline.After(now)
}

// decodeSlot extracts (index, cancel) from a collector signal parameter:
// a bare integer, [index], or [index, cancel] where cancel is true or the
// string "Cancel".
func decodeSlot(param any) (index int64, cancel bool, ok bool) {
	if n, isInt := asInt(param); isInt {
		return n, false, true
	}
	list, isList := param.([]any)
	if !isList || len(list) == 0 || len(list) > 2 {
		return 0, false, false
	}
	n, isInt := asInt(list[0])
	if !isInt {
		return 0, false, false
	}
	if len(list) == 2 {
		c, isCancel := decodeCancel(list[1])
		if !isCancel {
			return 0, false, false
		}
		cancel = c
	}
	return n, cancel, true
}

func decodeCancel(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		return t == CancelParameter, t == CancelParameter
	}
	return false, false
}

// Collector joins SourceCount independent inputs, in any order.
//
// Each input addresses a slot by index; a cancel clears it again. Slots
// with a configured timeout expire lazily whenever a new signal arrives.
// When every slot is filled the collector emits the ordered list of slot
// contexts and starts over.
type Collector struct {
	base
	target *signal.Target
	src    *signal.Source

	cfg collectorConfig

	mu    sync.Mutex
	slots []slot
}

func newCollector(env *Env) *Collector {
	c := &Collector{base: base{kind: KindCollector, env: env}}
	c.target = signal.NewTarget(c, c.onSignal)
	c.src = signal.NewSource(c, KindCollector, env.logger())
	return c
}

// Setup implements Primitive.
func (c *Collector) Setup(cfg Config, _ map[string]Primitive) error {
	parsed, err := parseCollectorConfig(c.kind, cfg)
	if err != nil {
		return err
	}
	c.cfg = parsed
	c.slots = make([]slot, parsed.count)
	return nil
}

// SameConfig implements Primitive.
func (c *Collector) SameConfig(cfg Config, _ map[string]Primitive) bool {
	parsed, err := parseCollectorConfig(c.kind, cfg)
	return err == nil && c.cfg.equal(parsed)
}

func (c *Collector) Target() *signal.Target { return c.target }
func (c *Collector) Source() *signal.Source { return c.src }

func (c *Collector) onSignal(param, context any) {
	index, cancel, ok := decodeSlot(param)
	if !ok || index < 0 || int(index) >= c.cfg.count {
		c.warn("collector parameter is not a valid slot", "param", param)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	i := int(index)
	if cancel {
		c.slots[i] = slot{}
		return
	}
	now := c.env.now()
	c.slots[i] = slot{triggered: true, context: context, deadline: c.cfg.deadlineFor(i, now)}

	complete := true
	for j := range c.slots {
		if j != i && c.slots[j].expired(now) {
			c.slots[j] = slot{}
		}
		if !c.slots[j].triggered {
			complete = false
		}
	}
	if !complete {
		return
	}

	out := make([]any, len(c.slots))
	for j := range c.slots {
		out[j] = c.slots[j].context
		c.slots[j] = slot{}
	}
	c.src.Trigger(out)
}

// CollectorInOrder joins SourceCount inputs that must arrive in slot
// order.
//
// Only the expected index is accepted; a cancel at an earlier index and a
// timeout of an already-satisfied slot both rewind the expectation to that
// slot. Completion emits the ordered contexts and rearms at zero.
type CollectorInOrder struct {
	base
	target *signal.Target
	src    *signal.Source

	cfg collectorConfig

	mu    sync.Mutex
	slots []slot
	next  int
}

func newCollectorInOrder(env *Env) *CollectorInOrder {
	c := &CollectorInOrder{base: base{kind: KindCollectorInOrder, env: env}}
	c.target = signal.NewTarget(c, c.onSignal)
	c.src = signal.NewSource(c, KindCollectorInOrder, env.logger())
	return c
}

// Setup implements Primitive.
func (c *CollectorInOrder) Setup(cfg Config, _ map[string]Primitive) error {
	parsed, err := parseCollectorConfig(c.kind, cfg)
	if err != nil {
		return err
	}
	c.cfg = parsed
	c.slots = make([]slot, parsed.count)
	return nil
}

// SameConfig implements Primitive.
func (c *CollectorInOrder) SameConfig(cfg Config, _ map[string]Primitive) bool {
	parsed, err := parseCollectorConfig(c.kind, cfg)
	return err == nil && c.cfg.equal(parsed)
}

func (c *CollectorInOrder) Target() *signal.Target { return c.target }
func (c *CollectorInOrder) Source() *signal.Source { return c.src }

func (c *CollectorInOrder) onSignal(param, context any) {
	index, cancel, ok := decodeSlot(param)
	if !ok || index < 0 || int(index) >= c.cfg.count {
		c.warn("collector parameter is not a valid slot", "param", param)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	i := int(index)
	if cancel {
		if i < c.next {
			c.rewindLocked(i)
		}
		return
	}

	now := c.env.now()
	for j := 0; j < c.next; j++ {
		if c.slots[j].expired(now) {
			c.rewindLocked(j)
			break
		}
	}

	if i != c.next {
		return
	}
	c.slots[i] = slot{triggered: true, context: context, deadline: c.cfg.deadlineFor(i, now)}
	c.next++

	if c.next < c.cfg.count {
		return
	}
	out := make([]any, len(c.slots))
	for j := range c.slots {
		out[j] = c.slots[j].context
		c.slots[j] = slot{}
	}
	c.next = 0
	c.src.Trigger(out)
}

// rewindLocked moves the expectation back to index i, discarding everything
// recorded from i on.
func (c *CollectorInOrder) rewindLocked(i int) {
	for j := i; j < len(c.slots); j++ {
		c.slots[j] = slot{}
	}
	c.next = i
}

var (
	_ Primitive = (*Collector)(nil)
	_ Primitive = (*CollectorInOrder)(nil)
)
