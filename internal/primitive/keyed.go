package primitive

import (
	"sync"

	"github.com/kestrelsec/kestrel/internal/signal"
)

// decodeKeyed extracts (key, index, cancel, removeKey) from a keyed
// collector signal parameter: [key, index], [key, index, cancel], or
// [key, "RemoveKey"]. Keys are compared by value; integer keys are
// canonicalized so rule-text literals and macro results compare equal.
func decodeKeyed(param any) (key any, index int64, cancel, removeKey, ok bool) {
	list, isList := param.([]any)
	if !isList || len(list) < 2 || len(list) > 3 {
		return nil, 0, false, false, false
	}
	key, keyOK := normKey(list[0])
	if !keyOK {
		return nil, 0, false, false, false
	}
	if s, isStr := list[1].(string); isStr && s == RemoveKeyParameter && len(list) == 2 {
		return key, 0, false, true, true
	}
	index, isInt := asInt(list[1])
	if !isInt {
		return nil, 0, false, false, false
	}
	if len(list) == 3 {
		c, isCancel := decodeCancel(list[2])
		if !isCancel {
			return nil, 0, false, false, false
		}
		cancel = c
	}
	return key, index, cancel, false, true
}

// KeyedCollector is Collector with an independent slot array per key.
//
// Expiry stays lazy and per key: only the key being touched is pruned.
// "RemoveKey" discards a key's state outright. A key completes like the
// unkeyed collector, emitting the ordered contexts and dropping the key.
type KeyedCollector struct {
	base
	target *signal.Target
	src    *signal.Source

	cfg collectorConfig

	mu   sync.Mutex
	keys map[any][]slot
}

func newKeyedCollector(env *Env) *KeyedCollector {
	c := &KeyedCollector{base: base{kind: KindKeyedCollector, env: env}}
	c.target = signal.NewTarget(c, c.onSignal)
	c.src = signal.NewSource(c, KindKeyedCollector, env.logger())
	return c
}

// Setup implements Primitive.
func (c *KeyedCollector) Setup(cfg Config, _ map[string]Primitive) error {
	parsed, err := parseCollectorConfig(c.kind, cfg)
	if err != nil {
		return err
	}
	c.cfg = parsed
	c.keys = make(map[any][]slot)
	return nil
}

// SameConfig implements Primitive.
func (c *KeyedCollector) SameConfig(cfg Config, _ map[string]Primitive) bool {
	parsed, err := parseCollectorConfig(c.kind, cfg)
	return err == nil && c.cfg.equal(parsed)
}

func (c *KeyedCollector) Target() *signal.Target { return c.target }
func (c *KeyedCollector) Source() *signal.Source { return c.src }

func (c *KeyedCollector) onSignal(param, context any) {
	key, index, cancel, removeKey, ok := decodeKeyed(param)
	if !ok || (!removeKey && (index < 0 || int(index) >= c.cfg.count)) {
		c.warn("keyed collector parameter is not a valid slot", "param", param)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if removeKey {
		delete(c.keys, key)
		return
	}

	slots, exists := c.keys[key]
	if !exists {
		slots = make([]slot, c.cfg.count)
		c.keys[key] = slots
	}

	i := int(index)
	if cancel {
		slots[i] = slot{}
		return
	}
	now := c.env.now()
	slots[i] = slot{triggered: true, context: context, deadline: c.cfg.deadlineFor(i, now)}

	complete := true
	for j := range slots {
		if j != i && slots[j].expired(now) {
			slots[j] = slot{}
		}
		if !slots[j].triggered {
			complete = false
		}
	}
	if !complete {
		return
	}

	out := make([]any, len(slots))
	for j := range slots {
		out[j] = slots[j].context
	}
	delete(c.keys, key)
	c.src.Trigger(out)
}

// KeyedCollectorInOrder is CollectorInOrder with independent state per key.
type KeyedCollectorInOrder struct {
	base
	target *signal.Target
	src    *signal.Source

	cfg collectorConfig

	mu   sync.Mutex
	keys map[any]*orderedState
}

type orderedState struct {
	slots []slot
	next  int
}

func newKeyedCollectorInOrder(env *Env) *KeyedCollectorInOrder {
	c := &KeyedCollectorInOrder{base: base{kind: KindKeyedCollectorInOrder, env: env}}
	c.target = signal.NewTarget(c, c.onSignal)
	c.src = signal.NewSource(c, KindKeyedCollectorInOrder, env.logger())
	return c
}

// Setup implements Primitive.
func (c *KeyedCollectorInOrder) Setup(cfg Config, _ map[string]Primitive) error {
	parsed, err := parseCollectorConfig(c.kind, cfg)
	if err != nil {
		return err
	}
	c.cfg = parsed
	c.keys = make(map[any]*orderedState)
	return nil
}

// SameConfig implements Primitive.
func (c *KeyedCollectorInOrder) SameConfig(cfg Config, _ map[string]Primitive) bool {
	parsed, err := parseCollectorConfig(c.kind, cfg)
	return err == nil && c.cfg.equal(parsed)
}

func (c *KeyedCollectorInOrder) Target() *signal.Target { return c.target }
func (c *KeyedCollectorInOrder) Source() *signal.Source { return c.src }

func (c *KeyedCollectorInOrder) onSignal(param, context any) {
	key, index, cancel, removeKey, ok := decodeKeyed(param)
	if !ok || (!removeKey && (index < 0 || int(index) >= c.cfg.count)) {
		c.warn("keyed collector parameter is not a valid slot", "param", param)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if removeKey {
		delete(c.keys, key)
		return
	}

	state, exists := c.keys[key]
	if !exists {
		state = &orderedState{slots: make([]slot, c.cfg.count)}
		c.keys[key] = state
	}

	i := int(index)
	if cancel {
		if i < state.next {
			rewindOrdered(state, i)
		}
		return
	}

	now := c.env.now()
	for j := 0; j < state.next; j++ {
		if state.slots[j].expired(now) {
			rewindOrdered(state, j)
			break
		}
	}

	if i != state.next {
		return
	}
	state.slots[i] = slot{triggered: true, context: context, deadline: c.cfg.deadlineFor(i, now)}
	state.next++

	if state.next < c.cfg.count {
		return
	}
	out := make([]any, len(state.slots))
	for j := range state.slots {
		out[j] = state.slots[j].context
	}
	delete(c.keys, key)
	c.src.Trigger(out)
}

func rewindOrdered(s *orderedState, i int) {
	for j := i; j < len(s.slots); j++ {
		s.slots[j] = slot{}
	}
	s.next = i
}

var (
	_ Primitive = (*KeyedCollector)(nil)
	_ Primitive = (*KeyedCollectorInOrder)(nil)
)
