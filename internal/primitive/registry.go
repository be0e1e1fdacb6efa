package primitive

import (
	"fmt"
	"sort"
	"sync"
)

// Constructor builds an unconfigured primitive bound to env.
type Constructor func(env *Env) Primitive

// Kind names as they appear in rule descriptions.
const (
	KindBasicCounter          = "BasicCounter"
	KindCountdownCounter      = "CountdownCounter"
	KindRepeatCounter         = "RepeatCounter"
	KindAccumulator           = "Accumulator"
	KindSpeedAlarm            = "SpeedAlarm"
	KindCollector             = "Collector"
	KindCollectorInOrder      = "CollectorInOrder"
	KindKeyedCollector        = "KeyedCollector"
	KindKeyedCollectorInOrder = "KeyedCollectorInOrder"
	KindChecker               = "Checker"
	KindStringFilter          = "StringFilter"
	KindIntegerFilter         = "IntegerFilter"
	KindEventGenerator        = "EventGenerator"
	KindTimerSource           = "TimerSource"
)

var (
	registryMu sync.RWMutex
	registry   = map[string]Constructor{
		KindBasicCounter:          func(env *Env) Primitive { return newBasicCounter(env) },
		KindCountdownCounter:      func(env *Env) Primitive { return newCountdownCounter(env) },
		KindRepeatCounter:         func(env *Env) Primitive { return newRepeatCounter(env) },
		KindAccumulator:           func(env *Env) Primitive { return newAccumulator(env) },
		KindSpeedAlarm:            func(env *Env) Primitive { return newSpeedAlarm(env) },
		KindCollector:             func(env *Env) Primitive { return newCollector(env) },
		KindCollectorInOrder:      func(env *Env) Primitive { return newCollectorInOrder(env) },
		KindKeyedCollector:        func(env *Env) Primitive { return newKeyedCollector(env) },
		KindKeyedCollectorInOrder: func(env *Env) Primitive { return newKeyedCollectorInOrder(env) },
		KindChecker:               func(env *Env) Primitive { return newChecker(env) },
		KindStringFilter:          func(env *Env) Primitive { return newStringFilter(env) },
		KindIntegerFilter:         func(env *Env) Primitive { return newIntegerFilter(env) },
		KindEventGenerator:        func(env *Env) Primitive { return newEventGenerator(env) },
		KindTimerSource:           func(env *Env) Primitive { return newTimerSource(env) },
	}
)

// Register adds or replaces a primitive kind. The registry is open so hosts
// can extend the library; built-in kinds may not be what you want to shadow.
func Register(kind string, c Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[kind] = c
}

// Known reports whether kind is registered.
func Known(kind string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[kind]
	return ok
}

// New constructs an unconfigured primitive of the given kind.
func New(kind string, env *Env) (Primitive, error) {
	registryMu.RLock()
	c, ok := registry[kind]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown primitive type %q", kind)
	}
	return c(env), nil
}

// Kinds returns all registered kind names, sorted.
func Kinds() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
