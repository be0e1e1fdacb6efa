// Package primitive implements the stateful dataflow nodes rules are built
// from: counters, collectors, accumulators, filters, checkers, timers, and
// event generators.
//
// Primitives are created by the rule compiler through the registry, wired
// together with signal edges, and physically shared across rules whenever
// kind, configuration, inbound sources, and per-edge parameters all match.
// Liveness is tracked by a depender count: the number of consumer edges
// plus the checkers bound to the primitive.
package primitive

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/kestrelsec/kestrel/event"
	"github.com/kestrelsec/kestrel/internal/signal"
)

// Env is the engine-provided environment primitives run in.
type Env struct {
	// Meta resolves property names to ids at setup time.
	Meta event.Event

	// Emit hands a derived event back to the engine dispatcher.
	Emit func(event.Event)

	// Logger receives runtime warnings.
	Logger *slog.Logger

	// Now is the clock; tests substitute a deterministic one.
	Now func() time.Time
}

func (e *Env) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e *Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Config is the raw configuration map from the rule description.
type Config map[string]any

// Primitive is the uniform node shape.
//
// Target is nil for self-driven primitives (NonTargetable); Source is nil
// for terminal primitives (EventGenerator); Negative is nil unless the
// primitive is conditional.
type Primitive interface {
	// Kind returns the registered type name.
	Kind() string

	// Setup validates and installs the configuration. settled maps the
	// rule-local names of already-compiled nodes to their primitives;
	// only Checker uses it, to resolve its check target.
	Setup(cfg Config, settled map[string]Primitive) error

	// SameConfig reports whether cfg would configure this primitive
	// identically. Used by the sharing detector; must only be called on
	// a primitive whose Setup succeeded.
	SameConfig(cfg Config, settled map[string]Primitive) bool

	// Target returns the inbound port, or nil.
	Target() *signal.Target

	// Source returns the primary outbound port, or nil.
	Source() *signal.Source

	// Negative returns the negative outbound port, or nil.
	Negative() *signal.Source

	// Shareable reports whether the sharing detector may merge this
	// primitive across rules. Only EventGenerator refuses.
	Shareable() bool

	// Dependers returns the current depender count.
	Dependers() int

	// AddDepender and DropDepender adjust the depender count.
	AddDepender()
	DropDepender()

	// Close releases system resources (timers). Idempotent.
	Close()
}

// Checkable is the capability tag for primitives exposing a synchronous
// value read; Checker resolves its CheckTarget against it.
type Checkable interface {
	Check(key any) any
}

// NonTargetable tags self-driven primitives that accept no inbound signal.
type NonTargetable interface {
	NonTargetable()
}

// base carries the pieces every primitive shares.
type base struct {
	kind      string
	env       *Env
	dependers atomic.Int64
}

func (b *base) Kind() string              { return b.kind }
func (b *base) Dependers() int            { return int(b.dependers.Load()) }
func (b *base) AddDepender()              { b.dependers.Add(1) }
func (b *base) DropDepender()             { b.dependers.Add(-1) }
func (b *base) Negative() *signal.Source  { return nil }
func (b *base) Shareable() bool           { return true }
func (b *base) Close()                    {}

// warn logs a runtime warning; bad triggers are dropped, never fatal.
func (b *base) warn(msg string, args ...any) {
	b.env.logger().Warn(msg, append([]any{"primitive", b.kind}, args...)...)
}

// ConfigError reports a rejected primitive configuration.
type ConfigError struct {
	Kind  string
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Field, e.Msg)
}

func cfgErr(kind, field, format string, args ...any) error {
	return &ConfigError{Kind: kind, Field: field, Msg: fmt.Sprintf(format, args...)}
}

// asInt coerces the integer shapes YAML decoding and macro evaluation
// produce into int64.
func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
	case float32:
		if float64(n) == float64(int64(n)) {
			return int64(n), true
		}
	}
	return 0, false
}

// normKey canonicalizes map keys so that an int from the rule text and an
// int64 from a macro compare equal. Unhashable values are rejected.
func normKey(v any) (any, bool) {
	if n, ok := asInt(v); ok {
		return n, true
	}
	switch v.(type) {
	case string, bool, nil:
		return v, true
	}
	return nil, false
}

func (c Config) requireInt(kind, key string) (int64, error) {
	v, ok := c[key]
	if !ok {
		return 0, cfgErr(kind, key, "required")
	}
	n, ok := asInt(v)
	if !ok {
		return 0, cfgErr(kind, key, "integer expected, got %T", v)
	}
	return n, nil
}

func (c Config) optionalInt(kind, key string, def int64) (int64, error) {
	v, ok := c[key]
	if !ok {
		return def, nil
	}
	n, ok := asInt(v)
	if !ok {
		return 0, cfgErr(kind, key, "integer expected, got %T", v)
	}
	return n, nil
}

func (c Config) requireString(kind, key string) (string, error) {
	v, ok := c[key]
	if !ok {
		return "", cfgErr(kind, key, "required")
	}
	s, ok := v.(string)
	if !ok {
		return "", cfgErr(kind, key, "string expected, got %T", v)
	}
	return s, nil
}

func (c Config) optionalString(kind, key, def string) (string, error) {
	v, ok := c[key]
	if !ok {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", cfgErr(kind, key, "string expected, got %T", v)
	}
	return s, nil
}

func (c Config) optionalBool(kind, key string, def bool) (bool, error) {
	v, ok := c[key]
	if !ok {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, cfgErr(kind, key, "bool expected, got %T", v)
	}
	return b, nil
}

// intList reads an optional list-of-integers field.
func (c Config) intList(kind, key string) ([]int64, bool, error) {
	v, ok := c[key]
	if !ok {
		return nil, false, nil
	}
	items, ok := v.([]any)
	if !ok {
		if n, isInt := asInt(v); isInt {
			return []int64{n}, true, nil
		}
		return nil, false, cfgErr(kind, key, "list of integers expected, got %T", v)
	}
	out := make([]int64, len(items))
	for i, item := range items {
		n, isInt := asInt(item)
		if !isInt {
			return nil, false, cfgErr(kind, key, "integer expected at index %d, got %T", i, item)
		}
		out[i] = n
	}
	return out, true, nil
}

// stringList reads a string-or-list-of-strings field.
func (c Config) stringList(kind, key string) ([]string, error) {
	v, ok := c[key]
	if !ok {
		return nil, cfgErr(kind, key, "required")
	}
	switch t := v.(type) {
	case string:
		return []string{t}, nil
	case []any:
		out := make([]string, len(t))
		for i, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, cfgErr(kind, key, "string expected at index %d, got %T", i, item)
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, cfgErr(kind, key, "string or list of strings expected, got %T", v)
	}
}
