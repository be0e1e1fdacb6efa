package primitive

import (
	"sync/atomic"

	"github.com/kestrelsec/kestrel/internal/signal"
)

// Comparison condition names shared by Checker and IntegerFilter.
const (
	CondLessThan    = "LessThan"
	CondEquals      = "Equals"
	CondGreaterThan = "GreaterThan"
	CondOneOf       = "OneOf"
)

// Checker reads a Checkable primitive synchronously on every trigger and
// fires its primary or negative source depending on the comparison.
//
// With AutoRollOver, each positive fire advances the effective barrier by
// the original CompareTo value (100 becomes 200, 300, ...), which lets a
// counter shared across rules keep counting without ever being reset. The
// barrier only grows; it resets only when the checker is torn down.
type Checker struct {
	base
	target *signal.Target
	src    *signal.Source
	neg    *signal.Source

	targetName string
	condition  string
	compareTo  int64
	rollOver   bool

	checked Checkable
	barrier atomic.Int64
}

func newChecker(env *Env) *Checker {
	c := &Checker{base: base{kind: KindChecker, env: env}}
	c.target = signal.NewTarget(c, c.onSignal)
	c.src = signal.NewSource(c, KindChecker, env.logger())
	c.neg = signal.NewSource(c, KindChecker+"/negative", env.logger())
	return c
}

// Setup implements Primitive. CheckTarget must name an already-settled
// primitive in the same rule that implements Checkable.
func (c *Checker) Setup(cfg Config, settled map[string]Primitive) error {
	name, err := cfg.requireString(c.kind, "CheckTarget")
	if err != nil {
		return err
	}
	cond, err := cfg.requireString(c.kind, "Condition")
	if err != nil {
		return err
	}
	if cond != CondLessThan && cond != CondEquals && cond != CondGreaterThan {
		return cfgErr(c.kind, "Condition", "unknown condition %q", cond)
	}
	compareTo, err := cfg.requireInt(c.kind, "CompareTo")
	if err != nil {
		return err
	}
	rollOver, err := cfg.optionalBool(c.kind, "AutoRollOver", false)
	if err != nil {
		return err
	}
	dep, ok := settled[name]
	if !ok {
		return cfgErr(c.kind, "CheckTarget", "unknown primitive %q", name)
	}
	checkable, ok := dep.(Checkable)
	if !ok {
		return cfgErr(c.kind, "CheckTarget", "%q (%s) is not checkable", name, dep.Kind())
	}

	c.targetName = name
	c.condition = cond
	c.compareTo = compareTo
	c.rollOver = rollOver
	c.checked = checkable
	c.barrier.Store(compareTo)
	return nil
}

// SameConfig implements Primitive. Two checkers only match when they watch
// the same physical primitive.
func (c *Checker) SameConfig(cfg Config, settled map[string]Primitive) bool {
	name, err := cfg.requireString(c.kind, "CheckTarget")
	if err != nil {
		return false
	}
	cond, err := cfg.requireString(c.kind, "Condition")
	if err != nil || cond != c.condition {
		return false
	}
	compareTo, err := cfg.requireInt(c.kind, "CompareTo")
	if err != nil || compareTo != c.compareTo {
		return false
	}
	rollOver, err := cfg.optionalBool(c.kind, "AutoRollOver", false)
	if err != nil || rollOver != c.rollOver {
		return false
	}
	dep, ok := settled[name]
	if !ok {
		return false
	}
	checkable, ok := dep.(Checkable)
	return ok && checkable == c.checked
}

func (c *Checker) Target() *signal.Target   { return c.target }
func (c *Checker) Source() *signal.Source   { return c.src }
func (c *Checker) Negative() *signal.Source { return c.neg }

// Checked returns the primitive this checker reads.
func (c *Checker) Checked() Checkable { return c.checked }

func (c *Checker) onSignal(_, context any) {
	value, ok := asInt(c.checked.Check(nil))
	if !ok {
		c.warn("check target did not yield an integer", "target", c.targetName)
		return
	}

	barrier := c.barrier.Load()
	var match bool
	switch c.condition {
	case CondLessThan:
		match = value < barrier
	case CondEquals:
		match = value == barrier
	case CondGreaterThan:
		match = value > barrier
	}

	if !match {
		c.neg.Trigger(context)
		return
	}
	if c.rollOver {
		c.barrier.Add(c.compareTo)
	}
	c.src.Trigger(context)
}

var _ Primitive = (*Checker)(nil)
