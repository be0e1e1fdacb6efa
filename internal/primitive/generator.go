package primitive

import (
	"sort"

	"github.com/kestrelsec/kestrel/internal/signal"
)

// EventGenerator is the terminal node of a rule: it synthesizes a derived
// event and hands it to the engine dispatcher.
//
// Property values may be literals or macros evaluated against the incoming
// context; property names are resolved to ids at setup time. A generator
// has no outbound signal and is never shared between rules, so each rule
// keeps its own anchor for deletion.
type EventGenerator struct {
	base
	target *signal.Target

	eventName string
	props     []generatedProp
}

type generatedProp struct {
	name  string
	id    int
	value signal.Param
}

func newEventGenerator(env *Env) *EventGenerator {
	g := &EventGenerator{base: base{kind: KindEventGenerator, env: env}}
	g.target = signal.NewTarget(g, g.onSignal)
	return g
}

// Setup implements Primitive.
func (g *EventGenerator) Setup(cfg Config, _ map[string]Primitive) error {
	name, err := cfg.requireString(g.kind, "NewEventName")
	if err != nil {
		return err
	}
	if name == "" {
		return cfgErr(g.kind, "NewEventName", "must not be empty")
	}
	g.eventName = name

	raw, present := cfg["Properties"]
	if !present {
		return nil
	}
	props, ok := raw.(map[string]any)
	if !ok {
		return cfgErr(g.kind, "Properties", "map expected, got %T", raw)
	}

	// Sorted for deterministic set order and stable diagnostics.
	names := make([]string, 0, len(props))
	for n := range props {
		names = append(names, n)
	}
	sort.Strings(names)

	g.props = make([]generatedProp, 0, len(props))
	for _, n := range names {
		id := g.env.Meta.PropertyID(n)
		if id < 0 {
			return cfgErr(g.kind, "Properties", "unknown event property %q", n)
		}
		value, err := signal.Compile(props[n], g.env.Meta)
		if err != nil {
			return err
		}
		g.props = append(g.props, generatedProp{name: n, id: id, value: value})
	}
	return nil
}

// SameConfig implements Primitive. Generators are never shared, so this is
// only of diagnostic interest; it compares the event name only, not the
// configured properties.
func (g *EventGenerator) SameConfig(cfg Config, _ map[string]Primitive) bool {
	name, err := cfg.requireString(g.kind, "NewEventName")
	return err == nil && name == g.eventName
}

// Shareable implements Primitive: a generator anchors exactly one rule.
func (g *EventGenerator) Shareable() bool { return false }

func (g *EventGenerator) Target() *signal.Target { return g.target }
func (g *EventGenerator) Source() *signal.Source { return nil }

// EventName returns the derived event name this generator produces.
func (g *EventGenerator) EventName() string { return g.eventName }

func (g *EventGenerator) onSignal(_, context any) {
	ev := g.env.Meta.NewInstance(g.eventName)
	if ev == nil {
		// Host factory declined; stop propagation, earlier effects stand.
		return
	}
	for _, p := range g.props {
		v, err := p.value.Eval(context)
		if err != nil {
			g.warn("derived event property evaluation failed",
				"event", g.eventName, "property", p.name, "err", err)
			continue
		}
		ev.Set(p.id, v)
	}
	g.env.Emit(ev)
}

var _ Primitive = (*EventGenerator)(nil)
