package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kestrelsec/kestrel/internal/primitive"
)

// Describe renders the live graph deterministically: the dispatcher table,
// then each rule's backward tree from its generator. Intended for
// diagnostics and golden tests; the format is stable but not an API.
func (e *Engine) Describe() string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var b strings.Builder

	b.WriteString("dispatchers:\n")
	for _, name := range sortedStringKeys(e.dispatch) {
		kinds := make([]string, 0)
		for _, t := range e.dispatch[name].Targets() {
			if owner, ok := t.Owner().(primitive.Primitive); ok && owner != nil {
				kinds = append(kinds, owner.Kind())
			}
		}
		fmt.Fprintf(&b, "  %s -> [%s]\n", name, strings.Join(kinds, ", "))
	}

	b.WriteString("rules:\n")
	ruleNames := make([]string, 0, len(e.ruleToEvent))
	for rn := range e.ruleToEvent {
		ruleNames = append(ruleNames, rn)
	}
	sort.Strings(ruleNames)

	for _, rn := range ruleNames {
		evt := e.ruleToEvent[rn]
		suffix := ""
		if e.pendingDelete[rn] {
			suffix = " (pending delete)"
		}
		fmt.Fprintf(&b, "  %s -> %s%s\n", rn, evt, suffix)
		seen := make(map[primitive.Primitive]bool)
		describeNode(&b, e.generators[evt], "    ", seen)
	}
	return b.String()
}

func describeNode(b *strings.Builder, p primitive.Primitive, indent string, seen map[primitive.Primitive]bool) {
	if seen[p] {
		fmt.Fprintf(b, "%s%s (see above)\n", indent, p.Kind())
		return
	}
	seen[p] = true
	fmt.Fprintf(b, "%s%s (dependers=%d)\n", indent, p.Kind(), p.Dependers())

	if t := p.Target(); t != nil {
		for _, src := range t.Sources() {
			if owner, ok := src.Owner().(primitive.Primitive); ok && owner != nil {
				describeNode(b, owner, indent+"  ", seen)
			} else {
				fmt.Fprintf(b, "%s  %s\n", indent, src.Label())
			}
		}
	}
	if ch, ok := p.(*primitive.Checker); ok {
		if dep, ok := ch.Checked().(primitive.Primitive); ok {
			fmt.Fprintf(b, "%schecks:\n", indent+"  ")
			describeNode(b, dep, indent+"    ", seen)
		}
	}
}

func sortedStringKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Stats is a structural snapshot used by tests to assert the universal
// invariants and add/delete round-trips.
type Stats struct {
	Dispatchers int
	Rules       int
	Generators  int
	SelfDriven  int
	Pending     int
}

// Snapshot returns current structural counts.
func (e *Engine) Snapshot() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Stats{
		Dispatchers: len(e.dispatch),
		Rules:       len(e.ruleToEvent),
		Generators:  len(e.generators),
		SelfDriven:  len(e.selfDriven),
		Pending:     len(e.pendingDelete),
	}
}

// PrimitiveCount returns the number of live primitives reachable from the
// registered generators and self-driven nodes.
func (e *Engine) PrimitiveCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.livePrimitivesLocked())
}

func (e *Engine) livePrimitivesLocked() map[primitive.Primitive]bool {
	live := make(map[primitive.Primitive]bool)
	var queue []primitive.Primitive
	add := func(p primitive.Primitive) {
		if p != nil && !live[p] {
			live[p] = true
			queue = append(queue, p)
		}
	}
	for _, gen := range e.generators {
		add(gen)
	}
	for _, p := range e.selfDriven {
		add(p)
	}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		for _, up := range upstreamOf(p) {
			add(up)
		}
		if src := p.Source(); src != nil {
			for _, t := range src.Targets() {
				if owner, ok := t.Owner().(primitive.Primitive); ok {
					add(owner)
				}
			}
		}
		if neg := p.Negative(); neg != nil {
			for _, t := range neg.Targets() {
				if owner, ok := t.Owner().(primitive.Primitive); ok {
					add(owner)
				}
			}
		}
	}
	return live
}

// CheckInvariants walks the live graph and verifies the structural
// invariants: depender counts equal consumer edges plus checker links,
// and source/target back-links agree. Returns every violation found.
func (e *Engine) CheckInvariants() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var problems []string
	live := e.livePrimitivesLocked()

	// Checker links per checked primitive.
	checkerLinks := make(map[primitive.Primitive]int)
	for p := range live {
		if ch, ok := p.(*primitive.Checker); ok {
			if dep, ok := ch.Checked().(primitive.Primitive); ok {
				checkerLinks[dep]++
			}
		}
	}

	for p := range live {
		want := checkerLinks[p]
		if src := p.Source(); src != nil {
			want += src.TargetCount()
		}
		if neg := p.Negative(); neg != nil {
			want += neg.TargetCount()
		}
		if got := p.Dependers(); got != want {
			problems = append(problems,
				fmt.Sprintf("%s: depender count %d, want %d", p.Kind(), got, want))
		}
		if t := p.Target(); t != nil {
			for _, src := range t.Sources() {
				found := false
				for _, tt := range src.Targets() {
					if tt == t {
						found = true
						break
					}
				}
				if !found {
					problems = append(problems,
						fmt.Sprintf("%s: connected source does not list it as target", p.Kind()))
				}
			}
		}
	}
	return problems
}
