package engine

import (
	"github.com/kestrelsec/kestrel/internal/primitive"
)

// DeleteRule removes a rule from the live graph. Primitives still
// referenced by other rules survive; a rule whose derived event is still
// consumed elsewhere is only marked pending and is torn down automatically
// once its last consumer goes away. Idempotent.
func (e *Engine) DeleteRule(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pendingDelete[name] {
		return
	}
	e.deleteRuleLocked(name)
}

func (e *Engine) deleteRuleLocked(ruleName string) {
	evtName, ok := e.ruleToEvent[ruleName]
	if !ok {
		return
	}
	gen := e.generators[evtName]

	// Actors for the derived event go first; they must not observe a
	// half-removed rule.
	delete(e.actors, evtName)

	visited, involve := e.reachBackward(gen)

	// A candidate stays when some consumer outside this rule's cone still
	// needs it, and everything it in turn depends on stays with it.
	nonDeletable := make(map[primitive.Primitive]bool)
	for p := range visited {
		if involve[p] < p.Dependers() {
			nonDeletable[p] = true
		}
	}
	propagateNonDeletable(visited, nonDeletable)

	// The rule's derived event may still feed other rules; defer until
	// the last consumer is gone.
	if d := e.dispatch[evtName]; d != nil {
		for _, t := range d.Targets() {
			owner, isPrim := t.Owner().(primitive.Primitive)
			if !isPrim || !visited[owner] || nonDeletable[owner] {
				e.pendingDelete[ruleName] = true
				e.logger.Debug("rule deletion deferred",
					"rule", ruleName, "event", evtName)
				return
			}
		}
	}

	for p := range visited {
		if !nonDeletable[p] {
			e.teardownLocked(p)
		}
	}

	delete(e.ruleToEvent, ruleName)
	delete(e.generators, evtName)
	delete(e.pendingDelete, ruleName)
	e.logger.Debug("rule deleted", "rule", ruleName, "event", evtName)

	e.sweepDispatchersLocked()
}

// reachBackward walks inbound edges (and Checker dependee links) from the
// generator, counting for each reached primitive how many consumer edges
// inside this cone lead to it.
func (e *Engine) reachBackward(gen *primitive.EventGenerator) (map[primitive.Primitive]bool, map[primitive.Primitive]int) {
	visited := make(map[primitive.Primitive]bool)
	involve := make(map[primitive.Primitive]int)

	var queue []primitive.Primitive
	queue = append(queue, gen)
	visited[gen] = true

	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		for _, up := range upstreamOf(p) {
			involve[up]++
			if !visited[up] {
				visited[up] = true
				queue = append(queue, up)
			}
		}
	}
	return visited, involve
}

// upstreamOf lists the primitives p depends on, one entry per edge: the
// owners of the sources feeding its target, plus the checked primitive
// for a Checker. Dispatcher sources have no owner and terminate the walk.
func upstreamOf(p primitive.Primitive) []primitive.Primitive {
	var ups []primitive.Primitive
	if t := p.Target(); t != nil {
		for _, src := range t.Sources() {
			if owner, ok := src.Owner().(primitive.Primitive); ok && owner != nil {
				ups = append(ups, owner)
			}
		}
	}
	if ch, ok := p.(*primitive.Checker); ok {
		if dep, ok := ch.Checked().(primitive.Primitive); ok {
			ups = append(ups, dep)
		}
	}
	return ups
}

// propagateNonDeletable extends the non-deletable set backward: whatever a
// surviving primitive depends on survives too.
func propagateNonDeletable(visited, nonDeletable map[primitive.Primitive]bool) {
	var queue []primitive.Primitive
	for p := range nonDeletable {
		queue = append(queue, p)
	}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		for _, up := range upstreamOf(p) {
			if visited[up] && !nonDeletable[up] {
				nonDeletable[up] = true
				queue = append(queue, up)
			}
		}
	}
}

// teardownLocked unlinks one primitive from the graph and releases its
// resources: every inbound edge is disconnected (decrementing the sending
// owner's depender count per edge), a Checker releases its dependee, and
// system resources are closed.
func (e *Engine) teardownLocked(p primitive.Primitive) {
	if t := p.Target(); t != nil {
		for _, src := range t.Sources() {
			removed := src.Disconnect(t)
			if owner, ok := src.Owner().(primitive.Primitive); ok && owner != nil {
				for i := 0; i < removed; i++ {
					owner.DropDepender()
				}
			}
		}
	}
	if ch, ok := p.(*primitive.Checker); ok {
		if dep, ok := ch.Checked().(primitive.Primitive); ok {
			dep.DropDepender()
		}
	}
	p.Close()

	for i, sd := range e.selfDriven {
		if sd == p {
			e.selfDriven = append(e.selfDriven[:i], e.selfDriven[i+1:]...)
			break
		}
	}
}

// sweepDispatchersLocked drops dispatcher entries that lost their last
// target and have no actors. A drained dispatcher for a derived event is
// the signal that a pending-delete rule can finally be finished.
func (e *Engine) sweepDispatchersLocked() {
	for name, d := range e.dispatch {
		if d.TargetCount() > 0 || len(e.actors[name]) > 0 {
			continue
		}
		delete(e.dispatch, name)
		if _, isDerived := e.generators[name]; !isDerived {
			continue
		}
		for rn, evt := range e.ruleToEvent {
			if evt == name && e.pendingDelete[rn] {
				delete(e.pendingDelete, rn)
				e.deleteRuleLocked(rn)
				break
			}
		}
	}
}
