package engine

import (
	"errors"
	"reflect"
	"sort"

	"github.com/kestrelsec/kestrel/internal/primitive"
	"github.com/kestrelsec/kestrel/internal/rule"
	"github.com/kestrelsec/kestrel/internal/signal"
)

// AddRules parses, validates, and compiles a batch of rules into the live
// graph. The batch is atomic: any failure rolls back every rule it
// installed and leaves the engine bitwise-identical to its prior state.
func (e *Engine) AddRules(text string) error {
	doc, err := rule.Parse([]byte(text))
	if err != nil {
		return err
	}
	if errs := rule.Validate(doc); len(errs) > 0 {
		return errors.Join(errs...)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range doc.Rules {
		if _, exists := e.ruleToEvent[doc.Rules[i].RuleName]; exists {
			return compileErr(ErrCodeRuleExists, doc.Rules[i].RuleName, "",
				"rule name already installed")
		}
	}

	var installed []string
	for i := range doc.Rules {
		if err := e.installRule(&doc.Rules[i]); err != nil {
			for j := len(installed) - 1; j >= 0; j-- {
				e.deleteRuleLocked(installed[j])
			}
			return err
		}
		installed = append(installed, doc.Rules[i].RuleName)
	}
	return nil
}

// inboundEdge is a resolved connection into the node being compiled.
type inboundEdge struct {
	src   *signal.Source
	owner primitive.Primitive // nil for dispatcher sources
	param signal.Param
	raw   any
}

// rawEdge is a declared connection before sender resolution.
type rawEdge struct {
	fromPrim  int // index into r.Primitives, or -1 for a source event
	fromEvent string
	edge      rule.Edge
}

func (e *Engine) installRule(r *rule.Rule) (err error) {
	byName := make(map[string]int, len(r.Primitives))
	for i := range r.Primitives {
		byName[r.Primitives[i].Name] = i
	}

	order, err := topoOrder(r, byName)
	if err != nil {
		return err
	}
	inbound := declaredInbound(r, byName)

	// Rollback bookkeeping for a partial install.
	var created []primitive.Primitive
	var createdDispatch []string
	defer func() {
		if err == nil {
			return
		}
		for j := len(created) - 1; j >= 0; j-- {
			e.teardownLocked(created[j])
		}
		for _, name := range createdDispatch {
			if d, ok := e.dispatch[name]; ok && d.TargetCount() == 0 {
				delete(e.dispatch, name)
			}
		}
	}()

	settled := make(map[string]primitive.Primitive, len(r.Primitives))
	var generator *primitive.EventGenerator

	for _, idx := range order {
		n := &r.Primitives[idx]
		cfg := primitive.Config(n.Parameters)

		edges, eerr := e.resolveInbound(r, n.Name, inbound[idx], settled, &createdDispatch)
		if eerr != nil {
			return eerr
		}

		p, perr := primitive.New(n.Type, e.env())
		if perr != nil {
			return compileErr(ErrCodeSetupRejected, r.RuleName, n.Name, "%v", perr)
		}
		if p.Target() == nil && len(edges) > 0 {
			return compileErr(ErrCodeNotTargetable, r.RuleName, n.Name,
				"%s accepts no inbound signals", n.Type)
		}
		if p.Target() != nil && len(edges) == 0 {
			return compileErr(ErrCodeUntargeted, r.RuleName, n.Name,
				"no inbound edge reaches this primitive")
		}

		if shared := e.findShared(p, cfg, edges, settled); shared != nil {
			settled[n.Name] = shared
			continue
		}

		if serr := p.Setup(cfg, settled); serr != nil {
			return &CompileError{Code: ErrCodeSetupRejected, Rule: r.RuleName, Node: n.Name, Err: serr}
		}

		// Checked before any wiring so a rejected node needs no unwind.
		if eg, ok := p.(*primitive.EventGenerator); ok {
			if _, taken := e.generators[eg.EventName()]; taken {
				p.Close()
				return compileErr(ErrCodeEventCollision, r.RuleName, n.Name,
					"derived event %q is already produced by another rule", eg.EventName())
			}
			generator = eg
		}

		for _, in := range edges {
			in.src.Connect(p.Target(), in.param)
			if in.owner != nil {
				in.owner.AddDepender()
			}
		}
		if ch, ok := p.(*primitive.Checker); ok {
			if dep, ok := ch.Checked().(primitive.Primitive); ok {
				dep.AddDepender()
			}
		}
		if p.Target() == nil {
			e.selfDriven = append(e.selfDriven, p)
		}
		created = append(created, p)
		settled[n.Name] = p
	}

	// Validation guarantees exactly one generator node; it is never
	// shared, so it was created above.
	e.ruleToEvent[r.RuleName] = generator.EventName()
	e.generators[generator.EventName()] = generator
	return nil
}

// topoOrder sorts the rule's primitives so that every sender precedes its
// targets and every Checker follows its check target. Declaration order
// breaks ties, keeping compilation deterministic.
func topoOrder(r *rule.Rule, byName map[string]int) ([]int, error) {
	n := len(r.Primitives)
	indeg := make([]int, n)
	adj := make([][]int, n)
	addEdge := func(from, to int) {
		adj[from] = append(adj[from], to)
		indeg[to]++
	}
	for i := range r.Primitives {
		node := &r.Primitives[i]
		for _, to := range sortedKeys(node.ConnectTo) {
			addEdge(i, byName[to])
		}
		if node.Type == primitive.KindChecker {
			if target, ok := node.Parameters["CheckTarget"].(string); ok {
				if ti, ok := byName[target]; ok && ti != i {
					addEdge(ti, i)
				}
			}
		}
	}

	order := make([]int, 0, n)
	placed := make([]bool, n)
	for len(order) < n {
		advanced := false
		for i := 0; i < n; i++ {
			if placed[i] || indeg[i] != 0 {
				continue
			}
			placed[i] = true
			order = append(order, i)
			for _, to := range adj[i] {
				indeg[to]--
			}
			advanced = true
		}
		if !advanced {
			return nil, compileErr(ErrCodeCycle, r.RuleName, "", "primitive graph has a cycle")
		}
	}
	return order, nil
}

// declaredInbound inverts the rule's ConnectTo maps: for each primitive
// index, the declared edges into it, source events first, in declaration
// order.
func declaredInbound(r *rule.Rule, byName map[string]int) map[int][]rawEdge {
	inbound := make(map[int][]rawEdge)
	for si := range r.SourceEvents {
		se := &r.SourceEvents[si]
		for _, to := range sortedKeys(se.ConnectTo) {
			ti := byName[to]
			inbound[ti] = append(inbound[ti], rawEdge{
				fromPrim: -1, fromEvent: se.EventName, edge: se.ConnectTo[to]})
		}
	}
	for i := range r.Primitives {
		node := &r.Primitives[i]
		for _, to := range sortedKeys(node.ConnectTo) {
			ti := byName[to]
			inbound[ti] = append(inbound[ti], rawEdge{
				fromPrim: i, edge: node.ConnectTo[to]})
		}
	}
	return inbound
}

// resolveInbound turns declared edges into live sources with compiled
// parameter templates.
func (e *Engine) resolveInbound(r *rule.Rule, nodeName string, raws []rawEdge,
	settled map[string]primitive.Primitive, createdDispatch *[]string) ([]inboundEdge, error) {

	edges := make([]inboundEdge, 0, len(raws))
	for _, re := range raws {
		var src *signal.Source
		var owner primitive.Primitive

		if re.fromPrim < 0 {
			if re.edge.TriggerOnNegative {
				return nil, compileErr(ErrCodeNoNegative, r.RuleName, nodeName,
					"source event %q has no negative output", re.fromEvent)
			}
			if _, exists := e.dispatch[re.fromEvent]; !exists {
				*createdDispatch = append(*createdDispatch, re.fromEvent)
			}
			src = e.dispatcherFor(re.fromEvent)
		} else {
			senderName := r.Primitives[re.fromPrim].Name
			sender := settled[senderName]
			owner = sender
			if re.edge.TriggerOnNegative {
				src = sender.Negative()
				if src == nil {
					return nil, compileErr(ErrCodeNoNegative, r.RuleName, nodeName,
						"%s %q has no negative output", sender.Kind(), senderName)
				}
			} else {
				src = sender.Source()
				if src == nil {
					return nil, compileErr(ErrCodeNoNegative, r.RuleName, nodeName,
						"%s %q has no output signal", sender.Kind(), senderName)
				}
			}
		}

		param, err := signal.Compile(re.edge.SignalParameter, e.meta)
		if err != nil {
			return nil, &CompileError{Code: ErrCodeBadMacro, Rule: r.RuleName, Node: nodeName, Err: err}
		}
		edges = append(edges, inboundEdge{src: src, owner: owner, param: param,
			raw: re.edge.SignalParameter})
	}
	return edges, nil
}

// findShared runs the sharing detector: an existing primitive is reused
// when kind, configuration, inbound source set, and per-edge parameter
// templates all coincide. Self-driven primitives, which have no inbound
// sources to anchor the search, are matched against the engine's registry
// of live self-driven nodes.
func (e *Engine) findShared(p primitive.Primitive, cfg primitive.Config,
	edges []inboundEdge, settled map[string]primitive.Primitive) primitive.Primitive {

	if !p.Shareable() {
		return nil
	}
	if len(edges) == 0 {
		for _, cand := range e.selfDriven {
			if cand.Kind() == p.Kind() && cand.SameConfig(cfg, settled) {
				return cand
			}
		}
		return nil
	}

	seen := make(map[primitive.Primitive]bool)
	for _, t := range edges[0].src.Targets() {
		cand, ok := t.Owner().(primitive.Primitive)
		if !ok || cand == nil || seen[cand] {
			continue
		}
		seen[cand] = true
		if cand.Kind() != p.Kind() || !cand.Shareable() {
			continue
		}
		if !cand.SameConfig(cfg, settled) {
			continue
		}
		if inboundMatches(cand, edges) {
			return cand
		}
	}
	return nil
}

// inboundMatches compares a candidate's live inbound edges against the
// edges the new node would get: same sources (as a multiset) carrying
// value-equal parameter templates.
func inboundMatches(cand primitive.Primitive, edges []inboundEdge) bool {
	t := cand.Target()
	if t == nil {
		return false
	}
	sources := t.Sources()
	if len(sources) != len(edges) {
		return false
	}
	used := make([]bool, len(sources))
	for _, in := range edges {
		found := false
		for i, s := range sources {
			if used[i] || s != in.src {
				continue
			}
			p, ok := s.ParamFor(t)
			if !ok || !reflect.DeepEqual(p.Raw(), in.raw) {
				continue
			}
			used[i] = true
			found = true
			break
		}
		if !found {
			return false
		}
	}
	return true
}

func sortedKeys(m map[string]rule.Edge) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
