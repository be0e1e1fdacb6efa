package signal

import (
	"log/slog"
	"sync"
)

// Source is the outbound endpoint of signal edges.
//
// A source holds an ordered list of (target, parameter template, paused)
// entries. Trigger evaluates each live entry's template against the current
// context and dispatches to the target, in insertion order. A macro that
// fails to evaluate is logged and that one target is skipped; fan-out
// continues.
//
// Two lifecycle hooks let the owner manage scarce resources: onFirstActive
// fires on the transition from zero active (unpaused) targets to at least
// one, onAllPaused on the transition back to zero. TimerSource uses these
// to start and stop its platform timer.
//
// Locking: the entry list is mutex-guarded, but Trigger snapshots the live
// entries and fires with the lock released. Targets may therefore call
// Pause or Resume on the very source that is mid-trigger (the countdown
// counter does exactly that after it fires).
type Source struct {
	owner  any
	label  string
	logger *slog.Logger

	mu      sync.Mutex
	entries []*entry

	onFirstActive func()
	onAllPaused   func()
}

type entry struct {
	target *Target
	param  Param
	paused bool
}

// NewSource creates a source. label is diagnostic only (the engine uses
// "dispatch:" plus the event name for dispatcher sources, the primitive
// kind for primitives).
func NewSource(owner any, label string, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{owner: owner, label: label, logger: logger}
}

// Owner returns the owning primitive, or nil for engine dispatcher sources.
func (s *Source) Owner() any { return s.owner }

// Label returns the diagnostic label.
func (s *Source) Label() string { return s.label }

// OnActivation installs the lifecycle hooks. Must be called before the
// source is connected to anything.
func (s *Source) OnActivation(firstActive, allPaused func()) {
	s.onFirstActive = firstActive
	s.onAllPaused = allPaused
}

// Connect appends a target with its per-edge parameter template and links
// the target back to this source.
func (s *Source) Connect(t *Target, param Param) {
	if param == nil {
		param = Literal(nil)
	}
	s.mu.Lock()
	before := s.activeLocked()
	s.entries = append(s.entries, &entry{target: t, param: param})
	after := s.activeLocked()
	s.mu.Unlock()

	t.connectedFrom(s)
	s.transition(before, after)
}

// Disconnect removes every entry for t and unlinks the target.
// Returns the number of entries removed.
func (s *Source) Disconnect(t *Target) int {
	s.mu.Lock()
	before := s.activeLocked()
	removed := 0
	kept := s.entries[:0]
	for _, e := range s.entries {
		if e.target == t {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	after := s.activeLocked()
	s.mu.Unlock()

	for i := 0; i < removed; i++ {
		t.disconnectedFrom(s)
	}
	s.transition(before, after)
	return removed
}

// Pause suppresses future triggers on every edge to t.
func (s *Source) Pause(t *Target) {
	s.mu.Lock()
	before := s.activeLocked()
	for _, e := range s.entries {
		if e.target == t {
			e.paused = true
		}
	}
	after := s.activeLocked()
	s.mu.Unlock()
	s.transition(before, after)
}

// Resume lifts the suppression on every edge to t. Resuming a never-paused
// edge is a no-op.
func (s *Source) Resume(t *Target) {
	s.mu.Lock()
	before := s.activeLocked()
	for _, e := range s.entries {
		if e.target == t {
			e.paused = false
		}
	}
	after := s.activeLocked()
	s.mu.Unlock()
	s.transition(before, after)
}

// Trigger evaluates each live edge's parameter against context and fires
// the target, in insertion order. Evaluation errors skip that edge only.
func (s *Source) Trigger(context any) {
	s.mu.Lock()
	live := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		if !e.paused {
			live = append(live, e)
		}
	}
	s.mu.Unlock()

	for _, e := range live {
		v, err := e.param.Eval(context)
		if err != nil {
			s.logger.Warn("signal parameter evaluation failed",
				"source", s.label, "err", err)
			continue
		}
		e.target.Trigger(v, context)
	}
}

// Targets returns a snapshot of connected targets in insertion order.
func (s *Source) Targets() []*Target {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Target, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.target
	}
	return out
}

// TargetCount returns the number of connections.
func (s *Source) TargetCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// ParamFor returns the parameter template of the first edge to t.
func (s *Source) ParamFor(t *Target) (Param, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.target == t {
			return e.param, true
		}
	}
	return nil, false
}

func (s *Source) activeLocked() int {
	n := 0
	for _, e := range s.entries {
		if !e.paused {
			n++
		}
	}
	return n
}

// transition invokes lifecycle hooks outside the entry lock.
func (s *Source) transition(before, after int) {
	switch {
	case before == 0 && after > 0:
		if s.onFirstActive != nil {
			s.onFirstActive()
		}
	case before > 0 && after == 0:
		if s.onAllPaused != nil {
			s.onAllPaused()
		}
	}
}
