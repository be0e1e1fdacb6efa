package signal

import "sync"

// Target is the inbound endpoint of a signal edge.
//
// A target belongs to exactly one owner (a primitive, or nil for a
// free-standing target) and dispatches every trigger to that owner's single callback,
// synchronously on the triggering goroutine. It also tracks the sources
// currently connected to it so rule deletion can walk the graph backward.
type Target struct {
	owner any
	fire  func(param, context any)

	mu      sync.Mutex
	sources []*Source
}

// NewTarget creates a target owned by owner that dispatches to fire.
func NewTarget(owner any, fire func(param, context any)) *Target {
	return &Target{owner: owner, fire: fire}
}

// Owner returns the owning primitive, or nil.
func (t *Target) Owner() any { return t.owner }

// Trigger dispatches to the owner callback.
func (t *Target) Trigger(param, context any) {
	t.fire(param, context)
}

// Sources returns a snapshot of the sources connected to this target.
func (t *Target) Sources() []*Source {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Source, len(t.sources))
	copy(out, t.sources)
	return out
}

// connectedFrom records a source; called by Source.Connect.
func (t *Target) connectedFrom(s *Source) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sources = append(t.sources, s)
}

// disconnectedFrom forgets one occurrence of a source; called by
// Source.Disconnect.
func (t *Target) disconnectedFrom(s *Source) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, src := range t.sources {
		if src == s {
			t.sources = append(t.sources[:i], t.sources[i+1:]...)
			return
		}
	}
}
