// Package event defines the host event contract the engine operates on.
//
// The engine never inspects event internals. It resolves property names to
// integer ids once, at rule load time, against a meta event, and afterwards
// reads and writes properties by id only. Hosts with their own event
// representation implement Event; Schema and MapEvent below are the
// reference implementation used by the CLI and the test suite.
package event

// Event is the opaque event abstraction provided by the host.
//
// Property access is id-based: PropertyID resolves a name to a non-negative
// id, or a negative value when the name is unknown. Get and Set operate on
// ids obtained that way. NewInstance is a factory: called on any instance
// (typically the meta event handed to the engine) it yields a fresh event
// bound to the given name.
//
// Values are dynamically typed: string, int64, bool, or an arbitrary host
// object. Events are immutable from the engine's perspective once they have
// been dispatched; only generators mutate the instances they create.
type Event interface {
	// Name returns the event name.
	Name() string

	// NewInstance creates a fresh event bound to name.
	NewInstance(name string) Event

	// PropertyID resolves a property name to its id.
	// Returns a negative value for an unknown name.
	PropertyID(name string) int

	// Get returns the value of the property, or nil when unset.
	Get(id int) any

	// Set stores a value under the property id.
	Set(id int, value any)
}
