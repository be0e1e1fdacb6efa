// Package rule defines the in-memory rule description the compiler
// consumes, its text decoding (YAML, of which JSON documents are a
// subset), and its validation.
package rule

// Reserved event names.
const (
	// AllEventsName subscribes a source-event node to every event.
	AllEventsName = "AllEvents"

	// SyntheticSourceName is the reserved empty event name; rule documents
	// must not use it. The compiler wires self-driven primitives through a
	// registry, not through a source event of this name.
	SyntheticSourceName = ""
)

// Document is a batch of rule descriptions, loaded and rolled back as a
// unit.
type Document struct {
	Rules []Rule `yaml:"Rules"`
}

// Rule is one declarative dataflow graph.
type Rule struct {
	RuleName     string        `yaml:"RuleName"`
	SourceEvents []SourceEvent `yaml:"SourceEvents"`
	Primitives   []Node        `yaml:"Primitives"`
}

// SourceEvent roots the graph at an engine dispatcher for one event name.
type SourceEvent struct {
	EventName string          `yaml:"EventName"`
	ConnectTo map[string]Edge `yaml:"ConnectTo"`
}

// Node declares a primitive: its registered type, its rule-local name, its
// configuration, and its outbound edges.
type Node struct {
	Type       string          `yaml:"Type"`
	Name       string          `yaml:"Name"`
	Parameters map[string]any  `yaml:"Parameters"`
	ConnectTo  map[string]Edge `yaml:"ConnectTo"`
}

// Edge carries the per-connection signal parameter template and selects
// the sender's negative port when TriggerOnNegative is set.
type Edge struct {
	SignalParameter   any  `yaml:"SignalParameter"`
	TriggerOnNegative bool `yaml:"TriggerOnNegative"`
}
