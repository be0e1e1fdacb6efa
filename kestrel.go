// Package kestrel is an embeddable complex event processing engine.
//
// Rules are declarative dataflow graphs of shared, stateful primitives.
// The engine compiles rule descriptions into a live graph, routes host
// events through it, and feeds derived events produced by terminal
// generators back into itself before invoking registered actors.
//
// A minimal embedding:
//
//	meta := event.NewAutoMeta()
//	eng := kestrel.New(meta)
//	if err := eng.AddRules(rulesText); err != nil { ... }
//	eng.RegisterActor("LoginStorm", func(ev event.Event) { ... }, false)
//	eng.ProcessEvent(ctx, incoming)
//
// Multiple engines are fully independent; the package keeps no process
// state beyond the open primitive registry.
package kestrel

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/kestrelsec/kestrel/event"
	"github.com/kestrelsec/kestrel/internal/engine"
)

// Actor is an external callback invoked when an event with its registered
// name is produced. Actors run synchronously on the producing goroutine.
type Actor func(event.Event)

// Recorder receives one row per processed event, host-supplied and
// derived alike. Implementations must be safe for concurrent use; the
// timer thread records through the same instance as the caller.
type Recorder interface {
	Record(seq int64, token, name string, derived bool) error
}

// Option configures an Engine.
type Option func(*settings)

type settings struct {
	logger *slog.Logger
	tracer trace.TracerProvider
	rec    Recorder
	now    func() time.Time
}

// WithLogger sets the logger for runtime warnings and debug output.
// The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithTracerProvider enables a span around every ProcessEvent call.
// The default is a no-op tracer.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *settings) { s.tracer = tp }
}

// WithRecorder journals every processed event through r.
func WithRecorder(r Recorder) Option {
	return func(s *settings) { s.rec = r }
}

// WithNow substitutes the wall clock used by time-windowed primitives.
// Tests use it to drive expiry deterministically.
func WithNow(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

// Engine is one independent CEP instance.
//
// Rule lifecycle calls must be serialized by the caller. Event ingestion
// may run concurrently with itself, including the timer goroutines the
// engine's TimerSource primitives run on.
type Engine struct {
	inner *engine.Engine
}

// New creates an engine around the host's meta event. The meta event
// resolves property names to ids at rule-load time and acts as the
// factory for derived events.
func New(meta event.Event, opts ...Option) *Engine {
	var s settings
	for _, opt := range opts {
		opt(&s)
	}
	var engOpts []engine.Option
	if s.logger != nil {
		engOpts = append(engOpts, engine.WithLogger(s.logger))
	}
	if s.tracer != nil {
		engOpts = append(engOpts, engine.WithTracerProvider(s.tracer))
	}
	if s.rec != nil {
		engOpts = append(engOpts, engine.WithRecorder(s.rec))
	}
	if s.now != nil {
		engOpts = append(engOpts, engine.WithNow(s.now))
	}
	return &Engine{inner: engine.New(meta, engOpts...)}
}

// AddRules parses, validates, and compiles a batch of rules. The batch is
// atomic: on any error nothing is installed.
func (e *Engine) AddRules(rulesText string) error {
	return e.inner.AddRules(rulesText)
}

// DeleteRule removes a rule. Primitives shared with other rules survive;
// a rule whose derived event other rules still consume is deferred until
// its last consumer is deleted. Idempotent.
func (e *Engine) DeleteRule(ruleName string) {
	e.inner.DeleteRule(ruleName)
}

// RegisterActor subscribes fn to events named eventName. High-priority
// actors run before previously registered ones.
func (e *Engine) RegisterActor(eventName string, fn Actor, highPriority bool) {
	e.inner.RegisterActor(eventName, engine.Actor(fn), highPriority)
}

// UnregisterActor removes a previously registered actor by identity.
func (e *Engine) UnregisterActor(eventName string, fn Actor) {
	e.inner.UnregisterActor(eventName, engine.Actor(fn))
}

// ProcessEvent routes one event through the graph. Propagation is
// synchronous: all direct and derived effects, including actor calls,
// complete before it returns.
func (e *Engine) ProcessEvent(ctx context.Context, ev event.Event) {
	e.inner.ProcessEvent(ctx, ev)
}

// RuleNames returns the names of the installed rules, unsorted.
func (e *Engine) RuleNames() []string {
	return e.inner.RuleNames()
}

// DerivedEvent returns the derived event name a rule produces.
func (e *Engine) DerivedEvent(ruleName string) (string, bool) {
	return e.inner.DerivedEvent(ruleName)
}

// Describe renders the live graph for diagnostics.
func (e *Engine) Describe() string {
	return e.inner.Describe()
}
