// Package engine hosts the live primitive graph: it compiles rule
// descriptions into shared primitives, routes incoming events through
// dispatcher signal sources, and tears rules down by reverse reachability.
package engine

import (
	"context"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/kestrelsec/kestrel/event"
	"github.com/kestrelsec/kestrel/internal/primitive"
	"github.com/kestrelsec/kestrel/internal/rule"
	"github.com/kestrelsec/kestrel/internal/signal"
)

// Actor is an external callback invoked when an event with its registered
// name is produced, on the producing goroutine.
type Actor func(event.Event)

// Recorder receives one row per processed event. The sqlite journal
// implements it; the zero engine records nothing.
type Recorder interface {
	Record(seq int64, token, name string, derived bool) error
}

// Engine is one independent CEP instance.
//
// Rule lifecycle calls (AddRules, DeleteRule) take the write lock and must
// be serialized by the caller; event ingestion takes short read locks for
// map lookups and propagates with no engine lock held, so concurrent
// ProcessEvent calls, including reentrant ones from event generators and
// ticks from timer goroutines, never deadlock on engine state.
type Engine struct {
	meta   event.Event
	logger *slog.Logger
	tracer trace.Tracer
	clock  *Clock
	now    func() time.Time
	rec    Recorder

	mu            sync.RWMutex
	dispatch      map[string]*signal.Source
	actors        map[string][]Actor
	ruleToEvent   map[string]string
	generators    map[string]*primitive.EventGenerator
	selfDriven    []primitive.Primitive
	pendingDelete map[string]bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger for runtime warnings and debug output.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithTracerProvider enables dispatch spans. The default is a no-op.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) { e.tracer = tp.Tracer("kestrel/engine") }
}

// WithRecorder journals every processed event.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.rec = r }
}

// WithNow substitutes the wall clock used by time-windowed primitives.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine around the host's meta event, which resolves
// property names to ids and acts as the derived-event factory.
func New(meta event.Event, opts ...Option) *Engine {
	e := &Engine{
		meta:          meta,
		logger:        slog.Default(),
		tracer:        noop.NewTracerProvider().Tracer("kestrel/engine"),
		clock:         NewClock(),
		now:           time.Now,
		dispatch:      make(map[string]*signal.Source),
		actors:        make(map[string][]Actor),
		ruleToEvent:   make(map[string]string),
		generators:    make(map[string]*primitive.EventGenerator),
		pendingDelete: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// env builds the environment injected into primitives.
func (e *Engine) env() *primitive.Env {
	return &primitive.Env{
		Meta:   e.meta,
		Emit:   e.emitDerived,
		Logger: e.logger,
		Now:    e.now,
	}
}

// ProcessEvent routes one host event through the graph: the event-name
// dispatcher first, then the AllEvents dispatcher, then the registered
// actors in priority order. Propagation is synchronous and depth-first;
// derived events produced along the way re-enter the engine before the
// call returns.
func (e *Engine) ProcessEvent(ctx context.Context, ev event.Event) {
	if ev == nil {
		return
	}
	_, span := e.tracer.Start(ctx, "kestrel.process_event",
		trace.WithAttributes(attribute.String("event.name", ev.Name())))
	defer span.End()

	e.process(ev, false)
}

// emitDerived is the EventGenerator sink.
func (e *Engine) emitDerived(ev event.Event) {
	e.process(ev, true)
}

func (e *Engine) process(ev event.Event, derived bool) {
	name := ev.Name()
	seq := e.clock.Next()
	token := uuid.NewString()

	if e.rec != nil {
		if err := e.rec.Record(seq, token, name, derived); err != nil {
			e.logger.Warn("journal write failed", "event", name, "err", err)
		}
	}
	e.logger.Debug("processing event",
		"event", name, "seq", seq, "token", token, "derived", derived)

	e.mu.RLock()
	dispatcher := e.dispatch[name]
	var allEvents *signal.Source
	if name != rule.AllEventsName {
		allEvents = e.dispatch[rule.AllEventsName]
	}
	actors := make([]Actor, len(e.actors[name]))
	copy(actors, e.actors[name])
	e.mu.RUnlock()

	if dispatcher != nil {
		dispatcher.Trigger(ev)
	}
	if allEvents != nil {
		allEvents.Trigger(ev)
	}
	for _, actor := range actors {
		actor(ev)
	}
}

// RegisterActor subscribes fn to events named name. High-priority actors
// run before previously registered ones.
func (e *Engine) RegisterActor(name string, fn Actor, highPriority bool) {
	if fn == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if highPriority {
		e.actors[name] = append([]Actor{fn}, e.actors[name]...)
	} else {
		e.actors[name] = append(e.actors[name], fn)
	}
}

// UnregisterActor removes fn by identity. Unknown subscriptions are
// ignored.
func (e *Engine) UnregisterActor(name string, fn Actor) {
	if fn == nil {
		return
	}
	ptr := reflect.ValueOf(fn).Pointer()
	e.mu.Lock()
	defer e.mu.Unlock()
	list := e.actors[name]
	for i, a := range list {
		if reflect.ValueOf(a).Pointer() == ptr {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(e.actors, name)
	} else {
		e.actors[name] = list
	}
}

// ActorCount returns the number of actors registered for name.
func (e *Engine) ActorCount(name string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.actors[name])
}

// RuleNames returns the installed rule names, including pending-delete
// ones, unsorted.
func (e *Engine) RuleNames() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.ruleToEvent))
	for name := range e.ruleToEvent {
		out = append(out, name)
	}
	return out
}

// DerivedEvent returns the derived event name a rule produces.
func (e *Engine) DerivedEvent(ruleName string) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	name, ok := e.ruleToEvent[ruleName]
	return name, ok
}

// PendingDelete reports whether a rule is awaiting consumers to drain.
func (e *Engine) PendingDelete(ruleName string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.pendingDelete[ruleName]
}

// dispatcherFor returns the dispatcher source for an event name, creating
// it when absent. Caller holds the write lock.
func (e *Engine) dispatcherFor(name string) *signal.Source {
	if s, ok := e.dispatch[name]; ok {
		return s
	}
	s := signal.NewSource(nil, "dispatch:"+name, e.logger)
	e.dispatch[name] = s
	return s
}
