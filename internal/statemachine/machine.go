// Package statemachine provides a small generic, event-driven state machine.
//
// States and events are ordinary Go values. Transitions are registered per
// (state type, event type) pair with typed callbacks, so a transition
// function receives the concrete state and event it was registered for:
//
//	b := statemachine.NewBuilder[State, Event]()
//	b.InitialState(Idle{})
//	statemachine.AddState[Running](b)
//	statemachine.AddFinalState[Done](b)
//	statemachine.Transition(b, func(Idle, Start) State { return Running{} })
//	statemachine.Transition(b, func(Running, Finish) State { return Done{} })
//	m, err := b.Build()
//
// A transition may also be registered for an interface type; it then applies
// to every state implementing that interface that has no exact transition for
// the event. When several such transitions match, the one registered first
// wins.
package statemachine

import (
	"context"
	"log/slog"
	"reflect"
	"sync"
)

// EnterFunc runs when a state is entered. prev and event are zero values when
// the initial state is entered at construction.
type EnterFunc[S, E any] func(prev S, event E, next S)

// ExitFunc runs when a state is left. event is the zero value when a final
// state is exited, which happens immediately after it is entered.
type ExitFunc[S, E any] func(current S, event E)

type stateDef[S, E any] struct {
	typ     reflect.Type
	final   bool
	onEnter EnterFunc[S, E]
	onExit  ExitFunc[S, E]
}

type transition[S, E any] struct {
	from  reflect.Type
	event reflect.Type
	// apply returns the next state and whether the guard passed.
	apply func(state S, event E) (S, bool)
}

func (t *transition[S, E]) matches(state, event reflect.Type) bool {
	return typeMatches(t.from, state) && typeMatches(t.event, event)
}

func typeMatches(want, got reflect.Type) bool {
	if want == got {
		return true
	}
	return want.Kind() == reflect.Interface && got != nil && got.Implements(want)
}

type transitionKey struct {
	state reflect.Type
	event reflect.Type
}

// Machine holds the current state and applies events to it. It is safe for
// concurrent use; Process calls are serialized. Callbacks run while the
// machine's lock is held and must not call Process.
type Machine[S, E any] struct {
	mu          sync.Mutex
	current     S
	states      map[reflect.Type]*stateDef[S, E]
	exact       map[transitionKey]*transition[S, E]
	transitions []*transition[S, E] // registration order, for interface fallback
	logger      *slog.Logger

	subMu sync.Mutex
	subs  map[chan S]struct{}
}

// Current returns a snapshot of the current state.
func (m *Machine[S, E]) Current() S {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// IsFinal reports whether the machine has reached a final state.
func (m *Machine[S, E]) IsFinal() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isFinal(m.current)
}

func (m *Machine[S, E]) isFinal(s S) bool {
	def := m.states[reflect.TypeOf(s)]
	return def != nil && def.final
}

// Process applies event to the current state and returns the resulting
// state. Events without a matching transition, events rejected by a guard and
// events received in a final state leave the state unchanged and run no
// callbacks.
func (m *Machine[S, E]) Process(event E) S {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.current
	if m.isFinal(prev) {
		return prev
	}

	t := m.lookup(reflect.TypeOf(prev), reflect.TypeOf(event))
	if t == nil {
		m.logger.Debug("no transition", "state", typeName(prev), "event", typeName(event))
		return prev
	}
	next, ok := t.apply(prev, event)
	if !ok {
		m.logger.Debug("transition guard rejected event", "state", typeName(prev), "event", typeName(event))
		return prev
	}

	if def := m.states[reflect.TypeOf(prev)]; def != nil && def.onExit != nil {
		def.onExit(prev, event)
	}
	m.current = next
	nextDef := m.states[reflect.TypeOf(next)]
	if nextDef != nil && nextDef.onEnter != nil {
		nextDef.onEnter(prev, event, next)
	}
	if nextDef != nil && nextDef.final && nextDef.onExit != nil {
		var none E
		nextDef.onExit(next, none)
	}
	m.logger.Debug("state changed", "from", typeName(prev), "to", typeName(next), "event", typeName(event))

	m.publish(next)
	return next
}

func (m *Machine[S, E]) lookup(state, event reflect.Type) *transition[S, E] {
	if t, ok := m.exact[transitionKey{state, event}]; ok {
		return t
	}
	for _, t := range m.transitions {
		if t.matches(state, event) {
			return t
		}
	}
	return nil
}

// Subscribe returns a channel that receives the current state immediately
// and then every later state. Delivery is conflated: a slow reader sees the
// most recent state and may miss intermediate ones, and Process never blocks
// on a reader. The channel is closed when ctx is done.
func (m *Machine[S, E]) Subscribe(ctx context.Context) <-chan S {
	ch := make(chan S, 1)

	// Holding mu orders the initial value before any later publish.
	m.mu.Lock()
	ch <- m.current
	m.subMu.Lock()
	m.subs[ch] = struct{}{}
	m.subMu.Unlock()
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.subMu.Lock()
		delete(m.subs, ch)
		close(ch)
		m.subMu.Unlock()
	}()
	return ch
}

func (m *Machine[S, E]) publish(s S) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for ch := range m.subs {
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}

func typeName(v any) string {
	t := reflect.TypeOf(v)
	if t == nil {
		return "<nil>"
	}
	return t.Name()
}
