package statemachine

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
)

// StateOption configures a registered state.
type StateOption[S, E any] func(*stateDef[S, E])

// OnEnter sets the callback run when the state is entered.
func OnEnter[S, E any](fn EnterFunc[S, E]) StateOption[S, E] {
	return func(d *stateDef[S, E]) { d.onEnter = fn }
}

// OnExit sets the callback run when the state is left.
func OnExit[S, E any](fn ExitFunc[S, E]) StateOption[S, E] {
	return func(d *stateDef[S, E]) { d.onExit = fn }
}

// Builder collects states and transitions. Registration mistakes are
// reported by Build.
type Builder[S, E any] struct {
	initial     *S
	order       []*stateDef[S, E]
	states      map[reflect.Type]*stateDef[S, E]
	transitions []*transition[S, E]
	logger      *slog.Logger
	err         error
}

// NewBuilder returns an empty builder.
func NewBuilder[S, E any]() *Builder[S, E] {
	return &Builder[S, E]{
		states: make(map[reflect.Type]*stateDef[S, E]),
		logger: slog.Default(),
	}
}

// WithLogger sets the logger used for transition tracing.
func (b *Builder[S, E]) WithLogger(logger *slog.Logger) *Builder[S, E] {
	b.logger = logger
	return b
}

// InitialState registers the state the machine starts in.
func (b *Builder[S, E]) InitialState(s S, opts ...StateOption[S, E]) *Builder[S, E] {
	if b.initial != nil {
		b.fail(errors.New("initial state is already set"))
		return b
	}
	b.initial = &s
	b.register(reflect.TypeOf(s), false, opts)
	return b
}

// AddState registers T as an intermediate state.
func AddState[T, S, E any](b *Builder[S, E], opts ...StateOption[S, E]) {
	b.register(reflect.TypeFor[T](), false, opts)
}

// AddFinalState registers T as a final state: once entered, the machine
// ignores every further event.
func AddFinalState[T, S, E any](b *Builder[S, E], opts ...StateOption[S, E]) {
	b.register(reflect.TypeFor[T](), true, opts)
}

func (b *Builder[S, E]) register(t reflect.Type, final bool, opts []StateOption[S, E]) {
	if t == nil {
		b.fail(errors.New("state type must not be nil"))
		return
	}
	if _, dup := b.states[t]; dup {
		b.fail(fmt.Errorf("%s is already registered as a state", t.Name()))
		return
	}
	def := &stateDef[S, E]{typ: t, final: final}
	for _, opt := range opts {
		opt(def)
	}
	b.states[t] = def
	b.order = append(b.order, def)
}

// Transition registers next as the transition taken when an event of type Ev
// arrives while the machine is in a state of type From. From and Ev may be
// interface types. When guards are given, all of them must return true for
// the transition to be taken.
func Transition[From, Ev, S, E any](b *Builder[S, E], next func(From, Ev) S, guards ...func(From, Ev) bool) {
	t := &transition[S, E]{
		from:  reflect.TypeFor[From](),
		event: reflect.TypeFor[Ev](),
		apply: func(state S, event E) (S, bool) {
			from, ok := any(state).(From)
			if !ok {
				return state, false
			}
			ev, ok := any(event).(Ev)
			if !ok {
				return state, false
			}
			for _, guard := range guards {
				if !guard(from, ev) {
					return state, false
				}
			}
			return next(from, ev), true
		},
	}
	for _, existing := range b.transitions {
		if existing.from == t.from && existing.event == t.event {
			b.fail(fmt.Errorf("transition %s -> %s is already registered", t.from.Name(), t.event.Name()))
			return
		}
	}
	b.transitions = append(b.transitions, t)
}

func (b *Builder[S, E]) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Build validates the definition, enters the initial state and returns the
// machine.
func (b *Builder[S, E]) Build() (*Machine[S, E], error) {
	if b.initial == nil {
		return nil, errors.New("initial state is required")
	}
	if b.err != nil {
		return nil, b.err
	}
	if len(b.states) < 2 {
		return nil, errors.New("at least two states must be defined")
	}
	if len(b.transitions) == 0 {
		return nil, errors.New("at least one transition must be defined")
	}

	var stuck []string
	for _, def := range b.order {
		if def.final || b.hasOutgoing(def.typ) {
			continue
		}
		stuck = append(stuck, def.typ.Name())
	}
	if len(stuck) > 0 {
		return nil, fmt.Errorf("only the final states can have no transitions; states without transitions: [ %s ]",
			strings.Join(stuck, ", "))
	}

	m := &Machine[S, E]{
		current: *b.initial,
		states:  b.states,
		exact:   make(map[transitionKey]*transition[S, E]),
		logger:  b.logger,
		subs:    make(map[chan S]struct{}),
	}
	for _, t := range b.transitions {
		if t.from.Kind() != reflect.Interface && t.event.Kind() != reflect.Interface {
			m.exact[transitionKey{t.from, t.event}] = t
		}
		m.transitions = append(m.transitions, t)
	}

	if def := m.states[reflect.TypeOf(m.current)]; def != nil && def.onEnter != nil {
		var prev S
		var event E
		def.onEnter(prev, event, m.current)
	}
	return m, nil
}

func (b *Builder[S, E]) hasOutgoing(state reflect.Type) bool {
	for _, t := range b.transitions {
		if typeMatches(t.from, state) {
			return true
		}
	}
	return false
}
