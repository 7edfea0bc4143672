package indexer

import (
	"log/slog"
	"time"

	"github.com/wesm/msgsearch/internal/statemachine"
)

// State is the lifecycle state of the full-text index.
type State interface {
	// Name is the state's stable, lower-case identifier.
	Name() string
}

// Idle means no rebuild has run since startup.
type Idle struct{}

// Rebuilding means a rebuild is in progress. Attempt counts from 1.
type Rebuilding struct {
	Attempt int
}

// Ready means the last rebuild completed.
type Ready struct {
	Indexed  int64
	Finished time.Time
}

// Failed means the last attempt failed. A Retry event starts another attempt
// while Attempt is within the retry budget.
type Failed struct {
	Attempt int
	Err     string
}

// Closed is final; the indexer accepts no more work.
type Closed struct{}

func (Idle) Name() string       { return "idle" }
func (Rebuilding) Name() string { return "rebuilding" }
func (Ready) Name() string      { return "ready" }
func (Failed) Name() string     { return "failed" }
func (Closed) Name() string     { return "closed" }

// Event drives the index state machine.
type Event interface {
	event()
}

type (
	start    struct{}
	finished struct{ indexed int64 }
	errored  struct{ err error }
	retry    struct{}
	shutdown struct{}
)

func (start) event()    {}
func (finished) event() {}
func (errored) event()  {}
func (retry) event()    {}
func (shutdown) event() {}

// newMachine wires the index lifecycle:
//
//	Idle|Ready|Failed --start--> Rebuilding --finished--> Ready
//	Rebuilding --errored--> Failed --retry (within budget)--> Rebuilding
//	any --shutdown--> Closed
func newMachine(maxRetries int, logger *slog.Logger) (*statemachine.Machine[State, Event], error) {
	b := statemachine.NewBuilder[State, Event]().WithLogger(logger)
	b.InitialState(Idle{})
	statemachine.AddState[Rebuilding](b, statemachine.OnEnter[State, Event](func(prev State, _ Event, next State) {
		logger.Info("index rebuild started", "attempt", next.(Rebuilding).Attempt, "from", prev.Name())
	}))
	statemachine.AddState[Ready](b, statemachine.OnEnter[State, Event](func(_ State, _ Event, next State) {
		logger.Info("index rebuild finished", "indexed", next.(Ready).Indexed)
	}))
	statemachine.AddState[Failed](b, statemachine.OnEnter[State, Event](func(_ State, _ Event, next State) {
		f := next.(Failed)
		logger.Warn("index rebuild failed", "attempt", f.Attempt, "error", f.Err)
	}))
	statemachine.AddFinalState[Closed](b)

	statemachine.Transition[Idle, start](b, func(Idle, start) State { return Rebuilding{Attempt: 1} })
	statemachine.Transition[Ready, start](b, func(Ready, start) State { return Rebuilding{Attempt: 1} })
	statemachine.Transition[Failed, start](b, func(Failed, start) State { return Rebuilding{Attempt: 1} })
	statemachine.Transition[Rebuilding, finished](b, func(_ Rebuilding, e finished) State {
		return Ready{Indexed: e.indexed, Finished: time.Now()}
	})
	statemachine.Transition[Rebuilding, errored](b, func(r Rebuilding, e errored) State {
		return Failed{Attempt: r.Attempt, Err: e.err.Error()}
	})
	statemachine.Transition[Failed, retry](b,
		func(f Failed, _ retry) State { return Rebuilding{Attempt: f.Attempt + 1} },
		func(f Failed, _ retry) bool { return f.Attempt <= maxRetries },
	)
	statemachine.Transition[State, shutdown](b, func(State, shutdown) State { return Closed{} })
	return b.Build()
}
