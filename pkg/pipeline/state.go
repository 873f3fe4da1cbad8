package pipeline

import "context"

// State is a step of the submission lifecycle.
type State int

// Lifecycle states. Every invocation starts and ends in StateIdle.
const (
	StateIdle State = iota
	StateSubmitting
	StatePolling
	StateGrading
	StateAwaitingConfirmation
	StateFinalizing
)

var stateNames = [...]string{
	StateIdle:                 "idle",
	StateSubmitting:           "submitting",
	StatePolling:              "polling",
	StateGrading:              "grading",
	StateAwaitingConfirmation: "awaiting_confirmation",
	StateFinalizing:           "finalizing",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// MarshalText renders the state name in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Transition describes one state change of an invocation.
type Transition struct {
	Operation string
	From      State
	To        State
	// Err is set when the invocation returns to idle because of a failure.
	Err error
}

// Observer receives state transitions. Implementations must not block.
type Observer interface {
	Transition(ctx context.Context, t Transition)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, t Transition)

// Transition calls f.
func (f ObserverFunc) Transition(ctx context.Context, t Transition) {
	f(ctx, t)
}

// invocation tracks the state of one Run, Submit, SubmitExam or Confirm call.
type invocation struct {
	ctx       context.Context
	operation string
	state     State
	observers []Observer
}

func (i *invocation) to(next State) {
	i.move(next, nil)
}

func (i *invocation) move(next State, err error) {
	if i.state == next {
		return
	}
	t := Transition{Operation: i.operation, From: i.state, To: next, Err: err}
	i.state = next
	stateTransitions.WithLabelValues(i.operation, next.String()).Inc()
	for _, observer := range i.observers {
		if observer != nil {
			observer.Transition(i.ctx, t)
		}
	}
}

// fail returns the invocation to idle and hands err back to the caller.
func (i *invocation) fail(err error) error {
	i.move(StateIdle, err)
	return err
}

// end returns the invocation to idle unless it is suspended waiting for a confirmation.
func (i *invocation) end() {
	if i.state == StateAwaitingConfirmation {
		return
	}
	i.move(StateIdle, nil)
}
