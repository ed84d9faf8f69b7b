package runner

import "fmt"

// State is the lifecycle state of a submitted command.
type State int

const (
	// StateReady means the command is queued.
	StateReady State = iota
	// StateRunning means a runner is executing the command.
	StateRunning
	// StateCompleted means the command finished successfully.
	StateCompleted
	// StateFailed means the command finished with an error.
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Event tells a listener why the state changed.
type Event int

const (
	EventSubmit Event = iota
	EventRunning
	EventRetry
	EventCompleted
	EventFailed
	EventCancelled
	EventTimeout
	EventBusy
	EventAuthFailed
)

// String returns the event name.
func (e Event) String() string {
	switch e {
	case EventSubmit:
		return "submit"
	case EventRunning:
		return "running"
	case EventRetry:
		return "retry"
	case EventCompleted:
		return "completed"
	case EventFailed:
		return "failed"
	case EventCancelled:
		return "cancelled"
	case EventTimeout:
		return "timeout"
	case EventBusy:
		return "busy"
	case EventAuthFailed:
		return "auth-failed"
	default:
		return fmt.Sprintf("Event(%d)", int(e))
	}
}

// EventFor returns the event describing a failure with err.
func EventFor(err error) Event {
	switch CodeOf(err) {
	case CodeCancelled:
		return EventCancelled
	case CodeTimeout:
		return EventTimeout
	case CodeServerBusy:
		return EventBusy
	case CodeAuthFailed:
		return EventAuthFailed
	default:
		return EventFailed
	}
}

// Listener is notified on every state transition of a task, one call at a
// time and in order.
// args carries context: the command name and the server name, followed by a
// message on failure.
type Listener interface {
	StateChanged(state State, event Event, args ...string)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(state State, event Event, args ...string)

// StateChanged calls f.
func (f ListenerFunc) StateChanged(state State, event Event, args ...string) {
	f(state, event, args...)
}
