package pulse

// Event is a sealed interface representing a decoded stream event.
// Events are purely semantic. Transport failures come from Stream.Next's
// error return, not from events.
// The unexported marker method prevents external implementations.
type Event interface {
	event()
}

// EventStatus is a progress update shown while the answer is being computed.
type EventStatus struct {
	Message string
}

func (EventStatus) event() {}

// EventResult carries the final answer. It is terminal: the connection that
// delivers it closes right after.
type EventResult struct {
	Result Result
}

func (EventResult) event() {}

// EventUnknown is a well-formed event with a name the client does not
// understand. Connections log and skip it.
type EventUnknown struct {
	Name string
	Data string
}

func (EventUnknown) event() {}

// Interface compliance checks.
var (
	_ Event = EventStatus{}
	_ Event = EventResult{}
	_ Event = EventUnknown{}
)
