package pulse

import "time"

// TurnStatus is the lifecycle state of an assistant turn.
type TurnStatus string

const (
	TurnPending   TurnStatus = "pending"
	TurnStreaming TurnStatus = "streaming"
	TurnComplete  TurnStatus = "complete"
	TurnError     TurnStatus = "error"
)

// Terminal reports whether the status can no longer change.
func (s TurnStatus) Terminal() bool {
	return s == TurnComplete || s == TurnError
}

// Turn is one side of an Exchange.
type Turn struct {
	Role    Role
	Content string
	Status  TurnStatus // always TurnComplete for user turns

	// Result is the structured answer. Nil until the result arrives.
	Result *Result

	// StatusLine is the latest progress message. Only set while streaming.
	StatusLine string

	Timestamp time.Time
}

// Exchange is one user query paired with its answer. ID is also the
// idempotency token sent as request_id on every attempt for this exchange.
type Exchange struct {
	ID        string
	User      Turn
	Assistant Turn
}

// NewExchange creates an exchange with the user turn set and the assistant
// turn pending.
func NewExchange(id, query string, now time.Time) Exchange {
	return Exchange{
		ID: id,
		User: Turn{
			Role:      RoleUser,
			Content:   query,
			Status:    TurnComplete,
			Timestamp: now,
		},
		Assistant: Turn{
			Role:      RoleAssistant,
			Status:    TurnPending,
			Timestamp: now,
		},
	}
}

// Done reports whether the assistant turn is complete or failed.
func (x Exchange) Done() bool { return x.Assistant.Status.Terminal() }

// Fold applies a stream event to an exchange and returns the result. It is
// pure: x is not modified. Exchanges in a terminal state are returned
// unchanged, as are events that carry no turn state.
func Fold(x Exchange, evt Event) Exchange {
	if x.Done() {
		return x
	}
	switch e := evt.(type) {
	case EventStatus:
		x.Assistant.Status = TurnStreaming
		x.Assistant.StatusLine = e.Message
	case EventResult:
		res := e.Result
		x.Assistant.Status = TurnComplete
		x.Assistant.Content = res.Answer
		x.Assistant.Result = &res
		x.Assistant.StatusLine = ""
	}
	return x
}

// Fail moves a non-terminal exchange to TurnError with msg as its content.
func Fail(x Exchange, msg string) Exchange {
	if x.Done() {
		return x
	}
	x.Assistant.Status = TurnError
	x.Assistant.Content = "Error: " + msg
	x.Assistant.StatusLine = ""
	return x
}
