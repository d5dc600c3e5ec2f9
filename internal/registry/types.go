package registry

import "time"

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// State mirrors the provider-reported lifecycle of a call.
type State string

const (
	StateInitiated  State = "initiated"
	StateRinging    State = "ringing"
	StateInProgress State = "in_progress"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateNoAnswer   State = "no_answer"
	StateBusy       State = "busy"
	StateCanceled   State = "canceled"
)

// Terminal reports whether no further transition is allowed out of s.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateNoAnswer, StateBusy, StateCanceled:
		return true
	default:
		return false
	}
}

func (s State) Valid() bool {
	return s.rank() >= 0
}

func (s State) rank() int {
	switch s {
	case StateInitiated:
		return 0
	case StateRinging:
		return 1
	case StateInProgress:
		return 2
	case StateCompleted, StateFailed, StateNoAnswer, StateBusy, StateCanceled:
		return 3
	default:
		return -1
	}
}

// ParseState accepts the registry's own spelling of a state.
func ParseState(v string) (State, bool) {
	s := State(v)
	return s, s.Valid()
}

// Session is the lifecycle record of one call.
type Session struct {
	CallID          string     `json:"call_id"`
	Direction       Direction  `json:"direction"`
	State           State      `json:"lifecycle_state"`
	From            string     `json:"from,omitempty"`
	To              string     `json:"to,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	DurationSeconds int64      `json:"duration_seconds"`
}

// Event is published for every accepted lifecycle change.
type Event struct {
	Type    string  `json:"type"`
	Session Session `json:"session"`
}

const (
	EventRecorded = "call_recorded"
	EventUpdated  = "call_updated"
	EventPruned   = "call_pruned"
)
