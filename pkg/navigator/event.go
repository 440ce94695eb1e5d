package navigator

import "github.com/voxhop/ivrnav/pkg/session"

// EventType discriminates inbound webhook events.
type EventType int

const (
	// EventCallStarted initializes the session and its config snapshot.
	EventCallStarted EventType = iota
	// EventSpeech carries a speech transcript.
	EventSpeech
	// EventDTMF acknowledges that digits were played on the call.
	EventDTMF
	// EventStatus carries a normalized call or transfer status update.
	EventStatus
)

func (t EventType) String() string {
	switch t {
	case EventCallStarted:
		return "call_started"
	case EventSpeech:
		return "speech"
	case EventDTMF:
		return "dtmf"
	case EventStatus:
		return "status"
	default:
		return "unknown"
	}
}

// Normalized call statuses carried by EventStatus.
const (
	StatusInProgress = "in-progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusTerminated = "terminated"
)

// Event is one inbound occurrence on a call, already decoded from the
// telephony provider's wire format.
type Event struct {
	Type   EventType
	CallID string

	// Call-started fields.
	To     string
	From   string
	Config session.QueryConfig

	// Speech fields.
	Transcript string
	FirstTurn  bool

	// DTMF fields.
	Digits string

	// Status fields.
	Status string
}
