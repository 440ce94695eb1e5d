// Package session tracks per-call mutable state across stateless webhook
// round-trips, and provides a concurrency-safe store with TTL eviction.
package session

import (
	"time"

	"github.com/voxhop/ivrnav/pkg/menu"
)

// State is the navigation state of a call.
type State int

const (
	StateNew State = iota
	StateAwaitingSpeech
	StateMenuPartial
	StateMenuResolved
	StateTransferConfirmPending
	StateConversation
	StateTransferring
	StateCompleted
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateAwaitingSpeech:
		return "AWAITING_SPEECH"
	case StateMenuPartial:
		return "MENU_PARTIAL"
	case StateMenuResolved:
		return "MENU_RESOLVED"
	case StateTransferConfirmPending:
		return "TRANSFER_CONFIRM_PENDING"
	case StateConversation:
		return "CONVERSATION"
	case StateTransferring:
		return "TRANSFERRING"
	case StateCompleted:
		return "COMPLETED"
	case StateTerminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no further events should be routed for the call.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateTerminated
}

// Turn is one entry of the bounded conversation history.
type Turn struct {
	Role string
	Text string
	At   time.Time
}

// ConversationCapacity bounds the per-call conversation ring buffer.
const ConversationCapacity = 20

// QueryConfig is the immutable configuration snapshot captured at call
// start; webhooks do not resend it, so the session carries it.
type QueryConfig struct {
	Purpose             string
	CustomInstructions  string
	TransferDestination string
}

// CallSession is the per-call state. One session exists per live call ID;
// it is created lazily on the first event and cleared on terminal events
// or by the store's TTL sweep.
type CallSession struct {
	CallID      string
	CreatedAt   time.Time
	LastTouched time.Time

	State State

	LastSpeech   string
	LastSpeechAt time.Time

	// MenuLevel counts fully resolved menus; diagnostic only.
	MenuLevel int

	// PartialMenuOptions and AwaitingCompleteMenu are set and cleared
	// together while a menu transcript is split across speech events.
	PartialMenuOptions   []menu.Option
	AwaitingCompleteMenu bool

	LastMenuOptions []menu.Option

	// HumanConfirmed and AwaitingHumanConfirmation are mutually
	// exclusive: confirmation is transient, not concurrent with the
	// confirmed state.
	HumanConfirmed            bool
	AwaitingHumanConfirmation bool

	ConversationHistory []Turn

	// LoopFingerprints grows as menus resolve; bounded by the loop
	// detector's history limit.
	LoopFingerprints []string

	Config QueryConfig
}

// AppendTurn records a conversation turn, evicting the oldest entry once
// the ring is at capacity.
func (s *CallSession) AppendTurn(role, text string, at time.Time) {
	s.ConversationHistory = append(s.ConversationHistory, Turn{Role: role, Text: text, At: at})
	if len(s.ConversationHistory) > ConversationCapacity {
		s.ConversationHistory = append([]Turn(nil), s.ConversationHistory[len(s.ConversationHistory)-ConversationCapacity:]...)
	}
}

// ClearPartialMenu resets the partial-menu accumulator and its flag
// together; they are never cleared independently.
func (s *CallSession) ClearPartialMenu() {
	s.PartialMenuOptions = nil
	s.AwaitingCompleteMenu = false
}

// Touch refreshes the inactivity clock used by TTL eviction.
func (s *CallSession) Touch(now time.Time) {
	s.LastTouched = now
}
