// Package history records call audit trails. The navigator dispatches
// writes fire-and-forget; the directive response never waits on them and
// an unavailable backend only costs a log line.
package history

import (
	"context"
	"errors"
	"time"

	"github.com/voxhop/ivrnav/pkg/menu"
)

// Event kinds stored on a call record.
const (
	EventConversation = "conversation"
	EventDTMF         = "dtmf"
	EventIVRMenu      = "ivr_menu"
	EventTransfer     = "transfer"
	EventTermination  = "termination"
)

// ErrNotFound is returned when a call record does not exist.
var ErrNotFound = errors.New("call record not found")

// CallEvent is one classified occurrence during a call.
type CallEvent struct {
	ID          string        `json:"id"`
	Kind        string        `json:"kind"`
	At          time.Time     `json:"at"`
	Role        string        `json:"role,omitempty"`
	Text        string        `json:"text,omitempty"`
	Digits      string        `json:"digits,omitempty"`
	Reason      string        `json:"reason,omitempty"`
	Options     []menu.Option `json:"options,omitempty"`
	Destination string        `json:"destination,omitempty"`
}

// CallRecord is the audit trail of one call.
type CallRecord struct {
	CallID    string      `json:"call_id"`
	To        string      `json:"to,omitempty"`
	From      string      `json:"from,omitempty"`
	Purpose   string      `json:"purpose,omitempty"`
	Status    string      `json:"status"`
	StartedAt time.Time   `json:"started_at"`
	EndedAt   time.Time   `json:"ended_at,omitempty"`
	Events    []CallEvent `json:"events"`
}

// Recorder is the call-history collaborator. Implementations are external
// storage; callers go through Dispatcher so a webhook response never
// blocks on them.
type Recorder interface {
	StartCall(ctx context.Context, rec CallRecord) error
	AddConversation(ctx context.Context, callID, role, text string) error
	AddDTMF(ctx context.Context, callID, digits, reason string) error
	AddIVRMenu(ctx context.Context, callID string, options []menu.Option) error
	AddTransfer(ctx context.Context, callID, destination string) error
	AddTermination(ctx context.Context, callID, reason string) error
	EndCall(ctx context.Context, callID, status string) error
	GetCall(ctx context.Context, callID string) (CallRecord, error)
	GetRecentCalls(ctx context.Context, limit int) ([]CallRecord, error)
}
