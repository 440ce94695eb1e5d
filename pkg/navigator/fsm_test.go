package navigator

import (
	"log/slog"
	"testing"

	"github.com/voxhop/ivrnav/pkg/session"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		name string
		from session.State
		to   session.State
		want bool
	}{
		{"new to awaiting", session.StateNew, session.StateAwaitingSpeech, true},
		{"awaiting to menu resolved", session.StateAwaitingSpeech, session.StateMenuResolved, true},
		{"menu resolved back to awaiting", session.StateMenuResolved, session.StateAwaitingSpeech, true},
		{"conversation to transfer pending", session.StateConversation, session.StateTransferConfirmPending, true},
		{"transfer pending to transferring", session.StateTransferConfirmPending, session.StateTransferring, true},
		{"self transition", session.StateConversation, session.StateConversation, true},
		{"any to terminated", session.StateMenuPartial, session.StateTerminated, true},
		{"any to completed", session.StateConversation, session.StateCompleted, true},
		{"new straight to transferring", session.StateNew, session.StateTransferring, false},
		{"completed has no exits", session.StateCompleted, session.StateAwaitingSpeech, false},
		{"terminated has no exits", session.StateTerminated, session.StateTerminated, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := canTransition(tc.from, tc.to); got != tc.want {
				t.Errorf("canTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
			}
		})
	}
}

func TestTransitionAppliesInvalidEdge(t *testing.T) {
	// A surprising webhook must not wedge the call: the edge is logged
	// but still applied.
	sess := &session.CallSession{CallID: "CA1", State: session.StateNew}
	transition(slog.Default(), sess, session.StateTransferring, "test")
	if sess.State != session.StateTransferring {
		t.Fatalf("state = %s, want TRANSFERRING", sess.State)
	}
}

func TestTransitionNoopOnSameState(t *testing.T) {
	sess := &session.CallSession{CallID: "CA1", State: session.StateConversation}
	transition(slog.Default(), sess, session.StateConversation, "test")
	if sess.State != session.StateConversation {
		t.Fatalf("state = %s, want CONVERSATION", sess.State)
	}
}
