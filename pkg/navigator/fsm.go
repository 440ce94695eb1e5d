package navigator

import (
	"log/slog"
	"time"

	"github.com/voxhop/ivrnav/pkg/session"
)

// validTransitions defines the call navigation state machine. The
// terminal states are reachable from every non-terminal state and have no
// outgoing edges.
var validTransitions = map[session.State][]session.State{
	session.StateNew: {
		session.StateAwaitingSpeech,
	},
	session.StateAwaitingSpeech: {
		session.StateMenuPartial,
		session.StateMenuResolved,
		session.StateTransferConfirmPending,
		session.StateConversation,
		session.StateTransferring,
	},
	session.StateMenuPartial: {
		session.StateAwaitingSpeech,
		session.StateMenuResolved,
		session.StateTransferConfirmPending,
		session.StateConversation,
		session.StateTransferring,
	},
	session.StateMenuResolved: {
		session.StateAwaitingSpeech,
		session.StateMenuPartial,
		session.StateTransferConfirmPending,
		session.StateConversation,
		session.StateTransferring,
	},
	session.StateTransferConfirmPending: {
		session.StateMenuPartial,
		session.StateMenuResolved,
		session.StateConversation,
		session.StateTransferring,
	},
	session.StateConversation: {
		session.StateMenuPartial,
		session.StateMenuResolved,
		session.StateTransferConfirmPending,
		session.StateTransferring,
	},
	session.StateTransferring: {
		session.StateCompleted,
	},
	session.StateCompleted:  {},
	session.StateTerminated: {},
}

// canTransition reports whether moving from one state to another is
// allowed. Self-transitions are always allowed on non-terminal states.
func canTransition(from, to session.State) bool {
	if from.Terminal() {
		return false
	}
	if from == to {
		return true
	}
	// Provider status callbacks can close a call from any live state.
	if to == session.StateTerminated || to == session.StateCompleted {
		return true
	}
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// transition moves a session to a new state, logging (but tolerating) an
// invalid edge so one surprising webhook cannot wedge a live call.
func transition(log *slog.Logger, sess *session.CallSession, to session.State, reason string) {
	from := sess.State
	if from == to {
		return
	}
	if !canTransition(from, to) {
		log.Warn("invalid_state_transition",
			"call_sid", sess.CallID,
			"from", from.String(),
			"to", to.String(),
			"reason", reason,
		)
	}
	sess.State = to
	log.Debug("state_transition",
		"call_sid", sess.CallID,
		"from", from.String(),
		"to", to.String(),
		"reason", reason,
		"at", time.Now(),
	)
}
