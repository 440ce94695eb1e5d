// Package navigator routes classified call events through the
// call-navigation state machine and decides the next call-control
// directives: which digit to press, what to say, when to transfer, and
// when to hang up.
package navigator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/voxhop/ivrnav/pkg/ai"
	"github.com/voxhop/ivrnav/pkg/directive"
	"github.com/voxhop/ivrnav/pkg/errorsx"
	"github.com/voxhop/ivrnav/pkg/history"
	"github.com/voxhop/ivrnav/pkg/loop"
	"github.com/voxhop/ivrnav/pkg/menu"
	"github.com/voxhop/ivrnav/pkg/metrics"
	"github.com/voxhop/ivrnav/pkg/patterns"
	"github.com/voxhop/ivrnav/pkg/redact"
	"github.com/voxhop/ivrnav/pkg/session"
)

// Config tunes the router. Zero values fall back to sensible defaults.
type Config struct {
	// AIDeadline bounds every reasoning-service call; aligned with the
	// telephony provider's webhook response SLA.
	AIDeadline time.Duration

	GatherTimeoutSec int
	DigitPauseSec    int
	DeadEndSilence   time.Duration
	MaxLoopHistory   int

	ConfirmationQuestion string
	HandoffText          string
	GoodbyeText          string
	ApologyText          string

	Voice  string
	Locale string
}

func (c Config) withDefaults() Config {
	if c.AIDeadline <= 0 {
		c.AIDeadline = 12 * time.Second
	}
	if c.GatherTimeoutSec <= 0 {
		c.GatherTimeoutSec = 6
	}
	if c.DigitPauseSec <= 0 {
		c.DigitPauseSec = 1
	}
	if c.DeadEndSilence <= 0 {
		c.DeadEndSilence = patterns.DefaultDeadEndSilence
	}
	if c.ConfirmationQuestion == "" {
		c.ConfirmationQuestion = "Am I speaking with a real person?"
	}
	if c.HandoffText == "" {
		c.HandoffText = "Great, thank you. One moment please."
	}
	if c.GoodbyeText == "" {
		c.GoodbyeText = "Thank you, goodbye."
	}
	if c.ApologyText == "" {
		c.ApologyText = "Sorry, an error occurred. Goodbye."
	}
	return c
}

// Router is the event router: it consults the session, classifies the
// event, and emits the next ordered directive list. One router serves all
// concurrent calls; per-call state lives in the session store.
type Router struct {
	cfg      Config
	store    *session.Store
	loops    *loop.Detector
	reasoner ai.Reasoner
	history  *history.Dispatcher
	obs      metrics.Observer
	log      *slog.Logger
	now      func() time.Time
}

func NewRouter(cfg Config, store *session.Store, reasoner ai.Reasoner, hist *history.Dispatcher, obs metrics.Observer, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Router{
		cfg:      cfg,
		store:    store,
		loops:    loop.NewDetector(cfg.MaxLoopHistory),
		reasoner: reasoner,
		history:  hist,
		obs:      obs,
		log:      log,
		now:      time.Now,
	}
}

// HandleEvent routes one inbound event and returns the directives to run.
// It never panics outward and never returns an error: every failure mode
// degrades to a spoken apology plus hangup so the caller hears something
// graceful instead of a raw error.
func (r *Router) HandleEvent(ctx context.Context, ev Event) (dirs []directive.Directive) {
	start := r.now()
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("router_panic",
				"call_sid", ev.CallID,
				"event", ev.Type.String(),
				"panic", fmt.Sprint(rec),
			)
			dirs = r.apology()
		}
		if r.obs != nil {
			mev := metrics.CallEvent("route_latency_ms", ev.CallID, float64(r.now().Sub(start).Milliseconds()))
			mev.Tags["event"] = ev.Type.String()
			r.obs.RecordEvent(mev)
		}
	}()

	if strings.TrimSpace(ev.CallID) == "" {
		r.log.Warn("webhook_missing_call_id",
			"event", ev.Type.String(),
			"reason_code", string(errorsx.ReasonWebhookMissingID),
		)
		return r.apology()
	}

	switch ev.Type {
	case EventCallStarted:
		return r.handleCallStarted(ev)
	case EventSpeech:
		return r.handleSpeech(ctx, ev)
	case EventDTMF:
		return r.handleDTMF(ev)
	case EventStatus:
		return r.handleStatus(ev)
	default:
		return r.listen()
	}
}

func (r *Router) handleCallStarted(ev Event) []directive.Directive {
	r.store.Update(ev.CallID, func(s *session.CallSession) {
		s.Config = ev.Config
		transition(r.log, s, session.StateAwaitingSpeech, "call started")
	})
	r.history.StartCall(history.CallRecord{
		CallID:  ev.CallID,
		To:      ev.To,
		From:    ev.From,
		Purpose: ev.Config.Purpose,
		Status:  StatusInProgress,
	})
	r.log.Info("call_started", "call_sid", ev.CallID, "to", redact.Text(ev.To))
	return r.listen()
}

func (r *Router) handleDTMF(ev Event) []directive.Directive {
	// The tone was played; resume listening for the menu's reaction.
	r.store.Update(ev.CallID, func(s *session.CallSession) {
		transition(r.log, s, session.StateAwaitingSpeech, "dtmf sent")
	})
	r.log.Debug("dtmf_acknowledged", "call_sid", ev.CallID, "digits", ev.Digits)
	return r.listen()
}

func (r *Router) handleStatus(ev Event) []directive.Directive {
	switch ev.Status {
	case StatusCompleted, StatusFailed, StatusTerminated:
		final := ev.Status
		r.store.Update(ev.CallID, func(s *session.CallSession) {
			if ev.Status == StatusCompleted {
				transition(r.log, s, session.StateCompleted, "provider status")
			} else {
				transition(r.log, s, session.StateTerminated, "provider status")
			}
		})
		r.store.Delete(ev.CallID)
		r.history.EndCall(ev.CallID, final)
		r.log.Info("call_closed", "call_sid", ev.CallID, "status", final)
	default:
		// Interim statuses only refresh the session's activity clock.
		r.store.Update(ev.CallID, func(*session.CallSession) {})
	}
	return nil
}

// handleSpeech applies the fixed routing precedence: termination, pending
// human confirmation, transfer detection, menu handling, then the
// conversational fallback. Ambiguity always lands in the fallback branch.
func (r *Router) handleSpeech(ctx context.Context, ev Event) []directive.Directive {
	snap := r.snapshot(ev.CallID)

	// 1. Termination.
	term := patterns.ClassifyTermination(ev.Transcript)
	if term == patterns.TerminationNone &&
		patterns.IsDeadEnd(snap.LastSpeech, ev.Transcript, r.now().Sub(snap.LastSpeechAt), r.cfg.DeadEndSilence) {
		term = patterns.TerminationDeadEnd
	}
	if term != patterns.TerminationNone {
		return r.terminate(ev.CallID, term)
	}

	r.rememberSpeech(ev)

	// 2. Pending human confirmation.
	if snap.AwaitingHumanConfirmation {
		return r.resolveConfirmation(ev, snap)
	}

	// 3. Transfer request.
	if patterns.IsTransferRequest(ev.Transcript) {
		if dirs := r.handleTransferOffer(ctx, ev, snap); dirs != nil {
			return dirs
		}
		// Not validated as a real transfer; fall through.
	}

	// 4. Menu detection or continuation of a split menu.
	if patterns.IsMenu(ev.Transcript) || snap.AwaitingCompleteMenu {
		return r.handleMenu(ctx, ev, snap)
	}

	// 5. Conversational fallback.
	return r.converse(ctx, ev, snap)
}

func (r *Router) terminate(callID string, term patterns.Termination) []directive.Directive {
	r.store.Update(callID, func(s *session.CallSession) {
		transition(r.log, s, session.StateTerminated, term.String())
	})
	r.store.Delete(callID)
	r.history.AddTermination(callID, term.String())
	r.history.EndCall(callID, StatusTerminated)
	r.log.Info("call_terminated", "call_sid", callID, "termination", term.String())
	return []directive.Directive{
		directive.Speak{Text: r.cfg.GoodbyeText, Voice: r.cfg.Voice, Locale: r.cfg.Locale},
		directive.Hangup{},
	}
}

func (r *Router) resolveConfirmation(ev Event, snap session.CallSession) []directive.Directive {
	r.history.AddConversation(ev.CallID, "callee", ev.Transcript)
	if !patterns.IsAffirmative(ev.Transcript) {
		// Do not drop the pending state on an unclear answer; ask again.
		r.log.Debug("confirmation_unclear", "call_sid", ev.CallID)
		return append(r.speak(r.cfg.ConfirmationQuestion), r.gather())
	}
	r.store.Update(ev.CallID, func(s *session.CallSession) {
		s.HumanConfirmed = true
		s.AwaitingHumanConfirmation = false
		if snap.Config.TransferDestination != "" {
			transition(r.log, s, session.StateTransferring, "human confirmed")
		} else {
			transition(r.log, s, session.StateConversation, "human confirmed, no destination")
		}
	})
	r.log.Info("human_confirmed", "call_sid", ev.CallID)
	return r.transfer(ev.CallID, snap.Config)
}

// handleTransferOffer returns nil when the offer does not validate, which
// sends the event down the remaining precedence chain.
func (r *Router) handleTransferOffer(ctx context.Context, ev Event, snap session.CallSession) []directive.Directive {
	if snap.HumanConfirmed {
		r.store.Update(ev.CallID, func(s *session.CallSession) {
			if snap.Config.TransferDestination != "" {
				transition(r.log, s, session.StateTransferring, "transfer offer, already confirmed")
			}
		})
		return r.transfer(ev.CallID, snap.Config)
	}

	vctx, cancel := context.WithTimeout(ctx, r.cfg.AIDeadline)
	defer cancel()
	ok, err := r.reasoner.ValidateTransfer(vctx, ev.Transcript)
	if err != nil {
		// Failure means "no confident answer": do not start the
		// confirmation protocol on it.
		r.log.Warn("transfer_validation_failed",
			"call_sid", ev.CallID,
			"reason_code", string(errorsx.Reason(err)),
			"error", err.Error(),
		)
		return nil
	}
	if !ok {
		r.log.Debug("transfer_offer_rejected", "call_sid", ev.CallID)
		return nil
	}

	r.store.Update(ev.CallID, func(s *session.CallSession) {
		s.AwaitingHumanConfirmation = true
		transition(r.log, s, session.StateTransferConfirmPending, "transfer offer validated")
	})
	r.history.AddConversation(ev.CallID, "callee", ev.Transcript)
	return append(r.speak(r.cfg.ConfirmationQuestion), r.gather())
}

func (r *Router) transfer(callID string, cfg session.QueryConfig) []directive.Directive {
	if cfg.TransferDestination == "" {
		// Nowhere to bridge to: the agent itself keeps talking.
		return append(r.speak(r.cfg.HandoffText), r.gather())
	}
	r.history.AddTransfer(callID, cfg.TransferDestination)
	r.log.Info("transfer_started", "call_sid", callID, "destination", redact.Text(cfg.TransferDestination))
	return append(r.speak(r.cfg.HandoffText), directive.Dial{Number: cfg.TransferDestination})
}

func (r *Router) handleMenu(ctx context.Context, ev Event, snap session.CallSession) []directive.Directive {
	extracted := menu.Extract(ev.Transcript)
	partial := snap.PartialMenuOptions
	if snap.AwaitingCompleteMenu {
		partial = menu.FillCutoff(partial, ev.Transcript)
	}
	merged := menu.MergeOptions(partial, extracted.Options)

	if !extracted.Complete {
		r.store.Update(ev.CallID, func(s *session.CallSession) {
			s.PartialMenuOptions = merged
			s.AwaitingCompleteMenu = true
			transition(r.log, s, session.StateMenuPartial, "incomplete menu")
		})
		r.log.Debug("menu_partial", "call_sid", ev.CallID, "options", len(merged))
		return r.listen()
	}

	// A placeholder that no transcript ever labeled says nothing about
	// where its digit leads; it must not reach the reasoner prompt or the
	// loop fingerprints.
	if labeled := menu.Labeled(merged); len(labeled) != len(merged) {
		r.log.Debug("menu_unlabeled_dropped",
			"call_sid", ev.CallID,
			"dropped", len(merged)-len(labeled),
		)
		merged = labeled
	}

	looped, fingerprints := r.loops.Check(snap.LoopFingerprints, merged)
	r.store.Update(ev.CallID, func(s *session.CallSession) {
		s.ClearPartialMenu()
		s.LastMenuOptions = merged
		s.MenuLevel++
		s.LoopFingerprints = fingerprints
		transition(r.log, s, session.StateMenuResolved, "menu resolved")
	})
	r.history.AddIVRMenu(ev.CallID, merged)
	r.log.Info("menu_resolved",
		"call_sid", ev.CallID,
		"options", len(merged),
		"loop", looped,
	)

	if looped {
		// The menu is replaying itself: act immediately, no deliberation.
		opt := loopEscapeOption(merged)
		return r.press(ev.CallID, opt.Digit, "menu loop, escaping via "+labelOrDigit(opt))
	}
	return r.selectDigit(ctx, ev, snap, merged)
}

func (r *Router) converse(ctx context.Context, ev Event, snap session.CallSession) []directive.Directive {
	r.history.AddConversation(ev.CallID, "callee", ev.Transcript)

	rctx, cancel := context.WithTimeout(ctx, r.cfg.AIDeadline)
	defer cancel()
	replyStart := r.now()
	reply, err := r.reasoner.GenerateReply(rctx, ai.ReplyRequest{
		Purpose:            snap.Config.Purpose,
		CustomInstructions: snap.Config.CustomInstructions,
		Transcript:         ev.Transcript,
		FirstTurn:          ev.FirstTurn,
		History:            snap.ConversationHistory,
	})
	if err != nil {
		// Silence is the recovery: keep listening.
		r.log.Warn("reply_generation_failed",
			"call_sid", ev.CallID,
			"reason_code", string(errorsx.Reason(err)),
			"error", err.Error(),
		)
		reply = ""
	}
	if r.obs != nil {
		r.obs.RecordEvent(metrics.CallEvent("reply_latency_ms", ev.CallID, float64(r.now().Sub(replyStart).Milliseconds())))
	}

	r.store.Update(ev.CallID, func(s *session.CallSession) {
		s.AppendTurn("callee", ev.Transcript, r.now())
		if !ai.IsSilent(reply) {
			s.AppendTurn("agent", reply, r.now())
		}
		transition(r.log, s, session.StateConversation, "conversational turn")
	})

	if ai.IsSilent(reply) {
		return r.listen()
	}
	r.history.AddConversation(ev.CallID, "agent", reply)
	return append(r.speak(reply), r.gather())
}

// snapshot copies the session under the store lock so blocking work never
// happens inside it. A session recreated after a TTL sweep comes back
// empty, which every branch tolerates.
func (r *Router) snapshot(callID string) session.CallSession {
	var snap session.CallSession
	r.store.Update(callID, func(s *session.CallSession) {
		snap = *s
		snap.PartialMenuOptions = append([]menu.Option(nil), s.PartialMenuOptions...)
		snap.LastMenuOptions = append([]menu.Option(nil), s.LastMenuOptions...)
		snap.ConversationHistory = append([]session.Turn(nil), s.ConversationHistory...)
		snap.LoopFingerprints = append([]string(nil), s.LoopFingerprints...)
	})
	return snap
}

func (r *Router) rememberSpeech(ev Event) {
	if strings.TrimSpace(ev.Transcript) == "" {
		return
	}
	r.store.Update(ev.CallID, func(s *session.CallSession) {
		s.LastSpeech = ev.Transcript
		s.LastSpeechAt = r.now()
	})
	r.log.Debug("speech_received", "call_sid", ev.CallID, "transcript", redact.Text(ev.Transcript))
}

func (r *Router) speak(text string) []directive.Directive {
	return []directive.Directive{directive.Speak{Text: text, Voice: r.cfg.Voice, Locale: r.cfg.Locale}}
}

func (r *Router) gather() directive.Directive {
	return directive.GatherSpeech{TimeoutSec: r.cfg.GatherTimeoutSec}
}

func (r *Router) listen() []directive.Directive {
	return []directive.Directive{r.gather()}
}

func (r *Router) apology() []directive.Directive {
	return []directive.Directive{
		directive.Speak{Text: r.cfg.ApologyText, Voice: r.cfg.Voice, Locale: r.cfg.Locale},
		directive.Hangup{},
	}
}
