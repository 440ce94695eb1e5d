package navigator

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/voxhop/ivrnav/pkg/ai"
	"github.com/voxhop/ivrnav/pkg/directive"
	"github.com/voxhop/ivrnav/pkg/history"
	"github.com/voxhop/ivrnav/pkg/metrics"
	"github.com/voxhop/ivrnav/pkg/providers/mock"
	"github.com/voxhop/ivrnav/pkg/session"
)

type harness struct {
	router   *Router
	store    *session.Store
	reasoner *mock.Reasoner
	recorder *history.MemoryRecorder
	hist     *history.Dispatcher
	obs      *metrics.MemoryObserver
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	store := session.NewStore(session.StoreConfig{}, slog.Default())
	reasoner := &mock.Reasoner{}
	recorder := history.NewMemoryRecorder()
	hist := history.NewDispatcher(recorder, 64, slog.Default())
	t.Cleanup(hist.Close)
	obs := metrics.NewMemoryObserver()
	return &harness{
		router:   NewRouter(cfg, store, reasoner, hist, obs, slog.Default()),
		store:    store,
		reasoner: reasoner,
		recorder: recorder,
		hist:     hist,
		obs:      obs,
	}
}

// waitFor polls until the condition holds; dispatcher writes are async.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func speech(callID, transcript string) Event {
	return Event{Type: EventSpeech, CallID: callID, Transcript: transcript}
}

func TestMissingCallIDReturnsApology(t *testing.T) {
	h := newHarness(t, Config{})
	dirs := h.router.HandleEvent(context.Background(), Event{Type: EventSpeech, Transcript: "hello"})
	if len(dirs) != 2 {
		t.Fatalf("got %d directives, want 2", len(dirs))
	}
	if _, ok := dirs[0].(directive.Speak); !ok {
		t.Errorf("dirs[0] = %s, want speak", directive.Name(dirs[0]))
	}
	if _, ok := dirs[1].(directive.Hangup); !ok {
		t.Errorf("dirs[1] = %s, want hangup", directive.Name(dirs[1]))
	}
	if h.store.Len() != 0 {
		t.Errorf("store has %d sessions, want 0", h.store.Len())
	}
}

type panicReasoner struct{ mock.Reasoner }

func (p *panicReasoner) GenerateReply(context.Context, ai.ReplyRequest) (string, error) {
	panic("reasoner blew up")
}

func TestPanicRecoversToApology(t *testing.T) {
	h := newHarness(t, Config{})
	h.router.reasoner = &panicReasoner{}
	dirs := h.router.HandleEvent(context.Background(), speech("CA1", "hello there"))
	if len(dirs) != 2 {
		t.Fatalf("got %d directives, want 2", len(dirs))
	}
	if _, ok := dirs[1].(directive.Hangup); !ok {
		t.Errorf("dirs[1] = %s, want hangup", directive.Name(dirs[1]))
	}
}

func TestCallStartedGathersAndRecords(t *testing.T) {
	h := newHarness(t, Config{})
	dirs := h.router.HandleEvent(context.Background(), Event{
		Type:   EventCallStarted,
		CallID: "CA1",
		To:     "+15550001111",
		Config: session.QueryConfig{Purpose: "reschedule appointment"},
	})
	if len(dirs) != 1 {
		t.Fatalf("got %d directives, want 1", len(dirs))
	}
	if _, ok := dirs[0].(directive.GatherSpeech); !ok {
		t.Fatalf("dirs[0] = %s, want gather_speech", directive.Name(dirs[0]))
	}
	sess, ok := h.store.Get("CA1")
	if !ok {
		t.Fatal("session not created")
	}
	if sess.State != session.StateAwaitingSpeech {
		t.Errorf("state = %s, want AWAITING_SPEECH", sess.State)
	}
	waitFor(t, func() bool {
		rec, err := h.recorder.GetCall(context.Background(), "CA1")
		return err == nil && rec.Purpose == "reschedule appointment"
	})
}

func TestVoicemailTerminatesCall(t *testing.T) {
	h := newHarness(t, Config{})
	h.router.HandleEvent(context.Background(), Event{Type: EventCallStarted, CallID: "CA1"})
	dirs := h.router.HandleEvent(context.Background(), speech("CA1", "Please leave a message after the beep."))
	if len(dirs) != 2 {
		t.Fatalf("got %d directives, want 2", len(dirs))
	}
	if _, ok := dirs[1].(directive.Hangup); !ok {
		t.Errorf("dirs[1] = %s, want hangup", directive.Name(dirs[1]))
	}
	if _, ok := h.store.Get("CA1"); ok {
		t.Error("session not cleared after termination")
	}
	waitFor(t, func() bool {
		rec, err := h.recorder.GetCall(context.Background(), "CA1")
		if err != nil {
			return false
		}
		for _, ev := range rec.Events {
			if ev.Kind == history.EventTermination && ev.Reason == "voicemail" {
				return true
			}
		}
		return false
	})
}

func TestDeadEndAfterClosedAnnouncement(t *testing.T) {
	h := newHarness(t, Config{})
	now := time.Now()
	h.router.now = func() time.Time { return now }
	h.router.HandleEvent(context.Background(), Event{Type: EventCallStarted, CallID: "CA1"})
	// Closed language plus a menu is not an immediate termination; it
	// becomes one once the menu leads nowhere and the line goes quiet.
	h.router.HandleEvent(context.Background(), speech("CA1", "We are currently closed. Press 1 to hear our business hours."))

	now = now.Add(10 * time.Second)
	dirs := h.router.HandleEvent(context.Background(), speech("CA1", ""))
	if len(dirs) != 2 {
		t.Fatalf("got %d directives, want 2", len(dirs))
	}
	if _, ok := dirs[1].(directive.Hangup); !ok {
		t.Errorf("dirs[1] = %s, want hangup", directive.Name(dirs[1]))
	}
}

func TestMenuResolvedPressesAIDigit(t *testing.T) {
	h := newHarness(t, Config{})
	h.reasoner.Decision = ai.DigitDecision{ShouldPress: true, Digit: "2", Reason: "support serves the purpose"}
	h.router.HandleEvent(context.Background(), Event{Type: EventCallStarted, CallID: "CA1"})

	dirs := h.router.HandleEvent(context.Background(), speech("CA1", "Press 1 for sales, press 2 for support."))
	if len(dirs) != 1 {
		t.Fatalf("got %d directives, want 1", len(dirs))
	}
	sd, ok := dirs[0].(directive.SendDigits)
	if !ok {
		t.Fatalf("dirs[0] = %s, want send_digits", directive.Name(dirs[0]))
	}
	if sd.Digits != "2" {
		t.Errorf("digits = %q, want 2", sd.Digits)
	}
	sess, _ := h.store.Get("CA1")
	if sess.State != session.StateMenuResolved {
		t.Errorf("state = %s, want MENU_RESOLVED", sess.State)
	}
	if sess.MenuLevel != 1 {
		t.Errorf("menu level = %d, want 1", sess.MenuLevel)
	}
}

func TestPartialMenuAccumulates(t *testing.T) {
	h := newHarness(t, Config{})
	h.reasoner.Decision = ai.DigitDecision{ShouldPress: true, Digit: "3"}
	h.router.HandleEvent(context.Background(), Event{Type: EventCallStarted, CallID: "CA1"})

	dirs := h.router.HandleEvent(context.Background(), speech("CA1", "Press 1 for sales, press 2 for"))
	if _, ok := dirs[0].(directive.GatherSpeech); !ok {
		t.Fatalf("incomplete menu should keep listening, got %s", directive.Name(dirs[0]))
	}
	sess, _ := h.store.Get("CA1")
	if !sess.AwaitingCompleteMenu {
		t.Fatal("awaiting complete menu not set")
	}
	if h.reasoner.DigitCalls() != 0 {
		t.Fatalf("reasoner consulted on a partial menu")
	}

	h.router.HandleEvent(context.Background(), speech("CA1", "billing, press 3 for support."))
	sess, _ = h.store.Get("CA1")
	if sess.AwaitingCompleteMenu {
		t.Error("awaiting complete menu not cleared")
	}
	if sess.PartialMenuOptions != nil {
		t.Error("partial options not cleared")
	}
	if len(sess.LastMenuOptions) != 3 {
		t.Fatalf("got %d merged options, want 3", len(sess.LastMenuOptions))
	}
	// The continuation's leading fragment labels the cut-off digit.
	if got := sess.LastMenuOptions[1]; got.Digit != "2" || got.Label != "billing" {
		t.Errorf("option 2 = %+v, want billing", got)
	}
}

func TestUnlabeledPlaceholderDroppedOnResolve(t *testing.T) {
	h := newHarness(t, Config{})
	h.router.HandleEvent(context.Background(), Event{Type: EventCallStarted, CallID: "CA1"})

	h.router.HandleEvent(context.Background(), speech("CA1", "Press 1 for sales, press 2 and"))
	// The continuation never labels digit 2; the resolved menu must not
	// carry the bare placeholder.
	dirs := h.router.HandleEvent(context.Background(), speech("CA1", "Press 3 for customer support."))
	sd, ok := dirs[0].(directive.SendDigits)
	if !ok {
		t.Fatalf("dirs[0] = %s, want send_digits", directive.Name(dirs[0]))
	}
	if sd.Digits != "3" {
		t.Errorf("pressed %q, want 3 (support)", sd.Digits)
	}
	sess, _ := h.store.Get("CA1")
	if len(sess.LastMenuOptions) != 2 {
		t.Fatalf("got %d resolved options, want 2", len(sess.LastMenuOptions))
	}
	for _, opt := range sess.LastMenuOptions {
		if opt.Label == "" {
			t.Errorf("unlabeled option %q survived resolution", opt.Digit)
		}
	}
	for _, fp := range sess.LoopFingerprints {
		if strings.HasSuffix(fp, ":") {
			t.Errorf("bare fingerprint %q recorded", fp)
		}
	}
}

func TestMenuLoopEscapesToHumanOption(t *testing.T) {
	h := newHarness(t, Config{})
	h.reasoner.Decision = ai.DigitDecision{ShouldPress: false}
	h.router.HandleEvent(context.Background(), Event{Type: EventCallStarted, CallID: "CA1"})

	// The same menu replaying means the first press did not register;
	// the escape must not consult the reasoner again.
	menuText := "Press 1 for weather, press 2 to speak to a representative."
	h.router.HandleEvent(context.Background(), speech("CA1", menuText))
	calls := h.reasoner.DigitCalls()

	dirs := h.router.HandleEvent(context.Background(), speech("CA1", menuText))
	sd, ok := dirs[0].(directive.SendDigits)
	if !ok {
		t.Fatalf("dirs[0] = %s, want send_digits", directive.Name(dirs[0]))
	}
	if sd.Digits != "2" {
		t.Errorf("loop escape pressed %q, want 2 (representative)", sd.Digits)
	}
	if h.reasoner.DigitCalls() != calls {
		t.Error("reasoner consulted during loop escape")
	}
}

func TestMenuLoopWithoutHumanOptionPressesFirst(t *testing.T) {
	h := newHarness(t, Config{})
	h.reasoner.Decision = ai.DigitDecision{ShouldPress: false}
	h.router.HandleEvent(context.Background(), Event{Type: EventCallStarted, CallID: "CA1"})

	menuText := "Press 1 for weather, press 2 for traffic."
	h.router.HandleEvent(context.Background(), speech("CA1", menuText))
	dirs := h.router.HandleEvent(context.Background(), speech("CA1", menuText))
	sd, ok := dirs[0].(directive.SendDigits)
	if !ok {
		t.Fatalf("dirs[0] = %s, want send_digits", directive.Name(dirs[0]))
	}
	if sd.Digits != "1" {
		t.Errorf("loop escape pressed %q, want the first option", sd.Digits)
	}
}

func TestMenuLoopEscapesViaCatchAllOption(t *testing.T) {
	h := newHarness(t, Config{})
	h.reasoner.Decision = ai.DigitDecision{ShouldPress: false}
	h.router.HandleEvent(context.Background(), Event{Type: EventCallStarted, CallID: "CA1"})

	// "other inquiries" is the only way off this menu; the escape must
	// reach the catch-all tier instead of defaulting to the first option.
	menuText := "Press 1 for weather, press 2 for other inquiries."
	h.router.HandleEvent(context.Background(), speech("CA1", menuText))
	calls := h.reasoner.DigitCalls()

	dirs := h.router.HandleEvent(context.Background(), speech("CA1", menuText))
	sd, ok := dirs[0].(directive.SendDigits)
	if !ok {
		t.Fatalf("dirs[0] = %s, want send_digits", directive.Name(dirs[0]))
	}
	if sd.Digits != "2" {
		t.Errorf("loop escape pressed %q, want 2 (other inquiries)", sd.Digits)
	}
	if h.reasoner.DigitCalls() != calls {
		t.Error("reasoner consulted during loop escape")
	}
}

func TestDigitFallbackOnReasonerTimeout(t *testing.T) {
	h := newHarness(t, Config{AIDeadline: 20 * time.Millisecond})
	h.reasoner.BlockUntilCancel = true
	h.router.HandleEvent(context.Background(), Event{Type: EventCallStarted, CallID: "CA1"})

	dirs := h.router.HandleEvent(context.Background(), speech("CA1", "Press 1 for hours, press 2 for customer service."))
	sd, ok := dirs[0].(directive.SendDigits)
	if !ok {
		t.Fatalf("dirs[0] = %s, want send_digits", directive.Name(dirs[0]))
	}
	if sd.Digits != "2" {
		t.Errorf("fallback pressed %q, want 2 (customer service)", sd.Digits)
	}
}

func TestDigitConservativeBiasKeepsListening(t *testing.T) {
	h := newHarness(t, Config{})
	h.reasoner.Decision = ai.DigitDecision{ShouldPress: false}
	h.router.HandleEvent(context.Background(), Event{Type: EventCallStarted, CallID: "CA1"})

	dirs := h.router.HandleEvent(context.Background(), speech("CA1", "Press 1 for weather, press 2 for traffic."))
	if len(dirs) != 1 {
		t.Fatalf("got %d directives, want 1", len(dirs))
	}
	if _, ok := dirs[0].(directive.GatherSpeech); !ok {
		t.Errorf("dirs[0] = %s, want gather_speech", directive.Name(dirs[0]))
	}
}

func TestInvalidAIDigitFallsBackToRules(t *testing.T) {
	h := newHarness(t, Config{})
	h.reasoner.Decision = ai.DigitDecision{ShouldPress: true, Digit: "9"}
	h.router.HandleEvent(context.Background(), Event{Type: EventCallStarted, CallID: "CA1"})

	dirs := h.router.HandleEvent(context.Background(), speech("CA1", "Press 1 for billing help, press 2 for weather."))
	sd, ok := dirs[0].(directive.SendDigits)
	if !ok {
		t.Fatalf("dirs[0] = %s, want send_digits", directive.Name(dirs[0]))
	}
	if sd.Digits != "1" {
		t.Errorf("pressed %q, want 1 (help keyword)", sd.Digits)
	}
}

func TestMenuOptionAgentIsNotATransferOffer(t *testing.T) {
	h := newHarness(t, Config{})
	h.reasoner.Decision = ai.DigitDecision{ShouldPress: true, Digit: "1"}
	h.router.HandleEvent(context.Background(), Event{Type: EventCallStarted, CallID: "CA1"})

	h.router.HandleEvent(context.Background(), speech("CA1", "Press 1 for a live agent, press 2 for hours."))
	if len(h.reasoner.ValidatedTexts) != 0 {
		t.Error("menu-option syntax triggered transfer validation")
	}
	sess, _ := h.store.Get("CA1")
	if sess.AwaitingHumanConfirmation {
		t.Error("confirmation protocol started on a menu")
	}
}

func TestTransferOfferAsksConfirmation(t *testing.T) {
	h := newHarness(t, Config{ConfirmationQuestion: "Am I speaking with a real person?"})
	h.router.HandleEvent(context.Background(), Event{
		Type: EventCallStarted, CallID: "CA1",
		Config: session.QueryConfig{TransferDestination: "+15559998888"},
	})

	dirs := h.router.HandleEvent(context.Background(), speech("CA1", "One moment, I will transfer you to our billing team."))
	if len(dirs) != 2 {
		t.Fatalf("got %d directives, want 2", len(dirs))
	}
	sp, ok := dirs[0].(directive.Speak)
	if !ok || sp.Text != "Am I speaking with a real person?" {
		t.Fatalf("dirs[0] = %#v, want confirmation question", dirs[0])
	}
	sess, _ := h.store.Get("CA1")
	if !sess.AwaitingHumanConfirmation {
		t.Error("awaiting confirmation not set")
	}
	if sess.State != session.StateTransferConfirmPending {
		t.Errorf("state = %s, want TRANSFER_CONFIRM_PENDING", sess.State)
	}
}

func TestTransferValidationRejectFallsThrough(t *testing.T) {
	h := newHarness(t, Config{})
	h.reasoner.ValidateSet = true
	h.reasoner.Validate = false
	h.reasoner.Reply = "I'd like to reschedule my appointment."
	h.router.HandleEvent(context.Background(), Event{Type: EventCallStarted, CallID: "CA1"})

	dirs := h.router.HandleEvent(context.Background(), speech("CA1", "Connecting you now, please stay on the line."))
	if len(h.reasoner.ValidatedTexts) != 1 {
		t.Fatal("transfer validation not consulted")
	}
	// Rejected offer lands in the conversational fallback.
	sp, ok := dirs[0].(directive.Speak)
	if !ok || sp.Text != "I'd like to reschedule my appointment." {
		t.Fatalf("dirs[0] = %#v, want conversational reply", dirs[0])
	}
	sess, _ := h.store.Get("CA1")
	if sess.AwaitingHumanConfirmation {
		t.Error("confirmation protocol started on a rejected offer")
	}
}

func TestTransferValidationErrorFallsThrough(t *testing.T) {
	h := newHarness(t, Config{})
	h.reasoner.ValidateErr = errors.New("upstream unavailable")
	h.reasoner.Reply = ai.SilentReply
	h.router.HandleEvent(context.Background(), Event{Type: EventCallStarted, CallID: "CA1"})

	dirs := h.router.HandleEvent(context.Background(), speech("CA1", "I'll transfer you right away."))
	if _, ok := dirs[0].(directive.GatherSpeech); !ok {
		t.Errorf("dirs[0] = %s, want gather_speech", directive.Name(dirs[0]))
	}
	sess, _ := h.store.Get("CA1")
	if sess.AwaitingHumanConfirmation {
		t.Error("confirmation protocol started on a validation error")
	}
}

func TestUnclearConfirmationAsksAgain(t *testing.T) {
	h := newHarness(t, Config{ConfirmationQuestion: "Am I speaking with a real person?"})
	h.router.HandleEvent(context.Background(), Event{
		Type: EventCallStarted, CallID: "CA1",
		Config: session.QueryConfig{TransferDestination: "+15559998888"},
	})
	h.router.HandleEvent(context.Background(), speech("CA1", "Let me transfer you to a specialist."))

	dirs := h.router.HandleEvent(context.Background(), speech("CA1", "Um, hold on a second."))
	sp, ok := dirs[0].(directive.Speak)
	if !ok || sp.Text != "Am I speaking with a real person?" {
		t.Fatalf("dirs[0] = %#v, want repeated confirmation question", dirs[0])
	}
	sess, _ := h.store.Get("CA1")
	if !sess.AwaitingHumanConfirmation {
		t.Error("pending confirmation dropped on an unclear answer")
	}
}

func TestConversationalFallback(t *testing.T) {
	h := newHarness(t, Config{})
	h.reasoner.Reply = "I'm calling to confirm an appointment for tomorrow."
	h.router.HandleEvent(context.Background(), Event{Type: EventCallStarted, CallID: "CA1"})

	dirs := h.router.HandleEvent(context.Background(), speech("CA1", "Hello, this is Acme, how can I help you today?"))
	if len(dirs) != 2 {
		t.Fatalf("got %d directives, want 2", len(dirs))
	}
	sp, ok := dirs[0].(directive.Speak)
	if !ok || sp.Text != h.reasoner.Reply {
		t.Fatalf("dirs[0] = %#v, want generated reply", dirs[0])
	}
	if _, ok := dirs[1].(directive.GatherSpeech); !ok {
		t.Errorf("dirs[1] = %s, want gather_speech", directive.Name(dirs[1]))
	}
	sess, _ := h.store.Get("CA1")
	if len(sess.ConversationHistory) != 2 {
		t.Errorf("history has %d turns, want 2", len(sess.ConversationHistory))
	}
}

func TestSilentReplyKeepsListening(t *testing.T) {
	h := newHarness(t, Config{})
	h.reasoner.Reply = ai.SilentReply
	h.router.HandleEvent(context.Background(), Event{Type: EventCallStarted, CallID: "CA1"})

	dirs := h.router.HandleEvent(context.Background(), speech("CA1", "Your call is important to us."))
	if len(dirs) != 1 {
		t.Fatalf("got %d directives, want 1", len(dirs))
	}
	if _, ok := dirs[0].(directive.GatherSpeech); !ok {
		t.Errorf("dirs[0] = %s, want gather_speech", directive.Name(dirs[0]))
	}
	sess, _ := h.store.Get("CA1")
	if len(sess.ConversationHistory) != 1 {
		t.Errorf("history has %d turns, want 1 (callee only)", len(sess.ConversationHistory))
	}
}

func TestReplyErrorStaysSilent(t *testing.T) {
	h := newHarness(t, Config{})
	h.reasoner.ReplyErr = errors.New("upstream unavailable")
	h.router.HandleEvent(context.Background(), Event{Type: EventCallStarted, CallID: "CA1"})

	dirs := h.router.HandleEvent(context.Background(), speech("CA1", "Sorry, could you repeat that?"))
	if len(dirs) != 1 {
		t.Fatalf("got %d directives, want 1", len(dirs))
	}
	if _, ok := dirs[0].(directive.GatherSpeech); !ok {
		t.Errorf("dirs[0] = %s, want gather_speech", directive.Name(dirs[0]))
	}
}

func TestRouteLatencyRecorded(t *testing.T) {
	h := newHarness(t, Config{})
	h.router.HandleEvent(context.Background(), Event{Type: EventCallStarted, CallID: "CA1"})
	evs := h.obs.Named("route_latency_ms")
	if len(evs) != 1 {
		t.Fatalf("got %d latency events, want 1", len(evs))
	}
	if evs[0].Tags["call_sid"] != "CA1" {
		t.Errorf("call_sid tag = %q", evs[0].Tags["call_sid"])
	}
}

// Full navigation walkthrough: call start, menu, keypress, transfer offer,
// human confirmation, bridge, provider completion.
func TestFullCallWalkthrough(t *testing.T) {
	h := newHarness(t, Config{ConfirmationQuestion: "Am I speaking with a real person?"})
	h.reasoner.Decision = ai.DigitDecision{ShouldPress: true, Digit: "2", Reason: "support matches the purpose"}
	ctx := context.Background()

	dirs := h.router.HandleEvent(ctx, Event{
		Type: EventCallStarted, CallID: "CA42", To: "+15550001111",
		Config: session.QueryConfig{
			Purpose:             "ask about an order",
			TransferDestination: "+15559998888",
		},
	})
	if _, ok := dirs[0].(directive.GatherSpeech); !ok {
		t.Fatalf("step 1: got %s, want gather_speech", directive.Name(dirs[0]))
	}

	dirs = h.router.HandleEvent(ctx, speech("CA42", "Thank you for calling Acme. Press 1 for sales, press 2 for support."))
	sd, ok := dirs[0].(directive.SendDigits)
	if !ok || sd.Digits != "2" {
		t.Fatalf("step 2: got %#v, want send_digits 2", dirs[0])
	}

	dirs = h.router.HandleEvent(ctx, Event{Type: EventDTMF, CallID: "CA42", Digits: "2"})
	if _, ok := dirs[0].(directive.GatherSpeech); !ok {
		t.Fatalf("step 3: got %s, want gather_speech", directive.Name(dirs[0]))
	}

	dirs = h.router.HandleEvent(ctx, speech("CA42", "Thanks for holding, let me transfer you to our support team."))
	sp, ok := dirs[0].(directive.Speak)
	if !ok || sp.Text != "Am I speaking with a real person?" {
		t.Fatalf("step 4: got %#v, want confirmation question", dirs[0])
	}

	dirs = h.router.HandleEvent(ctx, speech("CA42", "Yes, this is John."))
	if len(dirs) != 2 {
		t.Fatalf("step 5: got %d directives, want 2", len(dirs))
	}
	dial, ok := dirs[1].(directive.Dial)
	if !ok || dial.Number != "+15559998888" {
		t.Fatalf("step 5: got %#v, want dial to destination", dirs[1])
	}
	sess, _ := h.store.Get("CA42")
	if !sess.HumanConfirmed || sess.AwaitingHumanConfirmation {
		t.Error("step 5: confirmation flags wrong after affirmative answer")
	}
	if sess.State != session.StateTransferring {
		t.Errorf("step 5: state = %s, want TRANSFERRING", sess.State)
	}

	dirs = h.router.HandleEvent(ctx, Event{Type: EventStatus, CallID: "CA42", Status: StatusCompleted})
	if len(dirs) != 0 {
		t.Fatalf("step 6: got %d directives, want 0", len(dirs))
	}
	if _, ok := h.store.Get("CA42"); ok {
		t.Error("step 6: session not cleared on completion")
	}
	waitFor(t, func() bool {
		rec, err := h.recorder.GetCall(ctx, "CA42")
		return err == nil && rec.Status == StatusCompleted && !rec.EndedAt.IsZero()
	})

	rec, err := h.recorder.GetCall(ctx, "CA42")
	if err != nil {
		t.Fatal(err)
	}
	var kinds []string
	for _, ev := range rec.Events {
		kinds = append(kinds, ev.Kind)
	}
	want := map[string]bool{
		history.EventIVRMenu:  false,
		history.EventDTMF:     false,
		history.EventTransfer: false,
	}
	for _, k := range kinds {
		if _, ok := want[k]; ok {
			want[k] = true
		}
	}
	for k, seen := range want {
		if !seen {
			t.Errorf("history missing %s event (got %v)", k, kinds)
		}
	}
}
