package navigator

import (
	"context"
	"strings"

	"github.com/voxhop/ivrnav/pkg/ai"
	"github.com/voxhop/ivrnav/pkg/directive"
	"github.com/voxhop/ivrnav/pkg/errorsx"
	"github.com/voxhop/ivrnav/pkg/menu"
	"github.com/voxhop/ivrnav/pkg/metrics"
	"github.com/voxhop/ivrnav/pkg/session"
)

// Keyword tiers for the rule fallback, strongest match first.
var humanKeywords = []string{"representative", "agent", "operator", "customer service", "speak to"}
var helpKeywords = []string{"support", "help", "assistance"}
var catchAllKeywords = []string{"other", "additional"}

// selectDigit decides which menu option to press. The reasoning service
// gets the first word; on failure or an out-of-menu answer the keyword
// tiers take over; with no confident match at all the agent stays silent
// and keeps listening.
func (r *Router) selectDigit(ctx context.Context, ev Event, snap session.CallSession, opts []menu.Option) []directive.Directive {
	dctx, cancel := context.WithTimeout(ctx, r.cfg.AIDeadline)
	defer cancel()
	dec, err := r.reasoner.DecideDigit(dctx, ai.DigitRequest{
		Purpose:            snap.Config.Purpose,
		CustomInstructions: snap.Config.CustomInstructions,
		Transcript:         ev.Transcript,
		Options:            opts,
	})
	if err != nil {
		r.log.Warn("digit_decision_failed",
			"call_sid", ev.CallID,
			"reason_code", string(errorsx.Reason(err)),
			"error", err.Error(),
		)
	} else if dec.ShouldPress {
		if opt, ok := optionForDigit(opts, dec.Digit); ok {
			reason := dec.Reason
			if reason == "" {
				reason = "selected " + labelOrDigit(opt)
			}
			return r.press(ev.CallID, opt.Digit, reason)
		}
		r.log.Warn("digit_decision_invalid",
			"call_sid", ev.CallID,
			"digit", dec.Digit,
		)
	}

	if opt, ok := matchKeywords(opts, humanKeywords); ok {
		return r.press(ev.CallID, opt.Digit, "rule match: human option "+labelOrDigit(opt))
	}
	if opt, ok := matchKeywords(opts, helpKeywords); ok {
		return r.press(ev.CallID, opt.Digit, "rule match: help option "+labelOrDigit(opt))
	}
	if opt, ok := matchKeywords(opts, catchAllKeywords); ok {
		return r.press(ev.CallID, opt.Digit, "rule match: catch-all option "+labelOrDigit(opt))
	}

	// No confident match. Pressing a wrong digit is worse than waiting:
	// many menus repeat themselves or route to an operator on silence.
	r.log.Info("digit_undecided", "call_sid", ev.CallID, "options", len(opts))
	return r.listen()
}

// press records the keypress and emits the tone. The DTMF acknowledgement
// webhook resumes listening afterwards.
func (r *Router) press(callID, digit, reason string) []directive.Directive {
	r.history.AddDTMF(callID, digit, reason)
	r.log.Info("digit_pressed", "call_sid", callID, "digit", digit, "reason", reason)
	if r.obs != nil {
		mev := metrics.CallEvent("digit_pressed", callID, 1)
		mev.Tags["digit"] = digit
		r.obs.RecordEvent(mev)
	}
	return []directive.Directive{
		directive.SendDigits{Digits: digit, PauseSec: r.cfg.DigitPauseSec},
	}
}

// loopEscapeOption picks the way out of a replaying menu through the same
// keyword tiers as the rule fallback, defaulting to the first option.
func loopEscapeOption(opts []menu.Option) menu.Option {
	for _, tier := range [][]string{humanKeywords, helpKeywords, catchAllKeywords} {
		if opt, ok := matchKeywords(opts, tier); ok {
			return opt
		}
	}
	return opts[0]
}

func matchKeywords(opts []menu.Option, keywords []string) (menu.Option, bool) {
	for _, kw := range keywords {
		for _, opt := range opts {
			if strings.Contains(strings.ToLower(opt.Label), kw) {
				return opt, true
			}
		}
	}
	return menu.Option{}, false
}

func optionForDigit(opts []menu.Option, digit string) (menu.Option, bool) {
	for _, opt := range opts {
		if opt.Digit == digit {
			return opt, true
		}
	}
	return menu.Option{}, false
}

func labelOrDigit(opt menu.Option) string {
	if opt.Label != "" {
		return opt.Label
	}
	return "option " + opt.Digit
}
