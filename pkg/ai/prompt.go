package ai

import (
	"fmt"
	"strings"
)

// BuildDigitPrompt renders a DigitRequest as the user message sent to the
// reasoning model. The model must answer with a JSON object matching
// DigitDecision.
func BuildDigitPrompt(req DigitRequest) string {
	var b strings.Builder
	b.WriteString("An automated phone menu said:\n")
	b.WriteString(strings.TrimSpace(req.Transcript))
	b.WriteString("\n\nExtracted options:\n")
	for _, o := range req.Options {
		fmt.Fprintf(&b, "- press %s: %s\n", o.Digit, o.Label)
	}
	fmt.Fprintf(&b, "\nCall purpose: %s\n", req.Purpose)
	if strings.TrimSpace(req.CustomInstructions) != "" {
		fmt.Fprintf(&b, "Additional instructions: %s\n", req.CustomInstructions)
	}
	b.WriteString("\nPick the single option that best advances the call purpose. " +
		"Respond with JSON: {\"should_press\": bool, \"digit\": string, " +
		"\"matched_option\": string, \"reason\": string}. " +
		"Set should_press to false if no option clearly fits.")
	return b.String()
}

// BuildReplyPrompt renders a ReplyRequest as the user message for a
// conversational turn.
func BuildReplyPrompt(req ReplyRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are on a phone call. Call purpose: %s\n", req.Purpose)
	if strings.TrimSpace(req.CustomInstructions) != "" {
		fmt.Fprintf(&b, "Additional instructions: %s\n", req.CustomInstructions)
	}
	if len(req.History) > 0 {
		b.WriteString("\nConversation so far:\n")
		for _, t := range req.History {
			fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Text)
		}
	}
	if req.FirstTurn {
		b.WriteString("\nThis is the first thing said on the call.\n")
	}
	fmt.Fprintf(&b, "\nThe other party said: %s\n", strings.TrimSpace(req.Transcript))
	b.WriteString("\nReply with one short natural sentence to say out loud, " +
		"or exactly \"silent\" if saying nothing is better.")
	return b.String()
}

// BuildTransferPrompt asks whether a transcript is a genuine human
// transfer offer.
func BuildTransferPrompt(transcript string) string {
	return "On a phone call, the other side said:\n" +
		strings.TrimSpace(transcript) +
		"\n\nIs this plausibly a real person offering to transfer or connect " +
		"the caller, rather than an automated system announcement? " +
		"Answer with exactly \"yes\" or \"no\"."
}
