package patterns

import (
	"regexp"
	"strings"
	"time"
)

// Termination classifies why a call should be ended.
type Termination int

const (
	TerminationNone Termination = iota
	// TerminationVoicemail means the call reached a voicemail prompt.
	TerminationVoicemail
	// TerminationClosed means a closed-business announcement with no
	// interactive menu was heard.
	TerminationClosed
	// TerminationDeadEnd means a closed announcement was followed by
	// prolonged silence.
	TerminationDeadEnd
)

func (t Termination) String() string {
	switch t {
	case TerminationVoicemail:
		return "voicemail"
	case TerminationClosed:
		return "closed"
	case TerminationDeadEnd:
		return "dead_end"
	default:
		return "none"
	}
}

// DefaultDeadEndSilence is the silence threshold after a closed
// announcement before the call is considered a dead end.
const DefaultDeadEndSilence = 7 * time.Second

var (
	voicemailRe = regexp.MustCompile(`(?i)\b(voice\s?mail|leave (?:a|your) message|after the (?:tone|beep)|at the (?:tone|beep)|record your message|mailbox|is not available.{0,40}message|unable to take your call)\b`)
	closedRe    = regexp.MustCompile(`(?i)\b((?:we are|we're|office is|we is|currently) closed|outside (?:of )?(?:our )?(?:normal |regular )?business hours|call (?:back|again) during|our (?:normal |regular )?(?:business |office )?hours are|closed (?:for the day|today|on))\b`)
)

// ClassifyTermination inspects a transcript for termination cues.
// Voicemail takes priority over a closed announcement; a closed
// announcement only terminates when no digit menu is offered alongside it.
func ClassifyTermination(text string) Termination {
	if strings.TrimSpace(text) == "" {
		return TerminationNone
	}
	if voicemailRe.MatchString(text) {
		return TerminationVoicemail
	}
	if closedRe.MatchString(text) && !IsMenu(text) {
		return TerminationClosed
	}
	return TerminationNone
}

// IsDeadEnd reports whether a call has gone silent after a closed
// announcement: the previous transcript contained closed language, the
// current transcript is empty, and the elapsed silence exceeds the
// threshold (DefaultDeadEndSilence when threshold <= 0). Unlike
// ClassifyTermination, menu language alongside the closed announcement
// does not matter here; the silence shows the menu led nowhere.
func IsDeadEnd(prevSpeech, current string, silence, threshold time.Duration) bool {
	if strings.TrimSpace(current) != "" {
		return false
	}
	if threshold <= 0 {
		threshold = DefaultDeadEndSilence
	}
	if silence < threshold {
		return false
	}
	return closedRe.MatchString(prevSpeech)
}
