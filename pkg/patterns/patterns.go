// Package patterns provides stateless transcript classifiers for IVR
// navigation: menu detection, transfer offers, termination cues, and
// human-confirmation answers. All functions treat empty input as false.
package patterns

import (
	"regexp"
	"strings"
)

var (
	pressDigitRe  = regexp.MustCompile(`(?i)\bpress\s+(?:\d|star|pound)\b`)
	digitForRe    = regexp.MustCompile(`(?i)\b\d\s+(?:for|to)\s+\w`)
	forPressRe    = regexp.MustCompile(`(?i)\b(?:for|to)\s+[\w\s']+?,?\s+press\s+\d`)
	menuKeywordRe = regexp.MustCompile(`(?i)\b(main menu|menu options|following options|options have changed|listen (?:carefully|closely))\b`)

	transferRe  = regexp.MustCompile(`(?i)\b(transfer(?:ring)? you|connect(?:ing)? you|put(?:ting)? you through|patch(?:ing)? you through|get you (?:to|over to)|hand(?:ing)? you (?:off|over)|let me (?:get|grab|find) (?:you )?(?:a|an|someone)|one moment while i (?:connect|transfer))\b`)
	offerHelpRe = regexp.MustCompile(`(?i)\b(how (?:can|may) i help|what can i (?:help|do)|is there anything (?:else )?i can help)\b`)

	affirmativeRe = regexp.MustCompile(`(?i)^\W*(yes|yeah|yep|yup|correct|right|sure|absolutely|indeed|of course|that'?s (?:right|correct|me)|this is (?:a real person|\w+)|speaking)\b`)
)

// IsMenu reports whether the transcript contains digit-selection cues.
func IsMenu(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	return pressDigitRe.MatchString(text) ||
		digitForRe.MatchString(text) ||
		forPressRe.MatchString(text) ||
		menuKeywordRe.MatchString(text)
}

// IsTransferRequest reports whether the transcript contains explicit
// transfer or human-connection language. Menu-option syntax wins: a
// transcript like "press 1 for a live agent" is a menu, not a transfer
// offer, and questions merely offering help do not count either.
func IsTransferRequest(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	if pressDigitRe.MatchString(text) || forPressRe.MatchString(text) {
		return false
	}
	if offerHelpRe.MatchString(text) && !transferRe.MatchString(text) {
		return false
	}
	return transferRe.MatchString(text)
}

// IsAffirmative reports whether the transcript is an affirmative answer
// to the human-confirmation question.
func IsAffirmative(text string) bool {
	return affirmativeRe.MatchString(strings.TrimSpace(text))
}
