// Package ai defines the contract with the external reasoning service
// used for semantic menu matching and free-form conversational replies.
// Callers treat every failure or timeout as "no confident answer".
package ai

import (
	"context"
	"strings"

	"github.com/voxhop/ivrnav/pkg/menu"
	"github.com/voxhop/ivrnav/pkg/session"
)

// SilentReply is the literal reply meaning "say nothing".
const SilentReply = "silent"

// DigitRequest asks which menu digit best serves the call's purpose.
type DigitRequest struct {
	Transcript         string
	Purpose            string
	CustomInstructions string
	Options            []menu.Option
}

// DigitDecision is the reasoner's answer to a DigitRequest.
type DigitDecision struct {
	ShouldPress   bool   `json:"should_press"`
	Digit         string `json:"digit"`
	MatchedOption string `json:"matched_option"`
	Reason        string `json:"reason"`
}

// ReplyRequest asks for a conversational reply to non-menu speech.
type ReplyRequest struct {
	Purpose            string
	CustomInstructions string
	Transcript         string
	FirstTurn          bool
	History            []session.Turn
}

// Reasoner is the external AI reasoning service. Implementations must
// honor the context deadline; callers never block the call-control
// response beyond it.
type Reasoner interface {
	// DecideDigit picks a digit from a resolved menu, or declines.
	DecideDigit(ctx context.Context, req DigitRequest) (DigitDecision, error)
	// GenerateReply produces a spoken reply; SilentReply or an empty
	// string means say nothing.
	GenerateReply(ctx context.Context, req ReplyRequest) (string, error)
	// ValidateTransfer judges whether a transcript plausibly comes from
	// a real human offering to transfer, guarding against automated
	// phrasing that merely sounds like one.
	ValidateTransfer(ctx context.Context, transcript string) (bool, error)
	Name() string
}

// IsSilent reports whether a generated reply means "say nothing".
func IsSilent(reply string) bool {
	reply = strings.ToLower(strings.TrimSpace(reply))
	return reply == "" || reply == SilentReply
}
