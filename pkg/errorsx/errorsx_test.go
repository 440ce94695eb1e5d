package errorsx

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrapAttachesReason(t *testing.T) {
	base := errors.New("deadline exceeded")
	err := Wrap(base, ReasonAIDecide)
	if Reason(err) != ReasonAIDecide {
		t.Fatalf("expected reason %s, got %s", ReasonAIDecide, Reason(err))
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to unwrap to base")
	}
}

func TestWrapKeepsFirstReason(t *testing.T) {
	err := Wrap(errors.New("boom"), ReasonHistoryWrite)
	err = Wrap(err, ReasonAIReply)
	if Reason(err) != ReasonHistoryWrite {
		t.Fatalf("expected first reason to stick, got %s", Reason(err))
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, ReasonAIDecide) != nil {
		t.Fatalf("expected nil for nil error")
	}
}

func TestReasonThroughFmtWrap(t *testing.T) {
	inner := Wrap(errors.New("429"), ReasonAIRateLimit)
	outer := fmt.Errorf("decide digit: %w", inner)
	if !HasReason(outer, ReasonAIRateLimit) {
		t.Fatalf("expected reason to survive fmt wrapping")
	}
}

func TestReasonUnknownForPlainError(t *testing.T) {
	if Reason(errors.New("plain")) != ReasonUnknown {
		t.Fatalf("expected unknown reason for plain error")
	}
}
