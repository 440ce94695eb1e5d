package patterns

import (
	"testing"
	"time"
)

func TestIsMenu(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"Press 1 for sales, press 2 for support.", true},
		{"For billing, press 3.", true},
		{"1 for pharmacy, 2 for deli.", true},
		{"Please listen carefully as our menu options have changed.", true},
		{"Hello, how can I help you today?", false},
		{"", false},
		{"   ", false},
	}
	for _, tc := range cases {
		if got := IsMenu(tc.text); got != tc.want {
			t.Errorf("IsMenu(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestIsTransferRequest(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"Hold on, let me transfer you to our billing department.", true},
		{"One moment while I connect you.", true},
		{"I'm putting you through to a specialist.", true},
		// Menu syntax wins over transfer language.
		{"Press 1 for a live agent.", false},
		{"To speak with a representative, press 0.", false},
		// Offering help is not a transfer.
		{"How can I help you today?", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := IsTransferRequest(tc.text); got != tc.want {
			t.Errorf("IsTransferRequest(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestClassifyTermination(t *testing.T) {
	cases := []struct {
		text string
		want Termination
	}{
		{"Please leave a message after the tone.", TerminationVoicemail},
		{"We are closed. Our business hours are 9 to 5.", TerminationClosed},
		// Voicemail wins when both cues are present.
		{"We are currently closed, please leave a message after the beep.", TerminationVoicemail},
		// Closed language with a menu still offers a way forward.
		{"We are closed, but press 1 to leave a callback number.", TerminationNone},
		{"Thanks for calling, how can I help?", TerminationNone},
		{"", TerminationNone},
	}
	for _, tc := range cases {
		if got := ClassifyTermination(tc.text); got != tc.want {
			t.Errorf("ClassifyTermination(%q) = %s, want %s", tc.text, got, tc.want)
		}
	}
}

func TestIsDeadEnd(t *testing.T) {
	closed := "Sorry, we are closed today."
	if !IsDeadEnd(closed, "", 8*time.Second, 0) {
		t.Fatalf("expected dead end after closed announcement and long silence")
	}
	if IsDeadEnd(closed, "", 3*time.Second, 0) {
		t.Fatalf("silence below threshold must not be a dead end")
	}
	if IsDeadEnd(closed, "Press 1 for hours.", 10*time.Second, 0) {
		t.Fatalf("non-empty transcript must not be a dead end")
	}
	if IsDeadEnd("Welcome to Acme.", "", 10*time.Second, 0) {
		t.Fatalf("dead end requires a prior closed announcement")
	}
	withMenu := "We are currently closed. Press 1 to hear our business hours."
	if !IsDeadEnd(withMenu, "", 10*time.Second, 0) {
		t.Fatalf("closed announcement with a menu still dead-ends on silence")
	}
}

func TestIsAffirmative(t *testing.T) {
	yes := []string{
		"Yes",
		"yeah, this is John",
		"Correct.",
		"This is a real person.",
		"Speaking.",
	}
	for _, s := range yes {
		if !IsAffirmative(s) {
			t.Errorf("IsAffirmative(%q) = false, want true", s)
		}
	}
	no := []string{"", "no", "please hold", "what is this regarding?"}
	for _, s := range no {
		if IsAffirmative(s) {
			t.Errorf("IsAffirmative(%q) = true, want false", s)
		}
	}
}
