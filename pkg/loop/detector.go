// Package loop detects IVR menu repetition within a call. A repeated
// digit:label pair means the automated system is replaying itself and the
// navigator should act instead of deliberating again.
package loop

import (
	"strings"

	"github.com/voxhop/ivrnav/pkg/menu"
)

// DefaultMaxHistory bounds the per-call fingerprint memory.
const DefaultMaxHistory = 64

// Detector checks resolved menus against a call's fingerprint history.
// The history itself lives on the call session; the detector only holds
// policy (the history bound), so one instance serves all calls.
type Detector struct {
	maxHistory int
}

func NewDetector(maxHistory int) *Detector {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	return &Detector{maxHistory: maxHistory}
}

// Check reports whether any option of a resolved menu repeats a
// fingerprint already recorded for the call. When no repetition is found
// the new fingerprints are appended (oldest dropped past the bound) and
// the updated history is returned. The same digit with a different label
// is not a repeat.
func (d *Detector) Check(history []string, opts []menu.Option) (bool, []string) {
	seen := make(map[string]bool, len(history))
	for _, fp := range history {
		seen[fp] = true
	}
	for _, o := range opts {
		if seen[Fingerprint(o)] {
			return true, history
		}
	}
	for _, o := range opts {
		fp := Fingerprint(o)
		if seen[fp] {
			continue
		}
		seen[fp] = true
		history = append(history, fp)
	}
	if over := len(history) - d.maxHistory; over > 0 {
		history = append([]string(nil), history[over:]...)
	}
	return false, history
}

// Fingerprint is the identity of a menu option within loop detection.
func Fingerprint(o menu.Option) string {
	return o.Digit + ":" + strings.ToLower(strings.TrimSpace(o.Label))
}
