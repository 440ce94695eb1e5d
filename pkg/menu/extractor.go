// Package menu parses IVR menu transcripts into ordered digit/label
// options and detects when a menu transcript is incomplete, i.e. split
// across multiple speech events.
package menu

import (
	"regexp"
	"strings"
)

// Option is a single selectable menu entry. Label may be empty when the
// transcript announced a digit but was cut off before its label.
type Option struct {
	Digit string
	Label string
}

// Menu is the result of extracting one transcript. Complete is false when
// the transcript appears to be the first part of a menu split across
// speech events; the caller should accumulate Options and wait for more.
type Menu struct {
	Options  []Option
	Complete bool
}

var (
	// Forward form: "press 1 for sales" / "press 2, to reach billing".
	forwardRe = regexp.MustCompile(`(?i)\bpress\s+(\d)\s*,?\s*(?:for|to)\s+([^.,;:!?]+)`)
	// Reverse form: "for sales, press 1".
	reverseRe = regexp.MustCompile(`(?i)\b(?:for|to)\s+([^.,;:!?]+?)\s*,?\s+press\s+(\d)\b`)
	// Bare form: "1 for pharmacy".
	bareRe = regexp.MustCompile(`(?i)\b(\d)\s+(?:for|to)\s+([^.,;:!?]+)`)

	rawPressRe     = regexp.MustCompile(`(?i)\bpress\s+(\d)\b`)
	tailPressRe    = regexp.MustCompile(`(?i)press\s+\d\s*$`)
	labelCutRe     = regexp.MustCompile(`(?i)\s+press\s+\d\b.*$`)
	continuationRe = regexp.MustCompile(`(?i)\b(and|or|for|to|press)$`)
)

type candidate struct {
	pos    int
	digit  string
	label  string
	pfx    int // pattern priority, lower wins
	pressy bool
}

// Extract parses a transcript into an ordered, per-digit deduplicated
// option list. Extraction is pure: the same transcript always yields the
// same result.
func Extract(text string) Menu {
	text = strings.TrimSpace(text)
	if text == "" {
		return Menu{}
	}

	var cands []candidate
	for _, m := range forwardRe.FindAllStringSubmatchIndex(text, -1) {
		cands = append(cands, candidate{
			pos:    m[0],
			digit:  text[m[2]:m[3]],
			label:  cleanLabel(text[m[4]:m[5]]),
			pfx:    0,
			pressy: true,
		})
	}
	for _, m := range reverseRe.FindAllStringSubmatchIndex(text, -1) {
		// Reject a reverse match whose label is really the tail of a
		// preceding forward match: in "press 1 for sales, press 2 for"
		// the reverse scanner must not re-associate "sales" with 2.
		if tailPressRe.MatchString(strings.TrimSpace(text[:m[0]])) {
			continue
		}
		cands = append(cands, candidate{
			pos:    m[0],
			digit:  text[m[4]:m[5]],
			label:  cleanLabel(text[m[2]:m[3]]),
			pfx:    1,
			pressy: true,
		})
	}
	for _, m := range bareRe.FindAllStringSubmatchIndex(text, -1) {
		cands = append(cands, candidate{
			pos:   m[0],
			digit: text[m[2]:m[3]],
			label: cleanLabel(text[m[4]:m[5]]),
			pfx:   2,
		})
	}

	// First-match-wins per digit, in pattern priority order.
	taken := make(map[string]bool)
	var accepted []candidate
	for pfx := 0; pfx <= 2; pfx++ {
		for _, c := range cands {
			if c.pfx != pfx || taken[c.digit] {
				continue
			}
			taken[c.digit] = true
			accepted = append(accepted, c)
		}
	}

	// Raw "press N" occurrences without an extracted label are recorded
	// with an empty label; they signal an incomplete option.
	rawPress := rawPressRe.FindAllStringSubmatchIndex(text, -1)
	for _, m := range rawPress {
		digit := text[m[2]:m[3]]
		if taken[digit] {
			continue
		}
		taken[digit] = true
		accepted = append(accepted, candidate{pos: m[0], digit: digit, pressy: true})
	}

	// Restore transcript order.
	for i := 1; i < len(accepted); i++ {
		for j := i; j > 0 && accepted[j].pos < accepted[j-1].pos; j-- {
			accepted[j], accepted[j-1] = accepted[j-1], accepted[j]
		}
	}

	opts := make([]Option, 0, len(accepted))
	for _, c := range accepted {
		opts = append(opts, Option{Digit: c.digit, Label: c.label})
	}
	return Menu{Options: opts, Complete: isComplete(text, opts, len(rawPress))}
}

func isComplete(text string, opts []Option, pressCount int) bool {
	if len(opts) == 0 {
		return false
	}
	for _, o := range opts {
		if o.Label == "" {
			return false
		}
	}
	if pressCount > 0 && pressCount != len(opts) {
		return false
	}
	if len(opts) <= 2 {
		for _, o := range opts {
			if len(o.Label) < 2 {
				return false
			}
		}
	}
	trimmed := strings.TrimSpace(text)
	last := trimmed[len(trimmed)-1]
	if last != '.' && last != '!' && last != '?' && continuationRe.MatchString(trimmed) {
		return false
	}
	return true
}

func cleanLabel(label string) string {
	label = labelCutRe.ReplaceAllString(label, "")
	label = strings.TrimSpace(label)
	label = strings.TrimSuffix(label, " and")
	label = strings.TrimSuffix(label, " or")
	return strings.TrimSpace(label)
}
