package menu

import (
	"regexp"
	"strings"
)

// MergeOptions merges a continuation of an incomplete menu into the
// options accumulated so far. Identity is the (digit, label) pair, label
// compared case-insensitively; order of first appearance is preserved.
// A labeled option replaces an earlier empty-label placeholder for the
// same digit.
func MergeOptions(accumulated, next []Option) []Option {
	out := make([]Option, 0, len(accumulated)+len(next))
	seen := make(map[string]int)
	for _, o := range accumulated {
		key := identity(o)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = len(out)
		out = append(out, o)
	}
	for _, o := range next {
		key := identity(o)
		if _, ok := seen[key]; ok {
			continue
		}
		if o.Label != "" {
			// Fill in a placeholder left by a cut-off transcript.
			if idx, ok := seen[identity(Option{Digit: o.Digit})]; ok && out[idx].Label == "" {
				out[idx].Label = o.Label
				seen[key] = idx
				continue
			}
		}
		seen[key] = len(out)
		out = append(out, o)
	}
	return out
}

func identity(o Option) string {
	return o.Digit + ":" + strings.ToLower(strings.TrimSpace(o.Label))
}

// FillCutoff labels a trailing placeholder left by a cut-off transcript
// ("press 2 for" / "billing, press 3 ...") with the continuation's leading
// fragment. Without a placeholder or a fragment the input is returned
// unchanged.
func FillCutoff(accumulated []Option, continuation string) []Option {
	if len(accumulated) == 0 || accumulated[len(accumulated)-1].Label != "" {
		return accumulated
	}
	frag := leadingFragment(continuation)
	if frag == "" {
		return accumulated
	}
	out := make([]Option, len(accumulated))
	copy(out, accumulated)
	out[len(out)-1].Label = frag
	return out
}

// Labeled returns the options that carry a label; a digit whose label
// never arrived tells the caller nothing and is dropped.
func Labeled(opts []Option) []Option {
	out := make([]Option, 0, len(opts))
	for _, o := range opts {
		if o.Label != "" {
			out = append(out, o)
		}
	}
	return out
}

// leadingFragment returns the text preceding the first option pattern,
// cleaned up as a label.
func leadingFragment(text string) string {
	text = strings.TrimSpace(text)
	first := len(text)
	for _, re := range []*regexp.Regexp{forwardRe, reverseRe, bareRe, rawPressRe} {
		if loc := re.FindStringIndex(text); loc != nil && loc[0] < first {
			first = loc[0]
		}
	}
	if first == 0 || first == len(text) {
		return ""
	}
	return cleanLabel(strings.Trim(text[:first], " ,.;:"))
}
