package twilio

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/voxhop/ivrnav/pkg/directive"
)

const emptyResponse = `<Response></Response>`

// twimlPaths are the webhook paths rendered into action attributes.
// Relative paths resolve against the current webhook URL on Twilio's side.
type twimlPaths struct {
	speech string
	dtmf   string
	status string
}

// renderTwiML serializes a directive list into one TwiML response,
// preserving order. An empty list renders an empty response, which makes
// Twilio wait for the next instruction.
func renderTwiML(dirs []directive.Directive, paths twimlPaths) string {
	var b strings.Builder
	b.WriteString("<Response>")
	for _, d := range dirs {
		switch v := d.(type) {
		case directive.Speak:
			b.WriteString("<Say")
			if v.Voice != "" {
				fmt.Fprintf(&b, " voice=%q", xmlEscape(v.Voice))
			}
			if v.Locale != "" {
				fmt.Fprintf(&b, " language=%q", xmlEscape(v.Locale))
			}
			b.WriteString(">")
			b.WriteString(xmlEscape(v.Text))
			b.WriteString("</Say>")
		case directive.GatherSpeech:
			action := v.CallbackURL
			if action == "" {
				action = paths.speech
			}
			fmt.Fprintf(&b, `<Gather input="speech" action=%q method="POST" speechTimeout="auto"`, xmlEscape(action))
			if v.TimeoutSec > 0 {
				fmt.Fprintf(&b, ` timeout="%d"`, v.TimeoutSec)
			}
			b.WriteString("/>")
			// Silence falls through the gather; redirecting to the
			// speech webhook with no SpeechResult lets the router see
			// it (dead-end detection).
			fmt.Fprintf(&b, `<Redirect method="POST">%s</Redirect>`, xmlEscape(action))
		case directive.SendDigits:
			if v.PauseSec > 0 {
				fmt.Fprintf(&b, `<Pause length="%d"/>`, v.PauseSec)
			}
			fmt.Fprintf(&b, `<Play digits=%q/>`, xmlEscape(v.Digits))
			ack := paths.dtmf + "?digits=" + url.QueryEscape(v.Digits)
			fmt.Fprintf(&b, `<Redirect method="POST">%s</Redirect>`, xmlEscape(ack))
		case directive.Dial:
			action := v.CallbackURL
			if action == "" {
				action = paths.status
			}
			fmt.Fprintf(&b, `<Dial action=%q method="POST">%s</Dial>`, xmlEscape(action), xmlEscape(v.Number))
		case directive.Hangup:
			b.WriteString("<Hangup/>")
		}
	}
	b.WriteString("</Response>")
	return b.String()
}

func xmlEscape(in string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		"\"", "&quot;",
		"'", "&apos;",
	)
	return replacer.Replace(in)
}
