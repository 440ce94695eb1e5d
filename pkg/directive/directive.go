// Package directive defines the ordered call-control instructions the
// navigator emits. Directives are transport-agnostic; adapters serialize
// them into their provider's wire format.
package directive

// Directive is one atomic call-control instruction.
type Directive interface {
	directive()
}

// Speak says text to the remote party.
type Speak struct {
	Text   string
	Voice  string
	Locale string
}

// GatherSpeech listens for the next speech result.
type GatherSpeech struct {
	TimeoutSec  int
	CallbackURL string
}

// SendDigits plays DTMF tones. PauseSec is an explicit pre-tone pause so
// timing policy lives in the directive, not in the transport adapter.
type SendDigits struct {
	Digits   string
	PauseSec int
}

// Dial bridges the call to another number.
type Dial struct {
	Number      string
	CallbackURL string
}

// Hangup ends the call.
type Hangup struct{}

func (Speak) directive()        {}
func (GatherSpeech) directive() {}
func (SendDigits) directive()   {}
func (Dial) directive()         {}
func (Hangup) directive()       {}

// Name returns a short identifier for logging and history records.
func Name(d Directive) string {
	switch d.(type) {
	case Speak:
		return "speak"
	case GatherSpeech:
		return "gather_speech"
	case SendDigits:
		return "send_digits"
	case Dial:
		return "dial"
	case Hangup:
		return "hangup"
	default:
		return "unknown"
	}
}
