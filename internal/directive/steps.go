// Package directive builds provider-agnostic voice-response documents: the
// ordered instructions a telephony provider runs next on a live call.
package directive

import "time"

type Kind string

const (
	KindSpeak    Kind = "speak"
	KindListen   Kind = "listen"
	KindRedirect Kind = "redirect"
	KindRecord   Kind = "record"
	KindHangup   Kind = "hangup"
)

// Step is one instruction of a Document. The set of implementations is closed.
type Step interface {
	Kind() Kind
	step()
}

// Speak synthesizes Text with the given voice identity.
type Speak struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

// Listen asks the provider for the next utterance and posts the recognized
// text to Target. Prompt, when set, is spoken while listening.
type Listen struct {
	Target        string `json:"target"`
	Language      string `json:"language,omitempty"`
	SpeechTimeout string `json:"speech_timeout,omitempty"`
	Enhanced      bool   `json:"enhanced,omitempty"`
	Prompt        *Speak `json:"prompt,omitempty"`
}

// Redirect re-enters the turn loop when Listen captured nothing.
type Redirect struct {
	Target string `json:"target"`
}

// Record starts a whole-call recording.
type Record struct {
	Target      string        `json:"target"`
	TrimSilence bool          `json:"trim_silence,omitempty"`
	MaxDuration time.Duration `json:"max_duration,omitempty"`
}

type Hangup struct{}

func (Speak) Kind() Kind    { return KindSpeak }
func (Listen) Kind() Kind   { return KindListen }
func (Redirect) Kind() Kind { return KindRedirect }
func (Record) Kind() Kind   { return KindRecord }
func (Hangup) Kind() Kind   { return KindHangup }

func (Speak) step()    {}
func (Listen) step()   {}
func (Redirect) step() {}
func (Record) step()   {}
func (Hangup) step()   {}
