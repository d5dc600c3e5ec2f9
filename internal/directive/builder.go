package directive

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrEmptySpeech    = errors.New("speak step has no text")
	ErrMissingTarget  = errors.New("listen target is not configured")
	ErrRecordNotFirst = errors.New("record must be the first step")
)

// Profile holds the per-deployment voice and recognition settings applied to
// every document a Builder produces.
type Profile struct {
	Voice         string
	Language      string
	SpeechTimeout string
	Enhanced      bool
	ListenTarget  string
	ListenPrompt  string
}

// Builder accumulates steps and closes the document with either a hangup or
// a listen+redirect pair. There is no way to build a document without one.
type Builder struct {
	profile Profile
	steps   []Step
	hangup  bool
	err     error
}

func NewBuilder(p Profile) *Builder {
	return &Builder{profile: p}
}

// Record prepends a whole-call recording. It must be the first step.
func (b *Builder) Record(target string, trimSilence bool, maxDuration time.Duration) *Builder {
	if b.err != nil {
		return b
	}
	if len(b.steps) > 0 {
		b.err = ErrRecordNotFirst
		return b
	}
	if strings.TrimSpace(target) == "" {
		b.err = ErrMissingTarget
		return b
	}
	b.steps = append(b.steps, Record{Target: target, TrimSilence: trimSilence, MaxDuration: maxDuration})
	return b
}

func (b *Builder) Speak(text string) *Builder {
	if b.err != nil {
		return b
	}
	text = strings.TrimSpace(text)
	if text == "" {
		b.err = ErrEmptySpeech
		return b
	}
	b.steps = append(b.steps, Speak{Text: text, Voice: b.profile.Voice})
	return b
}

// Hangup ends the document instead of listening again.
func (b *Builder) Hangup() *Builder {
	b.hangup = true
	return b
}

func (b *Builder) Build() (Document, error) {
	if b.err != nil {
		return Document{}, b.err
	}
	steps := make([]Step, len(b.steps), len(b.steps)+2)
	copy(steps, b.steps)

	if b.hangup {
		steps = append(steps, Hangup{})
		return Document{Steps: steps}, nil
	}

	target := strings.TrimSpace(b.profile.ListenTarget)
	if target == "" {
		return Document{}, ErrMissingTarget
	}
	listen := Listen{
		Target:        target,
		Language:      b.profile.Language,
		SpeechTimeout: b.profile.SpeechTimeout,
		Enhanced:      b.profile.Enhanced,
	}
	if p := strings.TrimSpace(b.profile.ListenPrompt); p != "" {
		listen.Prompt = &Speak{Text: p, Voice: b.profile.Voice}
	}
	steps = append(steps, listen, Redirect{Target: target})

	doc := Document{Steps: steps}
	if err := doc.Validate(); err != nil {
		return Document{}, err
	}
	return doc, nil
}
