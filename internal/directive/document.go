package directive

import (
	"errors"
	"fmt"
)

var ErrDeadEnd = errors.New("document has no next action")

// Document is an ordered list of steps returned to the provider.
type Document struct {
	Steps []Step
}

// Terminal reports whether the document ends the call.
func (d Document) Terminal() bool {
	n := len(d.Steps)
	return n > 0 && d.Steps[n-1].Kind() == KindHangup
}

// Kinds lists the step kinds in order.
func (d Document) Kinds() []Kind {
	out := make([]Kind, 0, len(d.Steps))
	for _, s := range d.Steps {
		out = append(out, s.Kind())
	}
	return out
}

// Validate checks that the document ends in a hangup, or in a listen followed
// by a redirect to the same endpoint. Anything else would leave the call
// without a next provider action.
func (d Document) Validate() error {
	n := len(d.Steps)
	if n == 0 {
		return ErrDeadEnd
	}
	if d.Terminal() {
		return nil
	}
	if n < 2 {
		return ErrDeadEnd
	}
	listen, ok := d.Steps[n-2].(Listen)
	if !ok {
		return ErrDeadEnd
	}
	redirect, ok := d.Steps[n-1].(Redirect)
	if !ok {
		return ErrDeadEnd
	}
	if listen.Target == "" || listen.Target != redirect.Target {
		return fmt.Errorf("%w: listen target %q, redirect target %q", ErrDeadEnd, listen.Target, redirect.Target)
	}
	return nil
}

// SpokenText returns the text of every top-level speak step, in order.
func (d Document) SpokenText() []string {
	var out []string
	for _, s := range d.Steps {
		if sp, ok := s.(Speak); ok {
			out = append(out, sp.Text)
		}
	}
	return out
}

// Farewell speaks text and hangs up. It cannot fail, which makes it the
// fallback for every path that is unable to build a regular document.
func Farewell(voice, text string) Document {
	steps := make([]Step, 0, 2)
	if text != "" {
		steps = append(steps, Speak{Text: text, Voice: voice})
	}
	steps = append(steps, Hangup{})
	return Document{Steps: steps}
}
