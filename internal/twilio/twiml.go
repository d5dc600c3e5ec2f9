package twilio

import (
	"encoding/xml"
	"fmt"
	"net/http"
	"strconv"

	"github.com/antoniostano/callrelay/internal/directive"
)

// ContentType is the media type Twilio expects for webhook responses.
const ContentType = "application/xml"

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any
}

type sayVerb struct {
	XMLName xml.Name `xml:"Say"`
	Voice   string   `xml:"voice,attr,omitempty"`
	Text    string   `xml:",chardata"`
}

type gatherVerb struct {
	XMLName       xml.Name `xml:"Gather"`
	Input         string   `xml:"input,attr"`
	Action        string   `xml:"action,attr"`
	Method        string   `xml:"method,attr"`
	Language      string   `xml:"language,attr,omitempty"`
	SpeechTimeout string   `xml:"speechTimeout,attr,omitempty"`
	Enhanced      string   `xml:"enhanced,attr,omitempty"`
	Say           *sayVerb
}

type redirectVerb struct {
	XMLName xml.Name `xml:"Redirect"`
	Method  string   `xml:"method,attr"`
	URL     string   `xml:",chardata"`
}

type recordVerb struct {
	XMLName   xml.Name `xml:"Record"`
	Action    string   `xml:"action,attr"`
	Method    string   `xml:"method,attr"`
	Trim      string   `xml:"trim,attr,omitempty"`
	MaxLength string   `xml:"maxLength,attr,omitempty"`
}

type hangupVerb struct {
	XMLName xml.Name `xml:"Hangup"`
}

// Render serializes a directive document to TwiML.
func Render(doc directive.Document) ([]byte, error) {
	out := twimlResponse{Verbs: make([]any, 0, len(doc.Steps))}
	for i, step := range doc.Steps {
		switch s := step.(type) {
		case directive.Speak:
			out.Verbs = append(out.Verbs, sayVerb{Voice: s.Voice, Text: s.Text})
		case directive.Listen:
			g := gatherVerb{
				Input:         "speech",
				Action:        s.Target,
				Method:        http.MethodPost,
				Language:      s.Language,
				SpeechTimeout: s.SpeechTimeout,
			}
			if s.Enhanced {
				g.Enhanced = "true"
			}
			if s.Prompt != nil && s.Prompt.Text != "" {
				g.Say = &sayVerb{Voice: s.Prompt.Voice, Text: s.Prompt.Text}
			}
			out.Verbs = append(out.Verbs, g)
		case directive.Redirect:
			out.Verbs = append(out.Verbs, redirectVerb{Method: http.MethodPost, URL: s.Target})
		case directive.Record:
			r := recordVerb{Action: s.Target, Method: http.MethodPost}
			if s.TrimSilence {
				r.Trim = "trim-silence"
			}
			if s.MaxDuration > 0 {
				r.MaxLength = strconv.Itoa(int(s.MaxDuration.Seconds()))
			}
			out.Verbs = append(out.Verbs, r)
		case directive.Hangup:
			out.Verbs = append(out.Verbs, hangupVerb{})
		default:
			return nil, fmt.Errorf("twilio: unsupported step %d of type %T", i, step)
		}
	}

	body, err := xml.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("twilio: marshal twiml: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}

// EmptyResponse is a TwiML document with no verbs.
func EmptyResponse() []byte {
	return []byte(xml.Header + "<Response></Response>")
}
