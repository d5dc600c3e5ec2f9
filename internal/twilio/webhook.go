package twilio

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/antoniostano/callrelay/internal/callflow"
	"github.com/antoniostano/callrelay/internal/registry"
)

// IdempotencyHeader carries Twilio's per-delivery token; retries reuse it.
const IdempotencyHeader = "I-Twilio-Idempotency-Token"

var ErrMissingCallSid = errors.New("twilio: CallSid is required")

func parseForm(r *http.Request) (string, error) {
	if err := r.ParseForm(); err != nil {
		return "", fmt.Errorf("twilio: parse form: %w", err)
	}
	sid := strings.TrimSpace(r.PostForm.Get("CallSid"))
	if sid == "" {
		sid = strings.TrimSpace(r.Form.Get("CallSid"))
	}
	if sid == "" {
		return "", ErrMissingCallSid
	}
	return sid, nil
}

// ParseCallStarted reads the voice webhook Twilio sends when a call connects.
func ParseCallStarted(r *http.Request) (callflow.CallStarted, error) {
	sid, err := parseForm(r)
	if err != nil {
		return callflow.CallStarted{}, err
	}
	return callflow.CallStarted{
		CallID:    sid,
		Direction: MapDirection(r.Form.Get("Direction")),
		From:      strings.TrimSpace(r.Form.Get("From")),
		To:        strings.TrimSpace(r.Form.Get("To")),
	}, nil
}

// ParseSpeechResult reads a Gather action callback. A missing SpeechResult
// is an empty utterance, not an error.
func ParseSpeechResult(r *http.Request) (callflow.SpeechEvent, error) {
	sid, err := parseForm(r)
	if err != nil {
		return callflow.SpeechEvent{}, err
	}
	ev := callflow.SpeechEvent{
		CallID:    sid,
		Direction: MapDirection(r.Form.Get("Direction")),
		Text:      strings.TrimSpace(r.Form.Get("SpeechResult")),
		RequestID: strings.TrimSpace(r.Header.Get(IdempotencyHeader)),
	}
	if raw := strings.TrimSpace(r.Form.Get("Confidence")); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			ev.Confidence = v
		}
	}
	return ev, nil
}

// ParseStatusCallback reads a call status callback. Unknown statuses are
// rejected so they never reach the registry.
func ParseStatusCallback(r *http.Request) (callflow.StatusUpdate, error) {
	sid, err := parseForm(r)
	if err != nil {
		return callflow.StatusUpdate{}, err
	}
	raw := strings.TrimSpace(r.Form.Get("CallStatus"))
	state, ok := MapStatus(raw)
	if !ok {
		return callflow.StatusUpdate{}, fmt.Errorf("twilio: unknown call status %q", raw)
	}
	ev := callflow.StatusUpdate{
		CallID:    sid,
		Direction: MapDirection(r.Form.Get("Direction")),
		State:     state,
		From:      strings.TrimSpace(r.Form.Get("From")),
		To:        strings.TrimSpace(r.Form.Get("To")),
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(r.Form.Get("CallDuration"))); err == nil && secs > 0 {
		ev.Duration = time.Duration(secs) * time.Second
	}
	if ts := strings.TrimSpace(r.Form.Get("Timestamp")); ts != "" {
		if at, err := time.Parse(time.RFC1123Z, ts); err == nil {
			ev.At = at.UTC()
		}
	}
	return ev, nil
}

// RecordingResult is the payload of a Record action callback.
type RecordingResult struct {
	CallID       string
	RecordingSID string
	RecordingURL string
	Duration     time.Duration
}

func ParseRecording(r *http.Request) (RecordingResult, error) {
	sid, err := parseForm(r)
	if err != nil {
		return RecordingResult{}, err
	}
	out := RecordingResult{
		CallID:       sid,
		RecordingSID: strings.TrimSpace(r.Form.Get("RecordingSid")),
		RecordingURL: strings.TrimSpace(r.Form.Get("RecordingUrl")),
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(r.Form.Get("RecordingDuration"))); err == nil && secs > 0 {
		out.Duration = time.Duration(secs) * time.Second
	}
	return out, nil
}

// MapStatus maps a Twilio CallStatus onto a registry state.
func MapStatus(status string) (registry.State, bool) {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "queued", "initiated":
		return registry.StateInitiated, true
	case "ringing":
		return registry.StateRinging, true
	case "in-progress", "answered":
		return registry.StateInProgress, true
	case "completed":
		return registry.StateCompleted, true
	case "busy":
		return registry.StateBusy, true
	case "no-answer":
		return registry.StateNoAnswer, true
	case "failed":
		return registry.StateFailed, true
	case "canceled":
		return registry.StateCanceled, true
	default:
		return "", false
	}
}

// MapDirection maps Twilio's direction ("inbound", "outbound-api",
// "outbound-dial") onto a registry direction.
func MapDirection(dir string) registry.Direction {
	dir = strings.ToLower(strings.TrimSpace(dir))
	if strings.HasPrefix(dir, "outbound") {
		return registry.DirectionOutbound
	}
	if dir == "inbound" {
		return registry.DirectionInbound
	}
	return ""
}
