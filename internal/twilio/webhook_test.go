package twilio

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/antoniostano/callrelay/internal/registry"
)

func formRequest(t *testing.T, values url.Values) *http.Request {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(values.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return r
}

func TestParseCallStarted(t *testing.T) {
	ev, err := ParseCallStarted(formRequest(t, url.Values{
		"CallSid":   {"CA1"},
		"From":      {"+15550001111"},
		"To":        {"+15550002222"},
		"Direction": {"inbound"},
	}))
	require.NoError(t, err)
	require.Equal(t, "CA1", ev.CallID)
	require.Equal(t, registry.DirectionInbound, ev.Direction)
	require.Equal(t, "+15550001111", ev.From)
	require.Equal(t, "+15550002222", ev.To)
}

func TestParseRequiresCallSid(t *testing.T) {
	_, err := ParseCallStarted(formRequest(t, url.Values{"From": {"+1555"}}))
	require.ErrorIs(t, err, ErrMissingCallSid)
	_, err = ParseSpeechResult(formRequest(t, url.Values{}))
	require.ErrorIs(t, err, ErrMissingCallSid)
	_, err = ParseStatusCallback(formRequest(t, url.Values{"CallStatus": {"completed"}}))
	require.ErrorIs(t, err, ErrMissingCallSid)
}

func TestParseSpeechResult(t *testing.T) {
	r := formRequest(t, url.Values{
		"CallSid":      {"CA1"},
		"SpeechResult": {"  I need an appointment "},
		"Confidence":   {"0.92"},
		"Direction":    {"outbound-api"},
	})
	r.Header.Set(IdempotencyHeader, "tok-1")

	ev, err := ParseSpeechResult(r)
	require.NoError(t, err)
	require.Equal(t, "I need an appointment", ev.Text)
	require.InDelta(t, 0.92, ev.Confidence, 1e-9)
	require.Equal(t, "tok-1", ev.RequestID)
	require.Equal(t, registry.DirectionOutbound, ev.Direction)
}

func TestParseSpeechResultWithoutSpeech(t *testing.T) {
	ev, err := ParseSpeechResult(formRequest(t, url.Values{"CallSid": {"CA1"}}))
	require.NoError(t, err)
	require.Empty(t, ev.Text)
	require.Empty(t, ev.RequestID)
}

func TestParseStatusCallback(t *testing.T) {
	ev, err := ParseStatusCallback(formRequest(t, url.Values{
		"CallSid":      {"CA1"},
		"CallStatus":   {"completed"},
		"CallDuration": {"37"},
		"Timestamp":    {"Tue, 14 Jan 2025 10:00:00 +0000"},
	}))
	require.NoError(t, err)
	require.Equal(t, registry.StateCompleted, ev.State)
	require.Equal(t, 37*time.Second, ev.Duration)
	require.Equal(t, time.Date(2025, 1, 14, 10, 0, 0, 0, time.UTC), ev.At)
}

func TestParseStatusCallbackRejectsUnknownStatus(t *testing.T) {
	_, err := ParseStatusCallback(formRequest(t, url.Values{"CallSid": {"CA1"}, "CallStatus": {"teleported"}}))
	require.Error(t, err)
}

func TestParseRecording(t *testing.T) {
	rec, err := ParseRecording(formRequest(t, url.Values{
		"CallSid":           {"CA1"},
		"RecordingSid":      {"RE1"},
		"RecordingUrl":      {"https://api.twilio.com/rec/RE1"},
		"RecordingDuration": {"12"},
	}))
	require.NoError(t, err)
	require.Equal(t, "RE1", rec.RecordingSID)
	require.Equal(t, 12*time.Second, rec.Duration)
}

func TestMapStatus(t *testing.T) {
	cases := map[string]registry.State{
		"queued":      registry.StateInitiated,
		"initiated":   registry.StateInitiated,
		"ringing":     registry.StateRinging,
		"in-progress": registry.StateInProgress,
		"answered":    registry.StateInProgress,
		"completed":   registry.StateCompleted,
		"busy":        registry.StateBusy,
		"no-answer":   registry.StateNoAnswer,
		"failed":      registry.StateFailed,
		"canceled":    registry.StateCanceled,
	}
	for in, want := range cases {
		got, ok := MapStatus(in)
		require.True(t, ok, in)
		require.Equal(t, want, got, in)
	}
	_, ok := MapStatus("")
	require.False(t, ok)
}

func TestMapDirection(t *testing.T) {
	require.Equal(t, registry.DirectionInbound, MapDirection("inbound"))
	require.Equal(t, registry.DirectionOutbound, MapDirection("outbound-api"))
	require.Equal(t, registry.DirectionOutbound, MapDirection("outbound-dial"))
	require.Equal(t, registry.Direction(""), MapDirection(""))
}
