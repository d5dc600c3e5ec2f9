package callflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/antoniostano/callrelay/internal/directive"
	"github.com/antoniostano/callrelay/internal/registry"
)

func TestNormalizeNumber(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{in: "+15551234567", want: "+15551234567", ok: true},
		{in: "15551234567", want: "+15551234567", ok: true},
		{in: " +1 (555) 123-4567 ", want: "+15551234567", ok: true},
		{in: "44.20.7946.0958", want: "+442079460958", ok: true},
		{in: "", ok: false},
		{in: "+", ok: false},
		{in: "12345", ok: false},
		{in: "1234567890123456", ok: false},
		{in: "+1555abc4567", ok: false},
		{in: "++15551234567", ok: false},
	}
	for _, tc := range cases {
		got, err := NormalizeNumber(tc.in)
		if !tc.ok {
			require.ErrorIs(t, err, ErrInvalidNumber, "input %q", tc.in)
			continue
		}
		require.NoError(t, err, "input %q", tc.in)
		require.Equal(t, tc.want, got)
	}
}

func TestPlaceCallDialsAndTracks(t *testing.T) {
	ctl := &fakeControl{}
	o, store, reg := newTestOrchestrator(t, &echoReplier{}, nil, WithCallControl(ctl))

	callID, err := o.PlaceCall(context.Background(), OutboundRequest{To: "15551234567", Greeting: "Hi, this is the clinic calling."})
	require.NoError(t, err)
	require.Equal(t, "CA001", callID)
	require.Equal(t, []string{"+15551234567"}, ctl.dialed)

	greeting := ctl.greetings[0]
	require.NoError(t, greeting.Validate())
	require.Equal(t, []string{"Hi, this is the clinic calling."}, greeting.SpokenText())
	require.Equal(t, directive.KindListen, greeting.Steps[1].Kind())

	s, err := reg.Get(callID)
	require.NoError(t, err)
	require.Equal(t, registry.DirectionOutbound, s.Direction)
	require.Equal(t, registry.StateInitiated, s.State)
	require.Equal(t, "+15551234567", s.To)

	require.True(t, store.Exists(callID))
	require.Equal(t, PhaseGreeting, o.Phase(callID))
}

func TestPlaceCallDefaultGreeting(t *testing.T) {
	ctl := &fakeControl{}
	o, _, _ := newTestOrchestrator(t, &echoReplier{}, nil, WithCallControl(ctl))

	_, err := o.PlaceCall(context.Background(), OutboundRequest{To: "+15551234567"})
	require.NoError(t, err)
	require.Equal(t, []string{DefaultOutboundGreeting}, ctl.greetings[0].SpokenText())
}

func TestPlaceCallRejectsInvalidNumberBeforeDialing(t *testing.T) {
	ctl := &fakeControl{}
	o, _, _ := newTestOrchestrator(t, &echoReplier{}, nil, WithCallControl(ctl))

	_, err := o.PlaceCall(context.Background(), OutboundRequest{To: "not a number"})
	require.ErrorIs(t, err, ErrInvalidNumber)
	require.Empty(t, ctl.dialed)
}

func TestPlaceCallWithoutCallControl(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, &echoReplier{}, nil)
	_, err := o.PlaceCall(context.Background(), OutboundRequest{To: "+15551234567"})
	require.ErrorIs(t, err, ErrCallControlUnavailable)
}

func TestPlaceCallWrapsDialError(t *testing.T) {
	dialErr := errors.New("trial account cannot call unverified numbers")
	o, _, reg := newTestOrchestrator(t, &echoReplier{}, nil, WithCallControl(&fakeControl{dialErr: dialErr}))

	_, err := o.PlaceCall(context.Background(), OutboundRequest{To: "+15551234567"})
	require.ErrorIs(t, err, dialErr)
	require.Empty(t, reg.List())
}

func TestOutboundCallTurnLoop(t *testing.T) {
	ctl := &fakeControl{}
	o, store, _ := newTestOrchestrator(t, &echoReplier{}, nil, WithCallControl(ctl))

	callID, err := o.PlaceCall(context.Background(), OutboundRequest{To: "+15551234567"})
	require.NoError(t, err)

	doc := o.HandleSpeech(context.Background(), SpeechEvent{CallID: callID, Direction: registry.DirectionOutbound, Text: "who is this?"})
	require.Equal(t, []string{"echo: who is this?"}, doc.SpokenText())
	require.Len(t, store.History(callID), 3)
}
