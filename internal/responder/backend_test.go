package responder

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/antoniostano/callrelay/internal/conversation"
)

func TestNewBackendAutoFallsBackToMockWithoutCredentials(t *testing.T) {
	b, err := NewBackend(BackendConfig{Mode: "auto"})
	require.NoError(t, err)
	require.Equal(t, "mock", b.Name())

	text, err := b.Complete(context.Background(), Request{Messages: []conversation.Turn{
		{Role: conversation.RoleSystem, Content: "prompt"},
		{Role: conversation.RoleUser, Content: "hello"},
	}})
	require.NoError(t, err)
	require.Equal(t, "I heard you: hello", text)
}

func TestNewBackendOpenAIRequiresCredentials(t *testing.T) {
	_, err := NewBackend(BackendConfig{Mode: "openai"})
	require.Error(t, err)
}

func TestNewBackendRejectsUnknownMode(t *testing.T) {
	_, err := NewBackend(BackendConfig{Mode: "carrier-pigeon"})
	require.Error(t, err)
}

func TestNewBackendWrapsSecondaryURL(t *testing.T) {
	b, err := NewBackend(BackendConfig{
		Mode:             "auto",
		APIKey:           "sk-test",
		BaseURL:          "http://primary.invalid",
		SecondaryBaseURL: "http://secondary.invalid",
	})
	require.NoError(t, err)
	fb, ok := b.(*FallbackBackend)
	require.True(t, ok)
	require.Equal(t, "openai", fb.Primary().Name())
	require.Equal(t, "openai", fb.Secondary().Name())
}

func TestNewBackendAcceptsKeyParameter(t *testing.T) {
	b, err := NewBackend(BackendConfig{
		Mode:         "openai",
		KeyParameter: "/callrelay/openai",
		KeySource:    staticKeySource{value: "sk"},
	})
	require.NoError(t, err)
	require.Equal(t, "openai", b.Name())
}

func TestMockBackendWithoutUserTurn(t *testing.T) {
	text, err := NewMockBackend().Complete(context.Background(), Request{Messages: []conversation.Turn{
		{Role: conversation.RoleSystem, Content: "prompt"},
	}})
	require.NoError(t, err)
	require.Equal(t, "I am listening.", text)
}

func TestFallbackBackendUsesSecondary(t *testing.T) {
	b := NewFallbackBackend(errBackend{}, &countingBackend{text: "fallback"})
	text, err := b.Complete(context.Background(), Request{})
	require.NoError(t, err)
	require.Equal(t, "fallback", text)
}

func TestFallbackBackendSkipsSecondaryOnCanceledContext(t *testing.T) {
	fb := &countingBackend{text: "fallback"}
	b := NewFallbackBackend(cancelBackend{}, fb)
	_, err := b.Complete(context.Background(), Request{})
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, fb.calls)
}

func TestFallbackBackendReportsBothErrors(t *testing.T) {
	b := NewFallbackBackend(errBackend{}, errBackend{})
	_, err := b.Complete(context.Background(), Request{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "fallback backend error")
}

type staticKeySource struct {
	value string
	err   error
	calls *int
}

func (s staticKeySource) GetParameter(context.Context, string) (string, error) {
	if s.calls != nil {
		*s.calls++
	}
	return s.value, s.err
}

type errBackend struct{}

func (errBackend) Name() string { return "err" }

func (errBackend) Complete(context.Context, Request) (string, error) {
	return "", errors.New("boom")
}

type cancelBackend struct{}

func (cancelBackend) Name() string { return "cancel" }

func (cancelBackend) Complete(context.Context, Request) (string, error) {
	return "", context.Canceled
}

type countingBackend struct {
	text  string
	calls int
}

func (*countingBackend) Name() string { return "counting" }

func (b *countingBackend) Complete(context.Context, Request) (string, error) {
	b.calls++
	return b.text, nil
}
