package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/antoniostano/callrelay/internal/callflow"
	"github.com/antoniostano/callrelay/internal/config"
)

func testConfig() config.Config {
	return config.Config{
		MetricsNamespace:    "test_app",
		LogFormat:           "json",
		AIMode:              "mock",
		AIModel:             "gpt-3.5-turbo",
		AIMaxTokens:         50,
		AITimeout:           time.Second,
		VoiceName:           "alice",
		SpeechLanguage:      "en-US",
		SpeechEnhanced:      true,
		RecordMaxDuration:   time.Hour,
		TranscriptRetention: time.Minute,
	}
}

func TestBuildWiresMockBackend(t *testing.T) {
	var logs bytes.Buffer
	cfg := testConfig()
	res, err := Build(context.Background(), cfg, NewLogger(cfg, &logs), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = res.Cleanup() })

	require.Equal(t, "mock", res.Backend)
	require.False(t, res.Orchestrator.CallControlEnabled())
	require.Contains(t, logs.String(), "call relay configured")

	ts := httptest.NewServer(res.API.Router())
	defer ts.Close()

	form := url.Values{"CallSid": {"CA1"}, "SpeechResult": {"hello"}}
	httpRes, err := http.Post(ts.URL+"/webhook/speech", "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	require.NoError(t, err)
	defer httpRes.Body.Close()
	require.Equal(t, http.StatusOK, httpRes.StatusCode)

	entries, err := res.Orchestrator.Transcript("CA1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "I heard you: hello", entries[1].Text)
	require.Equal(t, 1, res.Registry.ActiveCount())
}

func TestBuildWiresTwilioDialer(t *testing.T) {
	var gotForm url.Values
	twilioAPI := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		gotForm = r.PostForm
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"sid": "CA77"})
	}))
	defer twilioAPI.Close()

	cfg := testConfig()
	cfg.PublicBaseURL = "https://relay.example.com"
	cfg.TwilioAccountSID = "AC1"
	cfg.TwilioAuthToken = "token"
	cfg.TwilioPhoneNumber = "+15550000000"
	cfg.TwilioAPIBaseURL = twilioAPI.URL

	res, err := Build(context.Background(), cfg, NewLogger(cfg, &bytes.Buffer{}), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = res.Cleanup() })
	require.True(t, res.Orchestrator.CallControlEnabled())

	callID, err := res.Orchestrator.PlaceCall(context.Background(), callflow.OutboundRequest{To: "5551234567"})
	require.NoError(t, err)
	require.Equal(t, "CA77", callID)
	require.Equal(t, "https://relay.example.com/webhook/status", gotForm.Get("StatusCallback"))
	require.Contains(t, gotForm.Get("Twiml"), `action="https://relay.example.com/webhook/speech"`)
}

func TestBuildRejectsTwilioWithoutPublicBaseURL(t *testing.T) {
	cfg := testConfig()
	cfg.TwilioAccountSID = "AC1"
	cfg.TwilioAuthToken = "token"
	cfg.TwilioPhoneNumber = "+15550000000"
	_, err := Build(context.Background(), cfg, NewLogger(cfg, &bytes.Buffer{}), nil)
	require.ErrorContains(t, err, "PUBLIC_BASE_URL")
}

func TestBuildRejectsOpenAIModeWithoutKey(t *testing.T) {
	cfg := testConfig()
	cfg.AIMode = "openai"
	_, err := Build(context.Background(), cfg, NewLogger(cfg, &bytes.Buffer{}), nil)
	require.Error(t, err)
}

func TestBuildUsesInjectedKeySource(t *testing.T) {
	cfg := testConfig()
	cfg.AIMode = "openai"
	cfg.OpenAIAPIKeyParam = "/callrelay/openai"
	res, err := Build(context.Background(), cfg, NewLogger(cfg, &bytes.Buffer{}), staticKeys("sk-test"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = res.Cleanup() })
	require.Equal(t, "openai", res.Backend)
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	cfg := testConfig()
	cfg.LogFormat = "text"
	NewLogger(cfg, &buf).Info("hello")
	require.Contains(t, buf.String(), "msg=hello")

	buf.Reset()
	cfg.LogFormat = "json"
	NewLogger(cfg, &buf).Info("hello")
	require.Contains(t, buf.String(), `"msg":"hello"`)
}

type staticKeys string

func (k staticKeys) GetParameter(context.Context, string) (string, error) {
	return string(k), nil
}
