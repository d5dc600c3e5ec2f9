package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want :8080", cfg.BindAddr)
	}
	if cfg.AIModel != "gpt-3.5-turbo" || cfg.AIMaxTokens != 50 {
		t.Fatalf("AI defaults = %q/%d", cfg.AIModel, cfg.AIMaxTokens)
	}
	if cfg.AITemperature != 0.7 || cfg.AIPresencePenalty != 0.6 {
		t.Fatalf("sampling defaults = %v/%v", cfg.AITemperature, cfg.AIPresencePenalty)
	}
	if cfg.VoiceName != "alice" || cfg.SpeechLanguage != "en-US" || !cfg.SpeechEnhanced {
		t.Fatalf("voice defaults = %q/%q/%v", cfg.VoiceName, cfg.SpeechLanguage, cfg.SpeechEnhanced)
	}
	if cfg.RecordMaxDuration != time.Hour {
		t.Fatalf("RecordMaxDuration = %v, want 1h", cfg.RecordMaxDuration)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel = %v, want info", cfg.LogLevel)
	}
	if cfg.TwilioEnabled() {
		t.Fatalf("TwilioEnabled() = true without credentials")
	}
	if got := cfg.WebhookURL("/webhook/speech"); got != "/webhook/speech" {
		t.Fatalf("WebhookURL() = %q, want relative path", got)
	}
}

func TestLoadOverrides(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_BIND_ADDR", ":9191")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("PUBLIC_BASE_URL", "https://relay.example.com/")
	t.Setenv("AI_TEMPERATURE", "0.2")
	t.Setenv("AI_TIMEOUT", "3s")
	t.Setenv("RECORD_CALLS", "true")
	t.Setenv("TWILIO_ACCOUNT_SID", "AC1")
	t.Setenv("TWILIO_AUTH_TOKEN", "token")
	t.Setenv("TWILIO_PHONE_NUMBER", "+15550000000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LogLevel != slog.LevelDebug || cfg.LogFormat != "text" {
		t.Fatalf("logging = %v/%q", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.AITemperature != 0.2 || cfg.AITimeout != 3*time.Second {
		t.Fatalf("AI overrides = %v/%v", cfg.AITemperature, cfg.AITimeout)
	}
	if !cfg.RecordCalls {
		t.Fatalf("RecordCalls = false, want true")
	}
	if !cfg.TwilioEnabled() {
		t.Fatalf("TwilioEnabled() = false with full credentials")
	}
	if got := cfg.WebhookURL("/webhook/status"); got != "https://relay.example.com/webhook/status" {
		t.Fatalf("WebhookURL() = %q", got)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"AI_MODE":             "psychic",
		"AI_MAX_TOKENS":       "0",
		"AI_TEMPERATURE":      "3",
		"AI_PRESENCE_PENALTY": "nope",
		"AI_TIMEOUT":          "0s",
		"LOG_FORMAT":          "xml",
		"LOG_LEVEL":           "loud",
		"RECORD_MAX_DURATION": "10h",
		"PUBLIC_BASE_URL":     "ftp://example.com",
		"SPEECH_ENHANCED":     "maybe",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			setCoreEnvEmpty(t)
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() with %s=%q succeeded, want error", key, value)
			}
		})
	}
}

func TestLoadRejectsPartialTwilioCredentials(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("TWILIO_ACCOUNT_SID", "AC1")
	if _, err := Load(); err == nil {
		t.Fatalf("Load() error = nil, want error for missing auth token")
	}

	t.Setenv("TWILIO_AUTH_TOKEN", "token")
	if _, err := Load(); err == nil {
		t.Fatalf("Load() error = nil, want error for missing phone number")
	}
}

func TestLoadRequiresPublicBaseURLForTwilio(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("TWILIO_ACCOUNT_SID", "AC1")
	t.Setenv("TWILIO_AUTH_TOKEN", "token")
	t.Setenv("TWILIO_PHONE_NUMBER", "+15550000000")
	if _, err := Load(); err == nil {
		t.Fatalf("Load() error = nil, want error for missing PUBLIC_BASE_URL")
	}

	t.Setenv("PUBLIC_BASE_URL", "https://relay.example.com")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := cfg.WebhookURL("/webhook/speech"); got != "https://relay.example.com/webhook/speech" {
		t.Fatalf("WebhookURL() = %q", got)
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"LOG_LEVEL",
		"LOG_FORMAT",
		"PUBLIC_BASE_URL",
		"TWILIO_ACCOUNT_SID",
		"TWILIO_AUTH_TOKEN",
		"TWILIO_PHONE_NUMBER",
		"TWILIO_API_BASE_URL",
		"AI_MODE",
		"OPENAI_API_KEY",
		"OPENAI_API_KEY_PARAM",
		"OPENAI_BASE_URL",
		"AI_FALLBACK_BASE_URL",
		"AWS_REGION",
		"AI_MODEL",
		"AI_MAX_TOKENS",
		"AI_TEMPERATURE",
		"AI_PRESENCE_PENALTY",
		"AI_TIMEOUT",
		"RECEPTIONIST_SYSTEM_PROMPT",
		"RECEPTIONIST_GREETING",
		"RECEPTIONIST_OUTBOUND_GREETING",
		"VOICE_NAME",
		"SPEECH_LANGUAGE",
		"SPEECH_ENHANCED",
		"RECORD_CALLS",
		"RECORD_MAX_DURATION",
		"CALL_TRANSCRIPT_RETENTION",
		"CALL_REGISTRY_RETENTION",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
