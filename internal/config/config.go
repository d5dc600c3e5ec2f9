package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the call relay service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool

	LogLevel  slog.Level
	LogFormat string

	// PublicBaseURL is the externally reachable origin Twilio uses for
	// webhooks. When empty, documents carry relative webhook paths.
	PublicBaseURL string

	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioPhoneNumber string
	TwilioAPIBaseURL  string

	AIMode            string
	OpenAIAPIKey      string
	OpenAIAPIKeyParam string
	OpenAIBaseURL     string
	AIFallbackBaseURL string
	AWSRegion         string
	AIModel           string
	AIMaxTokens       int
	AITemperature     float64
	AIPresencePenalty float64
	AITimeout         time.Duration

	SystemPrompt     string
	Greeting         string
	OutboundGreeting string
	VoiceName        string
	SpeechLanguage   string
	SpeechEnhanced   bool

	RecordCalls       bool
	RecordMaxDuration time.Duration

	TranscriptRetention time.Duration
	RegistryRetention   time.Duration
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:          envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:  envOrDefault("APP_METRICS_NAMESPACE", "callrelay"),
		ShutdownTimeout:   15 * time.Second,
		LogFormat:         strings.ToLower(envOrDefault("LOG_FORMAT", "json")),
		PublicBaseURL:     strings.TrimRight(stringsTrimSpace("PUBLIC_BASE_URL"), "/"),
		TwilioAccountSID:  stringsTrimSpace("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:   stringsTrimSpace("TWILIO_AUTH_TOKEN"),
		TwilioPhoneNumber: stringsTrimSpace("TWILIO_PHONE_NUMBER"),
		TwilioAPIBaseURL:  stringsTrimSpace("TWILIO_API_BASE_URL"),
		AIMode:            strings.ToLower(envOrDefault("AI_MODE", "auto")),
		OpenAIAPIKey:      stringsTrimSpace("OPENAI_API_KEY"),
		OpenAIAPIKeyParam: stringsTrimSpace("OPENAI_API_KEY_PARAM"),
		OpenAIBaseURL:     envOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		AIFallbackBaseURL: stringsTrimSpace("AI_FALLBACK_BASE_URL"),
		AWSRegion:         stringsTrimSpace("AWS_REGION"),
		AIModel:           envOrDefault("AI_MODEL", "gpt-3.5-turbo"),
		// Short replies keep spoken turns brief.
		AIMaxTokens:       50,
		AITemperature:     0.7,
		AIPresencePenalty: 0.6,
		AITimeout:         8 * time.Second,
		SystemPrompt:      stringsTrimSpace("RECEPTIONIST_SYSTEM_PROMPT"),
		Greeting:          stringsTrimSpace("RECEPTIONIST_GREETING"),
		OutboundGreeting:  stringsTrimSpace("RECEPTIONIST_OUTBOUND_GREETING"),
		VoiceName:         envOrDefault("VOICE_NAME", "alice"),
		SpeechLanguage:    envOrDefault("SPEECH_LANGUAGE", "en-US"),
		SpeechEnhanced:    true,
		RecordCalls:       false,
		RecordMaxDuration: time.Hour,
		// Transcripts stay readable for a while after hangup.
		TranscriptRetention: 5 * time.Minute,
		RegistryRetention:   24 * time.Hour,
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(envOrDefault("LOG_LEVEL", "info"))); err != nil {
		return Config{}, fmt.Errorf("LOG_LEVEL parse error: %w", err)
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.AIMaxTokens, err = intFromEnv("AI_MAX_TOKENS", cfg.AIMaxTokens)
	if err != nil {
		return Config{}, err
	}
	cfg.AITemperature, err = floatFromEnv("AI_TEMPERATURE", cfg.AITemperature)
	if err != nil {
		return Config{}, err
	}
	cfg.AIPresencePenalty, err = floatFromEnv("AI_PRESENCE_PENALTY", cfg.AIPresencePenalty)
	if err != nil {
		return Config{}, err
	}
	cfg.AITimeout, err = durationFromEnv("AI_TIMEOUT", cfg.AITimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SpeechEnhanced, err = boolFromEnv("SPEECH_ENHANCED", cfg.SpeechEnhanced)
	if err != nil {
		return Config{}, err
	}
	cfg.RecordCalls, err = boolFromEnv("RECORD_CALLS", cfg.RecordCalls)
	if err != nil {
		return Config{}, err
	}
	cfg.RecordMaxDuration, err = durationFromEnv("RECORD_MAX_DURATION", cfg.RecordMaxDuration)
	if err != nil {
		return Config{}, err
	}
	cfg.TranscriptRetention, err = durationFromEnv("CALL_TRANSCRIPT_RETENTION", cfg.TranscriptRetention)
	if err != nil {
		return Config{}, err
	}
	cfg.RegistryRetention, err = durationFromEnv("CALL_REGISTRY_RETENTION", cfg.RegistryRetention)
	if err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text")
	}
	switch c.AIMode {
	case "auto", "openai", "mock":
	default:
		return fmt.Errorf("AI_MODE must be auto, openai or mock")
	}
	if c.AIMaxTokens <= 0 {
		return fmt.Errorf("AI_MAX_TOKENS must be positive")
	}
	if c.AITemperature < 0 || c.AITemperature > 2 {
		return fmt.Errorf("AI_TEMPERATURE must be within [0, 2]")
	}
	if c.AIPresencePenalty < -2 || c.AIPresencePenalty > 2 {
		return fmt.Errorf("AI_PRESENCE_PENALTY must be within [-2, 2]")
	}
	if c.AITimeout <= 0 || c.AITimeout > time.Minute {
		return fmt.Errorf("AI_TIMEOUT must be within (0, 1m]")
	}
	if c.RecordMaxDuration < time.Second || c.RecordMaxDuration > 4*time.Hour {
		return fmt.Errorf("RECORD_MAX_DURATION must be within [1s, 4h]")
	}
	if c.TranscriptRetention < 0 {
		return fmt.Errorf("CALL_TRANSCRIPT_RETENTION must be >= 0")
	}
	if c.RegistryRetention < 0 {
		return fmt.Errorf("CALL_REGISTRY_RETENTION must be >= 0")
	}
	if (c.TwilioAccountSID == "") != (c.TwilioAuthToken == "") {
		return fmt.Errorf("TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN must be set together")
	}
	if c.TwilioAccountSID != "" && c.TwilioPhoneNumber == "" {
		return fmt.Errorf("TWILIO_PHONE_NUMBER is required when Twilio credentials are set")
	}
	if c.TwilioAccountSID != "" && c.PublicBaseURL == "" {
		return fmt.Errorf("PUBLIC_BASE_URL is required when Twilio credentials are set")
	}
	if c.PublicBaseURL != "" && !strings.HasPrefix(c.PublicBaseURL, "http://") && !strings.HasPrefix(c.PublicBaseURL, "https://") {
		return fmt.Errorf("PUBLIC_BASE_URL must be an http(s) URL")
	}
	return nil
}

// TwilioEnabled reports whether outbound call control can be configured.
func (c Config) TwilioEnabled() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioPhoneNumber != ""
}

// WebhookURL joins path onto PublicBaseURL. Without a public base the path
// is returned as is and Twilio resolves it against the webhook request URL;
// outbound calls always have a public base.
func (c Config) WebhookURL(path string) string {
	return c.PublicBaseURL + path
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return trimSpace(os.Getenv(key))
}

func trimSpace(v string) string {
	for len(v) > 0 && (v[0] == ' ' || v[0] == '\n' || v[0] == '\t' || v[0] == '\r') {
		v = v[1:]
	}
	for len(v) > 0 {
		c := v[len(v)-1]
		if c == ' ' || c == '\n' || c == '\t' || c == '\r' {
			v = v[:len(v)-1]
			continue
		}
		break
	}
	return v
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}
