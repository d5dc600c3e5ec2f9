package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/antoniostano/callrelay/internal/callflow"
	"github.com/antoniostano/callrelay/internal/config"
	"github.com/antoniostano/callrelay/internal/conversation"
	"github.com/antoniostano/callrelay/internal/directive"
	"github.com/antoniostano/callrelay/internal/httpapi"
	"github.com/antoniostano/callrelay/internal/observability"
	"github.com/antoniostano/callrelay/internal/paramstore"
	"github.com/antoniostano/callrelay/internal/registry"
	"github.com/antoniostano/callrelay/internal/responder"
	"github.com/antoniostano/callrelay/internal/twilio"
)

const (
	speechPath    = "/webhook/speech"
	statusPath    = "/webhook/status"
	recordingPath = "/webhook/recording"

	listenPrompt = "How can I help you?"
)

type BuildResult struct {
	Config       config.Config
	Logger       *slog.Logger
	API          *httpapi.Server
	Registry     *registry.Registry
	Orchestrator *callflow.Orchestrator
	Metrics      *observability.Metrics
	Backend      string

	// Cleanup should be called on shutdown to drop in-memory call state.
	Cleanup func() error
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func NewLogger(cfg config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if strings.EqualFold(cfg.LogFormat, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// Build wires every component from cfg. keys overrides the parameter store
// client used to resolve OPENAI_API_KEY_PARAM; pass nil to use AWS SSM.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger, keys responder.KeySource) (*BuildResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	if keys == nil && cfg.OpenAIAPIKey == "" && cfg.OpenAIAPIKeyParam != "" {
		client, err := paramstore.NewFromEnvironment(ctx, cfg.AWSRegion)
		if err != nil {
			return nil, fmt.Errorf("parameter store init failed: %w", err)
		}
		keys = client
	}

	backend, err := responder.NewBackend(responder.BackendConfig{
		Mode:             cfg.AIMode,
		BaseURL:          cfg.OpenAIBaseURL,
		SecondaryBaseURL: cfg.AIFallbackBaseURL,
		APIKey:           cfg.OpenAIAPIKey,
		KeyParameter:     cfg.OpenAIAPIKeyParam,
		KeySource:        keys,
		HTTPTimeout:      cfg.AITimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("responder backend init failed: %w", err)
	}
	reply := responder.New(backend, responder.Config{
		Model:           cfg.AIModel,
		MaxTokens:       cfg.AIMaxTokens,
		Temperature:     cfg.AITemperature,
		PresencePenalty: cfg.AIPresencePenalty,
		Timeout:         cfg.AITimeout,
	}, metrics, logger.With(slog.String("component", "responder")))

	reg := registry.New()
	reg.SetRetention(cfg.RegistryRetention)
	reg.SetChangeHook(func(ev registry.Event) {
		metrics.ActiveCalls.Set(float64(reg.ActiveCount()))
	})

	opts := []callflow.Option{
		callflow.WithMetrics(metrics),
		callflow.WithLogger(logger.With(slog.String("component", "callflow"))),
	}
	if cfg.TwilioEnabled() {
		if cfg.PublicBaseURL == "" {
			return nil, errors.New("twilio call control requires PUBLIC_BASE_URL")
		}
		client, err := twilio.New(twilio.Config{
			AccountSID: cfg.TwilioAccountSID,
			AuthToken:  cfg.TwilioAuthToken,
			BaseURL:    cfg.TwilioAPIBaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("twilio client init failed: %w", err)
		}
		dialer, err := twilio.NewDialer(client, cfg.TwilioPhoneNumber, cfg.WebhookURL(statusPath))
		if err != nil {
			return nil, fmt.Errorf("twilio dialer init failed: %w", err)
		}
		opts = append(opts, callflow.WithCallControl(dialer))
	} else {
		logger.Warn("twilio credentials not set, outbound calls disabled")
	}

	orchestrator := callflow.New(callflow.Config{
		SystemPrompt:     cfg.SystemPrompt,
		Greeting:         cfg.Greeting,
		OutboundGreeting: cfg.OutboundGreeting,
		Profile: directive.Profile{
			Voice:         cfg.VoiceName,
			Language:      cfg.SpeechLanguage,
			SpeechTimeout: "auto",
			Enhanced:      cfg.SpeechEnhanced,
			ListenTarget:  cfg.WebhookURL(speechPath),
			ListenPrompt:  listenPrompt,
		},
		RecordCalls:         cfg.RecordCalls,
		RecordTarget:        cfg.WebhookURL(recordingPath),
		RecordMaxDuration:   cfg.RecordMaxDuration,
		TranscriptRetention: cfg.TranscriptRetention,
	}, conversation.NewStore(), reply, reg, opts...)

	api := httpapi.New(cfg, orchestrator, reg, metrics, logger.With(slog.String("component", "httpapi")))

	logger.Info("call relay configured",
		slog.String("backend", backend.Name()),
		slog.String("model", cfg.AIModel),
		slog.Bool("call_control", orchestrator.CallControlEnabled()),
		slog.Bool("record_calls", cfg.RecordCalls),
	)

	return &BuildResult{
		Config:       cfg,
		Logger:       logger,
		API:          api,
		Registry:     reg,
		Orchestrator: orchestrator,
		Metrics:      metrics,
		Backend:      backend.Name(),
		Cleanup: func() error {
			orchestrator.Close()
			return nil
		},
	}, nil
}
