package responder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/antoniostano/callrelay/internal/conversation"
	"github.com/antoniostano/callrelay/internal/observability"
)

// DefaultFallbackText is spoken whenever the backend cannot produce a reply.
const DefaultFallbackText = "I apologize, but I'm having trouble processing your request. Could you please try again?"

const (
	DefaultModel           = "gpt-3.5-turbo"
	DefaultMaxTokens       = 50
	DefaultTemperature     = 0.7
	DefaultPresencePenalty = 0.6
	DefaultTimeout         = 8 * time.Second
)

// Config holds the fixed per-deployment generation parameters.
type Config struct {
	Model           string
	MaxTokens       int
	Temperature     float64
	PresencePenalty float64
	Timeout         time.Duration
	FallbackText    string
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Model) == "" {
		c.Model = DefaultModel
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if strings.TrimSpace(c.FallbackText) == "" {
		c.FallbackText = DefaultFallbackText
	}
	return c
}

// Result is the outcome of one Reply. Text is never empty. Degraded is set
// when Text is the fallback apology, in which case Err carries the cause.
type Result struct {
	Text     string
	Degraded bool
	Err      error
	Latency  time.Duration
}

type Responder struct {
	backend Backend
	cfg     Config
	metrics *observability.Metrics
	logger  *slog.Logger
}

func New(backend Backend, cfg Config, metrics *observability.Metrics, logger *slog.Logger) *Responder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Responder{
		backend: backend,
		cfg:     cfg.withDefaults(),
		metrics: metrics,
		logger:  logger,
	}
}

func (r *Responder) Config() Config {
	return r.cfg
}

func (r *Responder) BackendName() string {
	if r.backend == nil {
		return "none"
	}
	return r.backend.Name()
}

// Reply asks the backend for the next assistant turn. The backend call is
// detached from ctx cancellation and bounded by the configured timeout.
func (r *Responder) Reply(ctx context.Context, history []conversation.Turn) Result {
	start := time.Now()
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.Timeout)
	defer cancel()

	text, err := r.complete(callCtx, history)
	latency := time.Since(start)
	if r.metrics != nil {
		r.metrics.ObserveResponderLatency(latency)
	}
	if err != nil {
		code := errorCode(err)
		if r.metrics != nil {
			r.metrics.ProviderErrors.WithLabelValues(r.BackendName(), code).Inc()
		}
		r.logger.Warn("responder fell back to apology",
			slog.String("backend", r.BackendName()),
			slog.String("code", code),
			slog.Duration("latency", latency),
			slog.Any("error", err),
		)
		return Result{Text: r.cfg.FallbackText, Degraded: true, Err: err, Latency: latency}
	}
	return Result{Text: text, Latency: latency}
}

func (r *Responder) complete(ctx context.Context, history []conversation.Turn) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			text = ""
			err = fmt.Errorf("backend panic: %v", rec)
		}
	}()
	if r.backend == nil {
		return "", errors.New("no backend configured")
	}
	if len(history) == 0 {
		return "", errors.New("empty conversation history")
	}
	out, err := r.backend.Complete(ctx, Request{
		Model:           r.cfg.Model,
		Messages:        history,
		MaxTokens:       r.cfg.MaxTokens,
		Temperature:     r.cfg.Temperature,
		PresencePenalty: r.cfg.PresencePenalty,
	})
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", ErrEmptyReply
	}
	return out, nil
}

func errorCode(err error) string {
	var statusErr *HTTPStatusError
	switch {
	case errors.As(err, &statusErr):
		return fmt.Sprintf("http_%d", statusErr.StatusCode)
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrEmptyReply):
		return "empty_reply"
	default:
		return "backend_error"
	}
}
