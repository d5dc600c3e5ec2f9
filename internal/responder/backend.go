// Package responder turns a call's conversation into the next spoken reply
// using a chat-completion backend.
package responder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/antoniostano/callrelay/internal/conversation"
)

var ErrEmptyReply = errors.New("backend returned an empty reply")

// Request is the normalized chat-completion request sent to a Backend.
type Request struct {
	Model           string
	Messages        []conversation.Turn
	MaxTokens       int
	Temperature     float64
	PresencePenalty float64
}

// Backend produces a single reply for an ordered turn sequence.
type Backend interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}

// KeySource resolves named secrets, e.g. from a parameter store.
type KeySource interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// BackendConfig controls backend construction.
type BackendConfig struct {
	Mode             string
	BaseURL          string
	SecondaryBaseURL string
	APIKey           string
	KeyParameter     string
	KeySource        KeySource
	HTTPTimeout      time.Duration
}

func NewBackend(cfg BackendConfig) (Backend, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if !hasCredentials(cfg) {
			return NewMockBackend(), nil
		}
		return newOpenAIFromConfig(cfg)
	case "openai":
		if !hasCredentials(cfg) {
			return nil, errors.New("openai mode requires OPENAI_API_KEY or OPENAI_API_KEY_PARAM")
		}
		return newOpenAIFromConfig(cfg)
	case "mock":
		return NewMockBackend(), nil
	default:
		return nil, fmt.Errorf("unsupported responder mode %q", cfg.Mode)
	}
}

func hasCredentials(cfg BackendConfig) bool {
	if strings.TrimSpace(cfg.APIKey) != "" {
		return true
	}
	return strings.TrimSpace(cfg.KeyParameter) != "" && cfg.KeySource != nil
}

func newOpenAIFromConfig(cfg BackendConfig) (Backend, error) {
	build := func(baseURL string) (*OpenAIBackend, error) {
		opts := []OpenAIOption{WithBaseURL(baseURL)}
		if cfg.HTTPTimeout > 0 {
			opts = append(opts, WithHTTPTimeout(cfg.HTTPTimeout))
		}
		if strings.TrimSpace(cfg.APIKey) != "" {
			opts = append(opts, WithAPIKey(cfg.APIKey))
		} else {
			opts = append(opts, WithKeyParameter(cfg.KeySource, cfg.KeyParameter))
		}
		return NewOpenAIBackend(opts...)
	}

	primary, err := build(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.SecondaryBaseURL) == "" {
		return primary, nil
	}
	secondary, err := build(cfg.SecondaryBaseURL)
	if err != nil {
		return nil, err
	}
	return NewFallbackBackend(primary, secondary), nil
}
