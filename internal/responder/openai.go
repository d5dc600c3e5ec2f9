package responder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/antoniostano/callrelay/internal/paramstore"
	"github.com/antoniostano/callrelay/internal/reliability"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the minimal request shape for the Chat Completions endpoint.
type chatRequest struct {
	Model           string        `json:"model"`
	Messages        []chatMessage `json:"messages"`
	MaxTokens       int           `json:"max_tokens,omitempty"`
	Temperature     *float64      `json:"temperature,omitempty"`
	PresencePenalty *float64      `json:"presence_penalty,omitempty"`
}

// chatResponse is the minimal response shape returned by the Chat Completions endpoint.
type chatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Index   int         `json:"index"`
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("openai: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// OpenAIBackend talks to an OpenAI-compatible chat completions endpoint.
type OpenAIBackend struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	retryBase  time.Duration

	staticKey string
	keySource KeySource
	keyParam  string

	keyMu sync.Mutex
	key   string
}

type OpenAIOption func(*OpenAIBackend)

func WithBaseURL(baseURL string) OpenAIOption {
	return func(b *OpenAIBackend) {
		if v := strings.TrimSpace(baseURL); v != "" {
			b.baseURL = v
		}
	}
}

func WithHTTPClient(httpClient *http.Client) OpenAIOption {
	return func(b *OpenAIBackend) {
		b.httpClient = httpClient
	}
}

func WithHTTPTimeout(d time.Duration) OpenAIOption {
	return func(b *OpenAIBackend) {
		b.httpClient = &http.Client{Timeout: d}
	}
}

func WithAPIKey(key string) OpenAIOption {
	return func(b *OpenAIBackend) {
		b.staticKey = strings.TrimSpace(key)
	}
}

// WithKeyParameter resolves the API key from src on first use. A failed
// lookup is retried on the next request; a successful one is cached.
func WithKeyParameter(src KeySource, name string) OpenAIOption {
	return func(b *OpenAIBackend) {
		b.keySource = src
		b.keyParam = strings.TrimSpace(name)
	}
}

// WithRetry sets how many extra attempts are made for retryable failures.
func WithRetry(maxRetries int, base time.Duration) OpenAIOption {
	return func(b *OpenAIBackend) {
		if maxRetries < 0 {
			maxRetries = 0
		}
		b.maxRetries = maxRetries
		b.retryBase = base
	}
}

func NewOpenAIBackend(opts ...OpenAIOption) (*OpenAIBackend, error) {
	b := &OpenAIBackend{
		baseURL:    defaultOpenAIBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		maxRetries: 1,
		retryBase:  200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.staticKey == "" && (b.keySource == nil || b.keyParam == "") {
		return nil, errors.New("openai: an API key or key parameter is required")
	}
	return b, nil
}

func (*OpenAIBackend) Name() string { return "openai" }

func (b *OpenAIBackend) resolveAPIKey(ctx context.Context) (string, error) {
	if b.staticKey != "" {
		return b.staticKey, nil
	}
	b.keyMu.Lock()
	defer b.keyMu.Unlock()
	if b.key != "" {
		return b.key, nil
	}
	raw, err := b.keySource.GetParameter(ctx, b.keyParam)
	if err != nil {
		return "", fmt.Errorf("openai: fetch api key: %w", err)
	}
	key, err := paramstore.SecretValue(raw)
	if err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}
	b.key = key
	return key, nil
}

func chatURL(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = defaultOpenAIBaseURL
	}
	if strings.HasSuffix(base, "/v1") {
		return base + "/chat/completions"
	}
	return base + "/v1/chat/completions"
}

func (b *OpenAIBackend) Complete(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.Model) == "" {
		return "", errors.New("openai: model must not be empty")
	}
	apiKey, err := b.resolveAPIKey(ctx)
	if err != nil {
		return "", err
	}

	payload := chatRequest{
		Model:     req.Model,
		Messages:  make([]chatMessage, 0, len(req.Messages)),
		MaxTokens: req.MaxTokens,
	}
	temperature := req.Temperature
	presence := req.PresencePenalty
	payload.Temperature = &temperature
	payload.PresencePenalty = &presence
	for _, m := range req.Messages {
		payload.Messages = append(payload.Messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("openai: marshal request: %w", err)
	}

	url := chatURL(b.baseURL)
	for attempt := 0; ; attempt++ {
		text, err := b.post(ctx, url, apiKey, body)
		if err == nil {
			return text, nil
		}
		if attempt >= b.maxRetries || !reliability.IsRetryable(err) {
			return "", err
		}
		wait := reliability.ExponentialBackoff(attempt, b.retryBase, 2*time.Second)
		if sleepErr := reliability.Sleep(ctx, wait); sleepErr != nil {
			return "", err
		}
	}
}

func (b *OpenAIBackend) post(ctx context.Context, url, apiKey string, body []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("openai: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	client := b.httpClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	res, err := client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("openai: send request: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return "", &HTTPStatusError{StatusCode: res.StatusCode, URL: url, Body: string(buf)}
	}

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("openai: read response body: %w", err)
	}
	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("openai: decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("openai: no choices in response")
	}
	text := strings.TrimSpace(out.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyReply
	}
	return text, nil
}
