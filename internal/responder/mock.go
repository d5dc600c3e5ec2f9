package responder

import (
	"context"
	"fmt"
	"strings"

	"github.com/antoniostano/callrelay/internal/conversation"
)

// MockBackend provides deterministic local replies when no chat backend is configured.
type MockBackend struct{}

func NewMockBackend() *MockBackend { return &MockBackend{} }

func (*MockBackend) Name() string { return "mock" }

func (b *MockBackend) Complete(ctx context.Context, req Request) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	return buildMockReply(req.Messages), nil
}

func buildMockReply(messages []conversation.Turn) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != conversation.RoleUser {
			continue
		}
		if text := strings.TrimSpace(messages[i].Content); text != "" {
			return fmt.Sprintf("I heard you: %s", text)
		}
	}
	return "I am listening."
}
