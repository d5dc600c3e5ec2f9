package callflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/antoniostano/callrelay/internal/directive"
	"github.com/antoniostano/callrelay/internal/policy"
	"github.com/antoniostano/callrelay/internal/registry"
)

const (
	minNumberDigits = 7
	maxNumberDigits = 15
)

// NormalizeNumber returns number in E.164 form. Common separators are
// dropped and a missing leading "+" is added.
func NormalizeNumber(number string) (string, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidNumber)
	}
	number = strings.TrimPrefix(number, "+")

	var b strings.Builder
	b.Grow(len(number) + 1)
	b.WriteByte('+')
	digits := 0
	for _, r := range number {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
			digits++
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return "", fmt.Errorf("%w: unexpected character %q", ErrInvalidNumber, r)
		}
	}
	if digits < minNumberDigits || digits > maxNumberDigits {
		return "", fmt.Errorf("%w: %d digits", ErrInvalidNumber, digits)
	}
	return b.String(), nil
}

// PlaceCall dials req.To with an inline greeting and tracks the new call.
func (o *Orchestrator) PlaceCall(ctx context.Context, req OutboundRequest) (string, error) {
	to, err := NormalizeNumber(req.To)
	if err != nil {
		return "", err
	}
	if o.control == nil {
		return "", ErrCallControlUnavailable
	}

	greeting := strings.TrimSpace(req.Greeting)
	if greeting == "" {
		greeting = o.cfg.OutboundGreeting
	}
	doc, err := directive.NewBuilder(o.cfg.Profile).Speak(greeting).Build()
	if err != nil {
		return "", fmt.Errorf("build greeting: %w", err)
	}

	callID, err := o.control.Dial(ctx, to, doc)
	if err != nil {
		o.countEvent("dial_failed")
		return "", fmt.Errorf("dial %s: %w", policy.MaskNumber(to), err)
	}

	logger := o.logger.With(slog.String("call_id", callID))
	if _, err := o.registry.RecordWithParties(callID, registry.DirectionOutbound, registry.StateInitiated, o.now(), "", to); err != nil {
		logger.Debug("registry upsert skipped", slog.Any("error", err))
	}
	unlock := o.locks.Lock(callID)
	if o.store.Ensure(callID, o.cfg.SystemPrompt) {
		o.syncConversationGauge()
	}
	o.setPhase(callID, PhaseGreeting)
	unlock()

	o.countEvent("dialed")
	logger.Info("outbound call placed", slog.String("to", policy.MaskNumber(to)))
	return callID, nil
}
