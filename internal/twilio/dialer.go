package twilio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/antoniostano/callrelay/internal/callflow"
	"github.com/antoniostano/callrelay/internal/directive"
)

var _ callflow.CallControl = (*Dialer)(nil)

// Dialer places and ends calls through the Twilio REST API.
type Dialer struct {
	client         *Client
	from           string
	statusCallback string
}

// NewDialer returns a Dialer calling from the given number. Status callbacks
// are delivered to statusCallbackURL when it is set.
func NewDialer(client *Client, from, statusCallbackURL string) (*Dialer, error) {
	if client == nil {
		return nil, errors.New("twilio: client is required")
	}
	from = strings.TrimSpace(from)
	if from == "" {
		return nil, errors.New("twilio: from number is required")
	}
	return &Dialer{
		client:         client,
		from:           from,
		statusCallback: strings.TrimSpace(statusCallbackURL),
	}, nil
}

func (d *Dialer) Dial(ctx context.Context, to string, greeting directive.Document) (string, error) {
	twiml, err := Render(greeting)
	if err != nil {
		return "", err
	}
	params := MakeCallParams{
		To:    to,
		From:  d.from,
		Twiml: string(twiml),
	}
	if d.statusCallback != "" {
		params.StatusCallback = d.statusCallback
		params.StatusCallbackEvent = []string{"initiated", "ringing", "answered", "completed"}
	}
	call, err := d.client.MakeCall(ctx, params)
	if err != nil {
		return "", fmt.Errorf("make call: %w", err)
	}
	if call.SID == "" {
		return "", errors.New("twilio: call created without a sid")
	}
	return call.SID, nil
}

func (d *Dialer) Hangup(ctx context.Context, callID string) error {
	if _, err := d.client.HangupCall(ctx, callID); err != nil {
		return fmt.Errorf("hangup call: %w", err)
	}
	return nil
}
