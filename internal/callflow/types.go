// Package callflow runs the per-call turn loop: it greets callers, relays
// their speech to the responder and answers every provider webhook with a
// directive document that always has a next action.
package callflow

import (
	"context"
	"errors"
	"time"

	"github.com/antoniostano/callrelay/internal/conversation"
	"github.com/antoniostano/callrelay/internal/directive"
	"github.com/antoniostano/callrelay/internal/registry"
	"github.com/antoniostano/callrelay/internal/responder"
)

var (
	ErrInvalidNumber          = errors.New("invalid phone number")
	ErrCallControlUnavailable = errors.New("call control is not configured")
	ErrMissingCallID          = errors.New("call id is required")
)

// Phase is the orchestrator's view of where a call is in its turn loop.
type Phase string

const (
	PhaseNew            Phase = "new"
	PhaseGreeting       Phase = "greeting"
	PhaseAwaitingSpeech Phase = "awaiting_speech"
	PhaseProcessing     Phase = "processing"
	PhaseEnded          Phase = "ended"
)

// CallStarted is delivered when the provider first reaches the service for a call.
type CallStarted struct {
	CallID    string
	Direction registry.Direction
	From      string
	To        string
}

// SpeechEvent carries one recognizer result. Text is empty when the
// recognizer heard nothing. RequestID identifies a provider delivery and is
// used to drop duplicates.
type SpeechEvent struct {
	CallID     string
	Direction  registry.Direction
	Text       string
	Confidence float64
	RequestID  string
}

type StatusUpdate struct {
	CallID    string
	Direction registry.Direction
	State     registry.State
	Duration  time.Duration
	At        time.Time
	From      string
	To        string
}

type OutboundRequest struct {
	To       string
	Greeting string
}

// CallControl places and ends calls through the telephony provider.
type CallControl interface {
	Dial(ctx context.Context, to string, greeting directive.Document) (callID string, err error)
	Hangup(ctx context.Context, callID string) error
}

// Replier produces the next assistant turn. Reply never fails; a degraded
// result carries fallback text.
type Replier interface {
	Reply(ctx context.Context, history []conversation.Turn) responder.Result
}

const (
	DefaultSystemPrompt = `You are an AI-powered medical clinic receptionist. Your role is to:
1. Be professional, warm, and empathetic in all interactions
2. Help patients with:
   - Scheduling or modifying appointments
   - Basic medical inquiries
   - Insurance and billing questions
   - Clinic hours and location information
   - Emergency guidance (directing to ER when appropriate)
3. Follow these guidelines:
   - Always maintain patient confidentiality
   - Be clear and concise in your responses
   - Show empathy for medical concerns
   - Prioritize urgent medical needs
   - Direct emergency situations to 911
   - Verify patient information when needed

Remember:
- You can't diagnose medical conditions
- For urgent medical concerns, advise patients to seek immediate care
- Maintain a professional yet caring tone
- Be patient-centric in all interactions

Keep responses natural and conversational while maintaining medical professionalism.`

	DefaultGreeting         = "Hello! You've reached the AI Receptionist. How may I assist you today?"
	DefaultOutboundGreeting = "Hello, thank you for calling our medical clinic. How may I assist you today?"
	DefaultReprompt         = "I'm sorry, I didn't catch that. Could you please repeat?"
	DefaultApology          = "I apologize, but I'm having trouble. Please try calling back later."
	DefaultGoodbye          = "Thank you for calling. Goodbye."
)

// Config is the per-deployment call script.
type Config struct {
	SystemPrompt     string
	Greeting         string
	OutboundGreeting string
	Reprompt         string
	Apology          string
	Goodbye          string

	Profile directive.Profile

	RecordCalls       bool
	RecordTarget      string
	RecordMaxDuration time.Duration

	// TranscriptRetention is how long a conversation outlives its call.
	TranscriptRetention time.Duration
}

func (c Config) withDefaults() Config {
	if c.SystemPrompt == "" {
		c.SystemPrompt = DefaultSystemPrompt
	}
	if c.Greeting == "" {
		c.Greeting = DefaultGreeting
	}
	if c.OutboundGreeting == "" {
		c.OutboundGreeting = DefaultOutboundGreeting
	}
	if c.Reprompt == "" {
		c.Reprompt = DefaultReprompt
	}
	if c.Apology == "" {
		c.Apology = DefaultApology
	}
	if c.Goodbye == "" {
		c.Goodbye = DefaultGoodbye
	}
	if c.RecordMaxDuration <= 0 {
		c.RecordMaxDuration = time.Hour
	}
	if c.TranscriptRetention < 0 {
		c.TranscriptRetention = 0
	}
	return c
}
