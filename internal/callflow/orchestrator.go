package callflow

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/antoniostano/callrelay/internal/conversation"
	"github.com/antoniostano/callrelay/internal/directive"
	"github.com/antoniostano/callrelay/internal/observability"
	"github.com/antoniostano/callrelay/internal/policy"
	"github.com/antoniostano/callrelay/internal/registry"
)

// Turn outcomes reported to metrics.
const (
	outcomeReply     = "reply"
	outcomeFallback  = "fallback"
	outcomeReprompt  = "reprompt"
	outcomeDuplicate = "duplicate"
	outcomeEnded     = "ended"
	outcomeFailSafe  = "fail_safe"
)

type callState struct {
	phase         Phase
	lastRequestID string
	lastDoc       directive.Document
	forget        *time.Timer
}

// Orchestrator owns the lifetime of every call's conversation.
type Orchestrator struct {
	cfg      Config
	store    *conversation.Store
	replier  Replier
	registry *registry.Registry
	control  CallControl
	metrics  *observability.Metrics
	logger   *slog.Logger

	locks *keyLock

	mu    sync.Mutex
	calls map[string]*callState

	now func() time.Time
}

type Option func(*Orchestrator)

func WithCallControl(c CallControl) Option {
	return func(o *Orchestrator) { o.control = c }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

func New(cfg Config, store *conversation.Store, replier Replier, reg *registry.Registry, opts ...Option) *Orchestrator {
	if store == nil {
		store = conversation.NewStore()
	}
	if reg == nil {
		reg = registry.New()
	}
	o := &Orchestrator{
		cfg:      cfg.withDefaults(),
		store:    store,
		replier:  replier,
		registry: reg,
		logger:   slog.Default(),
		locks:    newKeyLock(),
		calls:    make(map[string]*callState),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// CallControlEnabled reports whether outbound dialing and remote hangup are available.
func (o *Orchestrator) CallControlEnabled() bool {
	return o.control != nil
}

// StartCall greets a caller. A repeated start for a live call greets again
// without touching the conversation.
func (o *Orchestrator) StartCall(ctx context.Context, ev CallStarted) directive.Document {
	unlock := o.locks.Lock(ev.CallID)
	defer unlock()

	logger := o.logger.With(slog.String("call_id", ev.CallID))
	if o.phase(ev.CallID) == PhaseEnded || o.endedByProvider(ev.CallID) {
		logger.Info("call start for ended call")
		return directive.Farewell(o.cfg.Profile.Voice, o.cfg.Goodbye)
	}

	o.setPhase(ev.CallID, PhaseGreeting)
	if o.store.Ensure(ev.CallID, o.cfg.SystemPrompt) {
		o.countEvent("started")
		o.syncConversationGauge()
	}
	o.recordCall(ev.CallID, ev.Direction, ev.From, ev.To, logger)

	b := directive.NewBuilder(o.cfg.Profile)
	if o.cfg.RecordCalls {
		b.Record(o.cfg.RecordTarget, true, o.cfg.RecordMaxDuration)
	}
	doc, err := b.Speak(o.cfg.Greeting).Build()
	if err != nil {
		return o.failSafe(ev.CallID, err, logger)
	}

	o.setPhase(ev.CallID, PhaseAwaitingSpeech)
	logger.Info("call started",
		slog.String("direction", string(ev.Direction)),
		slog.String("from", policy.MaskNumber(ev.From)),
	)
	return doc
}

// HandleSpeech runs one turn. Events for the same call are serialized; an
// unknown call is started implicitly and its utterance processed normally.
func (o *Orchestrator) HandleSpeech(ctx context.Context, ev SpeechEvent) directive.Document {
	start := time.Now()
	unlock := o.locks.Lock(ev.CallID)
	defer unlock()

	logger := o.logger.With(slog.String("call_id", ev.CallID))
	st := o.snapshot(ev.CallID)

	if st.phase == PhaseEnded {
		o.observeTurn(outcomeEnded, start)
		return directive.Farewell(o.cfg.Profile.Voice, o.cfg.Goodbye)
	}
	if ev.RequestID != "" && ev.RequestID == st.lastRequestID && len(st.lastDoc.Steps) > 0 {
		logger.Info("duplicate speech delivery", slog.String("request_id", ev.RequestID))
		o.observeTurn(outcomeDuplicate, start)
		return st.lastDoc
	}

	if st.phase == PhaseNew && o.endedByProvider(ev.CallID) {
		logger.Info("speech for call the provider already ended")
		o.observeTurn(outcomeEnded, start)
		return directive.Farewell(o.cfg.Profile.Voice, o.cfg.Goodbye)
	}
	if st.phase == PhaseNew {
		logger.Info("speech for unknown call, starting implicitly")
		o.setPhase(ev.CallID, PhaseGreeting)
		o.recordCall(ev.CallID, ev.Direction, "", "", logger)
	}
	if o.store.Ensure(ev.CallID, o.cfg.SystemPrompt) {
		o.countEvent("started")
		o.syncConversationGauge()
	}

	text := strings.TrimSpace(ev.Text)
	if text == "" {
		doc, err := directive.NewBuilder(o.cfg.Profile).Speak(o.cfg.Reprompt).Build()
		if err != nil {
			o.observeTurn(outcomeFailSafe, start)
			return o.failSafe(ev.CallID, err, logger)
		}
		o.finishTurn(ev.CallID, ev.RequestID, doc)
		o.observeTurn(outcomeReprompt, start)
		return doc
	}

	o.setPhase(ev.CallID, PhaseProcessing)
	if err := o.store.Append(ev.CallID, conversation.RoleUser, text); err != nil {
		o.logAppendError(logger, conversation.RoleUser, err)
	}
	logger.Debug("caller said", slog.String("text", policy.Redact(text)), slog.Float64("confidence", ev.Confidence))

	res := o.replier.Reply(ctx, o.store.History(ev.CallID))
	if err := o.store.Append(ev.CallID, conversation.RoleAssistant, res.Text); err != nil {
		o.logAppendError(logger, conversation.RoleAssistant, err)
	}

	doc, err := directive.NewBuilder(o.cfg.Profile).Speak(res.Text).Build()
	if err != nil {
		o.observeTurn(outcomeFailSafe, start)
		return o.failSafe(ev.CallID, err, logger)
	}
	o.finishTurn(ev.CallID, ev.RequestID, doc)

	outcome := outcomeReply
	if res.Degraded {
		outcome = outcomeFallback
	}
	o.observeTurn(outcome, start)
	logger.Info("turn complete",
		slog.String("outcome", outcome),
		slog.Duration("responder_latency", res.Latency),
	)
	return doc
}

// HandleStatus applies a provider status callback to the registry. It never
// waits on a call's turn; a terminal state ends the call.
func (o *Orchestrator) HandleStatus(ev StatusUpdate) error {
	if strings.TrimSpace(ev.CallID) == "" {
		return ErrMissingCallID
	}
	logger := o.logger.With(slog.String("call_id", ev.CallID), slog.String("state", string(ev.State)))

	_, err := o.registry.UpdateStatus(ev.CallID, ev.State, ev.Duration)
	if errors.Is(err, registry.ErrNotFound) {
		_, err = o.registry.RecordWithParties(ev.CallID, ev.Direction, ev.State, ev.At, ev.From, ev.To)
	}
	switch {
	case errors.Is(err, registry.ErrTerminal), errors.Is(err, registry.ErrStale):
		logger.Debug("ignoring status callback", slog.Any("error", err))
	case err != nil:
		logger.Warn("status callback rejected", slog.Any("error", err))
		return err
	default:
		o.countEvent(string(ev.State))
	}

	if ev.State.Terminal() {
		o.end(ev.CallID)
		logger.Info("call ended by provider status")
	}
	return nil
}

// EndCall asks the provider to hang up and ends the call locally.
func (o *Orchestrator) EndCall(ctx context.Context, callID string) error {
	if strings.TrimSpace(callID) == "" {
		return ErrMissingCallID
	}
	if o.control == nil {
		return ErrCallControlUnavailable
	}
	if err := o.control.Hangup(ctx, callID); err != nil {
		return err
	}
	o.end(callID)
	o.countEvent("hangup")
	o.logger.Info("call ended by request", slog.String("call_id", callID))
	return nil
}

// Transcript returns the caller-facing turns while the conversation exists.
func (o *Orchestrator) Transcript(callID string) ([]conversation.TranscriptEntry, error) {
	if !o.store.Exists(callID) {
		return nil, conversation.ErrNotFound
	}
	return o.store.Transcript(callID), nil
}

func (o *Orchestrator) Phase(callID string) Phase {
	return o.phase(callID)
}

func (o *Orchestrator) Registry() *registry.Registry {
	return o.registry
}

// Close stops pending forget timers and drops every conversation.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	ids := make([]string, 0, len(o.calls))
	for id, st := range o.calls {
		if st.forget != nil {
			st.forget.Stop()
		}
		ids = append(ids, id)
	}
	o.calls = make(map[string]*callState)
	o.mu.Unlock()
	for _, id := range ids {
		o.store.Forget(id)
	}
	o.syncConversationGauge()
}

func (o *Orchestrator) failSafe(callID string, cause error, logger *slog.Logger) directive.Document {
	logger.Error("cannot build call document, ending call", slog.Any("error", cause))
	o.end(callID)
	o.countEvent("fail_safe")
	return directive.Farewell(o.cfg.Profile.Voice, o.cfg.Apology)
}

// end marks the call ended and schedules its conversation for removal.
func (o *Orchestrator) end(callID string) {
	o.mu.Lock()
	st := o.stateLocked(callID)
	st.phase = PhaseEnded
	if st.forget != nil {
		o.mu.Unlock()
		return
	}
	retention := o.cfg.TranscriptRetention
	if retention > 0 {
		st.forget = time.AfterFunc(retention, func() { o.forget(callID) })
		o.mu.Unlock()
		return
	}
	o.mu.Unlock()
	o.forget(callID)
}

func (o *Orchestrator) forget(callID string) {
	o.mu.Lock()
	delete(o.calls, callID)
	o.mu.Unlock()
	o.store.Forget(callID)
	o.syncConversationGauge()
}

// endedByProvider reports whether the registry already holds callID in a
// terminal state. Such a call is never started again.
func (o *Orchestrator) endedByProvider(callID string) bool {
	sess, err := o.registry.Get(callID)
	return err == nil && sess.State.Terminal()
}

func (o *Orchestrator) recordCall(callID string, direction registry.Direction, from, to string, logger *slog.Logger) {
	if direction == "" {
		direction = registry.DirectionInbound
	}
	_, err := o.registry.RecordWithParties(callID, direction, registry.StateInProgress, o.now(), from, to)
	if err != nil && !errors.Is(err, registry.ErrStale) {
		logger.Debug("registry upsert skipped", slog.Any("error", err))
	}
}

func (o *Orchestrator) finishTurn(callID, requestID string, doc directive.Document) {
	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.calls[callID]
	if !ok {
		// Forgotten while the turn was running.
		return
	}
	if st.phase != PhaseEnded {
		st.phase = PhaseAwaitingSpeech
	}
	if requestID != "" {
		st.lastRequestID = requestID
		st.lastDoc = doc
	}
}

func (o *Orchestrator) logAppendError(logger *slog.Logger, role conversation.Role, err error) {
	if errors.Is(err, conversation.ErrNotFound) {
		logger.Debug("conversation gone before append", slog.String("role", string(role)))
		return
	}
	logger.Warn("append turn failed", slog.String("role", string(role)), slog.Any("error", err))
}

func (o *Orchestrator) stateLocked(callID string) *callState {
	st, ok := o.calls[callID]
	if !ok {
		st = &callState{phase: PhaseNew}
		o.calls[callID] = st
	}
	return st
}

func (o *Orchestrator) snapshot(callID string) callState {
	o.mu.Lock()
	defer o.mu.Unlock()
	if st, ok := o.calls[callID]; ok {
		return *st
	}
	return callState{phase: PhaseNew}
}

func (o *Orchestrator) phase(callID string) Phase {
	return o.snapshot(callID).phase
}

func (o *Orchestrator) setPhase(callID string, p Phase) {
	o.mu.Lock()
	defer o.mu.Unlock()
	st := o.stateLocked(callID)
	if st.phase == PhaseEnded {
		return
	}
	st.phase = p
}

func (o *Orchestrator) countEvent(event string) {
	if o.metrics != nil {
		o.metrics.CallEvents.WithLabelValues(event).Inc()
	}
}

func (o *Orchestrator) observeTurn(outcome string, start time.Time) {
	if o.metrics != nil {
		o.metrics.ObserveTurn(outcome, time.Since(start))
	}
}

func (o *Orchestrator) syncConversationGauge() {
	if o.metrics != nil {
		o.metrics.ActiveConversations.Set(float64(o.store.Len()))
	}
}
