package registry

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound     = errors.New("call not found")
	ErrTerminal     = errors.New("call already reached a terminal state")
	ErrStale        = errors.New("call state transition goes backwards")
	ErrInvalidState = errors.New("invalid call state")
)

// Registry tracks call lifecycles. It is independent of the turn loop: every
// method takes only the registry's own lock and never waits on a call.
type Registry struct {
	mu        sync.RWMutex
	calls     map[string]*Session
	retention time.Duration
	onChange  func(Event)
	subs      map[string]chan Event
	now       func() time.Time
}

func New() *Registry {
	return &Registry{
		calls: make(map[string]*Session),
		subs:  make(map[string]chan Event),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// SetRetention sets how long terminal calls are kept before the janitor
// prunes them. Zero keeps them until Prune is called explicitly.
func (r *Registry) SetRetention(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d < 0 {
		d = 0
	}
	r.retention = d
}

func (r *Registry) SetChangeHook(hook func(Event)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = hook
}

// Record upserts a call. A new call starts in state; an existing call is
// advanced to state following the same rules as UpdateStatus.
func (r *Registry) Record(callID string, direction Direction, state State, at time.Time) (*Session, error) {
	return r.RecordWithParties(callID, direction, state, at, "", "")
}

func (r *Registry) RecordWithParties(callID string, direction Direction, state State, at time.Time, from, to string) (*Session, error) {
	if !state.Valid() {
		return nil, ErrInvalidState
	}
	if at.IsZero() {
		at = r.now()
	}

	r.mu.Lock()
	s, ok := r.calls[callID]
	if !ok {
		s = &Session{
			CallID:    callID,
			Direction: direction,
			State:     state,
			From:      from,
			To:        to,
			StartedAt: at,
			UpdatedAt: at,
		}
		if state.Terminal() {
			finish(s, at, 0)
		}
		r.calls[callID] = s
		out := clone(s)
		r.mu.Unlock()
		r.publish(Event{Type: EventRecorded, Session: *out})
		return out, nil
	}

	if s.From == "" {
		s.From = from
	}
	if s.To == "" {
		s.To = to
	}
	if s.Direction == "" {
		s.Direction = direction
	}
	changed, err := advance(s, state, at, 0)
	out := clone(s)
	r.mu.Unlock()
	if err != nil {
		return out, err
	}
	if changed {
		r.publish(Event{Type: EventUpdated, Session: *out})
	}
	return out, nil
}

// UpdateStatus applies a provider status callback. Terminal states are final
// and transitions never go backwards; an identical state is a no-op.
func (r *Registry) UpdateStatus(callID string, state State, duration time.Duration) (*Session, error) {
	if !state.Valid() {
		return nil, ErrInvalidState
	}
	r.mu.Lock()
	s, ok := r.calls[callID]
	if !ok {
		r.mu.Unlock()
		return nil, ErrNotFound
	}
	changed, err := advance(s, state, r.now(), duration)
	out := clone(s)
	r.mu.Unlock()
	if err != nil {
		return out, err
	}
	if changed {
		r.publish(Event{Type: EventUpdated, Session: *out})
	}
	return out, nil
}

func (r *Registry) Get(callID string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.calls[callID]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(s), nil
}

// List returns calls in any of the given states, oldest first. No states
// means every call.
func (r *Registry) List(states ...State) []*Session {
	want := make(map[State]bool, len(states))
	for _, st := range states {
		want[st] = true
	}

	r.mu.RLock()
	out := make([]*Session, 0, len(r.calls))
	for _, s := range r.calls {
		if len(want) > 0 && !want[s.State] {
			continue
		}
		out = append(out, clone(s))
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].CallID < out[j].CallID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// ActiveCount counts calls that have not reached a terminal state.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, s := range r.calls {
		if !s.State.Terminal() {
			n++
		}
	}
	return n
}

// Prune removes terminal calls that ended before the cutoff.
func (r *Registry) Prune(before time.Time) int {
	var pruned []Session
	r.mu.Lock()
	for id, s := range r.calls {
		if !s.State.Terminal() || s.EndedAt == nil || !s.EndedAt.Before(before) {
			continue
		}
		pruned = append(pruned, *s)
		delete(r.calls, id)
	}
	r.mu.Unlock()

	for _, s := range pruned {
		r.publish(Event{Type: EventPruned, Session: s})
	}
	return len(pruned)
}

func (r *Registry) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.mu.RLock()
				retention := r.retention
				r.mu.RUnlock()
				if retention > 0 {
					r.Prune(r.now().Add(-retention))
				}
			}
		}
	}()
}

// Subscribe returns a buffered feed of lifecycle events. Slow subscribers
// lose events rather than block registry updates.
func (r *Registry) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 32
	}
	id := uuid.NewString()
	ch := make(chan Event, buffer)

	r.mu.Lock()
	r.subs[id] = ch
	r.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs, id)
			r.mu.Unlock()
			close(ch)
		})
	}
}

func (r *Registry) publish(ev Event) {
	r.mu.RLock()
	hook := r.onChange
	for _, ch := range r.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	r.mu.RUnlock()

	if hook != nil {
		hook(ev)
	}
}

func advance(s *Session, state State, at time.Time, duration time.Duration) (bool, error) {
	if s.State.Terminal() {
		if s.State == state {
			return false, nil
		}
		return false, ErrTerminal
	}
	if state == s.State {
		return false, nil
	}
	if state.rank() < s.State.rank() {
		return false, ErrStale
	}
	s.State = state
	s.UpdatedAt = at
	if state.Terminal() {
		finish(s, at, duration)
	}
	return true, nil
}

func finish(s *Session, at time.Time, duration time.Duration) {
	ended := at
	s.EndedAt = &ended
	secs := int64(duration / time.Second)
	if secs <= 0 {
		secs = int64(ended.Sub(s.StartedAt) / time.Second)
	}
	if secs < 0 {
		secs = 0
	}
	s.DurationSeconds = secs
}

func clone(s *Session) *Session {
	c := *s
	if s.EndedAt != nil {
		ended := *s.EndedAt
		c.EndedAt = &ended
	}
	return &c
}
