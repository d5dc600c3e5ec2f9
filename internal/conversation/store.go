package conversation

import (
	"errors"
	"strings"
	"sync"
)

var (
	ErrNotFound     = errors.New("conversation not found")
	ErrEmptyContent = errors.New("conversation turn content is empty")
	ErrInvalidRole  = errors.New("conversation turn role is invalid")
)

// Store keeps one ordered turn log per call id. It is purely in-memory; the
// owner decides when a conversation is created and when it is forgotten.
type Store struct {
	mu    sync.RWMutex
	turns map[string][]Turn
}

func NewStore() *Store {
	return &Store{turns: make(map[string][]Turn)}
}

// Ensure seeds the conversation with the system turn when absent. It never
// resets an existing conversation and reports whether it created one.
func (s *Store) Ensure(callID, systemPrompt string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.turns[callID]; ok {
		return false
	}
	s.turns[callID] = []Turn{{Role: RoleSystem, Content: systemPrompt}}
	return true
}

func (s *Store) Append(callID string, role Role, content string) error {
	switch role {
	case RoleUser, RoleAssistant:
		if strings.TrimSpace(content) == "" {
			return ErrEmptyContent
		}
	default:
		// The single system turn is owned by Ensure.
		return ErrInvalidRole
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	arr, ok := s.turns[callID]
	if !ok {
		return ErrNotFound
	}
	s.turns[callID] = append(arr, Turn{Role: role, Content: content})
	return nil
}

// History returns a copy of the ordered turns, or nil for an unknown call.
func (s *Store) History(callID string) []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.turns[callID]
	if len(arr) == 0 {
		return nil
	}
	out := make([]Turn, len(arr))
	copy(out, arr)
	return out
}

// Transcript returns the user and assistant turns in order, without the system turn.
func (s *Store) Transcript(callID string) []TranscriptEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.turns[callID]
	out := make([]TranscriptEntry, 0, len(arr))
	for _, t := range arr {
		if t.Role == RoleSystem {
			continue
		}
		out = append(out, TranscriptEntry{Speaker: t.Role, Text: t.Content})
	}
	return out
}

func (s *Store) Exists(callID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.turns[callID]
	return ok
}

func (s *Store) Forget(callID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.turns, callID)
}

// Len reports the number of live conversations.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}
