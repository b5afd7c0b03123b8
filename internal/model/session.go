package model

import (
	"slices"
	"sync"

	"github.com/MrWong99/stagehand/pkg/provider/llm"
)

// DefaultMaxHistory is the number of messages a [Session] keeps by default.
const DefaultMaxHistory = 20

// Session is the conversation history sent with every model request. It is
// owned by the caller and lives for the process. All methods are safe for
// concurrent use.
type Session struct {
	mu        sync.Mutex
	messages  []llm.Message
	maxLength int
}

// NewSession returns an empty session keeping at most maxLength messages.
// A negative maxLength is treated as zero, which disables history.
func NewSession(maxLength int) *Session {
	return &Session{maxLength: max(maxLength, 0)}
}

// Append adds msgs and trims the history to the configured length.
func (s *Session) Append(msgs ...llm.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msgs...)
	s.trimLocked()
}

// Messages returns a copy of the history, oldest first.
func (s *Session) Messages() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.messages)
}

// Trim drops the oldest messages beyond the configured length.
func (s *Session) Trim() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trimLocked()
}

// Clear drops the whole history.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
}

// Len returns the number of stored messages.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// MaxLength returns the configured history length.
func (s *Session) MaxLength() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxLength
}

// SetMaxLength changes the history length and trims immediately.
func (s *Session) SetMaxLength(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxLength = max(n, 0)
	s.trimLocked()
}

// trimLocked keeps the newest maxLength messages. A leading assistant
// message is dropped as well so the history always opens with a user turn.
func (s *Session) trimLocked() {
	if over := len(s.messages) - s.maxLength; over > 0 {
		s.messages = slices.Delete(s.messages, 0, over)
	}
	for len(s.messages) > 0 && s.messages[0].Role == llm.RoleAssistant {
		s.messages = slices.Delete(s.messages, 0, 1)
	}
}
