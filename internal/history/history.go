// Package history keeps the per-chat conversation turns in memory.
// Sessions are created implicitly on first use, cleared on /reset and
// never expired; everything is lost when the process exits.
package history

import (
	"sync"

	"github.com/inikonoff/Podogrev-bot/llm"
)

const DefaultCap = 20

// Store maps chat IDs to their ordered turn sequences, bounded to the
// most recent cap turns per chat. The system prompt is never stored
// here; the gateway prepends it at call time.
type Store struct {
	mu       sync.Mutex
	cap      int
	sessions map[int64][]llm.Message
}

func NewStore(cap int) *Store {
	if cap <= 0 {
		cap = DefaultCap
	}
	return &Store{
		cap:      cap,
		sessions: make(map[int64][]llm.Message),
	}
}

// Get returns a snapshot copy of the chat's turns, materializing an
// empty session if the chat is unknown.
func (s *Store) Get(chatID int64) []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[chatID]; !ok {
		s.sessions[chatID] = nil
	}
	return append([]llm.Message(nil), s.sessions[chatID]...)
}

// Append adds one turn, evicting the oldest turns once the sequence
// exceeds the cap.
func (s *Store) Append(chatID int64, role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := append(s.sessions[chatID], llm.Message{Role: role, Content: content})
	if len(cur) > s.cap {
		cur = cur[len(cur)-s.cap:]
	}
	s.sessions[chatID] = cur
}

// Clear resets the chat's turns to empty. No-op if the chat is unknown.
func (s *Store) Clear(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[chatID] = nil
}

// Len reports the number of materialized sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
