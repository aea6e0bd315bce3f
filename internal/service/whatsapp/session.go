package whatsapp

import (
	"sync"
	"time"
)

// defaultSessionTTL bounds how long a follow-up question waits for its answer.
const defaultSessionTTL = 15 * time.Minute

// PendingParse is a message the parser could not complete, kept until the sender answers
// the follow-up question.
type PendingParse struct {
	Message   string
	Question  string
	ExpiresAt time.Time
}

// SessionManager handles per-sender conversation state.
type SessionManager struct {
	sessions map[string]PendingParse
	ttl      time.Duration
	now      func() time.Time
	mu       sync.RWMutex
}

// NewSessionManager creates a new session manager. A non-positive ttl selects the default.
func NewSessionManager(ttl time.Duration) *SessionManager {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &SessionManager{
		sessions: make(map[string]PendingParse),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Pending returns the unexpired pending parse for a sender.
func (sm *SessionManager) Pending(userID string) (PendingParse, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	state, exists := sm.sessions[userID]
	if !exists || sm.now().After(state.ExpiresAt) {
		return PendingParse{}, false
	}
	return state, true
}

// Remember stores the partial message and the question asked about it.
func (sm *SessionManager) Remember(userID, message, question string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.sessions[userID] = PendingParse{
		Message:   message,
		Question:  question,
		ExpiresAt: sm.now().Add(sm.ttl),
	}
}

// ClearSession removes a user's session.
func (sm *SessionManager) ClearSession(userID string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.sessions, userID)
}
