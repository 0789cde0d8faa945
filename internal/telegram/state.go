package telegram

import (
	"sync"
)

type SessionState int

const (
	StateIdle SessionState = iota
	StateAwaitingQuery
	StateAwaitingSlotValue
	StateAwaitingSlotMessage
	StateAwaitingEditValue
	StateAwaitingEditMessage
)

// Session tracks a multi-step chat flow. Only the fields relevant to State
// are set.
type Session struct {
	State      SessionState
	ServiceKey string
	SlotNo     int64
	Value      string
}

type StateManager struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
}

func NewStateManager() *StateManager {
	return &StateManager{
		sessions: make(map[int64]*Session),
	}
}

// Get returns a copy so callers can modify it and Set it back.
func (m *StateManager) Get(chatID int64) Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if session, ok := m.sessions[chatID]; ok {
		return *session
	}
	return Session{State: StateIdle}
}

func (m *StateManager) Set(chatID int64, session Session) {
	m.mu.Lock()
	m.sessions[chatID] = &session
	m.mu.Unlock()
}

func (m *StateManager) Reset(chatID int64) {
	m.mu.Lock()
	delete(m.sessions, chatID)
	m.mu.Unlock()
}
