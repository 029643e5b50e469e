package usecase

import (
	"slices"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"webchat/internal/domain"
)

// Session is one visitor's chat: its history, its settings and the guard
// that keeps at most one reply in flight.
type Session struct {
	ID        string
	CreatedAt time.Time

	conv *Conversation

	mu        sync.RWMutex
	settings  domain.Settings
	updatedAt time.Time

	turn sync.Mutex
}

// NewSession creates an empty session with a generated ULID.
func NewSession(settings domain.Settings) *Session {
	now := time.Now()
	return &Session{
		ID:        ulid.Make().String(),
		CreatedAt: now,
		conv:      NewConversation(),
		settings:  settings,
		updatedAt: now,
	}
}

// Conversation returns the session's history.
func (s *Session) Conversation() *Conversation { return s.conv }

// Settings returns a snapshot of the current settings.
func (s *Session) Settings() domain.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// SetSettings replaces the settings after validating them. A turn already
// in flight keeps the settings it started with.
func (s *Session) SetSettings(settings domain.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.settings = settings
	s.updatedAt = time.Now()
	s.mu.Unlock()
	return nil
}

// UpdatedAt returns when the session last changed.
func (s *Session) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}

func (s *Session) touch() {
	s.mu.Lock()
	s.updatedAt = time.Now()
	s.mu.Unlock()
}

// Begin claims the session for one turn. It fails with
// domain.ErrSessionBusy while another turn holds it. The returned end
// function releases the claim.
func (s *Session) Begin() (end func(), err error) {
	if !s.turn.TryLock() {
		return nil, domain.NewDomainError("Session.Begin", domain.ErrSessionBusy, s.ID)
	}
	var once sync.Once
	return func() { once.Do(s.turn.Unlock) }, nil
}

// SessionManager holds the live sessions in memory. Nothing is persisted;
// a session lives from its first interaction until Delete.
type SessionManager struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	defaults    domain.Settings
	maxSessions int
}

// NewSessionManager creates a manager whose new sessions start with
// defaults. maxSessions <= 0 means no limit.
func NewSessionManager(defaults domain.Settings, maxSessions int) *SessionManager {
	return &SessionManager{
		sessions:    make(map[string]*Session),
		defaults:    defaults,
		maxSessions: maxSessions,
	}
}

// Create starts a new session with the default settings.
func (sm *SessionManager) Create() (*Session, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.maxSessions > 0 && len(sm.sessions) >= sm.maxSessions {
		return nil, domain.NewDomainError("SessionManager.Create", domain.ErrSessionLimit, "")
	}
	s := NewSession(sm.defaults)
	sm.sessions[s.ID] = s
	return s, nil
}

// Get returns an existing session or ErrSessionNotFound.
func (sm *SessionManager) Get(id string) (*Session, error) {
	sm.mu.RLock()
	s, ok := sm.sessions[id]
	sm.mu.RUnlock()
	if !ok {
		return nil, domain.NewDomainError("SessionManager.Get", domain.ErrSessionNotFound, id)
	}
	return s, nil
}

// Delete removes a session and its history.
func (sm *SessionManager) Delete(id string) error {
	sm.mu.Lock()
	s, ok := sm.sessions[id]
	delete(sm.sessions, id)
	sm.mu.Unlock()

	if !ok {
		return domain.NewDomainError("SessionManager.Delete", domain.ErrSessionNotFound, id)
	}
	s.conv.Clear()
	return nil
}

// List returns the IDs of all live sessions in creation order.
func (sm *SessionManager) List() []string {
	sm.mu.RLock()
	ids := make([]string, 0, len(sm.sessions))
	for id := range sm.sessions {
		ids = append(ids, id)
	}
	sm.mu.RUnlock()
	// ULIDs sort by creation time.
	slices.Sort(ids)
	return ids
}

// Count returns the number of live sessions.
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// Defaults returns the settings new sessions start with.
func (sm *SessionManager) Defaults() domain.Settings { return sm.defaults }
