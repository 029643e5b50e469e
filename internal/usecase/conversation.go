package usecase

import (
	"sync"
	"time"

	"webchat/internal/domain"
)

// Conversation is the ordered, append-only message history of one session.
// Messages are never edited once appended; Clear is the only way to drop
// them. Safe for concurrent use.
type Conversation struct {
	mu   sync.RWMutex
	msgs []domain.Message
}

// NewConversation returns an empty conversation.
func NewConversation() *Conversation {
	return &Conversation{msgs: make([]domain.Message, 0)}
}

// Append adds msg at the end, stamping it if it carries no timestamp.
func (c *Conversation) Append(msg domain.Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	c.mu.Lock()
	c.msgs = append(c.msgs, msg)
	c.mu.Unlock()
}

// Messages returns a copy of the history, oldest first.
func (c *Conversation) Messages() []domain.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cp := make([]domain.Message, len(c.msgs))
	copy(cp, c.msgs)
	return cp
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.msgs)
}

// Clear empties the history. Clearing an empty conversation is a no-op.
func (c *Conversation) Clear() {
	c.mu.Lock()
	c.msgs = make([]domain.Message, 0)
	c.mu.Unlock()
}
