package usecase

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webchat/internal/domain"
)

func TestConversationAppendOrder(t *testing.T) {
	c := NewConversation()
	c.Append(domain.Message{Role: domain.RoleUser, Content: "one"})
	c.Append(domain.Message{Role: domain.RoleAssistant, Content: "two"})
	c.Append(domain.Message{Role: domain.RoleUser, Content: "three"})

	msgs := c.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "one", msgs[0].Content)
	assert.Equal(t, "two", msgs[1].Content)
	assert.Equal(t, "three", msgs[2].Content)
	for _, m := range msgs {
		assert.False(t, m.Timestamp.IsZero())
	}
}

func TestConversationKeepsTimestamp(t *testing.T) {
	c := NewConversation()
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	c.Append(domain.Message{Role: domain.RoleUser, Content: "x", Timestamp: ts})
	assert.Equal(t, ts, c.Messages()[0].Timestamp)
}

func TestConversationMessagesIsCopy(t *testing.T) {
	c := NewConversation()
	c.Append(domain.Message{Role: domain.RoleUser, Content: "orig"})

	msgs := c.Messages()
	msgs[0].Content = "changed"
	_ = append(msgs, domain.Message{Content: "extra"})

	assert.Equal(t, "orig", c.Messages()[0].Content)
	assert.Equal(t, 1, c.Len())
}

func TestConversationClearIdempotent(t *testing.T) {
	c := NewConversation()
	c.Clear()
	assert.Equal(t, 0, c.Len())

	c.Append(domain.Message{Role: domain.RoleUser, Content: "a"})
	c.Clear()
	assert.Equal(t, 0, c.Len())
	assert.Empty(t, c.Messages())
	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestConversationConcurrentAppend(t *testing.T) {
	c := NewConversation()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Append(domain.Message{Role: domain.RoleUser, Content: fmt.Sprint(i)})
			_ = c.Messages()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, c.Len())
}
