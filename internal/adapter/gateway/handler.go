package gateway

import (
	"context"
	"encoding/json"
	"time"

	"webchat/internal/domain"
	"webchat/internal/usecase"
)

func registerDefaultHandlers(s *Server) {
	s.RegisterHandler("chat.send", s.chatSendHandler)
	s.RegisterHandler("settings.get", s.settingsGetHandler)
	s.RegisterHandler("settings.update", s.settingsUpdateHandler)
	s.RegisterHandler("conversation.list", s.conversationListHandler)
	s.RegisterHandler("conversation.reset", s.conversationResetHandler)
	s.RegisterHandler("session.info", s.sessionInfoHandler)
}

// --- chat ---

type chatSendRequest struct {
	Content string `json:"content"`
}

type chatSendResponse struct {
	Reply        string `json:"reply"`
	HTML         string `json:"html"`
	MessageCount int    `json:"message_count"`
}

// chatSendHandler runs one turn. Stream updates are pushed as events on
// the same ordered queue, so they all precede the response frame.
func (s *Server) chatSendHandler(ctx context.Context, c *Client, payload json.RawMessage) (json.RawMessage, error) {
	var req chatSendRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, domain.ErrRPCInvalidPayload
	}

	sink := newStreamSink(c, s.deps.Markdown)
	if err := c.Emit(EventStreamUpdate, domain.StreamUpdatePayload{Pending: true}); err != nil {
		return nil, err
	}

	reply, err := s.deps.Controller.Submit(ctx, c.Session, req.Content, sink)
	if err != nil {
		return nil, err
	}
	return json.Marshal(chatSendResponse{
		Reply:        reply,
		HTML:         s.deps.Markdown.Render(reply, false),
		MessageCount: c.Session.Conversation().Len(),
	})
}

// --- settings ---

func (s *Server) settingsGetHandler(_ context.Context, c *Client, _ json.RawMessage) (json.RawMessage, error) {
	return json.Marshal(c.Session.Settings())
}

// settingsUpdateRequest carries only the fields being changed.
type settingsUpdateRequest struct {
	Model        *string  `json:"model"`
	Temperature  *float64 `json:"temperature"`
	SystemPrompt *string  `json:"system_prompt"`
}

func (s *Server) settingsUpdateHandler(_ context.Context, c *Client, payload json.RawMessage) (json.RawMessage, error) {
	var req settingsUpdateRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, domain.ErrRPCInvalidPayload
	}

	next := c.Session.Settings()
	if req.Model != nil {
		next.Model = *req.Model
	}
	if req.Temperature != nil {
		next.Temperature = *req.Temperature
	}
	if req.SystemPrompt != nil {
		next.SystemPrompt = *req.SystemPrompt
	}
	if err := s.deps.Controller.UpdateSettings(c.Session, next); err != nil {
		return nil, err
	}
	return json.Marshal(next)
}

// --- conversation ---

type historyEntry struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	HTML      string    `json:"html,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) conversationListHandler(_ context.Context, c *Client, _ json.RawMessage) (json.RawMessage, error) {
	msgs := c.Session.Conversation().Messages()
	out := make([]historyEntry, len(msgs))
	for i, m := range msgs {
		out[i] = historyEntry{Role: m.Role, Content: m.Content, Timestamp: m.Timestamp}
		if m.Role == domain.RoleAssistant {
			out[i].HTML = s.deps.Markdown.Render(m.Content, false)
		}
	}
	return json.Marshal(out)
}

func (s *Server) conversationResetHandler(_ context.Context, c *Client, _ json.RawMessage) (json.RawMessage, error) {
	if err := s.deps.Controller.Reset(c.Session); err != nil {
		return nil, err
	}
	return json.Marshal(newSessionInfo(c.Session))
}

// --- session ---

type sessionInfo struct {
	SessionID    string          `json:"session_id"`
	CreatedAt    time.Time       `json:"created_at"`
	Settings     domain.Settings `json:"settings"`
	MessageCount int             `json:"message_count"`
}

func newSessionInfo(s *usecase.Session) sessionInfo {
	return sessionInfo{
		SessionID:    s.ID,
		CreatedAt:    s.CreatedAt,
		Settings:     s.Settings(),
		MessageCount: s.Conversation().Len(),
	}
}

func (s *Server) sessionInfoHandler(_ context.Context, c *Client, _ json.RawMessage) (json.RawMessage, error) {
	return json.Marshal(newSessionInfo(c.Session))
}
