package client

import (
	"time"

	"github.com/pkg/errors"

	"github.com/go-go-golems/estatebot/pkg/chat"
	"github.com/go-go-golems/estatebot/pkg/persistence/chatstore"
)

// Proxy routes.
const (
	ConversationsPath = "/api/chat/conversations"
	MessagesPath      = "/api/chat/messages"
)

// ConversationRequest is the body of POST /api/chat/conversations. A body
// without StartedAt is a patch of an existing conversation.
type ConversationRequest struct {
	ConversationID string         `json:"conversation_id"`
	SessionID      string         `json:"session_id,omitempty"`
	CustomerName   string         `json:"customer_name,omitempty"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
	Summary        map[string]any `json:"summary,omitempty"`
	LastMessage    string         `json:"last_message,omitempty"`
}

func (r ConversationRequest) IsPatch() bool { return r.StartedAt == nil }

func (r ConversationRequest) Conversation() chatstore.Conversation {
	c := chatstore.Conversation{
		ConversationID: r.ConversationID,
		SessionID:      r.SessionID,
		CustomerName:   r.CustomerName,
		Summary:        r.Summary,
		LastMessage:    r.LastMessage,
	}
	if r.StartedAt != nil {
		c.StartedAtMs = r.StartedAt.UnixMilli()
	}
	return c
}

func (r ConversationRequest) Patch() chatstore.ConversationPatch {
	return chatstore.ConversationPatch{CustomerName: r.CustomerName, Summary: r.Summary, LastMessage: r.LastMessage}
}

func upsertRequest(c chatstore.Conversation) ConversationRequest {
	started := time.Now().UTC()
	if c.StartedAtMs > 0 {
		started = time.UnixMilli(c.StartedAtMs).UTC()
	}
	return ConversationRequest{
		ConversationID: c.ConversationID,
		SessionID:      c.SessionID,
		CustomerName:   c.CustomerName,
		StartedAt:      &started,
		Summary:        c.Summary,
		LastMessage:    c.LastMessage,
	}
}

func patchRequest(id string, p chatstore.ConversationPatch) ConversationRequest {
	return ConversationRequest{ConversationID: id, CustomerName: p.CustomerName, Summary: p.Summary, LastMessage: p.LastMessage}
}

// MessageRequest is the body of POST /api/chat/messages.
type MessageRequest struct {
	MessageID      string     `json:"message_id"`
	ConversationID string     `json:"conversation_id"`
	SessionID      string     `json:"session_id"`
	Role           string     `json:"role"`
	Content        string     `json:"content"`
	CreatedAt      *time.Time `json:"created_at,omitempty"`
}

func messageRequest(m chatstore.Message) MessageRequest {
	r := MessageRequest{
		MessageID:      m.MessageID,
		ConversationID: m.ConversationID,
		SessionID:      m.SessionID,
		Role:           string(m.Role),
		Content:        m.Content,
	}
	if m.CreatedAtMs > 0 {
		t := time.UnixMilli(m.CreatedAtMs).UTC()
		r.CreatedAt = &t
	}
	return r
}

func (r MessageRequest) Message() (chatstore.Message, error) {
	role, err := chat.ParseRole(r.Role)
	if err != nil {
		return chatstore.Message{}, errors.Wrap(err, "message request")
	}
	m := chatstore.Message{
		MessageID:      r.MessageID,
		ConversationID: r.ConversationID,
		SessionID:      r.SessionID,
		Role:           role,
		Content:        r.Content,
	}
	if r.CreatedAt != nil {
		m.CreatedAtMs = r.CreatedAt.UnixMilli()
	}
	return m, nil
}

// PriorMessagesResponse answers GET /api/chat/messages?session_id=&exclude_id=.
type PriorMessagesResponse struct {
	SessionID string `json:"session_id"`
	HasPrior  bool   `json:"has_prior"`
}
