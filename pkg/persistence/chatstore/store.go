package chatstore

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/go-go-golems/estatebot/pkg/chat"
)

// LastMessageLimit caps the conversation's last_message column.
const LastMessageLimit = 100

var ErrConversationNotFound = errors.New("conversation not found")

// Conversation is one row per conversation_id. Upserts keyed on the id are
// idempotent and merge: non-empty fields win, the first start time is kept,
// and summary keys are merged.
type Conversation struct {
	ConversationID string         `json:"conversation_id" yaml:"conversation_id"`
	SessionID      string         `json:"session_id,omitempty" yaml:"session_id,omitempty"`
	CustomerName   string         `json:"customer_name,omitempty" yaml:"customer_name,omitempty"`
	StartedAtMs    int64          `json:"started_at_ms,omitempty" yaml:"started_at_ms,omitempty"`
	Summary        map[string]any `json:"summary,omitempty" yaml:"summary,omitempty"`
	LastMessage    string         `json:"last_message,omitempty" yaml:"last_message,omitempty"`
	UpdatedAtMs    int64          `json:"updated_at_ms,omitempty" yaml:"updated_at_ms,omitempty"`
}

// ConversationPatch updates an existing conversation. Empty fields are left alone.
type ConversationPatch struct {
	CustomerName string         `json:"customer_name,omitempty"`
	Summary      map[string]any `json:"summary,omitempty"`
	LastMessage  string         `json:"last_message,omitempty"`
}

func (p ConversationPatch) Empty() bool {
	return p.CustomerName == "" && len(p.Summary) == 0 && p.LastMessage == ""
}

// Message is append-only. MessageID is chosen by the client so retried inserts
// are no-ops. Seq is assigned by the store, per conversation.
type Message struct {
	MessageID      string    `json:"message_id" yaml:"message_id"`
	ConversationID string    `json:"conversation_id" yaml:"conversation_id"`
	SessionID      string    `json:"session_id" yaml:"session_id"`
	Role           chat.Role `json:"role" yaml:"role"`
	Content        string    `json:"content" yaml:"content"`
	Seq            int64     `json:"seq,omitempty" yaml:"seq,omitempty"`
	CreatedAtMs    int64     `json:"created_at_ms,omitempty" yaml:"created_at_ms,omitempty"`
}

// Store holds the conversation and message tables.
type Store interface {
	UpsertConversation(ctx context.Context, c Conversation) error
	PatchConversation(ctx context.Context, conversationID string, patch ConversationPatch) error
	InsertMessage(ctx context.Context, m Message) error
	// HasPriorMessages reports whether any message other than excludeMessageID
	// exists for the session.
	HasPriorMessages(ctx context.Context, sessionID, excludeMessageID string) (bool, error)
	GetConversation(ctx context.Context, conversationID string) (Conversation, bool, error)
	ListConversations(ctx context.Context, limit int, sinceMs int64) ([]Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)
	Close() error
}

func normalizeConversation(c Conversation, now int64) Conversation {
	c.ConversationID = strings.TrimSpace(c.ConversationID)
	c.SessionID = strings.TrimSpace(c.SessionID)
	c.CustomerName = strings.TrimSpace(c.CustomerName)
	c.LastMessage = chat.Truncate(c.LastMessage, LastMessageLimit)
	if c.StartedAtMs <= 0 {
		c.StartedAtMs = now
	}
	c.UpdatedAtMs = now
	return c
}

func normalizeMessage(m Message, now int64) (Message, error) {
	m.MessageID = strings.TrimSpace(m.MessageID)
	m.ConversationID = strings.TrimSpace(m.ConversationID)
	m.SessionID = strings.TrimSpace(m.SessionID)
	if m.MessageID == "" {
		return m, errors.New("message_id is empty")
	}
	if m.ConversationID == "" {
		return m, errors.New("conversation_id is empty")
	}
	if !m.Role.Valid() {
		return m, errors.Errorf("invalid role %q", m.Role)
	}
	if m.CreatedAtMs <= 0 {
		m.CreatedAtMs = now
	}
	return m, nil
}

func mergeSummary(dst, src map[string]any) map[string]any {
	if len(src) == 0 {
		return dst
	}
	out := make(map[string]any, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		out[k] = v
	}
	return out
}

func mergeConversation(existing, incoming Conversation) Conversation {
	if existing.ConversationID == "" {
		return incoming
	}
	out := existing
	if incoming.SessionID != "" {
		out.SessionID = incoming.SessionID
	}
	if incoming.CustomerName != "" {
		out.CustomerName = incoming.CustomerName
	}
	if out.StartedAtMs <= 0 {
		out.StartedAtMs = incoming.StartedAtMs
	}
	if incoming.LastMessage != "" {
		out.LastMessage = incoming.LastMessage
	}
	out.Summary = mergeSummary(existing.Summary, incoming.Summary)
	if incoming.UpdatedAtMs > out.UpdatedAtMs {
		out.UpdatedAtMs = incoming.UpdatedAtMs
	}
	return out
}

func nowMs() int64 { return time.Now().UnixMilli() }
