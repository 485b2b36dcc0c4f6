// Package events carries session updates (messages, phase changes, loading
// state, typewriter frames) from a conversation session to its viewers.
package events

import (
	"time"

	"github.com/go-go-golems/estatebot/pkg/chat"
)

type Kind string

const (
	KindMessageAppended Kind = "message.appended"
	KindPhaseChanged    Kind = "phase.changed"
	KindLoadingChanged  Kind = "loading.changed"
	KindRevealFrame     Kind = "reveal.frame"
	KindRevealDone      Kind = "reveal.done"
)

type Event struct {
	Kind           Kind          `json:"kind"`
	ConversationID string        `json:"conversation_id"`
	SessionID      string        `json:"session_id,omitempty"`
	At             time.Time     `json:"at"`
	Message        *chat.Message `json:"message,omitempty"`
	Phase          string        `json:"phase,omitempty"`
	Loading        bool          `json:"loading,omitempty"`
	// MessageID and Text describe typewriter frames.
	MessageID string `json:"message_id,omitempty"`
	Text      string `json:"text,omitempty"`
}

// Topic is the per-conversation stream name.
func Topic(conversationID string) string {
	return "chat:" + conversationID
}
