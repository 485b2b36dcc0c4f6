package webchat

import (
	"time"

	"github.com/go-go-golems/estatebot/pkg/assistant"
	"github.com/go-go-golems/estatebot/pkg/chat"
	"github.com/go-go-golems/estatebot/pkg/events"
)

// CreateSessionBody is the body of POST /api/assistant/sessions.
type CreateSessionBody struct {
	SessionID string `json:"session_id,omitempty"`
	Role      string `json:"role,omitempty"`
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

type IdentityBody struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

type SendMessageBody struct {
	Text           string `json:"text"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type RatingBody struct {
	Score   int    `json:"score"`
	Comment string `json:"comment,omitempty"`
}

// SessionView is the JSON shape of a session's local state.
type SessionView struct {
	ConversationID string         `json:"conversation_id"`
	SessionID      string         `json:"session_id"`
	Persistent     bool           `json:"persistent"`
	Role           string         `json:"role"`
	Phase          string         `json:"phase"`
	Loading        bool           `json:"loading"`
	DisplayName    string         `json:"display_name"`
	Messages       []chat.Message `json:"messages"`
}

func newSessionView(s *assistant.Session) SessionView {
	ctx := s.SessionContext()
	msgs := s.Messages()
	if msgs == nil {
		msgs = []chat.Message{}
	}
	return SessionView{
		ConversationID: s.ConversationID(),
		SessionID:      ctx.ID,
		Persistent:     ctx.Persistent,
		Role:           string(s.Role()),
		Phase:          string(s.Phase()),
		Loading:        s.Loading(),
		DisplayName:    s.Identity().DisplayName(),
		Messages:       msgs,
	}
}

// SendMessageResponse carries the assistant reply and the session after it
// was appended.
type SendMessageResponse struct {
	Message chat.Message `json:"message"`
	Session SessionView  `json:"session"`
}

// Websocket frames. The first frame on a connection is a snapshot; every
// later frame wraps one session event.
type wsFrame struct {
	Type     string        `json:"type"`
	Snapshot *SessionView  `json:"snapshot,omitempty"`
	Event    *events.Event `json:"event,omitempty"`
	SentAt   int64         `json:"sent_at"`
}

func newSnapshotFrame(s *assistant.Session) wsFrame {
	v := newSessionView(s)
	return wsFrame{Type: "snapshot", Snapshot: &v, SentAt: time.Now().UnixMilli()}
}

func newEventFrame(ev events.Event) wsFrame {
	return wsFrame{Type: "event", Event: &ev, SentAt: time.Now().UnixMilli()}
}
