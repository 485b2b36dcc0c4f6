package chat

import "time"

// Message is one entry of a session's local view.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	// Local marks notices that were shown but never persisted.
	Local bool `json:"local,omitempty"`
}

func (m Message) Turn() Turn { return Turn{Role: m.Role, Content: m.Content} }
