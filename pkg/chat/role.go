// Package chat holds the message vocabulary shared by the assistant,
// persistence and transport layers.
package chat

import (
	"strings"

	"github.com/pkg/errors"
)

// Role is the closed set of message authors.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleUser, RoleAssistant, RoleSystem:
		return r, nil
	default:
		return "", errors.Errorf("unknown message role %q", s)
	}
}

func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

// Turn is one role/content pair as sent to a chat-completion model.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
