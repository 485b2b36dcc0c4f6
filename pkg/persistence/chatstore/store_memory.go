package chatstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/go-go-golems/estatebot/pkg/chat"
)

// InMemoryStore mirrors the SQLite store's merge and ordering semantics.
type InMemoryStore struct {
	mu            sync.Mutex
	conversations map[string]Conversation
	messages      map[string][]Message
	messageIDs    map[string]struct{}
}

var _ Store = &InMemoryStore{}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		conversations: map[string]Conversation{},
		messages:      map[string][]Message{},
		messageIDs:    map[string]struct{}{},
	}
}

func (s *InMemoryStore) Close() error { return nil }

func (s *InMemoryStore) UpsertConversation(_ context.Context, c Conversation) error {
	if s == nil {
		return errors.New("in-memory chat store: nil store")
	}
	c = normalizeConversation(c, nowMs())
	if c.ConversationID == "" {
		return errors.New("in-memory chat store: conversation_id is empty")
	}
	c.Summary = mergeSummary(nil, c.Summary)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[c.ConversationID] = mergeConversation(s.conversations[c.ConversationID], c)
	return nil
}

func (s *InMemoryStore) PatchConversation(_ context.Context, conversationID string, patch ConversationPatch) error {
	if s == nil {
		return errors.New("in-memory chat store: nil store")
	}
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return errors.New("in-memory chat store: conversation_id is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[conversationID]
	if !ok {
		return errors.Wrapf(ErrConversationNotFound, "in-memory chat store: patch %s", conversationID)
	}
	if name := strings.TrimSpace(patch.CustomerName); name != "" {
		c.CustomerName = name
	}
	if patch.LastMessage != "" {
		c.LastMessage = chat.Truncate(patch.LastMessage, LastMessageLimit)
	}
	c.Summary = mergeSummary(c.Summary, patch.Summary)
	c.UpdatedAtMs = nowMs()
	s.conversations[conversationID] = c
	return nil
}

func (s *InMemoryStore) InsertMessage(_ context.Context, m Message) error {
	if s == nil {
		return errors.New("in-memory chat store: nil store")
	}
	m, err := normalizeMessage(m, nowMs())
	if err != nil {
		return errors.Wrap(err, "in-memory chat store")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.messageIDs[m.MessageID]; dup {
		return nil
	}
	msgs := s.messages[m.ConversationID]
	m.Seq = int64(len(msgs)) + 1
	s.messages[m.ConversationID] = append(msgs, m)
	s.messageIDs[m.MessageID] = struct{}{}
	return nil
}

func (s *InMemoryStore) HasPriorMessages(_ context.Context, sessionID, excludeMessageID string) (bool, error) {
	if s == nil {
		return false, errors.New("in-memory chat store: nil store")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return false, errors.New("in-memory chat store: session_id is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msgs := range s.messages {
		for _, m := range msgs {
			if m.SessionID == sessionID && m.MessageID != excludeMessageID {
				return true, nil
			}
		}
	}
	return false, nil
}

func (s *InMemoryStore) GetConversation(_ context.Context, conversationID string) (Conversation, bool, error) {
	if s == nil {
		return Conversation{}, false, errors.New("in-memory chat store: nil store")
	}
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return Conversation{}, false, errors.New("in-memory chat store: conversation_id is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[conversationID]
	if !ok {
		return Conversation{}, false, nil
	}
	c.Summary = mergeSummary(nil, c.Summary)
	return c, true, nil
}

func (s *InMemoryStore) ListConversations(_ context.Context, limit int, sinceMs int64) ([]Conversation, error) {
	if s == nil {
		return nil, errors.New("in-memory chat store: nil store")
	}
	if limit <= 0 {
		limit = 200
	}

	s.mu.Lock()
	out := make([]Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		if sinceMs > 0 && c.UpdatedAtMs < sinceMs {
			continue
		}
		c.Summary = mergeSummary(nil, c.Summary)
		out = append(out, c)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAtMs != out[j].UpdatedAtMs {
			return out[i].UpdatedAtMs > out[j].UpdatedAtMs
		}
		return out[i].ConversationID < out[j].ConversationID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) ListMessages(_ context.Context, conversationID string) ([]Message, error) {
	if s == nil {
		return nil, errors.New("in-memory chat store: nil store")
	}
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return nil, errors.New("in-memory chat store: conversation_id is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages[conversationID]...), nil
}
