package chatstore

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/estatebot/pkg/chat"
)

func newSQLiteStore(t *testing.T) Store {
	t.Helper()
	dsn, err := SQLiteDSNForFile(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	s, err := NewSQLiteStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("sqlite", func(t *testing.T) { fn(t, newSQLiteStore(t)) })
	t.Run("memory", func(t *testing.T) { fn(t, NewInMemoryStore()) })
}

func TestStore_UpsertConversationIsIdempotentAndMerges(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		c := Conversation{
			ConversationID: "conv-1",
			SessionID:      "sess-1",
			CustomerName:   "Jane",
			StartedAtMs:    1000,
			Summary:        map[string]any{"role": "customer", "phone": "+254700000000"},
		}
		require.NoError(t, s.UpsertConversation(ctx, c))
		require.NoError(t, s.UpsertConversation(ctx, c))
		require.NoError(t, s.UpsertConversation(ctx, Conversation{
			ConversationID: "conv-1",
			StartedAtMs:    9999,
			Summary:        map[string]any{"rating": float64(4)},
		}))

		list, err := s.ListConversations(ctx, 10, 0)
		require.NoError(t, err)
		require.Len(t, list, 1)

		got, ok, err := s.GetConversation(ctx, "conv-1")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "Jane", got.CustomerName)
		require.Equal(t, "sess-1", got.SessionID)
		require.Equal(t, int64(1000), got.StartedAtMs)
		require.Equal(t, "customer", got.Summary["role"])
		require.Equal(t, float64(4), got.Summary["rating"])
	})
}

func TestStore_PatchConversation(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		err := s.PatchConversation(ctx, "missing", ConversationPatch{LastMessage: "x"})
		require.True(t, errors.Is(err, ErrConversationNotFound))

		require.NoError(t, s.UpsertConversation(ctx, Conversation{ConversationID: "c", CustomerName: "Ann"}))
		long := strings.Repeat("é", 150)
		require.NoError(t, s.PatchConversation(ctx, "c", ConversationPatch{LastMessage: long, Summary: map[string]any{"feedback": "great"}}))

		got, ok, err := s.GetConversation(ctx, "c")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "Ann", got.CustomerName)
		require.Equal(t, LastMessageLimit, len([]rune(got.LastMessage)))
		require.Equal(t, "great", got.Summary["feedback"])
	})
}

func TestStore_InsertMessageDedupAndOrder(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		for i := 1; i <= 3; i++ {
			m := Message{
				MessageID:      fmt.Sprintf("m%d", i),
				ConversationID: "c",
				SessionID:      "s",
				Role:           chat.RoleUser,
				Content:        fmt.Sprintf("msg %d", i),
			}
			require.NoError(t, s.InsertMessage(ctx, m))
			// retried write with the same id
			require.NoError(t, s.InsertMessage(ctx, m))
		}

		msgs, err := s.ListMessages(ctx, "c")
		require.NoError(t, err)
		require.Len(t, msgs, 3)
		for i, m := range msgs {
			require.Equal(t, fmt.Sprintf("m%d", i+1), m.MessageID)
			require.Equal(t, int64(i+1), m.Seq)
			require.Equal(t, chat.RoleUser, m.Role)
		}
	})
}

func TestStore_InsertMessageValidation(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.Error(t, s.InsertMessage(ctx, Message{ConversationID: "c", Role: chat.RoleUser}))
		require.Error(t, s.InsertMessage(ctx, Message{MessageID: "m", Role: chat.RoleUser}))
		require.Error(t, s.InsertMessage(ctx, Message{MessageID: "m", ConversationID: "c", Role: "robot"}))
	})
}

func TestStore_HasPriorMessagesExcludesCurrent(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		prior, err := s.HasPriorMessages(ctx, "s", "m1")
		require.NoError(t, err)
		require.False(t, prior)

		require.NoError(t, s.InsertMessage(ctx, Message{MessageID: "m1", ConversationID: "c", SessionID: "s", Role: chat.RoleUser, Content: "hi"}))
		prior, err = s.HasPriorMessages(ctx, "s", "m1")
		require.NoError(t, err)
		require.False(t, prior)

		prior, err = s.HasPriorMessages(ctx, "s", "m2")
		require.NoError(t, err)
		require.True(t, prior)

		prior, err = s.HasPriorMessages(ctx, "other", "")
		require.NoError(t, err)
		require.False(t, prior)
	})
}

func TestStore_ConcurrentInsertsKeepDistinctSeq(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_ = s.InsertMessage(ctx, Message{MessageID: fmt.Sprintf("m%02d", i), ConversationID: "c", SessionID: "s", Role: chat.RoleAssistant, Content: "x"})
			}(i)
		}
		wg.Wait()

		msgs, err := s.ListMessages(ctx, "c")
		require.NoError(t, err)
		require.Len(t, msgs, 20)
		seen := map[int64]bool{}
		for _, m := range msgs {
			require.False(t, seen[m.Seq])
			seen[m.Seq] = true
		}
	})
}
