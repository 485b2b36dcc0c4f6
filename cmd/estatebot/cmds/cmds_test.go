package cmds

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/estatebot/pkg/assistant"
	"github.com/go-go-golems/estatebot/pkg/catalog"
	"github.com/go-go-golems/estatebot/pkg/chat"
	"github.com/go-go-golems/estatebot/pkg/persistence/chatstore"
	"github.com/go-go-golems/estatebot/pkg/persistence/client"
	"github.com/go-go-golems/estatebot/pkg/reply"
	"github.com/go-go-golems/estatebot/pkg/sessionid"
)

const listings = `
- id: 1
  title: Family Home
  location: Nairobi
  price: "KES 8,000,000"
  type: house
- id: 2
  title: Beach Plot
  location: Kilifi
  price: 4500000
  type: land
`

type fixture struct {
	dir    string
	config string
	db     string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "")
	dir := t.TempDir()
	f := fixture{dir: dir, config: filepath.Join(dir, "estatebot.yaml"), db: filepath.Join(dir, "chat.db")}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "listings.yaml"), []byte(listings), 0o600))
	cfg := "catalog:\n  file: " + filepath.Join(dir, "listings.yaml") + "\n" +
		"persistence:\n  direct:\n    path: " + f.db + "\n" +
		"session:\n  backend: file\n  path: " + filepath.Join(dir, "session.yaml") + "\n" +
		"model:\n  disabled: true\n"
	require.NoError(t, os.WriteFile(f.config, []byte(cfg), 0o600))
	return f
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append(args, "--log-level", "error"))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestAsk_DeterministicReply(t *testing.T) {
	f := newFixture(t)
	out, err := execute(t, "ask", "--config", f.config, "--raw", "Any land under 5 million?")
	require.NoError(t, err)
	require.Contains(t, out, "I found 1 properties that might interest you.")
}

func TestAsk_ShowPrompt(t *testing.T) {
	f := newFixture(t)
	out, err := execute(t, "ask", "--config", f.config, "--raw", "--show-prompt", "--brand", "Acme Homes", "hello")
	require.NoError(t, err)
	require.Contains(t, out, "--- system ---")
	require.Contains(t, out, "Acme Homes")
	require.Contains(t, out, "prompt tokens ---")
}

func TestPrintPrompt_TokenEstimateUnavailable(t *testing.T) {
	prev := estimateTokens
	estimateTokens = func([]chat.Turn) (int, error) { return 0, errors.New("no tokenizer") }
	t.Cleanup(func() { estimateTokens = prev })

	var buf bytes.Buffer
	require.NoError(t, printPrompt(&buf, []chat.Turn{{Role: chat.RoleSystem, Content: "be brief"}}))
	require.Contains(t, buf.String(), "--- system ---\nbe brief")
	require.Contains(t, buf.String(), "token estimate unavailable")
}

func TestMatch_EmitsRows(t *testing.T) {
	f := newFixture(t)
	outFile := filepath.Join(f.dir, "match.yaml")
	_, err := execute(t, "match", "--config", f.config, "--output", "yaml", "--output-file", outFile, "land", "under", "5", "million")
	require.NoError(t, err)
	b, err := os.ReadFile(outFile)
	require.NoError(t, err)
	out := string(b)
	require.Contains(t, out, "title: Beach Plot")
	require.Contains(t, out, "budget: 5000000")
	require.NotContains(t, out, "Family Home")
}

func TestMatchRows(t *testing.T) {
	props := []catalog.Property{{ID: "2", Title: "Beach Plot", Location: "Kilifi", Price: 4_500_000, Type: "land"}}

	rows := matchRows("land under 5 million", props)
	require.Len(t, rows, 1)
	title, ok := rows[0].Get("title")
	require.True(t, ok)
	require.Equal(t, "Beach Plot", title)
	asking, _ := rows[0].Get("asking")
	require.Equal(t, "KES 4,500,000", asking)
	budget, _ := rows[0].Get("budget")
	require.Equal(t, int64(5_000_000), budget)

	rows = matchRows("beach plot", props)
	budget, ok = rows[0].Get("budget")
	require.True(t, ok)
	require.Nil(t, budget)

	require.Empty(t, matchRows("anything", nil))
}

func seedHistory(t *testing.T, db string) {
	t.Helper()
	store, err := client.OpenStore(client.DirectSettings{Driver: "sqlite", Path: db})
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, store.UpsertConversation(ctx, chatstore.Conversation{
		ConversationID: "conv-1", SessionID: "s-1", CustomerName: "Amina",
		StartedAtMs: time.Now().UnixMilli(), Summary: map[string]any{"rating": 5},
	}))
	require.NoError(t, store.InsertMessage(ctx, chatstore.Message{
		MessageID: "m-1", ConversationID: "conv-1", SessionID: "s-1", Role: chat.RoleUser, Content: "Any land in Kilifi?",
	}))
	require.NoError(t, store.PatchConversation(ctx, "conv-1", chatstore.ConversationPatch{LastMessage: "Any land in Kilifi?"}))
	require.NoError(t, store.Close())
}

func TestHistory_ListsConversationsAndMessages(t *testing.T) {
	f := newFixture(t)
	seedHistory(t, f.db)

	convFile := filepath.Join(f.dir, "conversations.yaml")
	_, err := execute(t, "history", "--config", f.config, "--output", "yaml", "--output-file", convFile)
	require.NoError(t, err)
	b, err := os.ReadFile(convFile)
	require.NoError(t, err)
	require.Contains(t, string(b), "conversation_id: conv-1")
	require.Contains(t, string(b), "customer: Amina")
	require.Contains(t, string(b), "rating: 5")

	msgFile := filepath.Join(f.dir, "messages.yaml")
	_, err = execute(t, "history", "--config", f.config, "--conversation", "conv-1", "--output", "yaml", "--output-file", msgFile)
	require.NoError(t, err)
	b, err = os.ReadFile(msgFile)
	require.NoError(t, err)
	require.Contains(t, string(b), "role: user")
	require.Contains(t, string(b), "Any land in Kilifi?")

	_, err = execute(t, "history", "--config", f.config, "--since", "yesterday")
	require.Error(t, err)
}

func TestHistoryRows(t *testing.T) {
	convs := conversationRows([]chatstore.Conversation{{
		ConversationID: "conv-1",
		CustomerName:   "Amina",
		LastMessage:    strings.Repeat("long message ", 10),
		UpdatedAtMs:    time.Now().Add(-time.Hour).UnixMilli(),
		Summary:        map[string]any{"rating": 4, "feedback": "quick"},
	}, {ConversationID: "conv-2"}})
	require.Len(t, convs, 2)
	last, _ := convs[0].Get("last_message")
	require.Len(t, []rune(last.(string)), 60)
	updated, _ := convs[0].Get("updated")
	require.Equal(t, "1 hour ago", updated)
	rating, _ := convs[0].Get("rating")
	require.Equal(t, 4, rating)
	rating, _ = convs[1].Get("rating")
	require.Nil(t, rating)

	msgs := messageRows([]chatstore.Message{{Seq: 1, Role: chat.RoleAssistant, Content: "Hello"}})
	require.Len(t, msgs, 1)
	role, _ := msgs[0].Get("role")
	require.Equal(t, "assistant", role)
	created, _ := msgs[0].Get("created")
	require.Equal(t, "", created)
}

func TestRunPlainChat_IdentityChatRating(t *testing.T) {
	store := chatstore.NewInMemoryStore()
	s, err := assistant.NewSession(assistant.Config{
		Session:     sessionid.SessionContext{ID: "plain-1", Persistent: true},
		Catalog:     catalog.StaticSource{{ID: "2", Title: "Beach Plot", Location: "Kilifi", Price: 4_500_000, Type: "land"}},
		Persistence: client.NewDirect(store, time.Second),
	})
	require.NoError(t, err)
	t.Cleanup(s.Close)

	script := strings.Join([]string{
		"Amina Otieno",
		"0700000000",
		"",
		"Any land under 5 million?",
		"/rate 9",
		"/rate 4 quick answers",
	}, "\n") + "\n"
	var out bytes.Buffer
	err = runPlainChat(context.Background(), strings.NewReader(script), &out, s, reply.Identity{Name: "Visitor"})
	require.NoError(t, err)

	require.Equal(t, assistant.PhaseCompleted, s.Phase())
	require.Contains(t, out.String(), "assistant: I found 1 properties that might interest you.")
	require.Contains(t, out.String(), "rating must be a number from 1 to 5")

	conv, ok, err := store.GetConversation(context.Background(), s.ConversationID())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Amina Otieno", conv.CustomerName)
	require.EqualValues(t, 4, conv.Summary["rating"])
	require.Equal(t, "quick answers", conv.Summary["feedback"])
}

func TestRunPlainChat_EOFCompletes(t *testing.T) {
	s, err := assistant.NewSession(assistant.Config{
		Session:     sessionid.SessionContext{ID: "plain-2"},
		Role:        reply.RoleAdmin,
		Identity:    reply.Identity{Name: "Agent"},
		Catalog:     catalog.StaticSource{},
		Persistence: client.NewDirect(chatstore.NewInMemoryStore(), time.Second),
	})
	require.NoError(t, err)
	t.Cleanup(s.Close)

	var out bytes.Buffer
	require.NoError(t, runPlainChat(context.Background(), strings.NewReader(""), &out, s, reply.Identity{}))
	require.Equal(t, assistant.PhaseCompleted, s.Phase())
}
