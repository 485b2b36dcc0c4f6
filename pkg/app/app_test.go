package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/estatebot/pkg/chat"
	"github.com/go-go-golems/estatebot/pkg/config"
	"github.com/go-go-golems/estatebot/pkg/persistence/chatstore"
	"github.com/go-go-golems/estatebot/pkg/persistence/client"
	"github.com/go-go-golems/estatebot/pkg/reply"
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

func testSettings(t *testing.T) config.Settings {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "")
	s, err := config.Load("", nil)
	require.NoError(t, err)
	dir := t.TempDir()
	path := filepath.Join(dir, "listings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(listings), 0o600))
	s.Catalog.File = path
	s.Persistence.Direct.Path = filepath.Join(dir, "chat.db")
	s.Session.Backend = "file"
	s.Session.Path = filepath.Join(dir, "session.yaml")
	s.Reveal.Enabled = false
	return s
}

func TestApp_SessionWritesToSharedStore(t *testing.T) {
	a, err := New(testSettings(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	require.False(t, a.Gateway.Available())
	require.Equal(t, client.StrategyDirect, a.Persistence.Strategy())

	ctx := context.Background()
	s, err := a.NewSession(ctx, reply.RoleCustomer, reply.Identity{})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	require.True(t, s.SessionContext().Persistent)
	require.NoError(t, s.SubmitIdentity(ctx, reply.Identity{Name: "Amina", Phone: "0700000000"}))

	msg, err := s.SendMessage(ctx, "Any land under 5 million?")
	require.NoError(t, err)
	require.Equal(t, "I found 1 properties that might interest you.", msg.Content)

	store, err := a.Store()
	require.NoError(t, err)
	msgs, err := store.ListMessages(ctx, s.ConversationID())
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	again, err := a.SessionContext(ctx)
	require.NoError(t, err)
	require.Equal(t, s.SessionContext().ID, again.ID)
}

func TestApp_MisconfiguredProxyStillBuilds(t *testing.T) {
	s := testSettings(t)
	s.Persistence.Strategy = client.StrategyProxy
	s.Persistence.Proxy.URL = ""
	a, err := New(s)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	err = a.Persistence.InsertMessage(context.Background(), chatstore.Message{MessageID: "m1", ConversationID: "c1", Role: chat.RoleUser, Content: "hi"})
	require.True(t, client.IsConfigurationError(err))
}

func TestApp_ServerMountsProxyRoutes(t *testing.T) {
	a, err := New(testSettings(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	srv, err := a.Server(context.Background())
	require.NoError(t, err)
	require.NotNil(t, srv.Handler())
}
