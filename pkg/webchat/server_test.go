package webchat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/estatebot/pkg/assistant"
	"github.com/go-go-golems/estatebot/pkg/catalog"
	"github.com/go-go-golems/estatebot/pkg/chat"
	"github.com/go-go-golems/estatebot/pkg/events"
	"github.com/go-go-golems/estatebot/pkg/persistence/chatstore"
	"github.com/go-go-golems/estatebot/pkg/persistence/client"
	"github.com/go-go-golems/estatebot/pkg/reply"
)

var testCatalog = catalog.StaticSource{
	{ID: "1", Title: "Family Home", Location: "Nairobi", Price: 8_000_000, Type: "house"},
	{ID: "2", Title: "Sea View", Location: "Mombasa", Price: 6_500_000, Type: "apartment"},
}

type testServer struct {
	url   string
	store *chatstore.InMemoryStore
	srv   *Server
}

// newTestServer runs sessions whose persistence goes through the server's own
// proxy routes, the same way a browser deployment does.
func newTestServer(t *testing.T) testServer {
	t.Helper()
	store := chatstore.NewInMemoryStore()
	bus, err := events.NewBus(events.Settings{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })

	ts := httptest.NewUnstartedServer(nil)
	base := "http://" + ts.Listener.Addr().String()
	pc := client.NewProxy(base, &http.Client{Timeout: 5 * time.Second})

	composer := reply.NewComposer()
	srv, err := NewServer(context.Background(), Options{
		Factory: NewSessionFactory(SessionDeps{
			Catalog:     testCatalog,
			Responder:   assistant.NewResponder(composer, assistant.WithPriorChecker(pc)),
			Persistence: pc,
			Bus:         bus,
		}),
		Bus:        bus,
		Store:      store,
		AdminToken: "letmein",
	})
	require.NoError(t, err)
	ts.Config.Handler = srv.Handler()
	ts.Start()
	t.Cleanup(ts.Close)
	t.Cleanup(srv.ConvManager().CloseAll)
	return testServer{url: ts.URL, store: store, srv: srv}
}

func doJSON(t *testing.T, method, url string, body any, headers map[string]string, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func openCustomer(t *testing.T, ts testServer) SessionView {
	t.Helper()
	var view SessionView
	status := doJSON(t, http.MethodPost, ts.url+"/api/assistant/sessions", CreateSessionBody{SessionID: "browser-1"}, nil, &view)
	require.Equal(t, http.StatusCreated, status)
	require.Equal(t, string(assistant.PhaseForm), view.Phase)
	require.True(t, view.Persistent)

	status = doJSON(t, http.MethodPost, ts.url+"/api/assistant/sessions/"+view.ConversationID+"/identity",
		IdentityBody{Name: "Jane Wanjiku", Email: "jane@example.com"}, nil, &view)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, string(assistant.PhaseChat), view.Phase)
	require.Equal(t, "Jane", view.DisplayName)
	return view
}

func TestServer_SessionRoundTripPersistsThroughProxy(t *testing.T) {
	ts := newTestServer(t)
	view := openCustomer(t, ts)

	var resp SendMessageResponse
	status := doJSON(t, http.MethodPost, ts.url+"/api/assistant/sessions/"+view.ConversationID+"/messages",
		SendMessageBody{Text: "Show me houses in Nairobi"}, nil, &resp)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, chat.RoleAssistant, resp.Message.Role)
	require.Equal(t, "I found 1 properties that might interest you.", resp.Message.Content)
	require.Len(t, resp.Session.Messages, 2)

	msgs, err := ts.store.ListMessages(context.Background(), view.ConversationID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, chat.RoleUser, msgs[0].Role)
	require.Equal(t, "browser-1", msgs[0].SessionID)
	require.Equal(t, resp.Message.ID, msgs[1].MessageID)

	conv, ok, err := ts.store.GetConversation(context.Background(), view.ConversationID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Jane Wanjiku", conv.CustomerName)
	require.Equal(t, resp.Message.Content, conv.LastMessage)
}

func TestServer_IdempotentSend(t *testing.T) {
	ts := newTestServer(t)
	view := openCustomer(t, ts)
	url := ts.url + "/api/assistant/sessions/" + view.ConversationID + "/messages"
	headers := map[string]string{"Idempotency-Key": "send-1"}

	var first, second SendMessageResponse
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodPost, url, SendMessageBody{Text: "Show me land"}, headers, &first))
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodPost, url, SendMessageBody{Text: "Show me land"}, headers, &second))
	require.Equal(t, first.Message.ID, second.Message.ID)

	msgs, err := ts.store.ListMessages(context.Background(), view.ConversationID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
}

func TestServer_ErrorStatuses(t *testing.T) {
	ts := newTestServer(t)

	var view SessionView
	require.Equal(t, http.StatusCreated, doJSON(t, http.MethodPost, ts.url+"/api/assistant/sessions", CreateSessionBody{}, nil, &view))
	require.False(t, view.Persistent)
	base := ts.url + "/api/assistant/sessions/" + view.ConversationID

	var errBody map[string]string
	require.Equal(t, http.StatusConflict, doJSON(t, http.MethodPost, base+"/messages", SendMessageBody{Text: "hi"}, nil, &errBody))
	require.NotEmpty(t, errBody["error"])

	require.Equal(t, http.StatusBadRequest, doJSON(t, http.MethodPost, base+"/identity", IdentityBody{Name: "Jane"}, nil, nil))
	require.Equal(t, http.StatusBadRequest, doJSON(t, http.MethodPost, base+"/identity", IdentityBody{Name: "Jane", Email: "not-an-email"}, nil, nil))
	require.Equal(t, http.StatusNotFound, doJSON(t, http.MethodGet, ts.url+"/api/assistant/sessions/nope", nil, nil, nil))
	require.Equal(t, http.StatusBadRequest, doJSON(t, http.MethodPost, ts.url+"/api/assistant/sessions", CreateSessionBody{Role: "landlord"}, nil, nil))

	require.Equal(t, http.StatusForbidden, doJSON(t, http.MethodPost, ts.url+"/api/assistant/sessions",
		CreateSessionBody{Role: "admin", Name: "Ops"}, nil, nil))
	require.Equal(t, http.StatusCreated, doJSON(t, http.MethodPost, ts.url+"/api/assistant/sessions",
		CreateSessionBody{Role: "admin", Name: "Ops"}, map[string]string{adminTokenHeader: "letmein"}, &view))
	require.Equal(t, string(assistant.PhaseChat), view.Phase)
}

func TestServer_RatingAndComplete(t *testing.T) {
	ts := newTestServer(t)
	view := openCustomer(t, ts)
	base := ts.url + "/api/assistant/sessions/" + view.ConversationID

	require.Equal(t, http.StatusBadRequest, doJSON(t, http.MethodPost, base+"/rating", RatingBody{Score: 9}, nil, nil))
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodPost, base+"/rating", RatingBody{Score: 5, Comment: "great"}, nil, &view))
	require.Equal(t, string(assistant.PhaseCompleted), view.Phase)
	require.Equal(t, http.StatusConflict, doJSON(t, http.MethodPost, base+"/messages", SendMessageBody{Text: "hello"}, nil, nil))
}

func TestPersistenceRoutes_ServeProxyClient(t *testing.T) {
	ts := newTestServer(t)
	pc := client.NewProxy(ts.url, nil)
	ctx := context.Background()

	require.NoError(t, pc.UpsertConversation(ctx, chatstore.Conversation{ConversationID: "c1", SessionID: "s1", CustomerName: "Jane"}))
	require.NoError(t, pc.InsertMessage(ctx, chatstore.Message{MessageID: "m1", ConversationID: "c1", SessionID: "s1", Role: chat.RoleUser, Content: "hi"}))
	require.NoError(t, pc.InsertMessage(ctx, chatstore.Message{MessageID: "m1", ConversationID: "c1", SessionID: "s1", Role: chat.RoleUser, Content: "hi"}))
	require.NoError(t, pc.PatchConversation(ctx, "c1", chatstore.ConversationPatch{LastMessage: "hi"}))

	prior, err := pc.HasPriorMessages(ctx, "s1", "m1")
	require.NoError(t, err)
	require.False(t, prior)
	prior, err = pc.HasPriorMessages(ctx, "s1", "m2")
	require.NoError(t, err)
	require.True(t, prior)

	msgs, err := ts.store.ListMessages(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	err = pc.PatchConversation(ctx, "missing", chatstore.ConversationPatch{LastMessage: "x"})
	var te *client.TransportError
	require.ErrorAs(t, err, &te)
	require.Equal(t, http.StatusNotFound, te.Status)

	require.Equal(t, http.StatusBadRequest, doJSON(t, http.MethodPost, ts.url+client.MessagesPath,
		client.MessageRequest{MessageID: "m9", ConversationID: "c1", Role: "robot", Content: "x"}, nil, nil))

	var got chatstore.Conversation
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, ts.url+client.ConversationsPath+"/c1", nil, nil, &got))
	require.Equal(t, "hi", got.LastMessage)
}

func TestWebsocket_SnapshotThenEvents(t *testing.T) {
	ts := newTestServer(t)
	view := openCustomer(t, ts)

	wsURL := "ws" + strings.TrimPrefix(ts.url, "http") + "/ws?conv_id=" + view.ConversationID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var snap wsFrame
	require.NoError(t, conn.ReadJSON(&snap))
	require.Equal(t, "snapshot", snap.Type)
	require.Equal(t, string(assistant.PhaseChat), snap.Snapshot.Phase)

	require.Equal(t, http.StatusOK, doJSON(t, http.MethodPost, ts.url+"/api/assistant/sessions/"+view.ConversationID+"/messages",
		SendMessageBody{Text: "Show me houses in Nairobi"}, nil, nil))

	var appended []chat.Role
	for len(appended) < 2 {
		var f wsFrame
		require.NoError(t, conn.ReadJSON(&f))
		require.Equal(t, "event", f.Type)
		if f.Event.Kind == events.KindMessageAppended {
			appended = append(appended, f.Event.Message.Role)
		}
	}
	require.Equal(t, []chat.Role{chat.RoleUser, chat.RoleAssistant}, appended)
}

func TestWebsocket_UnknownConversation(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusNotFound, doJSON(t, http.MethodGet, ts.url+"/ws?conv_id=nope", nil, nil, nil))
	require.Equal(t, http.StatusBadRequest, doJSON(t, http.MethodGet, ts.url+"/ws", nil, nil, nil))
}
