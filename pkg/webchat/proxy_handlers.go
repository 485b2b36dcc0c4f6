package webchat

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/go-go-golems/estatebot/pkg/persistence/chatstore"
	"github.com/go-go-golems/estatebot/pkg/persistence/client"
)

// PersistenceHandlers serve the routes the proxy persistence strategy calls.
// Browsers never see the store; they post through these.
type PersistenceHandlers struct {
	store chatstore.Store
}

func NewPersistenceHandlers(store chatstore.Store) *PersistenceHandlers {
	return &PersistenceHandlers{store: store}
}

func (h *PersistenceHandlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST "+client.ConversationsPath, h.postConversation)
	mux.HandleFunc("GET "+client.ConversationsPath, h.listConversations)
	mux.HandleFunc("GET "+client.ConversationsPath+"/{id}", h.getConversation)
	mux.HandleFunc("POST "+client.MessagesPath, h.postMessage)
	mux.HandleFunc("GET "+client.MessagesPath, h.getMessages)
}

func (h *PersistenceHandlers) postConversation(w http.ResponseWriter, r *http.Request) {
	var body client.ConversationRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(body.ConversationID) == "" {
		writeError(w, r, badRequest("missing conversation_id", nil))
		return
	}
	if body.IsPatch() {
		if err := h.store.PatchConversation(r.Context(), body.ConversationID, body.Patch()); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"conversation_id": body.ConversationID, "status": "patched"})
		return
	}
	if err := h.store.UpsertConversation(r.Context(), body.Conversation()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"conversation_id": body.ConversationID, "status": "upserted"})
}

func (h *PersistenceHandlers) postMessage(w http.ResponseWriter, r *http.Request) {
	var body client.MessageRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	m, err := body.Message()
	if err != nil {
		writeError(w, r, badRequest("invalid role", err))
		return
	}
	switch {
	case strings.TrimSpace(m.MessageID) == "":
		writeError(w, r, badRequest("missing message_id", nil))
		return
	case strings.TrimSpace(m.ConversationID) == "":
		writeError(w, r, badRequest("missing conversation_id", nil))
		return
	}
	if err := h.store.InsertMessage(r.Context(), m); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message_id": m.MessageID, "status": "stored"})
}

// getMessages answers the first-message check when session_id is given, and
// lists a conversation's messages when conversation_id is given.
func (h *PersistenceHandlers) getMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if sessionID := strings.TrimSpace(q.Get("session_id")); sessionID != "" {
		prior, err := h.store.HasPriorMessages(r.Context(), sessionID, strings.TrimSpace(q.Get("exclude_id")))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, client.PriorMessagesResponse{SessionID: sessionID, HasPrior: prior})
		return
	}
	convID := strings.TrimSpace(q.Get("conversation_id"))
	if convID == "" {
		writeError(w, r, badRequest("missing session_id or conversation_id", nil))
		return
	}
	msgs, err := h.store.ListMessages(r.Context(), convID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []chatstore.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversation_id": convID, "messages": msgs})
}

func (h *PersistenceHandlers) getConversation(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	conv, ok, err := h.store.GetConversation(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !ok {
		writeError(w, r, errors.Wrapf(chatstore.ErrConversationNotFound, "conversation %s", id))
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (h *PersistenceHandlers) listConversations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 50
	if s := strings.TrimSpace(q.Get("limit")); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v <= 0 {
			writeError(w, r, badRequest("invalid limit", err))
			return
		}
		limit = v
	}
	var since int64
	if s := strings.TrimSpace(q.Get("since_ms")); s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			writeError(w, r, badRequest("invalid since_ms", err))
			return
		}
		since = v
	}
	convs, err := h.store.ListConversations(r.Context(), limit, since)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if convs == nil {
		convs = []chatstore.Conversation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": convs})
}
