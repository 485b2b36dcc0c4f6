package webchat

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/estatebot/pkg/assistant"
	"github.com/go-go-golems/estatebot/pkg/reply"
	"github.com/go-go-golems/estatebot/pkg/sessionid"
)

const adminTokenHeader = "X-Admin-Token"

// SessionHandlers expose assistant sessions over HTTP and websocket.
type SessionHandlers struct {
	cm         *ConvManager
	adminToken string
	upgrader   websocket.Upgrader
}

func NewSessionHandlers(cm *ConvManager, adminToken string, upgrader websocket.Upgrader) *SessionHandlers {
	return &SessionHandlers{cm: cm, adminToken: adminToken, upgrader: upgrader}
}

func (h *SessionHandlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/assistant/sessions", h.create)
	mux.HandleFunc("GET /api/assistant/sessions/{id}", h.get)
	mux.HandleFunc("POST /api/assistant/sessions/{id}/identity", h.identity)
	mux.HandleFunc("POST /api/assistant/sessions/{id}/messages", h.send)
	mux.HandleFunc("POST /api/assistant/sessions/{id}/rating", h.rating)
	mux.HandleFunc("POST /api/assistant/sessions/{id}/complete", h.complete)
	mux.HandleFunc("GET /ws", h.ws)
}

func (h *SessionHandlers) create(w http.ResponseWriter, r *http.Request) {
	var body CreateSessionBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	role := reply.UserRole(strings.ToLower(strings.TrimSpace(body.Role)))
	switch role {
	case "", reply.RoleCustomer:
		role = reply.RoleCustomer
	case reply.RoleAdmin:
		if !h.adminAllowed(r) {
			writeError(w, r, &RequestResolutionError{Status: http.StatusForbidden, ClientMsg: "admin sessions require a valid admin token"})
			return
		}
	default:
		writeError(w, r, badRequest("unknown role", nil))
		return
	}

	sc := sessionid.SessionContext{ID: strings.TrimSpace(body.SessionID), Persistent: true}
	if sc.ID == "" {
		sc = sessionid.SessionContext{ID: uuid.NewString()}
	}
	conv, err := h.cm.Create(r.Context(), SessionSpec{
		Session:  sc,
		Role:     role,
		Identity: reply.Identity{Name: body.Name, Email: body.Email, Phone: body.Phone},
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newSessionView(conv.Session))
}

func (h *SessionHandlers) adminAllowed(r *http.Request) bool {
	if h.adminToken == "" {
		return false
	}
	got := strings.TrimSpace(r.Header.Get(adminTokenHeader))
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.adminToken)) == 1
}

func (h *SessionHandlers) lookup(w http.ResponseWriter, r *http.Request) (*Conversation, bool) {
	conv, ok := h.cm.GetConversation(r.PathValue("id"))
	if !ok {
		writeError(w, r, &RequestResolutionError{Status: http.StatusNotFound, ClientMsg: "unknown session"})
		return nil, false
	}
	return conv, true
}

func (h *SessionHandlers) get(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newSessionView(conv.Session))
}

func (h *SessionHandlers) identity(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var body IdentityBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	if err := conv.Session.SubmitIdentity(r.Context(), reply.Identity{Name: body.Name, Phone: body.Phone, Email: body.Email}); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionView(conv.Session))
}

// send posts one user message. A retried request carrying the same
// idempotency key gets the first answer back.
func (h *SessionHandlers) send(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var body SendMessageBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	key := idempotencyKeyFromRequest(r, &body)
	if key != "" {
		if cached, hit := conv.sends.begin(key); hit {
			log.Debug().Str("component", "webchat").Str("conv_id", conv.ID).Str("idempotency_key", key).Msg("replaying cached send")
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}
	msg, err := conv.Session.SendMessage(r.Context(), body.Text)
	resp := SendMessageResponse{Message: msg, Session: newSessionView(conv.Session)}
	if key != "" {
		conv.sends.finish(key, resp, err == nil)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *SessionHandlers) rating(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var body RatingBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	s := conv.Session
	if s.Phase() == assistant.PhaseChat {
		if err := s.BeginRating(); err != nil {
			writeError(w, r, err)
			return
		}
	}
	if err := s.SubmitRating(r.Context(), body.Score, body.Comment); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionView(s))
}

func (h *SessionHandlers) complete(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if err := conv.Session.Complete(); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionView(conv.Session))
}

// ws attaches a viewer to ?conv_id=. The connection gets a snapshot and then
// every session event; anything the client sends is ignored.
func (h *SessionHandlers) ws(w http.ResponseWriter, r *http.Request) {
	convID := strings.TrimSpace(r.URL.Query().Get("conv_id"))
	if convID == "" {
		writeError(w, r, badRequest("missing conv_id", nil))
		return
	}
	conv, ok := h.cm.GetConversation(convID)
	if !ok {
		writeError(w, r, &RequestResolutionError{Status: http.StatusNotFound, ClientMsg: "unknown session"})
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	if err := h.cm.Attach(conv, conn); err != nil {
		log.Warn().Err(err).Str("component", "webchat").Str("conv_id", convID).Msg("attach websocket")
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"failed to attach websocket"}`))
		_ = conn.Close()
		return
	}
	defer h.cm.Detach(conv, conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
