package assistant

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/estatebot/pkg/catalog"
	"github.com/go-go-golems/estatebot/pkg/chat"
	"github.com/go-go-golems/estatebot/pkg/events"
	"github.com/go-go-golems/estatebot/pkg/persistence/chatstore"
	"github.com/go-go-golems/estatebot/pkg/persistence/client"
	"github.com/go-go-golems/estatebot/pkg/reply"
	"github.com/go-go-golems/estatebot/pkg/sessionid"
	"github.com/go-go-golems/estatebot/pkg/typewriter"
)

type Phase string

const (
	PhaseForm      Phase = "form"
	PhaseChat      Phase = "chat"
	PhaseRating    Phase = "rating"
	PhaseCompleted Phase = "completed"
)

var transitions = map[Phase][]Phase{
	PhaseForm:   {PhaseChat, PhaseCompleted},
	PhaseChat:   {PhaseRating, PhaseCompleted},
	PhaseRating: {PhaseCompleted},
}

func canTransition(from, to Phase) bool {
	for _, p := range transitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

// User-visible notices recorded when persistence fails.
const (
	NoticeSaveFailed      = "Sorry, your message could not be saved. Please check your connection and try again."
	NoticeReplyNotSaved   = "This reply could not be saved and may be missing from your history."
	NoticeConversationErr = "We could not start your conversation record. Your messages will still be sent."
)

type Config struct {
	ConversationID string
	Session        sessionid.SessionContext
	Role           reply.UserRole
	// Identity is required for admins, who skip the form.
	Identity    reply.Identity
	Catalog     catalog.Source
	Responder   *Responder
	Persistence client.Client
	Bus         *events.Bus
	// Reveal enables typewriter frames on the bus.
	Reveal        bool
	RevealOptions typewriter.Options
	Now           func() time.Time
}

// Session is one conversation's state machine. Its message list and phase
// are owned by the session; sends are serialized.
type Session struct {
	cfg Config

	sendMu sync.Mutex

	mu           sync.RWMutex
	phase        Phase
	identity     reply.Identity
	messages     []chat.Message
	loading      bool
	started      bool
	lastActive   time.Time
	revealID     string
	revealText   string
	revealActive bool

	revealer typewriter.Revealer
}

func NewSession(cfg Config) (*Session, error) {
	if cfg.Persistence == nil {
		return nil, &ValidationError{Field: "persistence", Reason: "a persistence client is required"}
	}
	if !cfg.Session.Valid() {
		return nil, &ValidationError{Field: "session", Reason: "a session id is required"}
	}
	if cfg.ConversationID == "" {
		cfg.ConversationID = uuid.NewString()
	}
	if cfg.Role == "" {
		cfg.Role = reply.RoleCustomer
	}
	if cfg.Catalog == nil {
		cfg.Catalog = catalog.StaticSource(nil)
	}
	if cfg.Responder == nil {
		cfg.Responder = NewResponder(nil, WithPriorChecker(cfg.Persistence))
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	s := &Session{cfg: cfg, phase: PhaseForm, lastActive: cfg.Now()}
	if cfg.Role.IsAdmin() {
		if err := validateIdentity(cfg.Identity, false); err != nil {
			return nil, err
		}
		s.identity = cfg.Identity
		s.phase = PhaseChat
	}
	return s, nil
}

func (s *Session) ConversationID() string { return s.cfg.ConversationID }

func (s *Session) SessionContext() sessionid.SessionContext { return s.cfg.Session }

func (s *Session) Role() reply.UserRole { return s.cfg.Role }

func (s *Session) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

func (s *Session) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

func (s *Session) Identity() reply.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

// Messages returns a copy of the local view in display order.
func (s *Session) Messages() []chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]chat.Message(nil), s.messages...)
}

func (s *Session) LastActive() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActive
}

// CurrentReveal is the typewriter prefix of the newest assistant message.
// active is false once the full text is shown.
func (s *Session) CurrentReveal() (messageID, text string, active bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revealID, s.revealText, s.revealActive
}

// SubmitIdentity validates the form and moves to chat. The conversation
// record is upserted here; if that fails the upsert is retried on first send.
func (s *Session) SubmitIdentity(ctx context.Context, id reply.Identity) error {
	if p := s.Phase(); p != PhaseForm {
		return &PhaseError{Phase: p, Op: "SubmitIdentity"}
	}
	id = reply.Identity{
		Name:  strings.TrimSpace(id.Name),
		Phone: strings.TrimSpace(id.Phone),
		Email: strings.TrimSpace(id.Email),
	}
	if err := validateIdentity(id, true); err != nil {
		return err
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	s.mu.Lock()
	if s.phase != PhaseForm {
		p := s.phase
		s.mu.Unlock()
		return &PhaseError{Phase: p, Op: "SubmitIdentity"}
	}
	s.identity = id
	s.mu.Unlock()

	if err := s.ensureConversation(ctx); err != nil {
		s.appendLocal(chat.RoleSystem, NoticeConversationErr)
	}
	s.setPhase(PhaseChat)
	return nil
}

func validateIdentity(id reply.Identity, requireContact bool) error {
	if strings.TrimSpace(id.Name) == "" {
		return &ValidationError{Field: "name", Reason: "name is required"}
	}
	if requireContact && strings.TrimSpace(id.Phone) == "" && strings.TrimSpace(id.Email) == "" {
		return &ValidationError{Field: "contact", Reason: "phone or email is required"}
	}
	if email := strings.TrimSpace(id.Email); email != "" && !strings.Contains(email, "@") {
		return &ValidationError{Field: "email", Reason: "email must contain @"}
	}
	return nil
}

// ensureConversation upserts the conversation record once per session.
func (s *Session) ensureConversation(ctx context.Context) error {
	s.mu.RLock()
	started, id := s.started, s.identity
	s.mu.RUnlock()
	if started {
		return nil
	}
	summary := map[string]any{"role": string(s.cfg.Role)}
	if id.Phone != "" {
		summary["phone"] = id.Phone
	}
	if id.Email != "" {
		summary["email"] = id.Email
	}
	err := s.cfg.Persistence.UpsertConversation(ctx, chatstore.Conversation{
		ConversationID: s.cfg.ConversationID,
		SessionID:      s.cfg.Session.ID,
		CustomerName:   id.Name,
		StartedAtMs:    s.cfg.Now().UnixMilli(),
		Summary:        summary,
	})
	if err != nil {
		s.logger().Warn().Err(err).Msg("conversation upsert failed")
		return err
	}
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	return nil
}

// SendMessage persists the user message, composes a reply, persists it, and
// appends both to the local view. Calls are serialized: a second send starts
// only after the first has appended its reply.
//
// A failed user-message write records a visible notice and returns the
// TransportError without composing a reply. Model failures are never errors.
func (s *Session) SendMessage(ctx context.Context, text string) (chat.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return chat.Message{}, &ValidationError{Field: "message", Reason: "message is empty"}
	}
	if p := s.Phase(); p != PhaseChat {
		return chat.Message{}, &PhaseError{Phase: p, Op: "SendMessage"}
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if p := s.Phase(); p != PhaseChat {
		return chat.Message{}, &PhaseError{Phase: p, Op: "SendMessage"}
	}
	s.revealer.Stop()

	_ = s.ensureConversation(ctx)

	userMsg := s.newMessage(chat.RoleUser, text)
	s.append(userMsg)
	s.setLoading(true)
	defer s.setLoading(false)

	if err := s.cfg.Persistence.InsertMessage(ctx, s.record(userMsg)); err != nil {
		s.logger().Error().Err(err).Str("message_id", userMsg.ID).Msg("user message not saved")
		s.appendLocal(chat.RoleSystem, NoticeSaveFailed)
		return chat.Message{}, err
	}

	props, err := s.cfg.Catalog.Snapshot(ctx)
	if err != nil {
		s.logger().Warn().Err(err).Msg("catalog unavailable, replying without listings")
		props = nil
	}
	resp := s.cfg.Responder.Respond(ctx, Request{
		Message:   text,
		MessageID: userMsg.ID,
		Session:   s.cfg.Session,
		Role:      s.cfg.Role,
		Identity:  s.Identity(),
		Catalog:   props,
		History:   s.history(),
	})
	s.logger().Debug().
		Str("source", string(resp.Source)).
		Str("rule", resp.Rule).
		Str("intent", string(resp.Intent)).
		Bool("greeted", resp.Greeted).
		Msg("reply composed")

	botMsg := s.newMessage(chat.RoleAssistant, resp.Text)
	saveErr := s.cfg.Persistence.InsertMessage(ctx, s.record(botMsg))
	if saveErr != nil {
		s.logger().Error().Err(saveErr).Str("message_id", botMsg.ID).Msg("assistant message not saved")
	} else {
		s.patchConversation(ctx, chatstore.ConversationPatch{
			LastMessage: resp.Text,
			Summary:     map[string]any{"last_intent": string(resp.Intent), "last_source": string(resp.Source)},
		})
	}

	s.append(botMsg)
	if saveErr != nil {
		s.appendLocal(chat.RoleSystem, NoticeReplyNotSaved)
	}
	s.startReveal(botMsg)
	return botMsg, nil
}

// BeginRating moves from chat to the optional feedback step.
func (s *Session) BeginRating() error {
	return s.transition(PhaseRating, "BeginRating")
}

// SubmitRating records a 1..5 score best-effort and completes the session.
func (s *Session) SubmitRating(ctx context.Context, score int, comment string) error {
	if p := s.Phase(); p != PhaseRating {
		return &PhaseError{Phase: p, Op: "SubmitRating"}
	}
	if score < 1 || score > 5 {
		return &ValidationError{Field: "rating", Reason: "rating must be between 1 and 5"}
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	summary := map[string]any{"rating": score}
	if c := strings.TrimSpace(comment); c != "" {
		summary["feedback"] = c
	}
	s.patchConversation(ctx, chatstore.ConversationPatch{Summary: summary})
	return s.transition(PhaseCompleted, "SubmitRating")
}

// Complete ends the session from any non-terminal phase. A send in flight
// finishes and appends its reply first.
func (s *Session) Complete() error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	err := s.transition(PhaseCompleted, "Complete")
	if err == nil {
		s.revealer.Stop()
	}
	return err
}

// Close stops background work. It does not change the phase.
func (s *Session) Close() {
	s.revealer.Stop()
}

func (s *Session) transition(to Phase, op string) error {
	s.mu.Lock()
	from := s.phase
	if !canTransition(from, to) {
		s.mu.Unlock()
		return &PhaseError{Phase: from, Op: op}
	}
	s.phase = to
	s.lastActive = s.cfg.Now()
	s.mu.Unlock()
	s.publish(events.Event{Kind: events.KindPhaseChanged, Phase: string(to)})
	return nil
}

func (s *Session) setPhase(to Phase) {
	_ = s.transition(to, "transition")
}

// patchConversation is a single best-effort attempt.
func (s *Session) patchConversation(ctx context.Context, p chatstore.ConversationPatch) {
	if err := s.cfg.Persistence.PatchConversation(ctx, s.cfg.ConversationID, p); err != nil {
		s.logger().Warn().Err(err).Msg("conversation patch failed")
	}
}

func (s *Session) newMessage(role chat.Role, content string) chat.Message {
	return chat.Message{ID: uuid.NewString(), Role: role, Content: content, CreatedAt: s.cfg.Now()}
}

func (s *Session) record(m chat.Message) chatstore.Message {
	return chatstore.Message{
		MessageID:      m.ID,
		ConversationID: s.cfg.ConversationID,
		SessionID:      s.cfg.Session.ID,
		Role:           m.Role,
		Content:        m.Content,
		CreatedAtMs:    m.CreatedAt.UnixMilli(),
	}
}

func (s *Session) append(m chat.Message) {
	s.mu.Lock()
	s.messages = append(s.messages, m)
	s.lastActive = s.cfg.Now()
	s.mu.Unlock()
	msg := m
	s.publish(events.Event{Kind: events.KindMessageAppended, Message: &msg})
}

func (s *Session) appendLocal(role chat.Role, content string) {
	m := s.newMessage(role, content)
	m.Local = true
	s.append(m)
}

func (s *Session) setLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	s.mu.Unlock()
	s.publish(events.Event{Kind: events.KindLoadingChanged, Loading: v})
}

// history is the persisted part of the local view, oldest first.
func (s *Session) history() []chat.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]chat.Turn, 0, len(s.messages))
	for _, m := range s.messages {
		if m.Local {
			continue
		}
		out = append(out, m.Turn())
	}
	return out
}

func (s *Session) startReveal(m chat.Message) {
	s.mu.Lock()
	s.revealID, s.revealText, s.revealActive = m.ID, m.Content, false
	s.mu.Unlock()
	if !s.cfg.Reveal {
		return
	}
	s.mu.Lock()
	s.revealText, s.revealActive = "", true
	s.mu.Unlock()
	s.revealer.Start(context.Background(), m.Content, s.cfg.RevealOptions, func(prefix string) {
		done := prefix == m.Content
		s.mu.Lock()
		if s.revealID == m.ID {
			s.revealText = prefix
			s.revealActive = !done
		}
		s.mu.Unlock()
		s.publish(events.Event{Kind: events.KindRevealFrame, MessageID: m.ID, Text: prefix})
		if done {
			s.publish(events.Event{Kind: events.KindRevealDone, MessageID: m.ID})
		}
	})
}

func (s *Session) publish(ev events.Event) {
	if s.cfg.Bus == nil {
		return
	}
	ev.ConversationID = s.cfg.ConversationID
	ev.SessionID = s.cfg.Session.ID
	if ev.At.IsZero() {
		ev.At = s.cfg.Now()
	}
	if err := s.cfg.Bus.Publish(ev); err != nil {
		s.logger().Warn().Err(err).Str("kind", string(ev.Kind)).Msg("event publish failed")
	}
}

func (s *Session) logger() *zerolog.Logger {
	l := log.With().
		Str("component", "session").
		Str("conv_id", s.cfg.ConversationID).
		Str("session_id", s.cfg.Session.ID).
		Logger()
	return &l
}
