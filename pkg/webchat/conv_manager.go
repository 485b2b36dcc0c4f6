package webchat

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/estatebot/pkg/assistant"
	"github.com/go-go-golems/estatebot/pkg/events"
	"github.com/go-go-golems/estatebot/pkg/reply"
	"github.com/go-go-golems/estatebot/pkg/sessionid"
)

// SessionSpec is what a browser supplies when it opens a conversation.
type SessionSpec struct {
	ConversationID string
	Session        sessionid.SessionContext
	Role           reply.UserRole
	Identity       reply.Identity
}

// SessionFactory builds the state machine behind a conversation.
type SessionFactory func(ctx context.Context, spec SessionSpec) (*assistant.Session, error)

// Conversation is a live session plus the websocket viewers attached to it.
type Conversation struct {
	ID      string
	Session *assistant.Session

	pool *ConnectionPool

	mu            sync.Mutex
	lastActivity  time.Time
	cancelForward context.CancelFunc
	sends         *sendCache
}

func (c *Conversation) touch(now time.Time) {
	c.mu.Lock()
	if now.After(c.lastActivity) {
		c.lastActivity = now
	}
	c.mu.Unlock()
}

// idleSince is the later of the last HTTP touch and the session's own activity.
func (c *Conversation) idleSince() time.Time {
	c.mu.Lock()
	last := c.lastActivity
	c.mu.Unlock()
	if c.Session != nil {
		if a := c.Session.LastActive(); a.After(last) {
			last = a
		}
	}
	return last
}

// ConvManager owns the conversations served by this process.
type ConvManager struct {
	baseCtx context.Context
	factory SessionFactory
	bus     *events.Bus
	now     func() time.Time

	mu            sync.Mutex
	conns         map[string]*Conversation
	poolIdle      time.Duration
	evictIdle     time.Duration
	evictInterval time.Duration
	evictRunning  bool
}

func NewConvManager(ctx context.Context, factory SessionFactory, bus *events.Bus) *ConvManager {
	if ctx == nil {
		panic("webchat: NewConvManager requires non-nil ctx")
	}
	return &ConvManager{
		baseCtx: ctx,
		factory: factory,
		bus:     bus,
		now:     time.Now,
		conns:   map[string]*Conversation{},
	}
}

// SetPoolIdleTimeout stops event forwarding once a conversation has had no
// viewers for d.
func (cm *ConvManager) SetPoolIdleTimeout(d time.Duration) {
	cm.mu.Lock()
	cm.poolIdle = d
	cm.mu.Unlock()
}

func (cm *ConvManager) Create(ctx context.Context, spec SessionSpec) (*Conversation, error) {
	if cm.factory == nil {
		return nil, errors.New("webchat: no session factory configured")
	}
	sess, err := cm.factory(ctx, spec)
	if err != nil {
		return nil, err
	}
	conv := &Conversation{ID: sess.ConversationID(), Session: sess, lastActivity: cm.now(), sends: newSendCache(defaultSendCacheSize)}

	cm.mu.Lock()
	defer cm.mu.Unlock()
	if _, exists := cm.conns[conv.ID]; exists {
		sess.Close()
		return nil, &RequestResolutionError{Status: http.StatusConflict, ClientMsg: "conversation already exists"}
	}
	idle := cm.poolIdle
	conv.pool = NewConnectionPool(conv.ID, idle, func() { cm.stopForwarding(conv) })
	cm.conns[conv.ID] = conv
	log.Info().Str("component", "webchat").Str("conv_id", conv.ID).Str("role", string(sess.Role())).Msg("conversation opened")
	return conv, nil
}

func (cm *ConvManager) GetConversation(id string) (*Conversation, bool) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	conv, ok := cm.conns[strings.TrimSpace(id)]
	if ok {
		conv.touch(cm.now())
	}
	return conv, ok
}

func (cm *ConvManager) Count() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return len(cm.conns)
}

// Attach adds a websocket viewer and makes sure bus events for the
// conversation are being forwarded to the pool.
func (cm *ConvManager) Attach(conv *Conversation, conn wsConn) error {
	if conv == nil || conn == nil {
		return errors.New("webchat: attach requires a conversation and a connection")
	}
	if err := cm.ensureForwarding(conv); err != nil {
		return err
	}
	conv.pool.Add(conn)
	conv.touch(cm.now())
	if snap, err := json.Marshal(newSnapshotFrame(conv.Session)); err == nil {
		conv.pool.SendToOne(conn, snap)
	}
	return nil
}

func (cm *ConvManager) Detach(conv *Conversation, conn wsConn) {
	if conv == nil {
		return
	}
	conv.pool.Remove(conn)
	conv.touch(cm.now())
}

func (cm *ConvManager) ensureForwarding(conv *Conversation) error {
	conv.mu.Lock()
	defer conv.mu.Unlock()
	if conv.cancelForward != nil || cm.bus == nil {
		return nil
	}
	ctx, cancel := context.WithCancel(cm.baseCtx)
	ch, err := cm.bus.Subscribe(ctx, conv.ID)
	if err != nil {
		cancel()
		return errors.Wrap(err, "subscribe conversation events")
	}
	conv.cancelForward = cancel
	go forward(conv, ch)
	return nil
}

func (cm *ConvManager) stopForwarding(conv *Conversation) {
	conv.mu.Lock()
	cancel := conv.cancelForward
	conv.cancelForward = nil
	conv.mu.Unlock()
	if cancel != nil {
		cancel()
		log.Debug().Str("component", "webchat").Str("conv_id", conv.ID).Msg("no viewers left, stopped forwarding")
	}
}

func forward(conv *Conversation, ch <-chan events.Event) {
	for ev := range ch {
		b, err := json.Marshal(newEventFrame(ev))
		if err != nil {
			log.Warn().Err(err).Str("component", "webchat").Str("conv_id", conv.ID).Msg("encode event frame")
			continue
		}
		conv.pool.Broadcast(b)
	}
}

// CloseAll drops every conversation; used on shutdown.
func (cm *ConvManager) CloseAll() {
	cm.mu.Lock()
	convs := make([]*Conversation, 0, len(cm.conns))
	for id, conv := range cm.conns {
		convs = append(convs, conv)
		delete(cm.conns, id)
	}
	cm.mu.Unlock()
	for _, conv := range convs {
		cm.cleanupConversation(conv)
	}
}
