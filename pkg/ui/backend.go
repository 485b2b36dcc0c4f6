package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/go-go-golems/estatebot/pkg/assistant"
	"github.com/go-go-golems/estatebot/pkg/chat"
	"github.com/go-go-golems/estatebot/pkg/events"
	"github.com/go-go-golems/estatebot/pkg/reply"
)

// Messages produced by backend commands.
type (
	identityDoneMsg struct{ err error }
	sendDoneMsg     struct {
		reply chat.Message
		err   error
	}
	ratingDoneMsg struct{ err error }
	eventMsg      events.Event
	// eventsClosedMsg means the session's event stream ended.
	eventsClosedMsg struct{}
)

// SessionBackend runs session calls off the UI goroutine and turns their
// results into tea messages.
type SessionBackend struct {
	ctx     context.Context
	session *assistant.Session
	events  <-chan events.Event
}

// NewSessionBackend subscribes to the session's events on bus. A nil bus
// gives a backend whose view refreshes only after each call.
func NewSessionBackend(ctx context.Context, s *assistant.Session, bus *events.Bus) (*SessionBackend, error) {
	b := &SessionBackend{ctx: ctx, session: s}
	if bus != nil {
		ch, err := bus.Subscribe(ctx, s.ConversationID())
		if err != nil {
			return nil, err
		}
		b.events = ch
	}
	return b, nil
}

func (b *SessionBackend) Session() *assistant.Session { return b.session }

func (b *SessionBackend) SubmitIdentity(id reply.Identity) tea.Cmd {
	return func() tea.Msg {
		return identityDoneMsg{err: b.session.SubmitIdentity(b.ctx, id)}
	}
}

func (b *SessionBackend) Send(text string) tea.Cmd {
	return func() tea.Msg {
		m, err := b.session.SendMessage(b.ctx, text)
		return sendDoneMsg{reply: m, err: err}
	}
}

func (b *SessionBackend) Rate(score int, comment string) tea.Cmd {
	return func() tea.Msg {
		if b.session.Phase() == assistant.PhaseChat {
			if err := b.session.BeginRating(); err != nil {
				return ratingDoneMsg{err: err}
			}
		}
		return ratingDoneMsg{err: b.session.SubmitRating(b.ctx, score, comment)}
	}
}

func (b *SessionBackend) waitForEvent() tea.Cmd {
	if b.events == nil {
		return nil
	}
	ch := b.events
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg(ev)
	}
}
