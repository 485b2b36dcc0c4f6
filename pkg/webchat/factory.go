package webchat

import (
	"context"
	"time"

	"github.com/go-go-golems/estatebot/pkg/assistant"
	"github.com/go-go-golems/estatebot/pkg/catalog"
	"github.com/go-go-golems/estatebot/pkg/events"
	"github.com/go-go-golems/estatebot/pkg/persistence/client"
	"github.com/go-go-golems/estatebot/pkg/typewriter"
)

// SessionDeps are shared by every session the server opens.
type SessionDeps struct {
	Catalog       catalog.Source
	Responder     *assistant.Responder
	Persistence   client.Client
	Bus           *events.Bus
	Reveal        bool
	RevealOptions typewriter.Options
	Now           func() time.Time
}

func NewSessionFactory(deps SessionDeps) SessionFactory {
	return func(_ context.Context, spec SessionSpec) (*assistant.Session, error) {
		return assistant.NewSession(assistant.Config{
			ConversationID: spec.ConversationID,
			Session:        spec.Session,
			Role:           spec.Role,
			Identity:       spec.Identity,
			Catalog:        deps.Catalog,
			Responder:      deps.Responder,
			Persistence:    deps.Persistence,
			Bus:            deps.Bus,
			Reveal:         deps.Reveal,
			RevealOptions:  deps.RevealOptions,
			Now:            deps.Now,
		})
	}
}
