// Package sessionid resolves the client-instance identifier that is threaded
// through persistence and model calls. An id is created once and never
// changed; the backing store decides whether it survives a restart.
package sessionid

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// SessionContext is passed explicitly instead of living in ambient state.
type SessionContext struct {
	ID         string `json:"session_id" yaml:"session_id"`
	Persistent bool   `json:"persistent" yaml:"persistent"`
}

func (s SessionContext) Valid() bool { return strings.TrimSpace(s.ID) != "" }

type Store interface {
	// Load returns the stored id, or ok=false when none exists yet.
	Load(ctx context.Context) (id string, ok bool, err error)
	// Save stores id only if no id is stored yet.
	Save(ctx context.Context, id string) error
	Persistent() bool
}

// Resolve loads the session id, creating and saving one on first use.
func Resolve(ctx context.Context, store Store) (SessionContext, error) {
	if store == nil {
		return SessionContext{}, errors.New("session store is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	id, ok, err := store.Load(ctx)
	if err != nil {
		return SessionContext{}, errors.Wrap(err, "load session id")
	}
	if ok && strings.TrimSpace(id) != "" {
		return SessionContext{ID: id, Persistent: store.Persistent()}, nil
	}

	fresh := uuid.NewString()
	if err := store.Save(ctx, fresh); err != nil {
		return SessionContext{}, errors.Wrap(err, "save session id")
	}
	// Another process may have won the race; the stored id is authoritative.
	id, ok, err = store.Load(ctx)
	if err != nil {
		return SessionContext{}, errors.Wrap(err, "reload session id")
	}
	if !ok || id == "" {
		id = fresh
	}
	log.Debug().Str("component", "sessionid").Str("session_id", id).Bool("persistent", store.Persistent()).Msg("session created")
	return SessionContext{ID: id, Persistent: store.Persistent()}, nil
}
