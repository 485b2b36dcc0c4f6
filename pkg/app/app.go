// Package app assembles the assistant's components from settings. Commands
// build one App and take what they need from it.
package app

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/estatebot/pkg/assistant"
	"github.com/go-go-golems/estatebot/pkg/catalog"
	"github.com/go-go-golems/estatebot/pkg/config"
	"github.com/go-go-golems/estatebot/pkg/events"
	"github.com/go-go-golems/estatebot/pkg/gateway"
	"github.com/go-go-golems/estatebot/pkg/matcher"
	"github.com/go-go-golems/estatebot/pkg/persistence/chatstore"
	"github.com/go-go-golems/estatebot/pkg/persistence/client"
	"github.com/go-go-golems/estatebot/pkg/reply"
	"github.com/go-go-golems/estatebot/pkg/sessionid"
	"github.com/go-go-golems/estatebot/pkg/webchat"
)

type App struct {
	Settings    config.Settings
	Catalog     catalog.Source
	Matcher     *matcher.Matcher
	Composer    *reply.Composer
	Gateway     *gateway.Gateway
	Persistence client.Client
	Responder   *assistant.Responder

	store    chatstore.Store
	bus      *events.Bus
	sessions sessionid.Store
}

// New wires settings into components. Only failures that make every command
// useless are returned; missing persistence or model credentials surface on use.
func New(s config.Settings) (*App, error) {
	a := &App{Settings: s}
	a.Catalog = catalogSource(s.Catalog)
	a.Matcher = matcher.New(s.Matcher.Options())
	a.Composer = reply.NewComposer(reply.WithMatcher(a.Matcher))
	a.Gateway = gateway.New(s.Model)

	pc, store, err := persistenceClient(s.Persistence)
	if err != nil {
		return nil, err
	}
	a.Persistence, a.store = pc, store

	a.Responder = assistant.NewResponder(a.Composer,
		assistant.WithModel(a.Gateway),
		assistant.WithPriorChecker(a.Persistence),
		assistant.WithPromptOptions(s.Prompt.Options()),
	)
	log.Debug().
		Str("component", "app").
		Str("persistence", string(a.Persistence.Strategy())).
		Bool("model", a.Gateway.Available()).
		Msg("components ready")
	return a, nil
}

func catalogSource(s config.CatalogSettings) catalog.Source {
	switch {
	case strings.TrimSpace(s.File) != "":
		return catalog.NewFileSource(s.File)
	case strings.TrimSpace(s.URL) != "":
		return catalog.NewHTTPSource(s.URL, s.Timeout)
	default:
		log.Warn().Str("component", "app").Msg("no catalog configured, replies will not list properties")
		return catalog.StaticSource(nil)
	}
}

// persistenceClient opens the direct store once so the server's proxy routes
// and the sessions' direct client share it.
func persistenceClient(s client.Settings) (client.Client, chatstore.Store, error) {
	if st := client.Strategy(strings.ToLower(string(s.Strategy))); st != client.StrategyDirect && st != "" {
		c, err := client.New(s)
		return c, nil, err
	}
	store, err := client.OpenStore(s.Direct)
	if err != nil {
		if client.IsConfigurationError(err) {
			c, err := client.New(s)
			return c, nil, err
		}
		return nil, nil, errors.Wrap(err, "open chat store")
	}
	return client.WithRetry(client.NewDirect(store, s.Direct.Timeout), s.Retry.Policy()), store, nil
}

// Store returns the chat tables behind persistence.direct, opening them if
// the active strategy did not.
func (a *App) Store() (chatstore.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	store, err := client.OpenStore(a.Settings.Persistence.Direct)
	if err != nil {
		return nil, err
	}
	a.store = store
	return store, nil
}

func (a *App) Bus() (*events.Bus, error) {
	if a.bus != nil {
		return a.bus, nil
	}
	bus, err := events.NewBus(a.Settings.Events)
	if err != nil {
		return nil, err
	}
	a.bus = bus
	return bus, nil
}

// SessionContext resolves this client's persistent session id.
func (a *App) SessionContext(ctx context.Context) (sessionid.SessionContext, error) {
	if a.sessions == nil {
		st, err := sessionid.Open(a.Settings.Session)
		if err != nil {
			return sessionid.SessionContext{}, err
		}
		a.sessions = st
	}
	return sessionid.Resolve(ctx, a.sessions)
}

// NewSession opens a terminal session for role. Admins need an identity.
func (a *App) NewSession(ctx context.Context, role reply.UserRole, id reply.Identity) (*assistant.Session, error) {
	sc, err := a.SessionContext(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "resolve session id")
	}
	bus, err := a.Bus()
	if err != nil {
		return nil, err
	}
	return assistant.NewSession(assistant.Config{
		Session:       sc,
		Role:          role,
		Identity:      id,
		Catalog:       a.Catalog,
		Responder:     a.Responder,
		Persistence:   a.Persistence,
		Bus:           bus,
		Reveal:        a.Settings.Reveal.Enabled,
		RevealOptions: a.Settings.Reveal.Options(),
	})
}

// Server builds the HTTP server. The proxy routes are mounted when
// server.serve_proxy is set and a direct store can be opened.
func (a *App) Server(ctx context.Context) (*webchat.Server, error) {
	bus, err := a.Bus()
	if err != nil {
		return nil, err
	}
	var store chatstore.Store
	if a.Settings.Server.ServeProxy {
		if store, err = a.Store(); err != nil {
			return nil, errors.Wrap(err, "proxy routes need persistence.direct")
		}
	}
	srv := a.Settings.Server
	return webchat.NewServer(ctx, webchat.Options{
		Addr: srv.Addr,
		Factory: webchat.NewSessionFactory(webchat.SessionDeps{
			Catalog:       a.Catalog,
			Responder:     a.Responder,
			Persistence:   a.Persistence,
			Bus:           bus,
			Reveal:        a.Settings.Reveal.Enabled,
			RevealOptions: a.Settings.Reveal.Options(),
		}),
		Bus:             bus,
		Store:           store,
		AdminToken:      srv.AdminToken,
		AllowedOrigins:  srv.AllowedOrigins,
		PoolIdleTimeout: srv.PoolIdleTimeout,
		EvictIdle:       srv.EvictIdle,
		EvictInterval:   srv.EvictInterval,
	})
}

func (a *App) Close() error {
	var first error
	if a.Persistence != nil {
		if err := a.Persistence.Close(); err != nil && first == nil {
			first = err
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil && first == nil {
			first = err
		}
	}
	if a.bus != nil {
		if err := a.bus.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
