package webchat

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/estatebot/pkg/events"
	"github.com/go-go-golems/estatebot/pkg/persistence/chatstore"
)

const defaultShutdownTimeout = 30 * time.Second

type Options struct {
	Addr    string
	Factory SessionFactory
	Bus     *events.Bus
	// Store enables the persistence routes used by proxy-mode clients.
	Store chatstore.Store
	// AdminToken gates admin sessions; empty disables them.
	AdminToken string
	// AllowedOrigins lists websocket origins; empty allows same-host only.
	AllowedOrigins []string

	PoolIdleTimeout time.Duration
	EvictIdle       time.Duration
	EvictInterval   time.Duration
	ShutdownTimeout time.Duration
}

// Server serves the assistant session API, the websocket event feed and,
// when a store is configured, the persistence proxy routes.
type Server struct {
	opts    Options
	cm      *ConvManager
	mux     *http.ServeMux
	httpSrv *http.Server
}

func NewServer(ctx context.Context, opts Options) (*Server, error) {
	if ctx == nil {
		return nil, errors.New("ctx is nil")
	}
	if opts.Factory == nil {
		return nil, errors.New("webchat: a session factory is required")
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}
	cm := NewConvManager(ctx, opts.Factory, opts.Bus)
	cm.SetPoolIdleTimeout(opts.PoolIdleTimeout)
	cm.SetEvictionConfig(opts.EvictIdle, opts.EvictInterval)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "conversations": cm.Count()})
	})
	NewSessionHandlers(cm, opts.AdminToken, newUpgrader(opts.AllowedOrigins)).Register(mux)
	if opts.Store != nil {
		NewPersistenceHandlers(opts.Store).Register(mux)
	}

	return &Server{
		opts: opts,
		cm:   cm,
		mux:  mux,
		httpSrv: &http.Server{
			Addr:              opts.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

func newUpgrader(origins []string) websocket.Upgrader {
	u := websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024}
	if len(origins) == 0 {
		return u
	}
	allowed := map[string]struct{}{}
	for _, o := range origins {
		allowed[strings.TrimRight(strings.TrimSpace(o), "/")] = struct{}{}
	}
	u.CheckOrigin = func(r *http.Request) bool {
		if _, ok := allowed["*"]; ok {
			return true
		}
		_, ok := allowed[r.Header.Get("Origin")]
		return ok
	}
	return u
}

func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) ConvManager() *ConvManager { return s.cm }

func (s *Server) HTTPServer() *http.Server { return s.httpSrv }

// Run serves until ctx is cancelled or the process gets SIGINT/SIGTERM, then
// shuts down the listener, drops live conversations, and closes the bus and store.
func (s *Server) Run(ctx context.Context) error {
	if ctx == nil {
		return errors.New("ctx is nil")
	}
	if s == nil || s.httpSrv == nil {
		return errors.New("server is not initialized")
	}
	eg := errgroup.Group{}
	srvCtx, srvCancel := context.WithCancel(ctx)
	defer srvCancel()

	s.cm.StartEvictionLoop(srvCtx)

	eg.Go(func() error {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		select {
		case <-sigChan:
			log.Info().Msg("received interrupt signal, shutting down gracefully...")
		case <-srvCtx.Done():
		}
		srvCancel()
		return s.shutdown(context.WithoutCancel(ctx))
	})

	eg.Go(func() error {
		log.Info().Str("addr", s.httpSrv.Addr).Msg("starting estatebot server")
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server listen error")
			srvCancel()
			return err
		}
		return nil
	})

	return eg.Wait()
}

func (s *Server) shutdown(base context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(base, s.opts.ShutdownTimeout)
	defer cancel()
	var firstErr error
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
		firstErr = err
	}
	s.cm.CloseAll()
	if s.opts.Bus != nil {
		if err := s.opts.Bus.Close(); err != nil {
			log.Error().Err(err).Msg("event bus close error")
		}
	}
	if s.opts.Store != nil {
		if err := s.opts.Store.Close(); err != nil {
			log.Error().Err(err).Msg("chat store close error")
		}
	}
	log.Info().Msg("server shutdown complete")
	return firstErr
}
