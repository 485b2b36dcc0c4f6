package client

import (
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/estatebot/pkg/persistence/chatstore"
	"github.com/go-go-golems/estatebot/pkg/retry"
)

type Settings struct {
	Strategy Strategy       `mapstructure:"strategy" yaml:"strategy"`
	Proxy    ProxySettings  `mapstructure:"proxy" yaml:"proxy"`
	Direct   DirectSettings `mapstructure:"direct" yaml:"direct"`
	Retry    RetrySettings  `mapstructure:"retry" yaml:"retry"`
}

type ProxySettings struct {
	URL     string        `mapstructure:"url" yaml:"url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type DirectSettings struct {
	// Driver is "sqlite" or "memory".
	Driver  string        `mapstructure:"driver" yaml:"driver"`
	Path    string        `mapstructure:"path" yaml:"path"`
	DSN     string        `mapstructure:"dsn" yaml:"dsn"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type RetrySettings struct {
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	Delay       time.Duration `mapstructure:"delay" yaml:"delay"`
}

func (r RetrySettings) Policy() retry.Policy {
	p := retry.DefaultPolicy()
	if r.MaxAttempts > 0 {
		p.MaxAttempts = r.MaxAttempts
	}
	if r.Delay > 0 {
		p.Delay = r.Delay
	}
	return p
}

func DefaultSettings() Settings {
	return Settings{
		Strategy: StrategyDirect,
		Proxy:    ProxySettings{Timeout: DefaultProxyTimeout},
		Direct:   DirectSettings{Driver: "sqlite", Timeout: DefaultDirectTimeout},
		Retry:    RetrySettings{MaxAttempts: retry.DefaultMaxAttempts, Delay: retry.DefaultDelay},
	}
}

// OpenStore opens the chat tables described by s. It returns a
// *ConfigurationError when the driver needs a path it does not have.
func OpenStore(s DirectSettings) (chatstore.Store, error) {
	switch strings.ToLower(strings.TrimSpace(s.Driver)) {
	case "memory":
		return chatstore.NewInMemoryStore(), nil
	case "", "sqlite", "sqlite3":
		dsn := strings.TrimSpace(s.DSN)
		if dsn == "" {
			if strings.TrimSpace(s.Path) == "" {
				return nil, &ConfigurationError{Strategy: StrategyDirect, Missing: "direct.path or direct.dsn"}
			}
			var err error
			dsn, err = chatstore.SQLiteDSNForFile(s.Path)
			if err != nil {
				return nil, err
			}
		}
		return chatstore.NewSQLiteStore(dsn)
	default:
		return nil, &ConfigurationError{Strategy: StrategyDirect, Missing: "supported direct.driver (got " + s.Driver + ")"}
	}
}

// New builds the single active strategy, wrapped with the retry policy.
// Missing settings do not fail here: the client fails each call with a
// ConfigurationError instead. Only a store that cannot be opened is an error.
func New(s Settings) (Client, error) {
	var c Client
	switch Strategy(strings.ToLower(string(s.Strategy))) {
	case StrategyProxy:
		timeout := s.Proxy.Timeout
		if timeout <= 0 {
			timeout = DefaultProxyTimeout
		}
		c = NewProxy(s.Proxy.URL, &http.Client{Timeout: timeout})
	case StrategyDirect, "":
		store, err := OpenStore(s.Direct)
		if err != nil {
			var ce *ConfigurationError
			if !errors.As(err, &ce) {
				return nil, errors.Wrap(err, "open direct store")
			}
			log.Warn().Str("component", "persistence").Str("missing", ce.Missing).Msg("direct persistence not configured")
			c = &opClient{strategy: StrategyDirect, exec: misconfigured{err: ce}}
			break
		}
		timeout := s.Direct.Timeout
		if timeout <= 0 {
			timeout = DefaultDirectTimeout
		}
		c = &opClient{strategy: StrategyDirect, exec: &direct{store: store, timeout: timeout}, closer: store.Close}
	default:
		c = &opClient{strategy: s.Strategy, exec: misconfigured{err: &ConfigurationError{Strategy: s.Strategy, Missing: "a known persistence.strategy (direct|proxy)"}}}
	}
	log.Info().Str("component", "persistence").Str("strategy", string(c.Strategy())).Msg("persistence client ready")
	return WithRetry(c, s.Retry.Policy()), nil
}
