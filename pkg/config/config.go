// Package config loads estatebot settings from an optional YAML file,
// ESTATEBOT_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/go-go-golems/estatebot/pkg/events"
	"github.com/go-go-golems/estatebot/pkg/gateway"
	"github.com/go-go-golems/estatebot/pkg/matcher"
	"github.com/go-go-golems/estatebot/pkg/persistence/client"
	"github.com/go-go-golems/estatebot/pkg/reply"
	"github.com/go-go-golems/estatebot/pkg/retry"
	"github.com/go-go-golems/estatebot/pkg/sessionid"
	"github.com/go-go-golems/estatebot/pkg/typewriter"
)

const EnvPrefix = "ESTATEBOT"

type Settings struct {
	Server      ServerSettings     `mapstructure:"server" yaml:"server"`
	Persistence client.Settings    `mapstructure:"persistence" yaml:"persistence"`
	Model       gateway.Config     `mapstructure:"model" yaml:"model"`
	Session     sessionid.Settings `mapstructure:"session" yaml:"session"`
	Events      events.Settings    `mapstructure:"events" yaml:"events"`
	Catalog     CatalogSettings    `mapstructure:"catalog" yaml:"catalog"`
	Matcher     MatcherSettings    `mapstructure:"matcher" yaml:"matcher"`
	Prompt      PromptSettings     `mapstructure:"prompt" yaml:"prompt"`
	Reveal      RevealSettings     `mapstructure:"reveal" yaml:"reveal"`
}

type ServerSettings struct {
	Addr           string   `mapstructure:"addr" yaml:"addr"`
	AdminToken     string   `mapstructure:"admin_token" yaml:"admin_token"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	// ServeProxy mounts the persistence routes backed by persistence.direct.
	ServeProxy      bool          `mapstructure:"serve_proxy" yaml:"serve_proxy"`
	PoolIdleTimeout time.Duration `mapstructure:"pool_idle_timeout" yaml:"pool_idle_timeout"`
	EvictIdle       time.Duration `mapstructure:"evict_idle" yaml:"evict_idle"`
	EvictInterval   time.Duration `mapstructure:"evict_interval" yaml:"evict_interval"`
}

// CatalogSettings point at the listing source: a local YAML/JSON file or the
// listing service URL. File wins when both are set.
type CatalogSettings struct {
	File    string        `mapstructure:"file" yaml:"file"`
	URL     string        `mapstructure:"url" yaml:"url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type MatcherSettings struct {
	BudgetTolerance float64 `mapstructure:"budget_tolerance" yaml:"budget_tolerance"`
	MaxResults      int     `mapstructure:"max_results" yaml:"max_results"`
	StrictBudget    bool    `mapstructure:"strict_budget" yaml:"strict_budget"`
}

func (m MatcherSettings) Options() matcher.Options {
	return matcher.Options{BudgetTolerance: m.BudgetTolerance, MaxResults: m.MaxResults, StrictBudget: m.StrictBudget}
}

type PromptSettings struct {
	Brand        string `mapstructure:"brand" yaml:"brand"`
	CatalogLimit int    `mapstructure:"catalog_limit" yaml:"catalog_limit"`
	HistoryTurns int    `mapstructure:"history_turns" yaml:"history_turns"`
	HistoryChars int    `mapstructure:"history_chars" yaml:"history_chars"`
}

func (p PromptSettings) Options() reply.PromptOptions {
	o := reply.DefaultPromptOptions()
	if p.Brand != "" {
		o.Brand = p.Brand
	}
	if p.CatalogLimit > 0 {
		o.CatalogLimit = p.CatalogLimit
	}
	if p.HistoryTurns > 0 {
		o.HistoryTurns = p.HistoryTurns
	}
	if p.HistoryChars > 0 {
		o.HistoryChars = p.HistoryChars
	}
	return o
}

type RevealSettings struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
	Step     int           `mapstructure:"step" yaml:"step"`
}

func (r RevealSettings) Options() typewriter.Options {
	return typewriter.Options{Interval: r.Interval, Step: r.Step}
}

func defaults() map[string]any {
	p := reply.DefaultPromptOptions()
	m := matcher.DefaultOptions()
	return map[string]any{
		"server.addr":              ":8080",
		"server.admin_token":       "",
		"server.allowed_origins":   []string{},
		"server.serve_proxy":       true,
		"server.pool_idle_timeout": time.Minute,
		"server.evict_idle":        30 * time.Minute,
		"server.evict_interval":    time.Minute,

		"persistence.strategy":           string(client.StrategyDirect),
		"persistence.proxy.url":          "",
		"persistence.proxy.timeout":      client.DefaultProxyTimeout,
		"persistence.direct.driver":      "sqlite",
		"persistence.direct.path":        "estatebot.db",
		"persistence.direct.dsn":         "",
		"persistence.direct.timeout":     client.DefaultDirectTimeout,
		"persistence.retry.max_attempts": retry.DefaultMaxAttempts,
		"persistence.retry.delay":        retry.DefaultDelay,

		"model.api_key":    "",
		"model.base_url":   "",
		"model.model":      gateway.DefaultModel,
		"model.max_tokens": gateway.DefaultMaxTokens,
		"model.timeout":    gateway.DefaultTimeout,
		"model.disabled":   false,

		"session.backend":     "file",
		"session.path":        "",
		"session.redis_addr":  "",
		"session.client_name": "",
		"session.ttl":         time.Duration(0),

		"events.driver":     "memory",
		"events.redis_addr": "",
		"events.group":      "",

		"catalog.file":    "",
		"catalog.url":     "",
		"catalog.timeout": 10 * time.Second,

		"matcher.budget_tolerance": m.BudgetTolerance,
		"matcher.max_results":      m.MaxResults,
		"matcher.strict_budget":    m.StrictBudget,

		"prompt.brand":         p.Brand,
		"prompt.catalog_limit": p.CatalogLimit,
		"prompt.history_turns": p.HistoryTurns,
		"prompt.history_chars": p.HistoryChars,

		"reveal.enabled":  true,
		"reveal.interval": 15 * time.Millisecond,
		"reveal.step":     2,
	}
}

// flagKeys maps command-line flag names onto settings keys. Only flags that
// exist on the command's flag set are bound.
var flagKeys = map[string]string{
	"addr":                 "server.addr",
	"admin-token":          "server.admin_token",
	"persistence-strategy": "persistence.strategy",
	"proxy-url":            "persistence.proxy.url",
	"db":                   "persistence.direct.path",
	"db-driver":            "persistence.direct.driver",
	"model":                "model.model",
	"no-model":             "model.disabled",
	"session-store":        "session.backend",
	"events-driver":        "events.driver",
	"redis-addr":           "events.redis_addr",
	"catalog":              "catalog.file",
	"catalog-url":          "catalog.url",
	"brand":                "prompt.brand",
	"reveal":               "reveal.enabled",
}

// Load resolves settings. configFile may be empty; a missing file that was
// explicitly named is an error.
func Load(configFile string, flags *pflag.FlagSet) (Settings, error) {
	v := viper.New()
	for k, val := range defaults() {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Settings{}, errors.Wrapf(err, "read config %s", configFile)
		}
	}
	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Settings{}, errors.Wrapf(err, "bind flag %s", name)
				}
			}
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, errors.Wrap(err, "decode settings")
	}
	if s.Model.APIKey == "" {
		s.Model.APIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate rejects values that can never work. Missing credentials are not
// errors here: the persistence client and model gateway report those when
// they are used.
func (s Settings) Validate() error {
	switch client.Strategy(strings.ToLower(string(s.Persistence.Strategy))) {
	case client.StrategyDirect, client.StrategyProxy:
	default:
		return errors.Errorf("persistence.strategy must be %q or %q, got %q", client.StrategyDirect, client.StrategyProxy, s.Persistence.Strategy)
	}
	if s.Persistence.Retry.MaxAttempts < 1 {
		return errors.New("persistence.retry.max_attempts must be at least 1")
	}
	if s.Matcher.BudgetTolerance < 1 {
		return errors.Errorf("matcher.budget_tolerance must be >= 1, got %v", s.Matcher.BudgetTolerance)
	}
	if s.Matcher.MaxResults < 1 {
		return errors.New("matcher.max_results must be at least 1")
	}
	switch s.Events.Driver {
	case "", "memory", "redis":
	default:
		return errors.Errorf("events.driver must be memory or redis, got %q", s.Events.Driver)
	}
	if s.Events.Driver == "redis" && s.Events.RedisAddr == "" {
		return errors.New("events.redis_addr is required for the redis driver")
	}
	if s.Reveal.Step < 0 {
		return errors.New("reveal.step must not be negative")
	}
	return nil
}
