// Package gateway issues the single, timeout-bound chat-completion call used
// by the delegated reply path. It never retries.
package gateway

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/go-go-golems/estatebot/pkg/chat"
)

const (
	DefaultModel     = "gpt-4o-mini"
	DefaultMaxTokens = 500
	DefaultTimeout   = 15 * time.Second
)

type Config struct {
	APIKey    string        `mapstructure:"api_key" yaml:"api_key"`
	BaseURL   string        `mapstructure:"base_url" yaml:"base_url"`
	Model     string        `mapstructure:"model" yaml:"model"`
	MaxTokens int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// Disabled forces the deterministic path even when a key is present.
	Disabled bool `mapstructure:"disabled" yaml:"disabled"`

	HTTPClient *http.Client `mapstructure:"-" yaml:"-"`
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

type Gateway struct {
	cfg    Config
	client *openai.Client
}

func New(cfg Config) *Gateway {
	cfg = cfg.withDefaults()
	g := &Gateway{cfg: cfg}
	if strings.TrimSpace(cfg.APIKey) == "" || cfg.Disabled {
		return g
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	}
	g.client = openai.NewClientWithConfig(oc)
	return g
}

// Available reports whether Complete would attempt a network call.
func (g *Gateway) Available() bool {
	return g != nil && g.client != nil
}

func (g *Gateway) Model() string { return g.cfg.Model }

// Complete sends turns and returns the first choice's content. Every failure
// is either ErrMissingCredential or an *ExternalModelError.
func (g *Gateway) Complete(ctx context.Context, turns []chat.Turn) (string, error) {
	if !g.Available() {
		return "", ErrMissingCredential
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:     g.cfg.Model,
		Messages:  toMessages(turns),
		MaxTokens: g.cfg.MaxTokens,
	}
	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		mErr := classify(ctx, err)
		log.Warn().
			Str("component", "gateway").
			Str("model", g.cfg.Model).
			Str("kind", string(mErr.Kind)).
			Int("status", mErr.Status).
			Dur("elapsed", time.Since(start)).
			Err(err).
			Msg("model call failed")
		return "", mErr
	}
	if len(resp.Choices) == 0 {
		return "", &ExternalModelError{Kind: FailureMalformed, Err: errors.New("response has no choices")}
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", &ExternalModelError{Kind: FailureMalformed, Err: errors.New("first choice has empty content")}
	}
	log.Debug().
		Str("component", "gateway").
		Str("model", g.cfg.Model).
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Dur("elapsed", time.Since(start)).
		Msg("model call succeeded")
	return content, nil
}

func toMessages(turns []chat.Turn) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(turns))
	for _, t := range turns {
		role := openai.ChatMessageRoleUser
		switch t.Role {
		case chat.RoleSystem:
			role = openai.ChatMessageRoleSystem
		case chat.RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		case chat.RoleUser:
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: t.Content})
	}
	return out
}
