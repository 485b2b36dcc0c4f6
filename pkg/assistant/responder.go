// Package assistant sequences a conversation: identity form, serialized
// message sends with write-then-compose ordering, rating, completion.
package assistant

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/estatebot/pkg/catalog"
	"github.com/go-go-golems/estatebot/pkg/chat"
	"github.com/go-go-golems/estatebot/pkg/gateway"
	"github.com/go-go-golems/estatebot/pkg/intent"
	"github.com/go-go-golems/estatebot/pkg/reply"
	"github.com/go-go-golems/estatebot/pkg/sessionid"
)

// Model is the delegated reply path.
type Model interface {
	Available() bool
	Complete(ctx context.Context, turns []chat.Turn) (string, error)
}

// PriorChecker answers whether a session already has persisted messages.
type PriorChecker interface {
	HasPriorMessages(ctx context.Context, sessionID, excludeMessageID string) (bool, error)
}

type Source string

const (
	SourceModel Source = "model"
	SourceRules Source = "rules"
)

type Request struct {
	Message string
	// MessageID is the persisted id of Message; it is excluded from the
	// first-message check.
	MessageID string
	Session   sessionid.SessionContext
	Role      reply.UserRole
	Identity  reply.Identity
	Catalog   []catalog.Property
	History   []chat.Turn
}

type Response struct {
	Text   string
	Source Source
	// Rule names the deterministic rule when Source is SourceRules.
	Rule    string
	Intent  intent.Intent
	Greeted bool
	// ModelErr is why the model path was skipped or failed, if it was.
	ModelErr error
}

type Responder struct {
	composer *reply.Composer
	model    Model
	prior    PriorChecker
	prompt   reply.PromptOptions
}

type ResponderOption func(*Responder)

func WithModel(m Model) ResponderOption {
	return func(r *Responder) { r.model = m }
}

func WithPriorChecker(p PriorChecker) ResponderOption {
	return func(r *Responder) { r.prior = p }
}

func WithPromptOptions(o reply.PromptOptions) ResponderOption {
	return func(r *Responder) { r.prompt = o }
}

func NewResponder(composer *reply.Composer, opts ...ResponderOption) *Responder {
	if composer == nil {
		composer = reply.NewComposer()
	}
	r := &Responder{composer: composer, prompt: reply.DefaultPromptOptions()}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Responder) Composer() *reply.Composer { return r.composer }

// Prompt returns the turns the model path would send for req.
func (r *Responder) Prompt(req Request) []chat.Turn {
	return reply.BuildPrompt(reply.PromptInput{
		Message:  req.Message,
		Catalog:  req.Catalog,
		Role:     req.Role,
		Identity: req.Identity,
		History:  req.History,
	}, r.prompt)
}

// Respond tries the model and falls back to the rule table on any failure.
// It never returns an empty reply.
func (r *Responder) Respond(ctx context.Context, req Request) Response {
	in := intent.Classify(req.Message, req.Role.IsAdmin())
	if r.model == nil || !r.model.Available() {
		return r.fallback(ctx, req, in, gateway.ErrMissingCredential)
	}

	text, err := r.model.Complete(ctx, r.Prompt(req))
	if err != nil {
		return r.fallback(ctx, req, in, err)
	}
	resp := Response{Text: text, Source: SourceModel, Intent: in}
	if in == intent.Greeting && r.shouldGreet(ctx, req) {
		resp.Text = r.composer.Greeting(req.Identity) + " " + text
		resp.Greeted = true
	}
	return resp
}

// fallback answers from the rule table. A greeting is personalized only on
// the session's first recorded message, as on the model path.
func (r *Responder) fallback(ctx context.Context, req Request, in intent.Intent, cause error) Response {
	greeted := false
	if intent.IsGreeting(req.Message) {
		prior, err := r.hasPrior(ctx, req)
		greeted = err == nil && prior
	}
	text, rule := r.composer.ComposeRule(reply.Request{
		Message:        req.Message,
		Catalog:        req.Catalog,
		Role:           req.Role,
		Identity:       req.Identity,
		AlreadyGreeted: greeted,
	})
	ev := log.Debug()
	if !errors.Is(cause, gateway.ErrMissingCredential) {
		ev = log.Info()
	}
	ev.Str("component", "responder").Str("rule", rule).Err(cause).Msg("using deterministic reply")
	resp := Response{Text: text, Source: SourceRules, Rule: rule, Intent: in, ModelErr: cause}
	resp.Greeted = (rule == "greeting" || rule == "admin-greeting") && !greeted && !req.Identity.IsAnonymous()
	return resp
}

// shouldGreet is true only for a named user's first recorded message.
func (r *Responder) shouldGreet(ctx context.Context, req Request) bool {
	if req.Identity.IsAnonymous() {
		return false
	}
	prior, err := r.hasPrior(ctx, req)
	if errors.Is(err, errNoPriorCheck) {
		return false
	}
	if err != nil {
		log.Warn().Str("component", "responder").Str("session_id", req.Session.ID).Err(err).Msg("prior message check failed, not greeting")
		return false
	}
	return !prior
}

var errNoPriorCheck = errors.New("no prior message check")

// hasPrior reports whether the session has messages other than req's own.
func (r *Responder) hasPrior(ctx context.Context, req Request) (bool, error) {
	if r.prior == nil || strings.TrimSpace(req.Session.ID) == "" {
		return false, errNoPriorCheck
	}
	return r.prior.HasPriorMessages(ctx, req.Session.ID, req.MessageID)
}
