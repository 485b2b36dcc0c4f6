package client

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/estatebot/pkg/persistence/chatstore"
	"github.com/go-go-golems/estatebot/pkg/retry"
)

// retrying applies the retry policy to conversation upserts and message
// inserts. Patches and reads go through once.
type retrying struct {
	Client
	policy retry.Policy
}

// WithRetry decorates c. Configuration errors are never retried.
func WithRetry(c Client, p retry.Policy) Client {
	p.Retryable = func(err error) bool { return !IsConfigurationError(err) }
	return &retrying{Client: c, policy: p}
}

func (r *retrying) policyFor(op Operation) retry.Policy {
	p := r.policy
	p.Name = op.String()
	next := r.policy.OnRetry
	p.OnRetry = func(attempt int, err error, wait time.Duration) {
		if next != nil {
			next(attempt, err, wait)
		}
		log.Warn().
			Str("component", "persistence").
			Str("strategy", string(r.Strategy())).
			Str("op", string(op.Target)).
			Int("attempt", attempt).
			Dur("wait", wait).
			Err(err).
			Msg("persistence write failed, retrying")
	}
	return p
}

func (r *retrying) UpsertConversation(ctx context.Context, c chatstore.Conversation) error {
	return retry.Run(ctx, r.policyFor(UpsertConversationOp(c)), func(ctx context.Context) error {
		return r.Client.UpsertConversation(ctx, c)
	})
}

func (r *retrying) InsertMessage(ctx context.Context, m chatstore.Message) error {
	return retry.Run(ctx, r.policyFor(InsertMessageOp(m)), func(ctx context.Context) error {
		return r.Client.InsertMessage(ctx, m)
	})
}
