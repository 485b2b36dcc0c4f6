package client

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/estatebot/pkg/persistence/chatstore"
)

const DefaultDirectTimeout = 10 * time.Second

// direct writes straight to the chat tables.
type direct struct {
	store   chatstore.Store
	timeout time.Duration
}

// NewDirect wraps store. The returned client does not close store.
func NewDirect(store chatstore.Store, timeout time.Duration) Client {
	if store == nil {
		return &opClient{strategy: StrategyDirect, exec: misconfigured{err: &ConfigurationError{Strategy: StrategyDirect, Missing: "store"}}}
	}
	if timeout <= 0 {
		timeout = DefaultDirectTimeout
	}
	return &opClient{strategy: StrategyDirect, exec: &direct{store: store, timeout: timeout}}
}

func (d *direct) execute(ctx context.Context, op Operation) (bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var (
		prior bool
		err   error
	)
	switch op.Target {
	case TargetUpsertConversation:
		err = d.store.UpsertConversation(ctx, op.Conversation)
	case TargetInsertMessage:
		err = d.store.InsertMessage(ctx, op.Message)
	case TargetPatchConversation:
		err = d.store.PatchConversation(ctx, op.ConversationID, op.Patch)
	case TargetPriorMessages:
		prior, err = d.store.HasPriorMessages(ctx, op.SessionID, op.ExcludeMessageID)
	default:
		err = errors.Errorf("unknown operation target %q", op.Target)
	}
	if err != nil {
		log.Debug().Str("component", "persistence").Str("strategy", string(StrategyDirect)).Str("op", op.String()).Err(err).Msg("operation failed")
		return false, &TransportError{Strategy: StrategyDirect, Op: op.Target, Err: err}
	}
	return prior, nil
}
