// Package client is the write path from a conversation session to storage.
//
// Exactly one strategy is active per process: DirectClient writes to the chat
// tables itself, ProxyClient posts to an HTTP endpoint that owns them. New
// picks the strategy once from Settings.
package client

import (
	"context"
	"fmt"

	"github.com/go-go-golems/estatebot/pkg/persistence/chatstore"
)

type Strategy string

const (
	StrategyDirect Strategy = "direct"
	StrategyProxy  Strategy = "proxy"
)

type Target string

const (
	TargetUpsertConversation Target = "upsertConversation"
	TargetInsertMessage      Target = "insertMessage"
	TargetPatchConversation  Target = "patchConversation"
	TargetPriorMessages      Target = "hasPriorMessages"
)

// Operation is built per call and executed by the active strategy.
type Operation struct {
	Target     Target
	Idempotent bool

	Conversation chatstore.Conversation
	Message      chatstore.Message
	Patch        chatstore.ConversationPatch
	// ConversationID keys patches.
	ConversationID string
	// SessionID and ExcludeMessageID drive the prior-message probe.
	SessionID        string
	ExcludeMessageID string
}

func (o Operation) String() string {
	switch o.Target {
	case TargetUpsertConversation:
		return fmt.Sprintf("%s(%s)", o.Target, o.Conversation.ConversationID)
	case TargetInsertMessage:
		return fmt.Sprintf("%s(%s/%s)", o.Target, o.Message.ConversationID, o.Message.MessageID)
	case TargetPatchConversation:
		return fmt.Sprintf("%s(%s)", o.Target, o.ConversationID)
	default:
		return fmt.Sprintf("%s(%s)", o.Target, o.SessionID)
	}
}

func UpsertConversationOp(c chatstore.Conversation) Operation {
	return Operation{Target: TargetUpsertConversation, Idempotent: true, Conversation: c}
}

func InsertMessageOp(m chatstore.Message) Operation {
	return Operation{Target: TargetInsertMessage, Idempotent: true, Message: m}
}

func PatchConversationOp(id string, p chatstore.ConversationPatch) Operation {
	return Operation{Target: TargetPatchConversation, Idempotent: true, ConversationID: id, Patch: p}
}

func PriorMessagesOp(sessionID, excludeMessageID string) Operation {
	return Operation{Target: TargetPriorMessages, Idempotent: true, SessionID: sessionID, ExcludeMessageID: excludeMessageID}
}

// Client is what a conversation session needs from storage.
type Client interface {
	Strategy() Strategy
	UpsertConversation(ctx context.Context, c chatstore.Conversation) error
	InsertMessage(ctx context.Context, m chatstore.Message) error
	PatchConversation(ctx context.Context, conversationID string, patch chatstore.ConversationPatch) error
	HasPriorMessages(ctx context.Context, sessionID, excludeMessageID string) (bool, error)
	Close() error
}

// executor runs one Operation. The bool result only matters for prior-message probes.
type executor interface {
	execute(ctx context.Context, op Operation) (bool, error)
}

// opClient adapts an executor to Client.
type opClient struct {
	strategy Strategy
	exec     executor
	closer   func() error
}

func (c *opClient) Strategy() Strategy { return c.strategy }

func (c *opClient) UpsertConversation(ctx context.Context, conv chatstore.Conversation) error {
	_, err := c.exec.execute(ctx, UpsertConversationOp(conv))
	return err
}

func (c *opClient) InsertMessage(ctx context.Context, m chatstore.Message) error {
	_, err := c.exec.execute(ctx, InsertMessageOp(m))
	return err
}

func (c *opClient) PatchConversation(ctx context.Context, id string, p chatstore.ConversationPatch) error {
	_, err := c.exec.execute(ctx, PatchConversationOp(id, p))
	return err
}

func (c *opClient) HasPriorMessages(ctx context.Context, sessionID, excludeMessageID string) (bool, error) {
	return c.exec.execute(ctx, PriorMessagesOp(sessionID, excludeMessageID))
}

func (c *opClient) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}
