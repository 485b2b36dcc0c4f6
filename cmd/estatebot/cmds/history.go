package cmds

import (
	"context"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/pkg/errors"

	"github.com/go-go-golems/estatebot/pkg/persistence/chatstore"
)

type HistoryCommand struct {
	*cmds.CommandDescription
	load appLoader
}

type HistorySettings struct {
	Conversation string `glazed:"conversation"`
	Limit        int    `glazed:"limit"`
	Since        string `glazed:"since"`
}

func NewHistoryCommand(load appLoader) (*HistoryCommand, error) {
	glazedSection, err := settings.NewGlazedSection()
	if err != nil {
		return nil, errors.Wrap(err, "create glazed section")
	}

	return &HistoryCommand{
		CommandDescription: cmds.NewCommandDescription(
			"history",
			cmds.WithShort("List stored conversations, or the messages of one conversation"),
			cmds.WithLong("Without --conversation, emit one row per stored conversation, most recently updated first. With it, emit the messages of that conversation in order."),
			cmds.WithFlags(
				fields.New(
					"conversation",
					fields.TypeString,
					fields.WithDefault(""),
					fields.WithHelp("Show the messages of this conversation"),
				),
				fields.New(
					"limit",
					fields.TypeInteger,
					fields.WithDefault(20),
					fields.WithHelp("Maximum number of conversations (0 = no limit)"),
				),
				fields.New(
					"since",
					fields.TypeString,
					fields.WithDefault(""),
					fields.WithHelp("Only conversations updated within this window, e.g. 24h"),
				),
			),
			cmds.WithSections(glazedSection),
		),
		load: load,
	}, nil
}

func (c *HistoryCommand) RunIntoGlazeProcessor(
	ctx context.Context,
	parsedLayers *values.Values,
	gp middlewares.Processor,
) error {
	s := &HistorySettings{}
	if err := parsedLayers.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return err
	}
	var sinceMs int64
	if s.Since != "" {
		d, err := time.ParseDuration(s.Since)
		if err != nil {
			return errors.Wrapf(err, "invalid --since %q", s.Since)
		}
		sinceMs = time.Now().Add(-d).UnixMilli()
	}

	a, err := c.load()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()
	store, err := a.Store()
	if err != nil {
		return errors.Wrap(err, "open chat store")
	}

	var rows []types.Row
	if s.Conversation != "" {
		msgs, err := store.ListMessages(ctx, s.Conversation)
		if err != nil {
			return err
		}
		rows = messageRows(msgs)
	} else {
		convs, err := store.ListConversations(ctx, s.Limit, sinceMs)
		if err != nil {
			return err
		}
		rows = conversationRows(convs)
	}
	for _, row := range rows {
		if err := gp.AddRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

func conversationRows(convs []chatstore.Conversation) []types.Row {
	rows := make([]types.Row, 0, len(convs))
	for _, c := range convs {
		rows = append(rows, types.NewRow(
			types.MRP("conversation_id", c.ConversationID),
			types.MRP("customer", c.CustomerName),
			types.MRP("updated", ago(c.UpdatedAtMs)),
			types.MRP("last_message", truncate(c.LastMessage, 60)),
			types.MRP("rating", c.Summary["rating"]),
			types.MRP("feedback", c.Summary["feedback"]),
		))
	}
	return rows
}

func messageRows(msgs []chatstore.Message) []types.Row {
	rows := make([]types.Row, 0, len(msgs))
	for _, m := range msgs {
		rows = append(rows, types.NewRow(
			types.MRP("seq", m.Seq),
			types.MRP("created", ago(m.CreatedAtMs)),
			types.MRP("role", string(m.Role)),
			types.MRP("content", m.Content),
		))
	}
	return rows
}

func ago(ms int64) string {
	if ms <= 0 {
		return ""
	}
	return humanize.Time(time.UnixMilli(ms))
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

var _ cmds.GlazeCommand = &HistoryCommand{}
