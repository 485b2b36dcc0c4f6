package cmds

import (
	"context"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/pkg/errors"

	"github.com/go-go-golems/estatebot/pkg/catalog"
	"github.com/go-go-golems/estatebot/pkg/matcher"
)

type MatchCommand struct {
	*cmds.CommandDescription
	load appLoader
}

type MatchSettings struct {
	Message []string `glazed:"message"`
}

func NewMatchCommand(load appLoader) (*MatchCommand, error) {
	glazedSection, err := settings.NewGlazedSection()
	if err != nil {
		return nil, errors.Wrap(err, "create glazed section")
	}

	return &MatchCommand{
		CommandDescription: cmds.NewCommandDescription(
			"match",
			cmds.WithShort("List the listings a message would match"),
			cmds.WithLong("Run the listing matcher over the catalog and emit one row per match, in catalog order. The budget column holds the amount parsed from the message, if any."),
			cmds.WithArguments(
				fields.New(
					"message",
					fields.TypeStringList,
					fields.WithHelp("Customer message to match"),
					fields.WithRequired(true),
				),
			),
			cmds.WithSections(glazedSection),
		),
		load: load,
	}, nil
}

func (c *MatchCommand) RunIntoGlazeProcessor(
	ctx context.Context,
	parsedLayers *values.Values,
	gp middlewares.Processor,
) error {
	s := &MatchSettings{}
	if err := parsedLayers.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return err
	}
	q := strings.TrimSpace(strings.Join(s.Message, " "))
	if q == "" {
		return errors.New("message is empty")
	}

	a, err := c.load()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	props, err := a.Catalog.Snapshot(ctx)
	if err != nil {
		return errors.Wrap(err, "load catalog")
	}
	for _, row := range matchRows(q, a.Matcher.Match(q, props)) {
		if err := gp.AddRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

func matchRows(query string, matches []catalog.Property) []types.Row {
	var budget any
	if b, ok := matcher.ParseBudget(query); ok {
		budget = b
	}
	rows := make([]types.Row, 0, len(matches))
	for _, p := range matches {
		row := types.NewRow(
			types.MRP("id", p.ID),
			types.MRP("title", p.Title),
			types.MRP("location", p.Location),
			types.MRP("county", p.County),
			types.MRP("type", p.Type),
			types.MRP("price", p.Price),
			types.MRP("asking", "KES "+humanize.Comma(p.Price)),
			types.MRP("budget", budget),
		)
		rows = append(rows, row)
	}
	return rows
}

var _ cmds.GlazeCommand = &MatchCommand{}
