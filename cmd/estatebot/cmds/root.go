// Package cmds holds the estatebot command tree.
package cmds

import (
	clay "github.com/go-go-golems/clay/pkg"
	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/logging"
	"github.com/go-go-golems/glazed/pkg/cmds/sources"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/go-go-golems/glazed/pkg/help"
	help_cmd "github.com/go-go-golems/glazed/pkg/help/cmd"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/go-go-golems/estatebot/pkg/app"
	"github.com/go-go-golems/estatebot/pkg/config"
)

const appName = "estatebot"

// rootOptions gives subcommands access to the persistent flags. Cobra shares
// the parsed *pflag.Flag values with every child, so glazed commands can read
// them here after parsing.
type rootOptions struct {
	flags *pflag.FlagSet
}

// NewRootCommand builds the estatebot command and its subcommands.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           appName,
		Short:         "estatebot answers property questions for a real-estate agency",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// reinitialize the logger now that --log-level and co are parsed
			return logging.InitLoggerFromViper()
		},
	}

	helpSystem := help.NewHelpSystem()
	help_cmd.SetupCobraRootCommand(helpSystem, root)

	// sets up the logging flags, the config file search path and the
	// ESTATEBOT_ environment prefix
	cobra.CheckErr(clay.InitViper(appName, root))

	pf := root.PersistentFlags()
	if pf.Lookup("config") == nil {
		pf.String("config", "", "YAML settings file")
	}
	pf.String("persistence-strategy", "", "Chat persistence strategy (direct or proxy)")
	pf.String("proxy-url", "", "Base URL of the persistence proxy")
	pf.String("db", "", "Path of the sqlite chat database")
	pf.String("db-driver", "", "Chat database driver (sqlite or memory)")
	pf.String("model", "", "Chat completion model")
	pf.Bool("no-model", false, "Always use the deterministic replies")
	pf.String("session-store", "", "Where the session id is kept (file, redis or memory)")
	pf.String("events-driver", "", "Session event bus driver (memory or redis)")
	pf.String("redis-addr", "", "Redis address for the redis event bus")
	pf.String("catalog", "", "Listings file (YAML or JSON)")
	pf.String("catalog-url", "", "Listings service URL")
	pf.String("brand", "", "Agency name used in prompts")

	opts := &rootOptions{flags: pf}
	root.AddCommand(
		newServeCommand(opts),
		newChatCommand(opts),
		newAskCommand(opts),
	)

	load := func() (*app.App, error) { return opts.loadApp(pf) }
	matchCmd, err := NewMatchCommand(load)
	cobra.CheckErr(err)
	historyCmd, err := NewHistoryCommand(load)
	cobra.CheckErr(err)
	for _, c := range []cmds.GlazeCommand{matchCmd, historyCmd} {
		cobraCmd, err := cli.BuildCobraCommand(c, cli.WithCobraMiddlewaresFunc(getMiddlewares))
		cobra.CheckErr(err)
		root.AddCommand(cobraCmd)
	}
	return root
}

func getMiddlewares(
	_ *values.Values,
	cmd *cobra.Command,
	args []string,
) ([]sources.Middleware, error) {
	return []sources.Middleware{
		sources.FromCobra(cmd),
		sources.FromArgs(args),
		sources.FromEnv(config.EnvPrefix,
			fields.WithSource("env"),
		),
		sources.FromDefaults(),
	}, nil
}

// appLoader builds the components for a glazed command, which only sees its
// own parsed values.
type appLoader func() (*app.App, error)

// loadApp resolves settings from flags and builds the components. tweak runs
// on the resolved settings before anything is constructed. Without --config
// the file clay found on its search path (~/.estatebot/config.yaml and co)
// is used. Callers own the returned App and must Close it.
func (o *rootOptions) loadApp(flags *pflag.FlagSet, tweak ...func(*config.Settings)) (*app.App, error) {
	file, err := o.flags.GetString("config")
	if err != nil {
		return nil, errors.Wrap(err, "read --config")
	}
	if file == "" {
		file = viper.ConfigFileUsed()
	}
	s, err := config.Load(file, flags)
	if err != nil {
		return nil, err
	}
	for _, t := range tweak {
		t(&s)
	}
	a, err := app.New(s)
	if err != nil {
		return nil, errors.Wrap(err, "build app")
	}
	return a, nil
}
