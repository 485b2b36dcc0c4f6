package cmds

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat API, its websocket, and the persistence proxy routes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.loadApp(cmd.Flags())
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					log.Warn().Err(err).Msg("close app")
				}
			}()
			srv, err := a.Server(cmd.Context())
			if err != nil {
				return err
			}
			if a.Settings.Server.AdminToken == "" {
				log.Info().Msg("no admin token configured, admin sessions are disabled")
			}
			return srv.Run(cmd.Context())
		},
	}
	cmd.Flags().String("addr", "", "HTTP listen address")
	cmd.Flags().String("admin-token", "", "Token required in X-Admin-Token to open admin sessions")
	return cmd
}
