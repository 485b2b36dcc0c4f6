package cmds

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/estatebot/pkg/assistant"
	"github.com/go-go-golems/estatebot/pkg/chat"
	"github.com/go-go-golems/estatebot/pkg/gateway"
	"github.com/go-go-golems/estatebot/pkg/reply"
)

type askOptions struct {
	admin      bool
	name       string
	email      string
	showPrompt bool
	raw        bool
}

func newAskCommand(root *rootOptions) *cobra.Command {
	o := &askOptions{}
	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Answer a single message without opening a session",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.loadApp(cmd.Flags())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			props, err := a.Catalog.Snapshot(cmd.Context())
			if err != nil {
				return errors.Wrap(err, "load catalog")
			}
			role := reply.RoleCustomer
			if o.admin {
				role = reply.RoleAdmin
			}
			req := assistant.Request{
				Message:  strings.Join(args, " "),
				Role:     role,
				Identity: reply.Identity{Name: o.name, Email: o.email},
				Catalog:  props,
			}
			out := cmd.OutOrStdout()
			if o.showPrompt {
				if err := printPrompt(out, a.Responder.Prompt(req)); err != nil {
					return err
				}
			}

			resp := a.Responder.Respond(cmd.Context(), req)
			text := resp.Text
			if !o.raw && isTerminal(out) {
				if styled, err := glamour.Render(text, "dark"); err == nil {
					text = styled
				}
			}
			_, err = fmt.Fprintln(out, strings.TrimRight(text, "\n"))
			if err != nil {
				return err
			}
			if resp.Source == assistant.SourceRules {
				fmt.Fprintf(cmd.ErrOrStderr(), "(deterministic reply: %s)\n", resp.Rule)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.BoolVar(&o.admin, "admin", false, "Ask as the admin console")
	f.StringVar(&o.name, "name", "", "Name of the person asking")
	f.StringVar(&o.email, "email", "", "Email of the person asking")
	f.BoolVar(&o.showPrompt, "show-prompt", false, "Print the model prompt and its token count first")
	f.BoolVar(&o.raw, "raw", false, "Print the reply without markdown styling")
	return cmd
}

var estimateTokens = gateway.EstimateTokens

func printPrompt(w io.Writer, turns []chat.Turn) error {
	for _, t := range turns {
		if _, err := fmt.Fprintf(w, "--- %s ---\n%s\n", t.Role, t.Content); err != nil {
			return err
		}
	}
	n, err := estimateTokens(turns)
	if err != nil {
		log.Debug().Err(err).Msg("token estimate failed")
		_, err = fmt.Fprint(w, "--- token estimate unavailable ---\n\n")
		return err
	}
	_, err = fmt.Fprintf(w, "--- %d prompt tokens ---\n\n", n)
	return err
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}
