package cmds

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	input "github.com/tcnksm/go-input"

	"github.com/go-go-golems/estatebot/pkg/assistant"
	"github.com/go-go-golems/estatebot/pkg/config"
	"github.com/go-go-golems/estatebot/pkg/reply"
	"github.com/go-go-golems/estatebot/pkg/ui"
)

type chatOptions struct {
	plain bool
	admin bool
	id    reply.Identity
}

func newChatCommand(root *rootOptions) *cobra.Command {
	o := &chatOptions{}
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the assistant in the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			plain := o.plain || !isatty.IsTerminal(os.Stdout.Fd())
			a, err := root.loadApp(cmd.Flags(), func(s *config.Settings) {
				if plain {
					s.Reveal.Enabled = false
				}
			})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			role, id := reply.RoleCustomer, reply.Identity{}
			if o.admin {
				role, id = reply.RoleAdmin, o.id
			}
			s, err := a.NewSession(cmd.Context(), role, id)
			if err != nil {
				return err
			}
			defer s.Close()

			if plain {
				return runPlainChat(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), s, o.id)
			}

			bus, err := a.Bus()
			if err != nil {
				return err
			}
			backend, err := ui.NewSessionBackend(cmd.Context(), s, bus)
			if err != nil {
				return err
			}
			title := a.Settings.Prompt.Brand
			if title == "" || title == reply.DefaultBrand {
				title = "estatebot"
			}
			quietLogger()
			p := tea.NewProgram(ui.NewModel(backend, title), tea.WithAltScreen(), tea.WithContext(cmd.Context()))
			_, err = p.Run()
			if errors.Is(err, tea.ErrProgramKilled) {
				return nil
			}
			return err
		},
	}
	f := cmd.Flags()
	f.BoolVar(&o.plain, "plain", false, "Line-by-line chat without the full-screen UI")
	f.BoolVar(&o.admin, "admin", false, "Chat as the admin console (skips the identity form)")
	f.StringVar(&o.id.Name, "name", "", "Your name; prefills the identity prompt")
	f.StringVar(&o.id.Email, "email", "", "Your email; prefills the identity prompt")
	f.StringVar(&o.id.Phone, "phone", "", "Your phone; prefills the identity prompt")
	f.Bool("reveal", true, "Reveal replies progressively in the full-screen UI")
	return cmd
}

const plainHelp = "Type a message and press enter. /rate N [comment] rates the chat, /quit ends it."

// eofReader remembers that its source ran dry; go-input reports end of
// input as an empty answer.
type eofReader struct {
	r   io.Reader
	eof bool
}

func (e *eofReader) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	if errors.Is(err, io.EOF) {
		e.eof = true
	}
	return n, err
}

type plainPrompt struct {
	ui  *input.UI
	src *eofReader
}

func newPlainPrompt(r io.Reader, w io.Writer) *plainPrompt {
	src := &eofReader{r: r}
	return &plainPrompt{ui: &input.UI{Reader: src, Writer: w}, src: src}
}

// ask returns io.EOF once the input is exhausted.
func (p *plainPrompt) ask(query, def string) (string, error) {
	line, err := p.ui.Ask(query, &input.Options{Default: def, HideOrder: true})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(line) == "" && p.src.eof {
		return "", io.EOF
	}
	return line, nil
}

// runPlainChat drives a session over line-based input. prefill seeds the
// identity prompts' defaults. End of input completes the session.
func runPlainChat(ctx context.Context, in io.Reader, out io.Writer, s *assistant.Session, prefill reply.Identity) error {
	p := newPlainPrompt(in, out)
	if s.Phase() == assistant.PhaseForm {
		if err := askIdentity(ctx, p, out, s, prefill); err != nil {
			if errors.Is(err, io.EOF) {
				return s.Complete()
			}
			return err
		}
	}
	fmt.Fprintln(out, plainHelp)

	for s.Phase() == assistant.PhaseChat {
		line, err := p.ask("you", "")
		if err != nil {
			return s.Complete()
		}
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			continue
		case line == "/quit":
			return s.Complete()
		case strings.HasPrefix(line, "/rate"):
			if err := ratePlain(ctx, s, strings.TrimSpace(strings.TrimPrefix(line, "/rate"))); err != nil {
				fmt.Fprintln(out, "!", err)
				continue
			}
			fmt.Fprintln(out, "Thank you for your feedback.")
			return nil
		}

		msg, err := s.SendMessage(ctx, line)
		if err != nil {
			fmt.Fprintln(out, "!", err)
			continue
		}
		fmt.Fprintf(out, "assistant: %s\n", msg.Content)
		if notice, ok := lastNotice(s); ok {
			fmt.Fprintln(out, "!", notice)
		}
	}
	return nil
}

func askIdentity(ctx context.Context, p *plainPrompt, out io.Writer, s *assistant.Session, prefill reply.Identity) error {
	fmt.Fprintln(out, "Tell us who you are before we start.")
	for {
		name, err := p.ask("Name", prefill.Name)
		if err != nil {
			return err
		}
		phone, err := p.ask("Phone (optional if email given)", prefill.Phone)
		if err != nil {
			return err
		}
		email, err := p.ask("Email (optional if phone given)", prefill.Email)
		if err != nil {
			return err
		}
		err = s.SubmitIdentity(ctx, reply.Identity{Name: name, Phone: phone, Email: email})
		var verr *assistant.ValidationError
		if errors.As(err, &verr) {
			fmt.Fprintln(out, "!", err)
			continue
		}
		if err != nil {
			log.Warn().Err(err).Msg("identity not stored")
		}
		return nil
	}
}

func ratePlain(ctx context.Context, s *assistant.Session, arg string) error {
	fields := strings.Fields(arg)
	if len(fields) == 0 {
		return errors.New("usage: /rate N [comment]")
	}
	score, err := strconv.Atoi(fields[0])
	if err != nil || score < 1 || score > 5 {
		return errors.New("rating must be a number from 1 to 5")
	}
	if err := s.BeginRating(); err != nil {
		return err
	}
	return s.SubmitRating(ctx, score, strings.Join(fields[1:], " "))
}

// lastNotice returns the trailing local notice, if the last send produced one.
func lastNotice(s *assistant.Session) (string, bool) {
	msgs := s.Messages()
	if n := len(msgs); n > 0 && msgs[n-1].Local {
		return msgs[n-1].Content, true
	}
	return "", false
}
