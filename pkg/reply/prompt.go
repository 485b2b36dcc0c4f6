package reply

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/go-go-golems/estatebot/pkg/catalog"
	"github.com/go-go-golems/estatebot/pkg/chat"
)

const (
	DefaultHistoryTurns = 10
	DefaultHistoryChars = 2000
	DefaultBrand        = "our agency"
)

type PromptOptions struct {
	Brand        string
	CatalogLimit int
	HistoryTurns int
	HistoryChars int
}

func DefaultPromptOptions() PromptOptions {
	return PromptOptions{
		Brand:        DefaultBrand,
		CatalogLimit: catalog.PromptLimit,
		HistoryTurns: DefaultHistoryTurns,
		HistoryChars: DefaultHistoryChars,
	}
}

type PromptInput struct {
	Message  string
	Catalog  []catalog.Property
	Role     UserRole
	Identity Identity
	// History is the conversation so far, oldest first. System notices are skipped.
	History []chat.Turn
}

// BuildPrompt returns the system prompt, the few-shot exemplar, and either the
// recent history or the single current message.
func BuildPrompt(in PromptInput, opts PromptOptions) []chat.Turn {
	def := DefaultPromptOptions()
	if opts.Brand == "" {
		opts.Brand = def.Brand
	}
	if opts.CatalogLimit <= 0 {
		opts.CatalogLimit = def.CatalogLimit
	}
	if opts.HistoryTurns <= 0 {
		opts.HistoryTurns = def.HistoryTurns
	}
	if opts.HistoryChars <= 0 {
		opts.HistoryChars = def.HistoryChars
	}

	out := make([]chat.Turn, 0, 3+opts.HistoryTurns)
	out = append(out, chat.Turn{Role: chat.RoleSystem, Content: SystemPrompt(in, opts)})
	out = append(out, fewShot...)

	history := make([]chat.Turn, 0, len(in.History))
	for _, t := range in.History {
		if t.Role == chat.RoleUser || t.Role == chat.RoleAssistant {
			history = append(history, t)
		}
	}
	if len(history) == 0 {
		return append(out, chat.Turn{Role: chat.RoleUser, Content: chat.Truncate(in.Message, opts.HistoryChars)})
	}
	if len(history) > opts.HistoryTurns {
		history = history[len(history)-opts.HistoryTurns:]
	}
	for _, t := range history {
		out = append(out, chat.Turn{Role: t.Role, Content: chat.Truncate(t.Content, opts.HistoryChars)})
	}
	return out
}

func SystemPrompt(in PromptInput, opts PromptOptions) string {
	var b strings.Builder
	b.WriteString(persona(in.Role, in.Identity, opts.Brand))
	b.WriteString("\n\n")
	b.WriteString(domainKnowledge)
	b.WriteString("\n\n")
	b.WriteString(catalogBlock(in.Catalog, opts.CatalogLimit))
	b.WriteString("\n\nOnly recommend properties from the list above. Keep answers short and friendly, and quote prices in KES.")
	return b.String()
}

func persona(role UserRole, id Identity, brand string) string {
	name := id.DisplayName()
	if role.IsAdmin() {
		return fmt.Sprintf("You are the internal assistant for %s. You are talking to %s, an administrator who manages the property listings. Answer operational questions precisely.", brand, name)
	}
	who := name
	if phone := strings.TrimSpace(id.Phone); phone != "" {
		who = fmt.Sprintf("%s (phone: %s)", name, phone)
	}
	return fmt.Sprintf("You are a friendly property assistant for %s. You are chatting with %s. Help them find land, houses and apartments, explain the buying process, and offer to connect them with an agent.", brand, who)
}

func catalogBlock(props []catalog.Property, limit int) string {
	excerpt := catalog.Excerpt(props, limit)
	if len(excerpt) == 0 {
		return "Available properties: none are listed right now."
	}
	var b strings.Builder
	b.WriteString("Available properties:")
	for i, p := range excerpt {
		fmt.Fprintf(&b, "\n%d. %s", i+1, PropertyLine(p))
	}
	return b.String()
}

// PropertyLine renders one property without its id.
func PropertyLine(p catalog.Property) string {
	parts := []string{p.Title}
	if p.Type != "" {
		parts = append(parts, p.Type)
	}
	loc := p.Location
	if p.County != "" {
		if loc != "" {
			loc += ", "
		}
		loc += p.County + " County"
	}
	if loc != "" {
		parts = append(parts, loc)
	}
	parts = append(parts, "KES "+humanize.Comma(p.Price))
	if p.Size != "" {
		parts = append(parts, p.Size)
	}
	line := strings.Join(parts, " | ")
	if p.Description != "" {
		line += " | " + p.Description
	}
	return line
}
