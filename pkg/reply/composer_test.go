package reply

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/estatebot/pkg/catalog"
	"github.com/go-go-golems/estatebot/pkg/chat"
)

func fixedClock(hourUTC int) func() time.Time {
	return func() time.Time { return time.Date(2026, 3, 2, hourUTC, 0, 0, 0, time.UTC) }
}

func sampleCatalog() []catalog.Property {
	return []catalog.Property{
		{ID: "1", Title: "Family Home", Location: "Nairobi", Price: 8_000_000, Type: "house"},
		{ID: "2", Title: "Sea View", Location: "Mombasa", Price: 6_500_000, Type: "apartment"},
	}
}

func TestDisplayName(t *testing.T) {
	require.Equal(t, "Jane", Identity{Name: "jane wanjiku"}.DisplayName())
	require.Equal(t, "Peter", Identity{Email: "peter.otieno@example.com"}.DisplayName())
	require.Equal(t, AnonymousName, Identity{}.DisplayName())
	require.Equal(t, AnonymousName, Identity{Email: "@nolocal"}.DisplayName())
	require.True(t, Identity{}.IsAnonymous())
}

func TestTimeOfDayGreeting_ReferenceZone(t *testing.T) {
	// 08:00 UTC is 11:00 EAT.
	require.Equal(t, "Good morning", TimeOfDayGreeting(fixedClock(8)(), nil))
	require.Equal(t, "Good afternoon", TimeOfDayGreeting(fixedClock(9)(), nil))
	require.Equal(t, "Good evening", TimeOfDayGreeting(fixedClock(14)(), nil))
	require.Equal(t, "Good evening", TimeOfDayGreeting(fixedClock(20)(), nil))
}

func TestCompose_FoundSentence(t *testing.T) {
	c := NewComposer(WithClock(fixedClock(6)))
	got := c.Compose(Request{Message: "Show me houses in Nairobi", Catalog: sampleCatalog()})
	require.Equal(t, "I found 1 properties that might interest you.", got)
}

func TestCompose_RuleOrder(t *testing.T) {
	c := NewComposer(WithClock(fixedClock(6)))
	id := Identity{Name: "Amina Yusuf"}

	_, name := c.ComposeRule(Request{Message: "stats please", Role: RoleAdmin, Catalog: sampleCatalog()})
	require.Equal(t, "admin-command", name)

	// Admin keywords mean nothing for customers.
	_, name = c.ComposeRule(Request{Message: "stats please", Role: RoleCustomer, Catalog: sampleCatalog()})
	require.Equal(t, "clarify", name)

	out, name := c.ComposeRule(Request{Message: "Hello!", Role: RoleAdmin, Identity: id})
	require.Equal(t, "admin-greeting", name)
	require.True(t, strings.HasPrefix(out, "Good morning, Amina!"))

	out, name = c.ComposeRule(Request{Message: "hi there", Identity: id})
	require.Equal(t, "greeting", name)
	require.True(t, strings.HasPrefix(out, "Good morning, Amina!"))

	out, name = c.ComposeRule(Request{Message: "hi there", Identity: id, AlreadyGreeted: true})
	require.Equal(t, "greeting", name)
	require.True(t, strings.HasPrefix(out, "Good morning! "))
	require.NotContains(t, out, "Amina")

	_, name = c.ComposeRule(Request{Message: "Can I call the agent?", Catalog: sampleCatalog()})
	require.Equal(t, "contact", name)

	out, name = c.ComposeRule(Request{Message: "how do I verify a deed", Catalog: sampleCatalog()})
	require.Equal(t, "legal", name)
	require.Contains(t, out, "checklist")

	_, name = c.ComposeRule(Request{Message: "houses in Nairobi"})
	require.Equal(t, "empty-catalog", name)

	_, name = c.ComposeRule(Request{Message: "something in Kisumu", Catalog: sampleCatalog()})
	require.Equal(t, "clarify", name)
}

func TestCompose_NeverEmpty(t *testing.T) {
	c := NewComposer()
	for _, msg := range []string{"", "   ", "?!", "xyz"} {
		require.NotEmpty(t, c.Compose(Request{Message: msg}))
		require.NotEmpty(t, c.Compose(Request{Message: msg, Role: RoleAdmin, Catalog: sampleCatalog()}))
	}
}

func TestAdminStats(t *testing.T) {
	require.Equal(t, "Admin overview: 2 properties listed, average asking price KES 7,250,000.", AdminStats(sampleCatalog()))
	require.Contains(t, AdminStats(nil), "empty")
}

func TestBuildPrompt_CurrentMessageOnly(t *testing.T) {
	turns := BuildPrompt(PromptInput{
		Message:  "Any land in Kitengela?",
		Catalog:  sampleCatalog(),
		Identity: Identity{Name: "Jane", Phone: "+254700000000"},
	}, DefaultPromptOptions())

	require.Len(t, turns, 4)
	require.Equal(t, chat.RoleSystem, turns[0].Role)
	require.Contains(t, turns[0].Content, "Jane (phone: +254700000000)")
	require.Contains(t, turns[0].Content, "1. Family Home | house | Nairobi | KES 8,000,000")
	require.NotContains(t, turns[0].Content, "ID")
	require.Equal(t, chat.RoleUser, turns[1].Role)
	require.Equal(t, chat.RoleAssistant, turns[2].Role)
	require.Equal(t, chat.Turn{Role: chat.RoleUser, Content: "Any land in Kitengela?"}, turns[3])
}

func TestBuildPrompt_AdminPersona(t *testing.T) {
	turns := BuildPrompt(PromptInput{Message: "hi", Role: RoleAdmin, Identity: Identity{Name: "Sam"}}, PromptOptions{})
	require.Contains(t, turns[0].Content, "Sam, an administrator")
	require.Contains(t, turns[0].Content, "none are listed")
}

func TestBuildPrompt_HistoryWindowAndTruncation(t *testing.T) {
	history := []chat.Turn{{Role: chat.RoleSystem, Content: "Failed to save message"}}
	for i := 0; i < 14; i++ {
		role := chat.RoleUser
		if i%2 == 1 {
			role = chat.RoleAssistant
		}
		history = append(history, chat.Turn{Role: role, Content: strings.Repeat("x", 2500)})
	}
	turns := BuildPrompt(PromptInput{Message: "ignored", History: history}, DefaultPromptOptions())

	require.Len(t, turns, 3+DefaultHistoryTurns)
	for _, turn := range turns[3:] {
		require.NotEqual(t, chat.RoleSystem, turn.Role)
		require.Len(t, turn.Content, DefaultHistoryChars)
	}
}

func TestBuildPrompt_CatalogCap(t *testing.T) {
	props := make([]catalog.Property, 0, 70)
	for i := 0; i < 70; i++ {
		props = append(props, catalog.Property{ID: "p", Title: "Plot", Location: "Thika", Price: int64(i)})
	}
	sys := SystemPrompt(PromptInput{Catalog: props}, DefaultPromptOptions())
	require.Contains(t, sys, "\n50. Plot")
	require.NotContains(t, sys, "\n51. Plot")
}
