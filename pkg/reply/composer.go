// Package reply produces deterministic assistant replies and the grounding
// prompt used when a chat-completion model is available.
package reply

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/go-go-golems/estatebot/pkg/catalog"
	"github.com/go-go-golems/estatebot/pkg/intent"
	"github.com/go-go-golems/estatebot/pkg/matcher"
)

// Request is everything the rule table looks at.
type Request struct {
	Message  string
	Catalog  []catalog.Property
	Role     UserRole
	Identity Identity
	// AlreadyGreeted drops the name from greeting replies once the session
	// has had its personal greeting.
	AlreadyGreeted bool
}

// Composer applies an ordered rule list; the first matching rule wins.
type Composer struct {
	matcher *matcher.Matcher
	now     func() time.Time
	zone    *time.Location
}

type ComposerOption func(*Composer)

func WithMatcher(m *matcher.Matcher) ComposerOption {
	return func(c *Composer) {
		if m != nil {
			c.matcher = m
		}
	}
}

func WithClock(now func() time.Time) ComposerOption {
	return func(c *Composer) {
		if now != nil {
			c.now = now
		}
	}
}

func WithZone(zone *time.Location) ComposerOption {
	return func(c *Composer) {
		if zone != nil {
			c.zone = zone
		}
	}
}

func NewComposer(opts ...ComposerOption) *Composer {
	c := &Composer{
		matcher: matcher.New(matcher.DefaultOptions()),
		now:     time.Now,
		zone:    ReferenceZone,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Greeting is the personalized time-of-day greeting for id at the composer's clock.
func (c *Composer) Greeting(id Identity) string {
	return PersonalGreeting(c.now(), c.zone, id.DisplayName())
}

func (c *Composer) Matcher() *matcher.Matcher { return c.matcher }

func (c *Composer) greetingFor(req Request) string {
	if req.AlreadyGreeted {
		return TimeOfDayGreeting(c.now(), c.zone) + "!"
	}
	return c.Greeting(req.Identity)
}

type rule struct {
	name  string
	when  func(c *Composer, req Request) bool
	reply func(c *Composer, req Request) string
}

var rules = []rule{
	{
		name: "admin-command",
		when: func(_ *Composer, req Request) bool {
			return req.Role.IsAdmin() && intent.IsAdminCommand(req.Message)
		},
		reply: func(_ *Composer, req Request) string {
			if intent.IsAdminStatsRequest(req.Message) {
				return AdminStats(req.Catalog)
			}
			return adminHelpText
		},
	},
	{
		name: "admin-greeting",
		when: func(_ *Composer, req Request) bool {
			return req.Role.IsAdmin() && intent.IsGreeting(req.Message)
		},
		reply: func(c *Composer, req Request) string {
			return c.greetingFor(req) + " " + adminFraming
		},
	},
	{
		name: "greeting",
		when: func(_ *Composer, req Request) bool { return intent.IsGreeting(req.Message) },
		reply: func(c *Composer, req Request) string {
			return c.greetingFor(req) + " " + capabilityStatement
		},
	},
	{
		name:  "contact",
		when:  func(_ *Composer, req Request) bool { return intent.IsContactRequest(req.Message) },
		reply: func(*Composer, Request) string { return contactReply },
	},
	{
		name:  "legal",
		when:  func(_ *Composer, req Request) bool { return intent.IsLegalQuery(req.Message) },
		reply: func(*Composer, Request) string { return legalGuidance },
	},
	{
		name:  "empty-catalog",
		when:  func(_ *Composer, req Request) bool { return len(req.Catalog) == 0 },
		reply: func(*Composer, Request) string { return noListingsReply },
	},
	{
		name: "matches",
		when: func(c *Composer, req Request) bool {
			return len(c.matcher.Match(req.Message, req.Catalog)) > 0
		},
		reply: func(c *Composer, req Request) string {
			return fmt.Sprintf(foundReplyFormat, len(c.matcher.Match(req.Message, req.Catalog)))
		},
	},
}

// Compose never fails and never returns an empty string.
func (c *Composer) Compose(req Request) string {
	reply, _ := c.ComposeRule(req)
	return reply
}

// ComposeRule also reports which rule produced the reply ("clarify" when none did).
func (c *Composer) ComposeRule(req Request) (string, string) {
	for _, r := range rules {
		if r.when(c, req) {
			if out := strings.TrimSpace(r.reply(c, req)); out != "" {
				return out, r.name
			}
		}
	}
	return clarifyReply, "clarify"
}

// AdminStats summarizes catalog size and mean asking price.
func AdminStats(props []catalog.Property) string {
	if len(props) == 0 {
		return "Admin overview: the catalog is empty right now."
	}
	var total int64
	for _, p := range props {
		total += p.Price
	}
	avg := total / int64(len(props))
	return fmt.Sprintf("Admin overview: %d properties listed, average asking price KES %s.", len(props), humanize.Comma(avg))
}
