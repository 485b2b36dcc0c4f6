package reply

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// AnonymousName is used when neither a name nor an email is known.
const AnonymousName = "Visitor"

// UserRole distinguishes the admin console from customer chats.
type UserRole string

const (
	RoleCustomer UserRole = "customer"
	RoleAdmin    UserRole = "admin"
)

func (r UserRole) IsAdmin() bool { return r == RoleAdmin }

// Identity is what the form phase collected about the counterparty.
type Identity struct {
	Name  string `json:"name,omitempty" yaml:"name,omitempty"`
	Phone string `json:"phone,omitempty" yaml:"phone,omitempty"`
	Email string `json:"email,omitempty" yaml:"email,omitempty"`
}

var titleCaser = cases.Title(language.English)

// DisplayName is the first word of the name, else the first segment of the
// email local part, title-cased, else AnonymousName.
func (id Identity) DisplayName() string {
	if fields := strings.Fields(id.Name); len(fields) > 0 {
		return titleCaser.String(fields[0])
	}
	email := strings.TrimSpace(id.Email)
	if at := strings.Index(email, "@"); at > 0 {
		local := email[:at]
		seg := strings.FieldsFunc(local, func(r rune) bool {
			return r == '.' || r == '_' || r == '-' || r == '+'
		})
		if len(seg) > 0 {
			return titleCaser.String(seg[0])
		}
	}
	return AnonymousName
}

// IsAnonymous reports whether DisplayName falls back to AnonymousName.
func (id Identity) IsAnonymous() bool {
	return id.DisplayName() == AnonymousName
}

// ReferenceZone is the fixed zone used for time-of-day greetings (EAT, UTC+3).
var ReferenceZone = time.FixedZone("EAT", 3*60*60)

// TimeOfDayGreeting returns "Good morning", "Good afternoon" or "Good evening"
// for t in the given zone.
func TimeOfDayGreeting(t time.Time, zone *time.Location) string {
	if zone == nil {
		zone = ReferenceZone
	}
	switch h := t.In(zone).Hour(); {
	case h < 12:
		return "Good morning"
	case h < 17:
		return "Good afternoon"
	default:
		return "Good evening"
	}
}

// PersonalGreeting is the "<time-of-day greeting>, <name>!" prefix.
func PersonalGreeting(t time.Time, zone *time.Location, name string) string {
	return TimeOfDayGreeting(t, zone) + ", " + name + "!"
}
