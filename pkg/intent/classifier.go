// Package intent classifies assistant messages with substring heuristics.
// Classification is pure and total: every input yields an Intent.
package intent

import (
	"strings"
)

type Intent string

const (
	Greeting       Intent = "greeting"
	AdminCommand   Intent = "admin-command"
	ContactRequest Intent = "contact-request"
	LegalQuery     Intent = "legal-document-query"
	Other          Intent = "other"
)

var greetings = []string{
	"hi",
	"hello",
	"hey",
	"hiya",
	"good morning",
	"good afternoon",
	"good evening",
	"morning",
	"afternoon",
	"evening",
}

var (
	adminStatsKeywords = []string{"stats", "statistics", "how many properties", "average price", "report", "summary", "dashboard"}
	adminHelpKeywords  = []string{"help", "commands", "what can you do"}
	contactKeywords    = []string{"contact", "phone", "call"}
	legalKeywords      = []string{"title", "deed", "verify"}
)

var stripper = strings.NewReplacer("!", "", ".", "", ",", "", "?", "")

// Normalize lower-cases the message and strips `! . , ?`.
func Normalize(message string) string {
	return strings.TrimSpace(stripper.Replace(strings.ToLower(message)))
}

// IsGreeting reports whether the message is, starts with, or contains a
// greeting from the fixed vocabulary. Single-word greetings must appear as a
// whole word so that "this" or "they" do not count.
func IsGreeting(message string) bool {
	n := Normalize(message)
	if n == "" {
		return false
	}
	words := strings.Fields(n)
	for _, g := range greetings {
		if n == g || strings.HasPrefix(n, g+" ") {
			return true
		}
		if strings.Contains(g, " ") {
			if strings.Contains(n, g) {
				return true
			}
			continue
		}
		for _, w := range words {
			if w == g {
				return true
			}
		}
	}
	return false
}

// IsAdminStatsRequest reports whether an admin asks for catalog numbers.
func IsAdminStatsRequest(message string) bool {
	return containsAny(Normalize(message), adminStatsKeywords)
}

// IsAdminHelpRequest reports whether an admin asks what the assistant can do.
func IsAdminHelpRequest(message string) bool {
	return containsAny(Normalize(message), adminHelpKeywords)
}

// IsAdminCommand covers both admin help and admin stats requests.
func IsAdminCommand(message string) bool {
	return IsAdminStatsRequest(message) || IsAdminHelpRequest(message)
}

func IsContactRequest(message string) bool {
	return containsAny(Normalize(message), contactKeywords)
}

func IsLegalQuery(message string) bool {
	return containsAny(Normalize(message), legalKeywords)
}

// Classify applies the checks in priority order. Admin commands are only
// reported when admin is true; for everybody else those words fall through.
func Classify(message string, admin bool) Intent {
	switch {
	case IsGreeting(message):
		return Greeting
	case admin && IsAdminCommand(message):
		return AdminCommand
	case IsContactRequest(message):
		return ContactRequest
	case IsLegalQuery(message):
		return LegalQuery
	default:
		return Other
	}
}

func containsAny(s string, needles []string) bool {
	if s == "" {
		return false
	}
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
