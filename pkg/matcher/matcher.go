// Package matcher selects catalog properties mentioned by a free-text query.
//
// Matching is deliberately loose: a field matches when its lower-cased value
// is contained in the query or the query is contained in it. There is no
// scoring; results keep catalog order and are truncated.
package matcher

import (
	"strings"

	"github.com/go-go-golems/estatebot/pkg/catalog"
)

const (
	// DefaultBudgetTolerance admits properties up to 20% above the parsed budget.
	DefaultBudgetTolerance = 1.2
	// DefaultMaxResults is how many matches are returned.
	DefaultMaxResults = 5
)

type Options struct {
	BudgetTolerance float64
	MaxResults      int
	// StrictBudget makes a parsed budget a ceiling: properties priced above
	// budget*tolerance are dropped even when a text field matched.
	StrictBudget bool
}

func DefaultOptions() Options {
	return Options{
		BudgetTolerance: DefaultBudgetTolerance,
		MaxResults:      DefaultMaxResults,
		StrictBudget:    true,
	}
}

type Matcher struct {
	opts Options
}

func New(opts Options) *Matcher {
	if opts.BudgetTolerance <= 0 {
		opts.BudgetTolerance = DefaultBudgetTolerance
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = DefaultMaxResults
	}
	return &Matcher{opts: opts}
}

// Fields records which checks fired for one property.
type Fields struct {
	Title    bool
	Location bool
	Type     bool
	County   bool
	Budget   bool
}

func (f Fields) Text() bool {
	return f.Title || f.Location || f.Type || f.County
}

func (f Fields) Any() bool {
	return f.Text() || f.Budget
}

// Match returns up to MaxResults properties in catalog order.
func (m *Matcher) Match(message string, props []catalog.Property) []catalog.Property {
	if len(props) == 0 {
		return nil
	}
	q := strings.ToLower(strings.TrimSpace(message))
	budget, hasBudget := ParseBudget(q)
	ceiling := int64(0)
	if hasBudget {
		ceiling = budgetCeiling(budget, m.opts.BudgetTolerance)
	}

	out := make([]catalog.Property, 0, m.opts.MaxResults)
	for _, p := range props {
		f := Fields{
			Title:    looseContains(q, p.Title),
			Location: looseContains(q, p.Location),
			Type:     looseContains(q, p.Type),
			County:   looseContains(q, p.County),
			Budget:   hasBudget && p.Price <= ceiling,
		}
		if !f.Any() {
			continue
		}
		if hasBudget && m.opts.StrictBudget && !f.Budget {
			continue
		}
		out = append(out, p)
		if len(out) == m.opts.MaxResults {
			break
		}
	}
	return out
}

// Match runs the default matcher.
func Match(message string, props []catalog.Property) []catalog.Property {
	return New(DefaultOptions()).Match(message, props)
}

func looseContains(query, field string) bool {
	field = strings.ToLower(strings.TrimSpace(field))
	if field == "" || query == "" {
		return false
	}
	return strings.Contains(query, field) || strings.Contains(field, query)
}
