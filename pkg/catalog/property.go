package catalog

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Property is the read-only projection of a listing that matching and prompt
// construction work on. Prices are whole currency units (KES).
type Property struct {
	ID          string `json:"id" yaml:"id"`
	Title       string `json:"title" yaml:"title"`
	Location    string `json:"location" yaml:"location"`
	Price       int64  `json:"price" yaml:"price"`
	Type        string `json:"type" yaml:"type"`
	Size        string `json:"size,omitempty" yaml:"size,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	County      string `json:"county,omitempty" yaml:"county,omitempty"`
}

// rawProperty accepts loosely typed catalog records coming from external
// listing services before they are normalized into a Property.
type rawProperty struct {
	ID          any    `json:"id" yaml:"id"`
	Title       string `json:"title" yaml:"title"`
	Location    string `json:"location" yaml:"location"`
	Price       any    `json:"price" yaml:"price"`
	Type        string `json:"type" yaml:"type"`
	Size        any    `json:"size" yaml:"size"`
	Description string `json:"description" yaml:"description"`
	County      string `json:"county" yaml:"county"`
}

func (r rawProperty) toProperty() (Property, error) {
	price, err := parsePrice(r.Price)
	if err != nil {
		return Property{}, err
	}
	p := Property{
		ID:          stringify(r.ID),
		Title:       r.Title,
		Location:    r.Location,
		Price:       price,
		Type:        r.Type,
		Size:        stringify(r.Size),
		Description: r.Description,
		County:      r.County,
	}
	p = p.Sanitize()
	if err := p.Validate(); err != nil {
		return Property{}, err
	}
	return p, nil
}

// Sanitize trims surrounding whitespace from every text field. The description
// body is left as-is apart from the trim.
func (p Property) Sanitize() Property {
	p.ID = strings.TrimSpace(p.ID)
	p.Title = strings.TrimSpace(p.Title)
	p.Location = strings.TrimSpace(p.Location)
	p.Type = strings.TrimSpace(p.Type)
	p.Size = strings.TrimSpace(p.Size)
	p.Description = strings.TrimSpace(p.Description)
	p.County = strings.TrimSpace(p.County)
	return p
}

// Validate rejects records that cannot be matched or shown safely.
func (p Property) Validate() error {
	if p.ID == "" {
		return errors.New("catalog: property id is empty")
	}
	if p.Title == "" {
		return errors.Errorf("catalog: property %s has no title", p.ID)
	}
	if p.Price < 0 {
		return errors.Errorf("catalog: property %s has negative price %d", p.ID, p.Price)
	}
	return nil
}

func parsePrice(v any) (int64, error) {
	switch t := v.(type) {
	case nil:
		return 0, errors.New("catalog: price is missing")
	case int:
		return int64(t), nil
	case int64:
		return t, nil
	case uint64:
		if t > math.MaxInt64 {
			return 0, errors.Errorf("catalog: price %d overflows", t)
		}
		return int64(t), nil
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0, errors.New("catalog: price is not a finite number")
		}
		return int64(math.Round(t)), nil
	case string:
		s := strings.ToUpper(strings.TrimSpace(t))
		s = strings.TrimPrefix(s, "KES")
		s = strings.TrimPrefix(s, "KSH")
		s = strings.ReplaceAll(s, ",", "")
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, errors.New("catalog: price is empty")
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, errors.Wrapf(err, "catalog: invalid price %q", t)
		}
		return parsePrice(f)
	default:
		return 0, errors.Errorf("catalog: unsupported price type %T", v)
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}
