package query

import (
	"strings"

	"natours/internal/model"
)

// SortField orders by one field.
type SortField struct {
	Field string
	Desc  bool
}

// Sort is an ordering directive, most significant field first.
type Sort []SortField

// ParseSort reads a space or comma separated directive such as
// "-price ratingsAverage". Tokens that are not field names are returned
// separately.
func ParseSort(directive string) (Sort, []string) {
	var out Sort
	var bad []string
	for _, tok := range tokens(directive) {
		name, desc := strings.CutPrefix(tok, "-")
		if !model.ValidIdentifier(name) {
			bad = append(bad, tok)
			continue
		}
		out = append(out, SortField{Field: name, Desc: desc})
	}
	return out, bad
}

// String renders the directive in the "-price ratingsAverage" form.
func (s Sort) String() string {
	parts := make([]string, len(s))
	for i, f := range s {
		if f.Desc {
			parts[i] = "-" + f.Field
		} else {
			parts[i] = f.Field
		}
	}
	return strings.Join(parts, " ")
}

// Projection selects returned fields. Only one of Include and Exclude is
// set, except that _id may be excluded alongside inclusions.
type Projection struct {
	Include []string
	Exclude []string
}

// ParseProjection reads a directive such as "name price" or "-__v".
func ParseProjection(directive string) (Projection, []string, error) {
	var p Projection
	var bad []string
	for _, tok := range tokens(directive) {
		name, exclude := strings.CutPrefix(tok, "-")
		if name != model.IDField && !model.ValidIdentifier(name) {
			bad = append(bad, tok)
			continue
		}
		if exclude {
			p.Exclude = append(p.Exclude, name)
		} else {
			p.Include = append(p.Include, name)
		}
	}
	if len(p.Include) > 0 {
		for _, name := range p.Exclude {
			if name != model.IDField {
				return Projection{}, bad, &InvalidQueryError{Message: "Projection cannot have a mix of inclusion and exclusion"}
			}
		}
	}
	return p, bad, nil
}

func (p Projection) String() string {
	parts := append([]string(nil), p.Include...)
	for _, name := range p.Exclude {
		parts = append(parts, "-"+name)
	}
	return strings.Join(parts, " ")
}

// IsZero reports whether the projection returns whole documents.
func (p Projection) IsZero() bool {
	return len(p.Include) == 0 && len(p.Exclude) == 0
}

// tokens splits on commas and whitespace, dropping empty pieces.
func tokens(directive string) []string {
	return strings.FieldsFunc(directive, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
}
