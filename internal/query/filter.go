package query

import (
	"sort"

	"natours/internal/model"
)

// Op is a comparison operator in the document-store dialect.
type Op string

const (
	OpEq  Op = "$eq"
	OpNe  Op = "$ne"
	OpGt  Op = "$gt"
	OpGte Op = "$gte"
	OpLt  Op = "$lt"
	OpLte Op = "$lte"
	OpIn  Op = "$in"
)

// Condition is one constraint on a field. For OpIn, Value is a []any.
type Condition struct {
	Op    Op
	Value any
}

func Eq(v any) Condition  { return Condition{Op: OpEq, Value: v} }
func Ne(v any) Condition  { return Condition{Op: OpNe, Value: v} }
func Gt(v any) Condition  { return Condition{Op: OpGt, Value: v} }
func Gte(v any) Condition { return Condition{Op: OpGte, Value: v} }
func Lt(v any) Condition  { return Condition{Op: OpLt, Value: v} }
func Lte(v any) Condition { return Condition{Op: OpLte, Value: v} }
func In(vs ...any) Condition {
	return Condition{Op: OpIn, Value: vs}
}

// Filter maps a field name to conditions that must all hold.
type Filter map[string][]Condition

// Add appends c to the field's conditions.
func (f Filter) Add(field string, c Condition) {
	f[field] = append(f[field], c)
}

// And returns a new filter holding the conditions of both.
func (f Filter) And(other Filter) Filter {
	out := make(Filter, len(f)+len(other))
	for k, cs := range f {
		out[k] = append([]Condition(nil), cs...)
	}
	for k, cs := range other {
		out[k] = append(out[k], cs...)
	}
	return out
}

// Fields lists the filtered field names in sorted order.
func (f Filter) Fields() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var scopeOps = map[string]func(any) Condition{
	"eq":  Eq,
	"ne":  Ne,
	"gt":  Gt,
	"gte": Gte,
	"lt":  Lt,
	"lte": Lte,
}

// ScopeFilter builds the filter every find on m is narrowed by, e.g. users
// with active: false are never returned.
func ScopeFilter(m *model.Model) Filter {
	out := Filter{}
	if m == nil {
		return out
	}
	for field, ops := range m.Scope {
		for name, v := range ops {
			cond, ok := scopeOps[name]
			if !ok {
				continue
			}
			if s, isString := v.(string); isString {
				if coerced, err := m.CoerceString(field, s); err == nil {
					v = coerced
				}
			}
			out.Add(field, cond(v))
		}
	}
	return out
}
