package query

import (
	"context"
	"fmt"
	"sort"

	"natours/internal/model"
)

// Findable is a collection that can run an accumulated Intent.
type Findable interface {
	Find(ctx context.Context, in Intent) ([]model.Document, error)
	Count(ctx context.Context, filter Filter) (int64, error)
}

// Intent is the accumulated, immutable description of a list query.
// Limit 0 means no limit.
type Intent struct {
	Filter     Filter
	Sort       Sort
	Projection Projection
	Skip       int64
	Limit      int64
}

func (in Intent) withFilter(f Filter) Intent {
	in.Filter = in.Filter.And(f)
	return in
}

// InvalidQueryError reports a query-string value that cannot be applied,
// such as price=cheap on a number field.
type InvalidQueryError struct {
	Message string
}

func (e *InvalidQueryError) Error() string { return e.Message }

// Features builds an Intent from a QuerySpec step by step and runs it.
// A Features value belongs to one request.
type Features struct {
	coll    Findable
	model   *model.Model
	spec    QuerySpec
	intent  Intent
	ignored []string
	err     error
}

// New starts a builder over coll. m may be nil, in which case filter values
// stay strings and field names are not checked.
func New(coll Findable, m *model.Model, spec QuerySpec) *Features {
	return &Features{
		coll:    coll,
		model:   m,
		spec:    spec,
		intent:  Intent{Filter: Filter{}},
		ignored: append([]string(nil), spec.Ignored...),
	}
}

// Where narrows the query with a fixed equality, e.g. a parent id taken
// from the route.
func (f *Features) Where(field string, value any) *Features {
	f.intent = f.intent.withFilter(Filter{field: {Eq(value)}})
	return f
}

// Filter applies the QuerySpec's field filters. Comparison keywords were
// translated to operators while parsing; here values are typed by the
// schema. Fields the schema does not know are skipped.
func (f *Features) Filter() *Features {
	next := Filter{}
	fields := make([]string, 0, len(f.spec.Filters))
	for field := range f.spec.Filters {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		raws := f.spec.Filters[field]
		if f.model != nil && !f.model.HasField(field) {
			f.ignored = append(f.ignored, field)
			continue
		}
		for _, raw := range raws {
			c, err := f.condition(field, raw)
			if err != nil {
				f.fail(err)
				continue
			}
			next.Add(field, c)
		}
	}
	f.intent = f.intent.withFilter(next)
	return f
}

func (f *Features) condition(field string, raw RawCondition) (Condition, error) {
	values := make([]any, 0, len(raw.Values))
	for _, s := range raw.Values {
		v, err := f.coerce(field, s)
		if err != nil {
			return Condition{}, err
		}
		values = append(values, v)
	}
	if raw.Op == OpIn {
		return In(values...), nil
	}
	if len(values) != 1 {
		return Condition{}, fmt.Errorf("%s %s: expected one value, got %d", field, raw.Op, len(values))
	}
	return Condition{Op: raw.Op, Value: values[0]}, nil
}

func (f *Features) coerce(field, s string) (any, error) {
	if f.model == nil {
		return s, nil
	}
	v, err := f.model.CoerceString(field, s)
	if err != nil {
		return nil, &InvalidQueryError{Message: fmt.Sprintf("Invalid %s: %s", field, s)}
	}
	return v, nil
}

// Sort applies the QuerySpec's sort directive, or DefaultSort when absent.
func (f *Features) Sort() *Features {
	directive := f.spec.Sort
	if directive == "" {
		directive = DefaultSort
	}
	s, bad := ParseSort(directive)
	f.ignored = append(f.ignored, bad...)
	f.intent.Sort = f.knownSort(s)
	return f
}

func (f *Features) knownSort(s Sort) Sort {
	if f.model == nil {
		return s
	}
	out := make(Sort, 0, len(s))
	for _, sf := range s {
		if f.model.HasField(sf.Field) {
			out = append(out, sf)
		} else {
			f.ignored = append(f.ignored, sf.Field)
		}
	}
	return out
}

// LimitFields applies the QuerySpec's field list, or DefaultFields when absent.
func (f *Features) LimitFields() *Features {
	directive := f.spec.Fields
	if directive == "" {
		directive = DefaultFields
	}
	p, bad, err := ParseProjection(directive)
	f.ignored = append(f.ignored, bad...)
	if err != nil {
		f.fail(err)
		return f
	}
	f.intent.Projection = p
	return f
}

// Paginate windows the result to the QuerySpec's page. Pages past the end yield
// an empty result.
func (f *Features) Paginate() *Features {
	page, limit := f.spec.Page, f.spec.Limit
	if page <= 0 {
		page = DefaultPage
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	f.intent.Skip = skipFor(page, limit)
	f.intent.Limit = int64(limit)
	return f
}

// Intent returns the accumulated query intent.
func (f *Features) Intent() Intent {
	in := f.intent
	in.Filter = in.Filter.And(nil)
	return in
}

// Ignored lists query keys, fields and tokens that were dropped.
func (f *Features) Ignored() []string {
	return append([]string(nil), f.ignored...)
}

// Err returns the first error recorded while building.
func (f *Features) Err() error {
	return f.err
}

// Exec runs the query. Errors recorded by earlier steps are returned here.
func (f *Features) Exec(ctx context.Context) ([]model.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.coll.Find(ctx, f.Intent())
}

// Count returns how many documents match the filter, ignoring the window.
func (f *Features) Count(ctx context.Context) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.coll.Count(ctx, f.Intent().Filter)
}

func (f *Features) fail(err error) {
	if f.err == nil {
		f.err = err
	}
}
