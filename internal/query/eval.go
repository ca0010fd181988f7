package query

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"natours/internal/model"
)

// Match reports whether doc satisfies every condition of f. Conditions on
// array fields hold when any element satisfies them, except OpNe which
// requires that no element equals the value.
func Match(doc model.Document, f Filter) bool {
	for field, conds := range f {
		v, present := doc[field]
		for _, c := range conds {
			if !matchOne(v, present, c) {
				return false
			}
		}
	}
	return true
}

func matchOne(v any, present bool, c Condition) bool {
	switch c.Op {
	case OpEq:
		return present && anyElement(v, func(x any) bool { return Equal(x, c.Value) }) ||
			!present && c.Value == nil
	case OpNe:
		return !matchOne(v, present, Eq(c.Value))
	case OpIn:
		vs, _ := c.Value.([]any)
		for _, want := range vs {
			if matchOne(v, present, Eq(want)) {
				return true
			}
		}
		return false
	case OpGt, OpGte, OpLt, OpLte:
		if !present {
			return false
		}
		return anyElement(v, func(x any) bool {
			if rank(x) != rank(c.Value) {
				return false
			}
			cmp := Compare(x, c.Value)
			switch c.Op {
			case OpGt:
				return cmp > 0
			case OpGte:
				return cmp >= 0
			case OpLt:
				return cmp < 0
			default:
				return cmp <= 0
			}
		})
	}
	return false
}

func anyElement(v any, pred func(any) bool) bool {
	if arr, ok := v.([]any); ok {
		for _, x := range arr {
			if pred(x) {
				return true
			}
		}
		return pred(v)
	}
	return pred(v)
}

// Equal compares two stored values, treating all numeric kinds alike.
func Equal(a, b any) bool {
	return rank(a) == rank(b) && Compare(a, b) == 0
}

// type ranks follow the usual document-store ordering: null, numbers,
// strings, objects, arrays, booleans, dates.
const (
	rankNull = iota
	rankNumber
	rankString
	rankObject
	rankArray
	rankBool
	rankDate
)

func rank(v any) int {
	switch v.(type) {
	case nil:
		return rankNull
	case float64, float32, int, int32, int64, json.Number:
		return rankNumber
	case string:
		return rankString
	case map[string]any:
		return rankObject
	case []any:
		return rankArray
	case bool:
		return rankBool
	case time.Time:
		return rankDate
	}
	return rankObject
}

// Compare orders two stored values: by type rank first, then by value.
func Compare(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return ra - rb
	}
	switch ra {
	case rankNumber:
		x, _ := number(a)
		y, _ := number(b)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case rankString:
		return strings.Compare(a.(string), b.(string))
	case rankBool:
		x, y := a.(bool), b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		}
		return 1
	case rankDate:
		return a.(time.Time).Compare(b.(time.Time))
	case rankArray:
		x, y := a.([]any), b.([]any)
		for i := 0; i < len(x) && i < len(y); i++ {
			if c := Compare(x[i], y[i]); c != 0 {
				return c
			}
		}
		return len(x) - len(y)
	case rankObject:
		return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
	}
	return 0
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	}
	return 0, false
}

// SortDocuments orders docs in place. Ties keep their input order. For an
// array field the smallest element is the key ascending and the largest
// descending.
func SortDocuments(docs []model.Document, s Sort) {
	if len(s) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, sf := range s {
			c := Compare(sortKey(docs[i][sf.Field], sf.Desc), sortKey(docs[j][sf.Field], sf.Desc))
			if c == 0 {
				continue
			}
			if sf.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func sortKey(v any, desc bool) any {
	arr, ok := v.([]any)
	if !ok || len(arr) == 0 {
		return v
	}
	best := arr[0]
	for _, x := range arr[1:] {
		c := Compare(x, best)
		if desc && c > 0 || !desc && c < 0 {
			best = x
		}
	}
	return best
}

// Apply returns a copy of doc reduced to the projection. Inclusions keep
// _id unless it is excluded explicitly.
func (p Projection) Apply(doc model.Document) model.Document {
	if doc == nil {
		return nil
	}
	out := model.Document{}
	if len(p.Include) > 0 {
		for _, name := range p.Include {
			if v, ok := doc[name]; ok {
				out[name] = v
			}
		}
		if v, ok := doc[model.IDField]; ok && !contains(p.Exclude, model.IDField) {
			out[model.IDField] = v
		}
		return out
	}
	for k, v := range doc {
		if !contains(p.Exclude, k) {
			out[k] = v
		}
	}
	return out
}

// Window returns docs[skip : skip+limit], clamped to the slice. limit 0
// means no limit.
func Window(docs []model.Document, skip, limit int64) []model.Document {
	if skip < 0 || skip >= int64(len(docs)) {
		return []model.Document{}
	}
	docs = docs[skip:]
	if limit > 0 && limit < int64(len(docs)) {
		docs = docs[:limit]
	}
	return docs
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
