package query

import (
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

const (
	DefaultPage   = 1
	DefaultLimit  = 100
	DefaultSort   = "-createdAt"
	DefaultFields = "-__v"
)

var reservedKeys = map[string]bool{
	"page":   true,
	"sort":   true,
	"limit":  true,
	"fields": true,
}

// bracket keywords accepted as comparison operators, e.g. price[gte]=500
var comparisonOps = map[string]Op{
	"gte": OpGte,
	"gt":  OpGt,
	"lte": OpLte,
	"lt":  OpLt,
}

// Whitelist names the fields allowed to repeat in a query string. Repeated
// values of these fields match any of them; other fields keep the last one.
var Whitelist = map[string]bool{
	"duration":        true,
	"ratingsQuantity": true,
	"ratingsAverage":  true,
	"maxGroupSize":    true,
	"difficulty":      true,
	"price":           true,
}

// RawCondition is a filter constraint whose values are still query-string
// text. OpIn carries several values, every other op exactly one.
type RawCondition struct {
	Op     Op
	Values []string
}

// QuerySpec is the parsed form of a list request's query string.
type QuerySpec struct {
	Filters map[string][]RawCondition
	Sort    string // comma separated, as received
	Fields  string // comma separated, as received
	Page    int
	Limit   int
	Ignored []string // keys that could not be parsed as field filters
}

// ParseSpec reads a QuerySpec from query parameters. It never fails: keys
// it cannot interpret are listed in Ignored.
func ParseSpec(values url.Values) QuerySpec {
	spec := QuerySpec{
		Filters: map[string][]RawCondition{},
		Sort:    last(values["sort"]),
		Fields:  last(values["fields"]),
		Page:    positiveInt(last(values["page"]), DefaultPage),
		Limit:   positiveInt(last(values["limit"]), DefaultLimit),
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if reservedKeys[key] {
			continue
		}
		vals := values[key]
		if len(vals) == 0 {
			continue
		}
		field, opName, ok := splitKey(key)
		if !ok || reservedKeys[field] {
			spec.Ignored = append(spec.Ignored, key)
			continue
		}

		if opName == "" {
			if len(vals) > 1 && Whitelist[field] {
				spec.Filters[field] = append(spec.Filters[field], RawCondition{Op: OpIn, Values: dedupe(vals)})
			} else {
				spec.Filters[field] = append(spec.Filters[field], RawCondition{Op: OpEq, Values: []string{last(vals)}})
			}
			continue
		}

		op, known := comparisonOps[opName]
		if !known {
			spec.Ignored = append(spec.Ignored, key)
			continue
		}
		spec.Filters[field] = append(spec.Filters[field], RawCondition{Op: op, Values: []string{last(vals)}})
	}
	return spec
}

// Skip is the number of documents before the requested page.
func (s QuerySpec) Skip() int64 {
	return skipFor(s.Page, s.Limit)
}

// skipFor saturates at math.MaxInt64, which every store treats as past the
// end.
func skipFor(page, limit int) int64 {
	if page <= 1 || limit <= 0 {
		return 0
	}
	p, l := int64(page-1), int64(limit)
	if p > math.MaxInt64/l {
		return math.MaxInt64
	}
	return p * l
}

// splitKey separates "price[gte]" into field and operator keyword. Only a
// single bracket level is understood.
func splitKey(key string) (field, op string, ok bool) {
	field = key
	if i := strings.IndexByte(key, '['); i >= 0 {
		if !strings.HasSuffix(key, "]") {
			return "", "", false
		}
		field, op = key[:i], key[i+1:len(key)-1]
		if op == "" || strings.ContainsAny(op, "[]") {
			return "", "", false
		}
	}
	if !validFieldName(field) {
		return "", "", false
	}
	return field, op, true
}

// validFieldName rejects operator injection ($where) and dotted paths.
func validFieldName(name string) bool {
	if name == "" || strings.HasPrefix(name, "$") || strings.Contains(name, ".") {
		return false
	}
	return !strings.ContainsAny(name, "[] ")
}

func positiveInt(raw string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func last(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	return vals[len(vals)-1]
}

func dedupe(vals []string) []string {
	seen := make(map[string]bool, len(vals))
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
