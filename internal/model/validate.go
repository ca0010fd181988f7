package model

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ValidationError collects per-field messages from one Prepare call.
type ValidationError struct {
	Errors map[string]string
}

func (e *ValidationError) Error() string {
	return "Invalid input data. " + strings.Join(e.Messages(), ". ")
}

// Messages returns the field messages ordered by field name.
func (e *ValidationError) Messages() []string {
	keys := make([]string, 0, len(e.Errors))
	for k := range e.Errors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, e.Errors[k])
	}
	return out
}

func (e *ValidationError) add(field, msg string) {
	if e.Errors == nil {
		e.Errors = map[string]string{}
	}
	if _, exists := e.Errors[field]; !exists {
		e.Errors[field] = msg
	}
}

func (e *ValidationError) orNil() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e
}

// Prepare turns a create payload into a storable document: unknown,
// server-owned and readonly keys are dropped, values are cast, defaults are
// applied and every rule is checked.
func (m *Model) Prepare(body Document, now time.Time) (Document, error) {
	out := Document{}
	verr := &ValidationError{}

	for key, raw := range body {
		f, ok := m.Fields[key]
		if !ok || f.Readonly {
			continue
		}
		v, err := coerceValue(f, raw)
		if err != nil {
			verr.add(key, castMessage(key, f, raw))
			continue
		}
		if v != nil {
			out[key] = v
		}
	}

	for _, name := range m.FieldNames() {
		f := m.Fields[name]
		if _, present := out[name]; present || f.Default == nil {
			continue
		}
		if _, failed := verr.Errors[name]; failed {
			continue
		}
		v, err := defaultValue(f, now)
		if err != nil {
			return nil, fmt.Errorf("schema %s: default of %s: %w", m.Name, name, err)
		}
		out[name] = v
	}

	for _, name := range m.FieldNames() {
		f := m.Fields[name]
		if _, failed := verr.Errors[name]; failed {
			continue
		}
		v, present := out[name]
		if f.Required != "" && (!present || isBlank(v)) {
			verr.add(name, f.Required)
			continue
		}
		if present {
			if msg := m.checkRules(f, v); msg != "" {
				verr.add(name, msg)
			}
		}
	}

	if err := verr.orNil(); err != nil {
		return nil, err
	}
	return out, nil
}

// PreparePatch validates only the supplied keys of a partial update.
func (m *Model) PreparePatch(patch Document) (Document, error) {
	out := Document{}
	verr := &ValidationError{}

	for key, raw := range patch {
		f, ok := m.Fields[key]
		if !ok || f.Readonly {
			continue
		}
		v, err := coerceValue(f, raw)
		if err != nil {
			verr.add(key, castMessage(key, f, raw))
			continue
		}
		if f.Required != "" && isBlank(v) {
			verr.add(key, f.Required)
			continue
		}
		if v != nil {
			if msg := m.checkRules(f, v); msg != "" {
				verr.add(key, msg)
				continue
			}
		}
		out[key] = v
	}

	if err := verr.orNil(); err != nil {
		return nil, err
	}
	return out, nil
}

func castMessage(name string, f *Field, raw any) string {
	typ := f.Type
	if typ == TypeArray {
		typ = "array of " + f.Items
	}
	return fmt.Sprintf("Invalid %s: %v is not a valid %s", name, raw, typ)
}

func defaultValue(f *Field, now time.Time) (any, error) {
	if s, ok := f.Default.(string); ok && s == "now" && (f.Type == TypeDate) {
		return now.UTC(), nil
	}
	v, err := coerceValue(f, f.Default)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func isBlank(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case []any:
		return len(x) == 0
	}
	return false
}
