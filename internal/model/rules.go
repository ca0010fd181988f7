package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// stringRules is the validator tag for a string field's schema rules, in
// the order their messages win.
func (f *Field) stringRules() string {
	var tags []string
	if len(f.Enum) > 0 {
		vals := make([]string, len(f.Enum))
		for i, e := range f.Enum {
			if strings.Contains(e, " ") {
				e = "'" + e + "'"
			}
			vals[i] = e
		}
		tags = append(tags, "oneof="+strings.Join(vals, " "))
	}
	if f.MinLength > 0 {
		tags = append(tags, "min="+strconv.Itoa(f.MinLength))
	}
	if f.MaxLength > 0 {
		tags = append(tags, "max="+strconv.Itoa(f.MaxLength))
	}
	if f.Email {
		tags = append(tags, "email")
	}
	return strings.Join(tags, ",")
}

func (f *Field) numberRules() string {
	var tags []string
	if f.Min != nil {
		tags = append(tags, "gte="+strconv.FormatFloat(*f.Min, 'f', -1, 64))
	}
	if f.Max != nil {
		tags = append(tags, "lte="+strconv.FormatFloat(*f.Max, 'f', -1, 64))
	}
	return strings.Join(tags, ",")
}

// checkRules returns the message of the first rule v breaks, or "".
func (m *Model) checkRules(f *Field, v any) string {
	var tag string
	switch x := v.(type) {
	case string:
		tag = f.stringRules()
	case float64, int64:
		v, _ = toFloat(x)
		tag = f.numberRules()
	}
	if tag == "" {
		return ""
	}
	err := validate.Var(v, tag)
	if err == nil {
		return ""
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Sprintf("Invalid %s: %v", f.Name(), v)
	}
	return m.ruleMessage(f, verrs[0].Tag())
}

func (m *Model) ruleMessage(f *Field, tag string) string {
	name := f.Name()
	label := strings.ToUpper(name[:1]) + name[1:]
	switch tag {
	case "oneof":
		return fmt.Sprintf("%s is either: %s", label, strings.Join(f.Enum, ", "))
	case "min":
		return fmt.Sprintf("A %s %s must have more or equal than %d characters", m.Resource, name, f.MinLength)
	case "max":
		return fmt.Sprintf("A %s %s must have less or equal than %d characters", m.Resource, name, f.MaxLength)
	case "email":
		return "Please provide a valid email"
	case "gte":
		return fmt.Sprintf("%s must be above or equal to %v", label, *f.Min)
	case "lte":
		return fmt.Sprintf("%s must be below or equal to %v", label, *f.Max)
	}
	return fmt.Sprintf("Invalid %s", name)
}
