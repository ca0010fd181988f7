package model

import (
	"fmt"
	"sort"
)

var Registry = map[string]*Model{}

func InitRegistry(dir string) error {
	if err := LoadModelsFromDir(dir); err != nil {
		return fmt.Errorf("load error: %w", err)
	}
	if err := LinkModelRelations(); err != nil {
		return fmt.Errorf("link error: %w", err)
	}
	return nil
}

// Get returns the registered model or an error naming the missing one.
func Get(name string) (*Model, error) {
	m, ok := Registry[name]
	if !ok {
		return nil, fmt.Errorf("model %q not registered", name)
	}
	return m, nil
}

// MustGet is Get for wiring code that cannot proceed without the model.
func MustGet(name string) *Model {
	m, err := Get(name)
	if err != nil {
		panic(err)
	}
	return m
}

// FieldNames returns declared field names in a stable order.
func (m *Model) FieldNames() []string {
	names := make([]string, 0, len(m.Fields))
	for name := range m.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
