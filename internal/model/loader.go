package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"natours/internal/logger"

	"gopkg.in/yaml.v3"
)

func LoadModelsFromDir(dir string) error {
	files, err := filepath.Glob(filepath.Join(dir, "*.yml"))
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no schema files in %s", dir)
	}

	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		m, err := ParseModel(name, data)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		Registry[name] = m
		logger.Info("model_loaded", map[string]any{
			"model":     name,
			"fields":    len(m.Fields),
			"relations": len(m.Relations),
		})
	}
	return nil
}

// ParseModel validates the YAML structure and decodes one schema document.
func ParseModel(name string, data []byte) (*Model, error) {
	// structural check on the node tree first, so typos in keys fail loudly
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("YAML parse error: %w", err)
	}
	if len(root.Content) == 0 {
		return nil, fmt.Errorf("empty YAML")
	}
	if err := validateYAMLNode(root.Content[0], "model"); err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}

	var m Model
	if err := root.Decode(&m); err != nil {
		return nil, fmt.Errorf("unmarshal error: %w", err)
	}
	m.Name = name
	if m.Collection == "" {
		m.Collection = name
	}
	if m.Resource == "" {
		m.Resource = strings.TrimSuffix(m.Collection, "s")
	}
	if !validIdentifier(m.Collection) {
		return nil, fmt.Errorf("invalid collection name %q", m.Collection)
	}
	if m.Fields == nil {
		m.Fields = map[string]*Field{}
	}
	for fname, f := range m.Fields {
		if f == nil {
			return nil, fmt.Errorf("field %q has no definition", fname)
		}
		if !validIdentifier(fname) || fname == IDField || fname == VersionField {
			return nil, fmt.Errorf("invalid field name %q", fname)
		}
		f.name = fname
		for _, e := range f.Enum {
			if e == "" || strings.ContainsAny(e, ",|'") {
				return nil, fmt.Errorf("field %q: invalid enum value %q", fname, e)
			}
		}
		if f.Type == TypeArray && f.Items == "" {
			f.Items = TypeString
		}
	}
	return &m, nil
}

// validIdentifier accepts names safe to use as collection/table and JSON keys.
func validIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

// ValidIdentifier is exported for query parsing of sort/projection tokens.
func ValidIdentifier(s string) bool {
	return validIdentifier(s)
}
