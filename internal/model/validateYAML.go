package model

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

var allowedModelKeys = map[string]bool{
	"collection": true,
	"resource":   true,
	"fields":     true,
	"relations":  true,
	"parent":     true,
	"populate":   true,
	"scope":      true,
}

var allowedFieldKeys = map[string]bool{
	"type":      true,
	"items":     true,
	"required":  true,
	"default":   true,
	"unique":    true,
	"hidden":    true,
	"readonly":  true,
	"enum":      true,
	"min":       true,
	"max":       true,
	"minlength": true,
	"maxlength": true,
	"lowercase": true,
	"trim":      true,
	"email":     true,
	"ref":       true,
}

var allowedRelationKeys = map[string]bool{
	"type":   true,
	"model":  true,
	"fk":     true,
	"select": true,
}

var allowedParentKeys = map[string]bool{
	"param": true,
	"field": true,
}

var allowedPopulateKeys = map[string]bool{
	"path":   true,
	"select": true,
}

var allowedFieldTypeValues = map[string]bool{
	TypeString:  true,
	TypeNumber:  true,
	TypeInteger: true,
	TypeBoolean: true,
	TypeDate:    true,
	TypeID:      true,
	TypeArray:   true,
	TypeObject:  true,
}

var allowedScopeOps = map[string]bool{
	"eq": true, "ne": true, "gt": true, "gte": true, "lt": true, "lte": true,
}

func validateYAMLNode(node *yaml.Node, context string) error {
	switch node.Kind {
	case yaml.DocumentNode:
		for _, child := range node.Content {
			if err := validateYAMLNode(child, "model"); err != nil {
				return err
			}
		}

	case yaml.MappingNode:
		var allowedKeys map[string]bool
		switch context {
		case "model":
			allowedKeys = allowedModelKeys
		case "field":
			allowedKeys = allowedFieldKeys
		case "relation":
			allowedKeys = allowedRelationKeys
		case "parent":
			allowedKeys = allowedParentKeys
		case "populate-entry":
			allowedKeys = allowedPopulateKeys
		case "scope-entry":
			allowedKeys = allowedScopeOps
		default:
			allowedKeys = nil // free form
		}

		for i := 0; i < len(node.Content); i += 2 {
			keyNode := node.Content[i]
			valNode := node.Content[i+1]
			key := keyNode.Value

			if allowedKeys != nil && !allowedKeys[key] {
				return fmt.Errorf("unknown key '%s' in %s", key, context)
			}

			if context == "field" && (key == "type" || key == "items") {
				if !allowedFieldTypeValues[valNode.Value] {
					return fmt.Errorf("unknown type value '%s' in field", valNode.Value)
				}
			}

			nextContext := ""
			switch {
			case context == "model" && key == "fields":
				nextContext = "fields-map"
			case context == "fields-map":
				nextContext = "field"
			case context == "model" && key == "relations":
				nextContext = "relations-map"
			case context == "relations-map":
				nextContext = "relation"
			case context == "model" && key == "parent":
				nextContext = "parent"
			case context == "model" && key == "populate":
				nextContext = "populate-seq"
			case context == "model" && key == "scope":
				nextContext = "scope-map"
			case context == "scope-map":
				nextContext = "scope-entry"
			case context == "field", context == "relation", context == "populate-entry", context == "scope-entry":
				nextContext = "value"
			default:
				nextContext = context
			}

			if err := validateYAMLNode(valNode, nextContext); err != nil {
				return err
			}
		}

	case yaml.SequenceNode:
		if context == "populate-seq" {
			for _, item := range node.Content {
				if err := validateYAMLNode(item, "populate-entry"); err != nil {
					return err
				}
			}
		} else {
			for _, item := range node.Content {
				if err := validateYAMLNode(item, context); err != nil {
					return err
				}
			}
		}

	case yaml.ScalarNode:
		// scalars are checked by the mapping that owns them
	}

	return nil
}
