package model

import (
	"fmt"
)

func LinkModelRelations() error {
	for modelName, model := range Registry {
		for relName, rel := range model.Relations {
			targetModel, ok := Registry[rel.Model]
			if !ok {
				return fmt.Errorf("invalid relation: model '%s' not found in '%s.%s'", rel.Model, modelName, relName)
			}
			rel.SetModelRef(targetModel)

			switch rel.Type {
			case "belongs_to":
				// FK is a field of the current model holding the target id
				if rel.FK == "" {
					rel.FK = relName
				}
				if f, ok := model.Fields[rel.FK]; !ok || f.Type != TypeID {
					return fmt.Errorf("relation '%s.%s': fk '%s' must be an id field", modelName, relName, rel.FK)
				}
			case "has_many":
				// FK lives in the target model and points back at the current one
				if rel.FK == "" {
					rel.FK = model.Resource
				}
				if f, ok := targetModel.Fields[rel.FK]; !ok || f.Type != TypeID {
					return fmt.Errorf("relation '%s.%s': fk '%s' must be an id field of '%s'", modelName, relName, rel.FK, rel.Model)
				}
			default:
				return fmt.Errorf("relation '%s.%s' must have valid Type (belongs_to, has_many), got '%s'", modelName, relName, rel.Type)
			}
			if err := checkSelect(targetModel, rel.Select); err != nil {
				return fmt.Errorf("relation '%s.%s': %w", modelName, relName, err)
			}
		}

		for fname, f := range model.Fields {
			if f.Ref == "" {
				continue
			}
			if _, ok := Registry[f.Ref]; !ok {
				return fmt.Errorf("field '%s.%s' references unknown model '%s'", modelName, fname, f.Ref)
			}
		}

		if p := model.Parent; p != nil {
			if p.Param == "" {
				return fmt.Errorf("parent binding of '%s' needs a param", modelName)
			}
			if f, ok := model.Fields[p.Field]; !ok || f.Type != TypeID {
				return fmt.Errorf("parent binding of '%s': '%s' must be an id field", modelName, p.Field)
			}
		}

		for _, p := range model.Populate {
			rel := model.GetRelation(p.Path)
			if rel == nil {
				return fmt.Errorf("populate path '%s' of '%s' is not a relation", p.Path, modelName)
			}
			if err := checkSelect(rel.GetModelRef(), p.Select); err != nil {
				return fmt.Errorf("populate '%s.%s': %w", modelName, p.Path, err)
			}
		}

		for fname, ops := range model.Scope {
			if !model.HasField(fname) {
				return fmt.Errorf("scope of '%s' uses unknown field '%s'", modelName, fname)
			}
			if len(ops) == 0 {
				return fmt.Errorf("scope of '%s.%s' has no operator", modelName, fname)
			}
		}
	}
	return nil
}

func checkSelect(target *Model, sel []string) error {
	for _, s := range sel {
		if !target.HasField(s) {
			return fmt.Errorf("select field '%s' not in '%s'", s, target.Name)
		}
	}
	return nil
}
