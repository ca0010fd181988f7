// Package resolver expands references between resource documents.
package resolver

import (
	"context"
	"fmt"
	"sync"

	"natours/internal/logger"
	"natours/internal/model"
	"natours/internal/query"
	"natours/internal/store"
)

// MaxDepth bounds how many relation levels one Populate call follows.
const MaxDepth = 2

// Populate replaces reference fields of docs with the referenced documents,
// batching one query per relation instead of one per document.
//
// belongs_to: doc[path] holding an id becomes the related document, or nil
// when it no longer exists. has_many: doc[path] becomes the list of related
// documents whose fk points at doc. Related documents are populated with
// their own model's default relations, up to MaxDepth levels.
func Populate(ctx context.Context, st store.Store, m *model.Model, docs []model.Document, specs []model.PopulateSpec) error {
	return populate(ctx, st, m, docs, specs, MaxDepth)
}

type expansion struct {
	spec model.PopulateSpec
	rel  *model.ModelRelation
	byID map[string][]model.Document
}

func populate(ctx context.Context, st store.Store, m *model.Model, docs []model.Document, specs []model.PopulateSpec, depth int) error {
	if len(docs) == 0 || len(specs) == 0 || depth <= 0 {
		return nil
	}

	expansions := make([]*expansion, 0, len(specs))
	for _, spec := range specs {
		rel := m.GetRelation(spec.Path)
		if rel == nil || rel.GetModelRef() == nil {
			return fmt.Errorf("populate %s.%s: no such relation", m.Name, spec.Path)
		}
		expansions = append(expansions, &expansion{spec: spec, rel: rel})
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var rerr error

	for _, e := range expansions {
		ids := collectIDs(docs, e.rel)
		if len(ids) == 0 {
			continue
		}
		wg.Add(1)
		go func(e *expansion, ids []any) {
			defer wg.Done()
			grouped, err := fetch(ctx, st, e, ids, depth)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if rerr == nil {
					rerr = fmt.Errorf("populate %s.%s: %w", m.Name, e.spec.Path, err)
				}
				return
			}
			e.byID = grouped
		}(e, ids)
	}
	wg.Wait()

	if rerr != nil {
		logger.Error("populate_error", map[string]any{"model": m.Name, "error": rerr.Error()})
		return rerr
	}

	for _, doc := range docs {
		for _, e := range expansions {
			attach(doc, e)
		}
	}
	return nil
}

// collectIDs gathers the distinct keys the relation is joined on.
func collectIDs(docs []model.Document, rel *model.ModelRelation) []any {
	key := model.IDField
	if rel.Type == "belongs_to" {
		key = rel.FK
	}
	seen := make(map[string]struct{}, len(docs))
	ids := make([]any, 0, len(docs))
	for _, d := range docs {
		id, ok := d[key].(string)
		if !ok || id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// fetch loads the related documents and groups them by the join key.
func fetch(ctx context.Context, st store.Store, e *expansion, ids []any, depth int) (map[string][]model.Document, error) {
	target := e.rel.GetModelRef()
	joinField := model.IDField
	if e.rel.Type == "has_many" {
		joinField = e.rel.FK
	}

	sel := e.spec.Select
	if len(sel) == 0 {
		sel = e.rel.Select
	}
	var proj query.Projection
	if len(sel) > 0 {
		// the join key must survive projection for grouping
		proj.Include = append(append([]string(nil), sel...), joinField)
	}

	related, err := st.Collection(target).Find(ctx, query.Intent{
		Filter:     query.Filter{joinField: {query.In(ids...)}},
		Sort:       query.Sort{{Field: model.IDField}},
		Projection: proj,
	})
	if err != nil {
		return nil, err
	}

	if err := populate(ctx, st, target, related, target.Populate, depth-1); err != nil {
		return nil, err
	}

	grouped := make(map[string][]model.Document, len(ids))
	for _, r := range related {
		key, _ := r[joinField].(string)
		pub := target.Public(r)
		if len(sel) > 0 && joinField != model.IDField && !contains(sel, joinField) {
			delete(pub, joinField)
		}
		grouped[key] = append(grouped[key], pub)
	}
	return grouped, nil
}

func attach(doc model.Document, e *expansion) {
	switch e.rel.Type {
	case "belongs_to":
		id, ok := doc[e.rel.FK].(string)
		if !ok {
			return
		}
		if found := e.byID[id]; len(found) > 0 {
			doc[e.spec.Path] = found[0]
		} else {
			doc[e.spec.Path] = nil
		}
	case "has_many":
		id, _ := doc[model.IDField].(string)
		list := make([]any, 0, len(e.byID[id]))
		for _, r := range e.byID[id] {
			list = append(list, r)
		}
		doc[e.spec.Path] = list
	}
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
