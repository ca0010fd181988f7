package store

import (
	"context"
	"sync"

	"natours/internal/model"
	"natours/internal/query"

	"github.com/google/uuid"
)

// Memory keeps documents in process. It backs tests and STORE=memory.
type Memory struct {
	mu    sync.Mutex
	colls map[string]*memoryData
}

type memoryData struct {
	mu    sync.RWMutex
	order []string
	docs  map[string]model.Document
}

func NewMemory() *Memory {
	return &Memory{colls: map[string]*memoryData{}}
}

// Collection returns a handle on m's documents. Handles for the same
// collection share storage.
func (s *Memory) Collection(m *model.Model) Collection {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.colls[m.Collection]
	if !ok {
		data = &memoryData{docs: map[string]model.Document{}}
		s.colls[m.Collection] = data
	}
	return &memoryCollection{data: data, model: m, scope: query.ScopeFilter(m)}
}

type memoryCollection struct {
	data  *memoryData
	model *model.Model
	scope query.Filter
}

func (c *memoryCollection) Find(_ context.Context, in query.Intent) ([]model.Document, error) {
	c.data.mu.RLock()
	matched := c.matchLocked(in.Filter)
	c.data.mu.RUnlock()

	query.SortDocuments(matched, in.Sort)
	matched = query.Window(matched, in.Skip, in.Limit)
	out := make([]model.Document, len(matched))
	for i, d := range matched {
		out[i] = in.Projection.Apply(d)
	}
	return out, nil
}

func (c *memoryCollection) Count(_ context.Context, f query.Filter) (int64, error) {
	c.data.mu.RLock()
	defer c.data.mu.RUnlock()
	return int64(len(c.matchLocked(f))), nil
}

func (c *memoryCollection) FindByID(ctx context.Context, id string) (model.Document, error) {
	if err := checkUUID(id); err != nil {
		return nil, err
	}
	return c.FindOne(ctx, query.Filter{model.IDField: {query.Eq(id)}})
}

func (c *memoryCollection) FindOne(_ context.Context, f query.Filter) (model.Document, error) {
	c.data.mu.RLock()
	defer c.data.mu.RUnlock()
	matched := c.matchLocked(f)
	if len(matched) == 0 {
		return nil, ErrNotFound
	}
	return matched[0], nil
}

func (c *memoryCollection) Insert(_ context.Context, doc model.Document) (model.Document, error) {
	stored := clone(doc)
	stored[model.IDField] = uuid.NewString()
	stored[model.VersionField] = int64(0)

	c.data.mu.Lock()
	defer c.data.mu.Unlock()
	if err := c.checkUniqueLocked(stored, ""); err != nil {
		return nil, err
	}
	id := stored[model.IDField].(string)
	c.data.docs[id] = stored
	c.data.order = append(c.data.order, id)
	return clone(stored), nil
}

func (c *memoryCollection) UpdateByID(_ context.Context, id string, patch model.Document) (model.Document, error) {
	if err := checkUUID(id); err != nil {
		return nil, err
	}
	set, unset := splitPatch(patch)

	c.data.mu.Lock()
	defer c.data.mu.Unlock()
	current, ok := c.visibleLocked(id)
	if !ok {
		return nil, ErrNotFound
	}
	next := clone(current)
	for k, v := range clone(set) {
		next[k] = v
	}
	for _, k := range unset {
		delete(next, k)
	}
	if err := c.checkUniqueLocked(next, id); err != nil {
		return nil, err
	}
	c.data.docs[id] = next
	return clone(next), nil
}

func (c *memoryCollection) DeleteByID(_ context.Context, id string) (model.Document, error) {
	if err := checkUUID(id); err != nil {
		return nil, err
	}
	c.data.mu.Lock()
	defer c.data.mu.Unlock()
	current, ok := c.visibleLocked(id)
	if !ok {
		return nil, ErrNotFound
	}
	c.removeLocked(id)
	return clone(current), nil
}

func (c *memoryCollection) DeleteMany(_ context.Context, f query.Filter) (int64, error) {
	c.data.mu.Lock()
	defer c.data.mu.Unlock()
	var n int64
	for _, d := range c.matchLocked(f) {
		c.removeLocked(d[model.IDField].(string))
		n++
	}
	return n, nil
}

// matchLocked returns copies of the visible documents matching f in
// insertion order.
func (c *memoryCollection) matchLocked(f query.Filter) []model.Document {
	full := c.scope.And(f)
	out := []model.Document{}
	for _, id := range c.data.order {
		d := c.data.docs[id]
		if query.Match(d, full) {
			out = append(out, clone(d))
		}
	}
	return out
}

func (c *memoryCollection) visibleLocked(id string) (model.Document, bool) {
	d, ok := c.data.docs[id]
	if !ok || !query.Match(d, c.scope) {
		return nil, false
	}
	return d, true
}

func (c *memoryCollection) removeLocked(id string) {
	delete(c.data.docs, id)
	for i, v := range c.data.order {
		if v == id {
			c.data.order = append(c.data.order[:i], c.data.order[i+1:]...)
			break
		}
	}
}

// checkUniqueLocked compares doc against every stored document, scoped or
// not, the way a unique index would.
func (c *memoryCollection) checkUniqueLocked(doc model.Document, selfID string) error {
	for _, field := range c.model.UniqueFields() {
		v, ok := doc[field]
		if !ok || v == nil {
			continue
		}
		for id, other := range c.data.docs {
			if id != selfID && query.Equal(other[field], v) {
				return &DuplicateKeyError{Field: field, Value: v}
			}
		}
	}
	return nil
}

func checkUUID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return &InvalidIDError{ID: id}
	}
	return nil
}

// clone copies doc deep enough that callers cannot reach stored slices or
// nested objects.
func clone(doc model.Document) model.Document {
	if doc == nil {
		return nil
	}
	out := make(model.Document, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case []any:
		cp := make([]any, len(x))
		for i, it := range x {
			cp[i] = cloneValue(it)
		}
		return cp
	case map[string]any:
		return clone(x)
	}
	return v
}
