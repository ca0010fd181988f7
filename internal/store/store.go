// Package store persists resource documents behind one collection interface
// with MongoDB, PostgreSQL and in-memory backends.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"natours/internal/model"
	"natours/internal/query"
)

// ErrNotFound is returned by id-scoped operations that match nothing.
var ErrNotFound = errors.New("document not found")

// InvalidIDError reports an identifier the backend cannot parse.
type InvalidIDError struct {
	ID string
}

func (e *InvalidIDError) Error() string {
	return fmt.Sprintf("Invalid %s: %s", model.IDField, e.ID)
}

// DuplicateKeyError reports a unique constraint violation.
type DuplicateKeyError struct {
	Field string
	Value any
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate value for %s: %v", e.Field, e.Value)
}

// Collection is a findable set of documents of one model. Every operation
// is narrowed by the model's scope, so scoped-out documents behave as if
// they did not exist.
type Collection interface {
	query.Findable

	FindByID(ctx context.Context, id string) (model.Document, error)
	// FindOne returns the first document matching f, or ErrNotFound.
	FindOne(ctx context.Context, f query.Filter) (model.Document, error)
	// Insert stores doc under a new _id with __v 0 and returns the stored
	// document.
	Insert(ctx context.Context, doc model.Document) (model.Document, error)
	// UpdateByID merges patch into the document atomically and returns the
	// result. A nil value in patch removes that key.
	UpdateByID(ctx context.Context, id string, patch model.Document) (model.Document, error)
	// DeleteByID removes the document atomically and returns what was
	// removed.
	DeleteByID(ctx context.Context, id string) (model.Document, error)
	// DeleteMany removes every document matching f.
	DeleteMany(ctx context.Context, f query.Filter) (int64, error)
}

// Store hands out collections for registered models.
type Store interface {
	Collection(m *model.Model) Collection
}

// splitPatch separates keys to set from keys to remove.
func splitPatch(patch model.Document) (set model.Document, unset []string) {
	set = model.Document{}
	for k, v := range patch {
		if k == model.IDField {
			continue
		}
		if v == nil {
			unset = append(unset, k)
			continue
		}
		set[k] = v
	}
	sort.Strings(unset)
	return set, unset
}
