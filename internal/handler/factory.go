package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"natours/internal/apperr"
	"natours/internal/logger"
	"natours/internal/model"
	"natours/internal/query"
	"natours/internal/resolver"
	"natours/internal/store"

	"github.com/go-chi/chi/v5"
)

// AfterWrite runs once a create, update or delete of a document succeeded.
type AfterWrite func(ctx context.Context, doc model.Document) error

// Factory builds the five generic CRUD handlers for any registered model.
type Factory struct {
	Store store.Store
	// AfterWrite hooks keyed by model name.
	AfterWrite map[string]AfterWrite
}

func NewFactory(st store.Store) *Factory {
	return &Factory{Store: st, AfterWrite: map[string]AfterWrite{}}
}

// narrowFunc adds request-derived conditions to a list query.
type narrowFunc func(r *http.Request, f *query.Features) error

// GetAll lists m's documents. A nested route (/tours/{tourId}/reviews)
// restricts the list to the parent.
func (f *Factory) GetAll(m *model.Model, populate ...model.PopulateSpec) HandlerFunc {
	return f.list(m, func(r *http.Request, feats *query.Features) error {
		if m.Parent == nil {
			return nil
		}
		if id := chi.URLParam(r, m.Parent.Param); id != "" {
			feats.Where(m.Parent.Field, id)
		}
		return nil
	}, populate)
}

func (f *Factory) list(m *model.Model, narrow narrowFunc, populate []model.PopulateSpec) HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		ctx := r.Context()
		feats := query.New(f.Store.Collection(m), m, query.ParseSpec(r.URL.Query()))
		if err := narrow(r, feats); err != nil {
			return err
		}

		docs, err := feats.Filter().Sort().LimitFields().Paginate().Exec(ctx)
		if err != nil {
			return err
		}
		if ignored := feats.Ignored(); len(ignored) > 0 {
			logger.Debug("query_ignored", map[string]any{"model": m.Name, "keys": ignored})
		}
		total, err := feats.Count(ctx)
		if err != nil {
			return err
		}
		if err := resolver.Populate(ctx, f.Store, m, docs, specsFor(m, populate)); err != nil {
			return err
		}

		return writeJSON(w, http.StatusOK, envelope{
			"status":  "success",
			"results": len(docs),
			"total":   total,
			"data":    envelope{"data": m.PublicAll(docs)},
		})
	}
}

// GetOne returns the document named by the {id} route parameter.
func (f *Factory) GetOne(m *model.Model, populate ...model.PopulateSpec) HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		ctx := r.Context()
		doc, err := f.Store.Collection(m).FindByID(ctx, chi.URLParam(r, "id"))
		if err != nil {
			return notFound(m, err)
		}
		if err := resolver.Populate(ctx, f.Store, m, []model.Document{doc}, specsFor(m, populate)); err != nil {
			return err
		}
		return writeJSON(w, http.StatusOK, success(envelope{"data": m.Public(doc)}))
	}
}

// CreateOne validates the whole body against m and inserts it.
func (f *Factory) CreateOne(m *model.Model) HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		body, err := readBody(r)
		if err != nil {
			return err
		}
		doc, err := m.Prepare(body, model.Stamp())
		if err != nil {
			return err
		}
		created, err := f.Store.Collection(m).Insert(r.Context(), doc)
		if err != nil {
			return err
		}
		if err := f.afterWrite(r.Context(), m, created); err != nil {
			return err
		}
		return writeJSON(w, http.StatusCreated, success(envelope{"data": m.Public(created)}))
	}
}

// UpdateOne merges the validated body into the document named by {id}.
func (f *Factory) UpdateOne(m *model.Model) HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		body, err := readBody(r)
		if err != nil {
			return err
		}
		patch, err := m.PreparePatch(body)
		if err != nil {
			return err
		}
		updated, err := f.Store.Collection(m).UpdateByID(r.Context(), chi.URLParam(r, "id"), patch)
		if err != nil {
			return notFound(m, err)
		}
		if err := f.afterWrite(r.Context(), m, updated); err != nil {
			return err
		}
		return writeJSON(w, http.StatusOK, success(envelope{"data": m.Public(updated)}))
	}
}

// DeleteOne removes the document named by {id} and answers 204.
func (f *Factory) DeleteOne(m *model.Model) HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		removed, err := f.Store.Collection(m).DeleteByID(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			return notFound(m, err)
		}
		if err := f.afterWrite(r.Context(), m, removed); err != nil {
			return err
		}
		return writeJSON(w, http.StatusNoContent, success(nil))
	}
}

func (f *Factory) afterWrite(ctx context.Context, m *model.Model, doc model.Document) error {
	hook := f.AfterWrite[m.Name]
	if hook == nil {
		return nil
	}
	if err := hook(ctx, doc); err != nil {
		return fmt.Errorf("after write %s: %w", m.Name, err)
	}
	return nil
}

// specsFor puts the model's always-on expansions before the per-route ones.
func specsFor(m *model.Model, extra []model.PopulateSpec) []model.PopulateSpec {
	if len(extra) == 0 {
		return m.Populate
	}
	out := make([]model.PopulateSpec, 0, len(m.Populate)+len(extra))
	out = append(out, m.Populate...)
	return append(out, extra...)
}

func notFound(m *model.Model, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound(fmt.Sprintf("No %s found with that ID", m.Resource))
	}
	return err
}
