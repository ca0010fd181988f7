package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"natours/internal/auth"
	"natours/internal/handler"
	"natours/internal/logger"
	"natours/internal/model"
	"natours/internal/query"
	"natours/internal/store"
)

// Dev data refers to other documents by natural key: tour guides and review
// authors by user email, reviewed tours by name. Keys are swapped for the
// ids the store assigns.
type seeder struct {
	st      store.Store
	tours   *model.Model
	users   *model.Model
	reviews *model.Model

	userIDs map[string]string // email -> id
	tourIDs map[string]string // name -> id
}

func newSeeder(st store.Store) *seeder {
	return &seeder{
		st:      st,
		tours:   model.MustGet("tours"),
		users:   model.MustGet("users"),
		reviews: model.MustGet("reviews"),
		userIDs: map[string]string{},
		tourIDs: map[string]string{},
	}
}

// importAll loads users, tours and reviews from dir in that order and
// recomputes the ratings of every reviewed tour.
func (s *seeder) importAll(ctx context.Context, dir string) error {
	users, err := readDocs(filepath.Join(dir, "users.json"))
	if err != nil {
		return err
	}
	for _, u := range users {
		plain, _ := u["password"].(string)
		doc, err := s.users.Prepare(u, model.Stamp())
		if err != nil {
			return fmt.Errorf("user %v: %w", u["email"], err)
		}
		hash, err := auth.HashPassword(plain)
		if err != nil {
			return err
		}
		doc["password"] = hash
		saved, err := s.st.Collection(s.users).Insert(ctx, doc)
		if err != nil {
			return fmt.Errorf("user %v: %w", u["email"], err)
		}
		s.userIDs[saved["email"].(string)] = saved[model.IDField].(string)
	}

	tours, err := readDocs(filepath.Join(dir, "tours.json"))
	if err != nil {
		return err
	}
	for _, t := range tours {
		guides, err := s.lookup(t["guides"], s.userIDs, "guide")
		if err != nil {
			return fmt.Errorf("tour %v: %w", t["name"], err)
		}
		t["guides"] = guides
		doc, err := s.tours.Prepare(t, model.Stamp())
		if err != nil {
			return fmt.Errorf("tour %v: %w", t["name"], err)
		}
		saved, err := s.st.Collection(s.tours).Insert(ctx, doc)
		if err != nil {
			return fmt.Errorf("tour %v: %w", t["name"], err)
		}
		s.tourIDs[saved["name"].(string)] = saved[model.IDField].(string)
	}

	reviews, err := readDocs(filepath.Join(dir, "reviews.json"))
	if err != nil {
		return err
	}
	ratings := handler.TourRatings(s.st, s.tours, s.reviews)
	reviewed := map[string]bool{}
	for _, r := range reviews {
		tourID, err := s.lookupOne(r["tour"], s.tourIDs, "tour")
		if err != nil {
			return err
		}
		userID, err := s.lookupOne(r["user"], s.userIDs, "user")
		if err != nil {
			return err
		}
		r["tour"], r["user"] = tourID, userID
		doc, err := s.reviews.Prepare(r, model.Stamp())
		if err != nil {
			return fmt.Errorf("review: %w", err)
		}
		saved, err := s.st.Collection(s.reviews).Insert(ctx, doc)
		if err != nil {
			return fmt.Errorf("review: %w", err)
		}
		reviewed[saved["tour"].(string)] = true
	}
	for tourID := range reviewed {
		if err := ratings(ctx, model.Document{"tour": tourID}); err != nil {
			return fmt.Errorf("ratings of %s: %w", tourID, err)
		}
	}

	logger.Info("seed_imported", map[string]any{
		"users":   len(users),
		"tours":   len(tours),
		"reviews": len(reviews),
	})
	return nil
}

// deleteAll empties every registered collection, including documents
// hidden by a model scope.
func (s *seeder) deleteAll(ctx context.Context) error {
	for _, name := range []string{"bookings", "reviews", "tours", "users"} {
		m, err := model.Get(name)
		if err != nil {
			return err
		}
		unscoped := *m
		unscoped.Scope = nil
		n, err := s.st.Collection(&unscoped).DeleteMany(ctx, query.Filter{})
		if err != nil {
			return fmt.Errorf("delete %s: %w", name, err)
		}
		logger.Info("seed_deleted", map[string]any{"collection": m.Collection, "count": n})
	}
	return nil
}

func (s *seeder) lookup(raw any, ids map[string]string, what string) ([]any, error) {
	keys, _ := raw.([]any)
	out := make([]any, 0, len(keys))
	for _, k := range keys {
		id, err := s.lookupOne(k, ids, what)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func (s *seeder) lookupOne(raw any, ids map[string]string, what string) (string, error) {
	key, _ := raw.(string)
	id, ok := ids[key]
	if !ok {
		return "", fmt.Errorf("unknown %s %q", what, key)
	}
	return id, nil
}

func readDocs(path string) ([]model.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var docs []model.Document
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return docs, nil
}
