package handler

import (
	"context"
	"errors"
	"math"
	"net/http"

	"natours/internal/model"
	"natours/internal/query"
	"natours/internal/store"
)

// AliasTopTours rewrites the query to the five best-rated, cheapest tours.
func AliasTopTours(r *http.Request) (*http.Request, error) {
	q := r.URL.Query()
	q.Set("limit", "5")
	q.Set("sort", "-ratingsAverage,price")
	q.Set("fields", "name,price,ratingsAverage,summary,difficulty")

	r2 := r.Clone(r.Context())
	r2.URL.RawQuery = q.Encode()
	return r2, nil
}

const defaultRatingsAverage = 4.5

// TourRatings keeps a tour's ratingsAverage and ratingsQuantity in step
// with its reviews. It is registered as the reviews AfterWrite hook.
func TourRatings(st store.Store, tours, reviews *model.Model) AfterWrite {
	return func(ctx context.Context, review model.Document) error {
		tourID := stringField(review, "tour")
		if tourID == "" {
			return nil
		}
		docs, err := st.Collection(reviews).Find(ctx, query.Intent{
			Filter:     query.Filter{"tour": {query.Eq(tourID)}},
			Projection: query.Projection{Include: []string{"rating"}},
		})
		if err != nil {
			return err
		}

		var sum float64
		var n int64
		for _, d := range docs {
			if v, ok := d["rating"].(float64); ok {
				sum += v
				n++
			}
		}
		avg := defaultRatingsAverage
		if n > 0 {
			avg = math.Round(sum/float64(n)*10) / 10
		}

		_, err = st.Collection(tours).UpdateByID(ctx, tourID, model.Document{
			"ratingsAverage":  avg,
			"ratingsQuantity": n,
		})
		var invalidID *store.InvalidIDError
		if errors.Is(err, store.ErrNotFound) || errors.As(err, &invalidID) {
			return nil
		}
		return err
	}
}
