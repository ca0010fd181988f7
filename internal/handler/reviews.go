package handler

import (
	"net/http"

	"natours/internal/apperr"
	"natours/internal/auth"
	"natours/internal/model"
	"natours/internal/query"
	"natours/internal/store"

	"github.com/go-chi/chi/v5"
)

// SetTourUserIDs fills a review's tour from the nested route and its user
// from the logged-in user when the body leaves them out.
func SetTourUserIDs(r *http.Request) (*http.Request, error) {
	body, err := readBody(r)
	if err != nil {
		return nil, err
	}
	if stringField(body, "tour") == "" {
		if id := chi.URLParam(r, "tourId"); id != "" {
			body["tour"] = id
		}
	}
	if stringField(body, "user") == "" {
		if user, ok := auth.UserFromContext(r.Context()); ok {
			body["user"] = user[model.IDField]
		}
	}
	if err := replaceBody(r, body); err != nil {
		return nil, err
	}
	return r, nil
}

// AllowIfHaveBooked lets a user review only a tour they booked. It must run
// after SetTourUserIDs.
func AllowIfHaveBooked(st store.Store, bookings *model.Model) Middleware {
	return func(r *http.Request) (*http.Request, error) {
		body, err := readBody(r)
		if err != nil {
			return nil, err
		}
		if err := replaceBody(r, body); err != nil {
			return nil, err
		}

		n, err := st.Collection(bookings).Count(r.Context(), query.Filter{
			"tour": {query.Eq(stringField(body, "tour"))},
			"user": {query.Eq(stringField(body, "user"))},
		})
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, apperr.Unauthorized("You have to book the tour to leave a review")
		}
		return r, nil
	}
}
