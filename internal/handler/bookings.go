package handler

import (
	"net/http"

	"natours/internal/apperr"
	"natours/internal/auth"
	"natours/internal/model"
	"natours/internal/query"
)

// MyBookings lists the logged-in user's bookings with the booked tours
// expanded.
func (f *Factory) MyBookings(m *model.Model) HandlerFunc {
	return f.list(m, func(r *http.Request, feats *query.Features) error {
		user, ok := auth.UserFromContext(r.Context())
		if !ok {
			return apperr.Unauthorized("You are not logged in! Please log in to get access.")
		}
		feats.Where("user", user[model.IDField])
		return nil
	}, nil)
}
