package handler

import (
	"net/http"

	"natours/internal/apperr"
	"natours/internal/auth"
	"natours/internal/model"
	"natours/internal/store"

	"github.com/go-chi/chi/v5"
)

// Users serves the logged-in user's own account.
type Users struct {
	Store store.Store
	Model *model.Model
}

// GetMe points the {id} route parameter at the logged-in user so that the
// factory's GetOne serves /me.
func GetMe(r *http.Request) (*http.Request, error) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		return nil, apperr.Unauthorized("You are not logged in! Please log in to get access.")
	}
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		rctx.URLParams.Add("id", stringField(user, model.IDField))
	}
	return r, nil
}

// UpdateMe changes name and email. Passwords go through UpdatePassword.
func (u *Users) UpdateMe(w http.ResponseWriter, r *http.Request) error {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		return apperr.Unauthorized("You are not logged in! Please log in to get access.")
	}
	body, err := readBody(r)
	if err != nil {
		return err
	}
	if _, ok := body["password"]; ok {
		return apperr.BadRequest("This route is not for password updates. Please use /updateMyPassword.")
	}
	if _, ok := body["passwordConfirm"]; ok {
		return apperr.BadRequest("This route is not for password updates. Please use /updateMyPassword.")
	}

	allowed := model.Document{}
	for _, k := range []string{"name", "email"} {
		if v, ok := body[k]; ok {
			allowed[k] = v
		}
	}
	patch, err := u.Model.PreparePatch(allowed)
	if err != nil {
		return err
	}
	updated, err := u.Store.Collection(u.Model).UpdateByID(r.Context(), stringField(user, model.IDField), patch)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, success(envelope{"user": u.Model.Public(updated)}))
}

// DeleteMe deactivates the account; inactive users are hidden from finds.
func (u *Users) DeleteMe(w http.ResponseWriter, r *http.Request) error {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		return apperr.Unauthorized("You are not logged in! Please log in to get access.")
	}
	if _, err := u.Store.Collection(u.Model).UpdateByID(r.Context(), stringField(user, model.IDField), model.Document{"active": false}); err != nil {
		return err
	}
	return writeJSON(w, http.StatusNoContent, success(nil))
}

// CreateUser refuses: accounts are made through signup.
func CreateUser(http.ResponseWriter, *http.Request) error {
	return apperr.New("This route is not defined! Please use /signup instead", http.StatusInternalServerError)
}
