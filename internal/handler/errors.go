package handler

import (
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"

	"natours/internal/apperr"
	"natours/internal/auth"
	"natours/internal/logger"
	"natours/internal/model"
	"natours/internal/query"
	"natours/internal/store"
)

var exposeErrors atomic.Bool

// ExposeErrors adds the raw error string to every envelope. Development only.
func ExposeErrors(on bool) {
	exposeErrors.Store(on)
}

// WriteError translates err into the error envelope. Errors that are not
// recognised become a 500 with a generic message and are logged.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	e := classify(err)
	if !e.Operational {
		logger.Error("unhandled_error", map[string]any{
			"method": r.Method,
			"path":   r.URL.Path,
			"error":  err.Error(),
		})
	}

	body := envelope{"status": e.Status, "message": e.Message}
	if exposeErrors.Load() {
		body["error"] = err.Error()
	}
	_ = writeJSON(w, e.StatusCode, body)
}

func classify(err error) *apperr.Error {
	if e, ok := apperr.As(err); ok {
		return e
	}

	var (
		invalidID *store.InvalidIDError
		dup       *store.DuplicateKeyError
		verr      *model.ValidationError
		qerr      *query.InvalidQueryError
	)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return apperr.NotFound("No document found with that ID")
	case errors.As(err, &invalidID):
		return apperr.BadRequest(invalidID.Error())
	case errors.As(err, &dup):
		return apperr.BadRequest(fmt.Sprintf("Duplicate field value: %v. Please use another value!", dup.Value))
	case errors.As(err, &verr):
		return apperr.BadRequest(verr.Error())
	case errors.As(err, &qerr):
		return apperr.BadRequest(qerr.Message)
	case errors.Is(err, auth.ErrTokenExpired):
		return apperr.Unauthorized("Your token has expired! Please log in again.")
	case errors.Is(err, auth.ErrInvalidToken):
		return apperr.Unauthorized("Invalid token. Please log in again!")
	}

	e := apperr.New("Something went very wrong!", http.StatusInternalServerError)
	e.Operational = false
	return e
}
