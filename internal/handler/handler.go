// Package handler holds the HTTP handlers: the generic CRUD factory, the
// auth flow and the per-resource extras, plus the central error formatter.
package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"natours/internal/apperr"
	"natours/internal/logger"
	"natours/internal/model"
)

// HandlerFunc is an http handler that returns its failure instead of
// writing it. Handle turns the failure into the error envelope.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// Handle adapts h to net/http. Exactly one of h's response or the error
// envelope is written.
func Handle(h HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			WriteError(w, r, err)
		}
	}
}

// Middleware is HandlerFunc for the gate in front of a handler: it returns
// nil to let the request through.
type Middleware func(r *http.Request) (*http.Request, error)

// Gate wraps next so that mw runs first; a failure stops the chain.
func Gate(mw Middleware) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r2, err := mw(r)
			if err != nil {
				WriteError(w, r, err)
				return
			}
			next.ServeHTTP(w, r2)
		})
	}
}

type envelope map[string]any

// writeJSON returns an error only while nothing has been written yet.
// Failures after the header are logged.
func writeJSON(w http.ResponseWriter, status int, body any) error {
	if status == http.StatusNoContent {
		w.WriteHeader(status)
		return nil
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(append(raw, '\n')); err != nil {
		logger.Warn("response_write_failed", map[string]any{"status": status, "error": err.Error()})
	}
	return nil
}

func success(data any) envelope {
	return envelope{"status": "success", "data": data}
}

// readBody decodes a JSON object body. An empty body yields an empty
// document.
func readBody(r *http.Request) (model.Document, error) {
	if r.Body == nil {
		return model.Document{}, nil
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperr.New(fmt.Sprintf("Request body larger than %d bytes", tooLarge.Limit), http.StatusRequestEntityTooLarge)
		}
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return model.Document{}, nil
	}
	var doc model.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, apperr.Wrap(err, "Invalid JSON body: "+err.Error(), http.StatusBadRequest)
	}
	if doc == nil {
		doc = model.Document{}
	}
	return doc, nil
}

// replaceBody stores doc as the request body for the next handler.
func replaceBody(r *http.Request, doc model.Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode body: %w", err)
	}
	r.Body = io.NopCloser(bytes.NewReader(raw))
	r.ContentLength = int64(len(raw))
	return nil
}

func stringField(doc model.Document, key string) string {
	s, _ := doc[key].(string)
	return s
}
