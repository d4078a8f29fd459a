// Package httputil provides small JSON response helpers shared by handlers.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"panelmerge/pkg/platform/sentinel"
)

// WriteJSON writes v as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps an error to a JSON error response. Sentinel infrastructure
// errors translate to their natural HTTP statuses; everything else is a 500
// with a generic message so internal detail never leaks to clients.
func WriteError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		WriteJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	case errors.Is(err, sentinel.ErrConflict):
		WriteJSON(w, http.StatusConflict, errorBody{Error: "conflict"})
	case errors.Is(err, sentinel.ErrExpired):
		WriteJSON(w, http.StatusUnauthorized, errorBody{Error: "expired"})
	case errors.Is(err, sentinel.ErrInvalidState):
		WriteJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "invalid state"})
	case errors.Is(err, sentinel.ErrUnavailable):
		WriteJSON(w, http.StatusServiceUnavailable, errorBody{Error: "unavailable"})
	default:
		WriteJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

// WriteMessage writes a plain JSON error body with the given status.
// Used for deliberate rejections where no internal error exists.
func WriteMessage(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, errorBody{Error: msg})
}

type errorBody struct {
	Error string `json:"error"`
}
