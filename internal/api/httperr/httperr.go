// Package httperr writes the JSON error envelope shared by every endpoint.
package httperr

import (
	"encoding/json"
	"net/http"
)

// Error is a machine-readable request failure.
type Error struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Code + ": " + e.Message
}

// New builds an Error.
func New(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

// BadRequest builds a 400 Error.
func BadRequest(code, message string) *Error {
	return New(http.StatusBadRequest, code, message)
}

// NotFound builds a 404 Error.
func NotFound(code, message string) *Error {
	return New(http.StatusNotFound, code, message)
}

// Respond writes err as the JSON envelope {"error":{"code","message"}}.
// Non-*Error values map to a 500 INTERNAL_ERROR.
func Respond(w http.ResponseWriter, err error) {
	he, ok := err.(*Error)
	if !ok || he == nil {
		he = New(http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(he.Status)
	_ = json.NewEncoder(w).Encode(map[string]*Error{"error": he})
}
