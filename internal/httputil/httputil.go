// Package httputil carries the JSON envelope shared by every endpoint:
// {"ok":true,"data":...} on success, {"ok":false,"error":{code,message}}
// on failure, with the HTTP status taken from the application error.
package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/NaierGG/Nierade/internal/apperr"
)

const maxBodyBytes = 1 << 20

type envelope struct {
	OK    bool       `json:"ok"`
	Data  any        `json:"data,omitempty"`
	Error *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ReadJSON decodes the request body into dst, rejecting unknown fields
// and trailing garbage.
func ReadJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.Validation("invalid JSON body")
	}
	if dec.More() {
		return apperr.Validation("request body must contain a single JSON object")
	}
	return nil
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func OK(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, envelope{OK: true, Data: data})
}

func Created(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusCreated, envelope{OK: true, Data: data})
}

// Error writes err with its mapped status. Errors that are not
// application errors surface as a generic 500 so internals never leak.
func Error(w http.ResponseWriter, err error) {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		WriteJSON(w, ae.Status, envelope{OK: false, Error: &errorBody{Code: ae.Code, Message: ae.Message}})
		return
	}
	WriteJSON(w, http.StatusInternalServerError, envelope{
		OK:    false,
		Error: &errorBody{Code: "INTERNAL", Message: "internal server error"},
	})
}
