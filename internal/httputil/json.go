package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"norvia-broker/internal/apperr"
	"norvia-broker/internal/logger"
)

const maxBodyBytes = 1 << 20

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// ReadJSON decodes a single JSON object, rejecting unknown fields and trailing data.
func ReadJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return apperr.InvalidInput("request body is required")
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.InvalidInput("request body is required")
		}
		return apperr.InvalidInput("invalid json: %s", strings.TrimPrefix(err.Error(), "json: "))
	}
	if dec.More() {
		return apperr.InvalidInput("invalid json: unexpected trailing data")
	}
	return nil
}

// Decode reads the body into v and runs struct validation on it.
func Decode(r *http.Request, v any) error {
	if err := ReadJSON(r, v); err != nil {
		return err
	}
	return Validate(v)
}

// WriteError maps typed errors to their HTTP status; anything else is a 500.
func WriteError(w http.ResponseWriter, err error) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		WriteJSON(w, appErr.HTTPStatus(), ErrorResponse{Error: appErr.Message, Code: string(appErr.Kind)})
		return
	}
	logger.L().Error("unhandled request error", err)
	WriteJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error", Code: "INTERNAL"})
}
