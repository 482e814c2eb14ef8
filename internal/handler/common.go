package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"matrix-bank/internal/apperrors"
)

// Response is the uniform envelope: exactly one of Data or Error is set.
type Response struct {
	Data  interface{} `json:"data,omitempty"`
	Error *Error      `json:"error,omitempty"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(Response{Data: data})
}

// writeError translates any error into the envelope. Errors outside the
// application taxonomy are reported as opaque internal failures.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		appErr = apperrors.New(apperrors.KindInternal, apperrors.InternalError,
			"an unexpected error occurred")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.HTTPStatus())
	json.NewEncoder(w).Encode(Response{Error: &Error{
		Code:    string(appErr.Code),
		Message: appErr.Message,
		Details: appErr.Details,
	}})
}

type contextKey string

const callerIDKey contextKey = "caller_id"

// WithCallerID stores the resolved caller identity on the request context.
// The identity middleware is the only writer.
func WithCallerID(r *http.Request, id uuid.UUID) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), callerIDKey, id))
}

func callerID(r *http.Request) (uuid.UUID, bool) {
	id, ok := r.Context().Value(callerIDKey).(uuid.UUID)
	return id, ok
}

// requireCaller extracts the caller identity or answers 401. Authentication
// itself happens upstream; this only checks that an identity was resolved.
func requireCaller(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, ok := callerID(r)
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(Response{Error: &Error{
			Code:    "unauthenticated",
			Message: "request has no resolved caller identity",
		}})
		return uuid.Nil, false
	}
	return id, true
}
