package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"captiond/internal/batch"
	"captiond/internal/inference"
	"captiond/internal/supervisor"
	"captiond/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// statusFor maps well-known domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case supervisor.IsLaunchError(err):
		return http.StatusBadRequest
	case errors.Is(err, supervisor.ErrAlreadyRunning),
		errors.Is(err, supervisor.ErrNotRunning),
		errors.Is(err, batch.ErrRunActive):
		return http.StatusConflict
	case inference.IsConnectionError(err):
		return http.StatusBadGateway
	case inference.IsHTTPError(err):
		return http.StatusBadGateway
	}
	var he HTTPError
	if errors.As(err, &he) {
		return he.StatusCode()
	}
	return http.StatusInternalServerError
}

// writeError maps err and writes the JSON payload.
func writeError(w http.ResponseWriter, err error) {
	writeJSONError(w, statusFor(err), err.Error())
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}
