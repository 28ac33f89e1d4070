package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/desertthunder/stash/internal/shared"
	"github.com/desertthunder/stash/internal/tasks"
)

// ErrorResponse is the body of every failed API request.
type ErrorResponse struct {
	Error       string `json:"error"`
	Stage       string `json:"stage,omitempty"`
	Reauthorize bool   `json:"reauthorize,omitempty"`
}

// StatusClientClosedRequest is reported when the client went away before a response was ready.
const StatusClientClosedRequest = 499

// StatusFor maps an error to its HTTP status. Only a missing credential asks the client to
// authorize again; a failed refresh is transient.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, context.Canceled):
		return StatusClientClosedRequest
	case errors.Is(err, shared.ErrNoCredential),
		errors.Is(err, shared.ErrNotAuthenticated),
		errors.Is(err, shared.ErrAuthFailed):
		return http.StatusUnauthorized
	case errors.Is(err, shared.ErrRefreshFailed),
		errors.Is(err, shared.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, shared.ErrProviderNoResult),
		errors.Is(err, shared.ErrTrackNotFound),
		errors.Is(err, shared.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrProviderUnavailable),
		errors.Is(err, shared.ErrTransferFailed),
		errors.Is(err, shared.ErrAPIRequest):
		return http.StatusBadGateway
	case errors.Is(err, shared.ErrInvalidArgument),
		errors.Is(err, shared.ErrMissingArgument),
		errors.Is(err, shared.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, shared.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	body := ErrorResponse{
		Error:       err.Error(),
		Reauthorize: errors.Is(err, shared.ErrNoCredential),
	}
	if stage, ok := tasks.StageOf(err); ok {
		body.Stage = stage.String()
	}
	writeJSON(w, StatusFor(err), body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
