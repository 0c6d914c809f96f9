package api

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/Gourav1632/into-the-repo/internal/errors"
)

// ErrorResponse is the HTTP error body.
type ErrorResponse struct {
	Error   string      `json:"error"`
	Code    string      `json:"code"`
	Details interface{} `json:"details,omitempty"`
}

// WriteJSON writes a JSON response.
func WriteJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// WriteError writes an error response with an explicit status.
func WriteError(w http.ResponseWriter, err error, status int) {
	resp := ErrorResponse{Error: err.Error()}

	var ae *errors.AnalysisError
	if stderrors.As(err, &ae) {
		resp.Error = ae.Message
		resp.Code = string(ae.Code)
		resp.Details = ae.Details
	} else {
		resp.Code = string(errors.Internal)
	}
	WriteJSON(w, resp, status)
}

// WriteAnalysisError writes a coded error with automatic status mapping.
func WriteAnalysisError(w http.ResponseWriter, err error) {
	WriteError(w, err, MapErrorToStatus(errors.CodeOf(err)))
}

// MapErrorToStatus maps failure causes to HTTP status codes.
func MapErrorToStatus(code errors.ErrorCode) int {
	switch code {
	case errors.InvalidRequest:
		return http.StatusBadRequest // 400
	case errors.BranchNotFound:
		return http.StatusNotFound // 404
	case errors.TaskNotFound:
		return http.StatusNotFound // 404
	case errors.UpstreamUnavailable:
		return http.StatusBadGateway // 502
	case errors.FetchFailed:
		return http.StatusBadGateway // 502
	case errors.RepositoryTooLarge:
		return http.StatusRequestEntityTooLarge // 413
	case errors.Timeout:
		return http.StatusGatewayTimeout // 504
	case errors.Cancelled:
		return http.StatusConflict // 409
	case errors.CacheConflict:
		return http.StatusConflict // 409
	default:
		return http.StatusInternalServerError // 500
	}
}

// BadRequest writes a 400 Bad Request error.
func BadRequest(w http.ResponseWriter, message string) {
	WriteError(w, errors.New(errors.InvalidRequest, message), http.StatusBadRequest)
}

// NotFound writes a 404 Not Found error.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, errors.New(errors.TaskNotFound, message), http.StatusNotFound)
}

// MethodNotAllowed writes a 405 response.
func MethodNotAllowed(w http.ResponseWriter) {
	WriteError(w, errors.New(errors.InvalidRequest, "method not allowed"), http.StatusMethodNotAllowed)
}
