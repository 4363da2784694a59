package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/telnet2/ragdocs-gateway/internal/session"
	"github.com/telnet2/ragdocs-gateway/internal/transport"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeUnavailable    = "TRANSPORT_UNAVAILABLE"
	ErrCodeHandlerError   = "HANDLER_ERROR"
	ErrCodeAttachFailed   = "ATTACH_FAILED"
	ErrCodeInternalError  = "INTERNAL_ERROR"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// writeErrorFrom maps err to its status and code and writes it.
func writeErrorFrom(w http.ResponseWriter, err error) {
	status, code := statusForError(err)
	writeError(w, status, code, err.Error())
}

// statusForError maps registry and transport errors to HTTP.
func statusForError(err error) (int, string) {
	var attachErr *session.AttachmentError
	var handlerErr *transport.HandlerError

	switch {
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound, ErrCodeNotFound
	case errors.Is(err, transport.ErrInvalidMessage):
		return http.StatusBadRequest, ErrCodeInvalidRequest
	case errors.Is(err, transport.ErrUnavailable):
		return http.StatusServiceUnavailable, ErrCodeUnavailable
	case errors.As(err, &handlerErr):
		return http.StatusInternalServerError, ErrCodeHandlerError
	case errors.As(err, &attachErr):
		return http.StatusInternalServerError, ErrCodeAttachFailed
	default:
		return http.StatusInternalServerError, ErrCodeInternalError
	}
}
