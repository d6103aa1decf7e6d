package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/platinummonkey/tenantdesk/pkg/conversations"
	"github.com/platinummonkey/tenantdesk/pkg/membership"
	"github.com/platinummonkey/tenantdesk/pkg/tenancy"
)

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
}

// WriteErrorMessage writes a JSON error response with a custom message
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	_ = WriteJSON(w, status, ErrorResponse{Error: message})
}

// WriteBadRequest writes a bad request error (400)
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusBadRequest, message)
}

// WriteUnauthorized writes an unauthorized error (401)
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusUnauthorized, message)
}

// WriteForbidden writes the uniform forbidden body (403)
func WriteForbidden(w http.ResponseWriter) {
	WriteErrorMessage(w, http.StatusForbidden, "forbidden")
}

// WriteSuccess writes a successful response (200 OK) with JSON data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteCreated writes a successful creation response (201 Created)
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, data)
}

// WriteNoContent writes a successful response with no content (204 No Content)
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// StatusFor maps a domain error onto an HTTP status code
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, tenancy.ErrEntityNotFound),
		errors.Is(err, tenancy.ErrMembershipNotFound):
		return http.StatusNotFound
	case errors.Is(err, tenancy.ErrScopeMismatch):
		return http.StatusBadRequest
	case errors.Is(err, tenancy.ErrInsufficientPermissions):
		return http.StatusForbidden
	case errors.Is(err, tenancy.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, conversations.ErrInvalidState),
		errors.Is(err, conversations.ErrIllegalTransition):
		return http.StatusUnprocessableEntity
	case errors.Is(err, conversations.ErrConcurrentModification),
		errors.Is(err, membership.ErrMembershipExists):
		return http.StatusConflict
	case errors.Is(err, membership.ErrInvalidRole):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// WriteDomainError writes err with the status from StatusFor. Forbidden,
// not found, scope mismatch and internal errors get fixed bodies so no ids
// leak across tenants.
func WriteDomainError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if errors.Is(err, tenancy.ErrScopeMismatch) {
		WriteErrorMessage(w, status, "scope mismatch")
		return
	}
	switch status {
	case http.StatusForbidden:
		WriteForbidden(w)
	case http.StatusInternalServerError:
		WriteErrorMessage(w, status, "internal server error")
	case http.StatusNotFound:
		WriteErrorMessage(w, status, "not found")
	case http.StatusUnauthorized:
		WriteErrorMessage(w, status, "unauthorized")
	default:
		WriteErrorMessage(w, status, err.Error())
	}
}
