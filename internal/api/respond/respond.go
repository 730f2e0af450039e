// Package respond writes uniform JSON HTTP responses, kept nearly
// verbatim from the teacher since response encoding has no RVBBIT-domain
// content.
package respond

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/rvbbit/rvbbit/internal/model"
)

// ErrorResponse is the standard error response shape.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

// WriteJSON writes data as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("respond: failed to encode JSON response")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// WriteError writes a standardized error response.
func WriteError(w http.ResponseWriter, statusCode int, message string) {
	WriteJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Code:    statusCode,
		Message: message,
	})
}

func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message)
}

func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, message)
}

func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, message)
}

// WriteModelError maps one of the eight typed model errors (spec §7) to
// its HTTP status and writes it; any other error is a 500.
func WriteModelError(w http.ResponseWriter, err error) {
	switch {
	case model.IsValidationError(err), model.IsParseError(err):
		WriteError(w, http.StatusBadRequest, err.Error())
	case model.IsPolicyError(err):
		WriteError(w, http.StatusForbidden, err.Error())
	case model.IsCanceledError(err):
		WriteError(w, http.StatusRequestTimeout, err.Error())
	case model.IsTimeoutError(err):
		WriteError(w, http.StatusGatewayTimeout, err.Error())
	case model.IsToolError(err), model.IsProviderError(err), model.IsCandidateExhaustionError(err):
		WriteError(w, http.StatusBadGateway, err.Error())
	default:
		WriteInternalError(w, err.Error())
	}
}
