package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hay-kot/criterio"
	"github.com/rs/zerolog"

	"github.com/erazemk/terenec/internal/db"
	"github.com/erazemk/terenec/internal/report"
)

// Error codes returned next to the message.
const (
	codeValidation = "VALIDATION"
)

type errorResponse struct {
	Error    string            `json:"error"`
	Code     string            `json:"code,omitempty"`
	Category string            `json:"category,omitempty"`
	ItemID   string            `json:"item_id,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
}

// jsonResponse writes data as JSON with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, errorResponse{Error: message})
}

// decodeJSON decodes a JSON request body into target.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}

// pathID parses a numeric URL parameter.
func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

// reportError maps reconciler errors to HTTP responses.
func reportError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	var (
		fieldErrs criterio.FieldErrors
		flushErr  *report.FlushError
	)
	switch {
	case errors.As(err, &fieldErrs):
		fields := make(map[string]string, len(fieldErrs))
		for _, fe := range fieldErrs {
			fields[fe.Field] = fe.Err.Error()
		}
		jsonResponse(w, http.StatusBadRequest, errorResponse{
			Error:  "validation failed",
			Code:   codeValidation,
			Fields: fields,
		})
	case errors.Is(err, report.ErrEmptyReport):
		jsonResponse(w, http.StatusBadRequest, errorResponse{
			Error: err.Error(),
			Code:  report.CodeEmptyReport,
		})
	case errors.Is(err, report.ErrItemNotFound):
		jsonError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, report.ErrReadOnlyItem),
		errors.Is(err, report.ErrAlreadySubmitted),
		errors.Is(err, report.ErrSubmitInProgress):
		jsonError(w, http.StatusConflict, err.Error())
	case errors.As(err, &flushErr):
		logger.Error().Err(err).Msg("report submit failed")
		jsonResponse(w, http.StatusBadGateway, errorResponse{
			Error:    flushErr.UserMessage(),
			Category: string(flushErr.Category),
			ItemID:   flushErr.ItemID,
		})
	case db.IsBusyError(err):
		jsonError(w, http.StatusServiceUnavailable, "database busy, try again")
	default:
		logger.Error().Err(err).Msg("report operation failed")
		jsonError(w, http.StatusInternalServerError, "internal error")
	}
}
