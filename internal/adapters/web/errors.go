package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"inventory-ledger/internal/app"
	"inventory-ledger/internal/core"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
	Detail    any    `json:"detail,omitempty"`
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, message, code string, status int) {
	writeErrorDetail(w, r, message, code, status, nil)
}

func writeErrorDetail(w http.ResponseWriter, r *http.Request, message, code string, status int, detail any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := errorResponse{
		Error:     message,
		Code:      code,
		RequestID: requestIDFromContext(r.Context()),
		Detail:    detail,
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// writeJSON writes a JSON response with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps posting and validation codes to HTTP statuses.
func statusFor(code core.ErrorCode) int {
	switch code {
	case core.CodeDocumentNotFound:
		return http.StatusNotFound
	case core.CodeAlreadyPosted, core.CodeCancelledDocument:
		return http.StatusConflict
	}
	return http.StatusUnprocessableEntity
}

// writeServiceError translates an ApplicationService error into a response.
// Unknown errors are logged and reported as 500 without their message.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, app.ErrInvalidRequest) {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	var pe *core.PostingError
	if errors.As(err, &pe) {
		writeErrorDetail(w, r, pe.Error(), string(pe.Code), statusFor(pe.Code), pe)
		return
	}
	var ve *core.ValidationError
	if errors.As(err, &ve) {
		writeErrorDetail(w, r, ve.Error(), string(ve.Code), statusFor(ve.Code), ve)
		return
	}

	h.log.Error().Err(err).Str("request_id", requestIDFromContext(r.Context())).Str("path", r.URL.Path).Msg("request failed")
	writeError(w, r, "internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
}
