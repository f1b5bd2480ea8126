package web

import (
	"net/http"

	"inventory-ledger/internal/app"
)

// apiCreateDocument handles POST /api/documents.
func (h *Handler) apiCreateDocument(w http.ResponseWriter, r *http.Request) {
	var req app.CreateDocumentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := h.svc.CreateDraftDocument(r.Context(), session(r), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, result.Document)
}

// apiGetDocument handles GET /api/documents/{id}.
func (h *Handler) apiGetDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	result, err := h.svc.GetDocument(r.Context(), session(r), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result.Document)
}

// apiValidateDocument handles POST /api/documents/{id}/validate. A failed check is
// still a 200; the body says why.
func (h *Handler) apiValidateDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	result, err := h.svc.ValidateDocument(r.Context(), session(r), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// apiPostDocument handles POST /api/documents/{id}/post. The body is optional:
// {"posting_date": "YYYY-MM-DD"}.
func (h *Handler) apiPostDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req app.PostDocumentRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}
	req.DocumentID = id

	result, err := h.svc.PostDocument(r.Context(), session(r), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// apiDocumentLedger handles GET /api/documents/{id}/ledger.
func (h *Handler) apiDocumentLedger(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	result, err := h.svc.ListLedger(r.Context(), session(r), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}
