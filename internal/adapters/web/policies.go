package web

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"inventory-ledger/internal/app"
	"inventory-ledger/internal/core"
)

// apiResolvePolicy handles GET /api/policies/{name}?warehouse_id=&doc_type=&category_id=&item_id=.
func (h *Handler) apiResolvePolicy(w http.ResponseWriter, r *http.Request) {
	req := app.ResolvePolicyRequest{Name: strings.ToUpper(chi.URLParam(r, "name"))}
	var ok bool
	if req.WarehouseID, ok = queryInt(w, r, "warehouse_id"); !ok {
		return
	}
	if req.CategoryID, ok = queryInt(w, r, "category_id"); !ok {
		return
	}
	if req.ItemID, ok = queryInt(w, r, "item_id"); !ok {
		return
	}
	if raw := r.URL.Query().Get("doc_type"); raw != "" {
		dt := core.DocumentType(strings.ToUpper(raw))
		if !dt.Valid() {
			writeError(w, r, "unknown doc_type "+raw, "BAD_REQUEST", http.StatusBadRequest)
			return
		}
		req.DocType = &dt
	}

	result, err := h.svc.ResolvePolicy(r.Context(), session(r), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// apiSetPolicy handles PUT /api/policies.
func (h *Handler) apiSetPolicy(w http.ResponseWriter, r *http.Request) {
	var req app.SetPolicyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	policy, err := h.svc.SetPolicy(r.Context(), session(r), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, policy)
}
