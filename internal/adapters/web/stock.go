package web

import (
	"net/http"

	"inventory-ledger/internal/app"
)

// apiListBalances handles GET /api/stock/balances?warehouse_id=&item_id=&lot_id=.
func (h *Handler) apiListBalances(w http.ResponseWriter, r *http.Request) {
	var f app.BalanceFilter
	var ok bool
	if f.WarehouseID, ok = queryInt(w, r, "warehouse_id"); !ok {
		return
	}
	if f.ItemID, ok = queryInt(w, r, "item_id"); !ok {
		return
	}
	if f.LotID, ok = queryInt(w, r, "lot_id"); !ok {
		return
	}

	result, err := h.svc.ListBalances(r.Context(), session(r), f)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// apiAverageCost handles GET /api/stock/average-cost?warehouse_id=&item_id=&lot_id=.
// warehouse_id falls back to the session's warehouse.
func (h *Handler) apiAverageCost(w http.ResponseWriter, r *http.Request) {
	sess := session(r)
	warehouseID, ok := queryInt(w, r, "warehouse_id")
	if !ok {
		return
	}
	if warehouseID == nil {
		warehouseID = sess.WarehouseID
	}
	itemID, ok := queryInt(w, r, "item_id")
	if !ok {
		return
	}
	lotID, ok := queryInt(w, r, "lot_id")
	if !ok {
		return
	}
	if warehouseID == nil || itemID == nil {
		writeError(w, r, "warehouse_id and item_id are required", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	result, err := h.svc.AverageCost(r.Context(), sess, app.AverageCostRequest{
		WarehouseID: *warehouseID,
		ItemID:      *itemID,
		LotID:       lotID,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// apiTotalValue handles GET /api/stock/total-value?warehouse_id=.
func (h *Handler) apiTotalValue(w http.ResponseWriter, r *http.Request) {
	warehouseID, ok := queryInt(w, r, "warehouse_id")
	if !ok {
		return
	}
	result, err := h.svc.TotalValue(r.Context(), session(r), warehouseID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}
