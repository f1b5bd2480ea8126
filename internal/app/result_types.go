package app

import (
	"github.com/shopspring/decimal"

	"inventory-ledger/internal/core"
)

// DocumentResult is returned by CreateDraftDocument and GetDocument.
type DocumentResult struct {
	Document *core.Document `json:"document"`
}

// ValidationResult is returned by ValidateDocument. When Valid is false Error holds the first failure.
type ValidationResult struct {
	DocumentID int                   `json:"document_id"`
	Valid      bool                  `json:"valid"`
	Error      *core.ValidationError `json:"error,omitempty"`
}

type LedgerResult struct {
	DocumentID int                `json:"document_id"`
	Entries    []core.LedgerEntry `json:"entries"`
}

type BalanceListResult struct {
	CompanyID int                 `json:"company_id"`
	Balances  []core.StockBalance `json:"balances"`
	TotalQty  decimal.Decimal     `json:"total_qty"`
	Total     decimal.Decimal     `json:"total_value"`
}

type AverageCostResult struct {
	CompanyID   int             `json:"company_id"`
	WarehouseID int             `json:"warehouse_id"`
	ItemID      int             `json:"item_id"`
	LotID       *int            `json:"lot_id,omitempty"`
	AvgCost     decimal.Decimal `json:"avg_cost"`
}

type TotalValueResult struct {
	CompanyID   int             `json:"company_id"`
	WarehouseID *int            `json:"warehouse_id,omitempty"`
	Value       decimal.Decimal `json:"total_value"`
}

type PolicyResult struct {
	Name  string `json:"policy_name"`
	Value bool   `json:"policy_value"`
}
