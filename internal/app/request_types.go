package app

import (
	"github.com/shopspring/decimal"

	"inventory-ledger/internal/core"
)

// CreateDocumentRequest is the input for a new draft document.
type CreateDocumentRequest struct {
	Type            core.DocumentType   `json:"doc_type"`
	Number          string              `json:"doc_no"`
	DocumentDate    string              `json:"doc_date"` // YYYY-MM-DD, empty means today
	FromWarehouseID *int                `json:"from_warehouse_id"`
	ToWarehouseID   *int                `json:"to_warehouse_id"`
	SupplierID      *int                `json:"supplier_id"`
	CustomerID      *int                `json:"customer_id"`
	ReasonCodeID    *int                `json:"reason_code_id"`
	ReferenceNo     string              `json:"reference_no"`
	Notes           string              `json:"notes"`
	Lines           []DocumentLineInput `json:"lines"`
}

// DocumentLineInput is one line of a CreateDocumentRequest. UOMID zero means the item's base unit.
type DocumentLineInput struct {
	ItemID         int                 `json:"item_id"`
	Qty            decimal.Decimal     `json:"qty"`
	UOMID          int                 `json:"uom_id"`
	FromLocationID *int                `json:"from_location_id"`
	ToLocationID   *int                `json:"to_location_id"`
	LotID          *int                `json:"lot_id"`
	SerialID       *int                `json:"serial_id"`
	UnitCost       decimal.NullDecimal `json:"unit_cost"`
	TotalCost      decimal.NullDecimal `json:"total_cost"`
	Notes          string              `json:"notes"`
}

// PostDocumentRequest is the input for PostDocument.
type PostDocumentRequest struct {
	DocumentID  int    `json:"document_id"`
	PostingDate string `json:"posting_date"` // YYYY-MM-DD, empty means today
}

// BalanceFilter narrows ListBalances. Nil fields match everything.
type BalanceFilter struct {
	WarehouseID *int
	ItemID      *int
	LotID       *int
}

type AverageCostRequest struct {
	WarehouseID int
	ItemID      int
	LotID       *int
}

type ResolvePolicyRequest struct {
	Name        string
	WarehouseID *int
	DocType     *core.DocumentType
	CategoryID  *int
	ItemID      *int
}

// SetPolicyRequest writes one policy row. CompanyID in the selector defaults to the session company
// for company and doc type scopes.
type SetPolicyRequest struct {
	Scope                    core.PolicyScope   `json:"scope_type"`
	WarehouseID              *int               `json:"warehouse_id"`
	DocType                  *core.DocumentType `json:"doc_type"`
	CategoryID               *int               `json:"category_id"`
	ItemID                   *int               `json:"item_id"`
	Name                     string             `json:"policy_name"`
	Value                    bool               `json:"policy_value"`
	OverrideAllowed          bool               `json:"override_allowed"`
	OverrideRequiresApproval bool               `json:"override_requires_approval"`
	ApprovalRoleID           *int               `json:"approval_role_id"`
	ReasonRequired           bool               `json:"reason_required"`
}
