package core

import (
	"time"

	"github.com/shopspring/decimal"
)

type DocumentStatus string

const (
	DocumentStatusDraft     DocumentStatus = "DRAFT"
	DocumentStatusSubmitted DocumentStatus = "SUBMITTED"
	DocumentStatusApproved  DocumentStatus = "APPROVED"
	DocumentStatusPosted    DocumentStatus = "POSTED"
	DocumentStatusCancelled DocumentStatus = "CANCELLED"
	DocumentStatusReversed  DocumentStatus = "REVERSED"
)

// DocumentType is the closed set of movement documents. Posting dispatches over it
// with an exhaustive switch, see postingEngine.routineFor.
type DocumentType string

const (
	DocTypeReceipt           DocumentType = "RECEIPT"
	DocTypeIssue             DocumentType = "ISSUE"
	DocTypeTransfer          DocumentType = "TRANSFER"
	DocTypeAdjustment        DocumentType = "ADJUSTMENT"
	DocTypeReturnIn          DocumentType = "RETURN_IN"
	DocTypeReturnOut         DocumentType = "RETURN_OUT"
	DocTypeStockCount        DocumentType = "STOCK_COUNT"
	DocTypeProductionOrder   DocumentType = "PRODUCTION_ORDER"
	DocTypeProductionIssue   DocumentType = "PRODUCTION_ISSUE"
	DocTypeProductionReceipt DocumentType = "PRODUCTION_RECEIPT"
	DocTypeScrap             DocumentType = "SCRAP"
)

// AllDocumentTypes lists every variant in declaration order.
var AllDocumentTypes = []DocumentType{
	DocTypeReceipt, DocTypeIssue, DocTypeTransfer, DocTypeAdjustment,
	DocTypeReturnIn, DocTypeReturnOut, DocTypeStockCount, DocTypeProductionOrder,
	DocTypeProductionIssue, DocTypeProductionReceipt, DocTypeScrap,
}

// Valid reports whether t is one of the declared variants.
func (t DocumentType) Valid() bool {
	for _, v := range AllDocumentTypes {
		if v == t {
			return true
		}
	}
	return false
}

// IsOutgoing reports whether lines of this type draw stock out of the source warehouse.
// Adjustments are outgoing only for negative lines and are handled separately.
func (t DocumentType) IsOutgoing() bool {
	switch t {
	case DocTypeIssue, DocTypeTransfer, DocTypeReturnIn:
		return true
	}
	return false
}

// RequiresStockItem reports whether every line item must be a stock-tracked item.
func (t DocumentType) RequiresStockItem() bool {
	switch t {
	case DocTypeReceipt, DocTypeIssue, DocTypeTransfer:
		return true
	}
	return false
}

type ItemType string

const (
	ItemTypeStock    ItemType = "STOCK"
	ItemTypeNonStock ItemType = "NON_STOCK"
	ItemTypeService  ItemType = "SERVICE"
)

type TrackingType string

const (
	TrackingNone      TrackingType = "NONE"
	TrackingLot       TrackingType = "LOT"
	TrackingSerial    TrackingType = "SERIAL"
	TrackingLotExpiry TrackingType = "LOT_EXPIRY"
)

// Item is the read-only master data view the posting pipeline needs.
type Item struct {
	ID         int          `json:"id"`
	CompanyID  int          `json:"company_id"`
	Code       string       `json:"code"`
	Name       string       `json:"name"`
	CategoryID *int         `json:"category_id,omitempty"`
	Type       ItemType     `json:"item_type"`
	Tracking   TrackingType `json:"tracking_type"`
	BaseUOMID  int          `json:"base_uom_id"`
	IsActive   bool         `json:"is_active"`
}

// Location is a bin or shelf inside a warehouse.
type Location struct {
	ID          int    `json:"id"`
	WarehouseID int    `json:"warehouse_id"`
	Code        string `json:"code"`
	IsActive    bool   `json:"is_active"`
}

// QtyPrecision is the number of fractional digits stored for quantities.
const QtyPrecision int32 = 4

// Session is the explicit caller context: who is acting and in which company/warehouse.
// It is built by the authentication collaborator and passed into every operation.
type Session struct {
	ActorID     int
	CompanyID   int
	WarehouseID *int
}

type Document struct {
	ID              int            `json:"id"`
	CompanyID       int            `json:"company_id"`
	Type            DocumentType   `json:"doc_type"`
	Number          string         `json:"doc_no"`
	DocumentDate    time.Time      `json:"doc_date"`
	Status          DocumentStatus `json:"status"`
	PostingDate     *time.Time     `json:"posting_date,omitempty"`
	FromWarehouseID *int           `json:"from_warehouse_id,omitempty"`
	ToWarehouseID   *int           `json:"to_warehouse_id,omitempty"`
	SupplierID      *int           `json:"supplier_id,omitempty"`
	CustomerID      *int           `json:"customer_id,omitempty"`
	ReasonCodeID    *int           `json:"reason_code_id,omitempty"`
	ReferenceNo     string         `json:"reference_no,omitempty"`
	Notes           string         `json:"notes,omitempty"`
	CreatedBy       int            `json:"created_by"`
	CreatedAt       time.Time      `json:"created_at"`
	SubmittedBy     *int           `json:"submitted_by,omitempty"`
	SubmittedAt     *time.Time     `json:"submitted_at,omitempty"`
	ApprovedBy      *int           `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time     `json:"approved_at,omitempty"`
	PostedBy        *int           `json:"posted_by,omitempty"`
	PostedAt        *time.Time     `json:"posted_at,omitempty"`
	Lines           []DocumentLine `json:"lines"`
}

type DocumentLine struct {
	ID             int                 `json:"id"`
	DocumentID     int                 `json:"document_id"`
	LineNo         int                 `json:"line_no"`
	ItemID         int                 `json:"item_id"`
	Qty            decimal.Decimal     `json:"qty"`
	UOMID          int                 `json:"uom_id"`
	BaseQty        decimal.Decimal     `json:"base_qty"` // canonical quantity, item base UOM
	FromLocationID *int                `json:"from_location_id,omitempty"`
	ToLocationID   *int                `json:"to_location_id,omitempty"`
	LotID          *int                `json:"lot_id,omitempty"`
	SerialID       *int                `json:"serial_id,omitempty"`
	UnitCost       decimal.NullDecimal `json:"unit_cost"`
	TotalCost      decimal.NullDecimal `json:"total_cost"`
	Notes          string              `json:"notes,omitempty"`
}

// LedgerEntry is one immutable inventory movement. Exactly one of QtyIn/QtyOut is non-zero.
type LedgerEntry struct {
	ID          int             `json:"id"`
	PostingDate time.Time       `json:"posting_date"`
	CompanyID   int             `json:"company_id"`
	WarehouseID int             `json:"warehouse_id"`
	LocationID  *int            `json:"location_id,omitempty"`
	ItemID      int             `json:"item_id"`
	QtyIn       decimal.Decimal `json:"qty_in"`
	QtyOut      decimal.Decimal `json:"qty_out"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	ValueIn     decimal.Decimal `json:"value_in"`
	ValueOut    decimal.Decimal `json:"value_out"`
	LotID       *int            `json:"lot_id,omitempty"`
	SerialID    *int            `json:"serial_id,omitempty"`
	DocType     DocumentType    `json:"doc_type"`
	DocID       int             `json:"doc_id"`
	DocNumber   string          `json:"doc_no"`
	LineNo      int             `json:"line_no"`
	CreatedBy   int             `json:"created_by"`
	CreatedAt   time.Time       `json:"created_at"`
}

// StockKey identifies a stock position. When a balance row is created from a key, nil
// pointers are stored as NULL; when an existing row is matched they mean "any".
type StockKey struct {
	CompanyID   int
	WarehouseID int
	ItemID      int
	LocationID  *int
	LotID       *int
	SerialID    *int
}

// StockQuery selects balances or ledger entries. Nil optional fields match any value.
type StockQuery struct {
	CompanyID   int
	WarehouseID *int
	ItemID      *int
	LocationID  *int
	LotID       *int
	SerialID    *int
}

// Query widens k into a filter that narrows only on the references k carries.
func (k StockKey) Query() StockQuery {
	return StockQuery{
		CompanyID:   k.CompanyID,
		WarehouseID: &k.WarehouseID,
		ItemID:      &k.ItemID,
		LocationID:  k.LocationID,
		LotID:       k.LotID,
		SerialID:    k.SerialID,
	}
}

// Matches reports whether k falls inside q.
func (q StockQuery) Matches(k StockKey) bool {
	if k.CompanyID != q.CompanyID {
		return false
	}
	if q.WarehouseID != nil && *q.WarehouseID != k.WarehouseID {
		return false
	}
	if q.ItemID != nil && *q.ItemID != k.ItemID {
		return false
	}
	return optionalMatch(q.LocationID, k.LocationID) &&
		optionalMatch(q.LotID, k.LotID) &&
		optionalMatch(q.SerialID, k.SerialID)
}

func optionalMatch(want, got *int) bool {
	if want == nil {
		return true
	}
	return got != nil && *got == *want
}

type StockBalance struct {
	ID          int             `json:"id"`
	CompanyID   int             `json:"company_id"`
	WarehouseID int             `json:"warehouse_id"`
	ItemID      int             `json:"item_id"`
	LocationID  *int            `json:"location_id,omitempty"`
	LotID       *int            `json:"lot_id,omitempty"`
	SerialID    *int            `json:"serial_id,omitempty"`
	OnHandQty   decimal.Decimal `json:"on_hand_qty"`
	OnHandValue decimal.Decimal `json:"on_hand_value"`
	AvgCost     decimal.Decimal `json:"avg_cost"`
	LastUpdated time.Time       `json:"last_updated"`
}

// Key returns the identity of the balance row.
func (b *StockBalance) Key() StockKey {
	return StockKey{
		CompanyID:   b.CompanyID,
		WarehouseID: b.WarehouseID,
		ItemID:      b.ItemID,
		LocationID:  b.LocationID,
		LotID:       b.LotID,
		SerialID:    b.SerialID,
	}
}

// StockTotals is an aggregate of quantity and value over several balances or ledger entries.
type StockTotals struct {
	Qty   decimal.Decimal
	Value decimal.Decimal
	Rows  int
}

// IntPtr is a small helper for optional references.
func IntPtr(v int) *int { return &v }

// SameRef reports whether two optional references are equal, treating nil as a value.
func SameRef(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
