package core

import (
	"context"
	"errors"
	"fmt"
)

// ValidationEngine runs the pre-posting checks. It stops at the first failing line.
type ValidationEngine interface {
	Validate(ctx context.Context, doc *Document) error
	ValidateTx(ctx context.Context, tx Tx, doc *Document) error
}

type validationEngine struct {
	store    Store
	policies PolicyResolver
}

// NewValidationEngine constructs a ValidationEngine that consults policies for the negative-stock gate.
func NewValidationEngine(store Store, policies PolicyResolver) ValidationEngine {
	return &validationEngine{store: store, policies: policies}
}

func (v *validationEngine) Validate(ctx context.Context, doc *Document) error {
	return v.store.InTx(ctx, func(tx Tx) error {
		return v.ValidateTx(ctx, tx, doc)
	})
}

func (v *validationEngine) ValidateTx(ctx context.Context, tx Tx, doc *Document) error {
	if err := validateWarehouses(doc); err != nil {
		return err
	}
	for i := range doc.Lines {
		if err := v.validateLine(ctx, tx, doc, &doc.Lines[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateWarehouses checks the header carries the warehouse(s) its type moves stock through.
func validateWarehouses(doc *Document) error {
	missing := func(detail string) error {
		return &ValidationError{Code: CodeMissingWarehouse, Detail: detail}
	}
	switch doc.Type {
	case DocTypeReceipt, DocTypeReturnOut:
		if doc.ToWarehouseID == nil {
			return missing("destination warehouse is required")
		}
	case DocTypeIssue, DocTypeReturnIn:
		if doc.FromWarehouseID == nil {
			return missing("source warehouse is required")
		}
	case DocTypeTransfer:
		if doc.FromWarehouseID == nil || doc.ToWarehouseID == nil {
			return missing("transfer needs both source and destination warehouses")
		}
	case DocTypeAdjustment:
		if adjustmentWarehouse(doc) == nil {
			return missing("adjustment needs a warehouse")
		}
	}
	return nil
}

func (v *validationEngine) validateLine(ctx context.Context, tx Tx, doc *Document, line *DocumentLine) error {
	item, err := tx.GetItem(ctx, line.ItemID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return &ValidationError{Code: CodeItemNotFound, LineNo: line.LineNo, ItemID: line.ItemID}
		}
		return fmt.Errorf("failed to load item %d: %w", line.ItemID, err)
	}
	fail := func(code ErrorCode, detail string) *ValidationError {
		return &ValidationError{Code: code, LineNo: line.LineNo, ItemID: item.ID, ItemCode: item.Code, Detail: detail}
	}

	if !item.IsActive {
		return fail(CodeItemInactive, "")
	}

	if doc.Type.RequiresStockItem() && item.Type != ItemTypeStock {
		return fail(CodeWrongItemType, fmt.Sprintf("%s items cannot move on %s documents", item.Type, doc.Type))
	}

	if doc.Type == DocTypeAdjustment {
		if line.BaseQty.IsZero() {
			return fail(CodeNonPositiveQuantity, "adjustment quantity must not be zero")
		}
	} else if !line.BaseQty.IsPositive() {
		return fail(CodeNonPositiveQuantity, fmt.Sprintf("base quantity %s must be greater than zero", line.BaseQty))
	}

	switch item.Tracking {
	case TrackingLot:
		if line.LotID == nil {
			return fail(CodeMissingLotOrSerial, "lot number required")
		}
	case TrackingSerial:
		if line.SerialID == nil {
			return fail(CodeMissingLotOrSerial, "serial number required")
		}
	case TrackingLotExpiry:
		if line.LotID == nil {
			return fail(CodeMissingLotOrSerial, "lot number with expiry required")
		}
	}

	for _, locID := range movedLocations(doc, line) {
		loc, err := tx.GetLocation(ctx, *locID)
		if errors.Is(err, ErrNotFound) {
			return fail(CodeLocationNotFound, fmt.Sprintf("location %d does not exist", *locID))
		}
		if err != nil {
			return fmt.Errorf("failed to load location %d: %w", *locID, err)
		}
		if !loc.IsActive {
			return fail(CodeLocationInactive, fmt.Sprintf("location %s is not active", loc.Code))
		}
	}

	outgoing := doc.Type.IsOutgoing() || (doc.Type == DocTypeAdjustment && line.BaseQty.IsNegative())
	if !outgoing {
		return nil
	}
	return v.checkAvailability(ctx, tx, doc, line, item)
}

// movedLocations lists the line's location references that the document type moves stock through.
func movedLocations(doc *Document, line *DocumentLine) []*int {
	var refs []*int
	switch doc.Type {
	case DocTypeReceipt, DocTypeReturnOut:
		refs = []*int{line.ToLocationID}
	case DocTypeIssue, DocTypeReturnIn:
		refs = []*int{line.FromLocationID}
	default:
		refs = []*int{line.FromLocationID, line.ToLocationID}
	}
	out := refs[:0]
	for _, r := range refs {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

// checkAvailability is the negative-stock gate for one outgoing line.
func (v *validationEngine) checkAvailability(ctx context.Context, tx Tx, doc *Document, line *DocumentLine, item *Item) error {
	warehouseID, locationID := doc.FromWarehouseID, line.FromLocationID
	if doc.Type == DocTypeAdjustment {
		warehouseID, locationID = adjustmentWarehouse(doc), adjustmentOutLocation(line)
	}
	requested := line.BaseQty.Abs()

	onHand, err := tx.BalanceTotals(ctx, StockQuery{
		CompanyID:   doc.CompanyID,
		WarehouseID: warehouseID,
		ItemID:      &line.ItemID,
		LocationID:  locationID,
		LotID:       line.LotID,
		SerialID:    line.SerialID,
	})
	if err != nil {
		return fmt.Errorf("failed to read on-hand for item %s: %w", item.Code, err)
	}
	if !requested.GreaterThan(onHand.Qty) {
		return nil
	}

	docType := doc.Type
	block, err := v.policies.ResolveTx(ctx, tx, PolicyBlockNegativeStock, PolicyContext{
		CompanyID:   doc.CompanyID,
		WarehouseID: warehouseID,
		DocType:     &docType,
		CategoryID:  item.CategoryID,
		ItemID:      &item.ID,
	})
	if err != nil {
		return err
	}
	if !block {
		return nil
	}
	return &ValidationError{
		Code:      CodeInsufficientStock,
		LineNo:    line.LineNo,
		ItemID:    item.ID,
		ItemCode:  item.Code,
		Requested: requested,
		Available: onHand.Qty,
	}
}

// adjustmentWarehouse is the single warehouse an adjustment moves stock in.
func adjustmentWarehouse(doc *Document) *int {
	if doc.ToWarehouseID != nil {
		return doc.ToWarehouseID
	}
	return doc.FromWarehouseID
}
