package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// PostingEngine turns a draft document into ledger entries and balance updates.
type PostingEngine interface {
	// Post posts documentID as sess.ActorID. A zero postingDate means today.
	// On any error nothing is written and the document keeps its previous status.
	Post(ctx context.Context, sess Session, documentID int, postingDate time.Time) (*PostResult, error)
}

// PostResult summarises a successful post.
type PostResult struct {
	DocumentID  int          `json:"document_id"`
	DocType     DocumentType `json:"doc_type"`
	Number      string       `json:"doc_no"`
	PostingDate time.Time    `json:"posting_date"`
	PostedAt    time.Time    `json:"posted_at"`
	Entries     int          `json:"ledger_entries"`
}

type postingEngine struct {
	store     Store
	validator ValidationEngine
	costing   CostingEngine
	log       zerolog.Logger
	now       func() time.Time
}

// PostingOption customises a PostingEngine.
type PostingOption func(*postingEngine)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) PostingOption {
	return func(p *postingEngine) { p.now = now }
}

func NewPostingEngine(store Store, validator ValidationEngine, costing CostingEngine, log zerolog.Logger, opts ...PostingOption) PostingEngine {
	p := &postingEngine{
		store:     store,
		validator: validator,
		costing:   costing,
		log:       log.With().Str("component", "posting").Logger(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// movement is one side of a line's effect on stock: a ledger entry plus its balance delta.
type movement struct {
	warehouseID int
	locationID  *int
	inbound     bool
	qty         decimal.Decimal // magnitude, base units
	unitCost    decimal.Decimal
	value       decimal.Decimal // magnitude, rounded to value precision
}

type postingRoutine func(ctx context.Context, tx Tx, doc *Document, line *DocumentLine) ([]movement, error)

func (p *postingEngine) Post(ctx context.Context, sess Session, documentID int, postingDate time.Time) (*PostResult, error) {
	now := p.now().UTC()
	if postingDate.IsZero() {
		postingDate = now
	}
	postingDate = time.Date(postingDate.Year(), postingDate.Month(), postingDate.Day(), 0, 0, 0, 0, time.UTC)

	var result *PostResult
	err := p.store.InTx(ctx, func(tx Tx) error {
		r, err := p.postTx(ctx, tx, sess, documentID, postingDate, now)
		result = r
		return err
	})
	if err != nil {
		return nil, err
	}

	p.log.Info().
		Int("document_id", result.DocumentID).
		Str("doc_no", result.Number).
		Str("doc_type", string(result.DocType)).
		Int("actor_id", sess.ActorID).
		Int("ledger_entries", result.Entries).
		Msg("document posted")
	return result, nil
}

func (p *postingEngine) postTx(ctx context.Context, tx Tx, sess Session, documentID int, postingDate, now time.Time) (*PostResult, error) {
	doc, err := tx.LockDocument(ctx, documentID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &PostingError{Code: CodeDocumentNotFound, DocumentID: documentID}
		}
		return nil, fmt.Errorf("failed to read document %d for update: %w", documentID, err)
	}
	if sess.CompanyID != 0 && doc.CompanyID != sess.CompanyID {
		return nil, &PostingError{Code: CodeDocumentNotFound, DocumentID: documentID, Detail: "document belongs to another company"}
	}

	switch doc.Status {
	case DocumentStatusPosted, DocumentStatusReversed:
		return nil, &PostingError{Code: CodeAlreadyPosted, DocumentID: documentID, Detail: doc.Number}
	case DocumentStatusCancelled:
		return nil, &PostingError{Code: CodeCancelledDocument, DocumentID: documentID, Detail: doc.Number}
	}
	if len(doc.Lines) == 0 {
		return nil, &PostingError{Code: CodeEmptyDocument, DocumentID: documentID}
	}

	if err := p.validator.ValidateTx(ctx, tx, doc); err != nil {
		return nil, err
	}

	routine, err := p.routineFor(doc.Type)
	if err != nil {
		return nil, &PostingError{Code: CodeUnsupportedDocType, DocumentID: documentID, Detail: string(doc.Type)}
	}

	if doc.Number == "" {
		doc.Number, err = tx.NextDocumentNumber(ctx, doc.CompanyID, doc.Type)
		if err != nil {
			return nil, fmt.Errorf("failed to generate document number: %w", err)
		}
	}

	entries := 0
	for i := range doc.Lines {
		line := &doc.Lines[i]
		moves, err := routine(ctx, tx, doc, line)
		if err != nil {
			return nil, err
		}
		for _, m := range moves {
			if err := p.apply(ctx, tx, sess, doc, line, m, postingDate, now); err != nil {
				return nil, err
			}
			entries++
		}
	}

	if err := tx.MarkPosted(ctx, doc.ID, doc.Number, postingDate, sess.ActorID, now); err != nil {
		return nil, fmt.Errorf("failed to update document status: %w", err)
	}

	return &PostResult{
		DocumentID:  doc.ID,
		DocType:     doc.Type,
		Number:      doc.Number,
		PostingDate: postingDate,
		PostedAt:    now,
		Entries:     entries,
	}, nil
}

// routineFor is the dispatch table over DocumentType. Every variant is listed; adding
// one without deciding how it posts falls through to the unsupported error.
func (p *postingEngine) routineFor(t DocumentType) (postingRoutine, error) {
	switch t {
	case DocTypeReceipt, DocTypeReturnOut:
		return p.receiptMovements, nil
	case DocTypeIssue, DocTypeReturnIn:
		return p.issueMovements, nil
	case DocTypeTransfer:
		return p.transferMovements, nil
	case DocTypeAdjustment:
		return p.adjustmentMovements, nil
	case DocTypeStockCount, DocTypeProductionOrder, DocTypeProductionIssue,
		DocTypeProductionReceipt, DocTypeScrap:
		return nil, ErrUnsupportedDocType
	}
	return nil, ErrUnsupportedDocType
}

func (p *postingEngine) receiptMovements(_ context.Context, _ Tx, doc *Document, line *DocumentLine) ([]movement, error) {
	unitCost, value := p.givenCost(line, line.BaseQty)
	return []movement{{
		warehouseID: *doc.ToWarehouseID,
		locationID:  line.ToLocationID,
		inbound:     true,
		qty:         line.BaseQty,
		unitCost:    unitCost,
		value:       value,
	}}, nil
}

func (p *postingEngine) issueMovements(ctx context.Context, tx Tx, doc *Document, line *DocumentLine) ([]movement, error) {
	warehouseID := *doc.FromWarehouseID
	avg, err := p.costing.AverageCostTx(ctx, tx, doc.CompanyID, warehouseID, line.ItemID, line.LotID)
	if err != nil {
		return nil, err
	}
	return []movement{{
		warehouseID: warehouseID,
		locationID:  line.FromLocationID,
		qty:         line.BaseQty,
		unitCost:    avg,
		value:       p.costing.RoundValue(line.BaseQty.Mul(avg)),
	}}, nil
}

// transferMovements carries the source average cost unchanged into the destination.
func (p *postingEngine) transferMovements(ctx context.Context, tx Tx, doc *Document, line *DocumentLine) ([]movement, error) {
	avg, err := p.costing.AverageCostTx(ctx, tx, doc.CompanyID, *doc.FromWarehouseID, line.ItemID, line.LotID)
	if err != nil {
		return nil, err
	}
	value := p.costing.RoundValue(line.BaseQty.Mul(avg))
	return []movement{
		{
			warehouseID: *doc.FromWarehouseID,
			locationID:  line.FromLocationID,
			qty:         line.BaseQty,
			unitCost:    avg,
			value:       value,
		},
		{
			warehouseID: *doc.ToWarehouseID,
			locationID:  line.ToLocationID,
			inbound:     true,
			qty:         line.BaseQty,
			unitCost:    avg,
			value:       value,
		},
	}, nil
}

func (p *postingEngine) adjustmentMovements(ctx context.Context, tx Tx, doc *Document, line *DocumentLine) ([]movement, error) {
	warehouseID := *adjustmentWarehouse(doc)

	if line.BaseQty.IsPositive() {
		loc := line.ToLocationID
		if loc == nil {
			loc = line.FromLocationID
		}
		unitCost, value := p.givenCost(line, line.BaseQty)
		return []movement{{
			warehouseID: warehouseID,
			locationID:  loc,
			inbound:     true,
			qty:         line.BaseQty,
			unitCost:    unitCost,
			value:       value,
		}}, nil
	}

	qty := line.BaseQty.Abs()
	avg, err := p.costing.AverageCostTx(ctx, tx, doc.CompanyID, warehouseID, line.ItemID, line.LotID)
	if err != nil {
		return nil, err
	}
	return []movement{{
		warehouseID: warehouseID,
		locationID:  adjustmentOutLocation(line),
		qty:         qty,
		unitCost:    avg,
		value:       p.costing.RoundValue(qty.Mul(avg)),
	}}, nil
}

// givenCost prices an inbound line from the document: the total cost when present,
// otherwise quantity times unit cost (zero when neither is set). The unit cost is
// rounded to cost precision before it is used.
func (p *postingEngine) givenCost(line *DocumentLine, qty decimal.Decimal) (unitCost, value decimal.Decimal) {
	if line.UnitCost.Valid {
		unitCost = p.costing.RoundCost(line.UnitCost.Decimal)
	}
	if line.TotalCost.Valid {
		value = p.costing.RoundValue(line.TotalCost.Decimal)
		if !line.UnitCost.Valid && qty.IsPositive() {
			unitCost = p.costing.RoundCost(value.Div(qty))
		}
		return unitCost, value
	}
	return unitCost, p.costing.RoundValue(qty.Mul(unitCost))
}

// apply writes the ledger entry for m and folds its delta into the matching balance row.
func (p *postingEngine) apply(ctx context.Context, tx Tx, sess Session, doc *Document, line *DocumentLine, m movement, postingDate, now time.Time) error {
	entry := &LedgerEntry{
		PostingDate: postingDate,
		CompanyID:   doc.CompanyID,
		WarehouseID: m.warehouseID,
		LocationID:  m.locationID,
		ItemID:      line.ItemID,
		QtyIn:       decimal.Zero,
		QtyOut:      decimal.Zero,
		UnitCost:    m.unitCost,
		ValueIn:     decimal.Zero,
		ValueOut:    decimal.Zero,
		LotID:       line.LotID,
		SerialID:    line.SerialID,
		DocType:     doc.Type,
		DocID:       doc.ID,
		DocNumber:   doc.Number,
		LineNo:      line.LineNo,
		CreatedBy:   sess.ActorID,
		CreatedAt:   now,
	}
	dq, dv := m.qty, m.value
	if m.inbound {
		entry.QtyIn, entry.ValueIn = m.qty, m.value
	} else {
		entry.QtyOut, entry.ValueOut = m.qty, m.value
		dq, dv = dq.Neg(), dv.Neg()
	}

	key := StockKey{
		CompanyID:   doc.CompanyID,
		WarehouseID: m.warehouseID,
		ItemID:      line.ItemID,
		LocationID:  m.locationID,
		LotID:       line.LotID,
		SerialID:    line.SerialID,
	}
	bal, created, err := tx.LockBalance(ctx, key, now)
	if err != nil {
		return fmt.Errorf("failed to lock stock balance for line %d: %w", line.LineNo, err)
	}
	if created && dq.IsNegative() {
		// Issuing against a key that never received stock has no meaningful cost.
		return &PostingError{
			Code:       CodeNoOpeningBalance,
			DocumentID: doc.ID,
			LineNo:     line.LineNo,
			Detail:     fmt.Sprintf("no stock balance exists for item %d in warehouse %d", line.ItemID, m.warehouseID),
		}
	}

	// The entry is recorded against the row it moved, so references the line left
	// open take the matched row's values.
	entry.LocationID, entry.LotID, entry.SerialID = bal.LocationID, bal.LotID, bal.SerialID
	if err := tx.InsertLedgerEntry(ctx, entry); err != nil {
		return fmt.Errorf("failed to insert ledger entry for line %d: %w", line.LineNo, err)
	}

	p.fold(bal, dq, dv, now)
	if err := tx.UpdateBalance(ctx, bal); err != nil {
		return fmt.Errorf("failed to update stock balance for line %d: %w", line.LineNo, err)
	}

	p.log.Debug().
		Int("document_id", doc.ID).
		Int("line_no", line.LineNo).
		Int("warehouse_id", m.warehouseID).
		Int("item_id", line.ItemID).
		Str("qty", dq.String()).
		Str("value", dv.String()).
		Str("avg_cost", bal.AvgCost.String()).
		Msg("stock movement applied")
	return nil
}

// fold applies a delta to a balance. Quantity and value always accumulate so the row
// stays equal to its ledger sums; avg_cost is value/qty while stock is positive and 0 otherwise.
func (p *postingEngine) fold(bal *StockBalance, dq, dv decimal.Decimal, now time.Time) {
	bal.OnHandQty = bal.OnHandQty.Add(dq)
	bal.OnHandValue = bal.OnHandValue.Add(dv)
	if bal.OnHandQty.IsPositive() {
		bal.AvgCost = p.costing.RoundCost(bal.OnHandValue.Div(bal.OnHandQty))
	} else {
		bal.AvgCost = decimal.Zero
	}
	bal.LastUpdated = now
}

// adjustmentOutLocation is where a negative adjustment takes stock from.
func adjustmentOutLocation(line *DocumentLine) *int {
	if line.FromLocationID != nil {
		return line.FromLocationID
	}
	return line.ToLocationID
}
