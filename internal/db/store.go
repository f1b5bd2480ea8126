package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"inventory-ledger/internal/core"
)

// Store implements core.Store on PostgreSQL. Each InTx call is one database transaction.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var _ core.Store = (*Store)(nil)

func (s *Store) InTx(ctx context.Context, fn func(tx core.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, core.ErrNotFound)
	}
	return fmt.Errorf("failed to load %s: %w", what, err)
}

// ── Documents ─────────────────────────────────────────────────────────────────

const documentColumns = `
	id, company_id, doc_type, doc_no, doc_date, status, posting_date,
	from_warehouse_id, to_warehouse_id, supplier_id, customer_id, reason_code_id,
	reference_no, notes, created_by, created_at,
	submitted_by, submitted_at, approved_by, approved_at, posted_by, posted_at`

func (t *pgTx) LockDocument(ctx context.Context, documentID int) (*core.Document, error) {
	return t.loadDocument(ctx, documentID, true)
}

func (t *pgTx) GetDocument(ctx context.Context, documentID int) (*core.Document, error) {
	return t.loadDocument(ctx, documentID, false)
}

func (t *pgTx) loadDocument(ctx context.Context, documentID int, forUpdate bool) (*core.Document, error) {
	query := "SELECT " + documentColumns + " FROM documents_header WHERE id = $1"
	if forUpdate {
		query += " FOR UPDATE"
	}

	var (
		d       core.Document
		docType string
		status  string
		docNo   *string
	)
	err := t.tx.QueryRow(ctx, query, documentID).Scan(
		&d.ID, &d.CompanyID, &docType, &docNo, &d.DocumentDate, &status, &d.PostingDate,
		&d.FromWarehouseID, &d.ToWarehouseID, &d.SupplierID, &d.CustomerID, &d.ReasonCodeID,
		&d.ReferenceNo, &d.Notes, &d.CreatedBy, &d.CreatedAt,
		&d.SubmittedBy, &d.SubmittedAt, &d.ApprovedBy, &d.ApprovedAt, &d.PostedBy, &d.PostedAt,
	)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("document %d", documentID))
	}
	d.Type = core.DocumentType(docType)
	d.Status = core.DocumentStatus(status)
	if docNo != nil {
		d.Number = *docNo
	}

	rows, err := t.tx.Query(ctx, `
		SELECT id, document_id, line_no, item_id, qty, uom_id, base_qty,
		       from_location_id, to_location_id, lot_id, serial_id,
		       unit_cost, total_cost, notes
		FROM documents_lines
		WHERE document_id = $1
		ORDER BY line_no
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query document lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l core.DocumentLine
		if err := rows.Scan(
			&l.ID, &l.DocumentID, &l.LineNo, &l.ItemID, &l.Qty, &l.UOMID, &l.BaseQty,
			&l.FromLocationID, &l.ToLocationID, &l.LotID, &l.SerialID,
			&l.UnitCost, &l.TotalCost, &l.Notes,
		); err != nil {
			return nil, fmt.Errorf("failed to scan document line: %w", err)
		}
		d.Lines = append(d.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read document lines: %w", err)
	}
	return &d, nil
}

func (t *pgTx) InsertDocument(ctx context.Context, doc *core.Document) error {
	if doc.Status == "" {
		doc.Status = core.DocumentStatusDraft
	}
	if doc.DocumentDate.IsZero() {
		doc.DocumentDate = time.Now().UTC()
	}

	err := t.tx.QueryRow(ctx, `
		INSERT INTO documents_header (
			company_id, doc_type, doc_no, doc_date, status,
			from_warehouse_id, to_warehouse_id, supplier_id, customer_id, reason_code_id,
			reference_no, notes, created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at
	`,
		doc.CompanyID, string(doc.Type), nullString(doc.Number), doc.DocumentDate, string(doc.Status),
		doc.FromWarehouseID, doc.ToWarehouseID, doc.SupplierID, doc.CustomerID, doc.ReasonCodeID,
		doc.ReferenceNo, doc.Notes, doc.CreatedBy,
	).Scan(&doc.ID, &doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert document header: %w", err)
	}

	for i := range doc.Lines {
		l := &doc.Lines[i]
		l.DocumentID = doc.ID
		if l.LineNo == 0 {
			l.LineNo = i + 1
		}
		err := t.tx.QueryRow(ctx, `
			INSERT INTO documents_lines (
				document_id, line_no, item_id, qty, uom_id, base_qty,
				from_location_id, to_location_id, lot_id, serial_id,
				unit_cost, total_cost, notes
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			RETURNING id
		`,
			l.DocumentID, l.LineNo, l.ItemID, l.Qty, l.UOMID, l.BaseQty,
			l.FromLocationID, l.ToLocationID, l.LotID, l.SerialID,
			l.UnitCost, l.TotalCost, l.Notes,
		).Scan(&l.ID)
		if err != nil {
			return fmt.Errorf("failed to insert document line %d: %w", l.LineNo, err)
		}
	}
	return nil
}

func (t *pgTx) MarkPosted(ctx context.Context, documentID int, number string, postingDate time.Time, actorID int, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE documents_header
		SET status = $2, doc_no = $3, posting_date = $4, posted_by = $5, posted_at = $6
		WHERE id = $1
	`, documentID, string(core.DocumentStatusPosted), number, postingDate, actorID, at)
	if err != nil {
		return fmt.Errorf("failed to mark document %d posted: %w", documentID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %d: %w", documentID, core.ErrNotFound)
	}
	return nil
}

// NextDocumentNumber upserts the (company, type) sequence row and takes its number in the
// same statement, so concurrent posters serialise on the row and no number is skipped.
func (t *pgTx) NextDocumentNumber(ctx context.Context, companyID int, docType core.DocumentType) (string, error) {
	var (
		prefix  string
		n       int64
		padding int
	)
	err := t.tx.QueryRow(ctx, `
		INSERT INTO doc_sequences (company_id, doc_type, prefix, next_number, padding)
		VALUES ($1, $2, $3, 2, $4)
		ON CONFLICT (company_id, doc_type)
		DO UPDATE SET next_number = doc_sequences.next_number + 1
		RETURNING prefix, next_number - 1, padding
	`, companyID, string(docType), core.SequencePrefix(docType), core.DefaultSequencePadding).Scan(&prefix, &n, &padding)
	if err != nil {
		return "", fmt.Errorf("failed to generate gapless sequence number: %w", err)
	}
	return core.FormatDocumentNumber(prefix, n, padding), nil
}

// ── Master data ───────────────────────────────────────────────────────────────

func (t *pgTx) GetItem(ctx context.Context, itemID int) (*core.Item, error) {
	var (
		item     core.Item
		itemType string
		tracking string
	)
	err := t.tx.QueryRow(ctx, `
		SELECT id, company_id, code, name, category_id, item_type, tracking_type, base_uom_id, is_active
		FROM items
		WHERE id = $1
	`, itemID).Scan(
		&item.ID, &item.CompanyID, &item.Code, &item.Name, &item.CategoryID,
		&itemType, &tracking, &item.BaseUOMID, &item.IsActive,
	)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("item %d", itemID))
	}
	item.Type = core.ItemType(itemType)
	item.Tracking = core.TrackingType(tracking)
	return &item, nil
}

func (t *pgTx) GetLocation(ctx context.Context, locationID int) (*core.Location, error) {
	var loc core.Location
	err := t.tx.QueryRow(ctx,
		"SELECT id, warehouse_id, code, is_active FROM locations WHERE id = $1",
		locationID,
	).Scan(&loc.ID, &loc.WarehouseID, &loc.Code, &loc.IsActive)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("location %d", locationID))
	}
	return &loc, nil
}

func (t *pgTx) UOMFactor(ctx context.Context, itemID, fromUOMID int) (decimal.Decimal, error) {
	var baseUOM int
	if err := t.tx.QueryRow(ctx, "SELECT base_uom_id FROM items WHERE id = $1", itemID).Scan(&baseUOM); err != nil {
		return decimal.Zero, notFound(err, fmt.Sprintf("item %d", itemID))
	}
	if baseUOM == fromUOMID {
		return decimal.NewFromInt(1), nil
	}

	var factor decimal.Decimal
	err := t.tx.QueryRow(ctx,
		"SELECT factor FROM item_uom_conversions WHERE item_id = $1 AND from_uom_id = $2",
		itemID, fromUOMID,
	).Scan(&factor)
	if err != nil {
		return decimal.Zero, notFound(err, fmt.Sprintf("uom %d for item %d", fromUOMID, itemID))
	}
	return factor, nil
}

// ── Balances ──────────────────────────────────────────────────────────────────

const balanceColumns = `
	id, company_id, warehouse_id, item_id, location_id, lot_id, serial_id,
	on_hand_qty, on_hand_value, avg_cost, last_updated`

func scanBalance(row pgx.Row, b *core.StockBalance) error {
	return row.Scan(
		&b.ID, &b.CompanyID, &b.WarehouseID, &b.ItemID, &b.LocationID, &b.LotID, &b.SerialID,
		&b.OnHandQty, &b.OnHandValue, &b.AvgCost, &b.LastUpdated,
	)
}

// LockBalance locks the oldest row matching the references key carries. Only when
// nothing matches is a row inserted for the exact key; a concurrent insert of the same
// key makes ON CONFLICT wait, after which the winner's row is locked instead.
func (t *pgTx) LockBalance(ctx context.Context, key core.StockKey, now time.Time) (*core.StockBalance, bool, error) {
	var b core.StockBalance
	err := scanBalance(t.tx.QueryRow(ctx, "SELECT "+balanceColumns+`
		FROM stock_balance
		WHERE company_id = $1 AND warehouse_id = $2 AND item_id = $3
		  AND ($4::int IS NULL OR location_id = $4)
		  AND ($5::int IS NULL OR lot_id = $5)
		  AND ($6::int IS NULL OR serial_id = $6)
		ORDER BY id
		LIMIT 1
		FOR UPDATE
	`, key.CompanyID, key.WarehouseID, key.ItemID, key.LocationID, key.LotID, key.SerialID), &b)
	if err == nil {
		return &b, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to lock stock balance: %w", err)
	}

	created := true
	var id int
	err = t.tx.QueryRow(ctx, `
		INSERT INTO stock_balance (company_id, warehouse_id, item_id, location_id, lot_id, serial_id, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (company_id, warehouse_id, item_id,
		             (COALESCE(location_id, -1)), (COALESCE(lot_id, -1)), (COALESCE(serial_id, -1)))
		DO NOTHING
		RETURNING id
	`, key.CompanyID, key.WarehouseID, key.ItemID, key.LocationID, key.LotID, key.SerialID, now).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		created = false
	} else if err != nil {
		return nil, false, fmt.Errorf("failed to initialise stock balance: %w", err)
	}

	err = scanBalance(t.tx.QueryRow(ctx, "SELECT "+balanceColumns+`
		FROM stock_balance
		WHERE company_id = $1 AND warehouse_id = $2 AND item_id = $3
		  AND COALESCE(location_id, -1) = COALESCE($4::int, -1)
		  AND COALESCE(lot_id, -1) = COALESCE($5::int, -1)
		  AND COALESCE(serial_id, -1) = COALESCE($6::int, -1)
		FOR UPDATE
	`, key.CompanyID, key.WarehouseID, key.ItemID, key.LocationID, key.LotID, key.SerialID), &b)
	if err != nil {
		return nil, false, fmt.Errorf("failed to lock stock balance: %w", err)
	}
	return &b, created, nil
}

func (t *pgTx) UpdateBalance(ctx context.Context, bal *core.StockBalance) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE stock_balance
		SET on_hand_qty = $2, on_hand_value = $3, avg_cost = $4, last_updated = $5
		WHERE id = $1
	`, bal.ID, bal.OnHandQty, bal.OnHandValue, bal.AvgCost, bal.LastUpdated)
	if err != nil {
		return fmt.Errorf("failed to update stock balance %d: %w", bal.ID, err)
	}
	return nil
}

// stockFilter renders q as a WHERE clause. Nil fields are left unconstrained.
func stockFilter(q core.StockQuery) (string, []any) {
	conds := []string{"company_id = $1"}
	args := []any{q.CompanyID}
	add := func(col string, v *int) {
		if v == nil {
			return
		}
		args = append(args, *v)
		conds = append(conds, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	add("warehouse_id", q.WarehouseID)
	add("item_id", q.ItemID)
	add("location_id", q.LocationID)
	add("lot_id", q.LotID)
	add("serial_id", q.SerialID)
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (t *pgTx) BalanceTotals(ctx context.Context, q core.StockQuery) (core.StockTotals, error) {
	where, args := stockFilter(q)
	var totals core.StockTotals
	err := t.tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(on_hand_qty), 0), COALESCE(SUM(on_hand_value), 0), COUNT(*)
		FROM stock_balance`+where, args...).Scan(&totals.Qty, &totals.Value, &totals.Rows)
	if err != nil {
		return core.StockTotals{}, fmt.Errorf("failed to sum stock balances: %w", err)
	}
	return totals, nil
}

func (t *pgTx) ListBalances(ctx context.Context, q core.StockQuery) ([]core.StockBalance, error) {
	where, args := stockFilter(q)
	rows, err := t.tx.Query(ctx, "SELECT "+balanceColumns+" FROM stock_balance"+where+
		" ORDER BY warehouse_id, item_id, id", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query stock balances: %w", err)
	}
	defer rows.Close()

	var out []core.StockBalance
	for rows.Next() {
		var b core.StockBalance
		if err := scanBalance(rows, &b); err != nil {
			return nil, fmt.Errorf("failed to scan stock balance: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ── Ledger ────────────────────────────────────────────────────────────────────

func (t *pgTx) InsertLedgerEntry(ctx context.Context, e *core.LedgerEntry) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO inventory_ledger (
			posting_date, company_id, warehouse_id, location_id, item_id,
			qty_in, qty_out, unit_cost, value_in, value_out, lot_id, serial_id,
			doc_type, doc_id, doc_no, line_no, created_by, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING id
	`,
		e.PostingDate, e.CompanyID, e.WarehouseID, e.LocationID, e.ItemID,
		e.QtyIn, e.QtyOut, e.UnitCost, e.ValueIn, e.ValueOut, e.LotID, e.SerialID,
		string(e.DocType), e.DocID, e.DocNumber, e.LineNo, e.CreatedBy, e.CreatedAt,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}
	return nil
}

func (t *pgTx) LedgerTotals(ctx context.Context, q core.StockQuery) (core.StockTotals, error) {
	where, args := stockFilter(q)
	var totals core.StockTotals
	err := t.tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(qty_in - qty_out), 0), COALESCE(SUM(value_in - value_out), 0), COUNT(*)
		FROM inventory_ledger`+where, args...).Scan(&totals.Qty, &totals.Value, &totals.Rows)
	if err != nil {
		return core.StockTotals{}, fmt.Errorf("failed to sum ledger: %w", err)
	}
	return totals, nil
}

func (t *pgTx) LedgerByDocument(ctx context.Context, documentID int) ([]core.LedgerEntry, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, posting_date, company_id, warehouse_id, location_id, item_id,
		       qty_in, qty_out, unit_cost, value_in, value_out, lot_id, serial_id,
		       doc_type, doc_id, doc_no, line_no, created_by, created_at
		FROM inventory_ledger
		WHERE doc_id = $1
		ORDER BY id
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	defer rows.Close()

	var out []core.LedgerEntry
	for rows.Next() {
		var (
			e       core.LedgerEntry
			docType string
		)
		if err := rows.Scan(
			&e.ID, &e.PostingDate, &e.CompanyID, &e.WarehouseID, &e.LocationID, &e.ItemID,
			&e.QtyIn, &e.QtyOut, &e.UnitCost, &e.ValueIn, &e.ValueOut, &e.LotID, &e.SerialID,
			&docType, &e.DocID, &e.DocNumber, &e.LineNo, &e.CreatedBy, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		e.DocType = core.DocumentType(docType)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ── Policies ──────────────────────────────────────────────────────────────────

func (t *pgTx) FindPolicy(ctx context.Context, name string, scope core.PolicyScope, sel core.PolicySelector) (*core.Policy, error) {
	sel = sel.ForScope(scope)
	conds := []string{"scope_type = $1", "policy_name = $2"}
	args := []any{string(scope), name}
	add := func(col string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if sel.CompanyID != nil {
		add("company_id", *sel.CompanyID)
	}
	if sel.WarehouseID != nil {
		add("warehouse_id", *sel.WarehouseID)
	}
	if sel.DocType != nil {
		add("doc_type", string(*sel.DocType))
	}
	if sel.CategoryID != nil {
		add("category_id", *sel.CategoryID)
	}
	if sel.ItemID != nil {
		add("item_id", *sel.ItemID)
	}

	var (
		p       core.Policy
		scopeS  string
		docType *string
	)
	err := t.tx.QueryRow(ctx, `
		SELECT id, scope_type, company_id, warehouse_id, doc_type, category_id, item_id,
		       policy_name, policy_value, override_allowed, override_requires_approval,
		       approval_role_id, reason_required
		FROM policies
		WHERE `+strings.Join(conds, " AND ")+`
		ORDER BY id
		LIMIT 1
	`, args...).Scan(
		&p.ID, &scopeS, &p.CompanyID, &p.WarehouseID, &docType, &p.CategoryID, &p.ItemID,
		&p.Name, &p.Value, &p.OverrideAllowed, &p.OverrideRequiresApproval,
		&p.ApprovalRoleID, &p.ReasonRequired,
	)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("policy %s at %s", name, scope))
	}
	p.Scope = core.PolicyScope(scopeS)
	if docType != nil {
		dt := core.DocumentType(*docType)
		p.DocType = &dt
	}
	return &p, nil
}

func (t *pgTx) UpsertPolicy(ctx context.Context, p *core.Policy) error {
	p.PolicySelector = p.PolicySelector.ForScope(p.Scope)
	var docType *string
	if p.DocType != nil {
		s := string(*p.DocType)
		docType = &s
	}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO policies (
			scope_type, company_id, warehouse_id, doc_type, category_id, item_id,
			policy_name, policy_value, override_allowed, override_requires_approval,
			approval_role_id, reason_required
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (scope_type, policy_name,
		             (COALESCE(company_id, -1)), (COALESCE(warehouse_id, -1)), (COALESCE(doc_type, '')),
		             (COALESCE(category_id, -1)), (COALESCE(item_id, -1)))
		DO UPDATE SET
			policy_value               = EXCLUDED.policy_value,
			override_allowed           = EXCLUDED.override_allowed,
			override_requires_approval = EXCLUDED.override_requires_approval,
			approval_role_id           = EXCLUDED.approval_role_id,
			reason_required            = EXCLUDED.reason_required,
			updated_at                 = now()
		RETURNING id
	`,
		string(p.Scope), p.CompanyID, p.WarehouseID, docType, p.CategoryID, p.ItemID,
		p.Name, p.Value, p.OverrideAllowed, p.OverrideRequiresApproval,
		p.ApprovalRoleID, p.ReasonRequired,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert policy %s: %w", p.Name, err)
	}
	return nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
